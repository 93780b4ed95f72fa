package marshaller

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

func TestMarshallLiveEvent(t *testing.T) {
	ev := &model.AccountEvent{DID: "did:plc:a", TimeUS: 3, Account: model.Account{Active: true, DID: "did:plc:a", Seq: 1}}

	data, err := MarshallLiveEvent(ev)
	require.NoError(t, err)

	var got struct {
		Type       string          `json:"type"`
		RoutingKey string          `json:"routing_key"`
		Event      json.RawMessage `json:"event"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeEvent, got.Type)
	assert.Equal(t, "jetstream.account", got.RoutingKey)

	back, err := model.ParseEvent(got.Event)
	require.NoError(t, err)
	assert.Equal(t, model.Key(ev), model.Key(back))
}

func TestMarshallConnected(t *testing.T) {
	id := uuid.New()
	data, err := MarshallConnected(id, "1.2.3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connected","connection_id":"`+id.String()+`","server_version":"1.2.3"}`, string(data))
}

func TestMarshallEvents_Empty(t *testing.T) {
	data, err := MarshallEvents(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"events":[]}`, string(data))
}
