// Package marshaller renders events for live delivery channels (WebSocket
// frames and long-poll batches).
package marshaller

import (
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

const (
	TypeEvent     = "event"
	TypeConnected = "connected"
)

// LiveEvent is the envelope every live frame is wrapped in.
type LiveEvent struct {
	Type       string      `json:"type"`
	RoutingKey string      `json:"routing_key,omitempty"`
	Event      model.Event `json:"event,omitempty"`

	// connected frame
	ConnectionID  string `json:"connection_id,omitempty"`
	ServerVersion string `json:"server_version,omitempty"`
}

// Batch is the long-poll response body.
type Batch struct {
	Events []LiveEvent `json:"events"`
}

func wrap(ev model.Event) LiveEvent {
	return LiveEvent{Type: TypeEvent, RoutingKey: model.RoutingKey(ev), Event: ev}
}

// MarshallLiveEvent encodes one event frame.
func MarshallLiveEvent(ev model.Event) ([]byte, error) {
	return json.Marshal(wrap(ev))
}

// MarshallConnected encodes the greeting sent right after a viewer attaches.
func MarshallConnected(connID uuid.UUID, version string) ([]byte, error) {
	return json.Marshal(LiveEvent{
		Type:          TypeConnected,
		ConnectionID:  connID.String(),
		ServerVersion: version,
	})
}

// MarshallEvents converts a slice of events into a single JSON batch.
func MarshallEvents(events []model.Event) ([]byte, error) {
	res := Batch{Events: make([]LiveEvent, 0, len(events))}
	for _, ev := range events {
		res.Events = append(res.Events, wrap(ev))
	}
	return json.Marshal(res)
}
