package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commitFrame = `{"did":"did:plc:abc","time_us":1725911162329308,"kind":"commit",
	"commit":{"rev":"3l3qo2vutsw2b","operation":"create","collection":"app.bsky.feed.like",
	"rkey":"3l3qo2vuowo2b","record":{"$type":"app.bsky.feed.like","createdAt":"2024-09-09T19:46:02.102Z"},
	"cid":"bafyreidc6sydkkbchcyg62v77wbhzvb2mvytlmsychqgwf2xojjtirmzj4"}}`

func TestParseEvent_Commit(t *testing.T) {
	ev, err := ParseEvent([]byte(commitFrame))
	require.NoError(t, err)

	c, ok := ev.(*CommitEvent)
	require.True(t, ok, "expected *CommitEvent, got %T", ev)
	assert.Equal(t, "did:plc:abc", c.GetDID())
	assert.Equal(t, int64(1725911162329308), c.GetTimeUS())
	assert.Equal(t, KindCommit, c.GetKind())
	assert.Equal(t, OpCreate, c.Commit.Operation)
	assert.Equal(t, "app.bsky.feed.like", c.Commit.Collection)
	assert.Equal(t, "3l3qo2vuowo2b", c.Commit.RKey)
	assert.NotEmpty(t, c.Commit.Record)
	assert.True(t, strings.HasPrefix(c.Commit.CID, "bafy"))
}

func TestParseEvent_IdentityAndAccount(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"did":"did:plc:x","time_us":10,"kind":"identity",
		"identity":{"did":"did:plc:x","handle":"alice.test","seq":42,"time":"2024-09-09T19:46:02Z"}}`))
	require.NoError(t, err)
	id, ok := ev.(*IdentityEvent)
	require.True(t, ok)
	assert.Equal(t, "alice.test", id.Identity.Handle)
	assert.Equal(t, int64(42), id.Identity.Seq)

	ev, err = ParseEvent([]byte(`{"did":"did:plc:y","time_us":11,"kind":"account",
		"account":{"active":false,"did":"did:plc:y","seq":7,"time":"2024-09-09T19:46:02Z"}}`))
	require.NoError(t, err)
	acc, ok := ev.(*AccountEvent)
	require.True(t, ok)
	assert.False(t, acc.Account.Active)
	assert.Equal(t, KindAccount, acc.GetKind())
}

func TestParseEvent_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"unknown kind", `{"did":"did:plc:a","time_us":1,"kind":"tombstone"}`, ErrUnknownKind},
		{"missing payload", `{"did":"did:plc:a","time_us":1,"kind":"commit"}`, ErrMissingPayload},
		{"mismatched payload", `{"did":"did:plc:a","time_us":1,"kind":"identity","account":{"active":true}}`, ErrMissingPayload},
		{"two payloads", `{"did":"did:plc:a","time_us":1,"kind":"account","account":{},"identity":{}}`, ErrAmbiguous},
		{"missing did", `{"time_us":1,"kind":"account","account":{}}`, ErrMissingDID},
		{"bad operation", `{"did":"did:plc:a","time_us":1,"kind":"commit","commit":{"operation":"upsert","collection":"a"}}`, ErrInvalidCommit},
		{"empty collection", `{"did":"did:plc:a","time_us":1,"kind":"commit","commit":{"operation":"create"}}`, ErrInvalidCommit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tc.frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.frame, string(perr.Frame))
		})
	}
}

func TestParseEvent_MalformedJSONTruncatesFrame(t *testing.T) {
	frame := "{" + strings.Repeat("x", 1000)
	_, err := ParseEvent([]byte(frame))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Len(t, perr.Frame, maxFrameInError)
}

func TestMarshalEvent_KeepsWireShape(t *testing.T) {
	ev, err := ParseEvent([]byte(commitFrame))
	require.NoError(t, err)

	data, err := MarshalEvent(ev)
	require.NoError(t, err)

	again, err := ParseEvent(data)
	require.NoError(t, err)
	assert.Equal(t, Key(ev), Key(again))
	assert.Contains(t, string(data), `"kind":"commit"`)
	assert.NotContains(t, string(data), `"identity"`)
}

func TestKey_DistinguishesVariants(t *testing.T) {
	a := &CommitEvent{DID: "d", TimeUS: 5, Commit: Commit{Collection: "c", RKey: "r"}}
	b := &IdentityEvent{DID: "d", TimeUS: 5}
	c := &AccountEvent{DID: "d", TimeUS: 5}

	keys := map[string]struct{}{Key(a): {}, Key(b): {}, Key(c): {}}
	assert.Len(t, keys, 3)
	assert.Equal(t, "d|5|commit|c/r", Key(a))
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "jetstream.commit.app.bsky.feed.post",
		RoutingKey(&CommitEvent{Commit: Commit{Collection: "app.bsky.feed.post"}}))
	assert.Equal(t, "jetstream.identity", RoutingKey(&IdentityEvent{}))
	assert.Equal(t, "jetstream.account", RoutingKey(&AccountEvent{}))
}
