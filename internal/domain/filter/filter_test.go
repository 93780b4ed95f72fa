package filter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

func fixture() []model.Event {
	return []model.Event{
		&model.CommitEvent{DID: "did:plc:Alice", TimeUS: 1, Commit: model.Commit{Operation: model.OpCreate, Collection: "app.bsky.feed.post"}},
		&model.CommitEvent{DID: "did:plc:bob", TimeUS: 2, Commit: model.Commit{Operation: model.OpUpdate, Collection: "app.bsky.actor.profile"}},
		&model.CommitEvent{DID: "did:plc:bob", TimeUS: 3, Commit: model.Commit{Operation: model.OpDelete, Collection: "app.bsky.feed.like"}},
		&model.IdentityEvent{DID: "did:plc:alice", TimeUS: 4},
		&model.AccountEvent{DID: "did:plc:carol", TimeUS: 5},
	}
}

func times(events []model.Event) []int64 {
	out := make([]int64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.GetTimeUS())
	}
	return out
}

func TestOptions_Apply(t *testing.T) {
	cases := []struct {
		name string
		opts func() Options
		want []int64
	}{
		{"all", All, []int64{1, 2, 3, 4, 5}},
		{"no creates", func() Options { o := All(); o.ShowCreates = false; return o }, []int64{2, 3, 4, 5}},
		{"no updates", func() Options { o := All(); o.ShowUpdates = false; return o }, []int64{1, 3, 4, 5}},
		{"no deletes", func() Options { o := All(); o.ShowDeletes = false; return o }, []int64{1, 2, 4, 5}},
		{"no identity", func() Options { o := All(); o.ShowIdentity = false; return o }, []int64{1, 2, 3, 5}},
		{"no account", func() Options { o := All(); o.ShowAccount = false; return o }, []int64{1, 2, 3, 4}},
		{"collections", func() Options {
			o := All()
			o.Collections = []string{"app.bsky.feed.post", "app.bsky.feed.like"}
			return o
		}, []int64{1, 3, 4, 5}},
		{"empty collection list hides commits", func() Options {
			o := All()
			o.Collections = []string{}
			return o
		}, []int64{4, 5}},
		{"did substring case-insensitive", func() Options { o := All(); o.DID = "ALICE"; return o }, []int64{1, 4}},
		{"nothing", func() Options { return Options{} }, []int64{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, times(tc.opts().Apply(fixture())))
		})
	}
}

func TestOptions_ApplyDoesNotMutateInput(t *testing.T) {
	events := fixture()
	o := All()
	o.ShowAccount = false
	_ = o.Apply(events)
	assert.Len(t, events, 5)
}

func TestFromQuery(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  []int64
	}{
		{"empty admits all", "", []int64{1, 2, 3, 4, 5}},
		{"kinds", "kinds=identity,account", []int64{4, 5}},
		{"ops", "ops=create,delete", []int64{1, 3, 4, 5}},
		{"kinds and ops", "kinds=commit&ops=update", []int64{2}},
		{"collections", "collections=app.bsky.feed.like, app.bsky.feed.post", []int64{1, 3, 4, 5}},
		{"did", "did=ALICE", []int64{1, 4}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			o, err := FromQuery(q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, times(o.Apply(fixture())))
		})
	}
}

func TestFromQuery_Rejects(t *testing.T) {
	for _, raw := range []string{"kinds=commits", "ops=upsert"} {
		q, _ := url.ParseQuery(raw)
		_, err := FromQuery(q)
		assert.ErrorIs(t, err, ErrInvalidQuery, raw)
	}
}
