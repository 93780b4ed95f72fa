package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

func post(ts int64) *model.CommitEvent {
	return &model.CommitEvent{DID: "did:plc:a", TimeUS: ts, Commit: model.Commit{
		Operation: model.OpCreate, Collection: "app.bsky.feed.post", RKey: "k",
	}}
}

func recv(t *testing.T, c Connector) model.Event {
	t.Helper()
	select {
	case ev := <-c.Recv():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestHub_BroadcastReachesMatchingViewers(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	all := NewConnector(context.Background(), filter.All(), ConnectMetadata{}, 8)
	likesOnly := filter.All()
	likesOnly.Collections = []string{"app.bsky.feed.like"}
	likes := NewConnector(context.Background(), likesOnly, ConnectMetadata{}, 8)

	h.Register(all)
	h.Register(likes)
	require.Equal(t, 2, h.Stats().Viewers)

	require.True(t, h.Broadcast(post(1)))
	assert.Equal(t, int64(1), recv(t, all).GetTimeUS())

	require.Never(t, func() bool { return len(likes.Recv()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestHub_UnregisterClosesViewer(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	c := NewConnector(context.Background(), filter.All(), ConnectMetadata{}, 1)
	h.Register(c)
	h.Unregister(c.GetID())

	assert.Zero(t, h.Stats().Viewers)
	select {
	case <-c.Done():
	default:
		t.Fatal("viewer not closed")
	}
}

func TestHub_ShutdownClosesAll(t *testing.T) {
	h := NewHub()
	c := NewConnector(context.Background(), filter.All(), ConnectMetadata{}, 1)
	h.Register(c)

	h.Shutdown()
	h.Shutdown()

	<-c.Done()
	assert.Zero(t, h.Stats().Viewers)
}

func TestConnector_SlowViewerDrops(t *testing.T) {
	c := NewConnector(context.Background(), filter.All(), ConnectMetadata{}, 1)
	defer c.Close()

	assert.True(t, c.Send(post(1), time.Millisecond))
	assert.False(t, c.Send(post(2), time.Millisecond))
	assert.Equal(t, uint64(1), c.Dropped())
}

func TestConnector_ClosedRejects(t *testing.T) {
	c := NewConnector(context.Background(), filter.All(), ConnectMetadata{}, 4)
	c.Close()
	c.Close()

	assert.False(t, c.Send(post(1), time.Millisecond))
	assert.Zero(t, c.Dropped())
}

func TestHub_OverflowIsCounted(t *testing.T) {
	h := &Hub{cell: &Cell{mailbox: make(chan model.Event, 1), sessions: map[uuid.UUID]Connector{}, doneCh: make(chan struct{})}}

	assert.True(t, h.Broadcast(post(1)))
	assert.False(t, h.Broadcast(post(2)))
	assert.Equal(t, uint64(1), h.Stats().Dropped)
}
