package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/jetstream-explorer/internal/adapter/pubsub"
	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
	"github.com/webitel/jetstream-explorer/internal/domain/registry"
)

type pipeline struct {
	hub        *registry.Hub
	dispatcher pubsub.EventDispatcher
}

func startPipeline(t *testing.T, forward message.Publisher) *pipeline {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wlog := watermill.NewSlogLogger(logger)
	local := pubsub.NewLocalPubSub(wlog)
	hub := registry.NewHub()

	h := NewEventHandler(Params{Hub: hub, Logger: logger, Subscriber: local, Forward: forward})
	router, err := NewWatermillRouter(wlog)
	require.NoError(t, err)
	require.NoError(t, h.RegisterHandlers(router))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	dispatcher := pubsub.NewEventDispatcher(local, wlog)

	t.Cleanup(func() {
		cancel()
		_ = router.Close()
		_ = local.Close()
		stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
		defer stop()
		_ = dispatcher.Close(stopCtx)
		hub.Shutdown()
	})
	return &pipeline{hub: hub, dispatcher: dispatcher}
}

func likeEvent() *model.CommitEvent {
	return &model.CommitEvent{DID: "did:plc:a", TimeUS: 11, Commit: model.Commit{
		Operation: model.OpCreate, Collection: "app.bsky.feed.like", RKey: "k", Rev: "r", CID: "c",
	}}
}

func TestEventHandler_FansOutToViewers(t *testing.T) {
	p := startPipeline(t, nil)

	viewer := registry.NewConnector(context.Background(), filter.All(), registry.ConnectMetadata{}, 8)
	p.hub.Register(viewer)

	require.NoError(t, p.dispatcher.Publish(context.Background(), likeEvent()))

	select {
	case ev := <-viewer.Recv():
		assert.Equal(t, model.Key(likeEvent()), model.Key(ev))
	case <-time.After(2 * time.Second):
		t.Fatal("event did not reach the viewer")
	}
}

func TestEventHandler_ForwardsWithRoutingKey(t *testing.T) {
	sink := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer sink.Close()

	out, err := sink.Subscribe(context.Background(), "jetstream.commit.app.bsky.feed.like")
	require.NoError(t, err)

	p := startPipeline(t, sink)
	require.NoError(t, p.dispatcher.Publish(context.Background(), likeEvent()))

	select {
	case msg := <-out:
		msg.Ack()
		ev, err := model.ParseEvent(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "did:plc:a", ev.GetDID())
		assert.Equal(t, "commit", msg.Metadata.Get(pubsub.MetadataKind))
	case <-time.After(2 * time.Second):
		t.Fatal("event was not forwarded")
	}
}

func TestBind_AcksUndecodablePayload(t *testing.T) {
	h := &EventHandler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	called := false
	fn := Bind(h, func(context.Context, model.Event) error {
		called = true
		return nil
	})

	err := fn(message.NewMessage(watermill.NewUUID(), []byte("not json")))
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestBind_RecoversPanic(t *testing.T) {
	h := &EventHandler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	payload, err := model.MarshalEvent(likeEvent())
	require.NoError(t, err)

	fn := Bind(h, func(context.Context, model.Event) error { panic("boom") })
	assert.NotPanics(t, func() { _ = fn(message.NewMessage(watermill.NewUUID(), payload)) })
}
