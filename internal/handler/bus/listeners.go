package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/jetstream-explorer/internal/adapter/pubsub"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// [ON_EVENT_VIEWERS]
// Hands the event to the live-viewer hub. An overflowing hub drops it.
func (h *EventHandler) OnEventForViewers(_ context.Context, ev model.Event) error {
	if !h.hub.Broadcast(ev) {
		h.logger.Debug("VIEWER_FANOUT_OVERFLOW", "did", ev.GetDID())
	}
	return nil
}

// [ON_EVENT_FORWARD]
// Republishes the payload to the AMQP exchange under its routing key.
func (h *EventHandler) OnEventForward(msg *message.Message) error {
	rk := msg.Metadata.Get(pubsub.MetadataRoutingKey)
	if rk == "" {
		rk = model.RoutingKeyPrefix
	}

	out := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		out.Metadata.Set(k, v)
	}
	out.SetContext(msg.Context())

	if err := h.forward.Publish(rk, out); err != nil {
		return fmt.Errorf("GLOBAL_DISPATCH_FAILED: %w", err) // NACK: retried
	}
	return nil
}
