package bus

import (
	"context"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// DomainHandler defines the functional signature for event logic.
type DomainHandler func(ctx context.Context, ev model.Event) error

// [INFRASTRUCTURE_BRIDGE]
// Bind decodes the wire payload and hands the event to fn.
func Bind(h *EventHandler, fn DomainHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [PANIC_RECOVERY]
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
			}
		}()

		ev, err := model.ParseEvent(msg.Payload)
		if err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: poison pill
		}

		return fn(msg.Context(), ev)
	}
}
