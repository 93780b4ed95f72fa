package bus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/webitel/jetstream-explorer/internal/adapter/pubsub"
	"github.com/webitel/jetstream-explorer/internal/domain/registry"
	"go.uber.org/fx"
)

const (
	// ------------------- HANDLERS -------------------
	HandlerViewers = "ON_EVENT_VIEWERS"
	HandlerForward = "ON_EVENT_FORWARD"
)

type Params struct {
	fx.In

	Hub        registry.Hubber
	Logger     *slog.Logger
	Subscriber message.Subscriber
	// Forward is the AMQP sink; absent unless sink.amqp_url is set.
	Forward message.Publisher `name:"forward" optional:"true"`
}

type EventHandler struct {
	hub        registry.Hubber
	logger     *slog.Logger
	subscriber message.Subscriber
	forward    message.Publisher
}

func NewEventHandler(p Params) *EventHandler {
	return &EventHandler{
		hub:        p.Hub,
		logger:     p.Logger,
		subscriber: p.Subscriber,
		forward:    p.Forward,
	}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 5 * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// [REGISTRATION_PIPELINE]
func (h *EventHandler) RegisterHandlers(router *message.Router) error {
	router.AddConsumerHandler(HandlerViewers, pubsub.LocalTopic, h.subscriber, Bind(h, h.OnEventForViewers)).
		AddMiddleware(LoggingMiddleware(h.logger))

	if h.forward != nil {
		router.AddConsumerHandler(HandlerForward, pubsub.LocalTopic, h.subscriber, h.OnEventForward).
			AddMiddleware(
				LoggingMiddleware(h.logger),
				NewRetryMiddleware(h.logger).Middleware,
				middleware.Timeout(10*time.Second),
			)
	}

	h.logger.Info("EVENT_PIPELINE_READY", "topic", pubsub.LocalTopic, "forward", h.forward != nil)
	return nil
}

func RegisterHandlers(router *message.Router, h *EventHandler) error {
	return h.RegisterHandlers(router)
}
