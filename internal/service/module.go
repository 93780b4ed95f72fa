package service

import (
	"log/slog"

	"github.com/webitel/jetstream-explorer/internal/consumer"
	"github.com/webitel/jetstream-explorer/internal/domain/activity"
	"github.com/webitel/jetstream-explorer/internal/domain/buffer"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
	"go.uber.org/fx"
)

// Config sizes the session's bounded stores.
type Config struct {
	BufferSize      int
	HandleCacheSize int
	ActivitySize    int
}

var Module = fx.Module(
	"service",

	fx.Provide(
		// Bounded stores
		func(cfg Config) *buffer.Ring[model.Event] { return buffer.NewRing[model.Event](cfg.BufferSize) },
		func(cfg Config) *activity.Log { return activity.NewLog(cfg.ActivitySize) },
		func(cfg Config, logger *slog.Logger) Enricher {
			return NewEnricherMiddleware(NewHandleEnricher(cfg.HandleCacheSize), logger)
		},

		// Consumer wiring
		NewSession,
		func(s *Session) consumer.Observer { return s },
		func(c *consumer.Consumer) Controller { return c },

		// Domain services
		NewExplorerService,

		// [DECORATION_LAYER] exported Explorer carries command logging
		func(svc *ExplorerService, logger *slog.Logger) Explorer {
			return NewExplorerMiddleware(svc, logger)
		},
	),
)
