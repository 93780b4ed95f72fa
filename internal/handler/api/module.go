package api

import (
	"log/slog"

	"github.com/webitel/jetstream-explorer/internal/handler/lp"
	"github.com/webitel/jetstream-explorer/internal/handler/ws"
	"github.com/webitel/jetstream-explorer/internal/service"
	"go.uber.org/fx"
)

// Config for the inspector surface.
type Config struct {
	Addr    string
	Version string
}

var Module = fx.Module("api",
	fx.Provide(
		func(logger *slog.Logger, explorer service.Explorer, cfg Config) *ws.WSHandler {
			return ws.NewWSHandler(logger, explorer, cfg.Version)
		},
		func(explorer service.Explorer) *lp.LPHandler {
			return lp.NewLPHandler(explorer, lp.DefaultTimeout)
		},
		NewHandler,
		func(logger *slog.Logger, cfg Config, h *Handler) *Server {
			return NewServer(logger, cfg.Addr, h)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.StartStopHook(s.Start, s.Stop))
	}),
)
