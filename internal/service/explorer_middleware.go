package service

import (
	"log/slog"
	"time"

	"github.com/webitel/jetstream-explorer/internal/consumer"
	"github.com/webitel/jetstream-explorer/internal/service/dto"
)

// ExplorerMiddleware implements [DECORATOR_PATTERN] to log operator commands
// without touching the service. Reads pass through via the embedded Explorer.
type ExplorerMiddleware struct {
	Explorer
	Logger *slog.Logger
}

func NewExplorerMiddleware(next Explorer, logger *slog.Logger) Explorer {
	return &ExplorerMiddleware{
		Explorer: next,
		Logger:   logger,
	}
}

func (m *ExplorerMiddleware) Start() {
	m.Logger.Info("COMMAND_START", "url_before", m.Explorer.Status().URL)
	m.Explorer.Start()
}

func (m *ExplorerMiddleware) Pause() {
	m.Logger.Info("COMMAND_PAUSE", "status", m.Explorer.Status().Status)
	m.Explorer.Pause()
}

func (m *ExplorerMiddleware) Resume() {
	m.Logger.Info("COMMAND_RESUME", "cursor", m.Explorer.Status().Cursor)
	m.Explorer.Resume()
}

func (m *ExplorerMiddleware) UpdateOptions(req dto.OptionsRequest) (consumer.ConnectionConfig, error) {
	start := time.Now()
	cfg, err := m.Explorer.UpdateOptions(req)
	if err != nil {
		m.Logger.Warn("COMMAND_OPTIONS_REJECTED", "err", err)
		return cfg, err
	}

	m.Logger.Info("COMMAND_OPTIONS_APPLIED",
		"instance", cfg.Instance,
		"collections", len(cfg.Collections),
		"dids", len(cfg.DIDs),
		"cursor", cfg.Cursor,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return cfg, nil
}
