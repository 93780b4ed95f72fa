package service

import (
	"log/slog"

	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// EnricherMiddleware implements [DECORATOR_PATTERN] to log handle changes
// without touching the directory itself.
type EnricherMiddleware struct {
	Next   Enricher
	Logger *slog.Logger
}

func NewEnricherMiddleware(next Enricher, logger *slog.Logger) Enricher {
	return &EnricherMiddleware{
		Next:   next,
		Logger: logger,
	}
}

// Learn forwards ev and reports when an identity event renames its subject.
func (m *EnricherMiddleware) Learn(ev model.Event) {
	id, ok := ev.(*model.IdentityEvent)
	if !ok || id.Identity.Handle == "" {
		m.Next.Learn(ev)
		return
	}

	prev, known := m.Next.Handle(id.DID)
	m.Next.Learn(ev)

	switch {
	case !known:
		m.Logger.Debug("HANDLE_LEARNED", "did", id.DID, "handle", id.Identity.Handle)
	case prev != id.Identity.Handle:
		m.Logger.Info("HANDLE_CHANGED", "did", id.DID, "from", prev, "to", id.Identity.Handle)
	}
}

func (m *EnricherMiddleware) Handle(did string) (string, bool) {
	return m.Next.Handle(did)
}
