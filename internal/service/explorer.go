package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/jetstream-explorer/internal/consumer"
	"github.com/webitel/jetstream-explorer/internal/domain/activity"
	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
	"github.com/webitel/jetstream-explorer/internal/domain/registry"
	"github.com/webitel/jetstream-explorer/internal/service/dto"
)

var ErrInvalidOptions = errors.New("invalid connection options")

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
	viewerBufferSize = 256
)

// Controller is the command surface of the consumer.
type Controller interface {
	Start()
	Pause()
	Resume()
	UpdateOptions(cfg consumer.ConnectionConfig)
	State() model.ConsumerState
	Options() consumer.ConnectionConfig
	URL() string
}

// EventQuery selects buffered events after a position.
type EventQuery struct {
	Since  int64
	Limit  int
	Filter filter.Options
}

// [EXPLORER_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (HTTP/WebSocket/TUI)
type Explorer interface {
	Start()
	Pause()
	Resume()
	UpdateOptions(req dto.OptionsRequest) (consumer.ConnectionConfig, error)

	Status() dto.StatusView
	Metrics() metrics.Snapshot
	Events(q EventQuery) dto.EventPage
	Recent(n int, f filter.Options) []dto.EventView
	Activity() []activity.Entry

	Subscribe(ctx context.Context, f filter.Options, meta registry.ConnectMetadata) (registry.Connector, error)
	Unsubscribe(connID uuid.UUID)
}

type ExplorerService struct {
	ctl      Controller
	session  *Session
	enricher Enricher
	hub      registry.Hubber
	activity *activity.Log
}

// Interface guard
var _ Explorer = (*ExplorerService)(nil)

func NewExplorerService(ctl Controller, session *Session, enricher Enricher, hub registry.Hubber, log *activity.Log) *ExplorerService {
	return &ExplorerService{
		ctl:      ctl,
		session:  session,
		enricher: enricher,
		hub:      hub,
		activity: log,
	}
}

// Start begins a fresh subscription. The consumer clears the session from
// its own loop through Session.OnReset.
func (s *ExplorerService) Start() {
	s.ctl.Start()
}

func (s *ExplorerService) Pause()  { s.ctl.Pause() }
func (s *ExplorerService) Resume() { s.ctl.Resume() }

// UpdateOptions merges req into the current options and applies them.
func (s *ExplorerService) UpdateOptions(req dto.OptionsRequest) (consumer.ConnectionConfig, error) {
	cfg := s.ctl.Options()
	if req.Instance != nil {
		cfg.Instance = *req.Instance
	}
	if req.Collections != nil {
		cfg.Collections = *req.Collections
	}
	if req.DIDs != nil {
		cfg.DIDs = *req.DIDs
	}
	if req.Cursor != nil {
		cfg.Cursor = *req.Cursor
	}
	if req.Compress != nil {
		cfg.Compress = *req.Compress
	}

	if cfg.Instance == "" {
		return cfg, fmt.Errorf("%w: instance is required", ErrInvalidOptions)
	}
	if cfg.Cursor < 0 {
		return cfg, fmt.Errorf("%w: cursor must not be negative", ErrInvalidOptions)
	}

	s.ctl.UpdateOptions(cfg)
	return cfg, nil
}

func (s *ExplorerService) Status() dto.StatusView {
	st := s.ctl.State()
	if err := s.session.State().Err; err != nil && st.Err == nil {
		st.Err = err
	}

	view := dto.StatusView{
		Status:            st.Status,
		Error:             st.ErrorMessage(),
		Cursor:            st.Cursor,
		ReconnectAttempts: st.ReconnectAttempts,
		URL:               s.ctl.URL(),
		Buffered:          s.session.Events().Len(),
		BufferCapacity:    s.session.Events().Cap(),
		Viewers:           s.hub.Stats(),
	}
	for _, e := range s.session.Errors() {
		view.RecentErrors = append(view.RecentErrors, dto.ErrorView{
			At:      e.At.Format(time.RFC3339),
			Message: e.Message,
		})
	}
	if entries := s.activity.Entries(); len(entries) > 0 {
		last := entries[len(entries)-1]
		view.Activity = &last
	}
	return view
}

func (s *ExplorerService) Metrics() metrics.Snapshot { return s.session.Snapshot() }

// Events pages through the buffer. The limit counts matching events; Next is
// the position right after the last event examined.
func (s *ExplorerService) Events(q EventQuery) dto.EventPage {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)

	items, next := s.session.Events().Since(q.Since, 0)
	start := next - int64(len(items))

	page := dto.EventPage{Events: make([]dto.EventView, 0, min(limit, len(items)))}
	for i, ev := range items {
		if !q.Filter.Match(ev) {
			continue
		}
		page.Events = append(page.Events, s.view(start+int64(i), ev))
		if len(page.Events) == limit {
			next = start + int64(i) + 1
			break
		}
	}
	page.Next = next
	return page
}

// Recent returns up to n newest matching events, oldest first.
func (s *ExplorerService) Recent(n int, f filter.Options) []dto.EventView {
	if n <= 0 {
		return nil
	}
	items, next := s.session.Events().Since(0, 0)
	start := next - int64(len(items))

	out := make([]dto.EventView, 0, n)
	for i := len(items) - 1; i >= 0 && len(out) < n; i-- {
		if f.Match(items[i]) {
			out = append(out, s.view(start+int64(i), items[i]))
		}
	}
	// newest-first scan, flip back
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

func (s *ExplorerService) Activity() []activity.Entry { return s.activity.Entries() }

// [SUBSCRIBE] HANDLES VIEWER LIFECYCLE INITIATION
func (s *ExplorerService) Subscribe(ctx context.Context, f filter.Options, meta registry.ConnectMetadata) (registry.Connector, error) {
	conn := registry.NewConnector(ctx, f, meta, viewerBufferSize)
	s.hub.Register(conn)
	return conn, nil
}

// [UNSUBSCRIBE] TRIGGERS CLEANUP
func (s *ExplorerService) Unsubscribe(connID uuid.UUID) {
	s.hub.Unregister(connID)
}

func (s *ExplorerService) view(pos int64, ev model.Event) dto.EventView {
	handle, _ := s.enricher.Handle(ev.GetDID())
	return dto.EventView{Position: pos, Handle: handle, Event: ev}
}
