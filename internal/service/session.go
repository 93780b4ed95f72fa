package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/jetstream-explorer/infra/telemetry"
	"github.com/webitel/jetstream-explorer/internal/adapter/pubsub"
	"github.com/webitel/jetstream-explorer/internal/consumer"
	"github.com/webitel/jetstream-explorer/internal/domain/buffer"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// Interface guard
var _ consumer.Observer = (*Session)(nil)

const defaultErrorHistory = 20

// ErrorEntry is one reported failure.
type ErrorEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Session is the presentation-side store fed by the consumer: the bounded
// event buffer, the latest state and metrics, and recent errors. Every event
// is also handed to the dispatcher for live viewers and forwarding.
type Session struct {
	logger     *slog.Logger
	events     *buffer.Ring[model.Event]
	errors     *buffer.Ring[ErrorEntry]
	enricher   Enricher
	dispatcher pubsub.EventDispatcher
	telemetry  *telemetry.Metrics

	mu       sync.RWMutex
	state    model.ConsumerState
	snapshot metrics.Snapshot
}

func NewSession(
	logger *slog.Logger,
	events *buffer.Ring[model.Event],
	enricher Enricher,
	dispatcher pubsub.EventDispatcher,
	tm *telemetry.Metrics,
) *Session {
	return &Session{
		logger:     logger,
		events:     events,
		errors:     buffer.NewRing[ErrorEntry](defaultErrorHistory),
		enricher:   enricher,
		dispatcher: dispatcher,
		telemetry:  tm,
		state:      model.ConsumerState{Status: model.StatusDisconnected},
	}
}

func (s *Session) OnEvent(ev model.Event) {
	s.events.Append(ev)
	s.enricher.Learn(ev)
	s.telemetry.ObserveEvent(ev)
	s.telemetry.BufferedEvents.Set(float64(s.events.Len()))

	// never blocks; a full queue drops the live copy, the buffer keeps the event
	if err := s.dispatcher.Publish(context.Background(), ev); err != nil {
		if errors.Is(err, pubsub.ErrQueueFull) {
			s.telemetry.DispatchDropped.Inc()
			return
		}
		s.logger.Debug("DISPATCH_FAILED", "err", err)
	}
}

func (s *Session) OnState(st model.ConsumerState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.telemetry.ObserveState(st)
}

func (s *Session) OnError(err error) {
	var perr *model.ParseError
	if errors.As(err, &perr) {
		s.telemetry.ParseErrors.Inc()
	} else {
		s.telemetry.TransportErrors.Inc()
	}
	s.errors.Append(ErrorEntry{At: time.Now(), Message: err.Error()})
}

func (s *Session) OnMetrics(snap metrics.Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	s.telemetry.ObserveSnapshot(snap)
}

// OnReset runs on the consumer loop when a fresh session starts, so frames
// queued before it cannot land in the cleared buffer.
func (s *Session) OnReset() {
	s.Clear()
}

// Clear drops buffered events and the error history.
func (s *Session) Clear() {
	s.events.Reset()
	s.errors.Reset()
	s.telemetry.BufferedEvents.Set(0)
}

func (s *Session) State() model.ConsumerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Snapshot() metrics.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Session) Errors() []ErrorEntry { return s.errors.All() }

func (s *Session) Events() *buffer.Ring[model.Event] { return s.events }
