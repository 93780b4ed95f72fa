/*
Package consumer drives a single feed subscription.

The Consumer is an actor: every command (Start, Pause, Resume, UpdateOptions),
every transport callback and every metrics tick is turned into a closure on
one mailbox and executed by Run's loop, so state transitions happen one at a
time and in the order their causes occurred.

  - Sessions: each connect attempt gets an id from the transport. Callbacks for
    any id other than the current one are dropped, which is what keeps a late
    "open" from reverting a pause and a superseded "close" from scheduling a
    reconnect.
  - Cursor: the time_us of the last processed event. Resume and automatic
    reconnects continue from it; Start discards it and uses the configured one.
  - Retry: unintentional closes schedule a reconnect with exponential backoff;
    a circuit breaker stops dialing while attempts keep failing.
*/
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"github.com/webitel/jetstream-explorer/infra/transport/ws"
	"github.com/webitel/jetstream-explorer/internal/domain/activity"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

var (
	ErrReconnectLimit = errors.New("reconnect attempts exhausted")
	ErrBreakerOpen    = errors.New("connection circuit open")
)

// Transport is the socket primitive the consumer drives.
type Transport interface {
	Connect(rawURL string, l ws.Listener) uuid.UUID
	Disconnect()
}

type Consumer struct {
	logger    *slog.Logger
	transport Transport
	engine    *metrics.Engine
	observer  Observer
	settings  settings

	// [MAILBOX] the only way into the loop
	mailbox   chan func()
	done      chan struct{}
	closeOnce sync.Once

	// --- loop-owned ---
	state      model.ConsumerState
	sessionID  uuid.UUID
	opened     bool
	settle     func(success bool) // breaker outcome of the current attempt
	stopRetry  func() bool
	retryGen   uint64
	backoff    *backoff.ExponentialBackOff
	breaker    *gobreaker.TwoStepCircuitBreaker
	dedupe     *lru.Cache[string, struct{}]
	lastCursor int64

	// [READ_MIRROR] copies for callers outside the loop
	mu        sync.RWMutex
	cfg       ConnectionConfig
	published model.ConsumerState
}

func New(logger *slog.Logger, transport Transport, engine *metrics.Engine, observer Observer, cfg ConnectionConfig, opts ...Option) *Consumer {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if s.tick <= 0 {
		s.tick = defaultSettings().tick
	}

	c := &Consumer{
		logger:    logger,
		transport: transport,
		engine:    engine,
		observer:  observer,
		settings:  s,
		mailbox:   make(chan func(), max(s.mailbox, 1)),
		done:      make(chan struct{}),
		cfg:       cfg.Clone(),
		state:     model.ConsumerState{Status: model.StatusDisconnected},
	}
	c.published = c.state

	c.backoff = backoff.NewExponentialBackOff()
	c.backoff.InitialInterval = s.reconnect.InitialDelay
	c.backoff.MaxInterval = max(s.reconnect.MaxDelay, s.reconnect.InitialDelay)
	c.backoff.Multiplier = max(s.reconnect.Multiplier, 1)
	c.backoff.RandomizationFactor = s.reconnect.Jitter
	c.backoff.Reset()

	if s.breaker.MaxFailures > 0 {
		c.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        "jetstream-connect",
			MaxRequests: 1,
			Timeout:     s.breaker.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.breaker.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("BREAKER_STATE_CHANGED", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}

	if s.dedupeSize > 0 {
		c.dedupe, _ = lru.New[string, struct{}](s.dedupeSize)
	}

	return c
}

// Run executes the loop until ctx is cancelled or Close is called. The
// socket is closed and pending reconnects are cancelled on the way out.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.settings.tick)
	defer ticker.Stop()
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case fn := <-c.mailbox:
			fn()
		case <-ticker.C:
			c.observer.OnMetrics(c.engine.Tick())
		}
	}
}

// Close stops Run. It is safe to call more than once.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Start begins a fresh session: the observer is told to reset, metrics, the
// last-seen cursor and the duplicate filter are reset, and the configured
// cursor (if any) is used.
func (c *Consumer) Start() {
	c.enqueue(func() {
		c.observer.OnReset()
		c.engine.Reset()
		c.setLastCursor(0)
		c.purgeDedupe()
		c.backoff.Reset()
		c.state.ReconnectAttempts = 0
		c.connect()
	})
}

// Resume continues from the last processed event without resetting metrics.
func (c *Consumer) Resume() {
	c.enqueue(func() {
		c.backoff.Reset()
		c.state.ReconnectAttempts = 0
		c.connect()
	})
}

// Pause disconnects on purpose; no reconnect happens until Start or Resume.
func (c *Consumer) Pause() {
	c.enqueue(c.pause)
}

// UpdateOptions replaces the subscription. A live or dialing connection is
// cycled so the new parameters take effect. A changed configured cursor
// discards the last-seen one and the duplicate filter, so a rewound window
// is delivered again.
func (c *Consumer) UpdateOptions(cfg ConnectionConfig) {
	cfg = cfg.Clone()
	c.enqueue(func() {
		c.mu.Lock()
		prev := c.cfg
		c.cfg = cfg
		c.mu.Unlock()

		if cfg.Cursor != prev.Cursor {
			c.setLastCursor(0)
			c.purgeDedupe()
		}

		switch c.state.Status {
		case model.StatusConnected, model.StatusConnecting:
			c.logger.Info("OPTIONS_UPDATED: reconnecting", "url", c.URL())
			c.dropSession(true)
			c.connect()
		}
	})
}

// State returns the latest published state with the current cursor.
func (c *Consumer) State() model.ConsumerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.published
	st.Cursor = c.lastCursor
	return st
}

// Options returns the stored connection configuration.
func (c *Consumer) Options() ConnectionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Clone()
}

// URL is the subscription URL the next connect would use: the last-seen
// cursor when there is one, else the configured cursor.
func (c *Consumer) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cursor := c.lastCursor
	if cursor == 0 {
		cursor = c.cfg.Cursor
	}
	return c.cfg.URL(cursor)
}

// Metrics returns the current metrics snapshot.
func (c *Consumer) Metrics() metrics.Snapshot { return c.engine.Snapshot() }

func (c *Consumer) enqueue(fn func()) {
	select {
	case c.mailbox <- fn:
	case <-c.done:
	}
}

// --- loop side ---

func (c *Consumer) connect() {
	c.cancelRetry()
	c.state.IntentionalDisconnect = false

	if c.sessionID != uuid.Nil {
		// [SINGLE_CONNECTION] the transport already holds a session
		if c.opened {
			c.setStatus(model.StatusConnected, nil)
		} else {
			c.setStatus(model.StatusConnecting, nil)
		}
		return
	}

	settle := func(bool) {}
	if c.breaker != nil {
		done, err := c.breaker.Allow()
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrBreakerOpen, err)
			c.setStatus(model.StatusDisconnected, err)
			c.observer.OnError(err)
			c.scheduleReconnect()
			return
		}
		settle = done
	}

	rawURL := c.URL()
	c.setStatus(model.StatusConnecting, nil)
	c.settle = settle
	c.opened = false
	c.sessionID = c.transport.Connect(rawURL, listener{c})

	c.settings.activity.Record(activity.Entry{
		Action: "Connect",
		Status: activity.StatusPending,
		URL:    rawURL,
	})
	c.logger.Info("CONNECTING", "session_id", c.sessionID, "url", rawURL)
}

func (c *Consumer) pause() {
	c.cancelRetry()

	switch c.state.Status {
	case model.StatusConnected, model.StatusConnecting:
		c.state.IntentionalDisconnect = true
		c.setStatus(model.StatusPaused, nil)
		c.dropSession(true)
		c.settings.activity.Record(activity.Entry{Action: "Pause", Status: activity.StatusSuccess})
	default:
		// paused or disconnected: the only effect is that no retry fires
		c.state.IntentionalDisconnect = true
		c.publish()
	}
}

// dropSession forgets the current session so its remaining callbacks are
// ignored, optionally closing the socket.
func (c *Consumer) dropSession(disconnect bool) {
	if c.sessionID == uuid.Nil {
		return
	}
	if c.settle != nil {
		// a cancelled attempt is not a connection failure
		c.settle(true)
		c.settle = nil
	}
	c.sessionID = uuid.Nil
	c.opened = false
	if disconnect {
		c.transport.Disconnect()
	}
}

func (c *Consumer) handleOpen(id uuid.UUID) {
	if id != c.sessionID {
		return
	}
	c.opened = true
	if c.settle != nil {
		c.settle(true)
		c.settle = nil
	}
	c.backoff.Reset()
	c.state.ReconnectAttempts = 0
	c.setStatus(model.StatusConnected, nil)

	c.settings.activity.Record(activity.Entry{Action: "Open", Status: activity.StatusSuccess, URL: c.URL()})
	c.logger.Info("CONNECTED", "session_id", id)
}

func (c *Consumer) handleEvent(id uuid.UUID, ev model.Event) {
	if id != c.sessionID || c.state.Status == model.StatusPaused {
		return
	}

	if c.dedupe != nil {
		key := model.Key(ev)
		if c.dedupe.Contains(key) {
			c.logger.Debug("DUPLICATE_DROPPED", "key", key)
			return
		}
		c.dedupe.Add(key, struct{}{})
	}

	if ts := ev.GetTimeUS(); ts > c.lastCursor {
		c.setLastCursor(ts)
	}
	c.engine.Update(ev)
	c.observer.OnEvent(ev)
}

func (c *Consumer) handleParseError(id uuid.UUID, err error) {
	if id != c.sessionID || c.state.Status == model.StatusPaused {
		return
	}
	c.logger.Warn("FRAME_DROPPED", "session_id", id, "err", err)
	c.observer.OnError(err)
}

func (c *Consumer) handleError(id uuid.UUID, err error) {
	if id != c.sessionID || c.state.IntentionalDisconnect {
		return
	}
	c.logger.Warn("TRANSPORT_ERROR", "session_id", id, "err", err)
	c.settings.activity.Record(activity.Entry{Action: "Error", Status: activity.StatusError, Details: err.Error()})

	c.setStatus(model.StatusDisconnected, err)
	c.observer.OnError(err)
}

func (c *Consumer) handleClose(id uuid.UUID) {
	if id != c.sessionID {
		return
	}
	if c.settle != nil {
		c.settle(c.opened)
		c.settle = nil
	}
	c.sessionID = uuid.Nil
	c.opened = false

	c.settings.activity.Record(activity.Entry{Action: "Close", Status: activity.StatusSuccess})
	if c.state.IntentionalDisconnect {
		return
	}

	c.setStatus(model.StatusDisconnected, c.state.Err)
	c.scheduleReconnect()
}

func (c *Consumer) scheduleReconnect() {
	limit := c.settings.reconnect.MaxAttempts
	if limit > 0 && c.state.ReconnectAttempts >= limit {
		err := fmt.Errorf("%w after %d attempts", ErrReconnectLimit, c.state.ReconnectAttempts)
		c.logger.Error("RECONNECT_ABANDONED", "attempts", c.state.ReconnectAttempts)
		c.setStatus(model.StatusDisconnected, err)
		c.observer.OnError(err)
		return
	}

	c.cancelRetry()
	c.state.ReconnectAttempts++
	delay := c.backoff.NextBackOff()
	c.retryGen++
	gen := c.retryGen

	c.stopRetry = c.settings.scheduler.AfterFunc(delay, func() {
		c.enqueue(func() {
			// [STALE_TIMER_GUARD] a pause, start or newer schedule supersedes this one
			if gen != c.retryGen || c.state.IntentionalDisconnect {
				return
			}
			c.stopRetry = nil
			c.connect()
		})
	})
	c.publish()

	c.settings.activity.Record(activity.Entry{
		Action:  "Reconnect scheduled",
		Status:  activity.StatusPending,
		Details: fmt.Sprintf("attempt %d in %s", c.state.ReconnectAttempts, delay.Round(time.Millisecond)),
	})
	c.logger.Info("RECONNECT_SCHEDULED", "attempt", c.state.ReconnectAttempts, "delay_ms", delay.Milliseconds())
}

func (c *Consumer) cancelRetry() {
	c.retryGen++
	if c.stopRetry != nil {
		c.stopRetry()
		c.stopRetry = nil
	}
}

func (c *Consumer) shutdown() {
	c.Close()
	c.cancelRetry()
	c.state.IntentionalDisconnect = true
	c.dropSession(true)
}

func (c *Consumer) setStatus(status model.Status, err error) {
	changed := c.state.Status != status || !errors.Is(c.state.Err, err) || !errors.Is(err, c.state.Err)
	c.state.Status = status
	c.state.Err = err
	c.publish()
	if changed {
		c.observer.OnState(c.State())
	}
}

func (c *Consumer) publish() {
	c.mu.Lock()
	c.published = c.state
	c.mu.Unlock()
}

func (c *Consumer) purgeDedupe() {
	if c.dedupe != nil {
		c.dedupe.Purge()
	}
}

func (c *Consumer) setLastCursor(v int64) {
	c.mu.Lock()
	c.lastCursor = v
	c.mu.Unlock()
}

// listener adapts transport callbacks into mailbox messages. Frames are
// decoded on the transport's reader goroutine, which preserves their order.
type listener struct{ c *Consumer }

var _ ws.Listener = listener{}

func (l listener) OnOpen(id uuid.UUID) {
	l.c.enqueue(func() { l.c.handleOpen(id) })
}

func (l listener) OnMessage(id uuid.UUID, data []byte) {
	ev, err := model.ParseEvent(data)
	if err != nil {
		l.c.enqueue(func() { l.c.handleParseError(id, err) })
		return
	}
	l.c.enqueue(func() { l.c.handleEvent(id, ev) })
}

func (l listener) OnError(id uuid.UUID, err error) {
	if errors.Is(err, ws.ErrBinaryFrame) {
		// the connection survives a stray binary frame
		l.c.enqueue(func() { l.c.handleParseError(id, err) })
		return
	}
	l.c.enqueue(func() { l.c.handleError(id, err) })
}

func (l listener) OnClose(id uuid.UUID) {
	l.c.enqueue(func() { l.c.handleClose(id) })
}
