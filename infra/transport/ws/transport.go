// Package ws is the socket primitive under the consumer: one live connection
// at a time, raw text frames and lifecycle notifications out, no retry policy.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrBinaryFrame = errors.New("unexpected binary frame")

// Listener receives the lifecycle of one session. Every call carries the
// session id returned by Connect, so stale sessions can be told apart.
// OnClose is delivered exactly once per session, last.
type Listener interface {
	OnOpen(id uuid.UUID)
	OnMessage(id uuid.UUID, data []byte)
	OnError(id uuid.UUID, err error)
	OnClose(id uuid.UUID)
}

type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit int64
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

type Transport struct {
	logger *slog.Logger
	dialer *websocket.Dialer
	cfg    Config

	mu      sync.Mutex
	current *session
}

type session struct {
	id       uuid.UUID
	url      string
	listener Listener

	ctx    context.Context
	cancel context.CancelFunc

	// [WRITE_GUARD] serialises writes and protects conn against Disconnect.
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func New(logger *slog.Logger, cfg Config) *Transport {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}

	return &Transport{
		logger: logger,
		cfg:    cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Connect starts a session towards rawURL and returns its id. When a session
// is already dialing or open it is left alone and its id is returned.
// Failures are reported through l, never returned.
func (t *Transport) Connect(rawURL string, l Listener) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return t.current.id
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.New(),
		url:      rawURL,
		listener: l,
		ctx:      ctx,
		cancel:   cancel,
	}
	t.current = s

	go t.run(s)
	return s.id
}

// Disconnect closes the current session, if any. An in-flight dial is aborted.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	s := t.current
	t.current = nil
	t.mu.Unlock()

	if s == nil {
		return
	}
	s.close(t.cfg.WriteTimeout)
}

// Send writes a text frame when the session is open and reports whether it did.
func (t *Transport) Send(data []byte) bool {
	t.mu.Lock()
	s := t.current
	t.mu.Unlock()

	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return false
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.logger.Warn("ws send failed", "session_id", s.id, "err", err)
		return false
	}
	return true
}

func (t *Transport) run(s *session) {
	defer func() {
		t.mu.Lock()
		if t.current == s {
			t.current = nil
		}
		t.mu.Unlock()

		s.close(t.cfg.WriteTimeout)
		s.listener.OnClose(s.id)
	}()

	conn, resp, err := t.dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if resp != nil {
			err = fmt.Errorf("dial %s (status: %d): %w", s.url, resp.StatusCode, err)
		} else {
			err = fmt.Errorf("dial %s: %w", s.url, err)
		}
		s.listener.OnError(s.id, err)
		return
	}
	conn.SetReadLimit(t.cfg.ReadLimit)

	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	t.logger.Debug("ws opened", "session_id", s.id, "url", s.url)
	s.listener.OnOpen(s.id)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.listener.OnError(s.id, fmt.Errorf("read: %w", err))
			}
			t.logger.Debug("ws closed", "session_id", s.id, "err", err)
			return
		}

		if mt != websocket.TextMessage {
			s.listener.OnError(s.id, ErrBinaryFrame)
			continue
		}
		s.listener.OnMessage(s.id, data)
	}
}

func (s *session) close(writeTimeout time.Duration) {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	if s.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = s.conn.Close()
}
