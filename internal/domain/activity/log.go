// Package activity keeps a short, bounded history of network-level happenings
// (dials, opens, closes, errors, scheduled reconnects) for display.
package activity

import (
	"time"

	"github.com/google/uuid"
	"github.com/webitel/jetstream-explorer/internal/domain/buffer"
)

const DefaultSize = 100

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Entry struct {
	ID      uuid.UUID `json:"id"`
	At      time.Time `json:"at"`
	Type    string    `json:"type"` // "websocket"
	Action  string    `json:"action"`
	Status  Status    `json:"status,omitempty"`
	URL     string    `json:"url,omitempty"`
	Details string    `json:"details,omitempty"`
}

// Recorder is what the consumer writes to; a nil Recorder is never passed around,
// use Discard instead.
type Recorder interface {
	Record(e Entry) uuid.UUID
}

type discard struct{}

func (discard) Record(Entry) uuid.UUID { return uuid.Nil }

// Discard drops every entry.
var Discard Recorder = discard{}

// Log is a bounded Recorder; oldest entries go first.
type Log struct {
	ring *buffer.Ring[Entry]
	now  func() time.Time
}

var _ Recorder = (*Log)(nil)

func NewLog(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{ring: buffer.NewRing[Entry](size), now: time.Now}
}

// Record stamps the entry with an id and time and stores it.
func (l *Log) Record(e Entry) uuid.UUID {
	e.ID = uuid.New()
	if e.At.IsZero() {
		e.At = l.now()
	}
	if e.Type == "" {
		e.Type = "websocket"
	}
	l.ring.Append(e)
	return e.ID
}

// Entries returns the retained history, oldest first.
func (l *Log) Entries() []Entry { return l.ring.All() }

func (l *Log) Clear() { l.ring.Reset() }
