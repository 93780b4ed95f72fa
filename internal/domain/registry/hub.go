package registry

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// Hubber defines the gateway for viewer management and event routing.
type Hubber interface {
	Broadcast(ev model.Event) bool
	Register(conn Connector)
	Unregister(connID uuid.UUID)
	Stats() Stats
	Shutdown()
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Viewers int    `json:"viewers"`
	Dropped uint64 `json:"dropped"`
}

type config struct {
	mailboxSize int
	sendTimeout time.Duration
}

// Hub routes every event to one fan-out [CELL].
type Hub struct {
	config  config
	cell    Celler
	dropped atomic.Uint64
}

var _ Hubber = (*Hub)(nil)

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: config{
			mailboxSize: 2048,
			sendTimeout: 50 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.cell = NewCell(h.config.mailboxSize, h.config.sendTimeout)
	return h
}

// Broadcast enqueues ev for delivery. Returns false on overflow.
func (h *Hub) Broadcast(ev model.Event) bool {
	if h.cell.Push(ev) {
		return true
	}
	h.dropped.Add(1)
	return false
}

func (h *Hub) Register(conn Connector) {
	h.cell.Attach(conn)
}

// Unregister detaches and closes the viewer.
func (h *Hub) Unregister(connID uuid.UUID) {
	h.cell.Detach(connID)
}

func (h *Hub) Stats() Stats {
	return Stats{
		Viewers: h.cell.Len(),
		Dropped: h.dropped.Load(),
	}
}

// Shutdown stops delivery and closes all viewers.
func (h *Hub) Shutdown() {
	h.cell.Stop()
}
