/*
Package registry fans the event stream out to live viewers.

  - Cell: a single actor with its own mailbox. The hub pushes into the
    mailbox without blocking; the cell's goroutine does the per-viewer work.
  - Backpressure: a full mailbox drops the event at the hub; a slow viewer
    drops it at its own buffer after a short wait. Neither stalls the feed.
  - Filtering: each viewer carries its own filter, evaluated in the cell.
*/
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// Celler defines the internal API of a delivery unit.
type Celler interface {
	Push(ev model.Event) bool
	Attach(conn Connector)
	Detach(connID uuid.UUID) bool
	Len() int
	Stop()
}

// Cell implements [ISOLATED_DELIVERY] for a group of viewers.
type Cell struct {
	// [MAILBOX]
	// Decouples the publisher from per-viewer delivery.
	mailbox chan model.Event

	// [SESSIONS]
	sessions map[uuid.UUID]Connector
	mu       sync.RWMutex

	sendTimeout time.Duration

	// [LIFECYCLE_CONTROL]
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewCell(bufferSize int, sendTimeout time.Duration) *Cell {
	c := &Cell{
		mailbox:     make(chan model.Event, max(bufferSize, 1)),
		sessions:    make(map[uuid.UUID]Connector),
		sendTimeout: sendTimeout,
		doneCh:      make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Cell) Push(ev model.Event) bool {
	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

func (c *Cell) Attach(conn Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[conn.GetID()] = conn
}

// Detach removes and closes the viewer and reports whether the cell is now empty.
func (c *Cell) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.sessions[connID]; ok {
		conn.Close()
		delete(c.sessions, connID)
	}
	return len(c.sessions) == 0
}

func (c *Cell) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)
		}
	}
}

func (c *Cell) deliver(ev model.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, conn := range c.sessions {
		if conn.Accepts(ev) {
			conn.Send(ev, c.sendTimeout)
		}
	}
}

// Stop ends the loop and closes every attached viewer.
func (c *Cell) Stop() {
	c.stopOnce.Do(func() {
		close(c.doneCh)

		c.mu.Lock()
		defer c.mu.Unlock()
		for id, conn := range c.sessions {
			conn.Close()
			delete(c.sessions, id)
		}
	})
}
