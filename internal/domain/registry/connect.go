package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] one live viewer as seen by the hub.
type Connector interface {
	GetID() uuid.UUID
	// Accepts reports whether the viewer's filter lets ev through.
	Accepts(ev model.Event) bool
	Send(ev model.Event, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan model.Event
	Dropped() uint64
	// Done is closed once the viewer is closed.
	Done() <-chan struct{}
	Close()
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	RemoteIP  string
	UserAgent string
}

type connect struct {
	id        uuid.UUID
	metadata  ConnectMetadata
	filter    filter.Options
	createdAt time.Time
	ctx       context.Context
	cancelFn  context.CancelFunc
	sendCh    chan model.Event
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewConnector creates a viewer bound to ctx. A nil opts.Collections means
// every collection; use filter.All() for an unfiltered viewer.
func NewConnector(ctx context.Context, opts filter.Options, meta ConnectMetadata, bufferSize int) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        uuid.New(),
		metadata:  meta,
		filter:    opts,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan model.Event, max(bufferSize, 1)),
	}
}

func (c *connect) GetID() uuid.UUID { return c.id }

func (c *connect) Accepts(ev model.Event) bool { return c.filter.Match(ev) }

// Send waits up to timeout for room in the viewer's buffer. A viewer that
// stays full loses the event; the loss is counted, never retried.
func (c *connect) Send(ev model.Event, timeout time.Duration) bool {
	if c.ctx.Err() != nil {
		return false
	}

	// [FAST_PATH]
	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		return true
	case <-timer.C:
		// [BACKPRESSURE_THRESHOLD] persistent slow consumer
		c.dropped.Add(1)
		return false
	}
}

func (c *connect) Recv() <-chan model.Event { return c.sendCh }

func (c *connect) Dropped() uint64 { return c.dropped.Load() }

func (c *connect) Done() <-chan struct{} { return c.ctx.Done() }

// Close cancels the viewer. Recv is not closed: the hub may still be
// holding a reference mid-delivery, so readers select on the context too.
func (c *connect) Close() {
	c.closeOnce.Do(c.cancelFn)
}
