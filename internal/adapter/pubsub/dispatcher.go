package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

const (
	// LocalTopic is the in-process topic every consumed event is published to.
	LocalTopic = "jetstream.events"

	MetadataRoutingKey = "routing_key"
	MetadataKind       = "kind"
	MetadataDID        = "did"

	DefaultQueueSize = 4096
)

var (
	// ErrQueueFull is returned when the dispatch backlog is at capacity; the event is dropped.
	ErrQueueFull = errors.New("event dispatcher: queue full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("event dispatcher: closed")
)

// EventDispatcher defines the high-level contract for outgoing events.
// This allows the handler to stay agnostic of the transport implementation.
type EventDispatcher interface {
	// Publish queues ev without blocking. Events leave in the order queued.
	Publish(ctx context.Context, ev model.Event) error
	Publisher() message.Publisher
}

// Interface guard
var _ EventDispatcher = (*Dispatcher)(nil)

// DispatcherOption defines a functional configuration type for the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the events waiting to be published.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

type queued struct {
	ctx context.Context
	ev  model.Event
}

// Dispatcher implements [ORDERED_DRAIN]: callers push into a bounded queue,
// a single goroutine publishes from it one message at a time. Combined with a
// publisher that blocks until the subscriber acks, this keeps arrival order and
// caps the in-flight backlog at the queue size.
type Dispatcher struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter
	topic     string
	queueSize int

	queue   chan queued
	dropped atomic.Uint64

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewEventDispatcher(pub message.Publisher, logger watermill.LoggerAdapter, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	d := &Dispatcher{
		publisher: pub,
		logger:    logger,
		topic:     LocalTopic,
		queueSize: DefaultQueueSize,
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan queued, d.queueSize)

	go d.drain()
	return d
}

// Publish never blocks the caller. A full queue drops ev and returns ErrQueueFull.
func (d *Dispatcher) Publish(ctx context.Context, ev model.Event) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	select {
	case <-d.closing:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.queue <- queued{ctx: ctx, ev: ev}:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

func (d *Dispatcher) Publisher() message.Publisher {
	return d.publisher
}

// Dropped counts events rejected because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Pending is the number of events waiting in the queue.
func (d *Dispatcher) Pending() int { return len(d.queue) }

// Close stops the drain loop and waits for it until ctx expires. Events
// still queued are discarded.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { close(d.closing) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) drain() {
	defer close(d.done)
	for {
		select {
		case <-d.closing:
			return
		case q := <-d.queue:
			if err := d.send(q.ctx, q.ev); err != nil {
				d.logger.Error("EVENT_DISPATCH_FAILED", err, watermill.LogFields{
					"did":  q.ev.GetDID(),
					"kind": string(q.ev.GetKind()),
				})
			}
		}
	}
}

// send encodes ev in its wire form and publishes it to the local topic.
// The routing key travels in metadata so forwarders can address a topic exchange.
func (d *Dispatcher) send(ctx context.Context, ev model.Event) error {
	payload, err := model.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataRoutingKey, model.RoutingKey(ev))
	msg.Metadata.Set(MetadataKind, string(ev.GetKind()))
	msg.Metadata.Set(MetadataDID, ev.GetDID())

	if err := d.publisher.Publish(d.topic, msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", d.topic, err)
	}
	return nil
}
