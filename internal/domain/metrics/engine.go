// Package metrics turns the parsed event stream into cumulative counters and
// per-second rates over a trailing window, retaining only the samples that
// still fall inside that window.
package metrics

import (
	"sync"
	"time"

	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

const (
	DefaultWindow = 5 * time.Second
	DefaultDecay  = 0.8

	// rates below this are reported as zero once decaying
	decayFloor = 1e-3
)

type Config struct {
	Window time.Duration
	// DecayFactor in (0,1) makes Tick shrink rates geometrically while the
	// window is empty. Zero means rates snap to the window recompute.
	DecayFactor float64
}

func DefaultConfig() Config {
	return Config{Window: DefaultWindow, DecayFactor: DefaultDecay}
}

// sample is the compact record kept per event while it is inside the window.
type sample struct {
	at         time.Time
	collection string
	op         model.Operation
}

// Engine is safe for concurrent use; the consumer loop writes, readers poll Snapshot.
type Engine struct {
	mu    sync.RWMutex
	clock Clock
	cfg   Config

	snap Snapshot

	// [ROLLING_LOG] samples[head:] are live, oldest first.
	samples []sample
	head    int

	// Window-scoped counts, kept in step with samples to avoid rescans.
	windowOps         map[model.Operation]int
	windowCollections map[string]int
}

func NewEngine(clock Clock, cfg Config) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.DecayFactor < 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0
	}

	e := &Engine{clock: clock, cfg: cfg}
	e.resetLocked()
	return e
}

// Update accounts one event and recomputes the rates.
func (e *Engine) Update(ev model.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	s := sample{at: now}

	e.snap.TotalMessages++
	e.snap.MessagesByKind[ev.GetKind()]++

	model.Visit(ev,
		func(c *model.CommitEvent) struct{} {
			s.collection = c.Commit.Collection
			s.op = c.Commit.Operation
			e.snap.MessagesByCollection[s.collection]++
			switch s.op {
			case model.OpCreate:
				e.snap.TotalCreates++
			case model.OpUpdate:
				e.snap.TotalUpdates++
			case model.OpDelete:
				e.snap.TotalDeletes++
			}
			return struct{}{}
		},
		func(*model.IdentityEvent) struct{} { return struct{}{} },
		func(*model.AccountEvent) struct{} { return struct{}{} },
	)

	e.samples = append(e.samples, s)
	if s.op != "" {
		e.windowOps[s.op]++
	}
	if s.collection != "" {
		e.windowCollections[s.collection]++
	}

	e.evictLocked(now)
	e.recomputeLocked(now)
}

// Tick is driven by the periodic recomputation timer.
func (e *Engine) Tick() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.evictLocked(now)

	if e.live() == 0 && e.cfg.DecayFactor > 0 {
		e.decayLocked(now)
	} else {
		e.recomputeLocked(now)
	}
	return e.snap.clone()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.clone()
}

// Reset clears counters and the rolling log.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	e.snap = Snapshot{
		MessagesByCollection: make(map[string]uint64),
		MessagesByKind:       make(map[model.Kind]uint64),
		CollectionRates:      make(map[string]float64),
		LastUpdate:           e.clock.Now(),
	}
	e.samples = nil
	e.head = 0
	e.windowOps = make(map[model.Operation]int)
	e.windowCollections = make(map[string]int)
}

func (e *Engine) live() int { return len(e.samples) - e.head }

// evictLocked drops samples older than the window.
func (e *Engine) evictLocked(now time.Time) {
	cutoff := now.Add(-e.cfg.Window)
	for e.head < len(e.samples) && e.samples[e.head].at.Before(cutoff) {
		s := e.samples[e.head]
		e.samples[e.head] = sample{}
		e.head++

		if s.op != "" {
			if e.windowOps[s.op]--; e.windowOps[s.op] <= 0 {
				delete(e.windowOps, s.op)
			}
		}
		if s.collection != "" {
			if e.windowCollections[s.collection]--; e.windowCollections[s.collection] <= 0 {
				delete(e.windowCollections, s.collection)
			}
		}
	}

	// [COMPACTION] reclaim the dead prefix once it dominates the slice
	if e.head > 0 && e.head >= len(e.samples)/2 {
		n := copy(e.samples, e.samples[e.head:])
		clear(e.samples[n:])
		e.samples = e.samples[:n]
		e.head = 0
	}
}

func (e *Engine) recomputeLocked(now time.Time) {
	secs := e.cfg.Window.Seconds()

	e.snap.MessagesPerSecond = float64(e.live()) / secs
	e.snap.CreatePerSecond = float64(e.windowOps[model.OpCreate]) / secs
	e.snap.UpdatePerSecond = float64(e.windowOps[model.OpUpdate]) / secs
	e.snap.DeletePerSecond = float64(e.windowOps[model.OpDelete]) / secs

	rates := make(map[string]float64, len(e.windowCollections))
	for c, n := range e.windowCollections {
		rates[c] = float64(n) / secs
	}
	e.snap.CollectionRates = rates
	e.snap.LastUpdate = now
}

func (e *Engine) decayLocked(now time.Time) {
	f := e.cfg.DecayFactor
	e.snap.MessagesPerSecond = decay(e.snap.MessagesPerSecond, f)
	e.snap.CreatePerSecond = decay(e.snap.CreatePerSecond, f)
	e.snap.UpdatePerSecond = decay(e.snap.UpdatePerSecond, f)
	e.snap.DeletePerSecond = decay(e.snap.DeletePerSecond, f)

	rates := make(map[string]float64, len(e.snap.CollectionRates))
	for c, r := range e.snap.CollectionRates {
		if r = decay(r, f); r > 0 {
			rates[c] = r
		}
	}
	e.snap.CollectionRates = rates
	e.snap.LastUpdate = now
}

func decay(rate, factor float64) float64 {
	rate *= factor
	if rate < decayFloor {
		return 0
	}
	return rate
}
