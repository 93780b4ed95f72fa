// Package buffer holds the bounded, arrival-ordered event buffer owned by the
// presentation side. Oldest entries are evicted first once capacity is reached.
package buffer

import "sync"

// DefaultCapacity bounds retained events when no size is configured.
const DefaultCapacity = 10_000

// Ring is a fixed-capacity FIFO with monotonic positions, so pollers can
// ask for everything appended after the last position they saw.
type Ring[T any] struct {
	mu sync.RWMutex

	entries  []T
	capacity int
	head     int // index of the next write once full

	// totalAdded is the position of the next appended entry.
	totalAdded int64
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{
		entries:  make([]T, 0, min(capacity, 1024)),
		capacity: capacity,
	}
}

// Append stores v, evicting the oldest entry when full. Returns v's position.
func (r *Ring[T]) Append(v T) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, v)
	} else {
		r.entries[r.head] = v
	}
	r.head = (r.head + 1) % r.capacity

	pos := r.totalAdded
	r.totalAdded++
	return pos
}

// All returns the retained entries, oldest first.
func (r *Ring[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sinceLocked(r.oldestLocked(), 0)
}

// Since returns up to limit entries with position >= pos (limit <= 0 means
// all of them) and the position to pass on the next call. Positions that were
// already evicted are skipped.
func (r *Ring[T]) Since(pos int64, limit int) ([]T, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	oldest := r.oldestLocked()
	if pos < oldest {
		pos = oldest
	}
	out := r.sinceLocked(pos, limit)
	return out, pos + int64(len(out))
}

// Last returns up to n newest entries, oldest first.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos := max(r.totalAdded-int64(n), r.oldestLocked())
	return r.sinceLocked(pos, 0)
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Ring[T]) Cap() int { return r.capacity }

// Position is the position the next appended entry will get.
func (r *Ring[T]) Position() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalAdded
}

// Reset drops every entry. Positions keep increasing so stale cursors stay valid.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.entries = r.entries[:0]
	r.head = 0
}

func (r *Ring[T]) oldestLocked() int64 {
	return r.totalAdded - int64(len(r.entries))
}

func (r *Ring[T]) sinceLocked(pos int64, limit int) []T {
	n := int(r.totalAdded - pos)
	if n <= 0 {
		return nil
	}
	if limit > 0 && n > limit {
		n = limit
	}

	// index of the oldest retained entry
	start := 0
	if len(r.entries) == r.capacity {
		start = r.head
	}
	offset := int(pos - r.oldestLocked())

	out := make([]T, 0, n)
	for i := range n {
		out = append(out, r.entries[(start+offset+i)%len(r.entries)])
	}
	return out
}
