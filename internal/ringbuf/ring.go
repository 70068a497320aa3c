// Package ringbuf provides a fixed-capacity buffer that keeps the most recent
// items, used for scrolling diagnostic logs.
package ringbuf

import "sync"

// Ring keeps the last Cap() items pushed. It is safe for concurrent use so a
// web handler can read while the pipeline writes.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
	full  bool
	total uint64
}

// New returns a ring holding at most capacity items. A capacity below one is
// treated as one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// Snapshot returns the buffered items, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]T(nil), r.items[:r.next]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

// Len is the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.items)
	}
	return r.next
}

// Cap is the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Total counts every item ever pushed, including evicted ones.
func (r *Ring[T]) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
