// Package queue buffers archive rows between a session's producers and the batch writer.
package queue

import (
	"sync"
)

// Queue is a thread-safe FIFO. A bounded queue drops the oldest rows once full.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // items[:head] are consumed
	limit   int
	dropped int
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	return NewBounded[T](0)
}

// NewBounded creates a queue holding at most limit rows. A limit <= 0 means unbounded.
func NewBounded[T any](limit int) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
		limit: limit,
	}
}

// Push appends rows, evicting the oldest when the limit is exceeded.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.compactLocked()
	q.items = append(q.items, items...)
	q.trimLocked()
}

// Requeue puts rows back in front of the queue, typically after a failed write.
func (q *Queue[T]) Requeue(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]T, 0, len(items)+q.lenLocked())
	merged = append(merged, items...)
	q.items = append(merged, q.items[q.head:]...)
	q.head = 0
	q.trimLocked()
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

// trimLocked evicts the oldest rows by advancing head.
func (q *Queue[T]) trimLocked() {
	if q.limit <= 0 {
		return
	}
	over := q.lenLocked() - q.limit
	if over <= 0 {
		return
	}
	clear(q.items[q.head : q.head+over])
	q.head += over
	q.dropped += over
	q.compactLocked()
}

// compactLocked shifts live rows to the front once at least half the backing array is
// consumed. The copy is bounded by the rows consumed since the last compaction.
func (q *Queue[T]) compactLocked() {
	if q.head == 0 || q.head < len(q.items)/2 {
		return
	}
	n := copy(q.items, q.items[q.head:])
	clear(q.items[n:])
	q.items = q.items[:n]
	q.head = 0
}

// Drain removes and returns up to n rows from the front. n <= 0 takes everything.
func (q *Queue[T]) Drain(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	live := q.items[q.head:]
	if n <= 0 || n >= len(live) {
		q.items = make([]T, 0)
		q.head = 0
		return live
	}
	result := append([]T(nil), live[:n]...)
	clear(live[:n])
	q.head += n
	q.compactLocked()
	return result
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked() == 0
}

// Len returns the number of queued rows.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns how many rows were evicted by the limit.
func (q *Queue[T]) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// TakeDropped returns the eviction count and resets it to zero.
func (q *Queue[T]) TakeDropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.dropped
	q.dropped = 0
	return n
}
