// Package queue provides an unbounded, goroutine-safe FIFO.
//
// Push never blocks and never drops, which is what lets the boundary's event
// loop hand work to slow consumers without stalling. Consumers either poll
// with TryPop or block in Pop until an item or context cancellation arrives.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// compactThreshold is the number of consumed slots at the head of the backing
// slice that triggers a copy down, so long-lived queues do not grow forever.
const compactThreshold = 256

// Queue is an unbounded FIFO safe for any number of producers and consumers.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int

	// ready holds at most one token; Push offers one without blocking.
	ready chan struct{}

	pushed atomic.Int64
	popped atomic.Int64
}

// Stats reports lifetime queue counters.
type Stats struct {
	Pushed int64 `json:"pushed"`
	Popped int64 `json:"popped"`
	Depth  int   `json:"depth"`
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Push appends item to the tail of the queue.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.pushed.Add(1)
	q.signal()
}

// TryPop removes and returns the head of the queue without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	var zero T
	if q.head >= len(q.items) {
		q.mu.Unlock()
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	remaining := len(q.items) - q.head
	q.mu.Unlock()

	q.popped.Add(1)
	if remaining > 0 {
		// pass the wakeup on so a second blocked consumer sees the rest
		q.signal()
	}
	return item, true
}

// Pop removes and returns the head of the queue, blocking until an item is
// available or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Drain pops every item currently queued, in order, calling fn for each.
// Items pushed while draining are included. It returns the number of items
// handled.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		item, ok := q.TryPop()
		if !ok {
			return n
		}
		fn(item)
		n++
	}
}

// Ready returns a channel that receives a token after a Push. A token is a
// hint, not a guarantee: the item may already have been taken.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Pushed: q.pushed.Load(),
		Popped: q.popped.Load(),
		Depth:  q.Len(),
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
