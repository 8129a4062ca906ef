// Package memory provides an in-process bounded task queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/mcpindex/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations. Close
// stops further pulls; items still buffered can be recovered with Drain.
type Queue struct {
	ch        chan queue.Item
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan queue.Item, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes an item, waiting for room until the context ends.
func (q *Queue) Enqueue(ctx context.Context, item queue.Item) error {
	select {
	case <-q.done:
		return queue.ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return queue.ErrClosed
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue pushes an item only if there is room right now.
func (q *Queue) TryEnqueue(item queue.Item) error {
	select {
	case <-q.done:
		return queue.ErrClosed
	default:
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return queue.ErrFull
	}
}

// Dequeue pops the next item, respecting context cancellation and Close.
func (q *Queue) Dequeue(ctx context.Context) (queue.Item, error) {
	select {
	case <-q.done:
		return queue.Item{}, queue.ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return queue.Item{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return queue.Item{}, queue.ErrClosed
	case item := <-q.ch:
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops pulls and pushes. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Drain removes and returns every buffered item.
func (q *Queue) Drain() []queue.Item {
	var out []queue.Item
	for {
		select {
		case item := <-q.ch:
			out = append(out, item)
		default:
			return out
		}
	}
}
