// Package queue implements the unbounded FIFO activity-task queue described
// in spec.md §4.2. Adapted from the teacher's priority-heap task queue
// (internal/orchestrator/queue), trading the heap for a plain FIFO slice
// since activities have no priority ordering, and adding a blocking
// Dequeue(ctx) in place of the teacher's non-blocking Dequeue to match
// spec.md §5's "suspension point" requirement.
package queue

import (
	"context"
	"sync"

	"github.com/kandev/durabletask/internal/durable/model"
)

// ActivityQueue is the unbounded FIFO of pending activity task messages.
type ActivityQueue struct {
	mu     sync.Mutex
	items  []model.TaskMessage
	notify chan struct{}
}

// New creates an empty ActivityQueue.
func New() *ActivityQueue {
	return &ActivityQueue{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a single message to the tail of the queue.
func (q *ActivityQueue) Enqueue(msg model.TaskMessage) {
	q.EnqueueBulk([]model.TaskMessage{msg})
}

// EnqueueBulk appends multiple messages to the tail of the queue, preserving
// their relative order.
func (q *ActivityQueue) EnqueueBulk(msgs []model.TaskMessage) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, msgs...)
	q.mu.Unlock()
	q.wake()
}

func (q *ActivityQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the message at the head of the queue, blocking
// until one is available or ctx is cancelled.
func (q *ActivityQueue) Dequeue(ctx context.Context) (model.TaskMessage, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items) > 0
			q.mu.Unlock()
			if remaining {
				// Wake any other blocked Dequeue callers.
				q.wake()
			}
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.TaskMessage{}, ctx.Err()
		case <-q.notify:
			// Loop and re-check; another waiter may have raced us.
		}
	}
}

// Len returns the number of queued messages.
func (q *ActivityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
