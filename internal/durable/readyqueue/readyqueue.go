// Package readyqueue implements the de-duplicating ready-to-run FIFO of
// instance ids described in spec.md §2/§3/§8: an instance id appears at
// most once; attempting to re-enqueue a pending instance is a no-op.
//
// Grounded on the teacher's streaming.Hub dedup pattern (a map guarded by a
// single mutex alongside a channel/slice used for ordering) in
// internal/orchestrator/streaming/hub.go, and on spec.md §9's note that
// "enqueue = insert-dedup-and-write" must be atomic per instance.
package readyqueue

import (
	"context"
	"sync"
)

// Queue is a de-duplicating FIFO of instance ids.
type Queue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
	notify  chan struct{}
}

// New creates an empty ready-to-run queue.
func New() *Queue {
	return &Queue{
		pending: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Enqueue adds instanceID to the queue if it is not already present. The
// dedup check and the insert happen under the same lock, so a concurrent
// Enqueue for the same id can never race into two entries (spec.md §9).
// Returns true if the id was newly enqueued.
func (q *Queue) Enqueue(instanceID string) bool {
	q.mu.Lock()
	if _, exists := q.pending[instanceID]; exists {
		q.mu.Unlock()
		return false
	}
	q.pending[instanceID] = struct{}{}
	q.order = append(q.order, instanceID)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Next blocks until an instance id is available, removes it from the
// dedup set, and returns it. This is spec.md §4.1's
// GetNextReadyToRunInstance suspension point.
func (q *Queue) Next(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			id := q.order[0]
			q.order = q.order[1:]
			delete(q.pending, id)
			more := len(q.order) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.notify:
		}
	}
}

// Contains reports whether instanceID is currently queued.
func (q *Queue) Contains(instanceID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[instanceID]
	return ok
}

// Len returns the number of queued instance ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
