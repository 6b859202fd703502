package store

import (
	"sync"
	"time"

	"github.com/kandev/durabletask/internal/durable/model"
)

// record is the per-instance monitor described in spec.md §3 "Ownership":
// every mutation of history, inbox, status, isLoaded, or isCompleted happens
// under mu. Grounded on the teacher's map+mutex MemoryRepository
// (internal/task/repository/memory.go), generalized from a flat map of
// independent entities to one mutex per entity so that per-instance
// serialization (IsLoaded) doesn't block unrelated instances.
type record struct {
	mu sync.Mutex

	instanceID  string
	executionID string

	history []model.HistoryEvent
	inbox   []model.TaskMessage

	status      *model.Status
	isLoaded    bool
	isCompleted bool

	// waiters are notified once, with the final status, when isCompleted
	// becomes true. Registered under mu to make WaitForCompletion race-free
	// (spec.md §4.1: "parks on a per-instance completion-source registered
	// before the check").
	waiters []chan *model.Status
}

func newRecord(instanceID string) *record {
	return &record{instanceID: instanceID}
}

// resetLocked clears history, inbox, and completion state and installs a
// fresh Pending status built from an ExecutionStarted event. Caller must
// hold mu. Does not touch isLoaded: that flag is owned exclusively by
// GetNextReadyToRunInstance/ReleaseLock/AbandonTurn.
func (r *record) resetLocked(executionID string, ev model.HistoryEvent, now time.Time) {
	r.executionID = executionID
	r.history = nil
	r.inbox = nil
	r.isCompleted = false
	r.status = &model.Status{
		InstanceID:      r.instanceID,
		ExecutionID:     executionID,
		Name:            ev.Name,
		Version:         ev.Version,
		RuntimeStatus:   model.StatusPending,
		CreatedAt:       now,
		LastUpdatedAt:   now,
		SerializedInput: append([]byte(nil), ev.Input...),
		Tags:            cloneTags(ev.Tags),
	}
}

// completeLocked marks the record completed and wakes every registered
// waiter with a clone of the final status. Caller must hold mu.
func (r *record) completeLocked() {
	r.isCompleted = true
	snapshot := r.status.Clone()
	for _, ch := range r.waiters {
		ch <- snapshot
		close(ch)
	}
	r.waiters = nil
}

func cloneTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
