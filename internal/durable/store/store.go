// Package store implements the in-memory instance store described in
// spec.md §4.1: per-instance state (history, inbox, status, execution id,
// lock, completion flag) with atomic turn commits and waiter signalling.
//
// Grounded on the teacher's map+mutex MemoryRepository
// (internal/task/repository/memory.go) for the map-of-records shape, and on
// the teacher's internal/common/errors package for error kinds. The
// per-record mutex is new structure this spec requires (spec.md §3
// "Ownership": each instance record is exclusively owned by whichever
// dispatcher turn currently holds its lock) that the teacher's flat
// single-mutex repository doesn't need.
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/kandev/durabletask/internal/common/errors"
	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/clock"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/notify"
	"github.com/kandev/durabletask/internal/durable/queue"
	"github.com/kandev/durabletask/internal/durable/readyqueue"
	"go.uber.org/zap"
)

// ResetPolicy governs behavior when an ExecutionStarted message arrives for
// an instance that is currently active (Pending/Running/Suspended) under a
// different execution id than the one on the message (spec.md §9, open
// question #3).
type ResetPolicy string

const (
	// RejectDuplicate reports AlreadyExists and leaves the instance
	// untouched. This is the spec's stated default.
	RejectDuplicate ResetPolicy = "reject"
	// ResetOnConflict reproduces the reference store's immediate-reset
	// behavior: the instance is reset to the new execution, discarding the
	// one in flight.
	ResetOnConflict ResetPolicy = "reset"
)

// Config tunes the store's policy knobs.
type Config struct {
	ResetPolicy     ResetPolicy
	DefaultPageSize int
}

// Store is the in-memory reference instance store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string // creation order, for stable query pagination (spec.md §4.6)

	ready      *readyqueue.Queue
	activities *queue.ActivityQueue
	clk        *clock.Clock
	notifier   *notify.Notifier

	resetPolicy ResetPolicy
	pageSize    int

	seq int64 // monotonic per-process SequenceNumber source (spec.md §3)

	logger *logger.Logger
}

// New creates an empty Store wired to the given activity queue, clock, and
// ready-to-run queue. notifier may be nil (a no-op).
func New(ready *readyqueue.Queue, activities *queue.ActivityQueue, clk *clock.Clock, notifier *notify.Notifier, cfg Config, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	resetPolicy := cfg.ResetPolicy
	if resetPolicy == "" {
		resetPolicy = RejectDuplicate
	}
	pageSize := cfg.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Store{
		records:     make(map[string]*record),
		ready:       ready,
		activities:  activities,
		clk:         clk,
		notifier:    notifier,
		resetPolicy: resetPolicy,
		pageSize:    pageSize,
		logger:      log.WithFields(zap.String("component", "store")),
	}
}

func (s *Store) nextSequenceNumber() int64 {
	return atomic.AddInt64(&s.seq, 1)
}

// getOrCreateRecord returns the record for id, creating an empty one if it
// doesn't exist yet (spec.md §3 "Lifecycle": an instance is created lazily
// on first message addressed to its id).
func (s *Store) getOrCreateRecord(id string) *record {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return rec
	}
	rec = newRecord(id)
	s.records[id] = rec
	s.order = append(s.order, id)
	return rec
}

func (s *Store) getRecord(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// deliveryAction is the post-unlock side effect applyMessageLocked
// determines while holding the record's monitor; the actual queue/clock
// writes happen after the record is unlocked, matching spec.md §5's "the
// channel/queue write itself is lock-free".
type deliveryAction int

const (
	actionNone deliveryAction = iota
	actionEnqueueReady
	actionSchedule
	actionReject
	actionDrop
)

// AddMessage routes msg to the instance record keyed by msg.InstanceID,
// implementing spec.md §4.1's four-step algorithm.
func (s *Store) AddMessage(msg model.TaskMessage) error {
	id := model.NormalizeInstanceID(msg.InstanceID)
	rec := s.getOrCreateRecord(id)

	rec.mu.Lock()
	action, delay := s.applyMessageLocked(rec, msg, false)
	rec.mu.Unlock()

	switch action {
	case actionReject:
		return apperrors.AlreadyExists("instance", id)
	case actionSchedule:
		s.clk.Schedule(msg, delay, s.deliverScheduled)
	case actionEnqueueReady:
		s.ready.Enqueue(id)
	}
	return nil
}

// applyMessageLocked is AddMessage's core, callable either from AddMessage
// itself (trusted=false: external duplicate-creation is subject to
// resetPolicy) or from SaveTurn while it already holds the same record's
// lock for an outbound message that happens to target its own instance
// (trusted=true: engine-internal routing bypasses the duplicate-creation
// gate entirely, since it isn't a second creation attempt by an external
// caller). Caller must hold rec.mu.
func (s *Store) applyMessageLocked(rec *record, msg model.TaskMessage, trusted bool) (deliveryAction, time.Duration) {
	now := time.Now().UTC()

	if msg.Event.Type == model.EventExecutionStarted {
		switch {
		case rec.status == nil:
			rec.resetLocked(msg.ExecutionID, msg.Event, now)
		case rec.isCompleted:
			rec.resetLocked(msg.ExecutionID, msg.Event, now)
		case trusted:
			rec.resetLocked(msg.ExecutionID, msg.Event, now)
		case msg.ExecutionID == rec.executionID:
			// Redelivery of this same execution's own start message (it was
			// deferred past ScheduledStartTime and is now being released by
			// the clock): not a second creation attempt, so it doesn't go
			// through resetPolicy at all. Falls through to the scheduled-time
			// check below, which will now be past its deadline.
		case s.resetPolicy == ResetOnConflict:
			rec.resetLocked(msg.ExecutionID, msg.Event, now)
		default:
			return actionReject, 0
		}
	} else if rec.isCompleted {
		return actionDrop, 0
	}

	if delay, ok := clock.TryGetScheduledTime(msg, now); ok && delay > 0 {
		return actionSchedule, delay
	}

	rec.inbox = append(rec.inbox, msg)
	if !rec.isLoaded {
		return actionEnqueueReady, 0
	}
	return actionNone, 0
}

// deliverScheduled is the clock's release callback: it re-enters AddMessage
// now that the deadline has passed, so a message that was future-dated at
// insertion is treated exactly like any other arrival once its time comes.
func (s *Store) deliverScheduled(msg model.TaskMessage) {
	if err := s.AddMessage(msg); err != nil {
		s.logger.Warn("dropped scheduled message on redelivery",
			zap.String("instance_id", msg.InstanceID),
			zap.Error(err))
	}
}

// GetNextReadyToRunInstance blocks until an instance has pending inbound
// messages and is not currently executing, then materializes its replay
// history and drained inbox under the record monitor (spec.md §4.1).
func (s *Store) GetNextReadyToRunInstance(ctx context.Context) (string, []model.HistoryEvent, []model.TaskMessage, error) {
	for {
		id, err := s.ready.Next(ctx)
		if err != nil {
			return "", nil, nil, err
		}

		rec, ok := s.getRecord(id)
		if !ok {
			continue
		}

		rec.mu.Lock()
		if rec.isLoaded || len(rec.inbox) == 0 {
			rec.mu.Unlock()
			continue
		}
		history := append([]model.HistoryEvent(nil), rec.history...)
		messages := rec.inbox
		rec.inbox = nil
		rec.isLoaded = true
		rec.mu.Unlock()

		return id, history, messages, nil
	}
}

// Turn bundles the outputs of one executor invocation for SaveTurn, per
// spec.md §4.1 and §4.4 step 4.
type Turn struct {
	NewHistoryEvents             []model.HistoryEvent
	Status                       *model.Status
	OutboundOrchestratorMessages []model.TaskMessage
	TimerMessages                []model.TaskMessage
	ContinueAsNewMessage         *model.TaskMessage
	OutboundActivityMessages     []model.TaskMessage
}

// SaveTurn commits the result of one dispatch turn atomically under the
// instance's record monitor (spec.md §4.1, §4.4 step 5).
func (s *Store) SaveTurn(instanceID string, turn Turn) error {
	id := model.NormalizeInstanceID(instanceID)
	rec, ok := s.getRecord(id)
	if !ok {
		return fmt.Errorf("durable: SaveTurn called on unknown instance %q", id)
	}

	rec.mu.Lock()

	// The old generation's closing events are appended to its own history
	// first; only afterwards does a continue-as-new (or an execution-id
	// change signalled purely through Status) truncate it for the next
	// generation. Doing it in the other order would leak the old
	// generation's events into the truncated history.
	oldExecutionID := rec.executionID
	continuing := turn.ContinueAsNewMessage != nil
	truncateViaStatus := !continuing && turn.Status != nil && oldExecutionID != "" &&
		turn.Status.ExecutionID != "" && turn.Status.ExecutionID != oldExecutionID

	rec.history = append(rec.history, turn.NewHistoryEvents...)
	if truncateViaStatus {
		// Detected via execution-id change per spec.md §4.1 step "detect
		// continue-as-new via execution-id change and truncate history",
		// covering callers that pass the new execution id only through
		// Status rather than a dedicated ContinueAsNewMessage.
		rec.history = nil
	}

	if turn.Status != nil {
		rec.status = turn.Status.Clone()
		if rec.executionID == "" || truncateViaStatus {
			rec.executionID = turn.Status.ExecutionID
		}
	}

	if continuing {
		// Continue-as-new is an engine-internal transition, not an external
		// recreation attempt: it always resets, bypassing resetPolicy
		// entirely (spec.md §9 open question #3 is about external callers).
		// This supersedes the status/history just written above, which
		// belonged to the closing generation.
		now := time.Now().UTC()
		rec.resetLocked(turn.ContinueAsNewMessage.ExecutionID, turn.ContinueAsNewMessage.Event, now)
		rec.inbox = append(rec.inbox, *turn.ContinueAsNewMessage)
	}

	var selfActions []struct {
		action deliveryAction
		delay  time.Duration
		msg    model.TaskMessage
	}
	var crossInstance []model.TaskMessage

	for _, msg := range append(append([]model.TaskMessage{}, turn.OutboundOrchestratorMessages...), turn.TimerMessages...) {
		target := model.NormalizeInstanceID(msg.InstanceID)
		if target == id {
			action, delay := s.applyMessageLocked(rec, msg, true)
			selfActions = append(selfActions, struct {
				action deliveryAction
				delay  time.Duration
				msg    model.TaskMessage
			}{action, delay, msg})
		} else {
			crossInstance = append(crossInstance, msg)
		}
	}

	if rec.status.IsCompleted() {
		rec.completeLocked()
	}

	finalStatus := rec.status.Clone()
	rec.mu.Unlock()

	for _, sa := range selfActions {
		switch sa.action {
		case actionSchedule:
			s.clk.Schedule(sa.msg, sa.delay, s.deliverScheduled)
		case actionEnqueueReady:
			s.ready.Enqueue(id)
		}
	}
	for _, msg := range crossInstance {
		if err := s.AddMessage(msg); err != nil {
			s.logger.Warn("failed to route outbound message",
				zap.String("target_instance", msg.InstanceID),
				zap.Error(err))
		}
	}
	if len(turn.OutboundActivityMessages) > 0 {
		s.activities.EnqueueBulk(turn.OutboundActivityMessages)
	}

	s.notifier.StatusChanged(finalStatus)
	return nil
}

// ReleaseLock clears the instance's exclusive turn lock and, if messages
// arrived while it was loaded, re-enqueues it onto the ready-to-run queue
// (spec.md §4.1).
func (s *Store) ReleaseLock(instanceID string) error {
	id := model.NormalizeInstanceID(instanceID)
	rec, ok := s.getRecord(id)
	if !ok {
		return fmt.Errorf("durable: ReleaseLock called on unknown instance %q", id)
	}

	rec.mu.Lock()
	if !rec.isLoaded {
		rec.mu.Unlock()
		return fmt.Errorf("durable: ReleaseLock called on instance %q that is not loaded", id)
	}
	rec.isLoaded = false
	needsReady := len(rec.inbox) > 0
	rec.mu.Unlock()

	if needsReady {
		s.ready.Enqueue(id)
	}
	return nil
}

// AbandonTurn restores a failed turn's messages to the originating
// instance's inbox, releases its lock, and re-enqueues it. Per spec.md §9
// open question #1, the exact TaskMessage values are restored rather than
// assigned fresh sequence numbers.
func (s *Store) AbandonTurn(messages []model.TaskMessage) error {
	if len(messages) == 0 {
		return nil
	}
	id := model.NormalizeInstanceID(messages[0].InstanceID)
	rec, ok := s.getRecord(id)
	if !ok {
		return fmt.Errorf("durable: AbandonTurn called on unknown instance %q", id)
	}

	rec.mu.Lock()
	rec.inbox = append(append([]model.TaskMessage(nil), messages...), rec.inbox...)
	rec.isLoaded = false
	rec.mu.Unlock()

	s.ready.Enqueue(id)
	return nil
}

// TryGetStatus returns a snapshot of the instance's current status, or
// (nil, false) if it doesn't exist.
func (s *Store) TryGetStatus(instanceID string) (*model.Status, bool) {
	id := model.NormalizeInstanceID(instanceID)
	rec, ok := s.getRecord(id)
	if !ok {
		return nil, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.status == nil {
		return nil, false
	}
	return rec.status.Clone(), true
}

// WaitForCompletion blocks until the instance is completed or ctx is
// cancelled. Returns immediately if already completed.
func (s *Store) WaitForCompletion(ctx context.Context, instanceID string) (*model.Status, error) {
	id := model.NormalizeInstanceID(instanceID)
	rec, ok := s.getRecord(id)
	if !ok {
		return nil, apperrors.NotFound("instance", id)
	}

	rec.mu.Lock()
	if rec.isCompleted {
		status := rec.status.Clone()
		rec.mu.Unlock()
		return status, nil
	}
	ch := make(chan *model.Status, 1)
	rec.waiters = append(rec.waiters, ch)
	rec.mu.Unlock()

	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueryAll returns a page of instance statuses matching filter, in creation
// order, along with an opaque continuation token for the next page
// (spec.md §4.6).
func (s *Store) QueryAll(filter Query, continuation string) ([]*model.Status, string, error) {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	s.mu.RUnlock()

	start := parseCursor(continuation)
	pageSize := filter.pageSize(s.pageSize)

	var page []*model.Status
	cursor := start
	for cursor < len(order) && len(page) < pageSize {
		rec, ok := s.getRecord(order[cursor])
		cursor++
		if !ok {
			continue
		}
		rec.mu.Lock()
		status := rec.status
		rec.mu.Unlock()
		if status == nil || !filter.matches(status) {
			continue
		}
		page = append(page, projectForQuery(status, filter.FetchInputsAndOutputs))
	}

	next := ""
	if cursor < len(order) {
		next = formatCursor(cursor)
	}
	return page, next, nil
}

// PurgeOne removes instanceID if it exists and is completed, returning 1,
// or 0 otherwise (spec.md §4.1, §7 Kind 3).
func (s *Store) PurgeOne(instanceID string) int {
	id := model.NormalizeInstanceID(instanceID)
	rec, ok := s.getRecord(id)
	if !ok {
		return 0
	}

	rec.mu.Lock()
	completed := rec.isCompleted
	rec.mu.Unlock()
	if !completed {
		return 0
	}

	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return 1
}

// PurgeAll removes every completed instance matching filter, returning the
// count actually removed (spec.md §4.6: "not the count matching the filter
// at the time of scan").
func (s *Store) PurgeAll(filter Query) int {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	s.mu.RUnlock()

	count := 0
	for _, id := range order {
		rec, ok := s.getRecord(id)
		if !ok {
			continue
		}
		rec.mu.Lock()
		status := rec.status
		completed := rec.isCompleted
		rec.mu.Unlock()

		if !completed || status == nil || !filter.matches(status) {
			continue
		}

		s.mu.Lock()
		if _, stillPresent := s.records[id]; stillPresent {
			delete(s.records, id)
			count++
		}
		s.mu.Unlock()
	}
	return count
}
