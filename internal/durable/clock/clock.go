// Package clock implements the delayed-queue described in spec.md §4.3: it
// holds future-dated messages and releases them back into the system only
// once their deadline fires.
//
// Grounded on the teacher's per-key time.AfterFunc debounce pattern
// (internal/gateway/websocket/session_notifications.go's fileChangeTimers
// map), adapted from "one timer per debounced key" to "one timer per
// pending message".
package clock

import (
	"sync"
	"time"

	"github.com/kandev/durabletask/internal/durable/model"
)

// ReleaseFunc is invoked when a scheduled message's deadline fires.
type ReleaseFunc func(msg model.TaskMessage)

// Clock holds pending future-dated messages and releases each one, exactly
// once, when its scheduled fire time arrives.
type Clock struct {
	mu      sync.Mutex
	timers  map[int64]*time.Timer
	nextKey int64
	stopped bool
}

// New creates an empty Clock.
func New() *Clock {
	return &Clock{
		timers: make(map[int64]*time.Timer),
	}
}

// TryGetScheduledTime examines msg and returns the delay until its release
// time relative to now, and whether it carries a scheduled deadline at all.
// Only ExecutionStarted.ScheduledStartTime and TimerFired.FireAt carry a
// deadline, per spec.md §4.3. A non-positive delay means "due now".
func TryGetScheduledTime(msg model.TaskMessage, now time.Time) (time.Duration, bool) {
	fireAt, ok := msg.Event.ScheduledFireTime()
	if !ok {
		return 0, false
	}
	return fireAt.Sub(now), true
}

// Schedule arranges for release(msg) to be invoked once after delay. It
// returns immediately; release runs on its own goroutine via time.AfterFunc.
// Scheduling after Stop is a no-op.
func (c *Clock) Schedule(msg model.TaskMessage, delay time.Duration, release ReleaseFunc) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	key := c.nextKey
	c.nextKey++

	if delay < 0 {
		delay = 0
	}

	timer := time.AfterFunc(delay, func() {
		c.mu.Lock()
		delete(c.timers, key)
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			release(msg)
		}
	})
	c.timers[key] = timer
	c.mu.Unlock()
}

// Stop cancels all pending timers. No further releases will fire after Stop
// returns. Safe to call more than once.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for key, timer := range c.timers {
		timer.Stop()
		delete(c.timers, key)
	}
}

// Pending returns the number of messages currently awaiting release.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
