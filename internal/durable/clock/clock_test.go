package clock

import (
	"testing"
	"time"

	"github.com/kandev/durabletask/internal/durable/model"
)

func timerFiredMessage(fireAt time.Time) model.TaskMessage {
	return model.TaskMessage{
		InstanceID: "inst-1",
		Event: model.HistoryEvent{
			EventID: model.UnassignedEventID,
			Type:    model.EventTimerFired,
			FireAt:  &fireAt,
		},
	}
}

func TestTryGetScheduledTimeNoDeadline(t *testing.T) {
	msg := model.TaskMessage{Event: model.HistoryEvent{Type: model.EventTaskScheduled}}
	_, ok := TryGetScheduledTime(msg, time.Now())
	if ok {
		t.Error("expected no scheduled time for a TaskScheduled event")
	}
}

func TestTryGetScheduledTimeTimerFired(t *testing.T) {
	now := time.Now()
	fireAt := now.Add(250 * time.Millisecond)
	msg := timerFiredMessage(fireAt)

	delay, ok := TryGetScheduledTime(msg, now)
	if !ok {
		t.Fatal("expected TimerFired to carry a scheduled time")
	}
	if delay < 240*time.Millisecond || delay > 260*time.Millisecond {
		t.Errorf("expected delay ~250ms, got %v", delay)
	}
}

func TestScheduleReleasesAfterDelay(t *testing.T) {
	c := New()
	defer c.Stop()

	released := make(chan model.TaskMessage, 1)
	start := time.Now()
	msg := timerFiredMessage(start.Add(50 * time.Millisecond))

	c.Schedule(msg, 50*time.Millisecond, func(m model.TaskMessage) {
		released <- m
	})

	select {
	case <-released:
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("released too early: %v", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("message was never released")
	}
}

func TestStopCancelsPendingReleases(t *testing.T) {
	c := New()
	released := make(chan model.TaskMessage, 1)
	msg := timerFiredMessage(time.Now().Add(time.Hour))

	c.Schedule(msg, time.Hour, func(m model.TaskMessage) {
		released <- m
	})
	if c.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", c.Pending())
	}

	c.Stop()
	if c.Pending() != 0 {
		t.Errorf("expected 0 pending timers after Stop, got %d", c.Pending())
	}

	select {
	case <-released:
		t.Fatal("release fired after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleAfterStopIsNoop(t *testing.T) {
	c := New()
	c.Stop()

	released := make(chan model.TaskMessage, 1)
	c.Schedule(timerFiredMessage(time.Now()), 0, func(m model.TaskMessage) {
		released <- m
	})

	select {
	case <-released:
		t.Fatal("Schedule after Stop should not release")
	case <-time.After(50 * time.Millisecond):
	}
}
