package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kandev/durabletask/internal/durable/clock"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/queue"
	"github.com/kandev/durabletask/internal/durable/readyqueue"
	"github.com/kandev/durabletask/internal/durable/store"
)

func newTestClient(t *testing.T) (*Client, *store.Store) {
	t.Helper()
	clk := clock.New()
	t.Cleanup(clk.Stop)
	st := store.New(readyqueue.New(), queue.New(), clk, nil, store.Config{}, nil)
	return New(st, Config{PollInterval: 10 * time.Millisecond}, nil), st
}

func TestScheduleNewGeneratesInstanceIDAndStartsPending(t *testing.T) {
	c, _ := newTestClient(t)

	id, err := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch", Input: []byte(`"x"`)})
	if err != nil {
		t.Fatalf("ScheduleNew failed: %v", err)
	}
	if len(id) != 32 {
		t.Fatalf("expected a 32-char generated instance id, got %q", id)
	}

	status, err := c.GetInstance(id, true)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if status.RuntimeStatus != model.StatusPending {
		t.Fatalf("expected Pending, got %s", status.RuntimeStatus)
	}
	if string(status.SerializedInput) != `"x"` {
		t.Fatalf("expected input preserved with includeIO=true, got %q", status.SerializedInput)
	}
}

func TestScheduleNewWithExplicitInstanceID(t *testing.T) {
	c, _ := newTestClient(t)

	id, err := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch", InstanceID: "My-Instance"})
	if err != nil {
		t.Fatalf("ScheduleNew failed: %v", err)
	}
	if id != "My-Instance" {
		t.Fatalf("expected the caller-supplied instance id to be returned verbatim, got %q", id)
	}

	if _, err := c.GetInstance("my-instance", true); err != nil {
		t.Fatalf("expected case-insensitive lookup to find the instance, got %v", err)
	}
}

func TestScheduleNewDuplicateWhileActiveIsRejected(t *testing.T) {
	c, _ := newTestClient(t)

	if _, err := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch", InstanceID: "dup"}); err != nil {
		t.Fatalf("first ScheduleNew failed: %v", err)
	}
	_, err := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch", InstanceID: "dup"})
	if err == nil {
		t.Fatal("expected the second ScheduleNew for an active instance to fail")
	}
}

func TestGetInstanceUnknownIsNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.GetInstance("ghost", false); err == nil {
		t.Fatal("expected GetInstance on an unknown instance to fail")
	}
}

func TestGetInstanceStripsIOWhenNotRequested(t *testing.T) {
	c, _ := newTestClient(t)
	id, _ := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch", Input: []byte(`"secret"`)})

	status, err := c.GetInstance(id, false)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if status.SerializedInput != nil {
		t.Fatalf("expected input stripped when includeIO=false, got %q", status.SerializedInput)
	}
}

func TestRaiseEventAndTerminateDeliverMessages(t *testing.T) {
	c, st := newTestClient(t)
	id, _ := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch"})

	if err := c.RaiseEvent(context.Background(), id, "approval", []byte(`true`)); err != nil {
		t.Fatalf("RaiseEvent failed: %v", err)
	}

	_, history, messages, err := st.GetNextReadyToRunInstance(context.Background())
	if err != nil {
		t.Fatalf("GetNextReadyToRunInstance failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no replay history yet, got %d events", len(history))
	}
	foundStart, foundEvent := false, false
	for _, m := range messages {
		switch m.Event.Type {
		case model.EventExecutionStarted:
			foundStart = true
		case model.EventRaised:
			foundEvent = true
			if m.Event.EventName != "approval" {
				t.Fatalf("expected eventName 'approval', got %q", m.Event.EventName)
			}
		}
	}
	if !foundStart || !foundEvent {
		t.Fatalf("expected both ExecutionStarted and EventRaised in the drained inbox, got %+v", messages)
	}

	if err := c.Terminate(context.Background(), id, []byte(`"stopped"`), false); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
}

func TestSuspendAndResumeDeliverMessages(t *testing.T) {
	c, st := newTestClient(t)
	id, _ := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch"})
	st.GetNextReadyToRunInstance(context.Background())

	if err := c.Suspend(context.Background(), id, "maintenance"); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if err := c.Resume(context.Background(), id, "resumed"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
}

func TestWaitForStartReturnsOnceNotPending(t *testing.T) {
	c, st := newTestClient(t)
	id, _ := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		status, err := c.WaitForStart(ctx, id)
		if err != nil {
			t.Errorf("WaitForStart failed: %v", err)
		} else if status.RuntimeStatus != model.StatusRunning {
			t.Errorf("expected Running, got %s", status.RuntimeStatus)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	_, _, _, err := st.GetNextReadyToRunInstance(context.Background())
	if err != nil {
		t.Fatalf("GetNextReadyToRunInstance failed: %v", err)
	}
	now := time.Now().UTC()
	if err := st.SaveTurn(id, store.Turn{
		Status: &model.Status{InstanceID: id, ExecutionID: "exec-1", Name: "orch", RuntimeStatus: model.StatusRunning, CreatedAt: now, LastUpdatedAt: now},
	}); err != nil {
		t.Fatalf("SaveTurn failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForStart never returned")
	}
}

func TestWaitForStartRespectsContextCancellation(t *testing.T) {
	c, _ := newTestClient(t)
	id, _ := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := c.WaitForStart(ctx, id); err == nil {
		t.Fatal("expected WaitForStart to return the context's error once it's cancelled")
	}
}

func TestScheduleNewEncodesStructuredInputViaCodec(t *testing.T) {
	c, _ := newTestClient(t)

	id, err := c.ScheduleNew(context.Background(), ScheduleNewRequest{
		Name:  "orch",
		Input: map[string]any{"count": float64(3), "label": "widgets"},
	})
	if err != nil {
		t.Fatalf("ScheduleNew failed: %v", err)
	}

	status, err := c.GetInstance(id, true)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}

	var decoded map[string]any
	if err := c.Decode(status.SerializedInput, &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded["count"] != float64(3) || decoded["label"] != "widgets" {
		t.Fatalf("expected the map to round-trip through the codec, got %+v", decoded)
	}
}

func TestScheduleNewPassesThroughPreSerializedBytes(t *testing.T) {
	c, _ := newTestClient(t)

	raw := json.RawMessage(`{"already":"json"}`)
	id, err := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch", Input: raw})
	if err != nil {
		t.Fatalf("ScheduleNew failed: %v", err)
	}

	status, err := c.GetInstance(id, true)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if string(status.SerializedInput) != `{"already":"json"}` {
		t.Fatalf("expected pre-serialized bytes to pass through untouched, got %q", status.SerializedInput)
	}
}

func TestQueryAndPurgeOnlyAffectCompletedInstances(t *testing.T) {
	c, st := newTestClient(t)
	id, _ := c.ScheduleNew(context.Background(), ScheduleNewRequest{Name: "orch"})

	if n := c.Purge(id); n != 0 {
		t.Fatalf("expected Purge on a non-completed instance to remove nothing, got %d", n)
	}

	st.GetNextReadyToRunInstance(context.Background())
	now := time.Now().UTC()
	if err := st.SaveTurn(id, store.Turn{
		Status: &model.Status{InstanceID: id, ExecutionID: "exec-1", Name: "orch", RuntimeStatus: model.StatusCompleted, CreatedAt: now, LastUpdatedAt: now},
	}); err != nil {
		t.Fatalf("SaveTurn failed: %v", err)
	}
	st.ReleaseLock(id)

	statuses, _, err := c.Query(store.Query{Statuses: []model.RuntimeStatus{model.StatusCompleted}}, "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(statuses) != 1 || statuses[0].InstanceID != id {
		t.Fatalf("expected the completed instance in the page, got %+v", statuses)
	}

	if n := c.Purge(id); n != 1 {
		t.Fatalf("expected Purge to remove the completed instance, got %d", n)
	}
	if _, err := c.GetInstance(id, false); err == nil {
		t.Fatal("expected the purged instance to be gone")
	}
}
