package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kandev/durabletask/internal/durable/clock"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/queue"
	"github.com/kandev/durabletask/internal/durable/readyqueue"
	"github.com/kandev/durabletask/internal/durable/store"
	"github.com/kandev/durabletask/internal/durable/trafficsignal"
)

// fakeExecutor is a scriptable TaskExecutor: callers register one
// orchestrator response (or error) per instance id and a single activity
// response (or error) shared by every activity call; every call is recorded.
type fakeExecutor struct {
	mu sync.Mutex

	orchestratorResponses map[string]model.OrchestratorResponse
	orchestratorErrors    map[string]error
	orchestratorCalls     []model.OrchestratorRequest

	activityResponse model.ActivityResponse
	activityErr      error
	activityCalls     []model.ActivityRequest
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		orchestratorResponses: make(map[string]model.OrchestratorResponse),
		orchestratorErrors:    make(map[string]error),
	}
}

func (f *fakeExecutor) ExecuteOrchestrator(ctx context.Context, req model.OrchestratorRequest) (model.OrchestratorResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orchestratorCalls = append(f.orchestratorCalls, req)
	if err, ok := f.orchestratorErrors[req.InstanceID]; ok {
		return model.OrchestratorResponse{}, err
	}
	return f.orchestratorResponses[req.InstanceID], nil
}

func (f *fakeExecutor) ExecuteActivity(ctx context.Context, req model.ActivityRequest) (model.ActivityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityCalls = append(f.activityCalls, req)
	if f.activityErr != nil {
		return model.ActivityResponse{}, f.activityErr
	}
	return f.activityResponse, nil
}

func (f *fakeExecutor) callCount(instanceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.orchestratorCalls {
		if r.InstanceID == instanceID {
			n++
		}
	}
	return n
}

func newHarness(t *testing.T, exec TaskExecutor) (*store.Store, *Dispatcher, *trafficsignal.Signal) {
	t.Helper()
	clk := clock.New()
	t.Cleanup(clk.Stop)
	activities := queue.New()
	st := store.New(readyqueue.New(), activities, clk, nil, store.Config{}, nil)
	sig := trafficsignal.New()
	d := New(st, activities, sig, exec, Config{SignalPollInterval: 10 * time.Millisecond}, nil)
	return st, d, sig
}

func executionStarted(instanceID, executionID, name string) model.TaskMessage {
	return model.TaskMessage{
		InstanceID:  instanceID,
		ExecutionID: executionID,
		Event: model.HistoryEvent{
			EventID: model.UnassignedEventID,
			Type:    model.EventExecutionStarted,
			Name:    name,
		},
	}
}

func waitForStatus(t *testing.T, st *store.Store, instanceID string, want model.RuntimeStatus, timeout time.Duration) *model.Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if status, ok := st.TryGetStatus(instanceID); ok && status.RuntimeStatus == want {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("instance %q never reached status %s", instanceID, want)
	return nil
}

func TestOrchestrationLoopSchedulesActivity(t *testing.T) {
	exec := newFakeExecutor()
	exec.orchestratorResponses["i1"] = model.OrchestratorResponse{
		Actions: []model.OrchestratorAction{
			{Kind: model.ActionScheduleTask, TaskID: 1, Name: "echo", Input: []byte(`"x"`)},
		},
	}

	clk := clock.New()
	t.Cleanup(clk.Stop)
	activities := queue.New()
	st := store.New(readyqueue.New(), activities, clk, nil, store.Config{}, nil)
	sig := trafficsignal.New()
	d := New(st, activities, sig, exec, Config{SignalPollInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Start(ctx)
	sig.Set()

	if err := st.AddMessage(executionStarted("i1", "exec-1", "hello")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	waitForStatus(t, st, "i1", model.StatusRunning, time.Second)

	deadline := time.Now().Add(time.Second)
	for activities.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if activities.Len() != 1 {
		t.Fatalf("expected one activity message enqueued, got %d", activities.Len())
	}

	cancel()
	d.Wait()
}

func TestActivityLoopRoutesResultBackToInstance(t *testing.T) {
	exec := newFakeExecutor()
	exec.activityResponse = model.ActivityResponse{Result: []byte(`"done"`)}

	st, d, sig := newHarness(t, exec)
	if err := st.AddMessage(executionStarted("i1", "exec-1", "hello")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	// Drain the orchestration-ready message manually so only the activity
	// loop under test is exercised.
	ctx0, cancel0 := context.WithTimeout(context.Background(), time.Second)
	id, _, msgs, err := st.GetNextReadyToRunInstance(ctx0)
	cancel0()
	if err != nil {
		t.Fatalf("GetNextReadyToRunInstance failed: %v", err)
	}
	if err := st.SaveTurn(id, store.Turn{
		NewHistoryEvents: []model.HistoryEvent{msgs[0].Event},
		Status:           &model.Status{InstanceID: id, ExecutionID: "exec-1", Name: "hello", RuntimeStatus: model.StatusRunning, CreatedAt: time.Now(), LastUpdatedAt: time.Now()},
		OutboundActivityMessages: []model.TaskMessage{{
			InstanceID:  id,
			ExecutionID: "exec-1",
			Event:       model.HistoryEvent{EventID: 1, Type: model.EventTaskScheduled, TaskName: "echo"},
		}},
	}); err != nil {
		t.Fatalf("SaveTurn failed: %v", err)
	}
	if err := st.ReleaseLock(id); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Start(ctx)
	sig.Set()

	deadline := time.Now().Add(time.Second)
	for exec.callCount("i1")+len(exec.activityCalls) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	deadline = time.Now().Add(time.Second)
	var ready string
	for time.Now().Before(deadline) {
		rctx, rcancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		rid, _, rmsgs, rerr := st.GetNextReadyToRunInstance(rctx)
		rcancel()
		if rerr == nil {
			ready = rid
			if len(rmsgs) == 1 && rmsgs[0].Event.Type == model.EventTaskCompleted {
				break
			}
		}
	}
	if ready != "i1" {
		t.Fatalf("expected the activity's TaskCompleted message to make i1 ready again, got %q", ready)
	}

	cancel()
	d.Wait()
}

func TestOrchestrationTurnAbandonedOnExecutorError(t *testing.T) {
	exec := newFakeExecutor()
	exec.orchestratorErrors["i1"] = errors.New("worker disconnected mid-turn")

	st, d, sig := newHarness(t, exec)
	if err := st.AddMessage(executionStarted("i1", "exec-1", "hello")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Start(ctx)
	sig.Set()

	deadline := time.Now().Add(time.Second)
	for exec.callCount("i1") < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if exec.callCount("i1") < 2 {
		t.Fatalf("expected the abandoned turn to be retried at least once, got %d calls", exec.callCount("i1"))
	}

	cancel()
	d.Wait()
}

func TestDispatcherWaitsForTrafficSignal(t *testing.T) {
	exec := newFakeExecutor()
	st, d, sig := newHarness(t, exec)
	if err := st.AddMessage(executionStarted("i1", "exec-1", "hello")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	d.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	if exec.callCount("i1") != 0 {
		t.Fatalf("expected no orchestrator calls before the traffic signal is set, got %d", exec.callCount("i1"))
	}

	cancel()
	d.Wait()
}

func TestContinueAsNewActionStartsNextGeneration(t *testing.T) {
	exec := newFakeExecutor()
	exec.orchestratorResponses["i1"] = model.OrchestratorResponse{
		Actions: []model.OrchestratorAction{
			{Kind: model.ActionContinueAsNew, CarryoverInput: []byte(`"next"`)},
		},
	}

	st, d, sig := newHarness(t, exec)
	if err := st.AddMessage(executionStarted("i1", "exec-1", "counter")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Start(ctx)
	sig.Set()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if status, ok := st.TryGetStatus("i1"); ok && status.ExecutionID != "exec-1" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	status, ok := st.TryGetStatus("i1")
	if !ok {
		t.Fatal("expected instance to still exist")
	}
	if status.ExecutionID == "exec-1" {
		t.Fatalf("expected a new execution id after continue-as-new, still %s", status.ExecutionID)
	}
	if status.RuntimeStatus != model.StatusPending {
		t.Errorf("expected the next generation to start Pending, got %s", status.RuntimeStatus)
	}

	cancel()
	d.Wait()
}
