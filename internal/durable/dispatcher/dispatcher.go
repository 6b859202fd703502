// Package dispatcher implements spec.md §4.4's orchestration dispatcher and
// §4.5's activity dispatcher: the concurrent loops that pull ready work off
// the store/activity queue, run it through a TaskExecutor, and commit the
// result.
//
// Grounded on the teacher's Scheduler.processLoop
// (apps/backend/internal/orchestrator/scheduler/scheduler.go): a
// config-driven concurrency limit, a cooperative loop gated on a stop
// channel plus the caller's context, and per-item error handling that
// chooses between "retry" and "fail" without tearing down the loop. Here
// the retry/fail choice is AbandonTurn vs SaveTurn, and the stop channel is
// generalized to the caller's ctx (no separate Start/Stop lifecycle is
// needed since every suspension point already takes a context).
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/queue"
	"github.com/kandev/durabletask/internal/durable/store"
	"github.com/kandev/durabletask/internal/durable/trafficsignal"
	"go.uber.org/zap"
)

// Dispatcher owns the orchestration and activity dispatch loops described in
// spec.md §4.4/§4.5.
type Dispatcher struct {
	store      *store.Store
	activities *queue.ActivityQueue
	signal     *trafficsignal.Signal
	executor   TaskExecutor
	config     Config
	logger     *logger.Logger

	wg sync.WaitGroup
}

// New creates a Dispatcher. executor is typically an
// internal/durable/executorproxy.Proxy.
func New(st *store.Store, activities *queue.ActivityQueue, signal *trafficsignal.Signal, executor TaskExecutor, cfg Config, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		store:      st,
		activities: activities,
		signal:     signal,
		executor:   executor,
		config:     cfg,
		logger:     log.WithFields(zap.String("component", "dispatcher")),
	}
}

// Start launches MaxConcurrentOrchestrationTurns orchestration loops and
// MaxConcurrentActivities activity loops, all bound to ctx. It returns
// immediately; call Wait to block until every loop has exited (after ctx is
// cancelled).
func (d *Dispatcher) Start(ctx context.Context) {
	orchWorkers := d.config.orchestrationWorkers()
	actWorkers := d.config.activityWorkers()

	d.logger.Info("starting dispatcher loops",
		zap.Int("orchestration_workers", orchWorkers),
		zap.Int("activity_workers", actWorkers))

	for i := 0; i < orchWorkers; i++ {
		d.wg.Add(1)
		go d.orchestrationLoop(ctx)
	}
	for i := 0; i < actWorkers; i++ {
		d.wg.Add(1)
		go d.activityLoop(ctx)
	}
}

// Wait blocks until every dispatcher loop started by Start has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// waitForSignal blocks until the traffic signal is set or ctx is cancelled,
// returning false in the latter case (spec.md §4.4/§4.5: "before step 1,
// wait until the signal is set").
func (d *Dispatcher) waitForSignal(ctx context.Context) bool {
	interval := d.config.signalPollInterval()
	for {
		if ctx.Err() != nil {
			return false
		}
		if d.signal.WaitAsync(interval, ctx) {
			return true
		}
	}
}

func (d *Dispatcher) orchestrationLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		if !d.waitForSignal(ctx) {
			return
		}

		id, history, messages, err := d.store.GetNextReadyToRunInstance(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("GetNextReadyToRunInstance failed", zap.Error(err))
			continue
		}

		d.runOrchestrationTurn(ctx, id, history, messages)
	}
}

func (d *Dispatcher) runOrchestrationTurn(ctx context.Context, id string, history []model.HistoryEvent, messages []model.TaskMessage) {
	prior, _ := d.store.TryGetStatus(id)
	executionID := id
	if prior != nil {
		executionID = prior.ExecutionID
	}

	req := model.OrchestratorRequest{
		InstanceID:  id,
		ExecutionID: executionID,
		PastEvents:  history,
		NewEvents:   messages,
	}

	turnCtx := ctx
	var cancel context.CancelFunc
	if d.config.TurnDeadline > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, d.config.TurnDeadline)
		defer cancel()
	}

	resp, err := d.executor.ExecuteOrchestrator(turnCtx, req)
	if err != nil {
		d.logger.Warn("orchestrator turn failed, abandoning",
			zap.String("instance_id", id), zap.Error(err))
		if abandonErr := d.store.AbandonTurn(messages); abandonErr != nil {
			d.logger.Error("failed to abandon turn", zap.String("instance_id", id), zap.Error(abandonErr))
		}
		return
	}

	turn := translateActions(req, resp, prior, time.Now().UTC())
	if err := d.store.SaveTurn(id, turn); err != nil {
		d.logger.Error("failed to save turn, abandoning", zap.String("instance_id", id), zap.Error(err))
		if abandonErr := d.store.AbandonTurn(messages); abandonErr != nil {
			d.logger.Error("failed to abandon turn", zap.String("instance_id", id), zap.Error(abandonErr))
		}
		return
	}
	if err := d.store.ReleaseLock(id); err != nil {
		d.logger.Error("failed to release lock", zap.String("instance_id", id), zap.Error(err))
	}
}

func (d *Dispatcher) activityLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		if !d.waitForSignal(ctx) {
			return
		}

		msg, err := d.activities.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		d.runActivityTask(ctx, msg)
	}
}

func (d *Dispatcher) runActivityTask(ctx context.Context, msg model.TaskMessage) {
	req := model.ActivityRequest{
		InstanceID:  msg.InstanceID,
		ExecutionID: msg.ExecutionID,
		TaskID:      msg.Event.EventID,
		Name:        msg.Event.TaskName,
		Version:     msg.Event.Version,
		Input:       msg.Event.TaskInput,
	}

	resp, err := d.executor.ExecuteActivity(ctx, req)
	if err != nil {
		// Transport/infra failure before a result was seen: at-least-once
		// redelivery via the activity queue itself (spec.md §4.5 step 5).
		d.logger.Warn("activity execution failed, re-enqueueing",
			zap.String("instance_id", msg.InstanceID), zap.Int("task_id", req.TaskID), zap.Error(err))
		d.activities.Enqueue(msg)
		return
	}

	var resultEvent model.HistoryEvent
	if resp.Failure != nil {
		resultEvent = model.HistoryEvent{
			Type:      model.EventTaskFailed,
			Timestamp: time.Now().UTC(),
			EventID:   req.TaskID,
			Failure:   resp.Failure,
		}
	} else {
		resultEvent = model.HistoryEvent{
			Type:      model.EventTaskCompleted,
			Timestamp: time.Now().UTC(),
			EventID:   req.TaskID,
			Result:    resp.Result,
		}
	}

	completion := model.TaskMessage{
		InstanceID:  msg.InstanceID,
		ExecutionID: msg.ExecutionID,
		Event:       resultEvent,
	}
	if err := d.store.AddMessage(completion); err != nil {
		d.logger.Warn("failed to deliver activity result to originating instance",
			zap.String("instance_id", msg.InstanceID), zap.Error(err))
	}
}
