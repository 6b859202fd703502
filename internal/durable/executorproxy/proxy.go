// Package executorproxy implements the execution-proxy worker channel from
// spec.md §4.7: it exposes ITaskExecutor (here, dispatcher.TaskExecutor) to
// the orchestration/activity dispatchers, and a duplex protocol to the
// single attached out-of-process worker.
//
// Grounded on the teacher's WebSocket hub/client pair
// (apps/backend/internal/orchestrator/streaming/hub.go,
// backend/internal/orchestrator/streaming/client.go): one send channel per
// connection serializing outbound writes, a read pump that demultiplexes
// inbound frames, and register/unregister as the connect/disconnect
// lifecycle. Generalized from "many clients, fan-out broadcast" to "at most
// one client, request/response correlation".
package executorproxy

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/kandev/durabletask/internal/common/errors"
	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/trafficsignal"
	"go.uber.org/zap"
)

// DefaultAttachRetryWindow is how long a second Attach attempt waits to see
// whether the currently-attached worker's connection frees up before
// failing resource-exhausted (spec.md §4.7: "a brief retry window that
// permits clean reconnects").
const DefaultAttachRetryWindow = 2 * time.Second

type orchestratorResult struct {
	resp model.OrchestratorResponse
	err  error
}

type activityResult struct {
	resp model.ActivityResponse
	err  error
}

// Proxy is the single-worker execution proxy. It implements
// dispatcher.TaskExecutor.
type Proxy struct {
	signal *trafficsignal.Signal
	logger *logger.Logger

	retryWindow time.Duration

	connMu sync.Mutex
	conn   *workerConn

	orchMu      sync.Mutex
	orchPending map[string]chan orchestratorResult

	actMu      sync.Mutex
	actPending map[string]chan activityResult
}

// New creates a Proxy with no worker attached; the traffic signal starts
// reset until a worker connects.
func New(signal *trafficsignal.Signal, log *logger.Logger) *Proxy {
	if log == nil {
		log = logger.Default()
	}
	return &Proxy{
		signal:      signal,
		logger:      log.WithFields(zap.String("component", "executorproxy")),
		retryWindow: DefaultAttachRetryWindow,
		orchPending: make(map[string]chan orchestratorResult),
		actPending:  make(map[string]chan activityResult),
	}
}

// Attach registers wc as the sole worker connection, starting its write
// pump. If a worker is already attached, Attach polls for up to
// retryWindow for the slot to free before returning a resource-exhausted
// error (spec.md §4.7).
func (p *Proxy) Attach(wc *workerConn) error {
	deadline := time.Now().Add(p.retryWindow)
	for {
		p.connMu.Lock()
		if p.conn == nil {
			p.conn = wc
			p.connMu.Unlock()
			wc.start()
			p.signal.Set()
			p.logger.Info("worker attached")
			return nil
		}
		p.connMu.Unlock()

		if time.Now().After(deadline) {
			return apperrors.ResourceExhausted("a worker is already attached to the execution proxy")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Detach clears the attached worker, blocking the traffic signal again.
// Pending completion sources are left registered: per spec.md §4.7 they
// resolve on reconnect-and-re-execution after the dispatcher abandons the
// turn, or on the caller's own context cancellation.
func (p *Proxy) Detach(wc *workerConn) {
	p.connMu.Lock()
	if p.conn != wc {
		p.connMu.Unlock()
		return
	}
	p.conn = nil
	p.connMu.Unlock()

	p.signal.Reset()
	p.logger.Info("worker detached")
}

func (p *Proxy) activeConn() *workerConn {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.conn
}

// ExecuteOrchestrator sends an OrchestratorRequest to the attached worker
// and blocks for its CompleteOrchestratorTask reply or ctx cancellation
// (spec.md §4.4 step 3, §4.7).
func (p *Proxy) ExecuteOrchestrator(ctx context.Context, req model.OrchestratorRequest) (model.OrchestratorResponse, error) {
	ch := make(chan orchestratorResult, 1)
	p.orchMu.Lock()
	p.orchPending[req.InstanceID] = ch
	p.orchMu.Unlock()

	wc := p.activeConn()
	if wc == nil {
		p.orchMu.Lock()
		delete(p.orchPending, req.InstanceID)
		p.orchMu.Unlock()
		return model.OrchestratorResponse{}, apperrors.ServiceUnavailable("no worker attached to execution proxy")
	}

	reqCopy := req
	if err := wc.sendFrame(frame{Kind: frameWorkItem, WorkItem: &model.WorkItem{Kind: model.WorkItemOrchestrator, Orchestrator: &reqCopy}}); err != nil {
		p.orchMu.Lock()
		delete(p.orchPending, req.InstanceID)
		p.orchMu.Unlock()
		return model.OrchestratorResponse{}, err
	}

	select {
	case result := <-ch:
		return result.resp, result.err
	case <-ctx.Done():
		return model.OrchestratorResponse{}, ctx.Err()
	}
}

// ExecuteActivity sends an ActivityRequest to the attached worker and
// blocks for its CompleteActivityTask reply or ctx cancellation (spec.md
// §4.5 step 3, §4.7).
func (p *Proxy) ExecuteActivity(ctx context.Context, req model.ActivityRequest) (model.ActivityResponse, error) {
	key := activityKey(req.InstanceID, req.TaskID)
	ch := make(chan activityResult, 1)
	p.actMu.Lock()
	p.actPending[key] = ch
	p.actMu.Unlock()

	wc := p.activeConn()
	if wc == nil {
		p.actMu.Lock()
		delete(p.actPending, key)
		p.actMu.Unlock()
		return model.ActivityResponse{}, apperrors.ServiceUnavailable("no worker attached to execution proxy")
	}

	reqCopy := req
	if err := wc.sendFrame(frame{Kind: frameWorkItem, WorkItem: &model.WorkItem{Kind: model.WorkItemActivity, Activity: &reqCopy}}); err != nil {
		p.actMu.Lock()
		delete(p.actPending, key)
		p.actMu.Unlock()
		return model.ActivityResponse{}, err
	}

	select {
	case result := <-ch:
		return result.resp, result.err
	case <-ctx.Done():
		return model.ActivityResponse{}, ctx.Err()
	}
}

// resolveOrchestrator completes a pending ExecuteOrchestrator call. Returns
// an error if no turn is pending under that instance id (spec.md §4.7:
// "a completion RPC for an unknown key fails with not-found").
func (p *Proxy) resolveOrchestrator(c orchestratorCompletion) error {
	p.orchMu.Lock()
	ch, ok := p.orchPending[c.InstanceID]
	if ok {
		delete(p.orchPending, c.InstanceID)
	}
	p.orchMu.Unlock()
	if !ok {
		return apperrors.NotFound("pending orchestrator turn", c.InstanceID)
	}
	ch <- orchestratorResult{resp: model.OrchestratorResponse{Actions: c.Actions, CustomStatus: c.CustomStatus}}
	return nil
}

// resolveActivity completes a pending ExecuteActivity call, keyed by
// (instanceId, taskId).
func (p *Proxy) resolveActivity(c activityCompletion) error {
	key := activityKey(c.InstanceID, c.TaskID)
	p.actMu.Lock()
	ch, ok := p.actPending[key]
	if ok {
		delete(p.actPending, key)
	}
	p.actMu.Unlock()
	if !ok {
		return apperrors.NotFound("pending activity task", key)
	}
	ch <- activityResult{resp: model.ActivityResponse{Result: c.Result, Failure: c.Failure}}
	return nil
}
