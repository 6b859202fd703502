package dispatcher

import (
	"context"

	"github.com/kandev/durabletask/internal/durable/model"
)

// TaskExecutor is ITaskExecutor from spec.md §4.7: the seam the dispatchers
// call through to run orchestrator/activity code on the attached worker.
// internal/durable/executorproxy is the production implementation; tests
// substitute a fake.
type TaskExecutor interface {
	ExecuteOrchestrator(ctx context.Context, req model.OrchestratorRequest) (model.OrchestratorResponse, error)
	ExecuteActivity(ctx context.Context, req model.ActivityRequest) (model.ActivityResponse, error)
}
