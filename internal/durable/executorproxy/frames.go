package executorproxy

import (
	"strconv"

	"github.com/kandev/durabletask/internal/durable/model"
)

// frameKind discriminates the duplex worker stream's frame shapes (spec.md
// §4.7). The server sends workItem frames; the worker sends the two
// completion frames back.
type frameKind string

const (
	frameWorkItem             frameKind = "workItem"
	frameCompleteOrchestrator frameKind = "completeOrchestratorTask"
	frameCompleteActivity     frameKind = "completeActivityTask"
)

// frame is the single wire envelope multiplexed both directions over the
// one worker WebSocket connection.
type frame struct {
	Kind                   frameKind               `json:"kind"`
	WorkItem               *model.WorkItem         `json:"workItem,omitempty"`
	OrchestratorCompletion *orchestratorCompletion `json:"orchestratorCompletion,omitempty"`
	ActivityCompletion     *activityCompletion     `json:"activityCompletion,omitempty"`
}

// orchestratorCompletion is CompleteOrchestratorTask from spec.md §4.7,
// correlated back to a pending ExecuteOrchestrator call by InstanceID.
type orchestratorCompletion struct {
	InstanceID   string                     `json:"instanceId"`
	Actions      []model.OrchestratorAction `json:"actions"`
	CustomStatus []byte                     `json:"customStatus,omitempty"`
}

// activityCompletion is CompleteActivityTask from spec.md §4.7, correlated
// back to a pending ExecuteActivity call by (InstanceID, TaskID).
type activityCompletion struct {
	InstanceID string                `json:"instanceId"`
	TaskID     int                   `json:"taskId"`
	Result     []byte                `json:"result,omitempty"`
	Failure    *model.FailureDetails `json:"failure,omitempty"`
}

func activityKey(instanceID string, taskID int) string {
	return instanceID + "/" + strconv.Itoa(taskID)
}
