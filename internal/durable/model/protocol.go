package model

import "time"

// OrchestratorRequest is the unit of work a dispatcher hands to
// ITaskExecutor.ExecuteOrchestrator for one turn (spec.md §4.4 step 2,
// §4.7).
type OrchestratorRequest struct {
	InstanceID  string
	ExecutionID string
	PastEvents  []HistoryEvent
	NewEvents   []TaskMessage
}

// ActivityRequest is the unit of work handed to
// ITaskExecutor.ExecuteActivity (spec.md §4.5 step 3, §4.7).
type ActivityRequest struct {
	InstanceID  string
	ExecutionID string
	TaskID      int
	Name        string
	Version     string
	Input       []byte
}

// ActivityResponse is the worker's reply to one ActivityRequest: exactly one
// of Result or Failure is populated.
type ActivityResponse struct {
	Result  []byte
	Failure *FailureDetails
}

// OrchestratorActionKind discriminates which fields of OrchestratorAction
// apply, mirroring the HistoryEvent "one struct, optional fields by Type"
// pattern used throughout this package.
type OrchestratorActionKind string

const (
	ActionScheduleTask          OrchestratorActionKind = "ScheduleTask"
	ActionCreateTimer           OrchestratorActionKind = "CreateTimer"
	ActionSendEvent             OrchestratorActionKind = "SendEvent"
	ActionStartSubOrchestration OrchestratorActionKind = "StartSubOrchestration"
	ActionContinueAsNew         OrchestratorActionKind = "ContinueAsNew"
	ActionCompleteOrchestration OrchestratorActionKind = "CompleteOrchestration"
)

// OrchestratorAction is one decision an orchestrator made during a turn,
// translated by the dispatcher into history events and outbound messages
// (spec.md §4.4 step 4).
type OrchestratorAction struct {
	Kind OrchestratorActionKind

	// ScheduleTask / StartSubOrchestration
	TaskID  int
	Name    string
	Version string
	Input   []byte

	// CreateTimer
	FireAt *time.Time

	// SendEvent: target instance and event of the outbound message.
	TargetInstanceID string
	EventName        string
	EventData        []byte

	// StartSubOrchestration: id assigned to the child instance.
	SubInstanceID string

	// ContinueAsNew
	CarryoverInput []byte

	// CompleteOrchestration
	Status  RuntimeStatus
	Result  []byte
	Failure *FailureDetails
}

// OrchestratorResponse is the worker's reply to one OrchestratorRequest.
type OrchestratorResponse struct {
	Actions      []OrchestratorAction
	CustomStatus []byte
}

// WorkItemKind discriminates the two shapes WorkItem can carry over the
// executor-proxy worker stream (spec.md §4.7).
type WorkItemKind string

const (
	WorkItemOrchestrator WorkItemKind = "orchestrator"
	WorkItemActivity     WorkItemKind = "activity"
)

// WorkItem is one unit pushed down the worker's GetWorkItems stream: exactly
// one of Orchestrator or Activity is populated, selected by Kind.
type WorkItem struct {
	Kind         WorkItemKind
	Orchestrator *OrchestratorRequest
	Activity     *ActivityRequest
}
