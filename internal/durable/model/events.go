package model

import "time"

// EventType identifies the variant of a HistoryEvent.
type EventType string

const (
	EventExecutionStarted                EventType = "ExecutionStarted"
	EventExecutionCompleted              EventType = "ExecutionCompleted"
	EventExecutionFailed                 EventType = "ExecutionFailed"
	EventExecutionTerminated             EventType = "ExecutionTerminated"
	EventExecutionSuspended              EventType = "ExecutionSuspended"
	EventExecutionResumed                EventType = "ExecutionResumed"
	EventContinueAsNew                   EventType = "ContinueAsNew"
	EventTaskScheduled                   EventType = "TaskScheduled"
	EventTaskCompleted                   EventType = "TaskCompleted"
	EventTaskFailed                      EventType = "TaskFailed"
	EventSubOrchestrationCreated         EventType = "SubOrchestrationInstanceCreated"
	EventSubOrchestrationCompleted       EventType = "SubOrchestrationInstanceCompleted"
	EventSubOrchestrationFailed          EventType = "SubOrchestrationInstanceFailed"
	EventTimerCreated                    EventType = "TimerCreated"
	EventTimerFired                      EventType = "TimerFired"
	EventRaised                          EventType = "EventRaised"
	EventSent                            EventType = "EventSent"
	EventGeneric                         EventType = "GenericEvent"
)

// UnassignedEventID is used for events that carry no scheduling correlator.
const UnassignedEventID = -1

// HistoryEvent is a single entry in an instance's replay log. Only the
// fields relevant to its Type are populated; this mirrors the teacher's
// pattern of a single struct with a discriminating "Type"/"Data" pair
// (pkg/acp/protocol.Message) rather than a sum-type hierarchy, which Go
// cannot express directly.
type HistoryEvent struct {
	EventID   int       `json:"eventId"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// ExecutionStarted. Version is shared with TaskScheduled /
	// SubOrchestrationInstanceCreated below rather than duplicated per
	// variant.
	Name             string            `json:"name,omitempty"`
	Version          string            `json:"version,omitempty"`
	Input            []byte            `json:"input,omitempty"`
	ScheduledStart   *time.Time        `json:"scheduledStartTime,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	ParentInstanceID string            `json:"parentInstanceId,omitempty"`

	// ExecutionCompleted / ExecutionFailed / ExecutionTerminated / TaskCompleted / TaskFailed
	Result  []byte          `json:"result,omitempty"`
	Failure *FailureDetails `json:"failure,omitempty"`

	// ExecutionSuspended / ExecutionResumed / ExecutionTerminated
	Reason string `json:"reason,omitempty"`

	// ContinueAsNew
	NewExecutionID string `json:"newExecutionId,omitempty"`

	// TaskScheduled / SubOrchestrationInstanceCreated
	TaskName  string `json:"taskName,omitempty"`
	TaskInput []byte `json:"taskInput,omitempty"`

	// SubOrchestrationInstanceCreated/Completed/Failed
	SubInstanceID string `json:"subInstanceId,omitempty"`

	// TimerCreated / TimerFired
	FireAt *time.Time `json:"fireAt,omitempty"`

	// EventRaised / EventSent / GenericEvent
	EventName string `json:"eventName,omitempty"`
	EventData []byte `json:"eventData,omitempty"`
	TargetID  string `json:"targetId,omitempty"`
}

// ScheduledFireTime returns the time at which this event's delivery should
// be deferred, and whether one applies. Only ExecutionStarted (via
// ScheduledStart) and TimerFired (via FireAt) carry a deadline, per
// spec.md §4.3.
func (e *HistoryEvent) ScheduledFireTime() (time.Time, bool) {
	switch e.Type {
	case EventExecutionStarted:
		if e.ScheduledStart != nil {
			return *e.ScheduledStart, true
		}
	case EventTimerFired:
		if e.FireAt != nil {
			return *e.FireAt, true
		}
	}
	return time.Time{}, false
}
