package dispatcher

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/store"
)

// newExecutionID mints a 32-char hex execution id the same way the client
// façade mints instance ids (spec.md §6), via uuid.New() with hyphens
// stripped.
func newExecutionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// translateActions turns one OrchestratorResponse into the store.Turn the
// dispatcher commits via SaveTurn (spec.md §4.4 step 4): new history events,
// outbound activity/orchestrator/timer messages, and the resulting status
// record. prior is the instance's status snapshot before this turn, carried
// forward into fields the worker doesn't restate every turn.
func translateActions(req model.OrchestratorRequest, resp model.OrchestratorResponse, prior *model.Status, now time.Time) store.Turn {
	turn := store.Turn{}

	status := prior.Clone()
	if status == nil {
		status = &model.Status{InstanceID: req.InstanceID, ExecutionID: req.ExecutionID, CreatedAt: now}
	}
	status.LastUpdatedAt = now
	status.CustomStatus = resp.CustomStatus
	if status.RuntimeStatus == "" {
		status.RuntimeStatus = model.StatusRunning
	} else if !status.RuntimeStatus.IsTerminal() {
		status.RuntimeStatus = model.StatusRunning
	}

	for _, action := range resp.Actions {
		switch action.Kind {
		case model.ActionScheduleTask:
			turn.NewHistoryEvents = append(turn.NewHistoryEvents, model.HistoryEvent{
				EventID:   action.TaskID,
				Type:      model.EventTaskScheduled,
				Timestamp: now,
				TaskName:  action.Name,
				Version:   action.Version,
				TaskInput: action.Input,
			})
			turn.OutboundActivityMessages = append(turn.OutboundActivityMessages, model.TaskMessage{
				InstanceID:  req.InstanceID,
				ExecutionID: req.ExecutionID,
				Event: model.HistoryEvent{
					EventID:   action.TaskID,
					Type:      model.EventTaskScheduled,
					Timestamp: now,
					TaskName:  action.Name,
					Version:   action.Version,
					TaskInput: action.Input,
				},
			})

		case model.ActionCreateTimer:
			turn.NewHistoryEvents = append(turn.NewHistoryEvents, model.HistoryEvent{
				EventID:   action.TaskID,
				Type:      model.EventTimerCreated,
				Timestamp: now,
				FireAt:    action.FireAt,
			})
			turn.TimerMessages = append(turn.TimerMessages, model.TaskMessage{
				InstanceID:  req.InstanceID,
				ExecutionID: req.ExecutionID,
				Event: model.HistoryEvent{
					EventID:   action.TaskID,
					Type:      model.EventTimerFired,
					Timestamp: now,
					FireAt:    action.FireAt,
				},
			})

		case model.ActionSendEvent:
			turn.NewHistoryEvents = append(turn.NewHistoryEvents, model.HistoryEvent{
				EventID:   action.TaskID,
				Type:      model.EventSent,
				Timestamp: now,
				EventName: action.EventName,
				EventData: action.EventData,
				TargetID:  action.TargetInstanceID,
			})
			turn.OutboundOrchestratorMessages = append(turn.OutboundOrchestratorMessages, model.TaskMessage{
				InstanceID: action.TargetInstanceID,
				Event: model.HistoryEvent{
					Type:      model.EventRaised,
					Timestamp: now,
					EventName: action.EventName,
					EventData: action.EventData,
				},
			})

		case model.ActionStartSubOrchestration:
			turn.NewHistoryEvents = append(turn.NewHistoryEvents, model.HistoryEvent{
				EventID:       action.TaskID,
				Type:          model.EventSubOrchestrationCreated,
				Timestamp:     now,
				TaskName:      action.Name,
				Version:       action.Version,
				TaskInput:     action.Input,
				SubInstanceID: action.SubInstanceID,
			})
			turn.OutboundOrchestratorMessages = append(turn.OutboundOrchestratorMessages, model.TaskMessage{
				InstanceID: action.SubInstanceID,
				Event: model.HistoryEvent{
					Type:             model.EventExecutionStarted,
					Timestamp:        now,
					Name:             action.Name,
					Version:          action.Version,
					Input:            action.Input,
					ParentInstanceID: req.InstanceID,
				},
			})

		case model.ActionContinueAsNew:
			nextExecutionID := newExecutionID()
			status.RuntimeStatus = model.StatusContinuedAsNew
			turn.NewHistoryEvents = append(turn.NewHistoryEvents, model.HistoryEvent{
				EventID:        action.TaskID,
				Type:           model.EventContinueAsNew,
				Timestamp:      now,
				NewExecutionID: nextExecutionID,
			})
			turn.ContinueAsNewMessage = &model.TaskMessage{
				InstanceID:  req.InstanceID,
				ExecutionID: nextExecutionID,
				Event: model.HistoryEvent{
					Type:      model.EventExecutionStarted,
					Timestamp: now,
					Name:      status.Name,
					Version:   status.Version,
					Input:     action.CarryoverInput,
					Tags:      status.Tags,
				},
			}

		case model.ActionCompleteOrchestration:
			status.RuntimeStatus = action.Status
			status.SerializedOutput = action.Result
			status.FailureDetails = action.Failure
		}
	}

	turn.Status = status
	return turn
}
