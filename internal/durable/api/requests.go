package api

import (
	"encoding/json"
	"time"
)

// ScheduleNewRequest is the POST /api/v1/instances body.
type ScheduleNewRequest struct {
	Name           string            `json:"name" binding:"required"`
	Version        string            `json:"version,omitempty"`
	Input          json.RawMessage   `json:"input,omitempty"`
	InstanceID     string            `json:"instanceId,omitempty"`
	ScheduledStart *time.Time        `json:"scheduledStartTime,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// RaiseEventRequest is the POST /api/v1/instances/:id/events body.
type RaiseEventRequest struct {
	EventName string          `json:"eventName" binding:"required"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// TerminateRequest is the POST /api/v1/instances/:id/terminate body.
type TerminateRequest struct {
	Output    json.RawMessage `json:"output,omitempty"`
	Recursive bool            `json:"recursive,omitempty"`
}

// SuspendResumeRequest is the shared body for suspend and resume.
type SuspendResumeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// InstanceResponse mirrors model.Status for the wire, keeping the API's
// JSON field names independent of the store's internal struct tags.
type InstanceResponse struct {
	InstanceID      string            `json:"instanceId"`
	ExecutionID     string            `json:"executionId"`
	Name            string            `json:"name"`
	Version         string            `json:"version,omitempty"`
	RuntimeStatus   string            `json:"runtimeStatus"`
	CreatedAt       time.Time         `json:"createdAt"`
	LastUpdatedAt   time.Time         `json:"lastUpdatedAt"`
	Input           json.RawMessage   `json:"input,omitempty"`
	Output          json.RawMessage   `json:"output,omitempty"`
	CustomStatus    json.RawMessage   `json:"customStatus,omitempty"`
	FailureMessage  string            `json:"failureMessage,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// QueryResponse is the paginated GET /api/v1/instances body.
type QueryResponse struct {
	Instances         []InstanceResponse `json:"instances"`
	ContinuationToken string              `json:"continuationToken,omitempty"`
}

// PurgeResponse reports how many instances a purge removed.
type PurgeResponse struct {
	PurgedCount int `json:"purgedCount"`
}
