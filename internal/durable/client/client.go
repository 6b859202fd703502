// Package client implements the orchestration client façade (spec.md §6):
// a thin layer over the instance store that turns each operation into the
// TaskMessage the store already knows how to route, plus the read-side
// status/query/purge operations the store exposes directly.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/kandev/durabletask/internal/common/errors"
	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/codec"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/durable/store"
)

// Config tunes the client's own behavior: WaitForStart's polling cadence
// and the codec used to encode/decode Go values at the store boundary.
type Config struct {
	// PollInterval bounds WaitForStart's polling loop. spec.md §6 requires
	// "Polling interval ≤ 500 ms"; the store itself has no started-event
	// waiter list the way it does for completion, so the client polls
	// TryGetStatus on a ticker instead of blocking on a channel.
	PollInterval time.Duration

	// Codec serializes/deserializes Go values passed to ScheduleNew,
	// RaiseEvent, and Terminate, and is used by Decode. Defaults to
	// codec.NewJSONCodec() (spec.md §9's pluggable serialization contract).
	// The client is the only user of the codec: the store, dispatcher, and
	// execution proxy carry payloads as opaque bytes.
	Codec codec.Codec
}

// DefaultConfig returns the client's default polling cadence and codec.
func DefaultConfig() Config {
	return Config{PollInterval: 200 * time.Millisecond, Codec: codec.NewJSONCodec()}
}

// Client is the orchestration client façade.
type Client struct {
	store  *store.Store
	cfg    Config
	codec  codec.Codec
	logger *logger.Logger
}

// New builds a Client over an already-constructed instance store.
func New(st *store.Store, cfg Config, log *logger.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewJSONCodec()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Client{store: st, cfg: cfg, codec: cfg.Codec, logger: log.WithFields(zap.String("component", "durable.client"))}
}

// ScheduleNewRequest is ScheduleNew's argument bundle (spec.md §6). Input
// accepts any Go value: already-serialized bytes (json.RawMessage/[]byte,
// the shape the HTTP API passes through) are carried verbatim, anything
// else is run through the client's Codec.
type ScheduleNewRequest struct {
	Name           string
	Version        string
	Input          any
	InstanceID     string // optional; a 32-char hex id is generated when empty
	ScheduledStart *time.Time
	Tags           map[string]string
}

// encode serializes v for storage in a HistoryEvent. A nil value encodes to
// nil bytes (no input/payload recorded). Already-serialized json.RawMessage
// or []byte pass through untouched rather than being re-wrapped by the
// codec, so the HTTP API's pre-parsed request bodies round-trip losslessly;
// any other Go value (e.g. a map or struct from a direct Go caller) goes
// through c.codec, exercising its wrapped-value envelope (spec.md §9).
func (c *Client) encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(val) == 0 {
			return nil, nil
		}
		return val, nil
	case []byte:
		if len(val) == 0 {
			return nil, nil
		}
		return val, nil
	default:
		return c.codec.Marshal(v)
	}
}

// Decode unmarshals previously-stored bytes (SerializedInput,
// SerializedOutput, or CustomStatus from a Status) into dest using the
// client's codec, mirroring encode on the read side.
func (c *Client) Decode(data []byte, dest any) error {
	return c.codec.Unmarshal(data, dest)
}

// newInstanceID mints a 32-char hex instance id, matching the dispatcher's
// own uuid.New()-with-hyphens-stripped convention for execution ids.
func newInstanceID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ScheduleNew starts a new orchestration instance by emitting an
// ExecutionStarted message (spec.md §6). Returns the instance id, generating
// one when req.InstanceID is empty.
func (c *Client) ScheduleNew(ctx context.Context, req ScheduleNewRequest) (string, error) {
	instanceID := req.InstanceID
	if instanceID == "" {
		instanceID = newInstanceID()
	}
	executionID := newInstanceID()

	input, err := c.encode(req.Input)
	if err != nil {
		return "", apperrors.BadRequest(fmt.Sprintf("failed to encode orchestration input: %v", err))
	}

	msg := model.TaskMessage{
		InstanceID:  instanceID,
		ExecutionID: executionID,
		Event: model.HistoryEvent{
			EventID:        model.UnassignedEventID,
			Type:           model.EventExecutionStarted,
			Timestamp:      time.Now().UTC(),
			Name:           req.Name,
			Version:        req.Version,
			Input:          input,
			ScheduledStart: req.ScheduledStart,
			Tags:           req.Tags,
		},
	}
	if err := c.store.AddMessage(msg); err != nil {
		return "", err
	}
	c.logger.Info("scheduled new instance", zap.String("instance_id", instanceID), zap.String("name", req.Name))
	return instanceID, nil
}

// RaiseEvent emits an EventRaised message to a running instance (spec.md §6).
// payload is encoded the same way as ScheduleNewRequest.Input.
func (c *Client) RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error {
	data, err := c.encode(payload)
	if err != nil {
		return apperrors.BadRequest(fmt.Sprintf("failed to encode event payload: %v", err))
	}
	return c.store.AddMessage(model.TaskMessage{
		InstanceID: instanceID,
		Event: model.HistoryEvent{
			EventID:   model.UnassignedEventID,
			Type:      model.EventRaised,
			Timestamp: time.Now().UTC(),
			EventName: eventName,
			EventData: data,
		},
	})
}

// Terminate emits an ExecutionTerminated message (spec.md §6). output is
// encoded the same way as ScheduleNewRequest.Input. recursive requests that
// any child sub-orchestrations be terminated too; this store does not keep
// a parent/child registry, so the flag is accepted but has no cascading
// effect — only the named instance is terminated.
func (c *Client) Terminate(ctx context.Context, instanceID string, output any, recursive bool) error {
	if recursive {
		c.logger.Warn("recursive terminate requested but no sub-orchestration registry exists; terminating only the named instance",
			zap.String("instance_id", instanceID))
	}
	data, err := c.encode(output)
	if err != nil {
		return apperrors.BadRequest(fmt.Sprintf("failed to encode termination output: %v", err))
	}
	return c.store.AddMessage(model.TaskMessage{
		InstanceID: instanceID,
		Event: model.HistoryEvent{
			EventID:   model.UnassignedEventID,
			Type:      model.EventExecutionTerminated,
			Timestamp: time.Now().UTC(),
			Result:    data,
		},
	})
}

// Suspend emits an ExecutionSuspended message (spec.md §6).
func (c *Client) Suspend(ctx context.Context, instanceID, reason string) error {
	return c.store.AddMessage(model.TaskMessage{
		InstanceID: instanceID,
		Event: model.HistoryEvent{
			EventID:   model.UnassignedEventID,
			Type:      model.EventExecutionSuspended,
			Timestamp: time.Now().UTC(),
			Reason:    reason,
		},
	})
}

// Resume emits an ExecutionResumed message (spec.md §6).
func (c *Client) Resume(ctx context.Context, instanceID, reason string) error {
	return c.store.AddMessage(model.TaskMessage{
		InstanceID: instanceID,
		Event: model.HistoryEvent{
			EventID:   model.UnassignedEventID,
			Type:      model.EventExecutionResumed,
			Timestamp: time.Now().UTC(),
			Reason:    reason,
		},
	})
}

// GetInstance reads the current status snapshot (spec.md §6). When
// includeIO is false the serialized input/output/custom-status payloads are
// stripped, matching QueryAll's own FetchInputsAndOutputs projection.
func (c *Client) GetInstance(instanceID string, includeIO bool) (*model.Status, error) {
	status, ok := c.store.TryGetStatus(instanceID)
	if !ok {
		return nil, apperrors.NotFound("instance", instanceID)
	}
	if !includeIO {
		status.SerializedInput = nil
		status.SerializedOutput = nil
		status.CustomStatus = nil
	}
	return status, nil
}

// WaitForStart blocks until the instance's status is no longer Pending, or
// ctx is cancelled (spec.md §6: "polling interval ≤ 500ms").
func (c *Client) WaitForStart(ctx context.Context, instanceID string) (*model.Status, error) {
	status, ok := c.store.TryGetStatus(instanceID)
	if ok && status.RuntimeStatus != model.StatusPending {
		return status, nil
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, ok := c.store.TryGetStatus(instanceID)
			if !ok {
				continue
			}
			if status.RuntimeStatus != model.StatusPending {
				return status, nil
			}
		}
	}
}

// WaitForCompletion blocks until the instance completes or ctx is cancelled
// (spec.md §6), delegating to the store's waiter-channel mechanism.
func (c *Client) WaitForCompletion(ctx context.Context, instanceID string) (*model.Status, error) {
	return c.store.WaitForCompletion(ctx, instanceID)
}

// Query returns one page of instances matching filter (spec.md §4.6, §6).
func (c *Client) Query(filter store.Query, continuationToken string) ([]*model.Status, string, error) {
	return c.store.QueryAll(filter, continuationToken)
}

// Purge removes instanceID if it exists and has completed, returning the
// count actually removed (0 or 1, spec.md §6/§7 Kind 3).
func (c *Client) Purge(instanceID string) int {
	return c.store.PurgeOne(instanceID)
}

// PurgeAll removes every completed instance matching filter, returning the
// count actually removed (spec.md §4.6, §6).
func (c *Client) PurgeAll(filter store.Query) int {
	return c.store.PurgeAll(filter)
}
