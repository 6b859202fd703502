// Package notify publishes instance status-change events to an EventBus
// (SPEC_FULL.md §4.9). It is a pure fan-out side-channel: nil-safe, never on
// the commit critical path, and never gates dispatch.
package notify

import (
	"context"
	"fmt"

	"github.com/kandev/durabletask/internal/common/logger"
	"github.com/kandev/durabletask/internal/durable/model"
	"github.com/kandev/durabletask/internal/events/bus"
	"go.uber.org/zap"
)

const (
	// EventInstanceStatusChanged is published whenever SaveTurn commits a
	// new Status for an instance.
	EventInstanceStatusChanged = "instance.status_changed"
)

// Notifier publishes instance lifecycle events. A nil *Notifier is valid and
// a no-op, mirroring the teacher's nil-safe logger default pattern.
type Notifier struct {
	eventBus  bus.EventBus
	namespace string
	logger    *logger.Logger
}

// New creates a Notifier backed by the given EventBus. Pass a nil EventBus
// to get a no-op notifier.
func New(eventBus bus.EventBus, namespace string, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Default()
	}
	return &Notifier{
		eventBus:  eventBus,
		namespace: namespace,
		logger:    log.WithFields(zap.String("component", "notify")),
	}
}

// Subject returns the subject a given instance's events are published on.
func (n *Notifier) Subject(instanceID string) string {
	if n.namespace != "" {
		return fmt.Sprintf("%s.durabletask.instance.%s", n.namespace, instanceID)
	}
	return fmt.Sprintf("durabletask.instance.%s", instanceID)
}

// StatusChanged publishes an instance.status_changed event. Failures are
// logged, never returned: the notifier is telemetry, not part of the
// instance store's atomicity contract (spec.md §4.1).
func (n *Notifier) StatusChanged(status *model.Status) {
	if n == nil || n.eventBus == nil || status == nil {
		return
	}

	event := bus.NewEvent(EventInstanceStatusChanged, "durabletask-core", map[string]any{
		"instanceId":    status.InstanceID,
		"executionId":   status.ExecutionID,
		"runtimeStatus": string(status.RuntimeStatus),
	})

	if err := n.eventBus.Publish(context.Background(), n.Subject(status.InstanceID), event); err != nil {
		n.logger.Warn("failed to publish instance status change",
			zap.String("instance_id", status.InstanceID),
			zap.Error(err))
	}
}
