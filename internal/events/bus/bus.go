// Package bus provides the event bus abstraction used as the status-change
// notifier's publish-only side channel (SPEC_FULL.md §4.9). The engine never
// subscribes to its own events — it only ever emits them for external
// observers — so the interface is narrowed to Publish/Close rather than
// carrying the full pub-sub/request-reply contract a general message-bus
// client would need.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a message on the event bus
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"` // Service that produced the event
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a UUID and current timestamp
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventBus is the publish-only surface the notifier depends on.
type EventBus interface {
	// Publish sends an event to a subject
	Publish(ctx context.Context, subject string, event *Event) error

	// Close releases any underlying connection
	Close()
}
