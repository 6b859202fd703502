package bus

import (
	"context"
	"testing"
)

func TestMemoryEventBusPublishSucceeds(t *testing.T) {
	b := NewMemoryEventBus(nil)
	event := NewEvent("instance.status_changed", "durabletask-core", map[string]interface{}{"instanceId": "i1"})

	if err := b.Publish(context.Background(), "durabletask.instance.i1", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestMemoryEventBusPublishAfterCloseFails(t *testing.T) {
	b := NewMemoryEventBus(nil)
	b.Close()

	event := NewEvent("instance.status_changed", "durabletask-core", nil)
	if err := b.Publish(context.Background(), "durabletask.instance.i1", event); err == nil {
		t.Fatal("expected Publish to fail after Close")
	}
}
