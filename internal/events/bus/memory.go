package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/durabletask/internal/common/logger"
)

// MemoryEventBus is an EventBus that only logs published events. It backs
// durabletaskd when no NATS URL is configured: the notifier still gets a
// working publish sink, there's just nothing external listening.
type MemoryEventBus struct {
	mu     sync.RWMutex
	logger *logger.Logger
	closed bool
}

// NewMemoryEventBus creates a new in-memory event bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryEventBus{logger: log}
}

// Publish records the event at debug level. There are no subscribers to
// fan out to in-process — the notifier's only consumer in this mode is
// whoever reads the logs.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return fmt.Errorf("event bus is closed")
	}

	b.logger.Debug("published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return nil
}

// Close marks the bus closed; further Publish calls fail.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.logger.Info("memory event bus closed")
}
