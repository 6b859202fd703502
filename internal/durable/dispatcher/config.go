package dispatcher

import (
	"runtime"
	"time"
)

// Config tunes the orchestration and activity dispatcher loops (spec.md
// §4.4, §4.5, §5), grounded on the teacher's SchedulerConfig /
// DefaultSchedulerConfig pattern (orchestrator/scheduler/scheduler.go).
type Config struct {
	// MaxConcurrentOrchestrationTurns bounds how many orchestration
	// dispatcher loops run concurrently. <= 0 means hardware parallelism.
	MaxConcurrentOrchestrationTurns int
	// MaxConcurrentActivities bounds how many activity dispatcher loops run
	// concurrently. <= 0 means hardware parallelism.
	MaxConcurrentActivities int
	// TurnDeadline bounds how long a single orchestrator turn may run
	// before it's treated as abandoned (spec.md §9 open question #2). <= 0
	// disables the deadline.
	TurnDeadline time.Duration
	// SignalPollInterval is how often a dispatcher loop rechecks the
	// traffic signal while it's reset (spec.md §4.8's WaitAsync timeout).
	SignalPollInterval time.Duration
}

// DefaultConfig mirrors DefaultSchedulerConfig: hardware parallelism for
// concurrency, a 60 minute turn deadline, and a short signal poll.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentOrchestrationTurns: runtime.GOMAXPROCS(0),
		MaxConcurrentActivities:         runtime.GOMAXPROCS(0),
		TurnDeadline:                    60 * time.Minute,
		SignalPollInterval:              200 * time.Millisecond,
	}
}

func (c Config) orchestrationWorkers() int {
	if c.MaxConcurrentOrchestrationTurns > 0 {
		return c.MaxConcurrentOrchestrationTurns
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) activityWorkers() int {
	if c.MaxConcurrentActivities > 0 {
		return c.MaxConcurrentActivities
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) signalPollInterval() time.Duration {
	if c.SignalPollInterval > 0 {
		return c.SignalPollInterval
	}
	return 200 * time.Millisecond
}
