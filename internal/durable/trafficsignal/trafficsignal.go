// Package trafficsignal implements the manual-reset gate described in
// spec.md §4.8: both dispatcher loops wait on it before doing any work, and
// it is set/reset as workers attach and detach from the executor proxy.
//
// Grounded on the teacher's closed-channel-as-signal idiom (scheduler.stopCh
// in internal/orchestrator/scheduler/scheduler.go, closed once to broadcast
// to every waiter), generalized here to a channel that can be reset and
// re-closed any number of times.
package trafficsignal

import (
	"context"
	"sync"
	"time"
)

// Signal is a manual-reset event: Set opens the gate for every current and
// future waiter until Reset closes it again.
type Signal struct {
	mu   sync.Mutex
	open chan struct{}
	set  bool
}

// New creates a Signal in the reset (blocked) state.
func New() *Signal {
	return &Signal{open: make(chan struct{})}
}

// Set opens the gate. Idempotent.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	close(s.open)
}

// Reset closes the gate. Idempotent.
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return
	}
	s.set = false
	s.open = make(chan struct{})
}

// IsSet reports whether the gate is currently open.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// WaitAsync blocks until the gate is open, timeout elapses, or ctx is
// cancelled. Returns true if the gate was open before either of the other
// two conditions occurred.
func (s *Signal) WaitAsync(timeout time.Duration, ctx context.Context) bool {
	s.mu.Lock()
	ch := s.open
	s.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
