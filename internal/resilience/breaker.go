package resilience

import (
	"sync"
	"sync/atomic"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker is process-wide shared state (§5): the failure counter is
// atomic, the state and last-failure timestamp are protected by an
// RWMutex. A lock that cannot be acquired promptly degrades to reporting
// "still Open" rather than blocking the caller.
type CircuitBreaker struct {
	threshold       int64
	recoveryTimeout time.Duration

	mu          sync.RWMutex
	state       breakerState
	lastFailure time.Time

	failures atomic.Int64
}

func NewCircuitBreaker(threshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: int64(threshold), recoveryTimeout: recoveryTimeout}
}

// ErrOpen is returned by Check when the breaker is tripped.
type ErrOpen struct{}

func (ErrOpen) Error() string { return "circuit breaker open" }

// Check is consulted before each outbound call. Closed and HalfOpen both
// allow the call through (HalfOpen allows exactly the probe the caller is
// about to make); Open returns ErrOpen unless the recovery timeout has
// elapsed, in which case it transitions to HalfOpen and allows the call.
func (b *CircuitBreaker) Check() error {
	if !b.mu.TryRLock() {
		return ErrOpen{}
	}
	state := b.state
	last := b.lastFailure
	b.mu.RUnlock()

	if state != stateOpen {
		return nil
	}
	if time.Since(last) <= b.recoveryTimeout {
		return ErrOpen{}
	}

	if !b.mu.TryLock() {
		return ErrOpen{}
	}
	defer b.mu.Unlock()
	if b.state == stateOpen && time.Since(b.lastFailure) > b.recoveryTimeout {
		b.state = stateHalfOpen
	}
	if b.state == stateOpen {
		return ErrOpen{}
	}
	return nil
}

// RecordSuccess resets the failure counter and, from HalfOpen, closes the
// breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.failures.Store(0)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateHalfOpen || b.state == stateOpen {
		b.state = stateClosed
	}
}

// RecordFailure increments the failure counter and opens the breaker if
// the threshold is reached, or immediately re-opens from HalfOpen.
func (b *CircuitBreaker) RecordFailure() {
	n := b.failures.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = time.Now()
	if b.state == stateHalfOpen {
		b.state = stateOpen
		return
	}
	if n >= b.threshold {
		b.state = stateOpen
	}
}

// State exposes the breaker's current state string for metrics/health.
func (b *CircuitBreaker) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch b.state {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
