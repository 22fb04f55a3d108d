// Package circuitbreaker guards outbound gateway calls. Each named target
// (one per gateway endpoint group) gets its own closed/open/half-open state.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a target's circuit.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

const (
	defaultFailureThreshold         = 5
	defaultOpenStateTimeout         = 30 * time.Second
	defaultHalfOpenSuccessThreshold = 2
)

type targetState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureTime      time.Time
	openUntil            time.Time
}

// Settings overrides the breaker-wide thresholds for a single target. Zero
// fields fall back to the breaker-wide values.
type Settings struct {
	FailureThreshold         int
	OpenTimeout              time.Duration
	HalfOpenSuccessThreshold int
}

// CircuitBreaker tracks per-target health and blocks calls to unhealthy
// targets. In-memory only; state resets on restart.
type CircuitBreaker struct {
	mu                       sync.RWMutex
	targets                  map[string]*targetState
	overrides                map[string]Settings
	failureThreshold         int
	openStateTimeout         time.Duration
	halfOpenSuccessThreshold int
}

// NewCircuitBreaker creates a CircuitBreaker with default settings.
func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithSettings(defaultFailureThreshold, defaultOpenStateTimeout, defaultHalfOpenSuccessThreshold)
}

// NewCircuitBreakerWithSettings creates a CircuitBreaker with custom settings.
func NewCircuitBreakerWithSettings(failThreshold int, openTimeout time.Duration, halfOpenSuccess int) *CircuitBreaker {
	return &CircuitBreaker{
		targets:                  make(map[string]*targetState),
		overrides:                make(map[string]Settings),
		failureThreshold:         failThreshold,
		openStateTimeout:         openTimeout,
		halfOpenSuccessThreshold: halfOpenSuccess,
	}
}

// SetTargetSettings overrides the thresholds for one target. Intended for
// wiring time, before the target sees traffic.
func (cb *CircuitBreaker) SetTargetSettings(target string, s Settings) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.overrides[target] = s
}

// caller must hold the lock
func (cb *CircuitBreaker) settingsFor(target string) Settings {
	s := cb.overrides[target]
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = cb.failureThreshold
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = cb.openStateTimeout
	}
	if s.HalfOpenSuccessThreshold <= 0 {
		s.HalfOpenSuccessThreshold = cb.halfOpenSuccessThreshold
	}
	return s
}

// caller must hold the write lock
func (cb *CircuitBreaker) getTargetState(target string) *targetState {
	ts, exists := cb.targets[target]
	if !exists {
		ts = &targetState{state: Closed}
		cb.targets[target] = ts
	}
	return ts
}

// IsHealthy reports whether requests are currently allowed for a target.
// It takes the write lock because an expired Open circuit transitions to
// HalfOpen here.
func (cb *CircuitBreaker) IsHealthy(target string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ts := cb.getTargetState(target)

	switch ts.state {
	case Closed:
		return true
	case Open:
		if time.Now().After(ts.openUntil) {
			ts.state = HalfOpen
			ts.consecutiveSuccesses = 0
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		ts.state = Closed
		return true
	}
}

// RecordFailure records a failed call against the target.
func (cb *CircuitBreaker) RecordFailure(target string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ts := cb.getTargetState(target)
	ts.lastFailureTime = time.Now()
	settings := cb.settingsFor(target)

	switch ts.state {
	case Closed:
		ts.consecutiveFailures++
		if ts.consecutiveFailures >= settings.FailureThreshold {
			ts.state = Open
			ts.openUntil = time.Now().Add(settings.OpenTimeout)
		}
	case HalfOpen:
		// One failure while probing re-opens the circuit immediately.
		ts.state = Open
		ts.openUntil = time.Now().Add(settings.OpenTimeout)
		ts.consecutiveFailures = 0
		ts.consecutiveSuccesses = 0
	case Open:
		return
	}
}

// RecordSuccess records a successful call against the target.
func (cb *CircuitBreaker) RecordSuccess(target string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ts := cb.getTargetState(target)

	switch ts.state {
	case Closed:
		ts.consecutiveFailures = 0
	case HalfOpen:
		ts.consecutiveSuccesses++
		if ts.consecutiveSuccesses >= cb.settingsFor(target).HalfOpenSuccessThreshold {
			ts.state = Closed
			ts.consecutiveFailures = 0
			ts.consecutiveSuccesses = 0
		}
	case Open:
		// Successes only matter in Closed or HalfOpen; IsHealthy gates Open.
		return
	}
}

// GetState returns the current state of a target's circuit for monitoring.
// Read-only; it never performs the Open -> HalfOpen transition.
func (cb *CircuitBreaker) GetState(target string) State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	ts, exists := cb.targets[target]
	if !exists {
		return Closed
	}
	return ts.state
}
