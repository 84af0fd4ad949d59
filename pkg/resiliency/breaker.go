// Package resiliency provides the circuit breaker and retrying HTTP client
// used by the egress pipeline to guard calls to downstream aliases.
package resiliency

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Breaker defaults mandated for downstream alias calls.
const (
	DefaultThreshold    = 5
	DefaultCooldown     = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultCallTimeout  = 10 * time.Second
)

// CircuitBreaker is a Closed/Open/Half-Open state machine keyed externally
// by alias (callers hold one breaker per alias).
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	cooldown     time.Duration
	state        State
	halfOpenUsed bool
}

// NewCircuitBreaker starts Closed.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		state:     Closed,
	}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once the cooldown has elapsed. Half-Open admits exactly one probe until
// Success or Failure resolves it.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Open:
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.state = HalfOpen
			cb.halfOpenUsed = true
			return true
		}
		return false
	case HalfOpen:
		if cb.halfOpenUsed {
			return false
		}
		cb.halfOpenUsed = true
		return true
	default:
		return true
	}
}

// Success resets the breaker to Closed.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.failureCount = 0
	cb.halfOpenUsed = false
}

// Failure records a failure, opening the breaker once threshold
// consecutive failures accumulate (or immediately, from Half-Open).
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = time.Now()
	if cb.state == HalfOpen {
		cb.state = Open
		cb.halfOpenUsed = false
		return
	}
	cb.failureCount++
	if cb.failureCount >= cb.threshold {
		cb.state = Open
	}
}

// State returns the current state, for health-status reporting.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerRegistry hands out one breaker per alias, created lazily.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for alias, creating it with the package defaults
// on first use.
func (r *BreakerRegistry) Get(alias string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[alias]
	if !ok {
		b = NewCircuitBreaker(alias, DefaultThreshold, DefaultCooldown)
		r.breakers[alias] = b
	}
	return b
}
