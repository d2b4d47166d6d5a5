package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is the breaker's view of provider health.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	// Zero or less disables the breaker.
	Threshold int
	// ResetAfter is how long the circuit stays open before one probe is let through.
	ResetAfter time.Duration
}

// CircuitBreaker stops calling a provider that keeps failing. After ResetAfter
// a single probe request is allowed; its outcome closes or re-opens the circuit.
type CircuitBreaker struct {
	mu               sync.Mutex
	cfg              CircuitBreakerConfig
	state            CircuitState
	consecutiveFails int
	openedAt         time.Time
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// Allow returns nil when a request may proceed, or an ErrorTypeCircuit error.
func (cb *CircuitBreaker) Allow() error {
	if cb.cfg.Threshold <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		since := cb.now().Sub(cb.openedAt)
		if since < cb.cfg.ResetAfter {
			return NewError(ErrorTypeCircuit,
				fmt.Sprintf("LLM provider unavailable after %d consecutive failures; retry in %s",
					cb.consecutiveFails, (cb.cfg.ResetAfter - since).Round(time.Second)),
				false, nil)
		}
		cb.state = CircuitHalfOpen
		return nil
	case CircuitHalfOpen:
		return NewError(ErrorTypeCircuit, "LLM provider recovery probe in flight", false, nil)
	default:
		return nil
	}
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure, opening the circuit at the threshold or
// immediately when the half-open probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	if cb.state == CircuitHalfOpen || (cb.cfg.Threshold > 0 && cb.consecutiveFails >= cb.cfg.Threshold) {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
