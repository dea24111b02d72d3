// Package circuitbreaker guards calls to an unreliable downstream. After
// enough consecutive failures the breaker opens and rejects calls outright,
// then probes the downstream with a bounded number of trial calls before
// closing again.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the breaker's position in its closed/open/half-open cycle.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls rejected until the timeout elapses
	StateHalfOpen              // limited trial calls probe the downstream
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Config tunes the breaker thresholds.
type Config struct {
	// FailureThreshold is how many consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold is how many consecutive half-open successes close it.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// MaxRequestsHalfOpen caps in-flight trial calls while half-open.
	MaxRequestsHalfOpen int
}

// DefaultConfig returns thresholds suitable for a local TTS backend.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 3,
	}
}

// Stats is a snapshot of the breaker's counters.
type Stats struct {
	State            State
	FailureCount     int
	SuccessCount     int
	HalfOpenRequests int
	LastFailureTime  time.Time
	StateChangeTime  time.Time
}

// CircuitBreaker tracks call outcomes and decides whether the next call
// may proceed. All methods are safe for concurrent use.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	halfOpenCalls int
	lastFailure   time.Time
	changedAt     time.Time

	onStateChange func(from, to State)
}

// New creates a breaker in the closed state.
func New(cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{cfg: cfg, now: time.Now}
	cb.changedAt = cb.now()
	return cb
}

// OnStateChange registers a callback fired on every state transition. The
// callback runs on its own goroutine so it cannot deadlock the breaker.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn if the breaker admits the call and records the outcome.
// A rejected call returns an error without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.admit() {
		return fmt.Errorf("circuit breaker is %s, request rejected", cb.GetState())
	}

	if err := fn(); err != nil {
		cb.recordFailure()
		return fmt.Errorf("circuit breaker execution failed: %w", err)
	}

	cb.recordSuccess()
	return nil
}

// admit decides whether one more call may go downstream.
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.changedAt) < cb.cfg.Timeout {
			return false
		}
		// Timeout elapsed; this call becomes the first probe.
		cb.setState(StateHalfOpen)
		cb.halfOpenCalls = 1
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.MaxRequestsHalfOpen {
			return false
		}
		cb.halfOpenCalls++
		return true
	}
	return true
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// One failed probe is enough evidence the downstream is still broken.
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes++

	if cb.state == StateHalfOpen && cb.successes >= cb.cfg.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

// setState transitions the breaker and resets counters. Callers hold cb.mu.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}

	prev := cb.state
	cb.state = next
	cb.changedAt = cb.now()
	if next != StateOpen {
		cb.failures = 0
		cb.successes = 0
		cb.halfOpenCalls = 0
	}

	if cb.onStateChange != nil {
		go cb.onStateChange(prev, next)
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:            cb.state,
		FailureCount:     cb.failures,
		SuccessCount:     cb.successes,
		HalfOpenRequests: cb.halfOpenCalls,
		LastFailureTime:  cb.lastFailure,
		StateChangeTime:  cb.changedAt,
	}
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}
