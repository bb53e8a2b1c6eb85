package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError carries the concrete delay after which a retry may be
// attempted.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	retryAfter := e.RetryAfter
	if retryAfter < 0 {
		retryAfter = 0
	}
	if e.Name == "" {
		return fmt.Sprintf("%v: retry in %s", ErrCircuitOpen, retryAfter)
	}
	return fmt.Sprintf("%v for %s: retry in %s", ErrCircuitOpen, e.Name, retryAfter)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

type CircuitBreakerState string

const (
	CircuitClosed   CircuitBreakerState = "closed"
	CircuitOpen     CircuitBreakerState = "open"
	CircuitHalfOpen CircuitBreakerState = "half_open"
)

type CircuitBreakerConfig struct {
	Name              string
	FailureThreshold  int
	SuccessThreshold  int
	OpenTimeout       time.Duration
	HalfOpenMaxFlight int
}

// CircuitBreaker guards the document-store backend: after a run of
// failures it rejects calls immediately until the open timeout elapses,
// then probes with a bounded number of half-open requests.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg CircuitBreakerConfig

	state        CircuitBreakerState
	failureCount int
	successCount int
	openUntil    time.Time
	halfInFlight int
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenMaxFlight <= 0 {
		cfg.HalfOpenMaxFlight = 1
	}

	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refreshLocked(time.Now())
	return cb.state
}

// Execute runs fn under the breaker. Context cancellation is not counted
// against the backend.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	if errors.Is(err, context.Canceled) {
		cb.settleCanceled()
		return err
	}
	if err != nil {
		cb.settleFailure()
		return err
	}
	cb.settleSuccess()
	return nil
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.refreshLocked(now)

	switch cb.state {
	case CircuitOpen:
		return &CircuitOpenError{Name: cb.cfg.Name, RetryAfter: cb.openUntil.Sub(now)}
	case CircuitHalfOpen:
		if cb.halfInFlight >= cb.cfg.HalfOpenMaxFlight {
			return &CircuitOpenError{Name: cb.cfg.Name, RetryAfter: cb.openUntil.Sub(now)}
		}
		cb.halfInFlight++
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) settleSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		if cb.halfInFlight > 0 {
			cb.halfInFlight--
		}
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.resetLocked(CircuitClosed)
		}
		return
	}
	cb.failureCount = 0
}

func (cb *CircuitBreaker) settleFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		if cb.halfInFlight > 0 {
			cb.halfInFlight--
		}
		cb.tripLocked()
		return
	}
	cb.failureCount++
	if cb.failureCount >= cb.cfg.FailureThreshold {
		cb.tripLocked()
	}
}

func (cb *CircuitBreaker) settleCanceled() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen && cb.halfInFlight > 0 {
		cb.halfInFlight--
	}
}

func (cb *CircuitBreaker) refreshLocked(now time.Time) {
	if cb.state == CircuitOpen && !now.Before(cb.openUntil) {
		cb.resetLocked(CircuitHalfOpen)
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.resetLocked(CircuitOpen)
	cb.openUntil = time.Now().Add(cb.cfg.OpenTimeout)
}

func (cb *CircuitBreaker) resetLocked(state CircuitBreakerState) {
	cb.state = state
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfInFlight = 0
}
