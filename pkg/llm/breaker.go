package llm

import (
	"sync"
	"time"
)

// BreakerState is a circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
	defaultHalfOpenMaxCalls = 3
)

// CircuitBreaker is a per-provider failure throttle. Closed passes calls
// through; after failureThreshold consecutive failures it opens and rejects
// until recoveryTimeout elapses, then admits up to halfOpenMaxCalls trials.
// Any trial failure reopens; any success closes and resets all counters.
type CircuitBreaker struct {
	mu sync.Mutex

	state         BreakerState
	failureCount  int
	lastFailure   time.Time
	halfOpenCalls int

	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenMaxCalls int

	// now is replaceable in tests.
	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker with default thresholds.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: defaultFailureThreshold,
		recoveryTimeout:  defaultRecoveryTimeout,
		halfOpenMaxCalls: defaultHalfOpenMaxCalls,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed right now. An open breaker whose
// cooldown has elapsed transitions to half-open and admits the call as a
// trial.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.recoveryTimeout {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.halfOpenCalls = 0
		fallthrough
	case BreakerHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMaxCalls {
			return ErrBreakerOpen
		}
		b.halfOpenCalls++
		return nil
	}
	return nil
}

// RecordSuccess closes the breaker and resets all counters.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failureCount = 0
	b.halfOpenCalls = 0
}

// RecordFailure counts a failure. A half-open trial failure reopens
// immediately; a closed breaker opens once the threshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.lastFailure = b.now()
		return
	}

	b.failureCount++
	if b.failureCount >= b.failureThreshold {
		b.state = BreakerOpen
		b.lastFailure = b.now()
	}
}

// State returns the current state and consecutive failure count.
func (b *CircuitBreaker) State() (BreakerState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Surface the pending open→half_open transition without admitting a call.
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
		return BreakerHalfOpen, b.failureCount
	}
	return b.state, b.failureCount
}
