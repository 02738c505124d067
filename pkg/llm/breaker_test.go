package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.NoError(t, b.Allow(), "breaker must stay closed below the threshold")

	b.RecordFailure()
	state, failures := b.State()
	assert.Equal(t, BreakerOpen, state)
	assert.Equal(t, 5, failures)
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker()
	b.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	// Cooldown elapsed: up to 3 trial calls admitted.
	now = now.Add(61 * time.Second)
	for i := 0; i < 3; i++ {
		assert.NoError(t, b.Allow())
	}
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen, "trial slots exhausted")
}

func TestBreaker_TrialSuccessClosesAndResets(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker()
	b.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	state, failures := b.State()
	assert.Equal(t, BreakerClosed, state)
	assert.Equal(t, 0, failures, "failure count resets on recovery to closed")
}

func TestBreaker_TrialFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker()
	b.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	// Reopening restarts the cooldown from the trial failure.
	now = now.Add(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
	now = now.Add(31 * time.Second)
	assert.NoError(t, b.Allow())
}
