package ratelimiter_test

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/pkg/ratelimiter"
)

func newLimiter() (*ratelimiter.Limiter, *clock.TestClock) {
	clk := clock.NewTestClock(time.Unix(1700000000, 0))
	return ratelimiter.New(clk), clk
}

func TestInitialStateIsUnrestricted(t *testing.T) {
	limiter, _ := newLimiter()

	limited, remaining := limiter.Check()
	assert.False(t, limited)
	assert.Zero(t, remaining)
	assert.Equal(t, uint32(5), limiter.RemainingAttempts())
}

func TestFailuresBeforeThresholdDoNotLock(t *testing.T) {
	limiter, _ := newLimiter()

	for i := uint32(1); i < 5; i++ {
		locked, _, left := limiter.RecordFailure()
		assert.False(t, locked)
		assert.Equal(t, 5-i, left)
	}
	limited, _ := limiter.Check()
	assert.False(t, limited)
}

func TestLockoutAfterThresholdGrowsExponentially(t *testing.T) {
	limiter, clk := newLimiter()

	var lockout time.Duration
	for i := 0; i < 5; i++ {
		_, lockout, _ = limiter.RecordFailure()
	}
	assert.Equal(t, time.Second, lockout)

	limited, remaining := limiter.Check()
	require.True(t, limited)
	assert.Equal(t, time.Second, remaining)
	assert.Zero(t, limiter.RemainingAttempts())

	// Each further failure doubles the lockout.
	_, lockout, _ = limiter.RecordFailure()
	assert.Equal(t, 2*time.Second, lockout)
	_, lockout, _ = limiter.RecordFailure()
	assert.Equal(t, 4*time.Second, lockout)

	// Until the cap is hit.
	for i := 0; i < 20; i++ {
		_, lockout, _ = limiter.RecordFailure()
	}
	assert.Equal(t, 5*time.Minute, lockout)

	// An expired lockout no longer limits.
	clk.SetTime(clk.Now().Add(5*time.Minute + time.Second))
	limited, _ = limiter.Check()
	assert.False(t, limited)
}

func TestSuccessResetsCounter(t *testing.T) {
	limiter, _ := newLimiter()

	for i := 0; i < 3; i++ {
		limiter.RecordFailure()
	}
	limiter.RecordSuccess()
	assert.Equal(t, uint32(5), limiter.RemainingAttempts())
}

func TestIdlePeriodForgetsFailures(t *testing.T) {
	limiter, clk := newLimiter()

	for i := 0; i < 5; i++ {
		limiter.RecordFailure()
	}
	limited, _ := limiter.Check()
	require.True(t, limited)

	clk.SetTime(clk.Now().Add(16 * time.Minute))
	limited, _ = limiter.Check()
	assert.False(t, limited)
	assert.Equal(t, uint32(5), limiter.RemainingAttempts())

	// The next failure counts from a clean slate.
	locked, _, left := limiter.RecordFailure()
	assert.False(t, locked)
	assert.Equal(t, uint32(4), left)
}
