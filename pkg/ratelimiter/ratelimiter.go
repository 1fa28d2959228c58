// Package ratelimiter throttles repeated failures of security-sensitive
// operations, unlock attempts in particular, with an exponential lockout.
// State lives in memory only, so it cannot be bypassed by wiping persisted
// data.
package ratelimiter

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

const (
	// maxAttempts is the number of failures tolerated before a lockout.
	maxAttempts = 5
	// baseLockout is the first lockout duration, doubled on every further
	// failure up to maxLockout.
	baseLockout = time.Second
	maxLockout  = 5 * time.Minute
	// resetAfter is the idle period after which the failure counter is
	// forgotten.
	resetAfter = 15 * time.Minute
)

// Limiter counts failed attempts of one operation and locks it out with an
// exponentially growing delay once too many have accumulated. Safe for
// concurrent use.
type Limiter struct {
	clk clock.Clock

	mtx         sync.Mutex
	attempts    uint32
	lastAttempt time.Time
	lockedUntil time.Time
}

// New returns a Limiter in its unrestricted initial state.
func New(clk clock.Clock) *Limiter {
	return &Limiter{clk: clk}
}

// Check returns whether the operation is currently locked out and for how
// much longer.
func (l *Limiter) Check() (bool, time.Duration) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	now := l.clk.Now()
	if l.maybeReset(now) {
		return false, 0
	}
	if l.lockedUntil.After(now) {
		return true, l.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailure counts a failed attempt. It returns whether the failure
// triggered a lockout, the lockout duration and the attempts left before the
// next one.
func (l *Limiter) RecordFailure() (bool, time.Duration, uint32) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	now := l.clk.Now()
	l.maybeReset(now)

	l.attempts++
	l.lastAttempt = now

	if l.attempts >= maxAttempts {
		lockout := lockoutFor(l.attempts)
		l.lockedUntil = now.Add(lockout)
		return true, lockout, 0
	}
	return false, 0, maxAttempts - l.attempts
}

// RecordSuccess resets the limiter to its initial state.
func (l *Limiter) RecordSuccess() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.attempts = 0
	l.lastAttempt = time.Time{}
	l.lockedUntil = time.Time{}
}

// RemainingAttempts returns how many failures are left before the next
// lockout.
func (l *Limiter) RemainingAttempts() uint32 {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.maybeReset(l.clk.Now()) {
		return maxAttempts
	}
	if l.attempts >= maxAttempts {
		return 0
	}
	return maxAttempts - l.attempts
}

// maybeReset forgets stale state once the idle period has elapsed. Must be
// called with the mutex held.
func (l *Limiter) maybeReset(now time.Time) bool {
	if l.lastAttempt.IsZero() || now.Before(l.lastAttempt.Add(resetAfter)) {
		return false
	}
	l.attempts = 0
	l.lastAttempt = time.Time{}
	l.lockedUntil = time.Time{}
	return true
}

// lockoutFor doubles the base lockout for every failure past the threshold:
// 1s, 2s, 4s, 8s, capped at maxLockout.
func lockoutFor(attempts uint32) time.Duration {
	exponent := attempts - maxAttempts
	if exponent > 16 {
		return maxLockout
	}
	lockout := baseLockout << exponent
	if lockout > maxLockout {
		return maxLockout
	}
	return lockout
}
