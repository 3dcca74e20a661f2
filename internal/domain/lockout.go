package domain

import "time"

// LockoutPolicy decides when repeated failures lock an account.
// It is pure state arithmetic over (attempts, lockedUntil, now); persistence
// and clocks stay with the caller so the decisions are trivially testable.
type LockoutPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// LockoutState is the counter pair the policy manipulates.
type LockoutState struct {
	Attempts    int
	LockedUntil *time.Time
}

// IsLocked reports whether a lock set at lockedUntil still holds at now.
// An expired lock is treated as absent; callers clear it on the next attempt.
func (p LockoutPolicy) IsLocked(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && now.Before(*lockedUntil)
}

// RecordFailure advances the counter for one failed attempt and reports
// whether this failure crossed the threshold.
func (p LockoutPolicy) RecordFailure(attempts int, now time.Time) (LockoutState, bool) {
	next := LockoutState{Attempts: attempts + 1}
	if next.Attempts >= p.MaxAttempts {
		until := now.Add(p.LockoutDuration)
		next.LockedUntil = &until
		return next, true
	}
	return next, false
}

// RecordSuccess resets the counter after a successful authentication.
func (p LockoutPolicy) RecordSuccess() LockoutState {
	return LockoutState{}
}

// RemainingAttempts reports how many failures are left before a lock,
// never going below zero.
func (p LockoutPolicy) RemainingAttempts(attempts int) int {
	remaining := p.MaxAttempts - attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}
