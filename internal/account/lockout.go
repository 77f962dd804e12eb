// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "time"

// Login lockout configuration.
const (
	// LockoutDuration is the time an account is locked after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that triggers a lockout.
	LockoutThreshold = 7
)

// IsLockedOut returns true if the lockout time is in the future.
func IsLockedOut(lockedUntil *time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(time.Now())
}

// LockoutRemaining returns how long the lockout still lasts, or zero.
func LockoutRemaining(lockedUntil *time.Time) time.Duration {
	if !IsLockedOut(lockedUntil) {
		return 0
	}
	return time.Until(*lockedUntil)
}

// ComputeLockoutTime returns the lockout timestamp for the given failure count.
// Returns nil if failures < LockoutThreshold.
func ComputeLockoutTime(failures int) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	lockout := time.Now().Add(LockoutDuration)
	return &lockout
}
