// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package auth

import "time"

// Lockout and destruction defaults.
const (
	// DefaultLockThreshold is the failure count that opens a lock window.
	DefaultLockThreshold = 3

	// DefaultLockDuration is how long a lock window stays open.
	DefaultLockDuration = 15 * time.Minute

	// DefaultDestructionThreshold is the failure count that triggers
	// irreversible account destruction.
	DefaultDestructionThreshold = 5
)

// LockoutPolicy holds the failed-attempt thresholds. The destruction
// threshold must exceed the lock threshold; an account always passes
// through a lock window before it can be destroyed.
type LockoutPolicy struct {
	LockThreshold        int
	LockDuration         time.Duration
	DestructionThreshold int
}

// DefaultLockoutPolicy returns the default thresholds.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		LockThreshold:        DefaultLockThreshold,
		LockDuration:         DefaultLockDuration,
		DestructionThreshold: DefaultDestructionThreshold,
	}
}

// normalize fills zero-valued fields with defaults.
func (p LockoutPolicy) normalize() LockoutPolicy {
	def := DefaultLockoutPolicy()
	if p.LockThreshold <= 0 {
		p.LockThreshold = def.LockThreshold
	}
	if p.LockDuration <= 0 {
		p.LockDuration = def.LockDuration
	}
	if p.DestructionThreshold <= 0 {
		p.DestructionThreshold = def.DestructionThreshold
	}
	return p
}

// ShouldDestroy reports whether the failure count has reached the
// destruction threshold.
func (p LockoutPolicy) ShouldDestroy(failures int) bool {
	return failures >= p.DestructionThreshold
}

// IsLockedOut returns true if the lockout time is in the future.
func IsLockedOut(lockedUntil *time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(time.Now())
}
