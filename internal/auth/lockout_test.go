// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veilchat/veilchat/internal/auth"
)

func TestLockoutPolicy(t *testing.T) {
	policy := auth.DefaultLockoutPolicy()

	t.Run("defaults", func(t *testing.T) {
		assert.Equal(t, 3, policy.LockThreshold)
		assert.Equal(t, 15*time.Minute, policy.LockDuration)
		assert.Equal(t, 5, policy.DestructionThreshold)
	})

	t.Run("destruction only at threshold", func(t *testing.T) {
		assert.False(t, policy.ShouldDestroy(4))
		assert.True(t, policy.ShouldDestroy(5))
		assert.True(t, policy.ShouldDestroy(6))
	})
}

func TestIsLockedOut(t *testing.T) {
	t.Run("nil is unlocked", func(t *testing.T) {
		assert.False(t, auth.IsLockedOut(nil))
	})

	t.Run("past lock is expired", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		assert.False(t, auth.IsLockedOut(&past))
	})

	t.Run("future lock holds", func(t *testing.T) {
		future := time.Now().Add(time.Minute)
		assert.True(t, auth.IsLockedOut(&future))
	})
}

func TestFailedAttemptState(t *testing.T) {
	lockedAt := time.Now().Add(15 * time.Minute)

	t.Run("lock just set at threshold", func(t *testing.T) {
		state := auth.FailedAttemptState{FailedLoginAttempts: 3, AccountLockedUntil: &lockedAt}
		assert.True(t, state.LockJustSet(3))
	})

	t.Run("below threshold is not a fresh lock", func(t *testing.T) {
		state := auth.FailedAttemptState{FailedLoginAttempts: 2}
		assert.False(t, state.LockJustSet(3))
	})

	t.Run("above threshold re-arms the window", func(t *testing.T) {
		state := auth.FailedAttemptState{FailedLoginAttempts: 4, AccountLockedUntil: &lockedAt}
		assert.True(t, state.LockJustSet(3))
	})

	t.Run("above threshold without a window is not a lock", func(t *testing.T) {
		state := auth.FailedAttemptState{FailedLoginAttempts: 4}
		assert.False(t, state.LockJustSet(3))
	})
}
