// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package security_test

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"

	"github.com/veilchat/veilchat/internal/security"
)

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		eventType string
		want      int
	}{
		{security.EventLoginSuccess, 1},
		{security.EventUserRegistered, 2},
		{security.EventLoginFailed, 3},
		{security.EventPasswordReset, 4},
		{security.EventAccountLocked, 5},
		{security.EventMultipleFailedLogins, 6},
		{security.EventSuspiciousActivity, 7},
		{security.EventDestructionTriggered, 10},
		{"never_heard_of_it", 1},
		{"", 1},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, security.RiskLevel(tt.eventType))
		})
	}
}

func TestNewEvent(t *testing.T) {
	t.Run("derives risk level from type", func(t *testing.T) {
		userID := ulid.Make()
		event := security.NewEvent(&userID, security.EventDestructionTriggered, "192.0.2.1", "agent", map[string]any{"failed_attempts": 5})

		assert.NotEqual(t, ulid.ULID{}, event.ID)
		assert.Equal(t, &userID, event.UserID)
		assert.Equal(t, 10, event.RiskLevel)
		assert.Equal(t, "192.0.2.1", event.IPAddress)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("allows nil user for system events", func(t *testing.T) {
		event := security.NewEvent(nil, security.EventSuspiciousActivity, "", "", nil)
		assert.Nil(t, event.UserID)
		assert.Equal(t, 7, event.RiskLevel)
	})
}
