// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

// Package security provides the append-only security audit trail and the
// irreversible account-destruction coordinator.
package security

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Security event types. The set is closed; unknown strings still log at
// the lowest risk rather than failing.
const (
	EventLoginSuccess         = "login_success"
	EventUserRegistered       = "user_registered"
	EventLoginFailed          = "login_failed"
	EventPasswordReset        = "password_reset"
	EventAccountLocked        = "account_locked"
	EventMultipleFailedLogins = "multiple_failed_logins"
	EventSuspiciousActivity   = "suspicious_activity"
	EventDestructionTriggered = "destruction_triggered"
)

// Risk level bounds.
const (
	MinRiskLevel = 1
	MaxRiskLevel = 10
)

// riskLevels maps event types to their triage severity.
var riskLevels = map[string]int{
	EventLoginSuccess:         1,
	EventUserRegistered:       2,
	EventLoginFailed:          3,
	EventPasswordReset:        4,
	EventAccountLocked:        5,
	EventMultipleFailedLogins: 6,
	EventSuspiciousActivity:   7,
	EventDestructionTriggered: 10,
}

// RiskLevel returns the 1-10 severity for an event type. Unknown types
// rate MinRiskLevel.
func RiskLevel(eventType string) int {
	if level, ok := riskLevels[eventType]; ok {
		return level
	}
	return MinRiskLevel
}

// Event is one append-only security audit record. UserID is nil for
// system-wide events.
type Event struct {
	ID        ulid.ULID
	UserID    *ulid.ULID
	EventType string
	IPAddress string
	UserAgent string
	Details   map[string]any
	RiskLevel int
	CreatedAt time.Time
}

// NewEvent builds an Event with its risk level derived from the type.
func NewEvent(userID *ulid.ULID, eventType, ipAddress, userAgent string, details map[string]any) Event {
	return Event{
		ID:        ulid.Make(),
		UserID:    userID,
		EventType: eventType,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Details:   details,
		RiskLevel: RiskLevel(eventType),
		CreatedAt: time.Now(),
	}
}

// EventRepository persists security events.
type EventRepository interface {
	// Append stores one event row.
	Append(ctx context.Context, event Event) error
}
