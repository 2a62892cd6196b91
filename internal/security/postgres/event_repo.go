// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

// Package postgres provides PostgreSQL persistence for security events.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/veilchat/veilchat/internal/security"
)

// Execer is the subset of pgxpool.Pool the repository needs. Satisfied
// by *pgxpool.Pool and by pgxmock pools in tests.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EventRepository implements security.EventRepository using PostgreSQL.
type EventRepository struct {
	pool Execer
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool Execer) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append stores one security event row.
func (r *EventRepository) Append(ctx context.Context, event security.Event) error {
	var userID *string
	if event.UserID != nil {
		s := event.UserID.String()
		userID = &s
	}

	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return oops.Code("EVENT_APPEND_FAILED").
				With("operation", "marshal details").
				Wrap(err)
		}
	}

	var ip, userAgent *string
	if event.IPAddress != "" {
		ip = &event.IPAddress
	}
	if event.UserAgent != "" {
		userAgent = &event.UserAgent
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_events (
			id, user_id, event_type, ip_address, user_agent,
			details, risk_level, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID.String(),
		userID,
		event.EventType,
		ip,
		userAgent,
		details,
		event.RiskLevel,
		event.CreatedAt,
	)
	if err != nil {
		return oops.Code("EVENT_APPEND_FAILED").
			With("operation", "insert security event").
			With("event_type", event.EventType).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ security.EventRepository = (*EventRepository)(nil)
