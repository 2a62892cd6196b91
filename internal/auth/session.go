// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session represents one authenticated login. Only the SHA256 hashes of
// the bearer tokens are stored.
type Session struct {
	ID                ulid.ULID
	UserID            ulid.ULID
	AccessTokenHash   string
	RefreshTokenHash  string
	ExpiresAt         time.Time
	RefreshExpiresAt  *time.Time
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	CreatedAt         time.Time
	LastUsedAt        time.Time
	IsActive          bool
}

// NewSession creates a validated Session.
func NewSession(userID ulid.ULID, accessTokenHash, refreshTokenHash string, expiresAt time.Time, refreshExpiresAt *time.Time, ipAddress, userAgent string) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if accessTokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("access token hash cannot be empty")
	}
	if refreshTokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("refresh token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	now := time.Now()
	return &Session{
		ID:               ulid.Make(),
		UserID:           userID,
		AccessTokenHash:  accessTokenHash,
		RefreshTokenHash: refreshTokenHash,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		CreatedAt:        now,
		LastUsedAt:       now,
		IsActive:         true,
	}, nil
}

// IsExpired returns true if the access token lifetime has passed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// CanRefresh returns true if the session is active and its refresh
// window has not closed.
func (s *Session) CanRefresh() bool {
	if !s.IsActive {
		return false
	}
	if s.RefreshExpiresAt == nil {
		return true
	}
	return time.Now().Before(*s.RefreshExpiresAt)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByRefreshTokenHash retrieves a session by refresh token hash.
	GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Rotate atomically replaces the session's token hashes and expiry
	// and touches last_used_at. The previous refresh token stops working
	// in the same statement that activates the new one.
	Rotate(ctx context.Context, id ulid.ULID, accessTokenHash, refreshTokenHash string, expiresAt time.Time, refreshExpiresAt *time.Time) error

	// Deactivate marks a session inactive without deleting it.
	Deactivate(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes all sessions for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes sessions whose refresh window has closed and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}
