// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/veilchat/veilchat/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool DB) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (
			id, user_id, access_token_hash, refresh_token_hash,
			expires_at, refresh_expires_at, ip_address, user_agent,
			device_fingerprint, created_at, last_used_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.AccessTokenHash,
		session.RefreshTokenHash,
		session.ExpiresAt,
		session.RefreshExpiresAt,
		session.IPAddress,
		session.UserAgent,
		session.DeviceFingerprint,
		session.CreatedAt,
		session.LastUsedAt,
		session.IsActive,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByRefreshTokenHash retrieves a session by its refresh token hash.
func (r *SessionRepository) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, access_token_hash, refresh_token_hash,
		       expires_at, refresh_expires_at, ip_address, user_agent,
		       device_fingerprint, created_at, last_used_at, is_active
		FROM sessions
		WHERE refresh_token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by refresh token hash").
			Wrap(err)
	}
	return session, nil
}

// Rotate swaps in new token hashes and expiry and touches last_used_at.
// The old refresh token hash stops matching the moment this commits.
func (r *SessionRepository) Rotate(ctx context.Context, id ulid.ULID, accessTokenHash, refreshTokenHash string, expiresAt time.Time, refreshExpiresAt *time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET access_token_hash = $2,
		    refresh_token_hash = $3,
		    expires_at = $4,
		    refresh_expires_at = $5,
		    last_used_at = NOW()
		WHERE id = $1 AND is_active
	`, id.String(), accessTokenHash, refreshTokenHash, expiresAt, refreshExpiresAt)
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "rotate session").
			With("session_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("session_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Deactivate marks a session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, last_used_at = NOW()
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate session").
			With("session_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("session_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes sessions whose refresh window has closed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE COALESCE(refresh_expires_at, expires_at) < NOW()
	`)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a Session.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr            string
		userIDStr        string
		accessTokenHash  string
		refreshTokenHash string
		expiresAt        time.Time
		refreshExpiresAt *time.Time
		ipAddress        string
		userAgent        string
		fingerprint      string
		createdAt        time.Time
		lastUsedAt       time.Time
		isActive         bool
	)

	err := row.Scan(
		&idStr,
		&userIDStr,
		&accessTokenHash,
		&refreshTokenHash,
		&expiresAt,
		&refreshExpiresAt,
		&ipAddress,
		&userAgent,
		&fingerprint,
		&createdAt,
		&lastUsedAt,
		&isActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.Session{
		ID:                id,
		UserID:            userID,
		AccessTokenHash:   accessTokenHash,
		RefreshTokenHash:  refreshTokenHash,
		ExpiresAt:         expiresAt,
		RefreshExpiresAt:  refreshExpiresAt,
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
		DeviceFingerprint: fingerprint,
		CreatedAt:         createdAt,
		LastUsedAt:        lastUsedAt,
		IsActive:          isActive,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
