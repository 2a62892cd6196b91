// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilchat/veilchat/internal/auth"
	"github.com/veilchat/veilchat/internal/auth/postgres"
)

var userColumns = []string{
	"id", "email", "password_hash", "membership_tier",
	"failed_login_attempts", "account_locked_until",
	"mfa_enabled", "email_verified", "email_verification_token",
	"password_reset_token", "password_reset_expires",
	"last_login", "created_at", "updated_at",
}

func userRow(mock pgxmock.PgxPoolIface, user *auth.User) *pgxmock.Rows {
	return mock.NewRows(userColumns).AddRow(
		user.ID.String(), user.Email, user.PasswordHash, user.MembershipTier,
		user.FailedLoginAttempts, user.AccountLockedUntil,
		user.MFAEnabled, user.EmailVerified, user.EmailVerificationToken,
		user.PasswordResetToken, user.PasswordResetExpires,
		user.LastLogin, user.CreatedAt, user.UpdatedAt,
	)
}

func sampleUser() *auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.User{
		ID:             ulid.Make(),
		Email:          "user@example.com",
		PasswordHash:   "$argon2id$v=19$m=65536,t=3,p=4$salt$hash",
		MembershipTier: auth.TierBasic,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestUserRepositoryCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := sampleUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.PasswordHash, user.MembershipTier,
				user.FailedLoginAttempts, user.AccountLockedUntil,
				user.MFAEnabled, user.EmailVerified, user.EmailVerificationToken,
				user.PasswordResetToken, user.PasswordResetExpires,
				user.LastLogin, user.CreatedAt, user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.Create(ctx, user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to ErrUserExists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := sampleUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.PasswordHash, user.MembershipTier,
				user.FailedLoginAttempts, user.AccountLockedUntil,
				user.MFAEnabled, user.EmailVerified, user.EmailVerificationToken,
				user.PasswordResetToken, user.PasswordResetExpires,
				user.LastLogin, user.CreatedAt, user.UpdatedAt).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		repo := postgres.NewUserRepository(mock)
		err = repo.Create(ctx, user)
		assert.ErrorIs(t, err, auth.ErrUserExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepositoryGet(t *testing.T) {
	ctx := context.Background()

	t.Run("get by id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := sampleUser()
		mock.ExpectQuery(`FROM users\s+WHERE id`).
			WithArgs(user.ID.String()).
			WillReturnRows(userRow(mock, user))

		repo := postgres.NewUserRepository(mock)
		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, user.Email, got.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get by email", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := sampleUser()
		mock.ExpectQuery(`FROM users\s+WHERE LOWER\(email\)`).
			WithArgs(user.Email).
			WillReturnRows(userRow(mock, user))

		repo := postgres.NewUserRepository(mock)
		got, err := repo.GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectQuery(`FROM users\s+WHERE id`).
			WithArgs(id.String()).
			WillReturnRows(mock.NewRows(userColumns))

		repo := postgres.NewUserRepository(mock)
		_, err = repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepositoryIncrementFailedAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("returns post-increment state", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		lockedUntil := time.Now().Add(15 * time.Minute)
		mock.ExpectQuery(`UPDATE users`).
			WithArgs(id.String(), 3, 15*time.Minute).
			WillReturnRows(mock.NewRows([]string{"failed_login_attempts", "account_locked_until"}).
				AddRow(3, &lockedUntil))

		repo := postgres.NewUserRepository(mock)
		state, err := repo.IncrementFailedAttempts(ctx, id, 3, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 3, state.FailedLoginAttempts)
		require.NotNil(t, state.AccountLockedUntil)
		assert.True(t, state.LockJustSet(3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("below threshold leaves lock unset", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectQuery(`UPDATE users`).
			WithArgs(id.String(), 3, 15*time.Minute).
			WillReturnRows(mock.NewRows([]string{"failed_login_attempts", "account_locked_until"}).
				AddRow(1, (*time.Time)(nil)))

		repo := postgres.NewUserRepository(mock)
		state, err := repo.IncrementFailedAttempts(ctx, id, 3, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, state.FailedLoginAttempts)
		assert.Nil(t, state.AccountLockedUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectQuery(`UPDATE users`).
			WithArgs(id.String(), 3, 15*time.Minute).
			WillReturnRows(mock.NewRows([]string{"failed_login_attempts", "account_locked_until"}))

		repo := postgres.NewUserRepository(mock)
		_, err = repo.IncrementFailedAttempts(ctx, id, 3, 15*time.Minute)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepositoryRecordLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("resets counters", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE users`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.RecordLogin(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE users`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewUserRepository(mock)
		err = repo.RecordLogin(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepositoryUpdatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("updates hash", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "new-hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.UpdatePassword(ctx, id, "new-hash"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "new-hash").
			WillReturnError(errors.New("connection refused"))

		repo := postgres.NewUserRepository(mock)
		err = repo.UpdatePassword(ctx, id, "new-hash")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
