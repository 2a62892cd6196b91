// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Membership tiers.
const (
	TierBasic   = "basic"
	TierPremium = "premium"
	TierElite   = "elite"
)

// Password length constraints, enforced before hashing.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// emailRegex is a pragmatic shape check; canonical validation is the
// unique constraint plus delivery of the verification email.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents an account identity record.
type User struct {
	ID                     ulid.ULID
	Email                  string
	PasswordHash           string
	MembershipTier         string
	FailedLoginAttempts    int
	AccountLockedUntil     *time.Time
	MFAEnabled             bool
	EmailVerified          bool
	EmailVerificationToken *string
	PasswordResetToken     *string
	PasswordResetExpires   *time.Time
	LastLogin              *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// UserPublic is the externally visible projection of a User. It never
// carries the password hash or any stored token.
type UserPublic struct {
	ID             ulid.ULID  `json:"id"`
	Email          string     `json:"email"`
	MembershipTier string     `json:"membership_tier"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	MFAEnabled     bool       `json:"mfa_enabled"`
	EmailVerified  bool       `json:"email_verified"`
}

// Public returns the externally visible projection of the user.
func (u *User) Public() UserPublic {
	return UserPublic{
		ID:             u.ID,
		Email:          u.Email,
		MembershipTier: u.MembershipTier,
		CreatedAt:      u.CreatedAt,
		LastLogin:      u.LastLogin,
		MFAEnabled:     u.MFAEnabled,
		EmailVerified:  u.EmailVerified,
	}
}

// IsLocked returns true if a lockout window is currently active.
func (u *User) IsLocked() bool {
	return IsLockedOut(u.AccountLockedUntil)
}

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").With("email", email).Errorf("email is not valid")
	}
	return nil
}

// ValidatePassword checks password length bounds.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// FailedAttemptState is the post-increment state returned by the atomic
// failed-attempt update.
type FailedAttemptState struct {
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
}

// LockJustSet reports whether this increment set a lock window. The
// update re-arms the window on every failure at or past the threshold,
// so failures after an expired window open a fresh one and report true
// again.
func (s FailedAttemptState) LockJustSet(threshold int) bool {
	return s.FailedLoginAttempts >= threshold && s.AccountLockedUntil != nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. A duplicate email yields an error
	// wrapping ErrUserExists.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// IncrementFailedAttempts atomically bumps the failed-login counter
	// and sets the lock window when the new count reaches the threshold.
	// The increment and the lock decision happen in one statement so two
	// concurrent failures can never both observe a stale count.
	IncrementFailedAttempts(ctx context.Context, id ulid.ULID, lockThreshold int, lockDuration time.Duration) (FailedAttemptState, error)

	// RecordLogin sets last_login to now, resets the failed-login counter
	// to zero, and clears any lock window.
	RecordLogin(ctx context.Context, id ulid.ULID) error

	// UpdatePassword updates only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
