// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/veilchat/veilchat/internal/security"
)

// LoginStepTTL is the lifetime of the marker returned by InitiateLogin.
const LoginStepTTL = 5 * time.Minute

// dummyPasswordHash is verified when a login targets a nonexistent email
// so response time does not reveal whether the account exists. It is not
// a credential; no password hashes to it.
//
//nolint:gosec // G101: intentionally fake hash for timing uniformity, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// EventLogger records security events. Implementations are best-effort
// and must never block or fail the calling flow.
type EventLogger interface {
	Log(userID *ulid.ULID, eventType, ipAddress, userAgent string, details map[string]any)
}

// Destroyer irreversibly erases a user account.
type Destroyer interface {
	Trigger(ctx context.Context, userID ulid.ULID, triggerType string) error
}

// LoginStep is the marker returned by InitiateLogin. It prepares the
// client UX (password prompt, MFA notice); it is not a security boundary
// and CompleteLogin does not consult it.
type LoginStep struct {
	Step        int       `json:"step"`
	SessionID   string    `json:"session_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	RequiresMFA bool      `json:"requires_mfa"`
	Message     string    `json:"message"`
}

// LoginResponse is the result of a completed login or refresh.
type LoginResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         UserPublic `json:"user"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Lockout         LockoutPolicy
	RefreshTokenTTL time.Duration
	Logger          *slog.Logger
}

// Service orchestrates registration, login, failed-attempt tracking, and
// token verification. It holds no mutable state of its own; correctness
// under concurrent requests rests on the store's atomic updates.
type Service struct {
	users      UserRepository
	sessions   SessionRepository
	hasher     PasswordHasher
	tokens     *TokenIssuer
	events     EventLogger
	destroyer  Destroyer
	policy     LockoutPolicy
	refreshTTL time.Duration
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, tokens *TokenIssuer, events EventLogger, destroyer Destroyer, opts Options) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("session repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("token issuer is required")
	}
	if events == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("event logger is required")
	}
	if destroyer == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("destroyer is required")
	}

	refreshTTL := opts.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		events:     events,
		destroyer:  destroyer,
		policy:     opts.Lockout.normalize(),
		refreshTTL: refreshTTL,
		logger:     logger.With("component", "auth"),
	}, nil
}

// Register creates a new account. The email must be unused; tier defaults
// to basic. An email verification token is generated and stored with the
// user for the delivery collaborator to send.
func (s *Service) Register(ctx context.Context, email, password, tier string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if tier == "" {
		tier = TierBasic
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	verificationToken, err := GenerateOpaqueToken()
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "generate verification token").
			Wrap(err)
	}

	now := time.Now()
	user := &User{
		ID:                     ulid.Make(),
		Email:                  email,
		PasswordHash:           passwordHash,
		MembershipTier:         tier,
		EmailVerificationToken: &verificationToken,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, oops.Code("AUTH_USER_EXISTS").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	s.events.Log(&user.ID, security.EventUserRegistered, "", "", nil)

	return user, nil
}

// InitiateLogin returns a short-lived step marker for the client: whether
// MFA will be required and how long the prompt is valid. No password is
// checked here, and CompleteLogin does not consult the returned session
// id; binding the two steps belongs to the future MFA challenge flow.
func (s *Service) InitiateLogin(ctx context.Context, email, ipAddress string) (*LoginStep, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrNotFound)
		}
		return nil, oops.Code("AUTH_INITIATE_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if user.IsLocked() {
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.AccountLockedUntil).
			Wrap(ErrAccountLocked)
	}

	marker, err := GenerateOpaqueToken()
	if err != nil {
		return nil, oops.Code("AUTH_INITIATE_FAILED").
			With("operation", "generate step marker").
			Wrap(err)
	}

	return &LoginStep{
		Step:        1,
		SessionID:   marker,
		ExpiresAt:   time.Now().Add(LoginStepTTL),
		RequiresMFA: user.MFAEnabled,
		Message:     "enter your password",
	}, nil
}

// CompleteLogin verifies credentials and creates a session. A wrong
// password increments the failed-attempt counter, which may lock the
// account or, at the destruction threshold, erase it entirely.
func (s *Service) CompleteLogin(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Verify against the dummy hash so a missing account costs the
			// same as a wrong password, then report the same error.
			s.hasher.Verify(password, dummyPasswordHash)
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if user.IsLocked() {
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.AccountLockedUntil).
			Wrap(ErrAccountLocked)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		if _, err := s.IncrementFailedAttempts(ctx, user.ID, ipAddress); err != nil {
			if errors.Is(err, ErrDestructionTriggered) {
				return nil, err
			}
			// The increment itself failed; the attempt still fails closed.
			s.logger.Error("failed to record failed login attempt",
				"user_id", user.ID.String(),
				"error", err,
			)
		}
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	// Re-check the lock with fresh state: a concurrent failed attempt may
	// have locked the account between the load above and now.
	fresh, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Destroyed by a concurrent threshold breach.
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "re-check lock state").
			Wrap(err)
	}
	if fresh.IsLocked() {
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", fresh.AccountLockedUntil).
			Wrap(ErrAccountLocked)
	}

	response, err := s.createSession(ctx, fresh, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		// Login already succeeded; the stale counter corrects itself on the
		// next successful login.
		s.logger.Error("failed to record login",
			"user_id", user.ID.String(),
			"error", err,
		)
	}

	s.events.Log(&user.ID, security.EventLoginSuccess, ipAddress, userAgent, nil)

	return response, nil
}

// IncrementFailedAttempts atomically bumps the user's failed-login
// counter, locking the account at the lock threshold and triggering
// destruction at the destruction threshold. Returns the new count, or
// ErrDestructionTriggered when the account has been erased.
func (s *Service) IncrementFailedAttempts(ctx context.Context, userID ulid.ULID, ipAddress string) (int, error) {
	state, err := s.users.IncrementFailedAttempts(ctx, userID, s.policy.LockThreshold, s.policy.LockDuration)
	if err != nil {
		return 0, oops.Code("AUTH_INCREMENT_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.events.Log(&userID, security.EventLoginFailed, ipAddress, "", map[string]any{
		"failed_attempts": state.FailedLoginAttempts,
	})

	if state.LockJustSet(s.policy.LockThreshold) {
		s.events.Log(&userID, security.EventAccountLocked, ipAddress, "", map[string]any{
			"locked_until": state.AccountLockedUntil,
		})
	}

	if s.policy.ShouldDestroy(state.FailedLoginAttempts) {
		s.events.Log(&userID, security.EventMultipleFailedLogins, ipAddress, "", map[string]any{
			"failed_attempts": state.FailedLoginAttempts,
			"threshold":       s.policy.DestructionThreshold,
		})
		// Logged without a user_id binding: destruction erases the
		// user's event rows, so a per-user event here could be purged by
		// the very transaction it announces. The system-scoped row
		// survives; the subject lives in the details.
		s.events.Log(nil, security.EventDestructionTriggered, ipAddress, "", map[string]any{
			"user_id":         userID.String(),
			"failed_attempts": state.FailedLoginAttempts,
		})

		if err := s.destroyer.Trigger(ctx, userID, security.TriggerFailedLoginThreshold); err != nil {
			// Fatal for this request but never retried; an undestroyed
			// account over the threshold is an inconsistent security
			// posture that needs investigation.
			s.logger.Error("destruction failed",
				"user_id", userID.String(),
				"error", err,
			)
		}
		return state.FailedLoginAttempts, oops.Code("AUTH_DESTRUCTION_TRIGGERED").
			With("user_id", userID.String()).
			Wrap(ErrDestructionTriggered)
	}

	return state.FailedLoginAttempts, nil
}

// VerifyToken validates a bearer access token and returns its claims.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// Refresh exchanges a refresh token for a new token pair. The presented
// token is consumed: its session is atomically rotated to new hashes, so
// replaying the old token fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	if refreshToken == "" {
		return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	session, err := s.sessions.GetByRefreshTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrInvalidToken)
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get session by refresh token").
			Wrap(err)
	}

	if !session.CanRefresh() {
		return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrInvalidToken)
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get session user").
			Wrap(err)
	}

	accessToken, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "issue access token").
			Wrap(err)
	}

	newRefreshToken, newRefreshHash, err := GenerateRefreshToken()
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "generate refresh token").
			Wrap(err)
	}

	refreshExpiresAt := time.Now().Add(s.refreshTTL)
	if err := s.sessions.Rotate(ctx, session.ID, HashToken(accessToken), newRefreshHash, expiresAt, &refreshExpiresAt); err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "rotate session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         user.Public(),
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout deactivates the session holding the given refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessions.GetByRefreshTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrInvalidToken)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "get session by refresh token").
			Wrap(err)
	}

	if err := s.sessions.Deactivate(ctx, session.ID); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "deactivate session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// createSession issues the token pair and persists the session row.
func (s *Service) createSession(ctx context.Context, user *User, ipAddress, userAgent string) (*LoginResponse, error) {
	accessToken, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue access token").
			Wrap(err)
	}

	refreshToken, refreshHash, err := GenerateRefreshToken()
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate refresh token").
			Wrap(err)
	}

	refreshExpiresAt := time.Now().Add(s.refreshTTL)
	session, err := NewSession(user.ID, HashToken(accessToken), refreshHash, expiresAt, &refreshExpiresAt, ipAddress, userAgent)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Public(),
		ExpiresAt:    expiresAt,
	}, nil
}
