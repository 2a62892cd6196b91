// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Token configuration.
const (
	// DefaultAccessTokenTTL is the default access token lifetime.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the default refresh token lifetime.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// RefreshTokenBytes is the entropy of an opaque refresh token.
	RefreshTokenBytes = 32
)

// Claims is the payload embedded in a signed access token.
type Claims struct {
	MembershipTier string `json:"membership_tier"`
	MFAVerified    bool   `json:"mfa_verified"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HMAC-SHA256 signed access tokens.
// The signing secret is injected once at construction and never read
// from ambient state.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
}

// NewTokenIssuer creates a TokenIssuer. ttl <= 0 falls back to
// DefaultAccessTokenTTL. leeway is the clock-skew tolerance applied at
// verification; zero means strict expiry.
func NewTokenIssuer(secret []byte, ttl, leeway time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_SECRET_EMPTY").Errorf("signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl, leeway: leeway}, nil
}

// TTL returns the configured access token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a signed access token for the user. The mfa_verified claim
// is true only when the account has MFA disabled; an MFA-enabled account
// gets mfa_verified=false until a separate MFA completion step sets it.
func (i *TokenIssuer) Issue(user *User) (token string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(i.ttl)

	claims := Claims{
		MembershipTier: user.MembershipTier,
		MFAVerified:    !user.MFAEnabled,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates an access token. Every failure mode
// (bad signature, malformed token, expired, wrong algorithm) collapses
// to ErrInvalidToken so callers cannot distinguish which check failed.
func (i *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(i.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	return claims, nil
}

// GenerateRefreshToken creates an opaque random bearer token and its
// storage hash. The plaintext goes to the client; only the SHA256 hash
// is persisted, so a database leak does not leak usable tokens.
func GenerateRefreshToken() (token, hash string, err error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("REFRESH_TOKEN_GENERATE_FAILED").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}

	token = base64.RawURLEncoding.EncodeToString(buf)
	hash = HashToken(token)
	return token, hash, nil
}

// GenerateOpaqueToken creates a random URL-safe token for one-shot uses
// such as email verification and login-step markers.
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("OPAQUE_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken computes the hex-encoded SHA256 hash of an opaque token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyTokenHash checks a plaintext opaque token against its stored hash
// in constant time.
func VerifyTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
