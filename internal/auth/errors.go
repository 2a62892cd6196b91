// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package auth

import "errors"

// Sentinel errors for authentication outcomes. Callers match with
// errors.Is; oops wrappers add codes and context on top.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUserExists is returned when registering an email that is already taken.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned when the email/password pair does not
	// authenticate. It deliberately does not say which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account is temporarily locked")

	// ErrInvalidToken is returned for any access token that fails
	// verification. Signature and expiry failures are not distinguished.
	ErrInvalidToken = errors.New("invalid token")

	// ErrDestructionTriggered is returned when a failed login pushed the
	// account over the destruction threshold. The account no longer exists.
	ErrDestructionTriggered = errors.New("account destruction triggered")
)
