// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package api

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/veilchat/veilchat/internal/auth"
	"github.com/veilchat/veilchat/internal/security"
)

// mapError translates service errors to HTTP status codes and safe,
// constant-shape messages. Credential failures never reveal whether the
// email exists; lockout and destruction are deliberately visible.
func mapError(err error) (int, string) {
	if oopsErr, ok := oops.AsOops(err); ok {
		switch oopsErr.Code() {
		case "AUTH_INVALID_EMAIL", "AUTH_INVALID_PASSWORD":
			return http.StatusBadRequest, oopsErr.Error()
		}
	}

	switch {
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, auth.ErrAccountLocked):
		return http.StatusLocked, "account is temporarily locked"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, auth.ErrDestructionTriggered):
		return http.StatusGone, "account no longer exists"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, security.ErrDestructionFailed):
		return http.StatusInternalServerError, "internal error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
