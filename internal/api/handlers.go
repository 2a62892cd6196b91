// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/veilchat/veilchat/pkg/errutil"
)

// maxJSONBodyBytes caps request bodies before JSON decoding.
const maxJSONBodyBytes = 1 << 20

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	MembershipTier string `json:"membership_tier,omitempty"`
}

type initiateLoginRequest struct {
	Email string `json:"email"`
}

type completeLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates a new account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !h.decode(w, r, &body) {
		return
	}

	user, err := h.service.Register(r.Context(), body.Email, body.Password, body.MembershipTier)
	if err != nil {
		h.writeServiceError(w, r, "register failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, user.Public())
}

// InitiateLogin returns the login step marker for an email.
func (h *Handler) InitiateLogin(w http.ResponseWriter, r *http.Request) {
	var body initiateLoginRequest
	if !h.decode(w, r, &body) {
		return
	}

	step, err := h.service.InitiateLogin(r.Context(), body.Email, clientIP(r))
	if err != nil {
		h.writeServiceError(w, r, "initiate login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, step)
}

// CompleteLogin verifies credentials and issues the token pair.
func (h *Handler) CompleteLogin(w http.ResponseWriter, r *http.Request) {
	var body completeLoginRequest
	if !h.decode(w, r, &body) {
		return
	}

	response, err := h.service.CompleteLogin(r.Context(), body.Email, body.Password, clientIP(r), r.UserAgent())
	if err != nil {
		h.writeServiceError(w, r, "login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decode(w, r, &body) {
		return
	}

	response, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		h.writeServiceError(w, r, "refresh failed", err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// Logout deactivates the refresh token's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		h.writeServiceError(w, r, "logout failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the claims of the authenticated caller.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// decode reads a size-capped JSON body, rejecting unknown fields.
// Returns false after writing the error response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// writeServiceError logs the error and writes the mapped status.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, message := mapError(err)
	if status == http.StatusInternalServerError {
		errutil.LogError(h.logger.With("path", r.URL.Path), msg, err)
	}
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client is gone
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// clientIP extracts the originating client address, honoring the first
// X-Forwarded-For hop when present.
func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	return r.RemoteAddr
}
