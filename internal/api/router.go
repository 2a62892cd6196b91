// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

// Package api exposes the authentication service over HTTP. It is a thin
// transport: request parsing, bearer extraction, and error-to-status
// mapping only; all semantics live in the auth service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veilchat/veilchat/internal/auth"
)

// Handler serves the authentication HTTP API.
type Handler struct {
	service *auth.Service
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(service *auth.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With("component", "api"),
	}
}

// Router builds the HTTP route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login/initiate", h.InitiateLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login/complete", h.CompleteLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/refresh", h.Refresh).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodPost)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(h.RequireAuth)
	protected.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)

	return r
}
