// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/shiptrack/internal/credential"
	"github.com/tomtom215/shiptrack/internal/logging"
)

// GetConnection returns the stream connection status.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		NewResponseWriter(w, r).ServiceUnavailable("stream unavailable")
		return
	}
	NewResponseWriter(w, r).Success(h.conn.Status())
}

// Reconnect opens the stream now, cancelling any pending reconnect timer.
// Without a credential the request is rejected since no connection could be
// attempted.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		NewResponseWriter(w, r).ServiceUnavailable("stream unavailable")
		return
	}
	if h.creds == nil || h.creds.Token() == "" {
		NewResponseWriter(w, r).Error(http.StatusConflict, ErrCodeUnauthorized, "no credential configured")
		return
	}
	if err := h.conn.Connect(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Manual reconnect failed")
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusBadGateway, ErrCodeExternalServiceFail,
			"stream connection failed", h.conn.Status())
		return
	}
	NewResponseWriter(w, r).Success(h.conn.Status())
}

// Disconnect closes the stream and cancels reconnection until the next
// Reconnect or credential change.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		NewResponseWriter(w, r).ServiceUnavailable("stream unavailable")
		return
	}
	h.conn.Disconnect()
	NewResponseWriter(w, r).Success(h.conn.Status())
}

// credentialStatus is what the API reveals about the credential. The token
// itself is never returned. An expired JWT counts as absent.
type credentialStatus struct {
	Present bool `json:"present"`
}

func (h *Handler) credentialStatus() credentialStatus {
	return credentialStatus{Present: h.creds.Token() != ""}
}

// GetCredential reports whether a usable credential is present.
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	if h.creds == nil {
		NewResponseWriter(w, r).ServiceUnavailable("credential store unavailable")
		return
	}
	NewResponseWriter(w, r).Success(h.credentialStatus())
}

// PutCredential stores a new token. Listeners reconnect the stream and reload
// the snapshot if the previous credential was rejected.
func (h *Handler) PutCredential(w http.ResponseWriter, r *http.Request) {
	if h.creds == nil {
		NewResponseWriter(w, r).ServiceUnavailable("credential store unavailable")
		return
	}
	var req CredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if credential.Expired(req.Token, time.Now()) {
		NewResponseWriter(w, r).ValidationError("token has expired", nil)
		return
	}
	if err := h.creds.Set(req.Token); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to store credential")
		NewResponseWriter(w, r).InternalError("failed to store credential")
		return
	}
	logging.Ctx(r.Context()).Info().Msg("Credential updated via API")
	NewResponseWriter(w, r).Success(h.credentialStatus())
}

// DeleteCredential removes the stored token.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if h.creds == nil {
		NewResponseWriter(w, r).ServiceUnavailable("credential store unavailable")
		return
	}
	if err := h.creds.Clear(); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to clear credential")
		NewResponseWriter(w, r).InternalError("failed to clear credential")
		return
	}
	NewResponseWriter(w, r).NoContent()
}
