// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"net/http"
	"time"
)

// HealthLive reports that the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady reports 200 only when a credential is present and the backend
// stream is open. Anything else is 503 with the individual checks.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	credentialPresent := h.creds != nil && h.creds.Token() != ""
	streamOpen := h.conn != nil && h.conn.Status().Connected()
	subjectSelected := h.session != nil && !h.session.Info().Subject.IsZero()
	ready := credentialPresent && streamOpen

	data := map[string]any{
		"credential_present": credentialPresent,
		"stream_open":        streamOpen,
		"subject_selected":   subjectSelected,
		"ready_to_serve":     ready,
		"uptime":             time.Since(h.startTime).Seconds(),
	}

	rw := NewResponseWriter(w, r)
	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", data)
		return
	}
	rw.Success(data)
}
