// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/session"
	"github.com/tomtom215/shiptrack/internal/views"
)

// snapshot returns the current snapshot or writes 503 when no session is wired.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*views.Snapshot, bool) {
	if h.session == nil {
		NewResponseWriter(w, r).ServiceUnavailable("session unavailable")
		return nil, false
	}
	return h.session.Snapshot(), true
}

// View returns every derived view of the current subject.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	NewResponseWriter(w, r).Success(snap.View())
}

// ViewLocations returns the current location of each tracker.
func (h *Handler) ViewLocations(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	locs := snap.Locations()
	NewResponseWriter(w, r).List(locs, len(locs))
}

// ViewPath returns the ordered movement path.
func (h *Handler) ViewPath(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	path := snap.Path()
	NewResponseWriter(w, r).List(path, len(path))
}

// ViewSeries returns one sensor time series.
func (h *Handler) ViewSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "metric")
	metric, known := models.ParseMetric(name)
	if !known {
		NewResponseWriter(w, r).NotFound("unknown metric " + sanitizeLogValue(name))
		return
	}
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	series := snap.Series(metric)
	NewResponseWriter(w, r).List(series, len(series))
}

// ViewAlerts returns the alert summaries, most recently triggered first.
func (h *Handler) ViewAlerts(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	alerts := snap.Alerts()
	NewResponseWriter(w, r).List(alerts, len(alerts))
}

// ViewEvents returns the alert event log.
func (h *Handler) ViewEvents(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	events := snap.Events()
	NewResponseWriter(w, r).List(events, len(events))
}

// GetSubject returns the session state.
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		NewResponseWriter(w, r).ServiceUnavailable("session unavailable")
		return
	}
	NewResponseWriter(w, r).Success(h.session.Info())
}

// PutSubject switches the observed subject. The views are empty for the new
// subject when the response is written; the snapshot load continues in the
// background and is announced over the websocket.
func (h *Handler) PutSubject(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		NewResponseWriter(w, r).ServiceUnavailable("session unavailable")
		return
	}
	var req SubjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rng, err := req.Range()
	if err != nil {
		NewResponseWriter(w, r).ValidationError(err.Error(), nil)
		return
	}

	subject := req.Subject()
	ctx := logging.ContextWithSubject(r.Context(), subject.String())
	snap, err := h.session.SetSubject(ctx, subject, rng)
	if err != nil {
		if errors.Is(err, session.ErrStopped) {
			NewResponseWriter(w, r).ServiceUnavailable("session stopped")
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Subject switch failed")
		NewResponseWriter(w, r).ServiceUnavailable("subject switch did not complete")
		return
	}
	logging.Ctx(ctx).Info().Msg("Subject selected via API")
	NewResponseWriter(w, r).Accepted(snap.View())
}

// ReloadSubject loads the snapshot of the current subject again.
func (h *Handler) ReloadSubject(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		NewResponseWriter(w, r).ServiceUnavailable("session unavailable")
		return
	}
	if h.session.Info().Subject.IsZero() {
		NewResponseWriter(w, r).BadRequest("no subject selected")
		return
	}
	if err := h.session.Reload(r.Context()); err != nil {
		NewResponseWriter(w, r).ServiceUnavailable("reload did not start")
		return
	}
	NewResponseWriter(w, r).Accepted(h.session.Info())
}
