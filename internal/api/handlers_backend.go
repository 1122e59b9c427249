// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shiptrack/internal/backend"
	"github.com/tomtom215/shiptrack/internal/models"
)

// requireBackend writes 503 and returns false when no backend client is wired.
func (h *Handler) requireBackend(w http.ResponseWriter, r *http.Request) bool {
	if h.backend == nil {
		NewResponseWriter(w, r).ServiceUnavailable("backend unavailable")
		return false
	}
	return true
}

// pathID reads and bounds a path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if id == "" || len(id) > 128 {
		NewResponseWriter(w, r).BadRequest("invalid " + name)
		return "", false
	}
	return id, true
}

// ListTrackers proxies GET /api/trackers.
func (h *Handler) ListTrackers(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	trackers, err := h.backend.ListTrackers(r.Context())
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).List(trackers, len(trackers))
}

// CreateTracker registers a tracker with the backend.
func (h *Handler) CreateTracker(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	var req models.TrackerCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	tracker, err := h.backend.CreateTracker(r.Context(), &req)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).Created(tracker)
}

// DeleteTracker removes a tracker.
func (h *Handler) DeleteTracker(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.backend.DeleteTracker(r.Context(), id); err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).NoContent()
}

func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	shipments, err := h.backend.ListShipments(r.Context())
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).List(shipments, len(shipments))
}

func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	var req models.ShipmentCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	shipment, err := h.backend.CreateShipment(r.Context(), &req)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).Created(shipment)
}

func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	shipment, err := h.backend.GetShipment(r.Context(), id)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).Success(shipment)
}

func (h *Handler) DeleteShipment(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.backend.DeleteShipment(r.Context(), id); err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).NoContent()
}

// GetAlertPresets returns the alert thresholds configured for a shipment.
func (h *Handler) GetAlertPresets(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	presets, err := h.backend.AlertPresets(r.Context(), id)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).List(presets, len(presets))
}

// PutAlertPresets replaces the alert thresholds of a shipment. A preset whose
// minimum exceeds its maximum is rejected before reaching the backend.
func (h *Handler) PutAlertPresets(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AlertPresetsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for i := range req.Presets {
		if !req.Presets[i].ThresholdsOrdered() {
			NewResponseWriter(w, r).ValidationError("minThreshold exceeds maxThreshold",
				map[string]any{"index": i, "alertType": req.Presets[i].AlertType})
			return
		}
	}
	presets, err := h.backend.SetAlertPresets(r.Context(), id, req.Presets)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).List(presets, len(presets))
}

// GetAsset returns one asset.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	asset, err := h.backend.GetAsset(r.Context(), id)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).Success(asset)
}

// Analytics returns the carrier summary for ?carrier=&start=&end=.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	q := r.URL.Query()
	req := AnalyticsRequest{
		Carrier: q.Get("carrier"),
		Start:   q.Get("start"),
		End:     q.Get("end"),
	}
	if !validateRequest(w, r, &req) {
		return
	}
	rng, err := parseRange(req.Start, req.End)
	if err != nil {
		NewResponseWriter(w, r).ValidationError(err.Error(), nil)
		return
	}
	summary, err := h.backend.Analytics(r.Context(), req.Carrier, rng)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).Success(summary)
}

// AlertHistory returns alert records straight from the backend, filtered by
// ?shipmentId= or ?trackerId=. Unlike the alert view it is not limited to the
// current subject.
func (h *Handler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	if !h.requireBackend(w, r) {
		return
	}
	q := r.URL.Query()
	filter := backend.AlertFilter{ShipmentID: q.Get("shipmentId"), TrackerID: q.Get("trackerId")}
	if len(filter.ShipmentID) > 128 || len(filter.TrackerID) > 128 {
		NewResponseWriter(w, r).BadRequest("invalid filter")
		return
	}
	records, err := h.backend.Alerts(r.Context(), filter)
	if err != nil {
		NewResponseWriter(w, r).BackendError(err)
		return
	}
	NewResponseWriter(w, r).List(records, len(records))
}
