// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// SubjectRequest is the body of PUT /api/v1/subject. Start and End are
// optional RFC3339 times; without them the configured history window is used.
type SubjectRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=tracker shipment asset"`
	ID    string `json:"id" validate:"required,max=128"`
	Start string `json:"start,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	End   string `json:"end,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// Subject converts the validated request.
func (r *SubjectRequest) Subject() models.Subject {
	return models.Subject{Kind: models.SubjectKind(r.Kind), ID: r.ID}
}

// Range converts the validated request. A zero range means "use the default".
func (r *SubjectRequest) Range() (models.DateRange, error) {
	switch {
	case r.Start == "" && r.End == "":
		return models.DateRange{}, nil
	case r.Start == "" || r.End == "":
		return models.DateRange{}, errRangeIncomplete
	}
	return parseRange(r.Start, r.End)
}

// CredentialRequest is the body of PUT /api/v1/credential.
type CredentialRequest struct {
	Token string `json:"token" validate:"required,max=8192"`
}

// AnalyticsRequest holds the query of GET /api/v1/analytics.
type AnalyticsRequest struct {
	Carrier string `validate:"omitempty,max=128"`
	Start   string `validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	End     string `validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// AlertPresetsRequest is the body of PUT /api/v1/shipments/{id}/alert-presets.
type AlertPresetsRequest struct {
	Presets []models.AlertPreset `json:"presets" validate:"max=64,dive"`
}

var (
	errRangeOrder      = errors.New("end must not be before start")
	errRangeIncomplete = errors.New("start and end must be given together")
)

func parseRange(start, end string) (models.DateRange, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid end: %w", err)
	}
	if e.Before(s) {
		return models.DateRange{}, errRangeOrder
	}
	return models.DateRange{Start: s, End: e}, nil
}

// decodeJSON reads a bounded JSON body into dst and validates it. It writes
// the error response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		NewResponseWriter(w, r).BadRequest("request body too large or unreadable")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		NewResponseWriter(w, r).BadRequest("invalid JSON body")
		return false
	}
	return validateRequest(w, r, dst)
}

// validateRequest runs the struct validator and writes a VALIDATION_FAILED
// response on failure.
func validateRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		NewResponseWriter(w, r).ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}
