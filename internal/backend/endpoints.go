// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/shiptrack/internal/models"
)

// API is the set of backend operations used by the snapshot loader and the
// local API. Both Client and CircuitBreakerClient implement it.
type API interface {
	ListTrackers(ctx context.Context) ([]models.Tracker, error)
	CreateTracker(ctx context.Context, req *models.TrackerCreate) (*models.Tracker, error)
	DeleteTracker(ctx context.Context, id string) error

	ListShipments(ctx context.Context) ([]models.Shipment, error)
	CreateShipment(ctx context.Context, req *models.ShipmentCreate) (*models.Shipment, error)
	GetShipment(ctx context.Context, id string) (*models.Shipment, error)
	DeleteShipment(ctx context.Context, id string) error

	GetAsset(ctx context.Context, id string) (*models.Asset, error)

	TrackerHistory(ctx context.Context, trackerID string, r models.DateRange) ([]map[string]any, error)
	Alerts(ctx context.Context, f AlertFilter) ([]models.AlertRecord, error)
	AlertEvents(ctx context.Context, f AlertFilter) ([]models.AlertEvent, error)

	AlertPresets(ctx context.Context, shipmentID string) ([]models.AlertPreset, error)
	SetAlertPresets(ctx context.Context, shipmentID string, presets []models.AlertPreset) ([]models.AlertPreset, error)

	Analytics(ctx context.Context, carrier string, r models.DateRange) (*models.AnalyticsSummary, error)
}

// AlertFilter narrows alert queries. Empty fields are omitted.
type AlertFilter struct {
	ShipmentID string
	TrackerID  string
}

func (f AlertFilter) query() url.Values {
	q := url.Values{}
	if f.ShipmentID != "" {
		q.Set("shipmentId", f.ShipmentID)
	}
	if f.TrackerID != "" {
		q.Set("trackerId", f.TrackerID)
	}
	return q
}

// ListTrackers returns every registered tracker.
func (c *Client) ListTrackers(ctx context.Context) ([]models.Tracker, error) {
	var out list[models.Tracker]
	if err := c.doJSON(ctx, http.MethodGet, "/api/trackers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTracker registers a tracker.
func (c *Client) CreateTracker(ctx context.Context, req *models.TrackerCreate) (*models.Tracker, error) {
	var out models.Tracker
	if err := c.doJSON(ctx, http.MethodPost, "/api/trackers", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTracker removes a tracker.
func (c *Client) DeleteTracker(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/trackers/"+url.PathEscape(id), nil, nil, nil)
}

// ListShipments returns every shipment.
func (c *Client) ListShipments(ctx context.Context) ([]models.Shipment, error) {
	var out list[models.Shipment]
	if err := c.doJSON(ctx, http.MethodGet, "/api/shipments", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateShipment creates a shipment.
func (c *Client) CreateShipment(ctx context.Context, req *models.ShipmentCreate) (*models.Shipment, error) {
	var out models.Shipment
	if err := c.doJSON(ctx, http.MethodPost, "/api/shipments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetShipment returns one shipment including its attached trackers.
func (c *Client) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	var out models.Shipment
	if err := c.doJSON(ctx, http.MethodGet, "/api/shipments/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteShipment removes a shipment.
func (c *Client) DeleteShipment(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/shipments/"+url.PathEscape(id), nil, nil, nil)
}

// GetAsset returns one asset including its attached trackers.
func (c *Client) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	var out models.Asset
	if err := c.doJSON(ctx, http.MethodGet, "/api/assets/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackerHistory returns the raw sensor documents recorded for a tracker in r.
// Documents are returned undecoded so they go through the same normalization as
// stream frames.
func (c *Client) TrackerHistory(ctx context.Context, trackerID string, r models.DateRange) ([]map[string]any, error) {
	q := c.rangeQuery(r)
	q.Set("timezone", c.loc.String())

	var out list[map[string]any]
	if err := c.doJSON(ctx, http.MethodGet, "/api/trackers/"+url.PathEscape(trackerID)+"/history", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Alerts returns alert summaries matching f.
func (c *Client) Alerts(ctx context.Context, f AlertFilter) ([]models.AlertRecord, error) {
	var out list[models.AlertRecord]
	if err := c.doJSON(ctx, http.MethodGet, "/api/alerts", f.query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AlertEvents returns point-in-time alert events matching f.
func (c *Client) AlertEvents(ctx context.Context, f AlertFilter) ([]models.AlertEvent, error) {
	var out list[models.AlertEvent]
	if err := c.doJSON(ctx, http.MethodGet, "/api/alerts/events", f.query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AlertPresets returns the alert thresholds configured for a shipment.
func (c *Client) AlertPresets(ctx context.Context, shipmentID string) ([]models.AlertPreset, error) {
	var out list[models.AlertPreset]
	if err := c.doJSON(ctx, http.MethodGet, "/api/shipments/"+url.PathEscape(shipmentID)+"/alert-presets", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetAlertPresets replaces the alert thresholds of a shipment.
func (c *Client) SetAlertPresets(ctx context.Context, shipmentID string, presets []models.AlertPreset) ([]models.AlertPreset, error) {
	var out list[models.AlertPreset]
	if err := c.doJSON(ctx, http.MethodPut, "/api/shipments/"+url.PathEscape(shipmentID)+"/alert-presets", nil, presets, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Analytics returns the carrier summary over r. An empty carrier means all carriers.
func (c *Client) Analytics(ctx context.Context, carrier string, r models.DateRange) (*models.AnalyticsSummary, error) {
	q := c.rangeQuery(r)
	if carrier != "" {
		q.Set("carrier", carrier)
	}
	var out models.AnalyticsSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/analytics", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// rangeQuery renders r in the configured zone. Zero ends are omitted.
func (c *Client) rangeQuery(r models.DateRange) url.Values {
	q := url.Values{}
	if !r.Start.IsZero() {
		q.Set("start", r.Start.In(c.loc).Format(time.RFC3339))
	}
	if !r.End.IsZero() {
		q.Set("end", r.End.In(c.loc).Format(time.RFC3339))
	}
	return q
}
