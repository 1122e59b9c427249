// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package models

// Tracker is a tracking device registered with the backend.
type Tracker struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Model      string `json:"model,omitempty"`
	ShipmentID string `json:"shipmentId,omitempty"`
	AssetID    string `json:"assetId,omitempty"`
}

// Shipment is a consignment with zero or more attached trackers.
type Shipment struct {
	ID          string   `json:"id"`
	Reference   string   `json:"reference,omitempty"`
	Carrier     string   `json:"carrier,omitempty"`
	Origin      string   `json:"origin,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Status      string   `json:"status,omitempty"`
	TrackerIDs  []string `json:"trackerIds,omitempty"`
	DepartedAt  string   `json:"departedAt,omitempty"`
	ArrivedAt   string   `json:"arrivedAt,omitempty"`
}

// Asset is a tracked object that is not a shipment, e.g. a container or trailer.
type Asset struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Type       string   `json:"type,omitempty"`
	TrackerIDs []string `json:"trackerIds,omitempty"`
}

// TrackerCreate is the body of a create-tracker request.
type TrackerCreate struct {
	ID         string `json:"id" validate:"required,max=128"`
	Name       string `json:"name,omitempty" validate:"max=256"`
	Model      string `json:"model,omitempty" validate:"max=128"`
	ShipmentID string `json:"shipmentId,omitempty" validate:"max=128"`
}

// ShipmentCreate is the body of a create-shipment request.
type ShipmentCreate struct {
	Reference   string   `json:"reference" validate:"required,max=256"`
	Carrier     string   `json:"carrier,omitempty" validate:"max=128"`
	Origin      string   `json:"origin,omitempty" validate:"max=256"`
	Destination string   `json:"destination,omitempty" validate:"max=256"`
	TrackerIDs  []string `json:"trackerIds,omitempty" validate:"dive,required,max=128"`
}

// AlertPreset is one configured alert threshold for a shipment.
type AlertPreset struct {
	AlertType    string   `json:"alertType" validate:"required,oneof=temperature humidity battery speed geofence shock light"`
	AlertName    string   `json:"alertName,omitempty" validate:"max=256"`
	MinThreshold *float64 `json:"minThreshold,omitempty"`
	MaxThreshold *float64 `json:"maxThreshold,omitempty"`
	Unit         string   `json:"unit,omitempty" validate:"max=32"`
	Enabled      bool     `json:"enabled"`
}

// ThresholdsOrdered reports whether MinThreshold does not exceed MaxThreshold when both are set.
func (p *AlertPreset) ThresholdsOrdered() bool {
	return p.MinThreshold == nil || p.MaxThreshold == nil || *p.MinThreshold <= *p.MaxThreshold
}

// AnalyticsSummary is the backend's aggregate for a carrier over a date range.
type AnalyticsSummary struct {
	Carrier            string         `json:"carrier"`
	Start              string         `json:"start"`
	End                string         `json:"end"`
	ShipmentCount      int            `json:"shipmentCount"`
	OnTimeRate         float64        `json:"onTimeRate"`
	AverageTransitDays float64        `json:"averageTransitDays"`
	AlertCounts        map[string]int `json:"alertCounts,omitempty"`
}
