// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package models

import (
	"strconv"
	"strings"
)

// AlertTrigger is a single alert notification as decoded from the stream.
//
// FirstTriggeredAt and LastTriggeredAt are the raw strings the backend sent;
// LastTriggeredAt equals FirstTriggeredAt when the backend reported only one.
// OccurrenceCount is the number of occurrences this notification stands for and is
// at least 1.
type AlertTrigger struct {
	EventID          string    `json:"eventId,omitempty"`
	AlertID          string    `json:"alertId,omitempty"`
	ShipmentID       string    `json:"shipmentId,omitempty"`
	TrackerID        string    `json:"trackerId,omitempty"`
	AlertType        string    `json:"alertType"`
	AlertName        string    `json:"alertName,omitempty"`
	Severity         string    `json:"severity,omitempty"`
	MinThreshold     *float64  `json:"minThreshold,omitempty"`
	MaxThreshold     *float64  `json:"maxThreshold,omitempty"`
	Unit             string    `json:"unit,omitempty"`
	AlertDate        string    `json:"alertDate,omitempty"`
	FirstTriggeredAt string    `json:"firstTriggeredAt"`
	LastTriggeredAt  string    `json:"lastTriggeredAt"`
	OccurrenceCount  int       `json:"occurrenceCount"`
	SensorValue      *float64  `json:"sensorValue,omitempty"`
	Location         *GeoPoint `json:"location,omitempty"`
}

// Key returns the composite key that identifies the AlertRecord this trigger merges into.
func (t AlertTrigger) Key() AlertKey {
	return AlertKey{
		ShipmentID:   t.ShipmentID,
		AlertType:    t.AlertType,
		AlertDate:    t.AlertDate,
		MinThreshold: t.MinThreshold,
		MaxThreshold: t.MaxThreshold,
		Unit:         t.Unit,
		AlertName:    t.AlertName,
	}
}

// EventKey returns the identity of the point-in-time event this trigger produces:
// the explicit event id when the backend sent one, else the alert id (or, without
// one, the composite key) and the last-triggered time.
func (t AlertTrigger) EventKey() string {
	if t.EventID != "" {
		return t.EventID
	}
	if t.AlertID != "" {
		return t.AlertID + "@" + t.LastTriggeredAt
	}
	return t.Key().String() + "@" + t.LastTriggeredAt
}

// AlertKey is the composite identity of an alert summary.
type AlertKey struct {
	ShipmentID   string
	AlertType    string
	AlertDate    string
	MinThreshold *float64
	MaxThreshold *float64
	Unit         string
	AlertName    string
}

// String renders the key in a stable form usable as a map key. Nil thresholds
// render differently from zero thresholds.
func (k AlertKey) String() string {
	var b strings.Builder
	for i, part := range []string{
		k.ShipmentID, k.AlertType, k.AlertDate,
		formatThreshold(k.MinThreshold), formatThreshold(k.MaxThreshold),
		k.Unit, k.AlertName,
	} {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(part)
	}
	return b.String()
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// AlertRecord is the deduplicated summary of every trigger sharing one AlertKey.
//
// Timestamp and FirstLocation describe the oldest trigger seen; LastTriggeredAt,
// SensorValue, Location and Severity describe the newest.
type AlertRecord struct {
	Key             string    `json:"key"`
	AlertID         string    `json:"alertId,omitempty"`
	ShipmentID      string    `json:"shipmentId,omitempty"`
	TrackerID       string    `json:"trackerId,omitempty"`
	AlertType       string    `json:"alertType"`
	AlertName       string    `json:"alertName,omitempty"`
	Severity        string    `json:"severity,omitempty"`
	MinThreshold    *float64  `json:"minThreshold,omitempty"`
	MaxThreshold    *float64  `json:"maxThreshold,omitempty"`
	Unit            string    `json:"unit,omitempty"`
	AlertDate       string    `json:"alertDate,omitempty"`
	Timestamp       string    `json:"timestamp"`
	FirstLocation   *GeoPoint `json:"firstLocation,omitempty"`
	LastTriggeredAt string    `json:"lastTriggeredAt"`
	OccurrenceCount int       `json:"occurrenceCount"`
	SensorValue     *float64  `json:"sensorValue,omitempty"`
	Location        *GeoPoint `json:"location,omitempty"`
}

// CompositeKey recomputes the record's AlertKey from its fields. Records loaded from
// the backend carry no Key, so the store uses this to index them.
func (r *AlertRecord) CompositeKey() AlertKey {
	return AlertKey{
		ShipmentID:   r.ShipmentID,
		AlertType:    r.AlertType,
		AlertDate:    r.AlertDate,
		MinThreshold: r.MinThreshold,
		MaxThreshold: r.MaxThreshold,
		Unit:         r.Unit,
		AlertName:    r.AlertName,
	}
}

// AlertEvent is one point-in-time alert occurrence with a location, used for map pins.
type AlertEvent struct {
	ID          string   `json:"id"`
	AlertID     string   `json:"alertId,omitempty"`
	AlertKey    string   `json:"alertKey,omitempty"`
	ShipmentID  string   `json:"shipmentId,omitempty"`
	TrackerID   string   `json:"trackerId,omitempty"`
	AlertType   string   `json:"alertType"`
	Severity    string   `json:"severity,omitempty"`
	SensorValue *float64 `json:"sensorValue,omitempty"`
	Location    GeoPoint `json:"location"`
	Timestamp   string   `json:"timestamp"`
}
