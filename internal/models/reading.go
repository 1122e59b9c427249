// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package models

// TrackerReading is one decoded sensor sample from a tracker.
//
// Latitude and Longitude are always present and inside [-90, 90] / [-180, 180];
// the normalizer discards anything else. Metric fields are nil when the device did
// not report them, which is different from reporting zero.
//
// A TrackerReading is never modified after construction.
type TrackerReading struct {
	TrackerID   string   `json:"trackerId,omitempty"`
	ShipmentID  string   `json:"shipmentId,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Timestamp   string   `json:"timestamp"`
	Battery     *float64 `json:"battery,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
}

// SensorSample is the canonical name used by the merge engine for a TrackerReading.
type SensorSample = TrackerReading

// Metric names one sensor time series.
type Metric string

// Known metrics, in display order.
const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricBattery     Metric = "battery"
	MetricSpeed       Metric = "speed"
)

// Metrics lists every Metric in display order.
var Metrics = []Metric{MetricTemperature, MetricHumidity, MetricBattery, MetricSpeed}

// ParseMetric returns the Metric named s.
func ParseMetric(s string) (Metric, bool) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Value returns the reading's value for m, or nil when it was not reported.
func (r *TrackerReading) Value(m Metric) *float64 {
	switch m {
	case MetricTemperature:
		return r.Temperature
	case MetricHumidity:
		return r.Humidity
	case MetricBattery:
		return r.Battery
	case MetricSpeed:
		return r.Speed
	default:
		return nil
	}
}

// GeoPoint is a bare coordinate pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both coordinates are inside their ranges.
func (p GeoPoint) Valid() bool {
	return ValidCoordinates(p.Latitude, p.Longitude)
}

// ValidCoordinates reports whether lat is in [-90, 90] and lng is in [-180, 180].
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// LocationPoint is one point of a tracker's route, or its current position.
type LocationPoint struct {
	TrackerID string  `json:"trackerId,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

// SeriesPoint is one value of a metric time series.
type SeriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}
