// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// FieldRule extracts one candidate value from a decoded JSON object.
// Extract reports false when the rule does not apply to the object.
type FieldRule struct {
	Name    string
	Extract func(doc map[string]any) (any, bool)
}

// Key returns a rule that matches when doc has a non-null value under name.
func Key(name string) FieldRule {
	return FieldRule{
		Name: name,
		Extract: func(doc map[string]any) (any, bool) {
			v, ok := doc[name]
			return v, ok && v != nil
		},
	}
}

func keys(names ...string) []FieldRule {
	rules := make([]FieldRule, len(names))
	for i, n := range names {
		rules[i] = Key(n)
	}
	return rules
}

// Ordered rule lists. The first rule that matches wins, even if its value is then
// rejected: a sample with "Lat": "abc" is discarded rather than falling back to "lat".
var (
	LatitudeRules    = keys("Lat", "latitude", "lat")
	LongitudeRules   = keys("Lng", "longitude", "lng", "lon")
	TimestampRules   = keys("DT", "timestamp", "timestamp_local")
	BatteryRules     = keys("Battery", "battery")
	TemperatureRules = keys("Temp", "temp", "temperature")
	HumidityRules    = keys("Hum", "hum", "humidity")
	SpeedRules       = keys("Speed", "speed")

	TrackerIDRules  = keys("trackerId", "tracker_id", "TrackerID", "deviceId", "device_id")
	ShipmentIDRules = keys("shipmentId", "shipment_id", "ShipmentID")

	EventIDRules        = keys("eventId", "event_id", "alertEventId")
	AlertIDRules        = keys("alertId", "alert_id", "_id", "id")
	AlertTypeRules      = keys("alertType", "alert_type")
	AlertNameRules      = keys("alertName", "alert_name", "name")
	SeverityRules       = keys("severity", "level")
	MinThresholdRules   = keys("minThreshold", "min_threshold")
	MaxThresholdRules   = keys("maxThreshold", "max_threshold")
	UnitRules           = keys("unit")
	AlertDateRules      = keys("alertDate", "alert_date")
	SensorValueRules    = keys("sensorValue", "sensor_value", "value")
	CountRules          = keys("occurrenceCount", "occurrence_count", "count")
	FirstTriggeredRules = keys("firstTriggeredAt", "first_triggered_at", "timestamp")
	LastTriggeredRules  = keys("lastTriggeredAt", "last_triggered_at")
	LocationRules       = keys("location", "loc")

	ResumeTokenRules = keys("resumeToken", "resume_token")
)

// First evaluates rules in order against doc and returns the first match.
func First(rules []FieldRule, doc map[string]any) (any, bool) {
	for _, r := range rules {
		if v, ok := r.Extract(doc); ok {
			return v, true
		}
	}
	return nil, false
}

// Number evaluates rules and coerces the winning value to a finite float64.
// JSON numbers and numeric strings are accepted.
func Number(rules []FieldRule, doc map[string]any) (float64, bool) {
	v, ok := First(rules, doc)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// OptionalNumber is Number returning nil for a missing or non-numeric value.
func OptionalNumber(rules []FieldRule, doc map[string]any) *float64 {
	f, ok := Number(rules, doc)
	if !ok {
		return nil
	}
	return &f
}

// String evaluates rules and renders the winning scalar as a string.
func String(rules []FieldRule, doc map[string]any) string {
	v, ok := First(rules, doc)
	if !ok {
		return ""
	}
	return toString(v)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		// Object ids such as {"$oid": "..."} or {"_data": "..."}.
		for _, k := range []string{"$oid", "_data"} {
			if s, ok := x[k].(string); ok {
				return s
			}
		}
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// timestampString renders a timestamp value. Strings pass through untouched;
// numbers are read as Unix epoch seconds, or milliseconds when large enough.
func timestampString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case float64:
		sec, frac := math.Modf(x)
		if math.Abs(x) >= 1e12 {
			ms := int64(x)
			return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano), true
		}
		return time.Unix(int64(sec), int64(frac*1e9)).UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
