// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package normalize turns raw stream frames into canonical records.
//
// The backend has shipped several message shapes over time (capitalized legacy
// sensor fields, change-stream documents, batched samples) and all of them are
// still in the field. Each canonical field is read through an ordered list of
// FieldRules so the precedence between shapes is explicit and testable.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/shiptrack/internal/models"
)

// ErrMalformedMessage is returned for frames that are not a JSON object.
var ErrMalformedMessage = errors.New("malformed message")

// Message kinds.
const (
	KindAlert   = "alert"
	KindSensor  = "sensor_data"
	KindUnknown = ""
)

// Envelope describes a frame independently of its payload.
type Envelope struct {
	// Identity is stable across replays of the same frame: the change-stream resume
	// token when present, otherwise a SHA-256 of the raw bytes.
	Identity   string
	Kind       string
	TrackerID  string
	ShipmentID string
}

// Result is the canonical output for one frame. At most one of Alert and Samples
// is populated; both are empty for unrecognized shapes.
type Result struct {
	Envelope  Envelope
	Alert     *models.AlertTrigger
	Samples   []models.SensorSample
	Discarded int
}

// Empty reports whether the frame produced no records.
func (r *Result) Empty() bool {
	return r.Alert == nil && len(r.Samples) == 0
}

// Normalizer converts frames using a clock for missing timestamps and a location
// for interpreting zone-less ones.
type Normalizer struct {
	Now      func() time.Time
	Location *time.Location
}

// New returns a Normalizer using the wall clock.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{Now: time.Now, Location: loc}
}

func (n *Normalizer) now() string {
	clock := n.Now
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Format(time.RFC3339Nano)
}

// Normalize decodes one raw frame.
func (n *Normalizer) Normalize(raw []byte) (Result, error) {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg == nil {
		return Result{}, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}

	res := Result{Envelope: Envelope{
		Identity:   identity(msg, raw),
		TrackerID:  String(TrackerIDRules, msg),
		ShipmentID: String(ShipmentIDRules, msg),
	}}

	switch classify(msg) {
	case KindAlert:
		res.Envelope.Kind = KindAlert
		t := n.Alert(alertPayload(msg), res.Envelope)
		res.Alert = &t
	case KindSensor:
		res.Envelope.Kind = KindSensor
		res.Samples, res.Discarded = n.Samples(sensorDocument(msg), res.Envelope.TrackerID, res.Envelope.ShipmentID)
	}
	return res, nil
}

func classify(msg map[string]any) string {
	typ, _ := msg["type"].(string)
	switch typ {
	case KindAlert:
		return KindAlert
	case KindSensor:
		return KindSensor
	}
	if _, ok := First(changeDocumentRules, msg); ok {
		return KindSensor
	}
	if _, ok := msg["data"].([]any); ok {
		return KindSensor
	}
	return KindUnknown
}

var changeDocumentRules = keys("fullDocument", "full_document")

func sensorDocument(msg map[string]any) map[string]any {
	if v, ok := First(changeDocumentRules, msg); ok {
		if doc, ok := object(v); ok {
			return doc
		}
	}
	if doc, ok := object(msg["data"]); ok {
		return doc
	}
	return msg
}

func alertPayload(msg map[string]any) map[string]any {
	for _, k := range []string{"alert", "data", "fullDocument", "full_document"} {
		if doc, ok := object(msg[k]); ok {
			return doc
		}
	}
	return msg
}

func identity(msg map[string]any, raw []byte) string {
	if v, ok := First(ResumeTokenRules, msg); ok {
		if s := toString(v); s != "" {
			return "rt:" + s
		}
	}
	// Change-stream events carry their resume token as _id.
	if _, ok := First(changeDocumentRules, msg); ok {
		if v, ok := msg["_id"]; ok && v != nil {
			if s := toString(v); s != "" {
				return "rt:" + s
			}
		}
	}
	sum := sha256.Sum256(raw)
	return "h:" + hex.EncodeToString(sum[:])
}

// Samples expands a sensor document: one sample per element of a "data" array, or
// exactly one sample from direct fields. Tracker and shipment ids fall back from
// sample to document to the supplied defaults. It returns the kept samples and the
// number discarded for missing or out-of-range coordinates.
func (n *Normalizer) Samples(doc map[string]any, trackerID, shipmentID string) ([]models.SensorSample, int) {
	if id := String(TrackerIDRules, doc); id != "" {
		trackerID = id
	}
	if id := String(ShipmentIDRules, doc); id != "" {
		shipmentID = id
	}

	batch, isBatch := doc["data"].([]any)
	if !isBatch {
		s, ok := n.Sample(doc, trackerID, shipmentID)
		if !ok {
			return nil, 1
		}
		return []models.SensorSample{s}, 0
	}

	out := make([]models.SensorSample, 0, len(batch))
	discarded := 0
	for _, el := range batch {
		raw, ok := object(el)
		if !ok {
			discarded++
			continue
		}
		s, ok := n.Sample(raw, trackerID, shipmentID)
		if !ok {
			discarded++
			continue
		}
		out = append(out, s)
	}
	return out, discarded
}

// Sample decodes a single raw sample. It reports false when the coordinates are
// missing, non-numeric or out of range.
func (n *Normalizer) Sample(raw map[string]any, trackerID, shipmentID string) (models.SensorSample, bool) {
	lat, ok := Number(LatitudeRules, raw)
	if !ok {
		return models.SensorSample{}, false
	}
	lng, ok := Number(LongitudeRules, raw)
	if !ok {
		return models.SensorSample{}, false
	}
	if !models.ValidCoordinates(lat, lng) {
		return models.SensorSample{}, false
	}

	ts := ""
	if v, ok := First(TimestampRules, raw); ok {
		ts, _ = timestampString(v)
	}
	if ts == "" {
		ts = n.now()
	}

	if id := String(TrackerIDRules, raw); id != "" {
		trackerID = id
	}
	if id := String(ShipmentIDRules, raw); id != "" {
		shipmentID = id
	}

	return models.SensorSample{
		TrackerID:   trackerID,
		ShipmentID:  shipmentID,
		Latitude:    lat,
		Longitude:   lng,
		Timestamp:   ts,
		Battery:     OptionalNumber(BatteryRules, raw),
		Temperature: OptionalNumber(TemperatureRules, raw),
		Humidity:    OptionalNumber(HumidityRules, raw),
		Speed:       OptionalNumber(SpeedRules, raw),
	}, true
}

// Alert maps an alert payload to exactly one AlertTrigger.
func (n *Normalizer) Alert(doc map[string]any, env Envelope) models.AlertTrigger {
	first := ""
	if v, ok := First(FirstTriggeredRules, doc); ok {
		first, _ = timestampString(v)
	}
	if first == "" {
		first = n.now()
	}
	last := ""
	if v, ok := First(LastTriggeredRules, doc); ok {
		last, _ = timestampString(v)
	}
	if last == "" {
		last = first
	}

	count := 1
	if c, ok := Number(CountRules, doc); ok && c >= 1 {
		count = int(c)
	}

	t := models.AlertTrigger{
		EventID:          String(EventIDRules, doc),
		AlertID:          String(AlertIDRules, doc),
		ShipmentID:       String(ShipmentIDRules, doc),
		TrackerID:        String(TrackerIDRules, doc),
		AlertType:        String(AlertTypeRules, doc),
		AlertName:        String(AlertNameRules, doc),
		Severity:         String(SeverityRules, doc),
		MinThreshold:     OptionalNumber(MinThresholdRules, doc),
		MaxThreshold:     OptionalNumber(MaxThresholdRules, doc),
		Unit:             String(UnitRules, doc),
		AlertDate:        String(AlertDateRules, doc),
		FirstTriggeredAt: first,
		LastTriggeredAt:  last,
		OccurrenceCount:  count,
		SensorValue:      OptionalNumber(SensorValueRules, doc),
		Location:         alertLocation(doc),
	}
	if t.ShipmentID == "" {
		t.ShipmentID = env.ShipmentID
	}
	if t.TrackerID == "" {
		t.TrackerID = env.TrackerID
	}
	return t
}

// alertLocation reads a nested location object first, then coordinates on the
// payload itself. Invalid coordinates yield nil.
func alertLocation(doc map[string]any) *models.GeoPoint {
	src := doc
	if v, ok := First(LocationRules, doc); ok {
		if loc, ok := object(v); ok {
			src = loc
		}
	}
	lat, ok := Number(LatitudeRules, src)
	if !ok {
		return nil
	}
	lng, ok := Number(LongitudeRules, src)
	if !ok {
		return nil
	}
	p := models.GeoPoint{Latitude: lat, Longitude: lng}
	if !p.Valid() {
		return nil
	}
	return &p
}
