// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package views holds the derived per-subject views and the pure merge functions
// that extend them.
//
// A *Snapshot is immutable once returned. MergeAlertTrigger and MergeSensorSample
// return a new snapshot and leave their input untouched, so readers can hold on
// to any snapshot for as long as they like without locking.
//
// Growth buffers (route and metric series) are append-only and shared along a
// linear chain of snapshots: a snapshot only ever reads its own prefix, so the
// next snapshot may append past it in place. Deriving from a snapshot that is not
// the newest of its chain forks a private copy instead.
package views

import (
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/shiptrack/internal/models"
)

// Default capacities.
const (
	DefaultAlertEventCapacity   = 500
	DefaultAlertSummaryCapacity = 200
)

// Limits bounds the alert collections. Zero values select the defaults.
type Limits struct {
	AlertEventCapacity   int
	AlertSummaryCapacity int
}

func (l Limits) withDefaults() Limits {
	if l.AlertEventCapacity <= 0 {
		l.AlertEventCapacity = DefaultAlertEventCapacity
	}
	if l.AlertSummaryCapacity <= 0 {
		l.AlertSummaryCapacity = DefaultAlertSummaryCapacity
	}
	return l
}

// lineage is shared by a chain of snapshots derived one from another.
type lineage struct {
	mu         sync.Mutex
	tip        uint64
	sampleKeys map[string]struct{}
}

// Snapshot is one immutable state of the derived views for a subject.
type Snapshot struct {
	subject  models.Subject
	trackers []string
	// shipmentOf is the shipment a tracker subject is attached to; empty with
	// shipmentKnown set means it is attached to none.
	shipmentOf    string
	shipmentKnown bool
	version       uint64
	limits        Limits
	loc           *time.Location

	locations map[string]models.LocationPoint
	path      []models.LocationPoint
	series    map[models.Metric][]models.SeriesPoint

	alerts     []models.AlertRecord
	alertIndex map[string]int
	// seeded maps the key of each summary taken from a snapshot load to the
	// LastTriggeredAt it was loaded with.
	seeded map[string]string

	events   []models.AlertEvent
	eventIDs map[string]struct{}

	lin *lineage
	seq uint64
}

// New returns an empty snapshot for subject. trackers lists the trackers attached
// to a shipment or asset subject and may be nil until a snapshot load provides it.
func New(subject models.Subject, trackers []string, limits Limits, loc *time.Location) *Snapshot {
	if loc == nil {
		loc = time.UTC
	}
	return &Snapshot{
		subject:    subject,
		trackers:   slices.Clone(trackers),
		limits:     limits.withDefaults(),
		loc:        loc,
		locations:  map[string]models.LocationPoint{},
		series:     map[models.Metric][]models.SeriesPoint{},
		alertIndex: map[string]int{},
		seeded:     map[string]string{},
		eventIDs:   map[string]struct{}{},
		lin:        &lineage{sampleKeys: map[string]struct{}{}},
	}
}

// Subject returns the subject the snapshot describes.
func (s *Snapshot) Subject() models.Subject { return s.subject }

// Version increases by one with every derived snapshot.
func (s *Snapshot) Version() uint64 { return s.version }

// Limits returns the effective capacities.
func (s *Snapshot) Limits() Limits { return s.limits }

// Trackers returns the trackers attached to the subject, if known.
func (s *Snapshot) Trackers() []string { return slices.Clone(s.trackers) }

// Location returns the current location of trackerID.
func (s *Snapshot) Location(trackerID string) (models.LocationPoint, bool) {
	p, ok := s.locations[trackerID]
	return p, ok
}

// Locations returns the current location of every tracker, ordered by tracker id.
func (s *Snapshot) Locations() []models.LocationPoint {
	out := make([]models.LocationPoint, 0, len(s.locations))
	for _, p := range s.locations {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackerID < out[j].TrackerID })
	return out
}

// Path returns the location series in arrival order.
func (s *Snapshot) Path() []models.LocationPoint { return slices.Clone(s.path) }

// Series returns the series for m in arrival order.
func (s *Snapshot) Series(m models.Metric) []models.SeriesPoint { return slices.Clone(s.series[m]) }

// Alerts returns the alert summaries, newest lastTriggeredAt first.
func (s *Snapshot) Alerts() []models.AlertRecord { return slices.Clone(s.alerts) }

// Alert returns the summary for a composite key.
func (s *Snapshot) Alert(key models.AlertKey) (models.AlertRecord, bool) {
	i, ok := s.alertIndex[key.String()]
	if !ok {
		return models.AlertRecord{}, false
	}
	return s.alerts[i], true
}

// Events returns the alert events, oldest first.
func (s *Snapshot) Events() []models.AlertEvent { return slices.Clone(s.events) }

// Accepts reports whether a record tagged with trackerID and shipmentID belongs to
// the snapshot's subject. Untagged records are accepted; records tagged for some
// other tracker or shipment are not. A tracker subject rejects records tagged only
// with a shipment once its own shipment is known and differs. With no subject
// selected nothing is accepted.
func (s *Snapshot) Accepts(trackerID, shipmentID string) bool {
	if s.subject.IsZero() {
		return false
	}
	switch s.subject.Kind {
	case models.SubjectTracker:
		if trackerID != "" {
			return trackerID == s.subject.ID
		}
		return shipmentID == "" || !s.shipmentKnown || shipmentID == s.shipmentOf
	case models.SubjectShipment:
		if shipmentID != "" {
			return shipmentID == s.subject.ID
		}
		return trackerID == "" || slices.Contains(s.trackers, trackerID)
	case models.SubjectAsset:
		return trackerID == "" || slices.Contains(s.trackers, trackerID)
	default:
		return false
	}
}

// View is the serializable form of a snapshot.
type View struct {
	Subject   models.Subject                         `json:"subject"`
	Version   uint64                                 `json:"version"`
	Trackers  []string                               `json:"trackers,omitempty"`
	Locations []models.LocationPoint                 `json:"locations"`
	Path      []models.LocationPoint                 `json:"path"`
	Series    map[models.Metric][]models.SeriesPoint `json:"series"`
	Alerts    []models.AlertRecord                   `json:"alerts"`
	Events    []models.AlertEvent                    `json:"events"`
}

// View copies the snapshot into a View.
func (s *Snapshot) View() View {
	series := make(map[models.Metric][]models.SeriesPoint, len(s.series))
	for m, pts := range s.series {
		series[m] = slices.Clone(pts)
	}
	return View{
		Subject:   s.subject,
		Version:   s.version,
		Trackers:  s.Trackers(),
		Locations: s.Locations(),
		Path:      s.Path(),
		Series:    series,
		Alerts:    s.Alerts(),
		Events:    s.Events(),
	}
}

// derive returns a shallow successor. Growth buffers stay shared when s is the
// newest snapshot of its lineage and are forked otherwise. Callers replace any
// map or bounded slice they modify.
func (s *Snapshot) derive() *Snapshot {
	next := *s
	next.version = s.version + 1

	s.lin.mu.Lock()
	defer s.lin.mu.Unlock()

	if s.lin.tip == s.seq {
		s.lin.tip++
		next.seq = s.lin.tip
		return &next
	}

	// Branching from an older snapshot: rebuild private growth state from its prefix.
	next.lin = &lineage{sampleKeys: make(map[string]struct{}, len(s.path))}
	next.seq = 0
	for _, p := range s.path {
		next.lin.sampleKeys[pointKey(p.TrackerID, p.Timestamp, p.Latitude, p.Longitude)] = struct{}{}
	}
	next.path = slices.Clip(s.path)
	next.series = make(map[models.Metric][]models.SeriesPoint, len(s.series))
	for m, pts := range s.series {
		next.series[m] = slices.Clip(pts)
	}
	return &next
}

// hasSample reports whether s's own route already holds the sample key. The shared
// index is only authoritative for the newest snapshot of the lineage; older ones
// scan their prefix.
func (s *Snapshot) hasSample(key string) bool {
	s.lin.mu.Lock()
	if s.lin.tip == s.seq {
		_, ok := s.lin.sampleKeys[key]
		s.lin.mu.Unlock()
		return ok
	}
	s.lin.mu.Unlock()

	for _, p := range s.path {
		if pointKey(p.TrackerID, p.Timestamp, p.Latitude, p.Longitude) == key {
			return true
		}
	}
	return false
}

func (s *Snapshot) addSample(key string) {
	s.lin.mu.Lock()
	defer s.lin.mu.Unlock()
	s.lin.sampleKeys[key] = struct{}{}
}

func pointKey(trackerID, ts string, lat, lng float64) string {
	return trackerID + "|" + ts + "|" +
		strconv.FormatFloat(lat, 'g', -1, 64) + "|" +
		strconv.FormatFloat(lng, 'g', -1, 64)
}

// compare orders two raw timestamps chronologically in the snapshot's location.
func (s *Snapshot) compare(a, b string) int {
	return models.CompareTimestamps(a, b, s.loc)
}
