// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package views

import (
	"time"

	"github.com/tomtom215/shiptrack/internal/models"
)

// Seed is the data returned by a snapshot load for one subject.
type Seed struct {
	Subject  models.Subject
	Trackers []string
	// Tracker is the subject's own record for tracker subjects, when known.
	Tracker *models.Tracker
	Samples []models.SensorSample
	Alerts  []models.AlertRecord
	Events  []models.AlertEvent
}

// FromSeed builds a snapshot that holds exactly the seed's data. It does not run
// the incremental merge: summaries are taken as the backend reported them.
// Duplicate samples, summaries sharing a composite key and repeated event ids are
// collapsed (newest summary wins, first event wins).
func FromSeed(seed *Seed, limits Limits, loc *time.Location) *Snapshot {
	s := New(seed.Subject, seed.Trackers, limits, loc)
	if seed.Tracker != nil && s.subject.Kind == models.SubjectTracker {
		s.shipmentOf = seed.Tracker.ShipmentID
		s.shipmentKnown = true
	}

	for i := range seed.Samples {
		r := &seed.Samples[i]
		if !models.ValidCoordinates(r.Latitude, r.Longitude) {
			continue
		}
		trackerID := r.TrackerID
		if trackerID == "" && s.subject.Kind == models.SubjectTracker {
			trackerID = s.subject.ID
		}
		key := pointKey(trackerID, r.Timestamp, r.Latitude, r.Longitude)
		if _, dup := s.lin.sampleKeys[key]; dup {
			continue
		}
		s.lin.sampleKeys[key] = struct{}{}

		point := models.LocationPoint{TrackerID: trackerID, Latitude: r.Latitude, Longitude: r.Longitude, Timestamp: r.Timestamp}
		s.path = append(s.path, point)
		for _, m := range models.Metrics {
			if v := r.Value(m); v != nil {
				s.series[m] = append(s.series[m], models.SeriesPoint{Timestamp: r.Timestamp, Value: *v})
			}
		}
		if cur, ok := s.locations[trackerID]; !ok || s.compare(r.Timestamp, cur.Timestamp) >= 0 {
			s.locations[trackerID] = point
		}
	}

	byKey := make(map[string]int, len(seed.Alerts))
	alerts := make([]models.AlertRecord, 0, len(seed.Alerts))
	for _, rec := range seed.Alerts {
		if rec.Key == "" {
			rec.Key = rec.CompositeKey().String()
		}
		if rec.OccurrenceCount < 1 {
			rec.OccurrenceCount = 1
		}
		if i, ok := byKey[rec.Key]; ok {
			if s.compare(rec.LastTriggeredAt, alerts[i].LastTriggeredAt) > 0 {
				alerts[i] = rec
			}
			continue
		}
		byKey[rec.Key] = len(alerts)
		alerts = append(alerts, rec)
	}
	s.alerts, s.alertIndex = s.sortAndCap(alerts)
	for key, i := range s.alertIndex {
		s.seeded[key] = s.alerts[i].LastTriggeredAt
	}

	for _, ev := range seed.Events {
		if ev.ID == "" || !ev.Location.Valid() {
			continue
		}
		if _, dup := s.eventIDs[ev.ID]; dup {
			continue
		}
		s.events, s.eventIDs = s.appendEvent(ev)
	}
	return s
}

// WithVersion returns a copy of s carrying version v. The store uses it to keep
// versions increasing across resets and seeds. s itself stays valid.
func (s *Snapshot) WithVersion(v uint64) *Snapshot {
	next := s.derive()
	next.version = v
	return next
}
