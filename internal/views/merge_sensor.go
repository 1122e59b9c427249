// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package views

import (
	"maps"

	"github.com/tomtom215/shiptrack/internal/models"
)

// MergeSensorSample appends r to the route and to the series of every metric it
// reports, and moves the tracker's current location to r unless r is older than
// the stored position.
//
// Samples outside the subject, with invalid coordinates, or already on the route
// (same tracker, timestamp and coordinates) leave s unchanged and return s itself.
func MergeSensorSample(r models.SensorSample, s *Snapshot) *Snapshot {
	if !s.Accepts(r.TrackerID, r.ShipmentID) || !models.ValidCoordinates(r.Latitude, r.Longitude) {
		return s
	}

	trackerID := r.TrackerID
	if trackerID == "" && s.subject.Kind == models.SubjectTracker {
		trackerID = s.subject.ID
	}
	key := pointKey(trackerID, r.Timestamp, r.Latitude, r.Longitude)
	if s.hasSample(key) {
		return s
	}

	next := s.derive()
	next.addSample(key)

	point := models.LocationPoint{
		TrackerID: trackerID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timestamp: r.Timestamp,
	}
	next.path = append(next.path, point)

	series := make(map[models.Metric][]models.SeriesPoint, len(models.Metrics))
	for m, pts := range next.series {
		series[m] = pts
	}
	for _, m := range models.Metrics {
		if v := r.Value(m); v != nil {
			series[m] = append(series[m], models.SeriesPoint{Timestamp: r.Timestamp, Value: *v})
		}
	}
	next.series = series

	if cur, ok := s.locations[trackerID]; !ok || s.compare(r.Timestamp, cur.Timestamp) >= 0 {
		locs := maps.Clone(s.locations)
		locs[trackerID] = point
		next.locations = locs
	}
	return next
}
