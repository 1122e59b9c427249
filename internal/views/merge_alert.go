// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package views

import (
	"maps"
	"slices"
	"sort"

	"github.com/tomtom215/shiptrack/internal/models"
)

// MergeAlertTrigger folds t into the alert summary for its composite key and, when
// t carries a valid location and an unseen event id, appends an AlertEvent.
//
// Field policy for an existing summary:
//   - OccurrenceCount accumulates t.OccurrenceCount, except for a summary taken
//     from a snapshot load when t was last triggered no later than the loaded
//     LastTriggeredAt: the loaded count already includes t.
//   - Timestamp and FirstLocation are replaced only when t was first triggered
//     strictly earlier than the stored first-seen time.
//   - LastTriggeredAt, SensorValue, Location and Severity are replaced only when t
//     was last triggered strictly later than the stored time.
//   - Identity fields (AlertID, TrackerID) are filled when still empty.
//
// The summary list is kept sorted by LastTriggeredAt, newest first, and truncated
// to the summary capacity. Events are kept in arrival order, oldest evicted first.
func MergeAlertTrigger(t models.AlertTrigger, s *Snapshot) *Snapshot {
	if !s.Accepts(t.TrackerID, t.ShipmentID) {
		return s
	}
	if t.OccurrenceCount < 1 {
		t.OccurrenceCount = 1
	}
	if t.LastTriggeredAt == "" {
		t.LastTriggeredAt = t.FirstTriggeredAt
	}

	key := t.Key().String()
	next := s.derive()
	alerts := slices.Clone(s.alerts)

	if i, ok := s.alertIndex[key]; ok {
		rec := alerts[i]
		watermark, wasSeeded := s.seeded[key]
		if !wasSeeded || s.compare(t.LastTriggeredAt, watermark) > 0 {
			rec.OccurrenceCount += t.OccurrenceCount
		}
		if s.compare(t.FirstTriggeredAt, rec.Timestamp) < 0 {
			rec.Timestamp = t.FirstTriggeredAt
			rec.FirstLocation = t.Location
		}
		if s.compare(t.LastTriggeredAt, rec.LastTriggeredAt) > 0 {
			rec.LastTriggeredAt = t.LastTriggeredAt
			rec.SensorValue = t.SensorValue
			rec.Location = t.Location
			rec.Severity = t.Severity
		}
		if rec.AlertID == "" {
			rec.AlertID = t.AlertID
		}
		if rec.TrackerID == "" {
			rec.TrackerID = t.TrackerID
		}
		alerts[i] = rec
	} else {
		alerts = append(alerts, recordFromTrigger(key, &t))
		if _, stale := s.seeded[key]; stale {
			seeded := maps.Clone(s.seeded)
			delete(seeded, key)
			next.seeded = seeded
		}
	}
	next.alerts, next.alertIndex = s.sortAndCap(alerts)

	if t.Location != nil && t.Location.Valid() {
		id := t.EventKey()
		if _, seen := s.eventIDs[id]; !seen {
			next.events, next.eventIDs = s.appendEvent(eventFromTrigger(id, key, &t))
		}
	}
	return next
}

func recordFromTrigger(key string, t *models.AlertTrigger) models.AlertRecord {
	return models.AlertRecord{
		Key:             key,
		AlertID:         t.AlertID,
		ShipmentID:      t.ShipmentID,
		TrackerID:       t.TrackerID,
		AlertType:       t.AlertType,
		AlertName:       t.AlertName,
		Severity:        t.Severity,
		MinThreshold:    t.MinThreshold,
		MaxThreshold:    t.MaxThreshold,
		Unit:            t.Unit,
		AlertDate:       t.AlertDate,
		Timestamp:       t.FirstTriggeredAt,
		FirstLocation:   t.Location,
		LastTriggeredAt: t.LastTriggeredAt,
		OccurrenceCount: t.OccurrenceCount,
		SensorValue:     t.SensorValue,
		Location:        t.Location,
	}
}

func eventFromTrigger(id, key string, t *models.AlertTrigger) models.AlertEvent {
	return models.AlertEvent{
		ID:          id,
		AlertID:     t.AlertID,
		AlertKey:    key,
		ShipmentID:  t.ShipmentID,
		TrackerID:   t.TrackerID,
		AlertType:   t.AlertType,
		Severity:    t.Severity,
		SensorValue: t.SensorValue,
		Location:    *t.Location,
		Timestamp:   t.LastTriggeredAt,
	}
}

// appendEvent returns fresh event and id collections with ev added and the oldest
// entries beyond capacity evicted.
func (s *Snapshot) appendEvent(ev models.AlertEvent) ([]models.AlertEvent, map[string]struct{}) {
	events := make([]models.AlertEvent, 0, len(s.events)+1)
	events = append(events, s.events...)
	events = append(events, ev)

	ids := maps.Clone(s.eventIDs)
	ids[ev.ID] = struct{}{}

	if over := len(events) - s.limits.AlertEventCapacity; over > 0 {
		for _, old := range events[:over] {
			delete(ids, old.ID)
		}
		events = events[over:]
	}
	return events, ids
}

// sortAndCap orders summaries newest first (ties broken by key so the result does
// not depend on arrival order), truncates to capacity and rebuilds the key index.
func (s *Snapshot) sortAndCap(alerts []models.AlertRecord) ([]models.AlertRecord, map[string]int) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if c := s.compare(alerts[i].LastTriggeredAt, alerts[j].LastTriggeredAt); c != 0 {
			return c > 0
		}
		return alerts[i].Key < alerts[j].Key
	})
	if len(alerts) > s.limits.AlertSummaryCapacity {
		alerts = alerts[:s.limits.AlertSummaryCapacity]
	}
	index := make(map[string]int, len(alerts))
	for i := range alerts {
		index[alerts[i].Key] = i
	}
	return alerts, index
}
