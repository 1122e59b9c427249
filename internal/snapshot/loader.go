// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package snapshot loads the initial state of a subject from the backend.
//
// LoadAll issues the REST calls a subject needs concurrently. Each call is a
// "part"; a failed part is recorded in Result.Errors and the remaining parts still
// complete, so a dashboard can show whatever did load. Nothing is retried.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/shiptrack/internal/backend"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/normalize"
	"github.com/tomtom215/shiptrack/internal/views"
)

// Part names used as keys of Result.Errors. History and per-tracker alert parts
// are suffixed with ":" and the tracker id.
const (
	PartEntity  = "entity"
	PartAlerts  = "alerts"
	PartEvents  = "events"
	PartHistory = "history"
)

// Result is the outcome of one LoadAll call.
type Result struct {
	Subject   models.Subject
	Range     models.DateRange
	Trackers  []string
	Tracker   *models.Tracker
	Shipment  *models.Shipment
	Asset     *models.Asset
	Samples   []models.SensorSample
	Discarded int
	Alerts    []models.AlertRecord
	Events    []models.AlertEvent
	Errors    map[string]error
	Duration  time.Duration
}

// Seed converts the result into the input of store.Seed.
func (r *Result) Seed() *views.Seed {
	return &views.Seed{
		Subject:  r.Subject,
		Trackers: r.Trackers,
		Tracker:  r.Tracker,
		Samples:  r.Samples,
		Alerts:   r.Alerts,
		Events:   r.Events,
	}
}

// Unauthorized reports whether any part was rejected for the credential.
func (r *Result) Unauthorized() bool {
	for _, err := range r.Errors {
		if errors.Is(err, backend.ErrUnauthorized) {
			return true
		}
	}
	return false
}

// Err joins the part errors in part order, or returns nil.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	parts := r.FailedParts()
	errs := make([]error, 0, len(parts))
	for _, p := range parts {
		errs = append(errs, fmt.Errorf("%s: %w", p, r.Errors[p]))
	}
	return errors.Join(errs...)
}

// FailedParts returns the names of failed parts, sorted.
func (r *Result) FailedParts() []string {
	parts := make([]string, 0, len(r.Errors))
	for p := range r.Errors {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return parts
}

// Loader fetches subject snapshots.
type Loader struct {
	api        backend.API
	normalizer *normalize.Normalizer
}

// NewLoader returns a Loader. History documents are decoded with n so they follow
// the same field rules as stream frames.
func NewLoader(api backend.API, n *normalize.Normalizer) *Loader {
	return &Loader{api: api, normalizer: n}
}

// LoadAll loads everything the views need for subject over rng.
func (l *Loader) LoadAll(ctx context.Context, subject models.Subject, rng models.DateRange) *Result {
	start := time.Now()
	res := &Result{Subject: subject, Range: rng, Errors: map[string]error{}}
	var mu sync.Mutex
	fail := func(part string, err error) {
		mu.Lock()
		res.Errors[part] = err
		mu.Unlock()
	}

	var wg sync.WaitGroup

	// Subject-wide alert queries do not depend on the tracker list.
	if filter, ok := subjectFilter(subject); ok {
		wg.Add(2)
		go func() {
			defer wg.Done()
			alerts, err := l.api.Alerts(ctx, filter)
			if err != nil {
				fail(PartAlerts, err)
				return
			}
			mu.Lock()
			res.Alerts = append(res.Alerts, alerts...)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			events, err := l.api.AlertEvents(ctx, filter)
			if err != nil {
				fail(PartEvents, err)
				return
			}
			mu.Lock()
			res.Events = append(res.Events, events...)
			mu.Unlock()
		}()
	}

	trackers, err := l.resolveTrackers(ctx, res)
	if err != nil {
		fail(PartEntity, err)
	}
	res.Trackers = trackers

	shipmentID := ""
	if subject.Kind == models.SubjectShipment {
		shipmentID = subject.ID
	}

	samples := make([][]models.SensorSample, len(trackers))
	discarded := make([]int, len(trackers))
	for i, id := range trackers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs, err := l.api.TrackerHistory(ctx, id, rng)
			if err != nil {
				fail(PartHistory+":"+id, err)
				return
			}
			for _, doc := range docs {
				s, d := l.normalizer.Samples(doc, id, shipmentID)
				samples[i] = append(samples[i], s...)
				discarded[i] += d
			}
		}()

		// Assets have no alert scope of their own; alerts are queried per tracker.
		if subject.Kind == models.SubjectAsset {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f := backend.AlertFilter{TrackerID: id}
				alerts, err := l.api.Alerts(ctx, f)
				if err != nil {
					fail(PartAlerts+":"+id, err)
					return
				}
				events, err := l.api.AlertEvents(ctx, f)
				if err != nil {
					fail(PartEvents+":"+id, err)
				}
				mu.Lock()
				res.Alerts = append(res.Alerts, alerts...)
				res.Events = append(res.Events, events...)
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	for i := range trackers {
		res.Samples = append(res.Samples, samples[i]...)
		res.Discarded += discarded[i]
	}
	res.Duration = time.Since(start)

	failed := res.FailedParts()
	labels := make([]string, len(failed))
	for i, p := range failed {
		labels[i], _, _ = strings.Cut(p, ":")
	}
	metrics.RecordSnapshotLoad(res.Duration, labels)
	if res.Discarded > 0 {
		metrics.SamplesDiscarded.Add(float64(res.Discarded))
	}

	event := logging.Info()
	if len(failed) > 0 {
		event = logging.Warn().Strs("failed_parts", failed).AnErr("error", res.Err())
	}
	event.
		Str("subject", subject.String()).
		Int("trackers", len(trackers)).
		Int("samples", len(res.Samples)).
		Int("alerts", len(res.Alerts)).
		Int("events", len(res.Events)).
		Dur("duration", res.Duration).
		Msg("Snapshot loaded")
	return res
}

// resolveTrackers returns the trackers whose history the subject needs.
func (l *Loader) resolveTrackers(ctx context.Context, res *Result) ([]string, error) {
	switch res.Subject.Kind {
	case models.SubjectTracker:
		// The tracker record only tells which shipment it rides with; history
		// loads without it.
		trackers := []string{res.Subject.ID}
		all, err := l.api.ListTrackers(ctx)
		if err != nil {
			return trackers, err
		}
		for i := range all {
			if all[i].ID == res.Subject.ID {
				res.Tracker = &all[i]
				break
			}
		}
		return trackers, nil
	case models.SubjectShipment:
		shipment, err := l.api.GetShipment(ctx, res.Subject.ID)
		if err != nil {
			return nil, err
		}
		res.Shipment = shipment
		return shipment.TrackerIDs, nil
	case models.SubjectAsset:
		asset, err := l.api.GetAsset(ctx, res.Subject.ID)
		if err != nil {
			return nil, err
		}
		res.Asset = asset
		return asset.TrackerIDs, nil
	default:
		return nil, fmt.Errorf("unsupported subject kind %q", res.Subject.Kind)
	}
}

// subjectFilter returns the alert query for subjects the backend can filter on.
func subjectFilter(s models.Subject) (backend.AlertFilter, bool) {
	switch s.Kind {
	case models.SubjectShipment:
		return backend.AlertFilter{ShipmentID: s.ID}, true
	case models.SubjectTracker:
		return backend.AlertFilter{TrackerID: s.ID}, true
	default:
		return backend.AlertFilter{}, false
	}
}
