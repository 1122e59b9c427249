// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package store holds the current derived view snapshot and applies stream
// messages and snapshot loads to it.
//
// Reads are lock-free: Snapshot returns the current immutable *views.Snapshot.
// Writes (Reset, Seed, ApplyMessage) are serialized by a mutex and publish a new
// snapshot atomically. Each Store owns its replay suppression set and journal;
// two stores never share dedupe state.
package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/shiptrack/internal/cache"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/normalize"
	"github.com/tomtom215/shiptrack/internal/views"
)

// Defaults used when Config leaves a capacity at zero.
const (
	DefaultIdentityCapacity = 4096
	DefaultJournalCapacity  = 1024
)

// Config sizes a Store.
type Config struct {
	Limits           views.Limits
	IdentityCapacity int
	// JournalCapacity bounds the records kept for replay over the next seed.
	// Negative disables the journal.
	JournalCapacity int
	Location        *time.Location
}

// record is one normalized stream record kept for replay.
type record struct {
	alert  *models.AlertTrigger
	sample *models.SensorSample
}

// Store is the Derived View Store.
type Store struct {
	mu sync.Mutex

	current    atomic.Pointer[views.Snapshot]
	identities *cache.IdentitySet
	normalizer *normalize.Normalizer
	journal    []record
	journalCap int
	limits     views.Limits
	loc        *time.Location

	// identity set counters already exported to Prometheus
	reportedHits, reportedMisses, reportedEvictions int64
}

// New returns a Store with no subject selected.
func New(cfg Config) *Store {
	if cfg.IdentityCapacity <= 0 {
		cfg.IdentityCapacity = DefaultIdentityCapacity
	}
	if cfg.JournalCapacity == 0 {
		cfg.JournalCapacity = DefaultJournalCapacity
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Store{
		identities: cache.NewIdentitySet(cfg.IdentityCapacity),
		normalizer: normalize.New(cfg.Location),
		journalCap: max(cfg.JournalCapacity, 0),
		limits:     cfg.Limits,
		loc:        cfg.Location,
	}
	s.current.Store(views.New(models.Subject{}, nil, cfg.Limits, cfg.Location))
	return s
}

// Snapshot returns the current snapshot. It never blocks.
func (s *Store) Snapshot() *views.Snapshot {
	return s.current.Load()
}

// Subject returns the current subject.
func (s *Store) Subject() models.Subject {
	return s.Snapshot().Subject()
}

// Normalizer returns the normalizer used for stream frames so snapshot loads
// decode history with the same rules and clock.
func (s *Store) Normalizer() *normalize.Normalizer {
	return s.normalizer
}

// Reset switches to subject with empty views. It forgets every message identity
// and clears the journal, so nothing received for the previous subject can leak
// into the new one.
func (s *Store) Reset(subject models.Subject, trackers []string) *views.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identities.Clear()
	s.journal = nil
	metrics.JournalRecords.Set(0)

	next := s.publish(views.New(subject, trackers, s.limits, s.loc))
	logging.Debug().
		Str("subject", subject.String()).
		Uint64("version", next.Version()).
		Msg("Store reset")
	return next
}

// ErrStaleSeed is returned by Seed when the seed belongs to a subject that is no
// longer current.
var ErrStaleSeed = errors.New("seed subject is not the current subject")

// Seed replaces the views with a snapshot load and replays the stream records
// received since the last Reset on top of it. Alerts already reflected by a seeded
// summary are not counted twice, and samples already present are skipped, so the
// result is the same whether the load finished before or after those records
// arrived.
func (s *Store) Seed(seed *views.Seed) (*views.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if seed.Subject != cur.Subject() {
		return cur, fmt.Errorf("%w: seed %s, current %s", ErrStaleSeed, seed.Subject, cur.Subject())
	}

	next := views.FromSeed(seed, s.limits, s.loc)
	for _, r := range s.journal {
		switch {
		case r.alert != nil:
			next = views.MergeAlertTrigger(*r.alert, next)
		case r.sample != nil:
			next = views.MergeSensorSample(*r.sample, next)
		}
	}

	next = s.publish(next)
	logging.Info().
		Str("subject", seed.Subject.String()).
		Int("samples", len(seed.Samples)).
		Int("alerts", len(seed.Alerts)).
		Int("events", len(seed.Events)).
		Int("replayed", len(s.journal)).
		Uint64("version", next.Version()).
		Msg("Store seeded")
	return next, nil
}

// ApplyMessage processes one raw stream frame. It reports whether the current
// snapshot changed. Malformed, duplicate and foreign frames leave the store
// unchanged. A panic while processing is recovered, logged and counted; it never
// reaches the caller.
func (s *Store) ApplyMessage(raw []byte) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			changed = false
			metrics.RecordMessage(metrics.OutcomePanic)
			logging.Error().
				Interface("panic", r).
				Int("bytes", len(raw)).
				Msg("Recovered panic while applying stream message")
		}
	}()
	defer s.reportIdentityStats()

	res, err := s.normalizer.Normalize(raw)
	if err != nil {
		metrics.RecordMessage(metrics.OutcomeMalformed)
		logging.Debug().Err(err).Msg("Dropping malformed stream message")
		return false
	}
	if res.Discarded > 0 {
		metrics.SamplesDiscarded.Add(float64(res.Discarded))
	}
	if res.Empty() {
		metrics.RecordMessage(metrics.OutcomeIgnored)
		return false
	}
	if s.identities.Seen(res.Envelope.Identity) {
		metrics.RecordMessage(metrics.OutcomeDuplicate)
		return false
	}

	cur := s.current.Load()
	next := cur
	if res.Alert != nil {
		s.remember(record{alert: res.Alert})
		next = views.MergeAlertTrigger(*res.Alert, next)
	}
	for i := range res.Samples {
		sample := res.Samples[i]
		s.remember(record{sample: &sample})
		next = views.MergeSensorSample(sample, next)
	}

	if next == cur {
		metrics.RecordMessage(metrics.OutcomeIgnored)
		return false
	}
	s.publish(next)
	metrics.RecordMessage(metrics.OutcomeApplied)
	return true
}

// remember appends r to the journal, dropping the oldest record beyond capacity.
func (s *Store) remember(r record) {
	if s.journalCap == 0 {
		return
	}
	s.journal = append(s.journal, r)
	if over := len(s.journal) - s.journalCap; over > 0 {
		s.journal = append(s.journal[:0:0], s.journal[over:]...)
	}
	metrics.JournalRecords.Set(float64(len(s.journal)))
}

// publish stores next as the current snapshot, bumping its version past the
// previous one when it was built from scratch.
func (s *Store) publish(next *views.Snapshot) *views.Snapshot {
	if prev := s.current.Load(); prev != nil && next.Version() <= prev.Version() {
		next = next.WithVersion(prev.Version() + 1)
	}
	s.current.Store(next)
	metrics.ViewVersion.Set(float64(next.Version()))
	return next
}

func (s *Store) reportIdentityStats() {
	hits, misses, evictions, _ := s.identities.Stats()
	metrics.RecordIdentityStats(hits-s.reportedHits, misses-s.reportedMisses, evictions-s.reportedEvictions)
	s.reportedHits, s.reportedMisses, s.reportedEvictions = hits, misses, evictions
}

// JournalLen returns the number of records held for replay.
func (s *Store) JournalLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.journal)
}
