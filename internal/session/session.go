// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package session runs the event loop that owns subject switching.
//
// Stream frames, snapshot results and subject changes are all handled on one
// goroutine, so the store sees them in a single order. A subject switch resets
// the store before anything else happens and bumps a generation counter;
// snapshot results carrying an older generation are discarded.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/shiptrack/internal/credential"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/snapshot"
	"github.com/tomtom215/shiptrack/internal/store"
	"github.com/tomtom215/shiptrack/internal/stream"
	"github.com/tomtom215/shiptrack/internal/views"
	"github.com/tomtom215/shiptrack/internal/websocket"
)

// ErrStopped is returned when the event loop is not running.
var ErrStopped = errors.New("session event loop stopped")

// Loader loads the snapshot of a subject.
type Loader interface {
	LoadAll(ctx context.Context, subject models.Subject, rng models.DateRange) *snapshot.Result
}

// Broadcaster pushes notifications to presentation clients.
type Broadcaster interface {
	Broadcast(messageType string, data any)
}

// Stream is the part of stream.Manager the session drives.
type Stream interface {
	OnMessage(fn func([]byte))
	OnStateChange(fn func(stream.Status))
	Status() stream.Status
	CredentialChanged()
}

// Credentials is the part of credential.Store the session listens to.
type Credentials interface {
	OnChange(fn credential.Listener)
}

// Config configures a Session.
type Config struct {
	// InboxSize bounds the frames buffered between the stream and the loop.
	InboxSize int
	// HistoryWindow is the range used when SetSubject gets a zero range.
	HistoryWindow time.Duration
	// Initial is the subject selected when the loop first starts, if any.
	Initial models.Subject
}

// LoadInfo describes the last snapshot load applied to the store.
type LoadInfo struct {
	Generation   uint64        `json:"generation"`
	FinishedAt   time.Time     `json:"finishedAt"`
	Duration     time.Duration `json:"durationNs"`
	FailedParts  []string      `json:"failedParts,omitempty"`
	Discarded    int           `json:"discardedSamples"`
	Unauthorized bool          `json:"unauthorized"`
}

// Info is a point-in-time description of the session.
type Info struct {
	Subject    models.Subject   `json:"subject"`
	Range      models.DateRange `json:"range"`
	Generation uint64           `json:"generation"`
	Loading    bool             `json:"loading"`
	Version    uint64           `json:"version"`
	LastLoad   *LoadInfo        `json:"lastLoad,omitempty"`
}

// SubjectChanged is the payload of subject_changed notifications.
type SubjectChanged struct {
	Subject models.Subject   `json:"subject"`
	Range   models.DateRange `json:"range"`
	Version uint64           `json:"version"`
}

// ViewUpdated is the payload of view_updated notifications.
type ViewUpdated struct {
	Subject models.Subject `json:"subject"`
	Version uint64         `json:"version"`
}

// SnapshotLoaded is the payload of snapshot_loaded notifications.
type SnapshotLoaded struct {
	Subject     models.Subject `json:"subject"`
	Version     uint64         `json:"version"`
	FailedParts []string       `json:"failedParts,omitempty"`
	DurationMs  int64          `json:"durationMs"`
}

// AuthRequired is the payload of auth_required notifications.
type AuthRequired struct {
	Source string `json:"source"`
}

type loadResult struct {
	gen uint64
	res *snapshot.Result
}

// Session serializes everything that changes the store.
type Session struct {
	cfg    Config
	store  *store.Store
	loader Loader
	hub    Broadcaster
	stream Stream
	now    func() time.Time

	inbox   chan []byte
	cmds    chan func(ctx context.Context)
	results chan loadResult

	// Loop-owned.
	cancelLoad    context.CancelFunc
	started       bool
	authFailed    bool
	pendingUpdate bool

	mu      sync.RWMutex
	info    Info
	running chan struct{}
	stopped chan struct{}
}

// New wires a session to its collaborators. Stream frames start flowing into
// the inbox immediately and are applied once Run is called.
func New(cfg Config, st *store.Store, loader Loader, hub Broadcaster, strm Stream, creds Credentials) *Session {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 24 * time.Hour
	}
	s := &Session{
		cfg:     cfg,
		store:   st,
		loader:  loader,
		hub:     hub,
		stream:  strm,
		now:     time.Now,
		inbox:   make(chan []byte, cfg.InboxSize),
		cmds:    make(chan func(ctx context.Context)),
		results: make(chan loadResult),
		running: make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if strm != nil {
		strm.OnMessage(s.enqueue)
		strm.OnStateChange(func(status stream.Status) {
			hub.Broadcast(websocket.MessageTypeConnectionState, status)
		})
	}
	if creds != nil {
		creds.OnChange(s.credentialChanged)
	}
	return s
}

// Run processes events until ctx is canceled. It implements suture.Service
// through Serve.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = make(chan struct{})
	close(s.running)
	s.mu.Unlock()

	defer func() {
		if s.cancelLoad != nil {
			s.cancelLoad()
			s.cancelLoad = nil
		}
		s.mu.Lock()
		close(s.stopped)
		s.running = make(chan struct{})
		s.info.Loading = false
		s.mu.Unlock()
		logging.Info().Msg("Session event loop stopped")
	}()

	if !s.started {
		s.started = true
		if !s.cfg.Initial.IsZero() {
			s.switchSubject(ctx, s.cfg.Initial, models.DateRange{})
		}
	}
	logging.Info().Str("subject", s.store.Subject().String()).Msg("Session event loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.cmds:
			fn(ctx)
		case r := <-s.results:
			s.applyLoad(r)
		case raw := <-s.inbox:
			s.applyFrame(raw)
		}
		s.flush()
	}
}

// Serve implements suture.Service.
func (s *Session) Serve(ctx context.Context) error {
	return s.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (s *Session) String() string {
	return "session"
}

// Info returns the current session state.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := s.info
	if info.LastLoad != nil {
		last := *info.LastLoad
		last.FailedParts = slices.Clone(last.FailedParts)
		info.LastLoad = &last
	}
	info.Version = s.store.Snapshot().Version()
	return info
}

// Snapshot returns the current view snapshot.
func (s *Session) Snapshot() *views.Snapshot {
	return s.store.Snapshot()
}

// Greeting is the state a newly connected presentation client starts from.
func (s *Session) Greeting() []websocket.Message {
	snap := s.store.Snapshot()
	msgs := []websocket.Message{
		{Type: websocket.MessageTypeViewUpdated, Data: ViewUpdated{Subject: snap.Subject(), Version: snap.Version()}},
	}
	if s.stream != nil {
		msgs = append(msgs, websocket.Message{Type: websocket.MessageTypeConnectionState, Data: s.stream.Status()})
	}
	return msgs
}

// SetSubject switches the observed subject. The store is reset to the empty
// views of subject before SetSubject returns, and a snapshot load for rng is
// started. A zero rng means the configured history window ending now.
func (s *Session) SetSubject(ctx context.Context, subject models.Subject, rng models.DateRange) (*views.Snapshot, error) {
	reply := make(chan *views.Snapshot, 1)
	err := s.submit(ctx, func(loopCtx context.Context) {
		reply <- s.switchSubject(loopCtx, subject, rng)
	})
	if err != nil {
		return nil, err
	}
	return <-reply, nil
}

// Reload loads the snapshot of the current subject again without resetting
// the views.
func (s *Session) Reload(ctx context.Context) error {
	return s.submit(ctx, func(loopCtx context.Context) {
		s.reload(loopCtx)
	})
}

// submit hands fn to the loop. It waits for the loop to start, so calls made
// during startup are not lost.
func (s *Session) submit(ctx context.Context, fn func(context.Context)) error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	select {
	case <-running:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()

	done := make(chan struct{})
	wrapped := func(loopCtx context.Context) {
		defer close(done)
		fn(loopCtx)
	}
	select {
	case s.cmds <- wrapped:
	case <-stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// enqueue is the stream's message callback. It blocks while the inbox is full
// so frames are never reordered or silently lost while the loop runs.
func (s *Session) enqueue(raw []byte) {
	select {
	case s.inbox <- raw:
		metrics.SessionInboxDepth.Set(float64(len(s.inbox)))
		return
	default:
	}

	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	select {
	case s.inbox <- raw:
	case <-stopped:
		logging.Warn().Msg("Session stopped, dropping stream frame")
	}
	metrics.SessionInboxDepth.Set(float64(len(s.inbox)))
}

func (s *Session) applyFrame(raw []byte) {
	metrics.SessionInboxDepth.Set(float64(len(s.inbox)))
	if s.store.ApplyMessage(raw) {
		s.pendingUpdate = true
	}
}

// flush broadcasts a single view_updated once the inbox is drained, so a
// burst of frames produces one notification.
func (s *Session) flush() {
	if !s.pendingUpdate || len(s.inbox) > 0 {
		return
	}
	s.pendingUpdate = false
	snap := s.store.Snapshot()
	s.hub.Broadcast(websocket.MessageTypeViewUpdated, ViewUpdated{Subject: snap.Subject(), Version: snap.Version()})
}

func (s *Session) switchSubject(ctx context.Context, subject models.Subject, rng models.DateRange) *views.Snapshot {
	if rng.Start.IsZero() && rng.End.IsZero() {
		rng = models.LastWindow(s.now(), s.cfg.HistoryWindow)
	}

	var trackers []string
	if subject.Kind == models.SubjectTracker {
		trackers = []string{subject.ID}
	}
	snap := s.store.Reset(subject, trackers)
	s.pendingUpdate = false
	metrics.SubjectSwitches.Inc()

	s.mu.Lock()
	s.info.Subject = subject
	s.info.Range = rng
	s.info.LastLoad = nil
	s.mu.Unlock()

	logging.Info().
		Str("subject", subject.String()).
		Time("start", rng.Start).
		Time("end", rng.End).
		Msg("Subject switched")
	s.hub.Broadcast(websocket.MessageTypeSubjectChanged, SubjectChanged{Subject: subject, Range: rng, Version: snap.Version()})

	s.startLoad(ctx, subject, rng)
	return snap
}

func (s *Session) reload(ctx context.Context) {
	s.mu.RLock()
	subject, rng := s.info.Subject, s.info.Range
	s.mu.RUnlock()
	if subject.IsZero() {
		return
	}
	s.startLoad(ctx, subject, rng)
}

// startLoad cancels any load in flight and starts a new one for the next
// generation.
func (s *Session) startLoad(ctx context.Context, subject models.Subject, rng models.DateRange) {
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.authFailed = false

	s.mu.Lock()
	s.info.Generation++
	gen := s.info.Generation
	s.info.Loading = true
	s.mu.Unlock()

	go func() {
		res := s.loader.LoadAll(loadCtx, subject, rng)
		select {
		case s.results <- loadResult{gen: gen, res: res}:
		case <-loadCtx.Done():
			metrics.SnapshotsStale.Inc()
		}
	}()
}

func (s *Session) applyLoad(r loadResult) {
	s.mu.RLock()
	current := s.info.Generation
	s.mu.RUnlock()
	if r.gen != current {
		metrics.SnapshotsStale.Inc()
		logging.Debug().Uint64("generation", r.gen).Uint64("current", current).Msg("Dropping stale snapshot")
		return
	}
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}

	snap, err := s.store.Seed(r.res.Seed())
	if err != nil {
		metrics.SnapshotsStale.Inc()
		logging.Warn().Err(err).Msg("Snapshot no longer matches the store")
		return
	}

	failed := r.res.FailedParts()
	unauthorized := r.res.Unauthorized()
	s.mu.Lock()
	s.info.Loading = false
	s.info.LastLoad = &LoadInfo{
		Generation:   r.gen,
		FinishedAt:   s.now(),
		Duration:     r.res.Duration,
		FailedParts:  failed,
		Discarded:    r.res.Discarded,
		Unauthorized: unauthorized,
	}
	s.mu.Unlock()

	s.pendingUpdate = false
	s.hub.Broadcast(websocket.MessageTypeSnapshotLoaded, SnapshotLoaded{
		Subject:     snap.Subject(),
		Version:     snap.Version(),
		FailedParts: failed,
		DurationMs:  r.res.Duration.Milliseconds(),
	})
	s.hub.Broadcast(websocket.MessageTypeViewUpdated, ViewUpdated{Subject: snap.Subject(), Version: snap.Version()})

	if unauthorized {
		s.authFailed = true
		s.hub.Broadcast(websocket.MessageTypeAuthRequired, AuthRequired{Source: credential.SourceUnauthorized})
	}
}

// credentialChanged reopens the stream with the new credential. A credential
// that arrives after a rejected load triggers a reload of the current subject.
func (s *Session) credentialChanged(token, source string) {
	if s.stream != nil {
		s.stream.CredentialChanged()
	}
	if token == "" {
		if source != credential.SourceUnauthorized {
			s.hub.Broadcast(websocket.MessageTypeAuthRequired, AuthRequired{Source: source})
		}
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.submit(ctx, func(loopCtx context.Context) {
			if s.authFailed {
				logging.Info().Str("source", source).Msg("Credential renewed, reloading snapshot")
				s.reload(loopCtx)
			}
		})
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logging.Debug().Err(err).Msg("Credential change not applied to session")
		}
	}()
}
