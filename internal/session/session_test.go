// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/shiptrack/internal/backend"
	"github.com/tomtom215/shiptrack/internal/credential"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/snapshot"
	"github.com/tomtom215/shiptrack/internal/store"
	"github.com/tomtom215/shiptrack/internal/stream"
	"github.com/tomtom215/shiptrack/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

var (
	trackerT1  = models.Subject{Kind: models.SubjectTracker, ID: "T1"}
	shipmentS1 = models.Subject{Kind: models.SubjectShipment, ID: "S1"}
	shipmentS2 = models.Subject{Kind: models.SubjectShipment, ID: "S2"}
)

type loadFunc func(ctx context.Context, subject models.Subject, rng models.DateRange) *snapshot.Result

type fakeLoader struct {
	mu    sync.Mutex
	fn    loadFunc
	calls []models.Subject
}

func (l *fakeLoader) LoadAll(ctx context.Context, subject models.Subject, rng models.DateRange) *snapshot.Result {
	l.mu.Lock()
	l.calls = append(l.calls, subject)
	fn := l.fn
	l.mu.Unlock()
	if fn == nil {
		return &snapshot.Result{Subject: subject, Range: rng, Errors: map[string]error{}}
	}
	return fn(ctx, subject, rng)
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (h *recordingHub) Broadcast(messageType string, data any) {
	h.mu.Lock()
	h.msgs = append(h.msgs, websocket.Message{Type: messageType, Data: data})
	h.mu.Unlock()
}

func (h *recordingHub) ofType(messageType string) []websocket.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []websocket.Message
	for _, m := range h.msgs {
		if m.Type == messageType {
			out = append(out, m)
		}
	}
	return out
}

type fakeStream struct {
	mu        sync.Mutex
	onMessage func([]byte)
	onState   func(stream.Status)
	changes   atomic.Int32
}

func (f *fakeStream) OnMessage(fn func([]byte)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakeStream) OnStateChange(fn func(stream.Status)) {
	f.mu.Lock()
	f.onState = fn
	f.mu.Unlock()
}

func (f *fakeStream) Status() stream.Status {
	return stream.Status{State: stream.StateOpen.String()}
}

func (f *fakeStream) CredentialChanged() { f.changes.Add(1) }

func (f *fakeStream) deliver(raw []byte) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	fn(raw)
}

type fakeCreds struct {
	listener credential.Listener
}

func (c *fakeCreds) OnChange(fn credential.Listener) { c.listener = fn }

type fixture struct {
	session *Session
	store   *store.Store
	loader  *fakeLoader
	hub     *recordingHub
	stream  *fakeStream
	creds   *fakeCreds
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st := store.New(store.Config{Location: time.UTC})
	st.Normalizer().Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	fx := &fixture{
		store:  st,
		loader: &fakeLoader{},
		hub:    &recordingHub{},
		stream: &fakeStream{},
		creds:  &fakeCreds{},
	}
	fx.session = New(cfg, st, fx.loader, fx.hub, fx.stream, fx.creds)
	return fx
}

func (fx *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fx.session.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sensorFrame(tracker string, lat, lng float64, ts string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"sensor_data","trackerId":%q,"data":[{"Lat":%g,"Lng":%g,"DT":%q,"Temp":20}]}`,
		tracker, lat, lng, ts))
}

func seededResult(subject models.Subject, tracker string, n int) *snapshot.Result {
	res := &snapshot.Result{Subject: subject, Trackers: []string{tracker}, Errors: map[string]error{}}
	for i := 0; i < n; i++ {
		res.Samples = append(res.Samples, models.SensorSample{
			TrackerID: tracker,
			Latitude:  10 + float64(i),
			Longitude: 20,
			Timestamp: fmt.Sprintf("2024-01-01T0%d:00:00Z", i),
		})
	}
	return res
}

func TestSetSubject_ResetsAndLoads(t *testing.T) {
	fx := newFixture(t, Config{})
	fx.loader.fn = func(_ context.Context, subject models.Subject, _ models.DateRange) *snapshot.Result {
		return seededResult(subject, "T9", 3)
	}
	fx.run(t)

	snap, err := fx.session.SetSubject(context.Background(), shipmentS1, models.DateRange{})
	if err != nil {
		t.Fatalf("SetSubject() error = %v", err)
	}
	if snap.Subject() != shipmentS1 {
		t.Errorf("subject = %v, want %v", snap.Subject(), shipmentS1)
	}
	if len(fx.hub.ofType(websocket.MessageTypeSubjectChanged)) != 1 {
		t.Error("expected one subject_changed broadcast")
	}

	eventually(t, "snapshot_loaded", func() bool {
		return len(fx.hub.ofType(websocket.MessageTypeSnapshotLoaded)) == 1
	})
	if got := len(fx.store.Snapshot().Path()); got != 3 {
		t.Errorf("path length = %d, want 3", got)
	}

	info := fx.session.Info()
	if info.Loading || info.LastLoad == nil || info.LastLoad.Generation != info.Generation {
		t.Errorf("info = %+v", info)
	}
	if info.Range.End.Sub(info.Range.Start) != 24*time.Hour {
		t.Errorf("default window = %v", info.Range.End.Sub(info.Range.Start))
	}
}

func TestSetSubject_ExplicitRange(t *testing.T) {
	fx := newFixture(t, Config{})
	var got models.DateRange
	var mu sync.Mutex
	fx.loader.fn = func(_ context.Context, subject models.Subject, rng models.DateRange) *snapshot.Result {
		mu.Lock()
		got = rng
		mu.Unlock()
		return &snapshot.Result{Subject: subject, Errors: map[string]error{}}
	}
	fx.run(t)

	want := models.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if _, err := fx.session.SetSubject(context.Background(), trackerT1, want); err != nil {
		t.Fatal(err)
	}
	eventually(t, "load", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !got.Start.IsZero()
	})
	mu.Lock()
	defer mu.Unlock()
	if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Errorf("range = %+v, want %+v", got, want)
	}
}

func TestStreamFrames_AppliedInOrderAndCoalesced(t *testing.T) {
	fx := newFixture(t, Config{})
	fx.run(t)
	if _, err := fx.session.SetSubject(context.Background(), trackerT1, models.DateRange{}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "snapshot_loaded", func() bool {
		return len(fx.hub.ofType(websocket.MessageTypeSnapshotLoaded)) == 1
	})

	fx.stream.deliver(sensorFrame("T1", 40.1, -74.0, "2024-01-01T00:00:00Z"))
	fx.stream.deliver(sensorFrame("T1", 40.2, -74.1, "2024-01-01T00:05:00Z"))
	fx.stream.deliver(sensorFrame("T1", 40.2, -74.1, "2024-01-01T00:05:00Z"))

	eventually(t, "two path points", func() bool { return len(fx.store.Snapshot().Path()) == 2 })
	cur, ok := fx.store.Snapshot().Location("T1")
	if !ok || cur.Latitude != 40.2 {
		t.Errorf("current location = %+v, %v", cur, ok)
	}
	eventually(t, "view_updated", func() bool {
		for _, m := range fx.hub.ofType(websocket.MessageTypeViewUpdated) {
			if m.Data.(ViewUpdated).Version == fx.store.Snapshot().Version() {
				return true
			}
		}
		return false
	})
}

func TestForeignFramesDoNotLeakAcrossSubjects(t *testing.T) {
	fx := newFixture(t, Config{})
	fx.run(t)
	ctx := context.Background()

	if _, err := fx.session.SetSubject(ctx, trackerT1, models.DateRange{}); err != nil {
		t.Fatal(err)
	}
	fx.stream.deliver(sensorFrame("T1", 1, 1, "2024-01-01T00:00:00Z"))
	eventually(t, "T1 sample", func() bool { return len(fx.store.Snapshot().Path()) == 1 })

	other := models.Subject{Kind: models.SubjectTracker, ID: "T2"}
	snap, err := fx.session.SetSubject(ctx, other, models.DateRange{})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Path()) != 0 {
		t.Errorf("path after switch = %d, want 0", len(snap.Path()))
	}

	fx.stream.deliver(sensorFrame("T1", 2, 2, "2024-01-01T00:01:00Z"))
	fx.stream.deliver(sensorFrame("T2", 3, 3, "2024-01-01T00:02:00Z"))
	eventually(t, "T2 sample", func() bool { return len(fx.store.Snapshot().Path()) == 1 })
	if _, ok := fx.store.Snapshot().Location("T1"); ok {
		t.Error("T1 location leaked into T2 view")
	}
}

func TestStaleSnapshotIsDropped(t *testing.T) {
	fx := newFixture(t, Config{})
	release := make(chan struct{})
	fx.loader.fn = func(_ context.Context, subject models.Subject, _ models.DateRange) *snapshot.Result {
		if subject == shipmentS1 {
			<-release
			return seededResult(subject, "T1", 5)
		}
		return seededResult(subject, "T2", 1)
	}
	fx.run(t)

	before := testutil.ToFloat64(metrics.SnapshotsStale)
	ctx := context.Background()
	if _, err := fx.session.SetSubject(ctx, shipmentS1, models.DateRange{}); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.session.SetSubject(ctx, shipmentS2, models.DateRange{}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "S2 loaded", func() bool { return len(fx.store.Snapshot().Path()) == 1 })

	close(release)
	eventually(t, "stale counted", func() bool {
		return testutil.ToFloat64(metrics.SnapshotsStale) >= before+1
	})

	snap := fx.store.Snapshot()
	if snap.Subject() != shipmentS2 || len(snap.Path()) != 1 {
		t.Errorf("store = %v with %d points, want S2 with 1", snap.Subject(), len(snap.Path()))
	}
	if n := len(fx.hub.ofType(websocket.MessageTypeSnapshotLoaded)); n != 1 {
		t.Errorf("snapshot_loaded broadcasts = %d, want 1", n)
	}
}

func TestUnauthorizedLoad(t *testing.T) {
	fx := newFixture(t, Config{})
	var fail atomic.Bool
	fail.Store(true)
	fx.loader.fn = func(_ context.Context, subject models.Subject, _ models.DateRange) *snapshot.Result {
		res := &snapshot.Result{Subject: subject, Errors: map[string]error{}}
		if fail.Load() {
			res.Errors[snapshot.PartEntity] = fmt.Errorf("get shipment: %w", backend.ErrUnauthorized)
		}
		return res
	}
	fx.run(t)

	if _, err := fx.session.SetSubject(context.Background(), shipmentS1, models.DateRange{}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "auth_required", func() bool {
		return len(fx.hub.ofType(websocket.MessageTypeAuthRequired)) == 1
	})
	if info := fx.session.Info(); info.LastLoad == nil || !info.LastLoad.Unauthorized {
		t.Errorf("last load = %+v, want unauthorized", info.LastLoad)
	}

	// The backend client invalidated the credential; that change is not
	// announced twice.
	fx.creds.listener("", credential.SourceUnauthorized)
	if n := len(fx.hub.ofType(websocket.MessageTypeAuthRequired)); n != 1 {
		t.Errorf("auth_required broadcasts = %d, want 1", n)
	}

	fail.Store(false)
	fx.creds.listener("new-token", credential.SourceSet)
	eventually(t, "reload", func() bool { return fx.loader.callCount() == 2 })
	if got := fx.stream.changes.Load(); got != 2 {
		t.Errorf("stream credential changes = %d, want 2", got)
	}
}

func TestCredentialClearedOutOfBand(t *testing.T) {
	fx := newFixture(t, Config{})
	fx.run(t)

	fx.creds.listener("", credential.SourceFile)
	msgs := fx.hub.ofType(websocket.MessageTypeAuthRequired)
	if len(msgs) != 1 || msgs[0].Data.(AuthRequired).Source != credential.SourceFile {
		t.Errorf("auth_required = %+v", msgs)
	}
	if fx.stream.changes.Load() != 1 {
		t.Error("stream should be told about the credential change")
	}
}

func TestInitialSubject(t *testing.T) {
	fx := newFixture(t, Config{Initial: trackerT1, HistoryWindow: time.Hour})
	fx.run(t)

	eventually(t, "initial load", func() bool { return fx.loader.callCount() == 1 })
	if got := fx.store.Subject(); got != trackerT1 {
		t.Errorf("subject = %v, want %v", got, trackerT1)
	}
	info := fx.session.Info()
	if info.Range.End.Sub(info.Range.Start) != time.Hour {
		t.Errorf("window = %v, want 1h", info.Range.End.Sub(info.Range.Start))
	}
}

func TestReload(t *testing.T) {
	fx := newFixture(t, Config{})
	fx.run(t)
	ctx := context.Background()

	if err := fx.session.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if fx.loader.callCount() != 0 {
		t.Error("reload without a subject should not load")
	}

	if _, err := fx.session.SetSubject(ctx, trackerT1, models.DateRange{}); err != nil {
		t.Fatal(err)
	}
	v := fx.store.Snapshot().Version()
	if err := fx.session.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "second load", func() bool { return fx.loader.callCount() == 2 })
	if fx.store.Subject() != trackerT1 || fx.store.Snapshot().Version() < v {
		t.Error("reload must not reset the subject")
	}
}

func TestSetSubject_LoopNotRunning(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fx.session.SetSubject(ctx, trackerT1, models.DateRange{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SetSubject() error = %v, want deadline exceeded", err)
	}
}

func TestGreeting(t *testing.T) {
	fx := newFixture(t, Config{})
	msgs := fx.session.Greeting()
	if len(msgs) != 2 {
		t.Fatalf("greeting has %d messages, want 2", len(msgs))
	}
	if msgs[0].Type != websocket.MessageTypeViewUpdated || msgs[1].Type != websocket.MessageTypeConnectionState {
		t.Errorf("greeting types = %s, %s", msgs[0].Type, msgs[1].Type)
	}
}

func TestConnectionStateIsBroadcast(t *testing.T) {
	fx := newFixture(t, Config{})
	fx.stream.mu.Lock()
	onState := fx.stream.onState
	fx.stream.mu.Unlock()

	onState(stream.Status{State: stream.StateClosed.String(), Terminal: true})
	msgs := fx.hub.ofType(websocket.MessageTypeConnectionState)
	if len(msgs) != 1 || !msgs[0].Data.(stream.Status).Terminal {
		t.Errorf("connection_state = %+v", msgs)
	}
}

func TestServiceName(t *testing.T) {
	if got := newFixture(t, Config{}).session.String(); got != "session" {
		t.Errorf("String() = %q", got)
	}
}
