// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shiptrack/internal/backend"
	"github.com/tomtom215/shiptrack/internal/config"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/session"
	"github.com/tomtom215/shiptrack/internal/stream"
	"github.com/tomtom215/shiptrack/internal/views"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

type fakeSession struct {
	mu      sync.Mutex
	info    session.Info
	snap    *views.Snapshot
	err     error
	reloads int
	gotRng  models.DateRange
}

func (f *fakeSession) Info() session.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

func (f *fakeSession) Snapshot() *views.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) SetSubject(_ context.Context, subject models.Subject, rng models.DateRange) (*views.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.info.Subject = subject
	f.gotRng = rng
	f.snap = views.New(subject, nil, views.Limits{}, time.UTC)
	return f.snap, nil
}

func (f *fakeSession) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return f.err
}

type fakeConn struct {
	status      stream.Status
	connectErr  error
	connects    int
	disconnects int
}

func (f *fakeConn) Status() stream.Status { return f.status }

func (f *fakeConn) Connect(context.Context) error {
	f.connects++
	if f.connectErr == nil {
		f.status.State = stream.StateOpen.String()
	}
	return f.connectErr
}

func (f *fakeConn) Disconnect() {
	f.disconnects++
	f.status.State = stream.StateClosed.String()
}

type fakeCreds struct {
	token string
}

func (f *fakeCreds) Token() string { return f.token }

func (f *fakeCreds) Set(token string) error {
	f.token = token
	return nil
}

func (f *fakeCreds) Clear() error {
	f.token = ""
	return nil
}

// fakeBackend implements backend.API. Methods not overridden panic through
// the nil embedded interface.
type fakeBackend struct {
	backend.API
	trackers   []models.Tracker
	err        error
	setPresets []models.AlertPreset
	analytics  func(carrier string, r models.DateRange) (*models.AnalyticsSummary, error)
}

func (f *fakeBackend) ListTrackers(context.Context) ([]models.Tracker, error) {
	return f.trackers, f.err
}

func (f *fakeBackend) GetShipment(_ context.Context, id string) (*models.Shipment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Shipment{ID: id}, nil
}

func (f *fakeBackend) SetAlertPresets(_ context.Context, _ string, presets []models.AlertPreset) ([]models.AlertPreset, error) {
	f.setPresets = presets
	return presets, f.err
}

func (f *fakeBackend) Analytics(_ context.Context, carrier string, r models.DateRange) (*models.AnalyticsSummary, error) {
	return f.analytics(carrier, r)
}

type fixture struct {
	session *fakeSession
	conn    *fakeConn
	creds   *fakeCreds
	backend *fakeBackend
	server  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	subject := models.Subject{Kind: models.SubjectTracker, ID: "T1"}
	f := &fixture{
		session: &fakeSession{
			info: session.Info{Subject: subject},
			snap: views.New(subject, []string{"T1"}, views.Limits{}, time.UTC),
		},
		conn:    &fakeConn{status: stream.Status{State: stream.StateIdle.String()}},
		creds:   &fakeCreds{},
		backend: &fakeBackend{},
	}
	cfg := &config.Config{Security: config.SecurityConfig{CORSOrigins: []string{"http://dash.local"}}}
	h := NewHandler(cfg, Deps{Session: f.session, Connection: f.conn, Backend: f.backend, Credentials: f.creds})
	f.server = NewRouter(h, &ChiMiddlewareConfig{RateLimitDisabled: true}).SetupChi()
	return f
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func checkStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

func checkErrorCode(t *testing.T, env envelope, want string) {
	t.Helper()
	if env.Success || env.Error == nil {
		t.Fatalf("expected error envelope, got %+v", env)
	}
	if env.Error.Code != want {
		t.Errorf("error code = %q, want %q", env.Error.Code, want)
	}
}

func TestHealthLive(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodGet, "/api/v1/health/live", "")
	checkStatus(t, rec, http.StatusOK)
	if !env.Success {
		t.Error("expected success")
	}
	if env.Meta == nil || env.Meta.RequestID == "" {
		t.Error("expected request id in meta")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestHealthReady(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/health/ready", "")
	checkStatus(t, rec, http.StatusServiceUnavailable)
	checkErrorCode(t, env, ErrCodeServiceUnavailable)

	f.creds.token = "tok"
	f.conn.status.State = stream.StateOpen.String()
	rec, env = f.do(t, http.MethodGet, "/api/v1/health/ready", "")
	checkStatus(t, rec, http.StatusOK)

	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["ready_to_serve"] != true || data["subject_selected"] != true {
		t.Errorf("unexpected readiness data %v", data)
	}
}

func TestView(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodGet, "/api/v1/view", "")
	checkStatus(t, rec, http.StatusOK)

	var v views.View
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatal(err)
	}
	if v.Subject.ID != "T1" {
		t.Errorf("subject = %v, want T1", v.Subject)
	}
}

func TestViewLists(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{
		"/api/v1/view/locations",
		"/api/v1/view/path",
		"/api/v1/view/alerts",
		"/api/v1/view/events",
		"/api/v1/view/series/temperature",
	} {
		t.Run(path, func(t *testing.T) {
			rec, env := f.do(t, http.MethodGet, path, "")
			checkStatus(t, rec, http.StatusOK)
			if env.Meta == nil || env.Meta.Count == nil || *env.Meta.Count != 0 {
				t.Errorf("expected count 0 in meta, got %+v", env.Meta)
			}
		})
	}
}

func TestViewSeriesUnknownMetric(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodGet, "/api/v1/view/series/pressure", "")
	checkStatus(t, rec, http.StatusNotFound)
	checkErrorCode(t, env, ErrCodeNotFound)
}

func TestPutSubject(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPut, "/api/v1/subject", `{"kind":"shipment","id":"S9"}`)
	checkStatus(t, rec, http.StatusAccepted)

	var v views.View
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatal(err)
	}
	if v.Subject != (models.Subject{Kind: models.SubjectShipment, ID: "S9"}) {
		t.Errorf("subject = %v", v.Subject)
	}
	if !f.session.gotRng.Start.IsZero() {
		t.Errorf("expected default range, got %v", f.session.gotRng)
	}
}

func TestPutSubjectExplicitRange(t *testing.T) {
	f := newFixture(t)
	body := `{"kind":"tracker","id":"T2","start":"2024-01-01T00:00:00Z","end":"2024-01-02T00:00:00Z"}`
	rec, _ := f.do(t, http.MethodPut, "/api/v1/subject", body)
	checkStatus(t, rec, http.StatusAccepted)

	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !f.session.gotRng.End.Equal(want) {
		t.Errorf("range end = %v, want %v", f.session.gotRng.End, want)
	}
}

func TestPutSubjectInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"bad json", `{`, ErrCodeBadRequest},
		{"unknown kind", `{"kind":"pallet","id":"P1"}`, ErrCodeValidationFailed},
		{"missing id", `{"kind":"tracker"}`, ErrCodeValidationFailed},
		{"bad time", `{"kind":"tracker","id":"T1","start":"yesterday","end":"2024-01-02T00:00:00Z"}`, ErrCodeValidationFailed},
		{"start only", `{"kind":"tracker","id":"T1","start":"2024-01-01T00:00:00Z"}`, ErrCodeValidationFailed},
		{"end before start", `{"kind":"tracker","id":"T1","start":"2024-01-02T00:00:00Z","end":"2024-01-01T00:00:00Z"}`, ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec, env := f.do(t, http.MethodPut, "/api/v1/subject", tt.body)
			checkStatus(t, rec, http.StatusBadRequest)
			checkErrorCode(t, env, tt.code)
		})
	}
}

func TestPutSubjectSessionStopped(t *testing.T) {
	f := newFixture(t)
	f.session.err = session.ErrStopped
	rec, _ := f.do(t, http.MethodPut, "/api/v1/subject", `{"kind":"tracker","id":"T1"}`)
	checkStatus(t, rec, http.StatusServiceUnavailable)
}

func TestReloadSubject(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodPost, "/api/v1/subject/reload", "")
	checkStatus(t, rec, http.StatusAccepted)
	if f.session.reloads != 1 {
		t.Errorf("reloads = %d, want 1", f.session.reloads)
	}

	f.session.info.Subject = models.Subject{}
	rec, _ = f.do(t, http.MethodPost, "/api/v1/subject/reload", "")
	checkStatus(t, rec, http.StatusBadRequest)
}

func TestConnectionRoutes(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/v1/connection/reconnect", "")
	checkStatus(t, rec, http.StatusConflict)
	if f.conn.connects != 0 {
		t.Error("reconnect without credential must not dial")
	}

	f.creds.token = "tok"
	rec, env := f.do(t, http.MethodPost, "/api/v1/connection/reconnect", "")
	checkStatus(t, rec, http.StatusOK)
	var st stream.Status
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if !st.Connected() {
		t.Errorf("state = %q, want open", st.State)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/v1/connection/disconnect", "")
	checkStatus(t, rec, http.StatusOK)
	if f.conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", f.conn.disconnects)
	}

	f.conn.connectErr = errors.New("dial failed")
	rec, env = f.do(t, http.MethodPost, "/api/v1/connection/reconnect", "")
	checkStatus(t, rec, http.StatusBadGateway)
	checkErrorCode(t, env, ErrCodeExternalServiceFail)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestCredentialRoutes(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/credential", "")
	checkStatus(t, rec, http.StatusOK)
	if string(env.Data) != `{"present":false}` {
		t.Errorf("data = %s", env.Data)
	}

	token := signedToken(t, time.Now().Add(time.Hour))
	rec, _ = f.do(t, http.MethodPut, "/api/v1/credential", `{"token":"`+token+`"}`)
	checkStatus(t, rec, http.StatusOK)
	if f.creds.token != token {
		t.Error("token was not stored")
	}

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/credential", "")
	checkStatus(t, rec, http.StatusNoContent)
	if f.creds.token != "" {
		t.Error("token was not cleared")
	}
}

func TestPutCredentialRejectsInvalid(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPut, "/api/v1/credential", `{"token":""}`)
	checkStatus(t, rec, http.StatusBadRequest)
	checkErrorCode(t, env, ErrCodeValidationFailed)

	expired := signedToken(t, time.Now().Add(-time.Hour))
	rec, env = f.do(t, http.MethodPut, "/api/v1/credential", `{"token":"`+expired+`"}`)
	checkStatus(t, rec, http.StatusBadRequest)
	checkErrorCode(t, env, ErrCodeValidationFailed)
	if f.creds.token != "" {
		t.Error("expired token must not be stored")
	}
}

func TestBackendErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", backend.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"breaker open", gobreaker.ErrOpenState, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeTimeout},
		{"not found", &backend.StatusError{StatusCode: 404}, http.StatusNotFound, ErrCodeNotFound},
		{"rejected", &backend.StatusError{StatusCode: 422, Body: "bad"}, http.StatusUnprocessableEntity, ErrCodeBadRequest},
		{"server error", &backend.StatusError{StatusCode: 500}, http.StatusBadGateway, ErrCodeExternalServiceFail},
		{"transport", errors.New("connection refused"), http.StatusBadGateway, ErrCodeExternalServiceFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.err = tt.err
			rec, env := f.do(t, http.MethodGet, "/api/v1/trackers", "")
			checkStatus(t, rec, tt.status)
			checkErrorCode(t, env, tt.code)
		})
	}
}

func TestListTrackers(t *testing.T) {
	f := newFixture(t)
	f.backend.trackers = []models.Tracker{{ID: "T1"}, {ID: "T2"}}
	rec, env := f.do(t, http.MethodGet, "/api/v1/trackers", "")
	checkStatus(t, rec, http.StatusOK)
	if env.Meta.Count == nil || *env.Meta.Count != 2 {
		t.Errorf("count = %v, want 2", env.Meta.Count)
	}
}

func TestGetShipment(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodGet, "/api/v1/shipments/S1", "")
	checkStatus(t, rec, http.StatusOK)
	var s models.Shipment
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatal(err)
	}
	if s.ID != "S1" {
		t.Errorf("id = %q, want S1", s.ID)
	}
}

func TestPutAlertPresets(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPut, "/api/v1/shipments/S1/alert-presets",
		`{"presets":[{"alertType":"temperature","minThreshold":10,"maxThreshold":2,"enabled":true}]}`)
	checkStatus(t, rec, http.StatusBadRequest)
	checkErrorCode(t, env, ErrCodeValidationFailed)
	if f.backend.setPresets != nil {
		t.Error("invalid presets must not reach the backend")
	}

	rec, env = f.do(t, http.MethodPut, "/api/v1/shipments/S1/alert-presets",
		`{"presets":[{"alertType":"unknown","enabled":true}]}`)
	checkStatus(t, rec, http.StatusBadRequest)
	checkErrorCode(t, env, ErrCodeValidationFailed)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/shipments/S1/alert-presets",
		`{"presets":[{"alertType":"temperature","minThreshold":2,"maxThreshold":8,"enabled":true}]}`)
	checkStatus(t, rec, http.StatusOK)
	if len(f.backend.setPresets) != 1 {
		t.Errorf("backend received %d presets, want 1", len(f.backend.setPresets))
	}
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t)
	var gotCarrier string
	f.backend.analytics = func(carrier string, _ models.DateRange) (*models.AnalyticsSummary, error) {
		gotCarrier = carrier
		return &models.AnalyticsSummary{Carrier: carrier}, nil
	}

	rec, env := f.do(t, http.MethodGet, "/api/v1/analytics?carrier=acme", "")
	checkStatus(t, rec, http.StatusBadRequest)
	checkErrorCode(t, env, ErrCodeValidationFailed)

	rec, _ = f.do(t, http.MethodGet,
		"/api/v1/analytics?carrier=acme&start=2024-01-01T00:00:00Z&end=2024-02-01T00:00:00Z", "")
	checkStatus(t, rec, http.StatusOK)
	if gotCarrier != "acme" {
		t.Errorf("carrier = %q, want acme", gotCarrier)
	}
}

func TestNilDependencies(t *testing.T) {
	h := NewHandler(nil, Deps{})
	server := NewRouter(h, &ChiMiddlewareConfig{RateLimitDisabled: true}).SetupChi()
	for _, path := range []string{"/api/v1/view", "/api/v1/subject", "/api/v1/connection", "/api/v1/credential", "/api/v1/trackers", "/api/v1/ws"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	h := NewHandler(&config.Config{Security: config.SecurityConfig{CORSOrigins: []string{"http://dash.local"}}}, Deps{})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", false},
		{"http://dash.local", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.checkWebSocketOrigin(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}

	wild := NewHandler(&config.Config{Security: config.SecurityConfig{CORSOrigins: []string{"*"}}}, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	req.Header.Set("Origin", "http://anything")
	if !wild.checkWebSocketOrigin(req) {
		t.Error("wildcard origin should be accepted")
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x00c"); got != "abc" {
		t.Errorf("got %q, want abc", got)
	}
	if got := sanitizeLogValue(strings.Repeat("x", 1000)); len(got) != 256 {
		t.Errorf("len = %d, want 256", len(got))
	}
}
