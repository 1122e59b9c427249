// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package backend

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
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shiptrack/internal/config"
	"github.com/tomtom215/shiptrack/internal/models"
)

type fakeCreds struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (f *fakeCreds) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCreds) Invalidate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.invalidated++
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeCreds) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := &fakeCreds{token: "secret"}
	cfg := &config.BackendConfig{
		BaseURL:           srv.URL + "/",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		Timezone:          "America/New_York",
	}
	return NewClient(cfg, creds), creds
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestClient_SendsBearerAndDecodesBareArray(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/trackers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(t, w, []models.Tracker{{ID: "T1"}, {ID: "T2"}})
	})

	trackers, err := c.ListTrackers(context.Background())
	if err != nil {
		t.Fatalf("ListTrackers: %v", err)
	}
	if len(trackers) != 2 || trackers[1].ID != "T2" {
		t.Errorf("trackers = %+v", trackers)
	}
}

func TestClient_DecodesEnvelopedList(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("shipmentId") != "S1" || r.URL.Query().Has("trackerId") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"data":[{"shipmentId":"S1","alertType":"temperature","occurrenceCount":3}]}`)
	})

	alerts, err := c.Alerts(context.Background(), AlertFilter{ShipmentID: "S1"})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].OccurrenceCount != 3 {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestClient_TrackerHistoryQuery(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.EscapedPath() != "/api/trackers/T%201/history" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		if q.Get("timezone") != "America/New_York" {
			t.Errorf("timezone = %q", q.Get("timezone"))
		}
		if q.Get("start") != "2023-12-31T19:00:00-05:00" {
			t.Errorf("start = %q", q.Get("start"))
		}
		_, _ = io.WriteString(w, `{"items":[{"Lat":1,"Lng":2,"DT":"2024-01-01T00:00:00Z"}]}`)
	})

	r := models.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	docs, err := c.TrackerHistory(context.Background(), "T 1", r)
	if err != nil {
		t.Fatalf("TrackerHistory: %v", err)
	}
	if len(docs) != 1 || docs[0]["Lat"] != float64(1) {
		t.Errorf("docs = %+v", docs)
	}
}

func TestClient_UnauthorizedClearsCredential(t *testing.T) {
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetShipment(context.Background(), "S1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if creds.invalidated != 1 || creds.Token() != "" {
		t.Errorf("credential not invalidated: %+v", creds)
	}
}

func TestClient_StatusError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such shipment", http.StatusNotFound)
	})

	err := c.DeleteShipment(context.Background(), "S9")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound || !strings.Contains(se.Body, "no such shipment") || !se.ClientError() {
		t.Errorf("StatusError = %+v", se)
	}
	if se.ErrorType() != "status_4xx" {
		t.Errorf("ErrorType() = %q", se.ErrorType())
	}
}

func TestClient_PostsJSONBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method=%s content-type=%s", r.Method, r.Header.Get("Content-Type"))
		}
		var presets []models.AlertPreset
		if err := json.NewDecoder(r.Body).Decode(&presets); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(t, w, presets)
	})

	limit := 8.0
	in := []models.AlertPreset{{AlertType: "temperature", MaxThreshold: &limit, Unit: "C", Enabled: true}}
	out, err := c.SetAlertPresets(context.Background(), "S1", in)
	if err != nil {
		t.Fatalf("SetAlertPresets: %v", err)
	}
	if len(out) != 1 || *out[0].MaxThreshold != 8 {
		t.Errorf("out = %+v", out)
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/trackers":                   "/api/trackers",
		"/api/trackers/T1/history":        "/api/trackers/{id}/history",
		"/api/shipments/S1/alert-presets": "/api/shipments/{id}/alert-presets",
		"/api/assets/A1":                  "/api/assets/{id}",
		"/api/alerts/events":              "/api/alerts/events",
	}
	for in, want := range tests {
		if got := routeLabel(in); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCircuitBreaker_TripsOnServerErrorsOnly(t *testing.T) {
	var status int
	var mu sync.Mutex
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
	})
	cbc := NewCircuitBreakerClient(c, BreakerSettings{MinRequests: 3, Timeout: time.Hour})

	mu.Lock()
	status = http.StatusNotFound
	mu.Unlock()
	for i := 0; i < 5; i++ {
		_ = cbc.DeleteTracker(context.Background(), "T1")
	}
	if cbc.State() != gobreaker.StateClosed {
		t.Fatalf("4xx responses tripped the breaker: %v", cbc.State())
	}

	mu.Lock()
	status = http.StatusBadGateway
	mu.Unlock()
	for i := 0; i < 10 && cbc.State() == gobreaker.StateClosed; i++ {
		_ = cbc.DeleteTracker(context.Background(), "T1")
	}
	if cbc.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cbc.State())
	}
	if err := cbc.DeleteTracker(context.Background(), "T1"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
}

func TestCircuitBreaker_PassesTypedResults(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, models.Asset{ID: "A1", TrackerIDs: []string{"T1", "T2"}})
	})
	cbc := NewCircuitBreakerClient(c, BreakerSettings{})

	asset, err := cbc.GetAsset(context.Background(), "A1")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.ID != "A1" || len(asset.TrackerIDs) != 2 {
		t.Errorf("asset = %+v", asset)
	}
}

func TestIsSuccessful(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"unauthorized", ErrUnauthorized, true},
		{"canceled", context.Canceled, true},
		{"not found", &StatusError{StatusCode: 404}, true},
		{"bad gateway", &StatusError{StatusCode: 502}, false},
		{"transport", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSuccessful(tt.err); got != tt.want {
				t.Errorf("isSuccessful(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
