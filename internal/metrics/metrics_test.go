// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type typedErr struct{}

func (typedErr) Error() string     { return "unauthorized" }
func (typedErr) ErrorType() string { return "unauthorized" }

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"typed", fmt.Errorf("wrap: %w", typedErr{}), "unauthorized"},
		{"breaker", errors.New("circuit breaker is open"), "circuit_open"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"refused", errors.New("dial tcp: connection refused"), "connection_refused"},
		{"other", errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorType(tt.err); got != tt.want {
				t.Errorf("errorType(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestRecordBackendRequest(t *testing.T) {
	before := testutil.ToFloat64(BackendRequestErrors.WithLabelValues("/api/alerts", "other"))

	RecordBackendRequest("GET", "/api/alerts", 20*time.Millisecond, nil)
	RecordBackendRequest("GET", "/api/alerts", 20*time.Millisecond, errors.New("boom"))

	after := testutil.ToFloat64(BackendRequestErrors.WithLabelValues("/api/alerts", "other"))
	if after-before != 1 {
		t.Errorf("error counter delta = %v, want 1", after-before)
	}
}

func TestRecordMessage(t *testing.T) {
	c := MessagesTotal.WithLabelValues(OutcomeDuplicate)
	before := testutil.ToFloat64(c)
	RecordMessage(OutcomeDuplicate)
	RecordMessage(OutcomeDuplicate)
	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Errorf("duplicate delta = %v, want 2", got)
	}
}

func TestRecordStreamState(t *testing.T) {
	RecordStreamState(2, false)
	if got := testutil.ToFloat64(StreamState); got != 2 {
		t.Errorf("StreamState = %v, want 2", got)
	}
	if got := testutil.ToFloat64(StreamTerminal); got != 0 {
		t.Errorf("StreamTerminal = %v, want 0", got)
	}
	RecordStreamState(3, true)
	if got := testutil.ToFloat64(StreamTerminal); got != 1 {
		t.Errorf("StreamTerminal = %v, want 1", got)
	}
}

func TestRecordSnapshotLoad(t *testing.T) {
	c := SnapshotPartErrors.WithLabelValues("history:T1")
	before := testutil.ToFloat64(c)
	RecordSnapshotLoad(time.Second, []string{"history:T1"})
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("part error delta = %v, want 1", got)
	}
}

func TestRecordIdentityStats(t *testing.T) {
	hits := testutil.ToFloat64(IdentityCacheHits)
	evictions := testutil.ToFloat64(IdentityCacheEvictions)
	RecordIdentityStats(3, 0, 1)
	if got := testutil.ToFloat64(IdentityCacheHits) - hits; got != 3 {
		t.Errorf("hits delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(IdentityCacheEvictions) - evictions; got != 1 {
		t.Errorf("evictions delta = %v, want 1", got)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	tests := []struct {
		to   string
		want float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		RecordCircuitBreakerTransition("test-backend", "x", tt.to)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test-backend")); got != tt.want {
			t.Errorf("state after %s = %v, want %v", tt.to, got, tt.want)
		}
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests) - before; got != 1 {
		t.Errorf("active delta = %v, want 1", got)
	}
	RecordAPIRequest("GET", "/api/v1/view", "200", time.Millisecond)
}
