// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package metrics

import (
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes used as the "outcome" label of MessagesTotal.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeMalformed = "malformed"
	OutcomeIgnored   = "ignored"
	OutcomePanic     = "panic"
)

var (
	// Stream Metrics
	StreamState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiptrack_stream_state",
			Help: "Stream connection state (0=idle, 1=connecting, 2=open, 3=closed)",
		},
	)

	StreamTerminal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiptrack_stream_terminal",
			Help: "1 when the stream gave up reconnecting and waits for a manual reconnect",
		},
	)

	StreamReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_stream_reconnect_attempts_total",
			Help: "Total number of scheduled stream reconnect attempts",
		},
	)

	StreamFramesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_stream_frames_received_total",
			Help: "Total number of frames received on the stream",
		},
	)

	StreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_stream_errors_total",
			Help: "Total number of stream errors by reason",
		},
		[]string{"reason"}, // "dial", "read", "write", "abnormal_close"
	)

	// Reconciliation Metrics
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_messages_total",
			Help: "Total number of stream messages by processing outcome",
		},
		[]string{"outcome"},
	)

	SamplesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_samples_discarded_total",
			Help: "Total number of sensor samples dropped for missing or out-of-range coordinates",
		},
	)

	ViewVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiptrack_view_version",
			Help: "Version of the current derived view snapshot",
		},
	)

	JournalRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiptrack_journal_records",
			Help: "Stream records held for replay over the next snapshot seed",
		},
	)

	IdentityCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_identity_cache_hits_total",
			Help: "Messages recognised as replays by the identity set",
		},
	)

	IdentityCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_identity_cache_misses_total",
			Help: "Messages not previously seen by the identity set",
		},
	)

	IdentityCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_identity_cache_evictions_total",
			Help: "Identities evicted from the replay suppression set",
		},
	)

	// Snapshot Metrics
	SnapshotLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shiptrack_snapshot_load_duration_seconds",
			Help:    "Duration of a full snapshot load in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	SnapshotPartErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_snapshot_part_errors_total",
			Help: "Total number of failed snapshot parts",
		},
		[]string{"part"},
	)

	SnapshotsStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_snapshots_stale_total",
			Help: "Snapshot results dropped because the subject changed while loading",
		},
	)

	// Backend Metrics
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiptrack_backend_request_duration_seconds",
			Help:    "Backend REST request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	BackendRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_backend_request_errors_total",
			Help: "Total number of failed backend requests",
		},
		[]string{"endpoint", "error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of API requests currently being processed",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active presentation WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages broadcast by type",
		},
		[]string{"type"},
	)

	WSDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Messages dropped because a client send buffer was full",
		},
	)

	// Session Metrics
	SessionInboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiptrack_session_inbox_depth",
			Help: "Stream frames waiting for the session event loop",
		},
	)

	SubjectSwitches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiptrack_subject_switches_total",
			Help: "Number of times the observed subject was switched",
		},
	)

	// Credential Metrics
	CredentialChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiptrack_credential_changes_total",
			Help: "Credential changes by source",
		},
		[]string{"source"}, // "set", "clear", "file", "unauthorized"
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
		func() float64 { return time.Since(processStart).Seconds() },
	)
)

var processStart = time.Now()

// RecordBuildInfo publishes the version in app_info.
func RecordBuildInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBackendRequest records one backend REST call.
func RecordBackendRequest(method, endpoint string, duration time.Duration, err error) {
	BackendRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	if err != nil {
		BackendRequestErrors.WithLabelValues(endpoint, errorType(err)).Inc()
	}
}

// errorType buckets an error into a low-cardinality label value.
func errorType(err error) string {
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unauthorized"):
		return "unauthorized"
	case strings.Contains(msg, "circuit breaker"):
		return "circuit_open"
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	default:
		return "other"
	}
}

// RecordMessage counts one stream message by outcome.
func RecordMessage(outcome string) {
	MessagesTotal.WithLabelValues(outcome).Inc()
}

// RecordStreamState publishes the connection state gauge.
func RecordStreamState(state int, terminal bool) {
	StreamState.Set(float64(state))
	if terminal {
		StreamTerminal.Set(1)
	} else {
		StreamTerminal.Set(0)
	}
}

// RecordSnapshotLoad records a snapshot load and the parts that failed.
func RecordSnapshotLoad(duration time.Duration, failedParts []string) {
	SnapshotLoadDuration.Observe(duration.Seconds())
	for _, part := range failedParts {
		SnapshotPartErrors.WithLabelValues(part).Inc()
	}
}

// RecordIdentityStats adds the identity set's counter deltas since the last call.
func RecordIdentityStats(hits, misses, evictions int64) {
	if hits > 0 {
		IdentityCacheHits.Add(float64(hits))
	}
	if misses > 0 {
		IdentityCacheMisses.Add(float64(misses))
	}
	if evictions > 0 {
		IdentityCacheEvictions.Add(float64(evictions))
	}
}

// RecordCircuitBreakerTransition records a breaker state change. States are the
// gobreaker names: "closed", "half-open", "open".
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	switch to {
	case "closed":
		CircuitBreakerState.WithLabelValues(name).Set(0)
	case "half-open":
		CircuitBreakerState.WithLabelValues(name).Set(1)
	case "open":
		CircuitBreakerState.WithLabelValues(name).Set(2)
	}
}
