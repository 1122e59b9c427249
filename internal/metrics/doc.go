// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and are
exposed by the local API at /metrics in Prometheus text format:

	curl http://localhost:3857/metrics

# Available Metrics

Stream connection:
  - shiptrack_stream_state: current connection state (0 idle, 1 connecting, 2 open, 3 closed)
  - shiptrack_stream_terminal: 1 while reconnects are exhausted
  - shiptrack_stream_reconnect_attempts_total: scheduled reconnects
  - shiptrack_stream_frames_received_total: inbound frames
  - shiptrack_stream_errors_total{reason}: dial, read and close failures

Reconciliation:
  - shiptrack_messages_total{outcome}: applied, duplicate, malformed, ignored, panic
  - shiptrack_samples_discarded_total: samples dropped by the bounds check
  - shiptrack_view_version: version of the current snapshot
  - shiptrack_journal_records: records held for replay over the next seed
  - shiptrack_identity_cache_*: replay suppression set hit/miss/eviction counts

Snapshot and backend:
  - shiptrack_snapshot_load_duration_seconds
  - shiptrack_snapshot_part_errors_total{part}
  - shiptrack_backend_request_duration_seconds{method,endpoint}
  - shiptrack_backend_request_errors_total{endpoint,error_type}
  - circuit_breaker_* gauges and counters per breaker name

Presentation:
  - api_requests_total, api_request_duration_seconds, api_active_requests
  - websocket_connections_active, websocket_messages_sent_total

# Usage

	start := time.Now()
	err := doRequest()
	metrics.RecordBackendRequest("GET", "/api/alerts", time.Since(start), err)
*/
package metrics
