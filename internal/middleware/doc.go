// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

/*
Package middleware provides HTTP middleware for the local presentation API.

Key Components:

  - RequestID: X-Request-ID propagation and logging context
  - PrometheusMetrics: request count, latency and in-flight instrumentation
  - AccessLog: one structured log line per request

All middleware uses the func(http.Handler) http.Handler shape so it can be
passed to chi's Use. Routes are labelled with the chi route pattern rather
than the raw path, which keeps metric cardinality bounded when paths carry
tracker or shipment ids.

Usage:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
