// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

/*
Package backend is the REST client for the logistics backend.

It covers entity CRUD (trackers, shipments, assets), sensor history, alert
summaries and events, alert presets and carrier analytics. Every request carries
the current bearer credential. A 401 response invalidates the credential and
returns ErrUnauthorized; callers treat that as session-fatal.

Two implementations of API are provided:

  - Client: plain HTTP with a client-side rate limiter (golang.org/x/time/rate)
  - CircuitBreakerClient: wraps Client with sony/gobreaker so a failing backend is
    not hammered while it recovers

Neither retries. A failed snapshot part is reported to the caller and the next
subject change or manual refresh tries again.

List endpoints accept either a bare JSON array or an object wrapping the array
in "data" or "items".
*/
package backend
