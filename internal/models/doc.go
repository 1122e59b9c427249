// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package models defines the canonical records that flow between the stream normalizer,
// the merge engine, the view store and the REST backend.
//
// Wire-facing types use the backend's camelCase JSON field names. Timestamps are kept
// as the ISO-8601 strings the backend sent so that a record can be round-tripped
// without reformatting; use ParseTimestamp or CompareTimestamps for chronology.
package models
