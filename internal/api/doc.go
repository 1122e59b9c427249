// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

/*
Package api serves the local presentation API of shiptrack.

The API is what a dashboard talks to. It exposes the reconciled views held by
the session, lets the dashboard pick the observed subject, reports and controls
the backend stream connection, manages the stored credential, and proxies the
plain CRUD endpoints of the backend. Live change notifications are pushed over
the /api/v1/ws websocket.

Routes:

	GET    /api/v1/health/live
	GET    /api/v1/health/ready
	GET    /api/v1/view
	GET    /api/v1/view/locations
	GET    /api/v1/view/path
	GET    /api/v1/view/series/{metric}
	GET    /api/v1/view/alerts
	GET    /api/v1/view/events
	GET    /api/v1/subject
	PUT    /api/v1/subject
	POST   /api/v1/subject/reload
	GET    /api/v1/connection
	POST   /api/v1/connection/reconnect
	POST   /api/v1/connection/disconnect
	GET    /api/v1/credential
	PUT    /api/v1/credential
	DELETE /api/v1/credential
	GET    /api/v1/trackers            (backend passthrough)
	POST   /api/v1/trackers
	DELETE /api/v1/trackers/{id}
	GET    /api/v1/shipments
	POST   /api/v1/shipments
	GET    /api/v1/shipments/{id}
	DELETE /api/v1/shipments/{id}
	GET    /api/v1/shipments/{id}/alert-presets
	PUT    /api/v1/shipments/{id}/alert-presets
	GET    /api/v1/assets/{id}
	GET    /api/v1/analytics
	GET    /api/v1/alerts
	GET    /api/v1/ws
	GET    /metrics

Responses use the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "VALIDATION_FAILED", "message": "..."}}

Middleware, outermost first: request id, access log, real IP, panic recovery,
CORS, then per-group rate limiting and Prometheus instrumentation.
*/
package api
