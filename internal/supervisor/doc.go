// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

/*
Package supervisor runs the long-lived parts of shiptrack under suture v4.

	RootSupervisor ("shiptrack")
	├── "ingest-layer"
	│   ├── stream.Manager           (backend push channel)
	│   └── CredentialWatchService   (if credential.watch is set)
	├── "state-layer"
	│   └── session.Session          (owns the derived views)
	└── "api-layer"
	    ├── websocket.Hub
	    └── HTTPServerService

A service that returns an error is restarted with suture's backoff. Failure
counts are kept per layer, so a stream that keeps failing does not take the
HTTP server down with it.

Supervisor events are logged through sutureslog into the zerolog-backed slog
logger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	if err != nil {
	    return err
	}
	tree.AddIngestService(streamManager)
	tree.AddStateService(sess)
	tree.AddAPIService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, addr, shutdownTimeout))
	return tree.Serve(ctx)
*/
package supervisor
