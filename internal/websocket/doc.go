// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

/*
Package websocket fans reconciled view changes out to presentation clients.

It is the downstream side of shiptrack: the session pushes notifications into
the Hub and every connected dashboard receives them over its own connection.
The upstream backend stream lives in package stream.

	session ──Broadcast──▶ Hub ──▶ Client1
	                        │────▶ Client2
	                        └────▶ Client3

Each client runs two goroutines:
  - readPump: reads client frames and answers application pings
  - writePump: writes hub messages and sends protocol pings

Message types:

  - view_updated: the derived view has a new version
  - subject_changed: the observed subject was switched (view was reset)
  - connection_state: the backend stream changed state
  - snapshot_loaded: a snapshot load finished (with failed parts, if any)
  - auth_required: the backend rejected the credential

Slow clients are disconnected instead of stalling the hub. A Greeter can be
installed to send the current state to a client as soon as it registers.

The hub implements suture.Service and is run by the messaging layer of the
supervisor tree.
*/
package websocket
