// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package services adapts components that do not follow the
// Serve(ctx) error contract to suture.Service.
//
// HTTPServerService binds a listener and drives an *http.Server, translating
// context cancellation into Shutdown. CredentialWatchService keeps the koanf
// file watch on the credential file running for the life of the tree.
//
// The stream manager, the session loop and the websocket hub implement
// suture.Service themselves and are added to the tree directly.
package services
