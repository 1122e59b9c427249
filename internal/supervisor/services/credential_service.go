// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package services

import (
	"context"

	"github.com/tomtom215/shiptrack/internal/logging"
)

// Watcher is the part of *credential.Store the service drives.
type Watcher interface {
	Watch() error
	Unwatch() error
}

// CredentialWatchService keeps the credential file watch alive for the
// lifetime of the tree. A failed Watch is returned to suture and retried.
type CredentialWatchService struct {
	watcher Watcher
}

// NewCredentialWatchService creates the service.
func NewCredentialWatchService(w Watcher) *CredentialWatchService {
	return &CredentialWatchService{watcher: w}
}

// Serve implements suture.Service.
func (s *CredentialWatchService) Serve(ctx context.Context) error {
	if err := s.watcher.Watch(); err != nil {
		return err
	}
	logging.Debug().Msg("Credential file watch started")

	<-ctx.Done()
	if err := s.watcher.Unwatch(); err != nil {
		logging.Warn().Err(err).Msg("Failed to stop credential file watch")
	}
	return ctx.Err()
}

func (s *CredentialWatchService) String() string {
	return "credential-watcher"
}
