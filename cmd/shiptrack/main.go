// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package main is the entry point of the shiptrack server.
//
// shiptrack keeps a live, reconciled picture of one logistics subject (a
// tracker, a shipment or an asset). It loads the subject's history from the
// backend REST API, merges the backend's push stream on top of it, and serves
// the resulting views to dashboards over HTTP and a websocket.
//
// # Startup
//
//  1. Configuration: koanf v2 layering defaults, config.yaml, .env and the environment
//  2. Logging: zerolog, configured from the logging section
//  3. Credential store: the bearer token file, optionally watched for changes
//  4. Backend client: rate limited and wrapped in a circuit breaker
//  5. Store, snapshot loader, stream manager, websocket hub and session
//  6. HTTP API on the chi router
//  7. Supervisor tree, until SIGINT or SIGTERM
//
// # Example
//
//	export BACKEND_URL=https://api.example.com
//	export STREAM_URL=wss://api.example.com/ws
//	export CREDENTIAL_PATH=/var/lib/shiptrack/token
//	export SUBJECT_KIND=shipment SUBJECT_ID=SHP-1042
//	./shiptrack
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/shiptrack/internal/api"
	"github.com/tomtom215/shiptrack/internal/backend"
	"github.com/tomtom215/shiptrack/internal/config"
	"github.com/tomtom215/shiptrack/internal/credential"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/session"
	"github.com/tomtom215/shiptrack/internal/snapshot"
	"github.com/tomtom215/shiptrack/internal/store"
	"github.com/tomtom215/shiptrack/internal/stream"
	"github.com/tomtom215/shiptrack/internal/supervisor"
	"github.com/tomtom215/shiptrack/internal/supervisor/services"
	"github.com/tomtom215/shiptrack/internal/views"
	ws "github.com/tomtom215/shiptrack/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("backend_url", cfg.Backend.BaseURL).
		Str("stream_url", cfg.Stream.URL).
		Str("credential_path", cfg.Credential.Path).
		Str("version", version).
		Msg("Starting shiptrack")
	metrics.RecordBuildInfo(version)

	tree, err := build(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("Shiptrack stopped")
}

// build wires every component and returns the supervisor tree that runs them.
func build(cfg *config.Config) (*supervisor.SupervisorTree, error) {
	creds, err := credential.New(cfg.Credential.Path)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	client := backend.NewClient(&cfg.Backend, creds)
	breaker := backend.NewCircuitBreakerClient(client, backend.BreakerSettings{})

	st := store.New(store.Config{
		Limits: views.Limits{
			AlertEventCapacity:   cfg.Views.AlertEventCapacity,
			AlertSummaryCapacity: cfg.Views.AlertSummaryCapacity,
		},
		IdentityCapacity: cfg.Views.IdentityCapacity,
		JournalCapacity:  cfg.Views.JournalCapacity,
		Location:         cfg.Backend.Location(),
	})
	loader := snapshot.NewLoader(breaker, st.Normalizer())
	streamManager := stream.NewManager(&cfg.Stream, creds.Token)
	hub := ws.NewHub()

	initial, err := initialSubject(cfg.Subject)
	if err != nil {
		return nil, err
	}
	sess := session.New(session.Config{
		InboxSize:     cfg.Stream.InboxSize,
		HistoryWindow: cfg.Subject.HistoryWindow,
		Initial:       initial,
	}, st, loader, hub, streamManager, creds)
	hub.SetGreeter(sess.Greeting)

	handler := api.NewHandler(cfg, api.Deps{
		Session:     sess,
		Connection:  streamManager,
		Backend:     breaker,
		Credentials: creds,
		Hub:         hub,
	})
	router := api.NewRouter(handler, api.ChiMiddlewareConfigFrom(cfg.Security))
	server := &http.Server{
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		// The websocket upgrader resets deadlines on hijacked connections.
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddIngestService(streamManager)
	if cfg.Credential.Watch {
		tree.AddIngestService(services.NewCredentialWatchService(creds))
	}
	tree.AddStateService(sess)
	tree.AddAPIService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout))

	return tree, nil
}

// initialSubject converts the configured startup subject. An empty kind
// means no subject is selected until a client picks one.
func initialSubject(sc config.SubjectConfig) (models.Subject, error) {
	if sc.Kind == "" {
		return models.Subject{}, nil
	}
	subject, err := models.ParseSubject(sc.Kind + ":" + sc.ID)
	if err != nil {
		return models.Subject{}, fmt.Errorf("invalid startup subject: %w", err)
	}
	return subject, nil
}
