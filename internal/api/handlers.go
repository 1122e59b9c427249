// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/shiptrack/internal/backend"
	"github.com/tomtom215/shiptrack/internal/config"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/models"
	"github.com/tomtom215/shiptrack/internal/session"
	"github.com/tomtom215/shiptrack/internal/stream"
	"github.com/tomtom215/shiptrack/internal/views"
	ws "github.com/tomtom215/shiptrack/internal/websocket"
)

// Session is the part of session.Session the handlers use.
type Session interface {
	Info() session.Info
	Snapshot() *views.Snapshot
	SetSubject(ctx context.Context, subject models.Subject, rng models.DateRange) (*views.Snapshot, error)
	Reload(ctx context.Context) error
}

// Connection is the part of stream.Manager the handlers use.
type Connection interface {
	Status() stream.Status
	Connect(ctx context.Context) error
	Disconnect()
}

// Credentials is the part of credential.Store the handlers use.
type Credentials interface {
	Token() string
	Set(token string) error
	Clear() error
}

// Deps collects the collaborators of a Handler. Any of them may be nil, in
// which case the routes that need it answer 503.
type Deps struct {
	Session     Session
	Connection  Connection
	Backend     backend.API
	Credentials Credentials
	Hub         *ws.Hub
}

// Handler serves the API routes.
type Handler struct {
	config    *config.Config
	session   Session
	conn      Connection
	backend   backend.API
	creds     Credentials
	wsHub     *ws.Hub
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(cfg *config.Config, deps Deps) *Handler {
	return &Handler{
		config:    cfg,
		session:   deps.Session,
		conn:      deps.Connection,
		backend:   deps.Backend,
		creds:     deps.Credentials,
		wsHub:     deps.Hub,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins. Browsers always
// send Origin, so a missing header is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if h.config == nil {
		return true
	}
	origins := h.config.Security.CORSOrigins
	if slices.Contains(origins, "*") || slices.Contains(origins, origin) {
		return true
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds the length of values
// taken from request headers before they are logged.
func sanitizeLogValue(v string) string {
	const limit = 256
	out := make([]rune, 0, len(v))
	for _, r := range v {
		if r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return string(out)
}

// WebSocket upgrades the request and registers the connection with the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("WebSocket service unavailable")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}
