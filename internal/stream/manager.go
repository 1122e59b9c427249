// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

/*
Package stream manages the single live push connection to the backend.

State machine:

	Idle -> Connecting -> Open -> Closed{clean | abnormal}

A Manager owns at most one connection. Connect first closes whatever connection
exists, so a reconnect or credential change never leaves two sockets open. An
abnormal close (any close other than 1000, a read error, or a failed dial)
schedules a reconnect after a fixed delay while attempts remain; once the cap is
reached the Manager stays Closed with Terminal set until Connect is called again.
Disconnect always sends 1000 and never reconnects.

The connection is shared across subjects; filtering happens downstream.
*/
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/shiptrack/internal/config"
	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
)

// ErrNotOpen is returned by SendMessage while the connection is not open.
var ErrNotOpen = errors.New("stream: connection not open")

// errSuperseded is returned by an open that lost to a later Connect or Disconnect.
var errSuperseded = errors.New("stream: connection attempt superseded")

// State is the connection state.
type State int

// Connection states.
const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the connection for the presentation layer.
type Status struct {
	State         string     `json:"state"`
	Clean         bool       `json:"clean"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"maxAttempts"`
	Terminal      bool       `json:"terminal"`
	LastError     string     `json:"lastError,omitempty"`
	ConnectedAt   *time.Time `json:"connectedAt,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// Connected reports whether the connection is open.
func (s Status) Connected() bool { return s.State == StateOpen.String() }

// Manager owns the push connection.
type Manager struct {
	url            string
	reconnectDelay time.Duration
	maxAttempts    int
	handshake      time.Duration
	pingInterval   time.Duration
	readTimeout    time.Duration
	token          func() string
	dialer         *websocket.Dialer

	mu          sync.Mutex
	ctx         context.Context
	state       State
	clean       bool
	attempts    int
	terminal    bool
	lastErr     error
	connectedAt time.Time
	lastMsg     time.Time
	conn        *websocket.Conn
	gen         uint64
	timer       *time.Timer

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	onMessage func([]byte)
	onState   func(Status)
}

// NewManager creates a Manager for cfg. token supplies the current credential and
// may be nil.
func NewManager(cfg *config.StreamConfig, token func() string) *Manager {
	m := &Manager{
		url:            cfg.URL,
		reconnectDelay: cfg.ReconnectDelay,
		maxAttempts:    cfg.MaxReconnectAttempts,
		handshake:      cfg.HandshakeTimeout,
		pingInterval:   cfg.PingInterval,
		readTimeout:    cfg.ReadTimeout,
		token:          token,
		ctx:            context.Background(),
	}
	if m.reconnectDelay <= 0 {
		m.reconnectDelay = 3 * time.Second
	}
	if m.handshake <= 0 {
		m.handshake = 10 * time.Second
	}
	if m.pingInterval <= 0 {
		m.pingInterval = 30 * time.Second
	}
	if m.readTimeout <= m.pingInterval {
		m.readTimeout = 2 * m.pingInterval
	}
	m.dialer = &websocket.Dialer{
		HandshakeTimeout:  m.handshake,
		EnableCompression: true,
	}
	return m
}

// OnMessage sets the handler for inbound frames. Frames are delivered one at a
// time in arrival order from the connection's reader goroutine.
func (m *Manager) OnMessage(fn func([]byte)) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onMessage = fn
}

// OnStateChange sets the listener notified after every state transition.
func (m *Manager) OnStateChange(fn func(Status)) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onState = fn
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Connect opens a new connection, closing any existing one first with a normal
// closure. It clears the attempt counter and any terminal state. A dial failure is
// returned and also handled like an abnormal close, so reconnects are scheduled.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.attempts = 0
	m.terminal = false
	m.mu.Unlock()
	return m.open(ctx, 0)
}

// Disconnect closes the connection with a normal closure and cancels any pending
// reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.gen++
	old := m.conn
	m.conn = nil
	m.state = StateClosed
	m.clean = true
	st := m.statusLocked()
	m.mu.Unlock()

	if old != nil {
		closeNormal(old)
		logging.Info().Msg("[stream] Disconnected")
	}
	m.emit(st)
}

// CredentialChanged reopens the connection with the new credential. A Manager that
// was disconnected on purpose, or never connected, stays as it is. The reconnect
// runs in the background.
func (m *Manager) CredentialChanged() {
	m.mu.Lock()
	skip := m.state == StateIdle || (m.state == StateClosed && m.clean)
	ctx := m.ctx
	m.mu.Unlock()
	if skip {
		return
	}
	logging.Info().Msg("[stream] Credential changed, reconnecting")
	go func() { _ = m.Connect(ctx) }()
}

// SendMessage writes v as JSON. It returns ErrNotOpen without side effects when
// the connection is not open.
func (m *Manager) SendMessage(v any) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		logging.Warn().Msg("[stream] Dropping outbound message: connection not open")
		return ErrNotOpen
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode stream message: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		metrics.StreamErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("write stream message: %w", err)
	}
	return nil
}

// Serve connects and keeps the connection managed until ctx is done, then
// disconnects. It is the supervisor entry point.
func (m *Manager) Serve(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if err := m.Connect(ctx); err != nil {
		logging.Warn().Err(err).Msg("[stream] Initial connect failed")
	}
	<-ctx.Done()
	m.Disconnect()
	return ctx.Err()
}

// open dials a new connection. expect is 0 for an explicit Connect; a reconnect
// passes the generation it was scheduled for and gives up when anything happened
// since.
func (m *Manager) open(ctx context.Context, expect uint64) error {
	m.mu.Lock()
	if expect != 0 && (expect != m.gen || m.terminal || m.state != StateClosed) {
		m.mu.Unlock()
		return errSuperseded
	}
	m.stopTimerLocked()
	old := m.conn
	m.conn = nil
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.clean = false
	st := m.statusLocked()
	m.mu.Unlock()

	if old != nil {
		closeNormal(old)
	}
	m.emit(st)

	target, err := m.dialURL()
	if err != nil {
		m.fail(gen, "dial", err)
		return err
	}

	logging.Info().Str("url", m.url).Msg("[stream] Connecting")
	dialCtx, cancel := context.WithTimeout(ctx, m.handshake)
	conn, resp, err := m.dialer.DialContext(dialCtx, target, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("websocket dial failed: %w", err)
		}
		m.fail(gen, "dial", err)
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return errSuperseded
	}
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.lastErr = nil
	m.connectedAt = time.Now()
	st = m.statusLocked()
	m.mu.Unlock()

	logging.Info().Msg("[stream] Connected")
	m.emit(st)

	done := make(chan struct{})
	go m.readLoop(gen, conn, done)
	go m.pingLoop(gen, conn, done)
	return nil
}

// dialURL appends the credential as the token query parameter.
func (m *Manager) dialURL() (string, error) {
	u, err := url.Parse(m.url)
	if err != nil {
		return "", fmt.Errorf("invalid stream url: %w", err)
	}
	if m.token != nil {
		if tok := m.token(); tok != "" {
			q := u.Query()
			q.Set("token", tok)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// readLoop delivers frames until the connection fails or is replaced.
func (m *Manager) readLoop(gen uint64, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.readTimeout))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(m.readTimeout)); err != nil {
			m.fail(gen, "read", err)
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.closedByPeer(gen)
			} else {
				m.fail(gen, "read", err)
			}
			return
		}

		m.mu.Lock()
		current := gen == m.gen
		if current {
			m.lastMsg = time.Now()
		}
		m.mu.Unlock()
		if !current {
			return
		}

		metrics.StreamFramesReceived.Inc()
		m.deliver(data)
	}
}

// deliver hands a frame to the message handler. A panicking handler is logged and
// the loop continues with the next frame.
func (m *Manager) deliver(data []byte) {
	m.handlerMu.RLock()
	fn := m.onMessage
	m.handlerMu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("[stream] Message handler panicked")
		}
	}()
	fn(data)
}

// pingLoop keeps the connection alive until the reader exits.
func (m *Manager) pingLoop(gen uint64, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.handshake))
			if err != nil {
				logging.Debug().Err(err).Msg("[stream] Keep-alive failed")
				m.fail(gen, "write", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// closedByPeer handles a normal closure initiated by the server.
func (m *Manager) closedByPeer(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.conn = nil
	m.state = StateClosed
	m.clean = true
	st := m.statusLocked()
	m.mu.Unlock()

	logging.Info().Msg("[stream] Server closed the connection normally")
	m.emit(st)
}

// fail records an abnormal close for generation gen and schedules a reconnect
// while attempts remain.
func (m *Manager) fail(gen uint64, reason string, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.conn = nil
	m.state = StateClosed
	m.clean = false
	m.lastErr = err

	if m.attempts < m.maxAttempts {
		m.attempts++
		attempt := m.attempts
		ctx := m.ctx
		m.timer = time.AfterFunc(m.reconnectDelay, func() {
			if err := m.open(ctx, gen); err != nil && !errors.Is(err, errSuperseded) {
				logging.Debug().Err(err).Int("attempt", attempt).Msg("[stream] Reconnect failed")
			}
		})
		metrics.StreamReconnectAttempts.Inc()
		logging.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", m.maxAttempts).
			Dur("delay", m.reconnectDelay).
			Msg("[stream] Connection lost, reconnect scheduled")
	} else {
		m.terminal = true
		logging.Error().Err(err).
			Int("max_attempts", m.maxAttempts).
			Msg("[stream] Reconnect attempts exhausted")
	}
	st := m.statusLocked()
	m.mu.Unlock()

	metrics.StreamErrors.WithLabelValues(reason).Inc()
	m.emit(st)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) statusLocked() Status {
	st := Status{
		State:       m.state.String(),
		Clean:       m.clean,
		Attempts:    m.attempts,
		MaxAttempts: m.maxAttempts,
		Terminal:    m.terminal,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	if !m.connectedAt.IsZero() {
		t := m.connectedAt
		st.ConnectedAt = &t
	}
	if !m.lastMsg.IsZero() {
		t := m.lastMsg
		st.LastMessageAt = &t
	}
	return st
}

func (m *Manager) emit(st Status) {
	metrics.RecordStreamState(stateIndex(st.State), st.Terminal)

	m.handlerMu.RLock()
	fn := m.onState
	m.handlerMu.RUnlock()
	if fn != nil {
		fn(st)
	}
}

func stateIndex(name string) int {
	for s := StateIdle; s <= StateClosed; s++ {
		if s.String() == name {
			return int(s)
		}
	}
	return -1
}

// closeNormal sends a 1000 close frame and closes conn.
func closeNormal(conn *websocket.Conn) {
	if err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	); err != nil {
		logging.Debug().Err(err).Msg("[stream] Failed to send close message")
	}
	if err := conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("[stream] Failed to close connection")
	}
}
