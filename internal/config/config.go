// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package config loads Shiptrack configuration from defaults, an optional YAML file,
// an optional .env file and the process environment, in increasing priority.
package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Backend    BackendConfig    `koanf:"backend"`
	Stream     StreamConfig     `koanf:"stream"`
	Views      ViewsConfig      `koanf:"views"`
	Credential CredentialConfig `koanf:"credential"`
	Subject    SubjectConfig    `koanf:"subject"`
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// BackendConfig describes the REST backend that serves snapshots and entity CRUD.
//
// Environment Variables:
//   - BACKEND_URL: base URL, e.g. https://api.example.com
//   - BACKEND_TIMEOUT: per-request timeout (default: 30s)
//   - BACKEND_RPS / BACKEND_BURST: client-side request rate limit
//   - TIMEZONE: IANA zone used for history queries and zone-less timestamps
type BackendConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"min=1"`
	Timezone          string        `koanf:"timezone" validate:"timezone"`
}

// StreamConfig controls the push channel.
//
// The reconnect policy is a fixed delay with a hard attempt cap; after the cap the
// connection stays in a terminal error state until a credential change or an
// explicit reconnect request.
type StreamConfig struct {
	URL                  string        `koanf:"url" validate:"required,wsurl"`
	ReconnectDelay       time.Duration `koanf:"reconnect_delay" validate:"gt=0"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts" validate:"min=0,max=100"`
	HandshakeTimeout     time.Duration `koanf:"handshake_timeout" validate:"gt=0"`
	PingInterval         time.Duration `koanf:"ping_interval" validate:"gt=0"`
	ReadTimeout          time.Duration `koanf:"read_timeout" validate:"gtfield=PingInterval"`
	InboxSize            int           `koanf:"inbox_size" validate:"min=1"`
}

// ViewsConfig bounds the derived views.
type ViewsConfig struct {
	AlertEventCapacity   int `koanf:"alert_event_capacity" validate:"min=1"`
	AlertSummaryCapacity int `koanf:"alert_summary_capacity" validate:"min=1"`
	IdentityCapacity     int `koanf:"identity_capacity" validate:"min=1"`
	JournalCapacity      int `koanf:"journal_capacity" validate:"min=0"`
}

// CredentialConfig locates the persisted bearer credential.
type CredentialConfig struct {
	Path  string `koanf:"path" validate:"required"`
	Watch bool   `koanf:"watch"`
}

// SubjectConfig optionally selects a subject at startup.
type SubjectConfig struct {
	Kind          string        `koanf:"kind" validate:"omitempty,oneof=tracker shipment asset"`
	ID            string        `koanf:"id" validate:"required_with=Kind"`
	HistoryWindow time.Duration `koanf:"history_window" validate:"gt=0"`
}

// ServerConfig is the local HTTP surface used by presentation clients.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// SecurityConfig holds the local surface's CORS and rate limit settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds zerolog settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Location resolves BackendConfig.Timezone, falling back to UTC.
func (b BackendConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
