// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shiptrack/config.yaml",
	"/etc/shiptrack/config.yml",
}

const (
	// ConfigPathEnvVar overrides the config file path.
	ConfigPathEnvVar = "CONFIG_PATH"

	// DotEnvPathEnvVar overrides the .env file path.
	DotEnvPathEnvVar = "DOTENV_PATH"
)

// sliceConfigPaths are accepted as comma-separated strings from the environment.
var sliceConfigPaths = []string{"security.cors_origins"}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"backend_url":     "backend.base_url",
	"backend_timeout": "backend.timeout",
	"backend_rps":     "backend.requests_per_second",
	"backend_burst":   "backend.burst",
	"timezone":        "backend.timezone",

	"stream_url":                    "stream.url",
	"stream_reconnect_delay":        "stream.reconnect_delay",
	"stream_max_reconnect_attempts": "stream.max_reconnect_attempts",
	"stream_handshake_timeout":      "stream.handshake_timeout",
	"stream_ping_interval":          "stream.ping_interval",
	"stream_read_timeout":           "stream.read_timeout",
	"stream_inbox_size":             "stream.inbox_size",

	"alert_event_capacity":   "views.alert_event_capacity",
	"alert_summary_capacity": "views.alert_summary_capacity",
	"identity_capacity":      "views.identity_capacity",
	"journal_capacity":       "views.journal_capacity",

	"credential_path":  "credential.path",
	"credential_watch": "credential.watch",

	"subject_kind":           "subject.kind",
	"subject_id":             "subject.id",
	"subject_history_window": "subject.history_window",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8080",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
			Timezone:          "UTC",
		},
		Stream: StreamConfig{
			URL:                  "ws://localhost:8080/ws",
			ReconnectDelay:       3 * time.Second,
			MaxReconnectAttempts: 5,
			HandshakeTimeout:     10 * time.Second,
			PingInterval:         30 * time.Second,
			ReadTimeout:          60 * time.Second,
			InboxSize:            256,
		},
		Views: ViewsConfig{
			AlertEventCapacity:   500,
			AlertSummaryCapacity: 200,
			IdentityCapacity:     4096,
			JournalCapacity:      1024,
		},
		Credential: CredentialConfig{
			Path:  "/data/shiptrack/credential",
			Watch: true,
		},
		Subject: SubjectConfig{
			HistoryWindow: 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: struct defaults, then the YAML file (if any), then
// environment variables, after first merging an optional .env file into the
// environment. Variables already set in the process win over the .env file.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv(DotEnvPathEnvVar)
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
