// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/shiptrack/internal/config"
	"github.com/tomtom215/shiptrack/internal/models"
)

func TestInitialSubject(t *testing.T) {
	tests := []struct {
		name    string
		in      config.SubjectConfig
		want    models.Subject
		wantErr bool
	}{
		{"none", config.SubjectConfig{}, models.Subject{}, false},
		{"shipment", config.SubjectConfig{Kind: "shipment", ID: "S1"}, models.Subject{Kind: models.SubjectShipment, ID: "S1"}, false},
		{"missing id", config.SubjectConfig{Kind: "tracker"}, models.Subject{}, true},
		{"bad kind", config.SubjectConfig{Kind: "pallet", ID: "P1"}, models.Subject{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := initialSubject(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	cfg := &config.Config{
		Backend: config.BackendConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second, RequestsPerSecond: 1, Burst: 1, Timezone: "UTC"},
		Stream: config.StreamConfig{
			URL:              "ws://127.0.0.1:1/ws",
			ReconnectDelay:   time.Second,
			HandshakeTimeout: time.Second,
			PingInterval:     time.Second,
			ReadTimeout:      2 * time.Second,
			InboxSize:        8,
		},
		Credential: config.CredentialConfig{Path: filepath.Join(t.TempDir(), "token"), Watch: true},
		Subject:    config.SubjectConfig{Kind: "tracker", ID: "T1", HistoryWindow: time.Hour},
		Server:     config.ServerConfig{Host: "127.0.0.1", Port: 3857, Timeout: time.Second, ShutdownTimeout: time.Second},
		Security:   config.SecurityConfig{RateLimitRequests: 10, RateLimitWindow: time.Minute},
	}

	tree, err := build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("tree has no root")
	}

	cfg.Subject.Kind = "pallet"
	if _, err := build(cfg); err == nil {
		t.Error("expected error for invalid startup subject")
	}
}
