// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package validation

import (
	"strings"
	"testing"
)

type streamSettings struct {
	URL      string  `validate:"required,wsurl"`
	Timezone string  `validate:"timezone"`
	Attempts int     `validate:"min=0,max=50"`
	Lat      float64 `validate:"latitude"`
	Kind     string  `validate:"oneof=tracker shipment asset"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   streamSettings
		wantTag string
	}{
		{"valid", streamSettings{URL: "wss://api.example.com/stream", Timezone: "Europe/Berlin", Attempts: 5, Lat: 40.1, Kind: "tracker"}, ""},
		{"empty timezone allowed", streamSettings{URL: "ws://localhost:8080/ws", Attempts: 5, Kind: "asset"}, ""},
		{"http scheme rejected", streamSettings{URL: "https://api.example.com/stream", Kind: "tracker"}, "wsurl"},
		{"missing url", streamSettings{Kind: "tracker"}, "required"},
		{"bad timezone", streamSettings{URL: "ws://h/ws", Timezone: "Mars/Olympus", Kind: "tracker"}, "timezone"},
		{"attempts too high", streamSettings{URL: "ws://h/ws", Attempts: 99, Kind: "tracker"}, "max"},
		{"latitude out of range", streamSettings{URL: "ws://h/ws", Lat: 91, Kind: "tracker"}, "latitude"},
		{"unknown kind", streamSettings{URL: "ws://h/ws", Kind: "pallet"}, "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected %s failure, got nil", tt.wantTag)
			}
			if got := err.Errors()[0].Tag(); got != tt.wantTag {
				t.Errorf("tag = %q, want %q", got, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&streamSettings{Kind: "pallet"})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("expected per-field details for multiple failures, got %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "must be one of: tracker shipment asset") {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}
