// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package models

import (
	"fmt"
	"strings"
	"time"
)

// SubjectKind is the kind of entity a view is about.
type SubjectKind string

// Subject kinds.
const (
	SubjectTracker  SubjectKind = "tracker"
	SubjectShipment SubjectKind = "shipment"
	SubjectAsset    SubjectKind = "asset"
)

// Subject is the tracker, shipment or asset the derived views currently describe.
// The zero Subject means no selection.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// IsZero reports whether no subject is selected.
func (s Subject) IsZero() bool {
	return s.ID == ""
}

func (s Subject) String() string {
	if s.IsZero() {
		return ""
	}
	return string(s.Kind) + ":" + s.ID
}

// ParseSubject parses the "kind:id" form produced by String.
func ParseSubject(v string) (Subject, error) {
	kind, id, ok := strings.Cut(v, ":")
	if !ok || id == "" {
		return Subject{}, fmt.Errorf("invalid subject %q: want kind:id", v)
	}
	switch SubjectKind(kind) {
	case SubjectTracker, SubjectShipment, SubjectAsset:
		return Subject{Kind: SubjectKind(kind), ID: id}, nil
	default:
		return Subject{}, fmt.Errorf("invalid subject kind %q", kind)
	}
}

// DateRange bounds a history query. Both ends are inclusive.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastWindow returns the range ending at now and spanning d.
func LastWindow(now time.Time, d time.Duration) DateRange {
	return DateRange{Start: now.Add(-d), End: now}
}
