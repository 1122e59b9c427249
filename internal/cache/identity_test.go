// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestIdentitySet_Seen(t *testing.T) {
	s := NewIdentitySet(10)

	if s.Seen("msg-1") {
		t.Error("first sighting should not be a duplicate")
	}
	if !s.Seen("msg-1") {
		t.Error("second sighting should be a duplicate")
	}
	if s.Seen("msg-2") {
		t.Error("different identity should not be a duplicate")
	}

	hits, misses, evictions, size := s.Stats()
	if hits != 1 || misses != 2 || evictions != 0 || size != 2 {
		t.Errorf("Stats() = %d, %d, %d, %d; want 1, 2, 0, 2", hits, misses, evictions, size)
	}
}

func TestIdentitySet_EvictsLeastRecentlySeen(t *testing.T) {
	s := NewIdentitySet(3)

	s.Seen("a")
	s.Seen("b")
	s.Seen("c")
	// Refresh "a" so "b" becomes the oldest.
	s.Seen("a")
	s.Seen("d")

	if s.Contains("b") {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !s.Contains(k) {
			t.Errorf("%s should still be present", k)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if _, _, evictions, _ := s.Stats(); evictions != 1 {
		t.Errorf("evictions = %d, want 1", evictions)
	}
}

func TestIdentitySet_ClearAndForget(t *testing.T) {
	s := NewIdentitySet(5)
	s.Seen("x")
	s.Seen("y")

	if !s.Forget("x") {
		t.Error("Forget should report a present key")
	}
	if s.Forget("x") {
		t.Error("Forget should report a missing key")
	}
	if s.Seen("x") {
		t.Error("forgotten identity should be new again")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d", s.Len())
	}
	if s.Seen("y") {
		t.Error("identity should be new after Clear")
	}
}

func TestIdentitySet_DefaultCapacity(t *testing.T) {
	s := NewIdentitySet(0)
	if s.capacity != 4096 {
		t.Errorf("capacity = %d, want 4096", s.capacity)
	}
}

func TestIdentitySet_Concurrent(t *testing.T) {
	s := NewIdentitySet(1000)

	var wg sync.WaitGroup
	dupes := make([]int, 4)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if s.Seen(fmt.Sprintf("id-%d", i)) {
					dupes[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, d := range dupes {
		total += d
	}
	// 400 calls over 100 identities: exactly 100 first sightings.
	if total != 300 {
		t.Errorf("duplicates = %d, want 300", total)
	}
}
