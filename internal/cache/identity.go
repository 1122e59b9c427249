// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package cache provides the bounded identity sets used for replay suppression.
package cache

import "sync"

type identityEntry struct {
	key  string
	prev *identityEntry
	next *identityEntry
}

// IdentitySet remembers the most recently seen message identities up to a fixed
// capacity. When full, the least recently seen identity is forgotten.
//
// Operations are O(1): a map for lookup and a doubly-linked list with sentinel
// nodes for recency order (head.next is newest, tail.prev is oldest).
// An IdentitySet is safe for concurrent use.
type IdentitySet struct {
	mu sync.Mutex

	capacity int
	items    map[string]*identityEntry
	head     *identityEntry
	tail     *identityEntry

	hits      int64
	misses    int64
	evictions int64
}

// NewIdentitySet creates a set that holds at most capacity identities.
func NewIdentitySet(capacity int) *IdentitySet {
	if capacity <= 0 {
		capacity = 4096
	}
	s := &IdentitySet{
		capacity: capacity,
		items:    make(map[string]*identityEntry, capacity),
		head:     &identityEntry{},
		tail:     &identityEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Seen reports whether key was already recorded. A new key is recorded; a known key
// is refreshed so that a replay storm keeps its identity resident.
func (s *IdentitySet) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok {
		s.unlink(e)
		s.pushFront(e)
		s.hits++
		return true
	}

	e := &identityEntry{key: key}
	s.pushFront(e)
	s.items[key] = e
	for len(s.items) > s.capacity {
		s.evictOldest()
	}
	s.misses++
	return false
}

// Contains reports whether key is recorded without changing recency.
func (s *IdentitySet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Forget removes key. It reports whether key was present.
func (s *IdentitySet) Forget(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return false
	}
	s.unlink(e)
	delete(s.items, key)
	return true
}

// Len returns the number of recorded identities.
func (s *IdentitySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Clear forgets every identity. Counters are kept.
func (s *IdentitySet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*identityEntry, s.capacity)
	s.head.next = s.tail
	s.tail.prev = s.head
}

// Stats returns duplicate hits, first sightings, evictions and the current size.
func (s *IdentitySet) Stats() (hits, misses, evictions int64, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses, s.evictions, len(s.items)
}

// The methods below must be called with mu held.

func (s *IdentitySet) pushFront(e *identityEntry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *IdentitySet) unlink(e *identityEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (s *IdentitySet) evictOldest() {
	oldest := s.tail.prev
	if oldest == s.head {
		return
	}
	s.unlink(oldest)
	delete(s.items, oldest.key)
	s.evictions++
}
