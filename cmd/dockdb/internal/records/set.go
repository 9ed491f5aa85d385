// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"sort"
	"sync"
)

// Set is the in-memory collection of records, keyed by id.
//
// # Thread Safety
//
// Every method takes the set's mutex for the duration of one copy or
// mutation only. Records are copied in and out, so callers never hold a
// reference into the set and the lock is never held across an engine call.
type Set struct {
	mu   sync.Mutex
	byID map[string]Record
}

// NewSet creates a set holding copies of rs. Later duplicates of an id win.
func NewSet(rs []Record) *Set {
	s := &Set{byID: make(map[string]Record, len(rs))}
	for _, r := range rs {
		s.byID[r.ID] = r.Clone()
	}
	return s
}

// Get returns a copy of the record with id.
func (s *Set) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// FindByName returns a copy of the record named name, skipping excludeID.
func (s *Set) FindByName(name, excludeID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.byID {
		if id != excludeID && r.Name == name {
			return r.Clone(), true
		}
	}
	return Record{}, false
}

// Put inserts or replaces a record.
func (s *Set) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r.Clone()
}

// Update applies fn to the stored record with id and returns the result.
// It reports false, without calling fn, when id is absent.
func (s *Set) Update(id string, fn func(*Record)) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	fn(&r)
	s.byID[id] = r
	return r.Clone(), true
}

// Delete removes the record with id and returns it.
func (s *Set) Delete(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
	}
	return r, ok
}

// Snapshot returns copies of every record sorted by name, then id.
func (s *Set) Snapshot() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of records.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
