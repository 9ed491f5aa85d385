// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import "sync"

// KeyedLocks is a set of mutexes keyed by record id. Entries exist only
// while someone holds or waits for them.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocks creates an empty lock set.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until id is free and returns its release function.
func (k *KeyedLocks) Lock(id string) func() {
	k.mu.Lock()
	e := k.entry(id)
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return k.releaser(id, e)
}

// TryLock takes id only if it is free.
func (k *KeyedLocks) TryLock(id string) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.entry(id)
	if !e.mu.TryLock() {
		return nil, false
	}
	e.refs++
	return k.releaser(id, e), true
}

// Held reports whether id is currently locked or awaited.
func (k *KeyedLocks) Held(id string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.locks[id]
	return ok && e.refs > 0
}

// entry must be called with k.mu held.
func (k *KeyedLocks) entry(id string) *keyedEntry {
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	return e
}

func (k *KeyedLocks) releaser(id string, e *keyedEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, id)
			}
			k.mu.Unlock()
		})
	}
}
