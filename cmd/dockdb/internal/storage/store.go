// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides the durable key-value store that mirrors the
// record set across restarts.
//
// Two backends implement Store:
//
//   - JSONFileStore: one human-readable JSON object on disk. Default.
//   - BadgerStore: an embedded BadgerDB directory with value-log GC.
//
// Repository layers the record encoding on top of a Store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is a durable key-value store.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save durably stores value under key, replacing any previous value.
	Save(ctx context.Context, key string, value []byte) error

	// Load returns the value stored under key. The boolean is false when
	// key has never been saved.
	Load(ctx context.Context, key string) ([]byte, bool, error)

	// Close releases the store. Further calls return ErrClosed.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

// Options selects and configures a backend.
type Options struct {
	// Backend is BackendJSON (default) or BackendBadger.
	Backend string

	// Dir holds the store files.
	Dir string

	// SyncWrites makes badger fsync every write. The JSON store always
	// syncs.
	SyncWrites bool

	// GCInterval runs badger value-log GC periodically. Zero disables it.
	GCInterval time.Duration

	Logger *slog.Logger
}

// Open opens the configured backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendJSON:
		return NewJSONFileStore(filepath.Join(opts.Dir, "store.json"))
	case BackendBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = filepath.Join(opts.Dir, "badger")
		cfg.SyncWrites = opts.SyncWrites
		cfg.GCInterval = opts.GCInterval
		cfg.Logger = opts.Logger
		return OpenBadger(cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
