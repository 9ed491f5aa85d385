// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/AleutianAI/dockdb/cmd/dockdb/config"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/infra/process"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/lifecycle"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/storage"
	"github.com/AleutianAI/dockdb/pkg/logging"
)

// searchPathTimeout bounds the login shell asked for PATH.
const searchPathTimeout = 3 * time.Second

// appOptions selects what openApp wires.
type appOptions struct {
	// Service names the log file and the "service" attribute.
	Service string

	// Console keeps log output on stderr. CLI commands log to file only
	// unless --verbose is given.
	Console bool

	// GCInterval is passed to the badger store.
	GCInterval time.Duration
}

// app holds everything a command needs. Close releases it in reverse order.
type app struct {
	cfg     config.DockdbConfig
	logger  *logging.Logger
	lock    *process.ProcessLock
	store   storage.Store
	gateway *engine.Gateway
	orch    *lifecycle.Orchestrator
}

// newLogger builds the logger for a command.
func newLogger(cfg config.DockdbConfig, opts appOptions) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if verbose {
		level = logging.LevelDebug
	}

	lc := logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: opts.Service,
		JSON:    cfg.Logging.JSON,
		Quiet:   !opts.Console && !verbose,
	}
	if cfg.Logging.ExportPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.ExportPath), 0o750); err != nil {
			return nil, fmt.Errorf("create log export directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Logging.ExportPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log export file: %w", err)
		}
		lc.Exporter = logging.NewWriterExporter(f)
	}
	return logging.New(lc), nil
}

// newGateway resolves the engine binary's search path and builds the
// gateway.
func newGateway(ctx context.Context, cfg config.DockdbConfig, logger *logging.Logger) *engine.Gateway {
	manager := process.NewDefaultManager()
	searchPath := process.FromEnvironment()
	if cfg.Engine.ResolveLoginPath {
		ctx, cancel := context.WithTimeout(ctx, searchPathTimeout)
		searchPath = process.ResolveSearchPath(ctx, manager, runtime.GOOS, os.Getenv("PATH"))
		cancel()
	}
	logger.Debug("engine search path resolved", "source", searchPath.Source())

	return engine.NewGateway(engine.Config{
		Binary:     cfg.Engine.Binary,
		SearchPath: searchPath,
		Manager:    manager,
		Logger:     logger.Slog(),
	})
}

// openApp wires the full stack: logger, process lock, store, gateway and
// orchestrator.
//
// # Description
//
// The process lock lives in the store directory so that only one process
// at a time owns the record set. A second instance fails with
// *process.ErrLockHeld before touching the store.
//
// # Outputs
//
//   - *app: Must be closed by the caller.
//   - error: Lock, store or PERSISTENCE_ERROR from loading the records.
func openApp(ctx context.Context, cfg config.DockdbConfig, opts appOptions) (_ *app, err error) {
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.lock = process.NewProcessLock(process.LockConfig{LockDir: cfg.Store.Dir, LockName: "dockdb"})
	if err := a.lock.Acquire(); err != nil {
		return nil, err
	}

	a.store, err = storage.Open(storage.Options{
		Backend:    cfg.Store.Backend,
		Dir:        cfg.Store.Dir,
		SyncWrites: cfg.Store.SyncWrites,
		GCInterval: opts.GCInterval,
		Logger:     logger.Slog(),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.gateway = newGateway(ctx, cfg, logger)
	a.orch, err = lifecycle.New(ctx, lifecycle.Config{
		Engine:      a.gateway,
		Migrator:    engine.NewMigrator(a.gateway, cfg.Engine.HelperImage),
		Store:       storage.NewRepository(a.store),
		Logger:      logger.Slog(),
		StepTimeout: cfg.Engine.StepTimeout,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the store, the lock and the logger.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx, loadedConfig, appOptions{Service: "dockdb"})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
