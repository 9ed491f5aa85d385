// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile pulls the engine's observed container state into the
// record set.
//
// # Description
//
// Records are matched to containers by name, never by stored container id:
// the id changes whenever a container is recreated outside dockdb. A record
// with a matching container takes that container's id and running state; a
// record without one becomes stopped with no container id.
//
// Apply is the pure matching step. Reconciler runs it against the live
// record set, skipping records that another operation is holding, and
// persists the result. Loop runs a Reconciler periodically.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/pkg/logging"
)

var tracer = otel.Tracer("dockdb.reconcile")

// =============================================================================
// Collaborators
// =============================================================================

// Lister lists every container the engine knows.
type Lister interface {
	ListContainers(ctx context.Context) ([]engine.Container, error)
}

// Saver persists the full record set.
type Saver interface {
	Save(ctx context.Context, rs []records.Record) error
}

// Locker hands out per-record locks without blocking. ok is false when the
// record is held by another operation.
type Locker interface {
	TryLock(id string) (unlock func(), ok bool)
}

// Writer saves snapshots of a record set one at a time. The snapshot is
// taken while the writer is held, so saves reach the store in snapshot
// order and an older set never overwrites a newer one.
//
// # Thread Safety
//
// Safe for concurrent use. Everything that persists the same set must share
// one Writer.
type Writer struct {
	mu    sync.Mutex
	set   *records.Set
	saver Saver
}

// NewWriter creates a Writer for set.
func NewWriter(set *records.Set, saver Saver) *Writer {
	return &Writer{set: set, saver: saver}
}

// Flush snapshots the set and saves it.
//
// # Outputs
//
//   - []records.Record: The snapshot that was saved, sorted by name.
//   - error: The saver's error, unchanged.
func (w *Writer) Flush(ctx context.Context) ([]records.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rs := w.set.Snapshot()
	return rs, w.saver.Save(ctx, rs)
}

// =============================================================================
// Pure Matching
// =============================================================================

// Change describes one record that reconciliation modified.
type Change struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	FromStatus    records.Status `json:"from_status"`
	ToStatus      records.Status `json:"to_status"`
	FromContainer string         `json:"from_container,omitempty"`
	ToContainer   string         `json:"to_container,omitempty"`
}

// index maps container name to container. The first container wins on a
// duplicate name.
func index(observed []engine.Container) map[string]engine.Container {
	byName := make(map[string]engine.Container, len(observed))
	for _, c := range observed {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = c
		}
	}
	return byName
}

// applyOne updates r from the observed containers and reports whether it
// changed.
func applyOne(r *records.Record, byName map[string]engine.Container) (Change, bool) {
	before := Change{
		ID:            r.ID,
		Name:          r.Name,
		FromStatus:    r.Status,
		FromContainer: r.ContainerIDString(),
	}

	if c, found := byName[r.Name]; found {
		r.Attach(c.ID, c.Running)
	} else {
		r.Detach()
	}

	before.ToStatus = r.Status
	before.ToContainer = r.ContainerIDString()
	changed := before.FromStatus != before.ToStatus || before.FromContainer != before.ToContainer
	return before, changed
}

// Apply returns a reconciled copy of rs and the changes made. rs is not
// modified.
func Apply(rs []records.Record, observed []engine.Container) ([]records.Record, []Change) {
	byName := index(observed)
	out := make([]records.Record, len(rs))
	var changes []Change
	for i, r := range rs {
		r = r.Clone()
		if ch, changed := applyOne(&r, byName); changed {
			changes = append(changes, ch)
		}
		out[i] = r
	}
	return out, changes
}

// =============================================================================
// Reconciler
// =============================================================================

// Config configures a Reconciler.
type Config struct {
	Records *records.Set
	Engine  Lister
	Saver   Saver

	// Writer is optional and overrides Saver. Share it with every other
	// writer of Records.
	Writer *Writer

	// Locks is optional. When set, records whose lock is held are skipped.
	Locks Locker

	Logger *slog.Logger
}

// Result reports one reconciliation pass.
type Result struct {
	// Records is the record set after the pass, sorted by name.
	Records []records.Record

	// Changes lists the records that were modified.
	Changes []Change

	// Skipped counts records left alone because an operation held them.
	Skipped int
}

// Reconciler reconciles the live record set with the engine.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent Run calls share one pass.
type Reconciler struct {
	set    *records.Set
	engine Lister
	writer *Writer
	locks  Locker
	logger *slog.Logger
	group  singleflight.Group
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Writer == nil {
		cfg.Writer = NewWriter(cfg.Records, cfg.Saver)
	}
	return &Reconciler{
		set:    cfg.Records,
		engine: cfg.Engine,
		writer: cfg.Writer,
		locks:  cfg.Locks,
		logger: cfg.Logger.With("component", "reconciler"),
	}
}

// Run performs one pass and persists the full set.
//
// # Description
//
// Only records present before the engine listing was taken are touched, so
// a record created while the listing was in flight is never marked stopped
// on stale data. If the listing fails, no record changes. Callers arriving
// while a pass is running receive that pass's result.
//
// # Outputs
//
//   - Result: The refreshed set and what changed.
//   - error: Engine listing failure, or a PERSISTENCE_ERROR after the
//     in-memory set was already updated.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	v, err, shared := r.group.Do("reconcile", func() (interface{}, error) {
		return r.run(context.WithoutCancel(ctx))
	})
	if shared {
		r.logger.Debug("joined in-flight reconcile")
	}
	res, _ := v.(Result)
	return res, err
}

func (r *Reconciler) run(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.run")
	defer span.End()

	known := r.set.Snapshot()

	observed, err := r.engine.ListContainers(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("reconcile skipped: cannot list containers", "error", err)
		return Result{Records: known}, err
	}
	byName := index(observed)

	var res Result
	for _, rec := range known {
		unlock := func() {}
		if r.locks != nil {
			u, ok := r.locks.TryLock(rec.ID)
			if !ok {
				res.Skipped++
				continue
			}
			unlock = u
		}

		r.set.Update(rec.ID, func(live *records.Record) {
			if ch, changed := applyOne(live, byName); changed {
				res.Changes = append(res.Changes, ch)
			}
		})
		unlock()
	}

	for _, ch := range res.Changes {
		r.logger.Info("record reconciled",
			"record", ch.ID,
			"name", ch.Name,
			"from", ch.FromStatus,
			"to", ch.ToStatus,
		)
	}

	saved, err := r.writer.Flush(ctx)
	res.Records = saved
	span.SetAttributes(
		attribute.Int("reconcile.records", len(res.Records)),
		attribute.Int("reconcile.changes", len(res.Changes)),
		attribute.Int("reconcile.skipped", res.Skipped),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("reconcile could not persist records", "error", err)
		return res, err
	}
	return res, nil
}

// =============================================================================
// Periodic Loop
// =============================================================================

// Loop runs a Reconciler on a fixed interval.
type Loop struct {
	reconciler *Reconciler
	interval   time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLoop creates a loop. It does nothing until Start.
func NewLoop(r *Reconciler, interval time.Duration) *Loop {
	return &Loop{reconciler: r, interval: interval}
}

// Start begins periodic reconciliation. A non-positive interval or a second
// Start is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopCh != nil || l.interval <= 0 {
		return
	}

	l.stopCh = make(chan struct{})
	stopCh := l.stopCh
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				// Errors are logged by the reconciler.
				_, _ = l.reconciler.Run(context.Background())
			}
		}
	}()
}

// Stop halts the loop and waits for an in-progress pass to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopCh == nil {
		l.mu.Unlock()
		return
	}
	close(l.stopCh)
	l.stopCh = nil
	l.mu.Unlock()

	l.wg.Wait()
}
