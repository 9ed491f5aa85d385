// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle implements the database operations: create, update,
// start, stop, remove, list and sync.
//
// # Description
//
// The Orchestrator owns the in-memory record set. Every mutation is
// mirrored to the store immediately afterwards; the stored copy is a
// snapshot, never read back while the process runs.
//
// Multi-step operations run as sagas (see package resilience): when a step
// fails, the engine-side resources created by earlier steps of the same
// operation are removed before the classified error is returned.
//
// # Thread Safety
//
// Operations on different records run concurrently. Operations on the same
// record are serialized by a per-record lock that is held across engine
// calls; the record set's own lock never is.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/reconcile"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/resilience"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/runspec"
	"github.com/AleutianAI/dockdb/pkg/logging"
)

// =============================================================================
// Collaborators
// =============================================================================

// Engine is the subset of *engine.Gateway the orchestrator uses.
type Engine interface {
	Run(ctx context.Context, args []string) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	ForceRemoveByName(ctx context.Context, name string)
	Inspect(ctx context.Context, ref string) (engine.Container, bool, error)
	ListContainers(ctx context.Context) ([]engine.Container, error)
	CreateVolumeIfAbsent(ctx context.Context, name string) (bool, error)
	RemoveVolumeIfPresent(ctx context.Context, name string) error
	VolumeExists(ctx context.Context, name string) (bool, error)
	Logs(ctx context.Context, id string, tail int) (string, error)
	Exec(ctx context.Context, id, command string, columns int) (engine.ExecResult, error)
	Status(ctx context.Context) engine.EngineStatus
}

var _ Engine = (*engine.Gateway)(nil)

// Migrator copies one volume into another.
type Migrator interface {
	Migrate(ctx context.Context, from, to string) error
}

// Persister loads and saves the full record set.
type Persister interface {
	Load(ctx context.Context) ([]records.Record, error)
	Save(ctx context.Context, rs []records.Record) error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config configures an Orchestrator.
type Config struct {
	Engine   Engine
	Migrator Migrator
	Store    Persister

	// Logger defaults to discard.
	Logger *slog.Logger

	// StepTimeout bounds each saga step. Zero means no deadline.
	StepTimeout time.Duration

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() string
}

// Orchestrator runs lifecycle operations against the engine and keeps the
// record set in step with them.
type Orchestrator struct {
	engine      Engine
	migrator    Migrator
	set         *records.Set
	writer      *reconcile.Writer
	locks       *KeyedLocks
	reconciler  *reconcile.Reconciler
	logger      *slog.Logger
	stepTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// New creates an Orchestrator and loads the saved records.
//
// # Outputs
//
//   - *Orchestrator: Ready for use. No engine call has been made.
//   - error: A missing collaborator, or PERSISTENCE_ERROR when the saved
//     records cannot be read.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.Engine == nil || cfg.Store == nil || cfg.Migrator == nil {
		return nil, errors.New("lifecycle: engine, migrator and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	saved, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, err
	}

	set := records.NewSet(saved)
	o := &Orchestrator{
		engine:      cfg.Engine,
		migrator:    cfg.Migrator,
		set:         set,
		locks:       NewKeyedLocks(),
		writer:      reconcile.NewWriter(set, cfg.Store),
		logger:      cfg.Logger.With("component", "lifecycle"),
		stepTimeout: cfg.StepTimeout,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
	o.reconciler = reconcile.New(reconcile.Config{
		Records: o.set,
		Engine:  cfg.Engine,
		Writer:  o.writer,
		Locks:   o.locks,
		Logger:  cfg.Logger,
	})
	o.logger.Info("records loaded", "count", o.set.Len())
	return o, nil
}

// Reconciler returns the reconciler bound to this orchestrator's records.
func (o *Orchestrator) Reconciler() *reconcile.Reconciler { return o.reconciler }

// Get returns the record with id.
func (o *Orchestrator) Get(id string) (records.Record, error) {
	r, ok := o.set.Get(id)
	if !ok {
		return records.Record{}, notFound(id)
	}
	return r, nil
}

// Find returns the record whose id or, failing that, name is ref.
func (o *Orchestrator) Find(ref string) (records.Record, error) {
	if r, ok := o.set.Get(ref); ok {
		return r, nil
	}
	if r, ok := o.set.FindByName(ref, ""); ok {
		return r, nil
	}
	return records.Record{}, notFound(ref)
}

// List reconciles with the engine and returns every record, sorted by name.
// When the engine cannot be listed, the unreconciled records are returned
// together with the error.
func (o *Orchestrator) List(ctx context.Context) ([]records.Record, error) {
	res, err := o.Sync(ctx)
	if err != nil {
		if res.Records == nil {
			return o.set.Snapshot(), err
		}
		return res.Records, err
	}
	return res.Records, nil
}

// Sync runs one reconciliation pass and persists the result.
func (o *Orchestrator) Sync(ctx context.Context) (res reconcile.Result, err error) {
	ctx, end := startOperation(ctx, "sync", "")
	defer func() { end(err) }()
	return o.reconciler.Run(ctx)
}

// Start starts the record's container and marks it running.
func (o *Orchestrator) Start(ctx context.Context, id string) (records.Record, error) {
	return o.setRunning(ctx, "start", id, true)
}

// Stop stops the record's container and marks it stopped.
func (o *Orchestrator) Stop(ctx context.Context, id string) (records.Record, error) {
	return o.setRunning(ctx, "stop", id, false)
}

func (o *Orchestrator) setRunning(ctx context.Context, op, id string, running bool) (rec records.Record, err error) {
	ctx, end := startOperation(ctx, op, id)
	defer func() { end(err) }()

	unlock := o.locks.Lock(id)
	defer unlock()

	current, ok := o.set.Get(id)
	if !ok {
		return records.Record{}, notFound(id)
	}
	if !current.HasContainer() {
		return records.Record{}, apperr.NotFound("Container not found")
	}

	if running {
		err = o.engine.Start(ctx, current.ContainerIDString())
	} else {
		err = o.engine.Stop(ctx, current.ContainerIDString())
	}
	if err != nil {
		if apperr.TypeOf(err) == apperr.TypeNotFound {
			// The container vanished behind our back.
			o.set.Update(id, func(r *records.Record) { r.Detach() })
			if perr := o.persist(ctx); perr != nil {
				o.logger.Error("could not persist detached record", "record", id, "error", perr)
			}
		}
		return records.Record{}, err
	}

	updated, _ := o.set.Update(id, func(r *records.Record) {
		if running {
			r.Status = records.StatusRunning
		} else {
			r.Status = records.StatusStopped
		}
	})
	if err := o.persist(ctx); err != nil {
		return records.Record{}, err
	}
	o.logger.Info("database "+op, "record", id, "name", updated.Name)
	return updated, nil
}

// Remove deletes the record's container, its volume when persistent, and
// the record itself.
//
// # Description
//
// A container removal failure aborts the operation with the record intact.
// Once the container is gone the record is always deleted and persisted; a
// volume removal failure is returned afterwards.
func (o *Orchestrator) Remove(ctx context.Context, id string) (err error) {
	ctx, end := startOperation(ctx, "remove", id)
	defer func() { end(err) }()

	unlock := o.locks.Lock(id)
	defer unlock()

	current, ok := o.set.Get(id)
	if !ok {
		return notFound(id)
	}

	if current.HasContainer() {
		if err := o.engine.Remove(ctx, current.ContainerIDString()); err != nil {
			return err
		}
	}

	var volumeErr error
	if current.PersistData {
		volumeErr = o.engine.RemoveVolumeIfPresent(ctx, current.Volume())
		if volumeErr != nil {
			o.logger.Warn("volume not removed", "record", id, "volume", current.Volume(), "error", volumeErr)
		}
	}

	o.set.Delete(id)
	if err := o.persist(ctx); err != nil {
		return err
	}
	o.logger.Info("database removed", "record", id, "name", current.Name)
	return volumeErr
}

// Logs returns the last tail lines of the record's container output.
func (o *Orchestrator) Logs(ctx context.Context, id string, tail int) (string, error) {
	containerID, err := o.containerOf(id)
	if err != nil {
		return "", err
	}
	return o.engine.Logs(ctx, containerID, tail)
}

// Exec runs command in the record's container.
func (o *Orchestrator) Exec(ctx context.Context, id, command string, columns int) (engine.ExecResult, error) {
	containerID, err := o.containerOf(id)
	if err != nil {
		return engine.ExecResult{}, err
	}
	return o.engine.Exec(ctx, containerID, command, columns)
}

// EngineStatus reports the container engine's state.
func (o *Orchestrator) EngineStatus(ctx context.Context) engine.EngineStatus {
	return o.engine.Status(ctx)
}

// ConnectionURI returns a client connection URI for the record on host.
func (o *Orchestrator) ConnectionURI(id, host string) (string, error) {
	r, err := o.Get(id)
	if err != nil {
		return "", err
	}
	return runspec.ConnectionURI(r, host)
}

// =============================================================================
// Helpers
// =============================================================================

func notFound(id string) *apperr.Error {
	return apperr.NotFound("Database %s not found", id)
}

func (o *Orchestrator) containerOf(id string) (string, error) {
	r, err := o.Get(id)
	if err != nil {
		return "", err
	}
	if !r.HasContainer() {
		return "", apperr.NotFound("Container not found")
	}
	return r.ContainerIDString(), nil
}

// persist saves the full record set through the writer shared with the
// reconciler.
func (o *Orchestrator) persist(ctx context.Context) error {
	if _, err := o.writer.Flush(ctx); err != nil {
		if apperr.TypeOf(err) == apperr.TypePersistence {
			return err
		}
		return apperr.Persistence("Error saving configuration", err)
	}
	return nil
}

func (o *Orchestrator) newSaga(logger *slog.Logger) *resilience.Saga {
	cfg := resilience.DefaultSagaConfig()
	cfg.StepTimeout = o.stepTimeout
	cfg.Logger = logger
	return resilience.NewSaga(cfg)
}

// classified strips saga wrapping so callers see the step's own error.
func classified(err error) error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	return err
}

// createVolumes creates each missing volume and returns the ones it
// created. On failure it removes what it created before returning.
func (o *Orchestrator) createVolumes(ctx context.Context, names []string) ([]string, error) {
	var created []string
	for _, name := range names {
		made, err := o.engine.CreateVolumeIfAbsent(ctx, name)
		if err != nil {
			_ = o.removeVolumes(context.WithoutCancel(ctx), created)
			return nil, err
		}
		if made {
			created = append(created, name)
		}
	}
	return created, nil
}

// removeVolumes removes every named volume and returns the first failure.
func (o *Orchestrator) removeVolumes(ctx context.Context, names []string) error {
	var first error
	for _, name := range names {
		if err := o.engine.RemoveVolumeIfPresent(ctx, name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// runContainer runs spec as name and returns the container id.
//
// # Description
//
// On failure the container is force-removed by name exactly once and the
// error is reported against port. genericMessage replaces the default
// DOCKER_ERROR message ("Error creating container").
func (o *Orchestrator) runContainer(ctx context.Context, name string, spec runspec.RunSpec, port int, genericMessage string) (string, error) {
	id, err := o.engine.Run(ctx, runspec.BuildRunArgs(name, spec))
	if err != nil {
		o.engine.ForceRemoveByName(context.WithoutCancel(ctx), name)
		return "", reclassify(err, port, genericMessage)
	}
	if id != "" {
		return id, nil
	}

	c, found, inspectErr := o.engine.Inspect(ctx, name)
	if inspectErr == nil && found {
		return c.ID, nil
	}
	o.engine.ForceRemoveByName(context.WithoutCancel(ctx), name)
	return "", apperr.Engine(genericMessage, "engine did not report a container id", inspectErr)
}

func reclassify(err error, port int, genericMessage string) error {
	e, ok := apperr.As(err)
	if !ok {
		return err
	}
	switch {
	case e.Type == apperr.TypePortInUse && e.Port != port:
		return apperr.PortInUse(port, e.Err)
	case e.Type == apperr.TypeEngine && e.Message != genericMessage:
		out := *e
		out.Message = genericMessage
		return &out
	}
	return e
}
