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

import (
	"context"
	"time"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/resilience"
)

// Create provisions a new database.
//
// # Description
//
// Steps, each undone if a later one fails:
//
//  1. Create the request's volumes that do not exist yet.
//  2. Run the container. A failed run force-removes the container by name
//     before its error is classified.
//  3. Insert the record, status running.
//  4. Persist the record set.
//
// Volumes that existed before the call are never removed.
//
// # Inputs
//
//   - req: Validated here. An empty Metadata.ID gets a fresh UUID.
//
// # Outputs
//
//   - records.Record: The new record.
//   - error: CONFIGURATION_ERROR or NAME_IN_USE before any engine call;
//     PORT_IN_USE, NAME_IN_USE, DOCKER_ERROR or TRANSPORT_ERROR from the
//     engine; PERSISTENCE_ERROR when the set cannot be saved.
func (o *Orchestrator) Create(ctx context.Context, req Request) (rec records.Record, err error) {
	id := req.Metadata.ID
	if id == "" {
		id = o.newID()
	}
	ctx, end := startOperation(ctx, "create", id)
	defer func() { end(err) }()

	if err := req.Validate(); err != nil {
		return records.Record{}, err
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	if _, exists := o.set.Get(id); exists {
		return records.Record{}, apperr.Configuration("A database with id %q already exists", id)
	}
	if _, taken := o.set.FindByName(req.Name, ""); taken {
		return records.Record{}, apperr.NameInUse(req.Name, nil)
	}

	logger := o.logger.With("record", id, "name", req.Name)
	var (
		createdVolumes []string
		containerID    string
	)

	saga := o.newSaga(logger)
	saga.AddStep(resilience.SagaStep{
		Name: "create-volumes",
		Execute: func(ctx context.Context) error {
			created, err := o.createVolumes(ctx, req.Spec.VolumeNames())
			createdVolumes = created
			return err
		},
		Compensate: func(ctx context.Context) error {
			return o.removeVolumes(ctx, createdVolumes)
		},
	})
	saga.AddStep(resilience.SagaStep{
		Name: "run-container",
		Execute: func(ctx context.Context) error {
			cid, err := o.runContainer(ctx, req.Name, req.Spec, req.Metadata.Port, "Error creating container")
			containerID = cid
			return err
		},
		Compensate: func(ctx context.Context) error {
			return o.engine.Remove(ctx, containerID)
		},
	})
	saga.AddStep(resilience.SagaStep{
		Name: "insert-record",
		Execute: func(ctx context.Context) error {
			rec = newRecord(id, req, containerID, o.now())
			o.set.Put(rec)
			return nil
		},
		Compensate: func(ctx context.Context) error {
			o.set.Delete(id)
			return nil
		},
	})
	saga.AddStep(resilience.SagaStep{
		Name:    "persist",
		Execute: o.persist,
	})

	if err := saga.Execute(ctx); err != nil {
		logger.Warn("create failed", "error", err, "completed", saga.CompletedSteps())
		return records.Record{}, classified(err)
	}

	logger.Info("database created",
		"kind", rec.Kind,
		"port", rec.Port,
		"container", rec.ContainerIDString(),
	)
	return rec, nil
}

// newRecord builds the record of a freshly created container.
func newRecord(id string, req Request, containerID string, now time.Time) records.Record {
	r := records.Record{
		ID:        id,
		CreatedAt: records.Today(now),
	}
	applyRequest(&r, req)
	if r.MaxConnections == 0 {
		r.MaxConnections = records.DefaultMaxConnections
	}
	r.Attach(containerID, true)
	return r
}

// applyRequest copies every request-owned field into r. ID, CreatedAt and
// the container fields are left alone.
func applyRequest(r *records.Record, req Request) {
	m := req.Metadata
	r.Name = req.Name
	r.Kind = m.Kind
	r.Version = m.Version
	r.Port = m.Port
	r.Password = m.Password
	r.Username = records.StringPtr(records.Deref(m.Username))
	r.DatabaseName = records.StringPtr(records.Deref(m.DatabaseName))
	r.PersistData = m.PersistData
	r.EnableAuth = m.EnableAuth
	if m.MaxConnections != nil {
		r.MaxConnections = *m.MaxConnections
	}
}
