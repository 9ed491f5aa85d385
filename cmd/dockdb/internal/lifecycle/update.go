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
	"log/slog"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/resilience"
)

// Update changes an existing database.
//
// # Description
//
// Decide classifies the change. Without recreation only max connections
// is applied; the in-memory change is rolled back if it cannot be
// persisted.
//
// With recreation:
//
//  1. Remove the old container, if any.
//  2. Prepare volumes: migrate to the new name, or create volumes when
//     persistence is being enabled.
//  3. Run the new container.
//  4. Remove the volume left behind by a migration or by disabling
//     persistence. Best effort.
//  5. Apply the request to the record and persist.
//
// Data is never destroyed before the new container runs. If steps 2-3
// fail, what they created is removed and the record is left detached and
// stopped, since its old container is gone.
//
// # Outputs
//
//   - records.Record: The updated record.
//   - error: NOT_FOUND, CONFIGURATION_ERROR, NAME_IN_USE, PORT_IN_USE,
//     DOCKER_ERROR ("Error updating container"), TRANSPORT_ERROR or
//     PERSISTENCE_ERROR. After a recreation, PERSISTENCE_ERROR means the
//     engine and the in-memory record are updated but the store is stale.
func (o *Orchestrator) Update(ctx context.Context, id string, req Request) (rec records.Record, err error) {
	ctx, end := startOperation(ctx, "update", id)
	defer func() { end(err) }()

	if err := req.Validate(); err != nil {
		return records.Record{}, err
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	old, ok := o.set.Get(id)
	if !ok {
		return records.Record{}, notFound(id)
	}
	if req.Name != old.Name {
		if _, taken := o.set.FindByName(req.Name, id); taken {
			return records.Record{}, apperr.NameInUse(req.Name, nil)
		}
	}

	logger := o.logger.With("record", id, "name", req.Name)
	t := Decide(old, req)
	logger.Debug("update classified", "action", t.Action, "volume", t.Volume)

	switch t.Action {
	case ActionNone:
		logIgnored(logger, old, req)
		return old, nil
	case ActionMetadataOnly:
		logIgnored(logger, old, req)
		return o.updateMetadata(ctx, old, req)
	default:
		return o.recreate(ctx, logger, old, req, t)
	}
}

func (o *Orchestrator) updateMetadata(ctx context.Context, old records.Record, req Request) (records.Record, error) {
	updated, _ := o.set.Update(old.ID, func(r *records.Record) {
		r.MaxConnections = *req.Metadata.MaxConnections
	})
	if err := o.persist(ctx); err != nil {
		o.set.Put(old)
		return records.Record{}, err
	}
	return updated, nil
}

func (o *Orchestrator) recreate(ctx context.Context, logger *slog.Logger, old records.Record, req Request, t Transition) (records.Record, error) {
	var (
		oldRemoved     bool
		createdVolumes []string
		containerID    string
	)

	saga := o.newSaga(logger)
	saga.AddStep(resilience.SagaStep{
		Name: "remove-old-container",
		Execute: func(ctx context.Context) error {
			if old.HasContainer() {
				if err := o.engine.Remove(ctx, old.ContainerIDString()); err != nil {
					return err
				}
			}
			oldRemoved = true
			return nil
		},
	})

	switch t.Volume {
	case VolumeMigrate:
		target := t.NewVolumes[0]
		saga.AddStep(resilience.SagaStep{
			Name: "migrate-volume",
			Execute: func(ctx context.Context) error {
				existed, err := o.engine.VolumeExists(ctx, target)
				if err != nil {
					return err
				}
				if !existed {
					createdVolumes = []string{target}
				}
				if err := o.migrator.Migrate(ctx, t.OldVolume, target); err != nil {
					_ = o.removeVolumes(context.WithoutCancel(ctx), createdVolumes)
					createdVolumes = nil
					return err
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return o.removeVolumes(ctx, createdVolumes)
			},
		})
	case VolumeCreate:
		saga.AddStep(resilience.SagaStep{
			Name: "create-volumes",
			Execute: func(ctx context.Context) error {
				created, err := o.createVolumes(ctx, t.NewVolumes)
				createdVolumes = created
				return err
			},
			Compensate: func(ctx context.Context) error {
				return o.removeVolumes(ctx, createdVolumes)
			},
		})
	}

	saga.AddStep(resilience.SagaStep{
		Name: "run-container",
		Execute: func(ctx context.Context) error {
			cid, err := o.runContainer(ctx, req.Name, req.Spec, req.Metadata.Port, "Error updating container")
			containerID = cid
			return err
		},
	})

	if err := saga.Execute(ctx); err != nil {
		err = classified(err)
		logger.Warn("recreation failed", "error", err, "completed", saga.CompletedSteps())
		if oldRemoved && old.HasContainer() {
			o.set.Update(old.ID, func(r *records.Record) { r.Detach() })
			if perr := o.persist(ctx); perr != nil {
				logger.Error("could not persist detached record", "error", perr)
			}
		}
		return records.Record{}, err
	}

	if t.Volume == VolumeMigrate || t.Volume == VolumeDelete {
		if err := o.engine.RemoveVolumeIfPresent(ctx, t.OldVolume); err != nil {
			logger.Warn("old volume left behind", "volume", t.OldVolume, "error", err)
		}
	}

	updated, _ := o.set.Update(old.ID, func(r *records.Record) {
		applyRequest(r, req)
		r.Attach(containerID, true)
	})
	if err := o.persist(ctx); err != nil {
		return records.Record{}, err
	}

	logger.Info("database recreated",
		"volume_transition", t.Volume,
		"port", updated.Port,
		"container", updated.ContainerIDString(),
	)
	return updated, nil
}

// logIgnored notes request fields that differ from old but are not applied
// without a recreation.
func logIgnored(logger *slog.Logger, old records.Record, req Request) {
	m := req.Metadata
	var ignored []string
	if m.Version != old.Version {
		ignored = append(ignored, "version")
	}
	if m.Kind != old.Kind {
		ignored = append(ignored, "db_type")
	}
	if m.Password != old.Password {
		ignored = append(ignored, "credentials")
	}
	if records.Deref(m.Username) != records.Deref(old.Username) {
		ignored = append(ignored, "username")
	}
	if records.Deref(m.DatabaseName) != records.Deref(old.DatabaseName) {
		ignored = append(ignored, "database_name")
	}
	if m.EnableAuth != old.EnableAuth {
		ignored = append(ignored, "enable_auth")
	}
	if len(ignored) > 0 {
		logger.Info("fields not applied without recreation", "fields", ignored)
	}
}
