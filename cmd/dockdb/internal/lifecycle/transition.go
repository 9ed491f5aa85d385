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

import "github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"

// Action is what an update has to do.
type Action int

const (
	// ActionNone: nothing the record stores would change.
	ActionNone Action = iota
	// ActionMetadataOnly: only advisory fields change; the container stays.
	ActionMetadataOnly
	// ActionRecreate: the container is removed and run again.
	ActionRecreate
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionMetadataOnly:
		return "metadata_only"
	case ActionRecreate:
		return "recreate"
	default:
		return "unknown"
	}
}

// VolumeTransition is what happens to data volumes during a recreation.
type VolumeTransition int

const (
	// VolumeKeep: no volume is created, copied or removed.
	VolumeKeep VolumeTransition = iota
	// VolumeMigrate: copy the old volume into the new one, then remove the
	// old one once the new container runs.
	VolumeMigrate
	// VolumeCreate: persistence is being enabled.
	VolumeCreate
	// VolumeDelete: persistence is being disabled; the old volume is removed
	// once the new container runs.
	VolumeDelete
)

func (v VolumeTransition) String() string {
	switch v {
	case VolumeKeep:
		return "keep"
	case VolumeMigrate:
		return "migrate"
	case VolumeCreate:
		return "create"
	case VolumeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Transition is the classified difference between a record and an update
// request.
type Transition struct {
	Action Action
	Volume VolumeTransition

	NameChanged    bool
	PortChanged    bool
	PersistChanged bool

	// OldVolume is the volume being migrated from or deleted.
	OldVolume string
	// NewVolumes are the volumes being migrated to or created.
	NewVolumes []string
}

// NeedsRecreation reports whether moving from old to the given name, port
// and persistence flag requires a new container. Credentials, version and
// other metadata never do.
func NeedsRecreation(old records.Record, name string, port int, persist bool) bool {
	return old.Name != name || old.Port != port || old.PersistData != persist
}

// Decide classifies an update of old by req.
//
// # Description
//
// A persistent record that stays persistent under a new name always
// migrates its data. A persistent record keeping its name reuses its
// volume. When persistence is enabled the request's volumes are created,
// or the derived volume when the request mounts none.
func Decide(old records.Record, req Request) Transition {
	t := Transition{
		NameChanged:    old.Name != req.Name,
		PortChanged:    old.Port != req.Metadata.Port,
		PersistChanged: old.PersistData != req.Metadata.PersistData,
	}

	if !NeedsRecreation(old, req.Name, req.Metadata.Port, req.Metadata.PersistData) {
		if req.Metadata.MaxConnections != nil && *req.Metadata.MaxConnections != old.MaxConnections {
			t.Action = ActionMetadataOnly
		}
		return t
	}

	t.Action = ActionRecreate
	wasPersistent, isPersistent := old.PersistData, req.Metadata.PersistData
	switch {
	case wasPersistent && isPersistent && t.NameChanged:
		t.Volume = VolumeMigrate
		t.OldVolume = old.Volume()
		t.NewVolumes = []string{records.VolumeName(req.Name)}
	case !wasPersistent && isPersistent:
		t.Volume = VolumeCreate
		t.NewVolumes = req.Spec.VolumeNames()
		if len(t.NewVolumes) == 0 {
			t.NewVolumes = []string{records.VolumeName(req.Name)}
		}
	case wasPersistent && !isPersistent:
		t.Volume = VolumeDelete
		t.OldVolume = old.Volume()
	default:
		t.Volume = VolumeKeep
	}
	return t
}
