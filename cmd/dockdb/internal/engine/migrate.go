// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
)

// DefaultHelperImage is the image used for volume copy helpers.
const DefaultHelperImage = "alpine:latest"

// helperPrefix names temporary migration containers.
const helperPrefix = "temp-migrate-"

// copyScript copies everything, dotfiles included. A partial copy of an
// empty source is not an error.
const copyScript = "cp -a /old_data/. /new_data/ 2>/dev/null || true"

// Migrator copies a named volume into another named volume.
type Migrator struct {
	gw          *Gateway
	helperImage string
	newName     func() string
}

// NewMigrator creates a Migrator that runs helpers from helperImage
// (DefaultHelperImage when empty).
func NewMigrator(gw *Gateway, helperImage string) *Migrator {
	if helperImage == "" {
		helperImage = DefaultHelperImage
	}
	return &Migrator{
		gw:          gw,
		helperImage: helperImage,
		newName:     func() string { return helperPrefix + uuid.NewString() },
	}
}

// Migrate copies the contents of volume from into volume to.
//
// # Description
//
// When from does not exist there is nothing to copy and Migrate returns nil
// without touching to. Otherwise to is created if absent and a helper
// container mounting both volumes runs the copy in the foreground. The
// helper is force-removed afterwards whatever the outcome. The source
// volume is never modified.
//
// # Outputs
//
//   - error: DOCKER_ERROR when the helper cannot be created or started,
//     TRANSPORT_ERROR when the engine cannot be invoked.
func (m *Migrator) Migrate(ctx context.Context, from, to string) error {
	exists, err := m.gw.VolumeExists(ctx, from)
	if err != nil {
		return err
	}
	if !exists {
		m.gw.logger.Info("source volume absent, nothing to migrate", "from", from, "to", to)
		return nil
	}

	if _, err := m.gw.CreateVolumeIfAbsent(ctx, to); err != nil {
		return err
	}

	helper := m.newName()
	defer func() {
		// Cleanup runs even if ctx was cancelled mid-copy.
		cleanupCtx := context.WithoutCancel(ctx)
		if _, _, err := m.gw.invoke(cleanupCtx, "rm", "-f", helper); err != nil {
			m.gw.logger.Warn("helper cleanup failed", "helper", helper, "error", err)
		}
	}()

	_, cmdErr, err := m.gw.invoke(ctx, "create",
		"--name", helper,
		"-v", from+":/old_data",
		"-v", to+":/new_data",
		m.helperImage,
		"sh", "-c", copyScript,
	)
	if err != nil {
		return err
	}
	if cmdErr != nil {
		return apperr.Engine("Error migrating volume", cmdErr.Stderr, cmdErr)
	}

	_, cmdErr, err = m.gw.invoke(ctx, "start", "-a", helper)
	if err != nil {
		return err
	}
	if cmdErr != nil {
		return apperr.Engine("Error migrating volume", cmdErr.Stderr, cmdErr)
	}

	m.gw.logger.Info("volume migrated", "from", from, "to", to)
	return nil
}
