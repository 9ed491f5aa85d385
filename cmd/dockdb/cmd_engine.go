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
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
)

// runEngineStatus needs neither the store nor the lock, so it works while
// "dockdb serve" is running.
func runEngineStatus(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(loadedConfig, appOptions{Service: "dockdb"})
	if err != nil {
		return err
	}
	defer logger.Close()

	status := newGateway(cmd.Context(), loadedConfig, logger).Status(cmd.Context())
	if err := printEngineStatus(cmd, status); err != nil {
		return err
	}
	if status.Status != engine.StatusRunning {
		return &ExitError{Command: "engine status", ExitCode: exitEngine}
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), loadedConfig)
	}
	data, err := yaml.Marshal(loadedConfig)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
