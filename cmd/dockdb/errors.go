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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/infra/process"
)

// Exit codes. Scripts may rely on these.
const (
	exitOK            = 0
	exitFailure       = 1
	exitConfiguration = 2
	exitNotFound      = 3
	exitConflict      = 4 // PORT_IN_USE, NAME_IN_USE
	exitEngine        = 5 // DOCKER_ERROR, TRANSPORT_ERROR
	exitPersistence   = 6
	exitLockHeld      = 7
)

// ExitError carries the exit status of a command run inside a container
// back to main. Its output has already been printed.
//
// # Example
//
//	err := &ExitError{Command: "psql -c 'select 1'", ExitCode: 2}
//	fmt.Println(err.Error()) // "psql -c 'select 1' (exit 2)"
type ExitError struct {
	// Command is the command that ran.
	Command string

	// ExitCode is its exit status.
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	var held *process.ErrLockHeld
	if errors.As(err, &held) {
		return exitLockHeld
	}
	switch apperr.TypeOf(err) {
	case apperr.TypeConfiguration:
		return exitConfiguration
	case apperr.TypeNotFound:
		return exitNotFound
	case apperr.TypePortInUse, apperr.TypeNameInUse:
		return exitConflict
	case apperr.TypeEngine, apperr.TypeTransport:
		return exitEngine
	case apperr.TypePersistence:
		return exitPersistence
	}
	return exitFailure
}

// reportError prints err the way the current output mode expects: the wire
// payload with --json, a styled error line otherwise.
func reportError(cmd *cobra.Command, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	if jsonOutput {
		_ = writeJSON(cmd.OutOrStdout(), apperr.ToWire(err))
		return
	}

	p := printerFor(cmd)
	classified, ok := apperr.As(err)
	if !ok {
		p.Error(err.Error())
		return
	}
	w := apperr.ToWire(classified)
	var details []string
	if w.Details != "" {
		details = append(details, w.Details)
	}
	p.Error(w.Message, details...)
}
