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
	"fmt"
	"strings"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
)

// =============================================================================
// Command Error
// =============================================================================

// CommandError is a completed engine invocation that exited non-zero.
type CommandError struct {
	// Command is the redacted command line.
	Command string

	// ExitCode is the process exit status.
	ExitCode int

	// Stderr is the trimmed standard error output.
	Stderr string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

var _ error = (*CommandError)(nil)

// =============================================================================
// Classification
// =============================================================================

// Substrings the engine prints for well-known run failures. Docker prints
// "container name ... is already in use" with the quoted name in between;
// Podman reports a taken port as "address already in use".
var (
	portConflictMarkers = []string{
		"port is already allocated",
		"Bind for",
		"address already in use",
	}
	nameConflictMarkers = []string{
		"name is already in use",
		"already exists",
	}
	noSuchContainerMarkers = []string{"no such container"}
	noSuchVolumeMarkers    = []string{"no such volume"}
)

// ClassifyRunError translates a failed run into the error a caller can
// branch on.
//
// # Description
//
// Port conflicts are checked before name conflicts. Anything else is
// DOCKER_ERROR. The result always wraps cause.
//
// # Inputs
//
//   - stderr: Engine error output.
//   - port: The requested host port, reported back on PORT_IN_USE.
//   - name: The requested container name, reported back on NAME_IN_USE.
//   - cause: The underlying error.
//
// # Outputs
//
//   - *apperr.Error: PORT_IN_USE, NAME_IN_USE, or DOCKER_ERROR with the
//     raw stderr as details.
func ClassifyRunError(stderr string, port int, name string, cause error) *apperr.Error {
	switch {
	case containsAny(stderr, portConflictMarkers, false):
		return apperr.PortInUse(port, cause)
	case containsAny(stderr, nameConflictMarkers, false), isContainerNameConflict(stderr):
		return apperr.NameInUse(name, cause)
	default:
		return apperr.Engine("Error creating container", stderr, cause)
	}
}

// isContainerNameConflict matches "container name "/x" is already in use".
// A bare "is already in use" is not enough; devices and volumes say it too.
func isContainerNameConflict(stderr string) bool {
	i := strings.Index(stderr, "container name")
	return i >= 0 && strings.Contains(stderr[i:], "is already in use")
}

// IsNoSuchContainer reports whether stderr says the container is absent.
func IsNoSuchContainer(stderr string) bool {
	return containsAny(stderr, noSuchContainerMarkers, true)
}

// IsNoSuchVolume reports whether stderr says the volume is absent.
func IsNoSuchVolume(stderr string) bool {
	return containsAny(stderr, noSuchVolumeMarkers, true)
}

func containsAny(s string, markers []string, foldCase bool) bool {
	if foldCase {
		s = strings.ToLower(s)
	}
	for _, m := range markers {
		if foldCase {
			m = strings.ToLower(m)
		}
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
