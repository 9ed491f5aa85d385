// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// SearchPath is an executable search path (a PATH value). It is resolved
// once at startup and passed by value to the components that spawn
// processes.
type SearchPath struct {
	value  string
	source string
}

// NewSearchPath wraps a PATH value. source describes where it came from
// and is only used for logging.
func NewSearchPath(value, source string) SearchPath {
	return SearchPath{value: value, source: source}
}

// String returns the PATH value.
func (p SearchPath) String() string { return p.value }

// Source returns "login-shell", "environment", or the caller-supplied label.
func (p SearchPath) Source() string { return p.source }

// Env returns the PATH override for Command.Env, or nil when empty.
func (p SearchPath) Env() []string {
	if p.value == "" {
		return nil
	}
	return []string{"PATH=" + p.value}
}

// ResolveSearchPath asks the user's login shell for its PATH.
//
// # Description
//
// Desktop sessions often start with a minimal PATH that lacks the
// directories where engine binaries are symlinked. The login shell sources
// the user's profile, so its PATH is the one the user sees in a terminal.
// On Windows the command interpreter is asked instead.
//
// Directories from fallback that the shell did not report are appended. If
// the shell cannot be run or prints nothing, fallback is used as is.
//
// # Inputs
//
//   - ctx: Bounds the shell invocation.
//   - m: Runs the shell.
//   - goos: runtime.GOOS of the host.
//   - fallback: The PATH of the current process.
//
// # Outputs
//
//   - SearchPath: Never fails; degrades to fallback.
func ResolveSearchPath(ctx context.Context, m Manager, goos, fallback string) SearchPath {
	cmd := Command{Name: "sh", Args: []string{"-l", "-c", "echo $PATH"}}
	if goos == "windows" {
		cmd = Command{Name: "cmd", Args: []string{"/C", "echo %PATH%"}}
	}

	res, err := m.Run(ctx, cmd)
	if err != nil || !res.Success() {
		return NewSearchPath(fallback, "environment")
	}

	shellPath := lastLine(string(res.Stdout))
	if shellPath == "" {
		return NewSearchPath(fallback, "environment")
	}
	return NewSearchPath(mergePathLists(shellPath, fallback), "login-shell")
}

// FromEnvironment returns the current process PATH as a SearchPath.
func FromEnvironment() SearchPath {
	return NewSearchPath(os.Getenv("PATH"), "environment")
}

// lastLine returns the last non-empty line; login shells may print a banner
// before the command output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func mergePathLists(primary, secondary string) string {
	seen := make(map[string]bool)
	var dirs []string
	for _, list := range []string{primary, secondary} {
		for _, dir := range filepath.SplitList(list) {
			if dir == "" || seen[dir] {
				continue
			}
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return strings.Join(dirs, string(os.PathListSeparator))
}
