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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/AleutianAI/dockdb/pkg/logging"
)

// =============================================================================
// Types
// =============================================================================

// Command describes one external process invocation.
type Command struct {
	// Name is the program to run. Bare names are looked up in the PATH
	// entry of Env when present, else in the process PATH.
	Name string

	// Args are passed verbatim; no shell is involved.
	Args []string

	// Env holds KEY=VALUE overrides merged over os.Environ().
	Env []string

	// Stdin is written to the process standard input when non-nil.
	Stdin []byte
}

// String renders the command line with secret values redacted.
func (c Command) String() string {
	parts := append([]string{c.Name}, RedactArgs(c.Args)...)
	return strings.Join(parts, " ")
}

// Result is the outcome of a command that was started.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Manager runs external commands.
//
// # Description
//
// Run blocks until the process exits or ctx is cancelled. A started command
// always yields a Result, whatever its exit status. The returned error is
// reserved for transport failures: the program could not be located or
// started.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Manager interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ErrNotFound is returned (wrapped) when the program is not on the search path.
var ErrNotFound = errors.New("executable not found")

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultManager runs commands with os/exec.
type DefaultManager struct{}

// NewDefaultManager creates a DefaultManager.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes cmd and captures its output.
func (m *DefaultManager) Run(ctx context.Context, cmd Command) (Result, error) {
	env := BuildEnvironment(os.Environ(), cmd.Env)

	program, err := LookPath(cmd.Name, envValue(env, "PATH"))
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	c := exec.CommandContext(ctx, program, cmd.Args...)
	c.Env = env
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	runErr := c.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if res.ExitCode == -1 && ctx.Err() != nil {
				return res, fmt.Errorf("%s: %w", cmd.Name, ctx.Err())
			}
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("start %s: %w", cmd.Name, runErr)
	}
	return res, nil
}

var _ Manager = (*DefaultManager)(nil)

// =============================================================================
// Helper Functions
// =============================================================================

// LookPath resolves name against the directories in searchPath. Names
// containing a path separator are checked directly. An empty searchPath
// falls back to exec.LookPath.
func LookPath(name, searchPath string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty program name: %w", ErrNotFound)
	}
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if searchPath == "" {
		p, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return p, nil
	}

	candidates := []string{name}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = []string{name + ".exe", name + ".cmd", name + ".bat", name}
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			continue
		}
		for _, candidate := range candidates {
			p := filepath.Join(dir, candidate)
			if isExecutable(p) {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%s not in search path: %w", name, ErrNotFound)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0111 != 0
}

// BuildEnvironment merges KEY=VALUE overrides over a base environment.
// Overridden keys keep their original position; new keys are appended in
// override order.
func BuildEnvironment(base, overrides []string) []string {
	if len(overrides) == 0 {
		return base
	}

	index := make(map[string]int, len(base))
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := index[key]; ok {
			out[i] = kv
			continue
		}
		index[key] = len(out)
		out = append(out, kv)
	}
	for _, kv := range overrides {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := index[key]; ok {
			out[i] = kv
			continue
		}
		index[key] = len(out)
		out = append(out, kv)
	}
	return out
}

func envValue(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && k == key {
			return v
		}
	}
	return ""
}

// RedactArgs returns a copy of args safe for logging. Values following -e
// whose key names a secret, and the value following --requirepass, are
// replaced with [REDACTED].
//
//	RedactArgs([]string{"-e", "POSTGRES_PASSWORD=pw", "-e", "POSTGRES_USER=u"})
//	// ["-e", "POSTGRES_PASSWORD=[REDACTED]", "-e", "POSTGRES_USER=u"]
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		switch out[i] {
		case "-e", "--env":
			key, _, ok := strings.Cut(out[i+1], "=")
			if ok && logging.IsSecretKey(key) {
				out[i+1] = key + "=" + logging.Redacted
			}
			i++
		case "--requirepass":
			out[i+1] = logging.Redacted
			i++
		}
	}
	return out
}
