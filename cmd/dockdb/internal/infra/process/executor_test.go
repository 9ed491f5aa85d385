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
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// =============================================================================
// DefaultManager Tests
// =============================================================================

func TestDefaultManager_CapturesOutput(t *testing.T) {
	skipOnWindows(t)
	m := NewDefaultManager()

	res, err := m.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Success() {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "out" {
		t.Errorf("Stdout = %q, want out", got)
	}
	if got := strings.TrimSpace(string(res.Stderr)); got != "err" {
		t.Errorf("Stderr = %q, want err", got)
	}
}

func TestDefaultManager_NonZeroExitIsNotError(t *testing.T) {
	skipOnWindows(t)
	m := NewDefaultManager()

	res, err := m.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'No such container: x' >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(string(res.Stderr), "No such container") {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestDefaultManager_MissingBinary(t *testing.T) {
	m := NewDefaultManager()

	_, err := m.Run(context.Background(), Command{Name: "dockdb-definitely-not-installed"})
	if err == nil {
		t.Fatal("Run() error = nil, want not found")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDefaultManager_EnvOverride(t *testing.T) {
	skipOnWindows(t)
	m := NewDefaultManager()

	res, err := m.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "printf %s \"$DOCKDB_TEST_VALUE\""},
		Env:  []string{"DOCKDB_TEST_VALUE=hello"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", res.Stdout)
	}
}

func TestDefaultManager_Stdin(t *testing.T) {
	skipOnWindows(t)
	m := NewDefaultManager()

	res, err := m.Run(context.Background(), Command{
		Name:  "cat",
		Stdin: []byte("piped"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "piped" {
		t.Errorf("Stdout = %q, want piped", res.Stdout)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestLookPath_SearchesGivenPath(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-engine")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := LookPath("fake-engine", "/nonexistent"+string(os.PathListSeparator)+dir)
	if err != nil {
		t.Fatalf("LookPath() error = %v", err)
	}
	if got != bin {
		t.Errorf("LookPath() = %q, want %q", got, bin)
	}

	if _, err := LookPath("fake-engine", "/nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookPath() outside path error = %v, want ErrNotFound", err)
	}
}

func TestLookPath_IgnoresNonExecutable(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "docker"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LookPath("docker", dir); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookPath() error = %v, want ErrNotFound", err)
	}
}

func TestBuildEnvironment(t *testing.T) {
	base := []string{"HOME=/home/u", "PATH=/usr/bin", "LANG=C"}
	got := BuildEnvironment(base, []string{"PATH=/opt/bin:/usr/bin", "COLUMNS=80"})

	want := []string{"HOME=/home/u", "PATH=/opt/bin:/usr/bin", "LANG=C", "COLUMNS=80"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("BuildEnvironment() = %v, want %v", got, want)
	}
	if strings.Join(base, "|") != "HOME=/home/u|PATH=/usr/bin|LANG=C" {
		t.Errorf("base slice modified: %v", base)
	}
}

func TestRedactArgs(t *testing.T) {
	args := []string{
		"run", "-d", "--name", "pg1",
		"-e", "POSTGRES_PASSWORD=pw",
		"-e", "POSTGRES_USER=pguser",
		"redis:7", "redis-server", "--requirepass", "rpw",
	}

	got := RedactArgs(args)

	joined := strings.Join(got, " ")
	if strings.Contains(joined, "=pw") || strings.Contains(joined, "rpw") {
		t.Errorf("secret leaked: %s", joined)
	}
	if !strings.Contains(joined, "POSTGRES_USER=pguser") {
		t.Errorf("non-secret redacted: %s", joined)
	}
	if args[5] != "POSTGRES_PASSWORD=pw" {
		t.Error("input slice modified")
	}
}

func TestCommand_String(t *testing.T) {
	cmd := Command{Name: "docker", Args: []string{"run", "-e", "MYSQL_ROOT_PASSWORD=x", "mysql:8"}}
	if got := cmd.String(); got != "docker run -e MYSQL_ROOT_PASSWORD=[REDACTED] mysql:8" {
		t.Errorf("String() = %q", got)
	}
}

// =============================================================================
// MockManager Tests
// =============================================================================

func TestMockManager_RecordsCalls(t *testing.T) {
	m := &MockManager{}

	res, err := m.Run(context.Background(), Command{Name: "docker", Args: []string{"ps"}})
	if err != nil || !res.Success() {
		t.Fatalf("Run() = %+v, %v", res, err)
	}

	calls := m.GetCalls()
	if len(calls) != 1 || calls[0].Args[0] != "ps" {
		t.Fatalf("calls = %+v", calls)
	}
	m.Reset()
	if len(m.GetCalls()) != 0 {
		t.Error("Reset() did not clear calls")
	}
}
