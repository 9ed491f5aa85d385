// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package process

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestProcessLock_Defaults(t *testing.T) {
	lock := NewProcessLock(LockConfig{})

	want := filepath.Join(os.TempDir(), "dockdb.lock")
	if lock.LockPath() != want {
		t.Errorf("LockPath() = %q, want %q", lock.LockPath(), want)
	}
}

func TestProcessLock_AcquireRelease(t *testing.T) {
	dir := t.TempDir()
	lock := NewProcessLock(LockConfig{LockDir: dir, LockName: "unit"})

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !lock.IsHeld() {
		t.Error("IsHeld() = false after Acquire")
	}
	if got := lock.HolderPID(); got != os.Getpid() {
		t.Errorf("HolderPID() = %d, want %d", got, os.Getpid())
	}
	if err := lock.Acquire(); err != nil {
		t.Errorf("second Acquire() error = %v, want nil", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if lock.IsHeld() {
		t.Error("IsHeld() = true after Release")
	}
	if _, err := os.Stat(filepath.Join(dir, "unit.pid")); !os.IsNotExist(err) {
		t.Errorf("pid file still present: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Release() of unheld lock error = %v", err)
	}
}

func TestProcessLock_Contention(t *testing.T) {
	dir := t.TempDir()
	first := NewProcessLock(LockConfig{LockDir: dir, LockName: "unit"})
	second := NewProcessLock(LockConfig{LockDir: dir, LockName: "unit"})

	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer first.Release()

	err := second.Acquire()
	var held *ErrLockHeld
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire() error = %v, want *ErrLockHeld", err)
	}
	if held.HolderPID != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d", held.HolderPID, os.Getpid())
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
	second.Release()
}
