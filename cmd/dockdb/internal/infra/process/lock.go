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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Locker prevents concurrent dockdb processes from mutating one store.
type Locker interface {
	Acquire() error
	Release() error
	IsHeld() bool
	HolderPID() int
}

// LockConfig configures a ProcessLock.
type LockConfig struct {
	// LockDir holds "{LockName}.lock" and "{LockName}.pid".
	// Default: os.TempDir()
	LockDir string

	// LockName is the base file name. Default: "dockdb"
	LockName string
}

// DefaultLockConfig returns a lock in the system temp directory.
func DefaultLockConfig() LockConfig {
	return LockConfig{LockDir: os.TempDir(), LockName: "dockdb"}
}

// ProcessLock is an flock(2)-based exclusive lock with a PID file for
// diagnostics. The lock is released by the kernel if the process dies, so a
// stale PID file never blocks a new instance.
//
//	lock := process.NewProcessLock(process.LockConfig{LockDir: dataDir})
//	if err := lock.Acquire(); err != nil {
//	    return err
//	}
//	defer lock.Release()
type ProcessLock struct {
	lockPath string
	pidPath  string
	lockFile *os.File
	mu       sync.Mutex
}

// ErrLockHeld reports that another process holds the lock.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another dockdb instance is running (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another dockdb instance is running (check: lsof %s)", e.LockPath)
}

// NewProcessLock creates a lock; nothing touches the filesystem until Acquire.
func NewProcessLock(config LockConfig) *ProcessLock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.LockName == "" {
		config.LockName = "dockdb"
	}
	return &ProcessLock{
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
		pidPath:  filepath.Join(config.LockDir, config.LockName+".pid"),
	}
}

// Acquire takes the lock without blocking. It returns *ErrLockHeld when
// another process holds it and is a no-op if this ProcessLock already does.
func (p *ProcessLock) Acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lockFile != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p.lockPath), 0750); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", p.lockPath, err)
	}

	if err := tryLock(f); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return &ErrLockHeld{HolderPID: p.readHolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	p.lockFile = f
	// The PID file is informational only.
	_ = os.WriteFile(p.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (p *ProcessLock) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lockFile == nil {
		return nil
	}

	_ = os.Remove(p.pidPath)
	err := unlock(p.lockFile)
	p.lockFile.Close()
	p.lockFile = nil
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this ProcessLock holds the lock.
func (p *ProcessLock) IsHeld() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lockFile != nil
}

// HolderPID returns the PID recorded by the current holder, or 0.
func (p *ProcessLock) HolderPID() int {
	return p.readHolderPID()
}

// LockPath returns the lock file path.
func (p *ProcessLock) LockPath() string { return p.lockPath }

func (p *ProcessLock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

var _ Locker = (*ProcessLock)(nil)
