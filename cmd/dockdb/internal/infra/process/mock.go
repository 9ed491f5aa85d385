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
	"sync"
)

// MockManager is a Manager for tests. Every call is recorded before RunFunc
// is invoked; a nil RunFunc yields a successful empty Result.
type MockManager struct {
	RunFunc func(ctx context.Context, cmd Command) (Result, error)

	Calls []Command
	mu    sync.Mutex
}

// Run records cmd and delegates to RunFunc.
func (m *MockManager) Run(ctx context.Context, cmd Command) (Result, error) {
	m.mu.Lock()
	recorded := cmd
	recorded.Args = append([]string(nil), cmd.Args...)
	m.Calls = append(m.Calls, recorded)
	fn := m.RunFunc
	m.mu.Unlock()

	if fn == nil {
		return Result{}, nil
	}
	return fn(ctx, cmd)
}

// GetCalls returns a copy of the recorded calls.
func (m *MockManager) GetCalls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Reset clears recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var _ Manager = (*MockManager)(nil)
