// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"sync"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/lifecycle"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/reconcile"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
)

// mockService implements Service with overridable functions. Unset
// functions return zero values.
type mockService struct {
	mu    sync.Mutex
	Calls []string

	ListFunc   func(ctx context.Context) ([]records.Record, error)
	GetFunc    func(id string) (records.Record, error)
	CreateFunc func(ctx context.Context, req lifecycle.Request) (records.Record, error)
	UpdateFunc func(ctx context.Context, id string, req lifecycle.Request) (records.Record, error)
	RemoveFunc func(ctx context.Context, id string) error
	StartFunc  func(ctx context.Context, id string) (records.Record, error)
	StopFunc   func(ctx context.Context, id string) (records.Record, error)
	LogsFunc   func(ctx context.Context, id string, tail int) (string, error)
	ExecFunc   func(ctx context.Context, id, command string, columns int) (engine.ExecResult, error)
	SyncFunc   func(ctx context.Context) (reconcile.Result, error)
	StatusFunc func(ctx context.Context) engine.EngineStatus
	URIFunc    func(id, host string) (string, error)
}

var _ Service = (*mockService)(nil)

func (m *mockService) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *mockService) List(ctx context.Context) ([]records.Record, error) {
	m.record("list")
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []records.Record{}, nil
}

func (m *mockService) Get(id string) (records.Record, error) {
	m.record("get " + id)
	if m.GetFunc != nil {
		return m.GetFunc(id)
	}
	return records.Record{ID: id}, nil
}

func (m *mockService) Create(ctx context.Context, req lifecycle.Request) (records.Record, error) {
	m.record("create " + req.Name)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return records.Record{ID: "new", Name: req.Name}, nil
}

func (m *mockService) Update(ctx context.Context, id string, req lifecycle.Request) (records.Record, error) {
	m.record("update " + id)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, req)
	}
	return records.Record{ID: id, Name: req.Name}, nil
}

func (m *mockService) Remove(ctx context.Context, id string) error {
	m.record("remove " + id)
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	return nil
}

func (m *mockService) Start(ctx context.Context, id string) (records.Record, error) {
	m.record("start " + id)
	if m.StartFunc != nil {
		return m.StartFunc(ctx, id)
	}
	return records.Record{ID: id, Status: records.StatusRunning}, nil
}

func (m *mockService) Stop(ctx context.Context, id string) (records.Record, error) {
	m.record("stop " + id)
	if m.StopFunc != nil {
		return m.StopFunc(ctx, id)
	}
	return records.Record{ID: id, Status: records.StatusStopped}, nil
}

func (m *mockService) Logs(ctx context.Context, id string, tail int) (string, error) {
	m.record("logs " + id)
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, id, tail)
	}
	return "", nil
}

func (m *mockService) Exec(ctx context.Context, id, command string, columns int) (engine.ExecResult, error) {
	m.record("exec " + id)
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, id, command, columns)
	}
	return engine.ExecResult{}, nil
}

func (m *mockService) Sync(ctx context.Context) (reconcile.Result, error) {
	m.record("sync")
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx)
	}
	return reconcile.Result{}, nil
}

func (m *mockService) EngineStatus(ctx context.Context) engine.EngineStatus {
	m.record("status")
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return engine.EngineStatus{Status: engine.StatusRunning}
}

func (m *mockService) ConnectionURI(id, host string) (string, error) {
	m.record("uri " + id)
	if m.URIFunc != nil {
		return m.URIFunc(id, host)
	}
	return "", nil
}
