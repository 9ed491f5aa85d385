// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/runspec"
)

// =============================================================================
// Fake Engine
// =============================================================================

// fakeEngine simulates containers and volumes in memory and records every
// call as "verb target".
type fakeEngine struct {
	mu         sync.Mutex
	calls      []string
	volumes    map[string]bool
	containers map[string]engine.Container // by id
	nextID     int

	RunFunc    func(args []string) error
	SuppressID bool
	RemoveFunc func(id string) error
	VolRmFunc  func(name string) error
	StartFunc  func(id string) error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		volumes:    make(map[string]bool),
		containers: make(map[string]engine.Container),
	}
}

func (f *fakeEngine) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the calls starting with prefix.
func (f *fakeEngine) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEngine) Run(ctx context.Context, args []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := args[3]
	f.record("run %s", name)
	if f.RunFunc != nil {
		if err := f.RunFunc(args); err != nil {
			return "", err
		}
	}
	f.nextID++
	id := fmt.Sprintf("cid-%d", f.nextID)
	f.containers[id] = engine.Container{ID: id, Name: name, Status: "Up 1 second", Running: true}
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-v" {
			f.volumes[strings.SplitN(args[i+1], ":", 2)[0]] = true
		}
	}
	if f.SuppressID {
		return "", nil
	}
	return id, nil
}

func (f *fakeEngine) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start %s", id)
	if f.StartFunc != nil {
		return f.StartFunc(id)
	}
	c := f.containers[id]
	c.Running = true
	f.containers[id] = c
	return nil
}

func (f *fakeEngine) Stop(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop %s", id)
	c := f.containers[id]
	c.Running = false
	f.containers[id] = c
	return nil
}

func (f *fakeEngine) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove %s", id)
	if f.RemoveFunc != nil {
		if err := f.RemoveFunc(id); err != nil {
			return err
		}
	}
	delete(f.containers, id)
	return nil
}

func (f *fakeEngine) ForceRemoveByName(ctx context.Context, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("force-remove %s", name)
	for id, c := range f.containers {
		if c.Name == name {
			delete(f.containers, id)
		}
	}
}

func (f *fakeEngine) Inspect(ctx context.Context, ref string) (engine.Container, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect %s", ref)
	for _, c := range f.containers {
		if c.Name == ref || c.ID == ref {
			return c, true, nil
		}
	}
	return engine.Container{}, false, nil
}

func (f *fakeEngine) ListContainers(ctx context.Context) ([]engine.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	out := make([]engine.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeEngine) CreateVolumeIfAbsent(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("volume-create %s", name)
	if f.volumes[name] {
		return false, nil
	}
	f.volumes[name] = true
	return true, nil
}

func (f *fakeEngine) RemoveVolumeIfPresent(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("volume-rm %s", name)
	if f.VolRmFunc != nil {
		if err := f.VolRmFunc(name); err != nil {
			return err
		}
	}
	delete(f.volumes, name)
	return nil
}

func (f *fakeEngine) VolumeExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("volume-exists %s", name)
	return f.volumes[name], nil
}

func (f *fakeEngine) Logs(ctx context.Context, id string, tail int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("logs %s %d", id, tail)
	return "log output", nil
}

func (f *fakeEngine) Exec(ctx context.Context, id, command string, columns int) (engine.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exec %s %s", id, command)
	return engine.ExecResult{Stdout: "ok", ExitCode: 0}, nil
}

func (f *fakeEngine) Status(ctx context.Context) engine.EngineStatus {
	return engine.EngineStatus{Status: engine.StatusRunning, Version: "test", Host: "fake"}
}

// HasVolume reports whether the fake holds a volume.
func (f *fakeEngine) HasVolume(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[name]
}

// =============================================================================
// Fake Migrator and Store
// =============================================================================

type fakeMigrator struct {
	eng   *fakeEngine
	err   error
	calls []string
}

func (m *fakeMigrator) Migrate(ctx context.Context, from, to string) error {
	m.eng.mu.Lock()
	m.eng.record("migrate %s->%s", from, to)
	m.eng.mu.Unlock()
	m.calls = append(m.calls, from+"->"+to)
	if m.err != nil {
		return m.err
	}
	_, err := m.eng.CreateVolumeIfAbsent(ctx, to)
	return err
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []records.Record
	saves   int
	initial []records.Record
	SaveErr error

	// BeforeSave runs at the start of every Save, outside the store's lock.
	BeforeSave func()
}

func (s *fakeStore) Load(ctx context.Context) ([]records.Record, error) {
	return s.initial, nil
}

func (s *fakeStore) Save(ctx context.Context, rs []records.Record) error {
	if s.BeforeSave != nil {
		s.BeforeSave()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.saved = rs
	return nil
}

func (s *fakeStore) Saved() []records.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// =============================================================================
// Fixtures
// =============================================================================

type fixture struct {
	eng      *fakeEngine
	migrator *fakeMigrator
	store    *fakeStore
	orch     *Orchestrator
}

func newFixture(t *testing.T, initial ...records.Record) *fixture {
	t.Helper()
	eng := newFakeEngine()
	mig := &fakeMigrator{eng: eng}
	store := &fakeStore{initial: initial}

	ids := 0
	orch, err := New(context.Background(), Config{
		Engine:   eng,
		Migrator: mig,
		Store:    store,
		Now:      func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) },
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	require.NoError(t, err)
	return &fixture{eng: eng, migrator: mig, store: store, orch: orch}
}

func pgRequest(name string, port int, persist bool) Request {
	req, err := RequestFromConfig("", runspec.Config{
		Name:         name,
		Kind:         records.KindPostgreSQL,
		Version:      "16",
		Port:         port,
		Username:     "app",
		Password:     "pw",
		DatabaseName: "appdb",
		PersistData:  persist,
	}, nil)
	if err != nil {
		panic(err)
	}
	return req
}
