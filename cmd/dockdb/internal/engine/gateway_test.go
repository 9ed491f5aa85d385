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
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/infra/process"
)

// =============================================================================
// Test Helpers
// =============================================================================

// verbKey identifies a call by its first argument, or "volume <sub>".
func verbKey(args []string) string {
	if len(args) == 0 {
		return ""
	}
	if args[0] == "volume" && len(args) > 1 {
		return "volume " + args[1]
	}
	return args[0]
}

// scripted returns a mock that answers by verb. Unscripted verbs succeed
// with empty output.
func scripted(responses map[string]process.Result) *process.MockManager {
	return &process.MockManager{
		RunFunc: func(ctx context.Context, cmd process.Command) (process.Result, error) {
			if r, ok := responses[verbKey(cmd.Args)]; ok {
				return r, nil
			}
			return process.Result{}, nil
		},
	}
}

func failed(stderr string) process.Result {
	return process.Result{ExitCode: 1, Stderr: []byte(stderr)}
}

func ok(stdout string) process.Result {
	return process.Result{Stdout: []byte(stdout)}
}

func newTestGateway(m process.Manager) *Gateway {
	return NewGateway(Config{Manager: m})
}

func verbs(calls []process.Command) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = verbKey(c.Args)
	}
	return out
}

// =============================================================================
// Construction
// =============================================================================

func TestNewGateway_Defaults(t *testing.T) {
	mock := scripted(nil)
	gw := NewGateway(Config{Manager: mock})
	assert.Equal(t, "docker", gw.Binary())

	require.NoError(t, gw.Start(context.Background(), "abc"))
	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "docker", calls[0].Name)
	assert.Nil(t, calls[0].Env)
}

func TestNewGateway_ExportsSearchPath(t *testing.T) {
	mock := scripted(nil)
	gw := NewGateway(Config{
		Binary:     "podman",
		Manager:    mock,
		SearchPath: process.NewSearchPath("/opt/bin:/usr/bin", "login-shell"),
	})

	require.NoError(t, gw.Stop(context.Background(), "abc"))
	calls := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "podman", calls[0].Name)
	assert.Equal(t, []string{"PATH=/opt/bin:/usr/bin"}, calls[0].Env)
}

// =============================================================================
// Run
// =============================================================================

func TestRun_ReturnsContainerID(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"run": ok("abc123\n"),
	}))

	id, err := gw.Run(context.Background(), []string{"run", "-d", "--name", "pg1", "postgres:16"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestRun_PortConflict(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"run": failed("docker: Error response from daemon: driver failed programming external connectivity: Bind for 0.0.0.0:5432 failed: port is already allocated."),
	}))

	_, err := gw.Run(context.Background(),
		[]string{"run", "-d", "--name", "pg1", "-p", "5432:5432", "postgres:16"})
	require.Error(t, err)

	e, isApp := apperr.As(err)
	require.True(t, isApp)
	assert.Equal(t, apperr.TypePortInUse, e.Type)
	assert.Equal(t, 5432, e.Port)
	assert.Equal(t, "Port 5432 is already in use", e.Message)
}

func TestRun_NameConflict(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"run": failed(`Conflict. The container name "/pg1" is already in use by container "abc".`),
	}))

	_, err := gw.Run(context.Background(), []string{"run", "-d", "--name", "pg1", "postgres:16"})
	e, isApp := apperr.As(err)
	require.True(t, isApp)
	assert.Equal(t, apperr.TypeNameInUse, e.Type)
	assert.Contains(t, e.Message, "'pg1'")
}

func TestRun_OtherFailure(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"run": failed("Unable to find image 'postgres:nope' locally"),
	}))

	_, err := gw.Run(context.Background(), []string{"run", "-d", "--name", "pg1", "postgres:nope"})
	e, isApp := apperr.As(err)
	require.True(t, isApp)
	assert.Equal(t, apperr.TypeEngine, e.Type)
	assert.Equal(t, "Error creating container", e.Message)
	assert.Contains(t, e.Details, "Unable to find image")
}

func TestRun_TransportFailure(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, cmd process.Command) (process.Result, error) {
			return process.Result{}, process.ErrNotFound
		},
	}
	gw := newTestGateway(mock)

	_, err := gw.Run(context.Background(), []string{"run", "-d", "--name", "pg1", "postgres:16"})
	assert.Equal(t, apperr.TypeTransport, apperr.TypeOf(err))
	assert.True(t, errors.Is(err, process.ErrNotFound))
}

// =============================================================================
// Remove
// =============================================================================

func TestRemove_StopsThenRemoves(t *testing.T) {
	mock := scripted(map[string]process.Result{
		"stop": failed("container is not running"),
	})
	gw := newTestGateway(mock)

	require.NoError(t, gw.Remove(context.Background(), "abc"))
	assert.Equal(t, []string{"stop", "rm"}, verbs(mock.GetCalls()))
}

func TestRemove_MissingContainerIsSuccess(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"stop": failed("Error response from daemon: No such container: abc"),
		"rm":   failed("Error response from daemon: No such container: abc"),
	}))
	assert.NoError(t, gw.Remove(context.Background(), "abc"))
}

func TestRemove_Failure(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"rm": failed("device or resource busy"),
	}))
	err := gw.Remove(context.Background(), "abc")
	assert.Equal(t, apperr.TypeEngine, apperr.TypeOf(err))
}

func TestForceRemoveByName_SwallowsFailures(t *testing.T) {
	mock := scripted(map[string]process.Result{
		"stop": failed("boom"),
		"rm":   failed("boom"),
	})
	gw := newTestGateway(mock)

	gw.ForceRemoveByName(context.Background(), "pg1")
	calls := mock.GetCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"stop", "pg1"}, calls[0].Args)
	assert.Equal(t, []string{"rm", "pg1"}, calls[1].Args)
}

func TestStart_NoSuchContainer(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"start": failed("Error response from daemon: No such container: abc"),
	}))
	err := gw.Start(context.Background(), "abc")
	assert.Equal(t, apperr.TypeNotFound, apperr.TypeOf(err))
}

// =============================================================================
// Volumes
// =============================================================================

func TestCreateVolumeIfAbsent(t *testing.T) {
	t.Run("creates missing volume", func(t *testing.T) {
		mock := scripted(map[string]process.Result{
			"volume inspect": failed("Error: No such volume: pg1-data"),
		})
		gw := newTestGateway(mock)

		created, err := gw.CreateVolumeIfAbsent(context.Background(), "pg1-data")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, []string{"volume inspect", "volume create"}, verbs(mock.GetCalls()))
	})

	t.Run("keeps existing volume", func(t *testing.T) {
		mock := scripted(nil)
		gw := newTestGateway(mock)

		created, err := gw.CreateVolumeIfAbsent(context.Background(), "pg1-data")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, []string{"volume inspect"}, verbs(mock.GetCalls()))
	})

	t.Run("create failure", func(t *testing.T) {
		gw := newTestGateway(scripted(map[string]process.Result{
			"volume inspect": failed("no such volume"),
			"volume create":  failed("disk full"),
		}))
		_, err := gw.CreateVolumeIfAbsent(context.Background(), "pg1-data")
		assert.Equal(t, apperr.TypeEngine, apperr.TypeOf(err))
	})
}

func TestRemoveVolumeIfPresent(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"volume rm": failed("Error response from daemon: get pg1-data: no such volume"),
	}))
	assert.NoError(t, gw.RemoveVolumeIfPresent(context.Background(), "pg1-data"))

	gw = newTestGateway(scripted(map[string]process.Result{
		"volume rm": failed("volume is in use"),
	}))
	assert.Equal(t, apperr.TypeEngine, apperr.TypeOf(gw.RemoveVolumeIfPresent(context.Background(), "pg1-data")))
}

// =============================================================================
// Listing and Inspection
// =============================================================================

func TestParseContainerList(t *testing.T) {
	out := "abc\tpg1\tUp 2 hours\n" +
		"def\tredis1\tExited (0) 3 days ago\n" +
		"\n" +
		"malformed line\n"

	got := ParseContainerList(out)
	require.Len(t, got, 2)
	assert.Equal(t, Container{ID: "abc", Name: "pg1", Status: "Up 2 hours", Running: true}, got[0])
	assert.Equal(t, "redis1", got[1].Name)
	assert.False(t, got[1].Running)
}

func TestListContainers_Args(t *testing.T) {
	mock := scripted(map[string]process.Result{"ps": ok("abc\tpg1\tUp 1 second\n")})
	gw := newTestGateway(mock)

	got, err := gw.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t,
		[]string{"ps", "-a", "--no-trunc", "--format", "{{.ID}}\t{{.Names}}\t{{.Status}}"},
		mock.GetCalls()[0].Args)
}

func TestInspect(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"inspect": ok("abc123\t/pg1\trunning\n"),
	}))
	c, found, err := gw.Inspect(context.Background(), "pg1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Container{ID: "abc123", Name: "pg1", Status: "running", Running: true}, c)

	gw = newTestGateway(scripted(map[string]process.Result{
		"inspect": failed("Error: No such container: pg1"),
	}))
	_, found, err = gw.Inspect(context.Background(), "pg1")
	require.NoError(t, err)
	assert.False(t, found)
}

// =============================================================================
// Logs and Exec
// =============================================================================

func TestLogs_DefaultTailAndCombinedStreams(t *testing.T) {
	mock := scripted(map[string]process.Result{
		"logs": {Stdout: []byte("out line\n"), Stderr: []byte("err line\n")},
	})
	gw := newTestGateway(mock)

	logs, err := gw.Logs(context.Background(), "abc", 0)
	require.NoError(t, err)
	assert.Contains(t, logs, "out line")
	assert.Contains(t, logs, "err line")
	assert.Equal(t, []string{"logs", "--timestamps", "--tail", "500", "abc"}, mock.GetCalls()[0].Args)
}

func TestExec_NonZeroExitIsResult(t *testing.T) {
	mock := scripted(map[string]process.Result{
		"exec": {ExitCode: 2, Stdout: []byte("partial"), Stderr: []byte("syntax error")},
	})
	gw := newTestGateway(mock)

	res, err := gw.Exec(context.Background(), "abc", "psql -c 'select'", 0)
	require.NoError(t, err)
	assert.Equal(t, ExecResult{Stdout: "partial", Stderr: "syntax error", ExitCode: 2}, res)
	assert.Equal(t,
		[]string{"exec", "-e", "COLUMNS=80", "abc", "sh", "-c", "psql -c 'select'"},
		mock.GetCalls()[0].Args)
}

func TestExec_EmptyCommand(t *testing.T) {
	mock := scripted(nil)
	gw := newTestGateway(mock)

	_, err := gw.Exec(context.Background(), "abc", "  ", 120)
	assert.Equal(t, apperr.TypeConfiguration, apperr.TypeOf(err))
	assert.Empty(t, mock.GetCalls())
}

// =============================================================================
// Status
// =============================================================================

func TestStatus_Running(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"version": ok(`{"Client":{"Version":"27.0.1"},"Server":{"Version":"27.0.3"}}`),
		"info":    ok(`{"Containers":3,"ContainersRunning":1,"ContainersStopped":2,"Images":7,"Name":"devbox"}`),
	}))

	status := gw.Status(context.Background())
	assert.Equal(t, StatusRunning, status.Status)
	assert.Equal(t, "27.0.3", status.Version)
	assert.Equal(t, ContainerCounts{Total: 3, Running: 1, Stopped: 2}, status.Containers)
	assert.Equal(t, 7, status.Images)
	assert.Equal(t, "devbox", status.Host)

	raw, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"status":"running","version":"27.0.3","containers":{"total":3,"running":1,"stopped":2},"images":7,"host":"devbox"}`,
		string(raw))
}

func TestStatus_InfoFailureKeepsRunning(t *testing.T) {
	gw := newTestGateway(scripted(map[string]process.Result{
		"version": ok(`{"Client":{"Version":"27.0.1"}}`),
		"info":    failed("permission denied"),
	}))

	status := gw.Status(context.Background())
	assert.Equal(t, StatusRunning, status.Status)
	assert.Equal(t, "27.0.1", status.Version)
	assert.Equal(t, ContainerCounts{}, status.Containers)
	assert.Equal(t, "docker", status.Host)
}

func TestStatus_EngineDown(t *testing.T) {
	mock := &process.MockManager{
		RunFunc: func(ctx context.Context, cmd process.Command) (process.Result, error) {
			if verbKey(cmd.Args) == "version" {
				return failed("Cannot connect to the Docker daemon"), nil
			}
			return process.Result{}, nil
		},
	}
	status := newTestGateway(mock).Status(context.Background())

	raw, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"status":"stopped","error":"Docker daemon is not running or Docker is not installed"}`,
		string(raw))
}

// =============================================================================
// Argument Helpers
// =============================================================================

func TestHostPortFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{[]string{"run", "-p", "5433:5432"}, 5433},
		{[]string{"run", "-p", "127.0.0.1:6380:6379"}, 6380},
		{[]string{"run", "-p", "5433:5432", "-p", "9000:9000"}, 5433},
		{[]string{"run", "--name", "x"}, 0},
		{[]string{"run", "-p"}, 0},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			assert.Equal(t, tt.want, hostPortFromArgs(tt.args))
		})
	}
}
