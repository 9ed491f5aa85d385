// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/dockdb/cmd/dockdb/config"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/infra/process"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/runspec"
	"github.com/AleutianAI/dockdb/pkg/extensions"
	"github.com/AleutianAI/dockdb/pkg/logging"
	"github.com/AleutianAI/dockdb/pkg/ux"
)

// =============================================================================
// Helpers
// =============================================================================

// testCommand returns a command whose output is captured.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

// machineOutput switches to plain output for the test.
func machineOutput(t *testing.T, asJSON bool) {
	t.Helper()
	prevLevel, prevJSON := ux.GetPersonality(), jsonOutput
	ux.SetPersonality(ux.PersonalityMachine)
	jsonOutput = asJSON
	t.Cleanup(func() {
		ux.SetPersonality(prevLevel)
		jsonOutput = prevJSON
	})
}

func parseDBFlags(t *testing.T, defaultKind string, args ...string) (*dbFlags, *pflag.FlagSet) {
	t.Helper()
	f := newDBFlags()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs, defaultKind)
	require.NoError(t, fs.Parse(args))
	return f, fs
}

// =============================================================================
// Exit Codes and Errors
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("boom"), exitFailure},
		{"configuration", apperr.Configuration("bad"), exitConfiguration},
		{"not found", apperr.NotFound("missing"), exitNotFound},
		{"port in use", apperr.PortInUse(5432, nil), exitConflict},
		{"name in use", apperr.NameInUse("db", nil), exitConflict},
		{"engine", apperr.Engine("Error creating container", "", nil), exitEngine},
		{"transport", apperr.Transport("engine unreachable", nil), exitEngine},
		{"persistence", apperr.Persistence("save failed", nil), exitPersistence},
		{"wrapped", fmt.Errorf("shop: %w", apperr.NotFound("missing")), exitNotFound},
		{"lock held", &process.ErrLockHeld{HolderPID: 42}, exitLockHeld},
		{"exec status", &ExitError{Command: "false", ExitCode: 9}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	err := &ExitError{Command: "psql -c 'select 1'", ExitCode: 2}
	assert.Equal(t, "psql -c 'select 1' (exit 2)", err.Error())
}

func TestReportError_JSON(t *testing.T) {
	machineOutput(t, true)
	cmd, out, _ := testCommand()

	reportError(cmd, apperr.PortInUse(5432, errors.New("bind failed")))

	var w apperr.Wire
	require.NoError(t, json.Unmarshal(out.Bytes(), &w))
	assert.Equal(t, apperr.TypePortInUse, w.ErrorType)
	require.NotNil(t, w.Port)
	assert.Equal(t, 5432, *w.Port)
}

func TestReportError_Plain(t *testing.T) {
	machineOutput(t, false)
	cmd, out, errOut := testCommand()

	reportError(cmd, apperr.Engine("Error creating container", "no space left", nil))

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "ERROR: Error creating container")
	assert.Contains(t, errOut.String(), "no space left")
}

func TestReportError_ExitErrorIsSilent(t *testing.T) {
	machineOutput(t, false)
	cmd, out, errOut := testCommand()

	reportError(cmd, &ExitError{Command: "false", ExitCode: 1})

	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())
}

// =============================================================================
// Database Flags
// =============================================================================

func TestDBFlags_CreateDefaults(t *testing.T) {
	f, fs := parseDBFlags(t, "postgres")

	cfg, maxConns, err := f.createConfig(fs, "shop")
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Name)
	assert.Equal(t, records.KindPostgreSQL, cfg.Kind)
	assert.Equal(t, "16", cfg.Version)
	assert.Equal(t, 5432, cfg.Port)
	assert.NotEmpty(t, cfg.Password, "a password is generated")
	assert.False(t, cfg.PersistData)
	require.NotNil(t, cfg.Postgres)
	assert.Equal(t, "md5", cfg.Postgres.HostAuthMethod)
	assert.Nil(t, cfg.Redis)
	require.NotNil(t, maxConns)
	assert.Equal(t, records.DefaultMaxConnections, *maxConns)
}

func TestDBFlags_CreateOverrides(t *testing.T) {
	f, fs := parseDBFlags(t, "postgres",
		"--type", "redis", "--port", "6380", "--auth", "--password", "s3cret",
		"--persist", "--redis-maxmemory", "256mb", "--max-connections", "50")

	cfg, maxConns, err := f.createConfig(fs, "cache")
	require.NoError(t, err)

	assert.Equal(t, records.KindRedis, cfg.Kind)
	assert.Equal(t, "7.4", cfg.Version)
	assert.Equal(t, 6380, cfg.Port)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.True(t, cfg.EnableAuth)
	assert.True(t, cfg.PersistData)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "256mb", cfg.Redis.MaxMemory)
	assert.Equal(t, "noeviction", cfg.Redis.MaxMemoryPolicy)
	assert.Equal(t, 50, *maxConns)
}

func TestDBFlags_UnsupportedType(t *testing.T) {
	f, fs := parseDBFlags(t, "postgres", "--type", "oracle")

	_, _, err := f.createConfig(fs, "legacy")
	require.Error(t, err)
	assert.Equal(t, apperr.TypeConfiguration, apperr.TypeOf(err))
	assert.Contains(t, err.Error(), "oracle")
}

func TestDBFlags_ApplyOnlyChanged(t *testing.T) {
	rec := records.Record{
		ID:             "id-1",
		Name:           "shop",
		Kind:           records.KindMySQL,
		Version:        "8.0",
		Port:           3306,
		Password:       "pw",
		Username:       records.StringPtr("app"),
		PersistData:    true,
		MaxConnections: 150,
	}
	cfg := runspec.ConfigFromRecord(rec)
	f, fs := parseDBFlags(t, "", "--port", "3307", "--mysql-charset", "latin1")

	maxConns, err := f.apply(fs, &cfg)
	require.NoError(t, err)

	assert.Nil(t, maxConns)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, records.KindMySQL, cfg.Kind)
	assert.Equal(t, "8.0", cfg.Version)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, "app", cfg.Username)
	assert.True(t, cfg.PersistData)
	require.NotNil(t, cfg.MySQL)
	assert.Equal(t, "latin1", cfg.MySQL.CharacterSet)
	assert.Equal(t, "utf8mb4_unicode_ci", cfg.MySQL.Collation, "unchanged settings keep defaults")
}

func TestDBFlags_DisablePersistence(t *testing.T) {
	cfg := runspec.Config{Name: "shop", Kind: records.KindPostgreSQL, PersistData: true}
	f, fs := parseDBFlags(t, "", "--persist=false")

	_, err := f.apply(fs, &cfg)
	require.NoError(t, err)
	assert.False(t, cfg.PersistData)
}

func TestUpdateRequest_KeepsKindDefaults(t *testing.T) {
	rec := records.Record{
		ID:             "id-7",
		Name:           "cache",
		Kind:           records.KindRedis,
		Version:        "7.4",
		Port:           6379,
		Password:       "pw",
		MaxConnections: 100,
	}
	f, fs := parseDBFlags(t, "", "--port", "6380")

	req, err := updateRequest(fs, f, rec, "")
	require.NoError(t, err)

	assert.Equal(t, "cache", req.Name)
	assert.Equal(t, 6380, req.Metadata.Port)
	assert.Equal(t, []string{"redis-server", "--maxmemory-policy", "noeviction"}, req.Spec.Command)
	require.NotNil(t, req.Metadata.MaxConnections)
	assert.Equal(t, 100, *req.Metadata.MaxConnections)
}

func TestRunSetRunning_RequiresTargetsOrAll(t *testing.T) {
	cmd, _, _ := testCommand()

	err := runSetRunning(cmd, nil, false, true)
	assert.Equal(t, apperr.TypeConfiguration, apperr.TypeOf(err))

	err = runSetRunning(cmd, []string{"shop"}, true, false)
	assert.Equal(t, apperr.TypeConfiguration, apperr.TypeOf(err))
}

// =============================================================================
// Output
// =============================================================================

func sampleRecords() []records.Record {
	return []records.Record{
		{
			ID:          "0f8fad5b-d9cb-469f-a165-70867728950e",
			Name:        "shop",
			Kind:        records.KindPostgreSQL,
			Version:     "16",
			Status:      records.StatusRunning,
			Port:        5432,
			CreatedAt:   "2025-03-04",
			Password:    "hunter2",
			ContainerID: records.StringPtr("abc123"),
		},
	}
}

func TestPrintRecords_Table(t *testing.T) {
	machineOutput(t, false)
	cmd, out, _ := testCommand()

	require.NoError(t, printRecords(cmd, sampleRecords()))

	assert.Equal(t,
		"NAME\tID\tTYPE\tVERSION\tSTATUS\tPORT\tCREATED\n"+
			"shop\t0f8fad5b\tPostgreSQL\t16\trunning\t5432\t2025-03-04\n",
		out.String())
}

func TestPrintRecords_JSONOmitsPassword(t *testing.T) {
	machineOutput(t, true)
	cmd, out, _ := testCommand()

	require.NoError(t, printRecords(cmd, sampleRecords()))

	assert.NotContains(t, out.String(), "hunter2")
	var views []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "shop", views[0]["name"])
	assert.Equal(t, "abc123", views[0]["container_id"])
}

func TestPrintRecords_Empty(t *testing.T) {
	machineOutput(t, false)
	cmd, out, _ := testCommand()

	require.NoError(t, printRecords(cmd, nil))
	assert.Contains(t, out.String(), "No databases yet")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0f8fad5b", shortID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Equal(t, "abc", shortID("abc"))
}

// =============================================================================
// End to End
// =============================================================================

// runRoot executes the root command with args and returns its exit code
// and output.
func runRoot(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	prevLevel, prevJSON := ux.GetPersonality(), jsonOutput
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		ux.SetPersonality(prevLevel)
		jsonOutput = prevJSON
		loadedConfig = config.DockdbConfig{}
	})

	code := execute(context.Background())
	return code, out.String(), errOut.String()
}

func TestExecute_ConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dockdb.yaml")

	code, out, errOut := runRoot(t, "--config", path, "--output", "machine", "config")

	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "binary: docker")
	assert.Contains(t, out, "backend: json")
	assert.Contains(t, errOut, "First run detected")
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestExecute_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dockdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: sqlite\n"), 0o644))

	code, _, errOut := runRoot(t, "--config", path, "--output", "machine", "config")

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "invalid config")
}

func TestExecute_EngineStatusWhenEngineMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCKDB_ENGINE_BINARY", "dockdb-test-no-such-engine")
	t.Setenv("DOCKDB_RESOLVE_LOGIN_PATH", "false")
	t.Setenv("DOCKDB_LOG_DIR", filepath.Join(dir, "logs"))

	code, out, _ := runRoot(t, "--config", filepath.Join(dir, "dockdb.yaml"), "--json", "engine", "status")

	assert.Equal(t, exitEngine, code)
	var status map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "stopped", status["status"])
	assert.NotEmpty(t, status["error"])
}

func TestServerExtensions(t *testing.T) {
	logger := logging.Discard()

	opts := serverExtensions(config.ServerConfig{}, logger)
	assert.IsType(t, &extensions.NopAuthProvider{}, opts.AuthProvider)
	assert.IsType(t, &extensions.NopAuditLogger{}, opts.AuditLogger)

	opts = serverExtensions(config.ServerConfig{Token: "s3cret", Audit: true}, logger)
	assert.IsType(t, &extensions.TokenAuthProvider{}, opts.AuthProvider)
	assert.IsType(t, &extensions.SlogAuditLogger{}, opts.AuditLogger)
}
