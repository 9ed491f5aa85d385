// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives a Docker-compatible container engine through its
// command-line interface.
//
// # Description
//
// Gateway exposes the verbs dockdb needs (run, start, stop, remove, volume
// management, list, inspect, logs, exec, status) and turns engine output
// into typed results and *apperr.Error values. Nothing outside this package
// looks at engine stderr text.
//
// Migrator copies one named volume into another with a disposable helper
// container.
//
// # Thread Safety
//
// Gateway and Migrator are stateless after construction and safe for
// concurrent use.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/infra/process"
	"github.com/AleutianAI/dockdb/pkg/logging"
)

// DefaultBinary is the engine executable used when none is configured.
const DefaultBinary = "docker"

// DefaultLogTail is the number of log lines returned when none is requested.
const DefaultLogTail = 500

// DefaultColumns is the terminal width passed to exec when none is given.
const DefaultColumns = 80

// Config configures a Gateway.
type Config struct {
	// Binary is the engine executable ("docker", "podman"). Default: docker.
	Binary string

	// SearchPath is used to locate Binary and is exported to every engine
	// process as PATH (credential helpers are looked up through it).
	SearchPath process.SearchPath

	// Manager runs the engine processes. Required.
	Manager process.Manager

	// Logger receives one debug record per invocation. Default: discard.
	Logger *slog.Logger
}

// Gateway is the single point of contact with the container engine.
type Gateway struct {
	binary string
	env    []string
	proc   process.Manager
	logger *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(cfg Config) *Gateway {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Manager == nil {
		cfg.Manager = process.NewDefaultManager()
	}
	return &Gateway{
		binary: cfg.Binary,
		env:    cfg.SearchPath.Env(),
		proc:   cfg.Manager,
		logger: cfg.Logger.With("component", "engine"),
	}
}

// Binary returns the configured engine executable.
func (g *Gateway) Binary() string { return g.binary }

// =============================================================================
// Types
// =============================================================================

// Container is one entry of the engine's container list.
type Container struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

// ExecResult is the outcome of a command run inside a container. A non-zero
// ExitCode is a normal result, not an error.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// =============================================================================
// Invocation
// =============================================================================

// invoke runs one engine command. The returned error is non-nil only for
// transport failures; a non-zero exit is reported through Result and a
// *CommandError.
func (g *Gateway) invoke(ctx context.Context, verb string, args ...string) (process.Result, *CommandError, error) {
	ctx, span := startVerbSpan(ctx, verb)
	cmd := process.Command{Name: g.binary, Args: args, Env: g.env}

	start := time.Now()
	res, err := g.proc.Run(ctx, cmd)
	elapsed := time.Since(start)

	if err != nil {
		recordVerbMetrics(ctx, verb, "transport_error", elapsed)
		terr := apperr.Transport(fmt.Sprintf("could not run %s", g.binary), err)
		endVerbSpan(span, -1, terr)
		g.logger.Error("engine unavailable", "verb", verb, "command", cmd.String(), "error", err)
		return res, nil, terr
	}

	var cmdErr *CommandError
	outcome := "ok"
	if !res.Success() {
		outcome = "failed"
		cmdErr = &CommandError{
			Command:  cmd.String(),
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(string(res.Stderr)),
		}
		endVerbSpan(span, res.ExitCode, cmdErr)
	} else {
		endVerbSpan(span, res.ExitCode, nil)
	}
	recordVerbMetrics(ctx, verb, outcome, elapsed)

	g.logger.Debug("engine call",
		"verb", verb,
		"command", cmd.String(),
		"exit_code", res.ExitCode,
		"duration", elapsed,
	)
	return res, cmdErr, nil
}

// =============================================================================
// Container Verbs
// =============================================================================

// Run starts a container from run arguments (see runspec.BuildRunArgs) and
// returns the engine-assigned container id.
//
// # Description
//
// A failed run is classified with ClassifyRunError. The requested host port
// and container name are read back from args so the classified error can
// report them.
//
// # Outputs
//
//   - string: Container id printed by the engine; may be empty for engines
//     that print nothing.
//   - error: PORT_IN_USE, NAME_IN_USE, DOCKER_ERROR or TRANSPORT_ERROR.
func (g *Gateway) Run(ctx context.Context, args []string) (string, error) {
	res, cmdErr, err := g.invoke(ctx, "run", args...)
	if err != nil {
		return "", err
	}
	if cmdErr != nil {
		classified := ClassifyRunError(cmdErr.Stderr, hostPortFromArgs(args), nameFromArgs(args), cmdErr)
		g.logger.Warn("run failed",
			"container", nameFromArgs(args),
			"error_type", classified.Type,
			"stderr", cmdErr.Stderr,
		)
		return "", classified
	}
	return lastLine(string(res.Stdout)), nil
}

// Start starts an existing container.
func (g *Gateway) Start(ctx context.Context, id string) error {
	return g.simple(ctx, "start", "Error starting container", id)
}

// Stop stops a running container.
func (g *Gateway) Stop(ctx context.Context, id string) error {
	return g.simple(ctx, "stop", "Error stopping container", id)
}

func (g *Gateway) simple(ctx context.Context, verb, message, id string) error {
	_, cmdErr, err := g.invoke(ctx, verb, id)
	if err != nil {
		return err
	}
	if cmdErr != nil {
		if IsNoSuchContainer(cmdErr.Stderr) {
			return &apperr.Error{Type: apperr.TypeNotFound, Message: "Container not found", Err: cmdErr}
		}
		return apperr.Engine(message, cmdErr.Stderr, cmdErr)
	}
	return nil
}

// Remove stops and removes a container. A container that does not exist
// counts as removed.
func (g *Gateway) Remove(ctx context.Context, id string) error {
	// A stop failure is expected for stopped or missing containers.
	if _, _, err := g.invoke(ctx, "stop", id); err != nil {
		return err
	}

	_, cmdErr, err := g.invoke(ctx, "rm", id)
	if err != nil {
		return err
	}
	if cmdErr != nil && !IsNoSuchContainer(cmdErr.Stderr) {
		return apperr.Engine("Error removing container", cmdErr.Stderr, cmdErr)
	}
	return nil
}

// ForceRemoveByName stops and removes a container by name, ignoring every
// failure. Used to clean up after a failed run.
func (g *Gateway) ForceRemoveByName(ctx context.Context, name string) {
	for _, verb := range []string{"stop", "rm"} {
		_, cmdErr, err := g.invoke(ctx, verb, name)
		if err != nil {
			g.logger.Warn("cleanup skipped", "container", name, "verb", verb, "error", err)
			return
		}
		if cmdErr != nil && !IsNoSuchContainer(cmdErr.Stderr) {
			g.logger.Debug("cleanup step failed", "container", name, "verb", verb, "stderr", cmdErr.Stderr)
		}
	}
}

// Inspect looks up a container by id or name. The boolean is false when the
// engine does not know the container.
func (g *Gateway) Inspect(ctx context.Context, ref string) (Container, bool, error) {
	res, cmdErr, err := g.invoke(ctx, "inspect",
		"--type", "container", "--format", "{{.Id}}\t{{.Name}}\t{{.State.Status}}", ref)
	if err != nil {
		return Container{}, false, err
	}
	if cmdErr != nil {
		if IsNoSuchContainer(cmdErr.Stderr) || strings.Contains(strings.ToLower(cmdErr.Stderr), "no such object") {
			return Container{}, false, nil
		}
		return Container{}, false, apperr.Engine("Error inspecting container", cmdErr.Stderr, cmdErr)
	}

	fields := strings.Split(lastLine(string(res.Stdout)), "\t")
	if len(fields) < 3 {
		return Container{}, false, apperr.Engine("Error inspecting container", string(res.Stdout), nil)
	}
	state := strings.TrimSpace(fields[2])
	return Container{
		ID:      strings.TrimSpace(fields[0]),
		Name:    strings.TrimPrefix(strings.TrimSpace(fields[1]), "/"),
		Status:  state,
		Running: state == "running",
	}, true, nil
}

// ListContainers returns every container the engine knows, running or not.
func (g *Gateway) ListContainers(ctx context.Context) ([]Container, error) {
	res, cmdErr, err := g.invoke(ctx, "ps",
		"-a", "--no-trunc", "--format", "{{.ID}}\t{{.Names}}\t{{.Status}}")
	if err != nil {
		return nil, err
	}
	if cmdErr != nil {
		return nil, apperr.Engine("Error listing containers", cmdErr.Stderr, cmdErr)
	}
	return ParseContainerList(string(res.Stdout)), nil
}

// ParseContainerList parses "ID<TAB>NAMES<TAB>STATUS" lines. A status
// starting with "Up" means running. Malformed lines are skipped.
func ParseContainerList(out string) []Container {
	var containers []Container
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 3 {
			continue
		}
		status := strings.TrimSpace(fields[2])
		containers = append(containers, Container{
			ID:      strings.TrimSpace(fields[0]),
			Name:    strings.TrimSpace(fields[1]),
			Status:  status,
			Running: strings.HasPrefix(status, "Up"),
		})
	}
	return containers
}

// Logs returns the last tail lines of a container's output with timestamps.
// tail <= 0 selects DefaultLogTail.
func (g *Gateway) Logs(ctx context.Context, id string, tail int) (string, error) {
	if tail <= 0 {
		tail = DefaultLogTail
	}
	res, cmdErr, err := g.invoke(ctx, "logs", "--timestamps", "--tail", strconv.Itoa(tail), id)
	if err != nil {
		return "", err
	}
	if cmdErr != nil {
		if IsNoSuchContainer(cmdErr.Stderr) {
			return "", &apperr.Error{Type: apperr.TypeNotFound, Message: "Container not found", Err: cmdErr}
		}
		return "", apperr.Engine("Error reading container logs", cmdErr.Stderr, cmdErr)
	}
	// The engine replays the container's stderr stream on its own stderr.
	return string(res.Stdout) + string(res.Stderr), nil
}

// Exec runs command with sh -c inside a running container. columns <= 0
// selects DefaultColumns.
func (g *Gateway) Exec(ctx context.Context, id, command string, columns int) (ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return ExecResult{}, apperr.Configuration("command is required")
	}
	if columns <= 0 {
		columns = DefaultColumns
	}
	res, cmdErr, err := g.invoke(ctx, "exec",
		"-e", "COLUMNS="+strconv.Itoa(columns), id, "sh", "-c", command)
	if err != nil {
		return ExecResult{}, err
	}
	if cmdErr != nil && IsNoSuchContainer(cmdErr.Stderr) {
		return ExecResult{}, &apperr.Error{Type: apperr.TypeNotFound, Message: "Container not found", Err: cmdErr}
	}
	return ExecResult{
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
	}, nil
}

// =============================================================================
// Volume Verbs
// =============================================================================

// VolumeExists reports whether a named volume exists. Any inspect failure
// other than a transport failure is treated as absence.
func (g *Gateway) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, cmdErr, err := g.invoke(ctx, "volume_inspect", "volume", "inspect", name)
	if err != nil {
		return false, err
	}
	return cmdErr == nil, nil
}

// CreateVolumeIfAbsent creates a named volume unless it exists. The boolean
// reports whether this call created it.
func (g *Gateway) CreateVolumeIfAbsent(ctx context.Context, name string) (bool, error) {
	exists, err := g.VolumeExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, cmdErr, err := g.invoke(ctx, "volume_create", "volume", "create", name)
	if err != nil {
		return false, err
	}
	if cmdErr != nil {
		return false, apperr.Engine("Error creating volume", cmdErr.Stderr, cmdErr)
	}
	g.logger.Info("volume created", "volume", name)
	return true, nil
}

// RemoveVolumeIfPresent removes a named volume. A missing volume counts as
// removed.
func (g *Gateway) RemoveVolumeIfPresent(ctx context.Context, name string) error {
	_, cmdErr, err := g.invoke(ctx, "volume_rm", "volume", "rm", name)
	if err != nil {
		return err
	}
	if cmdErr != nil && !IsNoSuchVolume(cmdErr.Stderr) {
		return apperr.Engine("Error removing volume", cmdErr.Stderr, cmdErr)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// hostPortFromArgs returns the host side of the first -p mapping, or 0.
func hostPortFromArgs(args []string) int {
	for i := 0; i < len(args)-1; i++ {
		if args[i] != "-p" && args[i] != "--publish" {
			continue
		}
		mapping := args[i+1]
		parts := strings.Split(mapping, ":")
		// ip:host:container or host:container
		if len(parts) < 2 {
			return 0
		}
		port, err := strconv.Atoi(parts[len(parts)-2])
		if err != nil {
			return 0
		}
		return port
	}
	return 0
}

// nameFromArgs returns the value of --name, or "".
func nameFromArgs(args []string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--name" {
			return args[i+1]
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
