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

	"golang.org/x/sync/errgroup"
)

// Engine status values.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// EngineDownMessage is reported when the engine cannot be reached.
const EngineDownMessage = "Docker daemon is not running or Docker is not installed"

// ContainerCounts summarizes the engine's containers.
type ContainerCounts struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Stopped int `json:"stopped"`
}

// EngineStatus describes the container engine. It serializes to one of two
// shapes: the full report when Status is running, or {status, error} when
// the engine is unreachable.
type EngineStatus struct {
	Status     string
	Version    string
	Containers ContainerCounts
	Images     int
	Host       string
	Error      string
}

// MarshalJSON emits the shape matching s.Status.
func (s EngineStatus) MarshalJSON() ([]byte, error) {
	if s.Status != StatusRunning {
		return json.Marshal(struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{s.Status, s.Error})
	}
	return json.Marshal(struct {
		Status     string          `json:"status"`
		Version    string          `json:"version"`
		Containers ContainerCounts `json:"containers"`
		Images     int             `json:"images"`
		Host       string          `json:"host"`
	}{s.Status, s.Version, s.Containers, s.Images, s.Host})
}

type versionReport struct {
	Client struct {
		Version string `json:"Version"`
	} `json:"Client"`
	Server *struct {
		Version string `json:"Version"`
	} `json:"Server"`
}

type infoReport struct {
	Containers        int    `json:"Containers"`
	ContainersRunning int    `json:"ContainersRunning"`
	ContainersStopped int    `json:"ContainersStopped"`
	Images            int    `json:"Images"`
	Name              string `json:"Name"`
}

// Status reports whether the engine is reachable and summarizes its
// contents. It never fails: an unreachable engine yields the stopped shape,
// and an engine whose info query fails reports zero counts.
//
// # Description
//
// The version and info queries run concurrently. Version decides
// reachability; info only contributes counts.
func (g *Gateway) Status(ctx context.Context) EngineStatus {
	var (
		version    string
		versionErr error
		info       infoReport
		infoOK     bool
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		version, versionErr = g.queryVersion(egCtx)
		return nil
	})
	eg.Go(func() error {
		info, infoOK = g.queryInfo(egCtx)
		return nil
	})
	_ = eg.Wait()

	if versionErr != nil {
		g.logger.Debug("engine status unavailable", "error", versionErr)
		return EngineStatus{Status: StatusStopped, Error: EngineDownMessage}
	}

	status := EngineStatus{
		Status:  StatusRunning,
		Version: version,
		Host:    g.binary,
	}
	if infoOK {
		status.Containers = ContainerCounts{
			Total:   info.Containers,
			Running: info.ContainersRunning,
			Stopped: info.ContainersStopped,
		}
		status.Images = info.Images
		if info.Name != "" {
			status.Host = info.Name
		}
	}
	return status
}

func (g *Gateway) queryVersion(ctx context.Context) (string, error) {
	res, cmdErr, err := g.invoke(ctx, "version", "version", "--format", "{{json .}}")
	if err != nil {
		return "", err
	}
	if cmdErr != nil {
		return "", cmdErr
	}

	var report versionReport
	if err := json.Unmarshal([]byte(lastLine(string(res.Stdout))), &report); err != nil {
		return "unknown", nil
	}
	if report.Server != nil && report.Server.Version != "" {
		return report.Server.Version, nil
	}
	if report.Client.Version != "" {
		return report.Client.Version, nil
	}
	return "unknown", nil
}

func (g *Gateway) queryInfo(ctx context.Context) (infoReport, bool) {
	var report infoReport
	res, cmdErr, err := g.invoke(ctx, "info", "info", "--format", "{{json .}}")
	if err != nil || cmdErr != nil {
		return report, false
	}
	if err := json.Unmarshal([]byte(lastLine(string(res.Stdout))), &report); err != nil {
		return infoReport{}, false
	}
	return report, true
}
