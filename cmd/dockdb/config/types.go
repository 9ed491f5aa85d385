// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/storage"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/telemetry"
)

// DockdbConfig is the content of dockdb.yaml.
type DockdbConfig struct {
	Engine    EngineConfig     `yaml:"engine"`
	Store     StoreConfig      `yaml:"store"`
	Server    ServerConfig     `yaml:"server"`
	Reconcile ReconcileConfig  `yaml:"reconcile"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

type EngineConfig struct {
	Binary string `yaml:"binary" validate:"required"` // e.g. docker, podman

	// ResolveLoginPath asks the login shell for PATH before looking up
	// Binary. Desktop launchers often start with a minimal PATH.
	ResolveLoginPath bool `yaml:"resolve_login_path"`

	HelperImage string        `yaml:"helper_image" validate:"required"` // volume migration helper
	StepTimeout time.Duration `yaml:"step_timeout" validate:"min=0"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=json badger"`
	Dir        string `yaml:"dir" validate:"required"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// Token, when set, is required as "Authorization: Bearer <token>" on
	// every /v1 request.
	Token string `yaml:"token,omitempty"`

	// Audit logs every mutating request as an "audit" record.
	Audit bool `yaml:"audit"`

	// RateLimit bounds mutating requests per second; Burst is the bucket
	// size. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	Burst     int     `yaml:"burst" validate:"min=0"`
}

type ReconcileConfig struct {
	// Interval between background passes of "dockdb serve". Zero disables.
	Interval time.Duration `yaml:"interval" validate:"min=0"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir        string `yaml:"dir"`
	JSON       bool   `yaml:"json"`
	ExportPath string `yaml:"export_path,omitempty"` // JSON lines of every record
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() DockdbConfig {
	tel := telemetry.DefaultConfig()
	return DockdbConfig{
		Engine: EngineConfig{
			Binary:           engine.DefaultBinary,
			ResolveLoginPath: true,
			HelperImage:      engine.DefaultHelperImage,
		},
		Store: StoreConfig{
			Backend: storage.BackendJSON,
			Dir:     "~/.dockdb",
		},
		Server:    ServerConfig{Addr: "127.0.0.1:7777", RateLimit: 5, Burst: 10},
		Reconcile: ReconcileConfig{Interval: 30 * time.Second},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.dockdb/logs",
		},
		Telemetry: telemetry.Config{
			Traces:       tel.Traces,
			Metrics:      tel.Metrics,
			OTLPEndpoint: tel.OTLPEndpoint,
			OTLPInsecure: tel.OTLPInsecure,
		},
	}
}
