// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runspec

import (
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
)

// Config describes a database by kind instead of by run specification.
// At most the settings block matching Kind is consulted.
type Config struct {
	Name         string
	Kind         records.Kind
	Version      string
	Port         int
	Username     string
	Password     string
	DatabaseName string
	PersistData  bool
	EnableAuth   bool

	Postgres *PostgresSettings
	MySQL    *MySQLSettings
	Redis    *RedisSettings
	Mongo    *MongoSettings
}

// FromConfig resolves a kind-aware configuration into a RunSpec.
//
// # Description
//
// The image is "{kind image}:{version}", the single port mapping publishes
// the kind's default port on cfg.Port, and, when PersistData is set, the
// volume VolumeName(cfg.Name) is mounted at the kind's data path.
//
// # Outputs
//
//   - RunSpec: Ready for BuildRunArgs.
//   - error: *apperr.Error of TypeConfiguration for an unsupported kind or
//     missing name/version. No engine interaction happens either way.
func FromConfig(cfg Config) (RunSpec, error) {
	profile, err := ProfileFor(cfg.Kind)
	if err != nil {
		return RunSpec{}, err
	}
	if cfg.Version == "" {
		return RunSpec{}, apperr.Configuration("version is required")
	}

	spec := RunSpec{
		Image:   profile.Image(cfg.Version),
		Env:     profile.Env(cfg),
		Ports:   []PortMapping{{Host: cfg.Port, Container: profile.DefaultPort()}},
		Command: profile.Command(cfg),
	}
	if cfg.PersistData {
		if cfg.Name == "" {
			return RunSpec{}, apperr.Configuration("name is required for a persistent database")
		}
		spec.Volumes = []VolumeMount{{Name: records.VolumeName(cfg.Name), Path: profile.DataPath()}}
	}
	return spec, nil
}

// BuildKindArgs is FromConfig followed by BuildRunArgs.
func BuildKindArgs(cfg Config) ([]string, error) {
	spec, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return BuildRunArgs(cfg.Name, spec), nil
}

// ConfigFromRecord rebuilds the kind-aware configuration of a stored record.
// Kind settings are not stored and come back nil.
func ConfigFromRecord(r records.Record) Config {
	return Config{
		Name:         r.Name,
		Kind:         r.Kind,
		Version:      r.Version,
		Port:         r.Port,
		Username:     records.Deref(r.Username),
		Password:     r.Password,
		DatabaseName: records.Deref(r.DatabaseName),
		PersistData:  r.PersistData,
		EnableAuth:   r.EnableAuth,
	}
}

// ConnectionURI returns a client URI for a stored record on host.
func ConnectionURI(r records.Record, host string) (string, error) {
	profile, err := ProfileFor(r.Kind)
	if err != nil {
		return "", err
	}
	return profile.ConnectionURI(ConfigFromRecord(r), host), nil
}
