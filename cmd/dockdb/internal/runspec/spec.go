// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runspec describes container invocations and turns them into
// engine "run" argument lists.
//
// # Description
//
// A RunSpec is the fully resolved description of one container: image,
// port pairs, named-volume mounts, environment and trailing command.
// BuildRunArgs is the only place engine run arguments are produced.
//
// The kind-aware path (Config, FromConfig, Profile) exists for callers that
// describe a database by kind, version and credentials instead of a ready
// RunSpec. It only produces a RunSpec; it never builds arguments itself.
//
// # Example
//
//	spec, err := runspec.FromConfig(runspec.Config{
//	    Name: "pg1", Kind: records.KindPostgreSQL, Version: "15",
//	    Port: 5555, Password: "pw",
//	})
//	args := runspec.BuildRunArgs("pg1", spec)
//	// run -d --name pg1 -p 5555:5432 -e POSTGRES_PASSWORD=pw postgres:15
package runspec

import (
	"sort"
	"strconv"
)

// PortMapping publishes a container port on a host port.
type PortMapping struct {
	Host      int `json:"host" validate:"min=1,max=65535"`
	Container int `json:"container" validate:"min=1,max=65535"`
}

// VolumeMount mounts a named volume at a container path.
type VolumeMount struct {
	Name string `json:"name" validate:"required"`
	Path string `json:"path" validate:"required"`
}

// RunSpec is the structured description of one engine run invocation.
// It is derived for every create or recreate and never persisted.
type RunSpec struct {
	Image   string            `json:"image" validate:"required"`
	Env     map[string]string `json:"envVars,omitempty"`
	Ports   []PortMapping     `json:"ports" validate:"dive"`
	Volumes []VolumeMount     `json:"volumes,omitempty" validate:"dive"`
	Command []string          `json:"command,omitempty"`
}

// BuildRunArgs produces the engine argument list for running spec as a
// detached container called name.
//
// # Description
//
// The order is fixed: run -d --name <name>, one -p per port, one -v per
// volume, one -e per environment entry, the image, then the trailing
// command. Environment entries are emitted sorted by key so the same
// RunSpec always yields the same list.
//
// # Inputs
//
//   - name: Container name. Not validated here.
//   - spec: Resolved run specification.
//
// # Outputs
//
//   - []string: Arguments for the engine binary, starting with "run".
func BuildRunArgs(name string, spec RunSpec) []string {
	args := make([]string, 0, 4+2*(len(spec.Ports)+len(spec.Volumes)+len(spec.Env))+1+len(spec.Command))
	args = append(args, "run", "-d", "--name", name)

	for _, p := range spec.Ports {
		args = append(args, "-p", strconv.Itoa(p.Host)+":"+strconv.Itoa(p.Container))
	}
	for _, v := range spec.Volumes {
		args = append(args, "-v", v.Name+":"+v.Path)
	}
	for _, key := range sortedKeys(spec.Env) {
		args = append(args, "-e", key+"="+spec.Env[key])
	}

	args = append(args, spec.Image)
	args = append(args, spec.Command...)
	return args
}

// HostPort returns the first published host port.
func (s RunSpec) HostPort() (int, bool) {
	if len(s.Ports) == 0 {
		return 0, false
	}
	return s.Ports[0].Host, true
}

// PublishesHostPort reports whether any mapping publishes host port p.
func (s RunSpec) PublishesHostPort(p int) bool {
	for _, m := range s.Ports {
		if m.Host == p {
			return true
		}
	}
	return false
}

// DataPath returns the mount path of the first volume, or "".
func (s RunSpec) DataPath() string {
	if len(s.Volumes) == 0 {
		return ""
	}
	return s.Volumes[0].Path
}

// VolumeNames returns the names of all mounted volumes.
func (s RunSpec) VolumeNames() []string {
	names := make([]string, 0, len(s.Volumes))
	for _, v := range s.Volumes {
		names = append(names, v.Name)
	}
	return names
}

// WithoutVolumes returns a copy of s with no volume mounts.
func (s RunSpec) WithoutVolumes() RunSpec {
	out := s.Clone()
	out.Volumes = nil
	return out
}

// Clone returns a deep copy.
func (s RunSpec) Clone() RunSpec {
	out := RunSpec{Image: s.Image}
	if s.Env != nil {
		out.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			out.Env[k] = v
		}
	}
	out.Ports = append([]PortMapping(nil), s.Ports...)
	out.Volumes = append([]VolumeMount(nil), s.Volumes...)
	out.Command = append([]string(nil), s.Command...)
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
