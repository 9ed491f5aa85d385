// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records holds the durable representation of managed databases
// and the in-memory set that owns them while the process is live.
package records

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Kind
// =============================================================================

// Kind is a supported database engine. The string value is the wire
// representation stored in db_type.
type Kind string

const (
	KindPostgreSQL Kind = "PostgreSQL"
	KindMySQL      Kind = "MySQL"
	KindRedis      Kind = "Redis"
	KindMongoDB    Kind = "MongoDB"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindPostgreSQL, KindMySQL, KindRedis, KindMongoDB}

// ParseKind accepts the wire name or a common alias, case-insensitively
// ("postgres", "pg", "mongo", ...).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgresql", "postgres", "pg":
		return KindPostgreSQL, nil
	case "mysql":
		return KindMySQL, nil
	case "redis":
		return KindRedis, nil
	case "mongodb", "mongo":
		return KindMongoDB, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", s)
	}
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// =============================================================================
// Status
// =============================================================================

// Status is the lifecycle status of a record as last observed.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// =============================================================================
// Record
// =============================================================================

// DateLayout is the creation-date format stored in created_at.
const DateLayout = "2006-01-02"

// DefaultMaxConnections is used when a request leaves max connections unset.
const DefaultMaxConnections = 100

// Record is one managed database.
//
// # Description
//
// Name doubles as the engine container name and determines the volume name
// (see VolumeName). ContainerID is non-nil only while the engine has a
// container with this name; the reconciler and the lifecycle operations
// clear it whenever the record is known to be out of sync.
//
// The JSON field names are the stored format and must not change.
type Record struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Kind           Kind    `json:"db_type"`
	Version        string  `json:"version"`
	Status         Status  `json:"status"`
	Port           int     `json:"port"`
	CreatedAt      string  `json:"created_at"`
	MaxConnections int     `json:"max_connections"`
	ContainerID    *string `json:"container_id"`

	Password     string  `json:"stored_password"`
	Username     *string `json:"stored_username"`
	DatabaseName *string `json:"stored_database_name"`
	PersistData  bool    `json:"stored_persist_data"`
	EnableAuth   bool    `json:"stored_enable_auth"`
}

// UnmarshalJSON accepts records written before max_connections and the
// stored_* fields existed.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	aux := struct {
		*plain
		MaxConnections *int `json:"max_connections"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.MaxConnections = DefaultMaxConnections
	if aux.MaxConnections != nil {
		r.MaxConnections = *aux.MaxConnections
	}
	return nil
}

// Volume returns the data volume name backing this record.
func (r Record) Volume() string {
	return VolumeName(r.Name)
}

// HasContainer reports whether a live container id is known.
func (r Record) HasContainer() bool {
	return r.ContainerID != nil && *r.ContainerID != ""
}

// ContainerIDString returns the container id or "".
func (r Record) ContainerIDString() string {
	if r.ContainerID == nil {
		return ""
	}
	return *r.ContainerID
}

// Detach clears the container id and marks the record stopped.
func (r *Record) Detach() {
	r.ContainerID = nil
	r.Status = StatusStopped
}

// Attach records a live container and its running state.
func (r *Record) Attach(containerID string, running bool) {
	id := containerID
	r.ContainerID = &id
	if running {
		r.Status = StatusRunning
	} else {
		r.Status = StatusStopped
	}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	out.ContainerID = clonePtr(r.ContainerID)
	out.Username = clonePtr(r.Username)
	out.DatabaseName = clonePtr(r.DatabaseName)
	return out
}

// Today returns the creation date for a record created at t.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}

// VolumeName derives the data volume name of a record name.
func VolumeName(name string) string {
	return name + "-data"
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *p or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
