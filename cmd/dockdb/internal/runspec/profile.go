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
	"fmt"
	"net/url"
	"strconv"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
)

// =============================================================================
// Profile Interface
// =============================================================================

// Profile holds the per-kind conventions of a database image.
//
// # Description
//
// One Profile exists per records.Kind. Env and Command read only the
// fields of Config relevant to the kind.
//
// # Thread Safety
//
// Profiles are stateless and safe for concurrent use.
type Profile interface {
	Kind() records.Kind
	// Image returns the image reference for a version tag.
	Image(version string) string
	// DefaultPort is the port the server listens on inside the container.
	DefaultPort() int
	// DataPath is the data directory inside the container.
	DataPath() string
	// Env returns the environment for the container.
	Env(cfg Config) map[string]string
	// Command returns trailing command tokens, or nil for the image default.
	Command(cfg Config) []string
	// ConnectionURI returns a client URI for the database published on host.
	ConnectionURI(cfg Config, host string) string
}

var profiles = map[records.Kind]Profile{
	records.KindPostgreSQL: postgresProfile{},
	records.KindMySQL:      mysqlProfile{},
	records.KindRedis:      redisProfile{},
	records.KindMongoDB:    mongoProfile{},
}

// ProfileFor returns the profile of kind, or a configuration error for an
// unsupported kind.
func ProfileFor(kind records.Kind) (Profile, error) {
	p, ok := profiles[kind]
	if !ok {
		return nil, apperr.Configuration("Unsupported database type: %q", string(kind))
	}
	return p, nil
}

// =============================================================================
// PostgreSQL
// =============================================================================

const postgresAdmin = "postgres"

type postgresProfile struct{}

func (postgresProfile) Kind() records.Kind          { return records.KindPostgreSQL }
func (postgresProfile) Image(version string) string { return "postgres:" + version }
func (postgresProfile) DefaultPort() int            { return 5432 }
func (postgresProfile) DataPath() string            { return "/var/lib/postgresql/data" }

func (postgresProfile) Env(cfg Config) map[string]string {
	env := map[string]string{"POSTGRES_PASSWORD": cfg.Password}
	if cfg.Username != "" && cfg.Username != postgresAdmin {
		env["POSTGRES_USER"] = cfg.Username
	}
	if cfg.DatabaseName != "" && cfg.DatabaseName != postgresAdmin {
		env["POSTGRES_DB"] = cfg.DatabaseName
	}
	if s := cfg.Postgres; s != nil {
		if s.HostAuthMethod != "" {
			env["POSTGRES_HOST_AUTH_METHOD"] = s.HostAuthMethod
		}
		if s.InitdbArgs != "" {
			env["POSTGRES_INITDB_ARGS"] = s.InitdbArgs
		}
	}
	return env
}

func (postgresProfile) Command(Config) []string { return nil }

func (postgresProfile) ConnectionURI(cfg Config, host string) string {
	user := orDefault(cfg.Username, postgresAdmin)
	db := orDefault(cfg.DatabaseName, postgresAdmin)
	return fmt.Sprintf("postgresql://%s@%s/%s", url.UserPassword(user, cfg.Password).String(),
		hostPort(host, cfg.Port), url.PathEscape(db))
}

// =============================================================================
// MySQL
// =============================================================================

type mysqlProfile struct{}

func (mysqlProfile) Kind() records.Kind          { return records.KindMySQL }
func (mysqlProfile) Image(version string) string { return "mysql:" + version }
func (mysqlProfile) DefaultPort() int            { return 3306 }
func (mysqlProfile) DataPath() string            { return "/var/lib/mysql" }

func (mysqlProfile) Env(cfg Config) map[string]string {
	env := map[string]string{"MYSQL_ROOT_PASSWORD": cfg.Password}
	if cfg.DatabaseName != "" {
		env["MYSQL_DATABASE"] = cfg.DatabaseName
	}
	if s := cfg.MySQL; s != nil {
		if s.CharacterSet != "" {
			env["MYSQL_CHARACTER_SET_SERVER"] = s.CharacterSet
		}
		if s.Collation != "" {
			env["MYSQL_COLLATION_SERVER"] = s.Collation
		}
	}
	return env
}

func (mysqlProfile) Command(Config) []string { return nil }

func (mysqlProfile) ConnectionURI(cfg Config, host string) string {
	return fmt.Sprintf("mysql://%s@%s/%s", url.UserPassword("root", cfg.Password).String(),
		hostPort(host, cfg.Port), url.PathEscape(cfg.DatabaseName))
}

// =============================================================================
// Redis
// =============================================================================

type redisProfile struct{}

func (redisProfile) Kind() records.Kind          { return records.KindRedis }
func (redisProfile) Image(version string) string { return "redis:" + version }
func (redisProfile) DefaultPort() int            { return 6379 }
func (redisProfile) DataPath() string            { return "/data" }

func (redisProfile) Env(Config) map[string]string { return nil }

// Command starts redis-server explicitly only when it needs flags; otherwise
// the image entrypoint is used unchanged.
func (redisProfile) Command(cfg Config) []string {
	if !cfg.EnableAuth && cfg.Redis == nil {
		return nil
	}
	cmd := []string{"redis-server"}
	if cfg.EnableAuth {
		cmd = append(cmd, "--requirepass", cfg.Password)
	}
	if s := cfg.Redis; s != nil {
		if s.MaxMemory != "" {
			cmd = append(cmd, "--maxmemory", s.MaxMemory)
		}
		if s.MaxMemoryPolicy != "" {
			cmd = append(cmd, "--maxmemory-policy", s.MaxMemoryPolicy)
		}
		if s.AppendOnly {
			cmd = append(cmd, "--appendonly", "yes")
		}
	}
	return cmd
}

func (redisProfile) ConnectionURI(cfg Config, host string) string {
	if cfg.EnableAuth {
		return fmt.Sprintf("redis://:%s@%s", url.QueryEscape(cfg.Password), hostPort(host, cfg.Port))
	}
	return "redis://" + hostPort(host, cfg.Port)
}

// =============================================================================
// MongoDB
// =============================================================================

const mongoAdmin = "admin"

type mongoProfile struct{}

func (mongoProfile) Kind() records.Kind          { return records.KindMongoDB }
func (mongoProfile) Image(version string) string { return "mongo:" + version }
func (mongoProfile) DefaultPort() int            { return 27017 }
func (mongoProfile) DataPath() string            { return "/data/db" }

func (mongoProfile) Env(cfg Config) map[string]string {
	env := map[string]string{
		"MONGO_INITDB_ROOT_USERNAME": orDefault(cfg.Username, mongoAdmin),
		"MONGO_INITDB_ROOT_PASSWORD": cfg.Password,
	}
	if cfg.DatabaseName != "" {
		env["MONGO_INITDB_DATABASE"] = cfg.DatabaseName
	}
	return env
}

func (mongoProfile) Command(Config) []string { return nil }

func (mongoProfile) ConnectionURI(cfg Config, host string) string {
	authSource := mongoAdmin
	if cfg.Mongo != nil && cfg.Mongo.AuthSource != "" {
		authSource = cfg.Mongo.AuthSource
	}
	return fmt.Sprintf("mongodb://%s@%s/%s?authSource=%s",
		url.UserPassword(orDefault(cfg.Username, mongoAdmin), cfg.Password).String(),
		hostPort(host, cfg.Port), url.PathEscape(cfg.DatabaseName), url.QueryEscape(authSource))
}

// =============================================================================
// Helpers
// =============================================================================

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func hostPort(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	return host + ":" + strconv.Itoa(port)
}
