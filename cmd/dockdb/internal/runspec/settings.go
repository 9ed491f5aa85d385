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

// PostgresSettings are PostgreSQL-specific options.
type PostgresSettings struct {
	InitdbArgs     string `json:"initdb_args,omitempty" yaml:"initdb_args"`
	HostAuthMethod string `json:"host_auth_method,omitempty" yaml:"host_auth_method"`
}

// MySQLSettings are MySQL-specific options.
type MySQLSettings struct {
	CharacterSet string `json:"character_set,omitempty" yaml:"character_set"`
	Collation    string `json:"collation,omitempty" yaml:"collation"`
}

// RedisSettings are Redis-specific options. RequirePass is informational;
// authentication follows Config.EnableAuth.
type RedisSettings struct {
	MaxMemory       string `json:"max_memory,omitempty" yaml:"max_memory"`
	MaxMemoryPolicy string `json:"max_memory_policy,omitempty" yaml:"max_memory_policy"`
	AppendOnly      bool   `json:"append_only" yaml:"append_only"`
	RequirePass     bool   `json:"require_pass" yaml:"require_pass"`
}

// MongoSettings are MongoDB-specific options. EnableSharding is stored for
// display only; single-node containers are never started as shard servers.
type MongoSettings struct {
	AuthSource     string `json:"auth_source,omitempty" yaml:"auth_source"`
	EnableSharding bool   `json:"enable_sharding" yaml:"enable_sharding"`
}

// DefaultPostgresSettings mirrors the desktop form defaults.
func DefaultPostgresSettings() PostgresSettings {
	return PostgresSettings{HostAuthMethod: "md5"}
}

// DefaultMySQLSettings mirrors the desktop form defaults.
func DefaultMySQLSettings() MySQLSettings {
	return MySQLSettings{
		CharacterSet: "utf8mb4",
		Collation:    "utf8mb4_unicode_ci",
	}
}

// DefaultRedisSettings mirrors the desktop form defaults.
func DefaultRedisSettings() RedisSettings {
	return RedisSettings{MaxMemoryPolicy: "noeviction"}
}

// DefaultMongoSettings mirrors the desktop form defaults.
func DefaultMongoSettings() MongoSettings {
	return MongoSettings{AuthSource: "admin"}
}
