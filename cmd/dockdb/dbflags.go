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
	"crypto/rand"

	"github.com/spf13/pflag"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/runspec"
)

// defaultVersions are the image tags used when --version is not given.
var defaultVersions = map[records.Kind]string{
	records.KindPostgreSQL: "16",
	records.KindMySQL:      "8.4",
	records.KindRedis:      "7.4",
	records.KindMongoDB:    "7.0",
}

// dbFlags are the database settings shared by create and update. Only the
// flags the user changed are applied, so update keeps everything else.
type dbFlags struct {
	kind           string
	version        string
	port           int
	user           string
	password       string
	database       string
	persist        bool
	auth           bool
	maxConnections int

	pgInitdbArgs string
	pgHostAuth   string

	mysqlCharset   string
	mysqlCollation string

	redisMaxMemory  string
	redisPolicy     string
	redisAppendOnly bool

	mongoAuthSource string
	mongoSharding   bool
}

func newDBFlags() *dbFlags { return &dbFlags{} }

func (f *dbFlags) register(fs *pflag.FlagSet, defaultKind string) {
	fs.StringVarP(&f.kind, "type", "t", defaultKind, "Database type: postgres, mysql, redis or mongodb")
	fs.StringVar(&f.version, "version", "", "Image tag (default depends on the type)")
	fs.IntVarP(&f.port, "port", "p", 0, "Host port (default: the type's standard port)")
	fs.StringVarP(&f.user, "user", "u", "", "Database user")
	fs.StringVar(&f.password, "password", "", "Password (generated when empty)")
	fs.StringVar(&f.database, "db", "", "Database to create")
	fs.BoolVar(&f.persist, "persist", false, "Keep data in a named volume")
	fs.BoolVar(&f.auth, "auth", false, "Require authentication (Redis, MongoDB)")
	fs.IntVar(&f.maxConnections, "max-connections", records.DefaultMaxConnections, "Maximum client connections")

	fs.StringVar(&f.pgInitdbArgs, "pg-initdb-args", "", "PostgreSQL: POSTGRES_INITDB_ARGS")
	fs.StringVar(&f.pgHostAuth, "pg-host-auth", "", "PostgreSQL: POSTGRES_HOST_AUTH_METHOD (default md5)")

	fs.StringVar(&f.mysqlCharset, "mysql-charset", "", "MySQL: server character set (default utf8mb4)")
	fs.StringVar(&f.mysqlCollation, "mysql-collation", "", "MySQL: server collation (default utf8mb4_unicode_ci)")

	fs.StringVar(&f.redisMaxMemory, "redis-maxmemory", "", "Redis: maxmemory, e.g. 256mb")
	fs.StringVar(&f.redisPolicy, "redis-maxmemory-policy", "", "Redis: maxmemory-policy (default noeviction)")
	fs.BoolVar(&f.redisAppendOnly, "redis-appendonly", false, "Redis: enable AOF persistence")

	fs.StringVar(&f.mongoAuthSource, "mongo-auth-source", "", "MongoDB: authSource of the connection URL (default admin)")
	fs.BoolVar(&f.mongoSharding, "mongo-sharding", false, "MongoDB: record sharding as enabled")
}

// createConfig builds the configuration of a new database named name from
// the kind's defaults and the changed flags.
func (f *dbFlags) createConfig(fs *pflag.FlagSet, name string) (runspec.Config, *int, error) {
	kind, err := parseKind(f.kind)
	if err != nil {
		return runspec.Config{}, nil, err
	}
	profile, err := runspec.ProfileFor(kind)
	if err != nil {
		return runspec.Config{}, nil, err
	}

	cfg := runspec.Config{
		Name:    name,
		Kind:    kind,
		Version: defaultVersions[kind],
		Port:    profile.DefaultPort(),
	}
	setKindDefaults(&cfg)

	maxConns, err := f.apply(fs, &cfg)
	if err != nil {
		return runspec.Config{}, nil, err
	}
	if cfg.Password == "" {
		cfg.Password = rand.Text()
	}
	if maxConns == nil {
		n := records.DefaultMaxConnections
		maxConns = &n
	}
	return cfg, maxConns, nil
}

// apply copies the changed flags into cfg. The returned pointer is non-nil
// when --max-connections was given.
func (f *dbFlags) apply(fs *pflag.FlagSet, cfg *runspec.Config) (*int, error) {
	if fs.Changed("type") {
		kind, err := parseKind(f.kind)
		if err != nil {
			return nil, err
		}
		cfg.Kind = kind
	}
	str := func(flag string, src string, dst *string) {
		if fs.Changed(flag) {
			*dst = src
		}
	}
	boolean := func(flag string, src bool, dst *bool) {
		if fs.Changed(flag) {
			*dst = src
		}
	}

	str("version", f.version, &cfg.Version)
	str("user", f.user, &cfg.Username)
	str("password", f.password, &cfg.Password)
	str("db", f.database, &cfg.DatabaseName)
	boolean("persist", f.persist, &cfg.PersistData)
	boolean("auth", f.auth, &cfg.EnableAuth)
	if fs.Changed("port") {
		cfg.Port = f.port
	}

	if anyChanged(fs, "pg-initdb-args", "pg-host-auth") {
		if cfg.Postgres == nil {
			d := runspec.DefaultPostgresSettings()
			cfg.Postgres = &d
		}
		str("pg-initdb-args", f.pgInitdbArgs, &cfg.Postgres.InitdbArgs)
		str("pg-host-auth", f.pgHostAuth, &cfg.Postgres.HostAuthMethod)
	}
	if anyChanged(fs, "mysql-charset", "mysql-collation") {
		if cfg.MySQL == nil {
			d := runspec.DefaultMySQLSettings()
			cfg.MySQL = &d
		}
		str("mysql-charset", f.mysqlCharset, &cfg.MySQL.CharacterSet)
		str("mysql-collation", f.mysqlCollation, &cfg.MySQL.Collation)
	}
	if anyChanged(fs, "redis-maxmemory", "redis-maxmemory-policy", "redis-appendonly") {
		if cfg.Redis == nil {
			d := runspec.DefaultRedisSettings()
			cfg.Redis = &d
		}
		str("redis-maxmemory", f.redisMaxMemory, &cfg.Redis.MaxMemory)
		str("redis-maxmemory-policy", f.redisPolicy, &cfg.Redis.MaxMemoryPolicy)
		boolean("redis-appendonly", f.redisAppendOnly, &cfg.Redis.AppendOnly)
	}
	if anyChanged(fs, "mongo-auth-source", "mongo-sharding") {
		if cfg.Mongo == nil {
			d := runspec.DefaultMongoSettings()
			cfg.Mongo = &d
		}
		str("mongo-auth-source", f.mongoAuthSource, &cfg.Mongo.AuthSource)
		boolean("mongo-sharding", f.mongoSharding, &cfg.Mongo.EnableSharding)
	}

	if fs.Changed("max-connections") {
		n := f.maxConnections
		return &n, nil
	}
	return nil, nil
}

// setKindDefaults gives cfg the default settings of its kind.
func setKindDefaults(cfg *runspec.Config) {
	switch cfg.Kind {
	case records.KindPostgreSQL:
		d := runspec.DefaultPostgresSettings()
		cfg.Postgres = &d
	case records.KindMySQL:
		d := runspec.DefaultMySQLSettings()
		cfg.MySQL = &d
	case records.KindRedis:
		d := runspec.DefaultRedisSettings()
		cfg.Redis = &d
	case records.KindMongoDB:
		d := runspec.DefaultMongoSettings()
		cfg.Mongo = &d
	}
}

func parseKind(s string) (records.Kind, error) {
	kind, err := records.ParseKind(s)
	if err != nil {
		return "", apperr.Configuration("Unsupported database type: %q", s)
	}
	return kind, nil
}

func anyChanged(fs *pflag.FlagSet, names ...string) bool {
	for _, n := range names {
		if fs.Changed(n) {
			return true
		}
	}
	return false
}
