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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/dockdb/pkg/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCKDB_"

var configValidate = validator.New()

// DefaultPath returns ~/.dockdb/dockdb.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".dockdb", "dockdb.yaml"), nil
}

// Load reads the configuration at path, creating it with defaults on first
// run, then applies DOCKDB_* environment overrides and validates the
// result. An empty path means DefaultPath. Notices go to notice.
func Load(path string, notice io.Writer) (DockdbConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return DockdbConfig{}, err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if notice != nil {
			fmt.Fprintf(notice, "First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return DockdbConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DockdbConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	// Missing keys keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DockdbConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return DockdbConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return DockdbConfig{}, err
	}

	cfg.Store.Dir = logging.ExpandPath(cfg.Store.Dir)
	cfg.Logging.Dir = logging.ExpandPath(cfg.Logging.Dir)
	cfg.Logging.ExportPath = logging.ExpandPath(cfg.Logging.ExportPath)
	return cfg, nil
}

// Validate checks field values.
func (c DockdbConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: %q fails %s", strings.TrimPrefix(fe.Namespace(), "DockdbConfig."), fmt.Sprint(fe.Value()), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv overlays DOCKDB_* variables.
func applyEnv(cfg *DockdbConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
		return nil
	}

	str("ENGINE_BINARY", &cfg.Engine.Binary)
	str("HELPER_IMAGE", &cfg.Engine.HelperImage)
	str("STORE_BACKEND", &cfg.Store.Backend)
	str("STORE_DIR", &cfg.Store.Dir)
	str("SERVER_ADDR", &cfg.Server.Addr)
	str("SERVER_TOKEN", &cfg.Server.Token)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_DIR", &cfg.Logging.Dir)

	return errors.Join(
		boolean("RESOLVE_LOGIN_PATH", &cfg.Engine.ResolveLoginPath),
		boolean("LOG_JSON", &cfg.Logging.JSON),
		boolean("SERVER_AUDIT", &cfg.Server.Audit),
		duration("STEP_TIMEOUT", &cfg.Engine.StepTimeout),
		duration("RECONCILE_INTERVAL", &cfg.Reconcile.Interval),
	)
}
