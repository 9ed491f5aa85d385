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
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/dockdb/cmd/dockdb/config"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/api"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/reconcile"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/telemetry"
	"github.com/AleutianAI/dockdb/pkg/extensions"
)

const (
	shutdownTimeout  = 10 * time.Second
	badgerGCInterval = 10 * time.Minute
)

// runServe serves the HTTP API until interrupted.
//
// # Description
//
// Holds the process lock for its whole life, so CLI commands that open the
// store fail with "another dockdb instance is running" while it serves.
// Shutdown order: HTTP server, reconcile loop, telemetry, store.
func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, loadedConfig, appOptions{
		Service:    "dockdb-serve",
		Console:    true,
		GCInterval: badgerGCInterval,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger.Slog()

	tcfg := loadedConfig.Telemetry
	tcfg.ServiceName = "dockdb"
	tcfg.ServiceVersion = version
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if !noReconcile {
		if _, err := a.orch.Sync(ctx); err != nil {
			logger.Warn("initial reconciliation failed", "error", err)
		}
		loop := reconcile.NewLoop(a.orch.Reconciler(), loadedConfig.Reconcile.Interval)
		loop.Start()
		defer loop.Stop()
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		Service:    a.orch,
		Logger:     logger,
		Metrics:    telemetry.MetricsHandler(),
		Tracing:    tcfg.Traces != "" && tcfg.Traces != telemetry.ExporterNone,
		Extensions: serverExtensions(loadedConfig.Server, logger),
		RateLimit:  loadedConfig.Server.RateLimit,
		Burst:      loadedConfig.Server.Burst,
	})

	addr := loadedConfig.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return api.NewServer(addr, router, logger).Run(ctx, shutdownTimeout)
}

// serverExtensions builds the API's auth and audit from the server config.
func serverExtensions(cfg config.ServerConfig, logger *slog.Logger) extensions.ServiceOptions {
	opts := extensions.DefaultOptions()
	if cfg.Token != "" {
		opts = opts.WithAuth(extensions.NewTokenAuthProvider(cfg.Token))
	}
	if cfg.Audit {
		opts = opts.WithAudit(extensions.NewSlogAuditLogger(logger))
	}
	return opts
}
