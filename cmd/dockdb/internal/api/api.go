// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the lifecycle operations over HTTP.
//
// # Routes
//
//	GET    /healthz
//	GET    /metrics
//	GET    /v1/databases
//	POST   /v1/databases
//	GET    /v1/databases/:id
//	PUT    /v1/databases/:id
//	DELETE /v1/databases/:id
//	POST   /v1/databases/:id/start
//	POST   /v1/databases/:id/stop
//	GET    /v1/databases/:id/logs?tail=N
//	POST   /v1/databases/:id/exec
//	GET    /v1/databases/:id/uri?host=H
//	POST   /v1/sync
//	GET    /v1/engine/status
//
// Failures are answered with an apperr.Wire body; see StatusFor for the
// status codes. Routes under /v1 pass the configured AuthProvider first and
// mutating ones are recorded by the AuditLogger.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/lifecycle"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/reconcile"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/pkg/extensions"
)

// Service is the set of operations served over HTTP. *lifecycle.Orchestrator
// implements it.
type Service interface {
	List(ctx context.Context) ([]records.Record, error)
	Get(id string) (records.Record, error)
	Create(ctx context.Context, req lifecycle.Request) (records.Record, error)
	Update(ctx context.Context, id string, req lifecycle.Request) (records.Record, error)
	Remove(ctx context.Context, id string) error
	Start(ctx context.Context, id string) (records.Record, error)
	Stop(ctx context.Context, id string) (records.Record, error)
	Logs(ctx context.Context, id string, tail int) (string, error)
	Exec(ctx context.Context, id, command string, columns int) (engine.ExecResult, error)
	Sync(ctx context.Context) (reconcile.Result, error)
	EngineStatus(ctx context.Context) engine.EngineStatus
	ConnectionURI(id, host string) (string, error)
}

var _ Service = (*lifecycle.Orchestrator)(nil)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Service Service
	Logger  *slog.Logger

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// Tracing adds otelgin spans to every request.
	Tracing bool

	// Extensions authenticates and audits /v1. Zero value: no-ops.
	Extensions extensions.ServiceOptions

	// RateLimit bounds mutating /v1 requests per second. Zero disables.
	RateLimit float64
	Burst     int
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Tracing {
		router.Use(otelgin.Middleware("dockdb"))
	}
	router.Use(requestLogger(cfg.Logger), ErrorHandler(cfg.Logger))

	h := &handlers{svc: cfg.Service, logger: cfg.Logger}

	router.GET("/healthz", h.health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	ext := cfg.Extensions.Normalize()
	v1 := router.Group("/v1", authMiddleware(ext.AuthProvider))
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		v1.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
	}
	v1.Use(auditMiddleware(ext.AuditLogger))
	{
		dbs := v1.Group("/databases")
		{
			dbs.GET("", h.list)
			dbs.POST("", h.create)
			dbs.GET("/:id", h.get)
			dbs.PUT("/:id", h.update)
			dbs.DELETE("/:id", h.remove)
			dbs.POST("/:id/start", h.start)
			dbs.POST("/:id/stop", h.stop)
			dbs.GET("/:id/logs", h.logs)
			dbs.POST("/:id/exec", h.exec)
			dbs.GET("/:id/uri", h.uri)
		}
		v1.POST("/sync", h.sync)
		v1.GET("/engine/status", h.engineStatus)
	}
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// =============================================================================
// Server
// =============================================================================

// Server serves a router until its context is cancelled.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer binds handler to addr. Nothing listens until Run.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run listens until ctx is done, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
