// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/engine"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/lifecycle"
)

type handlers struct {
	svc    Service
	logger *slog.Logger
}

// ExecRequest is the body of POST /v1/databases/:id/exec.
type ExecRequest struct {
	Command string `json:"command"`
	Columns int    `json:"columns,omitempty"`
}

// SyncResponse is the body returned by POST /v1/sync.
type SyncResponse struct {
	Changed int `json:"changed"`
	Skipped int `json:"skipped"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) list(c *gin.Context) {
	rs, err := h.svc.List(c.Request.Context())
	if err != nil {
		// The unreconciled records are still worth showing.
		h.logger.Warn("list served without reconciliation", "error", err)
		if rs == nil {
			_ = c.Error(err)
			return
		}
		c.Header("X-Dockdb-Stale", "true")
	}
	c.JSON(http.StatusOK, rs)
}

func (h *handlers) get(c *gin.Context) {
	rec, err := h.svc.Get(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) create(c *gin.Context) {
	var req lifecycle.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.Configuration("Invalid request body: %v", err))
		return
	}
	rec, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *handlers) update(c *gin.Context) {
	var req lifecycle.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.Configuration("Invalid request body: %v", err))
		return
	}
	rec, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) remove(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) start(c *gin.Context) {
	rec, err := h.svc.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) stop(c *gin.Context) {
	rec, err := h.svc.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) logs(c *gin.Context) {
	tail := engine.DefaultLogTail
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = c.Error(apperr.Configuration("tail must be a non-negative integer"))
			return
		}
		tail = n
	}
	out, err := h.svc.Logs(c.Request.Context(), c.Param("id"), tail)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.String(http.StatusOK, out)
}

func (h *handlers) exec(c *gin.Context) {
	var req ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.Configuration("Invalid request body: %v", err))
		return
	}
	if req.Columns <= 0 {
		req.Columns = engine.DefaultColumns
	}
	res, err := h.svc.Exec(c.Request.Context(), c.Param("id"), req.Command, req.Columns)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) uri(c *gin.Context) {
	uri, err := h.svc.ConnectionURI(c.Param("id"), c.Query("host"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uri": uri})
}

func (h *handlers) sync(c *gin.Context) {
	res, err := h.svc.Sync(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Changed: len(res.Changes), Skipped: res.Skipped})
}

func (h *handlers) engineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.EngineStatus(c.Request.Context()))
}
