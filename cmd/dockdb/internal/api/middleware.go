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
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/pkg/extensions"
)

// TypeUnauthorized is the error_type of a rejected bearer token. It belongs
// to the HTTP surface only; no lifecycle operation returns it.
const TypeUnauthorized apperr.Type = "UNAUTHORIZED"

// TypeRateLimited is the error_type of a request refused by the limiter.
const TypeRateLimited apperr.Type = "RATE_LIMITED"

// userKey holds the caller's user id in the gin context.
const userKey = "dockdb.user"

// authMiddleware validates the bearer token of every request.
func authMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Wire{
				ErrorType: TypeUnauthorized,
				Message:   err.Error(),
			})
			return
		}
		c.Set(userKey, info.UserID)
		c.Next()
	}
}

// auditActions maps mutating routes to audit actions.
var auditActions = map[string]string{
	http.MethodPost + " /v1/databases":           "create",
	http.MethodPut + " /v1/databases/:id":        "update",
	http.MethodDelete + " /v1/databases/:id":     "remove",
	http.MethodPost + " /v1/databases/:id/start": "start",
	http.MethodPost + " /v1/databases/:id/stop":  "stop",
	http.MethodPost + " /v1/databases/:id/exec":  "exec",
	http.MethodPost + " /v1/sync":                "sync",
}

// auditMiddleware records one event per mutating request once its handler
// has finished. It runs inside ErrorHandler, so the outcome is read from
// c.Errors rather than the response status.
func auditMiddleware(audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		action, ok := auditActions[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		event := extensions.AuditEvent{
			EventType:    "database." + action,
			UserID:       c.GetString(userKey),
			Action:       action,
			ResourceType: "database",
			ResourceID:   c.Param("id"),
			Outcome:      extensions.OutcomeSuccess,
			Metadata:     map[string]any{"duration_ms": time.Since(start).Milliseconds()},
		}
		if action == "sync" {
			event.ResourceType = "records"
		}
		if last := c.Errors.Last(); last != nil {
			event.Outcome = extensions.OutcomeFailure
			event.ErrorType = string(apperr.ToWire(last.Err).ErrorType)
			event.Metadata["status"] = StatusFor(last.Err)
		}
		_ = audit.Log(c.Request.Context(), event)
	}
}

// rateLimitMiddleware refuses mutating requests beyond limiter's rate. Reads
// are never limited.
func rateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || limiter.Allow() {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, apperr.Wire{
			ErrorType: TypeRateLimited,
			Message:   "Too many requests, try again shortly",
		})
	}
}
