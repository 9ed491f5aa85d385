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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
)

// StatusFor maps a classified error to its HTTP status.
func StatusFor(err error) int {
	switch apperr.TypeOf(err) {
	case apperr.TypeConfiguration:
		return http.StatusBadRequest
	case apperr.TypeNotFound:
		return http.StatusNotFound
	case apperr.TypePortInUse, apperr.TypeNameInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders the last error attached with c.Error as an
// apperr.Wire payload.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := StatusFor(err)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.FullPath(), "error", err)
		} else {
			logger.Debug("request rejected", "path", c.FullPath(), "error", err)
		}

		if c.Writer.Written() {
			logger.Warn("response already written before error handling", "path", c.FullPath())
			return
		}
		c.AbortWithStatusJSON(status, apperr.ToWire(err))
	}
}
