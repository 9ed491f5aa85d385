// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent records one lifecycle operation.
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "database.update",
//	    UserID:       authInfo.UserID,
//	    Action:       "update",
//	    ResourceType: "database",
//	    ResourceID:   id,
//	    Outcome:      OutcomeFailure,
//	    ErrorType:    "PORT_IN_USE",
//	}
type AuditEvent struct {
	// EventType is "category.action", e.g. "database.create".
	EventType string

	// Timestamp is when the operation finished. If zero, implementations
	// set it to time.Now().UTC().
	Timestamp time.Time

	// UserID is the caller from AuthProvider.
	UserID string

	// Action is the operation: create, update, remove, start, stop, exec, sync.
	Action string

	// ResourceType is "database" or "records".
	ResourceType string

	// ResourceID is the database id, empty for sync.
	ResourceID string

	// Outcome is OutcomeSuccess or OutcomeFailure.
	Outcome string

	// ErrorType is the wire error type of a failure.
	ErrorType string

	// Metadata holds extra attributes, e.g. "status" or "duration_ms".
	Metadata map[string]any
}

// AuditLogger records lifecycle operations.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Log should return quickly; it runs on the request path.
type AuditLogger interface {
	// Log records an event.
	Log(ctx context.Context, event AuditEvent) error

	// Flush persists buffered events. Called once on shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error { return nil }
func (l *NopAuditLogger) Flush(ctx context.Context) error                 { return nil }

// SlogAuditLogger writes each event as an "audit" record at info level, so
// the trail lands wherever the server's logs go (file, exporter).
type SlogAuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewSlogAuditLogger creates an audit logger over logger.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	return &SlogAuditLogger{logger: logger.With("component", "audit"), now: time.Now}
}

// Log writes event.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	attrs := []any{
		"event_type", event.EventType,
		"timestamp", event.Timestamp.Format(time.RFC3339Nano),
		"user_id", event.UserID,
		"action", event.Action,
		"resource_type", event.ResourceType,
		"outcome", event.Outcome,
	}
	if event.ResourceID != "" {
		attrs = append(attrs, "resource_id", event.ResourceID)
	}
	if event.ErrorType != "" {
		attrs = append(attrs, "error_type", event.ErrorType)
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// Flush is a no-op; the logger owns its buffers.
func (l *SlogAuditLogger) Flush(ctx context.Context) error { return nil }

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
