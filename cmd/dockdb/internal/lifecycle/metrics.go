// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
)

var (
	tracer = otel.Tracer("dockdb.lifecycle")
	meter  = otel.Meter("dockdb.lifecycle")
)

var (
	opLatency metric.Float64Histogram
	opTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opLatency, err = meter.Float64Histogram(
			"dockdb_lifecycle_operation_duration_seconds",
			metric.WithDescription("Duration of lifecycle operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opTotal, err = meter.Int64Counter(
			"dockdb_lifecycle_operations_total",
			metric.WithDescription("Lifecycle operations by operation and outcome"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// startOperation opens a span for op and returns the function that ends it
// and records metrics. Pass the operation's final error to the returned
// function.
func startOperation(ctx context.Context, op, recordID string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "lifecycle."+op,
		trace.WithAttributes(
			attribute.String("lifecycle.operation", op),
			attribute.String("lifecycle.record_id", recordID),
		),
	)
	start := time.Now()

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.ToWire(err).ErrorType)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("lifecycle.outcome", outcome))
		span.End()

		if initMetrics() != nil {
			return
		}
		attrs := metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		)
		opLatency.Record(ctx, time.Since(start).Seconds(), attrs)
		opTotal.Add(ctx, 1, attrs)
	}
}
