// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for engine invocations.
var (
	tracer = otel.Tracer("dockdb.engine")
	meter  = otel.Meter("dockdb.engine")
)

var (
	callLatency metric.Float64Histogram
	callTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		callLatency, err = meter.Float64Histogram(
			"dockdb_engine_call_duration_seconds",
			metric.WithDescription("Duration of container engine invocations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callTotal, err = meter.Int64Counter(
			"dockdb_engine_calls_total",
			metric.WithDescription("Container engine invocations by verb and outcome"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// startVerbSpan creates a span for one engine invocation.
func startVerbSpan(ctx context.Context, verb string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine."+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("engine.verb", verb)),
	)
}

// endVerbSpan records the outcome on span and ends it.
func endVerbSpan(span trace.Span, exitCode int, err error) {
	span.SetAttributes(attribute.Int("engine.exit_code", exitCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordVerbMetrics records one engine invocation.
func recordVerbMetrics(ctx context.Context, verb, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("verb", verb),
		attribute.String("outcome", outcome),
	)
	callLatency.Record(ctx, duration.Seconds(), attrs)
	callTotal.Add(ctx, 1, attrs)
}
