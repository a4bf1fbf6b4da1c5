// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sentinel.query")

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Wall time of graph queries, by operation.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"operation"})

	queryTruncations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "query",
		Name:      "truncations_total",
		Help:      "Graph queries cut short, by operation and reason.",
	}, []string{"operation", "reason"})
)

// startQuerySpan opens the tracing span for one graph query.
func startQuerySpan(ctx context.Context, operation, snapshotID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "query."+operation,
		trace.WithAttributes(
			attribute.String("query.snapshot_id", snapshotID),
		))
}

// finishQuerySpan records the query outcome on the span.
func finishQuerySpan(span trace.Span, size int, reason string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("query.result_size", size),
		attribute.String("query.truncation", reason),
	)
	span.SetStatus(codes.Ok, "")
}

// recordQueryMetrics publishes query timing and truncation counters.
func recordQueryMetrics(operation string, elapsed time.Duration, reason string) {
	queryDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if reason != "" {
		queryTruncations.WithLabelValues(operation, reason).Inc()
	}
}
