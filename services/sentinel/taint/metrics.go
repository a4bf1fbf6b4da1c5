// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package taint

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

var tracer = otel.Tracer("sentinel.taint")

var (
	propagateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "taint",
		Name:      "propagate_duration_seconds",
		Help:      "Wall time of full taint propagation runs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "taint",
		Name:      "findings_total",
		Help:      "Findings emitted, by vulnerability class.",
	}, []string{"class"})

	truncationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "taint",
		Name:      "truncations_total",
		Help:      "Propagation runs cut short, by reason.",
	}, []string{"reason"})
)

// startPropagateSpan opens the tracing span for one propagation run.
func startPropagateSpan(ctx context.Context, snapshotID string, seeds int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "taint.Propagate",
		trace.WithAttributes(
			attribute.String("taint.snapshot_id", snapshotID),
			attribute.Int("taint.seeds", seeds),
		))
}

// setPropagateSpanResult records the run outcome on the span.
func setPropagateSpanResult(span trace.Span, res *Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("taint.findings", len(res.Findings)),
		attribute.Int("taint.visited_pairs", res.Stats.VisitedPairs),
		attribute.Bool("taint.truncated", res.Truncated),
	)
	span.SetStatus(codes.Ok, "")
}

// recordPropagateMetrics publishes run timing and finding counters.
func recordPropagateMetrics(elapsed time.Duration, res *Result) {
	propagateDuration.Observe(elapsed.Seconds())
	for _, f := range res.Findings {
		findingsTotal.WithLabelValues(string(f.Class)).Inc()
	}
	if res.Truncated {
		truncationsTotal.WithLabelValues(res.TruncationReason).Inc()
	}
}
