// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sentinel.ingest")

var (
	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full discover+normalize pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	filesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files seen by the pipeline, by outcome.",
		},
		[]string{"outcome"},
	)

	rebuildTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "ingest",
			Name:      "watch_triggers_total",
			Help:      "Debounced rebuild triggers fired by the file watcher.",
		},
	)
)

// startRunSpan opens the span covering one pipeline run.
func startRunSpan(ctx context.Context, root string) (context.Context, oteltrace.Span) {
	return tracer.Start(ctx, "ingest.run",
		oteltrace.WithAttributes(attribute.String("root", root)))
}

// setRunSpanResult attaches the per-outcome counts to a run span.
func setRunSpanResult(span oteltrace.Span, res *Result) {
	if res == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("discovered", res.Stats.Discovered),
		attribute.Int("parsed", res.Stats.Parsed),
		attribute.Int("reused", res.Stats.Reused),
		attribute.Int("failed", res.Stats.Failed),
		attribute.Bool("truncated", res.Truncated),
	)
}

// recordRunMetrics records the Prometheus side of one pipeline run.
func recordRunMetrics(elapsed time.Duration, res *Result) {
	runDuration.Observe(elapsed.Seconds())
	if res == nil {
		return
	}
	filesProcessed.WithLabelValues("parsed").Add(float64(res.Stats.Parsed))
	filesProcessed.WithLabelValues("reused").Add(float64(res.Stats.Reused))
	filesProcessed.WithLabelValues("skipped").Add(float64(res.Stats.Skipped))
	filesProcessed.WithLabelValues("failed").Add(float64(res.Stats.Failed))
}
