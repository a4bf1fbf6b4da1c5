// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

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

var tracer = otel.Tracer("sentinel.server")

var (
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "server",
		Name:      "analysis_duration_seconds",
		Help:      "Wall time of full analysis runs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	analysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "server",
		Name:      "analysis_runs_total",
		Help:      "Analysis runs, by outcome.",
	}, []string{"outcome"})

	progressSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "server",
		Name:      "progress_subscribers",
		Help:      "Connected build progress websocket clients.",
	})
)

// startAnalysisSpan opens the tracing span for one analysis run.
func startAnalysisSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "server.RunAnalysis",
		trace.WithAttributes(
			attribute.String("analysis.root", root),
		))
}

// finishAnalysisSpan records the run outcome on the span.
func finishAnalysisSpan(span trace.Span, snapshotID string, files int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("analysis.snapshot_id", snapshotID),
		attribute.Int("analysis.files", files),
	)
	span.SetStatus(codes.Ok, "")
}

// recordAnalysisMetrics publishes run timing and the outcome counter.
func recordAnalysisMetrics(elapsed time.Duration, err error) {
	analysisDuration.Observe(elapsed.Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	analysisRuns.WithLabelValues(outcome).Inc()
}
