// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pdg

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

var tracer = otel.Tracer("sentinel.pdg")

var (
	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "pdg",
		Name:      "build_duration_seconds",
		Help:      "Wall time of full dependence graph builds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "pdg",
		Name:      "graph_nodes",
		Help:      "Nodes in the most recently built graph.",
	})

	graphEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "pdg",
		Name:      "graph_edges",
		Help:      "Edges in the most recently built graph, by type.",
	}, []string{"type"})

	snapshotOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "pdg",
		Name:      "snapshot_operations_total",
		Help:      "Snapshot store operations by kind and status.",
	}, []string{"operation", "status"})
)

// startBuildSpan opens the tracing span for a graph build.
func startBuildSpan(ctx context.Context, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pdg.Build",
		trace.WithAttributes(
			attribute.Int("pdg.file_count", fileCount),
		))
}

// setBuildSpanResult records the build outcome on the span.
func setBuildSpanResult(span trace.Span, stats Stats, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("pdg.nodes", stats.Nodes),
		attribute.Int("pdg.edges", stats.Edges),
		attribute.Int("pdg.cross_file_edges", stats.CrossFileEdges),
	)
	span.SetStatus(codes.Ok, "")
}

// recordBuildMetrics publishes build gauges and timing.
func recordBuildMetrics(elapsed time.Duration, stats Stats) {
	buildDuration.Observe(elapsed.Seconds())
	graphNodes.Set(float64(stats.Nodes))
	for typ, count := range stats.EdgesByType {
		graphEdges.WithLabelValues(string(typ)).Set(float64(count))
	}
}

// recordSnapshotOp counts one snapshot store operation.
func recordSnapshotOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	snapshotOps.WithLabelValues(operation, status).Inc()
}
