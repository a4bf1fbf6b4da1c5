// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sentinel.ast")

var (
	parseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "ast",
			Name:      "parse_total",
			Help:      "Total normalization attempts by language and outcome.",
		},
		[]string{"language", "status"},
	)

	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "ast",
			Name:      "parse_duration_seconds",
			Help:      "Wall time spent normalizing a single file.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"language"},
	)

	nodesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "ast",
			Name:      "nodes_extracted_total",
			Help:      "Normalized nodes emitted, by language.",
		},
		[]string{"language"},
	)
)

// startParseSpan opens the tracing span shared by all parsers.
func startParseSpan(ctx context.Context, language, filePath string, size int) (context.Context, oteltrace.Span) {
	return tracer.Start(ctx, "ast.parse",
		oteltrace.WithAttributes(
			attribute.String("language", language),
			attribute.String("file", filePath),
			attribute.Int("size_bytes", size),
		))
}

// setParseSpanResult attaches the outcome attributes to a parse span.
func setParseSpanResult(span oteltrace.Span, nodeCount int, syntaxOK bool) {
	span.SetAttributes(
		attribute.Int("nodes", nodeCount),
		attribute.Bool("syntax_ok", syntaxOK),
	)
}

// recordParseMetrics records the Prometheus side of one parse attempt.
func recordParseMetrics(language string, elapsed time.Duration, nodeCount int, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	parseTotal.WithLabelValues(language, status).Inc()
	parseDuration.WithLabelValues(language).Observe(elapsed.Seconds())
	if nodeCount > 0 {
		nodesExtracted.WithLabelValues(language).Add(float64(nodeCount))
	}
}
