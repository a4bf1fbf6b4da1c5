// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symbols

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

var tracer = otel.Tracer("sentinel.symbols")

var (
	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "symbols",
		Name:      "resolve_duration_seconds",
		Help:      "Wall time of full symbol resolution passes.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	resolveSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "symbols",
		Name:      "resolved_symbols",
		Help:      "Canonical symbols registered by the last resolution pass.",
	})

	resolveUnresolved = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "symbols",
		Name:      "unresolved_bindings",
		Help:      "Bindings left unresolved by the last resolution pass.",
	})

	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "symbols",
		Name:      "searches_total",
		Help:      "Symbol index searches by status.",
	}, []string{"status"})
)

// startResolveSpan opens the tracing span for a resolution pass.
func startResolveSpan(ctx context.Context, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "symbols.Resolve",
		trace.WithAttributes(
			attribute.Int("symbols.file_count", fileCount),
		))
}

// setResolveSpanResult records the outcome on the span.
func setResolveSpanResult(span trace.Span, symbolCount, unresolved int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("symbols.count", symbolCount),
		attribute.Int("symbols.unresolved", unresolved),
	)
	span.SetStatus(codes.Ok, "")
}

// recordResolveMetrics publishes resolution gauges and timing.
func recordResolveMetrics(elapsed time.Duration, symbolCount, unresolved int) {
	resolveDuration.Observe(elapsed.Seconds())
	resolveSymbols.Set(float64(symbolCount))
	resolveUnresolved.Set(float64(unresolved))
}
