// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the global OpenTelemetry providers.
//
// Every analysis package creates spans and Prometheus collectors against
// the globals; nothing is emitted until Setup installs real providers.
// Setup is called once at process start.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter kinds accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Options configures Setup.
type Options struct {
	// ServiceName identifies the process in telemetry. Defaults to
	// "sentinel".
	ServiceName string

	// ServiceVersion is the build version attached to the resource.
	ServiceVersion string

	// TraceExporter selects the span exporter: ExporterNone leaves the
	// global tracer a no-op, ExporterStdout prints batched spans.
	TraceExporter string

	// SampleRatio is the parent-based sampling ratio, clamped to [0, 1].
	SampleRatio float64

	// Registerer receives the OTel metric bridge collectors. Defaults to
	// the process-wide Prometheus registerer.
	Registerer prometheus.Registerer

	// Logger receives setup progress. Defaults to slog.Default.
	Logger *slog.Logger
}

// Setup installs the global tracer, meter and propagator.
//
// Description:
//
//	Always installs W3C trace-context propagation and a Prometheus-backed
//	meter provider, so OTel instrumentation lands on /metrics alongside
//	the package collectors. A tracer provider is installed only when an
//	exporter is selected.
//
// Outputs:
//
//	func(context.Context) error - Flushes and shuts down the installed
//	providers. Always safe to call.
//	error - Non-nil for an unknown exporter or exporter construction
//	failure.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "sentinel"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	ratio := opts.SampleRatio
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.ServiceVersion),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	bridge, err := otelprom.New(otelprom.WithRegisterer(opts.Registerer))
	if err != nil {
		return nil, fmt.Errorf("telemetry: prometheus bridge: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(bridge),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	var tracerProvider *sdktrace.TracerProvider
	switch opts.TraceExporter {
	case "", ExporterNone:
		// Global tracer stays a no-op.
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			shutdownErr := meterProvider.Shutdown(ctx)
			return nil, errors.Join(fmt.Errorf("telemetry: stdout exporter: %w", err), shutdownErr)
		}
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		)
		otel.SetTracerProvider(tracerProvider)
	default:
		shutdownErr := meterProvider.Shutdown(ctx)
		return nil, errors.Join(fmt.Errorf("telemetry: unknown trace exporter %q", opts.TraceExporter), shutdownErr)
	}

	opts.Logger.Info("telemetry initialized",
		slog.String("service", opts.ServiceName),
		slog.String("trace_exporter", exporterName(opts.TraceExporter)),
		slog.Float64("sample_ratio", ratio))

	shutdown := func(ctx context.Context) error {
		var errs []error
		if tracerProvider != nil {
			errs = append(errs, tracerProvider.Shutdown(ctx))
		}
		errs = append(errs, meterProvider.Shutdown(ctx))
		return errors.Join(errs...)
	}
	return shutdown, nil
}

// exporterName normalizes the empty exporter for logging.
func exporterName(kind string) string {
	if kind == "" {
		return ExporterNone
	}
	return kind
}
