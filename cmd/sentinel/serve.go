// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/config"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ingest"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/server"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/telemetry"
)

var (
	flagPort  int
	flagDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Sentinel HTTP server",
	Long:  "Serves the analysis API: snapshot builds, taint scans, graph queries, snapshot management and catalog reloads. Optionally analyzes a configured root at startup and rebuilds on file changes.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug mode (gin request log, verbose errors)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	if flagDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    "sentinel",
		ServiceVersion: version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()
	telemetry.SetBuildInfo(version)

	srv, err := server.NewServer(*cfg,
		server.WithLogger(logger),
		server.WithVersion(version),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("Server close failed", slog.String("error", err.Error()))
		}
	}()

	// Startup analysis runs in the background so the listener comes up
	// immediately; queries return NO_SNAPSHOT until the first build lands.
	if cfg.Analysis.Root != "" {
		go runStartupAnalysis(ctx, srv, logger, cfg.Analysis.Root)
	}

	watcher, err := startWatcher(ctx, cfg, srv, logger)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	if cfg.Catalog.URL != "" && cfg.Catalog.RefreshMinutes > 0 {
		go refreshCatalogLoop(ctx, srv, logger, time.Duration(cfg.Catalog.RefreshMinutes)*time.Minute)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	logger.Info("Starting Aleutian Sentinel server",
		slog.String("address", addr),
		slog.String("version", version))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// A second signal during the grace period kills the process.
	stop()
	logger.Info("Shutting down Aleutian Sentinel server",
		slog.Int("grace_seconds", cfg.Server.ShutdownGraceSeconds))

	grace := time.Duration(cfg.Server.ShutdownGraceSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// runStartupAnalysis builds the first snapshot from the configured root.
func runStartupAnalysis(ctx context.Context, srv *server.Server, logger *slog.Logger, root string) {
	logger.Info("Startup analysis beginning", slog.String("root", root))
	resp, err := srv.RunAnalysis(ctx, server.AnalysisRunRequest{Root: root})
	if err != nil {
		logger.Error("Startup analysis failed",
			slog.String("root", root),
			slog.String("error", err.Error()))
		return
	}
	logger.Info("Startup analysis complete",
		slog.String("snapshot_id", resp.SnapshotID),
		slog.Int("files", resp.Graph.Files),
		slog.Int("nodes", resp.Graph.Nodes),
		slog.Int("edges", resp.Graph.Edges))
}

// startWatcher wires filesystem-triggered rebuilds when watch mode is on.
// Returns nil without error when watch mode is disabled.
func startWatcher(ctx context.Context, cfg *config.Config, srv *server.Server, logger *slog.Logger) (*ingest.Watcher, error) {
	if !cfg.Analysis.Watch {
		return nil, nil
	}
	if cfg.Analysis.Root == "" {
		return nil, fmt.Errorf("watch mode requires analysis.root")
	}

	onChange := func() {
		_, err := srv.RunAnalysis(ctx, server.AnalysisRunRequest{})
		switch {
		case err == nil:
		case errors.Is(err, server.ErrAnalysisInFlight):
			// The running build picks up a consistent tree; the next
			// debounce window covers whatever it missed.
			logger.Debug("Watch rebuild skipped, analysis already running")
		case ctx.Err() != nil:
		default:
			logger.Warn("Watch rebuild failed", slog.String("error", err.Error()))
		}
	}

	watcher, err := ingest.NewWatcher(cfg.Analysis.Root, srv.Registry(), onChange,
		ingest.WithDebounce(time.Duration(cfg.Analysis.DebounceMillis)*time.Millisecond),
		ingest.WithWatchLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	go func() {
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Watcher stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("Watch mode enabled",
		slog.String("root", cfg.Analysis.Root),
		slog.Int("debounce_millis", cfg.Analysis.DebounceMillis))
	return watcher, nil
}

// refreshCatalogLoop re-fetches the remote rulepack on the configured
// interval. A failed refresh keeps the current bundle.
func refreshCatalogLoop(ctx context.Context, srv *server.Server, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		resp, err := srv.ReloadCatalog(ctx, server.CatalogReloadRequest{})
		if err != nil {
			logger.Warn("Catalog refresh failed, keeping current bundle",
				slog.String("error", err.Error()))
			continue
		}
		logger.Info("Catalog refreshed",
			slog.String("name", resp.Manifest.Name),
			slog.String("version", resp.Manifest.Version))
	}
}

func printBanner(cfg *config.Config) {
	port := cfg.Server.Port

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                     ALEUTIAN SENTINEL SERVER                      ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Cross-file dependence graphs and taint analysis.                 ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/healthz                       │  ║
║  │                                                             │  ║
║  │ # Build a snapshot and scan it                              │  ║
║  │ curl -X POST http://localhost:%d/v1/analysis/run \     │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"root": "/your/project/path", "scan": true}'         │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Analysis: /v1/analysis/run, /v1/analysis/progress (ws)      ║
║  ├── Taint: /v1/taint/scan (?format=sarif)                       ║
║  ├── Query: /v1/query/{neighborhood,callgraph,dependencies}      ║
║  ├── Snapshots: /v1/snapshots, /v1/snapshots/diff                ║
║  └── Catalog: /v1/catalog/reload, /v1/symbols/search             ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port)
}
