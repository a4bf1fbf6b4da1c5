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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/config"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ingest"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/limits"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/query"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/symbols"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/taint"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/telemetry"
)

var (
	// ErrAnalysisInFlight rejects a run while another is still building.
	ErrAnalysisInFlight = errors.New("an analysis run is already in flight")

	// ErrNoSnapshot rejects operations that need a snapshot before the
	// first successful analysis.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrNoRoot rejects a run with neither a request root nor a
	// configured one.
	ErrNoRoot = errors.New("no analysis root supplied or configured")

	// ErrUnknownClass rejects a scan naming a vulnerability class the
	// engine does not model.
	ErrUnknownClass = errors.New("unknown vulnerability class")
)

// analysisState is the product of one analysis run. Swapped atomically;
// readers pin whichever state was current when they started.
type analysisState struct {
	snapshot *pdg.Snapshot
	table    *symbols.Table
	ingest   ingest.Stats
	root     string
}

// Options configure a Server beyond its config file.
type Options struct {
	// Logger receives server lifecycle and request logs. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// DB overrides the badger instance, for tests. The server does not
	// close an injected DB.
	DB *badger.DB

	// Bundle overrides the initial rulepack, for tests.
	Bundle *catalog.Bundle

	// Version is reported by /healthz. Defaults to "dev".
	Version string
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithDB injects an opened badger instance.
func WithDB(db *badger.DB) Option {
	return func(o *Options) { o.DB = db }
}

// WithBundle injects the initial rulepack bundle.
func WithBundle(b *catalog.Bundle) Option {
	return func(o *Options) { o.Bundle = b }
}

// WithVersion sets the version string reported by health checks.
func WithVersion(v string) Option {
	return func(o *Options) { o.Version = v }
}

// Server owns the analysis engine and its HTTP surface.
//
// Description:
//
//	Holds the parser registry, the ingest pipeline, the snapshot store,
//	the active rulepack and the current analysis state. One analysis
//	runs at a time; everything else is served concurrently from
//	immutable snapshots.
//
// Thread Safety: safe for concurrent use.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	registry *ast.Registry
	limits   limits.Limits

	db     *badger.DB
	ownsDB bool
	store  *pdg.SnapshotManager

	pipeline *ingest.Pipeline
	fetcher  *catalog.Fetcher
	queries  *query.Service
	hub      *progressHub

	bundle atomic.Pointer[catalog.Bundle]
	state  atomic.Pointer[analysisState]

	// runMu serializes analysis runs. TryLock keeps a second run from
	// queueing behind the first.
	runMu sync.Mutex

	version string
}

// NewServer builds a Server from its configuration.
//
// Description:
//
//	Opens the snapshot store (in-memory unless a directory is
//	configured), loads the initial rulepack and wires the query service
//	over the current-snapshot pointer. No analysis runs yet; the first
//	run comes from the API or the serve command's startup root.
//
// Outputs:
//
//	*Server - The ready server. Callers must Close it.
//	error - Non-nil when the registry, store or rulepack cannot be built.
func NewServer(cfg config.Config, opts ...Option) (*Server, error) {
	options := Options{Logger: slog.Default(), Version: "dev"}
	for _, opt := range opts {
		opt(&options)
	}

	reg, err := ingest.RegistryForLanguages(cfg.Analysis.Languages)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   options.Logger,
		registry: reg,
		limits:   cfg.Limits.ToLimits(),
		hub:      newProgressHub(),
		version:  options.Version,
	}

	if options.DB != nil {
		s.db = options.DB
	} else {
		db, err := openStore(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("server: open snapshot store: %w", err)
		}
		s.db = db
		s.ownsDB = true
	}

	store, err := pdg.NewSnapshotManager(s.db, s.logger)
	if err != nil {
		s.closeDB()
		return nil, fmt.Errorf("server: %w", err)
	}
	s.store = store

	bundle := options.Bundle
	if bundle == nil {
		bundle, err = loadInitialBundle(cfg.Catalog)
		if err != nil {
			s.closeDB()
			return nil, fmt.Errorf("server: %w", err)
		}
	}
	s.bundle.Store(bundle)

	s.pipeline = s.newPipeline(reg)
	s.fetcher = catalog.NewFetcher(catalog.WithFetchLogger(s.logger))

	queries, err := query.NewService(query.SnapshotFunc(s.currentSnapshot), s.limits,
		query.WithLogger(s.logger))
	if err != nil {
		s.closeDB()
		return nil, fmt.Errorf("server: %w", err)
	}
	s.queries = queries

	return s, nil
}

// openStore opens the badger instance backing the snapshot store. An
// empty directory falls back to an in-memory store.
func openStore(cfg config.StoreConfig) (*badger.DB, error) {
	if cfg.InMemory || cfg.Dir == "" {
		return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	}
	return badger.Open(badger.DefaultOptions(cfg.Dir).WithLogger(nil))
}

// loadInitialBundle loads the configured rulepack file, or the embedded
// default pack when none is configured.
func loadInitialBundle(cfg config.CatalogConfig) (*catalog.Bundle, error) {
	if cfg.Path != "" {
		return catalog.LoadFile(cfg.Path)
	}
	return catalog.Default()
}

// newPipeline builds an ingest pipeline over the given registry with the
// server's settings.
func (s *Server) newPipeline(reg *ast.Registry) *ingest.Pipeline {
	opts := []ingest.Option{
		ingest.WithRegistry(reg),
		ingest.WithLimits(s.limits),
		ingest.WithWorkers(s.cfg.Analysis.Workers),
		ingest.WithLogger(s.logger),
	}
	if s.cfg.Analysis.GitDiscovery {
		opts = append(opts, ingest.WithGitDiscovery())
	}
	return ingest.NewPipeline(opts...)
}

// Close releases the snapshot store.
func (s *Server) Close() error {
	return s.closeDB()
}

func (s *Server) closeDB() error {
	if !s.ownsDB || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// currentSnapshot returns the current snapshot, or nil before the first
// successful run. Implements the query service's snapshot provider.
func (s *Server) currentSnapshot() *pdg.Snapshot {
	if st := s.state.Load(); st != nil {
		return st.snapshot
	}
	return nil
}

// CurrentSnapshotID returns the current snapshot's ID, or empty.
func (s *Server) CurrentSnapshotID() string {
	if snap := s.currentSnapshot(); snap != nil {
		return snap.ID
	}
	return ""
}

// Registry exposes the server's parser registry, for the file watcher.
func (s *Server) Registry() *ast.Registry {
	return s.registry
}

// RunAnalysis executes one full ingest, resolve and build pass.
//
// Description:
//
//	Discovers and normalizes the project, resolves its symbols, builds
//	the dependence graph, saves the snapshot and swaps it in as the
//	current one. Build progress streams to websocket subscribers; a
//	terminal complete or failed event closes every run. With Scan set
//	the response inlines a taint pass over the fresh snapshot.
//
// Outputs:
//
//	*AnalysisRunResponse - The snapshot summary with all warnings.
//	error - ErrAnalysisInFlight, ErrNoRoot, ast.ErrUnsupportedLanguage
//	        via the registry, or a wrapped pipeline/build failure.
//
// Thread Safety: safe for concurrent use; concurrent runs are rejected,
// never queued.
func (s *Server) RunAnalysis(ctx context.Context, req AnalysisRunRequest) (resp *AnalysisRunResponse, err error) {
	if !s.runMu.TryLock() {
		return nil, ErrAnalysisInFlight
	}
	defer s.runMu.Unlock()

	root := req.Root
	if root == "" {
		root = s.cfg.Analysis.Root
	}
	if root == "" {
		return nil, ErrNoRoot
	}

	ctx, span := startAnalysisSpan(ctx, root)
	defer span.End()
	start := time.Now()
	defer func() {
		recordAnalysisMetrics(time.Since(start), err)
		if err != nil {
			finishAnalysisSpan(span, "", 0, err)
			s.hub.publishTerminal(ProgressEvent{
				Phase:   phaseFailed,
				Error:   err.Error(),
				AtMilli: time.Now().UnixMilli(),
			})
		}
	}()

	pipeline := s.pipeline
	if len(req.Languages) > 0 {
		reg, rerr := ingest.RegistryForLanguages(req.Languages)
		if rerr != nil {
			return nil, fmt.Errorf("server: %w", rerr)
		}
		pipeline = s.newPipeline(reg)
	}

	if req.Catalog != "" {
		bundle, berr := catalog.LoadFile(req.Catalog)
		if berr != nil {
			return nil, fmt.Errorf("server: load catalog: %w", berr)
		}
		s.bundle.Store(bundle)
	}

	ingestRes, err := pipeline.Run(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("server: ingest: %w", err)
	}

	table, err := symbols.Resolve(ctx, ingestRes.Files)
	if err != nil {
		return nil, fmt.Errorf("server: resolve: %w", err)
	}

	snap, err := pdg.Build(ctx, ingestRes.Files, table,
		pdg.WithProjectRoot(root),
		pdg.WithWarnings(ingestRes.Warnings),
		pdg.WithProgressCallback(func(p pdg.BuildProgress) {
			s.hub.publish(buildEvent(p))
		}),
		pdg.WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("server: build: %w", err)
	}

	if _, err = s.store.Save(ctx, snap, req.Label); err != nil {
		return nil, fmt.Errorf("server: save snapshot: %w", err)
	}

	s.state.Store(&analysisState{
		snapshot: snap,
		table:    table,
		ingest:   ingestRes.Stats,
		root:     root,
	})

	resp = &AnalysisRunResponse{
		SnapshotID:     snap.ID,
		Root:           root,
		Graph:          snap.Stats,
		Ingest:         ingestRes.Stats,
		Resolution:     table.Stats(),
		Truncated:      ingestRes.Truncated,
		DurationMillis: time.Since(start).Milliseconds(),
		Warnings:       warningsOrEmpty(snap.Warnings),
	}

	if req.Scan {
		scanReq := TaintScanRequest{MaxDepth: 0}
		if req.Limits != nil {
			scanReq.MaxDepth = req.Limits.MaxDepth
		}
		taintRes, terr := s.scanSnapshot(ctx, snap, scanReq)
		if terr != nil {
			return nil, fmt.Errorf("server: scan: %w", terr)
		}
		resp.Taint = taintRes
	}

	s.hub.publishTerminal(ProgressEvent{
		Phase:          phaseComplete,
		FilesTotal:     snap.Stats.Files,
		FilesProcessed: snap.Stats.Files,
		NodesCreated:   snap.Stats.Nodes,
		EdgesCreated:   snap.Stats.Edges,
		SnapshotID:     snap.ID,
		AtMilli:        time.Now().UnixMilli(),
	})

	finishAnalysisSpan(span, snap.ID, snap.Stats.Files, nil)
	s.logger.Info("analysis complete",
		slog.String("snapshot_id", snap.ID),
		slog.String("root", root),
		slog.Int("files", snap.Stats.Files),
		slog.Int("nodes", snap.Stats.Nodes),
		slog.Int("edges", snap.Stats.Edges),
		slog.Int("warnings", len(snap.Warnings)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// Scan runs taint propagation against the requested snapshot.
//
// Outputs:
//
//	*taint.Result - Findings in deterministic order plus all warnings.
//	error - ErrNoSnapshot, pdg.ErrSnapshotNotFound, ErrUnknownClass, or
//	        a wrapped engine failure.
func (s *Server) Scan(ctx context.Context, req TaintScanRequest) (*taint.Result, error) {
	snap, err := s.snapshotFor(ctx, req.SnapshotID)
	if err != nil {
		return nil, err
	}
	return s.scanSnapshot(ctx, snap, req)
}

func (s *Server) scanSnapshot(ctx context.Context, snap *pdg.Snapshot, req TaintScanRequest) (*taint.Result, error) {
	classes, err := parseClasses(req.Classes)
	if err != nil {
		return nil, err
	}
	opts := []taint.Option{taint.WithLogger(s.logger)}
	if len(classes) > 0 {
		opts = append(opts, taint.WithClasses(classes...))
	}
	if req.MaxDepth > 0 {
		opts = append(opts, taint.WithMaxDepth(req.MaxDepth))
	}
	return taint.Propagate(ctx, snap, s.bundle.Load(), s.limits, opts...)
}

// snapshotFor resolves a snapshot reference: empty means the current
// one, anything else is loaded from the store.
func (s *Server) snapshotFor(ctx context.Context, snapshotID string) (*pdg.Snapshot, error) {
	if snapshotID == "" {
		snap := s.currentSnapshot()
		if snap == nil {
			return nil, ErrNoSnapshot
		}
		return snap, nil
	}
	if snap := s.currentSnapshot(); snap != nil && snap.ID == snapshotID {
		return snap, nil
	}
	snap, _, err := s.store.Load(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// parseClasses validates and converts the request's class names.
func parseClasses(names []string) ([]catalog.Class, error) {
	classes := make([]catalog.Class, 0, len(names))
	for _, name := range names {
		c := catalog.Class(name)
		if !catalog.ValidClass(c) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownClass, name)
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// SearchSymbols answers a ranked symbol lookup over the current
// snapshot's table.
func (s *Server) SearchSymbols(ctx context.Context, q string, limit int) (*SymbolSearchResponse, error) {
	st := s.state.Load()
	if st == nil {
		return nil, ErrNoSnapshot
	}
	syms, err := st.table.Index().Search(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("server: symbol search: %w", err)
	}
	return &SymbolSearchResponse{
		Query:    q,
		Matches:  symbolMatches(syms),
		Warnings: warningsOrEmpty(st.snapshot.Warnings),
	}, nil
}

// ReloadCatalog activates a fresh rulepack without rebuilding the graph.
//
// Description:
//
//	Source precedence: the request's URL, then its path, then the
//	configured URL, then the configured path, then the embedded default
//	pack. The active bundle swaps atomically; in-flight scans keep the
//	bundle they started with.
func (s *Server) ReloadCatalog(ctx context.Context, req CatalogReloadRequest) (*CatalogReloadResponse, error) {
	url := req.URL
	path := req.Path
	if url == "" && path == "" {
		url = s.cfg.Catalog.URL
		path = s.cfg.Catalog.Path
	}

	var (
		bundle *catalog.Bundle
		err    error
	)
	switch {
	case url != "":
		bundle, err = s.fetcher.Fetch(ctx, url)
	case path != "":
		bundle, err = catalog.LoadFile(path)
	default:
		bundle, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("server: reload catalog: %w", err)
	}

	s.bundle.Store(bundle)
	sources, sinks, sanitizers := bundle.Counts()
	s.logger.Info("catalog reloaded",
		slog.String("name", bundle.Manifest().Name),
		slog.String("version", bundle.Manifest().Version),
		slog.Int("sources", sources),
		slog.Int("sinks", sinks),
		slog.Int("sanitizers", sanitizers),
	)
	return &CatalogReloadResponse{
		Manifest:   bundle.Manifest(),
		Sources:    sources,
		Sinks:      sinks,
		Sanitizers: sanitizers,
		Warnings:   []string{},
	}, nil
}

// Router assembles the gin engine with middleware and all routes.
//
// Description:
//
//	Middleware order: panic recovery, OTel span extraction, request ID,
//	then the per-client rate limiter. Health and metrics sit outside
//	/v1 and outside the rate limit.
func (s *Server) Router() *gin.Engine {
	handlers := NewHandlers(s)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("aleutian-sentinel"))
	r.Use(RequestIDMiddleware())

	r.GET("/healthz", handlers.HandleHealthz)
	r.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := r.Group("/v1")
	v1.Use(RateLimitMiddleware(s.cfg.Server.RatePerSecond, s.cfg.Server.RateBurst))
	RegisterRoutes(v1, handlers)
	return r
}

// warningsOrEmpty keeps warning lists JSON-visible as [] rather than
// null.
func warningsOrEmpty(warnings []string) []string {
	if warnings == nil {
		return []string{}
	}
	return warnings
}
