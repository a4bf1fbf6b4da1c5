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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/minio/highwayhash"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/limits"
)

// fastHashKey keys the highwayhash used for change detection. The hash never
// leaves the process; the key only has to be 32 bytes and stable.
var fastHashKey = []byte("aleutian-sentinel-ingest-hash-k0")

// Stats counts per-outcome file totals for one pipeline run.
type Stats struct {
	// Discovered is the number of source paths found before limits.
	Discovered int `json:"discovered"`

	// Parsed is the number of files normalized this run.
	Parsed int `json:"parsed"`

	// Reused is the number of files skipped via the fast-hash cache.
	Reused int `json:"reused"`

	// Skipped is the number of files silently dropped (binary content).
	Skipped int `json:"skipped"`

	// Failed is the number of files excluded with a warning.
	Failed int `json:"failed"`
}

// Result is the product of one discover+normalize pass.
//
// Description:
//
//	Files holds the normalized view of every analyzable file in ascending
//	path order, ready for symbol resolution. Warnings names each excluded
//	file exactly once; a failed file never appears in Files. Truncated is
//	set when discovery found more files than the configured ceiling and
//	the pass analyzed a deterministic prefix.
type Result struct {
	Root      string            `json:"root"`
	Files     []*ast.SourceFile `json:"-"`
	Warnings  []string          `json:"warnings"`
	Truncated bool              `json:"truncated"`
	Stats     Stats             `json:"stats"`
}

// Options configures a Pipeline.
type Options struct {
	// Registry supplies the parsers considered during discovery and
	// normalization. Defaults to ast.DefaultRegistry.
	Registry *ast.Registry

	// Limits bounds the run; only MaxFiles applies here.
	Limits limits.Limits

	// Workers caps the normalization pool. Zero means min(GOMAXPROCS,
	// files to parse).
	Workers int

	// GitDiscovery prefers the enclosing repository's HEAD tree over a
	// filesystem walk, falling back to the walk when no repository is
	// found.
	GitDiscovery bool

	// Logger receives pipeline progress. Defaults to slog.Default.
	Logger *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithRegistry overrides the parser registry.
func WithRegistry(reg *ast.Registry) Option {
	return func(o *Options) {
		if reg != nil {
			o.Registry = reg
		}
	}
}

// WithLimits sets the resource bounds for each run.
func WithLimits(lim limits.Limits) Option {
	return func(o *Options) {
		o.Limits = lim
	}
}

// WithWorkers caps the parse pool size.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithGitDiscovery enables git-tracked file enumeration.
func WithGitDiscovery() Option {
	return func(o *Options) {
		o.GitDiscovery = true
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// RegistryForLanguages builds a registry restricted to the named languages.
//
// Description:
//
//	An empty list means all built-in languages. A tag no built-in parser
//	claims is a hard error for the requesting caller, wrapped around
//	ast.ErrUnsupportedLanguage.
func RegistryForLanguages(langs []string) (*ast.Registry, error) {
	def := ast.DefaultRegistry()
	if len(langs) == 0 {
		return def, nil
	}
	parsers := make([]ast.Parser, 0, len(langs))
	for _, lang := range langs {
		p, err := def.ForLanguage(lang)
		if err != nil {
			return nil, err
		}
		parsers = append(parsers, p)
	}
	return ast.NewRegistry(parsers...), nil
}

// Pipeline turns a project root into normalized source files.
//
// Description:
//
//	Each Run discovers source paths, screens out binary and oversized
//	content, normalizes the remainder on a bounded worker pool, and
//	assembles results in path order. A per-path fast hash of the raw
//	content carries across runs: unchanged files reuse the previous
//	normalized form without re-parsing. Failed files are excluded with
//	one warning each and never cached, so a broken file keeps warning
//	until it parses again.
//
// Thread Safety: safe for concurrent use; the reuse cache is mutex-guarded
// and each Run builds its own working state.
type Pipeline struct {
	reg          *ast.Registry
	lim          limits.Limits
	workers      int
	gitDiscovery bool
	logger       *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	fastHash uint64
	file     *ast.SourceFile
}

// task carries one discovered path through prepare, parse and commit.
type task struct {
	path     string
	content  []byte
	fastHash uint64
	reuse    *ast.SourceFile
	binary   bool
	warn     string
	file     *ast.SourceFile
	err      error
}

// NewPipeline builds a Pipeline with the given options.
func NewPipeline(opts ...Option) *Pipeline {
	options := Options{
		Registry: ast.DefaultRegistry(),
		Limits:   limits.Default(),
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Pipeline{
		reg:          options.Registry,
		lim:          options.Limits.Normalized(),
		workers:      options.Workers,
		gitDiscovery: options.GitDiscovery,
		logger:       options.Logger,
		cache:        make(map[string]cacheEntry),
	}
}

// Run executes one discover+normalize pass over root.
//
// Inputs:
//
//	ctx - Cancels the parse pool; cancellation aborts the whole run.
//	root - Project directory to analyze.
//
// Outputs:
//
//	*Result - Normalized files in path order plus per-file warnings.
//	error - Non-nil when discovery fails or ctx ends; per-file failures
//	are warnings, not errors.
func (p *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	ctx, span := startRunSpan(ctx, root)
	defer span.End()

	paths, err := p.discover(root)
	if err != nil {
		return nil, err
	}

	res := &Result{Root: root, Warnings: []string{}}
	res.Stats.Discovered = len(paths)
	if len(paths) > p.lim.MaxFiles {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"file limit reached: analyzing %d of %d discovered files", p.lim.MaxFiles, len(paths)))
		paths = paths[:p.lim.MaxFiles]
		res.Truncated = true
	}

	tasks := p.prepare(root, paths)
	if err := p.normalize(ctx, tasks); err != nil {
		return nil, err
	}
	p.commit(res, tasks)

	setRunSpanResult(span, res)
	recordRunMetrics(time.Since(start), res)
	p.logger.Info("ingest complete",
		slog.String("root", root),
		slog.Int("files", len(res.Files)),
		slog.Int("parsed", res.Stats.Parsed),
		slog.Int("reused", res.Stats.Reused),
		slog.Int("failed", res.Stats.Failed),
		slog.Duration("elapsed", time.Since(start)))
	return res, nil
}

// discover lists candidate source paths, ascending.
func (p *Pipeline) discover(root string) ([]string, error) {
	if p.gitDiscovery {
		paths, err := gitListFiles(root, p.reg)
		if err == nil {
			return paths, nil
		}
		p.logger.Debug("git discovery unavailable, walking filesystem",
			slog.String("root", root),
			slog.String("reason", err.Error()))
	}
	return walkFiles(root, p.reg)
}

// prepare reads each file and decides parse, reuse, skip or exclude.
// Runs serially in path order; the parse pool only sees clean tasks.
func (p *Pipeline) prepare(root string, paths []string) []*task {
	p.mu.Lock()
	prev := p.cache
	p.mu.Unlock()

	tasks := make([]*task, 0, len(paths))
	for _, path := range paths {
		t := &task{path: path}
		tasks = append(tasks, t)

		full := filepath.Join(root, filepath.FromSlash(path))
		info, err := os.Stat(full)
		if err != nil {
			t.warn = fmt.Sprintf("%s skipped: %v", path, err)
			continue
		}
		if info.Size() > ast.DefaultMaxFileSize {
			t.warn = fmt.Sprintf("%s skipped: %v", path, ast.ErrFileTooLarge)
			continue
		}

		content, err := os.ReadFile(full)
		if err != nil {
			t.warn = fmt.Sprintf("%s skipped: %v", path, err)
			continue
		}
		if looksBinary(content) {
			t.binary = true
			continue
		}

		t.content = content
		t.fastHash = highwayhash.Sum64(content, fastHashKey)
		if entry, ok := prev[path]; ok && entry.fastHash == t.fastHash {
			t.reuse = entry.file
		}
	}
	return tasks
}

// normalize parses every pending task on a bounded pool. Only context
// cancellation aborts the run; per-file failures land on the task.
func (p *Pipeline) normalize(ctx context.Context, tasks []*task) error {
	pending := 0
	for _, t := range tasks {
		if t.needsParse() {
			pending++
		}
	}
	if pending == 0 {
		return nil
	}

	workers := p.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > pending {
		workers = pending
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tasks {
		if !t.needsParse() {
			continue
		}
		g.Go(func() error {
			parser, ok := p.reg.ForPath(t.path)
			if !ok {
				t.err = fmt.Errorf("%w: %s", ast.ErrUnsupportedLanguage, t.path)
				return nil
			}
			file, err := parser.Parse(gctx, t.content, t.path)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				t.err = err
				return nil
			}
			t.file = file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ingest: normalize: %w", err)
	}
	return nil
}

// needsParse reports whether the task still requires a parser.
func (t *task) needsParse() bool {
	return t.warn == "" && !t.binary && t.reuse == nil
}

// commit assembles the result in path order and replaces the reuse cache.
// Serial so file order, warning order and cache state are deterministic.
func (p *Pipeline) commit(res *Result, tasks []*task) {
	next := make(map[string]cacheEntry, len(tasks))
	for _, t := range tasks {
		switch {
		case t.binary:
			res.Stats.Skipped++
		case t.warn != "":
			res.Warnings = append(res.Warnings, t.warn)
			res.Stats.Failed++
		case t.reuse != nil:
			res.Files = append(res.Files, t.reuse)
			res.Stats.Reused++
			next[t.path] = cacheEntry{fastHash: t.fastHash, file: t.reuse}
		case t.err != nil:
			if errors.Is(t.err, ast.ErrBinaryFile) {
				res.Stats.Skipped++
				break
			}
			var pe *ast.ParseError
			if errors.As(t.err, &pe) {
				res.Warnings = append(res.Warnings, pe.Warning())
			} else {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s skipped: %v", t.path, t.err))
			}
			res.Stats.Failed++
		default:
			res.Files = append(res.Files, t.file)
			res.Stats.Parsed++
			next[t.path] = cacheEntry{fastHash: t.fastHash, file: t.file}
		}
	}

	p.mu.Lock()
	p.cache = next
	p.mu.Unlock()
}
