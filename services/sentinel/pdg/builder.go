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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/symbols"
)

// ProgressPhase indicates which build phase is in progress.
type ProgressPhase int

const (
	// ProgressPhaseCollecting indicates arena nodes are being allocated.
	ProgressPhaseCollecting ProgressPhase = iota

	// ProgressPhaseConnecting indicates per-function control and data
	// edges are being derived.
	ProgressPhaseConnecting

	// ProgressPhaseStitching indicates cross-file call and import edges
	// are being stitched through the symbol table.
	ProgressPhaseStitching
)

// String returns the string representation of the ProgressPhase.
func (p ProgressPhase) String() string {
	switch p {
	case ProgressPhaseCollecting:
		return "collecting"
	case ProgressPhaseConnecting:
		return "connecting"
	case ProgressPhaseStitching:
		return "stitching"
	default:
		return "unknown"
	}
}

// BuildProgress contains progress information during a build.
type BuildProgress struct {
	// Phase is the current build phase.
	Phase ProgressPhase

	// FilesTotal is the total number of files to process.
	FilesTotal int

	// FilesProcessed is the number of files processed in this phase.
	FilesProcessed int

	// NodesCreated is the number of nodes created so far.
	NodesCreated int

	// EdgesCreated is the number of edges created so far.
	EdgesCreated int
}

// ProgressFunc is a callback function for build progress updates.
type ProgressFunc func(progress BuildProgress)

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// ProjectRoot identifies the analyzed project. Used for the snapshot's
	// project hash; file paths stay relative.
	ProjectRoot string

	// ProgressCallback is called after each file in each phase. May be nil.
	ProgressCallback ProgressFunc

	// Warnings are carried into the snapshot verbatim, ahead of warnings
	// the build itself produces. Ingest parse warnings arrive here.
	Warnings []string

	// Logger receives build summaries and invariant violations.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		Logger: slog.Default(),
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithProjectRoot sets the project root identity.
func WithProjectRoot(root string) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProjectRoot = root
	}
}

// WithProgressCallback sets the progress callback function.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProgressCallback = fn
	}
}

// WithWarnings seeds the snapshot's warning list.
func WithWarnings(warnings []string) BuilderOption {
	return func(o *BuilderOptions) {
		o.Warnings = warnings
	}
}

// WithLogger sets the build logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = logger
	}
}

// Builder constructs dependence graphs from normalized files and a
// resolved symbol table.
//
// The builder is stateless and can be reused across multiple builds.
// Each Build() call creates a new snapshot.
//
// Thread Safety:
//
//	Builder is safe for concurrent use. Each Build() call operates
//	independently with its own internal state.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a new Builder with the given options.
//
// Example:
//
//	builder := NewBuilder(
//	    WithProjectRoot("/path/to/project"),
//	    WithProgressCallback(report),
//	)
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Builder{options: options}
}

// Build constructs an immutable snapshot from normalized files.
//
// Description:
//
//	Three single-threaded phases over the full file set: collect allocates
//	arena nodes for every dependence-relevant normalized node, connect
//	derives per-function CONTROL and DATA edges, stitch adds CALL, IMPORT
//	and interprocedural DATA edges through the symbol table. Stitching
//	needs the globally consistent view, which is why the build is the
//	pipeline's serialization point. Input order does not matter: files are
//	processed in ascending path order and every edge list is appended
//	deterministically, so identical inputs produce identical snapshots.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between files.
//	files - Normalized source files. Nil entries are skipped.
//	table - Resolved symbol table covering the same files.
//
// Outputs:
//
//	*Snapshot - The frozen graph with stats and warnings.
//	error - Non-nil on cancellation or an internal invariant violation
//	(duplicate node identity). Never returns a partially built snapshot.
func (b *Builder) Build(ctx context.Context, files []*ast.SourceFile, table *symbols.Table) (*Snapshot, error) {
	ctx, span := startBuildSpan(ctx, len(files))
	defer span.End()
	start := time.Now()

	st := newBuildState(b.options, files, table)

	err := st.run(ctx)
	if err != nil {
		setBuildSpanResult(span, Stats{}, err)
		b.options.Logger.Error("dependence graph build failed",
			"files", len(st.order),
			"error", err)
		return nil, err
	}

	st.graph.Freeze()
	stats := st.graph.Stats()
	snap := &Snapshot{
		ID:             uuid.New().String(),
		ProjectHash:    b.projectHash(st),
		CreatedAtMilli: time.Now().UnixMilli(),
		Graph:          st.graph,
		Files:          st.snapshotFiles(),
		Warnings:       st.finalWarnings(),
		Stats:          stats,
	}

	elapsed := time.Since(start)
	setBuildSpanResult(span, stats, nil)
	recordBuildMetrics(elapsed, stats)
	b.options.Logger.Info("dependence graph built",
		"snapshot_id", snap.ID,
		"files", stats.Files,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"cross_file_edges", stats.CrossFileEdges,
		"duration_ms", elapsed.Milliseconds())
	return snap, nil
}

// Build constructs a snapshot with a one-off builder.
func Build(ctx context.Context, files []*ast.SourceFile, table *symbols.Table, opts ...BuilderOption) (*Snapshot, error) {
	return NewBuilder(opts...).Build(ctx, files, table)
}

// projectHash derives the snapshot grouping key: the configured project
// root when set, otherwise the sorted file path set. Content changes do
// not move a project to a new key.
func (b *Builder) projectHash(st *buildState) string {
	h := sha256.New()
	if b.options.ProjectRoot != "" {
		h.Write([]byte(b.options.ProjectRoot))
	} else {
		for _, fg := range st.order {
			h.Write([]byte(fg.file.Path))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// fileGraph is the per-file view of the arena built during collect.
type fileGraph struct {
	file *ast.SourceFile

	// moduleEntry is the file's module entry node.
	moduleEntry int

	// astToPdg maps normalized node index to arena node ID, -1 when the
	// normalized node produced no graph node. Function definitions map to
	// their definition node; the entry node lives in entryByAst.
	astToPdg []int

	// entryByAst maps function_def node index to its entry node.
	entryByAst map[int]int

	// mapped lists the normalized indices that produced graph nodes, in
	// ascending order.
	mapped []int
}

// buildState holds mutable state during a single build operation.
type buildState struct {
	options BuilderOptions
	graph   *Graph
	table   *symbols.Table

	byFile map[string]*fileGraph
	order  []*fileGraph

	// paramsOfEntry and returnsOfEntry index parameter and return nodes
	// by their function entry node, in arena order. Stitch consumes them
	// for argument and return-value data edges.
	paramsOfEntry  map[int][]int
	returnsOfEntry map[int][]int

	warnings []string
	progress BuildProgress
}

func newBuildState(options BuilderOptions, files []*ast.SourceFile, table *symbols.Table) *buildState {
	st := &buildState{
		options:        options,
		graph:          NewGraph(),
		table:          table,
		byFile:         make(map[string]*fileGraph, len(files)),
		paramsOfEntry:  make(map[int][]int),
		returnsOfEntry: make(map[int][]int),
	}
	for _, f := range files {
		if f == nil || len(f.Nodes) == 0 {
			continue
		}
		if _, dup := st.byFile[f.Path]; dup {
			continue
		}
		fg := &fileGraph{file: f, entryByAst: make(map[int]int)}
		st.byFile[f.Path] = fg
		st.order = append(st.order, fg)
	}
	sort.Slice(st.order, func(i, j int) bool { return st.order[i].file.Path < st.order[j].file.Path })
	st.progress.FilesTotal = len(st.order)
	return st
}

// run executes the three build phases.
func (st *buildState) run(ctx context.Context) error {
	st.startPhase(ProgressPhaseCollecting)
	for _, fg := range st.order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("collect phase: %w", err)
		}
		if err := st.collectFile(fg); err != nil {
			return err
		}
		st.fileDone()
	}

	st.startPhase(ProgressPhaseConnecting)
	for _, fg := range st.order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("connect phase: %w", err)
		}
		if err := st.controlEdges(fg); err != nil {
			return err
		}
		if err := st.dataEdges(fg); err != nil {
			return err
		}
		st.fileDone()
	}

	st.startPhase(ProgressPhaseStitching)
	for _, fg := range st.order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stitch phase: %w", err)
		}
		if err := st.stitchFile(fg); err != nil {
			return err
		}
		st.fileDone()
	}
	return nil
}

func (st *buildState) startPhase(phase ProgressPhase) {
	st.progress.Phase = phase
	st.progress.FilesProcessed = 0
	st.report()
}

func (st *buildState) fileDone() {
	st.progress.FilesProcessed++
	st.report()
}

func (st *buildState) report() {
	if st.options.ProgressCallback == nil {
		return
	}
	st.progress.NodesCreated = st.graph.NodeCount()
	st.progress.EdgesCreated = st.graph.EdgeCount()
	st.options.ProgressCallback(st.progress)
}

// collectFile allocates arena nodes for one file's dependence-relevant
// normalized nodes, in normalized arena order.
func (st *buildState) collectFile(fg *fileGraph) error {
	f := fg.file
	fg.astToPdg = make([]int, len(f.Nodes))
	for i := range fg.astToPdg {
		fg.astToPdg[i] = -1
	}

	root := f.Root()
	moduleSymbol := ""
	if sym, ok := st.table.ModuleSymbol(f.Path); ok && sym.FilePath == f.Path {
		// A module path claimed by another file (duplicate basenames after
		// a collision) leaves this entry anonymous; calls resolve to the
		// winning file.
		moduleSymbol = sym.ID
	}
	entryID, err := st.graph.AddNode(Node{
		Kind:      NodeEntry,
		FilePath:  f.Path,
		Language:  f.Language,
		StartByte: root.StartByte,
		EndByte:   root.EndByte,
		Line:      root.StartLine,
		Name:      ast.ModulePath(f.Path),
		Symbol:    moduleSymbol,
		AstIndex:  0,
	})
	if err != nil {
		return err
	}
	st.graph.Nodes[entryID].FuncID = entryID
	fg.moduleEntry = entryID

	for i := 1; i < len(f.Nodes); i++ {
		n := &f.Nodes[i]
		var kind NodeKind
		switch n.Kind {
		case ast.KindFunctionDef:
			kind = NodeDefinition
		case ast.KindClassDef:
			kind = NodeDefinition
		case ast.KindParam:
			kind = NodeParameter
		case ast.KindCallExpr:
			kind = NodeCallSite
		case ast.KindAssignment:
			kind = NodeAssignment
		case ast.KindIfStmt, ast.KindLoopStmt:
			kind = NodeConditional
		case ast.KindReturnStmt:
			kind = NodeReturn
		case ast.KindImportStmt:
			kind = NodeImport
		default:
			// Literals, raw identifier references and scope declarations
			// contribute reads, writes and scope routing, not nodes.
			continue
		}

		node := Node{
			Kind:      kind,
			FilePath:  f.Path,
			Language:  f.Language,
			StartByte: n.StartByte,
			EndByte:   n.EndByte,
			Line:      n.StartLine,
			Name:      n.Name,
			AstIndex:  i,
			Reads:     n.Reads,
			Writes:    n.Writes,
		}

		switch kind {
		case NodeDefinition, NodeAssignment:
			if sym, ok := st.table.SymbolByID(symbols.SymbolID(f.Path, i)); ok {
				node.Symbol = sym.ID
			}
		case NodeCallSite:
			node.Callee = n.Callee
			if sym, ok := st.table.ResolveCallee(f.Path, n.Callee); ok {
				node.CalleeSymbol = sym.ID
				node.CalleeQualified = sym.Qualified
			}
		case NodeImport:
			node.Writes = importBindings(n)
		}

		id, err := st.graph.AddNode(node)
		if err != nil {
			return err
		}
		fg.astToPdg[i] = id
		fg.mapped = append(fg.mapped, i)

		if n.Kind == ast.KindFunctionDef {
			// A function contributes two nodes over the same byte range:
			// the definition statement in the enclosing scope and the
			// entry anchor of its own scope.
			funcEntry, err := st.graph.AddNode(Node{
				Kind:      NodeEntry,
				FilePath:  f.Path,
				Language:  f.Language,
				StartByte: n.StartByte,
				EndByte:   n.EndByte,
				Line:      n.StartLine,
				Name:      n.Name,
				Symbol:    st.graph.Nodes[id].Symbol,
				AstIndex:  i,
			})
			if err != nil {
				return err
			}
			st.graph.Nodes[funcEntry].FuncID = funcEntry
			fg.entryByAst[i] = funcEntry
		}
	}

	// FuncID assignment needs the full entry map, so it runs second.
	for _, i := range fg.mapped {
		id := fg.astToPdg[i]
		st.graph.Nodes[id].FuncID = fg.scopeEntry(i)
	}

	// Index parameters and returns by their owning entry for stitch.
	for _, i := range fg.mapped {
		id := fg.astToPdg[i]
		switch st.graph.Nodes[id].Kind {
		case NodeParameter:
			owner := st.graph.Nodes[id].FuncID
			st.paramsOfEntry[owner] = append(st.paramsOfEntry[owner], id)
		case NodeReturn:
			owner := st.graph.Nodes[id].FuncID
			st.returnsOfEntry[owner] = append(st.returnsOfEntry[owner], id)
		}
	}
	return nil
}

// scopeEntry returns the entry node anchoring the scope a normalized node
// executes in: the enclosing function's entry, or the module entry.
func (fg *fileGraph) scopeEntry(astIdx int) int {
	fn := fg.file.FunctionOf(astIdx)
	if fn == -1 {
		return fg.moduleEntry
	}
	if entry, ok := fg.entryByAst[fn]; ok {
		return entry
	}
	return fg.moduleEntry
}

// importBindings collects the names an import node binds: whatever the
// normalizer recorded as writes, the module alias for whole-module
// imports, and every per-name alias.
func importBindings(n *ast.NormalizedNode) []string {
	var names []string
	seen := make(map[string]bool, 4)
	addName := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, name := range n.Writes {
		addName(name)
	}
	addName(n.Name)
	if n.Import != nil {
		for _, imp := range n.Import.Names {
			alias := imp.Alias
			if alias == "" {
				alias = imp.Name
			}
			addName(alias)
		}
	}
	return names
}

// snapshotFiles renders the analyzed file set, ascending by path.
func (st *buildState) snapshotFiles() []SnapshotFile {
	out := make([]SnapshotFile, 0, len(st.order))
	for _, fg := range st.order {
		out = append(out, SnapshotFile{
			Path:     fg.file.Path,
			Language: fg.file.Language,
			Hash:     fg.file.Hash,
		})
	}
	return out
}

// finalWarnings appends resolution gaps to the caller-provided warnings.
func (st *buildState) finalWarnings() []string {
	warnings := make([]string, 0, len(st.options.Warnings)+2)
	warnings = append(warnings, st.options.Warnings...)
	warnings = append(warnings, st.warnings...)

	stats := st.table.Stats()
	if stats.Unresolved > 0 {
		warnings = append(warnings, fmt.Sprintf("%d import binding(s) unresolved; affected calls are dead ends", stats.Unresolved))
	}
	if stats.BoundExceeded {
		warnings = append(warnings, "symbol resolution pass bound exceeded; some re-exports left unresolved")
	}
	if len(warnings) == 0 {
		return nil
	}
	return warnings
}

// firstCalleeSegment returns the leading identifier of a dotted callee
// path, empty for computed callees.
func firstCalleeSegment(callee string) string {
	if callee == "" || strings.ContainsAny(callee, "()[]<> ") {
		return ""
	}
	seg, _, _ := strings.Cut(callee, ".")
	return seg
}
