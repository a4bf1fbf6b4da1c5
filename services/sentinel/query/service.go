// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/limits"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// SnapshotProvider yields the snapshot queries run against. Current
// returns nil when no analysis has completed yet.
type SnapshotProvider interface {
	Current() *pdg.Snapshot
}

// SnapshotFunc adapts a closure into a SnapshotProvider.
type SnapshotFunc func() *pdg.Snapshot

// Current implements SnapshotProvider.
func (f SnapshotFunc) Current() *pdg.Snapshot { return f() }

// ServiceOptions configure a Service.
type ServiceOptions struct {
	Logger *slog.Logger
}

// ServiceOption mutates ServiceOptions.
type ServiceOption func(*ServiceOptions)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *ServiceOptions) { o.Logger = logger }
}

// Service answers bounded graph queries against the provider's current
// snapshot.
//
// Thread Safety: safe for concurrent use. Snapshots are immutable, so
// queries share them without locking; a snapshot swap mid-query is
// invisible because each call pins the snapshot it started with.
type Service struct {
	provider SnapshotProvider
	limits   limits.Limits
	logger   *slog.Logger
}

// NewService builds a query service over the given provider and ceiling
// set.
func NewService(provider SnapshotProvider, lim limits.Limits, opts ...ServiceOption) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("query: nil snapshot provider")
	}
	options := ServiceOptions{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Service{
		provider: provider,
		limits:   lim.Normalized(),
		logger:   options.Logger,
	}, nil
}

func (s *Service) snapshot() (*pdg.Snapshot, error) {
	snap := s.provider.Current()
	if snap == nil || snap.Graph == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Neighborhood returns the nodes within the requested hop radius of a
// symbol, edges treated as undirected.
//
// Description:
//
//	The radius is clamped to the limit set's MaxHops. Finishing the
//	radius is normal completion; only the node budget or the deadline
//	marks the result truncated.
//
// Outputs:
//   - *GraphResult: visited nodes in traversal order plus every edge
//     between them.
//   - error: ErrNoSnapshot, ErrSymbolNotFound, or caller cancellation.
func (s *Service) Neighborhood(ctx context.Context, req NeighborhoodRequest) (*GraphResult, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	hops := s.limits.ClampHops(req.Hops)

	ctx, span := startQuerySpan(ctx, "neighborhood", snap.ID)
	defer span.End()
	start := time.Now()

	seed, ok := seedNode(snap.Graph, req.Symbol)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrSymbolNotFound, req.Symbol)
		finishQuerySpan(span, 0, "", err)
		return nil, err
	}

	outcome, err := nodeBFS(ctx, snap.Graph, []int{seed},
		undirectedNeighbors(snap.Graph), hops, s.limits.MaxNodes, ReasonMaxNodes)
	if err != nil {
		finishQuerySpan(span, 0, "", err)
		return nil, err
	}

	res := s.assembleNodes(snap, outcome)
	res.Edges = inducedEdges(snap.Graph, outcome.visited)
	s.finish(span, "neighborhood", start, len(res.Nodes), res.TruncationReason)
	return res, nil
}

// CallGraph returns the function-level call graph reachable from a
// symbol or from every function in a file, bounded by the node budget.
func (s *Service) CallGraph(ctx context.Context, req CallGraphRequest) (*GraphResult, error) {
	if (req.Symbol == "") == (req.File == "") {
		return nil, fmt.Errorf("query: call graph needs exactly one of symbol or file")
	}
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	ctx, span := startQuerySpan(ctx, "call_graph", snap.ID)
	defer span.End()
	start := time.Now()

	seeds, err := s.callGraphSeeds(snap.Graph, req)
	if err != nil {
		finishQuerySpan(span, 0, "", err)
		return nil, err
	}

	sites := callSiteIndex(snap.Graph)
	outcome, err := nodeBFS(ctx, snap.Graph, seeds,
		calleeNeighbors(snap.Graph, sites), snap.Graph.NodeCount(),
		s.limits.MaxNodes, ReasonMaxNodes)
	if err != nil {
		finishQuerySpan(span, 0, "", err)
		return nil, err
	}

	res := s.assembleNodes(snap, outcome)
	res.Edges = callEdges(snap.Graph, sites, outcome)
	s.finish(span, "call_graph", start, len(res.Nodes), res.TruncationReason)
	return res, nil
}

// Dependencies returns the files the seed file depends on,
// transitively, bounded by the file budget.
func (s *Service) Dependencies(ctx context.Context, req DependenciesRequest) (*DependencyResult, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if len(snap.Graph.NodesInFile(req.File)) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, req.File)
	}

	ctx, span := startQuerySpan(ctx, "dependencies", snap.ID)
	defer span.End()
	start := time.Now()

	adjacency, links := fileAdjacency(snap.Graph)
	outcome, err := fileBFS(ctx, req.File, adjacency, s.limits.MaxFiles)
	if err != nil {
		finishQuerySpan(span, 0, "", err)
		return nil, err
	}

	res := s.assembleFiles(snap, outcome, links)
	s.finish(span, "dependencies", start, len(res.Files), res.TruncationReason)
	return res, nil
}

// seedNode resolves a symbol string to a graph node: canonical entry,
// then canonical definition, then the first node carrying the symbol
// ID, then the first definition or entry with that name.
func seedNode(g *pdg.Graph, symbol string) (int, bool) {
	if symbol == "" {
		return 0, false
	}
	if id, ok := g.EntryFor(symbol); ok {
		return id, true
	}
	if id, ok := g.DefinitionFor(symbol); ok {
		return id, true
	}
	for id := 0; id < g.NodeCount(); id++ {
		if g.Node(id).Symbol == symbol {
			return id, true
		}
	}
	for id := 0; id < g.NodeCount(); id++ {
		n := g.Node(id)
		if (n.Kind == pdg.NodeDefinition || n.Kind == pdg.NodeEntry) && n.Name == symbol {
			return id, true
		}
	}
	return 0, false
}

// callGraphSeeds resolves the request scope to function entry nodes.
func (s *Service) callGraphSeeds(g *pdg.Graph, req CallGraphRequest) ([]int, error) {
	if req.File != "" {
		var seeds []int
		for _, id := range g.NodesInFile(req.File) {
			if g.Node(id).Kind == pdg.NodeEntry {
				seeds = append(seeds, id)
			}
		}
		if len(seeds) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrFileNotFound, req.File)
		}
		return seeds, nil
	}

	id, ok := seedNode(g, req.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, req.Symbol)
	}
	n := g.Node(id)
	if n.Kind == pdg.NodeEntry {
		return []int{id}, nil
	}
	if n.Symbol != "" {
		if entry, ok := g.EntryFor(n.Symbol); ok {
			return []int{entry}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a function", ErrSymbolNotFound, req.Symbol)
}

// assembleNodes renders a traversal outcome as a GraphResult.
func (s *Service) assembleNodes(snap *pdg.Snapshot, outcome bfsOutcome) *GraphResult {
	res := &GraphResult{
		SnapshotID:         snap.ID,
		Nodes:              make([]GraphNode, 0, len(outcome.order)),
		Edges:              []GraphEdge{},
		Truncated:          outcome.stopped,
		TruncationReason:   outcome.reason,
		TruncatedByTimeout: outcome.timedOut,
		Warnings:           snap.Warnings,
	}
	for _, id := range outcome.order {
		n := snap.Graph.Node(id)
		name := n.Name
		if name == "" {
			name = n.Callee
		}
		res.Nodes = append(res.Nodes, GraphNode{
			ID:       id,
			Kind:     n.Kind,
			FilePath: n.FilePath,
			Line:     n.Line,
			Name:     name,
			Symbol:   n.Symbol,
			Layer:    outcome.layer[id],
		})
	}
	return res
}

// assembleFiles renders a file traversal as a DependencyResult.
func (s *Service) assembleFiles(snap *pdg.Snapshot, outcome fileOutcome, links map[fileLink]*linkAgg) *DependencyResult {
	languages := make(map[string]string, len(snap.Files))
	for _, f := range snap.Files {
		languages[f.Path] = f.Language
	}

	res := &DependencyResult{
		SnapshotID:         snap.ID,
		Files:              make([]FileNode, 0, len(outcome.order)),
		Edges:              []FileEdge{},
		Truncated:          outcome.stopped,
		TruncationReason:   outcome.reason,
		TruncatedByTimeout: outcome.timedOut,
		Warnings:           snap.Warnings,
	}
	for _, path := range outcome.order {
		res.Files = append(res.Files, FileNode{
			Path:     path,
			Language: languages[path],
			Layer:    outcome.layer[path],
		})
	}

	for link, agg := range links {
		if !outcome.visited[link.from] || !outcome.visited[link.to] {
			continue
		}
		types := make([]pdg.EdgeType, 0, len(agg.types))
		for typ := range agg.types {
			types = append(types, typ)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		res.Edges = append(res.Edges, FileEdge{
			From:  link.from,
			To:    link.to,
			Types: types,
			Count: agg.count,
		})
	}
	sort.Slice(res.Edges, func(i, j int) bool {
		if res.Edges[i].From != res.Edges[j].From {
			return res.Edges[i].From < res.Edges[j].From
		}
		return res.Edges[i].To < res.Edges[j].To
	})
	return res
}

// inducedEdges lists every graph edge whose endpoints are both in the
// result, in stable edge-index order.
func inducedEdges(g *pdg.Graph, visited map[int]bool) []GraphEdge {
	edges := []GraphEdge{}
	for i := 0; i < g.EdgeCount(); i++ {
		e := g.Edge(int32(i))
		if !visited[e.From] || !visited[e.To] {
			continue
		}
		edges = append(edges, GraphEdge{
			From:      e.From,
			To:        e.To,
			Type:      e.Type,
			CrossFile: e.CrossFile,
		})
	}
	return edges
}

// callEdges synthesizes function-level CALL edges between visited
// entries: one edge per caller/callee pair, cross-file when any
// underlying call site crosses files.
func callEdges(g *pdg.Graph, sites map[int][]int, outcome bfsOutcome) []GraphEdge {
	type pair struct{ from, to int }
	seen := make(map[pair]int)
	edges := []GraphEdge{}
	for _, caller := range outcome.order {
		for _, cs := range sites[caller] {
			for _, ei := range g.OutEdges(cs) {
				e := g.Edge(ei)
				if e.Type != pdg.EdgeCall || !outcome.visited[e.To] {
					continue
				}
				p := pair{from: caller, to: e.To}
				if idx, ok := seen[p]; ok {
					edges[idx].CrossFile = edges[idx].CrossFile || e.CrossFile
					continue
				}
				seen[p] = len(edges)
				edges = append(edges, GraphEdge{
					From:      caller,
					To:        e.To,
					Type:      pdg.EdgeCall,
					CrossFile: e.CrossFile,
				})
			}
		}
	}
	return edges
}

// fileLink keys one dependent-to-dependency file pair.
type fileLink struct {
	from string
	to   string
}

type linkAgg struct {
	types map[pdg.EdgeType]bool
	count int
}

// fileAdjacency derives the file dependency relation from cross-file
// edges. Return-value flow runs callee to caller, so edges leaving a
// return node are skipped; the matching CALL edge already records that
// dependency in the right direction.
func fileAdjacency(g *pdg.Graph) (map[string][]string, map[fileLink]*linkAgg) {
	links := make(map[fileLink]*linkAgg)
	adjacency := make(map[string][]string)
	adjSeen := make(map[fileLink]bool)

	for i := 0; i < g.EdgeCount(); i++ {
		e := g.Edge(int32(i))
		if !e.CrossFile {
			continue
		}
		from := g.Node(e.From)
		if from.Kind == pdg.NodeReturn {
			continue
		}
		to := g.Node(e.To)
		link := fileLink{from: from.FilePath, to: to.FilePath}

		agg, ok := links[link]
		if !ok {
			agg = &linkAgg{types: make(map[pdg.EdgeType]bool)}
			links[link] = agg
		}
		agg.types[e.Type] = true
		agg.count++

		if !adjSeen[link] {
			adjSeen[link] = true
			adjacency[link.from] = append(adjacency[link.from], link.to)
		}
	}
	for _, targets := range adjacency {
		sort.Strings(targets)
	}
	return adjacency, links
}

// finish records metrics and the per-query debug line.
func (s *Service) finish(span trace.Span, operation string, start time.Time, size int, reason string) {
	elapsed := time.Since(start)
	finishQuerySpan(span, size, reason, nil)
	recordQueryMetrics(operation, elapsed, reason)
	s.logger.Debug("graph query served",
		slog.String("operation", operation),
		slog.Int("result_size", size),
		slog.String("truncation", reason),
		slog.Duration("elapsed", elapsed),
	)
}
