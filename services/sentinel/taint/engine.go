// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package taint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/limits"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// Options configure one propagation run.
type Options struct {
	// Classes restricts the run to a subset of vulnerability classes.
	// Empty means all classes the catalog knows.
	Classes []catalog.Class

	// MaxDepth overrides the traversal depth for this run; it is still
	// clamped by the injected limit set. Zero uses the limit directly.
	MaxDepth int

	// Logger receives run-level progress and truncation messages.
	Logger *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithClasses restricts the run to the given vulnerability classes.
func WithClasses(classes ...catalog.Class) Option {
	return func(o *Options) { o.Classes = classes }
}

// WithMaxDepth overrides the traversal depth cap for this run.
func WithMaxDepth(depth int) Option {
	return func(o *Options) { o.MaxDepth = depth }
}

// WithLogger sets the logger for the run.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// workItem is one pending (node, class) visit. Items double as the path
// arena: parent links let a finding reconstruct its flow without storing
// paths per item.
type workItem struct {
	node      int
	class     catalog.Class
	depth     int
	parent    int32
	edgeType  pdg.EdgeType
	crossFile bool
	penalties int
}

type visitKey struct {
	node  int
	class catalog.Class
}

type engine struct {
	graph       *pdg.Graph
	bundle      *catalog.Bundle
	classes     []catalog.Class
	maxDepth    int
	maxFindings int
	logger      *slog.Logger

	items   []workItem
	visited map[visitKey]struct{}
	stats   Stats
}

// Propagate runs interprocedural taint propagation over a frozen snapshot.
//
// Description:
//
//	Every call site matching a catalog source seeds one work item per
//	requested class. Labels flow forward along DATA and CALL edges in
//	FIFO order. A matching-class catalog sanitizer clears the label at
//	the node it is called on; visited (node, class) pairs are never
//	re-expanded, which bounds the run on cyclic graphs. Sinks reached
//	with a live matching label become findings.
//
// Inputs:
//   - ctx: cancellation and deadline. Hitting the deadline returns the
//     partial result with TruncatedByTimeout set, not an error.
//   - snap: the frozen snapshot to analyze.
//   - bundle: the immutable rulepack to match against. Passing the
//     bundle per call keeps concurrent runs with different rulepacks
//     independent.
//   - lim: resolved ceilings; MaxFindings and MaxDepth apply here.
//
// Outputs:
//   - *Result: findings sorted by (class, source, sink), with run stats
//     and the snapshot's warnings carried through.
//   - error: nil on success, including truncated runs. Non-nil only for
//     invalid inputs or caller cancellation.
//
// Thread Safety: safe for concurrent calls; each run owns its state and
// only reads the frozen snapshot and bundle.
func Propagate(ctx context.Context, snap *pdg.Snapshot, bundle *catalog.Bundle, lim limits.Limits, opts ...Option) (*Result, error) {
	if snap == nil || snap.Graph == nil {
		return nil, fmt.Errorf("taint: nil snapshot")
	}
	if !snap.Graph.Frozen() {
		return nil, fmt.Errorf("taint: snapshot graph is not frozen")
	}
	if bundle == nil {
		return nil, fmt.Errorf("taint: nil rulepack bundle")
	}

	options := Options{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	classes, err := resolveClasses(options.Classes)
	if err != nil {
		return nil, err
	}

	lim = lim.Normalized()
	e := &engine{
		graph:       snap.Graph,
		bundle:      bundle,
		classes:     classes,
		maxDepth:    lim.ClampDepth(options.MaxDepth),
		maxFindings: lim.MaxFindings,
		logger:      options.Logger,
		visited:     make(map[visitKey]struct{}),
	}

	start := time.Now()
	e.seed()

	ctx, span := startPropagateSpan(ctx, snap.ID, e.stats.Seeds)
	defer span.End()

	res, err := e.run(ctx, snap)
	if err != nil {
		setPropagateSpanResult(span, nil, err)
		return nil, err
	}

	elapsed := time.Since(start)
	setPropagateSpanResult(span, res, nil)
	recordPropagateMetrics(elapsed, res)

	e.logger.Info("taint propagation complete",
		slog.String("snapshot_id", snap.ID),
		slog.Int("seeds", res.Stats.Seeds),
		slog.Int("findings", len(res.Findings)),
		slog.Bool("truncated", res.Truncated),
		slog.Duration("elapsed", elapsed),
	)
	if res.Truncated {
		e.logger.Warn("taint propagation truncated",
			slog.String("snapshot_id", snap.ID),
			slog.String("reason", res.TruncationReason),
		)
	}
	return res, nil
}

// resolveClasses validates and canonicalizes the requested class set.
func resolveClasses(requested []catalog.Class) ([]catalog.Class, error) {
	if len(requested) == 0 {
		return catalog.Classes(), nil
	}
	seen := make(map[catalog.Class]struct{}, len(requested))
	out := make([]catalog.Class, 0, len(requested))
	for _, c := range requested {
		if !catalog.ValidClass(c) {
			return nil, fmt.Errorf("taint: unknown vulnerability class %q", c)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// seed enqueues one work item per (source call site, class), in arena
// order so repeated runs process identically.
func (e *engine) seed() {
	for id := 0; id < e.graph.NodeCount(); id++ {
		n := e.graph.Node(id)
		if n.Kind != pdg.NodeCallSite {
			continue
		}
		if _, ok := e.matchSource(n); !ok {
			continue
		}
		for _, class := range e.classes {
			e.push(workItem{node: id, class: class, parent: -1})
		}
	}
	e.stats.Seeds = len(e.items)
}

// push enqueues an item unless its (node, class) pair was already
// visited. Marking at enqueue keeps each pair in the queue at most once.
func (e *engine) push(it workItem) {
	key := visitKey{node: it.node, class: it.class}
	if _, seen := e.visited[key]; seen {
		return
	}
	e.visited[key] = struct{}{}
	e.items = append(e.items, it)
}

func (e *engine) run(ctx context.Context, snap *pdg.Snapshot) (*Result, error) {
	res := &Result{SnapshotID: snap.ID, Warnings: snap.Warnings}

	for head := 0; head < len(e.items); head++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				e.markTimeout(res)
				break
			}
			return nil, err
		}

		it := e.items[head]
		n := e.graph.Node(it.node)

		// A matching-class sanitizer clears the label where it is
		// called. Seeds are exempt; a source is never its own sanitizer.
		if it.parent >= 0 && e.sanitizes(n, it.class) {
			continue
		}

		if sink, ok := e.matchSink(n); ok && sink.Class == it.class {
			if len(res.Findings) >= e.maxFindings {
				res.Truncated = true
				res.TruncationReason = "max_findings"
				break
			}
			res.Findings = append(res.Findings, e.finding(snap.ID, head, it, sink))
		}

		e.expand(head, it, n)
	}

	e.finish(res)
	return res, nil
}

// expand pushes the item's successors along DATA and CALL edges. At the
// depth cap only sink successors get the one extra hop, so capped paths
// still surface as decayed findings instead of vanishing.
func (e *engine) expand(head int, it workItem, n *pdg.Node) {
	if it.depth > e.maxDepth {
		return
	}
	atCap := it.depth == e.maxDepth

	pen := it.penalties
	if e.unverifiedSanitizer(n) {
		pen++
	}

	for _, ei := range e.graph.OutEdges(it.node) {
		edge := e.graph.Edge(ei)
		if edge.Type != pdg.EdgeData && edge.Type != pdg.EdgeCall {
			continue
		}
		e.stats.EdgesTraversed++
		if atCap {
			sn := e.graph.Node(edge.To)
			sink, ok := e.matchSink(sn)
			if !ok || sink.Class != it.class {
				continue
			}
		}
		e.push(workItem{
			node:      edge.To,
			class:     it.class,
			depth:     it.depth + 1,
			parent:    int32(head),
			edgeType:  edge.Type,
			crossFile: edge.CrossFile,
			penalties: pen,
		})
	}
}

// finding materializes one source-to-sink flow from the item arena.
func (e *engine) finding(snapshotID string, head int, it workItem, sink *catalog.SinkEntry) Finding {
	path := e.path(head)
	conf, low := score(sink.BaseScore, it.penalties, it.depth, e.maxDepth)
	return Finding{
		ID:                  findingID(snapshotID, it.class, path),
		Class:               it.class,
		Source:              nodeRef(e.graph, path[0].NodeID),
		Sink:                nodeRef(e.graph, it.node),
		Path:                path,
		Confidence:          conf,
		Truncated:           it.depth > e.maxDepth,
		LowConfidence:       low,
		UnverifiedSanitizer: it.penalties > 0,
	}
}

// path walks parent links back to the seed, then reverses into
// source-to-sink order.
func (e *engine) path(head int) []PathStep {
	var rev []PathStep
	for idx := int32(head); idx >= 0; {
		it := e.items[idx]
		n := e.graph.Node(it.node)
		rev = append(rev, PathStep{
			NodeID:    it.node,
			FilePath:  n.FilePath,
			Line:      n.Line,
			Edge:      it.edgeType,
			CrossFile: it.crossFile,
		})
		idx = it.parent
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// markTimeout records a deadline hit on the partial result. Findings
// already emitted are kept and flagged; flows the traversal never
// reached are simply absent.
func (e *engine) markTimeout(res *Result) {
	res.Truncated = true
	res.TruncationReason = "timeout"
	res.TruncatedByTimeout = true
	for i := range res.Findings {
		res.Findings[i].TruncatedByTimeout = true
	}
}

// finish fixes the result's ordering and stats.
func (e *engine) finish(res *Result) {
	e.stats.VisitedPairs = len(e.visited)
	res.Stats = e.stats
	if res.Findings == nil {
		res.Findings = []Finding{}
	}
	sort.Slice(res.Findings, func(i, j int) bool {
		a, b := res.Findings[i], res.Findings[j]
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.Source.FilePath != b.Source.FilePath {
			return a.Source.FilePath < b.Source.FilePath
		}
		if a.Source.NodeID != b.Source.NodeID {
			return a.Source.NodeID < b.Source.NodeID
		}
		if a.Sink.FilePath != b.Sink.FilePath {
			return a.Sink.FilePath < b.Sink.FilePath
		}
		return a.Sink.NodeID < b.Sink.NodeID
	})
}

// names returns catalog match candidates for a call site: the resolved
// qualified callee first, then the callee text as written.
func (e *engine) names(n *pdg.Node) []string {
	if n.CalleeQualified != "" && n.CalleeQualified != n.Callee {
		return []string{n.CalleeQualified, n.Callee}
	}
	if n.Callee != "" {
		return []string{n.Callee}
	}
	return nil
}

func (e *engine) matchSource(n *pdg.Node) (*catalog.SourceEntry, bool) {
	for _, name := range e.names(n) {
		if entry, ok := e.bundle.Source(n.Language, name); ok {
			return entry, true
		}
	}
	return nil, false
}

func (e *engine) matchSink(n *pdg.Node) (*catalog.SinkEntry, bool) {
	if n.Kind != pdg.NodeCallSite {
		return nil, false
	}
	for _, name := range e.names(n) {
		if entry, ok := e.bundle.Sink(n.Language, name); ok {
			return entry, true
		}
	}
	return nil, false
}

// sanitizes reports whether the node is a catalog sanitizer for the
// given class.
func (e *engine) sanitizes(n *pdg.Node, class catalog.Class) bool {
	if n.Kind != pdg.NodeCallSite {
		return false
	}
	for _, name := range e.names(n) {
		if entry, ok := e.bundle.Sanitizer(n.Language, name); ok && entry.Class == class {
			return true
		}
	}
	return false
}

// unverifiedSanitizer reports whether the node is a call the rulepack
// does not know whose name suggests sanitization. Such calls penalize
// confidence but do not clear the label.
func (e *engine) unverifiedSanitizer(n *pdg.Node) bool {
	if n.Kind != pdg.NodeCallSite {
		return false
	}
	if e.inRulepack(n) {
		return false
	}
	name := n.CalleeQualified
	if name == "" {
		name = n.Callee
	}
	return looksLikeSanitizer(name)
}

func (e *engine) inRulepack(n *pdg.Node) bool {
	for _, name := range e.names(n) {
		if _, ok := e.bundle.Source(n.Language, name); ok {
			return true
		}
		if _, ok := e.bundle.Sink(n.Language, name); ok {
			return true
		}
		if _, ok := e.bundle.Sanitizer(n.Language, name); ok {
			return true
		}
	}
	return false
}
