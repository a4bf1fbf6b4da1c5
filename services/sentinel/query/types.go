// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query answers bounded graph questions against a frozen
// dependence snapshot: node neighborhoods, function call graphs and
// file dependency graphs.
//
// Traversal order is fixed at (layer, ascending file path, ascending
// start byte), so a budget that cuts a result always cuts the same
// nodes for the same input. Reaching a requested hop bound is normal
// completion; only a node, file or time budget marks a result
// truncated.
package query

import (
	"errors"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// Sentinel errors.
var (
	// ErrNoSnapshot is returned when no analysis snapshot is available.
	ErrNoSnapshot = errors.New("no analysis snapshot available")

	// ErrSymbolNotFound is returned when the requested symbol resolves
	// to no graph node.
	ErrSymbolNotFound = errors.New("symbol not found in snapshot")

	// ErrFileNotFound is returned when the requested file is not part
	// of the snapshot.
	ErrFileNotFound = errors.New("file not found in snapshot")
)

// Truncation reasons.
const (
	ReasonMaxNodes = "max_nodes"
	ReasonMaxFiles = "max_files"
	ReasonTimeout  = "timeout"
)

// NeighborhoodRequest asks for the nodes within Hops edges of a symbol,
// treating edges as undirected.
type NeighborhoodRequest struct {
	// Symbol is a canonical symbol ID, a qualified name, or a plain
	// definition name. Lookup tries them in that order.
	Symbol string `json:"symbol"`

	// Hops is the traversal radius; zero or negative means the maximum
	// the limit set allows.
	Hops int `json:"hops"`
}

// CallGraphRequest asks for the function call graph reachable from a
// scope. Exactly one of Symbol or File must be set.
type CallGraphRequest struct {
	// Symbol roots the traversal at one function.
	Symbol string `json:"symbol,omitempty"`

	// File roots the traversal at every function defined in the file.
	File string `json:"file,omitempty"`
}

// DependenciesRequest asks for the files a seed file depends on,
// transitively.
type DependenciesRequest struct {
	File string `json:"file"`
}

// GraphNode is one node in a query result fragment.
type GraphNode struct {
	ID       int          `json:"id"`
	Kind     pdg.NodeKind `json:"kind"`
	FilePath string       `json:"file_path"`
	Line     int          `json:"line"`

	// Name is the node's own name, or its callee text for call sites.
	Name string `json:"name,omitempty"`

	// Symbol is the canonical symbol ID when the node defines one.
	Symbol string `json:"symbol,omitempty"`

	// Layer is the BFS distance from the seed.
	Layer int `json:"layer"`
}

// GraphEdge is one edge between result nodes. For call-graph results
// the edge is function-level: caller entry to callee entry.
type GraphEdge struct {
	From      int          `json:"from"`
	To        int          `json:"to"`
	Type      pdg.EdgeType `json:"type"`
	CrossFile bool         `json:"cross_file,omitempty"`
}

// GraphResult is a bounded fragment of the dependence graph.
type GraphResult struct {
	SnapshotID string      `json:"snapshot_id"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`

	// Truncated is set only when a node or time budget cut the result.
	// Completing a hop-bounded traversal is not truncation.
	Truncated          bool   `json:"truncated"`
	TruncationReason   string `json:"truncation_reason,omitempty"`
	TruncatedByTimeout bool   `json:"truncated_by_timeout,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// FileNode is one file in a dependency result.
type FileNode struct {
	Path     string `json:"path"`
	Language string `json:"language"`

	// Layer is the BFS distance from the seed file.
	Layer int `json:"layer"`
}

// FileEdge aggregates every cross-file edge from one file to another.
type FileEdge struct {
	From string `json:"from"`
	To   string `json:"to"`

	// Types lists the distinct edge types linking the files, sorted.
	Types []pdg.EdgeType `json:"types"`

	// Count is the number of underlying node-level edges.
	Count int `json:"count"`
}

// DependencyResult is a bounded file-level dependency graph.
type DependencyResult struct {
	SnapshotID string     `json:"snapshot_id"`
	Files      []FileNode `json:"files"`
	Edges      []FileEdge `json:"edges"`

	Truncated          bool   `json:"truncated"`
	TruncationReason   string `json:"truncation_reason,omitempty"`
	TruncatedByTimeout bool   `json:"truncated_by_timeout,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}
