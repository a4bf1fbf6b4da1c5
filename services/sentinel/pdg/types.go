// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pdg builds and stores program dependence graphs.
//
// A graph is an arena of integer-indexed nodes plus typed directed edges
// (CONTROL, DATA, CALL, IMPORT). Per-function control and data dependences
// come from the normalized source structure; cross-file CALL and IMPORT
// edges are stitched through the symbol table. A built graph is frozen into
// an immutable Snapshot that any number of taint and query requests read
// concurrently without locking.
package pdg

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
)

// Edge types.
type EdgeType string

const (
	// EdgeControl marks branch-controlled execution within one function.
	EdgeControl EdgeType = "CONTROL"

	// EdgeData marks a def-use or value-consumption dependence.
	EdgeData EdgeType = "DATA"

	// EdgeCall connects a call site to the callee's entry node.
	EdgeCall EdgeType = "CALL"

	// EdgeImport connects an import node to the imported definition.
	EdgeImport EdgeType = "IMPORT"
)

// Node kinds.
type NodeKind string

const (
	NodeEntry       NodeKind = "entry"
	NodeDefinition  NodeKind = "definition"
	NodeParameter   NodeKind = "parameter"
	NodeCallSite    NodeKind = "call_site"
	NodeAssignment  NodeKind = "assignment"
	NodeConditional NodeKind = "conditional"
	NodeReturn      NodeKind = "return"
	NodeImport      NodeKind = "import"
)

// Sentinel errors.
var (
	// ErrInvariantViolation marks an internal inconsistency such as a
	// duplicate node identity. Fatal for the build; never masked.
	ErrInvariantViolation = errors.New("internal invariant violation")

	// ErrGraphFrozen is returned when mutating a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen")

	// ErrNodeOutOfRange is returned for edge endpoints outside the arena.
	ErrNodeOutOfRange = errors.New("node index out of range")

	// ErrSnapshotNotFound is returned when a stored snapshot is missing.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Identity is the stable cross-snapshot identity of a node. Arena IDs are
// positional and change between builds; identity does not.
type Identity struct {
	FilePath  string
	StartByte uint32
	EndByte   uint32
	Kind      NodeKind
}

// String renders the identity in "path[start:end]/kind" form.
func (id Identity) String() string {
	return fmt.Sprintf("%s[%d:%d]/%s", id.FilePath, id.StartByte, id.EndByte, id.Kind)
}

// Node is one vertex in the dependence graph arena.
//
// Description:
//
//	ID is the arena index, valid only within one snapshot. (FilePath,
//	StartByte, EndByte, Kind) is the stable identity. FuncID points at the
//	entry node of the enclosing function scope (the module entry node for
//	module-level code; entry nodes point at themselves).
//
// Thread Safety: immutable once the owning graph is frozen.
type Node struct {
	ID        int      `json:"id"`
	Kind      NodeKind `json:"kind"`
	FilePath  string   `json:"file_path"`
	Language  string   `json:"language"`
	StartByte uint32   `json:"start_byte"`
	EndByte   uint32   `json:"end_byte"`
	Line      int      `json:"line"`

	// Name is set on definitions, parameters, entries and imports.
	Name string `json:"name,omitempty"`

	// Callee is the dotted callee path of a call site as written.
	Callee string `json:"callee,omitempty"`

	// CalleeSymbol is the canonical symbol ID the callee resolved to,
	// empty when unresolved.
	CalleeSymbol string `json:"callee_symbol,omitempty"`

	// CalleeQualified is the canonical dotted name of the resolved callee,
	// empty when unresolved. Catalog matching keys on this.
	CalleeQualified string `json:"callee_qualified,omitempty"`

	// Symbol is the canonical symbol ID this node defines (definition,
	// entry and module-entry nodes), empty otherwise.
	Symbol string `json:"symbol,omitempty"`

	FuncID   int `json:"func_id"`
	AstIndex int `json:"ast_index"`

	Reads  []string `json:"reads,omitempty"`
	Writes []string `json:"writes,omitempty"`
}

// Identity returns the node's stable identity.
func (n *Node) Identity() Identity {
	return Identity{FilePath: n.FilePath, StartByte: n.StartByte, EndByte: n.EndByte, Kind: n.Kind}
}

// Edge is one directed dependence.
type Edge struct {
	From      int      `json:"from"`
	To        int      `json:"to"`
	Type      EdgeType `json:"type"`
	CrossFile bool     `json:"cross_file,omitempty"`
}

// Stats summarizes a built graph.
type Stats struct {
	Nodes          int              `json:"nodes"`
	Edges          int              `json:"edges"`
	EdgesByType    map[EdgeType]int `json:"edges_by_type"`
	Files          int              `json:"files"`
	Functions      int              `json:"functions"`
	CrossFileEdges int              `json:"cross_file_edges"`
}

// Graph is the dependence graph arena.
//
// Description:
//
//	Mutable while building: AddNode and AddEdge append and index. Freeze
//	seals the arena and builds the adjacency lists; afterwards every
//	accessor is safe for unlimited concurrent readers and every mutation
//	fails with ErrGraphFrozen.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	frozen bool

	byIdentity    map[Identity]int
	byFile        map[string][]int
	entryBySymbol map[string]int
	defBySymbol   map[string]int
	edgeSet       map[Edge]struct{}

	// out and in hold edge indices per node, in insertion order.
	out [][]int32
	in  [][]int32
}

// NewGraph returns an empty graph in building state.
func NewGraph() *Graph {
	return &Graph{
		byIdentity:    make(map[Identity]int),
		byFile:        make(map[string][]int),
		entryBySymbol: make(map[string]int),
		defBySymbol:   make(map[string]int),
		edgeSet:       make(map[Edge]struct{}),
	}
}

// AddNode appends a node to the arena and returns its ID.
//
// Description:
//
//	The node's ID field is assigned here. A second node with the same
//	(file, byte range, kind) identity is an internal invariant violation:
//	the normalizer guarantees distinct anchors, so a collision means the
//	build itself is wrong and must fail loudly.
func (g *Graph) AddNode(n Node) (int, error) {
	if g.frozen {
		return 0, ErrGraphFrozen
	}
	ident := n.Identity()
	if prev, exists := g.byIdentity[ident]; exists {
		return 0, fmt.Errorf("%w: duplicate node identity %s (existing id %d)",
			ErrInvariantViolation, ident, prev)
	}

	n.ID = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	g.byIdentity[ident] = n.ID
	g.byFile[n.FilePath] = append(g.byFile[n.FilePath], n.ID)
	if n.Symbol != "" {
		if n.Kind == NodeEntry {
			g.entryBySymbol[n.Symbol] = n.ID
		} else {
			g.defBySymbol[n.Symbol] = n.ID
		}
	}
	return n.ID, nil
}

// AddEdge appends an edge, silently dropping exact duplicates.
func (g *Graph) AddEdge(e Edge) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if e.From < 0 || e.From >= len(g.Nodes) || e.To < 0 || e.To >= len(g.Nodes) {
		return fmt.Errorf("%w: edge %d -> %d with %d nodes", ErrNodeOutOfRange, e.From, e.To, len(g.Nodes))
	}
	if _, dup := g.edgeSet[e]; dup {
		return nil
	}
	g.edgeSet[e] = struct{}{}
	g.Edges = append(g.Edges, e)
	return nil
}

// Freeze seals the graph and builds the adjacency lists. Idempotent.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	g.frozen = true
	g.buildAdjacency()
}

// Frozen reports whether the graph is sealed.
func (g *Graph) Frozen() bool { return g.frozen }

func (g *Graph) buildAdjacency() {
	g.out = make([][]int32, len(g.Nodes))
	g.in = make([][]int32, len(g.Nodes))
	for i := range g.Edges {
		e := &g.Edges[i]
		g.out[e.From] = append(g.out[e.From], int32(i))
		g.in[e.To] = append(g.in[e.To], int32(i))
	}
}

// reindex rebuilds every derived lookup from the Nodes/Edges slices.
// Used after deserialization.
func (g *Graph) reindex() error {
	g.byIdentity = make(map[Identity]int, len(g.Nodes))
	g.byFile = make(map[string][]int)
	g.entryBySymbol = make(map[string]int)
	g.defBySymbol = make(map[string]int)
	g.edgeSet = make(map[Edge]struct{}, len(g.Edges))

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID != i {
			return fmt.Errorf("%w: node at position %d carries id %d", ErrInvariantViolation, i, n.ID)
		}
		ident := n.Identity()
		if prev, exists := g.byIdentity[ident]; exists {
			return fmt.Errorf("%w: duplicate node identity %s (ids %d, %d)", ErrInvariantViolation, ident, prev, i)
		}
		g.byIdentity[ident] = i
		g.byFile[n.FilePath] = append(g.byFile[n.FilePath], i)
		if n.Symbol != "" {
			if n.Kind == NodeEntry {
				g.entryBySymbol[n.Symbol] = i
			} else {
				g.defBySymbol[n.Symbol] = i
			}
		}
	}
	for i := range g.Edges {
		e := g.Edges[i]
		if e.From < 0 || e.From >= len(g.Nodes) || e.To < 0 || e.To >= len(g.Nodes) {
			return fmt.Errorf("%w: edge %d -> %d with %d nodes", ErrNodeOutOfRange, e.From, e.To, len(g.Nodes))
		}
		g.edgeSet[e] = struct{}{}
	}
	g.frozen = true
	g.buildAdjacency()
	return nil
}

// Node returns the node with the given arena ID, or nil when out of range.
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	return &g.Nodes[id]
}

// NodeByIdentity resolves a stable identity to its arena ID.
func (g *Graph) NodeByIdentity(ident Identity) (int, bool) {
	id, ok := g.byIdentity[ident]
	return id, ok
}

// NodesInFile returns the arena IDs of a file's nodes in arena order.
// The returned slice is shared; callers must not modify it.
func (g *Graph) NodesInFile(filePath string) []int {
	return g.byFile[filePath]
}

// Files returns every file with nodes, in ascending path order.
func (g *Graph) Files() []string {
	files := make([]string, 0, len(g.byFile))
	for f := range g.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// EntryFor resolves a canonical symbol ID to the node a CALL or IMPORT
// edge should target: the entry node for functions, the definition node
// for classes and variables.
func (g *Graph) EntryFor(symbolID string) (int, bool) {
	if id, ok := g.entryBySymbol[symbolID]; ok {
		return id, true
	}
	id, ok := g.defBySymbol[symbolID]
	return id, ok
}

// DefinitionFor resolves a canonical symbol ID to its definition node,
// falling back to the entry node (module symbols have only an entry).
func (g *Graph) DefinitionFor(symbolID string) (int, bool) {
	if id, ok := g.defBySymbol[symbolID]; ok {
		return id, true
	}
	id, ok := g.entryBySymbol[symbolID]
	return id, ok
}

// OutEdges returns the edges leaving a node, in insertion order.
// The returned slice is shared; callers must not modify it.
func (g *Graph) OutEdges(id int) []int32 {
	if id < 0 || id >= len(g.out) {
		return nil
	}
	return g.out[id]
}

// InEdges returns the edges arriving at a node, in insertion order.
// The returned slice is shared; callers must not modify it.
func (g *Graph) InEdges(id int) []int32 {
	if id < 0 || id >= len(g.in) {
		return nil
	}
	return g.in[id]
}

// Edge returns the edge at the given index, or nil when out of range.
func (g *Graph) Edge(idx int32) *Edge {
	if idx < 0 || int(idx) >= len(g.Edges) {
		return nil
	}
	return &g.Edges[idx]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.Nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.Edges) }

// Stats computes summary statistics for the graph.
func (g *Graph) Stats() Stats {
	s := Stats{
		Nodes:       len(g.Nodes),
		Edges:       len(g.Edges),
		EdgesByType: make(map[EdgeType]int, 4),
		Files:       len(g.byFile),
	}
	for i := range g.Nodes {
		if g.Nodes[i].Kind == NodeEntry {
			s.Functions++
		}
	}
	for i := range g.Edges {
		s.EdgesByType[g.Edges[i].Type]++
		if g.Edges[i].CrossFile {
			s.CrossFileEdges++
		}
	}
	return s
}

// Hash computes a deterministic SHA-256 over the graph structure.
//
// Description:
//
//	Nodes are folded in arena order and edges in insertion order; both
//	orders are themselves deterministic products of the build, so two
//	builds of the same input hash identically.
func (g *Graph) Hash() string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		h.Write([]byte(n.FilePath))
		h.Write([]byte{0})
		h.Write([]byte(n.Kind))
		h.Write([]byte{0})
		writeInt(int(n.StartByte))
		writeInt(int(n.EndByte))
		h.Write([]byte(n.Callee))
		h.Write([]byte{0})
		h.Write([]byte(n.Symbol))
		h.Write([]byte{0})
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		writeInt(e.From)
		writeInt(e.To)
		h.Write([]byte(e.Type))
		if e.CrossFile {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotFile records one analyzed file in a snapshot.
type SnapshotFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Hash     string `json:"hash"`
}

// Snapshot is one immutable analysis result: the frozen graph plus the
// file set it was built from and the warnings gathered along the way.
//
// Thread Safety: immutable after Build returns; safe for any number of
// concurrent readers.
type Snapshot struct {
	ID             string         `json:"id"`
	ProjectHash    string         `json:"project_hash"`
	CreatedAtMilli int64          `json:"created_at_milli"`
	Graph          *Graph         `json:"graph"`
	Files          []SnapshotFile `json:"files"`
	Warnings       []string       `json:"warnings,omitempty"`
	Stats          Stats          `json:"stats"`
}
