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
	"errors"
	"testing"
)

func testNode(path string, start, end uint32, kind NodeKind) Node {
	return Node{
		Kind:      kind,
		FilePath:  path,
		Language:  "python",
		StartByte: start,
		EndByte:   end,
		Line:      1,
	}
}

func TestGraph_AddNode_AssignsSequentialIDs(t *testing.T) {
	g := NewGraph()
	for i := 0; i < 3; i++ {
		id, err := g.AddNode(testNode("a.py", uint32(i*10), uint32(i*10+5), NodeCallSite))
		if err != nil {
			t.Fatalf("AddNode: %v", err)
		}
		if id != i {
			t.Errorf("node %d got id %d", i, id)
		}
		if g.Node(id).ID != i {
			t.Errorf("stored node carries id %d, want %d", g.Node(id).ID, i)
		}
	}
	if g.NodeCount() != 3 {
		t.Errorf("NodeCount = %d, want 3", g.NodeCount())
	}
}

func TestGraph_AddNode_DuplicateIdentity(t *testing.T) {
	g := NewGraph()
	if _, err := g.AddNode(testNode("a.py", 0, 10, NodeCallSite)); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	_, err := g.AddNode(testNode("a.py", 0, 10, NodeCallSite))
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("duplicate identity error = %v, want ErrInvariantViolation", err)
	}
}

func TestGraph_AddNode_SameRangeDifferentKind(t *testing.T) {
	// A function contributes a definition and an entry over the same
	// bytes; the kind keeps their identities distinct.
	g := NewGraph()
	if _, err := g.AddNode(testNode("a.py", 0, 40, NodeDefinition)); err != nil {
		t.Fatalf("definition: %v", err)
	}
	if _, err := g.AddNode(testNode("a.py", 0, 40, NodeEntry)); err != nil {
		t.Fatalf("entry over same range: %v", err)
	}
}

func TestGraph_AddNode_FrozenRejected(t *testing.T) {
	g := NewGraph()
	g.Freeze()
	if _, err := g.AddNode(testNode("a.py", 0, 10, NodeCallSite)); !errors.Is(err, ErrGraphFrozen) {
		t.Fatalf("AddNode on frozen graph = %v, want ErrGraphFrozen", err)
	}
	if err := g.AddEdge(Edge{From: 0, To: 0, Type: EdgeData}); !errors.Is(err, ErrGraphFrozen) {
		t.Fatalf("AddEdge on frozen graph = %v, want ErrGraphFrozen", err)
	}
}

func TestGraph_AddEdge_Dedup(t *testing.T) {
	g := NewGraph()
	g.AddNode(testNode("a.py", 0, 10, NodeCallSite))
	g.AddNode(testNode("a.py", 20, 30, NodeCallSite))

	e := Edge{From: 0, To: 1, Type: EdgeData}
	if err := g.AddEdge(e); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge(e); err != nil {
		t.Fatalf("duplicate AddEdge: %v", err)
	}
	if g.EdgeCount() != 1 {
		t.Errorf("EdgeCount = %d, want 1 after dedup", g.EdgeCount())
	}

	// A different type over the same endpoints is a distinct edge.
	if err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeControl}); err != nil {
		t.Fatalf("AddEdge different type: %v", err)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", g.EdgeCount())
	}
}

func TestGraph_AddEdge_OutOfRange(t *testing.T) {
	g := NewGraph()
	g.AddNode(testNode("a.py", 0, 10, NodeCallSite))
	if err := g.AddEdge(Edge{From: 0, To: 5, Type: EdgeData}); !errors.Is(err, ErrNodeOutOfRange) {
		t.Fatalf("out-of-range edge = %v, want ErrNodeOutOfRange", err)
	}
	if err := g.AddEdge(Edge{From: -1, To: 0, Type: EdgeData}); !errors.Is(err, ErrNodeOutOfRange) {
		t.Fatalf("negative endpoint = %v, want ErrNodeOutOfRange", err)
	}
}

func TestGraph_Adjacency(t *testing.T) {
	g := NewGraph()
	g.AddNode(testNode("a.py", 0, 10, NodeCallSite))
	g.AddNode(testNode("a.py", 20, 30, NodeCallSite))
	g.AddNode(testNode("a.py", 40, 50, NodeCallSite))
	g.AddEdge(Edge{From: 0, To: 1, Type: EdgeData})
	g.AddEdge(Edge{From: 0, To: 2, Type: EdgeData})
	g.AddEdge(Edge{From: 1, To: 2, Type: EdgeCall})
	g.Freeze()

	if got := g.OutEdges(0); len(got) != 2 {
		t.Fatalf("OutEdges(0) = %d edges, want 2", len(got))
	}
	if got := g.InEdges(2); len(got) != 2 {
		t.Fatalf("InEdges(2) = %d edges, want 2", len(got))
	}
	first := g.Edge(g.OutEdges(0)[0])
	if first.To != 1 {
		t.Errorf("first out edge of 0 targets %d, want 1 (insertion order)", first.To)
	}
	if g.OutEdges(99) != nil {
		t.Error("OutEdges out of range should be nil")
	}
}

func TestGraph_EntryForPrecedence(t *testing.T) {
	g := NewGraph()
	def := testNode("a.py", 0, 40, NodeDefinition)
	def.Symbol = "a.py#1"
	g.AddNode(def)
	entry := testNode("a.py", 0, 40, NodeEntry)
	entry.Symbol = "a.py#1"
	g.AddNode(entry)

	cls := testNode("a.py", 50, 90, NodeDefinition)
	cls.Symbol = "a.py#5"
	g.AddNode(cls)

	// Functions resolve to their entry, classes to their definition.
	if id, ok := g.EntryFor("a.py#1"); !ok || id != 1 {
		t.Errorf("EntryFor(function) = %d, %v; want 1, true", id, ok)
	}
	if id, ok := g.EntryFor("a.py#5"); !ok || id != 2 {
		t.Errorf("EntryFor(class) = %d, %v; want 2, true", id, ok)
	}
	if id, ok := g.DefinitionFor("a.py#1"); !ok || id != 0 {
		t.Errorf("DefinitionFor(function) = %d, %v; want 0, true", id, ok)
	}
	if _, ok := g.EntryFor("missing"); ok {
		t.Error("EntryFor(missing) should not resolve")
	}
}

func TestGraph_Stats(t *testing.T) {
	g := NewGraph()
	g.AddNode(testNode("a.py", 0, 10, NodeEntry))
	g.AddNode(testNode("b.py", 0, 10, NodeEntry))
	g.AddNode(testNode("b.py", 20, 30, NodeCallSite))
	g.AddEdge(Edge{From: 2, To: 0, Type: EdgeCall, CrossFile: true})
	g.AddEdge(Edge{From: 1, To: 2, Type: EdgeControl})

	s := g.Stats()
	if s.Nodes != 3 || s.Edges != 2 || s.Files != 2 || s.Functions != 2 {
		t.Errorf("Stats = %+v", s)
	}
	if s.EdgesByType[EdgeCall] != 1 || s.EdgesByType[EdgeControl] != 1 {
		t.Errorf("EdgesByType = %v", s.EdgesByType)
	}
	if s.CrossFileEdges != 1 {
		t.Errorf("CrossFileEdges = %d, want 1", s.CrossFileEdges)
	}
}

func TestGraph_Hash_DeterministicAndSensitive(t *testing.T) {
	build := func(crossFile bool) *Graph {
		g := NewGraph()
		g.AddNode(testNode("a.py", 0, 10, NodeCallSite))
		g.AddNode(testNode("b.py", 0, 10, NodeEntry))
		g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCall, CrossFile: crossFile})
		g.Freeze()
		return g
	}

	if build(true).Hash() != build(true).Hash() {
		t.Error("identical graphs should hash identically")
	}
	if build(true).Hash() == build(false).Hash() {
		t.Error("changing an edge attribute should change the hash")
	}
}

func TestGraph_NodesInFileAndFiles(t *testing.T) {
	g := NewGraph()
	g.AddNode(testNode("b.py", 0, 10, NodeEntry))
	g.AddNode(testNode("a.py", 0, 10, NodeEntry))
	g.AddNode(testNode("b.py", 20, 30, NodeCallSite))

	if got := g.NodesInFile("b.py"); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("NodesInFile(b.py) = %v", got)
	}
	files := g.Files()
	if len(files) != 2 || files[0] != "a.py" || files[1] != "b.py" {
		t.Errorf("Files() = %v, want ascending paths", files)
	}
}

func TestIdentity_String(t *testing.T) {
	ident := Identity{FilePath: "src/app.py", StartByte: 4, EndByte: 19, Kind: NodeCallSite}
	want := "src/app.py[4:19]/call_site"
	if got := ident.String(); got != want {
		t.Errorf("Identity.String() = %q, want %q", got, want)
	}
}
