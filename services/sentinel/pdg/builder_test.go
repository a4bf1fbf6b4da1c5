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
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/symbols"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func parseProject(t *testing.T, sources map[string]string) []*ast.SourceFile {
	t.Helper()
	reg := ast.DefaultRegistry()

	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]*ast.SourceFile, 0, len(paths))
	for _, p := range paths {
		parser, ok := reg.ForPath(p)
		if !ok {
			t.Fatalf("no parser registered for %s", p)
		}
		f, err := parser.Parse(context.Background(), []byte(sources[p]), p)
		if err != nil {
			t.Fatalf("parsing %s: %v", p, err)
		}
		files = append(files, f)
	}
	return files
}

// buildProject parses, resolves and builds a snapshot for the given
// in-memory sources.
func buildProject(t *testing.T, sources map[string]string, opts ...BuilderOption) *Snapshot {
	t.Helper()
	files := parseProject(t, sources)
	table, err := symbols.Resolve(context.Background(), files)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	opts = append([]BuilderOption{WithLogger(testLogger())}, opts...)
	snap, err := Build(context.Background(), files, table, opts...)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return snap
}

func findCallSite(t *testing.T, g *Graph, path, callee string) *Node {
	t.Helper()
	for _, id := range g.NodesInFile(path) {
		n := g.Node(id)
		if n.Kind == NodeCallSite && n.Callee == callee {
			return n
		}
	}
	t.Fatalf("no call site %q in %s", callee, path)
	return nil
}

func findKind(t *testing.T, g *Graph, path string, kind NodeKind) *Node {
	t.Helper()
	for _, id := range g.NodesInFile(path) {
		if n := g.Node(id); n.Kind == kind {
			return n
		}
	}
	t.Fatalf("no %s node in %s", kind, path)
	return nil
}

func findEntry(t *testing.T, g *Graph, path, name string) *Node {
	t.Helper()
	for _, id := range g.NodesInFile(path) {
		n := g.Node(id)
		if n.Kind == NodeEntry && n.Name == name {
			return n
		}
	}
	t.Fatalf("no entry %q in %s", name, path)
	return nil
}

func findEdge(g *Graph, from, to int, typ EdgeType) *Edge {
	for _, idx := range g.OutEdges(from) {
		e := g.Edge(idx)
		if e.To == to && e.Type == typ {
			return e
		}
	}
	return nil
}

func TestBuild_CrossFileCall(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"a.py": "def get_input():\n    return input()\n",
		"b.py": "from a import get_input\n\ndef handler():\n    q = get_input()\n    execute(q)\n",
	})
	g := snap.Graph

	call := findCallSite(t, g, "b.py", "get_input")
	if call.CalleeSymbol == "" {
		t.Fatal("get_input call site should resolve")
	}
	if call.CalleeQualified != "a.get_input" {
		t.Errorf("CalleeQualified = %q, want a.get_input", call.CalleeQualified)
	}

	entry := findEntry(t, g, "a.py", "get_input")
	callEdge := findEdge(g, call.ID, entry.ID, EdgeCall)
	if callEdge == nil {
		t.Fatal("expected CALL edge from call site to callee entry")
	}
	if !callEdge.CrossFile {
		t.Error("CALL edge spanning files should be tagged cross-file")
	}

	// The callee's return value flows back to the call site.
	ret := findKind(t, g, "a.py", NodeReturn)
	retEdge := findEdge(g, ret.ID, call.ID, EdgeData)
	if retEdge == nil {
		t.Fatal("expected DATA edge from callee return to call site")
	}
	if !retEdge.CrossFile {
		t.Error("return flow edge should be tagged cross-file")
	}

	// The import statement links to the imported definition.
	imp := findKind(t, g, "b.py", NodeImport)
	def := findKind(t, g, "a.py", NodeDefinition)
	impEdge := findEdge(g, imp.ID, def.ID, EdgeImport)
	if impEdge == nil {
		t.Fatal("expected IMPORT edge from import statement to definition")
	}
	if !impEdge.CrossFile {
		t.Error("IMPORT edge should be tagged cross-file")
	}

	// The call reads the name the import bound.
	if findEdge(g, imp.ID, call.ID, EdgeData) == nil {
		t.Error("expected DATA edge from import binding to its use")
	}

	// The call's value feeds the assignment, which feeds execute.
	asg := findKind(t, g, "b.py", NodeAssignment)
	if findEdge(g, call.ID, asg.ID, EdgeData) == nil {
		t.Error("expected DATA edge from call value into assignment")
	}
	execCall := findCallSite(t, g, "b.py", "execute")
	if findEdge(g, asg.ID, execCall.ID, EdgeData) == nil {
		t.Error("expected DATA edge from assignment to execute argument")
	}

	if snap.ID == "" || snap.ProjectHash == "" || snap.CreatedAtMilli == 0 {
		t.Errorf("snapshot identity incomplete: %+v", snap)
	}
	if snap.Stats.Files != 2 || snap.Stats.CrossFileEdges == 0 {
		t.Errorf("Stats = %+v", snap.Stats)
	}
	if len(snap.Files) != 2 || snap.Files[0].Path != "a.py" || snap.Files[0].Hash == "" {
		t.Errorf("Files = %+v", snap.Files)
	}
}

func TestBuild_ControlEdges(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"f.py": "def decide(flag):\n    if flag:\n        result = 1\n    return result\n",
	})
	g := snap.Graph

	module := findEntry(t, g, "f.py", "f")
	def := findKind(t, g, "f.py", NodeDefinition)
	entry := findEntry(t, g, "f.py", "decide")
	param := findKind(t, g, "f.py", NodeParameter)
	cond := findKind(t, g, "f.py", NodeConditional)
	asg := findKind(t, g, "f.py", NodeAssignment)
	ret := findKind(t, g, "f.py", NodeReturn)

	wantControl := [][2]int{
		{module.ID, def.ID},
		{def.ID, entry.ID},
		{entry.ID, param.ID},
		{entry.ID, cond.ID},
		{cond.ID, asg.ID},
		{entry.ID, ret.ID},
	}
	for _, w := range wantControl {
		if findEdge(g, w[0], w[1], EdgeControl) == nil {
			t.Errorf("missing CONTROL edge %d -> %d", w[0], w[1])
		}
	}

	// The condition reads the parameter, and the branch assignment
	// reaches the read after the conditional.
	if findEdge(g, param.ID, cond.ID, EdgeData) == nil {
		t.Error("expected DATA edge from parameter to condition")
	}
	if findEdge(g, asg.ID, ret.ID, EdgeData) == nil {
		t.Error("expected DATA edge from branch assignment to return")
	}
}

func TestBuild_ControlEdgesAcyclic(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"loop.py": "def spin(n):\n    while n:\n        n = step(n)\n        if n:\n            emit(n)\n    return n\n",
		"cls.py":  "class Store:\n    def put(self, k):\n        self.k = k\n",
	})
	g := snap.Graph

	// Control edges always point from a scope anchor downward into the
	// construct it dominates, so they can never close a cycle.
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.Type != EdgeControl {
			continue
		}
		if e.From >= e.To {
			t.Errorf("CONTROL edge %d -> %d violates topological order", e.From, e.To)
		}
		if g.Node(e.From).FilePath != g.Node(e.To).FilePath {
			t.Errorf("CONTROL edge %d -> %d crosses files", e.From, e.To)
		}
	}
}

func TestBuild_DefUse_Reassignment(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"r.py": "x = source()\nx = \"safe\"\nsink(x)\n",
	})
	g := snap.Graph

	var asgs []*Node
	for _, id := range g.NodesInFile("r.py") {
		if n := g.Node(id); n.Kind == NodeAssignment {
			asgs = append(asgs, n)
		}
	}
	if len(asgs) != 2 {
		t.Fatalf("got %d assignments, want 2", len(asgs))
	}
	sink := findCallSite(t, g, "r.py", "sink")

	if findEdge(g, asgs[1].ID, sink.ID, EdgeData) == nil {
		t.Error("read after reassignment should link to the latest write")
	}
	if findEdge(g, asgs[0].ID, sink.ID, EdgeData) != nil {
		t.Error("overwritten definition should not reach the later read")
	}
}

func TestBuild_DefUse_FunctionShadowing(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"s.py": "x = outer()\n\ndef f():\n    x = inner()\n    use(x)\n",
	})
	g := snap.Graph

	moduleEntry := findEntry(t, g, "s.py", "s")
	fEntry := findEntry(t, g, "s.py", "f")

	var moduleAsg, localAsg *Node
	for _, id := range g.NodesInFile("s.py") {
		n := g.Node(id)
		if n.Kind != NodeAssignment {
			continue
		}
		switch n.FuncID {
		case moduleEntry.ID:
			moduleAsg = n
		case fEntry.ID:
			localAsg = n
		}
	}
	if moduleAsg == nil || localAsg == nil {
		t.Fatal("expected a module and a function assignment")
	}
	use := findCallSite(t, g, "s.py", "use")

	if findEdge(g, localAsg.ID, use.ID, EdgeData) == nil {
		t.Error("local shadowing write should reach the local read")
	}
	if findEdge(g, moduleAsg.ID, use.ID, EdgeData) != nil {
		t.Error("shadowed outer write should not reach the local read")
	}
}

func TestBuild_DefUse_GlobalRebind(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"g.py": "count = seed()\n\ndef bump():\n    global count\n    count = next_value()\n\ndef read():\n    return count\n",
	})
	g := snap.Graph

	bumpEntry := findEntry(t, g, "g.py", "bump")
	readEntry := findEntry(t, g, "g.py", "read")

	var moduleAsg, bumpAsg *Node
	for _, id := range g.NodesInFile("g.py") {
		n := g.Node(id)
		if n.Kind != NodeAssignment {
			continue
		}
		switch n.FuncID {
		case bumpEntry.ID:
			bumpAsg = n
		default:
			moduleAsg = n
		}
	}
	if moduleAsg == nil || bumpAsg == nil {
		t.Fatal("expected module and bump assignments")
	}

	var readRet *Node
	for _, id := range g.NodesInFile("g.py") {
		n := g.Node(id)
		if n.Kind == NodeReturn && n.FuncID == readEntry.ID {
			readRet = n
		}
	}
	if readRet == nil {
		t.Fatal("expected return in read()")
	}

	// The global declaration rebinds the write into module scope, so the
	// reader sees the function's write as the final definition.
	if findEdge(g, bumpAsg.ID, readRet.ID, EdgeData) == nil {
		t.Error("global rebind should reach the module-scope reader")
	}
	if findEdge(g, moduleAsg.ID, readRet.ID, EdgeData) != nil {
		t.Error("superseded module write should not reach the reader")
	}
}

func TestBuild_UnresolvedCallDeadEnd(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"u.py": "def run():\n    mystery(1)\n",
	})
	g := snap.Graph

	call := findCallSite(t, g, "u.py", "mystery")
	if call.CalleeSymbol != "" {
		t.Errorf("unresolved callee should carry no symbol, got %q", call.CalleeSymbol)
	}
	for _, idx := range g.OutEdges(call.ID) {
		if g.Edge(idx).Type == EdgeCall {
			t.Error("unresolved call site must not grow a CALL edge")
		}
	}
}

func TestBuild_ParamAndReturnFlow(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"lib.py":  "def wrap(value):\n    return value\n",
		"main.py": "from lib import wrap\n\ndef go(data):\n    out = wrap(data)\n    return out\n",
	})
	g := snap.Graph

	call := findCallSite(t, g, "main.py", "wrap")
	param := findKind(t, g, "lib.py", NodeParameter)
	ret := findKind(t, g, "lib.py", NodeReturn)

	argEdge := findEdge(g, call.ID, param.ID, EdgeData)
	if argEdge == nil {
		t.Fatal("expected DATA edge from call site into callee parameter")
	}
	if !argEdge.CrossFile {
		t.Error("argument edge should be tagged cross-file")
	}
	if findEdge(g, ret.ID, call.ID, EdgeData) == nil {
		t.Error("expected DATA edge from callee return to call site")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	sources := map[string]string{
		"a.py": "def get_input():\n    return input()\n",
		"b.py": "from a import get_input\n\ndef handler():\n    q = get_input()\n    return q\n",
		"c.py": "from b import handler\n\nhandler()\n",
	}
	files := parseProject(t, sources)
	table, err := symbols.Resolve(context.Background(), files)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	reversed := make([]*ast.SourceFile, len(files))
	for i, f := range files {
		reversed[len(files)-1-i] = f
	}

	snapA, err := Build(context.Background(), files, table, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Build(sorted) error: %v", err)
	}
	snapB, err := Build(context.Background(), reversed, table, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Build(reversed) error: %v", err)
	}

	if snapA.Graph.Hash() != snapB.Graph.Hash() {
		t.Error("file order must not change the graph")
	}
	if snapA.ProjectHash != snapB.ProjectHash {
		t.Error("file order must not change the project hash")
	}
	if snapA.Stats.Nodes != snapB.Stats.Nodes || snapA.Stats.Edges != snapB.Stats.Edges {
		t.Error("file order must not change node or edge counts")
	}
}

func TestBuild_Warnings(t *testing.T) {
	carried := "excluded c.py: syntax errors at line 3"
	snap := buildProject(t, map[string]string{
		"w.py": "from missing import helper\n\ndef go():\n    helper()\n",
	}, WithWarnings([]string{carried}))

	if len(snap.Warnings) < 2 {
		t.Fatalf("Warnings = %v, want carried warning plus unresolved summary", snap.Warnings)
	}
	if snap.Warnings[0] != carried {
		t.Errorf("carried warning lost: %v", snap.Warnings)
	}
	found := false
	for _, w := range snap.Warnings {
		if strings.Contains(w, "unresolved") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unresolved-import warning, got %v", snap.Warnings)
	}
}

func TestBuild_ProgressCallback(t *testing.T) {
	var seen []BuildProgress
	buildProject(t, map[string]string{
		"a.py": "def get_input():\n    return input()\n",
		"b.py": "from a import get_input\n\nget_input()\n",
	}, WithProgressCallback(func(p BuildProgress) {
		seen = append(seen, p)
	}))

	if len(seen) == 0 {
		t.Fatal("progress callback never fired")
	}
	if seen[0].Phase != ProgressPhaseCollecting || seen[0].FilesTotal != 2 {
		t.Errorf("first report = %+v", seen[0])
	}
	last := seen[len(seen)-1]
	if last.Phase != ProgressPhaseStitching || last.FilesProcessed != last.FilesTotal {
		t.Errorf("last report = %+v", last)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Phase < seen[i-1].Phase {
			t.Errorf("phase regressed at report %d: %s after %s", i, seen[i].Phase, seen[i-1].Phase)
		}
		if seen[i].NodesCreated < seen[i-1].NodesCreated {
			t.Errorf("node count shrank at report %d", i)
		}
	}
}

func TestBuild_ContextCanceled(t *testing.T) {
	files := parseProject(t, map[string]string{
		"a.py": "def get_input():\n    return input()\n",
	})
	table, err := symbols.Resolve(context.Background(), files)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := Build(ctx, files, table, WithLogger(testLogger()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build with canceled context = %v, want context.Canceled", err)
	}
	if snap != nil {
		t.Error("failed build must not return a partial snapshot")
	}
}

func TestBuild_SkipsNilAndEmptyFiles(t *testing.T) {
	files := parseProject(t, map[string]string{
		"a.py": "def get_input():\n    return input()\n",
	})
	table, err := symbols.Resolve(context.Background(), files)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	dirty := append([]*ast.SourceFile{nil, {Path: "empty.py", Language: "python"}}, files...)
	dirty = append(dirty, files[0])

	snap, err := Build(context.Background(), dirty, table, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if snap.Stats.Files != 1 {
		t.Errorf("Stats.Files = %d, want 1 after skipping nil, empty and duplicate inputs", snap.Stats.Files)
	}
}

func TestLanguageFamily(t *testing.T) {
	if !sameLanguageFamily("javascript", "typescript") {
		t.Error("javascript and typescript share a family")
	}
	if !sameLanguageFamily("python", "python") {
		t.Error("a language shares a family with itself")
	}
	if sameLanguageFamily("python", "javascript") {
		t.Error("python and javascript must not mix")
	}
}

func TestBuild_ModuleEntry(t *testing.T) {
	snap := buildProject(t, map[string]string{
		"pkg/util.py": "LIMIT = 10\n",
	})
	g := snap.Graph

	entry := findEntry(t, g, "pkg/util.py", "pkg.util")
	if entry.FuncID != entry.ID {
		t.Errorf("module entry should anchor its own scope, FuncID = %d", entry.FuncID)
	}
	if entry.AstIndex != 0 {
		t.Errorf("module entry AstIndex = %d, want 0", entry.AstIndex)
	}
}
