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
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
)

// defSite is one write of a name: the writing arena node and its position
// in the normalized arena, which orders writes within a scope.
type defSite struct {
	node int
	pos  int
}

// scopeInfo is one lexical scope of a file.
type scopeInfo struct {
	// parent indexes the enclosing scope, -1 for the module scope.
	parent int

	// defs lists the writes of each name in ascending position order.
	defs map[string][]defSite

	// globals and nonlocals hold the names this scope re-binds outward.
	globals   map[string]bool
	nonlocals map[string]bool
}

// fileScopes is the lexical scope tree of one file. Scope granularity is
// the function: the module scope plus one scope per function definition.
type fileScopes struct {
	scopes []scopeInfo
	byFunc map[int]int
}

// dataEdges emits intra-file DATA edges for one file.
//
// Description:
//
//	Two dependence sources. Nested expression values flow to their
//	consumer: a call in argument or right-hand-side position feeds the
//	call, assignment, conditional or return that consumes its value.
//	Def-use chains bind each read to the write it observes: the latest
//	preceding write of that name in the innermost scope that binds it.
//	A name written anywhere in a function is local to that whole function
//	and shadows outer bindings, reads from an enclosing scope observe that
//	scope's final write, and global/nonlocal declarations re-route both
//	reads and writes outward. A read with no visible preceding write gets
//	no edge: loop-carried flow and genuinely unbound names both fall out
//	of scope here, and overlinking them would fabricate taint paths.
func (st *buildState) dataEdges(fg *fileGraph) error {
	f := fg.file
	fs := newFileScopes(f)

	// Writes register first so reads can bind forward within enclosing
	// scopes regardless of arena interleaving.
	for _, i := range fg.mapped {
		id := fg.astToPdg[i]
		node := &st.graph.Nodes[id]
		if len(node.Writes) == 0 || classBodyMember(f, i) {
			continue
		}
		scope := fs.scopeOf(f, i)
		for _, name := range node.Writes {
			fs.registerWrite(scope, name, defSite{node: id, pos: i})
		}
	}

	for _, i := range fg.mapped {
		id := fg.astToPdg[i]
		node := &st.graph.Nodes[id]
		n := &f.Nodes[i]

		// Nested expression value flowing into its consumer.
		if !n.Stmt && node.Kind != NodeParameter {
			if consumer, ok := fg.consumerOf(i); ok && consumer != id {
				if err := st.graph.AddEdge(Edge{From: id, To: consumer, Type: EdgeData}); err != nil {
					return err
				}
			}
		}

		reads := effectiveReads(node)
		if len(reads) == 0 {
			continue
		}
		scope := fs.scopeOf(f, i)
		for _, name := range reads {
			site, ok := fs.defFor(scope, name, i)
			if !ok || site.node == id {
				continue
			}
			if err := st.graph.AddEdge(Edge{From: site.node, To: id, Type: EdgeData}); err != nil {
				return err
			}
		}
	}
	return nil
}

// consumerOf finds the nearest enclosing arena node that consumes the
// value of normalized node i. The module root consumes nothing.
func (fg *fileGraph) consumerOf(i int) (int, bool) {
	for p := fg.file.Nodes[i].Parent; p > 0; p = fg.file.Nodes[p].Parent {
		if id := fg.astToPdg[p]; id >= 0 {
			return id, true
		}
	}
	return 0, false
}

// effectiveReads returns the names a node consumes. Call sites also read
// their callee's root identifier, which the normalizer leaves implicit
// for plain-name calls.
func effectiveReads(node *Node) []string {
	if node.Kind != NodeCallSite {
		return node.Reads
	}
	root := firstCalleeSegment(node.Callee)
	if root == "" {
		return node.Reads
	}
	for _, name := range node.Reads {
		if name == root {
			return node.Reads
		}
	}
	reads := make([]string, 0, len(node.Reads)+1)
	reads = append(reads, node.Reads...)
	reads = append(reads, root)
	return reads
}

// classBodyMember reports whether a normalized node is a direct member of
// a class body. Those names bind to the class namespace and are reached
// through attribute paths, never as bare names in the enclosing scope.
func classBodyMember(f *ast.SourceFile, i int) bool {
	for p := f.Nodes[i].Parent; p >= 0; p = f.Nodes[p].Parent {
		switch f.Nodes[p].Kind {
		case ast.KindClassDef:
			return true
		case ast.KindFunctionDef, ast.KindModule:
			return false
		}
	}
	return false
}

func newFileScopes(f *ast.SourceFile) *fileScopes {
	fs := &fileScopes{
		scopes: []scopeInfo{{parent: -1, defs: make(map[string][]defSite)}},
		byFunc: make(map[int]int),
	}
	for i := range f.Nodes {
		if f.Nodes[i].Kind != ast.KindFunctionDef {
			continue
		}
		// Outer functions precede inner ones in the arena, so the parent
		// scope always exists by the time a nested function appears.
		fs.scopes = append(fs.scopes, scopeInfo{
			parent: fs.scopeOf(f, i),
			defs:   make(map[string][]defSite),
		})
		fs.byFunc[i] = len(fs.scopes) - 1
	}
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Kind != ast.KindScopeDecl || len(n.Names) == 0 {
			continue
		}
		scope := fs.scopeOf(f, i)
		if scope == 0 {
			// Module-level declarations change nothing.
			continue
		}
		sc := &fs.scopes[scope]
		for _, name := range n.Names {
			switch n.Name {
			case "global":
				if sc.globals == nil {
					sc.globals = make(map[string]bool)
				}
				sc.globals[name] = true
			case "nonlocal":
				if sc.nonlocals == nil {
					sc.nonlocals = make(map[string]bool)
				}
				sc.nonlocals[name] = true
			}
		}
	}
	return fs
}

// scopeOf returns the scope index normalized node i executes in.
func (fs *fileScopes) scopeOf(f *ast.SourceFile, i int) int {
	fn := f.FunctionOf(i)
	if fn == -1 {
		return 0
	}
	if idx, ok := fs.byFunc[fn]; ok {
		return idx
	}
	return 0
}

// registerWrite records a write, re-routing it outward when the writing
// scope declared the name global or nonlocal.
func (fs *fileScopes) registerWrite(scope int, name string, site defSite) {
	target := fs.bindingScope(scope, name)
	fs.scopes[target].defs[name] = append(fs.scopes[target].defs[name], site)
}

// bindingScope resolves where a name binds when written from scope.
func (fs *fileScopes) bindingScope(scope int, name string) int {
	if scope == 0 {
		return 0
	}
	sc := &fs.scopes[scope]
	if sc.globals[name] {
		return 0
	}
	if sc.nonlocals[name] && sc.parent > 0 {
		return sc.parent
	}
	return scope
}

// defFor resolves the write a read of name at position pos observes.
//
// Description:
//
//	Global and nonlocal declarations re-route the lookup outward before
//	anything else. Otherwise the innermost scope binding the name wins:
//	within the reader's own scope the latest preceding write, and in an
//	enclosing scope the final write, since enclosed code runs after the
//	enclosing scope finished binding. A name local to the reader's scope
//	with no preceding write resolves to nothing, not to an outer name it
//	shadows.
func (fs *fileScopes) defFor(scope int, name string, pos int) (defSite, bool) {
	sc := &fs.scopes[scope]
	if scope != 0 {
		if sc.globals[name] {
			return fs.finalWrite(0, name)
		}
		if sc.nonlocals[name] {
			for p := sc.parent; p > 0; p = fs.scopes[p].parent {
				if len(fs.scopes[p].defs[name]) > 0 {
					return fs.finalWrite(p, name)
				}
			}
			return defSite{}, false
		}
	}

	if sites := sc.defs[name]; len(sites) > 0 {
		for k := len(sites) - 1; k >= 0; k-- {
			if sites[k].pos < pos {
				return sites[k], true
			}
		}
		return defSite{}, false
	}

	for p := sc.parent; p >= 0; p = fs.scopes[p].parent {
		if len(fs.scopes[p].defs[name]) > 0 {
			return fs.finalWrite(p, name)
		}
	}
	return defSite{}, false
}

// finalWrite returns the last write of a name in a scope.
func (fs *fileScopes) finalWrite(scope int, name string) (defSite, bool) {
	sites := fs.scopes[scope].defs[name]
	if len(sites) == 0 {
		return defSite{}, false
	}
	return sites[len(sites)-1], true
}
