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

// controlEdges emits CONTROL edges for one file.
//
// Description:
//
//	A statement control-depends on the innermost enclosing node that
//	decides whether it executes: the conditional whose branch contains it,
//	the entry of the enclosing function, or the module entry for top-level
//	code. Conditionals and loop headers therefore dominate their branch
//	and body statements, elif chains hang off the conditional they refute,
//	and every edge runs from an enclosing node to an enclosed one, which
//	keeps CONTROL acyclic within each function. Parameters hang off their
//	function's entry; a function's entry hangs off its definition
//	statement in the enclosing scope.
func (st *buildState) controlEdges(fg *fileGraph) error {
	f := fg.file
	for _, i := range fg.mapped {
		id := fg.astToPdg[i]
		node := &st.graph.Nodes[id]

		if node.Kind == NodeParameter {
			if err := st.graph.AddEdge(Edge{From: node.FuncID, To: id, Type: EdgeControl}); err != nil {
				return err
			}
			continue
		}

		n := &f.Nodes[i]
		if !n.Stmt {
			continue
		}

		if src, ok := fg.controllerOf(i); ok && src != id {
			if err := st.graph.AddEdge(Edge{From: src, To: id, Type: EdgeControl}); err != nil {
				return err
			}
		}

		if entry, ok := fg.entryByAst[i]; ok {
			if err := st.graph.AddEdge(Edge{From: id, To: entry, Type: EdgeControl}); err != nil {
				return err
			}
		}
	}
	return nil
}

// controllerOf resolves the node that decides whether statement i runs:
// the nearest conditional, class or function boundary above it.
func (fg *fileGraph) controllerOf(i int) (int, bool) {
	f := fg.file
	for p := f.Nodes[i].Parent; p >= 0; p = f.Nodes[p].Parent {
		switch f.Nodes[p].Kind {
		case ast.KindIfStmt, ast.KindLoopStmt, ast.KindClassDef:
			if id := fg.astToPdg[p]; id >= 0 {
				return id, true
			}
		case ast.KindFunctionDef:
			if entry, ok := fg.entryByAst[p]; ok {
				return entry, true
			}
			return 0, false
		case ast.KindModule:
			return fg.moduleEntry, true
		}
	}
	return 0, false
}
