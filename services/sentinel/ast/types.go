// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast turns per-language tree-sitter parse trees into a
// language-agnostic normalized node representation.
//
// Each supported language has its own parser type (PythonParser,
// JavaScriptParser, TypeScriptParser) implementing the Parser interface.
// All of them emit the same thing: a SourceFile holding a flat arena of
// NormalizedNode values whose Parent/Children indices encode the statement
// and expression structure. Everything downstream (symbol resolution, PDG
// construction, taint propagation) operates only on this representation and
// never sees a tree-sitter node.
package ast

import (
	"fmt"
	"strings"
)

// NodeKind classifies a normalized node.
type NodeKind string

// Normalized node kinds. Statement-level kinds (function defs, assignments,
// conditionals, loops, returns, imports, scope declarations and bare calls)
// carry Stmt=true; expression-level kinds (nested calls, literals, variable
// references) hang off their consuming node via Parent.
const (
	KindModule      NodeKind = "module"
	KindFunctionDef NodeKind = "function_def"
	KindClassDef    NodeKind = "class_def"
	KindParam       NodeKind = "param"
	KindAssignment  NodeKind = "assignment"
	KindCallExpr    NodeKind = "call_expr"
	KindImportStmt  NodeKind = "import_stmt"
	KindIfStmt      NodeKind = "if_stmt"
	KindLoopStmt    NodeKind = "loop_stmt"
	KindReturnStmt  NodeKind = "return_stmt"
	KindLiteral     NodeKind = "literal"
	KindVarRef      NodeKind = "var_ref"
	KindScopeDecl   NodeKind = "scope_decl"
)

// Branch roles a node can play relative to its parent conditional.
const (
	BranchThen = "then"
	BranchElse = "else"
	BranchBody = "body"
)

// MaxLiteralValueLen caps the raw text stored on literal nodes so that a
// large embedded string cannot bloat the arena.
const MaxLiteralValueLen = 120

// NormalizedNode is one node in a SourceFile's arena.
//
// Description:
//
//	Identity within a file is the arena Index; identity across the project is
//	(file path, StartByte, EndByte). Parent is the index of the enclosing
//	node (-1 only for the module root): for statements this is the enclosing
//	block owner, for expressions it is the node that consumes the produced
//	value, which is exactly the relationship dependence edges are built from.
//
// Thread Safety: NormalizedNode values are never mutated after normalization.
type NormalizedNode struct {
	Index     int      `json:"index"`
	Kind      NodeKind `json:"kind"`
	StartByte uint32   `json:"start_byte"`
	EndByte   uint32   `json:"end_byte"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`

	// Name is set on definitions, parameters and import bindings.
	Name string `json:"name,omitempty"`

	// Callee is the dotted callee path of a call expression ("execute",
	// "db.cursor.execute", "self.save").
	Callee string `json:"callee,omitempty"`

	// Value is the truncated raw text of a literal node.
	Value string `json:"value,omitempty"`

	Parent   int   `json:"parent"`
	Children []int `json:"children,omitempty"`

	// Reads and Writes are the variable names this node consumes and
	// produces. Identifiers consumed by a nested call are attributed to
	// that call node, not to the enclosing statement.
	Reads  []string `json:"reads,omitempty"`
	Writes []string `json:"writes,omitempty"`

	// Names holds the declared names of a scope_decl (global / nonlocal).
	Names []string `json:"names,omitempty"`

	// Branch is the role of this node relative to a conditional parent:
	// "then", "else" or "body" (loop bodies).
	Branch string `json:"branch,omitempty"`

	// Stmt marks statement-level nodes (direct members of a block).
	Stmt bool `json:"stmt,omitempty"`

	// Exported is set on definitions importable from other files.
	Exported bool `json:"exported,omitempty"`

	// Default is set on a definition published as its module's default
	// export (JavaScript/TypeScript only).
	Default bool `json:"default,omitempty"`

	// Import is set on import_stmt nodes.
	Import *ImportInfo `json:"import,omitempty"`
}

// ImportInfo describes one import or re-export statement.
type ImportInfo struct {
	// Specifier is the module specifier as written: "a.b", "./util",
	// "../lib/db", "react".
	Specifier string `json:"specifier"`

	// Level is the number of leading dots of a Python relative import
	// (0 for absolute imports and for JavaScript).
	Level int `json:"level,omitempty"`

	// Names lists the imported names with their local aliases. Empty with
	// Wildcard=false means the module itself is bound (import a.b,
	// const x = require('./y'), import * as ns handled via Names alias).
	Names []ImportedName `json:"names,omitempty"`

	// Wildcard marks `from m import *` / `export * from 'm'`.
	Wildcard bool `json:"wildcard,omitempty"`

	// ReExport marks export-from statements, which re-publish the imported
	// names from the importing module.
	ReExport bool `json:"re_export,omitempty"`
}

// ImportedName is a single imported binding. Alias equals Name unless the
// source renamed it (import X as Y, import {a as b}).
type ImportedName struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// SourceFile is the normalized form of one parsed file.
//
// Description:
//
//	Nodes[0] is always the module root. The file is replaced wholesale when
//	its content hash changes; nodes are owned by the file and never shared
//	across files. A SourceFile carries no cross-file information.
//
// Thread Safety: immutable after Parse returns; safe for concurrent reads.
type SourceFile struct {
	Path          string           `json:"path"`
	Language      string           `json:"language"`
	Hash          string           `json:"hash"`
	Size          int              `json:"size"`
	ParsedAtMilli int64            `json:"parsed_at_milli"`
	Nodes         []NormalizedNode `json:"nodes"`

	// ImportNodes indexes the import_stmt nodes for resolver convenience.
	ImportNodes []int `json:"import_nodes,omitempty"`
}

// Root returns the module root node.
func (f *SourceFile) Root() *NormalizedNode {
	return &f.Nodes[0]
}

// Node returns the node at idx, or nil when out of range.
func (f *SourceFile) Node(idx int) *NormalizedNode {
	if idx < 0 || idx >= len(f.Nodes) {
		return nil
	}
	return &f.Nodes[idx]
}

// FunctionOf returns the arena index of the nearest enclosing function_def
// of idx, or -1 when the node sits at module scope. A function_def node is
// considered to enclose itself's body, not itself.
func (f *SourceFile) FunctionOf(idx int) int {
	n := f.Node(idx)
	if n == nil {
		return -1
	}
	for p := n.Parent; p >= 0; p = f.Nodes[p].Parent {
		if f.Nodes[p].Kind == KindFunctionDef {
			return p
		}
	}
	return -1
}

// Validate checks structural completeness of the normalized arena.
//
// Description:
//
//	Enforces the normalizer contract: the arena starts with a module root,
//	parent/child indices stay in range and agree with each other, every call
//	node carries a callee expression, and every definition carries a name.
//	A violation means the normalizer itself produced a malformed file and is
//	reported as a ParseError by the caller.
//
// Outputs:
//
//	error - Non-nil naming the first offending node. Nil when the arena is
//	structurally complete.
func (f *SourceFile) Validate() error {
	if len(f.Nodes) == 0 {
		return fmt.Errorf("empty node arena")
	}
	if f.Nodes[0].Kind != KindModule {
		return fmt.Errorf("node 0 is %s, expected module root", f.Nodes[0].Kind)
	}
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Index != i {
			return fmt.Errorf("node %d carries index %d", i, n.Index)
		}
		if i == 0 {
			if n.Parent != -1 {
				return fmt.Errorf("module root has parent %d", n.Parent)
			}
		} else if n.Parent < 0 || n.Parent >= len(f.Nodes) || n.Parent == i {
			return fmt.Errorf("node %d has invalid parent %d", i, n.Parent)
		}
		for _, c := range n.Children {
			if c <= 0 || c >= len(f.Nodes) {
				return fmt.Errorf("node %d has out-of-range child %d", i, c)
			}
			if f.Nodes[c].Parent != i {
				return fmt.Errorf("node %d lists child %d whose parent is %d", i, c, f.Nodes[c].Parent)
			}
		}
		switch n.Kind {
		case KindCallExpr:
			if n.Callee == "" {
				return fmt.Errorf("call node %d at line %d has empty callee", i, n.StartLine)
			}
		case KindFunctionDef, KindClassDef, KindParam:
			if n.Name == "" {
				return fmt.Errorf("%s node %d at line %d has empty name", n.Kind, i, n.StartLine)
			}
		case KindImportStmt:
			if n.Import == nil || n.Import.Specifier == "" {
				return fmt.Errorf("import node %d at line %d has no specifier", i, n.StartLine)
			}
		}
	}
	return nil
}

// ModulePath derives the dotted module path of a file: directory separators
// and the extension are dropped, so "pkg/util/db.py" becomes "pkg.util.db"
// and "src/util/index.js" becomes "src.util.index".
func ModulePath(filePath string) string {
	p := strings.TrimPrefix(filePath, "./")
	if i := strings.LastIndex(p, "."); i > 0 {
		p = p[:i]
	}
	p = strings.TrimSuffix(p, "/__init__")
	return strings.ReplaceAll(p, "/", ".")
}
