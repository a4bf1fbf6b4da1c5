// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symbols

import (
	"sort"
	"strings"
)

// TableStats summarizes a resolution pass.
type TableStats struct {
	Files      int `json:"files"`
	Symbols    int `json:"symbols"`
	Bindings   int `json:"bindings"`
	Unresolved int `json:"unresolved"`
	Passes     int `json:"passes"`

	// BoundExceeded is set when the re-export fixed point still had work
	// after the file-count pass bound. Remaining names stay unresolved.
	BoundExceeded bool `json:"bound_exceeded,omitempty"`
}

// Table is the resolved project-wide symbol table.
//
// Description:
//
//	Read-only after Resolve returns. Lookups answer the two questions the
//	graph builder asks: "what does this local name mean in this file" and
//	"which definition does this dotted callee path land on".
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent readers.
type Table struct {
	index *Index

	// bindings: file path -> local name -> binding.
	bindings map[string]map[string]*Binding

	// exports: module path -> exported name -> symbol ID.
	exports map[string]map[string]string

	// wildcardSources: file path -> target module paths of `import *`
	// style imports, in source order.
	wildcardSources map[string][]string

	// moduleAliases: file path -> dotted local alias -> module path. Covers
	// `import a.b`, `import numpy as np` and `import * as ns` forms where a
	// dotted callee prefix names a module object.
	moduleAliases map[string]map[string]string

	// moduleByPath: module path -> module symbol ID.
	moduleByPath map[string]string

	// localDefs: file path -> top-level definition name -> symbol ID.
	localDefs map[string]map[string]string

	files []string
	stats TableStats
}

// Index exposes the underlying symbol index.
func (t *Table) Index() *Index {
	return t.index
}

// Stats returns the resolution statistics.
func (t *Table) Stats() TableStats {
	return t.stats
}

// Files returns the resolved file paths in ascending order.
func (t *Table) Files() []string {
	out := make([]string, len(t.files))
	copy(out, t.files)
	return out
}

// SymbolByID looks a symbol up by identity.
func (t *Table) SymbolByID(id string) (*Symbol, bool) {
	return t.index.GetByID(id)
}

// ModuleSymbol returns the module symbol of a file.
func (t *Table) ModuleSymbol(filePath string) (*Symbol, bool) {
	id, ok := t.moduleByPath[modulePathOf(filePath)]
	if !ok {
		return nil, false
	}
	return t.index.GetByID(id)
}

// Binding returns the import binding for a local name in a file.
func (t *Table) Binding(filePath, name string) (*Binding, bool) {
	b, ok := t.bindings[filePath][name]
	return b, ok
}

// Bindings returns all bindings of a file sorted by local name.
func (t *Table) Bindings(filePath string) []*Binding {
	m := t.bindings[filePath]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Binding, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UnresolvedBindings returns every unresolved binding, sorted by file,
// import node and name.
func (t *Table) UnresolvedBindings() []*Binding {
	var out []*Binding
	for _, file := range t.files {
		for _, b := range t.bindings[file] {
			if b.Unresolved {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].ImportNode != out[j].ImportNode {
			return out[i].ImportNode < out[j].ImportNode
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ExportsOf returns the exported names of a module path in ascending
// order.
func (t *Table) ExportsOf(modulePath string) []string {
	m := t.exports[modulePath]
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SymbolFor resolves a bare local name visible in a file to its canonical
// symbol.
//
// Description:
//
//	Innermost meaning first: a top-level definition in the file shadows an
//	import of the same name, explicit import bindings come next, and
//	wildcard imports are consulted last in source order with first match
//	winning. Function-local shadowing is the normalizer's concern; the
//	table only answers for file scope.
func (t *Table) SymbolFor(filePath, name string) (*Symbol, bool) {
	if id, ok := t.localDefs[filePath][name]; ok {
		return t.index.GetByID(id)
	}
	if b, ok := t.bindings[filePath][name]; ok && !b.Unresolved {
		return t.index.GetByID(b.Target)
	}
	for _, mod := range t.wildcardSources[filePath] {
		if id, ok := t.exports[mod][name]; ok {
			return t.index.GetByID(id)
		}
	}
	return nil, false
}

// ResolveCallee resolves a dotted callee path as seen at a call site to a
// canonical symbol.
//
// Description:
//
//	Module aliases are tried first, longest dotted prefix winning, so
//	`import a.b` resolves `a.b.f()` against module a.b and `import numpy
//	as np` resolves `np.array()` against numpy. Otherwise the first path
//	segment resolves like a bare name: landing on a module walks that
//	module's exports and submodules, landing on a class resolves the
//	remainder as a nested qualified name (a method). Anything rooted in a
//	plain variable is opaque; the call stays unresolved and the caller
//	treats it as a dead end.
func (t *Table) ResolveCallee(filePath, callee string) (*Symbol, bool) {
	if callee == "" || strings.ContainsAny(callee, "()[] ") {
		// Computed callees (chained call results, subscripts) are opaque.
		return nil, false
	}
	segs := strings.Split(callee, ".")

	if aliases := t.moduleAliases[filePath]; len(aliases) > 0 {
		for n := len(segs) - 1; n >= 1; n-- {
			prefix := strings.Join(segs[:n], ".")
			mod, ok := aliases[prefix]
			if !ok {
				continue
			}
			id, ok := t.moduleByPath[mod]
			if !ok {
				return nil, false
			}
			root, ok := t.index.GetByID(id)
			if !ok {
				return nil, false
			}
			return t.descend(root, segs[n:])
		}
	}

	root, ok := t.SymbolFor(filePath, segs[0])
	if !ok {
		return nil, false
	}
	return t.descend(root, segs[1:])
}

// descend walks the remaining path segments from a resolved root symbol.
func (t *Table) descend(sym *Symbol, rest []string) (*Symbol, bool) {
	for len(rest) > 0 {
		if sym == nil {
			return nil, false
		}
		switch sym.Kind {
		case SymbolKindModule:
			modPath := sym.Qualified
			if id, ok := t.exports[modPath][rest[0]]; ok {
				next, ok := t.index.GetByID(id)
				if !ok {
					return nil, false
				}
				sym = next
				rest = rest[1:]
				continue
			}
			// Not an export; maybe a submodule of the package.
			if id, ok := t.moduleByPath[modPath+"."+rest[0]]; ok {
				next, _ := t.index.GetByID(id)
				sym = next
				rest = rest[1:]
				continue
			}
			return nil, false
		case SymbolKindClass:
			// The remainder names a member of the class.
			qualified := sym.Qualified + "." + strings.Join(rest, ".")
			if member, ok := t.index.GetByQualified(qualified); ok {
				return member, true
			}
			return nil, false
		default:
			// Attribute access on a function or variable value is opaque.
			return nil, false
		}
	}
	return sym, sym != nil
}
