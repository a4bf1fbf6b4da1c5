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
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
)

// jsExtensions lists the candidate extensions for JavaScript and TypeScript
// specifier resolution, in priority order.
var jsExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}

// modulePathOf converts a file path into its dotted module path.
func modulePathOf(filePath string) string {
	return ast.ModulePath(filePath)
}

// Resolve builds the project-wide symbol table from a set of normalized
// files.
//
// Description:
//
//	Three steps. First every top-level definition registers a canonical
//	symbol (module, function, class, method, module-level variable).
//	Second, import specifiers resolve against the project file set and
//	become work items. Third, the work items run to a fixed point so
//	aliases, re-exports and wildcard exports chain correctly; the pass
//	count is bounded by the file count, and anything still unresolved
//	after the bound is retained as an unresolved binding rather than
//	looped on.
//
// Inputs:
//
//	ctx - cancellation; checked between passes
//	files - normalized source files; order does not matter, resolution
//	        sorts by path internally
//
// Outputs:
//
//	*Table - immutable symbol table
//	error - context cancellation or an internal invariant violation
//
// Determinism:
//
//	Identical file sets produce identical tables: files process in
//	ascending path order, definitions in arena order, import names in
//	source order.
//
// Thread Safety:
//
//	Resolve runs single-threaded over the full file set; the returned
//	Table is safe for concurrent readers.
func Resolve(ctx context.Context, files []*ast.SourceFile) (*Table, error) {
	ctx, span := startResolveSpan(ctx, len(files))
	defer span.End()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		setResolveSpanResult(span, 0, 0, err)
		return nil, fmt.Errorf("symbol resolution canceled: %w", err)
	}

	r := newResolver(files)
	if err := r.registerDefinitions(); err != nil {
		setResolveSpanResult(span, 0, 0, err)
		return nil, err
	}
	r.seedExports()
	r.collectTasks()

	if err := r.runFixedPoint(ctx); err != nil {
		setResolveSpanResult(span, 0, 0, err)
		return nil, err
	}
	r.finalizeUnresolved()

	t := r.table()
	setResolveSpanResult(span, t.stats.Symbols, t.stats.Unresolved, nil)
	recordResolveMetrics(time.Since(start), t.stats.Symbols, t.stats.Unresolved)
	return t, nil
}

// importTask is one import name awaiting resolution against the growing
// export maps.
type importTask struct {
	file       string
	mod        string
	importNode int
	specifier  string

	// Resolved target: a module path, a package directory, or both when
	// the specifier names a package with an __init__ module.
	targetMod string
	targetDir string

	// name is the exported name being imported; empty for module-object
	// bindings. alias is the local name.
	name  string
	alias string

	wildcard bool
	reExport bool

	// toExports marks tasks whose resolved target also enters the
	// importing module's export map (Python module attributes, JS
	// re-exports).
	toExports bool

	done bool
}

type resolver struct {
	files  []*ast.SourceFile
	byPath map[string]*ast.SourceFile
	dirs   map[string]bool

	index        *Index
	localDefs    map[string]map[string]string
	moduleByPath map[string]string
	exports      map[string]map[string]string
	bindings     map[string]map[string]*Binding
	wildcards    map[string][]string
	aliases      map[string]map[string]string

	tasks []*importTask

	passes        int
	boundExceeded bool
	maxEntries    int
	bindingCount  int
}

func newResolver(files []*ast.SourceFile) *resolver {
	sorted := make([]*ast.SourceFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	r := &resolver{
		files:        sorted,
		byPath:       make(map[string]*ast.SourceFile, len(sorted)),
		dirs:         make(map[string]bool),
		index:        NewIndex(),
		localDefs:    make(map[string]map[string]string, len(sorted)),
		moduleByPath: make(map[string]string, len(sorted)),
		exports:      make(map[string]map[string]string, len(sorted)),
		bindings:     make(map[string]map[string]*Binding, len(sorted)),
		wildcards:    make(map[string][]string),
		aliases:      make(map[string]map[string]string),
	}
	for _, f := range sorted {
		r.byPath[f.Path] = f
		for d := path.Dir(f.Path); d != "." && d != "/" && d != ""; d = path.Dir(d) {
			r.dirs[d] = true
		}
	}
	return r
}

// registerDefinitions creates the canonical symbol for every module and
// every top-level definition.
func (r *resolver) registerDefinitions() error {
	var batch []*Symbol

	for _, f := range r.files {
		mod := modulePathOf(f.Path)
		defs := make(map[string]string)
		r.localDefs[f.Path] = defs

		root := f.Root()
		moduleSym := &Symbol{
			ID:        SymbolID(f.Path, 0),
			Qualified: mod,
			Name:      lastSegment(mod),
			Kind:      SymbolKindModule,
			FilePath:  f.Path,
			Language:  f.Language,
			NodeIndex: 0,
			StartByte: root.StartByte,
			EndByte:   root.EndByte,
			Line:      uint32(root.StartLine),
			Exported:  true,
		}
		// Two files can share a module path (a.py vs a/__init__.py never
		// collide, but a.py vs a.pyi do). First file in path order wins.
		if _, taken := r.moduleByPath[mod]; !taken {
			r.moduleByPath[mod] = moduleSym.ID
			batch = append(batch, moduleSym)
		}

		seenQualified := make(map[string]bool)
		for i := range f.Nodes {
			n := &f.Nodes[i]
			switch n.Kind {
			case ast.KindFunctionDef, ast.KindClassDef:
				if n.Name == "" || f.FunctionOf(i) != -1 {
					continue
				}
				clsIdx := enclosingClass(f, i)
				var qualified string
				var kind SymbolKind
				switch {
				case n.Kind == ast.KindFunctionDef && clsIdx >= 0:
					if enclosingClass(f, clsIdx) >= 0 {
						continue
					}
					qualified = mod + "." + f.Nodes[clsIdx].Name + "." + n.Name
					kind = SymbolKindMethod
				case clsIdx >= 0:
					// Classes nested inside classes are not importable
					// top-level names.
					continue
				case n.Kind == ast.KindClassDef:
					qualified = mod + "." + n.Name
					kind = SymbolKindClass
				default:
					qualified = mod + "." + n.Name
					kind = SymbolKindFunction
				}
				if seenQualified[qualified] {
					continue
				}
				seenQualified[qualified] = true

				sym := &Symbol{
					ID:        SymbolID(f.Path, i),
					Qualified: qualified,
					Name:      n.Name,
					Kind:      kind,
					FilePath:  f.Path,
					Language:  f.Language,
					NodeIndex: i,
					StartByte: n.StartByte,
					EndByte:   n.EndByte,
					Line:      uint32(n.StartLine),
					Exported:  n.Exported,
				}
				batch = append(batch, sym)
				if kind != SymbolKindMethod {
					if _, taken := defs[n.Name]; !taken {
						defs[n.Name] = sym.ID
					}
				}

			case ast.KindAssignment:
				if f.FunctionOf(i) != -1 || enclosingClass(f, i) >= 0 {
					continue
				}
				for _, name := range n.Writes {
					if name == "" {
						continue
					}
					if _, taken := defs[name]; taken {
						continue
					}
					qualified := mod + "." + name
					if seenQualified[qualified] {
						continue
					}
					seenQualified[qualified] = true
					sym := &Symbol{
						ID:        SymbolID(f.Path, i),
						Qualified: qualified,
						Name:      name,
						Kind:      SymbolKindVariable,
						FilePath:  f.Path,
						Language:  f.Language,
						NodeIndex: i,
						StartByte: n.StartByte,
						EndByte:   n.EndByte,
						Line:      uint32(n.StartLine),
						Exported:  !strings.HasPrefix(name, "_"),
					}
					batch = append(batch, sym)
					defs[name] = sym.ID
				}
			}
		}
	}

	if err := r.index.AddBatch(batch); err != nil {
		return fmt.Errorf("registering definitions: %w", err)
	}

	// Theoretical ceiling for the export fixed point: every module can at
	// most export every distinct name in the project.
	totalNames := r.index.Len()
	for _, f := range r.files {
		for _, idx := range f.ImportNodes {
			info := f.Nodes[idx].Import
			if info == nil {
				continue
			}
			totalNames += len(info.Names) + 1
		}
	}
	r.maxEntries = (len(r.files) + 1) * (totalNames + 1)
	return nil
}

// seedExports initializes each module's export map with its own exported
// definitions.
func (r *resolver) seedExports() {
	for _, f := range r.files {
		mod := modulePathOf(f.Path)
		ex := make(map[string]string)
		for name, id := range r.localDefs[f.Path] {
			sym, ok := r.index.GetByID(id)
			if !ok || !sym.Exported {
				continue
			}
			ex[name] = id
			if sym.NodeIndex < len(f.Nodes) && f.Nodes[sym.NodeIndex].Default {
				ex["default"] = id
			}
		}
		if existing, ok := r.exports[mod]; ok {
			// Module path collision (a.py vs a.pyi): merge, first file's
			// entries win.
			for name, id := range ex {
				if _, taken := existing[name]; !taken {
					existing[name] = id
				}
			}
			continue
		}
		r.exports[mod] = ex
	}
}

// collectTasks turns every import node into work items and resolves the
// module-object bindings that need no fixed point.
func (r *resolver) collectTasks() {
	for _, f := range r.files {
		mod := modulePathOf(f.Path)
		for _, idx := range f.ImportNodes {
			n := &f.Nodes[idx]
			info := n.Import
			if info == nil {
				continue
			}

			targetMod, targetDir, ok := r.resolveSpecifier(f, info)
			if !ok {
				r.markImportUnresolved(f.Path, n, info)
				continue
			}

			// Module-object binding: `import a.b`, `import m as alias`,
			// `import * as ns`, `const db = require('./db')`.
			if n.Name != "" {
				r.bindModuleObject(f, n, info, targetMod, targetDir)
			}

			if info.Wildcard {
				task := &importTask{
					file: f.Path, mod: mod, importNode: idx,
					specifier: info.Specifier,
					targetMod: targetMod, targetDir: targetDir,
					wildcard:  true,
					reExport:  info.ReExport,
					toExports: info.ReExport || f.Language == "python",
				}
				r.tasks = append(r.tasks, task)
				if !info.ReExport {
					r.wildcards[f.Path] = append(r.wildcards[f.Path], targetMod)
				}
			}

			for _, im := range info.Names {
				r.tasks = append(r.tasks, &importTask{
					file: f.Path, mod: mod, importNode: idx,
					specifier: info.Specifier,
					targetMod: targetMod, targetDir: targetDir,
					name: im.Name, alias: im.Alias,
					reExport:  info.ReExport,
					toExports: info.ReExport || f.Language == "python",
				})
			}
		}
	}
}

// bindModuleObject resolves a local name that refers to a whole module.
func (r *resolver) bindModuleObject(f *ast.SourceFile, n *ast.NormalizedNode, info *ast.ImportInfo, targetMod, targetDir string) {
	alias := n.Name

	// `import a.b` without an alias binds the root package name; the
	// dotted path stays addressable through the alias map.
	if alias == firstSegment(info.Specifier) && strings.Contains(info.Specifier, ".") && f.Language == "python" {
		if id, ok := r.moduleByPath[alias]; ok {
			r.setBinding(f.Path, &Binding{
				File: f.Path, Name: alias, Target: id,
				Specifier: info.Specifier, ImportNode: n.Index,
			})
			r.setAlias(f.Path, alias, alias)
		}
		if targetMod != "" {
			r.setAlias(f.Path, info.Specifier, targetMod)
		}
		return
	}

	mod := targetMod
	if mod == "" {
		// Package directory without an importable module file.
		r.setBinding(f.Path, &Binding{
			File: f.Path, Name: alias,
			Specifier: info.Specifier, ImportNode: n.Index,
			Unresolved: true,
		})
		return
	}
	id, ok := r.moduleByPath[mod]
	if !ok {
		r.setBinding(f.Path, &Binding{
			File: f.Path, Name: alias,
			Specifier: info.Specifier, ImportNode: n.Index,
			Unresolved: true,
		})
		return
	}
	r.setBinding(f.Path, &Binding{
		File: f.Path, Name: alias, Target: id,
		Specifier: info.Specifier, ImportNode: n.Index,
	})
	r.setAlias(f.Path, alias, mod)
}

// markImportUnresolved records bindings for an import whose specifier
// never resolved (external packages, missing files).
func (r *resolver) markImportUnresolved(filePath string, n *ast.NormalizedNode, info *ast.ImportInfo) {
	if n.Name != "" {
		r.setBinding(filePath, &Binding{
			File: filePath, Name: n.Name,
			Specifier: info.Specifier, ImportNode: n.Index,
			Unresolved: true,
		})
	}
	for _, im := range info.Names {
		r.setBinding(filePath, &Binding{
			File: filePath, Name: im.Alias,
			Specifier: info.Specifier, ImportNode: n.Index,
			Unresolved: true,
		})
	}
	if info.Wildcard {
		r.setBinding(filePath, &Binding{
			File: filePath, Name: "*",
			Specifier: info.Specifier, ImportNode: n.Index,
			Unresolved: true,
		})
	}
}

// runFixedPoint resolves the collected tasks against the export maps until
// nothing changes, bounded by the file count.
func (r *resolver) runFixedPoint(ctx context.Context) error {
	bound := len(r.files) + 1
	prevTotal := r.exportEntryCount()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("symbol resolution canceled at pass %d: %w", r.passes, err)
		}
		if r.passes >= bound {
			pending := 0
			for _, t := range r.tasks {
				if !t.done && !t.wildcard {
					pending++
				}
			}
			if pending > 0 || r.anyWildcardPending() {
				r.boundExceeded = true
				slog.Warn("symbol resolution pass bound reached with work remaining",
					slog.Int("passes", r.passes),
					slog.Int("pending", pending))
			}
			return nil
		}
		r.passes++

		changed := false
		for _, t := range r.tasks {
			if t.done {
				continue
			}
			if t.wildcard {
				if r.copyWildcard(t) {
					changed = true
				}
				continue
			}
			if r.resolveTask(t) {
				changed = true
			}
		}

		total := r.exportEntryCount()
		if total < prevTotal {
			return fmt.Errorf("%w: export entries shrank from %d to %d in pass %d",
				ErrInvariantViolation, prevTotal, total, r.passes)
		}
		if total > r.maxEntries {
			return fmt.Errorf("%w: export entries %d exceed theoretical maximum %d",
				ErrInvariantViolation, total, r.maxEntries)
		}
		prevTotal = total

		if !changed {
			return nil
		}
	}
}

// copyWildcard pulls newly visible names from a wildcard task's target
// module. Returns true when at least one name was new.
func (r *resolver) copyWildcard(t *importTask) bool {
	if t.targetMod == "" {
		return false
	}
	src := r.exports[t.targetMod]
	if len(src) == 0 {
		return false
	}
	if !t.toExports {
		return false
	}
	dst := r.exports[t.mod]
	if dst == nil {
		dst = make(map[string]string)
		r.exports[t.mod] = dst
	}

	// Deterministic iteration so first-write-wins is stable.
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	added := false
	for _, name := range names {
		// Wildcards never re-publish default exports or private names.
		if name == "default" || strings.HasPrefix(name, "_") {
			continue
		}
		if _, taken := dst[name]; taken {
			continue
		}
		dst[name] = src[name]
		added = true
	}
	return added
}

// anyWildcardPending reports whether a wildcard task could still copy new
// names.
func (r *resolver) anyWildcardPending() bool {
	for _, t := range r.tasks {
		if !t.done && t.wildcard && t.toExports && t.targetMod != "" {
			dst := r.exports[t.mod]
			for name := range r.exports[t.targetMod] {
				if name == "default" || strings.HasPrefix(name, "_") {
					continue
				}
				if _, taken := dst[name]; !taken {
					return true
				}
			}
		}
	}
	return false
}

// resolveTask tries to resolve one named import. Returns true when the
// task completed this pass.
func (r *resolver) resolveTask(t *importTask) bool {
	var targetID string

	// A name imported from a package can be a submodule file before it is
	// an attribute of the package module.
	if t.targetDir != "" {
		if modFile, ok := r.findPythonModule(path.Join(t.targetDir, t.name)); ok {
			targetID = r.moduleByPath[modulePathOf(modFile)]
		}
	}
	if targetID == "" && t.targetMod != "" {
		if id, ok := r.exports[t.targetMod][t.name]; ok {
			targetID = id
		} else if id, ok := r.moduleByPath[t.targetMod+"."+t.name]; ok {
			// `from a import b` where b is a submodule of package a.
			targetID = id
		}
	}
	if targetID == "" {
		return false
	}

	t.done = true
	if !t.reExport {
		r.setBinding(t.file, &Binding{
			File: t.file, Name: t.alias, Target: targetID,
			Specifier: t.specifier, ImportNode: t.importNode,
		})
		if sym, ok := r.index.GetByID(targetID); ok && sym.Kind == SymbolKindModule {
			r.setAlias(t.file, t.alias, sym.Qualified)
		}
	}
	if t.toExports {
		dst := r.exports[t.mod]
		if dst == nil {
			dst = make(map[string]string)
			r.exports[t.mod] = dst
		}
		if _, taken := dst[t.alias]; !taken {
			dst[t.alias] = targetID
		}
	}
	return true
}

// finalizeUnresolved converts tasks that never resolved into retained,
// flagged bindings.
func (r *resolver) finalizeUnresolved() {
	for _, t := range r.tasks {
		if t.done || t.wildcard {
			continue
		}
		r.setBinding(t.file, &Binding{
			File: t.file, Name: t.alias,
			Specifier: t.specifier, ImportNode: t.importNode,
			Unresolved: true,
		})
	}
}

// setBinding installs a binding; a later import of the same name wins over
// an earlier one regardless of resolution order.
func (r *resolver) setBinding(filePath string, b *Binding) {
	m := r.bindings[filePath]
	if m == nil {
		m = make(map[string]*Binding)
		r.bindings[filePath] = m
	}
	key := b.Name
	if b.Name == "*" {
		key = "*" + b.Specifier
	}
	if existing, ok := m[key]; ok {
		if existing.ImportNode > b.ImportNode {
			return
		}
	} else {
		r.bindingCount++
	}
	m[key] = b
}

func (r *resolver) setAlias(filePath, alias, mod string) {
	m := r.aliases[filePath]
	if m == nil {
		m = make(map[string]string)
		r.aliases[filePath] = m
	}
	m[alias] = mod
}

func (r *resolver) exportEntryCount() int {
	total := 0
	for _, m := range r.exports {
		total += len(m)
	}
	return total
}

// resolveSpecifier maps an import specifier onto a module file and/or a
// package directory within the project.
func (r *resolver) resolveSpecifier(f *ast.SourceFile, info *ast.ImportInfo) (targetMod, targetDir string, ok bool) {
	switch f.Language {
	case "python":
		return r.resolvePython(f, info)
	case "javascript", "typescript":
		return r.resolveJS(f, info)
	default:
		return "", "", false
	}
}

// resolvePython handles absolute and relative Python specifiers.
func (r *resolver) resolvePython(f *ast.SourceFile, info *ast.ImportInfo) (string, string, bool) {
	if info.Level > 0 {
		base := path.Dir(f.Path)
		if base == "." {
			base = ""
		}
		for hop := 1; hop < info.Level; hop++ {
			if base == "" {
				return "", "", false
			}
			base = path.Dir(base)
			if base == "." {
				base = ""
			}
		}
		if info.Specifier == "." {
			if base == "" || r.dirs[base] {
				return r.packageAt(base)
			}
			return "", "", false
		}
		full := joinModulePath(base, info.Specifier)
		return r.pythonTarget(full)
	}

	full := strings.ReplaceAll(info.Specifier, ".", "/")
	// Project root first, then the importing file's directory; sibling
	// imports in nested layouts resolve through the second root.
	if mod, dir, ok := r.pythonTarget(full); ok {
		return mod, dir, true
	}
	if base := path.Dir(f.Path); base != "." && base != "" {
		if mod, dir, ok := r.pythonTarget(path.Join(base, full)); ok {
			return mod, dir, true
		}
	}
	return "", "", false
}

// pythonTarget resolves a slash path to a module file and/or package dir.
func (r *resolver) pythonTarget(full string) (string, string, bool) {
	mod := ""
	if file, ok := r.findPythonModule(full); ok {
		mod = modulePathOf(file)
	}
	dir := ""
	if r.dirs[full] {
		dir = full
	}
	if mod == "" && dir == "" {
		return "", "", false
	}
	return mod, dir, true
}

// packageAt resolves a directory to its package module (the __init__
// file) plus the directory itself. The project root is reported as ".".
func (r *resolver) packageAt(dir string) (string, string, bool) {
	initPath := "__init__.py"
	outDir := "."
	if dir != "" {
		initPath = dir + "/__init__.py"
		outDir = dir
	}
	if _, ok := r.byPath[initPath]; ok {
		return modulePathOf(initPath), outDir, true
	}
	if dir == "" || r.dirs[dir] {
		return "", outDir, true
	}
	return "", "", false
}

// findPythonModule checks the candidate file names for a module path
// without extension.
func (r *resolver) findPythonModule(full string) (string, bool) {
	for _, candidate := range []string{full + ".py", full + "/__init__.py", full + ".pyi"} {
		if _, ok := r.byPath[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// resolveJS handles relative JavaScript/TypeScript specifiers. Bare
// specifiers are external packages and stay unresolved.
func (r *resolver) resolveJS(f *ast.SourceFile, info *ast.ImportInfo) (string, string, bool) {
	spec := info.Specifier
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return "", "", false
	}
	joined := path.Clean(path.Join(path.Dir(f.Path), spec))

	// Specifier already carries an extension.
	if ext := path.Ext(joined); ext != "" {
		if _, ok := r.byPath[joined]; ok {
			return modulePathOf(joined), "", true
		}
	}
	for _, ext := range jsExtensions {
		if _, ok := r.byPath[joined+ext]; ok {
			return modulePathOf(joined + ext), "", true
		}
	}
	for _, ext := range jsExtensions {
		candidate := joined + "/index" + ext
		if _, ok := r.byPath[candidate]; ok {
			return modulePathOf(candidate), "", true
		}
	}
	return "", "", false
}

// table freezes the resolver state into the immutable Table.
func (r *resolver) table() *Table {
	files := make([]string, len(r.files))
	for i, f := range r.files {
		files[i] = f.Path
	}

	unresolved := 0
	for _, m := range r.bindings {
		for _, b := range m {
			if b.Unresolved {
				unresolved++
			}
		}
	}

	return &Table{
		index:           r.index,
		bindings:        r.bindings,
		exports:         r.exports,
		wildcardSources: r.wildcards,
		moduleAliases:   r.aliases,
		moduleByPath:    r.moduleByPath,
		localDefs:       r.localDefs,
		files:           files,
		stats: TableStats{
			Files:         len(r.files),
			Symbols:       r.index.Len(),
			Bindings:      r.bindingCount,
			Unresolved:    unresolved,
			Passes:        r.passes,
			BoundExceeded: r.boundExceeded,
		},
	}
}

// enclosingClass returns the nearest class ancestor of a node, stopping at
// function boundaries, or -1.
func enclosingClass(f *ast.SourceFile, idx int) int {
	for p := f.Nodes[idx].Parent; p >= 0; p = f.Nodes[p].Parent {
		switch f.Nodes[p].Kind {
		case ast.KindClassDef:
			return p
		case ast.KindFunctionDef:
			return -1
		}
	}
	return -1
}

func lastSegment(mod string) string {
	if i := strings.LastIndex(mod, "."); i >= 0 {
		return mod[i+1:]
	}
	return mod
}

func firstSegment(spec string) string {
	if i := strings.Index(spec, "."); i >= 0 {
		return spec[:i]
	}
	return spec
}

func joinModulePath(base, spec string) string {
	rel := strings.ReplaceAll(spec, ".", "/")
	if base == "" {
		return rel
	}
	return path.Join(base, rel)
}
