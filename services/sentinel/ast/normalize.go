// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"bytes"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
)

// binarySniffLen is how many leading bytes are inspected for a NUL byte when
// deciding whether content is binary. Matches the git heuristic.
const binarySniffLen = 8000

// looksBinary reports whether content appears to be binary data.
func looksBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

// fileBuilder accumulates the normalized arena for one file.
//
// All mutation goes through index-based helpers: the arena slice reallocates
// as it grows, so pointers into it must never be held across an add.
type fileBuilder struct {
	f       *SourceFile
	content []byte
}

func newFileBuilder(path, language string, content []byte, hash string) *fileBuilder {
	return &fileBuilder{
		f: &SourceFile{
			Path:          path,
			Language:      language,
			Hash:          hash,
			Size:          len(content),
			ParsedAtMilli: time.Now().UnixMilli(),
			Nodes:         make([]NormalizedNode, 0, 64),
		},
		content: content,
	}
}

// text returns the source text of a tree-sitter node.
func (b *fileBuilder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(b.content[n.StartByte():n.EndByte()])
}

// addRoot appends the module root node covering the whole file.
func (b *fileBuilder) addRoot(root *sitter.Node) int {
	b.f.Nodes = append(b.f.Nodes, NormalizedNode{
		Index:     0,
		Kind:      KindModule,
		StartByte: root.StartByte(),
		EndByte:   root.EndByte(),
		StartLine: int(root.StartPoint().Row) + 1,
		EndLine:   int(root.EndPoint().Row) + 1,
		Parent:    -1,
	})
	return 0
}

// add appends a node positioned at ts under parent and returns its index.
func (b *fileBuilder) add(kind NodeKind, ts *sitter.Node, parent int) int {
	idx := len(b.f.Nodes)
	b.f.Nodes = append(b.f.Nodes, NormalizedNode{
		Index:     idx,
		Kind:      kind,
		StartByte: ts.StartByte(),
		EndByte:   ts.EndByte(),
		StartLine: int(ts.StartPoint().Row) + 1,
		EndLine:   int(ts.EndPoint().Row) + 1,
		Parent:    parent,
	})
	b.f.Nodes[parent].Children = append(b.f.Nodes[parent].Children, idx)
	if kind == KindImportStmt {
		b.f.ImportNodes = append(b.f.ImportNodes, idx)
	}
	return idx
}

func (b *fileBuilder) setName(idx int, name string)     { b.f.Nodes[idx].Name = name }
func (b *fileBuilder) setCallee(idx int, callee string) { b.f.Nodes[idx].Callee = callee }
func (b *fileBuilder) setStmt(idx int)                  { b.f.Nodes[idx].Stmt = true }
func (b *fileBuilder) setBranch(idx int, branch string) { b.f.Nodes[idx].Branch = branch }
func (b *fileBuilder) setExported(idx int, ex bool)     { b.f.Nodes[idx].Exported = ex }
func (b *fileBuilder) setDefaultExport(idx int)         { b.f.Nodes[idx].Default = true }
func (b *fileBuilder) setImport(idx int, im *ImportInfo) {
	b.f.Nodes[idx].Import = im
}

func (b *fileBuilder) setLiteralValue(idx int, raw string) {
	if len(raw) > MaxLiteralValueLen {
		raw = raw[:MaxLiteralValueLen]
	}
	b.f.Nodes[idx].Value = raw
}

// addRead records a variable read on node idx, respecting lexical shadows
// (lambda parameters, comprehension variables) and deduplicating.
func (b *fileBuilder) addRead(idx int, name string, shadows map[string]bool) {
	if name == "" || shadows[name] {
		return
	}
	for _, r := range b.f.Nodes[idx].Reads {
		if r == name {
			return
		}
	}
	b.f.Nodes[idx].Reads = append(b.f.Nodes[idx].Reads, name)
}

// addWrite records a variable write on node idx, deduplicating.
func (b *fileBuilder) addWrite(idx int, name string) {
	if name == "" {
		return
	}
	for _, w := range b.f.Nodes[idx].Writes {
		if w == name {
			return
		}
	}
	b.f.Nodes[idx].Writes = append(b.f.Nodes[idx].Writes, name)
}

func (b *fileBuilder) finish() *SourceFile {
	return b.f
}

// namedChildren returns the named children of a tree-sitter node in order.
func namedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// cloneShadows copies a shadow set before extending it for a nested scope.
func cloneShadows(shadows map[string]bool) map[string]bool {
	out := make(map[string]bool, len(shadows)+4)
	for k := range shadows {
		out[k] = true
	}
	return out
}
