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
	"context"
	"path/filepath"
	"strings"

	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptParserOption configures a TypeScriptParser instance.
type TypeScriptParserOption func(*TypeScriptParser)

// WithTypeScriptMaxFileSize sets the maximum file size the parser accepts.
func WithTypeScriptMaxFileSize(bytes int64) TypeScriptParserOption {
	return func(p *TypeScriptParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// TypeScriptParser normalizes TypeScript and TSX source files.
//
// Description:
//
//	TSX files need the dedicated tsx grammar because JSX syntax is
//	ambiguous with type assertions under the plain TypeScript grammar.
//	The grammar is chosen per file from the extension; everything after
//	tree construction is the shared JavaScript walk, which already
//	understands the TypeScript-only declaration forms.
//
// Thread Safety:
//
//	Safe for concurrent use.
type TypeScriptParser struct {
	maxFileSize int64
	walker      jsWalker
}

// NewTypeScriptParser creates a TypeScriptParser with the given options.
func NewTypeScriptParser(opts ...TypeScriptParserOption) *TypeScriptParser {
	p := &TypeScriptParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse normalizes TypeScript source code. See PythonParser.Parse for the
// shared contract.
func (p *TypeScriptParser) Parse(ctx context.Context, content []byte, filePath string) (*SourceFile, error) {
	grammar := typescript.GetLanguage()
	if strings.EqualFold(filepath.Ext(filePath), ".tsx") {
		grammar = tsx.GetLanguage()
	}
	return parseWithGrammar(ctx, parseRequest{
		language:    "typescript",
		grammar:     grammar,
		maxFileSize: p.maxFileSize,
		walker:      &p.walker,
	}, content, filePath)
}

// Language returns "typescript".
func (p *TypeScriptParser) Language() string {
	return "typescript"
}

// Extensions returns the extensions this parser handles.
func (p *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".mts", ".cts"}
}
