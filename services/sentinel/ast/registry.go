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
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFileSize is the largest file a parser accepts (10 MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// WarnFileSize is the size above which a parse logs a slow-file warning (1 MB).
const WarnFileSize = 1 * 1024 * 1024

// Parser normalizes one language.
//
// Description:
//
//	Implementations own a tree-sitter grammar and translate its parse tree
//	into the normalized arena. Parse must be a pure transformation of
//	(content, filePath): no cross-file state, no side effects.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent Parse calls; each call
//	creates its own tree-sitter parser internally because tree-sitter
//	parser instances are not concurrency-safe.
type Parser interface {
	// Parse normalizes content into a SourceFile. Returns *ParseError for
	// syntax or structural failures, ErrFileTooLarge / ErrInvalidContent /
	// ErrBinaryFile for rejected content.
	Parse(ctx context.Context, content []byte, filePath string) (*SourceFile, error)

	// Language returns the canonical language tag ("python", "javascript",
	// "typescript").
	Language() string

	// Extensions returns the file extensions this parser handles, with the
	// leading dot.
	Extensions() []string
}

// Registry dispatches a language tag or file extension to its parser.
//
// Thread Safety: read-only after construction; safe for concurrent use.
type Registry struct {
	byLang map[string]Parser
	byExt  map[string]Parser
}

// NewRegistry builds a registry over the given parsers. A later parser
// claiming an already-registered language or extension wins, which lets a
// caller override one language of the default set.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{
		byLang: make(map[string]Parser, len(parsers)),
		byExt:  make(map[string]Parser),
	}
	for _, p := range parsers {
		r.byLang[p.Language()] = p
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// DefaultRegistry returns a registry over the built-in Python, JavaScript
// and TypeScript parsers.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewPythonParser(),
		NewJavaScriptParser(),
		NewTypeScriptParser(),
	)
}

// ForLanguage returns the parser for a language tag.
//
// Outputs:
//
//	Parser - The registered parser.
//	error - Wraps ErrUnsupportedLanguage when no parser claims the tag.
func (r *Registry) ForLanguage(lang string) (Parser, error) {
	p, ok := r.byLang[strings.ToLower(lang)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	return p, nil
}

// ForPath returns the parser responsible for a file path, keyed on its
// extension. The boolean is false for extensions nothing claims; callers
// skip those files rather than erroring.
func (r *Registry) ForPath(path string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// Languages returns the registered language tags, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.byLang))
	for l := range r.byLang {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for e := range r.byExt {
		exts = append(exts, e)
	}
	sort.Strings(exts)
	return exts
}
