// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package symbols builds the project-wide symbol table: canonical symbols
// for every top-level definition, plus per-file bindings that map imported
// names onto those symbols. The resolver follows aliases, re-exports and
// wildcard exports to a bounded fixed point; dynamic access (getattr,
// computed member lookup) is invisible to it.
package symbols

import (
	"errors"
	"fmt"
)

// SymbolKind classifies what a symbol defines.
type SymbolKind string

const (
	SymbolKindFunction SymbolKind = "function"
	SymbolKindClass    SymbolKind = "class"
	SymbolKindMethod   SymbolKind = "method"
	SymbolKindVariable SymbolKind = "variable"
	SymbolKindModule   SymbolKind = "module"
)

// Sentinel errors for the symbols package.
var (
	// ErrInvalidSymbol indicates a symbol failed validation.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrDuplicateSymbol indicates a symbol ID is already present.
	ErrDuplicateSymbol = errors.New("duplicate symbol")

	// ErrMaxSymbolsExceeded indicates the index is at capacity.
	ErrMaxSymbolsExceeded = errors.New("maximum symbol count exceeded")

	// ErrInvariantViolation indicates the resolver broke one of its own
	// guarantees. This is a bug, never a recoverable input condition.
	ErrInvariantViolation = errors.New("symbol resolution invariant violation")
)

// Symbol is one canonical definition in the project.
//
// Description:
//
//	Every top-level function, class, method and module-level variable gets
//	exactly one Symbol. The qualified name is the module path derived from
//	the file path joined with the definition name (methods nest under their
//	class). Imports and aliases never create symbols; they create bindings
//	that point at one.
//
// Ownership:
//
//	Symbols are immutable once registered. The index and the table share
//	pointers freely on that basis.
type Symbol struct {
	// ID is the unique symbol identity: "filePath#nodeIndex".
	ID string `json:"id"`

	// Qualified is the canonical dotted name, e.g. "src.db.execute" or
	// "src.models.User.save".
	Qualified string `json:"qualified"`

	// Name is the unqualified definition name.
	Name string `json:"name"`

	// Kind classifies the definition.
	Kind SymbolKind `json:"kind"`

	// FilePath is the defining file, relative to the project root.
	FilePath string `json:"file_path"`

	// Language is the defining file's language tag.
	Language string `json:"language"`

	// NodeIndex is the defining node's index in the file's normalized
	// arena.
	NodeIndex int `json:"node_index"`

	// StartByte/EndByte locate the definition in the file.
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`

	// Line is the 1-based start line of the definition.
	Line uint32 `json:"line"`

	// Exported reports whether the symbol is importable from other files.
	Exported bool `json:"exported"`
}

// SymbolID builds the canonical symbol identity for a file path and node
// index.
func SymbolID(filePath string, nodeIndex int) string {
	return fmt.Sprintf("%s#%d", filePath, nodeIndex)
}

// Validate checks that the symbol carries the fields every consumer relies
// on.
func (s *Symbol) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("empty ID")
	}
	if s.Name == "" {
		return fmt.Errorf("empty name for %s", s.ID)
	}
	if s.Qualified == "" {
		return fmt.Errorf("empty qualified name for %s", s.ID)
	}
	if s.FilePath == "" {
		return fmt.Errorf("empty file path for %s", s.ID)
	}
	if s.Kind == "" {
		return fmt.Errorf("empty kind for %s", s.ID)
	}
	if s.NodeIndex < 0 {
		return fmt.Errorf("negative node index for %s", s.ID)
	}
	return nil
}

// Binding maps one locally visible name in a file onto a canonical symbol,
// or records that the target could not be resolved.
type Binding struct {
	// File is the file the name is visible in.
	File string `json:"file"`

	// Name is the local name (the alias when one was used).
	Name string `json:"name"`

	// Target is the canonical symbol ID, empty when unresolved.
	Target string `json:"target,omitempty"`

	// Specifier is the import specifier the binding came from.
	Specifier string `json:"specifier"`

	// ImportNode is the importing node's index in the file's arena.
	ImportNode int `json:"import_node"`

	// Unresolved is set when the specifier or name never resolved. The
	// binding is retained so callers can report the gap; it is never
	// silently dropped.
	Unresolved bool `json:"unresolved,omitempty"`
}

// BatchError aggregates the per-symbol failures of an AddBatch call.
type BatchError struct {
	Errors []error
}

// Error renders a summary with the first failure inline.
func (e *BatchError) Error() string {
	if len(e.Errors) == 0 {
		return "batch error with no failures"
	}
	return fmt.Sprintf("batch failed with %d error(s), first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the aggregated errors to errors.Is/As.
func (e *BatchError) Unwrap() []error {
	return e.Errors
}
