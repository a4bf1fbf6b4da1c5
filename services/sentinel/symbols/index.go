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
	"sort"
	"strings"
	"sync"
)

// Default configuration values.
const (
	// DefaultMaxSymbols is the default maximum number of symbols the index
	// can hold.
	DefaultMaxSymbols = 1_000_000

	// searchCheckInterval is how often Search checks for context
	// cancellation.
	searchCheckInterval = 1000
)

// IndexOptions configures Index behavior and limits.
type IndexOptions struct {
	// MaxSymbols is the maximum number of symbols the index can hold.
	// Attempting to add more returns ErrMaxSymbolsExceeded.
	MaxSymbols int
}

// IndexOption is a functional option for configuring an Index.
type IndexOption func(*IndexOptions)

// WithMaxSymbols sets the maximum number of symbols the index can hold.
func WithMaxSymbols(max int) IndexOption {
	return func(o *IndexOptions) {
		if max > 0 {
			o.MaxSymbols = max
		}
	}
}

// IndexStats contains statistics about the symbol index.
type IndexStats struct {
	// TotalSymbols is the total number of symbols in the index.
	TotalSymbols int

	// ByKind maps each SymbolKind to its count.
	ByKind map[SymbolKind]int

	// FileCount is the number of unique files with symbols in the index.
	FileCount int

	// MaxSymbols is the configured capacity.
	MaxSymbols int
}

// Index provides O(1) lookups of symbols by identity, qualified name,
// local name, file and kind.
//
// Thread Safety:
//
//	Index is safe for concurrent use. Multiple goroutines can call any
//	combination of methods simultaneously.
//
// Ownership:
//
//	The index stores pointers to symbols but does NOT own them. Symbols
//	MUST NOT be mutated after being added.
type Index struct {
	mu sync.RWMutex

	byID        map[string]*Symbol
	byQualified map[string]*Symbol
	byName      map[string][]*Symbol
	byFile      map[string][]*Symbol
	byKind      map[SymbolKind][]*Symbol

	totalCount int
	kindCounts map[SymbolKind]int

	options IndexOptions
}

// NewIndex creates an empty symbol index.
func NewIndex(opts ...IndexOption) *Index {
	options := IndexOptions{MaxSymbols: DefaultMaxSymbols}
	for _, opt := range opts {
		opt(&options)
	}
	return &Index{
		byID:        make(map[string]*Symbol),
		byQualified: make(map[string]*Symbol),
		byName:      make(map[string][]*Symbol),
		byFile:      make(map[string][]*Symbol),
		byKind:      make(map[SymbolKind][]*Symbol),
		kindCounts:  make(map[SymbolKind]int),
		options:     options,
	}
}

// Add inserts a single symbol.
//
// Description:
//
//	Validates the symbol, checks for duplicates and capacity, then adds it
//	to all lookup maps atomically.
//
// Errors:
//
//	ErrInvalidSymbol - symbol failed validation
//	ErrDuplicateSymbol - a symbol with the same ID already exists
//	ErrMaxSymbolsExceeded - index is at capacity
//
// Thread Safety:
//
//	Safe for concurrent use.
func (idx *Index) Add(symbol *Symbol) error {
	if symbol == nil {
		return fmt.Errorf("%w: symbol is nil", ErrInvalidSymbol)
	}
	// Validate before acquiring the lock.
	if err := symbol.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.totalCount >= idx.options.MaxSymbols {
		return ErrMaxSymbolsExceeded
	}
	if _, exists := idx.byID[symbol.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol.ID)
	}

	idx.addLocked(symbol)
	return nil
}

// AddBatch inserts multiple symbols atomically: if any symbol fails
// validation or duplicates an existing ID, nothing is added.
//
// Errors:
//
//	*BatchError - aggregated validation/duplicate failures
//	ErrMaxSymbolsExceeded - batch would exceed capacity
//
// Thread Safety:
//
//	Safe for concurrent use.
func (idx *Index) AddBatch(batch []*Symbol) error {
	if len(batch) == 0 {
		return nil
	}

	// Phase 1: validate everything before taking the lock.
	var errs []error
	seen := make(map[string]int, len(batch))
	for i, sym := range batch {
		if sym == nil {
			errs = append(errs, fmt.Errorf("symbol[%d]: %w: symbol is nil", i, ErrInvalidSymbol))
			continue
		}
		if err := sym.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("symbol[%d]: %w: %v", i, ErrInvalidSymbol, err))
			continue
		}
		if first, dup := seen[sym.ID]; dup {
			errs = append(errs, fmt.Errorf("symbol[%d]: duplicate ID in batch (same as symbol[%d]): %s", i, first, sym.ID))
		} else {
			seen[sym.ID] = i
		}
	}
	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Phase 2: check against the live index.
	if idx.totalCount+len(batch) > idx.options.MaxSymbols {
		return ErrMaxSymbolsExceeded
	}
	for i, sym := range batch {
		if _, exists := idx.byID[sym.ID]; exists {
			errs = append(errs, fmt.Errorf("symbol[%d]: %w: %s", i, ErrDuplicateSymbol, sym.ID))
		}
	}
	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	// Phase 3: all validated, commit.
	for _, sym := range batch {
		idx.addLocked(sym)
	}
	return nil
}

// addLocked inserts into every lookup map. Caller holds idx.mu.
func (idx *Index) addLocked(symbol *Symbol) {
	idx.byID[symbol.ID] = symbol
	idx.byQualified[symbol.Qualified] = symbol
	idx.byName[symbol.Name] = append(idx.byName[symbol.Name], symbol)
	idx.byFile[symbol.FilePath] = append(idx.byFile[symbol.FilePath], symbol)
	idx.byKind[symbol.Kind] = append(idx.byKind[symbol.Kind], symbol)

	idx.totalCount++
	idx.kindCounts[symbol.Kind]++
}

// GetByID retrieves a symbol by identity.
func (idx *Index) GetByID(id string) (*Symbol, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	sym, ok := idx.byID[id]
	return sym, ok
}

// GetByQualified retrieves a symbol by canonical qualified name.
func (idx *Index) GetByQualified(qualified string) (*Symbol, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	sym, ok := idx.byQualified[qualified]
	return sym, ok
}

// GetByName returns all symbols with the given unqualified name. The
// returned slice is a copy the caller may modify.
func (idx *Index) GetByName(name string) []*Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copySymbols(idx.byName[name])
}

// GetByFile returns all symbols defined in the given file. The returned
// slice is a copy the caller may modify.
func (idx *Index) GetByFile(filePath string) []*Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copySymbols(idx.byFile[filePath])
}

// GetByKind returns all symbols of the given kind. The returned slice is a
// copy the caller may modify.
func (idx *Index) GetByKind(kind SymbolKind) []*Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copySymbols(idx.byKind[kind])
}

// Len returns the number of symbols in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalCount
}

func copySymbols(src []*Symbol) []*Symbol {
	if len(src) == 0 {
		return nil
	}
	out := make([]*Symbol, len(src))
	copy(out, src)
	return out
}

// Search finds symbols whose name matches the query.
//
// Description:
//
//	Ranked lookup: exact matches first, then prefix matches, then
//	substring matches, with earlier and tighter matches preferred. Ties
//	break on (name, file, line) so repeated searches over the same index
//	return byte-identical orderings.
//
// Inputs:
//
//	ctx - cancellation; checked periodically during the scan
//	query - case-insensitive match string
//	limit - maximum results, 0 means no limit
//
// Thread Safety:
//
//	Safe for concurrent use.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]*Symbol, error) {
	ctx, span := tracer.Start(ctx, "symbols.Search")
	defer span.End()

	if err := ctx.Err(); err != nil {
		searchTotal.WithLabelValues("canceled").Inc()
		return nil, err
	}
	if query == "" {
		searchTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}
	queryLower := strings.ToLower(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		symbol *Symbol
		score  int
	}
	var results []scored

	count := 0
	for _, sym := range idx.byID {
		count++
		if count%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				searchTotal.WithLabelValues("canceled").Inc()
				return nil, err
			}
		}
		score := matchScore(queryLower, strings.ToLower(sym.Name))
		if score >= 0 {
			results = append(results, scored{symbol: sym, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score < results[j].score
		}
		a, b := results[i].symbol, results[j].symbol
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Line < b.Line
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]*Symbol, len(results))
	for i, r := range results {
		out[i] = r.symbol
	}

	searchTotal.WithLabelValues("ok").Inc()
	return out, nil
}

// matchScore ranks how well a lowercase name matches a lowercase query.
// Lower is better; -1 means no match. Composite: match class, then match
// position, then surplus name length.
func matchScore(queryLower, nameLower string) int {
	if nameLower == queryLower {
		return 0
	}
	base := -1
	pos := 0
	switch {
	case strings.HasPrefix(nameLower, queryLower):
		base = 1
	default:
		if p := strings.Index(nameLower, queryLower); p >= 0 {
			base = 2
			pos = p
		}
	}
	if base < 0 {
		return -1
	}
	if pos > 99 {
		pos = 99
	}
	surplus := len(nameLower) - len(queryLower)
	if surplus > 99 {
		surplus = 99
	}
	return base*10000 + pos*100 + surplus
}

// Stats returns index statistics using the maintained counters.
func (idx *Index) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byKind := make(map[SymbolKind]int, len(idx.kindCounts))
	for k, v := range idx.kindCounts {
		byKind[k] = v
	}
	return IndexStats{
		TotalSymbols: idx.totalCount,
		ByKind:       byKind,
		FileCount:    len(idx.byFile),
		MaxSymbols:   idx.options.MaxSymbols,
	}
}
