// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog loads and serves the source, sink and sanitizer tables
// that drive taint propagation.
//
// A catalog is data, not behavior: the engine receives an immutable Bundle
// and never consults package-global state, so concurrent analyses may run
// against different rulepacks.
package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidCatalog marks rulepacks rejected during validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Class is a vulnerability class a sink or sanitizer is scoped to.
type Class string

const (
	ClassSQL     Class = "sql"
	ClassCommand Class = "command"
	ClassPath    Class = "path"
	ClassHTML    Class = "html"
)

// Classes returns every known class in stable order.
func Classes() []Class {
	return []Class{ClassCommand, ClassHTML, ClassPath, ClassSQL}
}

// ValidClass reports whether c names a known vulnerability class.
func ValidClass(c Class) bool {
	switch c {
	case ClassSQL, ClassCommand, ClassPath, ClassHTML:
		return true
	}
	return false
}

// defaultBaseScore is the per-class sink confidence used when an entry
// does not set its own.
func defaultBaseScore(c Class) float64 {
	switch c {
	case ClassSQL, ClassCommand:
		return 0.9
	case ClassPath:
		return 0.8
	case ClassHTML:
		return 0.75
	default:
		return 0.5
	}
}

// SourceEntry marks a call that introduces attacker-controlled data.
type SourceEntry struct {
	// Language scopes the entry to one parser language tag.
	Language string `yaml:"language" json:"language"`

	// Name is the qualified call name to match: either the resolved
	// qualified symbol (module.function) or the literal callee text.
	Name string `yaml:"name" json:"name"`

	// Description is optional documentation carried into findings.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// SinkEntry marks a call that must never receive tainted data.
type SinkEntry struct {
	Language string `yaml:"language" json:"language"`
	Name     string `yaml:"name" json:"name"`

	// Class is the vulnerability class reaching this sink implies.
	Class Class `yaml:"class" json:"class"`

	// BaseScore is the starting confidence for findings at this sink,
	// in (0, 1]. Zero means "use the class default".
	BaseScore float64 `yaml:"base_score,omitempty" json:"base_score,omitempty"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// SanitizerEntry marks a call that neutralizes one vulnerability class.
type SanitizerEntry struct {
	Language string `yaml:"language" json:"language"`
	Name     string `yaml:"name" json:"name"`

	// Class is the single class this sanitizer clears. A sanitizer for
	// another class does not help: html escaping does nothing for sql.
	Class Class `yaml:"class" json:"class"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// entryKey indexes entries by language and qualified name.
type entryKey struct {
	language string
	name     string
}

// Bundle is one immutable, validated rulepack.
//
// Description:
//
//	Lookups key on (language, qualified name). TypeScript call sites fall
//	back to javascript entries when no typescript-specific entry exists,
//	mirroring how the dependence graph treats the two as one family.
//
// Thread Safety:
//
//	Immutable after construction; safe for any number of concurrent
//	readers.
type Bundle struct {
	manifest   Manifest
	sources    map[entryKey]*SourceEntry
	sinks      map[entryKey]*SinkEntry
	sanitizers map[entryKey]*SanitizerEntry
}

// Manifest returns the rulepack's manifest.
func (b *Bundle) Manifest() Manifest { return b.manifest }

// Source looks up a source entry for a language and call name.
func (b *Bundle) Source(language, name string) (*SourceEntry, bool) {
	for _, lang := range lookupLanguages(language) {
		if e, ok := b.sources[entryKey{lang, name}]; ok {
			return e, true
		}
	}
	return nil, false
}

// Sink looks up a sink entry for a language and call name.
func (b *Bundle) Sink(language, name string) (*SinkEntry, bool) {
	for _, lang := range lookupLanguages(language) {
		if e, ok := b.sinks[entryKey{lang, name}]; ok {
			return e, true
		}
	}
	return nil, false
}

// Sanitizer looks up a sanitizer entry for a language and call name.
func (b *Bundle) Sanitizer(language, name string) (*SanitizerEntry, bool) {
	for _, lang := range lookupLanguages(language) {
		if e, ok := b.sanitizers[entryKey{lang, name}]; ok {
			return e, true
		}
	}
	return nil, false
}

// Counts returns the table sizes for log lines and health output.
func (b *Bundle) Counts() (sources, sinks, sanitizers int) {
	return len(b.sources), len(b.sinks), len(b.sanitizers)
}

// lookupLanguages expands a call site's language into the entry languages
// that may match it, most specific first.
func lookupLanguages(language string) []string {
	if language == "typescript" {
		return []string{"typescript", "javascript"}
	}
	return []string{language}
}

var validLanguages = map[string]bool{
	"python":     true,
	"javascript": true,
	"typescript": true,
}

func validateEntry(section, language, name string) error {
	if !validLanguages[language] {
		return fmt.Errorf("%w: %s entry %q: unknown language %q", ErrInvalidCatalog, section, name, language)
	}
	if name == "" {
		return fmt.Errorf("%w: %s entry with empty name (language %s)", ErrInvalidCatalog, section, language)
	}
	return nil
}
