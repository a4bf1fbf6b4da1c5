// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

var (
	defaultBundle     *Bundle
	defaultBundleOnce sync.Once
	defaultBundleErr  error
)

// document is the on-disk rulepack shape.
type document struct {
	Manifest   Manifest         `yaml:"manifest"`
	Sources    []SourceEntry    `yaml:"sources"`
	Sinks      []SinkEntry      `yaml:"sinks"`
	Sanitizers []SanitizerEntry `yaml:"sanitizers"`
}

// Default returns the rulepack embedded in the binary.
//
// Description:
//
//	Parses default_catalog.yaml once and caches the result. The embedded
//	pack failing to parse is a build defect, not a runtime condition, so
//	callers normally treat the error as fatal.
//
// Thread Safety:
//
//	Safe for concurrent use.
func Default() (*Bundle, error) {
	defaultBundleOnce.Do(func() {
		defaultBundle, defaultBundleErr = Parse(defaultCatalogYAML)
		if defaultBundleErr != nil {
			defaultBundleErr = fmt.Errorf("parsing embedded default catalog: %w", defaultBundleErr)
			return
		}
		srcs, sinks, sans := defaultBundle.Counts()
		slog.Info("default catalog loaded",
			slog.String("name", defaultBundle.manifest.Name),
			slog.String("version", defaultBundle.manifest.Version),
			slog.Int("sources", srcs),
			slog.Int("sinks", sinks),
			slog.Int("sanitizers", sans),
		)
	})
	return defaultBundle, defaultBundleErr
}

// LoadFile reads and validates a rulepack from disk.
//
// Inputs:
//
//	path - Path to a rulepack YAML file. Must not be empty.
//
// Outputs:
//
//	*Bundle - The validated, immutable rulepack.
//	error - Non-nil on read, parse or validation failure; validation
//	failures wrap ErrInvalidCatalog.
func LoadFile(path string) (*Bundle, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path must not be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return b, nil
}

// Parse validates a rulepack document and builds its lookup tables.
//
// Description:
//
//	Every entry needs a known language and a non-empty name; sinks and
//	sanitizers need a known class; duplicate (language, name) pairs within
//	a section are rejected. Sink base scores outside (0, 1] are rejected;
//	an omitted score takes the class default.
func Parse(data []byte) (*Bundle, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := doc.Manifest.Validate(); err != nil {
		return nil, err
	}

	b := &Bundle{
		manifest:   doc.Manifest,
		sources:    make(map[entryKey]*SourceEntry, len(doc.Sources)),
		sinks:      make(map[entryKey]*SinkEntry, len(doc.Sinks)),
		sanitizers: make(map[entryKey]*SanitizerEntry, len(doc.Sanitizers)),
	}

	for i := range doc.Sources {
		e := &doc.Sources[i]
		if err := validateEntry("source", e.Language, e.Name); err != nil {
			return nil, err
		}
		key := entryKey{e.Language, e.Name}
		if _, dup := b.sources[key]; dup {
			return nil, fmt.Errorf("%w: duplicate source %s/%s", ErrInvalidCatalog, e.Language, e.Name)
		}
		b.sources[key] = e
	}

	for i := range doc.Sinks {
		e := &doc.Sinks[i]
		if err := validateEntry("sink", e.Language, e.Name); err != nil {
			return nil, err
		}
		if !ValidClass(e.Class) {
			return nil, fmt.Errorf("%w: sink %s/%s has unknown class %q", ErrInvalidCatalog, e.Language, e.Name, e.Class)
		}
		if e.BaseScore < 0 || e.BaseScore > 1 {
			return nil, fmt.Errorf("%w: sink %s/%s base_score %v outside (0, 1]", ErrInvalidCatalog, e.Language, e.Name, e.BaseScore)
		}
		if e.BaseScore == 0 {
			e.BaseScore = defaultBaseScore(e.Class)
		}
		key := entryKey{e.Language, e.Name}
		if _, dup := b.sinks[key]; dup {
			return nil, fmt.Errorf("%w: duplicate sink %s/%s", ErrInvalidCatalog, e.Language, e.Name)
		}
		b.sinks[key] = e
	}

	for i := range doc.Sanitizers {
		e := &doc.Sanitizers[i]
		if err := validateEntry("sanitizer", e.Language, e.Name); err != nil {
			return nil, err
		}
		if !ValidClass(e.Class) {
			return nil, fmt.Errorf("%w: sanitizer %s/%s has unknown class %q", ErrInvalidCatalog, e.Language, e.Name, e.Class)
		}
		key := entryKey{e.Language, e.Name}
		if _, dup := b.sanitizers[key]; dup {
			return nil, fmt.Errorf("%w: duplicate sanitizer %s/%s", ErrInvalidCatalog, e.Language, e.Name)
		}
		b.sanitizers[key] = e
	}

	return b, nil
}
