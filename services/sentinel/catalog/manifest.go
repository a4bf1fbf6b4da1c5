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
	"fmt"

	"golang.org/x/mod/semver"
)

const (
	// SchemaVersion is the rulepack document format this build reads.
	SchemaVersion = "1.0"

	// EngineVersion is the analysis engine version rulepacks gate on
	// through their min_engine field.
	EngineVersion = "v0.4.0"
)

// Manifest identifies a rulepack and gates it against the running engine.
type Manifest struct {
	// Name identifies the rulepack, e.g. "sentinel-default".
	Name string `yaml:"name" json:"name"`

	// Version is the rulepack's own semantic version (v-prefixed).
	Version string `yaml:"version" json:"version"`

	// Schema is the document format version; must match SchemaVersion.
	Schema string `yaml:"schema" json:"schema"`

	// MinEngine is the oldest engine version this rulepack supports.
	// Empty means any engine.
	MinEngine string `yaml:"min_engine,omitempty" json:"min_engine,omitempty"`

	// UpdatedAt is an optional RFC 3339 timestamp for provenance.
	UpdatedAt string `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Validate checks the manifest against this engine build.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: manifest has no name", ErrInvalidCatalog)
	}
	if !semver.IsValid(m.Version) {
		return fmt.Errorf("%w: manifest version %q is not a valid semantic version", ErrInvalidCatalog, m.Version)
	}
	if m.Schema != SchemaVersion {
		return fmt.Errorf("%w: schema %q not supported (engine reads %q)", ErrInvalidCatalog, m.Schema, SchemaVersion)
	}
	if m.MinEngine != "" {
		if !semver.IsValid(m.MinEngine) {
			return fmt.Errorf("%w: min_engine %q is not a valid semantic version", ErrInvalidCatalog, m.MinEngine)
		}
		if semver.Compare(EngineVersion, m.MinEngine) < 0 {
			return fmt.Errorf("%w: rulepack %s requires engine %s or newer (running %s)",
				ErrInvalidCatalog, m.Name, m.MinEngine, EngineVersion)
		}
	}
	return nil
}
