// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the analysis engine over HTTP.
//
// Description:
//
//	One Server owns the ingest pipeline, the current snapshot, the
//	rulepack bundle and the snapshot store, and serves them under /v1.
//	Analysis runs swap the current snapshot atomically; queries and
//	scans pin whichever snapshot was current when they started, so a
//	rebuild never corrupts an in-flight request.
package server

import (
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ingest"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/limits"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/symbols"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/taint"
)

// ErrorResponse is the uniform error body for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeMissingParameter = "MISSING_PARAMETER"
	CodeNoSnapshot       = "NO_SNAPSHOT"
	CodeNotFound         = "NOT_FOUND"
	CodeAnalysisRunning  = "ANALYSIS_IN_FLIGHT"
	CodeUnsupported      = "UNSUPPORTED_LANGUAGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// AnalysisRunRequest asks for a full ingest, resolve and build pass over
// a project directory.
type AnalysisRunRequest struct {
	// Root is the project directory. Empty falls back to the server's
	// configured analysis root.
	Root string `json:"root"`

	// Languages restricts the run to the named language tags. Empty
	// means every language the server supports. An unknown tag rejects
	// the whole request.
	Languages []string `json:"languages,omitempty"`

	// Limits overrides the server's resource ceilings for this run.
	// Zero fields keep their defaults.
	Limits *limits.Limits `json:"limits,omitempty"`

	// Catalog is a rulepack file loaded before the run. It replaces the
	// server's active bundle.
	Catalog string `json:"catalog,omitempty"`

	// Label is an optional human-readable tag saved with the snapshot.
	Label string `json:"label,omitempty"`

	// Scan runs taint propagation over the fresh snapshot and inlines
	// the findings in the response.
	Scan bool `json:"scan,omitempty"`
}

// AnalysisRunResponse summarizes one completed analysis pass.
type AnalysisRunResponse struct {
	SnapshotID string `json:"snapshot_id"`
	Root       string `json:"root"`

	// Graph counts nodes, edges and cross-file stitches in the built
	// dependence graph.
	Graph pdg.Stats `json:"graph"`

	// Ingest counts discovered, parsed, reused, skipped and failed
	// files.
	Ingest ingest.Stats `json:"ingest"`

	// Resolution counts symbols, bindings and unresolved imports.
	Resolution symbols.TableStats `json:"resolution"`

	// Truncated is set when the file ceiling cut discovery short.
	Truncated bool `json:"truncated"`

	DurationMillis int64 `json:"duration_millis"`

	// Taint holds the scan result when the request asked for one.
	Taint *taint.Result `json:"taint,omitempty"`

	Warnings []string `json:"warnings"`
}

// TaintScanRequest asks for a taint propagation pass.
type TaintScanRequest struct {
	// SnapshotID selects a stored snapshot. Empty uses the current one.
	SnapshotID string `json:"snapshot_id,omitempty"`

	// Classes restricts the scan to the named vulnerability classes.
	// Empty means every class the rulepack covers.
	Classes []string `json:"classes,omitempty"`

	// MaxDepth caps the flow length for this scan. Zero uses the
	// server's depth ceiling.
	MaxDepth int `json:"max_depth,omitempty"`
}

// SymbolMatch is one ranked hit from a symbol search.
type SymbolMatch struct {
	ID        string `json:"id"`
	Qualified string `json:"qualified"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	FilePath  string `json:"file_path"`
	Line      int    `json:"line"`
	Exported  bool   `json:"exported"`
}

// SymbolSearchResponse lists the ranked matches for a query string.
type SymbolSearchResponse struct {
	Query    string        `json:"query"`
	Matches  []SymbolMatch `json:"matches"`
	Warnings []string      `json:"warnings"`
}

// SnapshotListResponse lists stored snapshot metadata, newest first.
type SnapshotListResponse struct {
	Snapshots []*pdg.SnapshotMetadata `json:"snapshots"`
	Warnings  []string                `json:"warnings"`
}

// SnapshotDetailResponse describes one stored snapshot without its
// graph payload.
type SnapshotDetailResponse struct {
	Meta     *pdg.SnapshotMetadata `json:"meta"`
	Stats    pdg.Stats             `json:"stats"`
	Files    []pdg.SnapshotFile    `json:"files"`
	Warnings []string              `json:"warnings"`
}

// SnapshotDiffResponse wraps a structural diff between two stored
// snapshots.
type SnapshotDiffResponse struct {
	Diff     *pdg.SnapshotDiff `json:"diff"`
	Warnings []string          `json:"warnings"`
}

// CatalogReloadRequest selects the rulepack source for a reload.
type CatalogReloadRequest struct {
	// Path is a rulepack file. Takes effect when URL is empty.
	Path string `json:"path,omitempty"`

	// URL is an HTTPS rulepack endpoint.
	URL string `json:"url,omitempty"`
}

// CatalogReloadResponse reports the freshly activated bundle.
type CatalogReloadResponse struct {
	Manifest   catalog.Manifest `json:"manifest"`
	Sources    int              `json:"sources"`
	Sinks      int              `json:"sinks"`
	Sanitizers int              `json:"sanitizers"`
	Warnings   []string         `json:"warnings"`
}

// HealthResponse reports liveness and the current snapshot, if any.
type HealthResponse struct {
	Status     string   `json:"status"`
	Version    string   `json:"version"`
	SnapshotID string   `json:"snapshot_id,omitempty"`
	Warnings   []string `json:"warnings"`
}

func symbolMatches(syms []*symbols.Symbol) []SymbolMatch {
	matches := make([]SymbolMatch, 0, len(syms))
	for _, s := range syms {
		matches = append(matches, SymbolMatch{
			ID:        s.ID,
			Qualified: s.Qualified,
			Name:      s.Name,
			Kind:      string(s.Kind),
			FilePath:  s.FilePath,
			Line:      int(s.Line),
			Exported:  s.Exported,
		})
	}
	return matches
}
