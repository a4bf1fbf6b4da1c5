// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package limits carries the pre-resolved numeric ceilings that bound graph
// traversals and taint propagation.
//
// The values arrive fully resolved from an external governance layer. Nothing
// in this package (or anywhere downstream of it) inspects tier names, license
// state, or entitlements; the ceilings are applied mechanically.
package limits

import "fmt"

// Default ceilings applied when a field is zero or negative. Chosen to keep
// an unconfigured deployment responsive on mid-sized projects.
const (
	DefaultMaxHops     = 3
	DefaultMaxNodes    = 2000
	DefaultMaxFiles    = 500
	DefaultMaxFindings = 200
	DefaultMaxDepth    = 20
)

// Limits is the resolved ceiling set injected into the taint engine and the
// graph query service.
//
// Description:
//
//	MaxHops bounds neighborhood queries, MaxNodes bounds call-graph queries,
//	MaxFiles bounds dependency queries, MaxFindings caps emitted findings per
//	propagation run, and MaxDepth is the hard cap on taint traversal depth.
//
// Thread Safety: Limits is a value type; copies are independent.
type Limits struct {
	MaxHops     int `json:"max_hops"     yaml:"max_hops"`
	MaxNodes    int `json:"max_nodes"    yaml:"max_nodes"`
	MaxFiles    int `json:"max_files"    yaml:"max_files"`
	MaxFindings int `json:"max_findings" yaml:"max_findings"`
	MaxDepth    int `json:"max_depth"    yaml:"max_depth"`
}

// Default returns the ceiling set used when no governance input is present.
func Default() Limits {
	return Limits{
		MaxHops:     DefaultMaxHops,
		MaxNodes:    DefaultMaxNodes,
		MaxFiles:    DefaultMaxFiles,
		MaxFindings: DefaultMaxFindings,
		MaxDepth:    DefaultMaxDepth,
	}
}

// Normalized returns a copy with every zero or negative field replaced by its
// default. Input values above zero pass through untouched, however large;
// clamping against absolute ceilings is the governance layer's job, not ours.
func (l Limits) Normalized() Limits {
	out := l
	if out.MaxHops <= 0 {
		out.MaxHops = DefaultMaxHops
	}
	if out.MaxNodes <= 0 {
		out.MaxNodes = DefaultMaxNodes
	}
	if out.MaxFiles <= 0 {
		out.MaxFiles = DefaultMaxFiles
	}
	if out.MaxFindings <= 0 {
		out.MaxFindings = DefaultMaxFindings
	}
	if out.MaxDepth <= 0 {
		out.MaxDepth = DefaultMaxDepth
	}
	return out
}

// ClampHops bounds a caller-requested hop count to MaxHops. Zero or negative
// requests fall back to MaxHops.
func (l Limits) ClampHops(requested int) int {
	if requested <= 0 || requested > l.MaxHops {
		return l.MaxHops
	}
	return requested
}

// ClampDepth bounds a caller-requested taint depth to MaxDepth. Zero or
// negative requests fall back to MaxDepth.
func (l Limits) ClampDepth(requested int) int {
	if requested <= 0 || requested > l.MaxDepth {
		return l.MaxDepth
	}
	return requested
}

// String renders the ceilings for log lines.
func (l Limits) String() string {
	return fmt.Sprintf("hops=%d nodes=%d files=%d findings=%d depth=%d",
		l.MaxHops, l.MaxNodes, l.MaxFiles, l.MaxFindings, l.MaxDepth)
}
