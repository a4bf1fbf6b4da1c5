// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package taint propagates attacker-controlled data labels through a
// dependence graph snapshot and reports source-to-sink flows.
//
// The engine is a pure function of its inputs: a frozen snapshot, an
// immutable rulepack bundle and a limit set. Findings are computed per
// request and never persisted.
package taint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// NodeRef locates one graph node in a finding.
type NodeRef struct {
	// NodeID is the arena index within the snapshot the finding was
	// computed against.
	NodeID int `json:"node_id"`

	FilePath string `json:"file_path"`
	Line     int    `json:"line"`

	// Name is the callee text at the node.
	Name string `json:"name"`

	// Qualified is the resolved qualified callee, when resolution
	// succeeded.
	Qualified string `json:"qualified,omitempty"`
}

// PathStep is one node along a tainted flow, with the edge that carried
// the label into it.
type PathStep struct {
	NodeID   int    `json:"node_id"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`

	// Edge is the edge type taken into this step; empty for the source.
	Edge pdg.EdgeType `json:"edge,omitempty"`

	// CrossFile marks steps entered through a cross-file edge.
	CrossFile bool `json:"cross_file,omitempty"`
}

// Finding is one source-to-sink taint flow.
type Finding struct {
	// ID is deterministic: the same snapshot, rulepack and limits always
	// produce the same finding IDs.
	ID string `json:"id"`

	Class  catalog.Class `json:"vulnerability_class"`
	Source NodeRef       `json:"source"`
	Sink   NodeRef       `json:"sink"`

	// Path lists every node from source to sink inclusive.
	Path []PathStep `json:"path"`

	// Confidence is the scored likelihood in [0, 1].
	Confidence float64 `json:"confidence"`

	// Truncated marks paths that ran past the depth cap before reaching
	// the sink.
	Truncated bool `json:"truncated,omitempty"`

	// LowConfidence marks findings below the reporting threshold or past
	// the depth cap; they are reported, never silently dropped.
	LowConfidence bool `json:"low_confidence,omitempty"`

	// TruncatedByTimeout marks findings from a run that hit its deadline;
	// flows the traversal never reached may be missing.
	TruncatedByTimeout bool `json:"truncated_by_timeout,omitempty"`

	// UnverifiedSanitizer marks paths that passed through a call whose
	// name looks like a sanitizer but is not in the rulepack.
	UnverifiedSanitizer bool `json:"unverified_sanitizer,omitempty"`
}

// Stats summarizes one propagation run.
type Stats struct {
	Seeds          int `json:"seeds"`
	VisitedPairs   int `json:"visited_pairs"`
	EdgesTraversed int `json:"edges_traversed"`
}

// Result is the outcome of one propagation run.
type Result struct {
	SnapshotID string    `json:"snapshot_id"`
	Findings   []Finding `json:"findings"`

	// Truncated is set when the run stopped before the fixed point.
	Truncated bool `json:"truncated,omitempty"`

	// TruncationReason is "max_findings" or "timeout" when Truncated.
	TruncationReason string `json:"truncation_reason,omitempty"`

	// TruncatedByTimeout mirrors TruncationReason == "timeout".
	TruncatedByTimeout bool `json:"truncated_by_timeout,omitempty"`

	Stats    Stats    `json:"stats"`
	Warnings []string `json:"warnings,omitempty"`
}

// findingID derives a stable identifier from the flow's shape.
func findingID(snapshotID string, class catalog.Class, path []PathStep) string {
	h := sha256.New()
	h.Write([]byte(snapshotID))
	h.Write([]byte{0})
	h.Write([]byte(class))
	h.Write([]byte{0})
	var buf [8]byte
	for _, step := range path {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(step.NodeID)))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// nodeRef renders a graph node as a finding reference.
func nodeRef(g *pdg.Graph, id int) NodeRef {
	n := g.Node(id)
	name := n.Callee
	if name == "" {
		name = n.Name
	}
	return NodeRef{
		NodeID:    id,
		FilePath:  n.FilePath,
		Line:      n.Line,
		Name:      name,
		Qualified: n.CalleeQualified,
	}
}
