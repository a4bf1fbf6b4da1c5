// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pdg

import (
	"fmt"
)

// SnapshotSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const SnapshotSchemaVersion = "1.0"

// SerializableSnapshot is the JSON-serializable representation of a
// Snapshot.
//
// Description:
//
//	Contains all data needed to reconstruct a Snapshot from JSON. Nodes
//	carry their arena IDs in arena order and edges keep insertion order;
//	both orders are deterministic build products, so serializing the same
//	snapshot twice yields identical bytes.
//
// Thread Safety: SerializableSnapshot is a value type with no internal
// state.
type SerializableSnapshot struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// ID is the snapshot identifier.
	ID string `json:"id"`

	// ProjectHash groups snapshots of the same project.
	ProjectHash string `json:"project_hash"`

	// CreatedAtMilli is the Unix timestamp in milliseconds of the build.
	CreatedAtMilli int64 `json:"created_at_milli"`

	// GraphHash is the deterministic hash of the graph structure.
	GraphHash string `json:"graph_hash"`

	// Nodes contains all arena nodes in arena order.
	Nodes []Node `json:"nodes"`

	// Edges contains all edges in insertion order.
	Edges []Edge `json:"edges"`

	// Files lists the analyzed files.
	Files []SnapshotFile `json:"files"`

	// Warnings carries the analysis warnings.
	Warnings []string `json:"warnings,omitempty"`

	// Stats summarizes the graph.
	Stats Stats `json:"stats"`
}

// ToSerializable converts a Snapshot to its serializable representation.
//
// Outputs:
//
//	*SerializableSnapshot - The serializable representation. Never nil.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen snapshots.
func (s *Snapshot) ToSerializable() *SerializableSnapshot {
	if s == nil || s.Graph == nil {
		return &SerializableSnapshot{
			SchemaVersion: SnapshotSchemaVersion,
			Nodes:         []Node{},
			Edges:         []Edge{},
		}
	}
	return &SerializableSnapshot{
		SchemaVersion:  SnapshotSchemaVersion,
		ID:             s.ID,
		ProjectHash:    s.ProjectHash,
		CreatedAtMilli: s.CreatedAtMilli,
		GraphHash:      s.Graph.Hash(),
		Nodes:          s.Graph.Nodes,
		Edges:          s.Graph.Edges,
		Files:          s.Files,
		Warnings:       s.Warnings,
		Stats:          s.Stats,
	}
}

// FromSerializable reconstructs a Snapshot from its serializable
// representation.
//
// Description:
//
//	Rebuilds the graph through the same index-construction path a live
//	build uses, so identity collisions, out-of-range edges and misnumbered
//	arena IDs are rejected rather than resurrected. When the stored graph
//	hash disagrees with the rebuilt structure the payload was corrupted or
//	hand-edited and loading fails.
//
// Inputs:
//
//	ss - The serializable snapshot to reconstruct. Must not be nil.
//
// Outputs:
//
//	*Snapshot - The reconstructed, frozen snapshot.
//	error - Non-nil on nil input, schema mismatch, structural damage or a
//	graph hash mismatch.
//
// Thread Safety:
//
//	The returned snapshot is independent and safe for concurrent reads.
func FromSerializable(ss *SerializableSnapshot) (*Snapshot, error) {
	if ss == nil {
		return nil, fmt.Errorf("serializable snapshot must not be nil")
	}
	if ss.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", ss.SchemaVersion, SnapshotSchemaVersion)
	}

	g := NewGraph()
	g.Nodes = ss.Nodes
	g.Edges = ss.Edges
	if err := g.reindex(); err != nil {
		return nil, fmt.Errorf("rebuilding graph: %w", err)
	}
	if ss.GraphHash != "" && g.Hash() != ss.GraphHash {
		return nil, fmt.Errorf("graph hash mismatch: payload carries %s", ss.GraphHash)
	}

	return &Snapshot{
		ID:             ss.ID,
		ProjectHash:    ss.ProjectHash,
		CreatedAtMilli: ss.CreatedAtMilli,
		Graph:          g,
		Files:          ss.Files,
		Warnings:       ss.Warnings,
		Stats:          g.Stats(),
	}, nil
}
