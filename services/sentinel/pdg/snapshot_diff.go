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
	"sort"
)

// SnapshotDiff contains the differences between two snapshots.
type SnapshotDiff struct {
	// BaseSnapshotID is the ID of the base snapshot.
	BaseSnapshotID string `json:"base_snapshot_id"`

	// TargetSnapshotID is the ID of the target snapshot.
	TargetSnapshotID string `json:"target_snapshot_id"`

	// NodesAdded are node identities present in target but not in base.
	NodesAdded []string `json:"nodes_added"`

	// NodesRemoved are node identities present in base but not in target.
	NodesRemoved []string `json:"nodes_removed"`

	// NodesModified are nodes that changed between snapshots.
	NodesModified []NodeDiff `json:"nodes_modified"`

	// EdgesAdded is the count of edges in target but not in base.
	EdgesAdded int `json:"edges_added"`

	// EdgesRemoved is the count of edges in base but not in target.
	EdgesRemoved int `json:"edges_removed"`

	// Summary contains aggregate statistics about the diff.
	Summary DiffSummary `json:"summary"`
}

// NodeDiff describes how a single node changed between snapshots.
type NodeDiff struct {
	// NodeIdentity is the stable node identity string.
	NodeIdentity string `json:"node_identity"`

	// Name is the node's name or callee text, whichever it carries.
	Name string `json:"name"`

	// ChangeType describes what changed: "renamed", "resolution_changed",
	// "edges_changed".
	ChangeType string `json:"change_type"`
}

// DiffSummary contains aggregate statistics about a diff.
type DiffSummary struct {
	// TotalChanges is the total number of changes (added + removed +
	// modified nodes + edge changes).
	TotalChanges int `json:"total_changes"`

	// FilesAffected is the number of distinct files with changed nodes.
	FilesAffected int `json:"files_affected"`

	// ChangeRatio is the fraction of nodes that changed (0.0 to 1.0).
	ChangeRatio float64 `json:"change_ratio"`
}

// DiffSnapshots computes the differences between two snapshots.
//
// Description:
//
//	Arena IDs are positional and differ between builds, so nodes are
//	matched by their stable identity (file path, byte range, kind) and
//	edges by the identities of their endpoints. Matching is positional,
//	not semantic: an edit that shifts byte offsets reports the shifted
//	nodes as removed plus added rather than guessing at moves.
//
// Inputs:
//
//	base - The base snapshot. Must not be nil.
//	target - The target snapshot. Must not be nil.
//
// Outputs:
//
//	*SnapshotDiff - The computed differences.
//	error - Non-nil if either snapshot is nil.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen snapshots.
func DiffSnapshots(base, target *Snapshot) (*SnapshotDiff, error) {
	if base == nil || base.Graph == nil {
		return nil, fmt.Errorf("base snapshot must not be nil")
	}
	if target == nil || target.Graph == nil {
		return nil, fmt.Errorf("target snapshot must not be nil")
	}

	diff := &SnapshotDiff{
		BaseSnapshotID:   base.ID,
		TargetSnapshotID: target.ID,
		NodesAdded:       []string{},
		NodesRemoved:     []string{},
		NodesModified:    []NodeDiff{},
	}

	affectedFiles := make(map[string]bool)

	for i := range target.Graph.Nodes {
		tNode := &target.Graph.Nodes[i]
		ident := tNode.Identity()
		bID, exists := base.Graph.NodeByIdentity(ident)
		if !exists {
			diff.NodesAdded = append(diff.NodesAdded, ident.String())
			affectedFiles[tNode.FilePath] = true
			continue
		}
		bNode := base.Graph.Node(bID)
		if changeType, changed := classifyNodeChange(base.Graph, target.Graph, bNode, tNode); changed {
			name := tNode.Name
			if name == "" {
				name = tNode.Callee
			}
			diff.NodesModified = append(diff.NodesModified, NodeDiff{
				NodeIdentity: ident.String(),
				Name:         name,
				ChangeType:   changeType,
			})
			affectedFiles[tNode.FilePath] = true
		}
	}

	for i := range base.Graph.Nodes {
		bNode := &base.Graph.Nodes[i]
		ident := bNode.Identity()
		if _, exists := target.Graph.NodeByIdentity(ident); !exists {
			diff.NodesRemoved = append(diff.NodesRemoved, ident.String())
			affectedFiles[bNode.FilePath] = true
		}
	}

	sort.Strings(diff.NodesAdded)
	sort.Strings(diff.NodesRemoved)
	sort.Slice(diff.NodesModified, func(i, j int) bool {
		return diff.NodesModified[i].NodeIdentity < diff.NodesModified[j].NodeIdentity
	})

	baseEdges := identityEdgeSet(base.Graph)
	targetEdges := identityEdgeSet(target.Graph)
	for key := range targetEdges {
		if !baseEdges[key] {
			diff.EdgesAdded++
		}
	}
	for key := range baseEdges {
		if !targetEdges[key] {
			diff.EdgesRemoved++
		}
	}

	totalNodes := base.Graph.NodeCount()
	if target.Graph.NodeCount() > totalNodes {
		totalNodes = target.Graph.NodeCount()
	}
	changeRatio := 0.0
	if totalNodes > 0 {
		changedNodes := len(diff.NodesAdded) + len(diff.NodesRemoved) + len(diff.NodesModified)
		changeRatio = float64(changedNodes) / float64(totalNodes)
	}
	diff.Summary = DiffSummary{
		TotalChanges:  len(diff.NodesAdded) + len(diff.NodesRemoved) + len(diff.NodesModified) + diff.EdgesAdded + diff.EdgesRemoved,
		FilesAffected: len(affectedFiles),
		ChangeRatio:   changeRatio,
	}
	return diff, nil
}

// classifyNodeChange compares two identity-matched nodes.
func classifyNodeChange(baseGraph, targetGraph *Graph, base, target *Node) (string, bool) {
	if base.Name != target.Name || base.Callee != target.Callee {
		return "renamed", true
	}
	if base.CalleeSymbol != target.CalleeSymbol || base.Symbol != target.Symbol {
		return "resolution_changed", true
	}
	if len(baseGraph.OutEdges(base.ID)) != len(targetGraph.OutEdges(target.ID)) ||
		len(baseGraph.InEdges(base.ID)) != len(targetGraph.InEdges(target.ID)) {
		return "edges_changed", true
	}
	return "", false
}

// identityEdgeSet renders a graph's edges as identity-keyed strings:
// "fromIdentity|toIdentity|type".
func identityEdgeSet(g *Graph) map[string]bool {
	set := make(map[string]bool, len(g.Edges))
	for i := range g.Edges {
		e := &g.Edges[i]
		from := g.Nodes[e.From].Identity()
		to := g.Nodes[e.To].Identity()
		set[fmt.Sprintf("%s|%s|%s", from, to, e.Type)] = true
	}
	return set
}
