// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"errors"
	"sort"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// bfsOutcome is the raw traversal result before assembly into a
// response type.
type bfsOutcome struct {
	order    []int
	layer    map[int]int
	visited  map[int]bool
	stopped  bool
	reason   string
	timedOut bool
}

// nodeBFS walks layer by layer from the seeds. Within a layer,
// candidates are appended in (file path, start byte, arena ID) order;
// the budget therefore always drops the same nodes for the same input.
// maxLayers bounds the radius, budget bounds result size, and the
// deadline is checked once per appended node.
func nodeBFS(ctx context.Context, g *pdg.Graph, seeds []int, neighbors func(int) []int, maxLayers, budget int, budgetReason string) (bfsOutcome, error) {
	out := bfsOutcome{
		layer:   make(map[int]int),
		visited: make(map[int]bool),
	}

	sortByPosition(g, seeds)
	frontier := make([]int, 0, len(seeds))
	for _, id := range seeds {
		if out.visited[id] {
			continue
		}
		stop, err := appendNode(ctx, &out, id, 0, budget, budgetReason)
		if err != nil {
			return bfsOutcome{}, err
		}
		if stop {
			return out, nil
		}
		frontier = append(frontier, id)
	}

	for layer := 1; layer <= maxLayers && len(frontier) > 0; layer++ {
		var candidates []int
		candSeen := make(map[int]bool)
		for _, id := range frontier {
			for _, next := range neighbors(id) {
				if out.visited[next] || candSeen[next] {
					continue
				}
				candSeen[next] = true
				candidates = append(candidates, next)
			}
		}
		sortByPosition(g, candidates)

		next := candidates[:0]
		for _, id := range candidates {
			stop, err := appendNode(ctx, &out, id, layer, budget, budgetReason)
			if err != nil {
				return bfsOutcome{}, err
			}
			if stop {
				return out, nil
			}
			next = append(next, id)
		}
		frontier = next
	}
	return out, nil
}

// appendNode admits one node into the result, enforcing the time and
// size budgets. It reports stop=true when the traversal must end.
func appendNode(ctx context.Context, out *bfsOutcome, id, layer, budget int, budgetReason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			out.stopped = true
			out.timedOut = true
			out.reason = ReasonTimeout
			return true, nil
		}
		return false, err
	}
	if budget > 0 && len(out.order) >= budget {
		out.stopped = true
		out.reason = budgetReason
		return true, nil
	}
	out.visited[id] = true
	out.layer[id] = layer
	out.order = append(out.order, id)
	return false, nil
}

// sortByPosition orders node IDs by file path, then start byte, then
// arena ID.
func sortByPosition(g *pdg.Graph, ids []int) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.Node(ids[i]), g.Node(ids[j])
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartByte != b.StartByte {
			return a.StartByte < b.StartByte
		}
		return ids[i] < ids[j]
	})
}

// undirectedNeighbors returns every node one edge away in either
// direction, in the graph's stable adjacency order.
func undirectedNeighbors(g *pdg.Graph) func(int) []int {
	return func(id int) []int {
		var out []int
		for _, ei := range g.OutEdges(id) {
			out = append(out, g.Edge(ei).To)
		}
		for _, ei := range g.InEdges(id) {
			out = append(out, g.Edge(ei).From)
		}
		return out
	}
}

// callSiteIndex groups call-site node IDs by their enclosing function
// entry, in arena order.
func callSiteIndex(g *pdg.Graph) map[int][]int {
	idx := make(map[int][]int)
	for id := 0; id < g.NodeCount(); id++ {
		n := g.Node(id)
		if n.Kind == pdg.NodeCallSite {
			idx[n.FuncID] = append(idx[n.FuncID], id)
		}
	}
	return idx
}

// calleeNeighbors returns, for a function entry, the entries of every
// function its body calls, following CALL edges of the call sites
// inside it. Unresolved calls contribute nothing.
func calleeNeighbors(g *pdg.Graph, sites map[int][]int) func(int) []int {
	return func(entry int) []int {
		var out []int
		seen := make(map[int]bool)
		for _, cs := range sites[entry] {
			for _, ei := range g.OutEdges(cs) {
				e := g.Edge(ei)
				if e.Type != pdg.EdgeCall || seen[e.To] {
					continue
				}
				seen[e.To] = true
				out = append(out, e.To)
			}
		}
		return out
	}
}

// fileOutcome is the raw file-level traversal result.
type fileOutcome struct {
	order    []string
	layer    map[string]int
	visited  map[string]bool
	stopped  bool
	reason   string
	timedOut bool
}

// fileBFS walks the file dependency adjacency layer by layer, paths
// ascending within a layer, bounded by the file budget.
func fileBFS(ctx context.Context, seed string, adjacency map[string][]string, budget int) (fileOutcome, error) {
	out := fileOutcome{
		layer:   make(map[string]int),
		visited: make(map[string]bool),
	}

	stop, err := appendFile(ctx, &out, seed, 0, budget)
	if err != nil {
		return fileOutcome{}, err
	}
	if stop {
		return out, nil
	}

	frontier := []string{seed}
	for layer := 1; len(frontier) > 0; layer++ {
		var candidates []string
		candSeen := make(map[string]bool)
		for _, path := range frontier {
			for _, next := range adjacency[path] {
				if out.visited[next] || candSeen[next] {
					continue
				}
				candSeen[next] = true
				candidates = append(candidates, next)
			}
		}
		sort.Strings(candidates)

		next := candidates[:0]
		for _, path := range candidates {
			stop, err := appendFile(ctx, &out, path, layer, budget)
			if err != nil {
				return fileOutcome{}, err
			}
			if stop {
				return out, nil
			}
			next = append(next, path)
		}
		frontier = next
	}
	return out, nil
}

func appendFile(ctx context.Context, out *fileOutcome, path string, layer, budget int) (bool, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			out.stopped = true
			out.timedOut = true
			out.reason = ReasonTimeout
			return true, nil
		}
		return false, err
	}
	if budget > 0 && len(out.order) >= budget {
		out.stopped = true
		out.reason = ReasonMaxFiles
		return true, nil
	}
	out.visited[path] = true
	out.layer[path] = layer
	out.order = append(out.order, path)
	return false, nil
}
