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
	"strings"
	"testing"
)

func TestDiffSnapshots_NilInputs(t *testing.T) {
	snap := crossFileSnapshot(t)
	if _, err := DiffSnapshots(nil, snap); err == nil {
		t.Error("nil base should be rejected")
	}
	if _, err := DiffSnapshots(snap, nil); err == nil {
		t.Error("nil target should be rejected")
	}
}

func TestDiffSnapshots_Identical(t *testing.T) {
	base := crossFileSnapshot(t)
	target := crossFileSnapshot(t)

	diff, err := DiffSnapshots(base, target)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if diff.BaseSnapshotID != base.ID || diff.TargetSnapshotID != target.ID {
		t.Errorf("diff identity = %+v", diff)
	}
	if len(diff.NodesAdded) != 0 || len(diff.NodesRemoved) != 0 || len(diff.NodesModified) != 0 {
		t.Errorf("identical snapshots should not differ: %+v", diff)
	}
	if diff.EdgesAdded != 0 || diff.EdgesRemoved != 0 {
		t.Errorf("edge changes = %d added, %d removed", diff.EdgesAdded, diff.EdgesRemoved)
	}
	if diff.Summary.TotalChanges != 0 || diff.Summary.ChangeRatio != 0 {
		t.Errorf("summary = %+v", diff.Summary)
	}
}

func TestDiffSnapshots_AddedFile(t *testing.T) {
	shared := map[string]string{
		"a.py": "def get_input():\n    return input()\n",
		"b.py": "from a import get_input\n\ndef handler():\n    q = get_input()\n    return q\n",
	}
	base := buildProject(t, shared)

	grown := map[string]string{
		"a.py": shared["a.py"],
		"b.py": shared["b.py"],
		"c.py": "from a import get_input\n\nget_input()\n",
	}
	target := buildProject(t, grown)

	diff, err := DiffSnapshots(base, target)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}

	if len(diff.NodesAdded) == 0 {
		t.Fatal("expected added nodes for the new file")
	}
	for _, ident := range diff.NodesAdded {
		if !strings.HasPrefix(ident, "c.py[") {
			t.Errorf("added node %s outside the new file", ident)
		}
	}
	if len(diff.NodesRemoved) != 0 {
		t.Errorf("NodesRemoved = %v, want none", diff.NodesRemoved)
	}
	if diff.EdgesAdded == 0 || diff.EdgesRemoved != 0 {
		t.Errorf("edges = %d added, %d removed", diff.EdgesAdded, diff.EdgesRemoved)
	}

	// The new caller grows edges into a.py, so its callee and definition
	// show up as modified, not added.
	for _, mod := range diff.NodesModified {
		if mod.ChangeType != "edges_changed" {
			t.Errorf("node %s changed as %q, want edges_changed", mod.NodeIdentity, mod.ChangeType)
		}
		if !strings.HasPrefix(mod.NodeIdentity, "a.py[") {
			t.Errorf("modified node %s outside the callee file", mod.NodeIdentity)
		}
	}
	if diff.Summary.FilesAffected != 2 {
		t.Errorf("FilesAffected = %d, want 2 (new file plus callee)", diff.Summary.FilesAffected)
	}
	if diff.Summary.TotalChanges == 0 || diff.Summary.ChangeRatio <= 0 {
		t.Errorf("summary = %+v", diff.Summary)
	}
}

func TestDiffSnapshots_Renamed(t *testing.T) {
	// Same byte shape, different callee text: the call site keeps its
	// identity and reports a rename.
	base := buildProject(t, map[string]string{
		"r.py": "x = 1\nsink(x)\n",
	})
	target := buildProject(t, map[string]string{
		"r.py": "x = 1\nwarn(x)\n",
	})

	diff, err := DiffSnapshots(base, target)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if len(diff.NodesAdded) != 0 || len(diff.NodesRemoved) != 0 {
		t.Errorf("identity-preserving edit added/removed nodes: %+v", diff)
	}
	if len(diff.NodesModified) != 1 {
		t.Fatalf("NodesModified = %+v, want exactly the call site", diff.NodesModified)
	}
	mod := diff.NodesModified[0]
	if mod.ChangeType != "renamed" || mod.Name != "warn" {
		t.Errorf("modification = %+v", mod)
	}
}

func TestDiffSnapshots_ResolutionChanged(t *testing.T) {
	use := "from lib import helper\n\ndef go():\n    helper()\n"
	base := buildProject(t, map[string]string{
		"lib.py": "def helper():\n    return 1\n",
		"use.py": use,
	})
	target := buildProject(t, map[string]string{
		"use.py": use,
	})

	diff, err := DiffSnapshots(base, target)
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}

	if len(diff.NodesRemoved) == 0 {
		t.Error("deleting a file should remove its nodes")
	}
	for _, ident := range diff.NodesRemoved {
		if !strings.HasPrefix(ident, "lib.py[") {
			t.Errorf("removed node %s outside the deleted file", ident)
		}
	}
	if diff.EdgesRemoved == 0 {
		t.Error("deleting the callee should remove stitched edges")
	}

	changes := make(map[string]string, len(diff.NodesModified))
	for _, mod := range diff.NodesModified {
		changes[mod.NodeIdentity] = mod.ChangeType
	}
	call := findCallSite(t, target.Graph, "use.py", "helper")
	if got := changes[call.Identity().String()]; got != "resolution_changed" {
		t.Errorf("call site change = %q, want resolution_changed", got)
	}
	imp := findKind(t, target.Graph, "use.py", NodeImport)
	if got := changes[imp.Identity().String()]; got != "edges_changed" {
		t.Errorf("import change = %q, want edges_changed", got)
	}
}
