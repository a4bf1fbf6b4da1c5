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
	"context"
	"errors"
	"strings"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

// newTestDB creates an in-memory BadgerDB for testing.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing badger: %v", err)
		}
	})
	return db
}

func newTestSnapshotManager(t *testing.T) (*SnapshotManager, *badger.DB) {
	t.Helper()
	db := newTestDB(t)
	m, err := NewSnapshotManager(db, testLogger())
	if err != nil {
		t.Fatalf("NewSnapshotManager: %v", err)
	}
	return m, db
}

func TestNewSnapshotManager_NilArgs(t *testing.T) {
	if _, err := NewSnapshotManager(nil, testLogger()); err == nil {
		t.Error("nil db should be rejected")
	}
	if _, err := NewSnapshotManager(newTestDB(t), nil); err == nil {
		t.Error("nil logger should be rejected")
	}
}

func TestSnapshotManager_SaveLoad(t *testing.T) {
	m, _ := newTestSnapshotManager(t)
	ctx := context.Background()
	snap := crossFileSnapshot(t)

	meta, err := m.Save(ctx, snap, "baseline")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.SnapshotID != snap.ID || meta.ProjectHash != snap.ProjectHash {
		t.Errorf("meta identity = %+v", meta)
	}
	if meta.GraphHash != snap.Graph.Hash() {
		t.Error("meta graph hash disagrees with the graph")
	}
	if meta.Label != "baseline" || meta.SchemaVersion != SnapshotSchemaVersion {
		t.Errorf("meta = %+v", meta)
	}
	if meta.NodeCount != snap.Graph.NodeCount() || meta.EdgeCount != snap.Graph.EdgeCount() {
		t.Errorf("meta counts = %d nodes, %d edges", meta.NodeCount, meta.EdgeCount)
	}
	if meta.FileCount != 2 || meta.CompressedSize == 0 || meta.ContentHash == "" {
		t.Errorf("meta payload fields = %+v", meta)
	}

	loaded, loadedMeta, err := m.Load(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Graph.Hash() != snap.Graph.Hash() {
		t.Error("loaded graph differs from the saved one")
	}
	if !loaded.Graph.Frozen() {
		t.Error("loaded graph should be frozen")
	}
	if loadedMeta.SnapshotID != meta.SnapshotID || loadedMeta.ContentHash != meta.ContentHash {
		t.Errorf("loaded meta = %+v", loadedMeta)
	}
}

func TestSnapshotManager_SaveRejectsMissingIdentity(t *testing.T) {
	m, _ := newTestSnapshotManager(t)
	ctx := context.Background()

	if _, err := m.Save(ctx, nil, ""); err == nil {
		t.Error("nil snapshot should be rejected")
	}

	snap := crossFileSnapshot(t)
	snap.ID = ""
	if _, err := m.Save(ctx, snap, ""); err == nil || !strings.Contains(err.Error(), "identity") {
		t.Errorf("identity-less snapshot error = %v", err)
	}
}

func TestSnapshotManager_LoadMissing(t *testing.T) {
	m, _ := newTestSnapshotManager(t)

	_, _, err := m.Load(context.Background(), "no-such-snapshot")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("Load(missing) = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshotManager_LoadLatest(t *testing.T) {
	m, _ := newTestSnapshotManager(t)
	ctx := context.Background()

	first := crossFileSnapshot(t)
	second := crossFileSnapshot(t)
	if first.ProjectHash != second.ProjectHash {
		t.Fatal("same sources should share a project hash")
	}

	if _, err := m.Save(ctx, first, ""); err != nil {
		t.Fatalf("Save(first): %v", err)
	}
	if _, err := m.Save(ctx, second, ""); err != nil {
		t.Fatalf("Save(second): %v", err)
	}

	_, meta, err := m.LoadLatest(ctx, first.ProjectHash)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if meta.SnapshotID != second.ID {
		t.Errorf("latest = %s, want the most recently saved %s", meta.SnapshotID, second.ID)
	}

	_, _, err = m.LoadLatest(ctx, "ffffffffffffffff")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("LoadLatest(unknown project) = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshotManager_List(t *testing.T) {
	m, _ := newTestSnapshotManager(t)
	ctx := context.Background()

	older := crossFileSnapshot(t)
	older.CreatedAtMilli = 1000
	newer := crossFileSnapshot(t)
	newer.CreatedAtMilli = 2000
	other := buildProject(t, map[string]string{
		"solo.py": "def solo():\n    return 1\n",
	})
	other.CreatedAtMilli = 1500

	for _, s := range []*Snapshot{older, newer, other} {
		if _, err := m.Save(ctx, s, ""); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	scoped, err := m.List(ctx, older.ProjectHash, 0)
	if err != nil {
		t.Fatalf("List(project): %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("List(project) = %d results, want 2", len(scoped))
	}
	if scoped[0].SnapshotID != newer.ID || scoped[1].SnapshotID != older.ID {
		t.Errorf("List order = %s, %s; want newest first", scoped[0].SnapshotID, scoped[1].SnapshotID)
	}

	all, err := m.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(all) = %d results, want 3", len(all))
	}

	limited, err := m.List(ctx, older.ProjectHash, 1)
	if err != nil {
		t.Fatalf("List(limit): %v", err)
	}
	if len(limited) != 1 || limited[0].SnapshotID != newer.ID {
		t.Errorf("List(limit 1) = %+v", limited)
	}
}

func TestSnapshotManager_Delete(t *testing.T) {
	m, _ := newTestSnapshotManager(t)
	ctx := context.Background()
	snap := crossFileSnapshot(t)

	if _, err := m.Save(ctx, snap, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Delete(ctx, snap.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, _, err := m.Load(ctx, snap.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load after delete = %v, want ErrSnapshotNotFound", err)
	}
	// The latest pointer named this snapshot, so it goes too.
	if _, _, err := m.LoadLatest(ctx, snap.ProjectHash); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadLatest after delete = %v, want ErrSnapshotNotFound", err)
	}
	if err := m.Delete(ctx, snap.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("second Delete = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshotManager_CorruptPayload(t *testing.T) {
	m, db := newTestSnapshotManager(t)
	ctx := context.Background()
	snap := crossFileSnapshot(t)

	if _, err := m.Save(ctx, snap, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dataKey := keyPrefixSnap + snap.ProjectHash + ":" + snap.ID + keySuffixData
	err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dataKey), []byte("garbage"))
	})
	if err != nil {
		t.Fatalf("corrupting payload: %v", err)
	}

	_, _, err = m.Load(ctx, snap.ID)
	if err == nil || !strings.Contains(err.Error(), "integrity check failed") {
		t.Fatalf("Load(corrupt) = %v, want integrity failure", err)
	}
}
