// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
)

// startWatcher wires a Watcher over root with a short debounce and returns
// the channel its callback signals.
func startWatcher(t *testing.T, root string) chan struct{} {
	t.Helper()
	changes := make(chan struct{}, 8)
	w, err := NewWatcher(root, ast.DefaultRegistry(),
		func() { changes <- struct{}{} },
		WithDebounce(50*time.Millisecond),
		WithWatchLogger(testLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		cancel()
		w.Close()
	})

	// Give the kernel watch a moment to settle before mutating the tree.
	time.Sleep(100 * time.Millisecond)
	return changes
}

func TestWatcher_TriggersOnSourceChange(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"),
		[]byte("def main():\n    return 1\n"), 0o644))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild trigger after source change")
	}
}

func TestWatcher_IgnoresUnclaimedFiles(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"),
		[]byte("not source\n"), 0o644))

	select {
	case <-changes:
		t.Fatal("unexpected trigger for unclaimed extension")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	// A burst of writes inside one debounce window fires once.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"),
			[]byte("def main():\n    return 1\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild trigger after burst")
	}

	select {
	case <-changes:
		t.Fatal("burst produced a second trigger")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Let the directory watch register before writing into it.
	time.Sleep(200 * time.Millisecond)
	drain(changes)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "mod.py"),
		[]byte("def f():\n    return 1\n"), 0o644))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no trigger for file in newly created directory")
	}
}

// drain empties any buffered triggers.
func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestWatcher_StartTwiceFails(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, ast.DefaultRegistry(), func() {},
		WithWatchLogger(testLogger()))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_NilInputs(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), nil, func() {})
	assert.Error(t, err)

	_, err = NewWatcher(t.TempDir(), ast.DefaultRegistry(), nil)
	assert.Error(t, err)
}
