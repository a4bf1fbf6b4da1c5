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
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
)

// gitListFiles enumerates the files tracked at HEAD of the repository
// containing root.
//
// Description:
//
//	Opens the enclosing repository (root may be a subdirectory of the
//	worktree), reads the HEAD commit's tree, and returns tracked source
//	paths under root, relative to root, sorted ascending. Tracked files
//	respect the project's own ignore rules, which is why git discovery is
//	preferred when available. Any failure (not a repository, unborn HEAD)
//	is returned for the caller to fall back to a filesystem walk.
func gitListFiles(root string, reg *ast.Registry) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("ingest: open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("ingest: worktree: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve root: %w", err)
	}
	prefix, err := filepath.Rel(wt.Filesystem.Root(), absRoot)
	if err != nil {
		return nil, fmt.Errorf("ingest: root outside worktree: %w", err)
	}
	prefix = filepath.ToSlash(prefix)

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("ingest: HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("ingest: HEAD tree: %w", err)
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		name := f.Name
		if prefix != "." {
			trimmed, under := strings.CutPrefix(name, prefix+"/")
			if !under {
				return nil
			}
			name = trimmed
		}
		if supportedPath(reg, name) {
			paths = append(paths, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: enumerate tree: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}
