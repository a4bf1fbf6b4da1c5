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
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
)

// walkFiles discovers source files under root with a filesystem walk.
//
// Description:
//
//	Prunes hidden directories and the usual dependency/build trees, keeps
//	only paths a registered parser claims, and returns slash-separated
//	paths relative to root in ascending order. Unreadable subtrees fail
//	the walk; a root that is not a directory is an error.
//
// Outputs:
//
//	[]string - Relative slash paths, sorted ascending.
//	error - Non-nil when root is unusable or the walk fails.
func walkFiles(root string, reg *ast.Registry) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: root %q is not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skippableDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !supportedPath(reg, path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}
