// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest discovers project files and normalizes them into the
// analysis representation.
//
// Discovery prefers git's view of the tree when one is available and falls
// back to a filesystem walk. Normalization runs on a bounded worker pool
// with a fast-hash skip for files unchanged since the previous run, so a
// rebuild after a single edit re-parses one file, not the project.
package ingest

import (
	"bytes"
	"strings"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
)

// binarySniffLen caps how many leading bytes the binary check inspects.
// Matches the window git itself uses for its text heuristic.
const binarySniffLen = 8000

// skipDirNames are directory basenames never worth descending into. Hidden
// directories (leading dot) are skipped separately.
var skipDirNames = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"venv":         true,
	".venv":        true,
}

// skippableDir reports whether a directory basename should be pruned from
// the walk. The project root itself is never passed here.
func skippableDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return skipDirNames[name]
}

// looksBinary reports whether content appears to be binary data. A NUL byte
// in the leading window is the signal; binary files are expected in real
// trees and skip analysis without a warning.
func looksBinary(content []byte) bool {
	window := content
	if len(window) > binarySniffLen {
		window = window[:binarySniffLen]
	}
	return bytes.IndexByte(window, 0) >= 0
}

// supportedPath reports whether any registered parser claims the path's
// extension. Unclaimed extensions are skipped silently during discovery.
func supportedPath(reg *ast.Registry, path string) bool {
	_, ok := reg.ForPath(path)
	return ok
}
