// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package taint

import (
	"math"
	"strings"
)

const (
	// unverifiedSanitizerPenalty multiplies the score once per call on
	// the path whose name suggests sanitization but which the rulepack
	// does not list.
	unverifiedSanitizerPenalty = 0.85

	// depthDecay multiplies the score once per hop past the depth cap.
	depthDecay = 0.9

	// lowConfidenceThreshold marks findings that should be reviewed
	// rather than trusted.
	lowConfidenceThreshold = 0.5
)

// sanitizerNamePrefixes are compared against the final segment of a
// callee, lowercased.
var sanitizerNamePrefixes = []string{
	"sanitize", "sanitise", "escape", "clean", "quote", "validate",
}

// score computes a finding's confidence from the sink's base score, the
// number of unverified sanitizers crossed, and how far past the depth
// cap the sink sits. The second return is the low-confidence flag.
func score(base float64, penalties, depth, maxDepth int) (float64, bool) {
	c := base
	if penalties > 0 {
		c *= math.Pow(unverifiedSanitizerPenalty, float64(penalties))
	}
	past := false
	if depth > maxDepth {
		c *= math.Pow(depthDecay, float64(depth-maxDepth))
		past = true
	}
	if c < 0 {
		c = 0
	}
	return c, past || c < lowConfidenceThreshold
}

// looksLikeSanitizer reports whether a callee's final segment starts
// with a sanitizer-style verb. Used only when the rulepack has no entry
// for the call; the match penalizes confidence instead of clearing the
// label.
func looksLikeSanitizer(callee string) bool {
	if callee == "" {
		return false
	}
	last := callee
	if i := strings.LastIndexByte(callee, '.'); i >= 0 {
		last = callee[i+1:]
	}
	last = strings.ToLower(last)
	for _, p := range sanitizerNamePrefixes {
		if strings.HasPrefix(last, p) {
			return true
		}
	}
	return false
}
