// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package limits

import "testing"

func TestNormalizedFillsZeroFields(t *testing.T) {
	got := Limits{MaxHops: 5}.Normalized()

	if got.MaxHops != 5 {
		t.Errorf("MaxHops = %d, want 5 (explicit values pass through)", got.MaxHops)
	}
	if got.MaxNodes != DefaultMaxNodes {
		t.Errorf("MaxNodes = %d, want default %d", got.MaxNodes, DefaultMaxNodes)
	}
	if got.MaxFindings != DefaultMaxFindings {
		t.Errorf("MaxFindings = %d, want default %d", got.MaxFindings, DefaultMaxFindings)
	}
}

func TestNormalizedReplacesNegatives(t *testing.T) {
	got := Limits{MaxHops: -1, MaxNodes: -100, MaxFiles: -1, MaxFindings: -1, MaxDepth: -3}.Normalized()

	if got != Default() {
		t.Errorf("Normalized() of all-negative = %+v, want defaults %+v", got, Default())
	}
}

func TestNormalizedDoesNotClampLargeValues(t *testing.T) {
	got := Limits{MaxNodes: 1_000_000}.Normalized()

	if got.MaxNodes != 1_000_000 {
		t.Errorf("MaxNodes = %d, want 1000000 (no upper clamp)", got.MaxNodes)
	}
}

func TestClampHops(t *testing.T) {
	l := Limits{MaxHops: 4}

	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"within limit", 2, 2},
		{"at limit", 4, 4},
		{"above limit", 9, 4},
		{"zero falls back", 0, 4},
		{"negative falls back", -2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.ClampHops(tt.requested); got != tt.want {
				t.Errorf("ClampHops(%d) = %d, want %d", tt.requested, got, tt.want)
			}
		})
	}
}

func TestClampDepth(t *testing.T) {
	l := Limits{MaxDepth: 10}

	if got := l.ClampDepth(50); got != 10 {
		t.Errorf("ClampDepth(50) = %d, want 10", got)
	}
	if got := l.ClampDepth(7); got != 7 {
		t.Errorf("ClampDepth(7) = %d, want 7", got)
	}
}
