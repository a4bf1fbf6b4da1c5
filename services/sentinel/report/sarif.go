// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders taint findings as SARIF 2.1.0 documents.
//
// Findings stay ephemeral in the core; SARIF is the interchange surface for
// code scanning UIs. One run per document, one rule per vulnerability
// class, one result per finding with the source-to-sink path attached as a
// code flow.
package report

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/taint"
)

const (
	toolName       = "AleutianSentinel"
	informationURI = "https://github.com/AleutianAI/AleutianSentinel"
)

// classDescriptions gives each built-in vulnerability class its rule text.
var classDescriptions = map[catalog.Class]string{
	"sql":     "User-controlled data reaches a SQL execution sink without sanitization.",
	"command": "User-controlled data reaches a command execution sink without sanitization.",
	"path":    "User-controlled data reaches a filesystem path sink without sanitization.",
	"html":    "User-controlled data reaches an HTML rendering sink without sanitization.",
}

// FromTaint converts a taint result into a SARIF 2.1.0 report.
//
// Description:
//
//	Emits one rule per vulnerability class present in the findings and one
//	result per finding. The propagation path becomes a single code flow
//	whose thread flow visits every step from source to sink. Low-confidence
//	findings downgrade to warning level; finding flags and the engine's
//	warnings ride along as properties so nothing the JSON surface reports
//	is lost in the SARIF one.
//
// Outputs:
//
//	*sarif.Report - Ready to serialize with Write or PrettyWrite.
//	error - Non-nil for a nil result or a SARIF version failure.
func FromTaint(res *taint.Result) (*sarif.Report, error) {
	if res == nil {
		return nil, fmt.Errorf("report: nil taint result")
	}

	doc, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("report: create document: %w", err)
	}

	run := sarif.NewRunWithInformationURI(toolName, informationURI)
	run.Properties = map[string]interface{}{
		"snapshot_id":          res.SnapshotID,
		"truncated":            res.Truncated,
		"truncated_by_timeout": res.TruncatedByTimeout,
	}
	if res.TruncationReason != "" {
		run.Properties["truncation_reason"] = res.TruncationReason
	}
	if len(res.Warnings) > 0 {
		run.Properties["warnings"] = res.Warnings
	}

	seenRules := make(map[string]bool)
	for _, f := range res.Findings {
		ruleID := ruleIDFor(f.Class)
		if !seenRules[ruleID] {
			run.AddRule(ruleID).
				WithDescription(describeClass(f.Class)).
				WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "error"})
			seenRules[ruleID] = true
		}
		run.AddResult(resultFor(ruleID, f))
	}

	doc.AddRun(run)
	return doc, nil
}

// WriteTaint serializes a taint result as pretty-printed SARIF.
func WriteTaint(w io.Writer, res *taint.Result) error {
	doc, err := FromTaint(res)
	if err != nil {
		return err
	}
	if err := doc.PrettyWrite(w); err != nil {
		return fmt.Errorf("report: write document: %w", err)
	}
	return nil
}

// ruleIDFor names the SARIF rule for a vulnerability class.
func ruleIDFor(class catalog.Class) string {
	return "taint/" + string(class)
}

// describeClass returns the rule description for a class.
func describeClass(class catalog.Class) string {
	if desc, ok := classDescriptions[class]; ok {
		return desc
	}
	return fmt.Sprintf("User-controlled data reaches a %s sink without sanitization.", class)
}

// resultFor builds the SARIF result for one finding.
func resultFor(ruleID string, f taint.Finding) *sarif.Result {
	message := fmt.Sprintf("tainted data from %s (%s:%d) reaches %s sink %s (%s:%d), confidence %.2f",
		f.Source.Name, f.Source.FilePath, f.Source.Line,
		f.Class, f.Sink.Name, f.Sink.FilePath, f.Sink.Line, f.Confidence)

	level := "error"
	if f.LowConfidence {
		level = "warning"
	}

	result := sarif.NewRuleResult(ruleID).
		WithMessage(sarif.NewTextMessage(message)).
		WithLevel(level).
		WithLocations([]*sarif.Location{locationFor(f.Sink.FilePath, f.Sink.Line)})

	if flow := codeFlowFor(f); flow != nil {
		result.CodeFlows = append(result.CodeFlows, flow)
	}

	result.Properties = map[string]interface{}{
		"finding_id":          f.ID,
		"vulnerability_class": string(f.Class),
		"confidence":          f.Confidence,
		"truncated":           f.Truncated,
		"low_confidence":      f.LowConfidence,
	}
	if f.TruncatedByTimeout {
		result.Properties["truncated_by_timeout"] = true
	}
	if f.UnverifiedSanitizer {
		result.Properties["unverified_sanitizer"] = true
	}
	return result
}

// codeFlowFor renders the propagation path as one thread flow.
func codeFlowFor(f taint.Finding) *sarif.CodeFlow {
	if len(f.Path) == 0 {
		return nil
	}
	threadFlow := sarif.NewThreadFlow()
	for _, step := range f.Path {
		threadFlow.Locations = append(threadFlow.Locations, &sarif.ThreadFlowLocation{
			Location: locationFor(step.FilePath, step.Line),
		})
	}
	flow := sarif.NewCodeFlow()
	flow.ThreadFlows = append(flow.ThreadFlows, threadFlow)
	return flow
}

// locationFor builds a physical location. SARIF lines are 1-based; nodes
// without line information pin to line 1.
func locationFor(path string, line int) *sarif.Location {
	if line < 1 {
		line = 1
	}
	return sarif.NewLocation().WithPhysicalLocation(
		sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewArtifactLocation().WithUri(path)).
			WithRegion(sarif.NewRegion().WithStartLine(line)))
}
