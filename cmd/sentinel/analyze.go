// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/report"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/server"
)

var (
	flagLanguages string
	flagLabel     string
	flagNoScan    bool
	flagClasses   string
	flagMaxDepth  int
	flagCatalog   string
	flagFormat    string
	flagOutput    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a project once and print the result",
	Long:  "Builds a dependence graph snapshot for the given directory, runs a taint scan over it, and writes the report to stdout. If the configured store persists snapshots, the snapshot is saved and can be listed and diffed later.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. python,typescript)")
	analyzeCmd.Flags().StringVar(&flagLabel, "label", "", "label saved with the snapshot")
	analyzeCmd.Flags().BoolVar(&flagNoScan, "no-scan", false, "build the snapshot without running a taint scan")
	analyzeCmd.Flags().StringVar(&flagClasses, "classes", "", "comma-separated taint classes (default: all of sql,command,path,html)")
	analyzeCmd.Flags().IntVar(&flagMaxDepth, "max-depth", 0, "taint propagation depth override")
	analyzeCmd.Flags().StringVar(&flagCatalog, "catalog", "", "rulepack file to use instead of the configured one")
	analyzeCmd.Flags().StringVar(&flagFormat, "format", "json", "output format: json|sarif")
	analyzeCmd.Flags().StringVar(&flagOutput, "output", "", "write the report to a file instead of stdout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if flagFormat != "json" && flagFormat != "sarif" {
		return fmt.Errorf("unknown format %q (want json or sarif)", flagFormat)
	}
	if flagFormat == "sarif" && flagNoScan {
		return fmt.Errorf("sarif output requires a taint scan; drop --no-scan")
	}

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdout carries the report; logs and the human summary go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	srv, err := server.NewServer(*cfg,
		server.WithLogger(logger),
		server.WithVersion(version),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	start := time.Now()
	resp, err := srv.RunAnalysis(cmd.Context(), server.AnalysisRunRequest{
		Root:      targetDir,
		Languages: splitList(flagLanguages),
		Catalog:   flagCatalog,
		Label:     flagLabel,
	})
	if err != nil {
		return err
	}

	if !flagNoScan {
		res, err := srv.Scan(cmd.Context(), server.TaintScanRequest{
			Classes:  splitList(flagClasses),
			MaxDepth: flagMaxDepth,
		})
		if err != nil {
			return err
		}
		resp.Taint = res
	}

	fmt.Fprintf(os.Stderr, "Analyzed %s in %s (files: %d, nodes: %d, edges: %d)\n",
		targetDir,
		time.Since(start).Round(time.Millisecond),
		resp.Graph.Files,
		resp.Graph.Nodes,
		resp.Graph.Edges,
	)
	if len(resp.Warnings) > 0 {
		fmt.Fprintf(os.Stderr, "Warnings: %d\n", len(resp.Warnings))
	}
	if resp.Taint != nil {
		fmt.Fprintf(os.Stderr, "Findings: %d\n", len(resp.Taint.Findings))
	}

	out, closeOut, err := openOutput(flagOutput)
	if err != nil {
		return err
	}
	defer closeOut()

	if flagFormat == "sarif" {
		return report.WriteTaint(out, resp.Taint)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// resolveTargetDir returns the absolute path of the directory to analyze.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// openOutput opens the report destination. An empty path means stdout,
// which must not be closed.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
