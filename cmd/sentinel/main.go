// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sentinel runs the Aleutian Sentinel code-intelligence engine.
//
// Aleutian Sentinel builds a cross-file program dependence graph over
// Python, JavaScript and TypeScript sources and answers taint-flow and
// structural queries against it:
//   - Ephemeral graph snapshots (in-memory, rebuilt from source)
//   - Interprocedural taint propagation (sql, command, path, html)
//   - Bounded graph queries (neighborhood, call graph, dependencies)
//   - SARIF export for scanner toolchains
//
// Usage:
//
//	sentinel serve
//	sentinel serve --port 9090 --debug
//	sentinel analyze ./my-project --format sarif
//	sentinel snapshots list
//	sentinel snapshots diff <base-id> <target-id>
//	sentinel catalog validate rulepack.yaml
//
// Example requests against a running server:
//
//	# Health check
//	curl http://localhost:8080/healthz
//
//	# Analyze a project and scan it in one round trip
//	curl -X POST http://localhost:8080/v1/analysis/run \
//	  -H "Content-Type: application/json" \
//	  -d '{"root": "/path/to/project", "scan": true}'
//
//	# Two-hop neighborhood of a symbol
//	curl -X POST http://localhost:8080/v1/query/neighborhood \
//	  -H "Content-Type: application/json" \
//	  -d '{"symbol": "app.handlers:login", "hops": 2}'
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/config"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "sentinel",
	Short:         "Cross-file dependence graphs and taint analysis for dynamic languages",
	Long:          "Sentinel parses source trees with tree-sitter, links them into a program dependence graph, and serves deterministic taint and structure queries over HTTP or one-shot on the command line.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: sentinel.yaml if present)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration from the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList parses a comma-separated flag value into trimmed items.
func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
