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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
)

var flagCatalogURL string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Work with source/sink/sanitizer rulepacks",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a rulepack file or URL",
	Long:  "Parses a rulepack the same way the engine does and reports its manifest and rule counts. Validates the embedded default pack when neither a path nor --url is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogValidate,
}

func init() {
	catalogValidateCmd.Flags().StringVar(&flagCatalogURL, "url", "", "fetch the rulepack over HTTPS instead of reading a file")

	catalogCmd.AddCommand(catalogValidateCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 && flagCatalogURL != "" {
		return fmt.Errorf("give a path or --url, not both")
	}

	var (
		bundle *catalog.Bundle
		origin string
		err    error
	)
	switch {
	case flagCatalogURL != "":
		origin = flagCatalogURL
		bundle, err = catalog.NewFetcher().Fetch(cmd.Context(), flagCatalogURL)
	case len(args) > 0:
		origin = args[0]
		bundle, err = catalog.LoadFile(args[0])
	default:
		origin = "embedded default"
		bundle, err = catalog.Default()
	}
	if err != nil {
		return err
	}

	m := bundle.Manifest()
	sources, sinks, sanitizers := bundle.Counts()
	fmt.Printf("Catalog valid: %s %s (schema %s)\n", m.Name, m.Version, m.Schema)
	fmt.Printf("  origin:     %s\n", origin)
	if m.MinEngine != "" {
		fmt.Printf("  min engine: %s\n", m.MinEngine)
	}
	if m.UpdatedAt != "" {
		fmt.Printf("  updated at: %s\n", m.UpdatedAt)
	}
	fmt.Printf("  rules:      %d sources, %d sinks, %d sanitizers\n", sources, sinks, sanitizers)
	return nil
}
