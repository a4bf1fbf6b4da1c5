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
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

var (
	flagSnapFormat  string
	flagSnapProject string
	flagSnapLimit   int
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect persisted snapshots",
	Long:  "Lists and diffs snapshots in the configured store. Requires store.dir in the config; the default in-memory store keeps nothing between runs.",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted snapshots, newest first",
	RunE:  runSnapshotsList,
}

var snapshotsDiffCmd = &cobra.Command{
	Use:   "diff <base-id> <target-id>",
	Short: "Compare two persisted snapshots",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotsDiff,
}

func init() {
	snapshotsCmd.PersistentFlags().StringVar(&flagSnapFormat, "format", "text", "output format: text|json")
	snapshotsListCmd.Flags().StringVar(&flagSnapProject, "project", "", "filter by project hash")
	snapshotsListCmd.Flags().IntVar(&flagSnapLimit, "limit", 20, "maximum snapshots to list")

	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsDiffCmd)
}

// openSnapshotStore opens the configured persistent store.
func openSnapshotStore() (*pdg.SnapshotManager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.InMemory || cfg.Store.Dir == "" {
		return nil, nil, fmt.Errorf("snapshot persistence is disabled; set store.dir in the config")
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.Store.Dir).WithLogger(nil))
	if err != nil {
		return nil, nil, fmt.Errorf("opening store %s: %w", cfg.Store.Dir, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := pdg.NewSnapshotManager(db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mgr, func() { db.Close() }, nil
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	if flagSnapFormat != "text" && flagSnapFormat != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", flagSnapFormat)
	}

	mgr, closeStore, err := openSnapshotStore()
	if err != nil {
		return err
	}
	defer closeStore()

	metas, err := mgr.List(cmd.Context(), flagSnapProject, flagSnapLimit)
	if err != nil {
		return err
	}

	if flagSnapFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	}

	if len(metas) == 0 {
		fmt.Fprintln(os.Stderr, "No snapshots found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SNAPSHOT ID\tCREATED\tLABEL\tFILES\tNODES\tEDGES\tWARNINGS")
	for _, m := range metas {
		created := time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			m.SnapshotID, created, m.Label, m.FileCount, m.NodeCount, m.EdgeCount, m.WarningCount)
	}
	return w.Flush()
}

func runSnapshotsDiff(cmd *cobra.Command, args []string) error {
	if flagSnapFormat != "text" && flagSnapFormat != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", flagSnapFormat)
	}

	mgr, closeStore, err := openSnapshotStore()
	if err != nil {
		return err
	}
	defer closeStore()

	base, _, err := mgr.Load(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading base: %w", err)
	}
	target, _, err := mgr.Load(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("loading target: %w", err)
	}

	diff, err := pdg.DiffSnapshots(base, target)
	if err != nil {
		return err
	}

	if flagSnapFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	}

	fmt.Printf("base:    %s\n", diff.BaseSnapshotID)
	fmt.Printf("target:  %s\n", diff.TargetSnapshotID)
	fmt.Printf("nodes:   +%d -%d ~%d\n", len(diff.NodesAdded), len(diff.NodesRemoved), len(diff.NodesModified))
	fmt.Printf("edges:   +%d -%d\n", diff.EdgesAdded, diff.EdgesRemoved)
	fmt.Printf("files affected: %d\n", diff.Summary.FilesAffected)
	fmt.Printf("change ratio:   %.2f\n", diff.Summary.ChangeRatio)
	return nil
}
