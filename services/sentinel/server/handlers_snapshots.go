// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// HandleListSnapshots handles GET /v1/snapshots.
//
// Description:
//
//	Lists stored snapshot metadata, newest first. The graph payloads
//	stay in the store.
//
// Query Parameters:
//
//	project: Filter to one project hash (optional)
//	limit: Maximum results, default 100 (optional)
//
// Response:
//
//	200 OK: SnapshotListResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListSnapshots")

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	snapshots, err := h.server.store.List(c.Request.Context(), c.Query("project"), limit)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	if snapshots == nil {
		snapshots = []*pdg.SnapshotMetadata{}
	}

	logger.Info("list snapshots", slog.Int("count", len(snapshots)))
	c.JSON(http.StatusOK, SnapshotListResponse{
		Snapshots: snapshots,
		Warnings:  []string{},
	})
}

// HandleGetSnapshot handles GET /v1/snapshots/:id.
//
// Description:
//
//	Returns one stored snapshot's metadata, graph statistics, file set
//	and analysis warnings. The graph itself is not rendered; queries
//	and scans are the read surface for graph content.
//
// Response:
//
//	200 OK: SnapshotDetailResponse
//	404 Not Found: Unknown snapshot ID
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetSnapshot")

	snap, meta, err := h.server.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("get snapshot", slog.String("snapshot_id", snap.ID))
	c.JSON(http.StatusOK, SnapshotDetailResponse{
		Meta:     meta,
		Stats:    snap.Stats,
		Files:    snap.Files,
		Warnings: warningsOrEmpty(snap.Warnings),
	})
}

// HandleDeleteSnapshot handles DELETE /v1/snapshots/:id.
//
// Description:
//
//	Removes a stored snapshot. The current in-memory snapshot is
//	unaffected even when its stored copy is deleted; it stays
//	queryable until the next run replaces it.
//
// Response:
//
//	200 OK: {"deleted": id}
//	404 Not Found: Unknown snapshot ID
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteSnapshot")

	id := c.Param("id")
	if err := h.server.store.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("delete snapshot", slog.String("snapshot_id", id))
	c.JSON(http.StatusOK, gin.H{"deleted": id, "warnings": []string{}})
}

// HandleDiffSnapshots handles GET /v1/snapshots/diff.
//
// Description:
//
//	Loads two stored snapshots and returns their structural diff:
//	added, removed and changed nodes and edges, summarized per file.
//
// Query Parameters:
//
//	base: Snapshot ID of the baseline (required)
//	target: Snapshot ID to compare against it (required)
//
// Response:
//
//	200 OK: SnapshotDiffResponse
//	400 Bad Request: Missing parameter
//	404 Not Found: Unknown snapshot ID
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleDiffSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDiffSnapshots")

	baseID := c.Query("base")
	targetID := c.Query("target")
	if baseID == "" || targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "base and target parameters are required",
			Code:  CodeMissingParameter,
		})
		return
	}

	base, _, err := h.server.store.Load(c.Request.Context(), baseID)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	target, _, err := h.server.store.Load(c.Request.Context(), targetID)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	diff, err := pdg.DiffSnapshots(base, target)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("diff snapshots",
		slog.String("base", baseID),
		slog.String("target", targetID),
	)
	c.JSON(http.StatusOK, SnapshotDiffResponse{
		Diff:     diff,
		Warnings: warningsOrEmpty(target.Warnings),
	})
}
