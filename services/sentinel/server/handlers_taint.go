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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/report"
)

// HandleTaintScan handles POST /v1/taint/scan.
//
// Description:
//
//	Runs interprocedural taint propagation over the requested snapshot
//	and returns the findings in deterministic order. The same snapshot,
//	rulepack and limits always produce byte-identical output.
//
// Request Body: TaintScanRequest
//
// Query Parameters:
//
//	format: "sarif" renders the result as a SARIF 2.1.0 document
//	        (optional; default is the findings JSON)
//
// Response:
//
//	200 OK: taint.Result, or a SARIF document with format=sarif
//	400 Bad Request: Unknown class or bad body
//	404 Not Found: No snapshot yet, or unknown snapshot ID
//
// Thread Safety: This method is safe for concurrent use. Scans read
// immutable snapshots.
func (h *Handlers) HandleTaintScan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTaintScan")

	var req TaintScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "invalid request body: " + err.Error(),
				Code:  CodeInvalidRequest,
			})
			return
		}
	}

	res, err := h.server.Scan(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("taint scan",
		slog.String("snapshot_id", res.SnapshotID),
		slog.Int("findings", len(res.Findings)),
		slog.Bool("truncated", res.Truncated),
	)

	if c.Query("format") == "sarif" {
		c.Header("Content-Type", "application/sarif+json")
		c.Status(http.StatusOK)
		if err := report.WriteTaint(c.Writer, res); err != nil {
			logger.Error("sarif render failed", slog.String("error", err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, res)
}
