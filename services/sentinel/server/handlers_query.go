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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/query"
)

// writeQueryError maps query service errors. Lookup misses are client
// errors; everything else falls through to the shared mapping.
func (h *Handlers) writeQueryError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, query.ErrNoSnapshot):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNoSnapshot})
	case errors.Is(err, query.ErrSymbolNotFound), errors.Is(err, query.ErrFileNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
	default:
		h.writeError(c, logger, err)
	}
}

// HandleNeighborhood handles POST /v1/query/neighborhood.
//
// Description:
//
//	Returns the bounded neighborhood around a symbol: every node within
//	the hop radius, in deterministic BFS order, with the edges among
//	them. Completing the radius is not truncation; only the node or
//	time budget sets truncated.
//
// Request Body: query.NeighborhoodRequest
//
// Response:
//
//	200 OK: query.GraphResult
//	400 Bad Request: Missing symbol
//	404 Not Found: No snapshot yet, or unknown symbol
//
// Thread Safety: This method is safe for concurrent use. Read-only
// access to an immutable snapshot.
func (h *Handlers) HandleNeighborhood(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleNeighborhood")

	var req query.NeighborhoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  CodeInvalidRequest,
		})
		return
	}
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "symbol is required",
			Code:  CodeMissingParameter,
		})
		return
	}

	res, err := h.server.queries.Neighborhood(c.Request.Context(), req)
	if err != nil {
		h.writeQueryError(c, logger, err)
		return
	}

	logger.Info("neighborhood query",
		slog.String("symbol", req.Symbol),
		slog.Int("nodes", len(res.Nodes)),
		slog.Bool("truncated", res.Truncated),
	)
	c.JSON(http.StatusOK, res)
}

// HandleCallGraph handles POST /v1/query/callgraph.
//
// Description:
//
//	Returns the function-level call graph reachable from a symbol or
//	from every function a file defines. Edges connect caller entries to
//	callee entries; cross-file edges are tagged.
//
// Request Body: query.CallGraphRequest
//
// Response:
//
//	200 OK: query.GraphResult
//	400 Bad Request: Neither or both of symbol and file
//	404 Not Found: No snapshot yet, or unknown seed
//
// Thread Safety: This method is safe for concurrent use. Read-only
// access to an immutable snapshot.
func (h *Handlers) HandleCallGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCallGraph")

	var req query.CallGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  CodeInvalidRequest,
		})
		return
	}
	if (req.Symbol == "") == (req.File == "") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "exactly one of symbol or file is required",
			Code:  CodeMissingParameter,
		})
		return
	}

	res, err := h.server.queries.CallGraph(c.Request.Context(), req)
	if err != nil {
		h.writeQueryError(c, logger, err)
		return
	}

	logger.Info("callgraph query",
		slog.String("symbol", req.Symbol),
		slog.String("file", req.File),
		slog.Int("nodes", len(res.Nodes)),
		slog.Bool("truncated", res.Truncated),
	)
	c.JSON(http.StatusOK, res)
}

// HandleDependencies handles POST /v1/query/dependencies.
//
// Description:
//
//	Returns the transitive file dependencies of a seed file as a
//	file-level graph, each edge aggregating the node-level edges
//	between two files.
//
// Request Body: query.DependenciesRequest
//
// Response:
//
//	200 OK: query.DependencyResult
//	400 Bad Request: Missing file
//	404 Not Found: No snapshot yet, or unknown file
//
// Thread Safety: This method is safe for concurrent use. Read-only
// access to an immutable snapshot.
func (h *Handlers) HandleDependencies(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDependencies")

	var req query.DependenciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  CodeInvalidRequest,
		})
		return
	}
	if req.File == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "file is required",
			Code:  CodeMissingParameter,
		})
		return
	}

	res, err := h.server.queries.Dependencies(c.Request.Context(), req)
	if err != nil {
		h.writeQueryError(c, logger, err)
		return
	}

	logger.Info("dependencies query",
		slog.String("file", req.File),
		slog.Int("files", len(res.Files)),
		slog.Bool("truncated", res.Truncated),
	)
	c.JSON(http.StatusOK, res)
}
