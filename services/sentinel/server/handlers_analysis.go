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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// writeError maps service errors onto the uniform error body.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, ErrAnalysisInFlight):
		status, code = http.StatusConflict, CodeAnalysisRunning
	case errors.Is(err, ErrNoRoot):
		status, code = http.StatusBadRequest, CodeMissingParameter
	case errors.Is(err, ErrNoSnapshot):
		status, code = http.StatusNotFound, CodeNoSnapshot
	case errors.Is(err, pdg.ErrSnapshotNotFound):
		status, code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, ast.ErrUnsupportedLanguage):
		status, code = http.StatusBadRequest, CodeUnsupported
	case errors.Is(err, ErrUnknownClass), errors.Is(err, catalog.ErrInvalidCatalog):
		status, code = http.StatusBadRequest, CodeInvalidRequest
	default:
		status, code = http.StatusInternalServerError, CodeInternal
		logger.Error("request failed", slog.String("error", err.Error()))
	}

	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// HandleRunAnalysis handles POST /v1/analysis/run.
//
// Description:
//
//	Runs one full ingest, resolve and build pass over the requested
//	project root and swaps the produced snapshot in as the current one.
//	With scan set the response inlines the taint findings.
//
// Request Body: AnalysisRunRequest
//
// Response:
//
//	200 OK: AnalysisRunResponse
//	400 Bad Request: No root, unknown language tag, or bad body
//	409 Conflict: Another run is in flight
//
// Thread Safety: This method is safe for concurrent use. Concurrent
// runs are rejected, never queued.
func (h *Handlers) HandleRunAnalysis(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRunAnalysis")

	var req AnalysisRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  CodeInvalidRequest,
		})
		return
	}

	resp, err := h.server.RunAnalysis(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("analysis run",
		slog.String("snapshot_id", resp.SnapshotID),
		slog.String("root", resp.Root),
		slog.Int("files", resp.Graph.Files),
		slog.Int("warnings", len(resp.Warnings)),
	)
	c.JSON(http.StatusOK, resp)
}

const (
	progressWriteTimeout = 10 * time.Second
	progressPingInterval = 30 * time.Second
)

// progressUpgrader upgrades progress subscribers. The stream is
// read-only advisory data for local tooling, so any origin may attach.
var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleProgress handles GET /v1/analysis/progress.
//
// Description:
//
//	Upgrades to a websocket and streams build progress events as JSON,
//	one message per event. Slow subscribers lose intermediate events;
//	the terminal complete or failed event is always delivered. The
//	stream stays open across runs until the client disconnects.
//
// Response:
//
//	101 Switching Protocols: ProgressEvent stream
//	400 Bad Request: Not a websocket handshake
//
// Thread Safety: This method is safe for concurrent use. Each
// subscriber holds an independent event queue.
func (h *Handlers) HandleProgress(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleProgress")

	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the handshake error.
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	progressSubscribers.Inc()
	defer progressSubscribers.Dec()

	events, cancel := h.server.hub.subscribe()
	defer cancel()

	// Reader loop: the client sends nothing meaningful, but reading is
	// what surfaces close frames and connection loss.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug("progress subscriber attached",
		slog.Int("subscribers", h.server.hub.subscriberCount()))
	ping := time.NewTicker(progressPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("progress subscriber gone", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleSearchSymbols handles GET /v1/symbols/search.
//
// Description:
//
//	Ranked symbol lookup over the current snapshot's table: exact
//	matches first, then prefix, then substring, ties broken by name,
//	file and line.
//
// Query Parameters:
//
//	q: Search string (required)
//	limit: Maximum matches, default 20 (optional)
//
// Response:
//
//	200 OK: SymbolSearchResponse
//	400 Bad Request: Missing query
//	404 Not Found: No snapshot yet
//
// Thread Safety: This method is safe for concurrent use. Read-only
// access to an immutable table.
func (h *Handlers) HandleSearchSymbols(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSearchSymbols")

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "q parameter is required",
			Code:  CodeMissingParameter,
		})
		return
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	resp, err := h.server.SearchSymbols(c.Request.Context(), q, limit)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("symbol search",
		slog.String("query", q),
		slog.Int("matches", len(resp.Matches)),
	)
	c.JSON(http.StatusOK, resp)
}

// HandleReloadCatalog handles POST /v1/catalog/reload.
//
// Description:
//
//	Loads and activates a rulepack without rebuilding the graph. An
//	empty body reloads the configured source; a body may point at a
//	different file or HTTPS endpoint.
//
// Request Body: CatalogReloadRequest (optional)
//
// Response:
//
//	200 OK: CatalogReloadResponse
//	400 Bad Request: Invalid rulepack or bad body
//
// Thread Safety: This method is safe for concurrent use. The bundle
// swaps atomically; in-flight scans keep the bundle they started with.
func (h *Handlers) HandleReloadCatalog(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReloadCatalog")

	var req CatalogReloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "invalid request body: " + err.Error(),
				Code:  CodeInvalidRequest,
			})
			return
		}
	}

	resp, err := h.server.ReloadCatalog(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("catalog reload",
		slog.String("name", resp.Manifest.Name),
		slog.String("version", resp.Manifest.Version),
	)
	c.JSON(http.StatusOK, resp)
}

// HandleHealthz handles GET /healthz.
//
// Response:
//
//	200 OK: HealthResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    h.server.version,
		SnapshotID: h.server.CurrentSnapshotID(),
		Warnings:   []string{},
	})
}
