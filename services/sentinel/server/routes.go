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
	"github.com/gin-gonic/gin"
)

// Handlers wires HTTP handlers to the server.
type Handlers struct {
	server *Server
}

// NewHandlers creates the handler set for a server.
func NewHandlers(s *Server) *Handlers {
	return &Handlers{server: s}
}

// RegisterRoutes registers the Sentinel API routes with the router.
//
// Description:
//
//	Registers all /v1/* endpoints with the given Gin router group.
//	Snapshot, query and scan endpoints read immutable snapshots and are
//	safe under any concurrency; analysis runs are serialized server
//	side.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	Analysis:
//	POST /v1/analysis/run - Ingest, resolve and build a project snapshot
//	GET  /v1/analysis/progress - Websocket stream of build progress
//
//	Taint:
//	POST /v1/taint/scan - Propagate taint over a snapshot (?format=sarif)
//
//	Graph queries:
//	POST /v1/query/neighborhood - Bounded neighborhood around a symbol
//	POST /v1/query/callgraph - Call graph from a function or file
//	POST /v1/query/dependencies - Transitive file dependencies
//
//	Snapshots:
//	GET    /v1/snapshots - List stored snapshot metadata
//	GET    /v1/snapshots/diff - Structural diff of two snapshots
//	GET    /v1/snapshots/:id - One snapshot's metadata and file set
//	DELETE /v1/snapshots/:id - Delete a stored snapshot
//
//	Catalog and symbols:
//	POST /v1/catalog/reload - Activate a fresh rulepack
//	GET  /v1/symbols/search - Ranked symbol lookup
//
// Example:
//
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	router := gin.New()
//	v1 := router.Group("/v1")
//	server.RegisterRoutes(v1, server.NewHandlers(srv))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	analysis := rg.Group("/analysis")
	{
		analysis.POST("/run", handlers.HandleRunAnalysis)
		analysis.GET("/progress", handlers.HandleProgress)
	}

	taint := rg.Group("/taint")
	{
		taint.POST("/scan", handlers.HandleTaintScan)
	}

	queries := rg.Group("/query")
	{
		queries.POST("/neighborhood", handlers.HandleNeighborhood)
		queries.POST("/callgraph", handlers.HandleCallGraph)
		queries.POST("/dependencies", handlers.HandleDependencies)
	}

	snapshots := rg.Group("/snapshots")
	{
		snapshots.GET("", handlers.HandleListSnapshots)

		// Must be registered before the :id wildcard.
		snapshots.GET("/diff", handlers.HandleDiffSnapshots)

		snapshots.GET("/:id", handlers.HandleGetSnapshot)
		snapshots.DELETE("/:id", handlers.HandleDeleteSnapshot)
	}

	rg.POST("/catalog/reload", handlers.HandleReloadCatalog)
	rg.GET("/symbols/search", handlers.HandleSearchSymbols)
}
