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
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/catalog"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/config"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/taint"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const serverTestPack = `
manifest:
  name: server-test-pack
  version: v1.0.0
  schema: "1.0"
sources:
  - language: python
    name: a.get_input
sinks:
  - language: python
    name: execute
    class: sql
sanitizers:
  - language: python
    name: sanitize
    class: sql
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testBundle(t *testing.T) *catalog.Bundle {
	t.Helper()
	b, err := catalog.Parse([]byte(serverTestPack))
	if err != nil {
		t.Fatalf("parse rulepack: %v", err)
	}
	return b
}

// setupTestServer creates a Server over an in-memory store with the
// test rulepack and rate limiting disabled.
func setupTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *gin.Engine) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.RatePerSecond = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg,
		WithDB(testDB(t)),
		WithBundle(testBundle(t)),
		WithLogger(testLogger()),
		WithVersion("test"),
	)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	return srv, srv.Router()
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return root
}

// crossFileProject is the canonical two-file flow: a tainted read in
// a.py reaches a sql sink in b.py through an import.
func crossFileProject(t *testing.T) string {
	t.Helper()
	return writeProject(t, map[string]string{
		"a.py": "def get_input():\n    return input()\n",
		"b.py": "from a import get_input\n\nexecute(get_input())\n",
	})
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// runAnalysis drives one analysis pass and returns its summary.
func runAnalysis(t *testing.T, router *gin.Engine, req AnalysisRunRequest) AnalysisRunResponse {
	t.Helper()
	w := doJSON(t, router, "POST", "/v1/analysis/run", req)
	if w.Code != http.StatusOK {
		t.Fatalf("analysis run status = %d: %s", w.Code, w.Body.String())
	}
	var resp AnalysisRunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp
}

func TestHandleRunAnalysis_Success(t *testing.T) {
	_, router := setupTestServer(t, nil)
	root := crossFileProject(t)

	resp := runAnalysis(t, router, AnalysisRunRequest{Root: root})

	if resp.SnapshotID == "" {
		t.Error("SnapshotID is empty")
	}
	if resp.Graph.Files != 2 {
		t.Errorf("Graph.Files = %d, want 2", resp.Graph.Files)
	}
	if resp.Graph.Nodes == 0 || resp.Graph.Edges == 0 {
		t.Errorf("empty graph: %+v", resp.Graph)
	}
	if resp.Ingest.Parsed != 2 {
		t.Errorf("Ingest.Parsed = %d, want 2", resp.Ingest.Parsed)
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", resp.Warnings)
	}
	if resp.Truncated {
		t.Error("Truncated = true on an unbounded run")
	}
}

func TestHandleRunAnalysis_BrokenFileWarnsOnce(t *testing.T) {
	_, router := setupTestServer(t, nil)
	root := writeProject(t, map[string]string{
		"a.py":      "def get_input():\n    return input()\n",
		"b.py":      "from a import get_input\n\nexecute(get_input())\n",
		"broken.py": "def broken(:\n",
	})

	resp := runAnalysis(t, router, AnalysisRunRequest{Root: root})

	if resp.Graph.Files != 2 {
		t.Errorf("Graph.Files = %d, want 2 (broken file excluded)", resp.Graph.Files)
	}
	var broken []string
	for _, w := range resp.Warnings {
		if strings.Contains(w, "broken.py") {
			broken = append(broken, w)
		}
	}
	if len(broken) != 1 {
		t.Errorf("broken.py warnings = %v, want exactly one", broken)
	}
}

func TestHandleRunAnalysis_MissingRoot(t *testing.T) {
	_, router := setupTestServer(t, nil)

	w := doJSON(t, router, "POST", "/v1/analysis/run", AnalysisRunRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != CodeMissingParameter {
		t.Errorf("Code = %q, want %q", resp.Code, CodeMissingParameter)
	}
}

func TestHandleRunAnalysis_ConfiguredRootFallback(t *testing.T) {
	root := crossFileProject(t)
	_, router := setupTestServer(t, func(cfg *config.Config) {
		cfg.Analysis.Root = root
	})

	resp := runAnalysis(t, router, AnalysisRunRequest{})
	if resp.Root != root {
		t.Errorf("Root = %q, want configured %q", resp.Root, root)
	}
}

func TestHandleRunAnalysis_UnsupportedLanguage(t *testing.T) {
	_, router := setupTestServer(t, nil)
	root := crossFileProject(t)

	w := doJSON(t, router, "POST", "/v1/analysis/run", AnalysisRunRequest{
		Root:      root,
		Languages: []string{"cobol"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != CodeUnsupported {
		t.Errorf("Code = %q, want %q", resp.Code, CodeUnsupported)
	}
}

func TestHandleRunAnalysis_MalformedBody(t *testing.T) {
	_, router := setupTestServer(t, nil)

	req, _ := http.NewRequest("POST", "/v1/analysis/run", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestHandleRunAnalysis_Conflict(t *testing.T) {
	srv, router := setupTestServer(t, nil)
	root := crossFileProject(t)

	// Hold the run lock as an in-flight analysis would.
	srv.runMu.Lock()
	defer srv.runMu.Unlock()

	w := doJSON(t, router, "POST", "/v1/analysis/run", AnalysisRunRequest{Root: root})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != CodeAnalysisRunning {
		t.Errorf("Code = %q, want %q", resp.Code, CodeAnalysisRunning)
	}
}

func TestHandleRunAnalysis_InlineScan(t *testing.T) {
	_, router := setupTestServer(t, nil)
	root := crossFileProject(t)

	resp := runAnalysis(t, router, AnalysisRunRequest{Root: root, Scan: true})
	if resp.Taint == nil {
		t.Fatal("Taint is nil with scan requested")
	}
	if len(resp.Taint.Findings) != 1 {
		t.Fatalf("findings = %d, want 1: %+v", len(resp.Taint.Findings), resp.Taint.Findings)
	}
	if resp.Taint.Findings[0].Class != catalog.ClassSQL {
		t.Errorf("Class = %s, want sql", resp.Taint.Findings[0].Class)
	}
}

func TestHandleTaintScan_CurrentSnapshot(t *testing.T) {
	_, router := setupTestServer(t, nil)
	root := crossFileProject(t)
	run := runAnalysis(t, router, AnalysisRunRequest{Root: root})

	w := doJSON(t, router, "POST", "/v1/taint/scan", TaintScanRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res taint.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if res.SnapshotID != run.SnapshotID {
		t.Errorf("SnapshotID = %q, want %q", res.SnapshotID, run.SnapshotID)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("findings = %d, want 1: %+v", len(res.Findings), res.Findings)
	}
	f := res.Findings[0]
	if f.Class != catalog.ClassSQL {
		t.Errorf("Class = %s, want sql", f.Class)
	}
	if f.Confidence <= 0.7 {
		t.Errorf("Confidence = %v, want > 0.7", f.Confidence)
	}
	if len(f.Path) != 2 {
		t.Errorf("path length = %d, want 2", len(f.Path))
	}
	if f.Source.FilePath != "a.py" || f.Sink.FilePath != "b.py" {
		t.Errorf("flow = %s -> %s, want a.py -> b.py", f.Source.FilePath, f.Sink.FilePath)
	}
}

func TestHandleTaintScan_SanitizedFlow(t *testing.T) {
	_, router := setupTestServer(t, nil)
	root := writeProject(t, map[string]string{
		"a.py": "def get_input():\n    return input()\n",
		"b.py": "from a import get_input\n\nexecute(sanitize(get_input()))\n",
	})
	runAnalysis(t, router, AnalysisRunRequest{Root: root})

	w := doJSON(t, router, "POST", "/v1/taint/scan", TaintScanRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res taint.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Errorf("findings = %+v, want none through the sanitizer", res.Findings)
	}
}

func TestHandleTaintScan_NoSnapshot(t *testing.T) {
	_, router := setupTestServer(t, nil)

	w := doJSON(t, router, "POST", "/v1/taint/scan", TaintScanRequest{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != CodeNoSnapshot {
		t.Errorf("Code = %q, want %q", resp.Code, CodeNoSnapshot)
	}
}

func TestHandleTaintScan_UnknownSnapshot(t *testing.T) {
	_, router := setupTestServer(t, nil)
	runAnalysis(t, router, AnalysisRunRequest{Root: crossFileProject(t)})

	w := doJSON(t, router, "POST", "/v1/taint/scan", TaintScanRequest{SnapshotID: "no-such-snapshot"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", w.Code, w.Body.String())
	}
}

func TestHandleTaintScan_UnknownClass(t *testing.T) {
	_, router := setupTestServer(t, nil)
	runAnalysis(t, router, AnalysisRunRequest{Root: crossFileProject(t)})

	w := doJSON(t, router, "POST", "/v1/taint/scan", TaintScanRequest{Classes: []string{"xss"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestHandleTaintScan_StoredSnapshot(t *testing.T) {
	_, router := setupTestServer(t, nil)
	first := runAnalysis(t, router, AnalysisRunRequest{Root: crossFileProject(t)})

	// A second run over a clean project replaces the current snapshot.
	clean := writeProject(t, map[string]string{
		"c.py": "def helper():\n    return 1\n",
	})
	runAnalysis(t, router, AnalysisRunRequest{Root: clean})

	w := doJSON(t, router, "POST", "/v1/taint/scan", TaintScanRequest{SnapshotID: first.SnapshotID})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res taint.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.SnapshotID != first.SnapshotID {
		t.Errorf("SnapshotID = %q, want stored %q", res.SnapshotID, first.SnapshotID)
	}
	if len(res.Findings) != 1 {
		t.Errorf("findings = %d, want 1 from the stored snapshot", len(res.Findings))
	}
}

func TestHandleTaintScan_SarifFormat(t *testing.T) {
	_, router := setupTestServer(t, nil)
	runAnalysis(t, router, AnalysisRunRequest{Root: crossFileProject(t)})

	w := doJSON(t, router, "POST", "/v1/taint/scan?format=sarif", TaintScanRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/sarif+json") {
		t.Errorf("Content-Type = %q, want application/sarif+json", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"2.1.0", "taint/sql", "AleutianSentinel", "b.py"} {
		if !strings.Contains(body, want) {
			t.Errorf("sarif body missing %q", want)
		}
	}
}

func TestHandleHealthz(t *testing.T) {
	_, router := setupTestServer(t, nil)

	w := doJSON(t, router, "GET", "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if resp.SnapshotID != "" {
		t.Errorf("SnapshotID = %q before any run", resp.SnapshotID)
	}

	run := runAnalysis(t, router, AnalysisRunRequest{Root: crossFileProject(t)})
	w = doJSON(t, router, "GET", "/healthz", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SnapshotID != run.SnapshotID {
		t.Errorf("SnapshotID = %q, want %q", resp.SnapshotID, run.SnapshotID)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := setupTestServer(t, nil)
	runAnalysis(t, router, AnalysisRunRequest{Root: crossFileProject(t)})

	w := doJSON(t, router, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sentinel_server_analysis_runs_total") {
		t.Error("metrics output missing analysis run counter")
	}
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	_, router := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.RatePerSecond = 1
		cfg.Server.RateBurst = 1
	})

	first := doJSON(t, router, "GET", "/v1/snapshots", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d: %s", first.Code, first.Body.String())
	}

	second := doJSON(t, router, "GET", "/v1/snapshots", nil)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != CodeRateLimited {
		t.Errorf("Code = %q, want %q", resp.Code, CodeRateLimited)
	}

	// Health stays reachable for probes even when the client is cut off.
	health := doJSON(t, router, "GET", "/healthz", nil)
	if health.Code != http.StatusOK {
		t.Errorf("healthz status = %d under rate limit", health.Code)
	}
}

func TestRequestIDMiddleware_Echoes(t *testing.T) {
	_, router := setupTestServer(t, nil)

	req, _ := http.NewRequest("GET", "/v1/snapshots", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	// Absent header gets a generated ID.
	w = doJSON(t, router, "GET", "/v1/snapshots", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("no generated request ID")
	}
}
