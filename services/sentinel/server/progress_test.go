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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestProgressHub_PublishSubscribe(t *testing.T) {
	hub := newProgressHub()
	events, cancel := hub.subscribe()
	defer cancel()

	hub.publish(ProgressEvent{Phase: "collecting", FilesTotal: 3})

	select {
	case ev := <-events:
		if ev.Phase != "collecting" || ev.FilesTotal != 3 {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestProgressHub_DropsWhenBehind(t *testing.T) {
	hub := newProgressHub()
	events, cancel := hub.subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+16; i++ {
		hub.publish(ProgressEvent{Phase: "connecting", FilesProcessed: i})
	}
	if got := len(events); got != subscriberBuffer {
		t.Errorf("queued = %d, want full buffer %d", got, subscriberBuffer)
	}

	// The terminal event evicts the oldest queued event when full.
	hub.publishTerminal(ProgressEvent{Phase: phaseComplete, SnapshotID: "snap-1"})

	var last ProgressEvent
	for len(events) > 0 {
		last = <-events
	}
	if last.Phase != phaseComplete || last.SnapshotID != "snap-1" {
		t.Errorf("last event = %+v, want terminal complete", last)
	}
}

func TestProgressHub_CancelIdempotent(t *testing.T) {
	hub := newProgressHub()
	_, cancel := hub.subscribe()

	cancel()
	cancel()

	if got := hub.subscriberCount(); got != 0 {
		t.Errorf("subscriberCount = %d, want 0", got)
	}
	// Publishing with no subscribers must not block or panic.
	hub.publish(ProgressEvent{Phase: "stitching"})
	hub.publishTerminal(ProgressEvent{Phase: phaseFailed})
}

func TestHandleProgress_StreamsBuildEvents(t *testing.T) {
	srv, router := setupTestServer(t, nil)
	root := crossFileProject(t)

	ts := httptest.NewServer(router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/analysis/progress"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}

	// Wait for the handler to register its subscription before running.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.subscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	run := runAnalysis(t, router, AnalysisRunRequest{Root: root})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sawBuildPhase := false
	for {
		var ev ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("never saw the terminal event: %v", err)
		}
		switch ev.Phase {
		case "collecting", "connecting", "stitching":
			sawBuildPhase = true
		case phaseComplete:
			if ev.SnapshotID != run.SnapshotID {
				t.Errorf("SnapshotID = %q, want %q", ev.SnapshotID, run.SnapshotID)
			}
			if ev.NodesCreated == 0 {
				t.Error("terminal event has no node count")
			}
			if !sawBuildPhase {
				t.Error("no build phase event before the terminal one")
			}
			return
		case phaseFailed:
			t.Fatalf("unexpected failure event: %+v", ev)
		}
	}
}

func TestHandleProgress_NotAWebsocket(t *testing.T) {
	_, router := setupTestServer(t, nil)

	w := doJSON(t, router, "GET", "/v1/analysis/progress", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("plain GET status = %d, want 400", w.Code)
	}
}
