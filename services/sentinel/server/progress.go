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
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/pdg"
)

// Terminal phases published after the build itself finishes.
const (
	phaseComplete = "complete"
	phaseFailed   = "failed"
)

// ProgressEvent is one build progress update on the websocket stream.
type ProgressEvent struct {
	// Phase is collecting, connecting, stitching, complete or failed.
	Phase string `json:"phase"`

	FilesTotal     int `json:"files_total"`
	FilesProcessed int `json:"files_processed"`
	NodesCreated   int `json:"nodes_created"`
	EdgesCreated   int `json:"edges_created"`

	// SnapshotID is set on the complete event.
	SnapshotID string `json:"snapshot_id,omitempty"`

	// Error is set on the failed event.
	Error string `json:"error,omitempty"`

	AtMilli int64 `json:"at_milli"`
}

// subscriberBuffer is the per-subscriber event queue depth. A subscriber
// that falls further behind loses intermediate events, never the stream.
const subscriberBuffer = 64

// progressHub fans build progress out to websocket subscribers.
//
// Description:
//
//	Publishing never blocks the build: a subscriber whose buffer is full
//	drops the event. Progress is advisory; the terminal complete or
//	failed event matters and gets a buffer slot freed by force.
//
// Thread Safety: safe for concurrent use.
type progressHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ProgressEvent
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[int]chan ProgressEvent)}
}

// subscribe registers a new subscriber and returns its event channel
// plus a cancel function. Cancel is idempotent.
func (h *progressHub) subscribe() (<-chan ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan ProgressEvent, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish delivers an event to every subscriber, dropping it for
// subscribers that are behind.
func (h *progressHub) publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// publishTerminal delivers a terminal event, evicting the oldest queued
// event when a subscriber's buffer is full.
func (h *progressHub) publishTerminal(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// subscriberCount reports the number of connected subscribers.
func (h *progressHub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// buildEvent converts builder progress into a stream event.
func buildEvent(p pdg.BuildProgress) ProgressEvent {
	return ProgressEvent{
		Phase:          p.Phase.String(),
		FilesTotal:     p.FilesTotal,
		FilesProcessed: p.FilesProcessed,
		NodesCreated:   p.NodesCreated,
		EdgesCreated:   p.EdgesCreated,
		AtMilli:        time.Now().UnixMilli(),
	}
}
