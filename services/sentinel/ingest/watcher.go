// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/ast"
)

// DefaultDebounce is the quiet period after the last relevant filesystem
// event before a rebuild fires. Editors save in bursts; one trigger per
// burst is the point of the debounce.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Debounce is the quiet period before onChange fires.
	Debounce time.Duration

	// Logger receives watcher events. Defaults to slog.Default.
	Logger *slog.Logger
}

// WatchOption mutates WatchOptions.
type WatchOption func(*WatchOptions)

// WithDebounce overrides the rebuild quiet period.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *WatchOptions) {
		if d > 0 {
			o.Debounce = d
		}
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(o *WatchOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Watcher triggers a callback after source files under a root change.
//
// Description:
//
//	Watches every non-pruned directory under root. Events on files no
//	parser claims are ignored; relevant events reset a debounce timer and
//	the callback fires once per quiet burst. Directories created while
//	watching are added to the watch set. The callback runs on the watch
//	goroutine, so it should hand off heavy work.
//
// Thread Safety: Start may be called once; Close is safe after Start and
// unblocks the watch loop.
type Watcher struct {
	root     string
	reg      *ast.Registry
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewWatcher builds a Watcher over root.
//
// Inputs:
//
//	root - Directory to watch recursively.
//	reg - Parsers whose extensions count as relevant changes.
//	onChange - Fired after each debounced burst of relevant events.
//	opts - Optional debounce and logger overrides.
func NewWatcher(root string, reg *ast.Registry, onChange func(), opts ...WatchOption) (*Watcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("ingest: nil registry")
	}
	if onChange == nil {
		return nil, fmt.Errorf("ingest: nil change callback")
	}

	options := WatchOptions{
		Debounce: DefaultDebounce,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ingest: create watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		reg:      reg,
		debounce: options.Debounce,
		onChange: onChange,
		logger:   options.Logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start launches the watch loop. Returns an error when called twice.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("ingest: watcher already started")
	}
	w.started = true
	go w.loop(ctx)
	return nil
}

// Close stops the underlying watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	return err
}

// addTree registers root and every non-pruned directory below it.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skippableDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return fmt.Errorf("ingest: watch %s: %w", root, err)
	}
	return nil
}

// loop owns the debounce timer. All timer operations happen here, so the
// stop/drain/reset sequence stays race-free.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev, timer)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			rebuildTriggers.Inc()
			w.logger.Debug("watched files changed, triggering rebuild",
				slog.String("root", w.root))
			w.onChange()
		}
	}
}

// handleEvent classifies one filesystem event and manages the debounce.
func (w *Watcher) handleEvent(ev fsnotify.Event, timer *time.Timer) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !skippableDir(filepath.Base(ev.Name)) {
				if err := w.fsw.Add(ev.Name); err != nil {
					w.logger.Warn("failed to watch new directory",
						slog.String("path", ev.Name),
						slog.String("error", err.Error()))
				}
			}
			return
		}
	}

	if !supportedPath(w.reg, ev.Name) {
		return
	}
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(w.debounce)
}
