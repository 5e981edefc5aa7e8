// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reloads an exported artifact into a results store when
// the file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/export"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/pkg/logging"
)

// DefaultDebounce coalesces the burst of events an editor or an atomic
// rename produces for one save.
const DefaultDebounce = 100 * time.Millisecond

// Options configures an ArtifactWatcher.
type Options struct {
	Debounce time.Duration
	Logger   *logging.Logger
}

// ArtifactWatcher replaces a store wholesale whenever its artifact file
// is rewritten.
//
// # Description
//
// The parent directory is watched rather than the file, so saves that
// replace the file by rename are still seen. Events for other files in
// the directory are ignored. A rewrite that does not decode is logged
// and the store keeps its previous snapshot.
//
// # Thread Safety
//
// Run must be called once. Close is safe to call multiple times.
type ArtifactWatcher struct {
	path     string
	store    *results.Store
	logger   *logging.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	updates   chan *results.Snapshot
	closeOnce sync.Once
}

// New starts watching the directory containing path.
//
// # Inputs
//
//   - path: The artifact file. It need not exist yet.
//   - store: Receives each successfully decoded rewrite.
//   - opts: Debounce and logger. Nil takes defaults.
//
// # Outputs
//
//   - *ArtifactWatcher: Ready to Run.
//   - error: Non-nil if the directory cannot be watched.
func New(path string, store *results.Store, opts *Options) (*ArtifactWatcher, error) {
	if opts == nil {
		opts = &Options{}
	}
	abs, err := filepath.Abs(logging.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &ArtifactWatcher{
		path:     abs,
		store:    store,
		logger:   logger.With("component", "watch", "artifact", abs),
		debounce: debounce,
		watcher:  fw,
		updates:  make(chan *results.Snapshot, 1),
	}, nil
}

// Updates delivers each snapshot the watcher stores.
func (w *ArtifactWatcher) Updates() <-chan *results.Snapshot {
	return w.updates
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *ArtifactWatcher) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Debug("watching artifact")
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact watcher error", "error", err)

		case <-timerC:
			timerC = nil
			snap, err := w.reload()
			if err != nil {
				w.logger.Warn("artifact changed but could not be loaded, keeping previous results", "error", err)
				continue
			}
			select {
			case w.updates <- snap:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *ArtifactWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func (w *ArtifactWatcher) reload() (*results.Snapshot, error) {
	res, raw, err := export.ReadArtifact(w.path)
	if err != nil {
		return nil, err
	}
	snap := w.store.Replace(filepath.Base(w.path), res, raw)
	w.logger.Info("artifact reloaded", "generation", snap.Generation, "nodes", len(res.Graph.Nodes))
	return snap, nil
}

// Close stops watching.
func (w *ArtifactWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
