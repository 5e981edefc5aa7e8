// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/export"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/tui"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/watch"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// runView opens an exported artifact without a service.
func runView(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	res, raw, err := export.ReadArtifact(path)
	if err != nil {
		return err
	}
	store := results.NewStore()
	snap := store.Replace(filepath.Base(path), res, raw)

	plain := headless()
	rt, err := newRuntime(ctx, !plain)
	if err != nil {
		return err
	}
	defer rt.Close()

	var updates <-chan *results.Snapshot
	if watchArtifact {
		w, err := watch.New(path, store, &watch.Options{Logger: rt.logger})
		if err != nil {
			return err
		}
		defer w.Close()
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go w.Run(watchCtx)
		updates = w.Updates()
	}

	if plain {
		if err := printSummary(cmd.OutOrStdout(), filepath.Base(path), snap); err != nil {
			return err
		}
		if updates == nil {
			return nil
		}
		ux.Info("Watching " + path + " for changes. Press Ctrl+C to stop.")
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap := <-updates:
				if err := printSummary(cmd.OutOrStdout(), filepath.Base(path)+" (reloaded)", snap); err != nil {
					return err
				}
			}
		}
	}

	exporter, err := rt.newExporter(ctx, store, "")
	if err != nil {
		return err
	}
	app := tui.NewApp(tui.AppConfig{
		Store:    store,
		Exporter: exporter,
		Engine:   layoutEngine(),
		Graph:    graphConfig(),
		Updates:  updates,
		Logger:   rt.logger,
		Metrics:  rt.metrics,
	})
	return runViewer(ctx, app)
}
