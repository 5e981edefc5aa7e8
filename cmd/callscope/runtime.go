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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/export"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/graph"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/telemetry"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/tui"
	"github.com/AleutianAI/callscope/pkg/logging"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// runtime holds the per-command logger and telemetry.
type runtime struct {
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	shutdown func(context.Context) error
	closers  []io.Closer
}

// newRuntime builds the logger and installs telemetry.
//
// # Inputs
//
//   - ctx: Used for exporter construction.
//   - fullscreen: True when the viewer owns the terminal. Console
//     logging is then disabled and stdout exporters write to a file in
//     the log directory.
func newRuntime(ctx context.Context, fullscreen bool) (*runtime, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "callscope",
		JSON:    cfg.Logging.JSON,
		Quiet:   fullscreen,
		Writer:  rootCmd.ErrOrStderr(),
	})
	rt := &runtime{logger: logger, closers: []io.Closer{logger}}

	tcfg := cfg.Telemetry
	if fullscreen {
		tcfg.Output = io.Discard
		if cfg.Logging.Dir != "" {
			path := filepath.Join(logging.ExpandPath(cfg.Logging.Dir), "telemetry.jsonl")
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				tcfg.Output = f
				rt.closers = append(rt.closers, f)
			}
		}
	}
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.shutdown = shutdown
	rt.metrics = telemetry.DefaultMetrics()
	return rt, nil
}

// track closes c with the runtime.
func (rt *runtime) track(c any) {
	if closer, ok := c.(io.Closer); ok {
		rt.closers = append(rt.closers, closer)
	}
}

// Close flushes telemetry and releases files in reverse order.
func (rt *runtime) Close() {
	if rt.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
		if err := rt.shutdown(ctx); err != nil {
			rt.logger.Warn("telemetry shutdown failed", "error", err)
		}
		cancel()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i].Close()
	}
}

// newClient builds the service client from the loaded config.
func (rt *runtime) newClient() *client.Client {
	return client.New(cfg.Service.URL,
		client.WithTimeout(cfg.Timeouts.HTTP),
		client.WithLogger(rt.logger),
		client.WithMetrics(rt.metrics),
	)
}

// newExporter builds an export service for dest. An empty dest means
// the configured destination.
func (rt *runtime) newExporter(ctx context.Context, store *results.Store, dest string) (*export.Service, error) {
	if dest == "" || dest == exportToConfigured {
		dest = cfg.Export.Destination
	}
	sink, err := export.ParseDestination(ctx, dest, cfg.Export.Credentials)
	if err != nil {
		return nil, err
	}
	rt.track(sink)
	return export.NewService(store, rt.logger, rt.metrics, sink), nil
}

func graphConfig() tui.GraphConfig {
	return tui.GraphConfig{
		MinHeight: cfg.Graph.MinHeight,
		Labels:    cfg.Graph.Labels,
		Timeout:   cfg.Timeouts.Layout,
	}
}

func layoutEngine() graph.Engine {
	return graph.NewForceEngine(cfg.Graph.Layout)
}

// headless reports whether output should be printed rather than shown
// in the viewer.
func headless() bool {
	return noTUI || !ux.IsInteractive()
}

// runViewer runs app full screen until it quits or ctx is cancelled.
func runViewer(ctx context.Context, app tui.App) error {
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if m, ok := final.(tui.App); ok {
		m.Close()
	} else {
		app.Close()
	}
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// printSummary prints the statistics of snap. Machine mode prints the
// stats object as JSON.
func printSummary(out io.Writer, title string, snap *results.Snapshot) error {
	stats := snap.Results.Stats
	if ux.GetMode() == ux.ModeMachine {
		return json.NewEncoder(out).Encode(stats)
	}

	lines := []string{
		fmt.Sprintf("Files:        %d", stats.TotalFiles),
		fmt.Sprintf("Functions:    %d", stats.TotalFunctions),
		fmt.Sprintf("Classes:      %d", stats.TotalClasses),
		fmt.Sprintf("Errors:       %d", stats.Errors),
		fmt.Sprintf("Warnings:     %d", stats.Warnings),
		fmt.Sprintf("Dead code:    %d", stats.DeadCode),
		fmt.Sprintf("Placeholders: %d", stats.Placeholders),
		fmt.Sprintf("Graph:        %d nodes, %d edges", len(snap.Results.Graph.Nodes), len(snap.Results.Graph.Edges)),
	}
	ux.Box(title, strings.Join(lines, "\n"))
	return nil
}

func elapsed(start time.Time) string {
	return time.Since(start).Round(100 * time.Millisecond).String()
}
