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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/job"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/tui"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// runAnalyze submits a project and follows the job in the viewer or,
// headless, on the console.
func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var path string
	if len(args) == 1 {
		path = args[0]
	}

	plain := headless()
	if plain && strings.TrimSpace(path) == "" {
		return &util.ValidationError{Field: "path", Reason: "a project path is required without the viewer"}
	}

	rt, err := newRuntime(ctx, !plain)
	if err != nil {
		return err
	}
	defer rt.Close()

	session := job.NewSession()
	ctrl := job.NewController(rt.newClient(), session, job.Config{
		PollInterval: cfg.Timeouts.PollInterval,
		Logger:       rt.logger.With("session_id", session.ID),
		Metrics:      rt.metrics,
	})
	defer ctrl.Close()

	if plain {
		return analyzeHeadless(ctx, cmd, rt, ctrl, path)
	}

	exporter, err := rt.newExporter(ctx, session.Store, exportDest)
	if err != nil {
		return err
	}
	app := tui.NewApp(tui.AppConfig{
		Controller:  ctrl,
		Exporter:    exporter,
		Engine:      layoutEngine(),
		Graph:       graphConfig(),
		InitialPath: path,
		AutoSubmit:  path != "",
		Logger:      rt.logger,
		Metrics:     rt.metrics,
	})
	return runViewer(ctx, app)
}

// analyzeHeadless runs one job to completion with a console spinner,
// prints the summary and exports when --export was given.
func analyzeHeadless(ctx context.Context, cmd *cobra.Command, rt *runtime, ctrl *job.Controller, path string) error {
	start := time.Now()
	spin := ux.NewSpinner(fmt.Sprintf("Submitting %s", path))
	spin.Start()

	j, err := ctrl.Submit(ctx, path)
	if err != nil {
		spin.StopWithError("Submission failed")
		return err
	}
	rt.logger.Info("analysis submitted", "job_id", j.ID, "path", path)

	ev, err := ctrl.Wait(ctx, func(ev job.Event) {
		if ev.Kind == job.EventProgress {
			spin.UpdateMessage(fmt.Sprintf("%s %s", ux.ProgressBar(ev.Job.Progress, 20), ev.Job.Message))
		}
	})
	if err != nil {
		spin.StopWithError("Analysis failed")
		return err
	}
	spin.StopWithSuccess(fmt.Sprintf("Analysis of %s complete in %s", path, elapsed(start)))

	if err := printSummary(cmd.OutOrStdout(), "Results", ev.Snapshot); err != nil {
		return err
	}

	if !cmd.Flags().Changed("export") {
		return nil
	}
	exporter, err := rt.newExporter(ctx, ctrl.Session().Store, exportDest)
	if err != nil {
		return err
	}
	res, err := exporter.Export(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, loc := range res.Locations {
		ux.Success(fmt.Sprintf("Exported %s", loc))
	}
	return nil
}
