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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/replay"
	"github.com/AleutianAI/callscope/pkg/logging"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// runReplay serves an artifact over the service protocol until
// interrupted.
func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw, err := os.ReadFile(logging.ExpandPath(args[0]))
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	var model client.Model
	if cfg.Service.Model != "" {
		if model, err = client.ParseModel(cfg.Service.Model); err != nil {
			return err
		}
	}

	rt, err := newRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := replay.New(raw, replay.Config{
		Model:           model,
		ShutdownTimeout: cfg.Timeouts.Shutdown,
		Logger:          rt.logger,
	})
	if err != nil {
		return err
	}

	addr := cfg.Replay.Addr
	if replayAddr != "" {
		addr = replayAddr
	}
	ux.Info(fmt.Sprintf("Replaying %s on http://%s (Ctrl+C to stop)", args[0], addr))
	return srv.ListenAndServe(ctx, addr)
}
