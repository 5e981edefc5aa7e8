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
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/config"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// runModel lists or switches the service's description model.
func runModel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	svc := rt.newClient()

	if listModels || (len(args) == 0 && !ux.IsInteractive()) {
		sc, err := svc.Config(ctx)
		if err != nil {
			return err
		}
		printModels(cmd.OutOrStdout(), sc)
		return nil
	}

	var name string
	if len(args) == 1 {
		name = args[0]
	} else {
		sc, err := svc.Config(ctx)
		if err != nil {
			return err
		}
		if name, err = pickModel(ctx, sc); err != nil {
			return err
		}
	}

	m, err := client.ParseModel(name)
	if err != nil {
		return err
	}
	if err := svc.SetModel(ctx, m); err != nil {
		return err
	}

	cfg.Service.Model = string(m)
	if err := config.Save(cfgPath, cfg); err != nil {
		ux.Warning(fmt.Sprintf("Model changed but the config could not be saved: %v", err))
	}
	ux.Success(fmt.Sprintf("Description model set to %s", m))
	return nil
}

func printModels(out io.Writer, sc client.ServiceConfig) {
	if ux.GetMode() == ux.ModeMachine {
		for _, m := range sc.AvailableModels {
			marker := " "
			if m == sc.Model {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, m)
		}
		return
	}

	ux.Title("Description models")
	for _, m := range sc.AvailableModels {
		if m == sc.Model {
			ux.Success(m + " (current)")
		} else {
			ux.Info(m)
		}
	}
	if !sc.APIKeySet {
		ux.Warning("The service has no API key configured; descriptions will be unavailable.")
	}
}

// pickModel shows a select list starting on the current model.
func pickModel(ctx context.Context, sc client.ServiceConfig) (string, error) {
	choice := sc.Model
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Description model").
				Description("Used by the service to describe each function.").
				Options(huh.NewOptions(sc.AvailableModels...)...).
				Value(&choice),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return choice, nil
}
