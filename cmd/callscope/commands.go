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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/config"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// exportToConfigured is the value of a bare --export flag.
const exportToConfigured = "configured"

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	serviceURL string
	outputMode string

	noTUI         bool
	exportDest    string
	pollInterval  time.Duration
	watchArtifact bool
	replayAddr    string
	listModels    bool

	// Set by PersistentPreRunE.
	cfg     *config.Config
	cfgPath string

	rootCmd = &cobra.Command{
		Use:   "callscope",
		Short: "Analyze a project and explore its call graph",
		Long: `callscope submits a project directory to the code-analysis service,
follows the job until it completes and opens the results in an
interactive viewer: call graph, file tree, issues and function details.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [PATH]",
		Short: "Analyze a project directory",
		Long: `Submit PATH to the analysis service and open the viewer.

Without PATH the viewer starts with an empty path field. With --no-tui,
or when the terminal is not interactive, progress is printed instead and
PATH is required.

Examples:
  callscope analyze ./myproject
  callscope analyze ./myproject --no-tui --export
  callscope analyze ./myproject --no-tui --export=s3://artifacts/callscope`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyze, // Defined in cmd_analyze.go
	}

	viewCmd = &cobra.Command{
		Use:   "view ARTIFACT",
		Short: "Open an exported results artifact",
		Long: `Open ARTIFACT in the viewer without contacting the service.

With --watch the viewer reloads the artifact whenever the file is
rewritten.`,
		Args: cobra.ExactArgs(1),
		RunE: runView, // Defined in cmd_view.go
	}

	replayCmd = &cobra.Command{
		Use:   "replay ARTIFACT",
		Short: "Serve an exported artifact over the analysis service protocol",
		Long: `Start a local server that answers /analyze, /progress, /results and
/config with simulated progress and the contents of ARTIFACT. Point
--service at it to run callscope without the real service.`,
		Args: cobra.ExactArgs(1),
		RunE: runReplay, // Defined in cmd_replay.go
	}

	modelCmd = &cobra.Command{
		Use:   "model [NAME]",
		Short: "Show or change the description model",
		Long: `Select the model the service uses for function descriptions.

Without NAME an interactive terminal shows a picker. --list prints the
current and available models.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runModel, // Defined in cmd_model.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default ~/.callscope/callscope.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&serviceURL, "service", "",
		"Analysis service base URL")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "",
		"Output style: rich, plain or machine (default from terminal)")

	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&noTUI, "no-tui", false,
		"Print progress and a summary instead of opening the viewer")
	analyzeCmd.Flags().StringVar(&exportDest, "export", "",
		"Export results when the job completes (directory, gs:// or s3://; bare flag uses the configured destination)")
	analyzeCmd.Flags().Lookup("export").NoOptDefVal = exportToConfigured
	analyzeCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0,
		"Interval between progress requests")

	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().BoolVar(&watchArtifact, "watch", false,
		"Reload the artifact when it changes")
	viewCmd.Flags().BoolVar(&noTUI, "no-tui", false,
		"Print a summary instead of opening the viewer")

	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayAddr, "addr", "",
		"Listen address (default from config)")

	rootCmd.AddCommand(modelCmd)
	modelCmd.Flags().BoolVar(&listModels, "list", false,
		"List the current and available models")
}

// loadConfig loads the config file, applies flag overrides and picks
// the output mode.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if outputMode != "" {
		ux.SetMode(ux.ParseMode(outputMode))
	} else {
		ux.InitMode()
	}
	ux.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())

	c, path, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serviceURL != "" {
		c.Service.URL = serviceURL
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if pollInterval > 0 {
		c.Timeouts.PollInterval = pollInterval
		c.Timeouts = c.Timeouts.Validated()
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg, cfgPath = c, path
	return nil
}
