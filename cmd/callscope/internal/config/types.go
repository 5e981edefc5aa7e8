// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads ~/.callscope/callscope.yaml.
package config

import (
	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/export"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/graph"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/telemetry"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
)

// Config is the full callscope configuration.
type Config struct {
	Service   ServiceConfig      `yaml:"service"`
	Timeouts  util.TimeoutConfig `yaml:"timeouts"`
	Graph     GraphConfig        `yaml:"graph"`
	Export    ExportConfig       `yaml:"export"`
	Logging   LoggingConfig      `yaml:"logging"`
	Telemetry telemetry.Config   `yaml:"telemetry"`
	Replay    ReplayConfig       `yaml:"replay"`
}

// ServiceConfig locates the analysis service.
type ServiceConfig struct {
	// URL is the service base address.
	URL string `yaml:"url"`

	// Model is the description model selected by `callscope model`.
	Model string `yaml:"model"`
}

// GraphConfig tunes the graph pane.
type GraphConfig struct {
	// MinHeight is forced when the pane measures zero rows.
	MinHeight int `yaml:"min_height"`

	// Labels draws node labels on the canvas.
	Labels bool `yaml:"labels"`

	Layout graph.LayoutConfig `yaml:"layout"`
}

// ExportConfig configures where exports go.
type ExportConfig struct {
	// Destination is a directory, gs://bucket/prefix or s3://bucket/prefix.
	Destination string `yaml:"destination"`

	Credentials export.Credentials `yaml:"credentials"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// ReplayConfig configures `callscope replay`.
type ReplayConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults.
const (
	DefaultServiceURL = "http://127.0.0.1:5000"
	DefaultMinHeight  = 20
	DefaultLogDir     = "~/.callscope/logs"
	DefaultReplayAddr = "127.0.0.1:5000"
)

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			URL:   DefaultServiceURL,
			Model: string(client.DefaultModel),
		},
		Timeouts: util.NewTimeoutConfig(),
		Graph: GraphConfig{
			MinHeight: DefaultMinHeight,
			Labels:    true,
			Layout:    graph.DefaultLayoutConfig(),
		},
		Export: ExportConfig{
			Destination: ".",
			Credentials: export.Credentials{
				S3: export.S3Config{Region: "us-east-1", UseSSL: true},
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   DefaultLogDir,
		},
		Telemetry: telemetry.DefaultConfig(),
		Replay:    ReplayConfig{Addr: DefaultReplayAddr},
	}
}
