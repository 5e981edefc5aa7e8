// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".callscope", "callscope.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, DefaultServiceURL, cfg.Service.URL)
	assert.Equal(t, util.DefaultPollInterval, cfg.Timeouts.PollInterval)
	assert.Equal(t, DefaultMinHeight, cfg.Graph.MinHeight)

	// Second load reads the file it wrote.
	again, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, cfg.Service, again.Service)
	assert.Equal(t, cfg.Graph, again.Graph)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, `
service:
  url: http://analyzer:8080
timeouts:
  poll_interval: 250ms
graph:
  layout:
    repulsion: 500
`)

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://analyzer:8080", cfg.Service.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts.PollInterval)
	assert.Equal(t, util.DefaultHTTPTimeout, cfg.Timeouts.HTTP)
	assert.Equal(t, 500.0, cfg.Graph.Layout.Repulsion)
	assert.Equal(t, 95.0, cfg.Graph.Layout.SpringLength)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_TimeoutsRaisedToMinimum(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "timeouts:\n  poll_interval: 1ms\n  layout: 10ms\n")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, util.MinPollInterval, cfg.Timeouts.PollInterval)
	assert.Equal(t, util.MinLayoutTimeout, cfg.Timeouts.Layout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "service:\n  url: http://from-file:1\n")

	t.Setenv(EnvServiceURL, "https://from-env:2")
	t.Setenv(EnvExportDest, "s3://bucket/prefix")
	t.Setenv(EnvLogLevel, "debug")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-env:2", cfg.Service.URL)
	assert.Equal(t, "s3://bucket/prefix", cfg.Export.Destination)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, filepath.Join(dir, ".env"), "CALLSCOPE_S3_ACCESS_KEY=from-dotenv\n")
	t.Setenv(EnvS3AccessKey, "")
	os.Unsetenv(EnvS3AccessKey)

	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "{}\n")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Export.Credentials.S3.AccessKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "service: [unclosed\n")
	_, _, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.Service.URL = "analyzer:5000" }},
		{"ftp url", func(c *Config) { c.Service.URL = "ftp://host" }},
		{"unknown model", func(c *Config) { c.Service.Model = "acme/llm" }},
		{"zero min height", func(c *Config) { c.Graph.MinHeight = 0 }},
		{"bad damping", func(c *Config) { c.Graph.Layout.Damping = 2 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "c.yaml")

	cfg := DefaultConfig()
	cfg.Service.Model = "openai/gpt-4o-mini"
	require.NoError(t, Save(path, &cfg))

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", loaded.Service.Model)
}
