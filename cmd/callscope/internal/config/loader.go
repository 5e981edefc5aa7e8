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
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/pkg/logging"
)

// Environment overrides, applied after the file.
const (
	EnvServiceURL  = "CALLSCOPE_SERVICE_URL"
	EnvExportDest  = "CALLSCOPE_EXPORT_DEST"
	EnvLogLevel    = "CALLSCOPE_LOG_LEVEL"
	EnvModel       = "CALLSCOPE_MODEL"
	EnvS3AccessKey = "CALLSCOPE_S3_ACCESS_KEY"
	EnvS3SecretKey = "CALLSCOPE_S3_SECRET_KEY"
	EnvS3Endpoint  = "CALLSCOPE_S3_ENDPOINT"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultPath returns ~/.callscope/callscope.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".callscope", "callscope.yaml"), nil
}

// Load reads the configuration.
//
// # Description
//
// An empty path means DefaultPath; that file is created with defaults
// on first run. An explicit path must exist. Fields missing from the
// file keep their defaults. A .env file in the working directory is
// loaded next without overriding variables already set, then the
// CALLSCOPE_* variables override the file.
//
// # Outputs
//
//   - *Config: The loaded, validated configuration.
//   - string: The file it came from.
//   - error: Read, parse or validation failure.
func Load(path string) (*Config, string, error) {
	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return nil, "", err
		}
		path = def
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := createDefault(path); err != nil {
				return nil, "", err
			}
		}
	}
	path = logging.ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, "", err
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	cfg.Timeouts = cfg.Timeouts.Validated()
	return &cfg, path, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadDotEnv loads path if it exists.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvServiceURL, &cfg.Service.URL)
	set(EnvExportDest, &cfg.Export.Destination)
	set(EnvLogLevel, &cfg.Logging.Level)
	set(EnvModel, &cfg.Service.Model)
	set(EnvS3AccessKey, &cfg.Export.Credentials.S3.AccessKey)
	set(EnvS3SecretKey, &cfg.Export.Credentials.S3.SecretKey)
	set(EnvS3Endpoint, &cfg.Export.Credentials.S3.Endpoint)
}

// Validate checks the fields that have no safe fallback.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: service.url %q must be an http(s) URL", ErrInvalidConfig, c.Service.URL)
	}
	if c.Service.Model != "" {
		if _, err := client.ParseModel(c.Service.Model); err != nil {
			return fmt.Errorf("%w: service.model: %v", ErrInvalidConfig, err)
		}
	}
	if c.Graph.MinHeight <= 0 {
		return fmt.Errorf("%w: graph.min_height must be > 0", ErrInvalidConfig)
	}
	if err := c.Graph.Layout.Validate(); err != nil {
		return fmt.Errorf("%w: graph.layout: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
