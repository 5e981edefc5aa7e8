// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import "time"

// =============================================================================
// Constants
// =============================================================================

// Minimums prevent a misconfigured value from producing a busy loop or
// an infinite wait.
const (
	// MinHTTPTimeout is the minimum for a single service request.
	MinHTTPTimeout = 1 * time.Second

	// MinPollInterval is the minimum delay between progress polls.
	MinPollInterval = 100 * time.Millisecond

	// MinLayoutTimeout is the minimum stabilization wait.
	MinLayoutTimeout = 500 * time.Millisecond

	// MinShutdownTimeout is the minimum graceful shutdown window.
	MinShutdownTimeout = 1 * time.Second

	// DefaultHTTPTimeout bounds a single service request.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultPollInterval is the fixed progress poll interval.
	DefaultPollInterval = 1 * time.Second

	// DefaultLayoutTimeout is the stabilization deadline for the graph.
	DefaultLayoutTimeout = 5 * time.Second

	// DefaultShutdownTimeout bounds server and telemetry shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

// =============================================================================
// TimeoutConfig
// =============================================================================

// TimeoutConfig groups every duration callscope waits on.
//
// # Thread Safety
//
// TimeoutConfig is a value type; copies are independent.
type TimeoutConfig struct {
	HTTP         time.Duration `yaml:"http"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Layout       time.Duration `yaml:"layout"`
	Shutdown     time.Duration `yaml:"shutdown"`
}

// NewTimeoutConfig returns the default timeouts.
func NewTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		HTTP:         DefaultHTTPTimeout,
		PollInterval: DefaultPollInterval,
		Layout:       DefaultLayoutTimeout,
		Shutdown:     DefaultShutdownTimeout,
	}
}

// Validated returns a copy with zero values replaced by defaults and
// every value raised to at least its minimum.
func (c TimeoutConfig) Validated() TimeoutConfig {
	return TimeoutConfig{
		HTTP:         EnforceMinTimeout(EnforceDefaultTimeout(c.HTTP, DefaultHTTPTimeout), MinHTTPTimeout),
		PollInterval: EnforceMinTimeout(EnforceDefaultTimeout(c.PollInterval, DefaultPollInterval), MinPollInterval),
		Layout:       EnforceMinTimeout(EnforceDefaultTimeout(c.Layout, DefaultLayoutTimeout), MinLayoutTimeout),
		Shutdown:     EnforceMinTimeout(EnforceDefaultTimeout(c.Shutdown, DefaultShutdownTimeout), MinShutdownTimeout),
	}
}

// EnforceMinTimeout returns minimum when requested is non-positive or
// below it.
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}

// EnforceDefaultTimeout returns defaultVal when requested is non-positive.
func EnforceDefaultTimeout(requested, defaultVal time.Duration) time.Duration {
	if requested <= 0 {
		return defaultVal
	}
	return requested
}
