// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName scopes every tracer and meter created here.
const InstrumentationName = "github.com/AleutianAI/callscope"

// Tracer returns the callscope tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Metrics holds the callscope instruments.
//
// # Thread Safety
//
// OpenTelemetry instruments are safe for concurrent use.
type Metrics struct {
	// ServiceRequestsTotal counts requests to the analysis service by
	// endpoint and outcome.
	ServiceRequestsTotal metric.Int64Counter

	// ServiceRequestDuration records request latency in seconds.
	ServiceRequestDuration metric.Float64Histogram

	// PollsTotal counts progress polls by resulting status.
	PollsTotal metric.Int64Counter

	// JobsTotal counts finished jobs by outcome.
	JobsTotal metric.Int64Counter

	// LayoutsTotal counts layout runs by outcome (stabilized, timeout,
	// error).
	LayoutsTotal metric.Int64Counter

	// ExportsTotal counts exports by sink scheme.
	ExportsTotal metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ServiceRequestsTotal, err = meter.Int64Counter(
		"callscope_service_requests_total",
		metric.WithDescription("Total requests to the analysis service"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create service_requests_total: %w", err)
	}

	m.ServiceRequestDuration, err = meter.Float64Histogram(
		"callscope_service_request_duration_seconds",
		metric.WithDescription("Analysis service request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create service_request_duration: %w", err)
	}

	m.PollsTotal, err = meter.Int64Counter(
		"callscope_polls_total",
		metric.WithDescription("Total progress polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create polls_total: %w", err)
	}

	m.JobsTotal, err = meter.Int64Counter(
		"callscope_jobs_total",
		metric.WithDescription("Total finished analysis jobs"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create jobs_total: %w", err)
	}

	m.LayoutsTotal, err = meter.Int64Counter(
		"callscope_layouts_total",
		metric.WithDescription("Total graph layout runs"),
		metric.WithUnit("{layout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create layouts_total: %w", err)
	}

	m.ExportsTotal, err = meter.Int64Counter(
		"callscope_exports_total",
		metric.WithDescription("Total result exports"),
		metric.WithUnit("{export}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create exports_total: %w", err)
	}

	return m, nil
}

// DefaultMetrics creates instruments on the global meter provider.
//
// Before Init installs a provider the global one is a no-op, so callers
// can always record without nil checks.
func DefaultMetrics() *Metrics {
	m, err := NewMetrics(otel.Meter(InstrumentationName))
	if err != nil {
		// The no-op and SDK meters only fail on invalid names.
		panic(err)
	}
	return m
}
