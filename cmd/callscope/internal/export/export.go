// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes the results store to artifacts and reads them
// back.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/telemetry"
	"github.com/AleutianAI/callscope/pkg/logging"
)

// ErrNothingToExport is returned when the store holds no results.
var ErrNothingToExport = errors.New("no results to export")

// FilePrefix starts every artifact name.
const FilePrefix = "analysis_results_"

// FileName returns the artifact name for t:
// analysis_results_<unix epoch milliseconds>.json.
func FileName(t time.Time) string {
	return fmt.Sprintf("%s%d.json", FilePrefix, t.UnixMilli())
}

// Result describes a finished export.
type Result struct {
	Name      string
	Bytes     int
	Locations []string
}

// Service exports the results store to one or more sinks.
//
// # Thread Safety
//
// Export is safe for concurrent use; each call reads one snapshot.
type Service struct {
	store   *results.Store
	sinks   []Sink
	logger  *logging.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewService creates an export service over store.
func NewService(store *results.Store, logger *logging.Logger, metrics *telemetry.Metrics, sinks ...Sink) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = telemetry.DefaultMetrics()
	}
	return &Service{
		store:   store,
		sinks:   sinks,
		logger:  logger.With("component", "export"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Export writes the current snapshot to every sink.
//
// # Description
//
// The artifact is the exact payload the service returned, so it
// deep-equals the /results response. All sinks are written
// concurrently; the first failure is returned after every sink has
// finished.
//
// # Outputs
//
//   - Result: The artifact name and one location per sink, in sink
//     order. Locations of failed sinks are empty.
//   - error: ErrNothingToExport for an empty store, or a sink error.
func (s *Service) Export(ctx context.Context) (Result, error) {
	snap := s.store.Snapshot()
	if snap == nil {
		return Result{}, ErrNothingToExport
	}

	data := snap.Raw
	if len(data) == 0 {
		var err error
		if data, err = json.MarshalIndent(snap.Results, "", "  "); err != nil {
			return Result{}, fmt.Errorf("encode results: %w", err)
		}
	}

	res := Result{
		Name:      FileName(s.now()),
		Bytes:     len(data),
		Locations: make([]string, len(s.sinks)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, sink := range s.sinks {
		g.Go(func() error {
			loc, err := sink.Put(gctx, res.Name, data)
			outcome := "ok"
			if err != nil {
				outcome = "failed"
			}
			s.metrics.ExportsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("scheme", sink.Scheme()),
				attribute.String("outcome", outcome),
			))
			if err != nil {
				s.logger.Error("export failed", "scheme", sink.Scheme(), "name", res.Name, "error", err)
				return fmt.Errorf("%s export: %w", sink.Scheme(), err)
			}
			res.Locations[i] = loc
			s.logger.Info("results exported", "location", loc, "job_id", snap.JobID, "bytes", len(data))
			return nil
		})
	}
	return res, g.Wait()
}

// ReadArtifact loads an exported artifact.
//
// # Outputs
//
//   - *results.Results: The decoded results.
//   - []byte: The artifact bytes.
//   - error: Read or decode failure.
func ReadArtifact(path string) (*results.Results, []byte, error) {
	raw, err := os.ReadFile(logging.ExpandPath(path))
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact: %w", err)
	}
	res, err := results.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return res, raw, nil
}
