// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package client talks to the remote code-analysis service.
//
// Every method maps failures onto the callscope error taxonomy:
// transport failures and non-2xx statuses become util.NetworkError,
// malformed or incomplete bodies become util.ProtocolError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/telemetry"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
	"github.com/AleutianAI/callscope/pkg/logging"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Client is an HTTP client for the analysis service.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the service at baseURL.
//
// # Example
//
//	c := client.New("http://127.0.0.1:5000", client.WithTimeout(30*time.Second))
//	id, err := c.Analyze(ctx, "/repo")
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: util.DefaultHTTPTimeout},
		logger:     logging.Discard(),
		tracer:     telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = telemetry.DefaultMetrics()
	}
	return c
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// Operations
// =============================================================================

// Analyze submits a project path and returns the job id.
//
// # Outputs
//
//   - string: The job id (job_id, or project_id from older services).
//   - error: NetworkError, or ProtocolError when no id is returned.
func (c *Client) Analyze(ctx context.Context, projectPath string) (string, error) {
	const endpoint = "POST /analyze"

	var resp AnalyzeResponse
	if err := c.doJSON(ctx, endpoint, http.MethodPost, "/analyze", AnalyzeRequest{ProjectPath: projectPath}, &resp); err != nil {
		return "", err
	}
	id := resp.ID()
	if id == "" {
		return "", &util.ProtocolError{Endpoint: endpoint, Field: "job_id"}
	}
	return id, nil
}

// Progress fetches the status of a job.
func (c *Client) Progress(ctx context.Context, jobID string) (Progress, error) {
	endpoint := "GET /progress/" + jobID

	var p Progress
	if err := c.doJSON(ctx, endpoint, http.MethodGet, "/progress/"+url.PathEscape(jobID), nil, &p); err != nil {
		return Progress{}, err
	}
	if field, err := validateWire(p); err != nil {
		return Progress{}, &util.ProtocolError{Endpoint: endpoint, Field: field, Wrapped: err}
	}
	return p, nil
}

// Results fetches the result set of a completed job.
//
// # Outputs
//
//   - *results.Results: The decoded view.
//   - []byte: The exact response body.
//   - error: NetworkError or ProtocolError.
func (c *Client) Results(ctx context.Context, jobID string) (*results.Results, []byte, error) {
	endpoint := "GET /results/" + jobID

	raw, err := c.do(ctx, endpoint, http.MethodGet, "/results/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, nil, err
	}
	res, err := results.Decode(raw)
	if err != nil {
		return nil, nil, &util.ProtocolError{Endpoint: endpoint, Field: "body", Wrapped: err}
	}
	if field, err := validateWire(res); err != nil {
		return nil, nil, &util.ProtocolError{Endpoint: endpoint, Field: field, Wrapped: err}
	}
	return res, raw, nil
}

// Config fetches the service model configuration.
func (c *Client) Config(ctx context.Context) (ServiceConfig, error) {
	const endpoint = "GET /config"

	var cfg ServiceConfig
	if err := c.doJSON(ctx, endpoint, http.MethodGet, "/config", nil, &cfg); err != nil {
		return ServiceConfig{}, err
	}
	if field, err := validateWire(cfg); err != nil {
		return ServiceConfig{}, &util.ProtocolError{Endpoint: endpoint, Field: field, Wrapped: err}
	}
	return cfg, nil
}

// SetModel switches the service to another description model.
//
// Unknown models are rejected locally with ErrUnknownModel.
func (c *Client) SetModel(ctx context.Context, m Model) error {
	const endpoint = "POST /config/model"

	req := SetModelRequest{Model: string(m)}
	if _, err := validateWire(req); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownModel, m)
	}

	var resp SetModelResponse
	if err := c.doJSON(ctx, endpoint, http.MethodPost, "/config/model", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &util.ProtocolError{Endpoint: endpoint, Field: "success", Wrapped: errors.New(resp.Error)}
	}
	return nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, body, out any) error {
	raw, err := c.do(ctx, endpoint, method, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &util.ProtocolError{Endpoint: endpoint, Field: "body", Wrapped: err}
	}
	return nil
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, endpoint, method, path string, body any) ([]byte, error) {
	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "endpoint", endpoint)

	ctx, span := c.tracer.Start(ctx, endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("callscope.request_id", requestID))

	start := time.Now()
	raw, status, err := c.roundTrip(ctx, method, path, requestID, body)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "network_error"
		err = &util.NetworkError{Endpoint: endpoint, Wrapped: err}
	} else if status < 200 || status > 299 {
		outcome = "http_error"
		err = &util.NetworkError{Endpoint: endpoint, StatusCode: status, Body: errorMessage(raw)}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	attrs := metric.WithAttributes(attribute.String("route", route(path)), attribute.String("outcome", outcome))
	c.metrics.ServiceRequestsTotal.Add(ctx, 1, attrs)
	c.metrics.ServiceRequestDuration.Record(ctx, elapsed.Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logger.Warn("service request failed", "status", status, "duration", elapsed, "error", err)
		return nil, err
	}
	logger.Debug("service request", "status", status, "duration", elapsed)
	return raw, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, requestID string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	telemetry.InjectContext(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// route reduces "/progress/J1" to "/progress" to keep metric
// cardinality bounded.
func route(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	first, _, _ := strings.Cut(trimmed, "/")
	return "/" + first
}

// errorMessage extracts {"error": "..."} or a truncated body.
func errorMessage(raw []byte) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
