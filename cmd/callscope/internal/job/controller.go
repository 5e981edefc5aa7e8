// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package job drives one analysis job from submission to results.
//
// The controller runs submit → poll → fetch. Each job gets its own
// cancellable poll loop; submitting again cancels the running loop and
// waits for it to exit before the new one starts, so at most one loop
// is ever live and a superseded loop can never write the results store.
package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/telemetry"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
	"github.com/AleutianAI/callscope/pkg/logging"
	"github.com/AleutianAI/callscope/pkg/validation"
)

// eventBuffer bounds the number of undelivered events.
const eventBuffer = 64

// run is one poll loop bound to one job id.
type run struct {
	seq    uint64
	jobID  string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures a Controller.
type Config struct {
	// PollInterval is the fixed delay between progress polls.
	PollInterval time.Duration

	Logger  *logging.Logger
	Metrics *telemetry.Metrics
}

// Controller owns the analyze → poll → fetch state machine.
//
// # Description
//
// Submit validates the path, cancels and joins any previous poll loop,
// then creates the job and starts a new loop. The loop issues one
// progress request per tick, strictly in sequence, and stops on the
// first terminal status or on any error. On completion it fetches the
// results once and replaces the session store wholesale.
//
// # Thread Safety
//
// Submit, Reset and Close are mutually exclusive. State and Events may
// be used from any goroutine.
type Controller struct {
	svc      Service
	session  *Session
	interval time.Duration
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	events   chan Event

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// submitMu serializes Submit, Reset and Close.
	submitMu sync.Mutex

	// mu guards the fields below.
	mu      sync.Mutex
	current *run
	seq     uint64
	state   State
	job     Job
	lastErr error
}

// NewController creates an idle controller.
//
// # Inputs
//
//   - svc: The analysis service.
//   - session: The session whose store receives results.
//   - cfg: Poll interval, logger and metrics. Zero values take defaults.
func NewController(svc Service, session *Session, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.DefaultMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		svc:        svc,
		session:    session,
		interval:   util.EnforceMinTimeout(util.EnforceDefaultTimeout(cfg.PollInterval, util.DefaultPollInterval), util.MinPollInterval),
		logger:     cfg.Logger.With("component", "job"),
		metrics:    cfg.Metrics,
		events:     make(chan Event, eventBuffer),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Events returns the lifecycle event stream.
//
// The channel is never closed. Events from a superseded loop are
// dropped rather than delivered.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Session returns the controller's session.
func (c *Controller) Session() *Session {
	return c.session
}

// State returns the current lifecycle state, job and last error.
func (c *Controller) State() (State, Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.job, c.lastErr
}

// =============================================================================
// Submission
// =============================================================================

// Submit starts a new analysis job for projectPath.
//
// # Description
//
// The path is normalized first; an empty path fails with a
// ValidationError and no request is issued. Any running job is
// cancelled and its loop joined before POST /analyze is sent.
//
// # Inputs
//
//   - ctx: Bounds the submission request only. The poll loop lives
//     until the job ends, a newer submission, Reset or Close.
//   - projectPath: The raw path as typed or dropped.
//
// # Outputs
//
//   - Job: The created job, status queued.
//   - error: ValidationError, NetworkError or ProtocolError.
func (c *Controller) Submit(ctx context.Context, projectPath string) (Job, error) {
	path, err := validation.NormalizeProjectPath(projectPath)
	if err != nil {
		return Job{}, &util.ValidationError{Field: "path", Reason: "must not be empty"}
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	if c.baseCtx.Err() != nil {
		return Job{}, context.Canceled
	}

	c.stopCurrent()

	c.mu.Lock()
	c.state = StateSubmitting
	c.job = Job{}
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("submitting analysis", "path", path)
	jobID, err := c.svc.Analyze(ctx, path)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.lastErr = err
		c.mu.Unlock()
		c.metrics.JobsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "submit_failed")))
		c.logger.Error("submit failed", "path", path, "error", err)
		return Job{}, err
	}

	runCtx, cancel := context.WithCancel(c.baseCtx)
	c.mu.Lock()
	c.seq++
	r := &run{seq: c.seq, jobID: jobID, ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	c.current = r
	c.state = StatePolling
	c.job = Job{ID: jobID, Status: client.StatusQueued, Message: "Queued"}
	job := c.job
	c.mu.Unlock()

	c.logger.Info("job submitted", "job_id", jobID, "run", r.seq)
	c.emit(r, Event{Kind: EventSubmitted, Job: job})

	util.SafeGo(func() { c.poll(r) }, func(p util.PanicResult) {
		c.logger.Error("poll loop panicked", "job_id", jobID, "panic", p.Value, "stack", p.Stack)
		c.fail(r, p.Err())
	})
	return job, nil
}

// stopCurrent cancels the running loop, if any, and waits for it to
// exit. Callers hold submitMu.
func (c *Controller) stopCurrent() {
	c.mu.Lock()
	old := c.current
	c.current = nil
	c.mu.Unlock()

	if old == nil {
		return
	}
	old.cancel()
	<-old.done
	c.logger.Debug("previous job cancelled", "job_id", old.jobID, "run", old.seq)
}

// Reset cancels any running job, clears the session store and returns
// the controller to idle.
func (c *Controller) Reset() {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.stopCurrent()
	c.session.Store.Clear()

	c.mu.Lock()
	c.state = StateIdle
	c.job = Job{}
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("session reset", "session_id", c.session.ID)
}

// Close cancels any running job and stops accepting submissions.
func (c *Controller) Close() {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.stopCurrent()
	c.baseCancel()
}

// =============================================================================
// Poll Loop
// =============================================================================

func (c *Controller) poll(r *run) {
	defer close(r.done)

	logger := c.logger.With("job_id", r.jobID, "run", r.seq)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			logger.Debug("poll loop cancelled")
			return
		case <-ticker.C:
		}

		p, err := c.svc.Progress(r.ctx, r.jobID)
		if r.ctx.Err() != nil {
			return
		}
		if err != nil {
			c.metrics.PollsTotal.Add(r.ctx, 1, metric.WithAttributes(attribute.String("status", "failed")))
			logger.Warn("poll failed", "error", err)
			c.fail(r, err)
			return
		}
		c.metrics.PollsTotal.Add(r.ctx, 1, metric.WithAttributes(attribute.String("status", p.Status)))

		job, ok := c.advance(r, p)
		if !ok {
			return
		}
		logger.Debug("poll response", "status", job.Status, "progress", job.Progress, "message", job.Message)
		c.emit(r, Event{Kind: EventProgress, Job: job})

		switch job.Status {
		case client.StatusCompleted:
			c.fetch(r, logger)
			return
		case client.StatusError:
			c.fail(r, &FailedError{JobID: r.jobID, Message: p.Message})
			return
		}
	}
}

// advance folds a poll response into the current job. It reports false
// when r is no longer the current run.
func (c *Controller) advance(r *run, p client.Progress) (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != r {
		return Job{}, false
	}
	c.job = c.job.apply(p)
	return c.job, true
}

func (c *Controller) fetch(r *run, logger *logging.Logger) {
	res, raw, err := c.svc.Results(r.ctx, r.jobID)
	if r.ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.Error("results fetch failed", "error", err)
		c.fail(r, err)
		return
	}

	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return
	}
	snap := c.session.Store.Replace(r.jobID, res, raw)
	c.state = StateCompleted
	job := c.job
	c.mu.Unlock()

	c.metrics.JobsTotal.Add(r.ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	logger.Info("results stored", "nodes", len(res.Graph.Nodes), "edges", len(res.Graph.Edges), "issues", res.Issues.Total(), "generation", snap.Generation)
	c.emit(r, Event{Kind: EventCompleted, Job: job, Snapshot: snap})
}

func (c *Controller) fail(r *run, err error) {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.lastErr = err
	job := c.job
	c.mu.Unlock()

	outcome := "failed"
	if errors.Is(err, ErrJobFailed) {
		outcome = "service_error"
	}
	c.metrics.JobsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	c.emit(r, Event{Kind: EventFailed, Job: job, Err: err})
}

// emit delivers ev unless r has been cancelled.
func (c *Controller) emit(r *run, ev Event) {
	ev.Run = r.seq
	select {
	case c.events <- ev:
	case <-r.ctx.Done():
	}
}

// =============================================================================
// Synchronous Helpers
// =============================================================================

// Wait consumes events until the given run finishes.
//
// # Description
//
// Used by headless mode, which has no UI loop. onEvent, if non-nil, sees
// every event of the run. Events of other runs are discarded.
//
// # Outputs
//
//   - Event: The terminal event (EventCompleted).
//   - error: The failure, ErrJobSuperseded, or ctx.Err().
func (c *Controller) Wait(ctx context.Context, onEvent func(Event)) (Event, error) {
	c.mu.Lock()
	var seq uint64
	var done chan struct{}
	if c.current != nil {
		seq, done = c.current.seq, c.current.done
	}
	c.mu.Unlock()
	if done == nil {
		return Event{}, ErrJobSuperseded
	}

	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case ev := <-c.events:
			if ev.Run != seq {
				continue
			}
			if onEvent != nil {
				onEvent(ev)
			}
			switch ev.Kind {
			case EventCompleted:
				return ev, nil
			case EventFailed:
				return ev, ev.Err
			}
		case <-done:
			// The loop may have exited after queueing its final event.
			select {
			case ev := <-c.events:
				if ev.Run == seq {
					if onEvent != nil {
						onEvent(ev)
					}
					switch ev.Kind {
					case EventCompleted:
						return ev, nil
					case EventFailed:
						return ev, ev.Err
					}
				}
				continue
			default:
				return Event{}, ErrJobSuperseded
			}
		}
	}
}
