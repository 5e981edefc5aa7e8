// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
)

// =============================================================================
// Service
// =============================================================================

// Service is the subset of the analysis service the controller drives.
// *client.Client implements it.
type Service interface {
	Analyze(ctx context.Context, projectPath string) (string, error)
	Progress(ctx context.Context, jobID string) (client.Progress, error)
	Results(ctx context.Context, jobID string) (*results.Results, []byte, error)
}

var _ Service = (*client.Client)(nil)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrJobFailed marks a job the service reported as failed.
	ErrJobFailed = errors.New("analysis failed")

	// ErrJobSuperseded is returned by Wait when a newer submission or a
	// reset cancelled the job.
	ErrJobSuperseded = errors.New("job superseded")
)

// FailedError carries the service message of a failed job.
type FailedError struct {
	JobID   string
	Message string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Unwrap returns ErrJobFailed.
func (e *FailedError) Unwrap() error { return ErrJobFailed }

var _ error = (*FailedError)(nil)

// =============================================================================
// State
// =============================================================================

// State is the controller's position in the job lifecycle.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StatePolling
	StateCompleted
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is the client-side view of one analysis job.
//
// Progress never decreases and Status never moves backwards within a
// job; both only change in response to poll results.
type Job struct {
	ID       string
	Status   string
	Progress int
	Message  string
}

// Terminal reports whether the job reached completed or error.
func (j Job) Terminal() bool {
	return j.Status == client.StatusCompleted || j.Status == client.StatusError
}

func statusRank(status string) int {
	switch status {
	case client.StatusQueued:
		return 0
	case client.StatusRunning:
		return 1
	case client.StatusCompleted, client.StatusError:
		return 2
	default:
		return -1
	}
}

// apply folds a poll response into the job without regressing it.
func (j Job) apply(p client.Progress) Job {
	next := j
	if statusRank(p.Status) >= statusRank(j.Status) {
		next.Status = p.Status
	}
	progress := p.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress > next.Progress {
		next.Progress = progress
	}
	if p.Message != "" {
		next.Message = p.Message
	}
	return next
}

// =============================================================================
// Events
// =============================================================================

// EventKind identifies a lifecycle event.
type EventKind int

const (
	EventSubmitted EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
)

// String returns the lowercase event name.
func (k EventKind) String() string {
	switch k {
	case EventSubmitted:
		return "submitted"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event reports a lifecycle change. Snapshot is set on EventCompleted;
// Err on EventFailed.
type Event struct {
	Kind     EventKind
	Run      uint64
	Job      Job
	Snapshot *results.Snapshot
	Err      error
}

// =============================================================================
// Session
// =============================================================================

// Session groups the state of one interactive session: its id and the
// results store the panes read from.
//
// A session reset keeps the same Store value and clears it, so panes
// holding the pointer stay valid.
type Session struct {
	ID        string
	Store     *results.Store
	StartedAt time.Time
}

// NewSession creates a session with an empty store.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		Store:     results.NewStore(),
		StartedAt: time.Now(),
	}
}
