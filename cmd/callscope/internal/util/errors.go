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

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrValidation marks input rejected locally before any request.
	ErrValidation = errors.New("validation failed")

	// ErrProtocol marks a service response missing a required field or
	// carrying an invalid value.
	ErrProtocol = errors.New("protocol violation")

	// ErrNetwork marks a transport failure or a non-2xx response.
	ErrNetwork = errors.New("network failure")

	// ErrRender marks a failure while constructing the visualization.
	ErrRender = errors.New("render failed")

	// ErrLayoutTimeout marks a layout that did not converge in time.
	ErrLayoutTimeout = errors.New("layout did not stabilize")
)

// =============================================================================
// Typed Errors
// =============================================================================

// ValidationError reports invalid local input.
//
// # Example
//
//	return &ValidationError{Field: "path", Reason: "must not be empty"}
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ProtocolError reports a malformed service response.
//
// # Description
//
// Endpoint names the request ("POST /analyze") and Field the missing or
// invalid response field. Wrapped carries a decode or validation error
// when one exists.
type ProtocolError struct {
	Endpoint string
	Field    string
	Wrapped  error
}

func (e *ProtocolError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: invalid response field %q: %v", e.Endpoint, e.Field, e.Wrapped)
	}
	return fmt.Sprintf("%s: response missing %q", e.Endpoint, e.Field)
}

// Unwrap returns ErrProtocol so errors.Is matches on the category.
func (e *ProtocolError) Unwrap() []error {
	if e.Wrapped != nil {
		return []error{ErrProtocol, e.Wrapped}
	}
	return []error{ErrProtocol}
}

// NetworkError reports a transport failure or an HTTP error status.
//
// StatusCode is 0 when no response was received.
type NetworkError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Wrapped    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
	case e.Wrapped != nil:
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Wrapped)
	default:
		return e.Endpoint + ": network failure"
	}
}

// Unwrap returns ErrNetwork and the transport error, if any.
func (e *NetworkError) Unwrap() []error {
	if e.Wrapped != nil {
		return []error{ErrNetwork, e.Wrapped}
	}
	return []error{ErrNetwork}
}

// HasStatus reports whether the service answered with an HTTP status.
func (e *NetworkError) HasStatus() bool {
	return e.StatusCode != 0
}

// RenderError reports a visualization construction failure.
type RenderError struct {
	Stage   string
	Wrapped error
}

func (e *RenderError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("graph %s: %v", e.Stage, e.Wrapped)
	}
	return "graph " + e.Stage + " failed"
}

// Unwrap returns ErrRender and the cause.
func (e *RenderError) Unwrap() []error {
	if e.Wrapped != nil {
		return []error{ErrRender, e.Wrapped}
	}
	return []error{ErrRender}
}

// TimeoutWarning reports a layout that was still moving when the
// stabilization deadline passed. It is advisory.
type TimeoutWarning struct {
	Nodes   int
	Elapsed string
}

func (e *TimeoutWarning) Error() string {
	return fmt.Sprintf("layout of %d nodes did not stabilize within %s", e.Nodes, e.Elapsed)
}

// Unwrap returns ErrLayoutTimeout.
func (e *TimeoutWarning) Unwrap() error { return ErrLayoutTimeout }

// Compile-time interface satisfaction checks
var (
	_ error = (*ValidationError)(nil)
	_ error = (*ProtocolError)(nil)
	_ error = (*NetworkError)(nil)
	_ error = (*RenderError)(nil)
	_ error = (*TimeoutWarning)(nil)
)

// =============================================================================
// Classification
// =============================================================================

// Severity describes how the UI must react to an error.
type Severity int

const (
	// SeverityNone is returned for a nil error.
	SeverityNone Severity = iota

	// SeverityLocal errors are shown inline; nothing was sent.
	SeverityLocal

	// SeverityAdvisory errors are non-fatal warnings with a manual reload.
	SeverityAdvisory

	// SeverityDegraded errors replace one panel; the rest keeps working.
	SeverityDegraded

	// SeverityFatal errors block the session until it is reset.
	SeverityFatal
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLocal:
		return "local"
	case SeverityAdvisory:
		return "advisory"
	case SeverityDegraded:
		return "degraded"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error to the UI reaction it requires.
//
// # Description
//
// Protocol and network errors are fatal for the current flow. Render
// errors degrade the graph panel only. Layout timeouts are advisory.
// Validation errors stay local. Anything unrecognized is treated as
// fatal so it is never silently swallowed.
//
// # Example
//
//	if util.Classify(err) == util.SeverityFatal {
//	    m.fatal = err
//	}
func Classify(err error) Severity {
	switch {
	case err == nil:
		return SeverityNone
	case errors.Is(err, ErrValidation):
		return SeverityLocal
	case errors.Is(err, ErrLayoutTimeout):
		return SeverityAdvisory
	case errors.Is(err, ErrRender):
		return SeverityDegraded
	default:
		return SeverityFatal
	}
}
