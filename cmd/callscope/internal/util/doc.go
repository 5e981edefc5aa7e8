// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package util holds the small shared pieces of the callscope CLI.
//
// # Error taxonomy
//
// ValidationError, ProtocolError, NetworkError, RenderError and
// TimeoutWarning each unwrap to a sentinel (ErrValidation, ErrProtocol,
// ErrNetwork, ErrRender, ErrLayoutTimeout). Classify maps any error to
// the reaction the UI needs: local, advisory, degraded or fatal.
//
// # Goroutines
//
// SafeGo and RecoverPanic turn panics in background work into values
// the caller can report.
//
// # Timeouts
//
// TimeoutConfig carries the HTTP, poll, layout and shutdown durations,
// with Validated enforcing defaults and minimums.
package util
