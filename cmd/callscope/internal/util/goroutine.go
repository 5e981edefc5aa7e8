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
	"fmt"
	"runtime/debug"
)

// =============================================================================
// Panic Recovery
// =============================================================================

// PanicResult captures a recovered panic.
type PanicResult struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at panic time.
	Stack string
}

// Err converts the panic into an error value.
func (r PanicResult) Err() error {
	if err, ok := r.Value.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r.Value)
}

// SafeGo runs fn in a new goroutine and recovers any panic.
//
// # Description
//
// The poll loop and the layout simulation both run through SafeGo so a
// panic in either surfaces as an error event instead of killing the
// terminal session with the screen in raw mode.
//
// # Inputs
//
//   - fn: The function to run.
//   - onPanic: Called with the recovered value. May be nil.
//
// # Example
//
//	util.SafeGo(func() { c.poll(ctx, run) }, func(r util.PanicResult) {
//	    c.emit(Event{Kind: EventFailed, Err: r.Err()})
//	})
func SafeGo(fn func(), onPanic func(PanicResult)) {
	go func() {
		defer RecoverPanic(onPanic)()
		fn()
	}()
}

// RecoverPanic returns a deferrable function that recovers a panic and
// reports it to onPanic.
//
// # Example
//
//	defer util.RecoverPanic(func(r util.PanicResult) { err = r.Err() })()
func RecoverPanic(onPanic func(PanicResult)) func() {
	return func() {
		if r := recover(); r != nil {
			if onPanic != nil {
				onPanic(PanicResult{Value: r, Stack: string(debug.Stack())})
			}
		}
	}
}
