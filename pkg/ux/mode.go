// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Mode defines how rich headless output is.
type Mode string

const (
	// ModeRich enables colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain keeps icons but drops colors and boxes.
	ModePlain Mode = "plain"

	// ModeMachine prints prefixed plain lines for scripts.
	ModeMachine Mode = "machine"
)

// ModeEnvVar overrides terminal detection when set.
const ModeEnvVar = "CALLSCOPE_OUTPUT"

var (
	currentMode = ModeRich
	modeMu      sync.RWMutex
)

// GetMode returns the active output mode.
func GetMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode replaces the active output mode.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode converts a string to a Mode. Unknown values map to ModeRich.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "p":
		return ModePlain
	case "machine", "quiet", "q":
		return ModeMachine
	default:
		return ModeRich
	}
}

// InitMode picks the output mode from the environment and the terminal.
//
// The environment variable wins. Otherwise a non-terminal stdout selects
// ModeMachine so piped output stays parseable.
func InitMode() {
	if env := os.Getenv(ModeEnvVar); env != "" {
		SetMode(ParseMode(env))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetMode(ModeMachine)
		return
	}
	SetMode(ModeRich)
}

// IsTerminal reports whether f is attached to a terminal, including
// Cygwin/MSYS pseudo terminals.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether the full-screen viewer can run.
//
// Both stdin and stdout must be terminals and the mode must not be
// ModeMachine.
func IsInteractive() bool {
	return GetMode() != ModeMachine && IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}
