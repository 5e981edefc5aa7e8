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
	"fmt"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is an animated single-line status indicator for headless
// commands. The interactive viewer uses the bubbles spinner instead.
type Spinner struct {
	message    string
	stop       chan struct{}
	done       chan struct{}
	mu         sync.Mutex
	isRunning  bool
	frameIndex int
	lastPrint  string
}

// NewSpinner creates a stopped spinner.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation. In machine mode it prints the message once.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	msg := s.message
	s.mu.Unlock()

	out, _ := writers()
	if GetMode() == ModeMachine {
		fmt.Fprintf(out, "PROGRESS: %s\n", msg)
		s.mu.Lock()
		s.lastPrint = msg
		s.mu.Unlock()
		return
	}

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				fmt.Fprint(out, "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := spinnerFrames[s.frameIndex]
				s.frameIndex = (s.frameIndex + 1) % len(spinnerFrames)
				msg := s.message
				s.mu.Unlock()
				fmt.Fprintf(out, "\r\033[K%s %s", Styles.Highlight.Render(frame), msg)
			}
		}
	}()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if GetMode() == ModeMachine {
		return
	}
	close(s.stop)
	<-s.done
}

// UpdateMessage changes the message. Machine mode prints each distinct
// message as a new PROGRESS line.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	emit := s.isRunning && GetMode() == ModeMachine && message != s.lastPrint
	if emit {
		s.lastPrint = message
	}
	s.mu.Unlock()

	if emit {
		out, _ := writers()
		fmt.Fprintf(out, "PROGRESS: %s\n", message)
	}
}

// StopWithSuccess stops and prints a success line.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	Success(message)
}

// StopWithError stops and prints an error line.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	Error(message)
}

// StopWithWarning stops and prints a warning line.
func (s *Spinner) StopWithWarning(message string) {
	s.Stop()
	Warning(message)
}

// WithSpinner runs fn under a spinner and reports the outcome.
func WithSpinner(message string, fn func() error) error {
	spin := NewSpinner(message)
	spin.Start()

	if err := fn(); err != nil {
		spin.StopWithError(fmt.Sprintf("%s: %v", message, err))
		return err
	}

	spin.StopWithSuccess(message)
	return nil
}
