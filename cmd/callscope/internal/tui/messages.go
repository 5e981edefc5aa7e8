// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui is the interactive callscope terminal interface.
//
// # Description
//
// The App model composes a path field, job progress, the graph pane, the
// file tree, the issue list and the detail inspector. Background work
// (job polling, layout simulation, exports) runs on goroutines and
// reaches the UI only as messages.
//
// # Thread Safety
//
// TUI components are designed for single-threaded use within the
// bubbletea event loop. Do not access TUI state from multiple goroutines.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/export"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/job"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
)

// =============================================================================
// Cross-pane Messages
// =============================================================================

// InspectMsg asks the inspector to open a node.
type InspectMsg struct {
	NodeID string
}

// FileSelectedMsg asks the graph pane to select the nodes of a file.
type FileSelectedMsg struct {
	Path string
}

// SnapshotMsg delivers a results snapshot from outside the job
// controller, e.g. a reloaded artifact.
type SnapshotMsg struct {
	Snapshot *results.Snapshot
}

// =============================================================================
// Internal Messages
// =============================================================================

// Graph pipeline messages carry the load generation they belong to;
// messages from an older generation are ignored.
type (
	measureMsg    struct{ gen uint64 }
	buildMsg      struct{ gen uint64 }
	stabilizedMsg struct{ gen uint64 }
	layoutTimeout struct {
		gen     uint64
		elapsed time.Duration
	}
	frameMsg struct{ gen uint64 }
)

type jobEventMsg job.Event

type submitDoneMsg struct {
	job job.Job
	err error
}

type exportDoneMsg struct {
	result export.Result
	err    error
}

// frameCmd delivers msg after one frame interval.
func frameCmd(interval time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg { return msg })
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
