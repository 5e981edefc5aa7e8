// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/export"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/graph"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/job"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeController struct {
	session *job.Session
	events  chan job.Event
	err     error

	mu        sync.Mutex
	submitted []string
	resets    int
}

func newFakeController() *fakeController {
	return &fakeController{session: job.NewSession(), events: make(chan job.Event, 8)}
}

func (f *fakeController) Submit(_ context.Context, path string) (job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, path)
	if f.err != nil {
		return job.Job{}, f.err
	}
	return job.Job{ID: "J1", Status: client.StatusQueued, Message: "Queued"}, nil
}

func (f *fakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.session.Store.Clear()
}

func (f *fakeController) Events() <-chan job.Event { return f.events }

func (f *fakeController) Session() *job.Session { return f.session }

type fakeExporter struct {
	result export.Result
	err    error
	calls  int
}

func (f *fakeExporter) Export(context.Context) (export.Result, error) {
	f.calls++
	return f.result, f.err
}

// =============================================================================
// Helpers
// =============================================================================

func newTestApp(t *testing.T, ctrl Controller, exp Exporter) App {
	t.Helper()
	lay := newFakeLayout(graph.Point{X: 100, Y: 100}, graph.Point{X: 300, Y: 200})
	a := NewApp(AppConfig{
		Controller: ctrl,
		Exporter:   exp,
		Engine:     &fakeEngine{layouts: []*fakeLayout{lay}},
	})
	return step(t, a, tea.WindowSizeMsg{Width: 120, Height: 40})
}

func step(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, _ := a.Update(msg)
	next, ok := m.(App)
	require.True(t, ok)
	return next
}

func stepCmd(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	next, ok := m.(App)
	require.True(t, ok)
	return next, cmd
}

func typePath(t *testing.T, a App, path string) App {
	t.Helper()
	for _, r := range path {
		a = step(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return a
}

func completedSnapshot(store *results.Store) *results.Snapshot {
	return store.Replace("J1", &results.Results{
		Stats:    results.Stats{TotalFiles: 2, TotalFunctions: 2},
		FileTree: []results.FileTreeNode{{Name: "main.py", Type: results.TreeFile}, {Name: "util.py", Type: results.TreeFile}},
		Graph:    twoNodeGraph(),
		Issues: results.Issues{Errors: []results.Issue{
			{Severity: results.SeverityError, Message: "boom", File: "main.py", Line: 1, Function: "main"},
		}},
	}, []byte(`{}`))
}

// =============================================================================
// Submission
// =============================================================================

func TestApp_SubmitSendsPath(t *testing.T) {
	ctrl := newFakeController()
	a := typePath(t, newTestApp(t, ctrl, nil), "/repo")
	assert.Equal(t, FocusInput, a.Focus())

	a, cmd := stepCmd(t, a, key("enter"))
	require.NotNil(t, cmd)
	a = step(t, a, cmd())

	assert.Equal(t, []string{"/repo"}, ctrl.submitted)
	assert.True(t, a.Running())
	assert.Equal(t, "J1", a.Job().ID)
	assert.NoError(t, a.Fatal())
}

func TestApp_ValidationErrorStaysInline(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = &util.ValidationError{Field: "path", Reason: "must not be empty"}
	a := newTestApp(t, ctrl, nil)

	a, cmd := stepCmd(t, a, key("enter"))
	a = step(t, a, cmd())

	assert.Error(t, a.InputErr())
	assert.NoError(t, a.Fatal())
	assert.False(t, a.Running())
	assert.Contains(t, a.View(), "must not be empty")
}

func TestApp_NetworkErrorIsFatalUntilReset(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = &util.NetworkError{Endpoint: "POST /analyze", Wrapped: errors.New("connection refused")}
	a := newTestApp(t, ctrl, nil)

	a, cmd := stepCmd(t, a, key("enter"))
	a = step(t, a, cmd())
	require.Error(t, a.Fatal())
	assert.Contains(t, a.View(), "Press r to start over")

	// Other keys are blocked while the notice is up.
	a = step(t, a, key("tab"))
	assert.Equal(t, FocusInput, a.Focus())
	assert.Error(t, a.Fatal())

	a = step(t, a, key("r"))
	assert.NoError(t, a.Fatal())
	assert.Equal(t, 1, ctrl.resets)
	assert.Equal(t, FocusInput, a.Focus())
	assert.Empty(t, a.Job().ID)
}

// =============================================================================
// Job Events
// =============================================================================

func TestApp_EventsDriveProgressAndLoadPanes(t *testing.T) {
	ctrl := newFakeController()
	a := newTestApp(t, ctrl, nil)

	a = step(t, a, jobEventMsg{Kind: job.EventSubmitted, Run: 1, Job: job.Job{ID: "J1", Status: client.StatusQueued}})
	a = step(t, a, jobEventMsg{Kind: job.EventProgress, Run: 1, Job: job.Job{ID: "J1", Status: client.StatusRunning, Progress: 40, Message: "Analyzing code issues..."}})
	assert.True(t, a.Running())
	assert.Equal(t, 40, a.Job().Progress)
	assert.Contains(t, a.View(), "Analyzing code issues...")

	snap := completedSnapshot(ctrl.session.Store)
	a, cmd := stepCmd(t, a, jobEventMsg{Kind: job.EventCompleted, Run: 1, Job: job.Job{ID: "J1", Status: client.StatusCompleted, Progress: 100}, Snapshot: snap})
	require.NotNil(t, cmd)

	assert.False(t, a.Running())
	assert.Equal(t, 100, a.Job().Progress)
	assert.Equal(t, PhaseMeasure, a.Graph().Phase())
	assert.Equal(t, 2, a.Tree().Len())
	assert.Len(t, a.Issues().Items(), 1)
	assert.Contains(t, a.View(), "functions 2")
}

func TestApp_StaleRunEventsIgnored(t *testing.T) {
	ctrl := newFakeController()
	a := newTestApp(t, ctrl, nil)

	a = step(t, a, jobEventMsg{Kind: job.EventSubmitted, Run: 2, Job: job.Job{ID: "J2", Status: client.StatusQueued}})
	a = step(t, a, jobEventMsg{Kind: job.EventProgress, Run: 1, Job: job.Job{ID: "J1", Progress: 90}})
	a = step(t, a, jobEventMsg{Kind: job.EventFailed, Run: 1, Job: job.Job{ID: "J1"}, Err: &job.FailedError{JobID: "J1", Message: "old"}})

	assert.Equal(t, "J2", a.Job().ID)
	assert.Zero(t, a.Job().Progress)
	assert.NoError(t, a.Fatal())
}

func TestApp_JobFailureIsFatal(t *testing.T) {
	ctrl := newFakeController()
	a := newTestApp(t, ctrl, nil)

	a = step(t, a, jobEventMsg{Kind: job.EventSubmitted, Run: 1, Job: job.Job{ID: "J1"}})
	a = step(t, a, jobEventMsg{Kind: job.EventFailed, Run: 1, Job: job.Job{ID: "J1", Status: client.StatusError}, Err: &job.FailedError{JobID: "J1", Message: "parser crashed"}})

	require.Error(t, a.Fatal())
	assert.True(t, errors.Is(a.Fatal(), job.ErrJobFailed))
	assert.False(t, a.Running())
	assert.Contains(t, a.View(), "parser crashed")
}

// =============================================================================
// Keys
// =============================================================================

func TestApp_FocusCycle(t *testing.T) {
	a := newTestApp(t, newFakeController(), nil)

	a = step(t, a, key("tab"))
	assert.Equal(t, FocusGraph, a.Focus())
	a = step(t, a, key("tab"))
	assert.Equal(t, FocusTree, a.Focus())
	a = step(t, a, key("tab"))
	assert.Equal(t, FocusIssues, a.Focus())
	a = step(t, a, key("tab"))
	assert.Equal(t, FocusInput, a.Focus())
	a = step(t, a, key("shift+tab"))
	assert.Equal(t, FocusIssues, a.Focus())
}

func TestApp_QuitKeys(t *testing.T) {
	a := newTestApp(t, newFakeController(), nil)

	// q is text while the path field has focus.
	a = step(t, a, key("q"))
	assert.Equal(t, FocusInput, a.Focus())

	a = step(t, a, key("tab"))
	_, cmd := stepCmd(t, a, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	_, cmd = stepCmd(t, a, key("ctrl+c"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestApp_ExportNotices(t *testing.T) {
	exp := &fakeExporter{err: export.ErrNothingToExport}
	a := step(t, newTestApp(t, newFakeController(), exp), key("tab"))

	a, cmd := stepCmd(t, a, key("x"))
	require.NotNil(t, cmd)
	a = step(t, a, cmd())
	assert.Equal(t, 1, exp.calls)
	assert.Contains(t, a.Notice(), "Nothing to export")
	assert.NoError(t, a.Fatal())

	exp.err = nil
	exp.result = export.Result{Name: "analysis_results_1.json", Locations: []string{"/tmp/analysis_results_1.json"}}
	a, cmd = stepCmd(t, a, key("x"))
	a = step(t, a, cmd())
	assert.Contains(t, a.Notice(), "/tmp/analysis_results_1.json")

	exp.err = errors.New("disk full")
	a, cmd = stepCmd(t, a, key("x"))
	a = step(t, a, cmd())
	assert.Contains(t, a.Notice(), "disk full")
	assert.NoError(t, a.Fatal())
}

func TestApp_ExportUnconfigured(t *testing.T) {
	a := step(t, newTestApp(t, newFakeController(), nil), key("tab"))
	a, cmd := stepCmd(t, a, key("x"))
	assert.Nil(t, cmd)
	assert.Contains(t, a.Notice(), "not configured")
}

func TestApp_CategoryKeys(t *testing.T) {
	ctrl := newFakeController()
	a := newTestApp(t, ctrl, nil)
	a = step(t, a, SnapshotMsg{Snapshot: completedSnapshot(ctrl.session.Store)})
	a = step(t, a, key("tab"))

	a = step(t, a, key("2"))
	assert.Equal(t, results.SeverityWarning, a.Issues().Category())
	a = step(t, a, key("1"))
	assert.Equal(t, results.SeverityError, a.Issues().Category())
}

// =============================================================================
// Cross-links
// =============================================================================

func TestApp_InspectOpensAndEscCloses(t *testing.T) {
	ctrl := newFakeController()
	a := newTestApp(t, ctrl, nil)
	a = step(t, a, SnapshotMsg{Snapshot: completedSnapshot(ctrl.session.Store)})

	a = step(t, a, InspectMsg{NodeID: "main.py:missing"})
	assert.False(t, a.Inspector().IsOpen())

	a = step(t, a, InspectMsg{NodeID: "main.py:main"})
	require.True(t, a.Inspector().IsOpen())
	assert.Equal(t, FocusInspector, a.Focus())

	a = step(t, a, key("esc"))
	assert.False(t, a.Inspector().IsOpen())
	assert.Equal(t, FocusGraph, a.Focus())
}

func TestApp_IssueEnterCrossLinksToInspector(t *testing.T) {
	ctrl := newFakeController()
	a := newTestApp(t, ctrl, nil)
	a = step(t, a, SnapshotMsg{Snapshot: completedSnapshot(ctrl.session.Store)})
	a = step(t, a, key("tab"))
	a = step(t, a, key("tab"))
	a = step(t, a, key("tab"))
	require.Equal(t, FocusIssues, a.Focus())

	a, cmd := stepCmd(t, a, key("enter"))
	require.NotNil(t, cmd)
	a = step(t, a, cmd())
	assert.Equal(t, "main.py:main", a.Inspector().NodeID())
}

// =============================================================================
// Viewing
// =============================================================================

func TestApp_ViewModeWithoutController(t *testing.T) {
	store := results.NewStore()
	snap := completedSnapshot(store)
	a := NewApp(AppConfig{Store: store, Engine: &fakeEngine{layouts: []*fakeLayout{newFakeLayout()}}})
	assert.Equal(t, FocusGraph, a.Focus())
	assert.NotNil(t, a.Init())

	a = step(t, a, tea.WindowSizeMsg{Width: 100, Height: 30})
	a = step(t, a, SnapshotMsg{Snapshot: snap})
	assert.Equal(t, 2, a.Tree().Len())
	assert.Contains(t, a.View(), "Viewing saved results.")

	// Focus never lands on the missing path field.
	for i := 0; i < 4; i++ {
		a = step(t, a, key("tab"))
		assert.NotEqual(t, FocusInput, a.Focus())
	}
}

func TestApp_WatchUpdatesReplaceResults(t *testing.T) {
	store := results.NewStore()
	updates := make(chan *results.Snapshot, 1)
	a := NewApp(AppConfig{Store: store, Updates: updates, Engine: &fakeEngine{layouts: []*fakeLayout{newFakeLayout()}}})
	a = step(t, a, tea.WindowSizeMsg{Width: 100, Height: 30})

	updates <- completedSnapshot(store)
	msg := waitForSnapshot(updates)()
	a, cmd := stepCmd(t, a, msg)
	require.NotNil(t, cmd)
	assert.Equal(t, 2, a.Tree().Len())

	close(updates)
	assert.Nil(t, waitForSnapshot(updates)())
}

func TestFocus_String(t *testing.T) {
	assert.Equal(t, "inspector", FocusInspector.String())
	assert.Equal(t, "unknown", Focus(42).String())
}
