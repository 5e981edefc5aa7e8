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
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/export"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/graph"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/job"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/telemetry"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
	"github.com/AleutianAI/callscope/pkg/logging"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// =============================================================================
// Dependencies
// =============================================================================

// Controller is the job lifecycle the App drives.
type Controller interface {
	Submit(ctx context.Context, projectPath string) (job.Job, error)
	Reset()
	Events() <-chan job.Event
	Session() *job.Session
}

var _ Controller = (*job.Controller)(nil)

// Exporter writes the current results to an artifact.
type Exporter interface {
	Export(ctx context.Context) (export.Result, error)
}

var _ Exporter = (*export.Service)(nil)

// Focus identifies the pane receiving keys.
type Focus int

const (
	FocusInput Focus = iota
	FocusGraph
	FocusTree
	FocusIssues
	FocusInspector
)

// String returns the lowercase pane name.
func (f Focus) String() string {
	switch f {
	case FocusInput:
		return "input"
	case FocusGraph:
		return "graph"
	case FocusTree:
		return "tree"
	case FocusIssues:
		return "issues"
	case FocusInspector:
		return "inspector"
	default:
		return "unknown"
	}
}

// AppConfig configures an App.
type AppConfig struct {
	// Controller runs analysis jobs. Nil disables the path field, as in
	// artifact viewing.
	Controller Controller

	// Store is read by the panes. Defaults to the controller's session
	// store.
	Store *results.Store

	Exporter Exporter
	Engine   graph.Engine
	Graph    GraphConfig

	// InitialPath pre-fills the path field. With AutoSubmit it is
	// submitted on start.
	InitialPath string
	AutoSubmit  bool

	// Updates delivers replacement snapshots from outside the controller.
	Updates <-chan *results.Snapshot

	Logger  *logging.Logger
	Metrics *telemetry.Metrics
}

// watchMsg carries a snapshot from AppConfig.Updates.
type watchMsg struct {
	snapshot *results.Snapshot
}

type notice struct {
	icon ux.Icon
	text string
}

// =============================================================================
// Model
// =============================================================================

// App is the root bubbletea model.
//
// # Description
//
// The path field submits a job through the Controller. Job events
// arrive as messages and drive the progress bar; a completed job loads
// its snapshot into the graph, tree and issue panes. Protocol, network
// and job failures open a blocking notice that only a reset (r) clears.
// Validation failures stay inline under the path field.
//
// # Thread Safety
//
// Single-threaded; owned by the bubbletea program.
type App struct {
	ctrl     Controller
	store    *results.Store
	exporter Exporter
	updates  <-chan *results.Snapshot
	logger   *logging.Logger

	input    textinput.Model
	progress progress.Model
	spinner  spinner.Model

	graph     GraphPane
	tree      TreePane
	issues    IssuePane
	inspector Inspector

	focus  Focus
	width  int
	height int
	ready  bool

	autoSubmit bool
	running    bool
	run        uint64
	job        job.Job
	stats      *results.Stats

	inputErr error
	fatal    error
	notice   *notice
}

// NewApp creates the root model.
func NewApp(cfg AppConfig) App {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Engine == nil {
		cfg.Engine = graph.NewForceEngine(graph.DefaultLayoutConfig())
	}
	store := cfg.Store
	if store == nil && cfg.Controller != nil {
		store = cfg.Controller.Session().Store
	}
	if store == nil {
		store = results.NewStore()
	}

	ti := textinput.New()
	ti.Placeholder = "Drop or type a project directory, then press Enter"
	ti.Prompt = "Path: "
	ti.CharLimit = 4096
	ti.SetValue(cfg.InitialPath)

	a := App{
		ctrl:       cfg.Controller,
		store:      store,
		exporter:   cfg.Exporter,
		updates:    cfg.Updates,
		logger:     cfg.Logger.With("component", "tui"),
		input:      ti,
		progress:   progress.New(progress.WithDefaultGradient()),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		graph:      NewGraphPane(cfg.Engine, cfg.Graph, cfg.Logger, cfg.Metrics),
		tree:       NewTreePane(),
		issues:     NewIssuePane(),
		inspector:  NewInspector(store),
		autoSubmit: cfg.AutoSubmit && cfg.InitialPath != "",
	}
	if a.ctrl != nil {
		a.input.Focus()
	} else {
		a.focus = FocusGraph
	}
	return a
}

// Init starts listening for job events and snapshot updates.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if a.ctrl != nil {
		cmds = append(cmds, waitForEvent(a.ctrl.Events()))
	}
	if a.updates != nil {
		cmds = append(cmds, waitForSnapshot(a.updates))
	}
	if snap := a.store.Snapshot(); snap != nil {
		cmds = append(cmds, emit(SnapshotMsg{Snapshot: snap}))
	}
	if a.autoSubmit {
		cmds = append(cmds, a.submit(a.input.Value()))
	}
	return tea.Batch(cmds...)
}

func waitForEvent(ch <-chan job.Event) tea.Cmd {
	return func() tea.Msg {
		return jobEventMsg(<-ch)
	}
}

func waitForSnapshot(ch <-chan *results.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return watchMsg{snapshot: snap}
	}
}

func (a App) submit(path string) tea.Cmd {
	ctrl := a.ctrl
	return func() tea.Msg {
		j, err := ctrl.Submit(context.Background(), path)
		return submitDoneMsg{job: j, err: err}
	}
}

func (a App) runExport() tea.Cmd {
	exporter := a.exporter
	return func() tea.Msg {
		res, err := exporter.Export(context.Background())
		return exportDoneMsg{result: res, err: err}
	}
}

// =============================================================================
// Update
// =============================================================================

// Update routes messages to the panes.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.ready = true
		return a.layout(), nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case submitDoneMsg:
		if msg.err != nil {
			return a.failSubmit(msg.err), nil
		}
		a.inputErr = nil
		a.running = true
		a.job = msg.job
		a.notice = nil
		a.logger.Info("job submitted", "job_id", msg.job.ID)
		return a, a.spinner.Tick

	case jobEventMsg:
		a, cmd := a.handleEvent(job.Event(msg))
		return a, tea.Batch(cmd, waitForEvent(a.ctrl.Events()))

	case SnapshotMsg:
		return a.load(msg.Snapshot)

	case watchMsg:
		a, cmd := a.load(msg.snapshot)
		return a, tea.Batch(cmd, waitForSnapshot(a.updates))

	case exportDoneMsg:
		return a.handleExport(msg), nil

	case InspectMsg:
		var ok bool
		a.inspector, ok = a.inspector.Open(msg.NodeID)
		if ok {
			a.focus = FocusInspector
		} else {
			a.logger.Debug("inspect target not found", "node_id", msg.NodeID)
		}
		return a, nil

	case FileSelectedMsg:
		var cmd tea.Cmd
		a.graph, cmd = a.graph.Update(msg)
		return a, cmd

	case measureMsg, buildMsg, stabilizedMsg, layoutTimeout, frameMsg:
		var cmd tea.Cmd
		a.graph, cmd = a.graph.Update(msg)
		return a, cmd

	case spinner.TickMsg:
		if !a.running {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	if a.focus == FocusInput {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a App) failSubmit(err error) App {
	a.running = false
	if util.Classify(err) == util.SeverityLocal {
		a.inputErr = err
		return a
	}
	if errors.Is(err, context.Canceled) {
		return a
	}
	a.fatal = err
	a.logger.Error("job submission failed", "error", err)
	return a
}

func (a App) handleEvent(ev job.Event) (App, tea.Cmd) {
	if ev.Run < a.run {
		return a, nil
	}
	a.run = ev.Run

	switch ev.Kind {
	case job.EventSubmitted, job.EventProgress:
		a.job = ev.Job
		a.running = true
	case job.EventCompleted:
		a.job = ev.Job
		a.running = false
		return a.load(ev.Snapshot)
	case job.EventFailed:
		a.job = ev.Job
		a.running = false
		if util.Classify(ev.Err) == util.SeverityFatal {
			a.fatal = ev.Err
		}
		a.logger.Error("job failed", "job_id", ev.Job.ID, "error", ev.Err)
	}
	return a, nil
}

// load shows snap in every pane. A nil snapshot clears them.
func (a App) load(snap *results.Snapshot) (App, tea.Cmd) {
	a.inspector = a.inspector.Close()
	if a.focus == FocusInspector {
		a.focus = FocusGraph
	}
	var cmd tea.Cmd
	a.graph, cmd = a.graph.Load(snap)
	if snap == nil || snap.Results == nil {
		a.stats = nil
		a.tree = a.tree.Load(nil)
		a.issues = a.issues.Load(results.Issues{})
		return a, cmd
	}
	stats := snap.Results.Stats
	a.stats = &stats
	a.tree = a.tree.Load(snap.Results.FileTree)
	a.issues = a.issues.Load(snap.Results.Issues)
	return a, cmd
}

func (a App) handleExport(msg exportDoneMsg) App {
	switch {
	case errors.Is(msg.err, export.ErrNothingToExport):
		a.notice = &notice{icon: ux.IconWarning, text: "Nothing to export yet. Run an analysis first."}
	case msg.err != nil:
		a.notice = &notice{icon: ux.IconError, text: "Export failed: " + msg.err.Error()}
		a.logger.Error("export failed", "error", msg.err)
	default:
		a.notice = &notice{icon: ux.IconSuccess, text: "Exported " + msg.result.Name + " to " + strings.Join(msg.result.Locations, ", ")}
	}
	return a
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return a, tea.Quit
	}

	if a.fatal != nil {
		switch msg.String() {
		case "r":
			return a.reset(), nil
		case "q":
			return a, tea.Quit
		}
		return a, nil
	}

	switch msg.String() {
	case "tab":
		return a.cycleFocus(1), nil
	case "shift+tab":
		return a.cycleFocus(-1), nil
	}

	if a.focus == FocusInput {
		if msg.Type == tea.KeyEnter {
			a.inputErr = nil
			return a, a.submit(a.input.Value())
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "x":
		if a.exporter == nil {
			a.notice = &notice{icon: ux.IconWarning, text: "Export is not configured."}
			return a, nil
		}
		return a, a.runExport()
	case "1", "2", "3":
		var cmd tea.Cmd
		a.issues, cmd = a.issues.Update(msg)
		return a, cmd
	case "r":
		var cmd tea.Cmd
		a.graph, cmd = a.graph.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	switch a.focus {
	case FocusGraph:
		a.graph, cmd = a.graph.Update(msg)
	case FocusTree:
		a.tree, cmd = a.tree.Update(msg)
	case FocusIssues:
		a.issues, cmd = a.issues.Update(msg)
	case FocusInspector:
		a.inspector, cmd = a.inspector.Update(msg)
		if !a.inspector.IsOpen() {
			a.focus = FocusGraph
		}
	}
	return a, cmd
}

func (a App) cycleFocus(step int) App {
	order := []Focus{FocusGraph, FocusTree, FocusIssues}
	if a.ctrl != nil {
		order = append([]Focus{FocusInput}, order...)
	}
	if a.inspector.IsOpen() {
		order = append(order, FocusInspector)
	}
	idx := 0
	for i, f := range order {
		if f == a.focus {
			idx = i
		}
	}
	idx = (idx + step + len(order)) % len(order)
	a.focus = order[idx]
	if a.focus == FocusInput {
		a.input.Focus()
	} else {
		a.input.Blur()
	}
	return a
}

// reset clears the session after a fatal error.
func (a App) reset() App {
	a.logger.Info("resetting session", "error", a.fatal)
	if a.ctrl != nil {
		a.ctrl.Reset()
	} else {
		a.store.Clear()
	}
	a.fatal = nil
	a.inputErr = nil
	a.notice = nil
	a.running = false
	a.job = job.Job{}
	a, _ = a.load(nil)
	if a.ctrl != nil {
		a.focus = FocusInput
		a.input.Focus()
	}
	return a
}

// Close stops background layout work.
func (a App) Close() {
	a.graph.Close()
}

// =============================================================================
// Layout
// =============================================================================

// headerLines is title, stats, path field and progress.
const headerLines = 4

func (a App) layout() App {
	bodyH := a.height - headerLines - 1
	if bodyH < 6 {
		bodyH = 6
	}
	leftW := a.width / 3
	if leftW < 24 {
		leftW = 24
	}
	rightW := a.width - leftW
	if rightW < 20 {
		rightW = 20
	}

	treeH := bodyH / 2
	issuesH := bodyH - treeH

	// Panes draw a one-cell border.
	a.tree = a.tree.SetSize(leftW-2, treeH-2)
	a.issues = a.issues.SetSize(leftW-2, issuesH-2)
	a.graph = a.graph.SetSize(rightW-2, bodyH-2)
	a.inspector = a.inspector.SetSize(rightW-2, bodyH-2)
	a.input.Width = a.width - len(a.input.Prompt) - 1
	a.progress.Width = a.width / 2
	return a
}

// =============================================================================
// Accessors
// =============================================================================

// Focus returns the focused pane.
func (a App) Focus() Focus { return a.focus }

// Fatal returns the error blocking the session, if any.
func (a App) Fatal() error { return a.fatal }

// InputErr returns the inline validation error, if any.
func (a App) InputErr() error { return a.inputErr }

// Job returns the latest job state.
func (a App) Job() job.Job { return a.job }

// Running reports whether a job is in flight.
func (a App) Running() bool { return a.running }

// Notice returns the current status notice text.
func (a App) Notice() string {
	if a.notice == nil {
		return ""
	}
	return a.notice.text
}

// Graph returns the graph pane.
func (a App) Graph() GraphPane { return a.graph }

// Tree returns the file tree pane.
func (a App) Tree() TreePane { return a.tree }

// Issues returns the issue pane.
func (a App) Issues() IssuePane { return a.issues }

// Inspector returns the detail inspector.
func (a App) Inspector() Inspector { return a.inspector }

// =============================================================================
// View
// =============================================================================

// View renders the whole screen.
func (a App) View() string {
	if !a.ready {
		return "Initializing..."
	}
	if a.fatal != nil {
		return a.fatalView()
	}

	var b strings.Builder
	b.WriteString(ux.Styles.Title.Render("callscope"))
	b.WriteString("  ")
	b.WriteString(a.statsLine())
	b.WriteString("\n")
	b.WriteString(a.input.View())
	b.WriteString("\n")
	if a.inputErr != nil {
		b.WriteString(ux.Styles.Error.Render(string(ux.IconError) + " " + a.inputErr.Error()))
	} else {
		b.WriteString(a.jobLine())
	}
	b.WriteString("\n")

	pane := func(f Focus, content string, w, h int) string {
		style := ux.Styles.Pane
		if a.focus == f {
			style = ux.Styles.ActivePane
		}
		return style.Width(w - 2).Height(h - 2).Render(content)
	}

	bodyH := a.height - headerLines - 1
	if bodyH < 6 {
		bodyH = 6
	}
	leftW := a.width / 3
	if leftW < 24 {
		leftW = 24
	}
	rightW := a.width - leftW
	if rightW < 20 {
		rightW = 20
	}
	treeH := bodyH / 2

	left := lipgloss.JoinVertical(lipgloss.Left,
		pane(FocusTree, a.tree.View(), leftW, treeH),
		pane(FocusIssues, a.issues.View(), leftW, bodyH-treeH),
	)
	var right string
	if a.inspector.IsOpen() {
		right = pane(FocusInspector, a.inspector.View(), rightW, bodyH)
	} else {
		right = pane(FocusGraph, a.graph.View(), rightW, bodyH)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	b.WriteString("\n")
	b.WriteString(a.footer())
	return b.String()
}

func (a App) statsLine() string {
	if a.stats == nil {
		return ux.Styles.Muted.Render("no results")
	}
	s := a.stats
	return ux.Styles.Muted.Render(fmt.Sprintf(
		"files %d · functions %d · classes %d · errors %d · warnings %d · dead code %d · placeholders %d",
		s.TotalFiles, s.TotalFunctions, s.TotalClasses, s.Errors, s.Warnings, s.DeadCode, s.Placeholders))
}

func (a App) jobLine() string {
	if a.job.ID == "" {
		if a.ctrl == nil {
			return ux.Styles.Muted.Render("Viewing saved results.")
		}
		return ux.Styles.Muted.Render("Idle.")
	}
	prefix := " "
	if a.running {
		prefix = a.spinner.View()
	}
	pct := float64(a.job.Progress) / 100
	return fmt.Sprintf("%s %s %3d%% %s", prefix, a.progress.ViewAs(pct), a.job.Progress, a.job.Message)
}

func (a App) footer() string {
	if a.notice != nil {
		return a.notice.icon.Render() + " " + a.notice.text
	}
	help := "tab focus · x export · 1/2/3 issues · q quit"
	switch a.focus {
	case FocusInput:
		help = "enter analyze · tab focus · ctrl+c quit"
	case FocusGraph:
		help = "n/p move · enter inspect · +/- zoom · 0 reset · f fit · " + help
	case FocusTree, FocusIssues:
		help = "j/k move · enter open · " + help
	case FocusInspector:
		help = "esc close · " + help
	}
	return ux.Styles.Muted.Render(help)
}

func (a App) fatalView() string {
	body := ux.Styles.Bold.Render("The analysis cannot continue") + "\n\n" +
		a.fatal.Error() + "\n\n" +
		ux.Styles.Muted.Render("Press r to start over or q to quit.")
	box := ux.Styles.ErrorBox.Width(min(a.width-4, 72)).Render(body)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, box)
}
