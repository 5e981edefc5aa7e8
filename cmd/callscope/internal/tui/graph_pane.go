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
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/graph"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/telemetry"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
	"github.com/AleutianAI/callscope/pkg/logging"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// =============================================================================
// Phase
// =============================================================================

// GraphPhase is the position of the graph pane in its render pipeline.
type GraphPhase int

const (
	// PhaseIdle has nothing loaded.
	PhaseIdle GraphPhase = iota

	// PhaseMeasure waits for the first frame to measure the pane.
	PhaseMeasure

	// PhaseBuild waits for the second frame to build the index and start
	// the layout engine.
	PhaseBuild

	// PhaseLayout runs the simulation, racing stabilization against the
	// timeout.
	PhaseLayout

	// PhaseStable has a converged layout and attached controls.
	PhaseStable

	// PhaseTimedOut shows a partial layout after the timeout fired.
	PhaseTimedOut

	// PhaseEmpty had no nodes to draw.
	PhaseEmpty

	// PhaseFailed could not construct the visualization.
	PhaseFailed
)

// String returns the lowercase phase name.
func (p GraphPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMeasure:
		return "measure"
	case PhaseBuild:
		return "build"
	case PhaseLayout:
		return "layout"
	case PhaseStable:
		return "stable"
	case PhaseTimedOut:
		return "timed_out"
	case PhaseEmpty:
		return "empty"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// Config
// =============================================================================

// DefaultFrameInterval is the length of one rendering tick.
const DefaultFrameInterval = 33 * time.Millisecond

// minGraphWidth is used when the pane measures zero columns.
const minGraphWidth = 40

// GraphConfig configures the graph pane.
type GraphConfig struct {
	// MinHeight is forced when the pane measures zero rows.
	MinHeight int

	// Labels draws node labels.
	Labels bool

	// Timeout bounds the wait for stabilization.
	Timeout time.Duration

	// FrameInterval is the rendering tick.
	FrameInterval time.Duration
}

func (c GraphConfig) withDefaults() GraphConfig {
	if c.MinHeight <= 0 {
		c.MinHeight = 20
	}
	c.Timeout = util.EnforceDefaultTimeout(c.Timeout, util.DefaultLayoutTimeout)
	c.FrameInterval = util.EnforceDefaultTimeout(c.FrameInterval, DefaultFrameInterval)
	return c
}

// layoutRun owns one running simulation. Copies of the pane share it.
type layoutRun struct {
	layout graph.Layout
	stop   chan struct{}
	once   sync.Once
}

func (r *layoutRun) halt() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		close(r.stop)
		r.layout.Stop()
	})
}

// =============================================================================
// Model
// =============================================================================

// GraphPane renders the call graph.
//
// # Description
//
// Loading a snapshot starts a two-tick pipeline. The first frame
// measures the pane and forces MinHeight when it has no rows; the second
// builds the index and starts the layout engine. The engine's
// stabilization signal then races a timeout. Stabilization fits the
// viewport and attaches the zoom controls; the timeout keeps the partial
// layout and reports a TimeoutWarning with a reload key. Any engine
// failure or panic during construction becomes a RenderError shown in
// place of the canvas.
//
// Every pipeline message carries the load generation, so messages from
// a replaced snapshot are ignored.
type GraphPane struct {
	cfg     GraphConfig
	engine  graph.Engine
	logger  *logging.Logger
	metrics *telemetry.Metrics

	width, height int

	gen       uint64
	phase     GraphPhase
	snap      *results.Snapshot
	ix        *graph.Index
	run       *layoutRun
	positions []graph.Point
	vp        graph.Viewport
	severity  map[string]results.Severity
	hover     int
	selected  map[string]bool
	controls  bool

	err     error
	warning error
}

// NewGraphPane creates an idle graph pane.
func NewGraphPane(engine graph.Engine, cfg GraphConfig, logger *logging.Logger, metrics *telemetry.Metrics) GraphPane {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = telemetry.DefaultMetrics()
	}
	return GraphPane{
		cfg:     cfg.withDefaults(),
		engine:  engine,
		logger:  logger.With("component", "graph"),
		metrics: metrics,
		hover:   -1,
	}
}

// SetSize sets the pane size in cells, header line included.
func (p GraphPane) SetSize(width, height int) GraphPane {
	p.width, p.height = width, height
	if p.ix != nil {
		p.vp.Cols, p.vp.Rows = p.canvasSize()
	}
	return p
}

// Load replaces the displayed snapshot and starts the render pipeline.
// A nil snapshot clears the pane.
func (p GraphPane) Load(snap *results.Snapshot) (GraphPane, tea.Cmd) {
	p.run.halt()
	p.gen++
	p.snap = snap
	p.run = nil
	p.ix = nil
	p.positions = nil
	p.severity = nil
	p.hover = -1
	p.selected = nil
	p.controls = false
	p.err = nil
	p.warning = nil

	if snap == nil || snap.Results == nil {
		p.snap = nil
		p.phase = PhaseIdle
		return p, nil
	}
	if len(snap.Results.Graph.Nodes) == 0 {
		p.phase = PhaseEmpty
		return p, nil
	}
	p.phase = PhaseMeasure
	return p, frameCmd(p.cfg.FrameInterval, measureMsg{gen: p.gen})
}

// Close stops any running simulation.
func (p GraphPane) Close() {
	p.run.halt()
}

// Update handles pipeline messages, file selection and keys.
func (p GraphPane) Update(msg tea.Msg) (GraphPane, tea.Cmd) {
	switch msg := msg.(type) {
	case measureMsg:
		if msg.gen != p.gen || p.phase != PhaseMeasure {
			return p, nil
		}
		if p.height <= 1 {
			p.logger.Debug("graph pane has no height, forcing minimum", "min_height", p.cfg.MinHeight)
			p.height = p.cfg.MinHeight
		}
		if p.width <= 0 {
			p.width = minGraphWidth
		}
		p.phase = PhaseBuild
		return p, frameCmd(p.cfg.FrameInterval, buildMsg{gen: p.gen})

	case buildMsg:
		if msg.gen != p.gen || p.phase != PhaseBuild {
			return p, nil
		}
		return p.build()

	case stabilizedMsg:
		if msg.gen != p.gen || (p.phase != PhaseLayout && p.phase != PhaseTimedOut) {
			return p, nil
		}
		outcome := "stabilized"
		if p.phase == PhaseTimedOut {
			outcome = "stabilized_late"
		}
		p.positions = p.run.layout.Positions()
		p.vp = p.vp.Fit(p.fitTarget())
		p.phase = PhaseStable
		p.controls = true
		p.warning = nil
		p.record(outcome)
		p.logger.Info("layout stabilized", "nodes", p.ix.Len(), "outcome", outcome)
		return p, nil

	case layoutTimeout:
		if msg.gen != p.gen || p.phase != PhaseLayout {
			return p, nil
		}
		p.positions = p.run.layout.Positions()
		p.vp = p.vp.Fit(p.fitTarget())
		p.phase = PhaseTimedOut
		p.warning = &util.TimeoutWarning{Nodes: p.ix.Len(), Elapsed: msg.elapsed.String()}
		p.record("timeout")
		p.logger.Warn("layout did not stabilize", "nodes", p.ix.Len(), "timeout", msg.elapsed)
		return p, nil

	case frameMsg:
		if msg.gen != p.gen || (p.phase != PhaseLayout && p.phase != PhaseTimedOut) {
			return p, nil
		}
		p.positions = p.run.layout.Positions()
		if p.phase == PhaseLayout {
			p.vp = p.vp.Fit(p.fitTarget())
		}
		return p, frameCmd(p.cfg.FrameInterval, frameMsg{gen: p.gen})

	case FileSelectedMsg:
		return p.SelectFile(msg.Path), nil

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return p, nil
}

func (p GraphPane) build() (GraphPane, tea.Cmd) {
	p.ix = graph.BuildIndex(p.snap.Results.Graph)
	if p.ix.Dropped() > 0 {
		p.logger.Debug("dropped dangling edges", "count", p.ix.Dropped())
	}
	if p.ix.Len() == 0 {
		p.phase = PhaseEmpty
		return p, nil
	}
	p.severity = p.snap.Results.WorstSeverity()

	cols, rows := p.canvasSize()
	areaW, areaH := float64(cols*graph.CellWidth), float64(rows*graph.CellHeight)
	p.vp = graph.NewViewport(cols, rows, graph.Point{X: areaW / 2, Y: areaH / 2})

	lay, err := p.startEngine(areaW, areaH)
	if err != nil {
		p.phase = PhaseFailed
		p.err = &util.RenderError{Stage: "construction", Wrapped: err}
		p.record("error")
		p.logger.Error("graph construction failed", "error", err)
		return p, nil
	}

	run := &layoutRun{layout: lay, stop: make(chan struct{})}
	p.run = run
	p.positions = lay.Positions()
	p.phase = PhaseLayout
	gen := p.gen
	p.logger.Debug("layout started", "nodes", p.ix.Len(), "edges", len(p.ix.Edges()), "cols", cols, "rows", rows)

	return p, tea.Batch(
		waitStabilized(run, gen),
		frameCmd(p.cfg.Timeout, layoutTimeout{gen: gen, elapsed: p.cfg.Timeout}),
		frameCmd(p.cfg.FrameInterval, frameMsg{gen: gen}),
	)
}

// startEngine starts the layout, converting a panic into an error.
func (p GraphPane) startEngine(width, height float64) (lay graph.Layout, err error) {
	if p.engine == nil {
		return nil, errors.New("layout engine unavailable")
	}
	defer util.RecoverPanic(func(r util.PanicResult) {
		p.logger.Error("layout engine panicked", "panic", r.Value, "stack", r.Stack)
		lay, err = nil, r.Err()
	})()

	lay, err = p.engine.Start(p.ix, width, height)
	if err == nil && lay == nil {
		err = errors.New("layout engine returned no layout")
	}
	return lay, err
}

func waitStabilized(run *layoutRun, gen uint64) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-run.layout.Stabilized():
			return stabilizedMsg{gen: gen}
		case <-run.stop:
			return nil
		}
	}
}

func (p GraphPane) record(outcome string) {
	p.metrics.LayoutsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (p GraphPane) canvasSize() (cols, rows int) {
	return p.width, p.height - 1
}

// =============================================================================
// Interaction
// =============================================================================

func (p GraphPane) interactive() bool {
	return p.ix != nil && (p.phase == PhaseLayout || p.phase == PhaseStable || p.phase == PhaseTimedOut)
}

func (p GraphPane) handleKey(msg tea.KeyMsg) (GraphPane, tea.Cmd) {
	if p.phase == PhaseTimedOut && msg.String() == "r" {
		p.logger.Info("reloading graph after timeout")
		return p.Load(p.snap)
	}
	if !p.interactive() {
		return p, nil
	}

	switch msg.String() {
	case "n", "right", "l":
		p.hover = (p.hover + 1) % p.ix.Len()
	case "p", "left", "h":
		if p.hover <= 0 {
			p.hover = p.ix.Len() - 1
		} else {
			p.hover--
		}
	case "enter":
		if id := p.Hover(); id != "" {
			return p, emit(InspectMsg{NodeID: id})
		}
	case "esc":
		p.hover = -1
		p.selected = nil
	case "+", "=":
		if p.controls {
			p.vp = p.vp.ZoomIn()
		}
	case "-", "_":
		if p.controls {
			p.vp = p.vp.ZoomOut()
		}
	case "0":
		if p.controls {
			p.vp = p.vp.Reset()
		}
	case "f":
		if p.controls {
			p.vp = p.vp.Fit(p.positions)
		}
	}
	return p, nil
}

// SelectFile selects exactly the nodes whose file equals path and fits
// the viewport to them. A path with no nodes clears the selection.
func (p GraphPane) SelectFile(path string) GraphPane {
	if p.ix == nil {
		return p
	}
	ids := p.ix.NodesInFile(path)
	p.selected = make(map[string]bool, len(ids))
	for _, id := range ids {
		p.selected[id] = true
	}
	if len(ids) > 0 {
		p.vp = p.vp.Fit(p.fitTarget())
	}
	p.logger.Debug("file selected", "path", path, "nodes", len(ids))
	return p
}

// fitTarget returns the positions of the selected nodes, or of every
// node when nothing is selected.
func (p GraphPane) fitTarget() []graph.Point {
	if len(p.selected) == 0 || p.ix == nil {
		return p.positions
	}
	pts := make([]graph.Point, 0, len(p.selected))
	for id := range p.selected {
		if i := p.ix.Position(id); i >= 0 && i < len(p.positions) {
			pts = append(pts, p.positions[i])
		}
	}
	return pts
}

// =============================================================================
// Accessors
// =============================================================================

// Phase returns the pipeline phase.
func (p GraphPane) Phase() GraphPhase { return p.phase }

// Err returns the RenderError of a failed construction.
func (p GraphPane) Err() error { return p.err }

// Warning returns the TimeoutWarning of a timed out layout.
func (p GraphPane) Warning() error { return p.warning }

// Height returns the pane height, including a forced minimum.
func (p GraphPane) Height() int { return p.height }

// Viewport returns the current viewport.
func (p GraphPane) Viewport() graph.Viewport { return p.vp }

// Index returns the graph index, or nil before the build phase.
func (p GraphPane) Index() *graph.Index { return p.ix }

// Hover returns the focused node id.
func (p GraphPane) Hover() string {
	if p.ix == nil || p.hover < 0 || p.hover >= p.ix.Len() {
		return ""
	}
	return p.ix.Nodes()[p.hover].ID
}

// Highlighted returns the direct neighbors of the focused node.
func (p GraphPane) Highlighted() []string {
	id := p.Hover()
	if id == "" {
		return nil
	}
	return p.ix.Neighbors(id)
}

// Selected returns the selected node ids, sorted.
func (p GraphPane) Selected() []string {
	ids := make([]string, 0, len(p.selected))
	for id := range p.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// View
// =============================================================================

// View renders the status line and the canvas.
func (p GraphPane) View() string {
	var b strings.Builder
	b.WriteString(p.statusLine())

	switch p.phase {
	case PhaseFailed:
		b.WriteString("\n")
		b.WriteString(ux.Styles.ErrorBox.Render(p.err.Error() + "\nThe rest of the screen keeps working."))
		return b.String()
	case PhaseLayout, PhaseStable, PhaseTimedOut:
		b.WriteString("\n")
		b.WriteString(graph.Render(p.ix, p.positions, p.vp, graph.CanvasOptions{
			Hover:    p.Hover(),
			Selected: p.selected,
			Severity: p.severity,
			Labels:   p.cfg.Labels,
		}))
	}
	return b.String()
}

func (p GraphPane) statusLine() string {
	switch p.phase {
	case PhaseIdle:
		return ux.Styles.Muted.Render("No analysis loaded.")
	case PhaseMeasure, PhaseBuild:
		return ux.Styles.Subtitle.Render("Preparing graph...")
	case PhaseLayout:
		return ux.Styles.Subtitle.Render(fmt.Sprintf("Stabilizing layout of %d functions...", p.ix.Len()))
	case PhaseStable:
		line := fmt.Sprintf("%d functions · %d calls · zoom %.2fx", p.ix.Len(), len(p.ix.Edges()), p.vp.Scale)
		if id := p.Hover(); id != "" {
			line += " · " + ux.Styles.Highlight.Render(graph.SymbolName(id))
		}
		return ux.Styles.Muted.Render(line)
	case PhaseTimedOut:
		return ux.Styles.Warning.Render(string(ux.IconWarning) + " " + p.warning.Error() + ". Showing partial layout; press r to reload.")
	case PhaseEmpty:
		return ux.Styles.Muted.Render("No functions to display.")
	case PhaseFailed:
		return ux.Styles.Error.Render(string(ux.IconError) + " Graph unavailable")
	default:
		return ""
	}
}
