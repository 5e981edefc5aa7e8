// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
)

func node(id, file string) results.Node {
	return results.Node{ID: id, Label: SymbolName(id), Data: results.NodeData{File: file}}
}

func sampleGraph() results.Graph {
	return results.Graph{
		Nodes: []results.Node{
			node("a.py:main", "a.py"),
			node("a.py:helper", "a.py"),
			node("b.py:util", "b.py"),
		},
		Edges: []results.Edge{
			{From: "a.py:main", To: "a.py:helper"},
			{From: "a.py:main", To: "b.py:util"},
			{From: "b.py:util", To: "a.py:main"},
		},
	}
}

// =============================================================================
// Index
// =============================================================================

func TestBuildIndex_DuplicateNodeLastWins(t *testing.T) {
	g := results.Graph{Nodes: []results.Node{
		{ID: "a.py:f", Label: "first", Data: results.NodeData{File: "a.py"}},
		{ID: "b.py:g", Label: "g", Data: results.NodeData{File: "b.py"}},
		{ID: "a.py:f", Label: "second", Data: results.NodeData{File: "moved.py"}},
	}}
	ix := BuildIndex(g)

	require.Equal(t, 2, ix.Len())
	n, ok := ix.Node("a.py:f")
	require.True(t, ok)
	assert.Equal(t, "second", n.Label)
	assert.Equal(t, 0, ix.Position("a.py:f"), "survivor keeps the first slot")

	assert.Empty(t, ix.NodesInFile("a.py"))
	assert.Equal(t, []string{"a.py:f"}, ix.NodesInFile("moved.py"))
}

func TestBuildIndex_Edges(t *testing.T) {
	g := sampleGraph()
	g.Edges = append(g.Edges,
		results.Edge{From: "a.py:main", To: "a.py:helper"},
		results.Edge{From: "a.py:main", To: "ghost.py:x"},
		results.Edge{From: "ghost.py:y", To: "a.py:main"},
	)
	ix := BuildIndex(g)

	assert.Len(t, ix.Edges(), 3)
	assert.Equal(t, 2, ix.Dropped())
	assert.Equal(t, []string{"a.py:helper", "b.py:util"}, ix.Outgoing("a.py:main"))
}

func TestIndex_Neighbors(t *testing.T) {
	ix := BuildIndex(sampleGraph())

	assert.Equal(t, []string{"a.py:helper", "b.py:util"}, ix.Neighbors("a.py:main"))
	assert.Equal(t, []string{"a.py:main"}, ix.Neighbors("b.py:util"), "both directions aggregate to one entry")
	assert.Equal(t, []string{"a.py:main"}, ix.Neighbors("a.py:helper"))
	assert.Empty(t, ix.Neighbors("missing"))
}

func TestIndex_SelfLoopNotOwnNeighbor(t *testing.T) {
	ix := BuildIndex(results.Graph{
		Nodes: []results.Node{node("a.py:rec", "a.py")},
		Edges: []results.Edge{{From: "a.py:rec", To: "a.py:rec"}},
	})
	assert.Empty(t, ix.Neighbors("a.py:rec"))
	assert.Len(t, ix.Edges(), 1)
}

func TestIndex_NodesInFileExactMatch(t *testing.T) {
	g := sampleGraph()
	g.Nodes = append(g.Nodes, node("a.pyc:x", "a.pyc"), node("src/a.py:y", "src/a.py"))
	ix := BuildIndex(g)

	assert.Equal(t, []string{"a.py:main", "a.py:helper"}, ix.NodesInFile("a.py"))
	assert.Empty(t, ix.NodesInFile("nope.py"))
}

func TestIndex_Empty(t *testing.T) {
	ix := BuildIndex(results.Graph{})
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, -1, ix.Position("x"))
	_, ok := ix.Node("x")
	assert.False(t, ok)
}

func TestSymbolName(t *testing.T) {
	assert.Equal(t, "main", SymbolName("pkg/a.py:main"))
	assert.Equal(t, "m", SymbolName("c:/x.py:Class:m"))
	assert.Equal(t, "plain", SymbolName("plain"))
	assert.Equal(t, "", SymbolName("a.py:"))
}

// =============================================================================
// Layout
// =============================================================================

func TestLayoutConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultLayoutConfig().Validate())

	bad := []func(*LayoutConfig){
		func(c *LayoutConfig) { c.Repulsion = -1 },
		func(c *LayoutConfig) { c.SpringLength = 0 },
		func(c *LayoutConfig) { c.SpringConstant = -0.1 },
		func(c *LayoutConfig) { c.Damping = 1 },
		func(c *LayoutConfig) { c.MaxIterations = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultLayoutConfig()
		mutate(&cfg)
		assert.True(t, errors.Is(cfg.Validate(), ErrInvalidLayout), "case %d", i)
	}
}

func TestForceEngine_Stabilizes(t *testing.T) {
	ix := BuildIndex(sampleGraph())
	cfg := DefaultLayoutConfig()
	cfg.MaxIterations = 300

	lay, err := NewForceEngine(cfg).Start(ix, 800, 600)
	require.NoError(t, err)
	defer lay.Stop()

	select {
	case <-lay.Stabilized():
	case <-time.After(5 * time.Second):
		t.Fatal("layout did not stabilize")
	}

	pos := lay.Positions()
	require.Len(t, pos, 3)
	for _, p := range pos {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
	}
	assert.NotEqual(t, pos[0], pos[1])
}

func TestForceEngine_StopBeforeStabilization(t *testing.T) {
	cfg := DefaultLayoutConfig()
	cfg.MinVelocity = 0
	cfg.StepDelay = 10 * time.Millisecond

	lay, err := NewForceEngine(cfg).Start(BuildIndex(sampleGraph()), 800, 600)
	require.NoError(t, err)

	lay.Stop()
	lay.Stop()

	select {
	case <-lay.Stabilized():
		t.Fatal("stopped layout must not report stabilization")
	default:
	}
}

func TestForceEngine_Rejects(t *testing.T) {
	_, err := NewForceEngine(DefaultLayoutConfig()).Start(BuildIndex(sampleGraph()), 800, 0)
	assert.True(t, errors.Is(err, ErrInvalidLayout))

	cfg := DefaultLayoutConfig()
	cfg.Damping = 0
	_, err = NewForceEngine(cfg).Start(BuildIndex(sampleGraph()), 800, 600)
	assert.True(t, errors.Is(err, ErrInvalidLayout))
}

func TestSeedCircle(t *testing.T) {
	assert.Empty(t, seedCircle(0, 100, 100))
	assert.Equal(t, []Point{{50, 50}}, seedCircle(1, 100, 100))

	pts := seedCircle(4, 300, 300)
	for _, p := range pts {
		assert.InDelta(t, 100, math.Hypot(p.X-150, p.Y-150), 1e-9)
	}
}

// =============================================================================
// Viewport
// =============================================================================

func TestViewport_Zoom(t *testing.T) {
	v := NewViewport(80, 24, Point{})
	assert.InDelta(t, 1.25, v.ZoomIn().Scale, 1e-9)
	assert.InDelta(t, 0.8, v.ZoomOut().Scale, 1e-9)
	assert.InDelta(t, 1, v.ZoomIn().ZoomIn().Reset().Scale, 1e-9)

	for i := 0; i < 100; i++ {
		v = v.ZoomIn()
	}
	assert.Equal(t, float64(MaxScale), v.Scale)
}

func TestViewport_FitContainsAllPoints(t *testing.T) {
	pts := []Point{{-500, -200}, {900, 40}, {100, 1300}}
	v := NewViewport(80, 24, Point{}).Fit(pts)

	for _, p := range pts {
		_, _, ok := v.Project(p)
		assert.True(t, ok, "point %v outside fitted viewport", p)
	}
	assert.Equal(t, Point{X: 200, Y: 550}, v.Center)
}

func TestViewport_FitSinglePoint(t *testing.T) {
	v := NewViewport(80, 24, Point{}).ZoomIn().Fit([]Point{{10, 20}})
	assert.Equal(t, 1.0, v.Scale)
	col, row, ok := v.Project(Point{10, 20})
	assert.True(t, ok)
	assert.Equal(t, 40, col)
	assert.Equal(t, 12, row)
}

func TestViewport_FitEmpty(t *testing.T) {
	v := NewViewport(80, 24, Point{3, 4})
	assert.Equal(t, v, v.Fit(nil))
}

// =============================================================================
// Canvas
// =============================================================================

func TestRender_DrawsNodesAndEdges(t *testing.T) {
	g := results.Graph{
		Nodes: []results.Node{node("a.py:main", "a.py"), node("a.py:helper", "a.py")},
		Edges: []results.Edge{{From: "a.py:main", To: "a.py:helper"}},
	}
	ix := BuildIndex(g)
	pos := []Point{{0, 0}, {400, 0}}
	vp := NewViewport(80, 10, Point{}).Fit(pos)

	out := Render(ix, pos, vp, CanvasOptions{Labels: true})
	assert.Len(t, strings.Split(out, "\n"), 10)
	assert.Equal(t, 2, strings.Count(out, string(NodeGlyph)))
	assert.Contains(t, out, string(EdgeGlyph))
	assert.Contains(t, out, "main")
}

func TestRender_ClipsOffscreen(t *testing.T) {
	ix := BuildIndex(results.Graph{Nodes: []results.Node{node("a.py:main", "a.py")}})
	vp := NewViewport(20, 5, Point{})

	out := Render(ix, []Point{{100000, 0}}, vp, CanvasOptions{})
	assert.NotContains(t, out, string(NodeGlyph))
}

func TestRender_Degenerate(t *testing.T) {
	ix := BuildIndex(sampleGraph())
	assert.Empty(t, Render(ix, nil, Viewport{}, CanvasOptions{}))

	out := Render(ix, nil, NewViewport(10, 2, Point{}), CanvasOptions{})
	assert.Equal(t, "          \n          ", out)
}

func TestLine(t *testing.T) {
	var cells [][2]int
	line(0, 0, 3, 1, func(c, r int) { cells = append(cells, [2]int{c, r}) })
	assert.Equal(t, [2]int{0, 0}, cells[0])
	assert.Equal(t, [2]int{3, 1}, cells[len(cells)-1])
	assert.Len(t, cells, 4)
}
