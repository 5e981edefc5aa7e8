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
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// Glyphs used on the canvas.
const (
	NodeGlyph = '●'
	EdgeGlyph = '·'
)

// maxLabel bounds the label drawn next to a node.
const maxLabel = 24

type paint uint8

const (
	paintNone paint = iota
	paintEdge
	paintOK
	paintInfo
	paintWarning
	paintError
)

type mark uint8

const (
	markNone mark = iota
	markNeighbor
	markSelected
	markHover
)

type cell struct {
	r     rune
	paint paint
	mark  mark
}

type styleKey struct {
	paint paint
	mark  mark
}

// CanvasOptions controls what the canvas highlights.
type CanvasOptions struct {
	// Hover is the focused node; its neighbors are highlighted too.
	Hover string

	// Selected marks nodes picked by the file filter.
	Selected map[string]bool

	// Severity colors nodes by their worst issue. Missing means ok.
	Severity map[string]results.Severity

	// Labels draws node labels beside the glyphs.
	Labels bool
}

// Render draws the graph into a Cols x Rows block of styled text.
//
// # Description
//
// Edges are drawn first as dotted lines, then nodes on top, then labels
// into the cells they do not cover. Off-grid parts are clipped.
//
// # Inputs
//
//   - ix: The indexed graph.
//   - pos: Node positions, indexed like ix.Nodes.
//   - vp: The viewport.
//   - opts: Highlight and color settings.
func Render(ix *Index, pos []Point, vp Viewport, opts CanvasOptions) string {
	if vp.Cols <= 0 || vp.Rows <= 0 {
		return ""
	}
	grid := make([][]cell, vp.Rows)
	for r := range grid {
		grid[r] = make([]cell, vp.Cols)
		for c := range grid[r] {
			grid[r][c].r = ' '
		}
	}

	nodes := ix.Nodes()
	if len(pos) < len(nodes) {
		return renderGrid(grid)
	}

	for _, e := range ix.Edges() {
		a, b := pos[ix.Position(e.From)], pos[ix.Position(e.To)]
		c0, r0, _ := vp.Project(a)
		c1, r1, _ := vp.Project(b)
		line(c0, r0, c1, r1, func(c, r int) {
			if r >= 0 && r < vp.Rows && c >= 0 && c < vp.Cols {
				grid[r][c] = cell{r: EdgeGlyph, paint: paintEdge}
			}
		})
	}

	neighbors := make(map[string]bool)
	if opts.Hover != "" {
		for _, id := range ix.Neighbors(opts.Hover) {
			neighbors[id] = true
		}
	}

	type placed struct {
		col, row int
		node     results.Node
		cell     cell
	}
	var drawn []placed
	for i, n := range nodes {
		c, r, ok := vp.Project(pos[i])
		if !ok {
			continue
		}
		cl := cell{r: NodeGlyph, paint: severityPaint(opts.Severity[n.ID])}
		switch {
		case n.ID == opts.Hover:
			cl.mark = markHover
		case opts.Selected[n.ID]:
			cl.mark = markSelected
		case neighbors[n.ID]:
			cl.mark = markNeighbor
		}
		grid[r][c] = cl
		drawn = append(drawn, placed{c, r, n, cl})
	}

	if opts.Labels {
		for _, p := range drawn {
			label := p.node.Label
			if label == "" {
				label = SymbolName(p.node.ID)
			}
			if len([]rune(label)) > maxLabel {
				label = string([]rune(label)[:maxLabel-1]) + "…"
			}
			c := p.col + 2
			for _, ch := range label {
				if c >= vp.Cols || grid[p.row][c].r == NodeGlyph {
					break
				}
				grid[p.row][c] = cell{r: ch, paint: p.cell.paint, mark: p.cell.mark}
				c++
			}
		}
	}
	return renderGrid(grid)
}

func severityPaint(s results.Severity) paint {
	switch s {
	case results.SeverityError:
		return paintError
	case results.SeverityWarning:
		return paintWarning
	case results.SeverityInfo:
		return paintInfo
	default:
		return paintOK
	}
}

// line walks the cells between two points with Bresenham's algorithm.
func line(c0, r0, c1, r1 int, plot func(c, r int)) {
	dc, dr := abs(c1-c0), -abs(r1-r0)
	sc, sr := 1, 1
	if c0 > c1 {
		sc = -1
	}
	if r0 > r1 {
		sr = -1
	}
	err := dc + dr
	for {
		plot(c0, r0)
		if c0 == c1 && r0 == r1 {
			return
		}
		e2 := 2 * err
		if e2 >= dr {
			err += dr
			c0 += sc
		}
		if e2 <= dc {
			err += dc
			r0 += sr
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// =============================================================================
// Styling
// =============================================================================

var paintColors = map[paint]lipgloss.Color{
	paintEdge:    ux.ColorEdge,
	paintOK:      ux.ColorSeverityOK,
	paintInfo:    ux.ColorSeverityInfo,
	paintWarning: ux.ColorSeverityWarning,
	paintError:   ux.ColorSeverityError,
}

func cellStyle(k styleKey) lipgloss.Style {
	s := lipgloss.NewStyle().Foreground(paintColors[k.paint])
	switch k.mark {
	case markHover:
		s = s.Reverse(true).Bold(true)
	case markSelected:
		s = s.Bold(true).Underline(true)
	case markNeighbor:
		s = s.Bold(true)
	}
	return s
}

// renderGrid joins runs of equally styled cells into styled segments.
func renderGrid(grid [][]cell) string {
	styles := make(map[styleKey]lipgloss.Style)
	var b strings.Builder
	for r, row := range grid {
		if r > 0 {
			b.WriteByte('\n')
		}
		var run []rune
		var key styleKey
		flush := func() {
			if len(run) == 0 {
				return
			}
			if key.paint == paintNone {
				b.WriteString(string(run))
			} else {
				st, ok := styles[key]
				if !ok {
					st = cellStyle(key)
					styles[key] = st
				}
				b.WriteString(st.Render(string(run)))
			}
			run = run[:0]
		}
		for _, c := range row {
			k := styleKey{c.paint, c.mark}
			if k != key {
				flush()
				key = k
			}
			run = append(run, c.r)
		}
		flush()
	}
	return b.String()
}
