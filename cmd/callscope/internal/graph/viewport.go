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

import "math"

// Terminal cell size in layout pixels.
const (
	CellWidth  = 8
	CellHeight = 16
)

// Zoom bounds and step.
const (
	ZoomStep = 1.25
	MinScale = 0.02
	MaxScale = 8
)

// Viewport maps layout space onto a grid of terminal cells.
//
// Scale 1 shows layout pixels at their natural size: one cell covers
// CellWidth x CellHeight pixels.
type Viewport struct {
	Cols, Rows int
	Scale      float64
	Center     Point
}

// NewViewport creates a viewport of cols x rows cells at scale 1,
// centered on center.
func NewViewport(cols, rows int, center Point) Viewport {
	return Viewport{Cols: cols, Rows: rows, Scale: 1, Center: center}
}

// ZoomIn scales up by ZoomStep.
func (v Viewport) ZoomIn() Viewport {
	v.Scale = clampScale(v.Scale * ZoomStep)
	return v
}

// ZoomOut scales down by ZoomStep.
func (v Viewport) ZoomOut() Viewport {
	v.Scale = clampScale(v.Scale / ZoomStep)
	return v
}

// Reset sets the scale back to 1 and keeps the center.
func (v Viewport) Reset() Viewport {
	v.Scale = 1
	return v
}

// Fit centers pts and picks the largest scale that shows all of them
// with a one cell margin. An empty set leaves v unchanged; a single
// point is centered at scale 1.
func (v Viewport) Fit(pts []Point) Viewport {
	if len(pts) == 0 {
		return v
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	v.Center = Point{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}

	w, h := maxX-minX, maxY-minY
	availW := float64(v.Cols-2) * CellWidth
	availH := float64(v.Rows-2) * CellHeight
	if availW <= 0 || availH <= 0 {
		return v
	}

	scale := math.Inf(1)
	if w > 0 {
		scale = availW / w
	}
	if h > 0 {
		scale = math.Min(scale, availH/h)
	}
	if math.IsInf(scale, 1) {
		scale = 1
	}
	v.Scale = clampScale(scale)
	return v
}

// Project returns the cell of p and whether it lies inside the grid.
func (v Viewport) Project(p Point) (col, row int, ok bool) {
	col = int(math.Floor((p.X-v.Center.X)*v.Scale/CellWidth + float64(v.Cols)/2))
	row = int(math.Floor((p.Y-v.Center.Y)*v.Scale/CellHeight + float64(v.Rows)/2))
	ok = col >= 0 && col < v.Cols && row >= 0 && row < v.Rows
	return col, row, ok
}

func clampScale(s float64) float64 {
	return math.Max(MinScale, math.Min(MaxScale, s))
}
