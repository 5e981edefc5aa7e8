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
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/pkg/ux"
)

type treeRow struct {
	depth  int
	name   string
	path   string
	folder bool
}

// TreePane lists the project files as an indented tree. Activating a
// file row selects its nodes in the graph; folder rows are inert.
type TreePane struct {
	rows   []treeRow
	cursor int
	offset int
	width  int
	height int
}

// NewTreePane creates an empty tree pane.
func NewTreePane() TreePane {
	return TreePane{}
}

// Load flattens tree into rows.
func (t TreePane) Load(tree []results.FileTreeNode) TreePane {
	t.rows = t.rows[:0:0]
	t.cursor, t.offset = 0, 0
	var walk func(nodes []results.FileTreeNode, ancestors []string)
	walk = func(nodes []results.FileTreeNode, ancestors []string) {
		for _, n := range nodes {
			t.rows = append(t.rows, treeRow{
				depth:  len(ancestors),
				name:   n.Name,
				path:   results.TreePath(ancestors, n),
				folder: n.IsFolder(),
			})
			if n.IsFolder() {
				walk(n.Children, append(append([]string{}, ancestors...), n.Name))
			}
		}
	}
	walk(tree, nil)
	return t
}

// SetSize sets the pane size in cells.
func (t TreePane) SetSize(width, height int) TreePane {
	t.width, t.height = width, height
	return t.scroll()
}

// Update handles j/k movement and Enter.
func (t TreePane) Update(msg tea.Msg) (TreePane, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || len(t.rows) == 0 {
		return t, nil
	}
	switch key.String() {
	case "j", "down":
		if t.cursor < len(t.rows)-1 {
			t.cursor++
		}
	case "k", "up":
		if t.cursor > 0 {
			t.cursor--
		}
	case "g", "home":
		t.cursor = 0
	case "G", "end":
		t.cursor = len(t.rows) - 1
	case "enter":
		return t, t.activate()
	}
	return t.scroll(), nil
}

func (t TreePane) activate() tea.Cmd {
	row := t.rows[t.cursor]
	if row.folder || row.path == "" {
		return nil
	}
	return emit(FileSelectedMsg{Path: row.path})
}

func (t TreePane) scroll() TreePane {
	if t.height <= 0 {
		return t
	}
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+t.height {
		t.offset = t.cursor - t.height + 1
	}
	return t
}

// Cursor returns the path of the row under the cursor.
func (t TreePane) Cursor() string {
	if len(t.rows) == 0 {
		return ""
	}
	return t.rows[t.cursor].path
}

// Len returns the number of rows.
func (t TreePane) Len() int { return len(t.rows) }

// View renders the visible rows.
func (t TreePane) View() string {
	if len(t.rows) == 0 {
		return ux.Styles.Muted.Render("No files.")
	}
	end := len(t.rows)
	if t.height > 0 && t.offset+t.height < end {
		end = t.offset + t.height
	}

	lines := make([]string, 0, end-t.offset)
	for i := t.offset; i < end; i++ {
		row := t.rows[i]
		icon := ux.IconFile
		if row.folder {
			icon = ux.IconFolder
		}
		line := strings.Repeat("  ", row.depth) + string(icon) + " " + row.name
		if i == t.cursor {
			line = ux.Styles.Highlight.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
