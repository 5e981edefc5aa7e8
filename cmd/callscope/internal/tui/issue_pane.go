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
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// IssuePane lists the issues of one severity category at a time.
type IssuePane struct {
	issues   results.Issues
	category results.Severity
	list     []results.Issue
	cursor   int
	offset   int
	width    int
	height   int
}

// NewIssuePane creates an empty issue pane showing errors.
func NewIssuePane() IssuePane {
	return IssuePane{category: results.SeverityError}
}

// Load replaces the issues and keeps the current category.
func (p IssuePane) Load(issues results.Issues) IssuePane {
	p.issues = issues
	return p.SetCategory(p.category)
}

// SetCategory switches the displayed category, replacing the list.
func (p IssuePane) SetCategory(s results.Severity) IssuePane {
	p.category = s
	p.list = p.issues.Category(s)
	p.cursor, p.offset = 0, 0
	return p
}

// Category returns the displayed category.
func (p IssuePane) Category() results.Severity { return p.category }

// Items returns the displayed issues.
func (p IssuePane) Items() []results.Issue { return p.list }

// SetSize sets the pane size in cells.
func (p IssuePane) SetSize(width, height int) IssuePane {
	p.width, p.height = width, height
	return p.scroll()
}

// Update handles category keys, movement and Enter.
func (p IssuePane) Update(msg tea.Msg) (IssuePane, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "1":
		return p.SetCategory(results.SeverityError), nil
	case "2":
		return p.SetCategory(results.SeverityWarning), nil
	case "3":
		return p.SetCategory(results.SeverityInfo), nil
	}
	if len(p.list) == 0 {
		return p, nil
	}
	switch key.String() {
	case "j", "down":
		if p.cursor < len(p.list)-1 {
			p.cursor++
		}
	case "k", "up":
		if p.cursor > 0 {
			p.cursor--
		}
	case "enter":
		if id := p.list[p.cursor].NodeID(); id != "" {
			return p, emit(InspectMsg{NodeID: id})
		}
		return p, nil
	}
	return p.scroll(), nil
}

func (p IssuePane) scroll() IssuePane {
	rows := p.height - 1
	if rows <= 0 {
		return p
	}
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+rows {
		p.offset = p.cursor - rows + 1
	}
	return p
}

// View renders the category tabs and the visible issues.
func (p IssuePane) View() string {
	tabs := make([]string, 0, len(results.Severities))
	for i, s := range results.Severities {
		label := fmt.Sprintf("%d %s (%d)", i+1, s.Title(), len(p.issues.Category(s)))
		if s == p.category {
			tabs = append(tabs, ux.Styles.Highlight.Render("["+label+"]"))
		} else {
			tabs = append(tabs, ux.Styles.Muted.Render(" "+label+" "))
		}
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	if len(p.list) == 0 {
		return header + "\n" + ux.Styles.Muted.Render("No issues")
	}

	end := len(p.list)
	if rows := p.height - 1; rows > 0 && p.offset+rows < end {
		end = p.offset + rows
	}
	lines := []string{header}
	for i := p.offset; i < end; i++ {
		is := p.list[i]
		line := fmt.Sprintf("%s:%d %s", is.File, is.Line, is.Message)
		if is.Function != "" {
			line += " (" + is.Function + ")"
		}
		if p.width > 4 && len([]rune(line)) > p.width-2 {
			line = string([]rune(line)[:p.width-3]) + "…"
		}
		if i == p.cursor {
			lines = append(lines, ux.Styles.Highlight.Render("> "+line))
		} else {
			lines = append(lines, "  "+line)
		}
	}
	return strings.Join(lines, "\n")
}
