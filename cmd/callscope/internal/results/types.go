// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// =============================================================================
// Severity
// =============================================================================

// Severity is the closed set of issue severities.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Severities lists every severity in panel order.
var Severities = []Severity{SeverityError, SeverityWarning, SeverityInfo}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// Rank orders severities for "worst wins" comparisons. Higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Title is the panel heading for the category.
func (s Severity) Title() string {
	switch s {
	case SeverityError:
		return "Errors"
	case SeverityWarning:
		return "Warnings"
	case SeverityInfo:
		return "Info"
	default:
		return string(s)
	}
}

// =============================================================================
// Wire Types
// =============================================================================

// Results is the payload of GET /results/{job_id}.
type Results struct {
	Stats    Stats          `json:"stats"`
	FileTree []FileTreeNode `json:"file_tree"`
	Graph    Graph          `json:"graph"`
	Issues   Issues         `json:"issues"`
}

// Stats are the project counters computed by the service.
type Stats struct {
	TotalFiles     int `json:"total_files"`
	TotalFunctions int `json:"total_functions"`
	TotalClasses   int `json:"total_classes"`
	TotalIssues    int `json:"total_issues"`
	Errors         int `json:"errors"`
	Warnings       int `json:"warnings"`
	DeadCode       int `json:"dead_code"`
	Placeholders   int `json:"placeholders"`
}

// Node types in the file tree.
const (
	TreeFile   = "file"
	TreeFolder = "folder"
)

// FileTreeNode is one entry of the nested file tree.
type FileTreeNode struct {
	Name     string         `json:"name"`
	Path     string         `json:"path,omitempty"`
	Type     string         `json:"type"`
	Children []FileTreeNode `json:"children,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (n FileTreeNode) IsFolder() bool {
	return n.Type == TreeFolder
}

// Graph holds the call graph.
type Graph struct {
	Nodes []Node `json:"nodes" validate:"dive"`
	Edges []Edge `json:"edges" validate:"dive"`
}

// Node is one function in the call graph. ID is "<file>:<symbol>".
type Node struct {
	ID    string   `json:"id" validate:"required"`
	Label string   `json:"label"`
	Title string   `json:"title,omitempty"`
	Group string   `json:"group,omitempty"`
	Color string   `json:"color,omitempty"`
	Data  NodeData `json:"data"`
}

// NodeData carries the detail shown by the inspector.
type NodeData struct {
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Params      []string `json:"params"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
}

// Location renders "file:line".
func (n Node) Location() string {
	return fmt.Sprintf("%s:%d", n.Data.File, n.Data.Line)
}

// Edge is a directed call from caller to callee.
type Edge struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// Issues groups issues by severity.
type Issues struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Info     []Issue `json:"info"`
}

// Category returns the issues for one severity.
func (i Issues) Category(s Severity) []Issue {
	switch s {
	case SeverityError:
		return i.Errors
	case SeverityWarning:
		return i.Warnings
	case SeverityInfo:
		return i.Info
	default:
		return nil
	}
}

// Total counts issues across all categories.
func (i Issues) Total() int {
	return len(i.Errors) + len(i.Warnings) + len(i.Info)
}

// Issue is one finding reported by the service.
type Issue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Function string   `json:"function,omitempty"`
}

// NodeID reconstructs the graph node id the issue points at.
//
// Returns "" when the issue carries no file or no function.
func (i Issue) NodeID() string {
	if i.File == "" || i.Function == "" {
		return ""
	}
	return i.File + ":" + i.Function
}

// =============================================================================
// Decoding
// =============================================================================

// Decode parses a results payload.
//
// # Description
//
// The payload is decoded as-is; then each issue category is sorted by
// (file, line) with a stable sort so service order breaks ties. Only
// the decoded view is sorted; the raw bytes stay untouched.
//
// # Outputs
//
//   - *Results: The decoded results.
//   - error: Non-nil if the payload is not a JSON object of the expected
//     shape.
func Decode(raw []byte) (*Results, error) {
	var r Results
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	r.sortIssues()
	return &r, nil
}

func (r *Results) sortIssues() {
	for _, list := range [][]Issue{r.Issues.Errors, r.Issues.Warnings, r.Issues.Info} {
		sort.SliceStable(list, func(a, b int) bool {
			if list[a].File != list[b].File {
				return list[a].File < list[b].File
			}
			return list[a].Line < list[b].Line
		})
	}
}

// WorstSeverity maps node ids to the worst severity among the issues
// naming that node's function. Nodes without issues are absent.
func (r *Results) WorstSeverity() map[string]Severity {
	worst := make(map[string]Severity)
	for _, s := range Severities {
		for _, issue := range r.Issues.Category(s) {
			id := issue.NodeID()
			if id == "" {
				continue
			}
			sev := issue.Severity
			if !sev.Valid() {
				sev = s
			}
			if sev.Rank() > worst[id].Rank() {
				worst[id] = sev
			}
		}
	}
	return worst
}

// TreePath returns the file path a tree entry stands for, given the
// names of its ancestors.
//
// Names joined from the root reproduce the node file path exactly, so
// the joined form wins; the explicit path is the fallback when no
// names are available.
func TreePath(ancestors []string, n FileTreeNode) string {
	parts := append(append([]string{}, ancestors...), n.Name)
	joined := path.Join(parts...)
	if joined == "" || joined == "." {
		explicit := strings.TrimSpace(n.Path)
		if explicit == "" {
			return ""
		}
		return path.Clean(explicit)
	}
	return joined
}
