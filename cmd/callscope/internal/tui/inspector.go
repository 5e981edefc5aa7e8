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

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/graph"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/pkg/ux"
)

// DefaultDetailCacheSize bounds the number of rendered details kept.
const DefaultDetailCacheSize = 128

// NoParameters is shown when a node takes no parameters.
const NoParameters = "(none)"

type detailKey struct {
	generation uint64
	id         string
}

// Inspector renders the full detail of one node.
//
// # Description
//
// Open looks the id up in the store's current snapshot. An unknown id
// leaves the inspector unchanged. Rendered details are cached per
// (snapshot generation, node id) so reopening a node after a new job
// never shows stale text.
//
// # Thread Safety
//
// Not safe for concurrent use; owned by the bubbletea loop.
type Inspector struct {
	store *results.Store
	cache *lru.Cache[detailKey, string]
	view  viewport.Model

	open   bool
	nodeID string
}

// NewInspector creates a closed inspector reading from store.
func NewInspector(store *results.Store) Inspector {
	cache, err := lru.New[detailKey, string](DefaultDetailCacheSize)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return Inspector{
		store: store,
		cache: cache,
		view:  viewport.New(0, 0),
	}
}

// SetSize sets the pane size in cells.
func (in Inspector) SetSize(width, height int) Inspector {
	in.view.Width = width
	in.view.Height = height
	return in
}

// Open shows the node with the given id.
//
// # Outputs
//
//   - Inspector: The updated inspector. Unchanged when the id is unknown.
//   - bool: True if the node was found.
func (in Inspector) Open(id string) (Inspector, bool) {
	snap := in.store.Snapshot()
	node, ok := snap.Node(id)
	if !ok {
		return in, false
	}

	key := detailKey{generation: snap.Generation, id: id}
	body, hit := in.cache.Get(key)
	if !hit {
		body = renderDetail(node, snap.Outgoing(id))
		in.cache.Add(key, body)
	}

	in.open = true
	in.nodeID = id
	in.view.SetContent(body)
	in.view.GotoTop()
	return in, true
}

// Close hides the inspector.
func (in Inspector) Close() Inspector {
	in.open = false
	in.nodeID = ""
	return in
}

// IsOpen reports whether a node is displayed.
func (in Inspector) IsOpen() bool { return in.open }

// NodeID returns the displayed node id, or "".
func (in Inspector) NodeID() string { return in.nodeID }

// Update scrolls the detail and closes on Esc.
func (in Inspector) Update(msg tea.Msg) (Inspector, tea.Cmd) {
	if !in.open {
		return in, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		return in.Close(), nil
	}
	var cmd tea.Cmd
	in.view, cmd = in.view.Update(msg)
	return in, cmd
}

// View renders the detail, or a hint when closed.
func (in Inspector) View() string {
	if !in.open {
		return ux.Styles.Muted.Render("Select a function to inspect it.")
	}
	return in.view.View()
}

// CalleeNames returns the symbol names of the callees of edges.
func CalleeNames(edges []results.Edge) []string {
	names := make([]string, 0, len(edges))
	for _, e := range edges {
		names = append(names, graph.SymbolName(e.To))
	}
	return names
}

func renderDetail(n results.Node, outgoing []results.Edge) string {
	var b strings.Builder

	label := n.Label
	if label == "" {
		label = graph.SymbolName(n.ID)
	}
	b.WriteString(ux.Styles.Title.Render(label))
	b.WriteString("\n")
	b.WriteString(ux.Styles.Muted.Render(n.Location()))
	b.WriteString("\n\n")

	section := func(title string) {
		b.WriteString(ux.Styles.Bold.Render(title))
		b.WriteString("\n")
	}

	section("Parameters")
	if len(n.Data.Params) == 0 {
		b.WriteString(ux.Styles.Muted.Render(NoParameters))
	} else {
		b.WriteString(strings.Join(n.Data.Params, ", "))
	}
	b.WriteString("\n\n")

	section("Description")
	if n.Data.Description == "" {
		b.WriteString(ux.Styles.Muted.Render("(no description)"))
	} else {
		b.WriteString(n.Data.Description)
	}
	b.WriteString("\n\n")

	section("Source")
	b.WriteString(strings.TrimRight(n.Data.Code, "\n"))
	b.WriteString("\n\n")

	section("Calls")
	callees := CalleeNames(outgoing)
	if len(callees) == 0 {
		b.WriteString(ux.Styles.Muted.Render("(none)"))
	}
	for _, name := range callees {
		b.WriteString(string(ux.IconArrow) + " " + name + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
