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
	"sort"
	"strings"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
)

// Index is the de-duplicated, validated view of a call graph.
//
// # Description
//
// Nodes are keyed by id; a duplicate id replaces the earlier definition
// but keeps its position. Edges are keyed by (from, to); edges whose
// endpoint is not a known node are dropped.
//
// # Thread Safety
//
// Index is immutable after BuildIndex and safe for concurrent reads.
type Index struct {
	nodes   []results.Node
	pos     map[string]int
	edges   []results.Edge
	out     map[string][]string
	in      map[string][]string
	byFile  map[string][]string
	dropped int
}

type edgeKey struct{ from, to string }

// BuildIndex indexes g.
//
// # Outputs
//
//   - *Index: Never nil. An empty graph gives an empty index.
func BuildIndex(g results.Graph) *Index {
	ix := &Index{
		pos:    make(map[string]int, len(g.Nodes)),
		out:    make(map[string][]string),
		in:     make(map[string][]string),
		byFile: make(map[string][]string),
	}

	for _, n := range g.Nodes {
		if i, ok := ix.pos[n.ID]; ok {
			ix.nodes[i] = n
			continue
		}
		ix.pos[n.ID] = len(ix.nodes)
		ix.nodes = append(ix.nodes, n)
	}

	// Files are indexed after de-duplication so a replaced node moves.
	for _, n := range ix.nodes {
		ix.byFile[n.Data.File] = append(ix.byFile[n.Data.File], n.ID)
	}

	seen := make(map[edgeKey]bool, len(g.Edges))
	for _, e := range g.Edges {
		_, okFrom := ix.pos[e.From]
		_, okTo := ix.pos[e.To]
		if !okFrom || !okTo {
			ix.dropped++
			continue
		}
		k := edgeKey{e.From, e.To}
		if seen[k] {
			continue
		}
		seen[k] = true
		ix.edges = append(ix.edges, e)
		ix.out[e.From] = append(ix.out[e.From], e.To)
		ix.in[e.To] = append(ix.in[e.To], e.From)
	}
	return ix
}

// Len returns the number of unique nodes.
func (ix *Index) Len() int { return len(ix.nodes) }

// Nodes returns the unique nodes in first-seen order.
func (ix *Index) Nodes() []results.Node { return ix.nodes }

// Edges returns the unique, valid edges.
func (ix *Index) Edges() []results.Edge { return ix.edges }

// Dropped returns how many edges referenced an unknown node.
func (ix *Index) Dropped() int { return ix.dropped }

// Position returns the slot of id in Nodes, or -1.
func (ix *Index) Position(id string) int {
	if i, ok := ix.pos[id]; ok {
		return i
	}
	return -1
}

// Node looks up a node by id.
func (ix *Index) Node(id string) (results.Node, bool) {
	i, ok := ix.pos[id]
	if !ok {
		return results.Node{}, false
	}
	return ix.nodes[i], true
}

// Outgoing returns the callee ids of id.
func (ix *Index) Outgoing(id string) []string { return ix.out[id] }

// Neighbors returns the ids directly connected to id in either
// direction, sorted, without id itself.
func (ix *Index) Neighbors(id string) []string {
	set := make(map[string]struct{})
	for _, n := range ix.out[id] {
		set[n] = struct{}{}
	}
	for _, n := range ix.in[id] {
		set[n] = struct{}{}
	}
	delete(set, id)

	ids := make([]string, 0, len(set))
	for n := range set {
		ids = append(ids, n)
	}
	sort.Strings(ids)
	return ids
}

// NodesInFile returns the ids of nodes whose file equals path exactly.
func (ix *Index) NodesInFile(path string) []string {
	return ix.byFile[path]
}

// SymbolName returns the part of a node id after the last ':'.
//
// # Example
//
//	SymbolName("pkg/a.py:main") // "main"
//	SymbolName("main")          // "main"
func SymbolName(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}
