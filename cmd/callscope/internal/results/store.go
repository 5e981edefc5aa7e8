// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results holds the analysis payload model and the in-memory
// store of the most recently completed job.
package results

import (
	"encoding/json"
	"sync"
	"time"
)

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is one immutable result set as fetched for a job.
//
// # Description
//
// Raw holds the exact bytes returned by GET /results so an export
// deep-equals what the service sent. Results is the decoded view used by
// the panes. Generation increases by one with every Replace.
//
// # Thread Safety
//
// A Snapshot is never mutated after it is published; readers may share
// it without locking.
type Snapshot struct {
	JobID      string
	Results    *Results
	Raw        json.RawMessage
	FetchedAt  time.Time
	Generation uint64

	nodes    map[string]Node
	outgoing map[string][]Edge
}

func newSnapshot(jobID string, res *Results, raw []byte, gen uint64) *Snapshot {
	s := &Snapshot{
		JobID:      jobID,
		Results:    res,
		Raw:        append(json.RawMessage(nil), raw...),
		FetchedAt:  time.Now(),
		Generation: gen,
		nodes:      make(map[string]Node, len(res.Graph.Nodes)),
		outgoing:   make(map[string][]Edge),
	}
	// Last definition of a duplicate id wins.
	for _, n := range res.Graph.Nodes {
		s.nodes[n.ID] = n
	}
	seen := make(map[Edge]bool, len(res.Graph.Edges))
	for _, e := range res.Graph.Edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		s.outgoing[e.From] = append(s.outgoing[e.From], e)
	}
	return s
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id string) (Node, bool) {
	if s == nil {
		return Node{}, false
	}
	n, ok := s.nodes[id]
	return n, ok
}

// Outgoing returns the distinct edges whose From equals id, in payload
// order.
func (s *Snapshot) Outgoing(id string) []Edge {
	if s == nil {
		return nil
	}
	return s.outgoing[id]
}

// =============================================================================
// Store
// =============================================================================

// Store holds the single most recent snapshot.
//
// # Description
//
// The store is replaced wholesale on every completed job and never
// merged. The job controller is its only writer; the UI and the export
// service read it.
//
// # Thread Safety
//
// Safe for concurrent use. The poll goroutine writes while the UI
// goroutine reads, so the pointer is guarded by a RWMutex.
type Store struct {
	mu         sync.RWMutex
	current    *Snapshot
	generation uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Replace publishes a new snapshot, discarding the previous one.
//
// # Inputs
//
//   - jobID: The job the results belong to.
//   - res: The decoded results. Must not be nil.
//   - raw: The exact payload bytes. Copied.
//
// # Outputs
//
//   - *Snapshot: The published snapshot.
func (s *Store) Replace(jobID string, res *Results, raw []byte) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.current = newSnapshot(jobID, res, raw, s.generation)
	return s.current
}

// Snapshot returns the current snapshot, or nil when empty.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Empty reports whether no results have been stored.
func (s *Store) Empty() bool {
	return s.Snapshot() == nil
}

// Lookup returns the node with the given id from the current snapshot.
func (s *Store) Lookup(id string) (Node, bool) {
	return s.Snapshot().Node(id)
}

// Generation returns the number of Replace calls so far.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Clear drops the current snapshot. Used by a full session reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
