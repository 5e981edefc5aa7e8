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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "stats": {"total_files": 1, "total_functions": 2, "total_classes": 0, "total_issues": 3,
            "errors": 1, "warnings": 1, "dead_code": 1, "placeholders": 0},
  "file_tree": [{"name": "src", "path": "src", "type": "folder",
                 "children": [{"name": "a.py", "path": "/src/a.py", "type": "file", "children": []}]}],
  "graph": {
    "nodes": [
      {"id": "src/a.py:main", "label": "main", "title": "entry", "group": "src/a.py", "color": "#F44336",
       "font": {"color": "#ffffff"},
       "data": {"file": "src/a.py", "line": 1, "params": [], "code": "def main(): helper()", "description": "entry"}},
      {"id": "src/a.py:helper", "label": "helper", "group": "src/a.py",
       "data": {"file": "src/a.py", "line": 5, "params": ["x"], "code": "def helper(x): pass", "description": "help"}},
      {"id": "src/a.py:main", "label": "main-v2",
       "data": {"file": "src/a.py", "line": 2, "params": [], "code": "", "description": "second"}}
    ],
    "edges": [
      {"from": "src/a.py:main", "to": "src/a.py:helper", "arrows": "to", "color": {"color": "#666666"}},
      {"from": "src/a.py:main", "to": "src/a.py:helper", "arrows": "to"}
    ]
  },
  "issues": {
    "errors": [{"type": "bug", "severity": "error", "file": "src/a.py", "line": 3, "function": "main", "message": "boom"}],
    "warnings": [
      {"type": "dead_code", "severity": "warning", "file": "src/b.py", "line": 9, "function": "old", "message": "unused"},
      {"type": "style", "severity": "warning", "file": "src/a.py", "line": 7, "function": "helper", "message": "long"}
    ],
    "info": []
  }
}`

func TestDecode(t *testing.T) {
	res, err := Decode([]byte(samplePayload))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.TotalFunctions)
	assert.Len(t, res.Graph.Nodes, 3)
	assert.Len(t, res.Graph.Edges, 2)
	assert.Equal(t, []string{"x"}, res.Graph.Nodes[1].Data.Params)
	assert.Equal(t, "src/a.py:5", res.Graph.Nodes[1].Location())
	assert.Equal(t, 3, res.Issues.Total())
	assert.True(t, res.FileTree[0].IsFolder())
}

func TestDecode_SortsIssuesByFileAndLine(t *testing.T) {
	res, err := Decode([]byte(samplePayload))
	require.NoError(t, err)

	warnings := res.Issues.Category(SeverityWarning)
	require.Len(t, warnings, 2)
	assert.Equal(t, "src/a.py", warnings[0].File)
	assert.Equal(t, "src/b.py", warnings[1].File)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`[1,2,3]`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"graph": {"nodes": "nope"}}`))
	assert.Error(t, err)
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityError.Valid())
	assert.False(t, Severity("fatal").Valid())
	assert.Greater(t, SeverityError.Rank(), SeverityWarning.Rank())
	assert.Greater(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	assert.Equal(t, "Warnings", SeverityWarning.Title())
	assert.Nil(t, Issues{}.Category(Severity("x")))
}

func TestIssue_NodeID(t *testing.T) {
	assert.Equal(t, "a.py:f", Issue{File: "a.py", Function: "f"}.NodeID())
	assert.Equal(t, "", Issue{File: "a.py"}.NodeID())
	assert.Equal(t, "", Issue{Function: "f"}.NodeID())
}

func TestWorstSeverity(t *testing.T) {
	res := &Results{Issues: Issues{
		Errors:   []Issue{{Severity: SeverityError, File: "a.py", Function: "f"}},
		Warnings: []Issue{{Severity: SeverityWarning, File: "a.py", Function: "f"}, {Severity: SeverityWarning, File: "a.py", Function: "g"}},
		Info:     []Issue{{Severity: SeverityInfo, File: "a.py", Function: "h"}, {Severity: SeverityInfo, File: "a.py"}},
	}}

	worst := res.WorstSeverity()
	assert.Equal(t, map[string]Severity{
		"a.py:f": SeverityError,
		"a.py:g": SeverityWarning,
		"a.py:h": SeverityInfo,
	}, worst)
}

func TestTreePath(t *testing.T) {
	file := FileTreeNode{Name: "a.py", Path: "/src/a.py", Type: TreeFile}
	assert.Equal(t, "src/a.py", TreePath([]string{"src"}, file))
	assert.Equal(t, "/home/a.py", TreePath([]string{"/", "home"}, file))
	assert.Equal(t, "x/y.py", TreePath(nil, FileTreeNode{Path: " x//y.py "}))
	assert.Equal(t, "", TreePath(nil, FileTreeNode{}))
}

func TestStore_ReplaceIsWholesale(t *testing.T) {
	store := NewStore()
	assert.True(t, store.Empty())
	assert.Nil(t, store.Snapshot())

	first, err := Decode([]byte(samplePayload))
	require.NoError(t, err)
	snap := store.Replace("J1", first, []byte(samplePayload))

	assert.False(t, store.Empty())
	assert.Equal(t, uint64(1), snap.Generation)
	assert.JSONEq(t, samplePayload, string(store.Snapshot().Raw))

	second := []byte(`{"stats":{},"file_tree":[],"graph":{"nodes":[],"edges":[]},"issues":{"errors":[],"warnings":[],"info":[]}}`)
	res2, err := Decode(second)
	require.NoError(t, err)
	store.Replace("J2", res2, second)

	current := store.Snapshot()
	assert.Equal(t, "J2", current.JobID)
	assert.Equal(t, uint64(2), store.Generation())
	assert.Equal(t, string(second), string(current.Raw))
	_, ok := store.Lookup("src/a.py:helper")
	assert.False(t, ok, "previous results must not survive a replace")
}

func TestStore_RawIsCopied(t *testing.T) {
	raw := []byte(`{"stats":{}}`)
	res, err := Decode(raw)
	require.NoError(t, err)

	store := NewStore()
	store.Replace("J1", res, raw)
	raw[2] = 'X'

	assert.Equal(t, `{"stats":{}}`, string(store.Snapshot().Raw))
}

func TestSnapshot_LookupLastWriteWins(t *testing.T) {
	res, err := Decode([]byte(samplePayload))
	require.NoError(t, err)
	store := NewStore()
	store.Replace("J1", res, []byte(samplePayload))

	n, ok := store.Lookup("src/a.py:main")
	require.True(t, ok)
	assert.Equal(t, "main-v2", n.Label)

	_, ok = store.Lookup("src/a.py:missing")
	assert.False(t, ok)
}

func TestSnapshot_OutgoingDeduplicated(t *testing.T) {
	res, err := Decode([]byte(samplePayload))
	require.NoError(t, err)
	snap := NewStore().Replace("J1", res, []byte(samplePayload))

	out := snap.Outgoing("src/a.py:main")
	require.Len(t, out, 1)
	assert.Equal(t, "src/a.py:helper", out[0].To)
	assert.Empty(t, snap.Outgoing("src/a.py:helper"))
}

func TestSnapshot_NilSafe(t *testing.T) {
	var snap *Snapshot
	_, ok := snap.Node("x")
	assert.False(t, ok)
	assert.Nil(t, snap.Outgoing("x"))
}

func TestStore_Clear(t *testing.T) {
	store := NewStore()
	store.Replace("J1", &Results{}, []byte(`{}`))
	store.Clear()
	assert.True(t, store.Empty())
	assert.Equal(t, uint64(1), store.Generation())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	res, err := Decode([]byte(samplePayload))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Replace("J", res, []byte(samplePayload))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Lookup("src/a.py:main")
				store.Empty()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(400), store.Generation())
}
