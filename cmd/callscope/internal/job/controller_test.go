// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
)

const scenarioPayload = `{"stats":{"total_files":1,"total_functions":2},"file_tree":[{"name":"a.py","type":"file"}],"graph":{"nodes":[{"id":"a.py:main","label":"main","data":{"file":"a.py","line":1,"params":[],"code":"","description":""}},{"id":"a.py:helper","label":"helper","data":{"file":"a.py","line":4,"params":[],"code":"","description":""}}],"edges":[{"from":"a.py:main","to":"a.py:helper"}]},"issues":{"errors":[],"warnings":[],"info":[]}}`

// fakeService scripts the analysis service.
type fakeService struct {
	mu sync.Mutex

	ids          []string
	analyzeErr   error
	analyzeCalls int
	paths        []string

	progress      map[string][]client.Progress
	progressErr   map[string]error
	progressCalls map[string]int
	blockProgress map[string]bool

	payload      map[string]string
	resultsErr   error
	resultsCalls map[string]int
	blockResults map[string]chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{
		progress:      make(map[string][]client.Progress),
		progressErr:   make(map[string]error),
		progressCalls: make(map[string]int),
		blockProgress: make(map[string]bool),
		payload:       make(map[string]string),
		resultsCalls:  make(map[string]int),
		blockResults:  make(map[string]chan struct{}),
	}
}

func (f *fakeService) Analyze(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	f.paths = append(f.paths, path)
	if f.analyzeErr != nil {
		return "", f.analyzeErr
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

func (f *fakeService) Progress(ctx context.Context, id string) (client.Progress, error) {
	f.mu.Lock()
	f.progressCalls[id]++
	n := f.progressCalls[id]
	block := f.blockProgress[id]
	err := f.progressErr[id]
	script := f.progress[id]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return client.Progress{}, ctx.Err()
	}
	if err != nil {
		return client.Progress{}, err
	}
	if n > len(script) {
		return script[len(script)-1], nil
	}
	return script[n-1], nil
}

func (f *fakeService) Results(ctx context.Context, id string) (*results.Results, []byte, error) {
	f.mu.Lock()
	f.resultsCalls[id]++
	block := f.blockResults[id]
	err := f.resultsErr
	payload := f.payload[id]
	f.mu.Unlock()

	if block != nil {
		close(block)
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if err != nil {
		return nil, nil, err
	}
	res, derr := results.Decode([]byte(payload))
	if derr != nil {
		return nil, nil, derr
	}
	return res, []byte(payload), nil
}

func (f *fakeService) calls(id string) (progress, res int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progressCalls[id], f.resultsCalls[id]
}

func newTestController(svc Service) *Controller {
	return NewController(svc, NewSession(), Config{PollInterval: util.MinPollInterval})
}

func collect(t *testing.T, c *Controller) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []Event
	_, _ = c.Wait(ctx, func(ev Event) { events = append(events, ev) })
	return events
}

func TestSubmit_EmptyPathIssuesNoRequest(t *testing.T) {
	svc := newFakeService()
	c := newTestController(svc)
	defer c.Close()

	for _, p := range []string{"", "   ", "\t\n"} {
		_, err := c.Submit(context.Background(), p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, util.ErrValidation))
	}
	assert.Equal(t, 0, svc.analyzeCalls)

	state, _, _ := c.State()
	assert.Equal(t, StateIdle, state)
}

func TestSubmit_FullScenario(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1"}
	svc.progress["J1"] = []client.Progress{
		{Status: client.StatusRunning, Progress: 0, Message: "Parsing project structure..."},
		{Status: client.StatusRunning, Progress: 40, Message: "Analyzing code issues..."},
		{Status: client.StatusCompleted, Progress: 100, Message: "Analysis complete!"},
	}
	svc.payload["J1"] = scenarioPayload

	c := newTestController(svc)
	defer c.Close()

	job, err := c.Submit(context.Background(), "/repo")
	require.NoError(t, err)
	assert.Equal(t, Job{ID: "J1", Status: client.StatusQueued, Message: "Queued"}, job)
	assert.Equal(t, []string{"/repo"}, svc.paths)

	events := collect(t, c)
	require.Len(t, events, 5)
	assert.Equal(t, EventSubmitted, events[0].Kind)
	assert.Equal(t, 0, events[1].Job.Progress)
	assert.Equal(t, 40, events[2].Job.Progress)
	assert.Equal(t, client.StatusCompleted, events[3].Job.Status)
	assert.Equal(t, EventCompleted, events[4].Kind)

	snap := c.Session().Store.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "J1", snap.JobID)
	assert.JSONEq(t, scenarioPayload, string(snap.Raw))
	assert.Len(t, snap.Results.Graph.Nodes, 2)
	assert.Len(t, snap.Results.Graph.Edges, 1)
	assert.Same(t, snap, events[4].Snapshot)

	state, final, lastErr := c.State()
	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, 100, final.Progress)
	assert.NoError(t, lastErr)

	// No further requests after the terminal status.
	time.Sleep(3 * util.MinPollInterval)
	progressCalls, resultsCalls := svc.calls("J1")
	assert.Equal(t, 3, progressCalls)
	assert.Equal(t, 1, resultsCalls)
}

func TestSubmit_NormalizesPath(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1"}
	svc.progress["J1"] = []client.Progress{{Status: client.StatusRunning}}

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "  '/home/me/my repo/'\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/me/my repo"}, svc.paths)
}

func TestSubmit_ServiceReportsError(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1"}
	svc.progress["J1"] = []client.Progress{
		{Status: client.StatusRunning, Progress: 30},
		{Status: client.StatusError, Progress: -1, Message: "Error: parse failure"},
	}

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "/repo")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := c.Wait(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, EventFailed, ev.Kind)

	var ferr *FailedError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "Error: parse failure", ferr.Message)
	assert.Equal(t, util.SeverityFatal, util.Classify(err))

	_, job, _ := c.State()
	assert.Equal(t, 30, job.Progress, "progress must not regress on an error status")

	time.Sleep(3 * util.MinPollInterval)
	progressCalls, resultsCalls := svc.calls("J1")
	assert.Equal(t, 2, progressCalls)
	assert.Equal(t, 0, resultsCalls)
	assert.True(t, c.Session().Store.Empty())
}

func TestSubmit_PollNetworkFailureNoRetry(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1"}
	svc.progressErr["J1"] = &util.NetworkError{Endpoint: "GET /progress/J1", StatusCode: 502}

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "/repo")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = c.Wait(ctx, nil)
	assert.True(t, errors.Is(err, util.ErrNetwork))

	time.Sleep(3 * util.MinPollInterval)
	progressCalls, _ := svc.calls("J1")
	assert.Equal(t, 1, progressCalls)

	state, _, lastErr := c.State()
	assert.Equal(t, StateFailed, state)
	assert.Error(t, lastErr)
}

func TestSubmit_ResultsFetchFailure(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1"}
	svc.progress["J1"] = []client.Progress{{Status: client.StatusCompleted, Progress: 100}}
	svc.resultsErr = &util.ProtocolError{Endpoint: "GET /results/J1", Field: "body"}

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "/repo")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = c.Wait(ctx, nil)
	assert.True(t, errors.Is(err, util.ErrProtocol))
	assert.True(t, c.Session().Store.Empty())
}

func TestSubmit_AnalyzeFailure(t *testing.T) {
	svc := newFakeService()
	svc.analyzeErr = &util.ProtocolError{Endpoint: "POST /analyze", Field: "job_id"}

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "/repo")
	assert.True(t, errors.Is(err, util.ErrProtocol))

	state, _, lastErr := c.State()
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, err, lastErr)
}

func TestSubmit_SupersedesRunningJob(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1", "J2"}
	svc.blockProgress["J1"] = true
	svc.progress["J2"] = []client.Progress{{Status: client.StatusCompleted, Progress: 100}}
	svc.payload["J2"] = scenarioPayload

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "/first")
	require.NoError(t, err)

	// Let J1 enter its blocking poll.
	require.Eventually(t, func() bool {
		n, _ := svc.calls("J1")
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = c.Submit(context.Background(), "/second")
	require.NoError(t, err)

	events := collect(t, c)
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, "J2", ev.Job.ID)
	}
	assert.Equal(t, "J2", c.Session().Store.Snapshot().JobID)

	time.Sleep(3 * util.MinPollInterval)
	j1Polls, j1Results := svc.calls("J1")
	assert.Equal(t, 1, j1Polls, "superseded loop must not poll again")
	assert.Equal(t, 0, j1Results)
}

func TestSubmit_SupersededFetchNeverWritesStore(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1", "J2"}
	svc.progress["J1"] = []client.Progress{{Status: client.StatusCompleted, Progress: 100}}
	fetching := make(chan struct{})
	svc.blockResults["J1"] = fetching
	svc.progress["J2"] = []client.Progress{{Status: client.StatusRunning, Progress: 10}}

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "/first")
	require.NoError(t, err)

	select {
	case <-fetching:
	case <-time.After(2 * time.Second):
		t.Fatal("J1 never started fetching")
	}

	_, err = c.Submit(context.Background(), "/second")
	require.NoError(t, err)

	assert.True(t, c.Session().Store.Empty())
	assert.Equal(t, uint64(0), c.Session().Store.Generation())
}

func TestReset(t *testing.T) {
	svc := newFakeService()
	svc.ids = []string{"J1"}
	svc.progress["J1"] = []client.Progress{{Status: client.StatusCompleted, Progress: 100}}
	svc.payload["J1"] = scenarioPayload

	c := newTestController(svc)
	defer c.Close()

	_, err := c.Submit(context.Background(), "/repo")
	require.NoError(t, err)
	collect(t, c)
	require.False(t, c.Session().Store.Empty())

	c.Reset()
	state, job, lastErr := c.State()
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, Job{}, job)
	assert.NoError(t, lastErr)
	assert.True(t, c.Session().Store.Empty())
}

func TestClose_RejectsSubmissions(t *testing.T) {
	svc := newFakeService()
	c := newTestController(svc)
	c.Close()

	_, err := c.Submit(context.Background(), "/repo")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, svc.analyzeCalls)
}

func TestWait_NoJob(t *testing.T) {
	c := newTestController(newFakeService())
	defer c.Close()

	_, err := c.Wait(context.Background(), nil)
	assert.ErrorIs(t, err, ErrJobSuperseded)
}

func TestJobApply_Monotonic(t *testing.T) {
	j := Job{ID: "J1", Status: client.StatusQueued}

	j = j.apply(client.Progress{Status: client.StatusRunning, Progress: 50, Message: "half"})
	assert.Equal(t, 50, j.Progress)

	j = j.apply(client.Progress{Status: client.StatusQueued, Progress: 20})
	assert.Equal(t, client.StatusRunning, j.Status, "status must not regress")
	assert.Equal(t, 50, j.Progress, "progress must not regress")
	assert.Equal(t, "half", j.Message, "empty message keeps the previous one")

	j = j.apply(client.Progress{Status: client.StatusCompleted, Progress: 250})
	assert.Equal(t, 100, j.Progress)
	assert.True(t, j.Terminal())
}

func TestJobApply_ErrorProgressClampsToZero(t *testing.T) {
	j := Job{ID: "J1", Status: client.StatusQueued}

	j = j.apply(client.Progress{Status: client.StatusError, Progress: -1, Message: "Error: boom"})
	assert.Equal(t, 0, j.Progress)
	assert.Equal(t, client.StatusError, j.Status)
	assert.True(t, j.Terminal())
}

func TestStateAndEventNames(t *testing.T) {
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "completed", EventCompleted.String())
	assert.Equal(t, "unknown", EventKind(99).String())
	assert.Equal(t, "job J1 failed", (&FailedError{JobID: "J1"}).Error())
	assert.ErrorIs(t, &FailedError{JobID: "J1"}, ErrJobFailed)
}

func TestNewSession(t *testing.T) {
	a, b := NewSession(), NewSession()
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, a.Store.Empty())
}
