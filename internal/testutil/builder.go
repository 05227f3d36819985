// Package testutil builds history runs for tests.
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/progress"
)

// NewRun returns a succeeded stream run that finished one second after it
// started, with options applied in order.
func NewRun(id string, opts ...RunOption) *history.Run {
	started := time.UnixMilli(time.Now().UnixMilli())
	run := &history.Run{
		ID:         id,
		Question:   "Does coffee improve focus?",
		Mode:       history.ModeStream,
		Outcome:    progress.KindSucceeded,
		Payload:    json.RawMessage(`{"run_id":"` + id + `"}`),
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
	for _, opt := range opts {
		opt(run)
	}
	return run
}

// Builder accumulates runs and saves them to a repository.
type Builder struct {
	t    *testing.T
	repo history.RunRepository
	runs []*history.Run
}

// NewBuilder creates a builder for the given repository.
func NewBuilder(t *testing.T, repo history.RunRepository) *Builder {
	t.Helper()
	return &Builder{t: t, repo: repo}
}

// WithRun adds a run with optional configuration.
func (b *Builder) WithRun(id string, opts ...RunOption) *Builder {
	b.runs = append(b.runs, NewRun(id, opts...))
	return b
}

// Build saves all accumulated runs and returns them in insertion order.
func (b *Builder) Build() []*history.Run {
	b.t.Helper()
	for _, run := range b.runs {
		require.NoError(b.t, b.repo.Save(context.Background(), run))
	}
	return b.runs
}
