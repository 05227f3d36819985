// Package history defines the record of a finished question and the
// repository that stores it.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/sift/internal/progress"
)

// Mode is how the question was sent.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeDirect Mode = "direct"
)

// Run is one question and how it ended. State is the last pipeline snapshot
// and is nil for direct runs and cache hits.
type Run struct {
	ID         string
	Question   string
	Mode       Mode
	Outcome    progress.OutcomeKind
	Error      string
	Payload    json.RawMessage
	State      *progress.State
	CacheHit   bool
	BytesRead  int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRepository persists runs.
type RunRepository interface {
	// Save inserts run or replaces the run with the same ID.
	Save(ctx context.Context, run *Run) error
	// Get returns the run with id or *RunNotFoundError.
	Get(ctx context.Context, id string) (*Run, error)
	// List returns up to limit runs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Run, error)
	// Delete removes the run with id or returns *RunNotFoundError.
	Delete(ctx context.Context, id string) error
}

// RunNotFoundError is returned when no run has the requested ID.
type RunNotFoundError struct {
	ID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.ID)
}
