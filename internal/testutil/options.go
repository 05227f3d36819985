package testutil

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/progress"
)

// RunOption configures a run during builder setup.
type RunOption func(*history.Run)

// Question sets the question text.
func Question(q string) RunOption {
	return func(r *history.Run) { r.Question = q }
}

// Mode sets how the question was sent.
func Mode(m history.Mode) RunOption {
	return func(r *history.Run) { r.Mode = m }
}

// Outcome sets the outcome kind.
func Outcome(kind progress.OutcomeKind) RunOption {
	return func(r *history.Run) { r.Outcome = kind }
}

// Failed marks the run failed with msg.
func Failed(msg string) RunOption {
	return func(r *history.Run) {
		r.Outcome = progress.KindFailed
		r.Error = msg
		r.Payload = nil
	}
}

// Payload sets the result payload. An empty string clears it.
func Payload(raw string) RunOption {
	return func(r *history.Run) {
		if raw == "" {
			r.Payload = nil
			return
		}
		r.Payload = json.RawMessage(raw)
	}
}

// State sets the last pipeline snapshot.
func State(s progress.State) RunOption {
	return func(r *history.Run) { r.State = &s }
}

// CacheHit marks the run as answered from the cache.
func CacheHit() RunOption {
	return func(r *history.Run) { r.CacheHit = true }
}

// BytesRead sets the number of stream bytes consumed.
func BytesRead(n int64) RunOption {
	return func(r *history.Run) { r.BytesRead = n }
}

// StartedAt sets the start time and keeps the duration.
func StartedAt(t time.Time) RunOption {
	return func(r *history.Run) {
		d := r.Duration()
		r.StartedAt = t
		r.FinishedAt = t.Add(d)
	}
}

// FinishedAgo moves the run so it finished age before now.
func FinishedAgo(age time.Duration) RunOption {
	return func(r *history.Run) {
		d := r.Duration()
		r.FinishedAt = time.Now().Add(-age)
		r.StartedAt = r.FinishedAt.Add(-d)
	}
}

// Took sets the duration.
func Took(d time.Duration) RunOption {
	return func(r *history.Run) { r.FinishedAt = r.StartedAt.Add(d) }
}
