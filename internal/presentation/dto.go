package presentation

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/progress"
)

// RunDTO represents a recorded run for JSON output
type RunDTO struct {
	ID         string          `json:"id"`
	Question   string          `json:"question"`
	Mode       string          `json:"mode"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	CacheHit   bool            `json:"cache_hit"`
	BytesRead  int64           `json:"bytes_read"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	DurationMs int64           `json:"duration_ms"`
	State      *progress.State `json:"state,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// FromDomainRun converts a run to a DTO. The result payload is only included
// when withResult is set; listings leave it out.
func FromDomainRun(run *history.Run, withResult bool) RunDTO {
	dto := RunDTO{
		ID:         run.ID,
		Question:   run.Question,
		Mode:       string(run.Mode),
		Outcome:    string(run.Outcome),
		Error:      run.Error,
		CacheHit:   run.CacheHit,
		BytesRead:  run.BytesRead,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		DurationMs: run.Duration().Milliseconds(),
		State:      run.State,
	}
	if withResult {
		dto.Result = run.Payload
	}
	return dto
}

// FromDomainRuns converts runs without their result payloads.
func FromDomainRuns(runs []*history.Run) []RunDTO {
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = FromDomainRun(run, false)
	}
	return dtos
}
