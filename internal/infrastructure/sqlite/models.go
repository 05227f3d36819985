package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/progress"
)

// RunModel is one row of the runs table. Times are Unix milliseconds; the
// payload and state snapshot are stored as JSON text.
type RunModel struct {
	ID         string
	Question   string
	Mode       string
	Outcome    string
	Error      *string // nullable
	Payload    *string // nullable
	State      *string // nullable, JSON encoded progress.State
	CacheHit   bool
	BytesRead  int64
	StartedAt  int64
	FinishedAt int64
}

func toRunModel(r *history.Run) (*RunModel, error) {
	m := &RunModel{
		ID:         r.ID,
		Question:   r.Question,
		Mode:       string(r.Mode),
		Outcome:    string(r.Outcome),
		CacheHit:   r.CacheHit,
		BytesRead:  r.BytesRead,
		StartedAt:  r.StartedAt.UnixMilli(),
		FinishedAt: r.FinishedAt.UnixMilli(),
	}
	if r.Error != "" {
		errText := r.Error
		m.Error = &errText
	}
	if r.Payload != nil {
		payload := string(r.Payload)
		m.Payload = &payload
	}
	if r.State != nil {
		data, err := json.Marshal(r.State)
		if err != nil {
			return nil, fmt.Errorf("encoding state snapshot: %w", err)
		}
		state := string(data)
		m.State = &state
	}
	return m, nil
}

func (m *RunModel) toDomain() (*history.Run, error) {
	r := &history.Run{
		ID:         m.ID,
		Question:   m.Question,
		Mode:       history.Mode(m.Mode),
		Outcome:    progress.OutcomeKind(m.Outcome),
		CacheHit:   m.CacheHit,
		BytesRead:  m.BytesRead,
		StartedAt:  time.UnixMilli(m.StartedAt),
		FinishedAt: time.UnixMilli(m.FinishedAt),
	}
	if m.Error != nil {
		r.Error = *m.Error
	}
	if m.Payload != nil {
		r.Payload = json.RawMessage(*m.Payload)
	}
	if m.State != nil {
		var state progress.State
		if err := json.Unmarshal([]byte(*m.State), &state); err != nil {
			return nil, fmt.Errorf("decoding state snapshot of run %s: %w", m.ID, err)
		}
		r.State = &state
	}
	return r, nil
}
