package progress

import "fmt"

// Status is the lifecycle of a stage or subtask.
// Transitions only move forward: pending -> running -> completed|failed.
type Status int

const (
	// StatusPending means the unit has not started.
	StatusPending Status = iota
	// StatusRunning means the unit is in progress.
	StatusRunning
	// StatusCompleted means the unit finished successfully.
	StatusCompleted
	// StatusFailed means the unit finished with an error.
	StatusFailed
)

// String returns the wire form of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for completed and failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses for monotonic updates. Completed and failed share
// the top rank, so neither can replace the other.
func (s Status) rank() int {
	switch s {
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return 0
	}
}

// CanAdvanceTo reports whether moving from s to next is a forward step.
// Repeating the current status is not a step.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() > s.rank()
}

// ParseStatus converts a wire status. Unknown values return false.
func ParseStatus(v string) (Status, bool) {
	switch v {
	case "pending":
		return StatusPending, true
	case "running":
		return StatusRunning, true
	case "completed":
		return StatusCompleted, true
	case "failed":
		return StatusFailed, true
	default:
		return StatusPending, false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, ok := ParseStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown status %q", text)
	}
	*s = parsed
	return nil
}
