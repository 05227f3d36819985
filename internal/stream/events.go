// Package stream decodes the research service's event-framed response body
// into typed events.
//
// The decoder knows only the wire framing: it does not interpret stage names,
// statuses or payloads beyond their JSON shape.
package stream

import "encoding/json"

// EventType is the wire discriminator carried in every frame's "type" field.
type EventType string

const (
	// TypeProgress reports that a pipeline stage changed status.
	TypeProgress EventType = "progress"
	// TypePlanExpanded reports that the planner fanned out into sub-questions.
	TypePlanExpanded EventType = "plan_expanded"
	// TypeSubtaskProgress reports a status change of one sub-question.
	TypeSubtaskProgress EventType = "subtask_progress"
	// TypeResult is the terminal success frame.
	TypeResult EventType = "result"
	// TypeError is the terminal failure frame.
	TypeError EventType = "error"
)

// Event is one decoded frame. The concrete type is one of Progress,
// PlanExpanded, SubtaskProgress, Result, Error or Unknown.
type Event interface {
	Type() EventType
	isEvent()
}

// Progress reports that Stage moved to Status.
type Progress struct {
	Stage   string
	Status  string
	Message string
}

// PlanExpanded lists the sub-questions the pipeline was expanded into.
// Position in Subtasks is the sub-question's identity.
type PlanExpanded struct {
	Subtasks []string
}

// SubtaskProgress reports that the sub-question at Index moved to Status.
// ResultCount is nil when the frame did not carry a count.
type SubtaskProgress struct {
	Index       int
	Status      string
	ResultCount *int
}

// Result is the terminal success frame. Payload is forwarded verbatim.
type Result struct {
	Payload json.RawMessage
}

// Error is the terminal failure frame.
type Error struct {
	Message string
}

// Unknown is a well-formed frame whose type this client does not recognize.
type Unknown struct {
	Kind EventType
	Raw  json.RawMessage
}

func (Progress) Type() EventType        { return TypeProgress }
func (PlanExpanded) Type() EventType    { return TypePlanExpanded }
func (SubtaskProgress) Type() EventType { return TypeSubtaskProgress }
func (Result) Type() EventType          { return TypeResult }
func (Error) Type() EventType           { return TypeError }
func (u Unknown) Type() EventType       { return u.Kind }

func (Progress) isEvent()        {}
func (PlanExpanded) isEvent()    {}
func (SubtaskProgress) isEvent() {}
func (Result) isEvent()          {}
func (Error) isEvent()           {}
func (Unknown) isEvent()         {}

// IsTerminal reports whether ev ends the stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Result, Error:
		return true
	default:
		return false
	}
}
