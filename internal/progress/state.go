package progress

import (
	"encoding/json"
	"fmt"
	"slices"
)

// StageState is the status of one fixed stage. Message holds the failure
// reason when the service sent one.
type StageState struct {
	Stage   Stage  `json:"stage"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Subtask is one sub-question introduced by a plan expansion. Index is its
// identity and never changes.
type Subtask struct {
	Index       int    `json:"index"`
	Label       string `json:"label"`
	Status      Status `json:"status"`
	ResultCount *int   `json:"result_count,omitempty"`
}

// Mode is either Standard or Expanded.
type Mode interface {
	isMode()
}

// Standard is a pipeline that has not been expanded.
type Standard struct{}

// Expanded is a pipeline that fanned out into Subtasks. An expansion with
// zero subtasks is still Expanded.
type Expanded struct {
	Subtasks []Subtask
}

func (Standard) isMode() {}
func (Expanded) isMode() {}

// State is the live view of one request's pipeline.
type State struct {
	Stages []StageState
	Mode   Mode
}

// NewState returns every stage pending in Standard mode.
func NewState() State {
	stages := make([]StageState, stageCount)
	for i := range stages {
		stages[i] = StageState{Stage: Stage(i), Status: StatusPending}
	}
	return State{Stages: stages, Mode: Standard{}}
}

// Status returns the status of stage.
func (s State) Status(stage Stage) Status {
	if !stage.valid() || int(stage) >= len(s.Stages) {
		return StatusPending
	}
	return s.Stages[stage].Status
}

// Subtasks returns the subtask list and whether the pipeline was expanded.
func (s State) Subtasks() ([]Subtask, bool) {
	exp, ok := s.Mode.(Expanded)
	if !ok {
		return nil, false
	}
	return exp.Subtasks, true
}

// IsExpanded reports whether a plan expansion was applied.
func (s State) IsExpanded() bool {
	_, ok := s.Mode.(Expanded)
	return ok
}

// Running returns the stages currently running, in pipeline order.
func (s State) Running() []Stage {
	var running []Stage
	for _, st := range s.Stages {
		if st.Status == StatusRunning {
			running = append(running, st.Stage)
		}
	}
	return running
}

// Clone returns a deep copy that shares nothing with s.
func (s State) Clone() State {
	out := State{Stages: slices.Clone(s.Stages), Mode: s.Mode}
	if exp, ok := s.Mode.(Expanded); ok {
		subtasks := make([]Subtask, len(exp.Subtasks))
		for i, st := range exp.Subtasks {
			if st.ResultCount != nil {
				n := *st.ResultCount
				st.ResultCount = &n
			}
			subtasks[i] = st
		}
		out.Mode = Expanded{Subtasks: subtasks}
	}
	return out
}

const (
	modeStandard = "standard"
	modeExpanded = "expanded"
)

type stateJSON struct {
	Stages   []StageState `json:"stages"`
	Mode     string       `json:"mode"`
	Subtasks []Subtask    `json:"subtasks,omitempty"`
}

// MarshalJSON encodes the mode as a "mode" tag next to the subtask list.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{Stages: s.Stages, Mode: modeStandard}
	if subtasks, ok := s.Subtasks(); ok {
		out.Mode = modeExpanded
		out.Subtasks = subtasks
		if out.Subtasks == nil {
			out.Subtasks = []Subtask{}
		}
	}
	return json.Marshal(out)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Stages = in.Stages
	switch in.Mode {
	case modeStandard, "":
		s.Mode = Standard{}
	case modeExpanded:
		subtasks := in.Subtasks
		if subtasks == nil {
			subtasks = []Subtask{}
		}
		s.Mode = Expanded{Subtasks: subtasks}
	default:
		return fmt.Errorf("unknown pipeline mode %q", in.Mode)
	}
	return nil
}
