package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/sift/internal/stream"
)

// Scenario is a scripted response to one question.
type Scenario struct {
	Name string `yaml:"name"`

	// Delay is the pause before each step.
	Delay time.Duration `yaml:"delay"`

	Steps []Step `yaml:"steps"`
}

// Step is one frame the mock writes. Raw, when set, is written verbatim as a
// data line so scripts can exercise malformed input.
type Step struct {
	Type         string   `yaml:"type"`
	Agent        string   `yaml:"agent,omitempty"`
	Status       string   `yaml:"status,omitempty"`
	Message      string   `yaml:"message,omitempty"`
	SubQuestions []string `yaml:"sub_questions,omitempty"`
	Index        int      `yaml:"index,omitempty"`
	PapersFound  *int     `yaml:"papers_found,omitempty"`
	Data         any      `yaml:"data,omitempty"`
	Raw          string   `yaml:"raw,omitempty"`
}

// Frame renders the step as wire bytes.
func (s Step) Frame(question string) ([]byte, error) {
	if s.Raw != "" {
		return []byte(stream.FramePrefix + s.Raw + "\n\n"), nil
	}
	ev, err := s.Event(question)
	if err != nil {
		return nil, err
	}
	return stream.Encode(ev)
}

// Event converts the step to a stream event. A result step without data
// answers question with a canned run.
func (s Step) Event(question string) (stream.Event, error) {
	switch stream.EventType(s.Type) {
	case stream.TypeProgress:
		return stream.Progress{Stage: s.Agent, Status: s.Status, Message: s.Message}, nil
	case stream.TypePlanExpanded:
		return stream.PlanExpanded{Subtasks: s.SubQuestions}, nil
	case stream.TypeSubtaskProgress:
		return stream.SubtaskProgress{Index: s.Index, Status: s.Status, ResultCount: s.PapersFound}, nil
	case stream.TypeResult:
		var data any = s.Data
		if data == nil {
			data = SampleRun(question)
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding result data: %w", err)
		}
		return stream.Result{Payload: payload}, nil
	case stream.TypeError:
		return stream.Error{Message: s.Message}, nil
	case "":
		return nil, errors.New("step type is required")
	default:
		return stream.Unknown{Kind: stream.EventType(s.Type)}, nil
	}
}

// Outcome reports how a non-streaming call to this scenario ends: the result
// payload, or the error message of the first error step. Both are empty when
// the script has no terminal step.
func (sc Scenario) Outcome(question string) (json.RawMessage, string, error) {
	for _, step := range sc.Steps {
		switch stream.EventType(step.Type) {
		case stream.TypeResult:
			ev, err := step.Event(question)
			if err != nil {
				return nil, "", err
			}
			return ev.(stream.Result).Payload, "", nil
		case stream.TypeError:
			return nil, step.Message, nil
		}
	}
	return nil, "", nil
}

// Validate checks that every step can be rendered.
func (sc Scenario) Validate() error {
	if sc.Name == "" {
		return errors.New("scenario name is required")
	}
	if sc.Delay < 0 {
		return fmt.Errorf("scenario %s: delay must not be negative", sc.Name)
	}
	for i, step := range sc.Steps {
		if _, err := step.Frame("validate"); err != nil {
			return fmt.Errorf("scenario %s step %d: %w", sc.Name, i, err)
		}
	}
	return nil
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads custom scenarios from a YAML file of the form
//
//	scenarios:
//	  - name: slow
//	    delay: 500ms
//	    steps:
//	      - {type: progress, agent: retriever, status: running}
//	      - {type: result}
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a user-supplied script
	if err != nil {
		return nil, fmt.Errorf("reading scenarios: %w", err)
	}
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing scenarios: %w", err)
	}
	for _, sc := range file.Scenarios {
		if err := sc.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Scenarios, nil
}
