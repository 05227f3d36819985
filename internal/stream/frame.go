package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FramePrefix marks a line that carries a record.
const FramePrefix = "data: "

var framePrefix = []byte(FramePrefix)

type frameHeader struct {
	Type *EventType `json:"type"`
}

type progressFrame struct {
	Agent   string `json:"agent"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type planExpandedFrame struct {
	SubQuestions *[]string `json:"sub_questions"`
}

type subtaskProgressFrame struct {
	Index       *int   `json:"index"`
	Status      string `json:"status"`
	PapersFound *int   `json:"papers_found,omitempty"`
}

type resultFrame struct {
	Data json.RawMessage `json:"data"`
}

type errorFrame struct {
	Message string `json:"message"`
}

// ParseFrame decodes one line of the response body.
// It returns false when the line is not a record or the record is malformed;
// callers drop such lines and keep reading.
func ParseFrame(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, framePrefix) {
		return nil, false
	}
	ev, err := decodePayload(line[len(framePrefix):])
	if err != nil {
		return nil, false
	}
	return ev, true
}

func decodePayload(payload []byte) (Event, error) {
	var header frameHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, err
	}
	if header.Type == nil {
		return nil, fmt.Errorf("frame has no type")
	}

	switch *header.Type {
	case TypeProgress:
		var f progressFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, err
		}
		return Progress{Stage: f.Agent, Status: f.Status, Message: f.Message}, nil

	case TypePlanExpanded:
		var f planExpandedFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, err
		}
		if f.SubQuestions == nil {
			return nil, fmt.Errorf("plan_expanded without sub_questions")
		}
		return PlanExpanded{Subtasks: *f.SubQuestions}, nil

	case TypeSubtaskProgress:
		var f subtaskProgressFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, err
		}
		if f.Index == nil {
			return nil, fmt.Errorf("subtask_progress without index")
		}
		return SubtaskProgress{Index: *f.Index, Status: f.Status, ResultCount: f.PapersFound}, nil

	case TypeResult:
		var f resultFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, err
		}
		return Result{Payload: f.Data}, nil

	case TypeError:
		var f errorFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, err
		}
		return Error{Message: f.Message}, nil

	default:
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return Unknown{Kind: *header.Type, Raw: raw}, nil
	}
}

// Encode renders ev as one wire record, including the blank line that
// separates server-sent events.
func Encode(ev Event) ([]byte, error) {
	var body any
	switch e := ev.(type) {
	case Progress:
		body = struct {
			Type EventType `json:"type"`
			progressFrame
		}{TypeProgress, progressFrame{Agent: e.Stage, Status: e.Status, Message: e.Message}}
	case PlanExpanded:
		subtasks := e.Subtasks
		if subtasks == nil {
			subtasks = []string{}
		}
		body = struct {
			Type         EventType `json:"type"`
			SubQuestions []string  `json:"sub_questions"`
		}{TypePlanExpanded, subtasks}
	case SubtaskProgress:
		body = struct {
			Type        EventType `json:"type"`
			Index       int       `json:"index"`
			Status      string    `json:"status"`
			PapersFound *int      `json:"papers_found,omitempty"`
		}{TypeSubtaskProgress, e.Index, e.Status, e.ResultCount}
	case Result:
		data := e.Payload
		if data == nil {
			data = json.RawMessage("null")
		}
		body = struct {
			Type EventType       `json:"type"`
			Data json.RawMessage `json:"data"`
		}{TypeResult, data}
	case Error:
		body = struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{TypeError, e.Message}
	case Unknown:
		if len(e.Raw) > 0 {
			body = e.Raw
		} else {
			body = struct {
				Type EventType `json:"type"`
			}{e.Kind}
		}
	default:
		return nil, fmt.Errorf("cannot encode event %T", ev)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", ev.Type(), err)
	}

	frame := make([]byte, 0, len(framePrefix)+len(data)+2)
	frame = append(frame, framePrefix...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
