// Package progress folds stream events into the live state of the research
// pipeline and reports how the request ended.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/zjrosen/sift/internal/log"
	"github.com/zjrosen/sift/internal/stream"
)

// errClosedEarly stands in for a clean close that happened before any data.
var errClosedEarly = errors.New("connection closed before any data arrived")

// Aggregator owns the pipeline state of exactly one request. It is not safe
// for concurrent use; events are applied in arrival order by one consumer.
type Aggregator struct {
	state    State
	terminal bool
	outcome  Outcome
	ignored  int
}

// New returns an aggregator with every stage pending in Standard mode.
func New() *Aggregator {
	return &Aggregator{state: NewState()}
}

// Apply folds ev into the state and reports whether anything visible
// changed. Once terminal, every event is ignored.
func (a *Aggregator) Apply(ev stream.Event) bool {
	if a.terminal {
		a.ignore("event after terminal", "type", ev.Type())
		return false
	}

	switch e := ev.(type) {
	case stream.Progress:
		return a.applyProgress(e)
	case stream.PlanExpanded:
		return a.applyPlan(e)
	case stream.SubtaskProgress:
		return a.applySubtask(e)
	case stream.Result:
		payload := e.Payload
		if payload == nil {
			payload = json.RawMessage("null")
		}
		a.terminate(Outcome{Payload: payload})
		return true
	case stream.Error:
		a.terminate(Outcome{Err: &stream.StreamError{Message: e.Message}})
		return true
	default:
		a.ignore("unknown event type", "type", ev.Type())
		return false
	}
}

func (a *Aggregator) applyProgress(e stream.Progress) bool {
	stage, ok := ParseStage(e.Stage)
	if !ok {
		a.ignore("unknown stage", "stage", e.Stage)
		return false
	}
	status, ok := ParseStatus(e.Status)
	if !ok {
		a.ignore("unknown stage status", "stage", e.Stage, "status", e.Status)
		return false
	}

	current := &a.state.Stages[stage]
	if !current.Status.CanAdvanceTo(status) {
		return false
	}
	current.Status = status
	if status == StatusFailed {
		current.Message = e.Message
	}
	return true
}

func (a *Aggregator) applyPlan(e stream.PlanExpanded) bool {
	if a.state.IsExpanded() {
		a.ignore("repeated plan expansion", "subtasks", len(e.Subtasks))
		return false
	}

	subtasks := make([]Subtask, len(e.Subtasks))
	for i, label := range e.Subtasks {
		subtasks[i] = Subtask{Index: i, Label: label, Status: StatusPending}
	}
	a.state.Mode = Expanded{Subtasks: subtasks}
	return true
}

func (a *Aggregator) applySubtask(e stream.SubtaskProgress) bool {
	subtasks, ok := a.state.Subtasks()
	if !ok {
		a.ignore("subtask progress before plan expansion", "index", e.Index)
		return false
	}
	if e.Index < 0 || e.Index >= len(subtasks) {
		a.ignore("subtask index out of range", "index", e.Index, "subtasks", len(subtasks))
		return false
	}
	status, ok := ParseStatus(e.Status)
	if !ok {
		a.ignore("unknown subtask status", "index", e.Index, "status", e.Status)
		return false
	}

	sub := &subtasks[e.Index]
	if !sub.Status.CanAdvanceTo(status) {
		return false
	}
	sub.Status = status
	if status == StatusCompleted && e.ResultCount != nil {
		n := *e.ResultCount
		sub.ResultCount = &n
	}
	return true
}

// Finish tells the aggregator that the event source ended with cause
// (io.EOF for a clean close) after bytesRead bytes. A request that is not yet
// terminal becomes terminal with a connection error when nothing arrived, or
// with stream.ErrIncompleteStream otherwise. Cancellation leaves the state
// non-terminal and only records the cause in the outcome.
func (a *Aggregator) Finish(cause error, bytesRead int64) {
	if a.terminal {
		return
	}

	switch {
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded),
		errors.Is(cause, stream.ErrClosed):
		a.outcome = Outcome{Err: cause}
		log.Debug(log.CatProgress, "request cancelled before completion", "error", cause)
		return
	case bytesRead == 0:
		if cause == nil || errors.Is(cause, io.EOF) {
			cause = errClosedEarly
		}
		a.terminate(Outcome{Err: &stream.ConnectionError{Err: cause}})
	case cause == nil || errors.Is(cause, io.EOF):
		a.terminate(Outcome{Err: stream.ErrIncompleteStream})
	default:
		a.terminate(Outcome{Err: fmt.Errorf("%w: %w", stream.ErrIncompleteStream, cause)})
	}
}

// IsTerminal reports whether the request has ended. Terminal is absorbing.
func (a *Aggregator) IsTerminal() bool {
	return a.terminal
}

// State returns a deep copy of the current state.
func (a *Aggregator) State() State {
	return a.state.Clone()
}

// Outcome returns how the request ended. It is the zero Outcome while the
// request is still in flight.
func (a *Aggregator) Outcome() Outcome {
	return a.outcome
}

// Ignored reports how many events were dropped without changing state.
func (a *Aggregator) Ignored() int {
	return a.ignored
}

func (a *Aggregator) terminate(o Outcome) {
	a.terminal = true
	a.outcome = o
	if o.Err != nil {
		log.Debug(log.CatProgress, "request failed", "error", o.Err)
	} else {
		log.Debug(log.CatProgress, "request completed", "payloadBytes", len(o.Payload))
	}
}

func (a *Aggregator) ignore(reason string, fields ...any) {
	a.ignored++
	log.Debug(log.CatProgress, "ignoring event: "+reason, fields...)
}
