package progress

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/zjrosen/sift/internal/stream"
)

// Outcome is how a request ended. Exactly one of Payload and Err is set once
// the aggregator is terminal.
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

// Succeeded reports whether the request produced a result.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Payload != nil
}

// OutcomeKind classifies an Outcome for display and storage.
type OutcomeKind string

const (
	KindPending    OutcomeKind = "pending"
	KindSucceeded  OutcomeKind = "succeeded"
	KindFailed     OutcomeKind = "failed"
	KindIncomplete OutcomeKind = "incomplete"
	KindCancelled  OutcomeKind = "cancelled"
	KindConnection OutcomeKind = "connection_error"
)

// Kind classifies o. An explicit service error is KindFailed, a stream that
// ended early is KindIncomplete.
func (o Outcome) Kind() OutcomeKind {
	var streamErr *stream.StreamError
	switch {
	case o.Err == nil && o.Payload == nil:
		return KindPending
	case o.Err == nil:
		return KindSucceeded
	case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded),
		errors.Is(o.Err, stream.ErrClosed):
		return KindCancelled
	case stream.IsConnectionError(o.Err):
		return KindConnection
	case errors.As(o.Err, &streamErr):
		return KindFailed
	case errors.Is(o.Err, stream.ErrIncompleteStream):
		return KindIncomplete
	default:
		return KindFailed
	}
}
