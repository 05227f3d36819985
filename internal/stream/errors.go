package stream

import (
	"errors"
	"fmt"
)

// ErrIncompleteStream is reported when the body ended after data arrived but
// before a result or error frame. It is distinct from an explicit *StreamError.
var ErrIncompleteStream = errors.New("stream ended without a result")

// ConnectionError reports that the response channel never opened, was
// rejected with a non-2xx status, or closed before a single byte arrived.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection failed"
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StreamError is an explicit error frame sent by the service.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

// IsConnectionError reports whether err is or wraps a *ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
