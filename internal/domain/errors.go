package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrTransport    = errors.New("transport failed")
	ErrStreamClosed = errors.New("event stream closed")
)

// TransportError represents a failed exchange with the server: a non-2xx
// response, a connection failure, or an undecodable body. The state core
// never sees these; they stop at the transport caller and the store is left
// untouched.
type TransportError struct {
	Op     string // e.g. "fetch messages", "send message"
	Status int    // HTTP status, 0 when the request never completed
	Err    error  // underlying cause, may be nil for pure status failures
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As chains
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is() to match against ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
