// Package errs provides the error value used for multi-step remote
// operations. A single operation can fail in its main step and again while
// compensating; callers need to see every message, in causal order.
package errs

import (
	"errors"
	"strings"
)

// Error is an ordered list of failure messages attached to one operation.
// The first message is the root cause; messages appended later describe
// follow-up failures (e.g. a rollback that also failed). It wraps the root
// cause so errors.Is/errors.As keep working across the CLI boundary.
type Error struct {
	cause    error
	messages []string
}

// New creates an operation error from a root cause.
func New(cause error) *Error {
	return &Error{
		cause:    cause,
		messages: []string{cause.Error()},
	}
}

// Newf creates an operation error with a plain message and no typed cause.
func Newf(msg string) *Error {
	return &Error{
		cause:    errors.New(msg),
		messages: []string{msg},
	}
}

// Push appends a follow-up failure message. The root cause is unchanged.
func (e *Error) Push(msg string) {
	e.messages = append(e.messages, msg)
}

// Messages returns all failure messages, root cause first.
func (e *Error) Messages() []string {
	return e.messages
}

// Error implements the error interface.
func (e *Error) Error() string {
	return strings.Join(e.messages, "\n")
}

// Unwrap exposes the root cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Convert returns err as an *Error, wrapping it if it is not one already.
// Returns nil for a nil error.
func Convert(err error) *Error {
	if err == nil {
		return nil
	}
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr
	}
	return New(err)
}
