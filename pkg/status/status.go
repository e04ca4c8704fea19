// Package status implements the small, fixed OPC UA status-code model this
// engine surfaces at its public boundaries (spec Error Handling Design): an
// enum type with String(), constructors for the common cases, and an
// Error() method, kept as a pure in-process status value since OPC UA
// carries status codes inline in response headers rather than as a
// standalone message.
package status

import "fmt"

// Code is one of the fixed status values this engine reports. It is a
// deliberately small subset of the full OPC UA StatusCode space: just the
// outcomes the binary engine itself can produce.
type Code uint32

const (
	Ok Code = iota
	GenericFailure
	InvalidParameters
	InvalidState
	OutOfMemory
	EncodingError
	InvalidReceivedParameter
	Timeout
	WouldBlock
	Closed
	NotSupported
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case GenericFailure:
		return "GenericFailure"
	case InvalidParameters:
		return "InvalidParameters"
	case InvalidState:
		return "InvalidState"
	case OutOfMemory:
		return "OutOfMemory"
	case EncodingError:
		return "EncodingError"
	case InvalidReceivedParameter:
		return "InvalidReceivedParameter"
	case Timeout:
		return "Timeout"
	case WouldBlock:
		return "WouldBlock"
	case Closed:
		return "Closed"
	case NotSupported:
		return "NotSupported"
	default:
		return fmt.Sprintf("Code(%d)", uint32(c))
	}
}

// Error wraps a Code with an optional diagnostic message and cause. It
// implements the error interface so callers can use errors.Is/errors.As
// against the wrapped Code, as well as plain string formatting.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the Code this Error wraps, so errors.Is
// matches a *Error against a sentinel Code.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// Is reports whether target is the same Code, so `errors.Is(err,
// status.InvalidState)` works without exposing *Error's fields. Code
// itself implements error via this method, letting sentinel Codes be
// compared or returned directly when no extra diagnostic is needed.
func (c Code) Is(target error) bool {
	t, ok := target.(Code)
	return ok && t == c
}

func (c Code) Error() string {
	return c.String()
}

// From extracts the Code carried by err, defaulting to GenericFailure for
// an error this package did not produce.
func From(err error) Code {
	if err == nil {
		return Ok
	}
	if se, ok := err.(*Error); ok {
		return se.Code
	}
	if c, ok := err.(Code); ok {
		return c
	}
	return GenericFailure
}
