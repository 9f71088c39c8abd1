// Package errdefs defines the error kinds every operation outcome is reported with.
//
// Invariants:
// - Every error crossing the dispatch boundary maps to exactly one Kind.
// - Errors wrap with %w so errors.Is and errors.As keep working on sentinels.
//
// Usage:
//
//	err := errdefs.Argument("add_paragraph", "text is required")
//	if errdefs.KindOf(err) == errdefs.KindArgument { ... }
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies an error for the caller-facing response.
type Kind string

const (
	KindArgument    Kind = "argument"
	KindNotFound    Kind = "not_found"
	KindState       Kind = "state"
	KindConcurrency Kind = "concurrency"
	KindUnsupported Kind = "unsupported_operation"
	KindCanceled    Kind = "canceled"
	KindInternal    Kind = "internal"
)

var (
	// ErrMissingParameter is returned when a required parameter is absent
	ErrMissingParameter = errors.New("missing parameter")

	// ErrTypeMismatch is returned when a parameter cannot be coerced to the requested type
	ErrTypeMismatch = errors.New("parameter type mismatch")

	// ErrUnsupportedOperation is returned when no handler is registered for a name
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrLockTimeout is returned when a document lock cannot be acquired in time
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrNotFound is returned when a document or resource does not exist
	ErrNotFound = errors.New("not found")

	// ErrEvicted is returned when a handle is used after eviction
	ErrEvicted = errors.New("document handle evicted")

	// ErrBudgetExceeded is returned when the document cache cannot admit another document
	ErrBudgetExceeded = errors.New("document cache budget exceeded")
)

// Error carries a Kind alongside the failing operation and message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil && !isSentinel(e.Err) {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the wire code for the error's kind.
func (e *Error) Code() string {
	return Code(e.Kind)
}

// New builds an Error of the given kind.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around err.
func Wrap(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// Argument reports a missing or invalid parameter.
func Argument(op, format string, args ...interface{}) *Error {
	return New(KindArgument, op, format, args...)
}

// MissingParameter reports an absent required parameter.
func MissingParameter(op, name string) *Error {
	return &Error{Kind: KindArgument, Op: op, Message: fmt.Sprintf("parameter %q is required", name), Err: ErrMissingParameter}
}

// TypeMismatch reports a parameter whose value cannot be coerced.
func TypeMismatch(op, name, want string, cause error) *Error {
	err := ErrTypeMismatch
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrTypeMismatch, cause)
	}
	return &Error{Kind: KindArgument, Op: op, Message: fmt.Sprintf("parameter %q must be %s", name, want), Err: err}
}

// NotFound reports a missing file, document or resource.
func NotFound(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// State reports an operation-specific precondition failure.
func State(op, format string, args ...interface{}) *Error {
	return New(KindState, op, format, args...)
}

// Concurrency reports a lock acquisition timeout.
func Concurrency(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConcurrency, Op: op, Message: fmt.Sprintf(format, args...), Err: ErrLockTimeout}
}

// Unsupported reports an operation name with no registered handler.
func Unsupported(name string) *Error {
	return &Error{Kind: KindUnsupported, Op: name, Message: fmt.Sprintf("no handler registered for %q", name), Err: ErrUnsupportedOperation}
}

// Internal reports an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf classifies any error. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrMissingParameter), errors.Is(err, ErrTypeMismatch):
		return KindArgument
	case errors.Is(err, ErrUnsupportedOperation):
		return KindUnsupported
	case errors.Is(err, ErrLockTimeout):
		return KindConcurrency
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, ErrEvicted), errors.Is(err, ErrBudgetExceeded):
		return KindState
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindInternal
}

// Code maps a kind to its wire code.
func Code(kind Kind) string {
	switch kind {
	case KindArgument:
		return "ARGUMENT_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindState:
		return "STATE_ERROR"
	case KindConcurrency:
		return "CONCURRENCY_ERROR"
	case KindUnsupported:
		return "UNSUPPORTED_OPERATION"
	case KindCanceled:
		return "CANCELED"
	default:
		return "INTERNAL_ERROR"
	}
}

func isSentinel(err error) bool {
	switch err {
	case ErrMissingParameter, ErrTypeMismatch, ErrUnsupportedOperation, ErrLockTimeout,
		ErrNotFound, ErrEvicted, ErrBudgetExceeded:
		return true
	}
	return false
}
