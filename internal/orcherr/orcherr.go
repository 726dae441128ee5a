// Package orcherr defines the error taxonomy shared by the pipeline
// driver, worker pool, and external adapters (spec §7). It generalizes
// the teacher's *worker.CloneError pattern -- a typed error carrying a
// user-facing message, the raw cause, and a retryability flag -- to
// every adapter in this repository.
package orcherr

import "fmt"

// Kind classifies an error for the driver's continue-vs-fail decision.
type Kind int

const (
	KindTransient Kind = iota
	KindRateLimited
	KindInput
	KindConflict
	KindNotFound
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindInput:
		return "input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified error. Retryable mirrors spec §7: Transient and
// RateLimited are retryable, the rest are not.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this error's kind is retryable per §7.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Transient(message string, cause error) *Error {
	return New(KindTransient, message, cause)
}

func RateLimited(message string, cause error) *Error {
	return New(KindRateLimited, message, cause)
}

func Input(message string, cause error) *Error {
	return New(KindInput, message, cause)
}

func Conflict(message string, cause error) *Error {
	return New(KindConflict, message, cause)
}

func NotFound(message string, cause error) *Error {
	return New(KindNotFound, message, cause)
}

func Fatal(message string, cause error) *Error {
	return New(KindFatal, message, cause)
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	oe, ok := err.(*Error)
	return oe, ok
}
