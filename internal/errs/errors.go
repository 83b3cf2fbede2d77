// Package errs defines the closed set of error kinds the service exposes.
// Services classify failures with these constructors; the HTTP layer maps
// each kind to a status code exactly once.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindValidation marks client input that fails schema or range checks.
	KindValidation Kind = iota + 1
	// KindNotFound marks a resource that is absent or not owned by the
	// caller. Ownership failures use this kind on purpose so responses do
	// not reveal whether the resource exists for someone else.
	KindNotFound
	// KindDatabase marks persistence failures. The cause is kept for logs
	// and never sent to clients.
	KindDatabase
	// KindUpstream marks completion-API failures and timeouts.
	KindUpstream
)

// Error is the tagged error carried across service boundaries.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "internal error"
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a KindValidation error with a formatted message.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Database wraps a persistence failure.
func Database(msg string, err error) error {
	return &Error{Kind: KindDatabase, Msg: msg, Err: err}
}

// Upstream wraps a completion-API failure.
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err}
}

// KindOf reports the kind of err, or 0 when it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
