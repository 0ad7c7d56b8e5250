// Package errs defines the typed errors surfaced by dogpush commands.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	// Config marks a malformed or inconsistent configuration file.
	Config Kind = "config"
	// Validation marks a malformed alert declaration or an invalid collection.
	Validation Kind = "validation"
	// Remote marks a failure reported by the monitor API.
	Remote Kind = "remote"
	// MuteExpression marks a mute condition that cannot be parsed or evaluated.
	MuteExpression Kind = "mute_expression"
)

// Error is a classified error that keeps the underlying cause for errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a classified error.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Newf constructs a classified error without a cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err's chain carries a classified error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
