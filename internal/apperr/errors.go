// Package apperr holds the error taxonomy shared by the store, broker and
// HTTP layers: Validation, NotFound, Conflict, Upstream, Storage, Internal.
// Handlers map these to HTTP status by checking the Kind with Is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status-code mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindConflict
	KindUpstream
	KindStorage
	KindInternal
)

// Error is a typed, wrapped application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) error { return newErr(KindValidation, msg, nil) }
func Validationf(format string, a ...interface{}) error {
	return newErr(KindValidation, fmt.Sprintf(format, a...), nil)
}
func NotFound(msg string) error            { return newErr(KindNotFound, msg, nil) }
func Conflict(msg string) error            { return newErr(KindConflict, msg, nil) }
func Upstream(msg string, err error) error { return newErr(KindUpstream, msg, err) }
func Storage(msg string, err error) error  { return newErr(KindStorage, msg, err) }
func Internal(msg string, err error) error { return newErr(KindInternal, msg, err) }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

var (
	ErrPositionNotFound  = NotFound("position not found")
	ErrAlreadyClosed     = Conflict("position already closed")
	ErrInvalidTransition = Conflict("invalid position state transition")
)
