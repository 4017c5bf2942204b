// Package errors carries the typed errors services return and their RFC 7807
// rendering for the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an Error and selects its HTTP status.
type Kind string

const (
	KindInvalid      Kind = "ValidationError"
	KindUnauthorized Kind = "Unauthorized"
	KindForbidden    Kind = "Forbidden"
	KindNotFound     Kind = "NotFound"
	KindConflict     Kind = "Conflict"
	KindRateLimit    Kind = "RateLimit"
	KindInternal     Kind = "Internal"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Kind    string
	Field   string
	Message string
}

// Error is a typed, immutable error value. Explain, WithField and Wrap return
// copies so the package-level sentinels can be reused safely.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	cause   error
}

var (
	Invalid      = &Error{Kind: KindInvalid, Message: "invalid request"}
	Unauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	Forbidden    = &Error{Kind: KindForbidden, Message: "access denied"}
	NotFound     = &Error{Kind: KindNotFound, Message: "resource not found"}
	Conflict     = &Error{Kind: KindConflict, Message: "resource already exists"}
	RateLimited  = &Error{Kind: KindRateLimit, Message: "rate limit exceeded"}
	Internal     = &Error{Kind: KindInternal, Message: "internal error"}
)

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any Error of the same kind, so errors.Is(err, NotFound) works for
// explained copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Explain returns a copy with a caller-facing message.
func (e *Error) Explain(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	cp.Fields = append([]FieldError(nil), e.Fields...)
	return &cp
}

// WithField returns a copy carrying an extra field error.
func (e *Error) WithField(kind, field, message string) *Error {
	cp := *e
	cp.Fields = append(append([]FieldError(nil), e.Fields...), FieldError{Kind: kind, Field: field, Message: message})
	return &cp
}

// Wrap returns a copy that records err as its cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.cause = err
	return &cp
}

// Is, As and New re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }

// KindOf reports the Kind of err, or KindInternal when err is not typed.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
