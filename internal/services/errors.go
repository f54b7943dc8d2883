package services

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthenticated   Kind = "UNAUTHENTICATED"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindNotFound          Kind = "NOT_FOUND"
	KindNotPublished      Kind = "NOT_PUBLISHED"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindInvalidParent     Kind = "INVALID_PARENT"
	KindEditWindowExpired Kind = "EDIT_WINDOW_EXPIRED"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// Error is the typed failure surfaced to the wire layer.
type Error struct {
	Kind    Kind
	Message string
	Err     error // cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func internal(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
