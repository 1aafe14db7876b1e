// Package apperr defines the error kinds shared by the link store, the intake
// pipeline and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindUnsupportedType Kind = "unsupported_type"
	KindTooLarge        Kind = "too_large"
	KindTooManyFiles    Kind = "too_many_files"
	KindEmptyUpload     Kind = "empty_upload"
	KindStorage         Kind = "storage_error"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal_error"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType}
	ErrTooLarge        = &Error{Kind: KindTooLarge}
	ErrTooManyFiles    = &Error{Kind: KindTooManyFiles}
	ErrEmptyUpload     = &Error{Kind: KindEmptyUpload}
	ErrStorage         = &Error{Kind: KindStorage}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
)

// Error is an application error carrying a kind and a user-facing message.
// Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can test
// errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error      { return New(KindValidation, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func UnsupportedType(message string) *Error { return New(KindUnsupportedType, message) }
func TooLarge(message string) *Error        { return New(KindTooLarge, message) }
func TooManyFiles(message string) *Error    { return New(KindTooManyFiles, message) }
func EmptyUpload(message string) *Error     { return New(KindEmptyUpload, message) }
func RateLimited(message string) *Error     { return New(KindRateLimited, message) }

// Storage wraps an I/O failure.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindUnsupportedType, KindTooLarge, KindTooManyFiles, KindEmptyUpload:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show a client. Storage and internal
// errors never expose the wrapped OS error.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindStorage:
		if e.Message != "" {
			return e.Message
		}
		return "storage failure"
	case KindInternal:
		return "internal error"
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}
