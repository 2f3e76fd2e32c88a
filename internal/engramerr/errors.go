// Package engramerr defines the typed error kinds surfaced across the engine's
// public API.
package engramerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure.
type Kind string

const (
	Validation    Kind = "validation"
	Storage       Kind = "storage"
	Embedding     Kind = "embedding"
	Search        Kind = "search"
	Timeout       Kind = "timeout"
	Configuration Kind = "configuration"
)

// Error is a typed error carrying a Kind, a message, and an optional wrapped cause.
type Error struct {
	Err     error
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func ValidationErrorf(format string, args ...any) *Error { return newf(Validation, format, args...) }

func StorageErrorf(format string, args ...any) *Error { return newf(Storage, format, args...) }

func WrapStorage(err error, format string, args ...any) *Error {
	return wrapf(Storage, err, format, args...)
}

func EmbeddingErrorf(format string, args ...any) *Error { return newf(Embedding, format, args...) }

func WrapEmbedding(err error, format string, args ...any) *Error {
	return wrapf(Embedding, err, format, args...)
}

func SearchErrorf(format string, args ...any) *Error { return newf(Search, format, args...) }

func TimeoutErrorf(format string, args ...any) *Error { return newf(Timeout, format, args...) }

func ConfigurationErrorf(format string, args ...any) *Error {
	return newf(Configuration, format, args...)
}

func WrapConfiguration(err error, format string, args ...any) *Error {
	return wrapf(Configuration, err, format, args...)
}

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
