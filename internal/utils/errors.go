package utils

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary mapping and degradation decisions.
type Kind string

const (
	KindUnsupportedFormat Kind = "unsupported_format"
	KindInvalidArgument   Kind = "invalid_argument"
	KindMalformedInput    Kind = "malformed_input"
	KindCapacityExceeded  Kind = "capacity_exceeded"
	KindNotFound          Kind = "not_found"
	KindNotReady          Kind = "not_ready"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

// AppError wraps an operation, error kind, human-facing message, and
// underlying error.
type AppError struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op string, kind Kind, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal
// for untyped errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
