// Package apperr defines the typed failures surfaced by the parking engine.
// Every failure carries a stable Kind code plus a human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindAlreadyActive     Kind = "ALREADY_ACTIVE"
	KindNoActiveSession   Kind = "NO_ACTIVE_SESSION"
	KindNoCapacity        Kind = "NO_CAPACITY"
	KindInvalidLevel      Kind = "INVALID_LEVEL"
	KindStorage           Kind = "STORAGE_ERROR"
	KindSensorUnavailable Kind = "SENSOR_UNAVAILABLE"
	KindValidation        Kind = "VALIDATION"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindConflict          Kind = "CONFLICT"
	KindInternal          Kind = "INTERNAL"
)

// Error is a classified failure. Two Errors match under errors.Is when their
// kinds match, so the package sentinels below can be used as targets.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAlreadyActive     = &Error{Kind: KindAlreadyActive, Message: "already active"}
	ErrNoActiveSession   = &Error{Kind: KindNoActiveSession, Message: "no active session"}
	ErrNoCapacity        = &Error{Kind: KindNoCapacity, Message: "no free slot"}
	ErrInvalidLevel      = &Error{Kind: KindInvalidLevel, Message: "charge level must be within [0,100]"}
	ErrStorage           = &Error{Kind: KindStorage, Message: "storage failure"}
	ErrSensorUnavailable = &Error{Kind: KindSensorUnavailable, Message: "sensor unavailable"}
	ErrValidation        = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Storage wraps a persistence failure.
func Storage(op string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: op + " failed", Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message. Causes are not exposed.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a kind to the status code the API responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyActive, KindNoActiveSession, KindConflict:
		return http.StatusConflict
	case KindNoCapacity, KindSensorUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidLevel, KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
