package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure. The string value is part of the HTTP contract.
type Kind string

const (
	KindSlotConflict      Kind = "SlotConflict"
	KindResourceOccupied  Kind = "ResourceOccupied"
	KindOTRoomConflict    Kind = "OTRoomConflict"
	KindInvalidTransition Kind = "InvalidTransition"
	KindResourceInUse     Kind = "ResourceInUse"
	KindNotFound          Kind = "NotFound"
	KindValidation        Kind = "ValidationError"
	KindUnavailable       Kind = "Unavailable"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func SlotConflict(format string, args ...any) *Error {
	return New(KindSlotConflict, format, args...)
}

func ResourceOccupied(format string, args ...any) *Error {
	return New(KindResourceOccupied, format, args...)
}

func OTRoomConflict(format string, args ...any) *Error {
	return New(KindOTRoomConflict, format, args...)
}

func InvalidTransition(from, to string) *Error {
	return New(KindInvalidTransition, "cannot transition from %s to %s", from, to)
}

func ResourceInUse(format string, args ...any) *Error {
	return New(KindResourceInUse, format, args...)
}

func NotFound(entity, id string) *Error {
	return New(KindNotFound, "%s %s not found", entity, id)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindSlotConflict, KindResourceOccupied, KindOTRoomConflict, KindResourceInUse:
		return http.StatusConflict
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
