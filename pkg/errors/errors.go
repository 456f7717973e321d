package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies engine failures. All kinds are local and recoverable;
// none should take the process down.
type Kind int

const (
	// KindInternal covers invariant violations that degrade to a logged no-op.
	KindInternal Kind = iota
	// KindNotFound: an unknown metric, alert, or policy id was referenced.
	KindNotFound
	// KindConflict: duplicate registration of a must-be-unique id.
	KindConflict
	// KindInvalidValue: a rejected input such as a negative counter increment.
	KindInvalidValue
	// KindAlreadyTerminal: acting on an alert that is already resolved.
	KindAlreadyTerminal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidValue:
		return "invalid_value"
	case KindAlreadyTerminal:
		return "already_terminal"
	default:
		return "internal"
	}
}

// Error is the engine's error type. Handlers map Kind to an HTTP status;
// callers inside the engine branch on Kind via IsKind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidValue builds a KindInvalidValue error.
func InvalidValue(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidValue, Message: fmt.Sprintf(format, args...)}
}

// AlreadyTerminal builds a KindAlreadyTerminal error.
func AlreadyTerminal(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAlreadyTerminal, Message: fmt.Sprintf(format, args...)}
}

// Internal builds a KindInternal error.
func Internal(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an engine Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus returns the status code the API layer should answer with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidValue:
		return http.StatusBadRequest
	case KindAlreadyTerminal:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
