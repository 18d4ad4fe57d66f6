package service

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type ErrorType int

const (
	ErrUnauthorized ErrorType = iota
	ErrRateLimited
	ErrTokenBudgetExceeded
	ErrValidation
	ErrNotFound
	ErrConflict
	ErrPlanner
	ErrUnknown
)

const contextRetryAfter = "retry_after"

// Error is the typed error returned by the service layer. Adapters map Type
// to their own status codes.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ctxParts []string
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error type to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRateLimited, ErrTokenBudgetExceeded:
		return http.StatusTooManyRequests
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (t ErrorType) String() string {
	switch t {
	case ErrUnauthorized:
		return "Unauthorized"
	case ErrRateLimited:
		return "RateLimited"
	case ErrTokenBudgetExceeded:
		return "TokenBudgetExceeded"
	case ErrValidation:
		return "Validation"
	case ErrNotFound:
		return "NotFound"
	case ErrConflict:
		return "Conflict"
	case ErrPlanner:
		return "Planner"
	default:
		return "Unknown"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Type == errorType
	}
	return false
}

// AsError returns err as a service error, wrapping foreign errors as ErrUnknown.
func AsError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return NewErrorWithCause(ErrUnknown, "internal error", err)
}

// RetryAfter returns the number of seconds a rate-limited caller should wait.
func RetryAfter(err error) (int, bool) {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return 0, false
	}
	v, ok := svcErr.Context[contextRetryAfter].(int)
	return v, ok
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and turns a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
