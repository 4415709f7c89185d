package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the wizard domain.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrRateLimited    = errors.New("rate limited")
	ErrBudgetExceeded = errors.New("budget exceeded")
	ErrPolicyRejected = errors.New("policy rejected")
	ErrBadRequest     = errors.New("bad request")
	ErrDeviceBlocked  = errors.New("device blocked")
)

// Code is a typed backend error code per the gateway error taxonomy.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeInvalidInput       Code = "invalid_input"
	CodeAuthRequired       Code = "auth_required"
	CodeConflict           Code = "conflict"
	CodeUnsupported        Code = "unsupported_operation"
	CodeTimeout            Code = "timeout"
	CodeBackendUnavailable Code = "backend_unavailable"
	CodeInternal           Code = "internal"
)

// Retryable reports whether the code marks a transient condition.
func (c Code) Retryable() bool {
	return c == CodeTimeout || c == CodeBackendUnavailable
}

// Error is a typed backend error. It carries the taxonomy code and the
// backend it originated from so boundaries can normalize it exactly once.
type Error struct {
	Code    Code   `json:"code"`
	Backend string `json:"backend,omitempty"`
	Message string `json:"message"`
	wrapped error
}

// NewError constructs a typed error at the source.
func NewError(code Code, backend, message string) *Error {
	return &Error{Code: code, Backend: backend, Message: message}
}

// WrapError attaches a typed code to an underlying error.
func WrapError(code Code, backend string, err error) *Error {
	return &Error{Code: code, Backend: backend, Message: err.Error(), wrapped: err}
}

func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s: %s: %s", e.Backend, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error { return e.wrapped }

// Retryable reports whether the error is safe to retry.
func (e *Error) Retryable() bool { return e.Code.Retryable() }

// lexicalRules maps message phrases to codes, checked in order. Used only
// when a raw error crosses a component boundary without a typed code;
// prefer typed construction at the source.
var lexicalRules = []struct {
	phrase string
	code   Code
}{
	{"not found", CodeNotFound},
	{"no such", CodeNotFound},
	{"timed out", CodeTimeout},
	{"timeout", CodeTimeout},
	{"deadline exceeded", CodeTimeout},
	{"already exists", CodeConflict},
	{"conflict", CodeConflict},
	{"permission denied", CodeAuthRequired},
	{"unauthorized", CodeAuthRequired},
	{"forbidden", CodeAuthRequired},
	{"unsupported", CodeUnsupported},
	{"not implemented", CodeUnsupported},
	{"invalid", CodeInvalidInput},
	{"connection refused", CodeBackendUnavailable},
	{"unavailable", CodeBackendUnavailable},
}

// Classify normalizes an arbitrary error into a typed *Error. Typed errors
// pass through unchanged; context cancellation maps to timeout; anything
// else falls back to the lexical rule table, defaulting to internal.
func Classify(err error, backend string) *Error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		return we
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(CodeTimeout, backend, err)
	}
	msg := strings.ToLower(err.Error())
	for _, r := range lexicalRules {
		if strings.Contains(msg, r.phrase) {
			return WrapError(r.code, backend, err)
		}
	}
	return WrapError(CodeInternal, backend, err)
}
