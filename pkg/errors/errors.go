package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an error for routing decisions at stage boundaries.
type ErrorCode string

const (
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeTransient    ErrorCode = "TRANSIENT_UPSTREAM"
	CodeBreakerOpen  ErrorCode = "BREAKER_OPEN"
	CodeStore        ErrorCode = "STORE_ERROR"
	CodeDeadline     ErrorCode = "DEADLINE_EXCEEDED"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, a human-readable message and an optional cause.
// The orchestrator maps codes to fallback branches; nothing else should
// switch on error strings.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError creates an invalid-input error.
func NewInvalidInputError(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// NewTransientError wraps a retryable upstream failure (network timeout,
// transport error from web search or the LLM).
func NewTransientError(message string, cause error) *AppError {
	return &AppError{Code: CodeTransient, Message: message, Err: cause}
}

// NewBreakerOpenError signals that a circuit breaker refused the call.
func NewBreakerOpenError(service string) *AppError {
	return &AppError{Code: CodeBreakerOpen, Message: "circuit open for " + service}
}

// NewStoreError wraps a vector-store or session-store failure.
func NewStoreError(message string, cause error) *AppError {
	return &AppError{Code: CodeStore, Message: message, Err: cause}
}

// NewDeadlineError signals that a stage or the whole request ran out of budget.
func NewDeadlineError(message string) *AppError {
	return &AppError{Code: CodeDeadline, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

// NewInternalErrorWithCause creates an internal error wrapping a cause.
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

func codeOf(err error) (ErrorCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

// IsInvalidInput reports whether err is an invalid-input error.
func IsInvalidInput(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeInvalidInput
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeNotFound
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeTransient
}

// IsBreakerOpen reports whether err came from an open circuit breaker.
func IsBreakerOpen(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeBreakerOpen
}

// IsDeadline reports whether err is a budget/deadline failure.
func IsDeadline(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeDeadline
}
