package common

import (
	"errors"
	"net/http"
)

// Error codes shared across domain packages. IMMUTABLE_STATE is reported
// distinctly from generic validation so callers can tell a frozen entity
// apart from a malformed request.
const (
	CodeValidation     = "VALIDATION"
	CodeConflict       = "CONFLICT"
	CodeNotFound       = "NOT_FOUND"
	CodeImmutableState = "IMMUTABLE_STATE"
	CodeInternal       = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError flags malformed input: missing items, non-positive
// quantities, ambiguous dates, quantities exceeding availability.
func ValidationError(message string, err error) *AppError {
	return NewAppError(CodeValidation, message, http.StatusBadRequest, err)
}

// ConflictError flags a version mismatch or a uniqueness violation.
func ConflictError(message string, err error) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict, err)
}

// NotFoundError flags a missing or foreign entity reference.
func NotFoundError(message string, err error) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound, err)
}

// ImmutableStateError flags an edit attempt against a frozen entity.
func ImmutableStateError(message string, err error) *AppError {
	return NewAppError(CodeImmutableState, message, http.StatusBadRequest, err)
}

// InternalError wraps an unexpected failure.
func InternalError(err error) *AppError {
	return NewAppError(CodeInternal, "internal error", http.StatusInternalServerError, err)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// AsAppError extracts the AppError from an error chain, defaulting to an
// InternalError so unexpected failures never leak raw detail.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return InternalError(err)
}
