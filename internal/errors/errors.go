// Package errors defines the structured error type shared by the job stores,
// the permit, the executor and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the job (or another resource) is unknown.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeAlreadyExists indicates an id collision on create.
	ErrCodeAlreadyExists ErrorCode = "already_exists"
	// ErrCodeValidation indicates a malformed payload or a missing referenced asset.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInvalidTransition indicates a status change that would move a job backwards or out of a terminal state.
	ErrCodeInvalidTransition ErrorCode = "invalid_transition"
	// ErrCodeExternalFailure indicates a collaborator (download, render) failed.
	ErrCodeExternalFailure ErrorCode = "external_failure"
	// ErrCodeTimeout indicates a bounded wait elapsed. Retryable.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
	// ErrCodeUnavailable indicates a backend (queue, store) could not be reached.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the payload field that caused the error (validation only).
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with the given code and a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return Newf(ErrCodeNotFound, format, args...)
}

// AlreadyExistsf creates an AlreadyExists error with formatted message.
func AlreadyExistsf(format string, args ...any) *AppError {
	return Newf(ErrCodeAlreadyExists, format, args...)
}

// Validation creates a Validation error.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// Validationf creates a Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a Validation error for a specific payload field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// InvalidTransitionf creates an InvalidTransition error with formatted message.
func InvalidTransitionf(format string, args ...any) *AppError {
	return Newf(ErrCodeInvalidTransition, format, args...)
}

// ExternalFailuref creates an ExternalFailure error with formatted message.
func ExternalFailuref(format string, args ...any) *AppError {
	return Newf(ErrCodeExternalFailure, format, args...)
}

// Timeoutf creates a Timeout error with formatted message.
func Timeoutf(format string, args ...any) *AppError {
	return Newf(ErrCodeTimeout, format, args...)
}

// Internalf creates an Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return Newf(ErrCodeInternal, format, args...)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsAlreadyExists checks if an error is an AlreadyExists error.
func IsAlreadyExists(err error) bool { return isCode(err, ErrCodeAlreadyExists) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsInvalidTransition checks if an error is an InvalidTransition error.
func IsInvalidTransition(err error) bool { return isCode(err, ErrCodeInvalidTransition) }

// IsExternalFailure checks if an error is an ExternalFailure error.
func IsExternalFailure(err error) bool { return isCode(err, ErrCodeExternalFailure) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// IsUnavailable checks if an error is an Unavailable error.
func IsUnavailable(err error) bool { return isCode(err, ErrCodeUnavailable) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// Message returns the human-readable message of the outermost AppError,
// falling back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
