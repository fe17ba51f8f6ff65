package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is used when a key does not exist.
	RedisNotFoundMessage = "redis key not found"
	// PostgresErrorMessage describes Postgres related failures.
	PostgresErrorMessage = "postgres operation failed"
	// PostgresNotFoundMessage is used when a row does not exist.
	PostgresNotFoundMessage = "postgres row not found"
	// BackendErrorMessage describes a rejected reservation backend request.
	BackendErrorMessage = "reservation backend request failed"
	// BackendUnavailableMessage describes a cold or unreachable reservation backend.
	BackendUnavailableMessage = "reservation backend unavailable"
	// InvalidInputMessage is used for caller mistakes detected before any I/O.
	InvalidInputMessage = "invalid input"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// InvalidInput reports a caller error with a 400 status.
func InvalidInput(format string, args ...any) *AppError {
	return New(fmt.Errorf(format, args...), http.StatusBadRequest, InvalidInputMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
