package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows which HTTP status it maps to.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a cause that is logged but never sent to clients.
func Wrap(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func Validation(message string) *AppError {
	return New(http.StatusBadRequest, message)
}

func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(http.StatusForbidden, message)
}

func NotFound(message string) *AppError {
	return New(http.StatusNotFound, message)
}

// Misconfigured marks a request that cannot be served because the server
// itself is missing configuration.
func Misconfigured(message string) *AppError {
	return New(http.StatusInternalServerError, message)
}

// Aggregation wraps a failure inside a roll-up run.
func Aggregation(step string, err error) *AppError {
	return Wrap(http.StatusInternalServerError, fmt.Sprintf("aggregation failed: %s", step), err)
}

func Unavailable(message string) *AppError {
	return New(http.StatusServiceUnavailable, message)
}

// StatusCode returns the HTTP status carried by err, or 500.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text safe to return to a client for err.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}
