package models

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeExternal ErrorType = "external"
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeTimeout  ErrorType = "timeout"
	ErrorTypeNotFound ErrorType = "not_found"
)

// AppError is the structured error carried across service boundaries.
// Agent methods absorb external failures into documented fallbacks; the
// aggregate boundaries (comprehensive analysis, coordinate) convert
// whatever escapes into structured responses.
type AppError struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Type     ErrorType              `json:"type"`
	Cause    error                  `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code and type so sentinel AppErrors work with errors.Is.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Type == other.Type
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func NewExternalError(code, message string) *AppError {
	return &AppError{Code: code, Message: message, Type: ErrorTypeExternal}
}

func NewInternalError(code, message string) *AppError {
	return &AppError{Code: code, Message: message, Type: ErrorTypeInternal}
}

func NewTimeoutError(code, message string) *AppError {
	return &AppError{Code: code, Message: message, Type: ErrorTypeTimeout}
}

func NewNotFoundError(code, message string) *AppError {
	return &AppError{Code: code, Message: message, Type: ErrorTypeNotFound}
}

func WrapExternalError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Type: ErrorTypeExternal, Cause: cause}
}
