package errors

import (
	"errors"
	"fmt"
)

// ShebeError is the structured error type for Shebe.
// It provides rich context for error handling, logging, and client presentation.
type ShebeError struct {
	// Code is the unique error code (e.g., "ERR_301_SESSION_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Session, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *ShebeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ShebeError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ShebeError.
func (e *ShebeError) Is(target error) bool {
	if t, ok := target.(*ShebeError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ShebeError) WithDetail(key, value string) *ShebeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ShebeError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *ShebeError {
	return &ShebeError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Newf creates a new ShebeError with a formatted message.
func Newf(code string, format string, args ...any) *ShebeError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a ShebeError from an existing error.
// The error's message becomes the ShebeError message.
func Wrap(code string, err error) *ShebeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// SessionNotFound creates a session-not-found error.
func SessionNotFound(name string) *ShebeError {
	return Newf(ErrCodeSessionNotFound, "session %q not found", name).WithDetail("session", name)
}

// SessionExists creates a session-already-exists error.
func SessionExists(name string) *ShebeError {
	return Newf(ErrCodeSessionExists, "session %q already exists", name).WithDetail("session", name)
}

// SessionBusy creates a session-busy error for a held mutation lock.
func SessionBusy(name string) *ShebeError {
	return Newf(ErrCodeSessionBusy, "session %q is locked by another operation", name).WithDetail("session", name)
}

// InvalidInput creates a validation error.
func InvalidInput(message string) *ShebeError {
	return New(ErrCodeInvalidInput, message, nil)
}

// IOFailure creates an I/O error.
func IOFailure(message string, cause error) *ShebeError {
	return New(ErrCodeIOFailure, message, cause)
}

// GetCode extracts the error code from a ShebeError anywhere in the chain.
// Returns empty string if no ShebeError is present.
func GetCode(err error) string {
	var se *ShebeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a ShebeError anywhere in the chain.
// Returns empty string if no ShebeError is present.
func GetCategory(err error) Category {
	var se *ShebeError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// HasCode reports whether err carries the given Shebe error code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var se *ShebeError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}
