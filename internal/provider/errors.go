package provider

import (
	"errors"
	"fmt"
)

// ErrorClass partitions provider failures by what retrying can achieve.
type ErrorClass string

const (
	// ClassTransient failures (network, timeout, rate limit, 5xx) may
	// succeed later and are eligible for queueing and retry.
	ClassTransient ErrorClass = "transient"
	// ClassPermanent failures (validation, not found, unauthorized,
	// duplicate) cannot be fixed by retrying and are surfaced immediately.
	ClassPermanent ErrorClass = "permanent"
	// ClassCredential failures require re-authentication; retrying with the
	// same session cannot help.
	ClassCredential ErrorClass = "credential"
)

// Error codes returned by the remote list provider boundary.
const (
	CodeNetwork        = "network_error"
	CodeTimeout        = "timeout"
	CodeRateLimited    = "rate_limited"
	CodeRemoteDown     = "remote_unavailable"
	CodeNotFound       = "not_found"
	CodeUnauthorized   = "unauthorized"
	CodeValidation     = "validation_failed"
	CodeDuplicateMovie = "duplicate_movie"
	CodeSessionExpired = "session_expired"
)

// Error is the typed failure returned by every ListClient operation.
type Error struct {
	Code    string
	Class   ErrorClass
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransientError wraps a retry-eligible failure.
func NewTransientError(code, message string, err error) *Error {
	return &Error{Code: code, Class: ClassTransient, Message: message, Err: err}
}

// NewPermanentError wraps a failure that retrying cannot fix.
func NewPermanentError(code, message string, err error) *Error {
	return &Error{Code: code, Class: ClassPermanent, Message: message, Err: err}
}

// NewSessionExpiredError wraps an expired-credential failure.
func NewSessionExpiredError(message string) *Error {
	return &Error{Code: CodeSessionExpired, Class: ClassCredential, Message: message}
}

// ClassOf returns the error class, defaulting unknown errors to transient so
// an unclassified failure is retried rather than silently dropped.
func ClassOf(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}

// IsTransient reports whether the failure is retry-eligible.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsSessionExpired reports whether the failure requires re-authentication.
func IsSessionExpired(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeSessionExpired
}

// IsDuplicateMovie reports whether the provider rejected an add because the
// movie is already on the list.
func IsDuplicateMovie(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeDuplicateMovie
}

// IsNotFound reports whether the provider could not find the target.
func IsNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeNotFound
}

// Code returns the provider error code, or empty for untyped errors.
func Code(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
