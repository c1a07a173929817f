package errors

import (
	"errors"
	"fmt"
)

// FuseError is the structured error type for fusesearch.
// It provides rich context for error handling, logging, and user presentation.
type FuseError struct {
	// Code is the unique error code (e.g., "ERR_301_BACKEND_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is checks. Matching is by code, so any FuseError
// carrying the same code satisfies errors.Is(err, ErrX).
var (
	ErrBackendTimeout    = &FuseError{Code: ErrCodeBackendTimeout}
	ErrBackendError      = &FuseError{Code: ErrCodeBackendError}
	ErrBackendSkipped    = &FuseError{Code: ErrCodeBackendSkipped}
	ErrAllBackendsFailed = &FuseError{Code: ErrCodeAllBackendsFailed}
	ErrSourceUnavailable = &FuseError{Code: ErrCodeSourceUnavailable}
	ErrInvalidQuery      = &FuseError{Code: ErrCodeInvalidQuery}
	ErrIndexLocked       = &FuseError{Code: ErrCodeIndexLocked}
	ErrNilDependency     = &FuseError{Code: ErrCodeNilDependency}
)

// Error implements the error interface.
func (e *FuseError) Error() string {
	if e.Cause != nil && e.Message != e.Cause.Error() {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FuseError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *FuseError) Is(target error) bool {
	if t, ok := target.(*FuseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *FuseError) WithDetail(key, value string) *FuseError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *FuseError) WithSuggestion(suggestion string) *FuseError {
	e.Suggestion = suggestion
	return e
}

// New creates a new FuseError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FuseError {
	return &FuseError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a FuseError from an existing error.
// The error's message becomes the FuseError message.
func Wrap(code string, err error) *FuseError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *FuseError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InvalidQuery creates a query validation error.
func InvalidQuery(message string) *FuseError {
	return New(ErrCodeInvalidQuery, message, nil)
}

// BackendTimeout reports that backend did not answer within timeout.
func BackendTimeout(backend string, cause error) *FuseError {
	return New(ErrCodeBackendTimeout, "backend "+backend+" timed out", cause).
		WithDetail("backend", backend)
}

// BackendError reports an explicit failure returned by backend.
func BackendError(backend string, cause error) *FuseError {
	return New(ErrCodeBackendError, "backend "+backend+" failed", cause).
		WithDetail("backend", backend)
}

// BackendSkipped reports that backend was not invoked because its breaker is open.
func BackendSkipped(backend string) *FuseError {
	return New(ErrCodeBackendSkipped, "backend "+backend+" skipped", ErrCircuitOpen).
		WithDetail("backend", backend)
}

// AllBackendsFailed joins every per-backend failure into one terminal error.
func AllBackendsFailed(causes ...error) *FuseError {
	return New(ErrCodeAllBackendsFailed, "all search backends failed", errors.Join(causes...)).
		WithSuggestion("check backend health with the search_stats tool or rerun with --debug")
}

// SourceUnavailable reports that a match's source file could not be read.
func SourceUnavailable(path string, cause error) *FuseError {
	return New(ErrCodeSourceUnavailable, "source unavailable: "+path, cause).
		WithDetail("path", path)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *FuseError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain holds a FuseError with Retryable set.
func IsRetryable(err error) bool {
	var fe *FuseError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var fe *FuseError
	if errors.As(err, &fe) {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first FuseError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var fe *FuseError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// GetCategory extracts the category from the first FuseError in the chain.
func GetCategory(err error) Category {
	var fe *FuseError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}
