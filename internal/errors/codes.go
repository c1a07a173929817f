// Package errors provides structured error handling for fusesearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (source files, index files)
//   - 3XX: Backend errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates a retrieval backend failed or was skipped.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the call cannot produce a result.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigParse   = "ERR_102_CONFIG_PARSE"

	// IO errors (200-299)
	ErrCodeSourceUnavailable = "ERR_201_SOURCE_UNAVAILABLE"
	ErrCodeIndexLocked       = "ERR_202_INDEX_LOCKED"
	ErrCodeCorruptIndex      = "ERR_203_CORRUPT_INDEX"

	// Backend errors (300-399)
	ErrCodeBackendTimeout    = "ERR_301_BACKEND_TIMEOUT"
	ErrCodeBackendError      = "ERR_302_BACKEND_ERROR"
	ErrCodeBackendSkipped    = "ERR_303_BACKEND_SKIPPED"
	ErrCodeAllBackendsFailed = "ERR_304_ALL_BACKENDS_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidQuery = "ERR_401_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeNilDependency = "ERR_502_NIL_DEPENDENCY"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "3" from "ERR_301_BACKEND_TIMEOUT"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeAllBackendsFailed, ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeBackendSkipped, ErrCodeSourceUnavailable:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendTimeout, ErrCodeBackendSkipped, ErrCodeIndexLocked, ErrCodeAllBackendsFailed:
		return true
	default:
		return false
	}
}
