// Package errors provides structured error handling for Shebe.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index artifact)
//   - 3XX: Session lifecycle errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategorySession indicates session lifecycle errors.
	CategorySession Category = "SESSION"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeInvalidConfig  = "ERR_102_INVALID_CONFIG"

	// IO errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileGone      = "ERR_202_FILE_GONE"
	ErrCodeIOFailure     = "ERR_203_IO_FAILURE"
	ErrCodeCorruptIndex  = "ERR_204_CORRUPT_INDEX"
	ErrCodeEncoding      = "ERR_205_ENCODING"
	ErrCodeUnsupported   = "ERR_206_UNSUPPORTED_FILE"
	ErrCodeFileTooLarge  = "ERR_207_FILE_TOO_LARGE"

	// Session errors (300-399)
	ErrCodeSessionNotFound     = "ERR_301_SESSION_NOT_FOUND"
	ErrCodeSessionExists       = "ERR_302_SESSION_EXISTS"
	ErrCodeSessionBusy         = "ERR_303_SESSION_BUSY"
	ErrCodeSchemaUpgrade       = "ERR_304_SCHEMA_UPGRADE_REQUIRED"
	ErrCodeSchemaIncompatible  = "ERR_305_SCHEMA_INCOMPATIBLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery  = "ERR_402_INVALID_QUERY"
	ErrCodeInvalidPath   = "ERR_403_INVALID_PATH"
	ErrCodeLimitExceeded = "ERR_404_LIMIT_EXCEEDED"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeSearchFailed  = "ERR_502_SEARCH_FAILED"
	ErrCodeIndexFailed   = "ERR_503_INDEX_FAILED"
	ErrCodeTimeout       = "ERR_504_TIMEOUT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "301" from "ERR_301_SESSION_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategorySession
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeSchemaIncompatible:
		return SeverityFatal
	case ErrCodeEncoding, ErrCodeUnsupported, ErrCodeFileTooLarge:
		// Per-file ingestion failures are recovered locally.
		return SeverityWarning
	}
	return SeverityError
}
