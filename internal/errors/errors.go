package errors

import (
	"fmt"
)

// MnemoError is the structured error type for MnemoLite.
// It provides rich context for error handling, logging, and user presentation.
type MnemoError struct {
	// Code is the unique error code (e.g., "ERR_301_PARSE_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Cache, Pipeline, Store, etc.).
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

// Error implements the error interface.
func (e *MnemoError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MnemoError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with MnemoError.
func (e *MnemoError) Is(target error) bool {
	if t, ok := target.(*MnemoError); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the stable wire-level kind for this error.
func (e *MnemoError) Kind() string {
	if k, ok := kindByCode[e.Code]; ok {
		return k
	}
	return KindInternal
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *MnemoError) WithDetail(key, value string) *MnemoError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *MnemoError) WithSuggestion(suggestion string) *MnemoError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MnemoError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MnemoError {
	return &MnemoError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MnemoError from an existing error.
// The error's message becomes the MnemoError message.
func Wrap(code string, err error) *MnemoError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// SkippedError creates a skipped-file error with the skip reason attached.
func SkippedError(reason string) *MnemoError {
	return New(ErrCodeSkippedFile, "file skipped: "+reason, nil).WithDetail("reason", reason)
}

// UnknownLanguageError creates an unknown-language error for a file.
func UnknownLanguageError(path string) *MnemoError {
	return New(ErrCodeUnknownLanguage, "no parser for file", nil).WithDetail("file", path)
}

// ParseError creates a parse error.
func ParseError(message string, cause error) *MnemoError {
	return New(ErrCodeParseFailed, message, cause)
}

// ChunkingError creates a chunking error.
func ChunkingError(message string, cause error) *MnemoError {
	return New(ErrCodeChunkingFailed, message, cause)
}

// EmbeddingError creates an embedding error. Recoverable: chunks are
// persisted without vectors and remain lexically searchable.
func EmbeddingError(message string, cause error) *MnemoError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// PersistError creates a persistence error (transaction rolled back).
func PersistError(message string, cause error) *MnemoError {
	return New(ErrCodePersistFailed, message, cause)
}

// LockDeniedError creates a lock-denied error for a repository.
func LockDeniedError(repository string) *MnemoError {
	return New(ErrCodeLockDenied, "indexing already in progress for "+repository, nil).
		WithDetail("repository", repository).
		WithSuggestion("wait for the running operation to finish, then retry")
}

// TimeoutError creates a timeout error for a named operation.
func TimeoutError(op string, cause error) *MnemoError {
	return New(ErrCodeTimeout, op+" timed out", cause).WithDetail("op", op)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *MnemoError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MnemoError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a MnemoError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if me, ok := err.(*MnemoError); ok {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if me, ok := err.(*MnemoError); ok {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a MnemoError.
// Returns empty string if not a MnemoError.
func GetCode(err error) string {
	if me, ok := err.(*MnemoError); ok {
		return me.Code
	}
	return ""
}

// KindOf extracts the wire kind from an error. Non-MnemoError values
// map to "internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if me, ok := err.(*MnemoError); ok {
		return me.Kind()
	}
	return KindInternal
}

// GetCategory extracts the category from a MnemoError.
// Returns empty string if not a MnemoError.
func GetCategory(err error) Category {
	if me, ok := err.(*MnemoError); ok {
		return me.Category
	}
	return ""
}
