// Package errors provides structured error handling for MnemoLite.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: cache errors
//   - 2XX: input and file-policy errors
//   - 3XX: pipeline errors (parse, chunk, embed, oracle)
//   - 4XX: store errors
//   - 5XX: coordination errors
//   - 6XX: internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryCache indicates L1/L2 cache errors.
	CategoryCache Category = "CACHE"
	// CategoryInput indicates input validation and file-policy errors.
	CategoryInput Category = "INPUT"
	// CategoryPipeline indicates per-file indexing pipeline errors.
	CategoryPipeline Category = "PIPELINE"
	// CategoryStore indicates persistence errors.
	CategoryStore Category = "STORE"
	// CategoryCoordinator indicates locking, scheduling and timeout errors.
	CategoryCoordinator Category = "COORDINATOR"
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Cache errors (100-199)
	ErrCodeCacheUnavailable = "ERR_101_CACHE_UNAVAILABLE"

	// Input errors (200-299)
	ErrCodeSkippedFile     = "ERR_201_SKIPPED_FILE"
	ErrCodeUnknownLanguage = "ERR_202_UNKNOWN_LANGUAGE"
	ErrCodeInvalidInput    = "ERR_203_INVALID_INPUT"

	// Pipeline errors (300-399)
	ErrCodeParseFailed     = "ERR_301_PARSE_FAILED"
	ErrCodeChunkingFailed  = "ERR_302_CHUNKING_FAILED"
	ErrCodeEmbeddingFailed = "ERR_303_EMBEDDING_FAILED"
	ErrCodeOracleFailed    = "ERR_304_ORACLE_FAILED"

	// Store errors (400-499)
	ErrCodePersistFailed    = "ERR_401_PERSIST_FAILED"
	ErrCodeStoreUnavailable = "ERR_402_STORE_UNAVAILABLE"

	// Coordination errors (500-599)
	ErrCodeLockDenied = "ERR_501_LOCK_DENIED"
	ErrCodeTimeout    = "ERR_502_TIMEOUT"

	// Internal errors (600-699)
	ErrCodeInternal = "ERR_601_INTERNAL"
)

// Kind is the wire-level error kind surfaced by adapters. Kinds are
// stable: clients branch on them.
const (
	KindCacheUnavailable = "cache_unavailable"
	KindSkippedFile      = "skipped_file"
	KindParseError       = "parse_error"
	KindChunkingError    = "chunking_error"
	KindEmbeddingError   = "embedding_error"
	KindOracleError      = "oracle_error"
	KindPersistError     = "persist_error"
	KindTimeout          = "timeout"
	KindLockDenied       = "lock_denied"
	KindUnknownLanguage  = "unknown_language"
	KindInvalidInput     = "invalid_input"
	KindInternal         = "internal"
)

// kindByCode maps internal codes to wire kinds.
var kindByCode = map[string]string{
	ErrCodeCacheUnavailable: KindCacheUnavailable,
	ErrCodeSkippedFile:      KindSkippedFile,
	ErrCodeUnknownLanguage:  KindUnknownLanguage,
	ErrCodeInvalidInput:     KindInvalidInput,
	ErrCodeParseFailed:      KindParseError,
	ErrCodeChunkingFailed:   KindChunkingError,
	ErrCodeEmbeddingFailed:  KindEmbeddingError,
	ErrCodeOracleFailed:     KindOracleError,
	ErrCodePersistFailed:    KindPersistError,
	ErrCodeStoreUnavailable: KindPersistError,
	ErrCodeLockDenied:       KindLockDenied,
	ErrCodeTimeout:          KindTimeout,
	ErrCodeInternal:         KindInternal,
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion (e.g. "301" from "ERR_301_PARSE_FAILED")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryCache
	case '2':
		return CategoryInput
	case '3':
		return CategoryPipeline
	case '4':
		return CategoryStore
	case '5':
		return CategoryCoordinator
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreUnavailable:
		return SeverityFatal
	case ErrCodeSkippedFile, ErrCodeUnknownLanguage:
		return SeverityInfo
	}

	// Degraded-but-continuing conditions get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Retryable here means a re-run of the same operation can succeed
// without the user changing anything: transient transport and timeout
// conditions. Content errors (parse, chunking) are not retryable, and
// lock_denied is surfaced to the caller instead of retried internally.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeCacheUnavailable, ErrCodeEmbeddingFailed, ErrCodeOracleFailed,
		ErrCodePersistFailed, ErrCodeTimeout:
		return true
	default:
		return false
	}
}
