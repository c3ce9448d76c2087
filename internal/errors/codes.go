// Package errors provides structured error handling for ragcore.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (catalog, index files)
//   - 3XX: Provider errors (LLM, embedder, reranker)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Flow-control errors (budget, backpressure, cancellation)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates catalog and index storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryProvider indicates LLM/embedding/rerank provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input and schema validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryFlow indicates flow-control stops: budget, backpressure, cancellation.
	CategoryFlow Category = "FLOW"
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
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreFailed  = "ERR_201_STORE_FAILED"
	ErrCodeFileNotFound = "ERR_202_FILE_NOT_FOUND"
	ErrCodeCorruptIndex = "ERR_203_CORRUPT_INDEX"
	ErrCodeFileTooLarge = "ERR_204_FILE_TOO_LARGE"

	// Provider errors (300-399)
	ErrCodeRateLimited         = "ERR_301_RATE_LIMITED"
	ErrCodeProviderTimeout     = "ERR_302_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_303_PROVIDER_UNAVAILABLE"
	ErrCodeAuthFailed          = "ERR_304_AUTH_FAILED"
	ErrCodeAllProvidersFailed  = "ERR_305_ALL_PROVIDERS_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput       = "ERR_401_INVALID_INPUT"
	ErrCodeSchemaViolation    = "ERR_402_SCHEMA_VIOLATION"
	ErrCodeDimensionMismatch  = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeUnknownVocabTerm   = "ERR_404_UNKNOWN_VOCAB_TERM"
	ErrCodeHallucinatedEntity = "ERR_405_HALLUCINATED_ENTITY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"

	// Flow-control errors (600-699)
	ErrCodeBudgetExceeded = "ERR_601_BUDGET_EXCEEDED"
	ErrCodeBusy           = "ERR_602_BUSY"
	ErrCodeCancelled      = "ERR_603_CANCELLED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "301" from "ERR_301_RATE_LIMITED".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	case '6':
		return CategoryFlow
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeUnknownVocabTerm, ErrCodeHallucinatedEntity:
		// Recovered locally: demoted to suggestion / dropped entity.
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Retryable here means "advance the provider chain / retry the store op",
// matching the gateway's failover classification.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeProviderTimeout, ErrCodeProviderUnavailable, ErrCodeStoreFailed:
		return true
	default:
		return false
	}
}
