package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// CoreError is the structured error type for ragcore.
// It provides rich context for error handling, logging, and user presentation.
type CoreError struct {
	// Code is the unique error code (e.g., "ERR_301_RATE_LIMITED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Provider, etc.).
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
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CoreError.
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *CoreError) WithSuggestion(suggestion string) *CoreError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CoreError from an existing error.
// The error's message becomes the CoreError message.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a storage-related error (transient, retried once).
func StoreError(message string, cause error) *CoreError {
	return New(ErrCodeStoreFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *CoreError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CoreError {
	return New(ErrCodeInternal, message, cause)
}

// BudgetExceeded creates the error returned when the daily spend cap would
// be crossed. No provider call may be dispatched once this is raised.
func BudgetExceeded(spentUSD, budgetUSD float64) *CoreError {
	return New(ErrCodeBudgetExceeded,
		fmt.Sprintf("daily budget exceeded: spent $%.4f of $%.4f", spentUSD, budgetUSD), nil).
		WithSuggestion("raise daily_budget_usd or wait for the UTC day to roll over")
}

// AllProvidersFailed creates the terminal gateway error carrying the last
// provider error observed in the chain.
func AllProvidersFailed(lastErr error) *CoreError {
	msg := "all providers failed"
	if lastErr != nil {
		msg = fmt.Sprintf("all providers failed: %v", lastErr)
	}
	return New(ErrCodeAllProvidersFailed, msg, lastErr)
}

// SchemaViolation creates the error for structured output that failed schema
// validation after its retry. The offending text rides in Details.
func SchemaViolation(cause error, response string) *CoreError {
	e := New(ErrCodeSchemaViolation, "structured output failed schema validation", cause)
	if response != "" {
		e = e.WithDetail("response", truncateDetail(response, 2000))
	}
	return e
}

// Busy creates the backpressure error for a full ingestion gate.
func Busy(limit int) *CoreError {
	return New(ErrCodeBusy,
		fmt.Sprintf("ingestion queue full (%d in flight)", limit), nil).
		WithSuggestion("retry after in-flight ingestions complete")
}

// Cancelled wraps a context cancellation so it carries a code.
func Cancelled(cause error) *CoreError {
	return New(ErrCodeCancelled, "operation cancelled", cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a CoreError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// IsCode reports whether err is a CoreError with the given code.
func IsCode(err error, code string) bool {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsBudgetExceeded reports whether err is the budget gate error.
func IsBudgetExceeded(err error) bool { return IsCode(err, ErrCodeBudgetExceeded) }

// IsBusy reports whether err is the ingestion backpressure error.
func IsBusy(err error) bool { return IsCode(err, ErrCodeBusy) }

// IsSchemaViolation reports whether err is a structured-output schema failure.
func IsSchemaViolation(err error) bool { return IsCode(err, ErrCodeSchemaViolation) }

// IsCancelled reports whether err is a cancellation, either a tagged
// CoreError or a bare context error.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if IsCode(err, ErrCodeCancelled) {
		return true
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// GetCode extracts the error code from a CoreError.
// Returns empty string if not a CoreError.
func GetCode(err error) string {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CoreError.
// Returns empty string if not a CoreError.
func GetCategory(err error) Category {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

func truncateDetail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
