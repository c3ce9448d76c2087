package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk exploded")

	// When: wrapping with CoreError
	coreErr := New(ErrCodeStoreFailed, "insert failed", originalErr)

	// Then: unwrapping returns the original error
	require.NotNil(t, coreErr)
	assert.Equal(t, originalErr, errors.Unwrap(coreErr))
	assert.True(t, errors.Is(coreErr, originalErr))
}

func TestCoreError_Error_ReturnsFormattedMessage(t *testing.T) {
	err := New(ErrCodeRateLimited, "provider returned 429", nil)
	assert.Equal(t, "[ERR_301_RATE_LIMITED] provider returned 429", err.Error())
}

func TestCoreError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodeBudgetExceeded, "over budget", nil)
	b := New(ErrCodeBudgetExceeded, "different message", nil)
	c := New(ErrCodeBusy, "queue full", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestCategoryDerivation(t *testing.T) {
	tests := []struct {
		code string
		want Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStoreFailed, CategoryStorage},
		{ErrCodeRateLimited, CategoryProvider},
		{ErrCodeSchemaViolation, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeBudgetExceeded, CategoryFlow},
		{ErrCodeBusy, CategoryFlow},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x", nil).Category)
		})
	}
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeRateLimited, "429", nil)))
	assert.True(t, IsRetryable(New(ErrCodeProviderTimeout, "timeout", nil)))
	assert.True(t, IsRetryable(New(ErrCodeProviderUnavailable, "503", nil)))
	assert.True(t, IsRetryable(New(ErrCodeStoreFailed, "locked", nil)))

	assert.False(t, IsRetryable(New(ErrCodeAuthFailed, "401", nil)))
	assert.False(t, IsRetryable(New(ErrCodeSchemaViolation, "bad json", nil)))
	assert.False(t, IsRetryable(New(ErrCodeBudgetExceeded, "cap", nil)))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestRetryable_ThroughWrapping(t *testing.T) {
	inner := New(ErrCodeRateLimited, "429", nil)
	wrapped := fmt.Errorf("gateway: %w", inner)

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrCodeRateLimited, GetCode(wrapped))
	assert.Equal(t, CategoryProvider, GetCategory(wrapped))
}

func TestBudgetExceeded(t *testing.T) {
	err := BudgetExceeded(10.5001, 10.0)

	assert.True(t, IsBudgetExceeded(err))
	assert.Contains(t, err.Message, "$10.5001")
	assert.Contains(t, err.Message, "$10.0000")
	assert.NotEmpty(t, err.Suggestion)
}

func TestAllProvidersFailed_CarriesLastError(t *testing.T) {
	last := New(ErrCodeProviderTimeout, "ollama timed out", nil)
	err := AllProvidersFailed(last)

	assert.Equal(t, ErrCodeAllProvidersFailed, err.Code)
	assert.True(t, errors.Is(err, last))
	assert.Contains(t, err.Message, "ollama timed out")
}

func TestSchemaViolation_CarriesResponseText(t *testing.T) {
	err := SchemaViolation(errors.New("missing title"), `{"summary": "only"}`)

	assert.True(t, IsSchemaViolation(err))
	assert.Equal(t, `{"summary": "only"}`, err.Details["response"])
}

func TestSchemaViolation_TruncatesLongResponse(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	err := SchemaViolation(nil, string(long))

	assert.Len(t, err.Details["response"], 2003) // 2000 + "..."
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(context.Canceled))
	assert.True(t, IsCancelled(context.DeadlineExceeded))
	assert.True(t, IsCancelled(Cancelled(context.Canceled)))
	assert.True(t, IsCancelled(fmt.Errorf("call: %w", context.Canceled)))
	assert.False(t, IsCancelled(New(ErrCodeBusy, "full", nil)))
	assert.False(t, IsCancelled(nil))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad", nil).
		WithDetail("field", "title").
		WithDetail("length", "2")

	assert.Equal(t, "title", err.Details["field"])
	assert.Equal(t, "2", err.Details["length"])
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeCorruptIndex, "x", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeRateLimited, "x", nil).Severity)
	assert.Equal(t, SeverityInfo, New(ErrCodeUnknownVocabTerm, "x", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeAuthFailed, "x", nil).Severity)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
