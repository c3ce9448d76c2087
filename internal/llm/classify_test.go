package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dante4567/rag-provider-sub004/internal/config"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

func providerConfig(id, kind, model string) config.ProviderConfig {
	return config.ProviderConfig{ID: id, Kind: kind, Model: model}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  string
		retryable bool
	}{
		{http.StatusTooManyRequests, apperr.ErrCodeRateLimited, true},
		{http.StatusInternalServerError, apperr.ErrCodeProviderUnavailable, true},
		{http.StatusBadGateway, apperr.ErrCodeProviderUnavailable, true},
		{http.StatusGatewayTimeout, apperr.ErrCodeProviderTimeout, true},
		{http.StatusUnauthorized, apperr.ErrCodeAuthFailed, false},
		{http.StatusForbidden, apperr.ErrCodeAuthFailed, false},
		{http.StatusBadRequest, apperr.ErrCodeInvalidInput, false},
	}

	for _, tt := range tests {
		err := classifyHTTPStatus("p", tt.status, "body")
		assert.Equal(t, tt.wantCode, err.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
		assert.Equal(t, "p", err.Details["provider"])
	}
}

func TestClassifyTransportError_KeepsCancellationIdentity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classifyTransportError("p", ctx.Err())
	assert.True(t, apperr.IsCancelled(err))
}

func TestNewProvider_Kinds(t *testing.T) {
	for kind, want := range map[string]any{
		"openai": &OpenAIProvider{},
		"ollama": &OllamaProvider{},
		"static": &StaticProvider{},
	} {
		p, err := NewProvider(providerConfig("id", kind, "m"))
		assert.NoError(t, err)
		assert.IsType(t, want, p)
	}

	_, err := NewProvider(providerConfig("id", "bedrock", "m"))
	assert.Error(t, err)
}
