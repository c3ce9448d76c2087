package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

// classifyHTTPStatus maps a non-2xx provider response to a CoreError.
// Retryable codes advance the fallback chain; non-retryable codes advance
// too but are logged as hard errors.
func classifyHTTPStatus(provider string, status int, body string) *apperr.CoreError {
	detail := func(e *apperr.CoreError) *apperr.CoreError {
		e = e.WithDetail("provider", provider).
			WithDetail("status", fmt.Sprintf("%d", status))
		if body != "" {
			e = e.WithDetail("body", body)
		}
		return e
	}

	switch {
	case status == http.StatusTooManyRequests:
		return detail(apperr.New(apperr.ErrCodeRateLimited,
			fmt.Sprintf("provider %s rate limited", provider), nil))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return detail(apperr.New(apperr.ErrCodeAuthFailed,
			fmt.Sprintf("provider %s rejected credentials", provider), nil).
			WithSuggestion("check the api_key_env variable for this provider"))
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return detail(apperr.New(apperr.ErrCodeProviderTimeout,
			fmt.Sprintf("provider %s timed out", provider), nil))
	case status >= 500:
		return detail(apperr.New(apperr.ErrCodeProviderUnavailable,
			fmt.Sprintf("provider %s returned %d", provider, status), nil))
	default:
		// 400s other than auth/rate: bad request, surfaced as invalid input.
		return detail(apperr.New(apperr.ErrCodeInvalidInput,
			fmt.Sprintf("provider %s rejected request with %d", provider, status), nil))
	}
}

// classifyTransportError maps request/transport failures. Context
// cancellation keeps its identity so the gateway can surface it
// immediately.
func classifyTransportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.New(apperr.ErrCodeProviderTimeout,
			fmt.Sprintf("provider %s timed out", provider), err)
	}
	return apperr.New(apperr.ErrCodeProviderUnavailable,
		fmt.Sprintf("provider %s unreachable", provider), err)
}
