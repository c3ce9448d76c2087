// Package llm provides the multi-provider completion gateway: an ordered
// fallback chain with a global budget gate, structured-output validation,
// and cost attribution to the model that actually answered.
package llm

import (
	"context"
)

// Request is one completion request to a single provider.
type Request struct {
	// Model overrides the provider's default model when non-empty.
	Model string
	// System is the optional system prompt.
	System string
	// Prompt is the user prompt.
	Prompt string
	// Temperature in [0, 2].
	Temperature float64
	// MaxTokens caps the completion length (0 = provider default).
	MaxTokens int
	// JSONSchema, when non-nil, requests structured JSON output.
	JSONSchema map[string]any
}

// Response is a completed generation.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Provider is a single LLM backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Complete runs one generation. Errors should be classified via
	// the provider error helpers so the gateway can decide failover.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the configured provider id.
	Name() string

	// Available reports whether the provider is reachable and configured
	// (e.g. API key present, local daemon up). Cheap; may be cached.
	Available(ctx context.Context) bool
}

// estimateTokens approximates token count from text length. Used only for
// the pre-dispatch budget estimate; billing uses provider-reported counts.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 && len(text) > 0 {
		n = 1
	}
	return n
}
