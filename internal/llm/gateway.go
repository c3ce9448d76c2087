package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dante4567/rag-provider-sub004/internal/config"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/ledger"
)

// CallOptions describes one gateway call.
type CallOptions struct {
	// Model pins the call to a specific model; the provider configured
	// with that model is tried first. Empty uses the declared order.
	Model string
	// System is the optional system prompt.
	System string
	// Prompt is the user prompt.
	Prompt string
	// Temperature in [0, 2].
	Temperature float64
	// MaxTokens caps completion length (0 = provider default).
	MaxTokens int
	// Schema requests validated structured output.
	Schema *SchemaValidator
}

// Result is a completed gateway call with cost attribution.
type Result struct {
	Text         string
	Parsed       any
	ModelUsed    string
	Provider     string
	CostUSD      float64
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Gateway dispatches completions across the ordered provider chain with
// the global budget gate in front of every dispatch. Safe for concurrent
// use; the ledger serializes its own state.
type Gateway struct {
	providers []Provider
	models    map[string]string
	ledger    *ledger.Ledger
	breaker   *breaker
}

// defaultOutputEstimate is the assumed completion size for the budget
// estimate when the caller does not cap MaxTokens.
const defaultOutputEstimate = 1000

// NewGateway builds the gateway from config and the cost ledger.
func NewGateway(cfg *config.Config, led *ledger.Ledger) (*Gateway, error) {
	if led == nil {
		return nil, fmt.Errorf("gateway requires a ledger")
	}
	providers, err := NewChain(cfg)
	if err != nil {
		return nil, err
	}

	models := make(map[string]string)
	for _, pc := range cfg.OrderedProviders() {
		models[pc.ID] = pc.Model
	}
	return &Gateway{providers: providers, models: models, ledger: led,
		breaker: newBreaker(breakerMaxFailures, breakerCooldown)}, nil
}

// NewGatewayWithProviders wires an explicit chain. Used by tests and by
// callers that build providers themselves.
func NewGatewayWithProviders(providers []Provider, models map[string]string, led *ledger.Ledger) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	if led == nil {
		return nil, fmt.Errorf("gateway requires a ledger")
	}
	if models == nil {
		models = map[string]string{}
	}
	return &Gateway{providers: providers, models: models, ledger: led,
		breaker: newBreaker(breakerMaxFailures, breakerCooldown)}, nil
}

// Call runs the ordered-fallback algorithm: budget gate, dispatch,
// classify, advance. Cancellation surfaces immediately; exhausting the
// chain returns AllProvidersFailed carrying the last error.
func (g *Gateway) Call(ctx context.Context, opts CallOptions) (*Result, error) {
	started := time.Now()
	chain := g.orderFor(opts.Model)

	var lastErr error
	for _, provider := range chain {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Cancelled(err)
		}

		model := opts.Model
		if model == "" {
			model = g.models[provider.Name()]
		}

		// Budget is global: a closed gate stops the whole chain, cheaper
		// providers included, so spend stays predictable.
		estimate := g.estimateCost(model, opts)
		if err := g.ledger.WithinBudget(estimate); err != nil {
			return nil, err
		}

		if !g.breaker.allow(provider.Name()) {
			lastErr = apperr.New(apperr.ErrCodeProviderUnavailable,
				fmt.Sprintf("provider %s circuit open", provider.Name()), nil)
			slog.Debug("provider_circuit_open", slog.String("provider", provider.Name()))
			continue
		}

		if !provider.Available(ctx) {
			lastErr = apperr.New(apperr.ErrCodeProviderUnavailable,
				fmt.Sprintf("provider %s not available", provider.Name()), nil)
			slog.Debug("provider_skipped", slog.String("provider", provider.Name()))
			continue
		}

		result, err := g.callProvider(ctx, provider, model, opts)
		if err == nil {
			g.breaker.success(provider.Name())
			result.Latency = time.Since(started)
			g.ledger.Record(ledger.Call{
				Provider:     provider.Name(),
				Model:        result.ModelUsed,
				InputTokens:  result.InputTokens,
				OutputTokens: result.OutputTokens,
				CostUSD:      result.CostUSD,
			})
			slog.Info("llm_call_succeeded",
				slog.String("provider", provider.Name()),
				slog.String("model", result.ModelUsed),
				slog.Float64("cost_usd", result.CostUSD),
				slog.Duration("latency", result.Latency))
			return result, nil
		}

		if apperr.IsCancelled(err) {
			return nil, err
		}
		if apperr.IsBudgetExceeded(err) {
			// The gate closed between dispatch and the schema retry;
			// cheaper fallbacks are gated just the same.
			return nil, err
		}
		if apperr.IsSchemaViolation(err) {
			// The provider answered but cannot satisfy the schema even
			// after its retry; trying cheaper fallbacks will not improve
			// structure, so surface it.
			return nil, err
		}

		g.breaker.failure(provider.Name())
		lastErr = err
		if apperr.IsRetryable(err) {
			slog.Warn("provider_failed",
				slog.String("provider", provider.Name()),
				slog.String("error", err.Error()))
		} else {
			slog.Warn("hard_provider_error",
				slog.String("provider", provider.Name()),
				slog.String("error", err.Error()))
		}
	}

	return nil, apperr.AllProvidersFailed(lastErr)
}

// callProvider dispatches to one provider, including the single
// schema-validation retry.
func (g *Gateway) callProvider(ctx context.Context, provider Provider, model string, opts CallOptions) (*Result, error) {
	req := Request{
		Model:       model,
		System:      opts.System,
		Prompt:      opts.Prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.Schema != nil {
		req.JSONSchema = opts.Schema.Raw()
	}

	attempts := 1
	if opts.Schema != nil {
		attempts = 2
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			// The retry is a second paid call; concurrent spend may have
			// closed the gate since dispatch.
			if err := g.ledger.WithinBudget(g.estimateCost(model, opts)); err != nil {
				return nil, err
			}
		}
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			return nil, err
		}

		result := &Result{
			Text:         resp.Text,
			ModelUsed:    resp.Model,
			Provider:     provider.Name(),
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      g.ledger.Estimate(resp.Model, resp.InputTokens, resp.OutputTokens),
		}
		if opts.Schema == nil {
			return result, nil
		}

		parsed, err := opts.Schema.Validate(resp.Text)
		if err == nil {
			result.Parsed = parsed
			return result, nil
		}
		lastErr = err
		slog.Warn("schema_validation_failed",
			slog.String("provider", provider.Name()),
			slog.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// orderFor returns the provider chain, moving the provider configured for
// an explicitly requested model to the front.
func (g *Gateway) orderFor(model string) []Provider {
	if model == "" {
		return g.providers
	}
	for i, p := range g.providers {
		if g.models[p.Name()] == model {
			chain := make([]Provider, 0, len(g.providers))
			chain = append(chain, p)
			chain = append(chain, g.providers[:i]...)
			chain = append(chain, g.providers[i+1:]...)
			return chain
		}
	}
	return g.providers
}

// estimateCost prices the prospective call for the budget gate.
func (g *Gateway) estimateCost(model string, opts CallOptions) float64 {
	out := opts.MaxTokens
	if out <= 0 {
		out = defaultOutputEstimate
	}
	return g.ledger.Estimate(model, estimateTokens(opts.System+opts.Prompt), out)
}
