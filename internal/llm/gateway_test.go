package llm

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dante4567/rag-provider-sub004/internal/config"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/ledger"
)

// fakeProvider scripts per-call outcomes for gateway tests.
type fakeProvider struct {
	name        string
	unavailable bool
	calls       int
	respond     func(call int, req Request) (*Response, error)
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) Available(ctx context.Context) bool { return !f.unavailable }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	return f.respond(f.calls, req)
}

func okResponse(model, text string) func(int, Request) (*Response, error) {
	return func(int, Request) (*Response, error) {
		return &Response{Text: text, Model: model, InputTokens: 100, OutputTokens: 50,
			FinishReason: "stop"}, nil
	}
}

func newTestGatewayLedger(t *testing.T, budgetUSD float64) *ledger.Ledger {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.LedgerPath = filepath.Join(t.TempDir(), "costs.json")
	cfg.Budget.DailyBudgetUSD = budgetUSD
	cfg.Budget.Pricing = map[string]config.ModelPrice{
		"model-a": {InputPer1M: 1000, OutputPer1M: 1000},
		"model-b": {InputPer1M: 1000, OutputPer1M: 1000},
	}
	led, err := ledger.New(cfg)
	require.NoError(t, err)
	return led
}

func TestGateway_FallbackOnRateLimit(t *testing.T) {
	led := newTestGatewayLedger(t, 100)

	// Given: provider A rate limited, provider B healthy
	a := &fakeProvider{name: "a", respond: func(int, Request) (*Response, error) {
		return nil, classifyHTTPStatus("a", http.StatusTooManyRequests, "")
	}}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "answer")}

	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	// When: calling through the chain
	result, err := gw.Call(context.Background(), CallOptions{Prompt: "hi"})
	require.NoError(t, err)

	// Then: B answered, and only B's call is in the ledger
	assert.Equal(t, "b", result.Provider)
	assert.Equal(t, "model-b", result.ModelUsed)
	assert.Greater(t, result.CostUSD, 0.0)

	stats := led.Stats(1)
	assert.Equal(t, 1, stats.CallCount)
	assert.Zero(t, stats.ByModel["model-a"])
	assert.Greater(t, stats.ByModel["model-b"], 0.0)
}

func TestGateway_BudgetFailFastStopsChain(t *testing.T) {
	// Given: budget already exhausted
	led := newTestGatewayLedger(t, 0.01)
	led.Record(ledger.Call{Model: "model-a", CostUSD: 0.02})

	a := &fakeProvider{name: "a", respond: okResponse("model-a", "x")}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "x")}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	// When: calling
	_, err = gw.Call(context.Background(), CallOptions{Prompt: "hi"})

	// Then: BudgetExceeded without dispatching anything, B included
	require.Error(t, err)
	assert.True(t, apperr.IsBudgetExceeded(err))
	assert.Zero(t, a.calls)
	assert.Zero(t, b.calls)
}

func TestGateway_HardErrorStillAdvances(t *testing.T) {
	led := newTestGatewayLedger(t, 100)

	a := &fakeProvider{name: "a", respond: func(int, Request) (*Response, error) {
		return nil, classifyHTTPStatus("a", http.StatusUnauthorized, "bad key")
	}}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "answer")}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	result, err := gw.Call(context.Background(), CallOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
}

func TestGateway_AllProvidersFailedCarriesLastError(t *testing.T) {
	led := newTestGatewayLedger(t, 100)

	a := &fakeProvider{name: "a", respond: func(int, Request) (*Response, error) {
		return nil, classifyHTTPStatus("a", http.StatusTooManyRequests, "")
	}}
	b := &fakeProvider{name: "b", respond: func(int, Request) (*Response, error) {
		return nil, classifyHTTPStatus("b", http.StatusServiceUnavailable, "")
	}}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	_, err = gw.Call(context.Background(), CallOptions{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.ErrCodeAllProvidersFailed))

	var ce *apperr.CoreError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "returned 503", "last error rides along")
}

func TestGateway_CancellationSurfacesImmediately(t *testing.T) {
	led := newTestGatewayLedger(t, 100)

	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeProvider{name: "a", respond: func(int, Request) (*Response, error) {
		cancel()
		return nil, ctx.Err()
	}}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "x")}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	_, err = gw.Call(ctx, CallOptions{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsCancelled(err))
	assert.Zero(t, b.calls, "fallback must not run after cancellation")
	assert.Zero(t, led.Stats(1).CallCount, "no cost recorded")
}

func TestGateway_SkipsUnavailableProvider(t *testing.T) {
	led := newTestGatewayLedger(t, 100)

	a := &fakeProvider{name: "a", unavailable: true, respond: okResponse("model-a", "x")}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "answer")}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	result, err := gw.Call(context.Background(), CallOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
	assert.Zero(t, a.calls)
}

func TestGateway_ExplicitModelReordersChain(t *testing.T) {
	led := newTestGatewayLedger(t, 100)

	a := &fakeProvider{name: "a", respond: okResponse("model-a", "from a")}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "from b")}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	result, err := gw.Call(context.Background(),
		CallOptions{Prompt: "hi", Model: "model-b"})
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
	assert.Zero(t, a.calls, "requested model's provider goes first")
}

func TestGateway_SchemaRetryOncePerProvider(t *testing.T) {
	led := newTestGatewayLedger(t, 100)
	validator, err := CompileSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"title": map[string]any{"type": "string"}},
		"required":   []any{"title"},
	})
	require.NoError(t, err)

	// Given: the provider returns junk once, then valid JSON
	a := &fakeProvider{name: "a", respond: func(call int, req Request) (*Response, error) {
		if call == 1 {
			return &Response{Text: "not json", Model: "model-a"}, nil
		}
		return &Response{Text: `{"title": "ok"}`, Model: "model-a"}, nil
	}}
	gw, err := NewGatewayWithProviders([]Provider{a},
		map[string]string{"a": "model-a"}, led)
	require.NoError(t, err)

	result, err := gw.Call(context.Background(),
		CallOptions{Prompt: "hi", Schema: validator})
	require.NoError(t, err)
	assert.Equal(t, 2, a.calls)

	parsed, ok := result.Parsed.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", parsed["title"])
}

func TestGateway_PersistentSchemaFailureSurfacesViolation(t *testing.T) {
	led := newTestGatewayLedger(t, 100)
	validator, err := CompileSchema(map[string]any{
		"type":     "object",
		"required": []any{"title"},
	})
	require.NoError(t, err)

	a := &fakeProvider{name: "a", respond: func(int, Request) (*Response, error) {
		return &Response{Text: `{"wrong": true}`, Model: "model-a"}, nil
	}}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "x")}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	_, err = gw.Call(context.Background(), CallOptions{Prompt: "hi", Schema: validator})
	require.Error(t, err)
	assert.True(t, apperr.IsSchemaViolation(err))
	assert.Equal(t, 2, a.calls, "one retry on the same provider")
	assert.Zero(t, b.calls, "schema failures do not advance the chain")

	var ce *apperr.CoreError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Details["response"], "wrong", "offending text rides along")
}

func TestGateway_SchemaRetryRechecksBudget(t *testing.T) {
	led := newTestGatewayLedger(t, 0.5)
	validator, err := CompileSchema(map[string]any{
		"type":     "object",
		"required": []any{"title"},
	})
	require.NoError(t, err)

	// Given: the first response is schema-invalid, and concurrent spend
	// exhausts the budget before the retry would dispatch
	a := &fakeProvider{name: "a", respond: func(call int, req Request) (*Response, error) {
		led.Record(ledger.Call{Model: "model-a", CostUSD: 1.0})
		return &Response{Text: "not json", Model: "model-a"}, nil
	}}
	gw, err := NewGatewayWithProviders([]Provider{a},
		map[string]string{"a": "model-a"}, led)
	require.NoError(t, err)

	// When: calling with a schema
	_, err = gw.Call(context.Background(), CallOptions{Prompt: "hi", Schema: validator})

	// Then: the retry is not dispatched past the closed gate
	require.Error(t, err)
	assert.True(t, apperr.IsBudgetExceeded(err))
	assert.Equal(t, 1, a.calls, "no second paid call once the budget is gone")
}

func TestGateway_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	led := newTestGatewayLedger(t, 100)

	// Given: provider A hard-down, provider B healthy
	a := &fakeProvider{name: "a", respond: func(int, Request) (*Response, error) {
		return nil, classifyHTTPStatus("a", http.StatusServiceUnavailable, "down")
	}}
	b := &fakeProvider{name: "b", respond: okResponse("model-b", "answer")}
	gw, err := NewGatewayWithProviders([]Provider{a, b},
		map[string]string{"a": "model-a", "b": "model-b"}, led)
	require.NoError(t, err)

	// When: enough calls to trip A's circuit
	for i := 0; i < breakerMaxFailures; i++ {
		result, err := gw.Call(context.Background(), CallOptions{Prompt: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "b", result.Provider)
	}
	require.Equal(t, breakerMaxFailures, a.calls)

	// Then: the next call skips A without dispatching to it
	result, err := gw.Call(context.Background(), CallOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
	assert.Equal(t, breakerMaxFailures, a.calls, "open circuit skips dispatch")
}

func TestBreaker_TrialAfterCooldownAndReopen(t *testing.T) {
	b := newBreaker(2, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.failure("p")
	assert.True(t, b.allow("p"), "below threshold stays closed")
	b.failure("p")
	assert.False(t, b.allow("p"), "threshold opens the circuit")

	now = now.Add(time.Minute)
	assert.True(t, b.allow("p"), "elapsed cooldown grants a trial")
	b.failure("p")
	assert.False(t, b.allow("p"), "failed trial re-opens")

	b.success("p")
	assert.True(t, b.allow("p"), "success closes the circuit")
}
