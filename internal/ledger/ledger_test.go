package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dante4567/rag-provider-sub004/internal/config"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

func newTestLedger(t *testing.T, budgetUSD, marginUSD float64) *Ledger {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.LedgerPath = filepath.Join(t.TempDir(), "costs.json")
	cfg.Budget.DailyBudgetUSD = budgetUSD
	cfg.Budget.SafetyMarginUSD = marginUSD

	l, err := New(cfg)
	require.NoError(t, err)
	return l
}

func TestLedger_EstimateKnownAndUnknownModels(t *testing.T) {
	l := newTestLedger(t, 5, 0)

	// 1M input + 1M output at list price.
	cost := l.Estimate("gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, cost, 1e-9)

	assert.Zero(t, l.Estimate("llama3.2:3b", 1_000_000, 1_000_000),
		"local models are free")
	assert.Zero(t, l.Estimate("static-v1", 100, 100))
}

func TestLedger_ConfigPricingOverridesDefaults(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Paths.LedgerPath = filepath.Join(t.TempDir(), "costs.json")
	cfg.Budget.Pricing = map[string]config.ModelPrice{
		"gpt-4o-mini": {InputPer1M: 1.0, OutputPer1M: 2.0},
		"my-model":    {InputPer1M: 3.0, OutputPer1M: 3.0},
	}
	l, err := New(cfg)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, l.Estimate("gpt-4o-mini", 1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 6.0, l.Estimate("my-model", 1_000_000, 1_000_000), 1e-9)
}

func TestLedger_BudgetGateBlocksBeforeDispatch(t *testing.T) {
	// Given: budget $0.01, $0.009 already spent today
	l := newTestLedger(t, 0.01, 0)
	l.Record(Call{Provider: "openai", Model: "gpt-4o-mini", CostUSD: 0.009})

	// When: an enrichment estimated at $0.003 asks the gate
	err := l.WithinBudget(0.003)

	// Then: BudgetExceeded, and today's total is untouched
	require.Error(t, err)
	assert.True(t, apperr.IsBudgetExceeded(err))
	assert.InDelta(t, 0.009, l.TodayUSD(), 1e-9)
}

func TestLedger_SafetyMarginCountsAgainstBudget(t *testing.T) {
	l := newTestLedger(t, 1.0, 0.01)
	l.Record(Call{Model: "gpt-4o-mini", CostUSD: 0.995})

	assert.Error(t, l.WithinBudget(0), "margin pushes the projection over")
}

func TestLedger_ZeroBudgetDisablesGate(t *testing.T) {
	l := newTestLedger(t, 0, 0)
	assert.NoError(t, l.WithinBudget(100))
}

func TestLedger_DailyRolloverAtUTCMidnight(t *testing.T) {
	l := newTestLedger(t, 1.0, 0)

	day1 := time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)
	l.clock = func() time.Time { return day1 }
	l.Record(Call{Model: "gpt-4o-mini", CostUSD: 0.9})
	require.Error(t, l.WithinBudget(0.2))

	// Two minutes later it is a new UTC day and the gate opens again.
	l.clock = func() time.Time { return day1.Add(2 * time.Minute) }
	assert.NoError(t, l.WithinBudget(0.2))
	assert.Zero(t, l.TodayUSD())
}

func TestLedger_SnapshotSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.json")
	cfg := config.NewConfig()
	cfg.Paths.LedgerPath = path
	cfg.Budget.DailyBudgetUSD = 5

	l, err := New(cfg)
	require.NoError(t, err)
	l.Record(Call{Provider: "openai", Model: "gpt-4o-mini", CostUSD: 0.42})
	require.NoError(t, l.Flush())

	reloaded, err := New(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, reloaded.TodayUSD(), 1e-9)
}

func TestLedger_StatsWindow(t *testing.T) {
	l := newTestLedger(t, 5, 0)

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	l.Record(Call{Model: "gpt-4o-mini", CostUSD: 0.10, At: now})
	l.Record(Call{Model: "gpt-4o", CostUSD: 0.30, At: now.AddDate(0, 0, -1)})
	l.Record(Call{Model: "gpt-4o", CostUSD: 0.50, At: now.AddDate(0, 0, -10)})

	stats := l.Stats(7)
	assert.InDelta(t, 0.10, stats.TodayUSD, 1e-9)
	assert.InDelta(t, 0.40, stats.WindowUSD, 1e-9, "day -10 is outside the window")
	assert.Equal(t, 2, stats.CallCount)
	assert.InDelta(t, 0.30, stats.ByModel["gpt-4o"], 1e-9)
}
