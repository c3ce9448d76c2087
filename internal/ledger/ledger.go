// Package ledger tracks LLM spend and enforces the daily budget gate.
// Totals roll over at 00:00 UTC; a JSON snapshot survives restarts within
// the same day.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/dante4567/rag-provider-sub004/internal/config"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

// defaultPrices is the built-in price table in USD per million tokens.
// Local and static models are free. Config pricing entries override.
var defaultPrices = map[string]config.ModelPrice{
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4.1-mini":               {InputPer1M: 0.40, OutputPer1M: 1.60},
	"llama-3.3-70b-versatile":    {InputPer1M: 0.59, OutputPer1M: 0.79},
	"llama-3.1-8b-instant":       {InputPer1M: 0.05, OutputPer1M: 0.08},
	"anthropic/claude-3.5-haiku": {InputPer1M: 0.80, OutputPer1M: 4.00},
}

// Call is one completed, billable provider call.
type Call struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	At           time.Time `json:"at"`
}

// dayTotal aggregates one UTC calendar day.
type dayTotal struct {
	TotalUSD  float64            `json:"total_usd"`
	CallCount int                `json:"call_count"`
	ByModel   map[string]float64 `json:"by_model,omitempty"`
}

// snapshot is the on-disk shape of costs.json.
type snapshot struct {
	Days map[string]*dayTotal `json:"days"`
}

// Stats summarizes spend over a trailing window of days.
type Stats struct {
	TodayUSD   float64
	WindowUSD  float64
	WindowDays int
	CallCount  int
	ByModel    map[string]float64
	BudgetUSD  float64
}

// Ledger maintains rolling daily spend totals and answers the budget gate.
// All methods are safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	prices map[string]config.ModelPrice
	days   map[string]*dayTotal

	path      string
	lock      *flock.Flock
	budget    float64
	margin    float64
	clock     func() time.Time
	lastFlush time.Time
}

// flushInterval bounds how often Record writes the snapshot. Shutdown
// calls Flush unconditionally.
const flushInterval = 30 * time.Second

// New builds a ledger from config, reloading today's totals from the
// snapshot at cfg.Paths.LedgerPath if one exists.
func New(cfg *config.Config) (*Ledger, error) {
	prices := make(map[string]config.ModelPrice, len(defaultPrices)+len(cfg.Budget.Pricing))
	for model, price := range defaultPrices {
		prices[model] = price
	}
	for model, price := range cfg.Budget.Pricing {
		prices[model] = price
	}

	l := &Ledger{
		prices: prices,
		days:   make(map[string]*dayTotal),
		path:   cfg.Paths.LedgerPath,
		lock:   flock.New(cfg.Paths.LedgerPath + ".lock"),
		budget: cfg.Budget.DailyBudgetUSD,
		margin: cfg.Budget.SafetyMarginUSD,
		clock:  time.Now,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// dayKey formats t as the UTC calendar date the totals are keyed by.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Estimate prices a prospective call. Unknown models (local, static) cost
// nothing.
func (l *Ledger) Estimate(model string, inputTokens, outputTokens int) float64 {
	l.mu.Lock()
	price, ok := l.prices[model]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*price.InputPer1M +
		float64(outputTokens)/1e6*price.OutputPer1M
}

// WithinBudget checks whether dispatching a call with the given estimated
// cost would cross the daily cap. Returns BudgetExceeded if it would; the
// caller must not dispatch in that case. A zero budget disables the gate.
func (l *Ledger) WithinBudget(estimateUSD float64) error {
	if l.budget <= 0 {
		return nil
	}

	l.mu.Lock()
	today := l.totalLocked(dayKey(l.clock()))
	l.mu.Unlock()

	projected := today + l.margin + estimateUSD
	if projected > l.budget {
		return apperr.BudgetExceeded(today, l.budget)
	}
	return nil
}

// Record adds a completed call to today's totals. Only successful calls
// are recorded; failed attempts cost nothing.
func (l *Ledger) Record(call Call) {
	if call.At.IsZero() {
		call.At = l.clock()
	}

	l.mu.Lock()
	key := dayKey(call.At)
	day, ok := l.days[key]
	if !ok {
		day = &dayTotal{ByModel: make(map[string]float64)}
		l.days[key] = day
	}
	day.TotalUSD += call.CostUSD
	day.CallCount++
	if day.ByModel == nil {
		day.ByModel = make(map[string]float64)
	}
	day.ByModel[call.Model] += call.CostUSD

	now := l.clock()
	needFlush := now.Sub(l.lastFlush) >= flushInterval
	if needFlush {
		l.lastFlush = now
	}
	l.mu.Unlock()

	slog.Debug("cost_recorded",
		slog.String("provider", call.Provider),
		slog.String("model", call.Model),
		slog.Float64("cost_usd", call.CostUSD),
		slog.Int("input_tokens", call.InputTokens),
		slog.Int("output_tokens", call.OutputTokens))

	if needFlush {
		if err := l.Flush(); err != nil {
			slog.Warn("ledger_flush_failed", slog.String("error", err.Error()))
		}
	}
}

// TodayUSD returns the running total for the current UTC day.
func (l *Ledger) TodayUSD() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalLocked(dayKey(l.clock()))
}

func (l *Ledger) totalLocked(key string) float64 {
	if day, ok := l.days[key]; ok {
		return day.TotalUSD
	}
	return 0
}

// Stats aggregates the trailing windowDays days including today.
func (l *Ledger) Stats(windowDays int) Stats {
	if windowDays < 1 {
		windowDays = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock().UTC()
	stats := Stats{
		WindowDays: windowDays,
		ByModel:    make(map[string]float64),
		BudgetUSD:  l.budget,
		TodayUSD:   l.totalLocked(dayKey(now)),
	}
	for i := 0; i < windowDays; i++ {
		day, ok := l.days[dayKey(now.AddDate(0, 0, -i))]
		if !ok {
			continue
		}
		stats.WindowUSD += day.TotalUSD
		stats.CallCount += day.CallCount
		for model, usd := range day.ByModel {
			stats.ByModel[model] += usd
		}
	}
	return stats
}

// Models returns the priced models, sorted. Used by the costs CLI.
func (l *Ledger) Models() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	models := make([]string, 0, len(l.prices))
	for model := range l.prices {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Flush writes the snapshot via a temp file and atomic rename, guarded by
// a cross-process lock.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	snap := snapshot{Days: make(map[string]*dayTotal, len(l.days))}
	for key, day := range l.days {
		copied := *day
		copied.ByModel = make(map[string]float64, len(day.ByModel))
		for model, usd := range day.ByModel {
			copied.ByModel[model] = usd
		}
		snap.Days[key] = &copied
	}
	l.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger snapshot: %w", err)
	}

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock ledger snapshot: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger dir: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger snapshot: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace ledger snapshot: %w", err)
	}
	return nil
}

// load restores prior totals from the snapshot. Past days are kept so
// Stats windows span restarts; a corrupt snapshot is logged and ignored.
func (l *Ledger) load() error {
	if err := l.lock.RLock(); err != nil {
		return fmt.Errorf("failed to lock ledger snapshot: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("ledger_snapshot_corrupt", slog.String("path", l.path),
			slog.String("error", err.Error()))
		return nil
	}

	l.mu.Lock()
	for key, day := range snap.Days {
		l.days[key] = day
	}
	l.mu.Unlock()
	return nil
}
