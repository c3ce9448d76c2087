package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Context is the shared state of one ingestion run. Stages read flags
// and accumulate cost and timings; they never talk to each other
// directly.
type Context struct {
	// RunID identifies this ingestion in logs.
	RunID string

	// GatingEnabled selects quality-gate mode for this run.
	GatingEnabled bool

	// CostUSD accumulates LLM spend across stages.
	CostUSD float64

	// ModelUsed is the model that served enrichment, when any.
	ModelUsed string

	// Timings holds per-stage wall time.
	Timings map[string]time.Duration
}

func newRunContext(gating bool) *Context {
	return &Context{
		RunID:         uuid.NewString(),
		GatingEnabled: gating,
		Timings:       make(map[string]time.Duration),
	}
}
