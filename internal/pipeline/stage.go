package pipeline

import (
	"context"
	"time"
)

// Result is a stage verdict. Continue hands the output to the next
// stage; Stop ends the run as a non-error outcome; Error fails it.
type Result struct {
	kind   resultKind
	reason string
	err    error
}

type resultKind int

const (
	kindContinue resultKind = iota
	kindStop
	kindError
)

// Continue passes control to the next stage.
func Continue() Result { return Result{kind: kindContinue} }

// Stop ends the pipeline successfully with a reason ("duplicate",
// "gated"). Only triage and the quality gate may stop a run.
func Stop(reason string) Result { return Result{kind: kindStop, reason: reason} }

// Error fails the pipeline.
func Error(err error) Result { return Result{kind: kindError, err: err} }

// Stage transforms In to Out under the shared run context. Stages only
// communicate through their typed outputs.
type Stage[In, Out any] func(ctx context.Context, rc *Context, in In) (Result, Out)

// run executes one stage and records its wall time on the run context.
func run[In, Out any](ctx context.Context, rc *Context, name string, stage Stage[In, Out], in In) (Result, Out) {
	start := time.Now()
	result, out := stage(ctx, rc, in)
	rc.Timings[name] = time.Since(start)
	return result, out
}
