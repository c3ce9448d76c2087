// Package pipeline orchestrates ingestion as a fixed chain of typed
// stages: Triage, Enrichment, QualityGate, Chunking, Storage, Indexing.
// A document becomes visible to search only after every stage succeeds.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dante4567/rag-provider-sub004/internal/chunk"
	"github.com/dante4567/rag-provider-sub004/internal/enrich"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/quality"
	"github.com/dante4567/rag-provider-sub004/internal/search"
	"github.com/dante4567/rag-provider-sub004/internal/store"
	"github.com/dante4567/rag-provider-sub004/internal/vector"
)

// DefaultMaxInFlight bounds concurrent ingestions.
const DefaultMaxInFlight = 4

// Status is the terminal state of one ingestion run.
type Status string

const (
	StatusStored    Status = "stored"
	StatusDuplicate Status = "duplicate"
	StatusGated     Status = "gated"
	StatusFailed    Status = "failed"
)

// Outcome reports one ingestion run.
type Outcome struct {
	Status     Status
	DocID      string
	Filename   string
	Title      string
	ChunkCount int
	CostUSD    float64
	Signalness float64
	Reason     string
	Err        error
	Duration   time.Duration
}

// Deps wires the pipeline's collaborators.
type Deps struct {
	Catalog  store.Catalog
	BM25     store.BM25Index
	Vectors  *vector.Adapter
	Enricher *enrich.Enricher
	Scorer   *quality.Scorer
	Gate     *quality.Gate
	Chunker  *chunk.Chunker
	Cache    *search.Cache
}

// Pipeline runs ingestions with a bounded in-flight count. Submissions
// beyond the bound fail fast with a busy error instead of queueing.
type Pipeline struct {
	deps        Deps
	sem         *semaphore.Weighted
	maxInFlight int
}

// New validates the dependency graph and builds the pipeline.
func New(deps Deps, maxInFlight int) (*Pipeline, error) {
	switch {
	case deps.Catalog == nil:
		return nil, apperr.ValidationError("pipeline requires a catalog", nil)
	case deps.BM25 == nil:
		return nil, apperr.ValidationError("pipeline requires a bm25 index", nil)
	case deps.Vectors == nil:
		return nil, apperr.ValidationError("pipeline requires a vector adapter", nil)
	case deps.Enricher == nil:
		return nil, apperr.ValidationError("pipeline requires an enricher", nil)
	case deps.Chunker == nil:
		return nil, apperr.ValidationError("pipeline requires a chunker", nil)
	}
	if deps.Scorer == nil {
		deps.Scorer = &quality.Scorer{}
	}
	if deps.Gate == nil {
		deps.Gate = quality.NewGate(false, 0)
	}
	if deps.Cache == nil {
		deps.Cache = search.NewCache(0, 0)
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Pipeline{
		deps:        deps,
		sem:         semaphore.NewWeighted(int64(maxInFlight)),
		maxInFlight: maxInFlight,
	}, nil
}

// Option adjusts one ingestion run.
type Option func(*Context)

// WithGating overrides the configured gating mode for this run.
func WithGating(enabled bool) Option {
	return func(rc *Context) { rc.GatingEnabled = enabled }
}

// Ingest runs one document through the full stage chain. The returned
// error is non-nil only for admission failures (busy, empty input); all
// stage failures are reported through the outcome.
func (p *Pipeline) Ingest(ctx context.Context, filename, sourcePath, content string, opts ...Option) (*Outcome, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.ValidationError("document content is empty", nil)
	}
	if !p.sem.TryAcquire(1) {
		return nil, apperr.Busy(p.maxInFlight)
	}
	defer p.sem.Release(1)

	doc := store.NewDocument(filename, sourcePath, DetectDocType(filename, content), content)
	rc := newRunContext(p.deps.Gate.Enabled)
	for _, opt := range opts {
		opt(rc)
	}
	started := time.Now()

	outcome := p.runStages(ctx, rc, doc)
	outcome.Duration = time.Since(started)
	outcome.CostUSD = rc.CostUSD

	slog.Info("ingestion finished",
		"run_id", rc.RunID,
		"doc_id", doc.ShortID(),
		"filename", filename,
		"status", string(outcome.Status),
		"chunks", outcome.ChunkCount,
		"cost_usd", outcome.CostUSD,
		"duration_ms", outcome.Duration.Milliseconds())
	for stage, d := range rc.Timings {
		slog.Debug("stage timing", "run_id", rc.RunID, "stage", stage, "duration_ms", d.Milliseconds())
	}
	return outcome, nil
}

func (p *Pipeline) runStages(ctx context.Context, rc *Context, doc *store.Document) *Outcome {
	outcome := &Outcome{DocID: doc.ID, Filename: doc.Filename}

	// Triage: duplicate detection by content hash.
	if result, _ := run(ctx, rc, "triage", p.triage, doc); result.kind != kindContinue {
		return finish(outcome, result, StatusDuplicate)
	}

	// Enrichment: controlled metadata via the gateway.
	result, md := run(ctx, rc, "enrichment", p.enrichment, doc)
	if result.kind != kindContinue {
		return finish(outcome, result, StatusFailed)
	}
	outcome.Title = md.Title

	// Quality gate: score, then admit or stop.
	result, scores := run(ctx, rc, "quality_gate", p.qualityGate, gateInput{doc: doc, md: md})
	outcome.Signalness = scores.Signalness
	if result.kind != kindContinue {
		return finish(outcome, result, StatusGated)
	}

	// Chunking: structure-aware split.
	result, chunks := run(ctx, rc, "chunking", p.chunking, doc)
	if result.kind != kindContinue {
		return finish(outcome, result, StatusFailed)
	}
	outcome.ChunkCount = len(chunks)

	// Storage: document, enrichment generation, and chunks in the catalog.
	stored := storageInput{doc: doc, md: md, scores: scores, chunks: chunks}
	if result, _ = run(ctx, rc, "storage", p.storage, stored); result.kind != kindContinue {
		return finish(outcome, result, StatusFailed)
	}

	// Indexing: BM25 and vectors. Failure rolls the document back out so
	// the catalog and the indexes never disagree.
	if result, _ = run(ctx, rc, "indexing", p.indexing, stored); result.kind != kindContinue {
		p.rollback(ctx, doc, chunks)
		return finish(outcome, result, StatusFailed)
	}

	p.deps.Cache.InvalidateAll()
	outcome.Status = StatusStored
	return outcome
}

func finish(outcome *Outcome, result Result, stopStatus Status) *Outcome {
	if result.kind == kindError {
		outcome.Status = StatusFailed
		outcome.Err = result.err
		outcome.Reason = "error"
		return outcome
	}
	outcome.Status = stopStatus
	outcome.Reason = result.reason
	return outcome
}

func (p *Pipeline) triage(ctx context.Context, rc *Context, doc *store.Document) (Result, *store.Document) {
	exists, err := p.deps.Catalog.HasDocument(ctx, doc.ID)
	if err != nil {
		return Error(apperr.StoreError("duplicate check failed", err)), nil
	}
	if exists {
		return Stop("duplicate"), nil
	}
	return Continue(), doc
}

func (p *Pipeline) enrichment(ctx context.Context, rc *Context, doc *store.Document) (Result, *store.EnrichedMetadata) {
	md, result, err := p.deps.Enricher.Enrich(ctx, doc)
	if err != nil {
		return Error(err), nil
	}
	rc.CostUSD += result.CostUSD
	rc.ModelUsed = result.ModelUsed
	return Continue(), md
}

type gateInput struct {
	doc *store.Document
	md  *store.EnrichedMetadata
}

func (p *Pipeline) qualityGate(ctx context.Context, rc *Context, in gateInput) (Result, *store.QualityScores) {
	scores := p.deps.Scorer.Score(in.doc, in.md, nil)
	gate := quality.Gate{Enabled: rc.GatingEnabled, Threshold: p.deps.Gate.Threshold}
	if !gate.Admit(in.doc.ShortID(), scores) {
		rec := &store.GatedDocument{
			DocID:      in.doc.ID,
			Filename:   in.doc.Filename,
			Title:      in.md.Title,
			Signalness: scores.Signalness,
			Reason:     fmt.Sprintf("signalness %.3f below threshold %.3f", scores.Signalness, p.deps.Gate.Threshold),
			GatedAt:    time.Now().UTC(),
		}
		if err := p.deps.Catalog.SaveGatedDocument(ctx, rec); err != nil {
			return Error(apperr.StoreError("failed to persist gated record", err)), scores
		}
		return Stop("gated"), scores
	}
	return Continue(), scores
}

func (p *Pipeline) chunking(ctx context.Context, rc *Context, doc *store.Document) (Result, []*store.Chunk) {
	chunks, err := p.deps.Chunker.Chunk(doc)
	if err != nil {
		return Error(apperr.New(apperr.ErrCodeChunkingFailed, "chunking failed", err)), nil
	}
	return Continue(), chunks
}

type storageInput struct {
	doc    *store.Document
	md     *store.EnrichedMetadata
	scores *store.QualityScores
	chunks []*store.Chunk
}

func (p *Pipeline) storage(ctx context.Context, rc *Context, in storageInput) (Result, struct{}) {
	if err := p.deps.Catalog.SaveDocument(ctx, in.doc); err != nil {
		return Error(apperr.StoreError("failed to save document", err)), struct{}{}
	}
	if _, err := p.deps.Catalog.SaveEnrichment(ctx, in.doc.ID, in.md, in.scores); err != nil {
		return Error(apperr.StoreError("failed to save enrichment", err)), struct{}{}
	}
	if err := p.deps.Catalog.SaveChunks(ctx, in.doc.ID, in.chunks); err != nil {
		return Error(apperr.StoreError("failed to save chunks", err)), struct{}{}
	}
	return Continue(), struct{}{}
}

func (p *Pipeline) indexing(ctx context.Context, rc *Context, in storageInput) (Result, struct{}) {
	entries := make([]store.IndexEntry, len(in.chunks))
	ids := make([]string, len(in.chunks))
	texts := make([]string, len(in.chunks))
	metas := make([]map[string]string, len(in.chunks))
	for i, c := range in.chunks {
		entries[i] = store.IndexEntry{ID: c.ID, Text: c.Text}
		ids[i] = c.ID
		texts[i] = c.Text
		metas[i] = chunkMetadata(in.doc, in.md, in.scores, c)
	}

	if err := p.deps.BM25.Add(ctx, entries); err != nil {
		return Error(apperr.New(apperr.ErrCodeIndexFailed, "bm25 indexing failed", err)), struct{}{}
	}
	if err := p.deps.Vectors.Upsert(ctx, ids, texts, metas); err != nil {
		// Keep the two indexes consistent with each other.
		if rmErr := p.deps.BM25.Remove(ctx, ids); rmErr != nil {
			slog.Error("bm25 cleanup after vector failure also failed",
				"doc_id", in.doc.ShortID(), "error", rmErr)
		}
		return Error(apperr.New(apperr.ErrCodeIndexFailed, "vector indexing failed", err)), struct{}{}
	}
	return Continue(), struct{}{}
}

// rollback removes a document whose indexing failed after storage, so a
// query never sees cataloged-but-unindexed content.
func (p *Pipeline) rollback(ctx context.Context, doc *store.Document, chunks []*store.Chunk) {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := p.deps.BM25.Remove(ctx, ids); err != nil {
		slog.Error("rollback: bm25 removal failed", "doc_id", doc.ShortID(), "error", err)
	}
	if err := p.deps.Vectors.Delete(ctx, ids...); err != nil {
		slog.Error("rollback: vector removal failed", "doc_id", doc.ShortID(), "error", err)
	}
	if err := p.deps.Catalog.DeleteDocument(ctx, doc.ID); err != nil {
		slog.Error("rollback: catalog delete failed", "doc_id", doc.ShortID(), "error", err)
	}
}

// chunkMetadata flattens document metadata plus chunk attributes into
// the filterable key/value shape the vector store holds.
func chunkMetadata(doc *store.Document, md *store.EnrichedMetadata, scores *store.QualityScores, c *store.Chunk) map[string]string {
	people := make([]string, 0, len(md.Entities.People))
	for _, p := range md.Entities.People {
		people = append(people, p.Name)
	}

	return vector.Flatten(map[string]any{
		"doc_id":          doc.ID,
		"filename":        doc.Filename,
		"doc_type":        string(doc.DocType),
		"title":           md.Title,
		"summary":         md.Summary,
		"complexity":      md.Complexity,
		"topics":          md.Topics,
		"projects":        md.Projects,
		"places":          md.Places,
		"entities":        map[string]any{"people": people, "organizations": md.Entities.Organizations},
		"signalness":      scores.Signalness,
		"sequence":        c.Sequence,
		"chunk_type":      string(c.ChunkType),
		"section_title":   c.SectionTitle,
		"parent_sections": c.ParentSections,
		"speaker":         c.Speaker,
	})
}

// Delete removes a document and all derived state: catalog rows, BM25
// entries, vectors, and the result cache.
func (p *Pipeline) Delete(ctx context.Context, docID string) error {
	chunks, err := p.deps.Catalog.GetChunksByDocument(ctx, docID)
	if err != nil {
		return apperr.StoreError("failed to load chunks for delete", err)
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	if err := p.deps.BM25.Remove(ctx, ids); err != nil {
		return apperr.New(apperr.ErrCodeIndexFailed, "bm25 removal failed", err)
	}
	if err := p.deps.Vectors.Delete(ctx, ids...); err != nil {
		return apperr.New(apperr.ErrCodeIndexFailed, "vector removal failed", err)
	}
	if err := p.deps.Catalog.DeleteDocument(ctx, docID); err != nil {
		return apperr.StoreError("failed to delete document", err)
	}
	p.deps.Cache.InvalidateAll()
	return nil
}
