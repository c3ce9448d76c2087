package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/store"
	"github.com/dante4567/rag-provider-sub004/internal/vector"
)

// Engine runs hybrid retrieval over the BM25 index and the vector
// adapter, backed by the chunk catalog for text hydration.
type Engine struct {
	bm25    store.BM25Index
	vectors *vector.Adapter
	catalog store.Catalog

	reranker Reranker
	fallback Reranker
	cache    *Cache

	bm25Weight  float64
	denseWeight float64
	mmrLambda   float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithReranker sets the primary (remote) reranker. The lexical fallback
// still applies when it reports unavailable or fails mid-call.
func WithReranker(r Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// WithCache sets the result cache.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithWeights sets the fusion weights. Non-positive pairs are ignored.
func WithWeights(bm25, dense float64) Option {
	return func(e *Engine) {
		if bm25 >= 0 && dense >= 0 && bm25+dense > 0 {
			e.bm25Weight, e.denseWeight = bm25, dense
		}
	}
}

// WithMMRLambda sets the relevance/diversity balance in [0,1].
func WithMMRLambda(lambda float64) Option {
	return func(e *Engine) {
		if lambda >= 0 && lambda <= 1 {
			e.mmrLambda = lambda
		}
	}
}

// NewEngine builds the retrieval engine. All three stores are required.
func NewEngine(bm25 store.BM25Index, vectors *vector.Adapter, catalog store.Catalog, opts ...Option) (*Engine, error) {
	if bm25 == nil {
		return nil, apperr.ValidationError("bm25 index is required", nil)
	}
	if vectors == nil {
		return nil, apperr.ValidationError("vector adapter is required", nil)
	}
	if catalog == nil {
		return nil, apperr.ValidationError("catalog is required", nil)
	}

	e := &Engine{
		bm25:        bm25,
		vectors:     vectors,
		catalog:     catalog,
		fallback:    NewLexicalReranker(),
		cache:       NewCache(DefaultCacheSize, DefaultCacheTTL),
		bm25Weight:  DefaultBM25Weight,
		denseWeight: DefaultDenseWeight,
		mmrLambda:   DefaultMMRLambda,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Cache exposes the result cache so ingestion can invalidate it.
func (e *Engine) Cache() *Cache { return e.cache }

// Search retrieves the top k chunks for query. Filter entries must match
// chunk metadata exactly. Mode dense skips the lexical side entirely.
func (e *Engine) Search(ctx context.Context, query string, k int, filter map[string]string, mode Mode) ([]*Result, error) {
	if query == "" {
		return nil, apperr.ValidationError("query must not be empty", nil)
	}
	if k < 1 {
		return nil, apperr.ValidationError("k must be at least 1", nil)
	}
	if mode == "" {
		mode = ModeHybrid
	}

	start := time.Now()
	cacheKey := Key(query, k, filter, mode)
	if cached, ok := e.cache.Get(cacheKey); ok {
		slog.Debug("search cache hit", "key", cacheKey[:12])
		return cached, nil
	}

	// Retrieval depths: wide fetch, fuse, diversify, rerank, truncate.
	k1 := max(60, 4*k)
	k2 := max(20, 2*k)
	k3 := max(10, k)

	bm25Scores, denseScores, matched, err := e.retrieve(ctx, query, k1, filter, mode)
	if err != nil {
		return nil, err
	}

	candidates := fuse(bm25Scores, denseScores, e.bm25Weight, e.denseWeight, matched)
	if len(candidates) == 0 {
		return []*Result{}, nil
	}
	if len(candidates) > k2 {
		candidates = candidates[:k2]
	}

	texts, err := e.hydrate(ctx, candidates)
	if err != nil {
		return nil, err
	}

	candidates = mmr(candidates, texts, e.mmrLambda, k3)

	results := e.rerank(ctx, query, candidates, texts)
	if len(results) > k {
		results = results[:k]
	}

	e.cache.Set(cacheKey, results)
	slog.Debug("search completed",
		"mode", string(mode),
		"k", k,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

// retrieve runs the lexical and dense legs in parallel. One leg failing
// degrades to the other; both failing surfaces the dense error.
func (e *Engine) retrieve(ctx context.Context, query string, k1 int, filter map[string]string, mode Mode) (map[string]float64, map[string]float64, map[string][]string, error) {
	bm25Scores := map[string]float64{}
	denseScores := map[string]float64{}
	matched := map[string][]string{}
	var bm25Err, denseErr error

	g, gctx := errgroup.WithContext(ctx)

	if mode == ModeHybrid {
		g.Go(func() error {
			hits, err := e.bm25.Search(gctx, query, k1)
			if err != nil {
				bm25Err = err
				return nil
			}
			for _, h := range hits {
				// Filters apply via the metadata the vector side owns.
				if len(filter) > 0 && !metadataMatches(e.vectors.Metadata(h.ChunkID), filter) {
					continue
				}
				bm25Scores[h.ChunkID] = h.Score
				matched[h.ChunkID] = h.MatchedTerms
			}
			return nil
		})
	}

	g.Go(func() error {
		hits, err := e.vectors.Query(gctx, query, k1, filter)
		if err != nil {
			denseErr = err
			return nil
		}
		for _, h := range hits {
			denseScores[h.ChunkID] = h.Similarity
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	if bm25Err != nil {
		slog.Warn("bm25 retrieval failed, degrading to dense only", "error", bm25Err)
	}
	if denseErr != nil {
		slog.Warn("dense retrieval failed, degrading to bm25 only", "error", denseErr)
	}
	if denseErr != nil && (mode == ModeDense || bm25Err != nil) {
		return nil, nil, nil, apperr.New(apperr.ErrCodeSearchFailed, "retrieval failed on all sources", denseErr)
	}
	return bm25Scores, denseScores, matched, nil
}

// hydrate fetches chunk texts for the surviving candidates. Candidates
// whose chunks are gone (raced with a delete) are skipped by returning
// empty text.
func (e *Engine) hydrate(ctx context.Context, candidates []*scored) (map[string]string, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.chunkID
	}
	chunks, err := e.catalog.GetChunks(ctx, ids)
	if err != nil {
		return nil, apperr.StoreError("failed to load chunk texts", err)
	}
	texts := make(map[string]string, len(chunks))
	for _, c := range chunks {
		texts[c.ID] = c.Text
	}
	return texts, nil
}

// rerank scores the finalists and assembles results. The remote reranker
// is preferred; the lexical fallback covers absence and failure.
func (e *Engine) rerank(ctx context.Context, query string, candidates []*scored, texts map[string]string) []*Result {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = texts[c.chunkID]
	}

	raw := e.rerankScores(ctx, query, docs)

	results := make([]*Result, 0, len(candidates))
	for i, c := range candidates {
		meta := e.vectors.Metadata(c.chunkID)
		results = append(results, &Result{
			ChunkID:        c.chunkID,
			DocID:          meta["doc_id"],
			Text:           texts[c.chunkID],
			Metadata:       meta,
			Score:          c.fused,
			RelevanceScore: Sigmoid(raw[i]),
			MatchedTerms:   c.matchedTerms,
		})
	}

	sortResults(results)
	return results
}

func (e *Engine) rerankScores(ctx context.Context, query string, docs []string) []float64 {
	if e.reranker != nil && e.reranker.Available(ctx) {
		scores, err := e.reranker.Rerank(ctx, query, docs)
		if err == nil && len(scores) == len(docs) {
			return scores
		}
		if err != nil {
			slog.Warn("reranker failed, falling back to lexical scoring", "error", err)
		}
	}
	scores, err := e.fallback.Rerank(ctx, query, docs)
	if err != nil || len(scores) != len(docs) {
		return make([]float64, len(docs))
	}
	return scores
}

// sortResults orders by relevance descending, chunk id ascending on ties.
func sortResults(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func metadataMatches(meta, filter map[string]string) bool {
	if meta == nil {
		return false
	}
	for key, want := range filter {
		if meta[key] != want {
			return false
		}
	}
	return true
}
