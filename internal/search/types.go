// Package search implements hybrid retrieval: BM25 and dense results
// fused with normalized weights, diversified with MMR, reranked by a
// cross-encoder, and cached behind an invalidate-on-write LRU.
package search

import (
	"context"
	"math"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeHybrid fuses BM25 and dense retrieval.
	ModeHybrid Mode = "hybrid"
	// ModeDense skips BM25 and ranks by dense similarity alone.
	ModeDense Mode = "dense"
)

// Result is one ranked retrieval result.
type Result struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Text    string `json:"text"`
	// Metadata is the chunk's flat metadata snapshot.
	Metadata map[string]string `json:"metadata,omitempty"`
	// Score is the fused (and MMR-adjusted) ranking score.
	Score float64 `json:"score"`
	// RelevanceScore is sigmoid(raw rerank score), always in [0,1].
	RelevanceScore float64 `json:"relevance_score"`
	// MatchedTerms from the lexical side, when present.
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Reranker scores documents against a query. Raw scores may be any real
// number; the engine maps them through sigmoid.
type Reranker interface {
	// Rerank returns one raw score per document, index-aligned.
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)

	// Available reports whether the reranker can serve calls.
	Available(ctx context.Context) bool
}

// Sigmoid maps a raw score into (0,1).
func Sigmoid(raw float64) float64 {
	return 1 / (1 + math.Exp(-raw))
}
