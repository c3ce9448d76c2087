// Package embed provides text embedding for dense retrieval: an Ollama
// HTTP client for real models, a deterministic hash-based fallback for
// offline operation, and an LRU cache keyed by content hash.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize prevents memory exhaustion on oversized batches.
	MaxBatchSize = 256

	// DefaultTimeout for a single embedding HTTP call.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the hash-based embedder's vector width.
	StaticDimensions = 256

	// DefaultOllamaDimensions when detection is skipped.
	DefaultOllamaDimensions = 768
)

// Embedder generates vector embeddings for text. All embeddings are
// unit-normalized so cosine distance works directly.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, index-aligned
	// with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length. Zero vectors are
// returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
