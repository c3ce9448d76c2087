// Package vector adapts the embedding provider and the HNSW index into a
// chunk-level vector store with flat metadata and exact-match filters.
package vector

import (
	"context"
	"sync"

	"github.com/dante4567/rag-provider-sub004/internal/embed"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// Hit is one dense retrieval result.
type Hit struct {
	ChunkID string
	// Similarity = clamp(1 - distance, 0, 1).
	Similarity float64
	Metadata   map[string]string
}

// Adapter pairs an Embedder with a VectorIndex and owns the flat
// metadata for every stored chunk. The index itself only knows ids and
// vectors.
type Adapter struct {
	embedder embed.Embedder
	index    store.VectorIndex

	mu   sync.RWMutex
	meta map[string]map[string]string
}

// New creates the adapter.
func New(embedder embed.Embedder, index store.VectorIndex) *Adapter {
	return &Adapter{
		embedder: embedder,
		index:    index,
		meta:     make(map[string]map[string]string),
	}
}

// Upsert embeds the texts and stores vectors plus flat metadata. Inputs
// are index-aligned; replacing an existing chunk id swaps both vector
// and metadata.
func (a *Adapter) Upsert(ctx context.Context, ids []string, texts []string, metas []map[string]string) error {
	if len(ids) != len(texts) || len(ids) != len(metas) {
		return apperr.ValidationError("upsert inputs must be index-aligned", nil)
	}
	if len(ids) == 0 {
		return nil
	}

	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return apperr.New(apperr.ErrCodeEmbeddingFailed, "failed to embed chunks", err)
	}
	if err := a.index.Add(ctx, ids, vectors); err != nil {
		return err
	}

	a.mu.Lock()
	for i, id := range ids {
		a.meta[id] = metas[i]
	}
	a.mu.Unlock()
	return nil
}

// Query embeds the text and returns the top-k hits matching the filter.
// Filters are exact-match on flat keys and applied before truncation, so
// a filtered query still returns up to k results when enough match.
func (a *Adapter) Query(ctx context.Context, text string, k int, filter map[string]string) ([]*Hit, error) {
	if k < 1 {
		return nil, nil
	}

	queryVec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	// Over-fetch when filtering; matches may be sparse in the top of the
	// unfiltered ranking.
	fetch := k
	if len(filter) > 0 {
		fetch = k * 4
	}

	raw, err := a.index.Search(ctx, queryVec, fetch)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	hits := make([]*Hit, 0, k)
	for _, r := range raw {
		meta := a.meta[r.ID]
		if !matches(meta, filter) {
			continue
		}
		hits = append(hits, &Hit{
			ChunkID:    r.ID,
			Similarity: similarity(r.Distance),
			Metadata:   meta,
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Delete removes chunks from the index and drops their metadata.
func (a *Adapter) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := a.index.Delete(ctx, ids); err != nil {
		return err
	}
	a.mu.Lock()
	for _, id := range ids {
		delete(a.meta, id)
	}
	a.mu.Unlock()
	return nil
}

// DeleteWhere removes every chunk whose metadata matches the filter
// exactly. Used by document deletion (filter on doc_id).
func (a *Adapter) DeleteWhere(ctx context.Context, filter map[string]string) (int, error) {
	if len(filter) == 0 {
		return 0, nil
	}

	a.mu.RLock()
	var ids []string
	for id, meta := range a.meta {
		if matches(meta, filter) {
			ids = append(ids, id)
		}
	}
	a.mu.RUnlock()

	if len(ids) == 0 {
		return 0, nil
	}
	return len(ids), a.Delete(ctx, ids...)
}

// Metadata returns the stored flat metadata for a chunk id, or nil.
func (a *Adapter) Metadata(chunkID string) map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.meta[chunkID]
}

// Count returns the number of stored chunks.
func (a *Adapter) Count() int {
	return a.index.Count()
}

// matches reports whether meta satisfies every filter key exactly.
func matches(meta, filter map[string]string) bool {
	for key, want := range filter {
		if meta[key] != want {
			return false
		}
	}
	return true
}

// similarity converts cosine distance to a clamped similarity score.
func similarity(distance float32) float64 {
	sim := 1 - float64(distance)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
