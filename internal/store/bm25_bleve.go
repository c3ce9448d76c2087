package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
)

// chunkAnalyzerName is the analyzer registered for chunk text: unicode
// word tokenization plus lowercasing, no stemming. It must agree with
// Tokenize so both BM25 backends score the same terms.
const chunkAnalyzerName = "chunk_text"

// BleveBM25Index is the alternate BM25 backend built on bleve's memory-only
// index. It exists behind the same contract as MemoryBM25Index; the factory
// selects between them.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
	ids    map[string]struct{}
}

// Verify interface implementation at compile time
var _ BM25Index = (*BleveBM25Index)(nil)

// bleveChunk is the document shape handed to bleve.
type bleveChunk struct {
	Text string `json:"text"`
}

// NewBleveBM25Index creates a memory-only bleve index with the chunk
// analyzer.
func NewBleveBM25Index() (*BleveBM25Index, error) {
	indexMapping, err := createChunkMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BleveBM25Index{
		index: idx,
		ids:   make(map[string]struct{}),
	}, nil
}

// createChunkMapping builds the bleve mapping with the chunk analyzer as
// default.
func createChunkMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(chunkAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = chunkAnalyzerName
	return indexMapping, nil
}

// Add indexes entries, replacing any with the same ID.
func (b *BleveBM25Index) Add(ctx context.Context, entries []IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(e.ID, bleveChunk{Text: e.Text}); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", e.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	for _, e := range entries {
		b.ids[e.ID] = struct{}{}
	}
	return nil
}

// Remove deletes entries by chunk ID. Unknown IDs are ignored.
func (b *BleveBM25Index) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	for _, id := range ids {
		delete(b.ids, id)
	}
	return nil
}

// Search returns the top k entries, best first. Ties break on chunk ID
// ascending.
func (b *BleveBM25Index) Search(ctx context.Context, query string, k int) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if k <= 0 || strings.TrimSpace(query) == "" {
		return []*BM25Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("text")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k
	searchRequest.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &BM25Result{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results, nil
}

// AllIDs returns all indexed chunk IDs, sorted.
func (b *BleveBM25Index) AllIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	ids := make([]string, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns index statistics. Bleve does not expose term counts or
// average document length, so only the document count is populated.
func (b *BleveBM25Index) Stats() *BM25Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &BM25Stats{}
	}

	return &BM25Stats{DocumentCount: len(b.ids)}
}

// Close closes the index.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// matchedTerms extracts the distinct matched terms from a search hit.
func matchedTerms(hit *search.DocumentMatch) []string {
	set := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "text" {
			continue
		}
		for term := range locations {
			set[term] = struct{}{}
		}
	}

	terms := make([]string, 0, len(set))
	for term := range set {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
