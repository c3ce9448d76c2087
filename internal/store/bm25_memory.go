package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryBM25Index is an exact Okapi BM25 index held entirely in memory.
// Adds and removes only mark the index dirty; postings are rebuilt lazily
// before the first search that needs them. Rebuild is O(N * avg_doc_len),
// which is fine up to roughly 10^5 chunks.
type MemoryBM25Index struct {
	mu     sync.Mutex
	config BM25Config
	closed bool

	// Source of truth: chunk ID -> tokens.
	docs map[string][]string

	// Derived state, valid only when dirty is false.
	dirty     bool
	postings  map[string]map[string]int // term -> chunk ID -> term frequency
	docLength map[string]int
	avgLength float64
}

// Verify interface implementation at compile time
var _ BM25Index = (*MemoryBM25Index)(nil)

// NewMemoryBM25Index creates an empty in-memory BM25 index.
func NewMemoryBM25Index(config BM25Config) *MemoryBM25Index {
	if config.K1 == 0 {
		config.K1 = DefaultBM25Config().K1
	}
	if config.B == 0 {
		config.B = DefaultBM25Config().B
	}
	return &MemoryBM25Index{
		config: config,
		docs:   make(map[string][]string),
		dirty:  true,
	}
}

// Add indexes entries, replacing any with the same ID.
func (m *MemoryBM25Index) Add(ctx context.Context, entries []IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}

	for _, e := range entries {
		m.docs[e.ID] = Tokenize(e.Text)
	}
	m.dirty = true
	return nil
}

// Remove deletes entries by chunk ID. Unknown IDs are ignored.
func (m *MemoryBM25Index) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		delete(m.docs, id)
	}
	m.dirty = true
	return nil
}

// Search returns the top k entries scored by Okapi BM25, best first. A
// deferred rebuild runs first if the index is dirty, so the search lock is
// exclusive rather than shared.
func (m *MemoryBM25Index) Search(ctx context.Context, query string, k int) ([]*BM25Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if k <= 0 {
		return []*BM25Result{}, nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 || len(m.docs) == 0 {
		return []*BM25Result{}, nil
	}

	if m.dirty {
		m.rebuildLocked()
	}

	n := float64(len(m.docs))
	scores := make(map[string]float64)
	matched := make(map[string]map[string]struct{})

	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		// Repeated query terms score once.
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		posting, ok := m.postings[term]
		if !ok {
			continue
		}

		df := float64(len(posting))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for id, tf := range posting {
			lengthNorm := 1 - m.config.B + m.config.B*float64(m.docLength[id])/m.avgLength
			scores[id] += idf * float64(tf) * (m.config.K1 + 1) /
				(float64(tf) + m.config.K1*lengthNorm)

			if matched[id] == nil {
				matched[id] = make(map[string]struct{})
			}
			matched[id][term] = struct{}{}
		}
	}

	results := make([]*BM25Result, 0, len(scores))
	for id, score := range scores {
		terms := make([]string, 0, len(matched[id]))
		for t := range matched[id] {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		results = append(results, &BM25Result{
			ChunkID:      id,
			Score:        score,
			MatchedTerms: terms,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// rebuildLocked recomputes postings, document lengths, and the average
// length. Caller must hold mu.
func (m *MemoryBM25Index) rebuildLocked() {
	m.postings = make(map[string]map[string]int)
	m.docLength = make(map[string]int, len(m.docs))

	totalLength := 0
	for id, tokens := range m.docs {
		m.docLength[id] = len(tokens)
		totalLength += len(tokens)
		for _, tok := range tokens {
			if m.postings[tok] == nil {
				m.postings[tok] = make(map[string]int)
			}
			m.postings[tok][id]++
		}
	}

	m.avgLength = 1
	if len(m.docs) > 0 {
		m.avgLength = float64(totalLength) / float64(len(m.docs))
		if m.avgLength == 0 {
			m.avgLength = 1
		}
	}
	m.dirty = false
}

// AllIDs returns all indexed chunk IDs, sorted.
func (m *MemoryBM25Index) AllIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns index statistics.
func (m *MemoryBM25Index) Stats() *BM25Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &BM25Stats{}
	}
	if m.dirty {
		m.rebuildLocked()
	}

	return &BM25Stats{
		DocumentCount: len(m.docs),
		TermCount:     len(m.postings),
		AvgDocLength:  m.avgLength,
	}
}

// Close releases the index. Further operations fail.
func (m *MemoryBM25Index) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.docs = nil
	m.postings = nil
	m.docLength = nil
	return nil
}
