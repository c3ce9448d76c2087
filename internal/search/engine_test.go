package search

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dante4567/rag-provider-sub004/internal/embed"
	"github.com/dante4567/rag-provider-sub004/internal/store"
	"github.com/dante4567/rag-provider-sub004/internal/vector"
)

type fixture struct {
	engine  *Engine
	bm25    store.BM25Index
	vectors *vector.Adapter
	catalog store.Catalog
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	bm25 := store.NewMemoryBM25Index(store.DefaultBM25Config())

	embedder := embed.NewStaticEmbedder()
	index, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embedder.Dimensions()))
	require.NoError(t, err)
	vectors := vector.New(embedder, index)

	catalog, err := store.NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = catalog.Close()
		_ = index.Close()
		_ = embedder.Close()
		_ = bm25.Close()
	})

	engine, err := NewEngine(bm25, vectors, catalog, opts...)
	require.NoError(t, err)
	return &fixture{engine: engine, bm25: bm25, vectors: vectors, catalog: catalog}
}

// ingest stores one chunk across all three stores.
func (f *fixture) ingest(t *testing.T, chunkID, docID, text string, meta map[string]string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.bm25.Add(ctx, []store.IndexEntry{{ID: chunkID, Text: text}}))

	if meta == nil {
		meta = map[string]string{}
	}
	meta["doc_id"] = docID
	require.NoError(t, f.vectors.Upsert(ctx,
		[]string{chunkID}, []string{text}, []map[string]string{meta}))

	doc := &store.Document{
		ID: docID, Filename: docID + ".md", DocType: store.DocTypeMarkdown,
		Content: text, IngestedAt: time.Now().UTC(),
	}
	require.NoError(t, f.catalog.SaveDocument(ctx, doc))

	chunks, err := f.catalog.GetChunksByDocument(ctx, docID)
	require.NoError(t, err)
	chunks = append(chunks, &store.Chunk{
		ID: chunkID, DocID: docID, Sequence: len(chunks), Text: text,
		ChunkType: store.ChunkTypeParagraph, TokenEstimate: len(text) / 4,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, f.catalog.SaveChunks(ctx, docID, chunks))
}

func TestSearch_HybridFindsExactKeywordMatch(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a_chunk_0", "doc-a", "The kindergarten enrollment form is due on March 15.", nil)
	f.ingest(t, "b_chunk_0", "doc-b", "Sourdough starter needs feeding twice a day in summer.", nil)
	f.ingest(t, "c_chunk_0", "doc-c", "Quarterly budget review scheduled for the finance team.", nil)

	results, err := f.engine.Search(context.Background(),
		"kindergarten enrollment deadline", 2, nil, ModeHybrid)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "a_chunk_0", results[0].ChunkID)
	assert.Equal(t, "doc-a", results[0].DocID)
	assert.Contains(t, results[0].Text, "enrollment form")
	assert.NotEmpty(t, results[0].MatchedTerms)
}

func TestSearch_RelevanceScoresStayInUnitInterval(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.ingest(t, fmt.Sprintf("d%d_chunk_0", i), fmt.Sprintf("doc-%d", i),
			fmt.Sprintf("Note number %d about project planning and schedules.", i), nil)
	}

	results, err := f.engine.Search(context.Background(), "project planning", 5, nil, ModeHybrid)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.RelevanceScore, 0.0)
		assert.LessOrEqual(t, r.RelevanceScore, 1.0)
	}
}

func TestMMR_PenalizesNearDuplicates(t *testing.T) {
	texts := map[string]string{
		"a_chunk_0": "The school fair is on Saturday. Volunteers arrive at nine.",
		"a_chunk_1": "The school fair is on Saturday. Volunteers arrive at nine sharp.",
		"b_chunk_0": "Fair parking is behind the gym; enter from Oak Street.",
	}
	candidates := []*scored{
		{chunkID: "a_chunk_0", fused: 0.95},
		{chunkID: "a_chunk_1", fused: 0.93},
		{chunkID: "b_chunk_0", fused: 0.80},
	}

	selected := mmr(candidates, texts, DefaultMMRLambda, 2)
	require.Len(t, selected, 2)

	// The second slot goes to the distinct chunk, not the near-duplicate.
	assert.Equal(t, "a_chunk_0", selected[0].chunkID)
	assert.Equal(t, "b_chunk_0", selected[1].chunkID)
}

func TestSearch_FilterRestrictsResults(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a_chunk_0", "doc-a", "Enrollment paperwork for the new school year.",
		map[string]string{"topics": "school/admin"})
	f.ingest(t, "b_chunk_0", "doc-b", "Enrollment numbers dropped at the university.",
		map[string]string{"topics": "education/stats"})

	results, err := f.engine.Search(context.Background(), "enrollment", 5,
		map[string]string{"topics": "school/admin"}, ModeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a_chunk_0", results[0].ChunkID)
}

func TestSearch_DenseModeSkipsKeywordSide(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a_chunk_0", "doc-a", "Piano lessons resume next Tuesday afternoon.", nil)
	f.ingest(t, "b_chunk_0", "doc-b", "Grocery list for the week: apples, rice, beans.", nil)

	results, err := f.engine.Search(context.Background(), "piano lessons", 2, nil, ModeDense)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "a_chunk_0", results[0].ChunkID)
	for _, r := range results {
		assert.Empty(t, r.MatchedTerms, "dense mode carries no lexical match terms")
	}
}

func TestSearch_TieBreaksAreDeterministic(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a_chunk_0", "doc-a", "identical text here", nil)
	f.ingest(t, "b_chunk_0", "doc-b", "identical text here", nil)

	first, err := f.engine.Search(context.Background(), "identical text", 2, nil, ModeHybrid)
	require.NoError(t, err)
	f.engine.Cache().InvalidateAll()
	second, err := f.engine.Search(context.Background(), "identical text", 2, nil, ModeHybrid)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
	}
	assert.Equal(t, "a_chunk_0", first[0].ChunkID, "equal scores order by chunk id")
}

func TestSearch_CacheHitSkipsRetrieval(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a_chunk_0", "doc-a", "Cache me if you can.", nil)

	_, err := f.engine.Search(context.Background(), "cache me", 3, nil, ModeHybrid)
	require.NoError(t, err)
	_, err = f.engine.Search(context.Background(), "  Cache   ME ", 3, nil, ModeHybrid)
	require.NoError(t, err)

	hits, misses := f.engine.Cache().Stats()
	assert.Equal(t, int64(1), hits, "normalized repeat query hits the cache")
	assert.Equal(t, int64(1), misses)
}

func TestSearch_InvalidationAfterIngestChangesResults(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a_chunk_0", "doc-a", "Old note about the garden fence.", nil)

	before, err := f.engine.Search(context.Background(), "garden fence repair", 5, nil, ModeHybrid)
	require.NoError(t, err)
	require.Len(t, before, 1)

	f.ingest(t, "b_chunk_0", "doc-b", "Garden fence repair scheduled with the contractor.", nil)
	f.engine.Cache().InvalidateAll()

	after, err := f.engine.Search(context.Background(), "garden fence repair", 5, nil, ModeHybrid)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestSearch_ValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Search(context.Background(), "", 5, nil, ModeHybrid)
	assert.Error(t, err)

	_, err = f.engine.Search(context.Background(), "query", 0, nil, ModeHybrid)
	assert.Error(t, err)
}

func TestSearch_EmptyCorpusReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	results, err := f.engine.Search(context.Background(), "anything", 5, nil, ModeHybrid)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// failingReranker always errors; the engine must fall back to lexical.
type failingReranker struct{}

func (f *failingReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	return nil, fmt.Errorf("rerank service exploded")
}
func (f *failingReranker) Available(ctx context.Context) bool { return true }

func TestSearch_RerankerFailureFallsBackToLexical(t *testing.T) {
	f := newFixture(t, WithReranker(&failingReranker{}))
	f.ingest(t, "a_chunk_0", "doc-a", "Dentist appointment moved to Thursday morning.", nil)

	results, err := f.engine.Search(context.Background(), "dentist appointment", 3, nil, ModeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].RelevanceScore, 0.5,
		"lexical fallback rewards full query coverage")
}

func TestLexicalReranker_ScoresTrackCoverage(t *testing.T) {
	scores, err := NewLexicalReranker().Rerank(context.Background(),
		"school enrollment form",
		[]string{
			"the school enrollment form is attached",
			"the school is closed today",
			"unrelated grocery receipts",
		})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], scores[2])
	assert.Equal(t, 2.0, scores[0], "full coverage maps to the sigmoid's upper range")
}

func TestCacheKey_ShapeSensitivity(t *testing.T) {
	base := Key("hello world", 5, nil, ModeHybrid)

	assert.Equal(t, base, Key("  Hello   WORLD ", 5, nil, ModeHybrid),
		"whitespace and case normalize away")
	assert.NotEqual(t, base, Key("hello world", 6, nil, ModeHybrid))
	assert.NotEqual(t, base, Key("hello world", 5, nil, ModeDense))
	assert.NotEqual(t, base, Key("hello world", 5, map[string]string{"topics": "a"}, ModeHybrid))

	withFilter := Key("q", 3, map[string]string{"a": "1", "b": "2"}, ModeHybrid)
	assert.Equal(t, withFilter, Key("q", 3, map[string]string{"b": "2", "a": "1"}, ModeHybrid),
		"filter key order does not matter")
}

func TestFuse_OneEmptySideTakesFullWeight(t *testing.T) {
	dense := map[string]float64{"a": 0.9, "b": 0.2}
	out := fuse(nil, dense, 0.3, 0.7, nil)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].chunkID)
	assert.InDelta(t, 1.0, out[0].fused, 1e-9, "sole source is renormalized to weight 1")
}

func TestMinMaxNormalize_AllEqualCollapsesToHalf(t *testing.T) {
	out := minMaxNormalize(map[string]float64{"a": 3.3, "b": 3.3})
	assert.Equal(t, 0.5, out["a"])
	assert.Equal(t, 0.5, out["b"])
	assert.Empty(t, minMaxNormalize(nil))
}
