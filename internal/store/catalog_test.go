package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	cat, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestCatalog_DocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	doc := NewDocument("notes.md", "/inbox/notes.md", DocTypeMarkdown, "# Hello\n\nworld")
	require.NoError(t, cat.SaveDocument(ctx, doc))

	got, err := cat.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "notes.md", got.Filename)
	assert.Equal(t, DocTypeMarkdown, got.DocType)
	assert.Equal(t, doc.Content, got.Content)

	has, err := cat.HasDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = cat.HasDocument(ctx, HashContent("other content"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCatalog_GetMissingDocumentReturnsNil(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	got, err := cat.GetDocument(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCatalog_EnrichmentGenerations(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	doc := NewDocument("a.md", "", DocTypeMarkdown, "content")
	require.NoError(t, cat.SaveDocument(ctx, doc))

	meta := &EnrichedMetadata{Title: "First pass", Topics: []string{"technology/ai"}}
	gen, err := cat.SaveEnrichment(ctx, doc.ID, meta, &QualityScores{Signalness: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, gen)

	// Re-enrichment appends the next generation, never mutates.
	meta2 := &EnrichedMetadata{Title: "Second pass"}
	gen, err = cat.SaveEnrichment(ctx, doc.ID, meta2, &QualityScores{Signalness: 0.7})
	require.NoError(t, err)
	assert.Equal(t, 2, gen)

	rec, err := cat.GetEnrichment(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Generation)
	assert.Equal(t, "Second pass", rec.Metadata.Title)
	assert.InDelta(t, 0.7, rec.Scores.Signalness, 1e-9)
}

func TestCatalog_ChunksTransactionalReplace(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	doc := NewDocument("a.md", "", DocTypeMarkdown, "content")
	require.NoError(t, cat.SaveDocument(ctx, doc))

	now := time.Now().UTC()
	chunks := []*Chunk{
		{ID: ChunkID(doc.ShortID(), 0), DocID: doc.ID, Sequence: 0, Text: "first",
			ChunkType: ChunkTypeParagraph, ParentSections: []string{"Intro"},
			SectionTitle: "Intro", TokenEstimate: 1, CreatedAt: now},
		{ID: ChunkID(doc.ShortID(), 1), DocID: doc.ID, Sequence: 1, Text: "second",
			ChunkType: ChunkTypeParagraph, TokenEstimate: 1, CreatedAt: now},
	}
	require.NoError(t, cat.SaveChunks(ctx, doc.ID, chunks))

	got, err := cat.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Sequence)
	assert.Equal(t, []string{"Intro"}, got[0].ParentSections)
	assert.Equal(t, "Intro", got[0].SectionTitle)

	// Replacing writes a fresh set.
	replacement := []*Chunk{
		{ID: ChunkID(doc.ShortID(), 0), DocID: doc.ID, Sequence: 0, Text: "only",
			ChunkType: ChunkTypeParagraph, TokenEstimate: 1, CreatedAt: now},
	}
	require.NoError(t, cat.SaveChunks(ctx, doc.ID, replacement))

	got, err = cat.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].Text)
}

func TestCatalog_GetChunksPreservesRequestOrder(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	doc := NewDocument("a.md", "", DocTypeMarkdown, "content")
	require.NoError(t, cat.SaveDocument(ctx, doc))

	now := time.Now().UTC()
	var chunks []*Chunk
	for i := 0; i < 3; i++ {
		chunks = append(chunks, &Chunk{
			ID: ChunkID(doc.ShortID(), i), DocID: doc.ID, Sequence: i,
			Text: "text", ChunkType: ChunkTypeParagraph, TokenEstimate: 1, CreatedAt: now,
		})
	}
	require.NoError(t, cat.SaveChunks(ctx, doc.ID, chunks))

	want := []string{chunks[2].ID, chunks[0].ID}
	got, err := cat.GetChunks(ctx, append(want, "missing_chunk_9"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0], got[0].ID)
	assert.Equal(t, want[1], got[1].ID)
}

func TestCatalog_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	doc := NewDocument("a.md", "", DocTypeMarkdown, "content")
	require.NoError(t, cat.SaveDocument(ctx, doc))
	_, err := cat.SaveEnrichment(ctx, doc.ID, &EnrichedMetadata{Title: "T"}, nil)
	require.NoError(t, err)
	require.NoError(t, cat.SaveChunks(ctx, doc.ID, []*Chunk{
		{ID: ChunkID(doc.ShortID(), 0), DocID: doc.ID, Sequence: 0, Text: "x",
			ChunkType: ChunkTypeParagraph, TokenEstimate: 1, CreatedAt: time.Now()},
	}))

	require.NoError(t, cat.DeleteDocument(ctx, doc.ID))

	got, err := cat.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	chunks, err := cat.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	rec, err := cat.GetEnrichment(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCatalog_GatedDocuments(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	rec := &GatedDocument{
		DocID:      HashContent("low signal"),
		Filename:   "junk.txt",
		Title:      "Low signal note",
		Signalness: 0.12,
		Reason:     "signalness 0.12 below threshold 0.30",
		GatedAt:    time.Now().UTC(),
	}
	require.NoError(t, cat.SaveGatedDocument(ctx, rec))

	recs, err := cat.ListGatedDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.DocID, recs[0].DocID)
	assert.InDelta(t, 0.12, recs[0].Signalness, 1e-9)
}

func TestCatalog_Stats(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	doc := NewDocument("a.md", "", DocTypeMarkdown, "content")
	require.NoError(t, cat.SaveDocument(ctx, doc))
	require.NoError(t, cat.SaveChunks(ctx, doc.ID, []*Chunk{
		{ID: ChunkID(doc.ShortID(), 0), DocID: doc.ID, Sequence: 0, Text: "x",
			ChunkType: ChunkTypeParagraph, TokenEstimate: 1, CreatedAt: time.Now()},
	}))

	stats, err := cat.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 1, stats.ChunkCount)
	assert.False(t, stats.LastIngestedAt.IsZero())
}
