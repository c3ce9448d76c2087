package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBM25Index_Backends(t *testing.T) {
	tests := []struct {
		backend string
		want    any
	}{
		{"", &MemoryBM25Index{}},
		{"memory", &MemoryBM25Index{}},
		{"Memory", &MemoryBM25Index{}},
		{"bleve", &BleveBM25Index{}},
	}

	for _, tt := range tests {
		t.Run("backend_"+tt.backend, func(t *testing.T) {
			idx, err := NewBM25Index(tt.backend, DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()
			assert.IsType(t, tt.want, idx)
		})
	}
}

func TestNewBM25Index_UnknownBackend(t *testing.T) {
	_, err := NewBM25Index("elasticsearch", DefaultBM25Config())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bm25 backend")
}

// Both backends must agree on the basics: same tokenization, same top hit.
func TestBM25Backends_AgreeOnTopHit(t *testing.T) {
	ctx := context.Background()
	entries := []IndexEntry{
		{ID: "a", Text: "kubernetes cluster upgrade runbook"},
		{ID: "b", Text: "grocery list for the weekend"},
		{ID: "c", Text: "notes on cluster autoscaling behavior"},
	}

	for _, backend := range []string{"memory", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			idx, err := NewBM25Index(backend, DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()

			require.NoError(t, idx.Add(ctx, entries))
			results, err := idx.Search(ctx, "kubernetes upgrade", 3)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "a", results[0].ChunkID)
		})
	}
}
