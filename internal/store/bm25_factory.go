package store

import (
	"fmt"
	"strings"
)

// BM25 backend names accepted by the factory.
const (
	BM25BackendMemory = "memory"
	BM25BackendBleve  = "bleve"
)

// NewBM25Index creates a BM25 index for the named backend. The memory
// backend is the default: exact Okapi scoring with deferred rebuild. The
// bleve backend trades exactness of our parameter choices for bleve's
// battle-tested scoring and is selectable via config.
func NewBM25Index(backend string, config BM25Config) (BM25Index, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BM25BackendMemory:
		return NewMemoryBM25Index(config), nil
	case BM25BackendBleve:
		return NewBleveBM25Index()
	default:
		return nil, fmt.Errorf("unknown bm25 backend %q (want 'memory' or 'bleve')", backend)
	}
}
