package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// DefaultRerankerTimeout bounds one rerank HTTP call.
const DefaultRerankerTimeout = 10 * time.Second

// HTTPReranker calls an external cross-encoder service exposing a
// /rerank endpoint.
type HTTPReranker struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates the client. No health check here; Available
// probes lazily so a dead service degrades instead of failing startup.
func NewHTTPReranker(endpoint string, timeout time.Duration) *HTTPReranker {
	if timeout <= 0 {
		timeout = DefaultRerankerTimeout
	}
	return &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Rerank returns one raw score per document, index-aligned.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	r.mu.RUnlock()

	if len(documents) == 0 {
		return []float64{}, nil
	}

	payload, err := json.Marshal(rerankRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		r.endpoint+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank failed with status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, item := range parsed.Results {
		if item.Index >= 0 && item.Index < len(scores) {
			scores[item.Index] = item.Score
		}
	}
	return scores, nil
}

// Available probes the service health endpoint.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	if r.closed || r.endpoint == "" {
		r.mu.RUnlock()
		return false
	}
	r.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases pooled connections.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// LexicalReranker is the offline fallback: raw score derived from query
// term coverage, centered so sigmoid spreads results across (0,1).
type LexicalReranker struct{}

var _ Reranker = (*LexicalReranker)(nil)

// NewLexicalReranker creates the fallback reranker.
func NewLexicalReranker() *LexicalReranker { return &LexicalReranker{} }

// Rerank scores each document as 4*coverage - 2 where coverage is the
// fraction of distinct query terms present in the document.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := store.TokenSet(query)
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		scores[i] = 4*coverage(queryTerms, store.TokenSet(doc)) - 2
	}
	return scores, nil
}

// coverage is the fraction of query terms found in the document.
func coverage(queryTerms, docTerms map[string]struct{}) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	found := 0
	for term := range queryTerms {
		if _, ok := docTerms[term]; ok {
			found++
		}
	}
	return float64(found) / float64(len(queryTerms))
}

// Available always reports true.
func (r *LexicalReranker) Available(ctx context.Context) bool { return true }
