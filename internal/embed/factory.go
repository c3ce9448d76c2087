package embed

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dante4567/rag-provider-sub004/internal/config"
)

// Provider names accepted in config.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// NewEmbedder builds the configured embedder wrapped in the LRU cache.
// An empty provider auto-detects: Ollama when the daemon answers, the
// static hash embedder otherwise. Auto-detection never fails; an explicit
// "ollama" with no daemon does.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	inner, err := newInner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newInner(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	ollamaCfg := OllamaConfig{
		Host:       cfg.OllamaHost,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		BatchSize:  cfg.BatchSize,
	}

	switch cfg.Provider {
	case ProviderStatic:
		return NewStaticEmbedder(), nil

	case ProviderOllama:
		return NewOllamaEmbedder(ctx, ollamaCfg)

	default:
		// Auto-detect: probe the daemon cheaply before committing.
		if ollamaReachable(ctx, hostOrDefault(cfg.OllamaHost)) {
			e, err := NewOllamaEmbedder(ctx, ollamaCfg)
			if err == nil {
				return e, nil
			}
			slog.Warn("ollama_embedder_failed_falling_back",
				slog.String("error", err.Error()))
		}
		slog.Info("embedder_selected", slog.String("provider", "static"))
		return NewStaticEmbedder(), nil
	}
}

func hostOrDefault(host string) string {
	if host == "" {
		return DefaultOllamaHost
	}
	return host
}

// ollamaReachable checks the daemon root with a short deadline.
func ollamaReachable(ctx context.Context, host string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		strings.TrimRight(host, "/")+"/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
