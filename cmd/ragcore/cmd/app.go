package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dante4567/rag-provider-sub004/internal/chunk"
	"github.com/dante4567/rag-provider-sub004/internal/config"
	"github.com/dante4567/rag-provider-sub004/internal/embed"
	"github.com/dante4567/rag-provider-sub004/internal/enrich"
	"github.com/dante4567/rag-provider-sub004/internal/ledger"
	"github.com/dante4567/rag-provider-sub004/internal/llm"
	"github.com/dante4567/rag-provider-sub004/internal/pipeline"
	"github.com/dante4567/rag-provider-sub004/internal/quality"
	"github.com/dante4567/rag-provider-sub004/internal/rag"
	"github.com/dante4567/rag-provider-sub004/internal/search"
	"github.com/dante4567/rag-provider-sub004/internal/store"
	"github.com/dante4567/rag-provider-sub004/internal/ui"
	"github.com/dante4567/rag-provider-sub004/internal/vector"
	"github.com/dante4567/rag-provider-sub004/internal/vocab"
)

// app is the wired service graph one command invocation runs against.
type app struct {
	cfg      *config.Config
	catalog  *store.SQLiteCatalog
	bm25     store.BM25Index
	embedder embed.Embedder
	index    *store.HNSWIndex
	vectors  *vector.Adapter
	vocab    *vocab.Store
	watcher  *vocab.Watcher
	ledger   *ledger.Ledger
	gateway  *llm.Gateway
	reranker *search.HTTPReranker
	engine   *search.Engine
	pipeline *pipeline.Pipeline
	answerer *rag.Answerer
	render   *ui.Renderer
}

// newApp loads config and builds every component. rebuild controls
// whether the in-memory indexes are repopulated from the catalog;
// commands that never search can skip it.
func newApp(ctx context.Context, rebuild bool) (*app, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	a := &app{cfg: cfg, render: ui.NewRenderer(os.Stdout, ui.StylesFor(os.Stdout))}

	a.catalog, err = store.NewSQLiteCatalog(cfg.Paths.CatalogPath)
	if err != nil {
		return nil, err
	}

	a.vocab, err = vocab.Load(cfg.Paths.VocabDir, cfg.Paths.SuggestionsPath)
	if err != nil {
		a.close()
		return nil, err
	}
	a.watcher, err = vocab.Watch(a.vocab)
	if err != nil {
		slog.Warn("vocabulary hot-reload disabled", "error", err)
	}

	a.ledger, err = ledger.New(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.gateway, err = llm.NewGateway(cfg, a.ledger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.embedder, err = embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		a.close()
		return nil, err
	}
	a.index, err = store.NewHNSWIndex(store.DefaultVectorIndexConfig(a.embedder.Dimensions()))
	if err != nil {
		a.close()
		return nil, err
	}
	a.vectors = vector.New(a.embedder, a.index)

	a.bm25, err = store.NewBM25Index(cfg.Search.BM25Backend, store.DefaultBM25Config())
	if err != nil {
		a.close()
		return nil, err
	}

	engineOpts := []search.Option{
		search.WithWeights(cfg.Search.BM25Weight, cfg.Search.DenseWeight),
		search.WithMMRLambda(cfg.Search.MMRLambda),
		search.WithCache(search.NewCache(cfg.Search.CacheSize,
			time.Duration(cfg.Search.CacheTTLSeconds)*time.Second)),
	}
	if cfg.Reranker.Endpoint != "" {
		a.reranker = search.NewHTTPReranker(cfg.Reranker.Endpoint,
			time.Duration(cfg.Reranker.TimeoutSeconds)*time.Second)
		engineOpts = append(engineOpts, search.WithReranker(a.reranker))
	}
	a.engine, err = search.NewEngine(a.bm25, a.vectors, a.catalog, engineOpts...)
	if err != nil {
		a.close()
		return nil, err
	}

	enricher, err := enrich.New(a.gateway, a.vocab,
		cfg.Enrichment.PromptWindowChars, cfg.Enrichment.Model)
	if err != nil {
		a.close()
		return nil, err
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Catalog:  a.catalog,
		BM25:     a.bm25,
		Vectors:  a.vectors,
		Enricher: enricher,
		Gate:     quality.NewGate(cfg.Quality.Enabled, cfg.Quality.Threshold),
		Chunker:  chunk.New(cfg.Chunker.TargetTokens, cfg.Chunker.MaxTokens),
		Cache:    a.engine.Cache(),
	}, cfg.Pipeline.MaxInFlight)
	if err != nil {
		a.close()
		return nil, err
	}

	a.answerer, err = rag.New(a.engine, a.gateway,
		cfg.RAG.ConfidenceThreshold, cfg.RAG.TopK)
	if err != nil {
		a.close()
		return nil, err
	}

	if rebuild {
		if err := a.pipeline.Rebuild(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// close tears the graph down in reverse dependency order: spend is
// flushed first, then watchers stop, then stores close.
func (a *app) close() {
	if a.ledger != nil {
		if err := a.ledger.Flush(); err != nil {
			slog.Warn("ledger flush failed on shutdown", "error", err)
		}
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.reranker != nil {
		_ = a.reranker.Close()
	}
	if a.bm25 != nil {
		_ = a.bm25.Close()
	}
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.catalog != nil {
		_ = a.catalog.Close()
	}
}
