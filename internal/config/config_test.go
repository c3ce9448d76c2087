package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateUserConfig points XDG_CONFIG_HOME at an empty directory so tests
// never read a developer's real user config.
func isolateUserConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	// Search defaults
	assert.Equal(t, 0.3, cfg.Search.BM25Weight)
	assert.Equal(t, 0.7, cfg.Search.DenseWeight)
	assert.Equal(t, 0.7, cfg.Search.MMRLambda)
	assert.Equal(t, 500, cfg.Search.CacheSize)
	assert.Equal(t, 300, cfg.Search.CacheTTLSeconds)
	assert.Equal(t, "memory", cfg.Search.BM25Backend)

	// Budget defaults
	assert.Equal(t, 5.0, cfg.Budget.DailyBudgetUSD)
	assert.Equal(t, 0.01, cfg.Budget.SafetyMarginUSD)

	// Chunker defaults
	assert.Equal(t, 400, cfg.Chunker.TargetTokens)
	assert.Equal(t, 800, cfg.Chunker.MaxTokens)

	// Enrichment defaults
	assert.Equal(t, 8000, cfg.Enrichment.PromptWindowChars)

	// Quality gate defaults
	assert.True(t, cfg.Quality.Enabled)
	assert.Equal(t, 0.3, cfg.Quality.Threshold)

	// RAG defaults
	assert.Equal(t, 0.6, cfg.RAG.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.RAG.TopK)

	// Embeddings defaults (auto-detection: ollama → static)
	assert.Equal(t, "", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)

	// Pipeline defaults
	assert.Equal(t, 4, cfg.Pipeline.MaxInFlight)

	// At least one provider declared out of the box
	require.NotEmpty(t, cfg.Providers.Definitions)
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewConfig()
	cfg.applyDerivedPaths()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	content := `
search:
  bm25_weight: 0.5
  dense_weight: 0.5
  mmr_lambda: 0.4
chunker:
  target_tokens: 256
  max_tokens: 512
budget:
  daily_budget_usd: 1.25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ragcore.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Search.BM25Weight)
	assert.Equal(t, 0.5, cfg.Search.DenseWeight)
	assert.Equal(t, 0.4, cfg.Search.MMRLambda)
	assert.Equal(t, 256, cfg.Chunker.TargetTokens)
	assert.Equal(t, 512, cfg.Chunker.MaxTokens)
	assert.Equal(t, 1.25, cfg.Budget.DailyBudgetUSD)

	// Untouched options keep defaults
	assert.Equal(t, 500, cfg.Search.CacheSize)
	assert.Equal(t, 0.6, cfg.RAG.ConfidenceThreshold)
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	content := `
search:
  bm52_weight: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ragcore.yaml"), []byte(content), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bm52_weight")
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	content := `
budget:
  daily_budget_usd: 9.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ragcore.yaml"), []byte(content), 0o644))

	t.Setenv("RAGCORE_DAILY_BUDGET_USD", "0.5")
	t.Setenv("RAGCORE_MMR_LAMBDA", "0.9")
	t.Setenv("RAGCORE_QUALITY_GATE_ENABLED", "false")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Budget.DailyBudgetUSD)
	assert.Equal(t, 0.9, cfg.Search.MMRLambda)
	assert.False(t, cfg.Quality.Enabled)
}

func TestLoad_DerivesPathsFromDataDir(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	t.Setenv("RAGCORE_DATA_DIR", filepath.Join(dir, "state"))

	cfg, err := Load(dir)
	require.NoError(t, err)

	base := filepath.Join(dir, "state")
	assert.Equal(t, filepath.Join(base, "vocab"), cfg.Paths.VocabDir)
	assert.Equal(t, filepath.Join(base, "catalog.db"), cfg.Paths.CatalogPath)
	assert.Equal(t, filepath.Join(base, "suggestions.jsonl"), cfg.Paths.SuggestionsPath)
	assert.Equal(t, filepath.Join(base, "costs.json"), cfg.Paths.LedgerPath)
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	isolateUserConfig(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Search.BM25Weight)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative bm25 weight", func(c *Config) { c.Search.BM25Weight = -0.1 }, "bm25_weight"},
		{"both weights zero", func(c *Config) { c.Search.BM25Weight = 0; c.Search.DenseWeight = 0 }, "both be zero"},
		{"lambda above one", func(c *Config) { c.Search.MMRLambda = 1.5 }, "mmr_lambda"},
		{"zero cache", func(c *Config) { c.Search.CacheSize = 0 }, "cache_size"},
		{"zero ttl", func(c *Config) { c.Search.CacheTTLSeconds = 0 }, "cache_ttl_seconds"},
		{"bad backend", func(c *Config) { c.Search.BM25Backend = "fts5" }, "bm25_backend"},
		{"negative budget", func(c *Config) { c.Budget.DailyBudgetUSD = -1 }, "daily_budget_usd"},
		{"max below target", func(c *Config) { c.Chunker.TargetTokens = 500; c.Chunker.MaxTokens = 400 }, "max_tokens"},
		{"tiny prompt window", func(c *Config) { c.Enrichment.PromptWindowChars = 10 }, "prompt_window_chars"},
		{"threshold above one", func(c *Config) { c.Quality.Threshold = 2 }, "threshold"},
		{"bad confidence", func(c *Config) { c.RAG.ConfidenceThreshold = -0.2 }, "confidence_threshold"},
		{"zero top_k", func(c *Config) { c.RAG.TopK = 0 }, "top_k"},
		{"bad embedder", func(c *Config) { c.Embeddings.Provider = "openvino" }, "embeddings.provider"},
		{"no providers", func(c *Config) { c.Providers.Definitions = nil }, "at least one provider"},
		{"bad provider kind", func(c *Config) { c.Providers.Definitions[0].Kind = "carrier-pigeon" }, "kind"},
		{"order references unknown", func(c *Config) { c.Providers.Order = []string{"ghost"} }, "undefined provider"},
		{"zero in flight", func(c *Config) { c.Pipeline.MaxInFlight = 0 }, "max_in_flight"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.applyDerivedPaths()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOrderedProviders_DeclarationOrderByDefault(t *testing.T) {
	cfg := NewConfig()
	cfg.Providers.Definitions = []ProviderConfig{
		{ID: "a", Kind: "openai"},
		{ID: "b", Kind: "ollama"},
		{ID: "c", Kind: "static"},
	}

	got := cfg.OrderedProviders()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestOrderedProviders_ExplicitOrder(t *testing.T) {
	cfg := NewConfig()
	cfg.Providers.Definitions = []ProviderConfig{
		{ID: "a", Kind: "openai"},
		{ID: "b", Kind: "ollama"},
		{ID: "c", Kind: "static"},
	}
	cfg.Providers.Order = []string{"c", "a"}

	got := cfg.OrderedProviders()
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".ragcore.yaml")

	cfg := NewConfig()
	cfg.Search.BM25Weight = 0.45
	cfg.Search.DenseWeight = 0.55
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.45, loaded.Search.BM25Weight)
	assert.Equal(t, 0.55, loaded.Search.DenseWeight)
}
