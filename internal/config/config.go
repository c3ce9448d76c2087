package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ragcore configuration.
// Precedence: defaults < user config < project config < environment.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Providers  ProvidersConfig  `yaml:"providers" json:"providers"`
	Budget     BudgetConfig     `yaml:"budget" json:"budget"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Chunker    ChunkerConfig    `yaml:"chunker" json:"chunker"`
	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment"`
	Quality    QualityConfig    `yaml:"quality" json:"quality"`
	RAG        RAGConfig        `yaml:"rag" json:"rag"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig locates persistent state. Empty fields are derived from DataDir.
type PathsConfig struct {
	// DataDir is the root for all persistent state (default: ~/.ragcore).
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// VocabDir holds one YAML file per vocabulary kind.
	VocabDir string `yaml:"vocab_dir" json:"vocab_dir"`
	// CatalogPath is the SQLite document catalog.
	CatalogPath string `yaml:"catalog_path" json:"catalog_path"`
	// SuggestionsPath is the append-only suggested-terms JSONL log.
	SuggestionsPath string `yaml:"suggestions_path" json:"suggestions_path"`
	// LedgerPath is the daily cost snapshot file.
	LedgerPath string `yaml:"ledger_path" json:"ledger_path"`
}

// ProviderConfig describes one LLM provider in the fallback chain.
type ProviderConfig struct {
	// ID is the provider identifier referenced by providers.order.
	ID string `yaml:"id" json:"id"`
	// Kind selects the adapter: openai (any OpenAI-compatible API), ollama, static.
	Kind string `yaml:"kind" json:"kind"`
	// BaseURL overrides the adapter's default endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	// Keys are never stored in config files.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
	// Model is the default model id for this provider.
	Model string `yaml:"model" json:"model"`
	// MaxTokens caps completion length (0 = provider default).
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// TimeoutSeconds is the per-call deadline (default 60).
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ProvidersConfig configures the gateway's ordered provider chain.
type ProvidersConfig struct {
	// Order lists provider ids primary → fallback → emergency.
	// Empty means the declaration order of Definitions.
	Order []string `yaml:"order" json:"order"`
	// Definitions declares the available providers.
	Definitions []ProviderConfig `yaml:"definitions" json:"definitions"`
}

// BudgetConfig configures the daily spend gate.
type BudgetConfig struct {
	// DailyBudgetUSD is the hard daily cap across all providers.
	DailyBudgetUSD float64 `yaml:"daily_budget_usd" json:"daily_budget_usd"`
	// SafetyMarginUSD is added to today's total before comparing to the cap.
	SafetyMarginUSD float64 `yaml:"safety_margin_usd" json:"safety_margin_usd"`
	// Pricing overrides the built-in model price table (USD per 1M tokens).
	Pricing map[string]ModelPrice `yaml:"pricing" json:"pricing"`
}

// ModelPrice is the price of a model in USD per million tokens.
type ModelPrice struct {
	InputPer1M  float64 `yaml:"input_per_1m" json:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m" json:"output_per_1m"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// BM25Weight and DenseWeight are fusion weights. Their sum need not be
	// 1.0; they are renormalized internally.
	BM25Weight  float64 `yaml:"bm25_weight" json:"bm25_weight"`
	DenseWeight float64 `yaml:"dense_weight" json:"dense_weight"`
	// MMRLambda balances relevance (1.0) against diversity (0.0).
	MMRLambda float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
	// CacheSize is the result cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// CacheTTLSeconds is the result cache entry lifetime.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	// BM25Backend selects the lexical index backend: "memory" or "bleve".
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`
}

// ChunkerConfig configures structure-aware chunking.
type ChunkerConfig struct {
	TargetTokens int `yaml:"target_tokens" json:"target_tokens"`
	MaxTokens    int `yaml:"max_tokens" json:"max_tokens"`
}

// EnrichmentConfig configures metadata extraction.
type EnrichmentConfig struct {
	// PromptWindowChars is the deterministic truncation window for the
	// enrichment prompt.
	PromptWindowChars int `yaml:"prompt_window_chars" json:"prompt_window_chars"`
	// Model optionally pins enrichment to a specific model id.
	Model string `yaml:"model" json:"model"`
}

// QualityConfig configures the quality gate.
type QualityConfig struct {
	// Enabled selects gating mode; false means score-only annotation.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Threshold is the minimum signalness to admit a document.
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// RAGConfig configures the answer path.
type RAGConfig struct {
	// ConfidenceThreshold below which the answerer refuses without an LLM call.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	// TopK is the default number of chunks retrieved per question.
	TopK int `yaml:"top_k" json:"top_k"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider: "ollama", "static", or empty for auto-detect (ollama → static).
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Dimensions: 0 = auto-detect from the embedder.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint (default http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// CacheSize is the embedding LRU capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// RerankerConfig configures the cross-encoder adapter.
type RerankerConfig struct {
	// Endpoint of the rerank HTTP service. Empty disables the remote
	// reranker; retrieval falls back to the lexical reranker.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// TimeoutSeconds is the per-call deadline (default 10).
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// PipelineConfig configures ingestion orchestration.
type PipelineConfig struct {
	// MaxInFlight bounds concurrent ingestions; submissions beyond the bound
	// fail fast with a busy error.
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File is the log file path. Empty means stderr only.
	File string `yaml:"file" json:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths:   PathsConfig{}, // derived from DataDir in Load
		Providers: ProvidersConfig{
			Definitions: []ProviderConfig{
				{ID: "local", Kind: "ollama", Model: "llama3.2:3b", TimeoutSeconds: 120},
				{ID: "offline", Kind: "static", Model: "static-v1"},
			},
		},
		Budget: BudgetConfig{
			DailyBudgetUSD:  5.0,
			SafetyMarginUSD: 0.01,
		},
		Search: SearchConfig{
			BM25Weight:      0.3,
			DenseWeight:     0.7,
			MMRLambda:       0.7,
			CacheSize:       500,
			CacheTTLSeconds: 300,
			BM25Backend:     "memory",
		},
		Chunker: ChunkerConfig{
			TargetTokens: 400,
			MaxTokens:    800,
		},
		Enrichment: EnrichmentConfig{
			PromptWindowChars: 8000,
		},
		Quality: QualityConfig{
			Enabled:   true,
			Threshold: 0.3,
		},
		RAG: RAGConfig{
			ConfidenceThreshold: 0.6,
			TopK:                5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "", // auto-detect: ollama → static
			Model:     "nomic-embed-text",
			BatchSize: 32,
			CacheSize: 4096,
		},
		Reranker: RerankerConfig{
			TimeoutSeconds: 10,
		},
		Pipeline: PipelineConfig{
			MaxInFlight: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns the default state directory (~/.ragcore).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragcore")
	}
	return filepath.Join(home, ".ragcore")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ragcore/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ragcore/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragcore", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragcore", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragcore", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the given project directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/ragcore/config.yaml)
//  3. Project config (.ragcore.yaml in the project directory)
//  4. Environment variables (RAGCORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.applyDerivedPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .ragcore.yaml or .ragcore.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".ragcore.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".ragcore.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
// Unknown keys are rejected so typos surface at load time.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.VocabDir != "" {
		c.Paths.VocabDir = other.Paths.VocabDir
	}
	if other.Paths.CatalogPath != "" {
		c.Paths.CatalogPath = other.Paths.CatalogPath
	}
	if other.Paths.SuggestionsPath != "" {
		c.Paths.SuggestionsPath = other.Paths.SuggestionsPath
	}
	if other.Paths.LedgerPath != "" {
		c.Paths.LedgerPath = other.Paths.LedgerPath
	}

	// Providers: declaring any definition replaces the default chain.
	if len(other.Providers.Definitions) > 0 {
		c.Providers.Definitions = other.Providers.Definitions
	}
	if len(other.Providers.Order) > 0 {
		c.Providers.Order = other.Providers.Order
	}

	// Budget
	if other.Budget.DailyBudgetUSD != 0 {
		c.Budget.DailyBudgetUSD = other.Budget.DailyBudgetUSD
	}
	if other.Budget.SafetyMarginUSD != 0 {
		c.Budget.SafetyMarginUSD = other.Budget.SafetyMarginUSD
	}
	if len(other.Budget.Pricing) > 0 {
		if c.Budget.Pricing == nil {
			c.Budget.Pricing = make(map[string]ModelPrice, len(other.Budget.Pricing))
		}
		for model, price := range other.Budget.Pricing {
			c.Budget.Pricing[model] = price
		}
	}

	// Search. Zero is not a practical weight, so non-zero merge is safe;
	// explicit zeros are possible via env overrides.
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.DenseWeight != 0 {
		c.Search.DenseWeight = other.Search.DenseWeight
	}
	if other.Search.MMRLambda != 0 {
		c.Search.MMRLambda = other.Search.MMRLambda
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}
	if other.Search.CacheTTLSeconds != 0 {
		c.Search.CacheTTLSeconds = other.Search.CacheTTLSeconds
	}
	if other.Search.BM25Backend != "" {
		c.Search.BM25Backend = other.Search.BM25Backend
	}

	// Chunker
	if other.Chunker.TargetTokens != 0 {
		c.Chunker.TargetTokens = other.Chunker.TargetTokens
	}
	if other.Chunker.MaxTokens != 0 {
		c.Chunker.MaxTokens = other.Chunker.MaxTokens
	}

	// Enrichment
	if other.Enrichment.PromptWindowChars != 0 {
		c.Enrichment.PromptWindowChars = other.Enrichment.PromptWindowChars
	}
	if other.Enrichment.Model != "" {
		c.Enrichment.Model = other.Enrichment.Model
	}

	// Quality: threshold zero means "not set"; enabled merges only when the
	// section is present at all (threshold or an explicit disable marker).
	if other.Quality.Threshold != 0 {
		c.Quality.Threshold = other.Quality.Threshold
		c.Quality.Enabled = other.Quality.Enabled
	}

	// RAG
	if other.RAG.ConfidenceThreshold != 0 {
		c.RAG.ConfidenceThreshold = other.RAG.ConfidenceThreshold
	}
	if other.RAG.TopK != 0 {
		c.RAG.TopK = other.RAG.TopK
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// Reranker
	if other.Reranker.Endpoint != "" {
		c.Reranker.Endpoint = other.Reranker.Endpoint
	}
	if other.Reranker.TimeoutSeconds != 0 {
		c.Reranker.TimeoutSeconds = other.Reranker.TimeoutSeconds
	}

	// Pipeline
	if other.Pipeline.MaxInFlight != 0 {
		c.Pipeline.MaxInFlight = other.Pipeline.MaxInFlight
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies RAGCORE_* environment variable overrides.
// Env vars have the highest precedence and support explicit zero values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGCORE_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("RAGCORE_DAILY_BUDGET_USD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			c.Budget.DailyBudgetUSD = f
		}
	}
	if v := os.Getenv("RAGCORE_BM25_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			c.Search.BM25Weight = f
		}
	}
	if v := os.Getenv("RAGCORE_DENSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			c.Search.DenseWeight = f
		}
	}
	if v := os.Getenv("RAGCORE_MMR_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Search.MMRLambda = f
		}
	}
	if v := os.Getenv("RAGCORE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.CacheSize = n
		}
	}
	if v := os.Getenv("RAGCORE_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("RAGCORE_BM25_BACKEND"); v != "" {
		c.Search.BM25Backend = v
	}
	if v := os.Getenv("RAGCORE_QUALITY_GATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Quality.Threshold = f
		}
	}
	if v := os.Getenv("RAGCORE_QUALITY_GATE_ENABLED"); v != "" {
		c.Quality.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("RAGCORE_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.RAG.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("RAGCORE_CHUNKER_TARGET_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunker.TargetTokens = n
		}
	}
	if v := os.Getenv("RAGCORE_CHUNKER_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunker.MaxTokens = n
		}
	}
	if v := os.Getenv("RAGCORE_ENRICHMENT_PROMPT_WINDOW_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Enrichment.PromptWindowChars = n
		}
	}
	if v := os.Getenv("RAGCORE_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RAGCORE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("RAGCORE_RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("RAGCORE_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.MaxInFlight = n
		}
	}
	if v := os.Getenv("RAGCORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// applyDerivedPaths fills empty path fields from DataDir.
func (c *Config) applyDerivedPaths() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = DefaultDataDir()
	}
	if c.Paths.VocabDir == "" {
		c.Paths.VocabDir = filepath.Join(c.Paths.DataDir, "vocab")
	}
	if c.Paths.CatalogPath == "" {
		c.Paths.CatalogPath = filepath.Join(c.Paths.DataDir, "catalog.db")
	}
	if c.Paths.SuggestionsPath == "" {
		c.Paths.SuggestionsPath = filepath.Join(c.Paths.DataDir, "suggestions.jsonl")
	}
	if c.Paths.LedgerPath == "" {
		c.Paths.LedgerPath = filepath.Join(c.Paths.DataDir, "costs.json")
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 {
		return fmt.Errorf("bm25_weight must be non-negative, got %f", c.Search.BM25Weight)
	}
	if c.Search.DenseWeight < 0 {
		return fmt.Errorf("dense_weight must be non-negative, got %f", c.Search.DenseWeight)
	}
	if c.Search.BM25Weight == 0 && c.Search.DenseWeight == 0 {
		return fmt.Errorf("bm25_weight and dense_weight must not both be zero")
	}
	if c.Search.MMRLambda < 0 || c.Search.MMRLambda > 1 {
		return fmt.Errorf("mmr_lambda must be between 0 and 1, got %f", c.Search.MMRLambda)
	}
	if c.Search.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", c.Search.CacheSize)
	}
	if c.Search.CacheTTLSeconds < 1 {
		return fmt.Errorf("cache_ttl_seconds must be at least 1, got %d", c.Search.CacheTTLSeconds)
	}
	switch strings.ToLower(c.Search.BM25Backend) {
	case "memory", "bleve":
	default:
		return fmt.Errorf("bm25_backend must be 'memory' or 'bleve', got %s", c.Search.BM25Backend)
	}

	if c.Budget.DailyBudgetUSD < 0 {
		return fmt.Errorf("daily_budget_usd must be non-negative, got %f", c.Budget.DailyBudgetUSD)
	}
	if c.Budget.SafetyMarginUSD < 0 {
		return fmt.Errorf("safety_margin_usd must be non-negative, got %f", c.Budget.SafetyMarginUSD)
	}

	if c.Chunker.TargetTokens < 1 {
		return fmt.Errorf("chunker target_tokens must be positive, got %d", c.Chunker.TargetTokens)
	}
	if c.Chunker.MaxTokens < c.Chunker.TargetTokens {
		return fmt.Errorf("chunker max_tokens (%d) must be >= target_tokens (%d)",
			c.Chunker.MaxTokens, c.Chunker.TargetTokens)
	}

	if c.Enrichment.PromptWindowChars < 1000 {
		return fmt.Errorf("enrichment prompt_window_chars must be at least 1000, got %d",
			c.Enrichment.PromptWindowChars)
	}

	if c.Quality.Threshold < 0 || c.Quality.Threshold > 1 {
		return fmt.Errorf("quality threshold must be between 0 and 1, got %f", c.Quality.Threshold)
	}
	if c.RAG.ConfidenceThreshold < 0 || c.RAG.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", c.RAG.ConfidenceThreshold)
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag top_k must be positive, got %d", c.RAG.TopK)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"ollama": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %s",
				c.Embeddings.Provider)
		}
	}

	if len(c.Providers.Definitions) == 0 {
		return fmt.Errorf("providers.definitions must declare at least one provider")
	}
	ids := make(map[string]bool, len(c.Providers.Definitions))
	for _, p := range c.Providers.Definitions {
		if p.ID == "" {
			return fmt.Errorf("provider definition missing id")
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		ids[p.ID] = true
		switch strings.ToLower(p.Kind) {
		case "openai", "ollama", "static":
		default:
			return fmt.Errorf("provider %q kind must be 'openai', 'ollama', or 'static', got %s", p.ID, p.Kind)
		}
	}
	for _, id := range c.Providers.Order {
		if !ids[id] {
			return fmt.Errorf("providers.order references undefined provider %q", id)
		}
	}

	if c.Pipeline.MaxInFlight < 1 {
		return fmt.Errorf("pipeline max_in_flight must be positive, got %d", c.Pipeline.MaxInFlight)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// OrderedProviders returns the provider definitions in call order:
// providers.order when set, declaration order otherwise.
func (c *Config) OrderedProviders() []ProviderConfig {
	if len(c.Providers.Order) == 0 {
		out := make([]ProviderConfig, len(c.Providers.Definitions))
		copy(out, c.Providers.Definitions)
		return out
	}

	byID := make(map[string]ProviderConfig, len(c.Providers.Definitions))
	for _, p := range c.Providers.Definitions {
		byID[p.ID] = p
	}
	out := make([]ProviderConfig, 0, len(c.Providers.Order))
	for _, id := range c.Providers.Order {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
