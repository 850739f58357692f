// Package config provides configuration management for Engram.
// Settings are resolved in three layers: built-in defaults, an optional
// YAML file, then environment variables with the ENGRAM_ prefix. Later
// layers override earlier ones.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Engram memory engine.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Search     SearchConfig     `yaml:"search"`
	Importance ImportanceConfig `yaml:"importance"`
	Context    ContextConfig    `yaml:"context"`
	Summarize  SummarizeConfig  `yaml:"summarize"`
	Chains     ChainsConfig     `yaml:"chains"`
	Index      IndexConfig      `yaml:"index"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	SQLitePath  string `yaml:"sqlite_path"`  // SQLite database path (default: ./data/engram.db)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider             string  `yaml:"provider"`               // ollama or openai (default: ollama)
	OllamaURL            string  `yaml:"ollama_url"`             // default: http://localhost:11434
	OllamaModel          string  `yaml:"ollama_model"`           // default: qwen2.5:7b
	OllamaEmbeddingModel string  `yaml:"ollama_embedding_model"` // default: nomic-embed-text
	OpenAIAPIKey         string  `yaml:"openai_api_key"`
	OpenAIModel          string  `yaml:"openai_model"`           // default: gpt-4o-mini
	OpenAIEmbeddingModel string  `yaml:"openai_embedding_model"` // default: text-embedding-3-small
	ReqPerSec            float64 `yaml:"req_per_sec"`            // outbound rate limit, 0 disables
}

// SearchConfig contains hybrid search tuning parameters.
type SearchConfig struct {
	VectorWeight      float64 `yaml:"vector_weight"`       // default: 0.7
	KeywordWeight     float64 `yaml:"keyword_weight"`      // default: 0.3
	MinScore          float64 `yaml:"min_score"`           // default: 0.6
	MaxResults        int     `yaml:"max_results"`         // default: 50
	TemporalDecayRate float64 `yaml:"temporal_decay_rate"` // per-day exponent (default: 0.01)
	CacheSize         int     `yaml:"cache_size"`          // query embedding cache entries (default: 256)
}

// ImportanceConfig contains importance scoring weights. The five weights must
// not sum to more than 1.0; Validate rejects the configuration otherwise.
type ImportanceConfig struct {
	RecencyWeight    float64 `yaml:"recency_weight"`     // default: 0.3
	UsageWeight      float64 `yaml:"usage_weight"`       // default: 0.2
	FeedbackWeight   float64 `yaml:"feedback_weight"`    // default: 0.2
	DensityWeight    float64 `yaml:"density_weight"`     // default: 0.15
	TypeWeight       float64 `yaml:"type_weight"`        // default: 0.15
	RecencyDecayRate float64 `yaml:"recency_decay_rate"` // per-day exponent past 30 days (default: 0.01)
	RecencyGraceDays float64 `yaml:"recency_grace_days"` // full-score window (default: 30)
}

// ContextConfig contains context assembly settings.
type ContextConfig struct {
	DefaultTokenBudget int    `yaml:"default_token_budget"` // default: 4000
	ContextTTL         string `yaml:"context_ttl"`          // persisted context lifetime (default: 24h)
}

// SummarizeConfig contains clustering and summarization settings.
type SummarizeConfig struct {
	SimilarityThreshold   float64 `yaml:"similarity_threshold"`     // default: 0.8
	MinMemoriesForSummary int     `yaml:"min_memories_for_summary"` // default: 3
	MaxMemoriesPerSummary int     `yaml:"max_memories_per_summary"` // default: 10
	MaxSummaryLength      int     `yaml:"max_summary_length"`       // default: 500
}

// ChainsConfig contains chain reasoning settings.
type ChainsConfig struct {
	MaxChains     int     `yaml:"max_chains"`     // default: 3
	MinConfidence float64 `yaml:"min_confidence"` // default: 0.7
}

// IndexConfig selects the in-process similarity index implementation.
type IndexConfig struct {
	Backend string `yaml:"backend"` // brute, hnsw, chromem (default: brute)
}

// LoadConfig loads configuration from defaults, the YAML file named by
// ENGRAM_CONFIG_FILE (if set), and ENGRAM_-prefixed environment variables.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("ENGRAM_CONFIG_FILE"))
}

// LoadConfigFile loads configuration like LoadConfig but reads the YAML layer
// from the given path. An empty path skips the file layer.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants. Importance weights summing past
// 1.0 would let the composite score exceed the [0, 1] range, so that is a
// configuration error rather than something to silently renormalize.
func (c *Config) Validate() error {
	sum := c.Importance.RecencyWeight + c.Importance.UsageWeight + c.Importance.FeedbackWeight +
		c.Importance.DensityWeight + c.Importance.TypeWeight
	if sum > 1.0 {
		return fmt.Errorf("config: importance weights sum to %.3f, must not exceed 1.0", sum)
	}
	if c.Storage.Engine != "sqlite" && c.Storage.Engine != "postgres" {
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("config: search min_score %.3f out of range [0, 1]", c.Search.MinScore)
	}
	if c.Summarize.MinMemoriesForSummary > c.Summarize.MaxMemoriesPerSummary {
		return fmt.Errorf("config: min_memories_for_summary %d exceeds max_memories_per_summary %d",
			c.Summarize.MinMemoriesForSummary, c.Summarize.MaxMemoriesPerSummary)
	}
	return nil
}

// defaultConfig constructs a Config populated with built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:     "sqlite",
			SQLitePath: "./data/engram.db",
		},
		LLM: LLMConfig{
			Provider:             "ollama",
			OllamaURL:            "http://localhost:11434",
			OllamaModel:          "qwen2.5:7b",
			OllamaEmbeddingModel: "nomic-embed-text",
			OpenAIModel:          "gpt-4o-mini",
			OpenAIEmbeddingModel: "text-embedding-3-small",
		},
		Search: SearchConfig{
			VectorWeight:      0.7,
			KeywordWeight:     0.3,
			MinScore:          0.6,
			MaxResults:        50,
			TemporalDecayRate: 0.01,
			CacheSize:         256,
		},
		Importance: ImportanceConfig{
			RecencyWeight:    0.3,
			UsageWeight:      0.2,
			FeedbackWeight:   0.2,
			DensityWeight:    0.15,
			TypeWeight:       0.15,
			RecencyDecayRate: 0.01,
			RecencyGraceDays: 30,
		},
		Context: ContextConfig{
			DefaultTokenBudget: 4000,
			ContextTTL:         "24h",
		},
		Summarize: SummarizeConfig{
			SimilarityThreshold:   0.8,
			MinMemoriesForSummary: 3,
			MaxMemoriesPerSummary: 10,
			MaxSummaryLength:      500,
		},
		Chains: ChainsConfig{
			MaxChains:     3,
			MinConfidence: 0.7,
		},
		Index: IndexConfig{
			Backend: "brute",
		},
	}
}

// applyEnv overlays ENGRAM_-prefixed environment variables onto cfg.
// Each getter keeps the current value when the variable is unset.
func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("ENGRAM_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.SQLitePath = getEnv("ENGRAM_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.PostgresDSN = getEnv("ENGRAM_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.LLM.Provider = getEnv("ENGRAM_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("ENGRAM_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("ENGRAM_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.OllamaEmbeddingModel = getEnv("ENGRAM_OLLAMA_EMBEDDING_MODEL", cfg.LLM.OllamaEmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("ENGRAM_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIModel = getEnv("ENGRAM_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.OpenAIEmbeddingModel = getEnv("ENGRAM_OPENAI_EMBEDDING_MODEL", cfg.LLM.OpenAIEmbeddingModel)
	cfg.LLM.ReqPerSec = getEnvFloat("ENGRAM_LLM_REQ_PER_SEC", cfg.LLM.ReqPerSec)

	cfg.Search.VectorWeight = getEnvFloat("ENGRAM_SEARCH_VECTOR_WEIGHT", cfg.Search.VectorWeight)
	cfg.Search.KeywordWeight = getEnvFloat("ENGRAM_SEARCH_KEYWORD_WEIGHT", cfg.Search.KeywordWeight)
	cfg.Search.MinScore = getEnvFloat("ENGRAM_SEARCH_MIN_SCORE", cfg.Search.MinScore)
	cfg.Search.MaxResults = getEnvInt("ENGRAM_SEARCH_MAX_RESULTS", cfg.Search.MaxResults)
	cfg.Search.TemporalDecayRate = getEnvFloat("ENGRAM_SEARCH_TEMPORAL_DECAY_RATE", cfg.Search.TemporalDecayRate)
	cfg.Search.CacheSize = getEnvInt("ENGRAM_SEARCH_CACHE_SIZE", cfg.Search.CacheSize)

	cfg.Importance.RecencyWeight = getEnvFloat("ENGRAM_IMPORTANCE_RECENCY_WEIGHT", cfg.Importance.RecencyWeight)
	cfg.Importance.UsageWeight = getEnvFloat("ENGRAM_IMPORTANCE_USAGE_WEIGHT", cfg.Importance.UsageWeight)
	cfg.Importance.FeedbackWeight = getEnvFloat("ENGRAM_IMPORTANCE_FEEDBACK_WEIGHT", cfg.Importance.FeedbackWeight)
	cfg.Importance.DensityWeight = getEnvFloat("ENGRAM_IMPORTANCE_DENSITY_WEIGHT", cfg.Importance.DensityWeight)
	cfg.Importance.TypeWeight = getEnvFloat("ENGRAM_IMPORTANCE_TYPE_WEIGHT", cfg.Importance.TypeWeight)
	cfg.Importance.RecencyDecayRate = getEnvFloat("ENGRAM_IMPORTANCE_RECENCY_DECAY_RATE", cfg.Importance.RecencyDecayRate)
	cfg.Importance.RecencyGraceDays = getEnvFloat("ENGRAM_IMPORTANCE_RECENCY_GRACE_DAYS", cfg.Importance.RecencyGraceDays)

	cfg.Context.DefaultTokenBudget = getEnvInt("ENGRAM_CONTEXT_TOKEN_BUDGET", cfg.Context.DefaultTokenBudget)
	cfg.Context.ContextTTL = getEnv("ENGRAM_CONTEXT_TTL", cfg.Context.ContextTTL)

	cfg.Summarize.SimilarityThreshold = getEnvFloat("ENGRAM_SUMMARIZE_SIMILARITY_THRESHOLD", cfg.Summarize.SimilarityThreshold)
	cfg.Summarize.MinMemoriesForSummary = getEnvInt("ENGRAM_SUMMARIZE_MIN_MEMORIES", cfg.Summarize.MinMemoriesForSummary)
	cfg.Summarize.MaxMemoriesPerSummary = getEnvInt("ENGRAM_SUMMARIZE_MAX_MEMORIES", cfg.Summarize.MaxMemoriesPerSummary)
	cfg.Summarize.MaxSummaryLength = getEnvInt("ENGRAM_SUMMARIZE_MAX_LENGTH", cfg.Summarize.MaxSummaryLength)

	cfg.Chains.MaxChains = getEnvInt("ENGRAM_CHAINS_MAX", cfg.Chains.MaxChains)
	cfg.Chains.MinConfidence = getEnvFloat("ENGRAM_CHAINS_MIN_CONFIDENCE", cfg.Chains.MinConfidence)

	cfg.Index.Backend = getEnv("ENGRAM_INDEX_BACKEND", cfg.Index.Backend)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as a float,
// it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
