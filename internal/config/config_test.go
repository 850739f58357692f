package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfigFile("")
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}

	if cfg.Storage.Engine != "sqlite" {
		t.Errorf("default storage engine = %q", cfg.Storage.Engine)
	}
	if cfg.Search.VectorWeight != 0.7 || cfg.Search.KeywordWeight != 0.3 {
		t.Errorf("default search weights = %f/%f", cfg.Search.VectorWeight, cfg.Search.KeywordWeight)
	}
	if cfg.Search.MinScore != 0.6 || cfg.Search.MaxResults != 50 {
		t.Errorf("default search bounds = %f/%d", cfg.Search.MinScore, cfg.Search.MaxResults)
	}
	if cfg.Summarize.SimilarityThreshold != 0.8 || cfg.Summarize.MinMemoriesForSummary != 3 {
		t.Errorf("default summarize settings = %+v", cfg.Summarize)
	}
	if cfg.Chains.MaxChains != 3 || cfg.Chains.MinConfidence != 0.7 {
		t.Errorf("default chains settings = %+v", cfg.Chains)
	}
	if cfg.Context.DefaultTokenBudget != 4000 {
		t.Errorf("default token budget = %d", cfg.Context.DefaultTokenBudget)
	}

	sum := cfg.Importance.RecencyWeight + cfg.Importance.UsageWeight + cfg.Importance.FeedbackWeight +
		cfg.Importance.DensityWeight + cfg.Importance.TypeWeight
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("default importance weights sum to %f", sum)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENGRAM_STORAGE_ENGINE", "postgres")
	t.Setenv("ENGRAM_SEARCH_MIN_SCORE", "0.4")
	t.Setenv("ENGRAM_SEARCH_MAX_RESULTS", "10")
	t.Setenv("ENGRAM_CHAINS_MAX", "not-a-number")

	cfg, err := LoadConfigFile("")
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Storage.Engine != "postgres" {
		t.Errorf("env override ignored: engine = %q", cfg.Storage.Engine)
	}
	if cfg.Search.MinScore != 0.4 || cfg.Search.MaxResults != 10 {
		t.Errorf("env override ignored: %f/%d", cfg.Search.MinScore, cfg.Search.MaxResults)
	}
	// Unparseable values fall back to the default rather than failing.
	if cfg.Chains.MaxChains != 3 {
		t.Errorf("bad env value should keep the default, got %d", cfg.Chains.MaxChains)
	}
}

func TestConfigFileLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	content := []byte(`
search:
  min_score: 0.5
summarize:
  max_summary_length: 300
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Search.MinScore != 0.5 {
		t.Errorf("file layer ignored: min_score = %f", cfg.Search.MinScore)
	}
	if cfg.Summarize.MaxSummaryLength != 300 {
		t.Errorf("file layer ignored: max_summary_length = %d", cfg.Summarize.MaxSummaryLength)
	}
	// Settings absent from the file keep their defaults.
	if cfg.Search.MaxResults != 50 {
		t.Errorf("file layer clobbered default: max_results = %d", cfg.Search.MaxResults)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	if err := os.WriteFile(path, []byte("search:\n  min_score: 0.5\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("ENGRAM_SEARCH_MIN_SCORE", "0.2")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Search.MinScore != 0.2 {
		t.Errorf("env should override file: min_score = %f", cfg.Search.MinScore)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config { return defaultConfig() }

	overweight := base()
	overweight.Importance.RecencyWeight = 0.9
	if err := overweight.Validate(); err == nil {
		t.Error("importance weights summing past 1.0 should be rejected")
	}

	badEngine := base()
	badEngine.Storage.Engine = "mongodb"
	if err := badEngine.Validate(); err == nil {
		t.Error("unknown storage engine should be rejected")
	}

	badScore := base()
	badScore.Search.MinScore = 1.5
	if err := badScore.Validate(); err == nil {
		t.Error("out-of-range min_score should be rejected")
	}

	badCluster := base()
	badCluster.Summarize.MinMemoriesForSummary = 20
	if err := badCluster.Validate(); err == nil {
		t.Error("min cluster size above max should be rejected")
	}

	if err := base().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
