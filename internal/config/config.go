// Package config loads memdex configuration from a YAML file merged with
// environment variables. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/localmem/memdex/internal/model"
)

// Config holds all engine configuration.
type Config struct {
	// DBPath is the SQLite database file holding the whole memory index.
	DBPath string `yaml:"db_path"`

	Embedder EmbedderConfig `yaml:"embedder"`
	Search   SearchConfig   `yaml:"search"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Retry    RetryConfig    `yaml:"retry"`
	Trigger  TriggerConfig  `yaml:"trigger"`
}

// EmbedderConfig selects and tunes the embedding provider.
type EmbedderConfig struct {
	// Provider: "ollama", "openai" or "" (embeddings disabled; FTS-only mode).
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Dims     int    `yaml:"dims"`
	// TimeoutSeconds bounds a single generation call. Exceeding it is a
	// transient failure handled by the retry state machine.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// MaxInputRunes is the deterministic truncation limit for input text.
	MaxInputRunes int `yaml:"max_input_runes"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	// RRFK is the reciprocal-rank-fusion constant.
	RRFK int `yaml:"rrf_k"`
	// FTSWeight and VectorWeight scale each engine's RRF contribution.
	// Both default to 1.0, which is classic unweighted RRF, and must be
	// positive: to suppress an engine, raise MinSimilarity or run without
	// an embedding provider rather than zeroing a weight.
	FTSWeight    float64 `yaml:"fts_weight"`
	VectorWeight float64 `yaml:"vector_weight"`
	// MinSimilarity is the default similarity floor (0-100) for vector hits.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// ScoringConfig tunes the post-fusion score adjustments.
type ScoringConfig struct {
	HalfLifeDays   float64            `yaml:"half_life_days"`
	MinDecayFactor float64            `yaml:"min_decay_factor"`
	BoostFactor    float64            `yaml:"boost_factor"`
	MaxBoost       float64            `yaml:"max_boost"`
	TierWeights    map[string]float64 `yaml:"tier_weights"`
}

// RetryConfig tunes the embedding retry state machine.
type RetryConfig struct {
	MaxAttempts    int   `yaml:"max_attempts"`
	BackoffMinutes []int `yaml:"backoff_minutes"`
}

// TriggerConfig tunes trigger phrase extraction and the matcher cache.
type TriggerConfig struct {
	MaxPhrases      int `yaml:"max_phrases"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DBPath: filepath.Join(home, ".memdex", "memdex.db"),
		Embedder: EmbedderConfig{
			Provider:       "ollama",
			Model:          "nomic-embed-text",
			Dims:           768,
			TimeoutSeconds: 30,
			MaxInputRunes:  8000,
		},
		Search: SearchConfig{
			RRFK:          60,
			FTSWeight:     1.0,
			VectorWeight:  1.0,
			MinSimilarity: 0,
		},
		Scoring: ScoringConfig{
			HalfLifeDays:   90,
			MinDecayFactor: 0.1,
			BoostFactor:    0.1,
			MaxBoost:       1.0,
			TierWeights:    model.DefaultTierWeights,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BackoffMinutes: []int{1, 5, 15},
		},
		Trigger: TriggerConfig{
			MaxPhrases:      10,
			CacheTTLSeconds: 60,
		},
	}
}

// Load reads configuration from path (empty means $MEMDEX_CONFIG or
// ~/.memdex/config.yaml), layering file values over defaults and environment
// variables over both. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MEMDEX_CONFIG")
	}
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".memdex", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMDEX_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MEMDEX_EMBED_PROVIDER"); v != "" {
		if v == "none" {
			cfg.Embedder.Provider = ""
		} else {
			cfg.Embedder.Provider = v
		}
	}
	if v := os.Getenv("MEMDEX_EMBED_MODEL"); v != "" {
		cfg.Embedder.Model = v
	}
	if v := os.Getenv("MEMDEX_EMBED_URL"); v != "" {
		cfg.Embedder.BaseURL = v
	}
	if v := os.Getenv("MEMDEX_EMBED_DIMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedder.Dims = n
		}
	}
	if v := os.Getenv("MEMDEX_EMBED_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedder.TimeoutSeconds = n
		}
	}
}

func (c *Config) validate() error {
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFK)
	}
	if c.Search.FTSWeight <= 0 {
		return fmt.Errorf("search.fts_weight must be positive, got %g", c.Search.FTSWeight)
	}
	if c.Search.VectorWeight <= 0 {
		return fmt.Errorf("search.vector_weight must be positive, got %g", c.Search.VectorWeight)
	}
	if c.Scoring.HalfLifeDays <= 0 {
		return fmt.Errorf("scoring.half_life_days must be positive, got %g", c.Scoring.HalfLifeDays)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if len(c.Retry.BackoffMinutes) == 0 {
		return fmt.Errorf("retry.backoff_minutes must not be empty")
	}
	for tier := range c.Scoring.TierWeights {
		if !model.ValidTiers[tier] {
			return fmt.Errorf("unknown importance tier %q in scoring.tier_weights", tier)
		}
	}
	return nil
}

// EmbedTimeout returns the embedding call timeout as a duration.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutSeconds) * time.Second
}

// RetryPolicy converts the retry section into the model's policy type.
func (c *Config) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		BackoffMinutes: c.Retry.BackoffMinutes,
	}
}
