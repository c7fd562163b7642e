// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     int    `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	// AuthToken, when set, requires Bearer auth on every mutating route.
	AuthToken      string `yaml:"auth_token"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// Embedding
	EmbeddingProvider string `yaml:"embedding_provider"` // "ollama" or "hash"
	OllamaBaseURL     string `yaml:"ollama_base_url"`
	EmbeddingModel    string `yaml:"embedding_model"`
	EmbeddingDim      int    `yaml:"embedding_dim"`

	// Compressor; empty URL means the direct compaction path.
	CompressorURL string `yaml:"compressor_url"`

	// Similarity thresholds
	SameTypeThreshold  float64 `yaml:"same_type_threshold"`
	CrossTypeThreshold float64 `yaml:"cross_type_threshold"`
	BridgeThreshold    float64 `yaml:"bridge_threshold"`
	MaxEdgesPerNode    int     `yaml:"max_edges_per_node"`

	// Sweep windows
	TemporalWindow          int `yaml:"temporal_window"`
	SemanticWindow          int `yaml:"semantic_window"`
	PatternWindow           int `yaml:"pattern_window"`
	TrajectoryWindow        int `yaml:"trajectory_window"`
	CatalogueWindow         int `yaml:"catalogue_window"`
	CompressWindow          int `yaml:"compress_window"`
	TrajectoryToleranceSecs int `yaml:"trajectory_tolerance_secs"`
	CoEditLinks             int `yaml:"coedit_links"`
	PatternLinks            int `yaml:"pattern_links"`
}

// Load builds the configuration: compiled defaults, overridden by the
// YAML file named in NEUROGRAPH_CONFIG (if any), overridden by
// environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              8742,
		DBPath:            "/data/neurograph.db",
		LogLevel:          "info",
		MetricsEnabled:    true,
		EmbeddingProvider: "ollama",
		OllamaBaseURL:     "http://localhost:11434",
		EmbeddingModel:    "nomic-embed-text",
		EmbeddingDim:      384,

		SameTypeThreshold:  0.85,
		CrossTypeThreshold: 0.75,
		BridgeThreshold:    0.55,
		MaxEdgesPerNode:    5,

		TemporalWindow:          20,
		SemanticWindow:          100,
		PatternWindow:           100,
		TrajectoryWindow:        50,
		CatalogueWindow:         300,
		CompressWindow:          300,
		TrajectoryToleranceSecs: 60,
		CoEditLinks:             5,
		PatternLinks:            5,
	}

	if path := os.Getenv("NEUROGRAPH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.DBPath = envStr("NEUROGRAPH_DB_PATH", cfg.DBPath)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.AuthToken = envStr("NEUROGRAPH_AUTH_TOKEN", cfg.AuthToken)
	cfg.MetricsEnabled = envBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.EmbeddingProvider = envStr("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.OllamaBaseURL = envStr("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	cfg.EmbeddingModel = envStr("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDim = envInt("EMBEDDING_DIM", cfg.EmbeddingDim)
	cfg.CompressorURL = envStr("COMPRESSOR_URL", cfg.CompressorURL)
	cfg.SameTypeThreshold = envFloat("SAME_TYPE_THRESHOLD", cfg.SameTypeThreshold)
	cfg.CrossTypeThreshold = envFloat("CROSS_TYPE_THRESHOLD", cfg.CrossTypeThreshold)
	cfg.BridgeThreshold = envFloat("BRIDGE_THRESHOLD", cfg.BridgeThreshold)
	cfg.MaxEdgesPerNode = envInt("MAX_EDGES_PER_NODE", cfg.MaxEdgesPerNode)
	cfg.TemporalWindow = envInt("TEMPORAL_WINDOW", cfg.TemporalWindow)
	cfg.SemanticWindow = envInt("SEMANTIC_WINDOW", cfg.SemanticWindow)
	cfg.PatternWindow = envInt("PATTERN_WINDOW", cfg.PatternWindow)
	cfg.TrajectoryWindow = envInt("TRAJECTORY_WINDOW", cfg.TrajectoryWindow)
	cfg.CatalogueWindow = envInt("CATALOGUE_WINDOW", cfg.CatalogueWindow)
	cfg.CompressWindow = envInt("COMPRESS_WINDOW", cfg.CompressWindow)
	cfg.TrajectoryToleranceSecs = envInt("TRAJECTORY_TOLERANCE_SECS", cfg.TrajectoryToleranceSecs)
	cfg.CoEditLinks = envInt("COEDIT_LINKS", cfg.CoEditLinks)
	cfg.PatternLinks = envInt("PATTERN_LINKS", cfg.PatternLinks)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("NEUROGRAPH_DB_PATH must not be empty")
	}
	if c.EmbeddingProvider != "ollama" && c.EmbeddingProvider != "hash" {
		return fmt.Errorf("EMBEDDING_PROVIDER must be \"ollama\" or \"hash\", got %q", c.EmbeddingProvider)
	}
	if c.EmbeddingProvider == "ollama" && c.OllamaBaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	for name, t := range map[string]float64{
		"SAME_TYPE_THRESHOLD":  c.SameTypeThreshold,
		"CROSS_TYPE_THRESHOLD": c.CrossTypeThreshold,
		"BRIDGE_THRESHOLD":     c.BridgeThreshold,
	} {
		if t < -1 || t > 1 {
			return fmt.Errorf("%s must be in [-1, 1], got %f", name, t)
		}
	}
	if c.MaxEdgesPerNode < 1 {
		return fmt.Errorf("MAX_EDGES_PER_NODE must be positive, got %d", c.MaxEdgesPerNode)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
