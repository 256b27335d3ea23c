package buildkb

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the buildkb pipeline.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.buildkb/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is not
	// explicitly set. "home" (default) uses ~/.buildkb/, "local" uses the
	// current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// RulesPath points to the chapter mapping rule table (JSON or YAML).
	// Empty means the compiled-in default table.
	RulesPath string `json:"rules_path" yaml:"rules_path"`

	// LLM providers for the model extraction path and for embeddings.
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Extraction
	ExtractWorkers int `json:"extract_workers" yaml:"extract_workers"` // max parallel extraction calls (default 8)
	ExtractRetries int `json:"extract_retries" yaml:"extract_retries"` // attempts per passage (default 3)

	// Retrieval
	VectorTopK      int     `json:"vector_top_k" yaml:"vector_top_k"`           // similarity hits per query (default 3)
	VectorThreshold float64 `json:"vector_threshold" yaml:"vector_threshold"`   // minimum similarity score (default 0.6)
	PathTimeoutSecs int     `json:"path_timeout_secs" yaml:"path_timeout_secs"` // per-path retrieval timeout (default 10)

	// EmbeddingDim must match the embedding model's output dimension.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, deepseek, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
func DefaultConfig() Config {
	return Config{
		DBName:     "buildkb",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "qwen2.5:7b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		ExtractWorkers:  8,
		ExtractRetries:  3,
		VectorTopK:      3,
		VectorThreshold: 0.6,
		PathTimeoutSecs: 10,
		EmbeddingDim:    768,
	}
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}
	if c.ExtractWorkers < 0 || c.ExtractRetries < 0 {
		return fmt.Errorf("%w: extraction limits must be non-negative", ErrInvalidConfig)
	}
	if c.VectorThreshold < 0 || c.VectorThreshold > 1 {
		return fmt.Errorf("%w: vector_threshold must be in [0,1]", ErrInvalidConfig)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "buildkb"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".buildkb", name+".db")
	}
}
