package buildkb

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Chat.Provider != "ollama" || cfg.Embedding.Provider != "ollama" {
		t.Errorf("default providers = %q, %q", cfg.Chat.Provider, cfg.Embedding.Provider)
	}
	if cfg.VectorTopK != 3 || cfg.VectorThreshold != 0.6 {
		t.Errorf("retrieval defaults = %d, %v", cfg.VectorTopK, cfg.VectorThreshold)
	}
	if cfg.PathTimeoutSecs != 10 || cfg.EmbeddingDim != 768 {
		t.Errorf("timeout/dim defaults = %d, %d", cfg.PathTimeoutSecs, cfg.EmbeddingDim)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate() on defaults = %v", err)
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
db_name: sitekb
storage_dir: local
chat:
  provider: deepseek
  api_key: sk-test
vector_top_k: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DBName != "sitekb" || cfg.Chat.Provider != "deepseek" {
		t.Errorf("overlay lost: %+v", cfg)
	}
	if cfg.VectorTopK != 5 {
		t.Errorf("VectorTopK = %d, want 5", cfg.VectorTopK)
	}
	// Untouched fields keep their defaults.
	if cfg.Embedding.Provider != "ollama" || cfg.EmbeddingDim != 768 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("vector_threshold: 2.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestResolveDBPath(t *testing.T) {
	cfg := Config{DBPath: "/tmp/explicit.db"}
	if got := cfg.resolveDBPath(); got != "/tmp/explicit.db" {
		t.Errorf("explicit path = %q", got)
	}

	cfg = Config{DBName: "sitekb", StorageDir: "local"}
	if got := cfg.resolveDBPath(); got != "sitekb.db" {
		t.Errorf("local path = %q", got)
	}

	cfg = Config{DBName: "sitekb"}
	if got := cfg.resolveDBPath(); !strings.HasSuffix(got, filepath.Join(".buildkb", "sitekb.db")) {
		t.Errorf("home path = %q", got)
	}
}

func TestTruncateForEmbed(t *testing.T) {
	short := "短文本"
	if got := truncateForEmbed(short); got != short {
		t.Errorf("short text changed: %q", got)
	}

	long := strings.Repeat("安全管理要求。", 2000)
	got := truncateForEmbed(long)
	if n := len([]rune(got)); n != maxEmbedRunes {
		t.Errorf("truncated length = %d runes, want %d", n, maxEmbedRunes)
	}
}

func TestFileHashStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte("# 施工方案"), 0o644); err != nil {
		t.Fatal(err)
	}
	h1, err := fileHash(path)
	if err != nil {
		t.Fatalf("fileHash() error = %v", err)
	}
	h2, _ := fileHash(path)
	if h1 != h2 || len(h1) != 64 {
		t.Errorf("hashes = %q, %q", h1, h2)
	}
}
