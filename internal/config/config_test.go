package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8742 {
		t.Fatalf("unexpected default port %d", cfg.Port)
	}
	if cfg.EmbeddingDim != 384 {
		t.Fatalf("unexpected default dimension %d", cfg.EmbeddingDim)
	}
	if cfg.SameTypeThreshold != 0.85 || cfg.CrossTypeThreshold != 0.75 || cfg.BridgeThreshold != 0.55 {
		t.Fatalf("unexpected default thresholds: %+v", cfg)
	}
	if cfg.TrajectoryToleranceSecs != 60 {
		t.Fatalf("unexpected default tolerance %d", cfg.TrajectoryToleranceSecs)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SAME_TYPE_THRESHOLD", "0.9")
	t.Setenv("EMBEDDING_PROVIDER", "hash")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("env override ignored, got %d", cfg.Port)
	}
	if cfg.SameTypeThreshold != 0.9 {
		t.Fatalf("env override ignored, got %v", cfg.SameTypeThreshold)
	}
	if cfg.EmbeddingProvider != "hash" {
		t.Fatalf("env override ignored, got %q", cfg.EmbeddingProvider)
	}
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: 9100\nsame_type_threshold: 0.7\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NEUROGRAPH_CONFIG", path)
	t.Setenv("PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SameTypeThreshold != 0.7 {
		t.Fatalf("yaml value ignored, got %v", cfg.SameTypeThreshold)
	}
	if cfg.Port != 9200 {
		t.Fatalf("env must override yaml, got %d", cfg.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Run("rejects out-of-range port", func(t *testing.T) {
		t.Setenv("PORT", "70000")
		if _, err := Load(); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("rejects unknown embedding provider", func(t *testing.T) {
		t.Setenv("EMBEDDING_PROVIDER", "openai")
		if _, err := Load(); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("rejects threshold outside cosine range", func(t *testing.T) {
		t.Setenv("BRIDGE_THRESHOLD", "1.5")
		if _, err := Load(); err == nil {
			t.Fatal("expected validation error")
		}
	})
}
