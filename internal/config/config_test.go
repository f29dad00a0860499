package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8086" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if cfg.Analysis.MaxConcurrentSessions != 8 {
		t.Fatalf("unexpected session limit %d", cfg.Analysis.MaxConcurrentSessions)
	}
	if cfg.Analysis.SessionRetention != 30*time.Minute {
		t.Fatalf("unexpected retention %v", cfg.Analysis.SessionRetention)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("unexpected llm timeout %v", cfg.LLM.Timeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  address: ":9999"
analysis:
  maxConcurrentSessions: 2
  healthyThreshold: 55
llm:
  endpoint: http://localhost:11434/v1
  timeout: 10s
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Fatalf("file override not applied, got %q", cfg.Server.Address)
	}
	if cfg.Analysis.MaxConcurrentSessions != 2 {
		t.Fatalf("unexpected session limit %d", cfg.Analysis.MaxConcurrentSessions)
	}
	if cfg.Analysis.HealthyThreshold != 55 {
		t.Fatalf("unexpected threshold %f", cfg.Analysis.HealthyThreshold)
	}
	if cfg.LLM.Endpoint != "http://localhost:11434/v1" {
		t.Fatalf("unexpected llm endpoint %q", cfg.LLM.Endpoint)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTRA_DIAG_SERVER_ADDRESS", ":7070")
	t.Setenv("SENTRA_DIAG_MAX_CONCURRENT_SESSIONS", "3")
	t.Setenv("SENTRA_DIAG_LLM_TIMEOUT_SECONDS", "15")
	t.Setenv("SENTRA_DIAG_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("env override not applied, got %q", cfg.Server.Address)
	}
	if cfg.Analysis.MaxConcurrentSessions != 3 {
		t.Fatalf("unexpected session limit %d", cfg.Analysis.MaxConcurrentSessions)
	}
	if cfg.LLM.Timeout != 15*time.Second {
		t.Fatalf("unexpected llm timeout %v", cfg.LLM.Timeout)
	}
	if !cfg.Logging.JSON {
		t.Fatalf("expected json logging")
	}
}

func TestNormaliseClampsLLMTimeout(t *testing.T) {
	t.Setenv("SENTRA_DIAG_LLM_TIMEOUT_SECONDS", "900")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Timeout != maxLLMTimeout {
		t.Fatalf("expected timeout clamped to %v, got %v", maxLLMTimeout, cfg.LLM.Timeout)
	}
}

func TestNormaliseRejectsBadContamination(t *testing.T) {
	t.Setenv("SENTRA_DIAG_ANOMALY_CONTAMINATION", "1.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Analysis.AnomalyContamination != 0.05 {
		t.Fatalf("expected contamination reset to 0.05, got %f", cfg.Analysis.AnomalyContamination)
	}
}
