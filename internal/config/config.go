package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the diagnosis service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Rules     RulesConfig     `yaml:"rules"`
	Models    ModelsConfig    `yaml:"models"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AnalysisConfig tunes the pipeline and session coordinator.
type AnalysisConfig struct {
	MaxConcurrentSessions int           `yaml:"maxConcurrentSessions"`
	SessionRetention      time.Duration `yaml:"sessionRetention"`
	ReaperInterval        time.Duration `yaml:"reaperInterval"`
	AnomalyContamination  float64       `yaml:"anomalyContamination"`
	MinAnomalySamples     int           `yaml:"minAnomalySamples"`
	MaxKnowledgeQueries   int           `yaml:"maxKnowledgeQueries"`
	HealthyThreshold      float64       `yaml:"healthyThreshold"`
	WorkDir               string        `yaml:"workDir"`
}

// RulesConfig controls rule-pack loading for the pattern matcher.
type RulesConfig struct {
	Dir string `yaml:"dir"`
}

// ModelsConfig points at the statistical model weight file.
type ModelsConfig struct {
	Path string `yaml:"path"`
}

// KnowledgeConfig configures the read-only knowledge index.
type KnowledgeConfig struct {
	IndexPath      string  `yaml:"indexPath"`
	RelevanceFloor float64 `yaml:"relevanceFloor"`
}

// LLMConfig configures the external narrative service.
type LLMConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig controls in-process caching of knowledge lookups.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// maxLLMTimeout bounds operator-supplied values; very large inputs may
// legitimately need a couple of minutes, anything beyond that is a
// misconfiguration.
const maxLLMTimeout = 120 * time.Second

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTRA_DIAG_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalise(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8086",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			MaxUploadBytes:  64 << 20,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Analysis: AnalysisConfig{
			MaxConcurrentSessions: 8,
			SessionRetention:      30 * time.Minute,
			ReaperInterval:        time.Minute,
			AnomalyContamination:  0.05,
			MinAnomalySamples:     4,
			MaxKnowledgeQueries:   8,
			HealthyThreshold:      70,
			WorkDir:               os.TempDir(),
		},
		Rules:     RulesConfig{Dir: "configs/rules"},
		Models:    ModelsConfig{Path: "configs/models/severity.yaml"},
		Knowledge: KnowledgeConfig{RelevanceFloor: 0.15},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{Enabled: true, TTL: 10 * time.Minute},
	}
}

func normalise(cfg *Config) {
	if cfg.Analysis.MaxConcurrentSessions <= 0 {
		cfg.Analysis.MaxConcurrentSessions = 1
	}
	if cfg.Analysis.AnomalyContamination <= 0 || cfg.Analysis.AnomalyContamination >= 1 {
		cfg.Analysis.AnomalyContamination = 0.05
	}
	if cfg.Analysis.MaxKnowledgeQueries <= 0 {
		cfg.Analysis.MaxKnowledgeQueries = 8
	}
	if cfg.Analysis.HealthyThreshold <= 0 || cfg.Analysis.HealthyThreshold > 100 {
		cfg.Analysis.HealthyThreshold = 70
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.Timeout > maxLLMTimeout {
		cfg.LLM.Timeout = maxLLMTimeout
	}
	if cfg.Knowledge.RelevanceFloor <= 0 {
		cfg.Knowledge.RelevanceFloor = 0.15
	}
	if cfg.Analysis.WorkDir == "" {
		cfg.Analysis.WorkDir = os.TempDir()
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTRA_DIAG_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTRA_DIAG_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTRA_DIAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTRA_DIAG_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTRA_DIAG_RULES_DIR"); v != "" {
		cfg.Rules.Dir = v
	}
	if v := os.Getenv("SENTRA_DIAG_MODELS_PATH"); v != "" {
		cfg.Models.Path = v
	}
	if v := os.Getenv("SENTRA_DIAG_KNOWLEDGE_INDEX"); v != "" {
		cfg.Knowledge.IndexPath = v
	}
	if v := os.Getenv("SENTRA_DIAG_WORK_DIR"); v != "" {
		cfg.Analysis.WorkDir = v
	}
	if v := os.Getenv("SENTRA_DIAG_LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("SENTRA_DIAG_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SENTRA_DIAG_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SENTRA_DIAG_LLM_TIMEOUT_SECONDS"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.LLM.Timeout = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("SENTRA_DIAG_MAX_CONCURRENT_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxConcurrentSessions = n
		}
	}
	if v := os.Getenv("SENTRA_DIAG_SESSION_RETENTION_SECONDS"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Analysis.SessionRetention = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("SENTRA_DIAG_ANOMALY_CONTAMINATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.AnomalyContamination = f
		}
	}
	if v := os.Getenv("SENTRA_DIAG_MAX_KNOWLEDGE_QUERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxKnowledgeQueries = n
		}
	}
	if v := os.Getenv("SENTRA_DIAG_HEALTHY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.HealthyThreshold = f
		}
	}
	if v := os.Getenv("SENTRA_DIAG_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTRA_DIAG_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
}
