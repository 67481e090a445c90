// Package config loads engine configuration from .cortex/config.json with
// struct defaults and CORTEX_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the root configuration object.
type Config struct {
	Workspace string `json:"workspace"`

	Cache      CacheConfig      `json:"cache"`
	Context    ContextConfig    `json:"context"`
	Indexer    IndexerConfig    `json:"indexer"`
	Watcher    WatcherConfig    `json:"watcher"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Quality    QualityConfig    `json:"quality"`
	Token      TokenConfig      `json:"token"`
	Logging    LoggingConfig    `json:"logging"`
	LLM        LLMConfig        `json:"llm"`
	Embedding  EmbeddingConfig  `json:"embedding_engine"`
}

// CacheConfig controls the embedding cache markers.
type CacheConfig struct {
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// ContextConfig controls the retrieval token budget (context.*).
type ContextConfig struct {
	MaxTokens      int `json:"max_tokens"`
	ReservedTokens int `json:"reserved_tokens"`
}

// IndexerConfig controls the summary worker pool (indexer.*).
type IndexerConfig struct {
	WorkerThreads  int `json:"worker_threads"`
	PerFileDelayMs int `json:"per_file_delay_ms"`
}

// WatcherConfig controls debounce and settle intervals (watcher.*).
type WatcherConfig struct {
	DebounceMs int `json:"debounce_ms"`
	SettleMs   int `json:"settle_ms"`
}

// SchedulerConfig controls the ReAct loop (scheduler.*).
type SchedulerConfig struct {
	MaxIterations  int `json:"max_iterations"`
	SpecialistTopN int `json:"specialist_top_n"`
}

// SupervisorConfig controls re-evaluation (supervisor.*).
type SupervisorConfig struct {
	MaxReevaluations int `json:"max_reevaluations"`
}

// QualityConfig holds gate thresholds (quality.*, consistency.*).
type QualityConfig struct {
	Threshold            float64 `json:"threshold"`
	ConsistencyThreshold float64 `json:"consistency_threshold"`
}

// TokenConfig holds per-user quota settings (token.*).
type TokenConfig struct {
	DefaultMonthlyQuota int `json:"default_monthly_quota"`
	WarnPct             int `json:"warn_pct"`
}

// LoggingConfig mirrors the logging package options.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Level      string          `json:"level"`
	Categories map[string]bool `json:"categories"`
}

// LLMConfig selects the default model provider.
type LLMConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint"` // Ollama endpoint
}

// EmbeddingConfig selects the embedding engine.
type EmbeddingConfig struct {
	Provider string `json:"provider"` // "ollama", "genai", or "local"
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint"`
}

// Default returns the configuration with every default filled in.
func Default(workspace string) *Config {
	return &Config{
		Workspace:  workspace,
		Cache:      CacheConfig{Path: "./cache", Enabled: true},
		Context:    ContextConfig{MaxTokens: 8000, ReservedTokens: 1000},
		Indexer:    IndexerConfig{WorkerThreads: 3, PerFileDelayMs: 100},
		Watcher:    WatcherConfig{DebounceMs: 1000, SettleMs: 500},
		Scheduler:  SchedulerConfig{MaxIterations: 2, SpecialistTopN: 3},
		Supervisor: SupervisorConfig{MaxReevaluations: 3},
		Quality:    QualityConfig{Threshold: 0.75, ConsistencyThreshold: 0.85},
		Token:      TokenConfig{DefaultMonthlyQuota: 100000, WarnPct: 80},
		Logging:    LoggingConfig{DebugMode: false, Level: "info"},
		LLM:        LLMConfig{Provider: "default"},
		Embedding:  EmbeddingConfig{Provider: "local"},
	}
}

// ConfigPath returns the workspace-relative config location.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, ".cortex", "config.json")
}

// Load reads config.json if present, layers it over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(workspace string) (*Config, error) {
	cfg := Default(workspace)

	data, err := os.ReadFile(ConfigPath(workspace))
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.Workspace = workspace
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config back to .cortex/config.json.
func (c *Config) Save() error {
	dir := filepath.Join(c.Workspace, ".cortex")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(c.Workspace), data, 0644)
}

// CacheDir resolves the embedding cache path relative to the workspace.
func (c *Config) CacheDir() string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(c.Workspace, c.Cache.Path)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CORTEX_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("CORTEX_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("CORTEX_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CORTEX_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v, ok := envInt("CORTEX_MAX_TOKENS"); ok {
		c.Context.MaxTokens = v
	}
	if v, ok := envInt("CORTEX_RESERVED_TOKENS"); ok {
		c.Context.ReservedTokens = v
	}
	if v, ok := envInt("CORTEX_MAX_ITERATIONS"); ok {
		c.Scheduler.MaxIterations = v
	}
	if v := os.Getenv("CORTEX_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
