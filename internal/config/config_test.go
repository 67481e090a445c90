package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	ws := t.TempDir()
	cfg, err := Load(ws)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Context.MaxTokens)
	assert.Equal(t, 1000, cfg.Context.ReservedTokens)
	assert.Equal(t, 3, cfg.Indexer.WorkerThreads)
	assert.Equal(t, 100, cfg.Indexer.PerFileDelayMs)
	assert.Equal(t, 1000, cfg.Watcher.DebounceMs)
	assert.Equal(t, 500, cfg.Watcher.SettleMs)
	assert.Equal(t, 2, cfg.Scheduler.MaxIterations)
	assert.Equal(t, 3, cfg.Supervisor.MaxReevaluations)
	assert.Equal(t, 0.75, cfg.Quality.Threshold)
	assert.Equal(t, 0.85, cfg.Quality.ConsistencyThreshold)
	assert.Equal(t, 100000, cfg.Token.DefaultMonthlyQuota)
	assert.Equal(t, 80, cfg.Token.WarnPct)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".cortex"), 0755))
	body := `{"context": {"max_tokens": 500, "reserved_tokens": 50}, "llm": {"provider": "ollama"}}`
	require.NoError(t, os.WriteFile(ConfigPath(ws), []byte(body), 0644))

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Context.MaxTokens)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	// Untouched sections keep defaults.
	assert.Equal(t, 2, cfg.Scheduler.MaxIterations)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("CORTEX_MAX_TOKENS", "1234")
	t.Setenv("CORTEX_PROVIDER", "claude")

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Context.MaxTokens)
	assert.Equal(t, "claude", cfg.LLM.Provider)
}

func TestSaveRoundTrip(t *testing.T) {
	ws := t.TempDir()
	cfg := Default(ws)
	cfg.Context.MaxTokens = 777
	require.NoError(t, cfg.Save())

	loaded, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, 777, loaded.Context.MaxTokens)
}
