package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cortex/internal/config"
	"cortex/internal/core"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "CacheManager.java"), []byte(
		"public class CacheManager {\n"+
			"    private final Map<String, String> entries = new HashMap<>();\n"+
			"    public String get(String key) {\n"+
			"        return entries.get(key);\n"+
			"    }\n"+
			"}\n"), 0644))

	cfg := config.Default(workspace)
	cfg.Indexer.PerFileDelayMs = 1

	sys, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	return sys
}

func TestBootIndexAndAsk(t *testing.T) {
	sys := newTestSystem(t)
	ctx := context.Background()

	require.NoError(t, sys.EnsureIndexed(ctx))
	require.Equal(t, 1, sys.Indexer.Stats().FilesIndexed)
	require.Contains(t, sys.Indexer.KnownFiles(), "CacheManager.java")

	resp, err := sys.Scheduler.Handle(ctx, core.Request{
		Message:        "how does CacheManager store entries",
		UserID:         "u1",
		ConversationID: "c1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Text)
	require.Equal(t, "default", resp.Provider)
	require.Equal(t, 1, sys.Recorder.Requests())
}

func TestBuiltinToolsRegistered(t *testing.T) {
	sys := newTestSystem(t)
	for _, name := range []string{"get_datetime", "get_weather", "create_event"} {
		_, ok := sys.Catalog.Get(name)
		require.True(t, ok, "builtin tool %s missing", name)
	}
}

func TestStartWatcherIdempotent(t *testing.T) {
	sys := newTestSystem(t)
	ctx := context.Background()

	require.NoError(t, sys.StartWatcher(ctx))
	require.NotNil(t, sys.Watcher())
	require.NoError(t, sys.StartWatcher(ctx)) // second call is a no-op
}

func TestCloseIsSafeWithoutWatcher(t *testing.T) {
	workspace := t.TempDir()
	sys, err := New(context.Background(), config.Default(workspace))
	require.NoError(t, err)
	require.NoError(t, sys.Close())
	require.NoError(t, sys.Close()) // double close must not panic
}
