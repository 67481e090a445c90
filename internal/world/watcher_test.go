package world

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cortex/internal/store"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherReindexesOnWrite(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
	})

	root := t.TempDir()
	writeFile(t, root, "user_service.go", userServiceSrc)

	ix, vs := newTestIndexer(t, root)
	require.NoError(t, ix.EnsureIndexed(context.Background()))

	w, err := NewWatcher(root, ix, ix.cache)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	w.settle = 50 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, root, "cache_manager.go", cacheManagerSrc)
	waitFor(t, 5*time.Second, func() bool { return w.Stats().BatchesFlushed >= 1 })

	n, err := vs.Count(store.CollectionSummaries)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.GreaterOrEqual(t, w.Stats().FilesReindexed, 1)
}

func TestWatcherHandlesDelete(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
	})

	root := t.TempDir()
	path := writeFile(t, root, "cache_manager.go", cacheManagerSrc)

	ix, vs := newTestIndexer(t, root)
	require.NoError(t, ix.EnsureIndexed(context.Background()))

	w, err := NewWatcher(root, ix, ix.cache)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	w.settle = 50 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.Remove(path))
	waitFor(t, 5*time.Second, func() bool { return w.Stats().FilesDeleted >= 1 })

	n, err := vs.Count(store.CollectionSummaries)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestWatcherIgnoresNonSourceFiles(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
	})

	root := t.TempDir()
	ix, _ := newTestIndexer(t, root)

	w, err := NewWatcher(root, ix, ix.cache)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	w.settle = 50 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, root, "notes.txt", "not source")
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 0, w.Stats().BatchesFlushed)
}

func TestWatcherDebouncesRepeatEvents(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
	})

	root := t.TempDir()
	ix, _ := newTestIndexer(t, root)

	w, err := NewWatcher(root, ix, ix.cache)
	require.NoError(t, err)
	w.debounce = 10 * time.Second // nothing repeats inside the window
	w.settle = 50 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeFile(t, root, "user_service.go", userServiceSrc)
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, 5*time.Second, func() bool { return w.Stats().BatchesFlushed >= 1 })

	stats := w.Stats()
	require.Equal(t, 1, stats.FilesReindexed)
	require.Greater(t, stats.EventsDebounced, 0)
}
