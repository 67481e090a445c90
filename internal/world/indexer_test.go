package world

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cortex/internal/embedding"
	"cortex/internal/perception"
	"cortex/internal/store"
)

const userServiceSrc = `package app

type UserService struct {
	repo string
}

func (s *UserService) FindUser(id string) string {
	return "user:" + id + " via " + s.repo
}
`

const cacheManagerSrc = `package app

type CacheManager struct {
	entries map[string]string
}

func (c *CacheManager) Evict(key string) {
	delete(c.entries, key)
}
`

func newTestIndexer(t *testing.T, root string) (*Indexer, *store.VectorStore) {
	t.Helper()
	vs, err := store.Open(":memory:", embedding.NewLocalEngine())
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	cache := NewEmbeddingCache(t.TempDir(), true)
	ix := NewIndexer(root, vs, cache, perception.NewMockClient())
	ix.delay = time.Millisecond
	t.Cleanup(ix.Close)
	return ix, vs
}

func TestEnsureIndexedFullRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user_service.go", userServiceSrc)
	writeFile(t, root, "cache_manager.go", cacheManagerSrc)

	ix, vs := newTestIndexer(t, root)
	require.NoError(t, ix.EnsureIndexed(context.Background()))

	stats := ix.Stats()
	require.Equal(t, 2, stats.FilesIndexed)
	require.False(t, stats.SkippedCache)

	n, err := vs.Count(store.CollectionSummaries)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	chunks, err := vs.Count(store.CollectionChunks)
	require.NoError(t, err)
	require.Equal(t, 4, chunks) // 2 overviews + 2 method bodies

	require.Len(t, ix.KnownFiles(), 2)
}

func TestEnsureIndexedSkipsOnValidCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user_service.go", userServiceSrc)

	vs, err := store.Open(":memory:", embedding.NewLocalEngine())
	require.NoError(t, err)
	defer vs.Close()
	cacheDir := t.TempDir()

	first := NewIndexer(root, vs, NewEmbeddingCache(cacheDir, true), perception.NewMockClient())
	first.delay = time.Millisecond
	defer first.Close()
	require.NoError(t, first.EnsureIndexed(context.Background()))

	second := NewIndexer(root, vs, NewEmbeddingCache(cacheDir, true), perception.NewMockClient())
	second.delay = time.Millisecond
	defer second.Close()
	require.NoError(t, second.EnsureIndexed(context.Background()))
	require.True(t, second.Stats().SkippedCache)
}

func TestReindexChangedAndDeleted(t *testing.T) {
	root := t.TempDir()
	userPath := writeFile(t, root, "user_service.go", userServiceSrc)
	cachePath := writeFile(t, root, "cache_manager.go", cacheManagerSrc)

	ix, vs := newTestIndexer(t, root)
	require.NoError(t, ix.EnsureIndexed(context.Background()))

	// An untouched file classifies as unchanged and is skipped.
	require.NoError(t, ix.Reindex(context.Background(), []string{userPath}, nil))
	require.Equal(t, 2, ix.Stats().FilesIndexed) // stats still from the full run

	writeFile(t, root, "user_service.go", userServiceSrc+"\nfunc (s *UserService) DeleteUser(id string) error { return nil }\n")
	require.NoError(t, ix.Reindex(context.Background(), []string{userPath}, nil))
	require.Equal(t, 1, ix.Stats().FilesIndexed)

	require.NoError(t, os.Remove(cachePath))
	require.NoError(t, ix.Reindex(context.Background(), nil, []string{cachePath}))

	n, err := vs.Count(store.CollectionSummaries)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, ix.tracker.Known(cachePath))
	require.Empty(t, ix.Similarity().Neighbors("cache_manager.go"))
}

func TestIndexerBuildsDependencyGraph(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user_service.go", `package app

type UserService struct {
	cache *CacheManager
}

func (s *UserService) Warm(key string) {
	s.cache.Evict(key)
}
`)
	writeFile(t, root, "cache_manager.go", cacheManagerSrc)

	ix, _ := newTestIndexer(t, root)
	require.NoError(t, ix.EnsureIndexed(context.Background()))

	g := ix.DependencyGraph()
	require.Equal(t, []string{"cache_manager.go"}, g.ForwardDeps("user_service.go"))
	require.Equal(t, []string{"user_service.go"}, g.ReverseDeps("cache_manager.go"))
}

func TestTruncateAtCloseBrace(t *testing.T) {
	short := "func a() {}"
	require.Equal(t, short, truncateAtCloseBrace(short, 4096))

	long := "func a() { x }" + string(make([]byte, 5000))
	out := truncateAtCloseBrace(long, 4096)
	require.LessOrEqual(t, len(out), 4096)
	require.Equal(t, byte('}'), out[len(out)-1])
}

func TestSummarizeFallsBackOnLLMError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user_service.go", userServiceSrc)

	vs, err := store.Open(":memory:", embedding.NewLocalEngine())
	require.NoError(t, err)
	defer vs.Close()

	mock := perception.NewMockClient()
	mock.Err = context.DeadlineExceeded
	ix := NewIndexer(root, vs, NewEmbeddingCache(t.TempDir(), true), mock)
	ix.delay = time.Millisecond
	defer ix.Close()

	require.NoError(t, ix.EnsureIndexed(context.Background()))
	docs, err := vs.Search(context.Background(), store.CollectionSummaries, "UserService FindUser", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Contains(t, docs[0].Text, "UserService")
}
