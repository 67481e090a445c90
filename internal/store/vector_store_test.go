package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cortex/internal/embedding"
	"cortex/internal/types"
)

func openTestStore(t *testing.T) *VectorStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cortex.db"), embedding.NewLocalEngine())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndSearch_RanksByRelevance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docs := []types.Document{
		{Text: "CacheManager handles eviction and embedding cache reuse", Metadata: map[string]string{
			types.MetaFilename: "CacheManager.java", types.MetaChunkType: types.ChunkFileSummary,
		}},
		{Text: "UserService validates login credentials", Metadata: map[string]string{
			types.MetaFilename: "UserService.java", types.MetaChunkType: types.ChunkFileSummary,
		}},
	}
	if err := s.Add(ctx, CollectionSummaries, docs); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := s.Search(ctx, CollectionSummaries, "explain the embedding cache eviction", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Filename() != "CacheManager.java" {
		t.Fatalf("top hit = %s, want CacheManager.java", hits[0].Filename())
	}
}

func TestAdd_ReAddIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := types.Document{Text: "method body", Metadata: map[string]string{
		types.MetaFilename:  "A.java",
		types.MetaChunkType: types.ChunkMethodImpl,
		types.MetaMethod:    "run",
	}}
	for i := 0; i < 3; i++ {
		if err := s.Add(ctx, CollectionChunks, []types.Document{doc}); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}

	n, err := s.Count(CollectionChunks)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d after re-adds, want 1", n)
	}
}

func TestDeleteByFilename_Tombstones(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	docs := []types.Document{
		{Text: "chunk a", Metadata: map[string]string{types.MetaFilename: "A.java", types.MetaChunkType: types.ChunkMethodImpl, types.MetaMethod: "a"}},
		{Text: "chunk b", Metadata: map[string]string{types.MetaFilename: "B.java", types.MetaChunkType: types.ChunkMethodImpl, types.MetaMethod: "b"}},
	}
	if err := s.Add(ctx, CollectionChunks, docs); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.DeleteByFilename(CollectionChunks, "A.java"); err != nil {
		t.Fatalf("DeleteByFilename: %v", err)
	}
	n, _ := s.Count(CollectionChunks)
	if n != 1 {
		t.Fatalf("count = %d after delete, want 1", n)
	}
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.0, 0}
	out := decodeVector(encodeVector(in))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("vector round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_MetadataSurvives(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := types.Document{Text: "class overview for PaymentProcessor", Metadata: map[string]string{
		types.MetaFilename:  "PaymentProcessor.java",
		types.MetaChunkType: types.ChunkClassOverview,
		types.MetaClass:     "PaymentProcessor",
		types.MetaPackage:   "billing",
	}}
	if err := s.Add(ctx, CollectionChunks, []types.Document{doc}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := s.Search(ctx, CollectionChunks, "PaymentProcessor overview", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits[0].Metadata[types.MetaClass] != "PaymentProcessor" {
		t.Fatalf("class metadata lost: %v", hits[0].Metadata)
	}
	if hits[0].ChunkType() != types.ChunkClassOverview {
		t.Fatalf("chunk type lost: %v", hits[0].Metadata)
	}
}
