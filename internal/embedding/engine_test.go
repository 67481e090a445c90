package embedding

import (
	"context"
	"testing"
)

func TestLocalEngine_Deterministic(t *testing.T) {
	e := NewLocalEngine()
	a1, err := e.Embed(context.Background(), "the cache manager loads embeddings")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, _ := e.Embed(context.Background(), "the cache manager loads embeddings")

	sim, err := CosineSimilarity(a1, a2)
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	if sim < 0.9999 {
		t.Fatalf("identical text similarity = %f, want ~1", sim)
	}
}

func TestLocalEngine_OverlapBeatsDisjoint(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()
	q, _ := e.Embed(ctx, "cache manager eviction policy")
	near, _ := e.Embed(ctx, "the cache manager eviction")
	far, _ := e.Embed(ctx, "quarterly revenue projections spreadsheet")

	simNear, _ := CosineSimilarity(q, near)
	simFar, _ := CosineSimilarity(q, far)
	if simNear <= simFar {
		t.Fatalf("overlapping text (%f) not ranked above disjoint text (%f)", simNear, simFar)
	}
}

func TestTopK_OrdersBySimilarity(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()
	q, _ := e.Embed(ctx, "file watcher debounce")
	corpus, _ := e.EmbedBatch(ctx, []string{
		"unrelated words entirely",
		"file watcher debounce settle",
		"watcher events",
	})

	matches := TopK(q, corpus, 2)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Index != 1 {
		t.Fatalf("best match index = %d, want 1", matches[0].Index)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Fatalf("matches not similarity-descending")
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
