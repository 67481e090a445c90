package world

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHashTrackerClassify(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a\n")
	b := writeFile(t, dir, "b.go", "package b\n")

	tracker := NewHashTracker()
	hashA, err := HashFile(a)
	if err != nil {
		t.Fatal(err)
	}
	tracker.Record(a, hashA)

	writeFile(t, dir, "a.go", "package a // changed\n")
	cs := tracker.Classify([]string{a, b})

	if len(cs.Changed) != 1 || cs.Changed[0] != a {
		t.Fatalf("changed = %v", cs.Changed)
	}
	if len(cs.New) != 1 || cs.New[0] != b {
		t.Fatalf("new = %v", cs.New)
	}
	if len(cs.Unchanged) != 0 {
		t.Fatalf("unchanged = %v", cs.Unchanged)
	}
}

func TestHashTrackerHistoryBounded(t *testing.T) {
	tracker := NewHashTracker()
	for i := 0; i < hashHistoryLimit+5; i++ {
		tracker.Record("x.go", string(rune('a'+i)))
	}
	hist := tracker.History("x.go")
	if len(hist) != hashHistoryLimit {
		t.Fatalf("history len = %d, want %d", len(hist), hashHistoryLimit)
	}
}

func TestHashTrackerForget(t *testing.T) {
	tracker := NewHashTracker()
	tracker.Record("x.go", "abc")
	tracker.Forget("x.go")
	if tracker.Known("x.go") {
		t.Fatal("path still known after Forget")
	}
	if len(tracker.History("x.go")) != 0 {
		t.Fatal("history survived Forget")
	}
}

func TestCorpusHashOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a\n")
	b := writeFile(t, dir, "b.go", "package b\n")

	h1, err := CorpusHash([]string{a, b})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CorpusHash([]string{b, a})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("corpus hash depends on listing order")
	}

	writeFile(t, dir, "a.go", "package a // edit\n")
	h3, err := CorpusHash([]string{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Fatal("corpus hash unchanged after edit")
	}
}

func TestListSourceFilesSkipsHiddenDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, filepath.Join("sub", "b.java"), "class B {}\n")
	writeFile(t, dir, filepath.Join(".cache", "c.go"), "package c\n")
	writeFile(t, dir, "notes.txt", "ignore me\n")

	files, err := ListSourceFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v", files)
	}
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewEmbeddingCache(dir, true)

	if cache.IsValid("h1") {
		t.Fatal("empty cache reported valid")
	}
	if err := cache.Persist("h1"); err != nil {
		t.Fatal(err)
	}
	if !cache.IsValid("h1") {
		t.Fatal("persisted cache not valid")
	}
	if cache.IsValid("h2") {
		t.Fatal("cache valid for a different corpus hash")
	}

	cache.Invalidate()
	if cache.IsValid("h1") {
		t.Fatal("cache valid after Invalidate")
	}
}

func TestEmbeddingCacheDisabled(t *testing.T) {
	cache := NewEmbeddingCache(t.TempDir(), false)
	if err := cache.Persist("h1"); err != nil {
		t.Fatal(err)
	}
	if cache.IsValid("h1") {
		t.Fatal("disabled cache reported valid")
	}
}

func TestEmbeddingCacheCorruptMarker(t *testing.T) {
	dir := t.TempDir()
	cache := NewEmbeddingCache(dir, true)
	if err := cache.Persist("h1"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, markerFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if cache.IsValid("h1") {
		t.Fatal("corrupt marker reported valid")
	}
}
