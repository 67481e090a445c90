// Package world owns the indexing side of the engine: file hashing, the
// embedding cache marker, source parsing into chunks, the incremental
// indexer, the similarity graph, the dependency graph, and the file watcher.
package world

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cortex/internal/logging"
)

// sourceExtensions lists the file types the indexer understands.
var sourceExtensions = map[string]bool{
	".go":   true,
	".java": true,
	".py":   true,
	".js":   true,
}

// hashHistoryLimit bounds the per-file hash history.
const hashHistoryLimit = 10

// FileHashRecord is one observation of a file's content hash.
type FileHashRecord struct {
	Path      string    `json:"path"`
	MD5       string    `json:"md5"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeSet classifies candidate paths against the tracker's last view.
type ChangeSet struct {
	Unchanged []string
	Changed   []string
	New       []string
}

// HashTracker keeps per-file MD5 hashes with bounded history. The indexer is
// its sole writer; reads are safe from any goroutine.
type HashTracker struct {
	mu      sync.RWMutex
	current map[string]FileHashRecord
	history map[string][]FileHashRecord
}

// NewHashTracker creates an empty tracker.
func NewHashTracker() *HashTracker {
	return &HashTracker{
		current: make(map[string]FileHashRecord),
		history: make(map[string][]FileHashRecord),
	}
}

// HashFile computes the MD5 of a file's content.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Record stores the hash for a path, pushing the previous value into history.
func (t *HashTracker) Record(path, hash string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.current[path]; ok {
		hist := append(t.history[path], prev)
		if len(hist) > hashHistoryLimit {
			hist = hist[len(hist)-hashHistoryLimit:]
		}
		t.history[path] = hist
	}
	t.current[path] = FileHashRecord{Path: path, MD5: hash, Timestamp: time.Now()}
}

// Forget drops all state for a path (file removed).
func (t *HashTracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.current, path)
	delete(t.history, path)
}

// Known reports whether the tracker has seen a path.
func (t *HashTracker) Known(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.current[path]
	return ok
}

// History returns the bounded hash history for a path.
func (t *HashTracker) History(path string) []FileHashRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]FileHashRecord, len(t.history[path]))
	copy(out, t.history[path])
	return out
}

// Classify recomputes hashes for candidates and splits them into
// unchanged, changed, and new. Unreadable files are skipped with a debug log.
func (t *HashTracker) Classify(candidates []string) ChangeSet {
	var cs ChangeSet
	for _, path := range candidates {
		hash, err := HashFile(path)
		if err != nil {
			logging.WorldDebug("classify: cannot hash %s: %v", path, err)
			continue
		}
		t.mu.RLock()
		prev, known := t.current[path]
		t.mu.RUnlock()
		switch {
		case !known:
			cs.New = append(cs.New, path)
		case prev.MD5 != hash:
			cs.Changed = append(cs.Changed, path)
		default:
			cs.Unchanged = append(cs.Unchanged, path)
		}
	}
	return cs
}

// ListSourceFiles walks root and returns the recognized source files in
// sorted-path order. Hidden directories are skipped.
func ListSourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() {
			if strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if sourceExtensions[filepath.Ext(name)] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// CorpusHash computes the SHA-256 over the full bytes of every file,
// concatenated in sorted-path order. The sort makes the hash stable under
// listing permutations.
func CorpusHash(files []string) (string, error) {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	h := sha256.New()
	for _, path := range sorted {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("corpus hash: cannot read %s: %w", path, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
