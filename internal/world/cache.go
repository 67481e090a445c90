package world

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cortex/internal/logging"
)

// Cache marker filenames under the cache directory.
const (
	markerFile = "embeddings.json"
	hashFile   = "documents.hash"
)

// cacheMarker is the on-disk shape of embeddings.json.
type cacheMarker struct {
	CachedAt int64  `json:"cached_at"`
	Hash     string `json:"hash"`
	Status   string `json:"status"`
}

// EmbeddingCache validates and persists the hash-addressed cache markers.
// The embedded vectors themselves live in the sqlite store; the markers only
// decide whether a startup can skip re-indexing.
type EmbeddingCache struct {
	dir     string
	enabled bool
}

// NewEmbeddingCache creates a cache rooted at dir.
func NewEmbeddingCache(dir string, enabled bool) *EmbeddingCache {
	return &EmbeddingCache{dir: dir, enabled: enabled}
}

// IsValid reports whether both marker files exist, parse, and carry the given
// corpus hash. Any corruption reads as "cache invalid" and triggers a clean
// rebuild rather than an error.
func (c *EmbeddingCache) IsValid(corpusHash string) bool {
	if !c.enabled {
		return false
	}

	data, err := os.ReadFile(filepath.Join(c.dir, markerFile))
	if err != nil {
		return false
	}
	var marker cacheMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		logging.WorldDebug("cache marker corrupt, treating as invalid: %v", err)
		return false
	}
	if marker.Status != "valid" || marker.Hash != corpusHash {
		return false
	}

	stored, err := os.ReadFile(filepath.Join(c.dir, hashFile))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(stored)) == corpusHash
}

// Persist writes both markers after a successful indexing run. It is only
// called once every store write succeeded, so a crash mid-index leaves the
// cache invalid and the next startup rebuilds.
func (c *EmbeddingCache) Persist(corpusHash string) error {
	if !c.enabled {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("cannot create cache dir: %w", err)
	}

	marker := cacheMarker{CachedAt: time.Now().Unix(), Hash: corpusHash, Status: "valid"}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.dir, markerFile), data, 0644); err != nil {
		return fmt.Errorf("cannot write cache marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, hashFile), []byte(corpusHash), 0644); err != nil {
		return fmt.Errorf("cannot write hash file: %w", err)
	}
	logging.World("cache markers persisted (hash=%s)", corpusHash[:minInt(12, len(corpusHash))])
	return nil
}

// Invalidate removes the marker so the next startup re-indexes. The watcher
// calls this before scheduling an incremental run.
func (c *EmbeddingCache) Invalidate() {
	_ = os.Remove(filepath.Join(c.dir, markerFile))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
