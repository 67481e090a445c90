package world

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cortex/internal/logging"
)

const (
	// debounceWindow drops repeat events for the same path.
	debounceWindow = 1 * time.Second
	// settleWindow is the quiet period required before a batch flushes.
	settleWindow = 500 * time.Millisecond
)

// WatcherStats counts what the watcher has seen and done.
type WatcherStats struct {
	EventsSeen      int
	EventsDebounced int
	BatchesFlushed  int
	FilesReindexed  int
	FilesDeleted    int
	LastFlush       time.Time
}

// Watcher observes the workspace tree and drives incremental reindexing.
// Events are debounced per path, then a whole batch waits for the filesystem
// to settle before it flushes, so an editor save storm becomes one reindex.
type Watcher struct {
	root    string
	indexer *Indexer
	cache   *EmbeddingCache
	fsw     *fsnotify.Watcher

	debounce time.Duration
	settle   time.Duration

	mu        sync.Mutex
	lastEvent map[string]time.Time
	modified  map[string]bool
	deleted   map[string]bool
	stats     WatcherStats

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher over the indexer's workspace root.
func NewWatcher(root string, indexer *Indexer, cache *EmbeddingCache) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:      root,
		indexer:   indexer,
		cache:     cache,
		fsw:       fsw,
		debounce:  debounceWindow,
		settle:    settleWindow,
		lastEvent: make(map[string]time.Time),
		modified:  make(map[string]bool),
		deleted:   make(map[string]bool),
		done:      make(chan struct{}),
	}, nil
}

// SetWindows overrides the debounce and settle durations. Call before Start.
func (w *Watcher) SetWindows(debounce, settle time.Duration) {
	if debounce > 0 {
		w.debounce = debounce
	}
	if settle > 0 {
		w.settle = settle
	}
}

// Start registers recursive watches and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watchTree(w.root); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.loop(ctx)
	logging.World("watcher started on %s", w.root)
	return nil
}

// Stop shuts the event loop down and waits for any in-flight flush.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fsw.Close()
	w.wg.Wait()
}

// Stats returns a copy of the counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// watchTree adds watches for root and every non-hidden subdirectory.
// fsnotify watches are not recursive on their own.
func (w *Watcher) watchTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	settle := time.NewTimer(w.settle)
	if !settle.Stop() {
		<-settle.C
	}
	armed := false

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.accept(event) {
				if armed && !settle.Stop() {
					select {
					case <-settle.C:
					default:
					}
				}
				settle.Reset(w.settle)
				armed = true
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.World("watcher error: %v", err)
		case <-settle.C:
			armed = false
			w.flush(ctx)
		}
	}
}

// accept classifies one raw event into the pending sets. Returns true when
// the event extends the settle window.
func (w *Watcher) accept(event fsnotify.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.EventsSeen++

	// New directories need their own watches for nested edits.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				_ = w.fsw.Add(event.Name)
			}
			return false
		}
	}

	if !sourceExtensions[filepath.Ext(event.Name)] {
		return false
	}

	now := time.Now()
	if last, ok := w.lastEvent[event.Name]; ok && now.Sub(last) < w.debounce {
		w.stats.EventsDebounced++
		return false
	}
	w.lastEvent[event.Name] = now

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.deleted[event.Name] = true
		delete(w.modified, event.Name)
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.modified[event.Name] = true
		delete(w.deleted, event.Name)
	default:
		return false
	}
	logging.WorldDebug("watcher accepted %s %s", event.Op, filepath.Base(event.Name))
	return true
}

// flush hands the accumulated batch to the indexer. The cache marker is
// invalidated first so a crash mid-reindex forces a clean rebuild on restart.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.modified) == 0 && len(w.deleted) == 0 {
		w.mu.Unlock()
		return
	}
	modified := sortedKeys(w.modified)
	deleted := sortedKeys(w.deleted)
	w.modified = make(map[string]bool)
	w.deleted = make(map[string]bool)
	w.mu.Unlock()

	w.cache.Invalidate()
	logging.World("flushing change batch: %d modified, %d deleted", len(modified), len(deleted))
	if err := w.indexer.Reindex(ctx, modified, deleted); err != nil {
		logging.World("incremental reindex failed: %v", err)
		return
	}

	w.mu.Lock()
	w.stats.BatchesFlushed++
	w.stats.FilesReindexed += len(modified)
	w.stats.FilesDeleted += len(deleted)
	w.stats.LastFlush = time.Now()
	w.mu.Unlock()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
