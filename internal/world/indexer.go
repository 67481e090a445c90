package world

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cortex/internal/logging"
	"cortex/internal/perception"
	"cortex/internal/store"
	"cortex/internal/types"
)

const (
	// summaryWorkers bounds concurrent LLM summary calls.
	summaryWorkers = 3
	// summaryInputLimit caps the source text sent to the summarizer.
	summaryInputLimit = 4096
	// perFileDelay paces summary submissions to avoid provider rate limits.
	perFileDelay = 100 * time.Millisecond
)

const summarySystemPrompt = `You summarize source files for a code search index.
Describe in 2-4 sentences what the file is responsible for, its main types,
and what other parts of the codebase it touches. No code, no markdown.`

// IndexStats captures the outcome of the last indexing run.
type IndexStats struct {
	FilesIndexed   int
	FilesDeleted   int
	ChunksAdded    int
	SummariesAdded int
	SkippedCache   bool
	Duration       time.Duration
}

// Indexer builds and maintains the code index: per-file summaries and chunks
// in the vector store, the hash tracker, the similarity graph, and the
// dependency graph. One indexer owns one workspace root.
type Indexer struct {
	root    string
	store   *store.VectorStore
	cache   *EmbeddingCache
	tracker *HashTracker
	parser  *ChunkParser
	llm     perception.LLMClient

	simGraph *SimilarityGraph
	builder  *GraphBuilder

	workers int
	delay   time.Duration

	parserMu sync.Mutex

	mu       sync.RWMutex
	depGraph *types.DependencyGraph
	stats    IndexStats
}

// NewIndexer wires an indexer over a workspace root. llm may be nil; summaries
// then fall back to a structural digest of the parsed file.
func NewIndexer(root string, vs *store.VectorStore, cache *EmbeddingCache, llm perception.LLMClient) *Indexer {
	return &Indexer{
		root:     root,
		store:    vs,
		cache:    cache,
		tracker:  NewHashTracker(),
		parser:   NewChunkParser(),
		llm:      llm,
		simGraph: NewSimilarityGraph(),
		builder:  NewGraphBuilder(),
		workers:  summaryWorkers,
		delay:    perFileDelay,
		depGraph: types.NewDependencyGraph(),
	}
}

// Close releases the parser.
func (ix *Indexer) Close() {
	ix.parser.Close()
}

// SetPacing overrides the summary worker count and per-file delay. Call
// before the first indexing run.
func (ix *Indexer) SetPacing(workers int, delay time.Duration) {
	if workers > 0 {
		ix.workers = workers
	}
	if delay >= 0 {
		ix.delay = delay
	}
}

// DependencyGraph returns the current graph snapshot.
func (ix *Indexer) DependencyGraph() *types.DependencyGraph {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.depGraph
}

// Similarity returns the file similarity graph.
func (ix *Indexer) Similarity() *SimilarityGraph {
	return ix.simGraph
}

// Stats returns the outcome of the most recent run.
func (ix *Indexer) Stats() IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.stats
}

// KnownFiles returns the basenames of every indexed file, sorted. The planner
// uses this for entity detection.
func (ix *Indexer) KnownFiles() []string {
	files, err := ListSourceFiles(ix.root)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, filepath.Base(f))
	}
	sort.Strings(out)
	return out
}

// EnsureIndexed is the startup entry point: when the cache markers match the
// current corpus hash the on-disk index is reused as-is, otherwise the whole
// workspace is indexed from scratch.
func (ix *Indexer) EnsureIndexed(ctx context.Context) error {
	files, err := ListSourceFiles(ix.root)
	if err != nil {
		return fmt.Errorf("cannot list source files: %w", err)
	}
	hash, err := CorpusHash(files)
	if err != nil {
		return err
	}

	if ix.cache.IsValid(hash) {
		logging.World("embedding cache valid, skipping indexing (%d files)", len(files))
		if err := ix.rebuildGraphs(files); err != nil {
			return err
		}
		ix.mu.Lock()
		ix.stats = IndexStats{SkippedCache: true}
		ix.mu.Unlock()
		return nil
	}

	logging.World("cache invalid or missing, indexing %d files", len(files))
	return ix.indexFiles(ctx, files, nil)
}

// Reindex processes an incremental change batch from the watcher. Unchanged
// files (same content hash) are skipped; deleted files are tombstoned from
// both collections before anything else runs.
func (ix *Indexer) Reindex(ctx context.Context, modified, deleted []string) error {
	for _, path := range deleted {
		filename := filepath.Base(path)
		if err := ix.store.DeleteByFilename(store.CollectionSummaries, filename); err != nil {
			return err
		}
		if err := ix.store.DeleteByFilename(store.CollectionChunks, filename); err != nil {
			return err
		}
		ix.tracker.Forget(path)
		ix.simGraph.Remove(filename)
		ix.builder.Remove(filename)
	}

	cs := ix.tracker.Classify(modified)
	work := append(cs.Changed, cs.New...)
	if len(work) == 0 && len(deleted) == 0 {
		return nil
	}
	logging.World("incremental reindex: %d changed, %d new, %d unchanged, %d deleted",
		len(cs.Changed), len(cs.New), len(cs.Unchanged), len(deleted))
	return ix.indexFiles(ctx, work, deleted)
}

// indexFiles runs the summary+chunk pipeline over the given paths, then
// rebuilds the dependency graph and persists the cache markers. A store
// failure aborts before the file's hash is recorded, so the next run retries.
func (ix *Indexer) indexFiles(ctx context.Context, paths, deleted []string) error {
	start := time.Now()
	var (
		statsMu   sync.Mutex
		chunks    int
		summaries int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			nChunks, err := ix.indexFile(gctx, path)
			if err != nil {
				return err
			}
			statsMu.Lock()
			chunks += nChunks
			summaries++
			statsMu.Unlock()
			return nil
		})
		select {
		case <-time.After(ix.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing aborted: %w", err)
	}

	files, err := ListSourceFiles(ix.root)
	if err != nil {
		return err
	}
	ix.rebuildDepGraph()
	hash, err := CorpusHash(files)
	if err != nil {
		return err
	}
	if err := ix.cache.Persist(hash); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.stats = IndexStats{
		FilesIndexed:   len(paths),
		FilesDeleted:   len(deleted),
		ChunksAdded:    chunks,
		SummariesAdded: summaries,
		Duration:       time.Since(start),
	}
	ix.mu.Unlock()
	logging.World("indexing done: %d files, %d chunks in %s", len(paths), chunks, time.Since(start).Round(time.Millisecond))
	return nil
}

// indexFile parses, summarizes, and stores one file. The hash is recorded
// only after every store write succeeded.
func (ix *Indexer) indexFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("cannot read %s: %w", path, err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return 0, err
	}

	pf, err := ix.parseLocked(path, content)
	if err != nil {
		logging.WorldDebug("skipping unparseable file %s: %v", path, err)
		return 0, nil
	}

	filename := filepath.Base(path)
	summary := ix.summarize(ctx, filename, string(content), pf)
	chunkDocs := BuildChunkDocuments(pf)

	// Tombstone first so renamed classes don't leave stale rows behind.
	if err := ix.store.DeleteByFilename(store.CollectionSummaries, filename); err != nil {
		return 0, err
	}
	if err := ix.store.DeleteByFilename(store.CollectionChunks, filename); err != nil {
		return 0, err
	}

	summaryDoc := types.Document{
		Text: summary,
		Metadata: map[string]string{
			types.MetaFilename:  filename,
			types.MetaChunkType: types.ChunkFileSummary,
			types.MetaPackage:   pf.Package,
		},
	}
	if err := ix.store.Add(ctx, store.CollectionSummaries, []types.Document{summaryDoc}); err != nil {
		return 0, err
	}
	if err := ix.store.Add(ctx, store.CollectionChunks, chunkDocs); err != nil {
		return 0, err
	}

	ix.tracker.Record(path, hash)
	ix.simGraph.Upsert(filename, summary)
	ix.builder.Register(pf, content)
	return len(chunkDocs), nil
}

// parseLocked serializes parser access; tree-sitter parsers are not safe for
// concurrent use.
func (ix *Indexer) parseLocked(path string, content []byte) (*ParsedFile, error) {
	ix.parserMu.Lock()
	defer ix.parserMu.Unlock()
	return ix.parser.Parse(path, content)
}

// summarize asks the LLM for a file summary, truncating the input at the
// last close brace before the 4096-character limit so the model never sees a
// half-open block. Without a client (or on error) a structural digest of the
// parsed file stands in.
func (ix *Indexer) summarize(ctx context.Context, filename, content string, pf *ParsedFile) string {
	if ix.llm != nil {
		input := truncateAtCloseBrace(content, summaryInputLimit)
		prompt := fmt.Sprintf("File: %s\n\n%s", filename, input)
		out, err := ix.llm.CompleteWithSystem(ctx, summarySystemPrompt, prompt)
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		if err != nil {
			logging.World("summary call failed for %s, using structural digest: %v", filename, err)
		}
	}
	return structuralDigest(filename, pf)
}

// truncateAtCloseBrace cuts text to at most limit characters, preferring the
// last '}' inside the window as the cut point.
func truncateAtCloseBrace(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	window := text[:limit]
	if i := strings.LastIndexByte(window, '}'); i > 0 {
		return window[:i+1]
	}
	return window
}

// structuralDigest builds a deterministic summary from parse results.
func structuralDigest(filename string, pf *ParsedFile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", filename)
	if pf.Package != "" {
		fmt.Fprintf(&sb, " (package %s)", pf.Package)
	}
	sb.WriteString(" defines")
	if len(pf.Classes) == 0 && len(pf.Functions) == 0 {
		sb.WriteString(" no top-level declarations.")
		return sb.String()
	}
	for _, cls := range pf.Classes {
		methods := make([]string, 0, len(cls.Methods))
		for _, m := range cls.Methods {
			methods = append(methods, m.Name)
		}
		fmt.Fprintf(&sb, " class %s", cls.Name)
		if len(methods) > 0 {
			fmt.Fprintf(&sb, " with methods %s", strings.Join(methods, ", "))
		}
		sb.WriteString(".")
	}
	if len(pf.Functions) > 0 {
		names := make([]string, 0, len(pf.Functions))
		for _, f := range pf.Functions {
			names = append(names, f.Name)
		}
		fmt.Fprintf(&sb, " Functions: %s.", strings.Join(names, ", "))
	}
	return sb.String()
}

// rebuildGraphs repopulates the in-memory graphs from disk without touching
// the store. Used when the embedding cache lets startup skip indexing.
func (ix *Indexer) rebuildGraphs(files []string) error {
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pf, err := ix.parseLocked(path, content)
		if err != nil {
			continue
		}
		hash, err := HashFile(path)
		if err == nil {
			ix.tracker.Record(path, hash)
		}
		ix.builder.Register(pf, content)
		ix.simGraph.Upsert(filepath.Base(path), structuralDigest(filepath.Base(path), pf))
	}
	ix.rebuildDepGraph()
	return nil
}

func (ix *Indexer) rebuildDepGraph() {
	graph := ix.builder.Build()
	ix.mu.Lock()
	ix.depGraph = graph
	ix.mu.Unlock()
}
