package world

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"cortex/internal/logging"
	"cortex/internal/types"
)

// identPattern matches class-like identifiers in source text.
var identPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9_]{2,}\b`)

// GraphBuilder constructs the file-level dependency graph in two passes:
// first every file registers the entities it declares, then each file's text
// is scanned for references to entities declared elsewhere. A reference from
// file A to an entity owned by file B becomes the edge A -> B.
//
// The builder keeps per-file inputs so a single file can be re-registered
// after an incremental reindex without replaying the whole corpus.
type GraphBuilder struct {
	mu       sync.Mutex
	declared map[string][]string // filename -> entity names it declares
	contents map[string]string   // filename -> raw source text
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		declared: make(map[string][]string),
		contents: make(map[string]string),
	}
}

// Register records one file's declarations and text, replacing any previous
// registration for the same filename.
func (b *GraphBuilder) Register(pf *ParsedFile, content []byte) {
	filename := filepath.Base(pf.Path)
	names := make([]string, 0, len(pf.Classes))
	for _, cls := range pf.Classes {
		names = append(names, cls.Name)
	}
	b.mu.Lock()
	b.declared[filename] = names
	b.contents[filename] = string(content)
	b.mu.Unlock()
}

// Remove drops a deleted file from the builder.
func (b *GraphBuilder) Remove(filename string) {
	b.mu.Lock()
	delete(b.declared, filename)
	delete(b.contents, filename)
	b.mu.Unlock()
}

// Build runs the reference pass over every registered file and returns a
// fresh graph. Self-references never produce edges.
func (b *GraphBuilder) Build() *types.DependencyGraph {
	b.mu.Lock()
	defer b.mu.Unlock()

	owner := make(map[string]string) // entity -> filename
	for filename, names := range b.declared {
		for _, n := range names {
			owner[n] = filename
		}
	}

	graph := types.NewDependencyGraph()
	edges := 0
	for filename, content := range b.contents {
		for _, ident := range identPattern.FindAllString(content, -1) {
			target, ok := owner[ident]
			if !ok || target == filename {
				continue
			}
			graph.AddDependency(filename, target)
			edges++
		}
	}
	logging.World("dependency graph built: %d files, %d reference hits", len(b.contents), edges)
	return graph
}

// =============================================================================
// SIMILARITY GRAPH
// =============================================================================

// similarityThreshold is the minimum Jaccard overlap for an edge.
const similarityThreshold = 0.5

// SimilarityGraph links files whose summary word sets overlap strongly. It is
// maintained incrementally: upserting one file only recomputes that file's
// edges against the existing nodes.
type SimilarityGraph struct {
	mu    sync.RWMutex
	words map[string]map[string]bool // filename -> word set
	edges map[string]map[string]bool // filename -> neighbor set, symmetric
}

// NewSimilarityGraph creates an empty graph.
func NewSimilarityGraph() *SimilarityGraph {
	return &SimilarityGraph{
		words: make(map[string]map[string]bool),
		edges: make(map[string]map[string]bool),
	}
}

// Upsert replaces a file's word set and recomputes its edges.
func (g *SimilarityGraph) Upsert(filename, text string) {
	set := wordSet(text)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dropEdgesLocked(filename)
	g.words[filename] = set

	for other, otherSet := range g.words {
		if other == filename {
			continue
		}
		if jaccard(set, otherSet) > similarityThreshold {
			g.addEdgeLocked(filename, other)
		}
	}
}

// Remove deletes a file and all its edges.
func (g *SimilarityGraph) Remove(filename string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropEdgesLocked(filename)
	delete(g.words, filename)
}

// Neighbors returns the files similar to filename.
func (g *SimilarityGraph) Neighbors(filename string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.edges[filename]))
	for n := range g.edges[filename] {
		out = append(out, n)
	}
	return out
}

// Size returns the node count.
func (g *SimilarityGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.words)
}

func (g *SimilarityGraph) addEdgeLocked(a, b string) {
	if g.edges[a] == nil {
		g.edges[a] = make(map[string]bool)
	}
	if g.edges[b] == nil {
		g.edges[b] = make(map[string]bool)
	}
	g.edges[a][b] = true
	g.edges[b][a] = true
}

func (g *SimilarityGraph) dropEdgesLocked(filename string) {
	for n := range g.edges[filename] {
		delete(g.edges[n], filename)
	}
	delete(g.edges, filename)
}

// wordSet lowercases and splits text into words of three or more characters.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

// jaccard computes |A∩B| / |A∪B|; two empty sets read as zero.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
