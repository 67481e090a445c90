// Package retrieval assembles a CodeContext for a query: plan, summary
// search, dependency expansion, and budgeted chunk selection.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cortex/internal/budget"
	"cortex/internal/logging"
	"cortex/internal/plan"
	"cortex/internal/store"
	"cortex/internal/types"
)

// Expansion fan-out per file, halved near the budget limit.
const (
	forwardFanOut      = 4
	forwardFanOutTight = 2
	reverseFanOut      = 2
	reverseFanOutTight = 1

	entityTopK     = 2
	chunkTopKFloor = 3
)

// strategyKeywords augment the query per strategy before the summary search.
var strategyKeywords = map[types.Strategy][]string{
	types.StrategyEntity:      {"class", "definition"},
	types.StrategyErrorTrace:  {"error", "exception", "failure", "handling"},
	types.StrategyConfigChain: {"configuration", "setup", "properties"},
	types.StrategyMethod:      {"method", "implementation", "logic"},
	types.StrategyDependency:  {"architecture", "structure", "dependencies"},
}

// Retriever runs the five-step context pipeline. The dependency graph is
// fetched per request so watcher-driven rebuilds are picked up.
type Retriever struct {
	planner   *plan.Planner
	store     *store.VectorStore
	graph     func() *types.DependencyGraph
	coreFiles []string
}

// New creates a retriever. graph may return nil when no index exists yet.
func New(planner *plan.Planner, vs *store.VectorStore, graph func() *types.DependencyGraph, coreFiles []string) *Retriever {
	return &Retriever{planner: planner, store: vs, graph: graph, coreFiles: coreFiles}
}

// Retrieve builds the CodeContext for a query. Summaries always precede
// chunks in the result; every admitted text is charged to the plan's budget.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*types.CodeContext, error) {
	sp := r.planner.BuildPlan(query)
	out := &types.CodeContext{
		Query:      query,
		Strategy:   sp.Strategy,
		Confidence: sp.Confidence,
	}
	if strings.TrimSpace(query) == "" {
		return out, nil
	}

	b := budget.NewBudget(sp.TokenBudget)

	summaries, err := r.searchSummaries(ctx, sp)
	if err != nil {
		return nil, err
	}
	for _, doc := range summaries {
		if b.AddContent(doc.Text) {
			out.FileSummaries = append(out.FileSummaries, doc)
		}
	}

	seeds := seedFiles(out.FileSummaries, sp.StartingFiles)
	seeds = budget.PrioritizeFiles(query, seeds, r.coreFiles)
	out.RelevantFiles = r.expand(sp, b, seeds)

	chunks, err := r.searchChunks(ctx, sp, b, out.RelevantFiles)
	if err != nil {
		return nil, err
	}
	out.CodeChunks = chunks
	out.TokensUsed = b.Used()

	logging.Retrieval("context built: strategy=%s summaries=%d chunks=%d files=%d tokens=%d",
		sp.Strategy, len(out.FileSummaries), len(out.CodeChunks), len(out.RelevantFiles), out.TokensUsed)
	return out, nil
}

// searchSummaries issues the strategy-specific summary query. Entity plans
// query per entity first and only fall back to plain similarity search when
// no entity query hit anything.
func (r *Retriever) searchSummaries(ctx context.Context, sp *types.SearchPlan) ([]types.Document, error) {
	if sp.Strategy == types.StrategyEntity {
		var hits []types.Document
		seen := make(map[string]bool)
		for _, entity := range sp.TargetEntities {
			docs, err := r.store.Search(ctx, store.CollectionSummaries, entity, entityTopK)
			if err != nil {
				return nil, fmt.Errorf("entity summary search failed: %w", err)
			}
			for _, d := range docs {
				if seen[d.ID] {
					continue
				}
				seen[d.ID] = true
				hits = append(hits, d)
			}
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	augmented := sp.OriginalQuery
	if kw := strategyKeywords[sp.Strategy]; len(kw) > 0 {
		augmented += " " + strings.Join(kw, " ")
	}
	docs, err := r.store.Search(ctx, store.CollectionSummaries, augmented, sp.TopK)
	if err != nil {
		return nil, fmt.Errorf("summary search failed: %w", err)
	}
	return docs, nil
}

// seedFiles collects the expansion frontier from summary hits and the plan's
// starting files, deduplicated in arrival order.
func seedFiles(summaries []types.Document, starting []string) []string {
	seen := make(map[string]bool)
	var seeds []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			seeds = append(seeds, f)
		}
	}
	for _, d := range summaries {
		add(d.Filename())
	}
	for _, f := range starting {
		add(f)
	}
	return seeds
}

// expand walks the dependency graph BFS-level-ordered from the seeds. Each
// file contributes its best-scoring forward deps (and reverse deps when the
// plan asks) until maxHops or the budget runs out.
func (r *Retriever) expand(sp *types.SearchPlan, b *budget.Budget, seeds []string) []string {
	graph := r.graph()
	if graph == nil || len(seeds) == 0 {
		return seeds
	}

	k1, k2 := forwardFanOut, reverseFanOut
	if b.IsNearLimit() {
		k1, k2 = forwardFanOutTight, reverseFanOutTight
	}

	visited := make(map[string]bool, len(seeds))
	order := make([]string, 0, len(seeds))
	for _, s := range seeds {
		visited[s] = true
		order = append(order, s)
	}

	frontier := seeds
	for hop := 1; hop <= sp.MaxHops; hop++ {
		if b.Remaining() == 0 {
			break
		}
		var next []string
		for _, file := range frontier {
			for _, dep := range r.topScored(sp.OriginalQuery, graph.ForwardDeps(file), k1) {
				if !visited[dep] {
					visited[dep] = true
					order = append(order, dep)
					next = append(next, dep)
				}
			}
			if sp.IncludeReverseDeps {
				for _, dep := range r.topScored(sp.OriginalQuery, graph.ReverseDeps(file), k2) {
					if !visited[dep] {
						visited[dep] = true
						order = append(order, dep)
						next = append(next, dep)
					}
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return order
}

// topScored ranks candidate files by relevance and keeps the best k. Ties
// keep their incoming order.
func (r *Retriever) topScored(query string, files []string, k int) []string {
	type scored struct {
		file  string
		score float64
	}
	ranked := make([]scored, 0, len(files))
	for _, f := range files {
		ranked = append(ranked, scored{f, budget.ScoreFile(query, f, r.coreFiles)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]string, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.file)
	}
	return out
}

// searchChunks runs the enhanced chunk query, filters to the expanded file
// set, and prunes the survivors under the budget.
func (r *Retriever) searchChunks(ctx context.Context, sp *types.SearchPlan, b *budget.Budget, files []string) ([]types.Document, error) {
	topK := sp.TopK
	if b.IsNearLimit() {
		topK -= 2
		if topK < chunkTopKFloor {
			topK = chunkTopKFloor
		}
	}

	enhanced := sp.OriginalQuery
	if kw := strategyKeywords[sp.Strategy]; len(kw) > 0 {
		enhanced += " " + strings.Join(kw, " ")
	}
	if len(sp.TargetEntities) > 0 {
		enhanced += " " + strings.Join(sp.TargetEntities, " ")
	}

	docs, err := r.store.Search(ctx, store.CollectionChunks, enhanced, topK)
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	inSet := make(map[string]bool, len(files))
	for _, f := range files {
		inSet[f] = true
	}

	var filtered []types.Document
	var items []budget.Item
	for _, d := range docs {
		if !inSet[d.Filename()] {
			continue
		}
		filtered = append(filtered, d)
		items = append(items, budget.Item{Text: d.Text, Score: budget.ScoreContent(sp.OriginalQuery, d.Text)})
	}

	kept := budget.Prune(b, items)
	surviving := make(map[string]bool, len(kept))
	for _, item := range kept {
		surviving[item.Text] = true
	}

	out := make([]types.Document, 0, len(kept))
	for _, d := range filtered {
		if surviving[d.Text] {
			out = append(out, d)
		}
	}
	return out, nil
}
