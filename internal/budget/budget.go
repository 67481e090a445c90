// Package budget implements token accounting for the retrieval pipeline:
// estimation, content and file scoring, prioritization, and greedy pruning.
package budget

import (
	"sort"
	"strings"
	"sync"

	"cortex/internal/logging"
)

// roleKeywords score content that plays a recognizable architectural role.
var roleKeywords = []string{"service", "config", "advisor"}

// structuralMarkers reward content that is clearly a type definition or an
// annotated component rather than free text.
var structuralMarkers = []string{"public class", "@Service", "@Component", "@Configuration"}

// EstimateTokens approximates the token count of a string as ceil(len/4).
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}

// Budget tracks token admission for one retrieval pass.
type Budget struct {
	mu   sync.Mutex
	max  int
	used int
}

// NewBudget creates a budget with the given ceiling.
func NewBudget(maxTokens int) *Budget {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &Budget{max: maxTokens}
}

// Max returns the ceiling.
func (b *Budget) Max() int { return b.max }

// Used returns the tokens admitted so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns max − used.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max - b.used
}

// CanAdd reports whether content fits without breaching the ceiling.
func (b *Budget) CanAdd(content string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used+EstimateTokens(content) <= b.max
}

// AddContent admits content, returning false (and admitting nothing) if it
// does not fit. used ≤ max holds after every admitted insertion.
func (b *Budget) AddContent(content string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	tokens := EstimateTokens(content)
	if b.used+tokens > b.max {
		return false
	}
	b.used += tokens
	return true
}

// UsagePct returns the percentage of budget consumed.
func (b *Budget) UsagePct() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.used) / float64(b.max) * 100
}

// IsNearLimit reports usage above 80%. The planner and retriever tighten
// their parameters when this trips.
func (b *Budget) IsNearLimit() bool {
	return b.UsagePct() > 80
}

// =============================================================================
// SCORING
// =============================================================================

// queryWords extracts scoring words (length ≥ 3) from a query.
func queryWords(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

// ScoreContent rates content relevance to a query in [0,1].
func ScoreContent(query, content string) float64 {
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)

	var score float64
	for _, w := range queryWords(query) {
		if strings.Contains(lowerContent, w) {
			score += 0.2
		}
	}
	for _, kw := range roleKeywords {
		if strings.Contains(lowerQuery, kw) && strings.Contains(lowerContent, kw) {
			score += 0.3
		}
	}
	for _, marker := range structuralMarkers {
		if strings.Contains(content, marker) {
			score += 0.2
		}
	}
	if len(content) > 5000 {
		score *= 0.8
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ScoreFile rates a filename's relevance to a query in [0,1]. coreFiles is
// a configurable list of filenames known to be central to the codebase.
func ScoreFile(query, filename string, coreFiles []string) float64 {
	lowerFile := strings.ToLower(filename)
	lowerQuery := strings.ToLower(query)

	var score float64
	for _, w := range queryWords(query) {
		if strings.Contains(lowerFile, w) {
			score += 0.4
		}
	}
	for _, kw := range roleKeywords {
		if strings.Contains(lowerQuery, kw) && strings.Contains(lowerFile, kw) {
			score += 0.5
		}
	}
	for _, core := range coreFiles {
		if strings.EqualFold(filename, core) {
			score += 0.3
			break
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// PrioritizeFiles orders files by descending relevance. When more than five
// files are in play, files scoring below 0.3 are dropped.
func PrioritizeFiles(query string, files []string, coreFiles []string) []string {
	type scored struct {
		file  string
		score float64
	}
	ranked := make([]scored, 0, len(files))
	for _, f := range files {
		ranked = append(ranked, scored{file: f, score: ScoreFile(query, f, coreFiles)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	drop := len(ranked) > 5
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if drop && r.score < 0.3 {
			continue
		}
		out = append(out, r.file)
	}
	return out
}

// =============================================================================
// PRUNING
// =============================================================================

// Item is one candidate for pruning: text plus a relevance score.
type Item struct {
	Text  string
	Score float64
}

// Prune greedily admits the highest-scoring items that fit the budget,
// charging each admitted item. Items that do not fit are skipped; the scan
// continues so smaller items can still use the remaining headroom.
func Prune(b *Budget, items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var kept []Item
	for _, item := range sorted {
		if b.AddContent(item.Text) {
			kept = append(kept, item)
		}
	}
	logging.Get(logging.CategoryRetrieval).Debug("pruned %d items to %d (used %d/%d tokens)",
		len(items), len(kept), b.Used(), b.Max())
	return kept
}
