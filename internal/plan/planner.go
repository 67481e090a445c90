// Package plan classifies a query into a SearchPlan: retrieval strategy,
// top-K, hop depth, reverse-dependency flag, and token budget. The rules are
// ordered; the first match wins.
package plan

import (
	"regexp"
	"strings"

	"cortex/internal/logging"
	"cortex/internal/types"
)

// Keyword tables per strategy rule. Order matters: entity detection runs
// first, then these in sequence.
var (
	errorWords  = []string{"error", "exception", "fail", "failure", "crash", "stack trace", "stacktrace", "panic"}
	configWords = []string{"config", "configuration", "bean", "setup", "property", "settings"}
	methodWords = []string{"how does", "implement", "implementation", "method", "function", "logic"}
	archWords   = []string{"architecture", "design", "structure", "overview", "component", "layer"}
)

// identifier shapes: CamelCase or snake_case with at least two segments.
var (
	camelCasePattern = regexp.MustCompile(`^[A-Z][a-z0-9]+(?:[A-Z][a-zA-Z0-9]*)+$`)
	snakeCasePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(?:_[a-z0-9]+)+$`)
	tokenSplitter    = regexp.MustCompile(`[^A-Za-z0-9_.]+`)
)

// Confidence levels: clean keyword/entity match vs the similarity default.
const (
	confidenceMatched = 0.85
	confidenceDefault = 0.5
)

// Planner builds SearchPlans. KnownFiles lets entity detection recognize
// exact file basenames from the indexed tree.
type Planner struct {
	maxContextTokens       int
	reservedResponseTokens int
	knownFiles             func() []string
}

// New creates a planner. knownFiles may be nil.
func New(maxContextTokens, reservedResponseTokens int, knownFiles func() []string) *Planner {
	return &Planner{
		maxContextTokens:       maxContextTokens,
		reservedResponseTokens: reservedResponseTokens,
		knownFiles:             knownFiles,
	}
}

// BuildPlan classifies the query. It is a pure function of the query text
// (plus the known-file list); the same query always yields the same plan.
func (p *Planner) BuildPlan(query string) *types.SearchPlan {
	sp := &types.SearchPlan{
		OriginalQuery: query,
		TokenBudget:   p.maxContextTokens - p.reservedResponseTokens,
	}
	lower := strings.ToLower(query)

	switch {
	case p.detectEntities(query, sp):
		sp.Strategy = types.StrategyEntity
		sp.TopK, sp.MaxHops, sp.IncludeReverseDeps = 4, 1, true
		sp.Confidence = confidenceMatched
		sp.Complexity = 2
	case containsAny(lower, errorWords):
		sp.Strategy = types.StrategyErrorTrace
		sp.TopK, sp.MaxHops, sp.IncludeReverseDeps = 6, 2, true
		sp.Confidence = confidenceMatched
		sp.Complexity = 3
	case containsAny(lower, configWords):
		sp.Strategy = types.StrategyConfigChain
		sp.TopK, sp.MaxHops, sp.IncludeReverseDeps = 4, 1, false
		sp.Confidence = confidenceMatched
		sp.Complexity = 2
	case containsAny(lower, methodWords):
		sp.Strategy = types.StrategyMethod
		sp.TopK, sp.MaxHops, sp.IncludeReverseDeps = 6, 1, false
		sp.Confidence = confidenceMatched
		sp.Complexity = 2
	case containsAny(lower, archWords):
		sp.Strategy = types.StrategyDependency
		sp.TopK, sp.MaxHops, sp.IncludeReverseDeps = 6, 2, true
		sp.Confidence = confidenceMatched
		sp.Complexity = 3
	default:
		sp.Strategy = types.StrategySimilarity
		sp.TopK, sp.MaxHops, sp.IncludeReverseDeps = 5, 1, false
		sp.Confidence = confidenceDefault
		sp.Complexity = 1
	}

	logging.Plan("query classified: strategy=%s topK=%d hops=%d entities=%v confidence=%.2f",
		sp.Strategy, sp.TopK, sp.MaxHops, sp.TargetEntities, sp.Confidence)
	return sp
}

// detectEntities scans the query for class-like identifiers or known file
// basenames. Identifier tokenization (not plain substring matching) keeps
// common words from being mistaken for entities.
func (p *Planner) detectEntities(query string, sp *types.SearchPlan) bool {
	known := make(map[string]string) // lowercase basename (no ext) -> filename
	if p.knownFiles != nil {
		for _, f := range p.knownFiles() {
			base := f
			if i := strings.LastIndexByte(base, '/'); i >= 0 {
				base = base[i+1:]
			}
			name := base
			if i := strings.LastIndexByte(name, '.'); i > 0 {
				name = name[:i]
			}
			known[strings.ToLower(name)] = base
		}
	}

	seen := make(map[string]bool)
	for _, tok := range tokenSplitter.Split(query, -1) {
		tok = strings.Trim(tok, "._")
		if tok == "" || seen[tok] {
			continue
		}
		if file, ok := known[strings.ToLower(strings.TrimSuffix(tok, fileExt(tok)))]; ok {
			seen[tok] = true
			sp.TargetEntities = append(sp.TargetEntities, strings.TrimSuffix(tok, fileExt(tok)))
			sp.StartingFiles = append(sp.StartingFiles, file)
			continue
		}
		if camelCasePattern.MatchString(tok) || snakeCasePattern.MatchString(tok) {
			seen[tok] = true
			sp.TargetEntities = append(sp.TargetEntities, tok)
		}
	}
	return len(sp.TargetEntities) > 0
}

func fileExt(tok string) string {
	if i := strings.LastIndexByte(tok, '.'); i > 0 {
		return tok[i:]
	}
	return ""
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
