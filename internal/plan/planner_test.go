package plan

import (
	"testing"

	"cortex/internal/types"
)

func newTestPlanner() *Planner {
	known := func() []string {
		return []string{"src/CacheManager.java", "src/UserService.java", "src/billing/Invoice.java"}
	}
	return New(8000, 1000, known)
}

func TestBuildPlan_EntityCentered(t *testing.T) {
	p := newTestPlanner()
	sp := p.BuildPlan("explain CacheManager")

	if sp.Strategy != types.StrategyEntity {
		t.Fatalf("strategy = %s, want entity_centered", sp.Strategy)
	}
	if len(sp.TargetEntities) != 1 || sp.TargetEntities[0] != "CacheManager" {
		t.Fatalf("entities = %v", sp.TargetEntities)
	}
	if sp.TopK != 4 || sp.MaxHops != 1 || !sp.IncludeReverseDeps {
		t.Fatalf("params = topK=%d hops=%d rev=%v", sp.TopK, sp.MaxHops, sp.IncludeReverseDeps)
	}
	if sp.Confidence != 0.85 {
		t.Fatalf("confidence = %f", sp.Confidence)
	}
	if len(sp.StartingFiles) == 0 || sp.StartingFiles[0] != "CacheManager.java" {
		t.Fatalf("starting files = %v", sp.StartingFiles)
	}
}

func TestBuildPlan_SnakeCaseEntity(t *testing.T) {
	p := newTestPlanner()
	sp := p.BuildPlan("what does compute_corpus_hash do")
	if sp.Strategy != types.StrategyEntity {
		t.Fatalf("strategy = %s, want entity_centered", sp.Strategy)
	}
	if sp.TargetEntities[0] != "compute_corpus_hash" {
		t.Fatalf("entities = %v", sp.TargetEntities)
	}
}

func TestBuildPlan_RuleOrder(t *testing.T) {
	p := newTestPlanner()
	cases := []struct {
		query    string
		strategy types.Strategy
		topK     int
		hops     int
		rev      bool
	}{
		{"why do I get a null pointer exception", types.StrategyErrorTrace, 6, 2, true},
		{"where is the bean setup for the datasource", types.StrategyConfigChain, 4, 1, false},
		{"how does the retry logic get implemented", types.StrategyMethod, 6, 1, false},
		{"describe the overall architecture", types.StrategyDependency, 6, 2, true},
		{"tell me about payments", types.StrategySimilarity, 5, 1, false},
	}
	for _, tc := range cases {
		sp := p.BuildPlan(tc.query)
		if sp.Strategy != tc.strategy {
			t.Fatalf("%q: strategy = %s, want %s", tc.query, sp.Strategy, tc.strategy)
		}
		if sp.TopK != tc.topK || sp.MaxHops != tc.hops || sp.IncludeReverseDeps != tc.rev {
			t.Fatalf("%q: params topK=%d hops=%d rev=%v", tc.query, sp.TopK, sp.MaxHops, sp.IncludeReverseDeps)
		}
	}
}

func TestBuildPlan_DefaultConfidenceAndBudget(t *testing.T) {
	p := newTestPlanner()
	sp := p.BuildPlan("tell me about payments")
	if sp.Confidence != 0.5 {
		t.Fatalf("default confidence = %f", sp.Confidence)
	}
	if sp.TokenBudget != 7000 {
		t.Fatalf("token budget = %d, want 7000", sp.TokenBudget)
	}
}

func TestBuildPlan_EmptyQueryFallsThrough(t *testing.T) {
	p := newTestPlanner()
	sp := p.BuildPlan("")
	if sp.Strategy != types.StrategySimilarity {
		t.Fatalf("empty query strategy = %s", sp.Strategy)
	}
	if len(sp.TargetEntities) != 0 {
		t.Fatalf("empty query produced entities: %v", sp.TargetEntities)
	}
}

func TestBuildPlan_Deterministic(t *testing.T) {
	p := newTestPlanner()
	a := p.BuildPlan("explain CacheManager")
	b := p.BuildPlan("explain CacheManager")
	if a.Strategy != b.Strategy || a.TopK != b.TopK || a.Confidence != b.Confidence {
		t.Fatalf("planner not deterministic: %+v vs %+v", a, b)
	}
}
