package brains

import (
	"context"
	"errors"
	"strings"
	"time"

	"cortex/internal/logging"
	"cortex/internal/tools"
	"cortex/internal/types"
)

// =============================================================================
// CONDUCTOR
// =============================================================================

// Conductor opens every chain: it builds the search plan and declares which
// of the cataloged tools the request intends to use. The intent set is an
// upper bound; ToolGate enforces it against what discovery actually suggests.
type Conductor struct {
	baseStage
	deps Deps
}

// NewConductor creates the Conductor stage.
func NewConductor(deps Deps) *Conductor {
	return &Conductor{
		baseStage: baseStage{name: StageConductor, description: "builds the search plan and approves tool intent", order: OrderConductor},
		deps:      deps,
	}
}

// Run implements Stage.
func (c *Conductor) Run(ctx context.Context, rc *RequestContext) types.StageResult {
	if err := ctx.Err(); err != nil {
		return types.Fail(c.name, types.FailCancelled, "conductor cancelled: %v", err)
	}

	sp := c.deps.Planner.BuildPlan(rc.Pad.UserQuery)
	rc.Pad.Plan = sp
	if rc.Memory != nil {
		rc.Memory.AddIntent(string(sp.Strategy))
		rc.Memory.AddTone(detectTone(rc.Pad.UserQuery))
	}

	// Tool intent: any cataloged tool whose name tokens appear in the query.
	queryTokens := tokenize(rc.Pad.UserQuery)
	var approved []string
	for _, name := range c.deps.Catalog.Names() {
		for _, part := range strings.Split(name, "_") {
			if len(part) >= 3 && queryTokens[part] {
				approved = append(approved, name)
				break
			}
		}
	}
	rc.Pad.ApprovedTools = approved
	sp.RequiredTools = approved

	logging.Brains("conductor: strategy=%s complexity=%d toolIntent=%v", sp.Strategy, sp.Complexity, approved)
	return types.OK(types.StageOutput{StageName: c.name})
}

// detectTone is a coarse classifier over the user's phrasing.
func detectTone(query string) string {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "urgent") || strings.Contains(lower, "asap") || strings.HasSuffix(strings.TrimSpace(query), "!"):
		return "urgent"
	case strings.Contains(lower, "please") || strings.Contains(lower, "could you"):
		return "polite"
	case strings.Contains(lower, "?"):
		return "inquisitive"
	default:
		return "neutral"
	}
}

func tokenize(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(tok, ".,!?\"'")] = true
	}
	return set
}

// =============================================================================
// CONTEXT FETCHER
// =============================================================================

// ContextFetcher retrieves the code context for the query and discovers
// candidate tools by nearest-neighbor search over the tool index.
type ContextFetcher struct {
	baseStage
	deps Deps
}

// NewContextFetcher creates the ContextFetcher stage.
func NewContextFetcher(deps Deps) *ContextFetcher {
	return &ContextFetcher{
		baseStage: baseStage{name: StageContextFetcher, description: "retrieves code context and discovers candidate tools", order: OrderContextFetcher},
		deps:      deps,
	}
}

// Run implements Stage. Retrieval failure degrades to an empty context; the
// chain continues without code grounding.
func (f *ContextFetcher) Run(ctx context.Context, rc *RequestContext) types.StageResult {
	codeCtx, err := f.deps.Retriever.Retrieve(ctx, rc.Pad.UserQuery)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Fail(f.name, types.FailCancelled, "retrieval cancelled: %v", err)
		}
		return types.Fail(f.name, types.FailStage, "retrieval failed: %v", err)
	}
	rc.Pad.CodeCtx = codeCtx

	suggested, err := f.deps.Catalog.Discover(ctx, rc.Pad.UserQuery, DefaultSpecialistTopN)
	if err != nil {
		logging.Brains("tool discovery failed, continuing without tools: %v", err)
		suggested = nil
	}
	rc.Pad.SuggestedTools = suggested

	return types.OK(types.StageOutput{StageName: f.name})
}

// =============================================================================
// TOOL GATE
// =============================================================================

// ToolGateStage enforces the allow-list: the Conductor's intent is filtered
// to discovered suggestions, arguments are validated with family fixups, and
// the surviving invocations execute concurrently.
type ToolGateStage struct {
	baseStage
	deps Deps
}

// NewToolGate creates the ToolGate stage.
func NewToolGate(deps Deps) *ToolGateStage {
	return &ToolGateStage{
		baseStage: baseStage{name: StageToolGate, description: "enforces the tool allow-list and validates arguments", order: OrderToolGate},
		deps:      deps,
	}
}

// Run implements Stage.
func (g *ToolGateStage) Run(ctx context.Context, rc *RequestContext) types.StageResult {
	approved := g.deps.Gate.Approve(rc.Pad.SuggestedTools, rc.Pad.ApprovedTools)
	rc.Pad.ApprovedTools = approved
	if len(approved) == 0 {
		return types.OK(types.StageOutput{StageName: g.name})
	}

	invocations := make([]tools.Invocation, 0, len(approved))
	for _, name := range approved {
		tool, ok := g.deps.Catalog.Get(name)
		if !ok || tool.Run == nil {
			continue
		}
		invocations = append(invocations, tools.Invocation{Name: name})
	}
	if len(invocations) == 0 {
		return types.OK(types.StageOutput{StageName: g.name})
	}

	results, err := g.deps.Gate.ExecuteAll(ctx, invocations, rc.Pad.UserQuery)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Fail(g.name, types.FailCancelled, "tool execution cancelled: %v", err)
		}
		return types.Fail(g.name, types.FailStage, "tool execution failed: %v", err)
	}
	rc.Pad.Set("toolResults", results)
	logging.Tools("executed %d tools for trace %s", len(results), rc.Pad.TraceID)
	return types.OK(types.StageOutput{StageName: g.name})
}

// =============================================================================
// JUDGE
// =============================================================================

// Judge merges the accumulated outputs and scores them: supervisor merge
// quality, consistency score, and hallucination trust fold into one number.
type Judge struct {
	baseStage
	deps Deps
}

// NewJudge creates the Judge stage.
func NewJudge(deps Deps) *Judge {
	return &Judge{
		baseStage: baseStage{name: StageJudge, description: "merges stage outputs and scores response quality", order: OrderJudge},
		deps:      deps,
	}
}

// Run implements Stage. The computed quality rides on the stage output; the
// scheduler reads it to decide on another iteration.
func (j *Judge) Run(ctx context.Context, rc *RequestContext) types.StageResult {
	if err := ctx.Err(); err != nil {
		return types.Fail(j.name, types.FailCancelled, "judge cancelled: %v", err)
	}
	start := time.Now()

	merged, avgQuality := j.deps.Supervisor.Merge(rc.Pad.ConversationID)
	rc.Pad.MergedOutput = merged

	consistency := j.deps.Consistency.Check(merged)
	hallucination := j.deps.Hallucination.Detect(merged)
	rc.Pad.Consistency = consistency
	rc.Pad.Hallucination = hallucination

	quality := 0.5*avgQuality + 0.3*consistency.Score + 0.2*(1-hallucination.Score)
	if !hallucination.Trusted && quality > 0.5 {
		quality = 0.5
	}
	if merged == "" {
		quality = 0
	}

	logging.Brains("judge: merged=%.2f consistency=%.2f hallucination=%.2f -> quality=%.2f",
		avgQuality, consistency.Score, hallucination.Score, quality)
	return types.OK(types.StageOutput{
		StageName: j.name,
		Quality:   quality,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

// =============================================================================
// VOICE
// =============================================================================

// Voice closes the chain: it normalizes the merged text into the final
// response. Normalization is deterministic; no model call.
type Voice struct {
	baseStage
}

// NewVoice creates the Voice stage.
func NewVoice() *Voice {
	return &Voice{
		baseStage: baseStage{name: StageVoice, description: "normalizes the merged output into the final response", order: OrderVoice},
	}
}

// Run implements Stage.
func (v *Voice) Run(ctx context.Context, rc *RequestContext) types.StageResult {
	if err := ctx.Err(); err != nil {
		return types.Fail(v.name, types.FailCancelled, "voice cancelled: %v", err)
	}
	start := time.Now()

	text := normalize(rc.Pad.MergedOutput)
	quality := 0.0
	for _, out := range rc.Pad.Outputs() {
		if out.StageName == StageJudge {
			quality = out.Quality
		}
	}
	return types.OK(types.StageOutput{
		StageName: v.name,
		Text:      text,
		Quality:   quality,
		TokensOut: len(text) / 4,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

// normalize trims trailing space per line and collapses runs of blank lines.
func normalize(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
