// Package types defines the shared value types passed between the planner,
// retriever, scheduler, and supervisor. Keeping them here avoids import
// cycles between the pipeline packages.
package types

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

// Metadata keys required on indexed documents.
const (
	MetaFilename  = "filename"
	MetaChunkType = "chunk_type"
	MetaClass     = "class"
	MetaMethod    = "method"
	MetaPackage   = "package"
)

// Chunk types stored in the vector index.
const (
	ChunkClassOverview = "class_overview"
	ChunkMethodImpl    = "method_implementation"
	ChunkFileSummary   = "file-summary"
)

// Document is one indexed unit: a class overview, a method implementation,
// or an LLM-generated file summary.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Filename returns the filename metadata, or "" if absent.
func (d Document) Filename() string {
	return d.Metadata[MetaFilename]
}

// ChunkType returns the chunk_type metadata, or "" if absent.
func (d Document) ChunkType() string {
	return d.Metadata[MetaChunkType]
}

// =============================================================================
// SEARCH PLAN
// =============================================================================

// Strategy selects how the retriever executes a query.
type Strategy string

const (
	StrategySimilarity   Strategy = "similarity_search"
	StrategyEntity       Strategy = "entity_centered"
	StrategyDependency   Strategy = "dependency_graph"
	StrategyMethod       Strategy = "method_focused"
	StrategyErrorTrace   Strategy = "error_trace"
	StrategyConfigChain  Strategy = "configuration_chain"
)

// SearchPlan is the planner's immutable per-request output. It parameterizes
// summary retrieval, graph expansion, and the token budget.
type SearchPlan struct {
	OriginalQuery      string
	Strategy           Strategy
	TopK               int // 1..64
	MaxHops            int // 0..4
	IncludeReverseDeps bool
	TokenBudget        int
	TargetEntities     []string
	StartingFiles      []string
	Confidence         float64

	// Complexity and RequiredTools gate the scheduler's second ReAct pass.
	Complexity    int
	RequiredTools []string
}

// =============================================================================
// CODE CONTEXT
// =============================================================================

// CodeContext is the retriever's output: summaries first, then chunks, plus
// the file set they came from.
type CodeContext struct {
	FileSummaries []Document
	CodeChunks    []Document
	RelevantFiles []string
	Query         string
	TokensUsed    int
	Strategy      Strategy
	Confidence    float64
}

// IsEmpty reports whether the context carries no retrieved content.
func (c *CodeContext) IsEmpty() bool {
	return c == nil || (len(c.FileSummaries) == 0 && len(c.CodeChunks) == 0)
}

// =============================================================================
// DEPENDENCY GRAPH
// =============================================================================

// DependencyGraph holds forward and reverse file-to-file dependencies.
// Invariant: f ∈ Forward[g] ⇔ g ∈ Reverse[f]. Adjacency is stored as plain
// maps keyed by filename; nodes never reference each other directly, so
// cyclic dependencies are harmless.
type DependencyGraph struct {
	mu      sync.RWMutex
	forward map[string]map[string]bool
	reverse map[string]map[string]bool
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		forward: make(map[string]map[string]bool),
		reverse: make(map[string]map[string]bool),
	}
}

// AddDependency records "from depends on to". Self-edges are ignored.
func (g *DependencyGraph) AddDependency(from, to string) {
	if from == to || from == "" || to == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forward[from] == nil {
		g.forward[from] = make(map[string]bool)
	}
	g.forward[from][to] = true
	if g.reverse[to] == nil {
		g.reverse[to] = make(map[string]bool)
	}
	g.reverse[to][from] = true
}

// ForwardDeps returns the files that file depends on.
func (g *DependencyGraph) ForwardDeps(file string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keys(g.forward[file])
}

// ReverseDeps returns the files that depend on file.
func (g *DependencyGraph) ReverseDeps(file string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keys(g.reverse[file])
}

// Files returns every file that appears in the graph.
func (g *DependencyGraph) Files() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool)
	for f := range g.forward {
		seen[f] = true
	}
	for f := range g.reverse {
		seen[f] = true
	}
	return keys(seen)
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// =============================================================================
// STAGE RESULTS
// =============================================================================

// StageOutput is what one brain produced for one request iteration.
type StageOutput struct {
	StageName string
	Text      string
	Quality   float64 // 0..1
	TokensIn  int
	TokensOut int
	ElapsedMs int64
}

// FailKind classifies a stage failure for the scheduler's degrade logic.
type FailKind string

const (
	FailStage           FailKind = "stage_failure"
	FailBudgetExceeded  FailKind = "budget_exceeded"
	FailCancelled       FailKind = "cancelled"
	FailInvalidProvider FailKind = "invalid_provider"
)

// StageFailure describes why a stage produced no usable output.
type StageFailure struct {
	Kind    FailKind
	Message string
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// StageResult is the explicit ok/fail result of running one stage. The
// scheduler pattern-matches on Failure instead of unwinding.
type StageResult struct {
	Output  StageOutput
	Failure *StageFailure
}

// OK wraps a successful stage output.
func OK(out StageOutput) StageResult {
	return StageResult{Output: out}
}

// Fail wraps a stage failure, preserving the stage name for observability.
func Fail(stage string, kind FailKind, format string, args ...interface{}) StageResult {
	return StageResult{
		Output:  StageOutput{StageName: stage},
		Failure: &StageFailure{Kind: kind, Message: fmt.Sprintf(format, args...)},
	}
}

// IsOK reports whether the stage produced a usable output.
func (r StageResult) IsOK() bool { return r.Failure == nil }

// =============================================================================
// QUALITY REPORTS
// =============================================================================

// IssueSeverity tags consistency and hallucination findings.
type IssueSeverity string

const (
	SeverityLow    IssueSeverity = "LOW"
	SeverityMedium IssueSeverity = "MEDIUM"
	SeverityHigh   IssueSeverity = "HIGH"
)

// QualityIssue is one finding from a quality gate.
type QualityIssue struct {
	Severity    IssueSeverity
	Description string
}

// ConsistencyReport is the consistency checker's result over merged text.
type ConsistencyReport struct {
	Score  float64 // 0..1, higher is more consistent
	Issues []QualityIssue
}

// HallucinationReport is the hallucination detector's result.
type HallucinationReport struct {
	Score   float64 // 0..1, higher is worse
	Trusted bool
	Issues  []QualityIssue
}

// HighCount returns the number of HIGH severity issues.
func (h *HallucinationReport) HighCount() int {
	n := 0
	for _, issue := range h.Issues {
		if issue.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// =============================================================================
// SCRATCHPAD
// =============================================================================

// ScratchPad is the request-scoped slot bag shared by all stages of one
// request. Stages run one at a time per request, so slot access needs no
// locking for the core chain; the mutex covers stage-internal fan-out.
type ScratchPad struct {
	mu sync.RWMutex

	TraceID        string
	Provider       string
	ConversationID string
	UserID         string
	Iteration      int
	UserQuery      string

	Plan           *SearchPlan
	SuggestedTools []string
	ApprovedTools  []string
	CodeCtx        *CodeContext
	StageOutputs   []StageOutput
	MergedOutput   string
	Consistency    *ConsistencyReport
	Hallucination  *HallucinationReport

	CreatedAt time.Time

	extra map[string]interface{}
}

// NewScratchPad creates a scratchpad for one request.
func NewScratchPad(traceID, provider, conversationID, userQuery string) *ScratchPad {
	return &ScratchPad{
		TraceID:        traceID,
		Provider:       provider,
		ConversationID: conversationID,
		UserQuery:      userQuery,
		CreatedAt:      time.Now(),
		extra:          make(map[string]interface{}),
	}
}

// Set stores an undeclared slot. Declared slots use the struct fields.
func (s *ScratchPad) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra[key] = value
}

// Get reads an undeclared slot.
func (s *ScratchPad) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.extra[key]
	return v, ok
}

// AppendOutput records a stage output on the pad.
func (s *ScratchPad) AppendOutput(out StageOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StageOutputs = append(s.StageOutputs, out)
}

// Outputs returns a snapshot of the recorded stage outputs.
func (s *ScratchPad) Outputs() []StageOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StageOutput, len(s.StageOutputs))
	copy(out, s.StageOutputs)
	return out
}

// Release clears all slots. The scheduler calls this in a deferred cleanup so
// request state never outlives the request.
func (s *ScratchPad) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Plan = nil
	s.SuggestedTools = nil
	s.ApprovedTools = nil
	s.CodeCtx = nil
	s.StageOutputs = nil
	s.MergedOutput = ""
	s.Consistency = nil
	s.Hallucination = nil
	s.extra = make(map[string]interface{})
}
