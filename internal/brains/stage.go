// Package brains defines the stage ("brain") contract, the core chain
// (Conductor, ContextFetcher, ToolGate, Judge, Voice), the specialist
// stages, and the registry that selects specialists by nearest-neighbor
// search over their descriptions.
package brains

import (
	"context"

	"cortex/internal/memory"
	"cortex/internal/perception"
	"cortex/internal/plan"
	"cortex/internal/quality"
	"cortex/internal/retrieval"
	"cortex/internal/supervisor"
	"cortex/internal/tools"
	"cortex/internal/types"
)

// Stage order bands. Core stages occupy the fixed prefix and suffix;
// specialists run in between in ascending order.
const (
	OrderConductor      = 10
	OrderContextFetcher = 20
	OrderToolGate       = 30
	OrderSpecialistMin  = 40
	OrderJudge          = 90
	OrderVoice          = 100
)

// Core stage names.
const (
	StageConductor      = "Conductor"
	StageContextFetcher = "ContextFetcher"
	StageToolGate       = "ToolGate"
	StageJudge          = "Judge"
	StageVoice          = "Voice"
)

// Stage is one named, ordered unit of work in the chain. Run reads and
// writes the request's scratchpad through the RequestContext and must honor
// cancellation.
type Stage interface {
	Name() string
	Description() string
	Order() int
	Run(ctx context.Context, rc *RequestContext) types.StageResult
}

// RequestContext carries the per-request state a stage may touch: the
// scratchpad, the provider client, and the user's memories. It is passed
// explicitly; there is no ambient request state.
type RequestContext struct {
	Pad    *types.ScratchPad
	Client perception.LLMClient
	Memory *memory.WorkingMemory
	Recall memory.Recall
}

// Deps bundles the long-lived services the core stages are built over.
type Deps struct {
	Planner       *plan.Planner
	Retriever     *retrieval.Retriever
	Catalog       *tools.Catalog
	Gate          *tools.Gate
	Supervisor    *supervisor.Supervisor
	Consistency   *quality.ConsistencyChecker
	Hallucination *quality.HallucinationDetector
}

// baseStage carries the identity every stage shares. Specialist orders and
// descriptions can be overridden by a brains profile before registration.
type baseStage struct {
	name        string
	description string
	order       int
}

func (b *baseStage) Name() string        { return b.name }
func (b *baseStage) Description() string { return b.description }
func (b *baseStage) Order() int          { return b.order }

func (b *baseStage) setOrder(order int)      { b.order = order }
func (b *baseStage) setDescription(d string) { b.description = d }

// profiled is implemented by stages whose order/description a profile may
// override.
type profiled interface {
	setOrder(int)
	setDescription(string)
}
