package brains

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cortex/internal/perception"
	"cortex/internal/types"
)

// Specialist stage orders. Gaps leave room for profile overrides.
const (
	OrderArchitect = 40
	OrderDebugger  = 50
	OrderExplainer = 60
	OrderHistorian = 70
)

// llmSpecialist is the shared shape of the model-backed specialists: a
// system prompt applied over the assembled context.
type llmSpecialist struct {
	baseStage
	systemPrompt string
}

// Run implements Stage for every LLM-backed specialist.
func (s *llmSpecialist) Run(ctx context.Context, rc *RequestContext) types.StageResult {
	start := time.Now()
	prompt := buildPrompt(rc)

	text, err := perception.Call(ctx, rc.Client, s.systemPrompt, prompt, perception.CallParams{
		ToolNames: rc.Pad.ApprovedTools,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Fail(s.name, types.FailCancelled, "%s cancelled: %v", s.name, err)
		}
		return types.Fail(s.name, types.FailStage, "%s call failed: %v", s.name, err)
	}

	out := types.StageOutput{
		StageName: s.name,
		Text:      strings.TrimSpace(text),
		Quality:   scoreResponse(text, rc.Pad.CodeCtx),
		TokensIn:  len(prompt) / 4,
		TokensOut: len(text) / 4,
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	if rc.Memory != nil {
		rc.Memory.AddStageOutput(out.Text)
	}
	return types.OK(out)
}

// buildPrompt assembles the user prompt: query, retrieved context, tool
// results, and conversation recall, in that order.
func buildPrompt(rc *RequestContext) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(rc.Pad.UserQuery)
	sb.WriteString("\n")

	if cc := rc.Pad.CodeCtx; !cc.IsEmpty() {
		sb.WriteString("\nRelevant file summaries:\n")
		for _, d := range cc.FileSummaries {
			fmt.Fprintf(&sb, "- %s: %s\n", d.Filename(), d.Text)
		}
		if len(cc.CodeChunks) > 0 {
			sb.WriteString("\nCode:\n")
			for _, d := range cc.CodeChunks {
				fmt.Fprintf(&sb, "// %s\n%s\n", d.Filename(), d.Text)
			}
		}
	}

	if v, ok := rc.Pad.Get("toolResults"); ok {
		if results, ok := v.(map[string]string); ok && len(results) > 0 {
			sb.WriteString("\nTool results:\n")
			for name, out := range results {
				fmt.Fprintf(&sb, "- %s: %s\n", name, out)
			}
		}
	}

	if len(rc.Recall.Recent) > 0 || len(rc.Recall.LongTerm) > 0 {
		sb.WriteString("\nEarlier in this conversation:\n")
		for _, ex := range rc.Recall.Recent {
			fmt.Fprintf(&sb, "Q: %s\n", ex.UserQuery)
		}
		for _, e := range rc.Recall.LongTerm {
			fmt.Fprintf(&sb, "(remembered) Q: %s\n", e.UserQuery)
		}
	}
	return sb.String()
}

// scoreResponse estimates output quality: grounding in the retrieved files
// raises it, an empty or trivial response sinks it.
func scoreResponse(text string, cc *types.CodeContext) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	score := 0.6
	if len(trimmed) < 40 {
		score = 0.3
	}
	if !cc.IsEmpty() {
		lower := strings.ToLower(trimmed)
		for _, f := range cc.RelevantFiles {
			base := strings.TrimSuffix(f, ".java")
			base = strings.TrimSuffix(base, ".go")
			if strings.Contains(lower, strings.ToLower(base)) {
				score += 0.15
			}
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// NewArchitect explains structure and component relationships.
func NewArchitect() Stage {
	return &llmSpecialist{
		baseStage: baseStage{
			name:        "Architect",
			description: "explains architecture, structure, component boundaries, and how files depend on each other",
			order:       OrderArchitect,
		},
		systemPrompt: "You are a software architect. Explain structure and component relationships using only the provided context. Be concrete about which file owns what.",
	}
}

// NewDebugger analyzes errors and failure paths.
func NewDebugger() Stage {
	return &llmSpecialist{
		baseStage: baseStage{
			name:        "Debugger",
			description: "analyzes errors, exceptions, stack traces, and failure propagation paths",
			order:       OrderDebugger,
		},
		systemPrompt: "You are a debugging specialist. Trace the failure path through the provided code, name the likely fault site, and suggest what to inspect next.",
	}
}

// NewExplainer walks through implementations method by method.
func NewExplainer() Stage {
	return &llmSpecialist{
		baseStage: baseStage{
			name:        "Explainer",
			description: "explains how a method or function is implemented, step by step",
			order:       OrderExplainer,
		},
		systemPrompt: "You explain implementations. Walk through the provided code in execution order and describe what each step does.",
	}
}

// NewHistorian relates the current question to earlier exchanges.
func NewHistorian() Stage {
	return &llmSpecialist{
		baseStage: baseStage{
			name:        "Historian",
			description: "relates the current question to earlier questions and remembered context from this conversation",
			order:       OrderHistorian,
		},
		systemPrompt: "You connect the current question to the conversation history provided. Point out what was already asked and how this question differs.",
	}
}

// DefaultSpecialists returns the built-in specialist set, profile-adjusted.
func DefaultSpecialists(profile *Profile) []Stage {
	stages := []Stage{NewArchitect(), NewDebugger(), NewExplainer(), NewHistorian()}
	if profile != nil {
		stages = profile.Apply(stages)
	}
	return stages
}
