// Package core runs the brain chain. The Scheduler turns one request into
// one response: it normalizes the provider, assembles the per-request
// context, walks the stages in order, and decides whether the chain earns a
// second ReAct pass.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cortex/internal/brains"
	"cortex/internal/config"
	"cortex/internal/logging"
	"cortex/internal/memory"
	"cortex/internal/perception"
	"cortex/internal/transparency"
	"cortex/internal/types"
	"cortex/internal/usage"
)

// ErrInvalidProvider is returned when the requested provider matches no
// known alias. Unlike stage failures this is fatal: there is no client to
// run the chain with.
var ErrInvalidProvider = errors.New("invalid provider")

// Request is one user turn entering the engine.
type Request struct {
	Provider       string
	Message        string
	ConversationID string // Empty derives a minute-quantized id per user.
	UserID         string
}

// Response is the engine's answer, partial or complete.
type Response struct {
	TraceID        string
	ConversationID string
	Provider       string
	Text           string
	Quality        float64
	ToolsUsed      []string
	Iterations     int
	TokensUsed     int
	ElapsedMs      int64
	Partial        bool
	PartialReason  string
}

// Options tunes the scheduler loop. Zero values take the defaults.
type Options struct {
	MaxIterations    int     // ReAct pass ceiling, default 2.
	SpecialistTopN   int     // Specialists selected per request, default 3.
	QualityThreshold float64 // Judge score that ends the loop, default 0.75.
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 2
	}
	if o.SpecialistTopN <= 0 {
		o.SpecialistTopN = brains.DefaultSpecialistTopN
	}
	if o.QualityThreshold <= 0 {
		o.QualityThreshold = 0.75
	}
	return o
}

// Services bundles the long-lived components the scheduler drives.
type Services struct {
	Registry      *brains.Registry
	Brains        brains.Deps
	LLM           config.LLMConfig
	Working       *memory.WorkingSet
	Conversations *memory.ConversationMemory
	Usage         *usage.Service
	Recorder      *transparency.Recorder
}

// Scheduler owns the request loop. One instance serves all requests;
// everything request-scoped lives on the scratchpad.
type Scheduler struct {
	sv   Services
	opts Options

	mu        sync.Mutex
	clients   map[perception.Provider]perception.LLMClient
	newClient func(perception.Provider) (perception.LLMClient, error)
	now       func() time.Time
}

// New creates a scheduler over the given services.
func New(sv Services, opts Options) *Scheduler {
	s := &Scheduler{
		sv:      sv,
		opts:    opts.withDefaults(),
		clients: make(map[perception.Provider]perception.LLMClient),
		now:     time.Now,
	}
	s.newClient = func(p perception.Provider) (perception.LLMClient, error) {
		return perception.NewClient(p, sv.LLM)
	}
	return s
}

// Handle runs one request through the chain. A cancelled or expired context
// yields a partial response labelled "timeout" rather than an error; only a
// request that cannot start at all (empty message, unknown provider) errors.
func (s *Scheduler) Handle(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, errors.New("empty request message")
	}
	provider, ok := perception.Normalize(req.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, req.Provider)
	}
	client, err := s.clientFor(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProvider, err)
	}

	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}
	convID := req.ConversationID
	if convID == "" {
		convID = deriveConversationID(userID, s.now())
	}
	traceID := uuid.NewString()

	pad := types.NewScratchPad(traceID, string(provider), convID, message)
	pad.UserID = userID
	timeline := transparency.NewTimeline()

	wm := s.sv.Working.For(userID)
	wm.AddUserMessage(message)

	rc := &brains.RequestContext{
		Pad:    pad,
		Client: client,
		Memory: wm,
		Recall: s.sv.Conversations.Retrieve(convID, message),
	}
	resp := &Response{TraceID: traceID, ConversationID: convID, Provider: string(provider)}

	// Cleanup is unconditional: usage, timeline, and conversation memory are
	// recorded even for partial responses, and no request state survives.
	defer func() {
		tokens := 0
		for _, out := range pad.Outputs() {
			tokens += out.TokensIn + out.TokensOut
		}
		resp.TokensUsed = tokens
		resp.ElapsedMs = time.Since(start).Milliseconds()

		strategy := ""
		if pad.Plan != nil {
			strategy = string(pad.Plan.Strategy)
		}
		s.sv.Usage.Record(userID, tokens)
		s.sv.Recorder.Commit(traceID, timeline)
		s.sv.Conversations.Record(convID, userID, memory.Exchange{
			UserQuery:  message,
			AIResponse: resp.Text,
			Strategy:   strategy,
			Confidence: resp.Quality,
			Timestamp:  s.now(),
		})
		s.sv.Brains.Supervisor.Reset(convID)
		pad.Release()
	}()

	specialists, err := s.sv.Registry.SelectSpecialists(ctx, message, s.opts.SpecialistTopN)
	if err != nil {
		logging.Scheduler("specialist selection failed, running core only: %v", err)
		specialists = nil
	}
	prefix, suffix := s.coreSplit()
	chain := make([]brains.Stage, 0, len(prefix)+len(specialists)+len(suffix))
	chain = append(chain, prefix...)
	chain = append(chain, specialists...)
	chain = append(chain, suffix...)

	for iter := 1; iter <= s.opts.MaxIterations; iter++ {
		resp.Iterations = iter
		pad.Iteration = iter

		text, quality, timedOut := s.runChain(ctx, chain, rc, timeline)
		if timedOut {
			resp.Partial = true
			resp.PartialReason = "timeout"
			break
		}
		resp.Text = text
		resp.Quality = quality

		if !s.shouldIterate(iter, pad, quality) {
			break
		}
		logging.Scheduler("trace %s: quality %.2f below %.2f, starting pass %d",
			traceID, quality, s.opts.QualityThreshold, iter+1)
	}

	resp.ToolsUsed = append([]string(nil), pad.ApprovedTools...)
	return resp, nil
}

// runChain walks one pass of the chain. Stage failures degrade to an empty
// output; cancellation stops the pass and reports a timeout.
func (s *Scheduler) runChain(ctx context.Context, chain []brains.Stage, rc *brains.RequestContext, tl *transparency.Timeline) (text string, quality float64, timedOut bool) {
	for _, stage := range chain {
		if ctx.Err() != nil {
			return text, quality, true
		}

		done := tl.Track(stage.Name(), stage.Order())
		result := stage.Run(ctx, rc)
		done()

		if !result.IsOK() {
			if result.Failure.Kind == types.FailCancelled {
				logging.Scheduler("stage %s cancelled: %s", stage.Name(), result.Failure.Message)
				return text, quality, true
			}
			logging.Scheduler("stage %s failed, continuing: %s", stage.Name(), result.Failure.Message)
			rc.Pad.AppendOutput(types.StageOutput{StageName: stage.Name()})
			continue
		}

		rc.Pad.AppendOutput(result.Output)
		if isSpecialistOrder(stage.Order()) && strings.TrimSpace(result.Output.Text) != "" {
			if err := s.sv.Brains.Supervisor.Record(rc.Pad.ConversationID, result.Output); err != nil {
				logging.Scheduler("supervisor rejected %s output: %v", stage.Name(), err)
			}
		}

		switch stage.Name() {
		case brains.StageJudge:
			quality = result.Output.Quality
		case brains.StageVoice:
			text = result.Output.Text
		}
	}
	return text, quality, false
}

// shouldIterate decides on another ReAct pass. The scheduler is the
// authority; the supervisor's view is advisory and only logged.
func (s *Scheduler) shouldIterate(iter int, pad *types.ScratchPad, quality float64) bool {
	if iter >= s.opts.MaxIterations {
		return false
	}
	sp := pad.Plan
	if sp == nil || sp.Complexity < 2 || len(sp.RequiredTools) == 0 {
		return false
	}
	if quality >= s.opts.QualityThreshold {
		return false
	}
	advisory := s.sv.Brains.Supervisor.ShouldReevaluate(pad.ConversationID, quality)
	logging.Scheduler("trace %s: supervisor reevaluation advisory=%v", pad.TraceID, advisory)
	return true
}

// coreSplit separates the registered core stages into the chain prefix
// (before the specialist band) and suffix (Judge and Voice).
func (s *Scheduler) coreSplit() (prefix, suffix []brains.Stage) {
	for _, stage := range s.sv.Registry.Core() {
		if stage.Order() < brains.OrderSpecialistMin {
			prefix = append(prefix, stage)
		} else if stage.Order() >= brains.OrderJudge {
			suffix = append(suffix, stage)
		}
	}
	return prefix, suffix
}

func (s *Scheduler) clientFor(provider perception.Provider) (perception.LLMClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.clients[provider]; ok {
		return client, nil
	}
	client, err := s.newClient(provider)
	if err != nil {
		return nil, err
	}
	s.clients[provider] = client
	return client, nil
}

func isSpecialistOrder(order int) bool {
	return order >= brains.OrderSpecialistMin && order < brains.OrderJudge
}

// deriveConversationID groups requests without an explicit conversation into
// per-user, per-minute sessions.
func deriveConversationID(userID string, t time.Time) string {
	return fmt.Sprintf("%s-%s", userID, t.UTC().Format("200601021504"))
}
