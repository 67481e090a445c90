// Package supervisor accumulates per-stage outputs per conversation, merges
// the best of them into one response, and advises the scheduler on
// re-evaluation. The scheduler keeps the hard iteration ceiling; this gate is
// advisory.
package supervisor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cortex/internal/logging"
	"cortex/internal/types"
)

const (
	// mergeTopN outputs are concatenated into the merged response.
	mergeTopN = 3
	// divergenceThreshold flags output pairs with low lexical overlap.
	divergenceThreshold = 0.5
)

// ErrDuplicateOutput is returned when the same stage text is recorded twice
// for one conversation cycle.
var ErrDuplicateOutput = errors.New("duplicate stage output")

// PairDivergence identifies two stage outputs that disagree lexically.
type PairDivergence struct {
	StageA     string
	StageB     string
	Similarity float64
}

// ConsistencyResult summarizes pairwise agreement across stage outputs.
type ConsistencyResult struct {
	MeanSimilarity float64
	Divergent      []PairDivergence
}

type conversationState struct {
	outputs     []types.StageOutput
	seen        map[string]bool // stageName+text fingerprints
	reevalCount int
}

// Supervisor holds per-conversation stage output accumulators.
type Supervisor struct {
	mu            sync.Mutex
	conversations map[string]*conversationState
	maxReevals    int
	qualityFloor  float64
}

// New creates a supervisor. qualityFloor is the re-evaluation threshold
// (default 0.75); maxReevals caps advisory cycles (default 3).
func New(qualityFloor float64, maxReevals int) *Supervisor {
	if qualityFloor <= 0 {
		qualityFloor = 0.75
	}
	if maxReevals <= 0 {
		maxReevals = 3
	}
	return &Supervisor{
		conversations: make(map[string]*conversationState),
		maxReevals:    maxReevals,
		qualityFloor:  qualityFloor,
	}
}

func (s *Supervisor) state(conversationID string) *conversationState {
	st, ok := s.conversations[conversationID]
	if !ok {
		st = &conversationState{seen: make(map[string]bool)}
		s.conversations[conversationID] = st
	}
	return st
}

// Record accumulates one stage output. Recording an identical output twice
// within the same conversation cycle is a programming error and is rejected.
func (s *Supervisor) Record(conversationID string, out types.StageOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(conversationID)
	key := out.StageName + "\x00" + out.Text
	if st.seen[key] {
		return fmt.Errorf("%w: stage %s in conversation %s", ErrDuplicateOutput, out.StageName, conversationID)
	}
	st.seen[key] = true
	st.outputs = append(st.outputs, out)
	return nil
}

// Merge sorts the accumulated outputs by quality descending, joins the top 3
// texts with a blank line, and returns the merged text with the average
// quality of the merged outputs.
func (s *Supervisor) Merge(conversationID string) (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(conversationID)
	if len(st.outputs) == 0 {
		return "", 0
	}

	sorted := make([]types.StageOutput, len(st.outputs))
	copy(sorted, st.outputs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Quality > sorted[j].Quality })
	if len(sorted) > mergeTopN {
		sorted = sorted[:mergeTopN]
	}

	texts := make([]string, 0, len(sorted))
	var qualitySum float64
	for _, o := range sorted {
		if strings.TrimSpace(o.Text) != "" {
			texts = append(texts, o.Text)
		}
		qualitySum += o.Quality
	}
	avg := qualitySum / float64(len(sorted))
	logging.Quality("merged %d outputs for %s (avg quality %.2f)", len(sorted), conversationID, avg)
	return strings.Join(texts, "\n\n"), avg
}

// Consistency computes pairwise Jaccard similarity over whitespace-tokenized,
// lowercased outputs and flags pairs below 0.5.
func (s *Supervisor) Consistency(conversationID string) ConsistencyResult {
	s.mu.Lock()
	outputs := append([]types.StageOutput(nil), s.state(conversationID).outputs...)
	s.mu.Unlock()

	var result ConsistencyResult
	if len(outputs) < 2 {
		result.MeanSimilarity = 1
		return result
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(outputs); i++ {
		for j := i + 1; j < len(outputs); j++ {
			sim := tokenJaccard(outputs[i].Text, outputs[j].Text)
			sum += sim
			pairs++
			if sim < divergenceThreshold {
				result.Divergent = append(result.Divergent, PairDivergence{
					StageA:     outputs[i].StageName,
					StageB:     outputs[j].StageName,
					Similarity: sim,
				})
			}
		}
	}
	result.MeanSimilarity = sum / float64(pairs)
	return result
}

// ShouldReevaluate advises another pass when quality is below the floor and
// the cycle budget remains. Each positive answer consumes one cycle.
func (s *Supervisor) ShouldReevaluate(conversationID string, currentQuality float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(conversationID)
	if currentQuality >= s.qualityFloor || st.reevalCount >= s.maxReevals {
		return false
	}
	st.reevalCount++
	logging.Quality("re-evaluation advised for %s (quality %.2f, cycle %d/%d)",
		conversationID, currentQuality, st.reevalCount, s.maxReevals)
	return true
}

// ReevalCycles returns how many advisory cycles a conversation has consumed.
func (s *Supervisor) ReevalCycles(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(conversationID).reevalCount
}

// Reset clears a conversation's accumulated state. The scheduler calls this
// when a request finishes.
func (s *Supervisor) Reset(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}

func tokenJaccard(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}
	inter := 0
	for t := range as {
		if bs[t] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = true
	}
	return set
}
