// Package memory holds the per-user working memory and the per-session
// conversation memory. Both are process-wide, thread-safe registries with
// explicit clear operations; nothing here persists to disk.
package memory

import (
	"sync"

	"cortex/internal/logging"
)

// Ring buffer capacities for one user's working memory.
const (
	maxUserMessages = 5
	maxStageOutputs = 3
	maxIntents      = 10
	maxTones        = 10

	// stageOutputTruncateAt bounds what one stage output contributes.
	stageOutputTruncateAt = 500
)

// WorkingMemory is one user's rolling view of the conversation: recent
// messages, recent stage outputs, and the intent/tone history. Eviction is
// FIFO per buffer.
type WorkingMemory struct {
	mu           sync.RWMutex
	userMessages []string
	stageOutputs []string
	intents      []string
	tones        []string
}

// AddUserMessage enqueues a user turn.
func (w *WorkingMemory) AddUserMessage(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.userMessages = pushBounded(w.userMessages, msg, maxUserMessages)
}

// AddStageOutput enqueues a completed stage's output, truncated.
func (w *WorkingMemory) AddStageOutput(out string) {
	if len(out) > stageOutputTruncateAt {
		out = out[:stageOutputTruncateAt]
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stageOutputs = pushBounded(w.stageOutputs, out, maxStageOutputs)
}

// AddIntent records a classified intent for the current turn.
func (w *WorkingMemory) AddIntent(intent string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.intents = pushBounded(w.intents, intent, maxIntents)
}

// AddTone records a detected tone for the current turn.
func (w *WorkingMemory) AddTone(tone string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tones = pushBounded(w.tones, tone, maxTones)
}

// UserMessages returns a snapshot of the message buffer, oldest first.
func (w *WorkingMemory) UserMessages() []string { return w.snapshot(&w.userMessages) }

// StageOutputs returns a snapshot of the stage-output buffer.
func (w *WorkingMemory) StageOutputs() []string { return w.snapshot(&w.stageOutputs) }

// Intents returns a snapshot of the intent history.
func (w *WorkingMemory) Intents() []string { return w.snapshot(&w.intents) }

// Tones returns a snapshot of the tone history.
func (w *WorkingMemory) Tones() []string { return w.snapshot(&w.tones) }

func (w *WorkingMemory) snapshot(buf *[]string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(*buf))
	copy(out, *buf)
	return out
}

// pushBounded appends and drops the head when over capacity.
func pushBounded(buf []string, v string, max int) []string {
	buf = append(buf, v)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

// =============================================================================
// PER-USER REGISTRY
// =============================================================================

// WorkingSet is the process-wide map of working memories keyed by user id.
type WorkingSet struct {
	mu    sync.RWMutex
	users map[string]*WorkingMemory
}

// NewWorkingSet creates an empty registry.
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{users: make(map[string]*WorkingMemory)}
}

// For returns the user's working memory, creating it on first use.
func (s *WorkingSet) For(userID string) *WorkingMemory {
	s.mu.RLock()
	wm, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return wm
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if wm, ok := s.users[userID]; ok {
		return wm
	}
	wm = &WorkingMemory{}
	s.users[userID] = wm
	logging.Memory("working memory created for user %s", userID)
	return wm
}

// Clear drops one user's working memory.
func (s *WorkingSet) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// Size returns the number of tracked users.
func (s *WorkingSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
