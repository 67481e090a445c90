package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"cortex/internal/logging"
)

const (
	maxSessionExchanges = 20
	maxLongTermEntries  = 100
	maxImportance       = 100.0

	promoteConfidence  = 0.8
	relatedThreshold   = 0.6
	longTermThreshold  = 0.5
	longTermRetrieveN  = 2
	recentRetrieveN    = 5
	sessionIdleTimeout = 24 * time.Hour
	topicBonus         = 10.0
)

// promotionTopics mark exchanges worth keeping beyond the session.
var promotionTopics = []string{"architecture", "design", "pattern", "implementation", "error", "bug"}

// Exchange is one user-query/response pair with the plan metadata that
// produced it.
type Exchange struct {
	UserQuery  string
	AIResponse string
	Strategy   string
	Confidence float64
	Timestamp  time.Time
}

// LongTermEntry is a promoted exchange ranked by importance.
type LongTermEntry struct {
	Exchange
	Importance float64
}

// Recall is the result of a retrieval: recent exchanges from the session,
// related exchanges from the same session, and matching long-term memories.
type Recall struct {
	Recent   []Exchange
	Related  []Exchange
	LongTerm []LongTermEntry
}

type session struct {
	id           string
	userID       string
	startTime    time.Time
	lastActivity time.Time
	exchanges    []Exchange
}

// ConversationMemory stores per-session exchange logs plus a global long-term
// store of promoted exchanges. Sessions idle past 24h are swept.
type ConversationMemory struct {
	mu       sync.RWMutex
	sessions map[string]*session
	longTerm []LongTermEntry
	now      func() time.Time
}

// NewConversationMemory creates an empty store.
func NewConversationMemory() *ConversationMemory {
	return &ConversationMemory{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Record appends an exchange to the session, creating the session on first
// use. Sessions cap at 20 exchanges, dropping the oldest. High-confidence
// exchanges on durable topics are promoted to long-term memory; when the
// long-term store overflows, the lowest-importance entry is evicted after
// the insert.
func (m *ConversationMemory) Record(sessionID, userID string, ex Exchange) {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &session{id: sessionID, userID: userID, startTime: m.now()}
		m.sessions[sessionID] = s
		logging.Memory("session %s opened for user %s", sessionID, userID)
	}
	s.lastActivity = m.now()
	s.exchanges = append(s.exchanges, ex)
	if len(s.exchanges) > maxSessionExchanges {
		s.exchanges = s.exchanges[len(s.exchanges)-maxSessionExchanges:]
	}

	if m.shouldPromote(ex) {
		entry := LongTermEntry{Exchange: ex, Importance: importance(ex)}
		m.longTerm = append(m.longTerm, entry)
		if len(m.longTerm) > maxLongTermEntries {
			m.evictLowestImportanceLocked()
		}
		logging.Memory("exchange promoted to long-term (importance=%.1f, total=%d)", entry.Importance, len(m.longTerm))
	}
}

// shouldPromote gates promotion on confidence and topic.
func (m *ConversationMemory) shouldPromote(ex Exchange) bool {
	if ex.Confidence <= promoteConfidence {
		return false
	}
	lower := strings.ToLower(ex.UserQuery)
	for _, topic := range promotionTopics {
		if strings.Contains(lower, topic) {
			return true
		}
	}
	return false
}

// importance scores a promoted exchange: confidence weight plus a bonus per
// topic mentioned, capped at 100.
func importance(ex Exchange) float64 {
	score := ex.Confidence * 50
	lower := strings.ToLower(ex.UserQuery)
	for _, topic := range promotionTopics {
		if strings.Contains(lower, topic) {
			score += topicBonus
		}
	}
	if score > maxImportance {
		score = maxImportance
	}
	return score
}

func (m *ConversationMemory) evictLowestImportanceLocked() {
	lowest := 0
	for i, e := range m.longTerm {
		if e.Importance < m.longTerm[lowest].Importance {
			lowest = i
		}
	}
	m.longTerm = append(m.longTerm[:lowest], m.longTerm[lowest+1:]...)
}

// Retrieve returns the session's last 5 exchanges, related exchanges from the
// same session (query Jaccard > 0.6), and the top-2 long-term memories with
// query Jaccard > 0.5 ranked by importance.
func (m *ConversationMemory) Retrieve(sessionID, query string) Recall {
	queryTokens := tokenSet(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var recall Recall
	if s, ok := m.sessions[sessionID]; ok {
		n := len(s.exchanges)
		start := n - recentRetrieveN
		if start < 0 {
			start = 0
		}
		recall.Recent = append(recall.Recent, s.exchanges[start:]...)

		for _, ex := range s.exchanges {
			if tokenJaccard(queryTokens, tokenSet(ex.UserQuery)) > relatedThreshold {
				recall.Related = append(recall.Related, ex)
			}
		}
	}

	var candidates []LongTermEntry
	for _, e := range m.longTerm {
		if tokenJaccard(queryTokens, tokenSet(e.UserQuery)) > longTermThreshold {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Importance > candidates[j].Importance
	})
	if len(candidates) > longTermRetrieveN {
		candidates = candidates[:longTermRetrieveN]
	}
	recall.LongTerm = candidates
	return recall
}

// SweepIdle evicts sessions idle longer than 24h and returns how many went.
func (m *ConversationMemory) SweepIdle() int {
	cutoff := m.now().Add(-sessionIdleTimeout)
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if s.lastActivity.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		logging.Memory("swept %d idle sessions", evicted)
	}
	return evicted
}

// StartSweeper runs SweepIdle on an interval until the returned stop function
// is called.
func (m *ConversationMemory) StartSweeper(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.SweepIdle()
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// SessionCount returns the number of live sessions.
func (m *ConversationMemory) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// LongTermSize returns the number of promoted memories.
func (m *ConversationMemory) LongTermSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.longTerm)
}

// SessionExchanges returns a snapshot of one session's log.
func (m *ConversationMemory) SessionExchanges(sessionID string) []Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// tokenSet lowercases and whitespace-splits text.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = true
	}
	return set
}

// tokenJaccard is |A∩B| / |A∪B| with empty sets reading as zero.
func tokenJaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
