// Package usage tracks per-user monthly token budgets. State lives in memory
// and is persisted to a JSON file with a debounced autosave so a burst of
// requests costs one write.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cortex/internal/logging"
)

// saveDebounce batches writes triggered by Record.
const saveDebounce = 2 * time.Second

// UserBudget is one user's monthly quota record.
type UserBudget struct {
	UserID       string    `json:"user_id"`
	MonthlyQuota int       `json:"monthly_quota"`
	UsedTokens   int       `json:"used_tokens"`
	CreatedTime  time.Time `json:"created_time"`
}

// Remaining is max(0, quota - used).
func (b UserBudget) Remaining() int {
	r := b.MonthlyQuota - b.UsedTokens
	if r < 0 {
		return 0
	}
	return r
}

// UsagePct is the integer percentage of quota consumed.
func (b UserBudget) UsagePct() int {
	if b.MonthlyQuota <= 0 {
		return 100
	}
	return b.UsedTokens * 100 / b.MonthlyQuota
}

// Service is the process-wide token budget tracker.
type Service struct {
	mu           sync.Mutex
	path         string
	defaultQuota int
	warnPct      int
	users        map[string]*UserBudget
	saveTimer    *time.Timer
	closed       bool
}

// NewService loads (or creates) the budget file at path. A missing or
// corrupt file starts empty; corruption never blocks startup.
func NewService(path string, defaultQuota, warnPct int) *Service {
	s := &Service{
		path:         path,
		defaultQuota: defaultQuota,
		warnPct:      warnPct,
		users:        make(map[string]*UserBudget),
	}
	if data, err := os.ReadFile(path); err == nil {
		var records []UserBudget
		if err := json.Unmarshal(data, &records); err == nil {
			for i := range records {
				r := records[i]
				s.users[r.UserID] = &r
			}
			logging.Usage("loaded %d user budgets from %s", len(records), path)
		} else {
			logging.Usage("budget file corrupt, starting empty: %v", err)
		}
	}
	return s
}

func (s *Service) budgetLocked(userID string) *UserBudget {
	b, ok := s.users[userID]
	if !ok {
		b = &UserBudget{UserID: userID, MonthlyQuota: s.defaultQuota, CreatedTime: time.Now()}
		s.users[userID] = b
	}
	return b
}

// Record charges tokens against a user's quota and returns the remaining
// allowance. Crossing the warn percentage logs once per call.
func (s *Service) Record(userID string, tokens int) int {
	if tokens < 0 {
		tokens = 0
	}
	s.mu.Lock()
	b := s.budgetLocked(userID)
	b.UsedTokens += tokens
	remaining := b.Remaining()
	pct := b.UsagePct()
	s.scheduleSaveLocked()
	s.mu.Unlock()

	if pct >= s.warnPct {
		logging.Usage("user %s at %d%% of monthly quota (%d tokens remaining)", userID, pct, remaining)
	}
	return remaining
}

// Remaining returns the user's remaining allowance without charging.
func (s *Service) Remaining(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgetLocked(userID).Remaining()
}

// Used returns the tokens consumed so far.
func (s *Service) Used(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgetLocked(userID).UsedTokens
}

// Reset zeroes a user's consumption. Resets are explicit; there is no
// automatic monthly rollover.
func (s *Service) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgetLocked(userID).UsedTokens = 0
	s.scheduleSaveLocked()
	logging.Usage("budget reset for user %s", userID)
}

// SetQuota overrides one user's monthly quota.
func (s *Service) SetQuota(userID string, quota int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgetLocked(userID).MonthlyQuota = quota
	s.scheduleSaveLocked()
}

// Snapshot returns every budget, sorted by user id.
func (s *Service) Snapshot() []UserBudget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UserBudget, 0, len(s.users))
	for _, b := range s.users {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// scheduleSaveLocked arms the debounced autosave.
func (s *Service) scheduleSaveLocked() {
	if s.closed || s.path == "" {
		return
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(saveDebounce, func() {
		if err := s.Flush(); err != nil {
			logging.Usage("autosave failed: %v", err)
		}
	})
}

// Flush writes the budgets to disk immediately.
func (s *Service) Flush() error {
	s.mu.Lock()
	records := make([]UserBudget, 0, len(s.users))
	for _, b := range s.users {
		records = append(records, *b)
	}
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create usage dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write usage file: %w", err)
	}
	return nil
}

// Close cancels the autosave timer and flushes once.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()
	return s.Flush()
}
