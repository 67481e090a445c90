package usage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRemaining(t *testing.T) {
	s := NewService("", 1000, 80)
	defer s.Close()

	require.Equal(t, 1000, s.Remaining("alice"))
	require.Equal(t, 700, s.Record("alice", 300))
	require.Equal(t, 300, s.Used("alice"))

	// Over-consumption floors at zero, never negative.
	require.Equal(t, 0, s.Record("alice", 5000))
	require.Equal(t, 0, s.Remaining("alice"))
	require.Equal(t, 5300, s.Used("alice"))
}

func TestResetIsExplicit(t *testing.T) {
	s := NewService("", 1000, 80)
	defer s.Close()

	s.Record("bob", 999)
	s.Reset("bob")
	require.Equal(t, 0, s.Used("bob"))
	require.Equal(t, 1000, s.Remaining("bob"))
}

func TestSetQuota(t *testing.T) {
	s := NewService("", 1000, 80)
	defer s.Close()

	s.SetQuota("carol", 50)
	require.Equal(t, 10, s.Record("carol", 40))
}

func TestUsagePct(t *testing.T) {
	b := UserBudget{MonthlyQuota: 200, UsedTokens: 160}
	require.Equal(t, 80, b.UsagePct())
	require.Equal(t, 100, UserBudget{}.UsagePct())
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")

	s := NewService(path, 1000, 80)
	s.Record("alice", 250)
	s.SetQuota("bob", 42)
	require.NoError(t, s.Close())

	reloaded := NewService(path, 1000, 80)
	defer reloaded.Close()
	require.Equal(t, 250, reloaded.Used("alice"))
	require.Equal(t, 42, reloaded.Remaining("bob"))

	snap := reloaded.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "alice", snap[0].UserID)
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	s := NewService(path, 1000, 80)
	defer s.Close()
	require.Empty(t, s.Snapshot())
}

func TestRecordNegativeTokensIgnored(t *testing.T) {
	s := NewService("", 1000, 80)
	defer s.Close()
	require.Equal(t, 1000, s.Record("dave", -50))
}
