package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cortex/internal/types"
)

func severities(issues []types.QualityIssue) []types.IssueSeverity {
	out := make([]types.IssueSeverity, len(issues))
	for i, issue := range issues {
		out[i] = issue.Severity
	}
	return out
}

func TestConsistencyCleanText(t *testing.T) {
	c := NewConsistencyChecker()
	report := c.Check("The cache stores embeddings. Lookups hit sqlite first.")
	require.Empty(t, report.Issues)
	require.Equal(t, 1.0, report.Score)
}

func TestConsistencyYesNoProximity(t *testing.T) {
	c := NewConsistencyChecker()
	report := c.Check("Yes, the index rebuilds on change. No, it does not persist.")
	require.NotEmpty(t, report.Issues)
	require.Contains(t, severities(report.Issues), types.SeverityHigh)

	// Same terms far apart do not contradict.
	far := "yes " + strings.Repeat("word ", 200) + "no"
	report = c.Check(far)
	for _, issue := range report.Issues {
		require.NotContains(t, issue.Description, "contradictory")
	}
}

func TestConsistencyAlwaysNeverAndMustOptional(t *testing.T) {
	c := NewConsistencyChecker()
	report := c.Check("It always flushes. It never flushes. The flag is must but also optional.")
	require.GreaterOrEqual(t, len(report.Issues), 2)
}

func TestConsistencyIncompleteOpener(t *testing.T) {
	c := NewConsistencyChecker()
	report := c.Check("Caching helps latency. For example,")
	require.Contains(t, severities(report.Issues), types.SeverityMedium)
}

func TestConsistencyOrphanedDeictic(t *testing.T) {
	c := NewConsistencyChecker()
	report := c.Check("The watcher settles first.\nThis.\nThen it flushes.")
	require.NotEmpty(t, report.Issues)
}

func TestConsistencyMissingTransitionsLongText(t *testing.T) {
	c := NewConsistencyChecker()
	long := strings.Repeat("the indexer reads files and writes chunks ", 20)
	report := c.Check(long)
	require.NotEmpty(t, report.Issues)

	withTransitions := long + " However, the cache is checked first."
	report = c.Check(withTransitions)
	require.Empty(t, report.Issues)
}

func TestConsistencyCodeBlockBalance(t *testing.T) {
	c := NewConsistencyChecker()
	report := c.Check("Use this:\n```\nfunc f() { return\n```\n")
	require.Contains(t, severities(report.Issues), types.SeverityMedium)

	report = c.Check("Use this:\n```\nfunc f() { return 1 }\n```\n")
	require.Empty(t, report.Issues)
}

func TestConsistencyScoreFloor(t *testing.T) {
	c := NewConsistencyChecker()
	bad := "Yes. No. Always. Never. Must. Optional. " +
		strings.Repeat("x ", 300) + "\nThis.\nFor example,"
	report := c.Check(bad)
	require.GreaterOrEqual(t, report.Score, 0.0)
}

func TestHallucinationCleanTextTrusted(t *testing.T) {
	d := NewHallucinationDetector()
	report := d.Detect("The planner classifies queries by keyword tables.")
	require.True(t, report.Trusted)
	require.Equal(t, 0.0, report.Score)
}

func TestHallucinationSuspiciousPhrases(t *testing.T) {
	d := NewHallucinationDetector()
	report := d.Detect("This definitely works and everyone knows it is guaranteed.")
	require.Len(t, report.Issues, 3)
	require.InDelta(t, 0.6, report.Score, 0.001)
	require.False(t, report.Trusted)
}

func TestHallucinationKnownFactNegation(t *testing.T) {
	d := NewHallucinationDetector()
	d.AddKnownFact("the cache marker lives in embeddings.json")

	report := d.Detect("The cache marker does not live in embeddings.json anymore.")
	require.Equal(t, 1, report.HighCount())
	require.False(t, report.Trusted)
	require.GreaterOrEqual(t, report.Score, 0.5)
}

func TestHallucinationHighIssueNeverTrusted(t *testing.T) {
	d := NewHallucinationDetector()
	d.AddKnownFact("the index uses sqlite storage")

	// One HIGH issue scores 0.5; even a tiny score with a HIGH would distrust.
	report := d.Detect("The index does not use sqlite storage.")
	require.False(t, report.Trusted)
}

func TestHallucinationScoreCappedAtOne(t *testing.T) {
	d := NewHallucinationDetector()
	d.AddKnownFact("alpha beta gamma")
	d.AddKnownFact("alpha beta delta")
	d.AddKnownFact("alpha beta omega")

	report := d.Detect("alpha beta gamma delta omega is not real, definitely, guaranteed, everyone knows")
	require.LessOrEqual(t, report.Score, 1.0)
	require.False(t, report.Trusted)
}

func TestHallucinationAdjustablePhraseSet(t *testing.T) {
	d := NewHallucinationDetector()
	d.AddSuspiciousPhrase("trust me")
	report := d.Detect("Trust me, this is fine.")
	require.Len(t, report.Issues, 1)
}
