package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cortex/internal/types"
)

func TestRecordRejectsDuplicates(t *testing.T) {
	s := New(0.75, 3)
	out := types.StageOutput{StageName: "Voice", Text: "final answer", Quality: 0.9}

	require.NoError(t, s.Record("c1", out))
	require.ErrorIs(t, s.Record("c1", out), ErrDuplicateOutput)

	// Same text from a different stage is a distinct output.
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "Judge", Text: "final answer"}))
	// Same output in another conversation is fine.
	require.NoError(t, s.Record("c2", out))
}

func TestMergeTopThreeByQuality(t *testing.T) {
	s := New(0.75, 3)
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "a", Text: "low", Quality: 0.2}))
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "b", Text: "best", Quality: 0.9}))
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "c", Text: "good", Quality: 0.8}))
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "d", Text: "fine", Quality: 0.7}))

	text, avg := s.Merge("c1")
	require.Equal(t, "best\n\ngood\n\nfine", text)
	require.InDelta(t, 0.8, avg, 0.001)
}

func TestMergeEmptyConversation(t *testing.T) {
	s := New(0.75, 3)
	text, avg := s.Merge("none")
	require.Empty(t, text)
	require.Equal(t, 0.0, avg)
}

func TestMergeSkipsBlankTexts(t *testing.T) {
	s := New(0.75, 3)
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "a", Text: "   ", Quality: 0.9}))
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "b", Text: "real", Quality: 0.5}))

	text, _ := s.Merge("c1")
	require.Equal(t, "real", text)
}

func TestConsistencyFlagsDivergentPairs(t *testing.T) {
	s := New(0.75, 3)
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "a", Text: "the cache stores embeddings in sqlite"}))
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "b", Text: "the cache stores embeddings in sqlite today"}))
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "c", Text: "completely unrelated topic entirely"}))

	result := s.Consistency("c1")
	require.Len(t, result.Divergent, 2)
	require.Less(t, result.MeanSimilarity, 1.0)
	for _, d := range result.Divergent {
		require.Less(t, d.Similarity, 0.5)
	}
}

func TestConsistencySingleOutput(t *testing.T) {
	s := New(0.75, 3)
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "a", Text: "alone"}))
	result := s.Consistency("c1")
	require.Equal(t, 1.0, result.MeanSimilarity)
	require.Empty(t, result.Divergent)
}

func TestShouldReevaluateGate(t *testing.T) {
	s := New(0.75, 3)

	require.False(t, s.ShouldReevaluate("c1", 0.8)) // above floor
	require.True(t, s.ShouldReevaluate("c1", 0.5))
	require.True(t, s.ShouldReevaluate("c1", 0.5))
	require.True(t, s.ShouldReevaluate("c1", 0.5))
	require.False(t, s.ShouldReevaluate("c1", 0.5)) // cycle budget spent
	require.Equal(t, 3, s.ReevalCycles("c1"))
}

func TestResetClearsState(t *testing.T) {
	s := New(0.75, 3)
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "a", Text: "x", Quality: 0.1}))
	require.True(t, s.ShouldReevaluate("c1", 0.1))

	s.Reset("c1")
	text, _ := s.Merge("c1")
	require.Empty(t, text)
	require.Equal(t, 0, s.ReevalCycles("c1"))
	require.NoError(t, s.Record("c1", types.StageOutput{StageName: "a", Text: "x", Quality: 0.1}))
}
