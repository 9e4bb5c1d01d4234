package textsim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNGramPrecisionIdenticalText(t *testing.T) {
	text := "the arm architecture includes a processor core and a memory controller"
	score := NGramPrecision(text, text)
	require.InDelta(t, 1.0, score, 1e-9)
}

func TestNGramPrecisionEmptyInputs(t *testing.T) {
	require.Equal(t, 0.0, NGramPrecision("", "candidate text here"))
	require.Equal(t, 0.0, NGramPrecision("reference text here", ""))
	require.Equal(t, 0.0, NGramPrecision("reference text here", "   "))
}

func TestNGramPrecisionBounds(t *testing.T) {
	pairs := [][2]string{
		{"the processor core handles execution", "the core handles all execution stages"},
		{"memory controllers arbitrate access", "completely unrelated words appear here"},
		{"one", "one two three four five six"},
		{"a b c d e f g h", "a b"},
	}
	for _, pair := range pairs {
		score := NGramPrecision(pair[0], pair[1])
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 1.0)
	}
}

func TestNGramPrecisionRewardsOverlap(t *testing.T) {
	reference := "the arm architecture includes a processor core and a memory controller"
	near := "the arm architecture includes a processor core and a bus"
	far := "photosynthesis converts light energy into chemical energy"
	require.Greater(t, NGramPrecision(reference, near), NGramPrecision(reference, far))
}

func TestNGramPrecisionBrevityPenalty(t *testing.T) {
	reference := "the processor core decodes and executes instructions in order"
	full := "the processor core decodes and executes instructions in order"
	truncated := "the processor core"
	require.Greater(t, NGramPrecision(reference, full), NGramPrecision(reference, truncated))
}

func TestLCSFMeasureIdenticalText(t *testing.T) {
	text := "interrupt controllers route signals to the core"
	require.InDelta(t, 1.0, LCSFMeasure(text, text), 1e-9)
}

func TestLCSFMeasureDisjointText(t *testing.T) {
	require.Equal(t, 0.0, LCSFMeasure("alpha beta gamma", "delta epsilon zeta"))
}

func TestLCSFMeasureEmptyInputs(t *testing.T) {
	require.Equal(t, 0.0, LCSFMeasure("", "some text"))
	require.Equal(t, 0.0, LCSFMeasure("some text", ""))
}

func TestLCSFMeasureSubsequenceOrder(t *testing.T) {
	reference := "a b c d e"
	// Same tokens, order preserved as a subsequence.
	require.InDelta(t, lcsExpectedF(5, 5, 5), LCSFMeasure(reference, "a b c d e"), 1e-9)
	// Half the tokens survive in order.
	require.InDelta(t, lcsExpectedF(3, 5, 3), LCSFMeasure(reference, "a c e"), 1e-9)
}

func lcsExpectedF(lcs, refLen, candLen int) float64 {
	p := float64(lcs) / float64(candLen)
	r := float64(lcs) / float64(refLen)
	return 2 * p * r / (p + r)
}

func TestLCSFMeasureCaseInsensitive(t *testing.T) {
	require.InDelta(t, 1.0, LCSFMeasure("ARM Processor Core", "arm processor core"), 1e-9)
}

func TestOverlapScoreIsMeanOfSubMetrics(t *testing.T) {
	reference := "the arm architecture includes a processor core"
	candidate := "arm includes the processor core and uses buses"
	expected := (NGramPrecision(reference, candidate) + LCSFMeasure(reference, candidate)) / 2
	require.InDelta(t, expected, OverlapScore(reference, candidate), 1e-9)
}

func TestScorerOverlapNeverFails(t *testing.T) {
	scorer := NewScorer()
	score, err := scorer.Overlap(context.Background(), "reference answer text", "candidate answer text")
	require.NoError(t, err)
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 1.0)
}

func TestOverlapDeterministic(t *testing.T) {
	reference := "the memory controller arbitrates access to external ram"
	candidate := "a memory controller arbitrates ram access"
	first := OverlapScore(reference, candidate)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, OverlapScore(reference, candidate))
	}
}
