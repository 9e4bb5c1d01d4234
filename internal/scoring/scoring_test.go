package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
)

func TestKeywordCoverageEmptyTextIsZero(t *testing.T) {
	require.Equal(t, 0.0, KeywordCoverage("", []string{"core"}))
	require.Equal(t, 0.0, KeywordCoverage("   \t", []string{"core"}))
	require.Equal(t, 0.0, KeywordCoverage("", nil))
}

func TestKeywordCoverageMissingListIsNeutral(t *testing.T) {
	require.Equal(t, NeutralKeywordCoverage, KeywordCoverage("some answer text", nil))
	require.Equal(t, NeutralKeywordCoverage, KeywordCoverage("some answer text", []string{}))
}

func TestKeywordCoverageSubstringContainment(t *testing.T) {
	text := "ARM includes the processor core, memory controller, interrupt controller and uses AHB and APB buses to connect peripherals."
	keywords := []string{"processor core", "interrupt controller", "memory controller", "peripheral", "AHB", "APB", "buses"}
	// "peripheral" matches inside "peripherals"; every keyword is present.
	require.InDelta(t, 1.0, KeywordCoverage(text, keywords), 1e-9)
}

func TestKeywordCoveragePartialMatch(t *testing.T) {
	coverage := KeywordCoverage("the cache holds hot lines", []string{"cache", "hot lines", "victim buffer", "mshr"})
	require.InDelta(t, 0.5, coverage, 1e-9)
}

func TestKeywordCoverageCaseInsensitive(t *testing.T) {
	require.InDelta(t, 1.0, KeywordCoverage("The AHB Bus", []string{"ahb bus"}), 1e-9)
}

func TestKeywordCoverageMonotonic(t *testing.T) {
	keywords := []string{"alpha", "beta", "gamma", "delta"}
	text := "unrelated base sentence"
	previous := KeywordCoverage(text, keywords)
	for _, keyword := range keywords {
		text += " " + keyword
		current := KeywordCoverage(text, keywords)
		require.GreaterOrEqual(t, current, previous)
		previous = current
	}
	require.InDelta(t, 1.0, previous, 1e-9)
}

func TestLevelPenaltyMatchedLevels(t *testing.T) {
	for _, level := range bloom.Levels() {
		require.Equal(t, 0.0, LevelPenalty(level, level))
	}
}

func TestLevelPenaltyUnderPerformance(t *testing.T) {
	require.InDelta(t, 0.05, LevelPenalty(bloom.Apply, bloom.Understand), 1e-9)
	require.InDelta(t, 0.10, LevelPenalty(bloom.Analyze, bloom.Understand), 1e-9)
	require.InDelta(t, 0.15, LevelPenalty(bloom.Evaluate, bloom.Understand), 1e-9)
	// Saturates at three levels short.
	require.InDelta(t, 0.15, LevelPenalty(bloom.Create, bloom.Remember), 1e-9)
}

func TestLevelPenaltyExceedingIsFlat(t *testing.T) {
	require.InDelta(t, -0.02, LevelPenalty(bloom.Understand, bloom.Apply), 1e-9)
	// Not scaled by the size of the overshoot.
	require.InDelta(t, -0.02, LevelPenalty(bloom.Remember, bloom.Create), 1e-9)
}

func TestCurveFixesBoundaries(t *testing.T) {
	require.Equal(t, 0.0, Curve(0))
	require.Equal(t, 1.0, Curve(1))
}

func TestCurveBoostsMidRange(t *testing.T) {
	for _, raw := range []float64{0.05, 0.25, 0.5, 0.74, 0.9, 0.99} {
		curved := Curve(raw)
		require.Greater(t, curved, raw)
		require.LessOrEqual(t, curved, 1.0)
	}
}

func TestCurveClampsOutOfDomain(t *testing.T) {
	require.Equal(t, 0.0, Curve(-0.5))
	require.Equal(t, 1.0, Curve(1.5))
}

func TestCurveMonotonic(t *testing.T) {
	previous := -1.0
	for raw := 0.0; raw <= 1.0; raw += 0.01 {
		curved := Curve(raw)
		require.Greater(t, curved, previous)
		previous = curved
	}
}

func TestDefaultWeights(t *testing.T) {
	weights := DefaultWeights()
	require.Equal(t, 0.4, weights.Semantic)
	require.Equal(t, 0.2, weights.Lexical)
	require.Equal(t, 0.3, weights.Keyword)
	require.Equal(t, 0.1, weights.Penalty)
	require.Equal(t, 0.1, weights.Image)
}

func TestCurveMatchesPowerLaw(t *testing.T) {
	for raw := 0.1; raw < 1.0; raw += 0.2 {
		require.InDelta(t, math.Pow(raw, 0.8), Curve(raw), 1e-12)
	}
}

func TestKeywordCoverageMultiWordMustBeContiguous(t *testing.T) {
	text := "the controller manages memory pages"
	require.Equal(t, 0.0, KeywordCoverage(text, []string{"memory controller"}))
	require.InDelta(t, 1.0, KeywordCoverage(strings.ReplaceAll(text, "controller manages memory", "memory controller manages"), []string{"memory controller"}), 1e-9)
}
