package scoring

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
)

type stubSimilarity struct {
	score float64
	err   error
	calls int
}

func (s *stubSimilarity) Similarity(context.Context, string, string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}

type stubLexical struct {
	score float64
	err   error
	calls int
}

func (s *stubLexical) Overlap(context.Context, string, string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}

func newTestEngine(semantic *stubSimilarity, lexical *stubLexical) Engine {
	return NewEngine(semantic, lexical, DefaultWeights(), zerolog.Nop())
}

func levelPtr(level bloom.CognitiveLevel) *bloom.CognitiveLevel {
	return &level
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestEngineScoreARMScenario(t *testing.T) {
	semantic := &stubSimilarity{score: 0.85}
	lexical := &stubLexical{score: 0.5}
	engine := newTestEngine(semantic, lexical)

	input := ScoreInput{
		Question:        "Explain the architecture of ARM processor.",
		ReferenceAnswer: "The ARM architecture includes components like the processor core, interrupt controller, memory controller and system buses.",
		CandidateAnswer: "ARM includes the processor core, memory controller, interrupt controller and uses AHB and APB buses to connect peripherals.",
		ExpectedLevel:   levelPtr(bloom.Understand),
		Keywords:        []string{"processor core", "interrupt controller", "memory controller", "peripheral", "AHB", "APB", "buses"},
	}

	result, err := engine.Score(context.Background(), input)
	require.NoError(t, err)

	require.InDelta(t, 0.85, result.SemanticScore, 1e-9)
	require.InDelta(t, 0.5, result.LexicalOverlapScore, 1e-9)
	require.InDelta(t, 1.0, result.KeywordCoverage, 1e-9)
	require.Equal(t, bloom.Understand, result.ClassifiedLevel)
	require.Equal(t, bloom.Understand, result.ExpectedLevel)
	require.Equal(t, 0.0, result.LevelPenalty)

	expectedRaw := 0.4*0.85 + 0.2*0.5 + 0.3*1.0
	require.InDelta(t, expectedRaw, result.RawScore, 1e-9)
	require.InDelta(t, math.Pow(expectedRaw, 0.8), result.FinalScore, 1e-9)
	require.Empty(t, result.Warnings)
	require.Nil(t, result.ImageSimilarity)
}

func TestEngineScoreDefaultsExpectedLevelToUnderstand(t *testing.T) {
	engine := newTestEngine(&stubSimilarity{score: 0.6}, &stubLexical{score: 0.4})

	result, err := engine.Score(context.Background(), ScoreInput{
		Question:        "Describe caching.",
		ReferenceAnswer: "Caches keep hot data close to the core.",
		CandidateAnswer: "Caches keep frequently accessed data near the processor because latency matters.",
	})
	require.NoError(t, err)
	require.Equal(t, bloom.Understand, result.ExpectedLevel)
}

func TestEngineScoreRejectsInvalidExpectedLevel(t *testing.T) {
	engine := newTestEngine(&stubSimilarity{score: 0.6}, &stubLexical{score: 0.4})
	bad := bloom.CognitiveLevel("Synthesize")

	_, err := engine.Score(context.Background(), ScoreInput{
		ReferenceAnswer: "reference",
		CandidateAnswer: "candidate",
		ExpectedLevel:   &bad,
	})
	require.ErrorIs(t, err, bloom.ErrInvalidLevel)
}

func TestEngineScoreEmptyCandidate(t *testing.T) {
	semantic := &stubSimilarity{score: 0.9}
	lexical := &stubLexical{score: 0.9}
	engine := newTestEngine(semantic, lexical)

	result, err := engine.Score(context.Background(), ScoreInput{
		Question:        "Explain the architecture of ARM processor.",
		ReferenceAnswer: "The ARM architecture includes a processor core.",
		CandidateAnswer: "   \n\t ",
		ExpectedLevel:   levelPtr(bloom.Apply),
		Keywords:        []string{"processor core"},
	})
	require.NoError(t, err)

	require.Equal(t, 0.0, result.SemanticScore)
	require.Equal(t, 0.0, result.LexicalOverlapScore)
	require.Equal(t, 0.0, result.KeywordCoverage)
	require.Equal(t, bloom.Remember, result.ClassifiedLevel)
	require.Equal(t, bloom.Apply, result.ExpectedLevel)
	require.Equal(t, 0.0, result.RawScore)
	require.Equal(t, 0.0, result.FinalScore)

	// Providers are never consulted for blank answers.
	require.Zero(t, semantic.calls)
	require.Zero(t, lexical.calls)
}

func TestEngineScoreEmptyCandidateWithImageTerm(t *testing.T) {
	engine := newTestEngine(&stubSimilarity{}, &stubLexical{})

	result, err := engine.Score(context.Background(), ScoreInput{
		ReferenceAnswer: "A labelled block diagram.",
		CandidateAnswer: "",
		ImageSimilarity: floatPtr(0.8),
	})
	require.NoError(t, err)

	expectedRaw := 0.1 * 0.8
	require.InDelta(t, expectedRaw, result.RawScore, 1e-9)
	require.InDelta(t, math.Pow(expectedRaw, 0.8), result.FinalScore, 1e-9)
	require.Equal(t, bloom.Remember, result.ClassifiedLevel)
	require.NotNil(t, result.ImageSimilarity)
	require.InDelta(t, 0.8, *result.ImageSimilarity, 1e-9)
}

func TestEngineScoreAppliesImageTerm(t *testing.T) {
	engine := newTestEngine(&stubSimilarity{score: 0.5}, &stubLexical{score: 0.5})

	withImage, err := engine.Score(context.Background(), ScoreInput{
		Question:        "Draw and explain the pipeline.",
		ReferenceAnswer: "Five stages with forwarding paths.",
		CandidateAnswer: "The pipeline consists of five stages because hazards need forwarding.",
		ImageSimilarity: floatPtr(0.9),
	})
	require.NoError(t, err)

	without, err := engine.Score(context.Background(), ScoreInput{
		Question:        "Draw and explain the pipeline.",
		ReferenceAnswer: "Five stages with forwarding paths.",
		CandidateAnswer: "The pipeline consists of five stages because hazards need forwarding.",
	})
	require.NoError(t, err)

	require.InDelta(t, 0.1*0.9, withImage.RawScore-without.RawScore, 1e-9)
}

func TestEngineScoreSemanticFailureDegradesWithWarning(t *testing.T) {
	semantic := &stubSimilarity{err: errors.New("embedding endpoint unreachable")}
	lexical := &stubLexical{score: 0.6}
	engine := newTestEngine(semantic, lexical)

	result, err := engine.Score(context.Background(), ScoreInput{
		Question:        "Describe the bus.",
		ReferenceAnswer: "A shared pathway between components.",
		CandidateAnswer: "The bus connects components because they share one pathway.",
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, result.SemanticScore)
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0], "semantic similarity unavailable")
	require.Greater(t, result.FinalScore, 0.0)
}

func TestEngineScoreBothProvidersFailing(t *testing.T) {
	engine := newTestEngine(
		&stubSimilarity{err: errors.New("down")},
		&stubLexical{err: errors.New("down")},
	)

	result, err := engine.Score(context.Background(), ScoreInput{
		Question:        "Describe the bus.",
		ReferenceAnswer: "A shared pathway between components.",
		CandidateAnswer: "The bus connects components because they share one pathway.",
		Keywords:        []string{"bus", "pathway"},
	})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 2)

	// Only keyword coverage and the penalty remain in play.
	expectedRaw := 0.3*result.KeywordCoverage - 0.1*result.LevelPenalty
	require.InDelta(t, clamp01(expectedRaw), result.RawScore, 1e-9)
}

func TestEngineScoreClampsProviderOutputs(t *testing.T) {
	engine := newTestEngine(&stubSimilarity{score: 1.7}, &stubLexical{score: -0.4})

	result, err := engine.Score(context.Background(), ScoreInput{
		ReferenceAnswer: "reference answer",
		CandidateAnswer: "candidate answer",
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.SemanticScore)
	require.Equal(t, 0.0, result.LexicalOverlapScore)
	require.LessOrEqual(t, result.RawScore, 1.0)
	require.LessOrEqual(t, result.FinalScore, 1.0)
}

func TestEngineScoreBoundsAcrossGrid(t *testing.T) {
	for _, sem := range []float64{0, 0.25, 0.5, 0.75, 1} {
		for _, lex := range []float64{0, 0.5, 1} {
			for _, expected := range []bloom.CognitiveLevel{bloom.Remember, bloom.Apply, bloom.Create} {
				engine := newTestEngine(&stubSimilarity{score: sem}, &stubLexical{score: lex})
				result, err := engine.Score(context.Background(), ScoreInput{
					Question:        "Justify the choice of scheduler.",
					ReferenceAnswer: "Round-robin balances fairness.",
					CandidateAnswer: "Round-robin performs better for fairness across workloads.",
					ExpectedLevel:   levelPtr(expected),
				})
				require.NoError(t, err)
				require.GreaterOrEqual(t, result.RawScore, 0.0)
				require.LessOrEqual(t, result.RawScore, 1.0)
				require.GreaterOrEqual(t, result.FinalScore, 0.0)
				require.LessOrEqual(t, result.FinalScore, 1.0)
			}
		}
	}
}

func TestEngineScoreIdempotent(t *testing.T) {
	engine := newTestEngine(&stubSimilarity{score: 0.72}, &stubLexical{score: 0.41})
	input := ScoreInput{
		Question:        "Explain the architecture of ARM processor.",
		ReferenceAnswer: "The ARM architecture includes a processor core and controllers.",
		CandidateAnswer: "ARM includes the processor core and memory controller.",
		ExpectedLevel:   levelPtr(bloom.Understand),
		Keywords:        []string{"processor core", "memory controller"},
	}

	first, err := engine.Score(context.Background(), input)
	require.NoError(t, err)
	second, err := engine.Score(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEngineScorePenaltyLowersScore(t *testing.T) {
	// Same candidate, higher expectation: the shortfall penalty must bite.
	engine := newTestEngine(&stubSimilarity{score: 0.7}, &stubLexical{score: 0.5})
	input := ScoreInput{
		Question:        "Name the bus widths.",
		ReferenceAnswer: "AHB is 32 bits wide.",
		CandidateAnswer: "AHB is 32 bits wide.",
	}

	input.ExpectedLevel = levelPtr(bloom.Remember)
	matched, err := engine.Score(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 0.0, matched.LevelPenalty)

	input.ExpectedLevel = levelPtr(bloom.Create)
	short, err := engine.Score(context.Background(), input)
	require.NoError(t, err)
	require.InDelta(t, 0.15, short.LevelPenalty, 1e-9)
	require.Less(t, short.RawScore, matched.RawScore)
}
