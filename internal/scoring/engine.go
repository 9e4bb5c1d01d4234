package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
)

// SimilarityScorer supplies a semantic similarity scalar for two texts,
// typically from an embedding model.
type SimilarityScorer interface {
	Similarity(ctx context.Context, reference, candidate string) (float64, error)
}

// LexicalScorer supplies an n-gram/sequence overlap scalar for two texts.
type LexicalScorer interface {
	Overlap(ctx context.Context, reference, candidate string) (float64, error)
}

// Engine scores candidate answers against reference answers.
type Engine interface {
	Score(ctx context.Context, input ScoreInput) (ScoreResult, error)
	Weights() Weights
}

type engine struct {
	semantic SimilarityScorer
	lexical  LexicalScorer
	weights  Weights
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewEngine constructs a scoring engine around the given providers. Provider
// failures degrade that metric to zero with a warning on the result; they
// never fail the call.
func NewEngine(semantic SimilarityScorer, lexical LexicalScorer, weights Weights, logger zerolog.Logger) Engine {
	return &engine{
		semantic: semantic,
		lexical:  lexical,
		weights:  weights,
		logger:   logger.With().Str("component", "scoring_engine").Logger(),
		tracer:   otel.Tracer("github.com/scriba-edu/scriba-go-api/internal/scoring"),
	}
}

func (e *engine) Weights() Weights {
	return e.weights
}

// Score evaluates one input. The only error it returns is an invalid expected
// level; everything else resolves to a result, possibly with warnings.
func (e *engine) Score(ctx context.Context, input ScoreInput) (ScoreResult, error) {
	ctx, span := e.tracer.Start(ctx, "scoring.Score")
	defer span.End()

	expected := bloom.Understand
	if input.ExpectedLevel != nil {
		if !input.ExpectedLevel.Valid() {
			return ScoreResult{}, fmt.Errorf("expected level %q: %w", *input.ExpectedLevel, bloom.ErrInvalidLevel)
		}
		expected = *input.ExpectedLevel
	}

	if strings.TrimSpace(input.CandidateAnswer) == "" {
		span.SetAttributes(attribute.Bool("scoring.empty_candidate", true))
		return e.scoreEmptyCandidate(input, expected), nil
	}

	result := ScoreResult{
		ExpectedLevel:   expected,
		ImageSimilarity: input.ImageSimilarity,
	}

	semantic, err := e.semantic.Similarity(ctx, input.ReferenceAnswer, input.CandidateAnswer)
	if err != nil {
		e.logger.Warn().Err(err).Msg("semantic provider failed, metric degraded to zero")
		result.Warnings = append(result.Warnings, fmt.Sprintf("semantic similarity unavailable: %v", err))
		semantic = 0
	}
	result.SemanticScore = clamp01(semantic)

	lexical, err := e.lexical.Overlap(ctx, input.ReferenceAnswer, input.CandidateAnswer)
	if err != nil {
		e.logger.Warn().Err(err).Msg("lexical provider failed, metric degraded to zero")
		result.Warnings = append(result.Warnings, fmt.Sprintf("lexical overlap unavailable: %v", err))
		lexical = 0
	}
	result.LexicalOverlapScore = clamp01(lexical)

	result.KeywordCoverage = KeywordCoverage(input.CandidateAnswer, input.Keywords)
	result.ClassifiedLevel = bloom.Classify(input.Question, input.CandidateAnswer)
	result.LevelPenalty = LevelPenalty(expected, result.ClassifiedLevel)

	raw := e.weights.Semantic*result.SemanticScore +
		e.weights.Lexical*result.LexicalOverlapScore +
		e.weights.Keyword*result.KeywordCoverage -
		e.weights.Penalty*result.LevelPenalty
	if input.ImageSimilarity != nil {
		raw += e.weights.Image * clamp01(*input.ImageSimilarity)
	}

	result.RawScore = clamp01(raw)
	result.FinalScore = Curve(result.RawScore)

	span.SetAttributes(
		attribute.Float64("scoring.raw", result.RawScore),
		attribute.Float64("scoring.final", result.FinalScore),
		attribute.String("scoring.classified_level", result.ClassifiedLevel.String()),
	)
	return result, nil
}

// scoreEmptyCandidate handles blank answers: every text metric is zero, the
// classified level pins to Remember, and only the image term (when present)
// can contribute to the score.
func (e *engine) scoreEmptyCandidate(input ScoreInput, expected bloom.CognitiveLevel) ScoreResult {
	result := ScoreResult{
		ClassifiedLevel: bloom.Remember,
		ExpectedLevel:   expected,
		ImageSimilarity: input.ImageSimilarity,
	}
	if input.ImageSimilarity != nil {
		result.RawScore = clamp01(e.weights.Image * clamp01(*input.ImageSimilarity))
		result.FinalScore = Curve(result.RawScore)
	}
	return result
}
