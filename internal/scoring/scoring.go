// Package scoring fuses semantic similarity, lexical overlap, keyword
// coverage, and cognitive-level alignment into one bounded answer score. The
// engine holds no mutable state beyond its weights and cue tables, so a batch
// of inputs can be evaluated in any order or in parallel.
package scoring

import (
	"math"
	"strings"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
)

const (
	// NeutralKeywordCoverage is reported when no keyword list is supplied.
	// A missing list carries no signal either way, so coverage sits at the
	// midpoint instead of granting full credit.
	NeutralKeywordCoverage = 0.5

	// curveExponent is the concave grading curve applied to the raw score.
	// Values below 1 boost the low-to-mid range while fixing 0 and 1.
	curveExponent = 0.8

	// penaltyPerLevel and penaltyCap shape the under-performance penalty:
	// linear in the shortfall, saturating at three or more levels short.
	penaltyPerLevel = 0.05
	penaltyCap      = 0.15

	// exceedBonus is the flat penalty credit when the classified level lands
	// above the expected one. Never scaled by the size of the overshoot.
	exceedBonus = -0.02
)

// Weights holds the linear combination coefficients. The defaults are a
// calibrated policy; changing them changes every reported grade.
type Weights struct {
	Semantic float64
	Lexical  float64
	Keyword  float64
	Penalty  float64
	Image    float64
}

// DefaultWeights returns the calibrated production weights.
func DefaultWeights() Weights {
	return Weights{
		Semantic: 0.4,
		Lexical:  0.2,
		Keyword:  0.3,
		Penalty:  0.1,
		Image:    0.1,
	}
}

// ScoreInput carries one candidate answer and its grading context. Inputs are
// consumed once and never retained by the engine.
type ScoreInput struct {
	Question        string
	ReferenceAnswer string
	CandidateAnswer string
	ExpectedLevel   *bloom.CognitiveLevel
	Keywords        []string
	ImageSimilarity *float64
}

// ScoreResult is the immutable outcome of scoring one input. Warnings record
// provider failures that degraded a metric to zero without failing the item.
type ScoreResult struct {
	SemanticScore       float64
	LexicalOverlapScore float64
	KeywordCoverage     float64
	ClassifiedLevel     bloom.CognitiveLevel
	ExpectedLevel       bloom.CognitiveLevel
	LevelPenalty        float64
	RawScore            float64
	FinalScore          float64
	ImageSimilarity     *float64
	Warnings            []string
}

// KeywordCoverage returns the fraction of keywords found in the text by
// case-insensitive substring containment. Multi-word keywords must appear
// contiguously. An empty text scores 0 regardless of the list; a missing list
// yields NeutralKeywordCoverage.
func KeywordCoverage(text string, keywords []string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	if len(keywords) == 0 {
		return NeutralKeywordCoverage
	}
	lowered := strings.ToLower(text)
	matched := 0
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// LevelPenalty measures the mismatch between expected and classified levels on
// the six-level ordinal scale. Positive when the answer falls short (capped at
// penaltyCap), a flat exceedBonus when it lands above, zero when they agree.
func LevelPenalty(expected, classified bloom.CognitiveLevel) float64 {
	diff := expected.Ordinal() - classified.Ordinal()
	switch {
	case diff == 0:
		return 0
	case diff > 0:
		return math.Min(penaltyPerLevel*float64(diff), penaltyCap)
	default:
		return exceedBonus
	}
}

// Curve applies the concave grading curve to a clamped raw score.
func Curve(raw float64) float64 {
	return math.Pow(clamp01(raw), curveExponent)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
