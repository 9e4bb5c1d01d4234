// Package textsim computes lexical overlap between a reference answer and a
// candidate answer. Two complementary metrics are provided: a smoothed n-gram
// precision (order up to four, with brevity penalty) and a longest-common-
// subsequence F-measure. Both operate on case-folded whitespace tokens and are
// fully deterministic.
package textsim

import (
	"context"
	"math"
	"strings"
)

const (
	// maxNGramOrder is the highest n-gram order folded into the precision score.
	maxNGramOrder = 4
	// smoothingEpsilon replaces zero n-gram counts so a single missing order
	// does not null the geometric mean.
	smoothingEpsilon = 0.1
)

// Scorer exposes the blended overlap metric behind the provider interface the
// scoring engine consumes.
type Scorer struct{}

// NewScorer returns a lexical overlap scorer.
func NewScorer() Scorer {
	return Scorer{}
}

// Overlap returns the arithmetic mean of the n-gram precision score and the
// LCS F-measure for the pair. The context is accepted for interface symmetry
// with remote providers; the computation is local and never fails.
func (Scorer) Overlap(_ context.Context, reference, candidate string) (float64, error) {
	return OverlapScore(reference, candidate), nil
}

// OverlapScore blends the two sub-metrics with equal weight.
func OverlapScore(reference, candidate string) float64 {
	return (NGramPrecision(reference, candidate) + LCSFMeasure(reference, candidate)) / 2
}

// NGramPrecision scores the candidate against the reference with clipped
// n-gram precision up to order four, geometric-mean combined with uniform
// weights and multiplied by a brevity penalty. Zero counts are smoothed with a
// small epsilon numerator. Result lies in [0,1]; an empty side scores 0.
func NGramPrecision(reference, candidate string) float64 {
	refTokens := tokenize(reference)
	candTokens := tokenize(candidate)
	if len(refTokens) == 0 || len(candTokens) == 0 {
		return 0
	}

	logSum := 0.0
	weight := 1.0 / float64(maxNGramOrder)
	for n := 1; n <= maxNGramOrder; n++ {
		matched, total := clippedNGramMatches(refTokens, candTokens, n)
		if total == 0 {
			total = 1
		}
		precision := float64(matched) / float64(total)
		if matched == 0 {
			precision = smoothingEpsilon / float64(total)
		}
		logSum += weight * math.Log(precision)
	}

	score := brevityPenalty(len(refTokens), len(candTokens)) * math.Exp(logSum)
	return math.Min(score, 1)
}

// LCSFMeasure computes the F1 of LCS-precision and LCS-recall over the token
// sequences. Result lies in [0,1]; disjoint or empty inputs score 0.
func LCSFMeasure(reference, candidate string) float64 {
	refTokens := tokenize(reference)
	candTokens := tokenize(candidate)
	if len(refTokens) == 0 || len(candTokens) == 0 {
		return 0
	}

	lcs := lcsLength(refTokens, candTokens)
	if lcs == 0 {
		return 0
	}
	precision := float64(lcs) / float64(len(candTokens))
	recall := float64(lcs) / float64(len(refTokens))
	return 2 * precision * recall / (precision + recall)
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// clippedNGramMatches counts candidate n-grams also present in the reference,
// each clipped to its reference frequency, alongside the candidate n-gram total.
func clippedNGramMatches(refTokens, candTokens []string, n int) (matched, total int) {
	refCounts := countNGrams(refTokens, n)
	candCounts := countNGrams(candTokens, n)
	for gram, count := range candCounts {
		total += count
		if refCount, ok := refCounts[gram]; ok {
			if count > refCount {
				count = refCount
			}
			matched += count
		}
	}
	return matched, total
}

func countNGrams(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

func brevityPenalty(refLen, candLen int) float64 {
	if candLen >= refLen {
		return 1
	}
	return math.Exp(1 - float64(refLen)/float64(candLen))
}

// lcsLength runs the classic dynamic program over a single reused row.
func lcsLength(a, b []string) int {
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			current := row[j]
			switch {
			case a[i-1] == b[j-1]:
				row[j] = prev + 1
			case row[j-1] > row[j]:
				row[j] = row[j-1]
			}
			prev = current
		}
	}
	return row[len(b)]
}
