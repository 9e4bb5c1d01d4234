package ai

import (
	"context"
	"errors"
)

// ErrScorerDisabled is returned by DisabledScorer on every call.
var ErrScorerDisabled = errors.New("semantic scorer disabled")

// DisabledScorer stands in for the embedding scorer when no API key is
// configured. Every call fails with ErrScorerDisabled, which the scoring
// engine absorbs by zeroing the semantic metric and attaching a warning.
type DisabledScorer struct{}

// NewDisabledScorer constructs the stand-in scorer.
func NewDisabledScorer() DisabledScorer {
	return DisabledScorer{}
}

// Similarity always reports the scorer as disabled.
func (DisabledScorer) Similarity(context.Context, string, string) (float64, error) {
	return 0, ErrScorerDisabled
}
