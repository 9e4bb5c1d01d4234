// Package bloom classifies questions and answers on Bloom's taxonomy using
// lexical cue matching. The six levels form a strict total order used by the
// scoring engine to penalize answers that fall short of a question's demand.
package bloom

import (
	"errors"
	"fmt"
	"strings"
)

// CognitiveLevel is one of the six ordered levels of Bloom's taxonomy.
type CognitiveLevel string

const (
	// Remember covers recall of facts and basic concepts.
	Remember CognitiveLevel = "Remember"
	// Understand covers explaining ideas or concepts.
	Understand CognitiveLevel = "Understand"
	// Apply covers using information in new situations.
	Apply CognitiveLevel = "Apply"
	// Analyze covers drawing connections among ideas.
	Analyze CognitiveLevel = "Analyze"
	// Evaluate covers justifying a stand or decision.
	Evaluate CognitiveLevel = "Evaluate"
	// Create covers producing new or original work.
	Create CognitiveLevel = "Create"
)

// ErrInvalidLevel indicates a level name outside the six-level enumeration.
var ErrInvalidLevel = errors.New("invalid cognitive level")

var levelOrdinals = map[CognitiveLevel]int{
	Remember:   0,
	Understand: 1,
	Apply:      2,
	Analyze:    3,
	Evaluate:   4,
	Create:     5,
}

// Levels returns the six levels in ascending order of sophistication.
func Levels() []CognitiveLevel {
	return []CognitiveLevel{Remember, Understand, Apply, Analyze, Evaluate, Create}
}

// Ordinal returns the level's position on the ascending scale, 0 through 5.
func (l CognitiveLevel) Ordinal() int {
	return levelOrdinals[l]
}

// Valid reports whether the level is one of the six enumerated values.
func (l CognitiveLevel) Valid() bool {
	_, ok := levelOrdinals[l]
	return ok
}

func (l CognitiveLevel) String() string {
	return string(l)
}

// ParseLevel converts a case-insensitive level name into a CognitiveLevel.
// Unknown names return ErrInvalidLevel rather than a default; a silently
// substituted level would corrupt the ordinal penalty downstream.
func ParseLevel(raw string) (CognitiveLevel, error) {
	normalized := strings.TrimSpace(raw)
	for level := range levelOrdinals {
		if strings.EqualFold(normalized, string(level)) {
			return level, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
}

// Max returns the higher of two levels on the ordinal scale.
func Max(a, b CognitiveLevel) CognitiveLevel {
	if a.Ordinal() >= b.Ordinal() {
		return a
	}
	return b
}
