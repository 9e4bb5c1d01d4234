package scoring

import (
	"fmt"
	"strings"
)

// Feedback thresholds on the component scores.
const (
	semanticStrong = 0.75
	semanticWeak   = 0.4
	coverageStrong = 0.8
	coverageWeak   = 0.5
	lexicalWeak    = 0.3
	imageStrong    = 0.7
)

// Feedback groups generated feedback lines for one graded answer.
type Feedback struct {
	Strengths   []string
	Weaknesses  []string
	Suggestions []string
}

// MissingKeywords returns the keywords not found in text, preserving
// the original order. Matching is case-insensitive substring search,
// the same rule KeywordCoverage uses.
func MissingKeywords(text string, keywords []string) []string {
	lowered := strings.ToLower(text)
	missing := make([]string, 0)
	for _, keyword := range keywords {
		trimmed := strings.TrimSpace(keyword)
		if trimmed == "" {
			continue
		}
		if !strings.Contains(lowered, strings.ToLower(trimmed)) {
			missing = append(missing, trimmed)
		}
	}
	return missing
}

// BuildFeedback derives human-readable feedback from a score result.
func BuildFeedback(input ScoreInput, result ScoreResult) Feedback {
	feedback := Feedback{
		Strengths:   []string{},
		Weaknesses:  []string{},
		Suggestions: []string{},
	}

	if strings.TrimSpace(input.CandidateAnswer) == "" {
		feedback.Weaknesses = append(feedback.Weaknesses, "No answer was provided.")
		return feedback
	}

	if result.SemanticScore >= semanticStrong {
		feedback.Strengths = append(feedback.Strengths, "Answer closely matches the expected meaning.")
	} else if result.SemanticScore < semanticWeak {
		feedback.Weaknesses = append(feedback.Weaknesses, "Answer diverges from the expected meaning.")
	}

	if len(input.Keywords) > 0 {
		if result.KeywordCoverage >= coverageStrong {
			feedback.Strengths = append(feedback.Strengths, "Covers most of the expected key terms.")
		} else if result.KeywordCoverage < coverageWeak {
			missing := MissingKeywords(input.CandidateAnswer, input.Keywords)
			feedback.Weaknesses = append(feedback.Weaknesses, "Several expected key terms are missing.")
			if len(missing) > 0 {
				feedback.Suggestions = append(feedback.Suggestions,
					fmt.Sprintf("Mention: %s.", strings.Join(missing, ", ")))
			}
		}
	}

	if result.LexicalOverlapScore < lexicalWeak {
		feedback.Weaknesses = append(feedback.Weaknesses, "Little phrasing overlap with the reference answer.")
	}

	if result.ClassifiedLevel.Ordinal() >= result.ExpectedLevel.Ordinal() {
		feedback.Strengths = append(feedback.Strengths,
			fmt.Sprintf("Shows %s-level thinking, meeting the expected %s level.",
				strings.ToLower(result.ClassifiedLevel.String()),
				strings.ToLower(result.ExpectedLevel.String())))
	} else {
		feedback.Suggestions = append(feedback.Suggestions,
			fmt.Sprintf("Aim for %s-level reasoning; the answer reads at the %s level.",
				strings.ToLower(result.ExpectedLevel.String()),
				strings.ToLower(result.ClassifiedLevel.String())))
	}

	if result.ImageSimilarity != nil && *result.ImageSimilarity >= imageStrong {
		feedback.Strengths = append(feedback.Strengths, "Diagram closely matches the reference.")
	}

	return feedback
}
