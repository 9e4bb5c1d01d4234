package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// ExtractedAnswer is one question's answer text recovered from OCR output.
type ExtractedAnswer struct {
	Number string
	Text   string
}

// questionHeading matches the three numbering styles that appear on sheets:
// "Q1" (optionally with a dot), "1)", and "Question 1".
var questionHeading = regexp.MustCompile(`(?i)(?:\bq(\d+)\.?|(\d+)\)|\bquestion\s+(\d+))`)

// SplitAnswers cuts OCR text into question-numbered segments. Text before the
// first heading is discarded; a repeated question number overwrites the
// earlier segment. Numbers are normalized to the "Q<n>" form.
func SplitAnswers(text string) []ExtractedAnswer {
	matches := questionHeading.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	order := make([]string, 0, len(matches))
	segments := make(map[string]string, len(matches))
	for i, match := range matches {
		number := normalizeNumber(text, match)
		if number == "" {
			continue
		}

		segmentStart := match[1]
		segmentEnd := len(text)
		if i+1 < len(matches) {
			segmentEnd = matches[i+1][0]
		}
		segment := strings.TrimSpace(text[segmentStart:segmentEnd])

		if _, seen := segments[number]; !seen {
			order = append(order, number)
		}
		segments[number] = segment
	}

	answers := make([]ExtractedAnswer, 0, len(order))
	for _, number := range order {
		answers = append(answers, ExtractedAnswer{Number: number, Text: segments[number]})
	}
	return answers
}

// normalizeNumber pulls the digits out of whichever capture group matched.
func normalizeNumber(text string, match []int) string {
	for group := 1; group <= 3; group++ {
		start, end := match[2*group], match[2*group+1]
		if start >= 0 {
			return fmt.Sprintf("Q%s", text[start:end])
		}
	}
	return ""
}
