package bloom

import (
	"regexp"
	"strings"
)

// shortAnswerWordLimit bounds the Remember tier on answers: a copular cue only
// counts as recall when the whole answer stays under this many words.
const shortAnswerWordLimit = 20

type cueTier struct {
	level   CognitiveLevel
	pattern *regexp.Regexp
}

// Tier order is load-bearing: scanning stops at the first match, so a question
// containing both "define" and "analyze" classifies as Remember. Do not reorder.
var questionCues = []cueTier{
	{Remember, regexp.MustCompile(`\b(define|list|name|identify|recall|state|who|what|when|where)\b`)},
	{Understand, regexp.MustCompile(`\b(explain|describe|compare|contrast|summarize|interpret|paraphrase)\b`)},
	{Apply, regexp.MustCompile(`\b(apply|use|demonstrate|illustrate|solve|implement|design)\b`)},
	{Analyze, regexp.MustCompile(`\b(analyze|differentiate|organize|attribute|distinguish|examine)\b`)},
	{Evaluate, regexp.MustCompile(`\b(evaluate|assess|critique|judge|justify|recommend)\b`)},
	{Create, regexp.MustCompile(`\b(create|design|construct|plan|produce|develop|formulate)\b`)},
}

var answerCues = []cueTier{
	{Remember, regexp.MustCompile(`\b(is|are|was|were|means)\b`)},
	{Understand, regexp.MustCompile(`\b(because|since|as|consists of|includes)\b`)},
	{Apply, regexp.MustCompile(`\b(can be used to|applied|implemented|designed|built)\b`)},
	{Analyze, regexp.MustCompile(`\b(compared to|differs from|analysis|relationship|impact of|effect of)\b`)},
	{Evaluate, regexp.MustCompile(`\b(better|worse|more effective|less efficient|advantages|disadvantages|pros|cons)\b`)},
	{Create, regexp.MustCompile(`\b(new|novel|innovative|created|designed|developed|proposed)\b`)},
}

// ClassifyQuestion infers the cognitive demand of a question from its cue
// words. The boolean is false when no cue matches; questions carry no default.
func ClassifyQuestion(question string) (CognitiveLevel, bool) {
	lowered := strings.ToLower(question)
	for _, tier := range questionCues {
		if tier.pattern.MatchString(lowered) {
			return tier.level, true
		}
	}
	return "", false
}

// ClassifyAnswer infers the cognitive level demonstrated by an answer. The
// Remember tier additionally requires fewer than 20 words; longer answers fall
// through to the next tier. Answers with no matching cue default to Understand.
func ClassifyAnswer(answer string) CognitiveLevel {
	lowered := strings.ToLower(answer)
	wordCount := len(strings.Fields(lowered))
	for _, tier := range answerCues {
		if tier.level == Remember && wordCount >= shortAnswerWordLimit {
			continue
		}
		if tier.pattern.MatchString(lowered) {
			return tier.level
		}
	}
	return Understand
}

// Classify resolves a question/answer pair to a single level: the higher of
// the question-cue level and the answer-cue level when the question matched a
// cue, otherwise the answer-cue level alone (which itself defaults to
// Understand). Deterministic and side-effect free.
func Classify(question, answer string) CognitiveLevel {
	answerLevel := ClassifyAnswer(answer)
	if questionLevel, ok := ClassifyQuestion(question); ok {
		return Max(questionLevel, answerLevel)
	}
	return answerLevel
}
