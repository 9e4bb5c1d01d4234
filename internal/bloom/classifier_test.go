package bloom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyQuestionLadder(t *testing.T) {
	cases := []struct {
		name     string
		question string
		want     CognitiveLevel
	}{
		{"define keyword", "Define the term cache coherence.", Remember},
		{"what keyword", "What is an interrupt controller?", Remember},
		{"explain keyword", "Explain the architecture of ARM processor.", Understand},
		{"solve keyword", "Solve the routing problem for this topology.", Apply},
		{"examine keyword", "Examine the differences in pipeline depth.", Analyze},
		{"justify keyword", "Justify the choice of scheduler.", Evaluate},
		{"formulate keyword", "Formulate a caching strategy.", Create},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, ok := ClassifyQuestion(tc.question)
			require.True(t, ok)
			require.Equal(t, tc.want, level)
		})
	}
}

func TestClassifyQuestionNoCue(t *testing.T) {
	_, ok := ClassifyQuestion("ARM AHB bus topology?")
	require.False(t, ok)
}

func TestClassifyQuestionFirstMatchWins(t *testing.T) {
	// Earlier tiers shadow later ones regardless of word position.
	level, ok := ClassifyQuestion("Analyze and define the memory hierarchy.")
	require.True(t, ok)
	require.Equal(t, Remember, level)

	level, ok = ClassifyQuestion("Create a design and explain it.")
	require.True(t, ok)
	require.Equal(t, Understand, level)
}

func TestClassifyAnswerLadder(t *testing.T) {
	cases := []struct {
		name   string
		answer string
		want   CognitiveLevel
	}{
		{"short copular", "A bus is a shared pathway.", Remember},
		{"causal", "The cache speeds reads because locality keeps hot lines resident.", Understand},
		{"applied", "This pattern can be used to isolate failures.", Apply},
		{"comparative analysis", "Compared to AHB, APB trades throughput for simplicity.", Analyze},
		{"judgement", "Write-back performs better for bursty workloads.", Evaluate},
		{"copular shadows judgement", "Write-back is better for bursty workloads.", Remember},
		{"novel", "We proposed a novel prefetch scheme.", Create},
		{"no cue defaults", "Pipelines overlap instruction phases.", Understand},
		{"empty defaults", "", Understand},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyAnswer(tc.answer))
		})
	}
}

func TestClassifyAnswerRememberRequiresShortAnswer(t *testing.T) {
	long := "The processor is " + strings.Repeat("very ", 20) + "fast."
	require.GreaterOrEqual(t, len(strings.Fields(long)), shortAnswerWordLimit)
	// The copular cue no longer counts; "is" also matches no later tier, so the
	// answer falls back to the Understand default.
	require.Equal(t, Understand, ClassifyAnswer(long))

	short := "The processor is fast."
	require.Equal(t, Remember, ClassifyAnswer(short))
}

func TestClassifyResolvesToHigherLevel(t *testing.T) {
	// Question demands Understand, answer demonstrates Evaluate.
	got := Classify("Explain the cache policy.", "Write-back performs better than write-through for bursty workloads.")
	require.Equal(t, Evaluate, got)

	// Question demands Evaluate, answer only recalls.
	got = Classify("Justify the choice of scheduler.", "The scheduler is round-robin.")
	require.Equal(t, Evaluate, got)
}

func TestClassifyQuestionUndefinedUsesAnswerLevel(t *testing.T) {
	got := Classify("ARM AHB bus topology?", "APB differs from AHB in handshake complexity.")
	require.Equal(t, Analyze, got)
}

func TestClassifyNeitherDefined(t *testing.T) {
	require.Equal(t, Understand, Classify("Topology?", "Pipelines overlap instruction phases."))
}

func TestClassifyDeterministic(t *testing.T) {
	question := "Explain the architecture of ARM processor."
	answer := "ARM includes the processor core, memory controller and interrupt controller."
	first := Classify(question, answer)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Classify(question, answer))
	}
}

func TestClassifyOrdinalOrderAcrossAnswers(t *testing.T) {
	question := "Describe the memory subsystem."
	weaker := ClassifyAnswer("The memory is fast.")
	stronger := ClassifyAnswer("We proposed a novel memory layout.")
	require.Less(t, weaker.Ordinal(), stronger.Ordinal())

	resolvedWeaker := Classify(question, "The memory is fast.")
	resolvedStronger := Classify(question, "We proposed a novel memory layout.")
	require.LessOrEqual(t, resolvedWeaker.Ordinal(), resolvedStronger.Ordinal())
}
