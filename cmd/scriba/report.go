package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
)

const focusCutoff = 0.5

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a results document as markdown",
	Long: `Report reads the results document written by evaluate and renders it
as a markdown grading report, one section per question plus a focus
list of low-scoring answers.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("results", "results.json", "results JSON document written by evaluate")
	reportCmd.Flags().String("out", "report.md", "output path for the markdown report")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	resultsPath, _ := cmd.Flags().GetString("results")
	outPath, _ := cmd.Flags().GetString("out")

	document, err := os.ReadFile(resultsPath)
	if err != nil {
		return fmt.Errorf("read results: %w", err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(document, &raw); err != nil {
		return fmt.Errorf("parse results: %w", err)
	}

	summary := resultsSummary{}
	if payload, ok := raw[summaryKey]; ok {
		if err := json.Unmarshal(payload, &summary); err != nil {
			return fmt.Errorf("parse results summary: %w", err)
		}
		delete(raw, summaryKey)
	}

	evaluations := make([]dto.EvaluationResponse, 0, len(raw))
	for number, payload := range raw {
		evaluation := dto.EvaluationResponse{}
		if err := json.Unmarshal(payload, &evaluation); err != nil {
			return fmt.Errorf("parse result %s: %w", number, err)
		}
		if evaluation.QuestionNumber == "" {
			evaluation.QuestionNumber = number
		}
		evaluations = append(evaluations, evaluation)
	}
	sort.Slice(evaluations, func(i, j int) bool {
		return questionOrdinal(evaluations[i].QuestionNumber) < questionOrdinal(evaluations[j].QuestionNumber)
	})

	markdown := renderMarkdown(summary, evaluations)
	if err := os.WriteFile(outPath, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Fprintf(os.Stderr, "report for %d questions written to %s\n", len(evaluations), outPath)
	return nil
}

func renderMarkdown(summary resultsSummary, evaluations []dto.EvaluationResponse) string {
	var b strings.Builder

	b.WriteString("# Grading Report\n\n")
	fmt.Fprintf(&b, "**Result:** %.2f%% (%s)\n\n", summary.AveragePercent, summary.Grade)
	fmt.Fprintf(&b, "**Answered:** %d of %d questions\n\n", summary.EvaluatedQuestions, summary.TotalQuestions)

	focus := make([]dto.EvaluationResponse, 0)

	for _, evaluation := range evaluations {
		if text := strings.TrimSpace(evaluation.QuestionText); text != "" {
			fmt.Fprintf(&b, "## %s. %s\n\n", evaluation.QuestionNumber, text)
		} else {
			fmt.Fprintf(&b, "## %s\n\n", evaluation.QuestionNumber)
		}

		b.WriteString("| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Semantic similarity | %.4f |\n", evaluation.SemanticScore)
		fmt.Fprintf(&b, "| Lexical overlap | %.4f |\n", evaluation.LexicalScore)
		fmt.Fprintf(&b, "| Keyword coverage | %.4f |\n", evaluation.KeywordCoverage)
		fmt.Fprintf(&b, "| Cognitive level | %s (expected %s) |\n", evaluation.ClassifiedLevel, evaluation.ExpectedLevel)
		fmt.Fprintf(&b, "| Level penalty | %.4f |\n", evaluation.LevelPenalty)
		if evaluation.ImageSimilarity != nil {
			fmt.Fprintf(&b, "| Diagram similarity | %.4f |\n", *evaluation.ImageSimilarity)
		}
		fmt.Fprintf(&b, "| Raw score | %.4f |\n", evaluation.RawScore)
		fmt.Fprintf(&b, "| Final score | %.4f (%s) |\n\n", evaluation.FinalScore, evaluation.Grade)

		writeLines(&b, "Strengths", evaluation.Feedback.Strengths)
		writeLines(&b, "Areas to improve", evaluation.Feedback.Weaknesses)
		writeLines(&b, "Suggestions", evaluation.Feedback.Suggestions)

		if len(evaluation.Warnings) > 0 {
			fmt.Fprintf(&b, "_Warnings: %s_\n\n", strings.Join(evaluation.Warnings, "; "))
		}

		if evaluation.FinalScore < focusCutoff {
			focus = append(focus, evaluation)
		}
	}

	if len(focus) > 0 {
		b.WriteString("## Focus Areas\n\n")
		for _, evaluation := range focus {
			fmt.Fprintf(&b, "- **%s** (%.2f%%)\n", evaluation.QuestionNumber, evaluation.FinalPercent)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeLines(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}

	fmt.Fprintf(b, "**%s**\n\n", title)
	for _, line := range lines {
		fmt.Fprintf(b, "- %s\n", line)
	}
	b.WriteString("\n")
}

func questionOrdinal(number string) int {
	value, err := strconv.Atoi(strings.TrimPrefix(number, "Q"))
	if err != nil {
		return 0
	}
	return value
}
