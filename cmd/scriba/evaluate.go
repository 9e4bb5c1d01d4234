package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/scoring"
	"github.com/scriba-edu/scriba-go-api/internal/service"
	"github.com/scriba-edu/scriba-go-api/internal/textsim"
	"github.com/scriba-edu/scriba-go-api/pkg/ai"
)

// studentAnswer is one entry in the student answers document, keyed by
// question number like the answer key.
type studentAnswer struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// resultsSummary aggregates the whole run under the "_summary" key of
// the results document.
type resultsSummary struct {
	TotalQuestions     int     `json:"total_questions"`
	EvaluatedQuestions int     `json:"evaluated_questions"`
	AverageScore       float64 `json:"average_score"`
	AveragePercent     float64 `json:"average_percent"`
	Grade              string  `json:"grade"`
}

const summaryKey = "_summary"

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Grade student answers against an answer key",
	Long: `Evaluate scores every question in the answer key against the matching
student answer and writes one results document. Questions without an
answer score zero across all metrics. Answers for question numbers not
in the key are reported on stderr and skipped.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().String("key", "answer_key.json", "answer key JSON document")
	evaluateCmd.Flags().String("answers", "student_answers.json", "student answers JSON document")
	evaluateCmd.Flags().String("out", "results.json", "output path for the results document")
	evaluateCmd.Flags().Bool("offline", false, "skip the semantic embedding provider")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	keyPath, _ := cmd.Flags().GetString("key")
	answersPath, _ := cmd.Flags().GetString("answers")
	outPath, _ := cmd.Flags().GetString("out")
	offline, _ := cmd.Flags().GetBool("offline")

	keyDocument, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("read answer key: %w", err)
	}

	key, err := service.ParseAnswerKey(keyDocument)
	if err != nil {
		return err
	}

	answersDocument, err := os.ReadFile(answersPath)
	if err != nil {
		return fmt.Errorf("read student answers: %w", err)
	}

	answers := map[string]studentAnswer{}
	if err := json.Unmarshal(answersDocument, &answers); err != nil {
		return fmt.Errorf("parse student answers: %w", err)
	}

	reportUnknownAnswers(key, answers)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	engine := scoring.NewEngine(semanticScorer(offline, logger), textsim.NewScorer(), scoring.DefaultWeights(), logger)
	comparator := imageComparator(logger)

	ctx := context.Background()
	numbers := key.Numbers()
	results := make(map[string]interface{}, len(numbers)+1)
	summary := resultsSummary{TotalQuestions: len(numbers)}
	total := 0.0

	for _, number := range numbers {
		entry := key[number]
		answer := answers[number]

		input := scoring.ScoreInput{
			Question:        entry.Text,
			ReferenceAnswer: entry.Answer,
			CandidateAnswer: answer.Text,
			Keywords:        entry.Keywords,
		}

		if raw := strings.TrimSpace(entry.BloomLevel); raw != "" {
			level, err := bloom.ParseLevel(raw)
			if err != nil {
				return fmt.Errorf("question %s: %w", number, err)
			}
			input.ExpectedLevel = &level
		}

		similarity, warning := compareImages(ctx, comparator, entry.Image, answer.Image)
		input.ImageSimilarity = similarity

		result, err := engine.Score(ctx, input)
		if err != nil {
			return fmt.Errorf("question %s: %w", number, err)
		}
		if warning != "" {
			result.Warnings = append([]string{warning}, result.Warnings...)
		}

		response := dto.NewScoreResponse(result, scoring.BuildFeedback(input, result))
		response.QuestionNumber = number
		response.QuestionText = entry.Text
		results[number] = response

		if strings.TrimSpace(answer.Text) != "" {
			summary.EvaluatedQuestions++
		}
		total += result.FinalScore

		fmt.Fprintf(os.Stderr, "%s: %.2f%% (%s)\n", number, response.FinalPercent, response.Grade)
	}

	average := total / float64(summary.TotalQuestions)
	summary.AverageScore = math.Round(average*10000) / 10000
	summary.AveragePercent = math.Round(average*100*100) / 100
	summary.Grade = scoring.LetterGrade(average * 100)
	results[summaryKey] = summary

	output, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(outPath, output, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	fmt.Fprintf(os.Stderr, "graded %d of %d answered questions, average %.2f%% (%s), results in %s\n",
		summary.EvaluatedQuestions, summary.TotalQuestions, summary.AveragePercent, summary.Grade, outPath)
	return nil
}

// semanticScorer picks the embedding provider the same way the API
// server does. Any misconfiguration degrades to the disabled scorer so
// a batch run still completes with warnings.
func semanticScorer(offline bool, logger zerolog.Logger) scoring.SimilarityScorer {
	if offline {
		return ai.NewDisabledScorer()
	}

	apiKey := viper.GetString("openai_api_key")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SCRIBA_OPENAI_API_KEY is not set, semantic scoring disabled")
		return ai.NewDisabledScorer()
	}

	scorer, err := ai.NewOpenAIScorer(ai.OpenAIConfig{
		APIKey: apiKey,
		Model:  viper.GetString("openai_embedding_model"),
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "semantic scoring disabled: %v\n", err)
		return ai.NewDisabledScorer()
	}

	return scorer
}

func imageComparator(logger zerolog.Logger) ai.ImageComparator {
	baseURL := viper.GetString("clip.url")
	if baseURL == "" {
		return nil
	}

	comparator, err := ai.NewClipComparator(ai.ClipConfig{BaseURL: baseURL, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "image comparison disabled: %v\n", err)
		return nil
	}

	return comparator
}

// compareImages resolves the diagram similarity for one question.
// Comparison failures degrade to a warning instead of failing the run.
func compareImages(ctx context.Context, comparator ai.ImageComparator, reference, candidate string) (*float64, string) {
	if reference == "" || candidate == "" {
		return nil, ""
	}
	if comparator == nil {
		return nil, "image similarity unavailable: SCRIBA_CLIP_URL is not set"
	}

	similarity, err := comparator.Compare(ctx, reference, candidate)
	if err != nil {
		return nil, fmt.Sprintf("image similarity unavailable: %v", err)
	}

	return &similarity, ""
}

func reportUnknownAnswers(key dto.AnswerKeyImport, answers map[string]studentAnswer) {
	unknown := make([]string, 0)
	for number := range answers {
		if _, ok := key[number]; !ok {
			unknown = append(unknown, number)
		}
	}
	sort.Strings(unknown)
	for _, number := range unknown {
		fmt.Fprintf(os.Stderr, "skipping %s: not in the answer key\n", number)
	}
}
