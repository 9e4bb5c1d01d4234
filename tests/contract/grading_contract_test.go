package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/handler"
)

type stubGradingService struct {
	evaluation dto.EvaluationResponse
	result     dto.ResultResponse
}

func (s stubGradingService) Enqueue(context.Context, uint) error { return nil }

func (s stubGradingService) Start(context.Context) {}

func (s stubGradingService) GradeSheet(context.Context, uint) (dto.ResultResponse, error) {
	return s.result, nil
}

func (s stubGradingService) GetResult(context.Context, uint) (dto.ResultResponse, error) {
	return s.result, nil
}

func (s stubGradingService) Score(context.Context, dto.ScoreRequest) (dto.EvaluationResponse, error) {
	return s.evaluation, nil
}

func sampleEvaluation() dto.EvaluationResponse {
	similarity := 0.8
	return dto.EvaluationResponse{
		QuestionNumber:  "Q1",
		QuestionText:    "Define an interrupt.",
		SemanticScore:   0.9,
		LexicalScore:    0.5,
		KeywordCoverage: 1.0,
		ClassifiedLevel: "Remember",
		ExpectedLevel:   "Remember",
		LevelPenalty:    0,
		RawScore:        0.76,
		FinalScore:      0.8029,
		FinalPercent:    80.29,
		ImageSimilarity: &similarity,
		Grade:           "A-",
		Feedback: dto.FeedbackResponse{
			Strengths:   []string{"Strong semantic match with the reference answer."},
			Weaknesses:  []string{},
			Suggestions: []string{"Work through practice problems that apply this concept."},
		},
		Warnings: []string{"semantic similarity unavailable: quota exhausted"},
	}
}

func TestScoreResponseContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "score_response.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	svc := stubGradingService{evaluation: sampleEvaluation()}
	gradingHandler := handler.NewGradingHandler(svc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	app := fiber.New()
	gradingHandler.RegisterScore(app.Group("/api/score"))

	body := strings.NewReader(`{"question":"Define an interrupt.","reference_answer":"An interrupt is a signal.","candidate_answer":"An interrupt is a signal."}`)
	req := httptest.NewRequest(http.MethodPost, "/api/score", body)
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestResultResponseContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "result_response.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	now := time.Now().UTC()
	result := dto.ResultResponse{
		SheetID:       3,
		ExamID:        7,
		ExamTitle:     "Embedded Systems",
		StudentID:     5,
		StudentName:   "Ada Lovelace",
		Status:        "graded",
		QuestionCount: 2,
		GradedCount:   2,
		FinalPercent:  ptrFloat(62.5),
		Grade:         "C-",
		GradedAt:      &now,
		Evaluations:   []dto.EvaluationResponse{sampleEvaluation()},
	}

	svc := stubGradingService{result: result}
	gradingHandler := handler.NewGradingHandler(svc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	app := fiber.New()
	gradingHandler.Register(app.Group("/api/sheets"))

	req := httptest.NewRequest(http.MethodGet, "/api/sheets/3/result", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NoError(t, schema.Validate(payload))
}
