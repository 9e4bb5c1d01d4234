package dto

import (
	"math"
	"time"

	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/scoring"
)

// ScoreRequest grades a single free-text answer without persisting
// anything. Used by the ad-hoc scoring endpoint and the CLI.
type ScoreRequest struct {
	Question        string   `json:"question" validate:"required"`
	ReferenceAnswer string   `json:"reference_answer" validate:"required"`
	CandidateAnswer string   `json:"candidate_answer"`
	ExpectedLevel   *string  `json:"expected_level" validate:"omitempty"`
	Keywords        []string `json:"keywords"`
	ImageSimilarity *float64 `json:"image_similarity" validate:"omitempty,gte=0,lte=1"`
}

// FeedbackResponse groups generated feedback lines by kind.
type FeedbackResponse struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

// EvaluationResponse is the API view of one graded answer. Scores are
// rounded to four decimals and percentages to two at this layer only;
// stored values keep full precision.
type EvaluationResponse struct {
	QuestionNumber  string           `json:"question_number"`
	QuestionText    string           `json:"question_text,omitempty"`
	SemanticScore   float64          `json:"semantic_score"`
	LexicalScore    float64          `json:"lexical_overlap_score"`
	KeywordCoverage float64          `json:"keyword_coverage"`
	ClassifiedLevel string           `json:"classified_level"`
	ExpectedLevel   string           `json:"expected_level"`
	LevelPenalty    float64          `json:"level_penalty"`
	RawScore        float64          `json:"raw_score"`
	FinalScore      float64          `json:"final_score"`
	FinalPercent    float64          `json:"final_percent"`
	ImageSimilarity *float64         `json:"image_similarity,omitempty"`
	Grade           string           `json:"grade"`
	Feedback        FeedbackResponse `json:"feedback"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// ResultResponse aggregates all evaluations for one answer sheet.
type ResultResponse struct {
	SheetID       uint                 `json:"sheet_id"`
	ExamID        uint                 `json:"exam_id"`
	ExamTitle     string               `json:"exam_title,omitempty"`
	StudentID     uint                 `json:"student_id"`
	StudentName   string               `json:"student_name,omitempty"`
	Status        string               `json:"status"`
	QuestionCount int                  `json:"question_count"`
	GradedCount   int                  `json:"graded_count"`
	FinalPercent  *float64             `json:"final_percent,omitempty"`
	Grade         string               `json:"grade,omitempty"`
	GradedAt      *time.Time           `json:"graded_at,omitempty"`
	Evaluations   []EvaluationResponse `json:"evaluations"`
}

// NewEvaluationResponse converts an evaluation model into a DTO.
func NewEvaluationResponse(model models.AnswerEvaluation) EvaluationResponse {
	response := EvaluationResponse{
		SemanticScore:   round4(model.SemanticScore),
		LexicalScore:    round4(model.LexicalScore),
		KeywordCoverage: round4(model.KeywordCoverage),
		ClassifiedLevel: model.ClassifiedLevel,
		ExpectedLevel:   model.ExpectedLevel,
		LevelPenalty:    round4(model.LevelPenalty),
		RawScore:        round4(model.RawScore),
		FinalScore:      round4(model.FinalScore),
		FinalPercent:    round2(model.FinalPercent()),
		Grade:           model.Grade,
		Warnings:        model.Warnings,
		Feedback: FeedbackResponse{
			Strengths:   feedbackLines(model.Feedback, "strengths"),
			Weaknesses:  feedbackLines(model.Feedback, "weaknesses"),
			Suggestions: feedbackLines(model.Feedback, "suggestions"),
		},
	}

	if model.ImageSimilarity != nil {
		similarity := round4(*model.ImageSimilarity)
		response.ImageSimilarity = &similarity
	}
	if model.Question.ID != 0 {
		response.QuestionNumber = model.Question.Number
		response.QuestionText = model.Question.Text
	}

	return response
}

// NewEvaluationResponseSlice converts evaluation models into DTOs.
func NewEvaluationResponseSlice(evaluations []models.AnswerEvaluation) []EvaluationResponse {
	responses := make([]EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		responses = append(responses, NewEvaluationResponse(evaluation))
	}

	return responses
}

// NewResultResponse builds the sheet-level result view.
func NewResultResponse(sheet models.AnswerSheet, questionCount int, evaluations []models.AnswerEvaluation) ResultResponse {
	response := ResultResponse{
		SheetID:       sheet.ID,
		ExamID:        sheet.ExamID,
		StudentID:     sheet.StudentID,
		Status:        sheet.Status,
		QuestionCount: questionCount,
		GradedCount:   len(evaluations),
		Grade:         sheet.Grade,
		GradedAt:      sheet.GradedAt,
		Evaluations:   NewEvaluationResponseSlice(evaluations),
	}

	if sheet.FinalPercent != nil {
		percent := round2(*sheet.FinalPercent)
		response.FinalPercent = &percent
	}
	if sheet.Exam.ID != 0 {
		response.ExamTitle = sheet.Exam.Title
	}
	if sheet.Student.ID != 0 {
		response.StudentName = sheet.Student.Name
	}

	return response
}

// NewScoreResponse maps an in-memory score result into the API shape
// without a persisted evaluation row.
func NewScoreResponse(result scoring.ScoreResult, feedback scoring.Feedback) EvaluationResponse {
	response := EvaluationResponse{
		SemanticScore:   round4(result.SemanticScore),
		LexicalScore:    round4(result.LexicalOverlapScore),
		KeywordCoverage: round4(result.KeywordCoverage),
		ClassifiedLevel: result.ClassifiedLevel.String(),
		ExpectedLevel:   result.ExpectedLevel.String(),
		LevelPenalty:    round4(result.LevelPenalty),
		RawScore:        round4(result.RawScore),
		FinalScore:      round4(result.FinalScore),
		FinalPercent:    round2(result.FinalScore * 100),
		Grade:           scoring.LetterGrade(result.FinalScore * 100),
		Warnings:        result.Warnings,
		Feedback: FeedbackResponse{
			Strengths:   feedback.Strengths,
			Weaknesses:  feedback.Weaknesses,
			Suggestions: feedback.Suggestions,
		},
	}

	if result.ImageSimilarity != nil {
		similarity := round4(*result.ImageSimilarity)
		response.ImageSimilarity = &similarity
	}

	return response
}

func feedbackLines(feedback map[string]interface{}, key string) []string {
	raw, ok := feedback[key]
	if !ok {
		return []string{}
	}

	switch values := raw.(type) {
	case []string:
		return values
	case []interface{}:
		lines := make([]string, 0, len(values))
		for _, value := range values {
			if line, ok := value.(string); ok {
				lines = append(lines, line)
			}
		}
		return lines
	default:
		return []string{}
	}
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
