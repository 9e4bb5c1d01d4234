package dto

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/scriba-edu/scriba-go-api/internal/models"
)

// ExamCreateRequest describes the payload for creating an exam.
type ExamCreateRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Subject     string `json:"subject" validate:"omitempty,max=128"`
	Description string `json:"description"`
}

// ExamUpdateRequest is used to change exam metadata or publish it.
type ExamUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=3,max=255"`
	Subject     *string `json:"subject" validate:"omitempty,max=128"`
	Description *string `json:"description"`
	Status      *string `json:"status" validate:"omitempty,oneof=draft published archived"`
}

// ExamFilter describes query string filters for listing exams.
type ExamFilter struct {
	Status  *string `query:"status" validate:"omitempty,oneof=draft published archived"`
	Subject *string `query:"subject"`
}

// AnswerKeyEntry mirrors one question in the portable answer-key JSON format:
// a map of "Q<n>" to this record.
type AnswerKeyEntry struct {
	Text       string   `json:"text"`
	Answer     string   `json:"answer"`
	BloomLevel string   `json:"bloom_level,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Image      string   `json:"image,omitempty"`
}

// AnswerKeyImport is the bulk answer-key document keyed by question number.
type AnswerKeyImport map[string]AnswerKeyEntry

// Numbers returns the document's question numbers in ordinal order,
// so "Q2" sorts before "Q10".
func (k AnswerKeyImport) Numbers() []string {
	numbers := make([]string, 0, len(k))
	for number := range k {
		numbers = append(numbers, number)
	}
	sort.Slice(numbers, func(i, j int) bool {
		return questionOrdinal(numbers[i]) < questionOrdinal(numbers[j])
	})

	return numbers
}

func questionOrdinal(number string) int {
	value, err := strconv.Atoi(strings.TrimPrefix(number, "Q"))
	if err != nil {
		return 0
	}
	return value
}

// QuestionResponse serializes one answer-key question.
type QuestionResponse struct {
	ID            uint     `json:"id"`
	Number        string   `json:"number"`
	Text          string   `json:"text"`
	ExpectedLevel string   `json:"expected_level"`
	Keywords      []string `json:"keywords"`
	DiagramURL    string   `json:"diagram_url,omitempty"`
}

// ExamResponse is returned to API clients when viewing exams.
type ExamResponse struct {
	ID          uint               `json:"id"`
	Title       string             `json:"title"`
	Subject     string             `json:"subject"`
	Description string             `json:"description"`
	Status      string             `json:"status"`
	Questions   []QuestionResponse `json:"questions"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewExamResponse converts an Exam model into a DTO.
func NewExamResponse(model models.Exam) ExamResponse {
	response := ExamResponse{
		ID:          model.ID,
		Title:       model.Title,
		Subject:     model.Subject,
		Description: model.Description,
		Status:      model.Status,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}

	if len(model.Questions) > 0 {
		questions := make([]QuestionResponse, 0, len(model.Questions))
		for _, question := range model.Questions {
			questions = append(questions, QuestionResponse{
				ID:            question.ID,
				Number:        question.Number,
				Text:          question.Text,
				ExpectedLevel: question.ExpectedLevel,
				Keywords:      question.Keywords,
				DiagramURL:    question.DiagramURL,
			})
		}
		response.Questions = questions
	}

	return response
}

// NewExamResponseSlice converts exam models into DTOs.
func NewExamResponseSlice(exams []models.Exam) []ExamResponse {
	responses := make([]ExamResponse, 0, len(exams))
	for _, exam := range exams {
		responses = append(responses, NewExamResponse(exam))
	}

	return responses
}

// NewAnswerKeyImport exports stored questions back into the portable
// answer-key document. Reference answers are only exposed through this
// export, never through QuestionResponse.
func NewAnswerKeyImport(questions []models.ExamQuestion) AnswerKeyImport {
	document := make(AnswerKeyImport, len(questions))
	for _, question := range questions {
		document[question.Number] = AnswerKeyEntry{
			Text:       question.Text,
			Answer:     question.ReferenceAnswer,
			BloomLevel: question.ExpectedLevel,
			Keywords:   question.Keywords,
			Image:      question.DiagramURL,
		}
	}

	return document
}
