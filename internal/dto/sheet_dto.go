package dto

import (
	"time"

	"github.com/scriba-edu/scriba-go-api/internal/models"
)

// SheetUploadRequest carries the multipart metadata for an answer sheet
// upload. The file itself arrives as the "sheet" form part.
type SheetUploadRequest struct {
	ExamID    uint `form:"exam_id" validate:"required"`
	StudentID uint `form:"student_id" validate:"required"`
}

// SheetFilter describes query string filters for listing answer sheets.
type SheetFilter struct {
	ExamID    *uint   `query:"exam_id"`
	StudentID *uint   `query:"student_id"`
	Status    *string `query:"status" validate:"omitempty,oneof=received extracting extracted grading graded failed"`
}

// SheetAnswerResponse serializes one extracted answer.
type SheetAnswerResponse struct {
	Number     string `json:"number"`
	Text       string `json:"text"`
	HasDiagram bool   `json:"has_diagram"`
	DiagramURL string `json:"diagram_url,omitempty"`
}

// SheetResponse is the API view of an uploaded answer sheet.
type SheetResponse struct {
	ID            uint       `json:"id"`
	ExamID        uint       `json:"exam_id"`
	ExamTitle     string     `json:"exam_title,omitempty"`
	StudentID     uint       `json:"student_id"`
	StudentName   string     `json:"student_name,omitempty"`
	FileName      string     `json:"file_name"`
	FileURL       string     `json:"file_url"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	FinalPercent  *float64   `json:"final_percent,omitempty"`
	Grade         string     `json:"grade,omitempty"`
	GradedAt      *time.Time `json:"graded_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewSheetResponse converts an AnswerSheet model into a DTO.
func NewSheetResponse(model models.AnswerSheet) SheetResponse {
	response := SheetResponse{
		ID:            model.ID,
		ExamID:        model.ExamID,
		StudentID:     model.StudentID,
		FileName:      model.FileName,
		FileURL:       model.FileURL,
		Status:        model.Status,
		FailureReason: model.FailureReason,
		Grade:         model.Grade,
		GradedAt:      model.GradedAt,
		CreatedAt:     model.CreatedAt,
	}

	if model.FinalPercent != nil {
		percent := round2(*model.FinalPercent)
		response.FinalPercent = &percent
	}
	if model.Exam.ID != 0 {
		response.ExamTitle = model.Exam.Title
	}
	if model.Student.ID != 0 {
		response.StudentName = model.Student.Name
	}

	return response
}

// NewSheetResponseSlice converts answer sheet models into DTOs.
func NewSheetResponseSlice(sheets []models.AnswerSheet) []SheetResponse {
	responses := make([]SheetResponse, 0, len(sheets))
	for _, sheet := range sheets {
		responses = append(responses, NewSheetResponse(sheet))
	}

	return responses
}

// NewSheetAnswerResponseSlice converts extracted answers into DTOs.
func NewSheetAnswerResponseSlice(answers []models.SheetAnswer) []SheetAnswerResponse {
	responses := make([]SheetAnswerResponse, 0, len(answers))
	for _, answer := range answers {
		responses = append(responses, SheetAnswerResponse{
			Number:     answer.Number,
			Text:       answer.Text,
			HasDiagram: answer.HasDiagram,
			DiagramURL: answer.DiagramURL,
		})
	}

	return responses
}
