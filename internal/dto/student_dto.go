package dto

import (
	"time"

	"github.com/scriba-edu/scriba-go-api/internal/models"
)

// StudentCreateRequest registers a student.
type StudentCreateRequest struct {
	Name   string `json:"name" validate:"required,min=2,max=255"`
	Email  string `json:"email" validate:"required,email"`
	Cohort string `json:"cohort" validate:"omitempty,max=64"`
}

// StudentSummaryResponse aggregates grading history for one student.
// This is the payload cached per student.
type StudentSummaryResponse struct {
	StudentID    uint          `json:"student_id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Cohort       string        `json:"cohort,omitempty"`
	Summary      GradingStats  `json:"summary"`
	RecentSheets []SheetResult `json:"recent_sheets"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// GradingStats captures aggregated statistics for the summary.
type GradingStats struct {
	TotalSheets    int      `json:"total_sheets"`
	Graded         int      `json:"graded"`
	Pending        int      `json:"pending"`
	Failed         int      `json:"failed"`
	AveragePercent float64  `json:"average_percent"`
	BestPercent    *float64 `json:"best_percent"`
	BestGrade      string   `json:"best_grade,omitempty"`
}

// SheetResult details one graded sheet for the recent activity feed.
type SheetResult struct {
	SheetID      uint       `json:"sheet_id"`
	ExamID       uint       `json:"exam_id"`
	ExamTitle    string     `json:"exam_title"`
	Status       string     `json:"status"`
	FinalPercent *float64   `json:"final_percent"`
	Grade        string     `json:"grade,omitempty"`
	GradedAt     *time.Time `json:"graded_at"`
}

// StudentResponse is the basic student record view.
type StudentResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Cohort    string    `json:"cohort,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStudentResponse converts a Student model into a DTO.
func NewStudentResponse(model models.Student) StudentResponse {
	return StudentResponse{
		ID:        model.ID,
		Name:      model.Name,
		Email:     model.Email,
		Cohort:    model.Cohort,
		CreatedAt: model.CreatedAt,
	}
}

// NewSheetResult converts an answer sheet into an activity feed entry.
func NewSheetResult(sheet models.AnswerSheet) SheetResult {
	result := SheetResult{
		SheetID:  sheet.ID,
		ExamID:   sheet.ExamID,
		Status:   sheet.Status,
		Grade:    sheet.Grade,
		GradedAt: sheet.GradedAt,
	}

	if sheet.FinalPercent != nil {
		percent := round2(*sheet.FinalPercent)
		result.FinalPercent = &percent
	}
	if sheet.Exam.ID != 0 {
		result.ExamTitle = sheet.Exam.Title
	}

	return result
}
