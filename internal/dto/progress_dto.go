package dto

import "time"

// Grading lifecycle event types pushed to progress subscribers.
const (
	EventExtractionStarted   = "extraction.started"
	EventExtractionCompleted = "extraction.completed"
	EventExtractionFailed    = "extraction.failed"
	EventGradingStarted      = "grading.started"
	EventGradingQuestion     = "grading.question"
	EventGradingCompleted    = "grading.completed"
	EventGradingFailed       = "grading.failed"
)

// ProgressEvent describes one step of the grading pipeline for a sheet.
type ProgressEvent struct {
	Type      string    `json:"type"`
	SheetID   uint      `json:"sheet_id"`
	ExamID    uint      `json:"exam_id,omitempty"`
	StudentID uint      `json:"student_id,omitempty"`
	Question  string    `json:"question,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Grade     string    `json:"grade,omitempty"`
	Percent   *float64  `json:"percent,omitempty"`
	Message   string    `json:"message,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
