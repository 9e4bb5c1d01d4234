package models

import "time"

// AnswerSheet represents one student's uploaded sheet for an exam and tracks
// it through extraction and grading.
type AnswerSheet struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ExamID        uint       `gorm:"not null" json:"exam_id"`
	StudentID     uint       `gorm:"not null" json:"student_id"`
	FileURL       string     `gorm:"size:512" json:"file_url"`
	FileName      string     `gorm:"size:255" json:"file_name"`
	MimeType      string     `gorm:"size:128" json:"mime_type"`
	Checksum      string     `gorm:"size:64" json:"checksum"`
	SizeBytes     int64      `json:"size_bytes"`
	Status        string     `gorm:"size:32;not null" json:"status"`
	FailureReason string     `gorm:"type:text" json:"failure_reason,omitempty"`
	FinalPercent  *float64   `json:"final_percent"`
	Grade         string     `gorm:"size:8" json:"grade"`
	GradedAt      *time.Time `json:"graded_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Exam          Exam       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student       Student    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

const (
	// SheetStatusReceived indicates the file is stored but not yet extracted.
	SheetStatusReceived = "received"
	// SheetStatusExtracting indicates extraction is in progress.
	SheetStatusExtracting = "extracting"
	// SheetStatusExtracted indicates per-question answers are available.
	SheetStatusExtracted = "extracted"
	// SheetStatusGrading indicates scoring is in progress.
	SheetStatusGrading = "grading"
	// SheetStatusGraded indicates every question has an evaluation.
	SheetStatusGraded = "graded"
	// SheetStatusFailed indicates extraction or grading gave up; see FailureReason.
	SheetStatusFailed = "failed"
)

// IsGraded reports whether the sheet carries a final grade.
func (s AnswerSheet) IsGraded() bool {
	return s.Status == SheetStatusGraded
}

// SheetAnswer is the extracted answer text for one question of a sheet.
type SheetAnswer struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	SheetID    uint        `gorm:"not null;uniqueIndex:idx_sheet_answer_number" json:"sheet_id"`
	Number     string      `gorm:"size:16;not null;uniqueIndex:idx_sheet_answer_number" json:"number"`
	Text       string      `gorm:"type:text" json:"text"`
	DiagramURL string      `gorm:"size:512" json:"diagram_url"`
	HasDiagram bool        `json:"has_diagram"`
	CreatedAt  time.Time   `json:"created_at"`
	Sheet      AnswerSheet `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
