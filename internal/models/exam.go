package models

import (
	"time"

	"gorm.io/datatypes"
)

// Exam groups the questions and reference answers for one assessment.
type Exam struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Subject     string         `gorm:"size:128" json:"subject"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"size:32;not null;default:draft" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Questions   []ExamQuestion `json:"questions"`
}

const (
	// ExamStatusDraft indicates the answer key is still being assembled.
	ExamStatusDraft = "draft"
	// ExamStatusPublished indicates sheets can be graded against the exam.
	ExamStatusPublished = "published"
	// ExamStatusArchived indicates the exam no longer accepts sheets.
	ExamStatusArchived = "archived"
)

// IsPublished reports whether sheets may be submitted against the exam.
func (e Exam) IsPublished() bool {
	return e.Status == ExamStatusPublished
}

// ExamQuestion is one question of an exam's answer key.
type ExamQuestion struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	ExamID          uint                        `gorm:"not null;uniqueIndex:idx_exam_question_number" json:"exam_id"`
	Number          string                      `gorm:"size:16;not null;uniqueIndex:idx_exam_question_number" json:"number"`
	Text            string                      `gorm:"type:text;not null" json:"text"`
	ReferenceAnswer string                      `gorm:"type:text;not null" json:"reference_answer"`
	ExpectedLevel   string                      `gorm:"size:32" json:"expected_level"`
	Keywords        datatypes.JSONSlice[string] `json:"keywords"`
	DiagramURL      string                      `gorm:"size:512" json:"diagram_url"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
	Exam            Exam                        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
