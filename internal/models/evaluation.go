package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnswerEvaluation stores the scoring outcome for one question of one sheet.
// The (sheet, question) pair is unique so regrading replaces the earlier row.
type AnswerEvaluation struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	SheetID         uint                        `gorm:"not null;uniqueIndex:idx_evaluation_sheet_question" json:"sheet_id"`
	QuestionID      uint                        `gorm:"not null;uniqueIndex:idx_evaluation_sheet_question" json:"question_id"`
	SemanticScore   float64                     `json:"semantic_score"`
	LexicalScore    float64                     `json:"lexical_score"`
	KeywordCoverage float64                     `json:"keyword_coverage"`
	ClassifiedLevel string                      `gorm:"size:32" json:"classified_level"`
	ExpectedLevel   string                      `gorm:"size:32" json:"expected_level"`
	LevelPenalty    float64                     `json:"level_penalty"`
	RawScore        float64                     `json:"raw_score"`
	FinalScore      float64                     `json:"final_score"`
	ImageSimilarity *float64                    `json:"image_similarity"`
	Grade           string                      `gorm:"size:8" json:"grade"`
	Feedback        datatypes.JSONMap           `json:"feedback"`
	MissingKeywords datatypes.JSONSlice[string] `json:"missing_keywords"`
	Warnings        datatypes.JSONSlice[string] `json:"warnings"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
	Sheet           AnswerSheet                 `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Question        ExamQuestion                `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// FinalPercent converts the bounded final score to a percentage.
func (e AnswerEvaluation) FinalPercent() float64 {
	return e.FinalScore * 100
}
