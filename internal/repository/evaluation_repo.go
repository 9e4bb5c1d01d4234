package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scriba-edu/scriba-go-api/internal/models"
)

// EvaluationRepository defines data operations for answer evaluations.
type EvaluationRepository interface {
	UpsertBatch(ctx context.Context, evaluations []models.AnswerEvaluation) (int64, error)
	ListBySheet(ctx context.Context, sheetID uint) ([]models.AnswerEvaluation, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.AnswerEvaluation, error)
	ListByExam(ctx context.Context, examID uint) ([]models.AnswerEvaluation, error)
	DeleteBySheet(ctx context.Context, sheetID uint) error
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// UpsertBatch writes evaluations keyed on (sheet, question) so a regrade
// replaces the previous outcome instead of duplicating it.
func (r *evaluationRepository) UpsertBatch(ctx context.Context, evaluations []models.AnswerEvaluation) (int64, error) {
	if len(evaluations) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sheet_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"semantic_score", "lexical_score", "keyword_coverage",
			"classified_level", "expected_level", "level_penalty",
			"raw_score", "final_score", "image_similarity",
			"grade", "feedback", "missing_keywords", "warnings", "updated_at",
		}),
	})

	result := tx.Create(&evaluations)
	return result.RowsAffected, result.Error
}

func (r *evaluationRepository) ListBySheet(ctx context.Context, sheetID uint) ([]models.AnswerEvaluation, error) {
	var evaluations []models.AnswerEvaluation
	if err := r.db.WithContext(ctx).Model(&models.AnswerEvaluation{}).
		Preload("Question").
		Where("sheet_id = ?", sheetID).
		Order("question_id ASC").
		Find(&evaluations).Error; err != nil {
		return nil, err
	}

	return evaluations, nil
}

func (r *evaluationRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.AnswerEvaluation, error) {
	var evaluations []models.AnswerEvaluation
	if err := r.db.WithContext(ctx).Model(&models.AnswerEvaluation{}).
		Joins("JOIN answer_sheets ON answer_sheets.id = answer_evaluations.sheet_id").
		Where("answer_sheets.student_id = ?", studentID).
		Order("answer_evaluations.created_at DESC").
		Find(&evaluations).Error; err != nil {
		return nil, err
	}

	return evaluations, nil
}

func (r *evaluationRepository) ListByExam(ctx context.Context, examID uint) ([]models.AnswerEvaluation, error) {
	var evaluations []models.AnswerEvaluation
	if err := r.db.WithContext(ctx).Model(&models.AnswerEvaluation{}).
		Preload("Question").
		Joins("JOIN answer_sheets ON answer_sheets.id = answer_evaluations.sheet_id").
		Where("answer_sheets.exam_id = ?", examID).
		Order("answer_evaluations.question_id ASC").
		Find(&evaluations).Error; err != nil {
		return nil, err
	}

	return evaluations, nil
}

func (r *evaluationRepository) DeleteBySheet(ctx context.Context, sheetID uint) error {
	return r.db.WithContext(ctx).Where("sheet_id = ?", sheetID).Delete(&models.AnswerEvaluation{}).Error
}
