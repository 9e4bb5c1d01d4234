package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/models"
)

// SheetFilter allows narrowing answer sheet queries.
type SheetFilter struct {
	ExamID    *uint
	StudentID *uint
	Status    *string
}

// SheetRepository defines data operations for answer sheets and their
// extracted answers.
type SheetRepository interface {
	List(ctx context.Context, filter SheetFilter) ([]models.AnswerSheet, error)
	GetByID(ctx context.Context, id uint) (models.AnswerSheet, error)
	Create(ctx context.Context, sheet *models.AnswerSheet) error
	Update(ctx context.Context, sheet *models.AnswerSheet) error
	ReplaceAnswers(ctx context.Context, sheetID uint, answers []models.SheetAnswer) error
	GetAnswers(ctx context.Context, sheetID uint) ([]models.SheetAnswer, error)
}

type sheetRepository struct {
	db *gorm.DB
}

// NewSheetRepository instantiates the repository.
func NewSheetRepository(db *gorm.DB) SheetRepository {
	return &sheetRepository{db: db}
}

func (r *sheetRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.AnswerSheet{}).
		Preload("Exam").
		Preload("Student")
}

func (r *sheetRepository) List(ctx context.Context, filter SheetFilter) ([]models.AnswerSheet, error) {
	query := r.baseQuery(ctx)

	if filter.ExamID != nil {
		query = query.Where("exam_id = ?", *filter.ExamID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var sheets []models.AnswerSheet
	if err := query.Order("created_at DESC").Find(&sheets).Error; err != nil {
		return nil, err
	}

	return sheets, nil
}

func (r *sheetRepository) GetByID(ctx context.Context, id uint) (models.AnswerSheet, error) {
	var sheet models.AnswerSheet
	if err := r.baseQuery(ctx).First(&sheet, id).Error; err != nil {
		return models.AnswerSheet{}, err
	}

	return sheet, nil
}

func (r *sheetRepository) Create(ctx context.Context, sheet *models.AnswerSheet) error {
	return r.db.WithContext(ctx).Create(sheet).Error
}

func (r *sheetRepository) Update(ctx context.Context, sheet *models.AnswerSheet) error {
	return r.db.WithContext(ctx).Save(sheet).Error
}

// ReplaceAnswers swaps the sheet's extracted answers atomically so a re-run of
// extraction never leaves stale rows behind.
func (r *sheetRepository) ReplaceAnswers(ctx context.Context, sheetID uint, answers []models.SheetAnswer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sheet_id = ?", sheetID).Delete(&models.SheetAnswer{}).Error; err != nil {
			return err
		}
		if len(answers) == 0 {
			return nil
		}
		for i := range answers {
			answers[i].SheetID = sheetID
		}
		return tx.Create(&answers).Error
	})
}

func (r *sheetRepository) GetAnswers(ctx context.Context, sheetID uint) ([]models.SheetAnswer, error) {
	var answers []models.SheetAnswer
	if err := r.db.WithContext(ctx).
		Where("sheet_id = ?", sheetID).
		Order("number ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}

	return answers, nil
}
