package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/models"
)

// ExamFilter allows narrowing exam queries.
type ExamFilter struct {
	Status  *string
	Subject *string
}

// ExamRepository defines data operations for exams and their questions.
type ExamRepository interface {
	List(ctx context.Context, filter ExamFilter) ([]models.Exam, error)
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id uint) error
	ReplaceQuestions(ctx context.Context, examID uint, questions []models.ExamQuestion) error
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository instantiates the repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Exam{}).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("exam_questions.number ASC")
		})
}

func (r *examRepository) List(ctx context.Context, filter ExamFilter) ([]models.Exam, error) {
	query := r.baseQuery(ctx)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if filter.Subject != nil {
		query = query.Where("subject = ?", *filter.Subject)
	}

	var exams []models.Exam
	if err := query.Order("created_at DESC").Find(&exams).Error; err != nil {
		return nil, err
	}

	return exams, nil
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.baseQuery(ctx).First(&exam, id).Error; err != nil {
		return models.Exam{}, err
	}

	return exam, nil
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *examRepository) Update(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Save(exam).Error
}

func (r *examRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Exam{}, id).Error
}

// ReplaceQuestions swaps the exam's answer key atomically: existing questions
// are removed and the new set inserted in one transaction.
func (r *examRepository) ReplaceQuestions(ctx context.Context, examID uint, questions []models.ExamQuestion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", examID).Delete(&models.ExamQuestion{}).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		for i := range questions {
			questions[i].ExamID = examID
		}
		return tx.Create(&questions).Error
	})
}
