package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
)

var (
	// ErrExamNotFound indicates exam lookup failed.
	ErrExamNotFound = errors.New("exam not found")
	// ErrAnswerKeyInvalid indicates the answer-key document was rejected.
	ErrAnswerKeyInvalid = errors.New("invalid answer key document")
	// ErrExamNotPublishable indicates a publish attempt without questions.
	ErrExamNotPublishable = errors.New("exam has no questions to publish")
)

// answerKeySchema validates the portable answer-key document before it
// is bound: a non-empty object keyed by "Q<n>" where every entry has a
// question text and a reference answer.
const answerKeySchema = `{
  "type": "object",
  "minProperties": 1,
  "propertyNames": {"pattern": "^Q[1-9][0-9]*$"},
  "additionalProperties": {
    "type": "object",
    "required": ["text", "answer"],
    "properties": {
      "text": {"type": "string", "minLength": 1},
      "answer": {"type": "string", "minLength": 1},
      "bloom_level": {"type": "string"},
      "keywords": {"type": "array", "items": {"type": "string"}},
      "image": {"type": "string"}
    },
    "additionalProperties": false
  }
}`

// ExamService manages exams and their answer keys.
type ExamService interface {
	List(ctx context.Context, filter dto.ExamFilter) ([]dto.ExamResponse, error)
	Get(ctx context.Context, id uint) (dto.ExamResponse, error)
	Create(ctx context.Context, payload dto.ExamCreateRequest) (dto.ExamResponse, error)
	Update(ctx context.Context, id uint, payload dto.ExamUpdateRequest) (dto.ExamResponse, error)
	Delete(ctx context.Context, id uint) error
	ImportAnswerKey(ctx context.Context, examID uint, document []byte) (dto.ExamResponse, error)
	ExportAnswerKey(ctx context.Context, examID uint) (dto.AnswerKeyImport, error)
}

var answerKeyCompiled = jsonschema.MustCompileString("answer_key.schema.json", answerKeySchema)

// ParseAnswerKey validates an answer-key document against the portable
// schema and binds it. Shared by the import endpoint and the offline CLI.
func ParseAnswerKey(document []byte) (dto.AnswerKeyImport, error) {
	var decoded interface{}
	if err := json.Unmarshal(document, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerKeyInvalid, err)
	}
	if err := answerKeyCompiled.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerKeyInvalid, err)
	}

	var key dto.AnswerKeyImport
	if err := json.Unmarshal(document, &key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerKeyInvalid, err)
	}

	return key, nil
}

type examService struct {
	repo      repository.ExamRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewExamService constructs the exam service.
func NewExamService(repo repository.ExamRepository, validate *validator.Validate, logger zerolog.Logger) ExamService {
	return &examService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "exam_service").Logger(),
	}
}

func (s *examService) List(ctx context.Context, filter dto.ExamFilter) ([]dto.ExamResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	exams, err := s.repo.List(ctx, repository.ExamFilter{
		Status:  filter.Status,
		Subject: filter.Subject,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewExamResponseSlice(exams), nil
}

func (s *examService) Get(ctx context.Context, id uint) (dto.ExamResponse, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExamResponse{}, ErrExamNotFound
		}
		return dto.ExamResponse{}, err
	}

	return dto.NewExamResponse(exam), nil
}

func (s *examService) Create(ctx context.Context, payload dto.ExamCreateRequest) (dto.ExamResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ExamResponse{}, err
	}

	exam := models.Exam{
		Title:       strings.TrimSpace(payload.Title),
		Subject:     strings.TrimSpace(payload.Subject),
		Description: strings.TrimSpace(payload.Description),
		Status:      models.ExamStatusDraft,
	}

	if err := s.repo.Create(ctx, &exam); err != nil {
		return dto.ExamResponse{}, err
	}

	s.logger.Info().Uint("exam_id", exam.ID).Str("title", exam.Title).Msg("exam created")

	return dto.NewExamResponse(exam), nil
}

func (s *examService) Update(ctx context.Context, id uint, payload dto.ExamUpdateRequest) (dto.ExamResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ExamResponse{}, err
	}

	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExamResponse{}, ErrExamNotFound
		}
		return dto.ExamResponse{}, err
	}

	if payload.Title != nil {
		exam.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Subject != nil {
		exam.Subject = strings.TrimSpace(*payload.Subject)
	}
	if payload.Description != nil {
		exam.Description = strings.TrimSpace(*payload.Description)
	}
	if payload.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*payload.Status))
		if status == models.ExamStatusPublished && len(exam.Questions) == 0 {
			return dto.ExamResponse{}, ErrExamNotPublishable
		}
		exam.Status = status
	}

	if err := s.repo.Update(ctx, &exam); err != nil {
		return dto.ExamResponse{}, err
	}

	return dto.NewExamResponse(exam), nil
}

func (s *examService) Delete(ctx context.Context, id uint) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExamNotFound
		}
		return err
	}

	return s.repo.Delete(ctx, id)
}

func (s *examService) ImportAnswerKey(ctx context.Context, examID uint, document []byte) (dto.ExamResponse, error) {
	exam, err := s.repo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExamResponse{}, ErrExamNotFound
		}
		return dto.ExamResponse{}, err
	}

	key, err := ParseAnswerKey(document)
	if err != nil {
		return dto.ExamResponse{}, err
	}

	questions, err := buildQuestions(examID, key)
	if err != nil {
		return dto.ExamResponse{}, err
	}

	if err := s.repo.ReplaceQuestions(ctx, examID, questions); err != nil {
		return dto.ExamResponse{}, err
	}

	s.logger.Info().
		Uint("exam_id", examID).
		Int("questions", len(questions)).
		Msg("answer key imported")

	exam, err = s.repo.GetByID(ctx, exam.ID)
	if err != nil {
		return dto.ExamResponse{}, err
	}

	return dto.NewExamResponse(exam), nil
}

func (s *examService) ExportAnswerKey(ctx context.Context, examID uint) (dto.AnswerKeyImport, error) {
	exam, err := s.repo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}

	return dto.NewAnswerKeyImport(exam.Questions), nil
}

// buildQuestions converts the answer-key document into question rows
// ordered by question number. Declared cognitive levels are parsed
// strictly; an unknown level rejects the whole import.
func buildQuestions(examID uint, key dto.AnswerKeyImport) ([]models.ExamQuestion, error) {
	numbers := key.Numbers()

	questions := make([]models.ExamQuestion, 0, len(numbers))
	for _, number := range numbers {
		entry := key[number]

		expectedLevel := ""
		if raw := strings.TrimSpace(entry.BloomLevel); raw != "" {
			level, err := bloom.ParseLevel(raw)
			if err != nil {
				return nil, fmt.Errorf("question %s: %w", number, err)
			}
			expectedLevel = level.String()
		}

		questions = append(questions, models.ExamQuestion{
			ExamID:          examID,
			Number:          number,
			Text:            strings.TrimSpace(entry.Text),
			ReferenceAnswer: strings.TrimSpace(entry.Answer),
			ExpectedLevel:   expectedLevel,
			Keywords:        entry.Keywords,
			DiagramURL:      strings.TrimSpace(entry.Image),
		})
	}

	return questions, nil
}
