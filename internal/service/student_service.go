package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/observability"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
)

const recentSheetLimit = 5

// ErrStudentEmailTaken indicates a duplicate registration attempt.
var ErrStudentEmailTaken = errors.New("student email already registered")

// StudentService manages the student registry and grading summaries.
type StudentService interface {
	Create(ctx context.Context, payload dto.StudentCreateRequest) (dto.StudentResponse, error)
	Get(ctx context.Context, id uint) (dto.StudentResponse, error)
	GetSummary(ctx context.Context, studentID uint) (dto.StudentSummaryResponse, error)
	InvalidateStudent(ctx context.Context, studentID uint) error
}

type studentService struct {
	students  repository.StudentRepository
	sheets    repository.SheetRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service. The cache client
// is optional; without it every summary is computed from the database.
func NewStudentService(
	students repository.StudentRepository,
	sheets repository.SheetRepository,
	cache *redis.Client,
	ttl time.Duration,
	validate *validator.Validate,
	logger zerolog.Logger,
) StudentService {
	return &studentService{
		students:  students,
		sheets:    sheets,
		cache:     cache,
		cacheTTL:  ttl,
		validator: validate,
		logger:    logger.With().Str("component", "student_service").Logger(),
		now:       time.Now,
	}
}

func (s *studentService) Create(ctx context.Context, payload dto.StudentCreateRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}

	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if _, err := s.students.GetByEmail(ctx, email); err == nil {
		return dto.StudentResponse{}, ErrStudentEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.StudentResponse{}, err
	}

	student := models.Student{
		Name:   strings.TrimSpace(payload.Name),
		Email:  email,
		Cohort: strings.TrimSpace(payload.Cohort),
	}

	if err := s.students.Create(ctx, &student); err != nil {
		return dto.StudentResponse{}, err
	}

	s.logger.Info().Uint("student_id", student.ID).Str("email", email).Msg("student registered")

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) Get(ctx context.Context, id uint) (dto.StudentResponse, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentResponse{}, ErrStudentNotFound
		}
		return dto.StudentResponse{}, err
	}

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) GetSummary(ctx context.Context, studentID uint) (dto.StudentSummaryResponse, error) {
	cacheKey := summaryCacheKey(studentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StudentSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.SummaryCache().WithLabelValues("hit").Inc()
				s.logger.Debug().Uint("student_id", studentID).Msg("summary cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			observability.SummaryCache().WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Msg("failed to read summary cache")
		}
		observability.SummaryCache().WithLabelValues("miss").Inc()
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentSummaryResponse{}, ErrStudentNotFound
		}
		return dto.StudentSummaryResponse{}, err
	}

	sheets, err := s.sheets.List(ctx, repository.SheetFilter{StudentID: &studentID})
	if err != nil {
		return dto.StudentSummaryResponse{}, err
	}

	response := s.buildSummary(student, sheets)

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store summary cache")
			}
		}
	}

	return response, nil
}

// InvalidateStudent drops the cached summary after new grades land.
func (s *studentService) InvalidateStudent(ctx context.Context, studentID uint) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, summaryCacheKey(studentID)).Err()
}

func (s *studentService) buildSummary(student models.Student, sheets []models.AnswerSheet) dto.StudentSummaryResponse {
	stats := dto.GradingStats{TotalSheets: len(sheets)}

	var percentTotal float64
	var percentCount int
	var bestPercent *float64
	bestGrade := ""

	for _, sheet := range sheets {
		switch sheet.Status {
		case models.SheetStatusGraded:
			stats.Graded++
			if sheet.FinalPercent != nil {
				percentTotal += *sheet.FinalPercent
				percentCount++
				if bestPercent == nil || *sheet.FinalPercent > *bestPercent {
					value := *sheet.FinalPercent
					bestPercent = &value
					bestGrade = sheet.Grade
				}
			}
		case models.SheetStatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}

	if percentCount > 0 {
		stats.AveragePercent = percentTotal / float64(percentCount)
	}
	stats.BestPercent = bestPercent
	stats.BestGrade = bestGrade

	recent := make([]dto.SheetResult, 0, minInt(recentSheetLimit, len(sheets)))
	for idx, sheet := range sheets {
		if idx >= recentSheetLimit {
			break
		}
		recent = append(recent, dto.NewSheetResult(sheet))
	}

	return dto.StudentSummaryResponse{
		StudentID:    student.ID,
		Name:         student.Name,
		Email:        student.Email,
		Cohort:       student.Cohort,
		Summary:      stats,
		RecentSheets: recent,
		GeneratedAt:  s.now().UTC(),
	}
}

func summaryCacheKey(studentID uint) string {
	return fmt.Sprintf("summary:student:%d", studentID)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
