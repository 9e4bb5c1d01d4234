package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// demoExamTitle identifies the seeded exam so reseeding replaces it.
const demoExamTitle = "Computer Architecture Fundamentals"

// SeedService provisions demo data for development environments.
type SeedService interface {
	SeedDemoExam(ctx context.Context, token string) (uint, error)
	SeedStudents(ctx context.Context, token string, items []models.Student) (int64, error)
}

type seedService struct {
	examRepo    repository.ExamRepository
	studentRepo repository.StudentRepository
	enabled     bool
	token       string
	logger      zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(examRepo repository.ExamRepository, studentRepo repository.StudentRepository, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		examRepo:    examRepo,
		studentRepo: studentRepo,
		enabled:     enabled,
		token:       token,
		logger:      logger.With().Str("component", "seed_service").Logger(),
	}
}

// SeedDemoExam creates or refreshes the demo exam with its answer key
// and publishes it.
func (s *seedService) SeedDemoExam(ctx context.Context, token string) (uint, error) {
	if !s.enabled {
		return 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return 0, ErrSeedUnauthorized
	}

	exam, err := s.findDemoExam(ctx)
	if err != nil {
		return 0, err
	}

	if exam == nil {
		exam = &models.Exam{
			Title:       demoExamTitle,
			Subject:     "Computer Architecture",
			Description: "Demo exam covering CPU organization, caching, and the ARM architecture.",
			Status:      models.ExamStatusPublished,
		}
		if err := s.examRepo.Create(ctx, exam); err != nil {
			return 0, err
		}
	}

	if err := s.examRepo.ReplaceQuestions(ctx, exam.ID, demoQuestions(exam.ID)); err != nil {
		return 0, err
	}

	if exam.Status != models.ExamStatusPublished {
		exam.Status = models.ExamStatusPublished
		if err := s.examRepo.Update(ctx, exam); err != nil {
			return 0, err
		}
	}

	s.logger.Info().Uint("exam_id", exam.ID).Msg("demo exam seeded")

	return exam.ID, nil
}

func (s *seedService) SeedStudents(ctx context.Context, token string, items []models.Student) (int64, error) {
	if !s.enabled {
		return 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return 0, ErrSeedUnauthorized
	}

	for i := range items {
		items[i].Email = strings.ToLower(strings.TrimSpace(items[i].Email))
		items[i].Name = strings.TrimSpace(items[i].Name)
	}

	affected, err := s.studentRepo.UpsertBatch(ctx, items)
	if err != nil {
		return 0, err
	}

	s.logger.Info().Int64("affected", affected).Msg("students seeded")

	return affected, nil
}

func (s *seedService) findDemoExam(ctx context.Context) (*models.Exam, error) {
	exams, err := s.examRepo.List(ctx, repository.ExamFilter{})
	if err != nil {
		return nil, err
	}
	for i := range exams {
		if exams[i].Title == demoExamTitle {
			return &exams[i], nil
		}
	}
	return nil, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtleConstantTimeCompare(expected, strings.TrimSpace(token))
}

func subtleConstantTimeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	mismatch := byte(0)
	for i := 0; i < len(a); i++ {
		mismatch |= a[i] ^ b[i]
	}
	return mismatch == 0
}

func demoQuestions(examID uint) []models.ExamQuestion {
	return []models.ExamQuestion{
		{
			ExamID:          examID,
			Number:          "Q1",
			Text:            "What is the function of the ALU in a CPU?",
			ReferenceAnswer: "The ALU performs arithmetic and logic operations such as addition, subtraction, and comparison inside the processor.",
			ExpectedLevel:   "Remember",
			Keywords:        []string{"arithmetic", "logic", "operations"},
		},
		{
			ExamID:          examID,
			Number:          "Q2",
			Text:            "Explain the key features of the ARM architecture.",
			ReferenceAnswer: "ARM is a RISC architecture with a small fixed-size instruction set and a load-store design. It is energy efficient and integrates peripherals on chip, which makes it common in mobile and embedded devices.",
			ExpectedLevel:   "Understand",
			Keywords:        []string{"RISC", "load-store", "peripherals"},
		},
		{
			ExamID:          examID,
			Number:          "Q3",
			Text:            "Compare write-back and write-through cache policies.",
			ReferenceAnswer: "Write-through updates main memory on every store, keeping memory consistent but generating more traffic. Write-back only writes dirty lines on eviction, reducing memory traffic at the cost of more complex coherence.",
			ExpectedLevel:   "Analyze",
			Keywords:        []string{"write-back", "write-through", "dirty", "traffic"},
		},
		{
			ExamID:          examID,
			Number:          "Q4",
			Text:            "Design a memory hierarchy for a battery-powered sensor node and justify your choices.",
			ReferenceAnswer: "A proposed hierarchy uses a small SRAM cache backed by low-power DRAM and flash storage. The design trades capacity for latency and energy, keeping the hot working set in SRAM and spilling rarely used data to flash.",
			ExpectedLevel:   "Create",
			Keywords:        []string{"SRAM", "DRAM", "flash", "latency"},
		},
	}
}
