package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/observability"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
	"github.com/scriba-edu/scriba-go-api/internal/scoring"
	"github.com/scriba-edu/scriba-go-api/pkg/ai"
)

const (
	gradingRequestSubject = "scriba.grading.requests"
	gradingQueueGroup     = "scriba-graders"
)

var (
	// ErrSheetNotExtracted indicates grading was requested before
	// answers were extracted.
	ErrSheetNotExtracted = errors.New("sheet answers have not been extracted")
	// ErrExamHasNoQuestions indicates the exam has no answer key.
	ErrExamHasNoQuestions = errors.New("exam has no questions to grade against")
)

// SummaryInvalidator drops cached aggregates after a regrade.
type SummaryInvalidator interface {
	InvalidateStudent(ctx context.Context, studentID uint) error
}

// gradingRequest is the queue payload for asynchronous processing.
type gradingRequest struct {
	SheetID    uint      `json:"sheet_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// GradingService scores extracted answer sheets against their exam's
// answer key and persists the per-question evaluations.
type GradingService interface {
	SheetQueue
	GradeSheet(ctx context.Context, sheetID uint) (dto.ResultResponse, error)
	GetResult(ctx context.Context, sheetID uint) (dto.ResultResponse, error)
	Score(ctx context.Context, payload dto.ScoreRequest) (dto.EvaluationResponse, error)
	Start(ctx context.Context)
}

type gradingService struct {
	sheets      repository.SheetRepository
	exams       repository.ExamRepository
	evaluations repository.EvaluationRepository
	engine      scoring.Engine
	comparator  ai.ImageComparator
	extraction  ExtractionService
	progress    ProgressPublisher
	invalidator SummaryInvalidator
	nats        *nats.Conn
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService constructs the grading service. The NATS
// connection, image comparator, progress publisher, and invalidator
// are all optional; absent ones degrade to inline processing.
func NewGradingService(
	sheets repository.SheetRepository,
	exams repository.ExamRepository,
	evaluations repository.EvaluationRepository,
	engine scoring.Engine,
	comparator ai.ImageComparator,
	extraction ExtractionService,
	progress ProgressPublisher,
	invalidator SummaryInvalidator,
	natsConn *nats.Conn,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		sheets:      sheets,
		exams:       exams,
		evaluations: evaluations,
		engine:      engine,
		comparator:  comparator,
		extraction:  extraction,
		progress:    progress,
		invalidator: invalidator,
		nats:        natsConn,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/scriba-edu/scriba-go-api/internal/service/grading"),
		now:         time.Now,
	}
}

// Start subscribes to the grading request queue. Requests are shared
// across instances through the queue group so each sheet is processed
// once.
func (s *gradingService) Start(ctx context.Context) {
	if s.nats == nil {
		return
	}

	sub, err := s.nats.QueueSubscribe(gradingRequestSubject, gradingQueueGroup, func(msg *nats.Msg) {
		var request gradingRequest
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			s.logger.Warn().Err(err).Msg("invalid grading request payload")
			return
		}
		s.process(ctx, request.SheetID)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to grading request queue")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain grading request subscription")
		}
	}()
}

// Enqueue schedules a sheet for extraction and grading. Without NATS
// the sheet is processed on a local goroutine instead.
func (s *gradingService) Enqueue(ctx context.Context, sheetID uint) error {
	if s.nats == nil {
		go s.process(context.WithoutCancel(ctx), sheetID)
		return nil
	}

	payload, err := json.Marshal(gradingRequest{SheetID: sheetID, EnqueuedAt: s.now().UTC()})
	if err != nil {
		return err
	}

	return s.nats.Publish(gradingRequestSubject, payload)
}

// process drives one sheet through extraction and grading.
func (s *gradingService) process(ctx context.Context, sheetID uint) {
	sheet, err := s.sheets.GetByID(ctx, sheetID)
	if err != nil {
		s.logger.Error().Err(err).Uint("sheet_id", sheetID).Msg("failed to load sheet for processing")
		return
	}

	if sheet.Status == models.SheetStatusReceived || sheet.Status == models.SheetStatusFailed {
		if _, err := s.extraction.ExtractSheet(ctx, sheetID); err != nil {
			s.logger.Error().Err(err).Uint("sheet_id", sheetID).Msg("sheet extraction failed")
			return
		}
	}

	if _, err := s.GradeSheet(ctx, sheetID); err != nil {
		s.logger.Error().Err(err).Uint("sheet_id", sheetID).Msg("sheet grading failed")
	}
}

func (s *gradingService) GradeSheet(ctx context.Context, sheetID uint) (dto.ResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.sheet")
	defer span.End()
	span.SetAttributes(attribute.Int("sheet.id", int(sheetID)))

	start := s.now()
	defer func() {
		observability.GradingDuration().Observe(time.Since(start).Seconds())
	}()

	sheet, err := s.sheets.GetByID(ctx, sheetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(ErrSheetNotFound)
			return dto.ResultResponse{}, ErrSheetNotFound
		}
		span.RecordError(err)
		return dto.ResultResponse{}, err
	}

	if sheet.Status != models.SheetStatusExtracted && sheet.Status != models.SheetStatusGraded {
		span.RecordError(ErrSheetNotExtracted)
		span.SetStatus(codes.Error, "not extracted")
		return dto.ResultResponse{}, ErrSheetNotExtracted
	}

	exam, err := s.exams.GetByID(ctx, sheet.ExamID)
	if err != nil {
		span.RecordError(err)
		return dto.ResultResponse{}, err
	}
	if len(exam.Questions) == 0 {
		span.RecordError(ErrExamHasNoQuestions)
		return dto.ResultResponse{}, ErrExamHasNoQuestions
	}

	answers, err := s.sheets.GetAnswers(ctx, sheet.ID)
	if err != nil {
		span.RecordError(err)
		return dto.ResultResponse{}, err
	}
	answersByNumber := make(map[string]models.SheetAnswer, len(answers))
	for _, answer := range answers {
		answersByNumber[answer.Number] = answer
	}

	sheet.Status = models.SheetStatusGrading
	if err := s.sheets.Update(ctx, &sheet); err != nil {
		span.RecordError(err)
		return dto.ResultResponse{}, err
	}

	s.publish(ctx, dto.ProgressEvent{
		Type:      dto.EventGradingStarted,
		SheetID:   sheet.ID,
		ExamID:    sheet.ExamID,
		StudentID: sheet.StudentID,
		Total:     len(exam.Questions),
	})

	evaluations := make([]models.AnswerEvaluation, 0, len(exam.Questions))
	var totalFinal float64

	for index, question := range exam.Questions {
		answer := answersByNumber[question.Number]

		evaluation, err := s.gradeAnswer(ctx, sheet, question, answer)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring failed")
			s.markGradingFailed(ctx, &sheet, err)
			return dto.ResultResponse{}, err
		}

		evaluations = append(evaluations, evaluation)
		totalFinal += evaluation.FinalScore

		observability.AnswersScored().WithLabelValues(evaluation.ClassifiedLevel).Inc()

		s.publish(ctx, dto.ProgressEvent{
			Type:      dto.EventGradingQuestion,
			SheetID:   sheet.ID,
			ExamID:    sheet.ExamID,
			StudentID: sheet.StudentID,
			Question:  question.Number,
			Completed: index + 1,
			Total:     len(exam.Questions),
		})
	}

	if _, err := s.evaluations.UpsertBatch(ctx, evaluations); err != nil {
		span.RecordError(err)
		s.markGradingFailed(ctx, &sheet, err)
		return dto.ResultResponse{}, err
	}

	percent := totalFinal / float64(len(exam.Questions)) * 100
	grade := scoring.LetterGrade(percent)
	gradedAt := s.now()

	sheet.Status = models.SheetStatusGraded
	sheet.FinalPercent = &percent
	sheet.Grade = grade
	sheet.GradedAt = &gradedAt
	sheet.FailureReason = ""
	if err := s.sheets.Update(ctx, &sheet); err != nil {
		span.RecordError(err)
		return dto.ResultResponse{}, err
	}

	observability.SheetsGraded().WithLabelValues(grade).Inc()
	span.SetAttributes(
		attribute.Float64("grading.percent", percent),
		attribute.String("grading.grade", grade),
	)
	span.SetStatus(codes.Ok, "graded")

	s.logger.Info().
		Uint("sheet_id", sheet.ID).
		Uint("exam_id", exam.ID).
		Float64("percent", percent).
		Str("grade", grade).
		Msg("sheet graded")

	s.publish(ctx, dto.ProgressEvent{
		Type:      dto.EventGradingCompleted,
		SheetID:   sheet.ID,
		ExamID:    sheet.ExamID,
		StudentID: sheet.StudentID,
		Completed: len(exam.Questions),
		Total:     len(exam.Questions),
		Grade:     grade,
		Percent:   &percent,
	})

	if s.invalidator != nil {
		if err := s.invalidator.InvalidateStudent(ctx, sheet.StudentID); err != nil {
			s.logger.Warn().Err(err).Uint("student_id", sheet.StudentID).Msg("failed to invalidate student summary cache")
		}
	}

	stored, err := s.evaluations.ListBySheet(ctx, sheet.ID)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	return dto.NewResultResponse(sheet, len(exam.Questions), stored), nil
}

// gradeAnswer scores one answer against its question. A question with
// no matching answer is scored as an empty candidate so it still
// contributes a zero to the sheet total.
func (s *gradingService) gradeAnswer(ctx context.Context, sheet models.AnswerSheet, question models.ExamQuestion, answer models.SheetAnswer) (models.AnswerEvaluation, error) {
	input := scoring.ScoreInput{
		Question:        question.Text,
		ReferenceAnswer: question.ReferenceAnswer,
		CandidateAnswer: answer.Text,
		Keywords:        question.Keywords,
	}

	if question.ExpectedLevel != "" {
		level, err := bloom.ParseLevel(question.ExpectedLevel)
		if err != nil {
			return models.AnswerEvaluation{}, fmt.Errorf("question %s: %w", question.Number, err)
		}
		input.ExpectedLevel = &level
	}

	warnings := make([]string, 0)
	if question.DiagramURL != "" && answer.HasDiagram {
		candidateURL := answer.DiagramURL
		if candidateURL == "" {
			candidateURL = sheet.FileURL
		}
		if s.comparator != nil {
			similarity, err := s.comparator.Compare(ctx, question.DiagramURL, candidateURL)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("image similarity unavailable: %v", err))
				s.logger.Warn().Err(err).Str("question", question.Number).Msg("image comparison failed")
			} else {
				input.ImageSimilarity = &similarity
			}
		}
	}

	result, err := s.engine.Score(ctx, input)
	if err != nil {
		return models.AnswerEvaluation{}, err
	}

	feedback := scoring.BuildFeedback(input, result)
	warnings = append(warnings, result.Warnings...)

	evaluation := models.AnswerEvaluation{
		SheetID:         sheet.ID,
		QuestionID:      question.ID,
		SemanticScore:   result.SemanticScore,
		LexicalScore:    result.LexicalOverlapScore,
		KeywordCoverage: result.KeywordCoverage,
		ClassifiedLevel: result.ClassifiedLevel.String(),
		ExpectedLevel:   result.ExpectedLevel.String(),
		LevelPenalty:    result.LevelPenalty,
		RawScore:        result.RawScore,
		FinalScore:      result.FinalScore,
		ImageSimilarity: result.ImageSimilarity,
		Grade:           scoring.LetterGrade(result.FinalScore * 100),
		Feedback: datatypes.JSONMap{
			"strengths":   feedback.Strengths,
			"weaknesses":  feedback.Weaknesses,
			"suggestions": feedback.Suggestions,
		},
		MissingKeywords: scoring.MissingKeywords(answer.Text, question.Keywords),
		Warnings:        warnings,
	}

	return evaluation, nil
}

func (s *gradingService) GetResult(ctx context.Context, sheetID uint) (dto.ResultResponse, error) {
	sheet, err := s.sheets.GetByID(ctx, sheetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResultResponse{}, ErrSheetNotFound
		}
		return dto.ResultResponse{}, err
	}

	exam, err := s.exams.GetByID(ctx, sheet.ExamID)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	evaluations, err := s.evaluations.ListBySheet(ctx, sheetID)
	if err != nil {
		return dto.ResultResponse{}, err
	}

	return dto.NewResultResponse(sheet, len(exam.Questions), evaluations), nil
}

// Score grades a single question and answer pair without persisting
// anything.
func (s *gradingService) Score(ctx context.Context, payload dto.ScoreRequest) (dto.EvaluationResponse, error) {
	input := scoring.ScoreInput{
		Question:        payload.Question,
		ReferenceAnswer: payload.ReferenceAnswer,
		CandidateAnswer: payload.CandidateAnswer,
		Keywords:        payload.Keywords,
		ImageSimilarity: payload.ImageSimilarity,
	}

	if payload.ExpectedLevel != nil && *payload.ExpectedLevel != "" {
		level, err := bloom.ParseLevel(*payload.ExpectedLevel)
		if err != nil {
			return dto.EvaluationResponse{}, err
		}
		input.ExpectedLevel = &level
	}

	result, err := s.engine.Score(ctx, input)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	return dto.NewScoreResponse(result, scoring.BuildFeedback(input, result)), nil
}

func (s *gradingService) markGradingFailed(ctx context.Context, sheet *models.AnswerSheet, cause error) {
	sheet.Status = models.SheetStatusFailed
	sheet.FailureReason = cause.Error()
	if err := s.sheets.Update(ctx, sheet); err != nil {
		s.logger.Error().Err(err).Uint("sheet_id", sheet.ID).Msg("failed to mark sheet as failed")
	}

	s.publish(ctx, dto.ProgressEvent{
		Type:      dto.EventGradingFailed,
		SheetID:   sheet.ID,
		ExamID:    sheet.ExamID,
		StudentID: sheet.StudentID,
		Message:   cause.Error(),
	})
}

func (s *gradingService) publish(ctx context.Context, event dto.ProgressEvent) {
	if s.progress == nil {
		return
	}
	s.progress.PublishProgress(ctx, event)
}
