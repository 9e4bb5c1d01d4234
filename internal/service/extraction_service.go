package service

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/extract"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/observability"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
	"github.com/scriba-edu/scriba-go-api/pkg/ai"
)

// ErrNoAnswersExtracted indicates the sheet yielded no usable answers.
var ErrNoAnswersExtracted = errors.New("no answers could be extracted from sheet")

var answerNumberPattern = regexp.MustCompile(`^Q[1-9][0-9]*$`)

// FileFetcher retrieves stored sheet payloads for processing.
type FileFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ProgressPublisher broadcasts grading lifecycle events.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, event dto.ProgressEvent)
}

// ExtractionService turns uploaded sheet scans into per-question answers.
type ExtractionService interface {
	ExtractSheet(ctx context.Context, sheetID uint) ([]dto.SheetAnswerResponse, error)
}

type extractionService struct {
	sheets   repository.SheetRepository
	fetcher  FileFetcher
	ocr      extract.Engine
	vision   ai.SheetParser
	progress ProgressPublisher
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewExtractionService constructs the extraction service. The vision
// parser is preferred when configured; OCR is the fallback engine.
func NewExtractionService(
	sheets repository.SheetRepository,
	fetcher FileFetcher,
	ocr extract.Engine,
	vision ai.SheetParser,
	progress ProgressPublisher,
	logger zerolog.Logger,
) ExtractionService {
	return &extractionService{
		sheets:   sheets,
		fetcher:  fetcher,
		ocr:      ocr,
		vision:   vision,
		progress: progress,
		logger:   logger.With().Str("component", "extraction_service").Logger(),
		tracer:   otel.Tracer("github.com/scriba-edu/scriba-go-api/internal/service/extraction"),
	}
}

func (s *extractionService) ExtractSheet(ctx context.Context, sheetID uint) ([]dto.SheetAnswerResponse, error) {
	ctx, span := s.tracer.Start(ctx, "extraction.sheet")
	defer span.End()
	span.SetAttributes(attribute.Int("sheet.id", int(sheetID)))

	sheet, err := s.sheets.GetByID(ctx, sheetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(ErrSheetNotFound)
			return nil, ErrSheetNotFound
		}
		span.RecordError(err)
		return nil, err
	}

	sheet.Status = models.SheetStatusExtracting
	sheet.FailureReason = ""
	if err := s.sheets.Update(ctx, &sheet); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.publish(ctx, dto.ProgressEvent{
		Type:      dto.EventExtractionStarted,
		SheetID:   sheet.ID,
		ExamID:    sheet.ExamID,
		StudentID: sheet.StudentID,
	})

	answers, engine, err := s.extract(ctx, sheet)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		s.markFailed(ctx, &sheet, err)
		return nil, err
	}

	rows := make([]models.SheetAnswer, 0, len(answers))
	for _, answer := range answers {
		rows = append(rows, models.SheetAnswer{
			SheetID:    sheet.ID,
			Number:     answer.Number,
			Text:       answer.Text,
			HasDiagram: answer.HasDiagram,
		})
	}

	if err := s.sheets.ReplaceAnswers(ctx, sheet.ID, rows); err != nil {
		span.RecordError(err)
		s.markFailed(ctx, &sheet, err)
		return nil, err
	}

	sheet.Status = models.SheetStatusExtracted
	if err := s.sheets.Update(ctx, &sheet); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("extraction.engine", engine),
		attribute.Int("extraction.answers", len(rows)),
	)
	span.SetStatus(codes.Ok, "extracted")

	s.logger.Info().
		Uint("sheet_id", sheet.ID).
		Str("engine", engine).
		Int("answers", len(rows)).
		Msg("sheet extracted")

	s.publish(ctx, dto.ProgressEvent{
		Type:      dto.EventExtractionCompleted,
		SheetID:   sheet.ID,
		ExamID:    sheet.ExamID,
		StudentID: sheet.StudentID,
		Total:     len(rows),
	})

	stored, err := s.sheets.GetAnswers(ctx, sheet.ID)
	if err != nil {
		return nil, err
	}

	return dto.NewSheetAnswerResponseSlice(stored), nil
}

// extractedAnswer is the engine-neutral extraction result.
type extractedAnswer struct {
	Number     string
	Text       string
	HasDiagram bool
}

func (s *extractionService) extract(ctx context.Context, sheet models.AnswerSheet) ([]extractedAnswer, string, error) {
	payload, err := s.fetcher.Fetch(ctx, sheet.FileURL)
	if err != nil {
		return nil, "", err
	}

	if s.vision != nil {
		start := time.Now()
		parsed, err := s.vision.ParseSheet(ctx, payload, sheet.MimeType)
		observability.ExtractionDuration().WithLabelValues("vision").Observe(time.Since(start).Seconds())
		if err == nil {
			answers := fromParsedAnswers(parsed)
			if len(answers) == 0 {
				return nil, "vision", ErrNoAnswersExtracted
			}
			return answers, "vision", nil
		}
		if s.ocr == nil {
			return nil, "vision", err
		}
		s.logger.Warn().Err(err).Uint("sheet_id", sheet.ID).Msg("vision extraction failed, falling back to ocr")
	}

	if s.ocr == nil {
		return nil, "", errors.New("no extraction engine configured")
	}

	start := time.Now()
	text, err := s.ocr.Extract(ctx, bytes.NewReader(payload))
	observability.ExtractionDuration().WithLabelValues("ocr").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, "ocr", err
	}

	split := extract.SplitAnswers(text)
	if len(split) == 0 {
		return nil, "ocr", ErrNoAnswersExtracted
	}

	answers := make([]extractedAnswer, 0, len(split))
	for _, item := range split {
		answers = append(answers, extractedAnswer{Number: item.Number, Text: item.Text})
	}

	return answers, "ocr", nil
}

func (s *extractionService) markFailed(ctx context.Context, sheet *models.AnswerSheet, cause error) {
	sheet.Status = models.SheetStatusFailed
	sheet.FailureReason = cause.Error()
	if err := s.sheets.Update(ctx, sheet); err != nil {
		s.logger.Error().Err(err).Uint("sheet_id", sheet.ID).Msg("failed to mark sheet as failed")
	}

	s.publish(ctx, dto.ProgressEvent{
		Type:      dto.EventExtractionFailed,
		SheetID:   sheet.ID,
		ExamID:    sheet.ExamID,
		StudentID: sheet.StudentID,
		Message:   cause.Error(),
	})
}

func (s *extractionService) publish(ctx context.Context, event dto.ProgressEvent) {
	if s.progress == nil {
		return
	}
	s.progress.PublishProgress(ctx, event)
}

func fromParsedAnswers(parsed []ai.ParsedAnswer) []extractedAnswer {
	answers := make([]extractedAnswer, 0, len(parsed))
	for _, item := range parsed {
		number := normalizeAnswerNumber(item.Question)
		text := strings.TrimSpace(item.Text)
		if number == "" || text == "" {
			continue
		}
		answers = append(answers, extractedAnswer{
			Number:     number,
			Text:       text,
			HasDiagram: item.HasDiagram,
		})
	}
	return answers
}

// normalizeAnswerNumber coerces vision output like "q1", "1", or
// "Question 1" into the canonical "Q1" form. Unrecognized labels are
// dropped rather than guessed.
func normalizeAnswerNumber(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = strings.TrimPrefix(cleaned, "QUESTION")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimSuffix(cleaned, ".")
	cleaned = strings.TrimSuffix(cleaned, ")")
	if cleaned == "" {
		return ""
	}
	if !strings.HasPrefix(cleaned, "Q") {
		cleaned = "Q" + cleaned
	}
	if !answerNumberPattern.MatchString(cleaned) {
		return ""
	}
	return cleaned
}
