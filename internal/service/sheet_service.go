package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/observability"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
)

var (
	// ErrSheetTooLarge indicates the upload exceeded the configured limit.
	ErrSheetTooLarge = errors.New("sheet exceeds maximum allowed size")
	// ErrSheetTypeNotAllowed indicates the MIME type is not permitted.
	ErrSheetTypeNotAllowed = errors.New("sheet file type not allowed")
	// ErrSheetNotFound indicates sheet lookup failed.
	ErrSheetNotFound = errors.New("answer sheet not found")
	// ErrStudentNotFound indicates student lookup failed.
	ErrStudentNotFound = errors.New("student not found")
	// ErrExamNotPublished indicates an upload against an unpublished exam.
	ErrExamNotPublished = errors.New("exam is not published")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// SheetQueue enqueues uploaded sheets for asynchronous processing.
type SheetQueue interface {
	Enqueue(ctx context.Context, sheetID uint) error
}

// SheetService handles intake and retrieval of answer sheets.
type SheetService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, payload dto.SheetUploadRequest) (dto.SheetResponse, error)
	List(ctx context.Context, filter dto.SheetFilter) ([]dto.SheetResponse, error)
	Get(ctx context.Context, id uint) (dto.SheetResponse, error)
	GetAnswers(ctx context.Context, id uint) ([]dto.SheetAnswerResponse, error)
}

type sheetService struct {
	storage   FileStorage
	sheets    repository.SheetRepository
	exams     repository.ExamRepository
	students  repository.StudentRepository
	queue     SheetQueue
	validator *validator.Validate
	logger    zerolog.Logger
	maxSize   int64
	tracer    trace.Tracer
}

// NewSheetService constructs a sheet intake service.
func NewSheetService(
	storage FileStorage,
	sheets repository.SheetRepository,
	exams repository.ExamRepository,
	students repository.StudentRepository,
	queue SheetQueue,
	maxSizeMB int,
	validate *validator.Validate,
	logger zerolog.Logger,
) SheetService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &sheetService{
		storage:   storage,
		sheets:    sheets,
		exams:     exams,
		students:  students,
		queue:     queue,
		validator: validate,
		logger:    logger.With().Str("component", "sheet_service").Logger(),
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		tracer:    otel.Tracer("github.com/scriba-edu/scriba-go-api/internal/service/sheet"),
	}
}

func (s *sheetService) Upload(ctx context.Context, file *multipart.FileHeader, payload dto.SheetUploadRequest) (dto.SheetResponse, error) {
	ctx, span := s.tracer.Start(ctx, "sheets.upload")
	defer span.End()

	span.SetAttributes(attribute.Int64("sheet.max_bytes", s.maxSize))
	if file != nil {
		span.SetAttributes(
			attribute.String("sheet.original_name", strings.TrimSpace(file.Filename)),
			attribute.Int64("sheet.request_size", file.Size),
		)
	} else {
		span.SetAttributes(attribute.Bool("sheet.file_present", false))
	}

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.SheetResponse{}, err
	}

	if file == nil {
		err := errors.New("sheet file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.SheetResponse{}, err
	}

	exam, err := s.exams.GetByID(ctx, payload.ExamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(ErrExamNotFound)
			span.SetStatus(codes.Error, "exam not found")
			return dto.SheetResponse{}, ErrExamNotFound
		}
		span.RecordError(err)
		return dto.SheetResponse{}, err
	}
	if !exam.IsPublished() {
		span.RecordError(ErrExamNotPublished)
		span.SetStatus(codes.Error, "exam not published")
		return dto.SheetResponse{}, ErrExamNotPublished
	}

	student, err := s.students.GetByID(ctx, payload.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(ErrStudentNotFound)
			span.SetStatus(codes.Error, "student not found")
			return dto.SheetResponse{}, ErrStudentNotFound
		}
		span.RecordError(err)
		return dto.SheetResponse{}, err
	}

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrSheetTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.SheetResponse{}, ErrSheetTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.SheetResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.SheetResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrSheetTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.SheetResponse{}, ErrSheetTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())
	fileType := normalizeSheetMime(mime.String())
	span.SetAttributes(attribute.String("sheet.detected_mime", fileType))
	if !isAllowedSheetType(fileType) {
		observability.UploadRejected().WithLabelValues("type").Inc()
		span.RecordError(ErrSheetTypeNotAllowed)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.SheetResponse{}, ErrSheetTypeNotAllowed
	}

	checksum := sha256.Sum256(buf.Bytes())
	sanitizedName := sanitizeFileName(file.Filename)
	span.SetAttributes(
		attribute.String("sheet.sanitized_name", sanitizedName),
		attribute.Int64("sheet.size_bytes", int64(buf.Len())),
	)

	url, err := s.storage.Upload(ctx, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.SheetResponse{}, err
	}

	sheet := models.AnswerSheet{
		ExamID:    exam.ID,
		StudentID: student.ID,
		FileURL:   url,
		FileName:  sanitizedName,
		MimeType:  mime.String(),
		Checksum:  hex.EncodeToString(checksum[:]),
		SizeBytes: int64(buf.Len()),
		Status:    models.SheetStatusReceived,
	}

	if err := s.sheets.Create(ctx, &sheet); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.SheetResponse{}, err
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, sheet.ID); err != nil {
			s.logger.Warn().Err(err).Uint("sheet_id", sheet.ID).Msg("failed to enqueue sheet for processing")
			span.RecordError(err)
		}
	}

	observability.UploadsAccepted().WithLabelValues(fileType).Inc()
	span.SetAttributes(attribute.Int("sheet.id", int(sheet.ID)))
	span.SetStatus(codes.Ok, "stored")

	s.logger.Info().
		Uint("sheet_id", sheet.ID).
		Uint("exam_id", exam.ID).
		Uint("student_id", student.ID).
		Str("type", fileType).
		Msg("answer sheet received")

	sheet.Exam = exam
	sheet.Student = student

	return dto.NewSheetResponse(sheet), nil
}

func (s *sheetService) List(ctx context.Context, filter dto.SheetFilter) ([]dto.SheetResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	sheets, err := s.sheets.List(ctx, repository.SheetFilter{
		ExamID:    filter.ExamID,
		StudentID: filter.StudentID,
		Status:    filter.Status,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewSheetResponseSlice(sheets), nil
}

func (s *sheetService) Get(ctx context.Context, id uint) (dto.SheetResponse, error) {
	sheet, err := s.sheets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SheetResponse{}, ErrSheetNotFound
		}
		return dto.SheetResponse{}, err
	}

	return dto.NewSheetResponse(sheet), nil
}

func (s *sheetService) GetAnswers(ctx context.Context, id uint) ([]dto.SheetAnswerResponse, error) {
	if _, err := s.sheets.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSheetNotFound
		}
		return nil, err
	}

	answers, err := s.sheets.GetAnswers(ctx, id)
	if err != nil {
		return nil, err
	}

	return dto.NewSheetAnswerResponseSlice(answers), nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("sheet-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func normalizeSheetMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if strings.HasPrefix(lower, "image/") {
		return "image"
	}
	if lower == "application/pdf" {
		return "application/pdf"
	}
	return lower
}

func isAllowedSheetType(m string) bool {
	return m == "image" || m == "application/pdf"
}
