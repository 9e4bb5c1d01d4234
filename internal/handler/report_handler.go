package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/service"
	"github.com/scriba-edu/scriba-go-api/internal/utils"
)

// ReportHandler serves rendered grading reports.
type ReportHandler struct {
	service service.ReportService
	logger  zerolog.Logger
}

// NewReportHandler constructs the handler.
func NewReportHandler(service service.ReportService, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger.With().Str("component", "report_handler").Logger(),
	}
}

// RegisterSheet attaches the per-sheet report route. The group is
// expected to be mounted under the sheets resource.
func (h *ReportHandler) RegisterSheet(router fiber.Router) {
	router.Get("/:id/report", h.sheetReport)
}

// RegisterExam attaches the exam-level report route under the exams
// resource.
func (h *ReportHandler) RegisterExam(router fiber.Router) {
	router.Get("/:id/report", h.examReport)
}

func (h *ReportHandler) sheetReport(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.SheetReport(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sheet report generated", report)
}

func (h *ReportHandler) examReport(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.ExamReport(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "exam report generated", report)
}

func (h *ReportHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSheetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "sheet not found")
	case errors.Is(err, service.ErrExamNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "exam not found")
	case errors.Is(err, service.ErrSheetNotGraded):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
