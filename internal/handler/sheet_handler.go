package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/service"
	"github.com/scriba-edu/scriba-go-api/internal/utils"
)

// SheetHandler wires answer sheet intake and retrieval routes.
type SheetHandler struct {
	service service.SheetService
	logger  zerolog.Logger
}

// NewSheetHandler constructs the handler.
func NewSheetHandler(service service.SheetService, logger zerolog.Logger) *SheetHandler {
	return &SheetHandler{
		service: service,
		logger:  logger.With().Str("component", "sheet_handler").Logger(),
	}
}

// Register attaches sheet endpoints to the router group.
func (h *SheetHandler) Register(router fiber.Router) {
	router.Post("", h.upload)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/answers", h.answers)
}

func (h *SheetHandler) upload(c *fiber.Ctx) error {
	var payload dto.SheetUploadRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	file, err := c.FormFile("sheet")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "sheet file is required")
	}

	sheet, err := h.service.Upload(c.Context(), file, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "answer sheet received", sheet)
}

func (h *SheetHandler) list(c *fiber.Ctx) error {
	var filter dto.SheetFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	sheets, err := h.service.List(c.Context(), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, sheets, "sheets retrieved", fiber.Map{"count": len(sheets)})
}

func (h *SheetHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	sheet, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sheet retrieved", sheet)
}

func (h *SheetHandler) answers(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	answers, err := h.service.GetAnswers(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sheet answers retrieved", answers)
}

func (h *SheetHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSheetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "sheet not found")
	case errors.Is(err, service.ErrExamNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "exam not found")
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "student not found")
	case errors.Is(err, service.ErrExamNotPublished):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSheetTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrSheetTypeNotAllowed):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
