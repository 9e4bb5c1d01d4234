package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/bloom"
	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/service"
	"github.com/scriba-edu/scriba-go-api/internal/utils"
)

// GradingHandler wires grading and scoring routes.
type GradingHandler struct {
	service   service.GradingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints. Sheet-scoped routes expect the
// group to be mounted under the sheets resource.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/:id/grade", h.grade)
	router.Get("/:id/result", h.result)
}

// RegisterScore attaches the stateless scoring endpoint.
func (h *GradingHandler) RegisterScore(router fiber.Router) {
	router.Post("", h.score)
}

// grade runs the grading pipeline synchronously for one sheet.
func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.GradeSheet(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sheet graded", result)
}

func (h *GradingHandler) result(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.GetResult(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sheet result retrieved", result)
}

// score grades a single question and answer pair without persisting.
func (h *GradingHandler) score(c *fiber.Ctx) error {
	var payload dto.ScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Score(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer scored", result)
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSheetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "sheet not found")
	case errors.Is(err, service.ErrSheetNotExtracted), errors.Is(err, service.ErrExamHasNoQuestions):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, bloom.ErrInvalidLevel):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
