package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/extract"
	"github.com/scriba-edu/scriba-go-api/internal/service"
	"github.com/scriba-edu/scriba-go-api/internal/utils"
)

// ExtractionHandler exposes on-demand answer extraction for a sheet.
type ExtractionHandler struct {
	service service.ExtractionService
	logger  zerolog.Logger
}

// NewExtractionHandler constructs the handler.
func NewExtractionHandler(service service.ExtractionService, logger zerolog.Logger) *ExtractionHandler {
	return &ExtractionHandler{
		service: service,
		logger:  logger.With().Str("component", "extraction_handler").Logger(),
	}
}

// Register attaches the extraction endpoint. The route expects the
// group to be mounted under the sheets resource.
func (h *ExtractionHandler) Register(router fiber.Router) {
	router.Post("/:id/extract", h.extract)
}

// extract runs answer extraction synchronously for one sheet.
func (h *ExtractionHandler) extract(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	answers, err := h.service.ExtractSheet(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sheet extracted", answers)
}

func (h *ExtractionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSheetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "sheet not found")
	case errors.Is(err, service.ErrNoAnswersExtracted):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, extract.ErrTesseractNotFound):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
