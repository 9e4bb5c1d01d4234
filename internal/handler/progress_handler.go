package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/service"
)

const progressPingInterval = 30 * time.Second

// ProgressHandler exposes the grading progress websocket. Clients
// subscribe to one sheet and receive lifecycle events as they happen.
type ProgressHandler struct {
	service service.ProgressService
	logger  zerolog.Logger
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(service service.ProgressService, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		service: service,
		logger:  logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register binds the websocket route under the sheets resource.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Use("/:id/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/:id/progress", websocket.New(h.handleConnection))
}

func (h *ProgressHandler) handleConnection(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	sheetID, err := strconv.ParseUint(conn.Params("id"), 10, 32)
	if err != nil || sheetID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "invalid sheet id"))
		return
	}

	events, cleanup := h.service.Subscribe(uint(sheetID))
	defer cleanup()

	h.logger.Info().Uint64("sheet_id", sheetID).Msg("progress websocket connected")
	defer h.logger.Info().Uint64("sheet_id", sheetID).Msg("progress websocket disconnected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Msg("progress write loop terminated")
				return
			}
		case <-time.After(progressPingInterval):
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				h.logger.Debug().Err(err).Msg("progress ping failed")
				return
			}
		case <-closed:
			return
		}
	}
}
