package performance_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/dto"
	"github.com/scriba-edu/scriba-go-api/internal/handler"
	"github.com/scriba-edu/scriba-go-api/internal/middleware"
	"github.com/scriba-edu/scriba-go-api/internal/service"
)

func TestProgressWebsocketP95Under250ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	progressHandler := handler.NewProgressHandler(&stubProgressService{}, zerolog.Nop())
	progressHandler.Register(app.Group("/api/v1/sheets"))

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/sheets/1/progress"
	clients := 500
	durations := make([]time.Duration, 0, clients)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	for i := 0; i < clients; i++ {
		start := time.Now()
		conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"perf-" + strconv.Itoa(i)}})
		if err != nil {
			t.Fatalf("websocket dial failed: %v", err)
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		_, _, _ = conn.ReadMessage()
		_ = conn.Close()

		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 250*time.Millisecond {
		t.Fatalf("expected websocket P95 <= 250ms, got %s", p95)
	}
}

func TestProgressBroadcastFanoutP95Under300ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	progressService := service.NewProgressService(nil, "", nil, zerolog.Nop())
	progressHandler := handler.NewProgressHandler(progressService, zerolog.Nop())
	progressHandler.Register(app.Group("/api/v1/sheets"))

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/sheets/7/progress"
	clients := 100
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	conns := make([]*websocket.Conn, 0, clients)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	for i := 0; i < clients; i++ {
		conn, resp, err := dialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("websocket dial %d failed: %v", i, err)
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		conns = append(conns, conn)
	}

	// Let every connection finish subscribing before the broadcast.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	progressService.PublishProgress(context.Background(), dto.ProgressEvent{
		Type:    dto.EventGradingCompleted,
		SheetID: 7,
		Grade:   "A-",
	})

	durations := make([]time.Duration, 0, clients)
	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d never received the broadcast: %v", i, err)
		}

		var event dto.ProgressEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("client %d received invalid payload: %v", i, err)
		}
		if event.Type != dto.EventGradingCompleted || event.SheetID != 7 {
			t.Fatalf("client %d received unexpected event %+v", i, event)
		}

		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 300*time.Millisecond {
		t.Fatalf("expected broadcast P95 <= 300ms, got %s", p95)
	}
}

func percentile(values []time.Duration, pct float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	index := int(math.Ceil(pct*float64(len(values)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

type stubProgressService struct{}

func (s *stubProgressService) PublishProgress(context.Context, dto.ProgressEvent) {}

func (s *stubProgressService) Subscribe(sheetID uint) (<-chan dto.ProgressEvent, func()) {
	ch := make(chan dto.ProgressEvent, 1)
	ch <- dto.ProgressEvent{
		Type:      dto.EventGradingQuestion,
		SheetID:   sheetID,
		Question:  "Q1",
		Completed: 1,
		Total:     4,
		SentAt:    time.Now().UTC(),
	}
	cleanup := func() { close(ch) }
	return ch, cleanup
}

func (s *stubProgressService) Start(context.Context) {}
