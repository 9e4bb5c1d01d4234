package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scriba-edu/scriba-go-api/internal/config"
	"github.com/scriba-edu/scriba-go-api/internal/handler"
	"github.com/scriba-edu/scriba-go-api/internal/middleware"
	"github.com/scriba-edu/scriba-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExamHandler       *handler.ExamHandler
	SheetHandler      *handler.SheetHandler
	ExtractionHandler *handler.ExtractionHandler
	GradingHandler    *handler.GradingHandler
	StudentHandler    *handler.StudentHandler
	ReportHandler     *handler.ReportHandler
	ProgressHandler   *handler.ProgressHandler
	SeedHandler       *handler.SeedHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Exams are a teacher surface: authoring, answer keys, aggregates.
	if deps.ExamHandler != nil {
		exams := api.Group("/exams", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.ExamHandler.Register(exams)

		if deps.ReportHandler != nil {
			deps.ReportHandler.RegisterExam(exams)
		}
	}

	// Sheets: upload, extraction, grading, results.
	if deps.SheetHandler != nil {
		sheets := api.Group("/sheets", jwtMiddleware)
		deps.SheetHandler.Register(sheets)

		if deps.ExtractionHandler != nil {
			deps.ExtractionHandler.Register(sheets)
		}
		if deps.GradingHandler != nil {
			deps.GradingHandler.Register(sheets)
		}
		if deps.ReportHandler != nil {
			deps.ReportHandler.RegisterSheet(sheets)
		}
	}

	// The progress websocket skips JWT: browsers cannot attach bearer
	// headers to websocket upgrades.
	if deps.ProgressHandler != nil {
		progress := api.Group("/sheets")
		deps.ProgressHandler.Register(progress)
	}

	// Ad-hoc scoring sandbox.
	if deps.GradingHandler != nil {
		score := api.Group("/score", jwtMiddleware, middleware.RateLimit("score", 30, time.Minute))
		deps.GradingHandler.RegisterScore(score)
	}

	// Student registry and grading summaries.
	if deps.StudentHandler != nil {
		students := api.Group("/students", jwtMiddleware)
		deps.StudentHandler.Register(students)
	}

	// Seed tooling authenticates through X-Seed-Token.
	if deps.SeedHandler != nil {
		seed := api.Group("/seed")
		deps.SeedHandler.Register(seed)
	}
}
