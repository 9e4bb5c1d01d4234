package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/scriba-edu/scriba-go-api/internal/config"
	"github.com/scriba-edu/scriba-go-api/internal/database"
	"github.com/scriba-edu/scriba-go-api/internal/extract"
	"github.com/scriba-edu/scriba-go-api/internal/handler"
	"github.com/scriba-edu/scriba-go-api/internal/middleware"
	"github.com/scriba-edu/scriba-go-api/internal/models"
	"github.com/scriba-edu/scriba-go-api/internal/repository"
	"github.com/scriba-edu/scriba-go-api/internal/router"
	"github.com/scriba-edu/scriba-go-api/internal/scoring"
	"github.com/scriba-edu/scriba-go-api/internal/service"
	"github.com/scriba-edu/scriba-go-api/internal/textsim"
	"github.com/scriba-edu/scriba-go-api/pkg/ai"
	cloud "github.com/scriba-edu/scriba-go-api/pkg/cloudinary"
	"github.com/scriba-edu/scriba-go-api/pkg/storage"
)

// sheetStore combines upload and fetch for stored sheet scans.
type sheetStore interface {
	service.FileStorage
	service.FileFetcher
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Exam{},
		&models.ExamQuestion{},
		&models.AnswerSheet{},
		&models.SheetAnswer{},
		&models.AnswerEvaluation{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, grading requests process in-line")
	}

	uploader, err := buildSheetStore(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create sheet storage: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	examRepo := repository.NewExamRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sheetRepo := repository.NewSheetRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)

	engine := scoring.NewEngine(buildSemanticScorer(cfg, logger), textsim.NewScorer(), scoring.DefaultWeights(), logger)

	var vision ai.SheetParser
	if cfg.GeminiAPIKey != "" {
		parser, err := ai.NewGeminiParser(ai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create vision parser: %v", err)
		}
		vision = parser
	}

	var comparator ai.ImageComparator
	if cfg.ClipURL != "" {
		clip, err := ai.NewClipComparator(ai.ClipConfig{
			BaseURL: cfg.ClipURL,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("failed to create clip comparator: %v", err)
		}
		comparator = clip
	}

	var ocr extract.Engine
	if cfg.OCREnabled {
		ocr = extract.NewTesseractOCR()
	}

	progressService := service.NewProgressService(redisClient, cfg.ProgressChannelBase, natsConn, logger)
	studentService := service.NewStudentService(studentRepo, sheetRepo, redisClient, cfg.SummaryCacheTTL, validate, logger)
	extractionService := service.NewExtractionService(sheetRepo, uploader, ocr, vision, progressService, logger)
	gradingService := service.NewGradingService(sheetRepo, examRepo, evaluationRepo, engine, comparator, extractionService, progressService, studentService, natsConn, logger)
	sheetService := service.NewSheetService(uploader, sheetRepo, examRepo, studentRepo, gradingService, cfg.UploadMaxSizeMB, validate, logger)
	examService := service.NewExamService(examRepo, validate, logger)
	reportService := service.NewReportService(sheetRepo, examRepo, evaluationRepo, logger)
	seedService := service.NewSeedService(examRepo, studentRepo, cfg.SeedEnabled, cfg.SeedToken, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ExamHandler:       handler.NewExamHandler(examService, logger),
		SheetHandler:      handler.NewSheetHandler(sheetService, logger),
		ExtractionHandler: handler.NewExtractionHandler(extractionService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, validate, logger),
		StudentHandler:    handler.NewStudentHandler(studentService, logger),
		ReportHandler:     handler.NewReportHandler(reportService, logger),
		ProgressHandler:   handler.NewProgressHandler(progressService, logger),
		SeedHandler:       handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progressService.Start(runCtx)
	gradingService.Start(runCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-runCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

func buildSheetStore(cfg config.Config, logger zerolog.Logger) (sheetStore, error) {
	if cfg.CloudinaryCloudName != "" {
		return cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	}

	logger.Warn().Msg("cloudinary not configured, storing sheets on local disk")
	return storage.NewDisk(cfg.UploadDir, logger)
}

func buildSemanticScorer(cfg config.Config, logger zerolog.Logger) scoring.SimilarityScorer {
	if cfg.AIProvider == "openai" {
		if cfg.OpenAIAPIKey == "" {
			logger.Warn().Msg("openai api key not configured, semantic scoring disabled")
			return ai.NewDisabledScorer()
		}

		scorer, err := ai.NewOpenAIScorer(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIEmbeddingModel,
			Logger: logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create openai scorer, semantic scoring disabled")
			return ai.NewDisabledScorer()
		}
		return scorer
	}

	return ai.NewDisabledScorer()
}
