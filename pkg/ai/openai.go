package ai

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	providerOpenAI = "openai_embeddings"
	providerGemini = "gemini_vision"
	providerClip   = "clip_sidecar"
)

var (
	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scriba",
		Subsystem: "ai",
		Name:      "provider_duration_seconds",
		Help:      "Duration of external model provider requests",
	}, []string{"provider"})

	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scriba",
		Subsystem: "ai",
		Name:      "provider_failures_total",
		Help:      "Number of external model provider failures",
	}, []string{"provider"})
)

// OpenAIConfig defines configuration options for the embedding scorer.
type OpenAIConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// OpenAIScorer derives semantic similarity from OpenAI text embeddings: both
// texts are embedded in a single request and scored by cosine similarity.
type OpenAIScorer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIScorer builds a new scorer using the provided configuration.
func NewOpenAIScorer(cfg OpenAIConfig) (*OpenAIScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}

	tracer := otel.Tracer("github.com/scriba-edu/scriba-go-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIScorer{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Similarity embeds the reference and candidate texts and returns their
// cosine similarity clamped to [0,1].
func (s *OpenAIScorer) Similarity(parent context.Context, reference, candidate string) (float64, error) {
	ctx, span := s.tracer.Start(parent, "openai.similarity", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{reference, candidate},
		Model: openai.EmbeddingModel(s.cfg.Model),
	})
	providerDuration.WithLabelValues(providerOpenAI).Observe(time.Since(start).Seconds())
	if err != nil {
		providerFailures.WithLabelValues(providerOpenAI).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) < 2 {
		err := fmt.Errorf("expected 2 embeddings, got %d", len(resp.Data))
		providerFailures.WithLabelValues(providerOpenAI).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	similarity := cosineSimilarity(resp.Data[0].Embedding, resp.Data[1].Embedding)
	span.SetAttributes(attribute.Float64("similarity", similarity))
	return similarity, nil
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0,1]. Mismatched or zero-norm vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}
