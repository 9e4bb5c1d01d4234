package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ClipConfig defines configuration options for the CLIP sidecar client.
type ClipConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// ClipComparator scores diagram similarity through a sidecar service exposing
// CLIP embedding cosine similarity over HTTP.
type ClipComparator struct {
	cfg    ClipConfig
	httpc  *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewClipComparator builds a comparator client for the given sidecar address.
func NewClipComparator(cfg ClipConfig) (*ClipComparator, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("clip sidecar base url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &ClipComparator{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer("github.com/scriba-edu/scriba-go-api/pkg/ai/clip"),
		logger: logger,
	}, nil
}

// Compare posts both image references to the sidecar and returns the cosine
// similarity of their CLIP embeddings, clamped to [0,1].
func (c *ClipComparator) Compare(parent context.Context, referenceURL, candidateURL string) (float64, error) {
	ctx, span := c.tracer.Start(parent, "clip.compare")
	defer span.End()

	payload, err := json.Marshal(map[string]string{
		"reference": referenceURL,
		"candidate": candidateURL,
	})
	if err != nil {
		return 0, fmt.Errorf("encode clip request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/compare", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build clip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	providerDuration.WithLabelValues(providerClip).Observe(time.Since(start).Seconds())
	if err != nil {
		providerFailures.WithLabelValues(providerClip).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("clip request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("clip status %d: %s", resp.StatusCode, string(detail))
		providerFailures.WithLabelValues(providerClip).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	var out struct {
		Similarity float64 `json:"similarity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		providerFailures.WithLabelValues(providerClip).Inc()
		return 0, fmt.Errorf("decode clip response: %w", err)
	}

	similarity := out.Similarity
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	span.SetAttributes(attribute.Float64("similarity", similarity))
	return similarity, nil
}
