package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

const sheetParsePrompt = `You are an assistant that reads a PHOTO of a handwritten exam answer sheet.
Questions are numbered Q1, Q2, ... or 1), 2), ... on the sheet.
For every question you can identify, extract the student's full answer text and note whether the answer includes a drawn diagram or figure.
Return STRICT JSON: an array of objects with exactly these fields:
[{"question": "Q1", "text": "the transcribed answer", "has_diagram": false}]
Transcribe faithfully; do not correct, grade, or summarize the answers. Use an empty string for unreadable answers.`

// GeminiConfig defines configuration options for the vision sheet parser.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// GeminiParser extracts per-question answers from sheet images through the
// Gemini generateContent endpoint.
type GeminiParser struct {
	cfg    GeminiConfig
	httpc  *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiParser builds a vision parser using the provided configuration.
func NewGeminiParser(cfg GeminiConfig) (*GeminiParser, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiDefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &GeminiParser{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer("github.com/scriba-edu/scriba-go-api/pkg/ai/gemini"),
		logger: logger,
	}, nil
}

// ParseSheet sends the image inline and decodes the JSON answer list from the
// first candidate.
func (p *GeminiParser) ParseSheet(parent context.Context, image []byte, mimeType string) ([]ParsedAnswer, error) {
	ctx, span := p.tracer.Start(parent, "gemini.parse_sheet", trace.WithAttributes(
		attribute.String("model", p.cfg.Model),
		attribute.Int("image_bytes", len(image)),
	))
	defer span.End()

	body := map[string]any{
		"contents": []any{
			map[string]any{
				"parts": []any{
					map[string]any{"text": sheetParsePrompt},
					map[string]any{"inline_data": map[string]any{
						"mime_type": mimeType,
						"data":      base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
		"generationConfig": map[string]any{
			"temperature":        0,
			"response_mime_type": "application/json",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.cfg.BaseURL, p.cfg.Model, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpc.Do(req)
	providerDuration.WithLabelValues(providerGemini).Observe(time.Since(start).Seconds())
	if err != nil {
		providerFailures.WithLabelValues(providerGemini).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(detail))
		providerFailures.WithLabelValues(providerGemini).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		providerFailures.WithLabelValues(providerGemini).Inc()
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	answers, err := parseAnswerJSON(out.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		providerFailures.WithLabelValues(providerGemini).Inc()
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("answers", len(answers)))
	return answers, nil
}

// parseAnswerJSON tolerates markdown code fences around the JSON payload.
func parseAnswerJSON(raw string) ([]ParsedAnswer, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var answers []ParsedAnswer
	if err := json.Unmarshal([]byte(cleaned), &answers); err != nil {
		return nil, fmt.Errorf("parse sheet json: %w", err)
	}
	return answers, nil
}
