package ai

import "context"

// ParsedAnswer is one question's worth of content lifted from an answer sheet
// image by the vision parser.
type ParsedAnswer struct {
	Question   string `json:"question"`
	Text       string `json:"text"`
	HasDiagram bool   `json:"has_diagram"`
}

// SheetParser extracts per-question answer text from an answer sheet image.
type SheetParser interface {
	ParseSheet(ctx context.Context, image []byte, mimeType string) ([]ParsedAnswer, error)
}

// ImageComparator scores the visual similarity of two image references on a
// [0,1] scale.
type ImageComparator interface {
	Compare(ctx context.Context, referenceURL, candidateURL string) (float64, error)
}
