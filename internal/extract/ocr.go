// Package extract turns scanned answer sheets into per-question answer text.
// OCR is delegated to the tesseract binary; splitting the recognized text into
// question-numbered segments happens here.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// ErrTesseractNotFound indicates the tesseract binary is not installed.
var ErrTesseractNotFound = errors.New("tesseract not found in PATH")

// Engine extracts plain text from a scanned page image.
type Engine interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
	ExtractPath(ctx context.Context, path string) (string, error)
}

// TesseractOCR shells out to the tesseract binary.
type TesseractOCR struct {
	Lang    string
	Timeout time.Duration
}

// NewTesseractOCR returns an engine with English language data and a
// per-invocation timeout.
func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{Lang: "eng", Timeout: 30 * time.Second}
}

// Extract copies the image to a temp file and runs tesseract against it.
func (t *TesseractOCR) Extract(ctx context.Context, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "sheet-*.img")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("buffer image: %w", err)
	}
	return t.run(ctx, tmp.Name())
}

// ExtractPath runs tesseract against an image already on disk.
func (t *TesseractOCR) ExtractPath(ctx context.Context, path string) (string, error) {
	return t.run(ctx, path)
}

func (t *TesseractOCR) run(ctx context.Context, imagePath string) (string, error) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		return "", ErrTesseractNotFound
	}

	args := []string{imagePath, "stdout"}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "tesseract", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %s", stderr.String())
	}
	return stdout.String(), nil
}
