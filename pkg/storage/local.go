package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fetchLimit caps how many bytes Fetch reads back from storage.
const fetchLimit = 50 * 1024 * 1024

// Disk stores answer sheet scans on the local filesystem and serves
// them back for extraction. It backs environments without Cloudinary
// credentials.
type Disk struct {
	dir    string
	logger zerolog.Logger
}

// NewDisk constructs a disk storage rooted at dir, creating it if needed.
func NewDisk(dir string, logger zerolog.Logger) (*Disk, error) {
	if dir == "" {
		dir = "uploads"
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	return &Disk{
		dir:    abs,
		logger: logger.With().Str("component", "disk_storage").Logger(),
	}, nil
}

// Upload writes the file under the storage dir and returns a file URL.
func (d *Disk) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	fileName := fmt.Sprintf("%s-%s%s", baseName(name), uuid.NewString(), strings.ToLower(filepath.Ext(name)))
	path := filepath.Join(d.dir, fileName)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, reader)
	if err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	d.logger.Info().Str("path", path).Int64("bytes", written).Msg("file stored on disk")

	return "file://" + path, nil
}

// Fetch reads a previously stored asset by its file URL. Paths outside
// the storage dir are refused.
func (d *Disk) Fetch(ctx context.Context, url string) ([]byte, error) {
	path := filepath.Clean(strings.TrimPrefix(url, "file://"))

	rel, err := filepath.Rel(d.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("asset %q is outside the storage dir", url)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset: %w", err)
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, fetchLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}

	return payload, nil
}

func baseName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "sheet"
	}

	return base
}
