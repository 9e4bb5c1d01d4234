package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDisk(t *testing.T) *Disk {
	t.Helper()
	disk, err := NewDisk(t.TempDir(), zerolog.New(io.Discard))
	require.NoError(t, err)
	return disk
}

func TestDiskUploadAndFetch(t *testing.T) {
	disk := newTestDisk(t)
	content := []byte("scanned sheet bytes")

	url, err := disk.Upload(context.Background(), "scan one.png", bytes.NewReader(content))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "file://"))

	name := filepath.Base(strings.TrimPrefix(url, "file://"))
	require.True(t, strings.HasPrefix(name, "scan-one-"))
	require.True(t, strings.HasSuffix(name, ".png"))

	payload, err := disk.Fetch(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, content, payload)
}

func TestDiskUploadsDoNotCollide(t *testing.T) {
	disk := newTestDisk(t)

	first, err := disk.Upload(context.Background(), "scan.png", strings.NewReader("first"))
	require.NoError(t, err)
	second, err := disk.Upload(context.Background(), "scan.png", strings.NewReader("second"))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	payload, err := disk.Fetch(context.Background(), first)
	require.NoError(t, err)
	require.Equal(t, "first", string(payload))
}

func TestDiskFetchRejectsOutsideDir(t *testing.T) {
	disk := newTestDisk(t)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	_, err := disk.Fetch(context.Background(), "file://"+outside)
	require.Error(t, err)

	_, err = disk.Fetch(context.Background(), "file://"+filepath.Join(disk.dir, "..", "secret.txt"))
	require.Error(t, err)
}

func TestDiskFetchMissingFile(t *testing.T) {
	disk := newTestDisk(t)

	_, err := disk.Fetch(context.Background(), "file://"+filepath.Join(disk.dir, "missing.png"))
	require.Error(t, err)
}
