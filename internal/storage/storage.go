// Package storage holds uploaded statements and conversion artefacts in a blob store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/insightdelivered/statement-converter/internal/config"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store. Keys use forward slashes.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// New opens the backend named by cfg.Type ("local" or "gcs").
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return NewLocal(cfg.LocalPath)
	case "gcs":
		return NewGCS(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// UploadKey returns a fresh key for an uploaded file.
func UploadKey(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "statement.pdf"
	}
	return "uploads/" + uuid.NewString() + "/" + name
}

// ConvertedKey is where the CSV of an upload is kept.
func ConvertedKey(uploadID string) string {
	return "converted/" + uploadID + ".csv"
}

// PreviewKey is where the preview image of an upload is kept.
func PreviewKey(uploadID string) string {
	return "previews/" + uploadID + "-preview.png"
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}

// ReadAll fetches the whole object under key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}
