// Package storage fetches uploaded documents from object storage into local
// temporary files.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Ryanakml/pdf-chatbots/config"
)

// Storage resolves a file key to a local copy of the object. Callers remove
// the returned file when they are done with it.
type Storage interface {
	Fetch(ctx context.Context, key string) (string, error)
	URL(key string) string
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case config.StorageS3:
		return NewS3(ctx, cfg)
	case config.StorageLocal, "":
		return NewLocal(cfg.Dir), nil
	default:
		return nil, &config.ValidationError{Problems: []string{fmt.Sprintf("unsupported storage backend %q", cfg.Backend)}}
	}
}

// tempFile creates <tmp>/pdf/<unixnano>.pdf.
func tempFile() (*os.File, error) {
	dir := filepath.Join(os.TempDir(), "pdf")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	name := filepath.Join(dir, strconv.FormatInt(time.Now().UnixNano(), 10)+".pdf")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}
