package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local serves objects from a directory, keyed by relative path.
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	if dir == "" {
		dir = "."
	}
	return &Local{dir: dir}
}

func (l *Local) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file key %q", key)
	}
	return filepath.Join(l.dir, strings.TrimPrefix(clean, string(filepath.Separator))), nil
}

func (l *Local) Fetch(ctx context.Context, key string) (path string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := l.resolve(key)
	if err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open object %s: %w", key, err)
	}
	defer in.Close()

	f, err := tempFile()
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close temp file: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(f.Name())
			path = ""
		}
	}()

	if _, err = io.Copy(f, in); err != nil {
		return "", fmt.Errorf("copy object %s: %w", key, err)
	}
	return f.Name(), nil
}

func (l *Local) URL(key string) string {
	path, err := l.resolve(key)
	if err != nil {
		return ""
	}
	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}

var _ Storage = (*Local)(nil)
