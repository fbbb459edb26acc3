package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileMissing indicates a token resolved but its bytes are gone.
var ErrFileMissing = errors.New("stored file missing")

// FileStore persists raw upload bytes.
type FileStore interface {
	Save(ctx context.Context, name string, reader io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}

type localFileStore struct {
	dir string
}

// NewLocalFileStore stores files under dir, creating it when needed.
func NewLocalFileStore(dir string) (FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "libreta-uploads")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &localFileStore{dir: dir}, nil
}

// Save writes to a temp file and renames it into place so readers never see
// a partial workbook.
func (s *localFileStore) Save(_ context.Context, name string, reader io.Reader) (path string, err error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", errors.New("file name is required")
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, reader); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync upload: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	target := filepath.Join(s.dir, name)
	if err = os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("move upload into place: %w", err)
	}
	return target, nil
}

func (s *localFileStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrFileMissing)
		}
		return nil, err
	}
	return f, nil
}

func (s *localFileStore) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
