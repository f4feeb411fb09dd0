// Package storage keeps uploaded project documents on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge = errors.New("file exceeds the maximum upload size")
	ErrNotFound = errors.New("stored file not found")
)

// Store saves and serves uploaded files by opaque key
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (key string, size int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// LocalStore writes files under a single directory. Keys are random UUIDs
// with the original extension so user-supplied names never reach the path.
type LocalStore struct {
	dir     string
	maxSize int64
}

// NewLocalStore creates dir if needed
func NewLocalStore(dir string, maxSize int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, maxSize: maxSize}, nil
}

// MaxSize returns the upload limit in bytes
func (s *LocalStore) MaxSize() int64 {
	return s.maxSize
}

func (s *LocalStore) path(key string) (string, error) {
	name := strings.TrimSuffix(key, filepath.Ext(key))
	if _, err := uuid.Parse(name); err != nil || filepath.Base(key) != key {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, key), nil
}

// Save implements Store. Partial files are removed when the copy fails or
// the limit is exceeded.
func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	key := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(s.dir, key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = 1<<63 - 2
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("failed to write file: %w", err)
	case n > limit:
		err = ErrTooLarge
	case closeErr != nil:
		err = fmt.Errorf("failed to write file: %w", closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("Failed to remove partial upload", "key", key, "error", rmErr)
		}
		return "", 0, err
	}
	return key, n, nil
}

// Open implements Store
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete implements Store. Deleting a missing file is not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
