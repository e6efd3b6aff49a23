package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
)

// Temp files are hidden so they can never be addressed through the
// retrieval endpoint, which rejects names with a leading dot.
const (
	tempPrefix = ".upload-"
	tempSuffix = ".part"
)

// Store defines the interface for image storage backends.
type Store interface {
	EnsureDir(ctx context.Context) error
	Save(ctx context.Context, name string, data io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, name string) (*Object, error)
	Check(ctx context.Context) error
	Location(name string) string
}

// Object is a stored image opened for reading. Callers must close Body.
type Object struct {
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
	Body        io.ReadCloser
}

// FileSystemStore stores images as a flat directory of files.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
// Safe to call concurrently.
func (s *FileSystemStore) EnsureDir(ctx context.Context) error {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.basePath, err)
	}
	return nil
}

// Save streams data into a temp file and then links it to name.
// The link fails if name is taken, so an existing image is never overwritten.
func (s *FileSystemStore) Save(ctx context.Context, name string, data io.Reader, contentType string) (int64, error) {
	if err := s.EnsureDir(ctx); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.basePath, tempPrefix+"*"+tempSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, data)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := os.Link(tmpPath, s.Location(name)); err != nil {
		if os.IsExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return 0, fmt.Errorf("failed to publish file %s: %w", name, err)
	}

	return n, nil
}

// Open returns the stored image for reading.
func (s *FileSystemStore) Open(ctx context.Context, name string) (*Object, error) {
	path := s.Location(name)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &Object{
		Name:        name,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Body:        f,
	}, nil
}

// Check verifies that the storage directory is present.
func (s *FileSystemStore) Check(ctx context.Context) error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", s.basePath)
	}
	return nil
}

// Location returns the on-disk path for name.
func (s *FileSystemStore) Location(name string) string {
	return filepath.Join(s.basePath, name)
}

// SweepStale removes temp files left behind by uploads that never finished,
// e.g. after a crash mid-write. Returns the number of files removed.
func (s *FileSystemStore) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list storage directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, tempSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.basePath, name)); err != nil && !os.IsNotExist(err) {
			slog.Error("failed to remove stale temp file", "file", name, "error", err)
			continue
		}
		removed++
	}

	return removed, nil
}
