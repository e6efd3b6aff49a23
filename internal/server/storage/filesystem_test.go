package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestFileSystemStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("saves file to disk", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		n, err := store.Save(ctx, "123-456.png", bytes.NewReader([]byte("test content")), "image/png")
		require.NoError(t, err)
		assert.Equal(t, int64(12), n)

		content, err := os.ReadFile(filepath.Join(dir, "123-456.png"))
		require.NoError(t, err)
		assert.Equal(t, "test content", string(content))
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		_, err := store.Save(ctx, "a.png", strings.NewReader("x"), "image/png")
		require.NoError(t, err)

		assert.Equal(t, []string{"a.png"}, listDir(t, dir))
	})

	t.Run("saves large content", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		largeContent := strings.Repeat("x", 1024*1024) // 1MB
		n, err := store.Save(ctx, "large.jpg", strings.NewReader(largeContent), "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, int64(len(largeContent)), n)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "images")
		store := NewFileSystemStore(dir)

		_, err := store.Save(ctx, "a.png", strings.NewReader("x"), "image/png")
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, "a.png"))
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		_, err := store.Save(ctx, "dup.png", strings.NewReader("first"), "image/png")
		require.NoError(t, err)

		_, err = store.Save(ctx, "dup.png", strings.NewReader("second"), "image/png")
		assert.ErrorIs(t, err, ErrExists)

		content, err := os.ReadFile(filepath.Join(dir, "dup.png"))
		require.NoError(t, err)
		assert.Equal(t, "first", string(content))
		assert.Equal(t, []string{"dup.png"}, listDir(t, dir))
	})

	t.Run("removes partial file on read error", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		_, err := store.Save(ctx, "broken.png", io.MultiReader(strings.NewReader("partial"), failingReader{}), "image/png")
		require.Error(t, err)

		assert.Empty(t, listDir(t, dir))
	})

	t.Run("cancelled context publishes nothing", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Save(cctx, "late.png", strings.NewReader("x"), "image/png")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, listDir(t, dir))
	})
}

func TestFileSystemStore_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("opens existing file", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "test123.png"), []byte("data"), 0644))

		obj, err := store.Open(ctx, "test123.png")
		require.NoError(t, err)
		defer obj.Body.Close()

		assert.Equal(t, "test123.png", obj.Name)
		assert.Equal(t, int64(4), obj.Size)
		assert.Equal(t, "image/png", obj.ContentType)

		body, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, "data", string(body))
	})

	t.Run("returns ErrNotFound for missing file", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		_, err := store.Open(ctx, "nonexistent.png")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("returns ErrNotFound for missing directory", func(t *testing.T) {
		store := NewFileSystemStore(filepath.Join(t.TempDir(), "never-created"))

		_, err := store.Open(ctx, "a.png")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("directories are not images", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
		store := NewFileSystemStore(dir)

		_, err := store.Open(ctx, "sub")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileSystemStore_EnsureDir(t *testing.T) {
	ctx := context.Background()

	t.Run("creates directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "storage", "path")
		store := NewFileSystemStore(dir)

		require.NoError(t, store.EnsureDir(ctx))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("succeeds if directory exists", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		assert.NoError(t, store.EnsureDir(ctx))
		assert.NoError(t, store.EnsureDir(ctx))
	})
}

func TestFileSystemStore_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy directory", func(t *testing.T) {
		assert.NoError(t, NewFileSystemStore(t.TempDir()).Check(ctx))
	})

	t.Run("missing directory", func(t *testing.T) {
		store := NewFileSystemStore(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, store.Check(ctx))
	})

	t.Run("path is a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		assert.Error(t, NewFileSystemStore(path).Check(ctx))
	})
}

func TestFileSystemStore_SweepStale(t *testing.T) {
	ctx := context.Background()

	t.Run("removes only old temp files", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		old := filepath.Join(dir, ".upload-old.part")
		fresh := filepath.Join(dir, ".upload-fresh.part")
		image := filepath.Join(dir, "1700000000000-1.png")
		for _, p := range []string{old, fresh, image} {
			require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		}
		past := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(old, past, past))
		require.NoError(t, os.Chtimes(image, past, past))

		removed, err := store.SweepStale(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		assert.NoFileExists(t, old)
		assert.FileExists(t, fresh)
		assert.FileExists(t, image)
	})

	t.Run("missing directory is not an error", func(t *testing.T) {
		store := NewFileSystemStore(filepath.Join(t.TempDir(), "missing"))

		removed, err := store.SweepStale(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}
