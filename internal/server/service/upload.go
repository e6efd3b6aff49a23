package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"imgdrop/internal/server/config"
	"imgdrop/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrNoFile          = errors.New("no file selected")
	ErrUnsupportedType = errors.New("only image files are allowed")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrNotFound        = errors.New("image not found")
	ErrInvalidFilename = errors.New("invalid filename")
)

const (
	// randomSuffixMax bounds the random component of generated filenames.
	randomSuffixMax = 1_000_000_000
	maxExtLength    = 10
	maxSaveAttempts = 3
)

// UploadInput describes an incoming image. Data must be rewindable so the
// upload can be retried under a new name after a collision.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.ReadSeeker
}

// StoredImage is returned after a successful upload.
type StoredImage struct {
	Filename string
	Size     int64
	Location string
}

// ImageService validates, stores and serves uploaded images.
type ImageService struct {
	store       storage.Store
	maxSize     int64
	allowedType string
	now         func() time.Time
}

// NewImageService creates a new image service.
func NewImageService(store storage.Store, cfg *config.Config) *ImageService {
	return &ImageService{
		store:       store,
		maxSize:     cfg.MaxFileSize,
		allowedType: cfg.AllowedTypePrefix,
		now:         time.Now,
	}
}

// MaxFileSize returns the largest accepted upload in bytes.
func (s *ImageService) MaxFileSize() int64 {
	return s.maxSize
}

// Upload validates the declared type and size, then stores the image under
// a freshly generated name. The original filename only contributes its
// extension.
func (s *ImageService) Upload(ctx context.Context, in UploadInput) (*StoredImage, error) {
	if in.Data == nil {
		return nil, ErrNoFile
	}

	if !s.isAllowedType(in.ContentType) {
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedType, in.ContentType)
	}

	if in.Size > s.maxSize {
		return nil, ErrFileTooLarge
	}

	ext := filepath.Ext(in.Filename)

	for attempt := 1; ; attempt++ {
		name, err := GenerateFilename(s.now(), ext)
		if err != nil {
			return nil, err
		}

		size, err := s.store.Save(ctx, name, &capReader{r: in.Data, remaining: s.maxSize}, in.ContentType)
		switch {
		case err == nil:
			slog.Info("image stored",
				"filename", name,
				"size", size,
				"content_type", in.ContentType,
			)
			return &StoredImage{
				Filename: name,
				Size:     size,
				Location: s.store.Location(name),
			}, nil

		case errors.Is(err, ErrFileTooLarge):
			return nil, ErrFileTooLarge

		case errors.Is(err, storage.ErrExists) && attempt < maxSaveAttempts:
			slog.Warn("generated filename collided, retrying", "filename", name, "attempt", attempt)
			if _, err := in.Data.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("failed to rewind upload: %w", err)
			}

		default:
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
	}
}

// Retrieve opens a previously stored image. Callers must close the body.
func (s *ImageService) Retrieve(ctx context.Context, filename string) (*storage.Object, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	obj, err := s.store.Open(ctx, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

// Check reports whether the storage backend is usable.
func (s *ImageService) Check(ctx context.Context) error {
	return s.store.Check(ctx)
}

func (s *ImageService) isAllowedType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType != "" && strings.HasPrefix(mediaType, s.allowedType)
}

// --- Helpers ---

// ResolveStorageDirectory returns the cleaned storage root. An empty root
// resolves to the default "images" directory.
func ResolveStorageDirectory(root string) string {
	if root == "" {
		return "images"
	}
	return filepath.Clean(root)
}

// GenerateFilename returns "<epoch-millis>-<random>" followed by the
// sanitized extension, e.g. "1718000000000-482913374.png".
func GenerateFilename(now time.Time, originalExt string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(randomSuffixMax))
	if err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return fmt.Sprintf("%d-%d%s", now.UnixMilli(), n.Int64(), sanitizeExt(originalExt)), nil
}

// sanitizeExt keeps an extension only if it is short and alphanumeric.
func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > maxExtLength {
		return ""
	}
	for _, c := range ext {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return "." + ext
}

// ValidateFilename rejects names that could escape the storage root or
// address hidden files.
func ValidateFilename(name string) error {
	switch {
	case name == "",
		strings.ContainsAny(name, `/\`),
		strings.Contains(name, ".."),
		strings.ContainsRune(name, 0),
		strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// capReader fails once more than remaining bytes have been read, so an
// understated size header cannot push an oversized file to storage.
type capReader struct {
	r         io.Reader
	remaining int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}
