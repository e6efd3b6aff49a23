package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"imgdrop/internal/server/service"

	"github.com/labstack/echo/v4"
)

// UploadResponse is the body returned after a successful upload.
type UploadResponse struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Handler contains the HTTP handlers for the image API.
type Handler struct {
	svc     *service.ImageService
	baseURL string
}

// NewHandler creates a new handler. When baseURL is empty, image URLs are
// built from the scheme and host of each request.
func NewHandler(svc *service.ImageService, baseURL string) *Handler {
	return &Handler{svc: svc, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// HandleUpload handles POST /image.
// Accepts a multipart form with an "image" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			return mapServiceError(c, service.ErrFileTooLarge)
		}
		return mapServiceError(c, service.ErrNoFile)
	}

	src, err := fileHeader.Open()
	if err != nil {
		slog.Error("failed to open uploaded file", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "upload failed"})
	}
	defer src.Close()

	img, err := h.svc.Upload(c.Request().Context(), service.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(echo.HeaderContentType),
		Size:        fileHeader.Size,
		Data:        src,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, UploadResponse{
		Message:  "image uploaded successfully",
		ImageURL: h.imageURL(c, img.Filename),
		Filename: img.Filename,
		Size:     img.Size,
	})
}

// HandleGetImage handles GET /images/:filename.
// Streams the stored bytes with a content type inferred from the extension.
func (h *Handler) HandleGetImage(c echo.Context) error {
	filename := c.Param("filename")

	obj, err := h.svc.Retrieve(c.Request().Context(), filename)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer obj.Body.Close()

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(c.Response(), c.Request(), obj.Name, obj.ModTime, rs)
		return nil
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	if obj.Size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, fmt.Sprint(obj.Size))
	}
	return c.Stream(http.StatusOK, contentType, obj.Body)
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including storage availability.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	storageStatus := "ok"

	if err := h.svc.Check(c.Request().Context()); err != nil {
		status = "degraded"
		storageStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  status,
		"storage": storageStatus,
	})
}

func (h *Handler) imageURL(c echo.Context, filename string) string {
	base := h.baseURL
	if base == "" {
		base = c.Scheme() + "://" + c.Request().Host
	}
	return base + "/images/" + filename
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNoFile):
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "no file selected"})
	case errors.Is(err, service.ErrUnsupportedType):
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "only image files are allowed"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"message": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrInvalidFilename):
		// Reported as a miss so probing reveals nothing about the layout.
		slog.Warn("rejected image filename", "filename", c.Param("filename"), "ip", c.RealIP())
		return c.JSON(http.StatusNotFound, echo.Map{"message": "image not found"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"message": "image not found"})
	default:
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		if c.Request().Method == http.MethodPost {
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "upload failed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal server error"})
	}
}

// isBodyTooLarge reports whether reading the request body tripped the
// body limit middleware.
func isBodyTooLarge(err error) bool {
	if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	var httpErr *echo.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge
}
