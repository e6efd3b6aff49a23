package api

import (
	"context"
	"fmt"
	"net/http"

	"imgdrop/internal/server/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// multipartOverhead is the allowance for multipart boundaries and part
// headers on top of the file itself.
const multipartOverhead = 64 * 1024

// SetupRouter creates and configures the echo router with all routes and
// middleware. ctx bounds background work owned by the router.
func SetupRouter(ctx context.Context, handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	uploadLimiter := NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	bodyLimit := middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxFileSize+multipartOverhead))

	e.GET("/health", handler.HandleHealth)

	// Upload (rate-limited, body capped before the handler runs)
	e.POST("/image", handler.HandleUpload, uploadLimiter.Middleware(), bodyLimit)

	// Retrieval
	e.GET("/images/:filename", handler.HandleGetImage)

	return e
}
