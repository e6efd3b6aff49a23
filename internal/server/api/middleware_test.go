package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("allows burst then blocks", func(t *testing.T) {
		rl := NewRateLimiter(ctx, 1, 3)
		now := time.Now()

		for i := 0; i < 3; i++ {
			assert.True(t, rl.allow("10.0.0.1", now), "request %d should pass", i)
		}
		assert.False(t, rl.allow("10.0.0.1", now))
	})

	t.Run("refills over time", func(t *testing.T) {
		rl := NewRateLimiter(ctx, 1, 1)
		now := time.Now()

		require.True(t, rl.allow("10.0.0.1", now))
		require.False(t, rl.allow("10.0.0.1", now))
		assert.True(t, rl.allow("10.0.0.1", now.Add(1100*time.Millisecond)))
	})

	t.Run("tracks ips independently", func(t *testing.T) {
		rl := NewRateLimiter(ctx, 1, 1)
		now := time.Now()

		require.True(t, rl.allow("10.0.0.1", now))
		assert.True(t, rl.allow("10.0.0.2", now))
	})
}

func TestRateLimiter_Cleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, 1)
	now := time.Now()
	rl.allow("stale", now.Add(-time.Hour))
	rl.allow("fresh", now)

	rl.cleanup(now)

	assert.NotContains(t, rl.visitors, "stale")
	assert.Contains(t, rl.visitors, "fresh")
}

func TestRateLimiter_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := echo.New()
	rl := NewRateLimiter(ctx, 0.001, 1)
	e.POST("/image", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, rl.Middleware())

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/image", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}
