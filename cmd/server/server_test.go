package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pjw7536/react-timeline2/internal/config"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSource(t *testing.T) {
	t.Run("sql store doubles as counter", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Source.Driver = "sqlite"
		cfg.Source.DSN = ":memory:"

		f, counter, closer, err := openSource(context.Background(), cfg, time.UTC)
		require.NoError(t, err)
		defer closer.Close()
		assert.IsType(t, &source.SQLStore{}, f)
		require.NotNil(t, counter)

		n, err := counter.CountEquipment(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("upstream url selects http", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Source.UpstreamURL = "http://logs.example.com/api"
		cfg.Source.UpstreamToken = "Bearer abc"

		f, counter, closer, err := openSource(context.Background(), cfg, time.UTC)
		require.NoError(t, err)
		assert.Nil(t, counter)
		assert.Nil(t, closer)
		hf, ok := f.(*source.HTTPFetcher)
		require.True(t, ok)
		assert.Equal(t, "Bearer abc", hf.Header.Get("Authorization"))
	})
}

func TestLoadLegendFallsBack(t *testing.T) {
	assert.Equal(t, models.DefaultLegend(), loadLegend(""))
	assert.Equal(t, models.DefaultLegend(), loadLegend(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestNewEchoMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.AllowOrigins = []string{"http://fab.example.com"}
	cfg.Advanced.EnableRequestLogging = false

	e := newEcho(cfg)
	e.GET("/api/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/api/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	t.Run("cors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ok", nil)
		req.Header.Set(echo.HeaderOrigin, "http://fab.example.com")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://fab.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})

	t.Run("panics become 500", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/boom", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	})
}
