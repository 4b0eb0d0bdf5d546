package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/retailcore/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestProfilingMiddleware(t *testing.T) {
	t.Run("wraps the handler and passes the request through", func(t *testing.T) {
		r := gin.New()
		handlerCalled := false
		r.Use(middleware.ProfilingWithConfig(middleware.DefaultProfilingConfig()))
		r.GET("/api/v1/stock/:productID", func(c *gin.Context) {
			handlerCalled = true
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/abc", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, handlerCalled)
	})

	t.Run("disabled config is a pass-through", func(t *testing.T) {
		r := gin.New()
		handlerCalled := false
		r.Use(middleware.ProfilingWithConfig(middleware.ProfilingConfig{Enabled: false}))
		r.POST("/api/v1/transactions/checkout", func(c *gin.Context) {
			handlerCalled = true
			c.Status(http.StatusCreated)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/transactions/checkout", nil))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, handlerCalled)
	})

	t.Run("skips probe endpoints", func(t *testing.T) {
		r := gin.New()
		handlerCalled := false
		r.Use(middleware.ProfilingWithConfig(middleware.DefaultProfilingConfig()))
		r.GET("/healthz", func(c *gin.Context) {
			handlerCalled = true
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, handlerCalled)
	})

	t.Run("default config skips the usual probe and docs paths", func(t *testing.T) {
		cfg := middleware.DefaultProfilingConfig()
		assert.True(t, cfg.Enabled)
		assert.Contains(t, cfg.SkipPaths, "/healthz")
		assert.Contains(t, cfg.SkipPaths, "/readyz")
		assert.Contains(t, cfg.SkipPaths, "/metrics")
		assert.Contains(t, cfg.SkipPathPrefixes, "/swagger")
	})
}
