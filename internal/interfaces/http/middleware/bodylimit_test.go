package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(maxBytes int64) *gin.Engine {
		router := gin.New()
		router.Use(BodyLimit(maxBytes))
		router.POST("/api/v1/transactions/checkout", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	t.Run("passes a checkout payload under the limit", func(t *testing.T) {
		router := newRouter(1024)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/checkout",
			strings.NewReader(`{"lines":[{"product_id":"p","quantity":"1"}]}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects an oversized declared body with 413", func(t *testing.T) {
		router := newRouter(100)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/checkout",
			strings.NewReader(strings.Repeat("x", 200)))
		req.ContentLength = 200
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "REQUEST_TOO_LARGE")
	})

	t.Run("caps chunked bodies without a declared length", func(t *testing.T) {
		router := gin.New()
		router.Use(BodyLimit(50))
		router.POST("/api/v1/transactions/checkout", func(c *gin.Context) {
			buf := make([]byte, 200)
			if _, err := c.Request.Body.Read(buf); err != nil {
				c.String(http.StatusBadRequest, "body too large")
				return
			}
			c.String(http.StatusOK, "ok")
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/checkout",
			strings.NewReader(strings.Repeat("x", 100)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
