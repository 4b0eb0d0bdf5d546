package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows requests within the limit", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)
		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Allow("till-1"), "request %d", i+1)
		}
		assert.False(t, limiter.Allow("till-1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)

		assert.True(t, limiter.Allow("till-a"))
		assert.True(t, limiter.Allow("till-a"))
		assert.False(t, limiter.Allow("till-a"))
		assert.True(t, limiter.Allow("till-b"))
	})

	t.Run("window reset refills the bucket", func(t *testing.T) {
		limiter := NewRateLimiter(1, 20*time.Millisecond)

		assert.True(t, limiter.Allow("till-1"))
		assert.False(t, limiter.Allow("till-1"))
		time.Sleep(30 * time.Millisecond)
		assert.True(t, limiter.Allow("till-1"))
	})

	t.Run("remaining reflects consumed tokens", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)

		assert.Equal(t, 3, limiter.Remaining("till-1"))
		limiter.Allow("till-1")
		assert.Equal(t, 2, limiter.Remaining("till-1"))
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		limiter := NewRateLimiter(50, time.Minute)

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(router *gin.Engine, tenantID string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/stock", nil)
		if tenantID != "" {
			req.Header.Set(TenantHeaderKey, tenantID)
		}
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("rejects with 429 once the limit is spent", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimit(NewRateLimiter(2, time.Minute)))
		router.GET("/api/v1/stock", func(c *gin.Context) { c.Status(http.StatusOK) })

		require.Equal(t, http.StatusOK, serve(router, "").Code)
		require.Equal(t, http.StatusOK, serve(router, "").Code)

		w := serve(router, "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("exposes limit headers", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimit(NewRateLimiter(10, time.Minute)))
		router.GET("/api/v1/stock", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := serve(router, "")
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("tenants behind one IP get separate buckets", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimit(NewRateLimiter(1, time.Minute)))
		router.GET("/api/v1/stock", func(c *gin.Context) { c.Status(http.StatusOK) })

		tenantA := "11111111-1111-1111-1111-111111111111"
		tenantB := "22222222-2222-2222-2222-222222222222"

		require.Equal(t, http.StatusOK, serve(router, tenantA).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(router, tenantA).Code)
		assert.Equal(t, http.StatusOK, serve(router, tenantB).Code)
	})

	t.Run("custom key extractor drives the bucket", func(t *testing.T) {
		router := gin.New()
		limiter := NewRateLimiter(1, time.Minute)
		router.Use(RateLimitByKey(limiter, func(c *gin.Context) string {
			return c.GetHeader("X-Operator-ID")
		}))
		router.POST("/api/v1/transactions/checkout", func(c *gin.Context) { c.Status(http.StatusCreated) })

		post := func(operator string) int {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/transactions/checkout", nil)
			req.Header.Set("X-Operator-ID", operator)
			router.ServeHTTP(w, req)
			return w.Code
		}

		require.Equal(t, http.StatusCreated, post("op-1"))
		assert.Equal(t, http.StatusTooManyRequests, post("op-1"))
		assert.Equal(t, http.StatusCreated, post("op-2"))
	})
}
