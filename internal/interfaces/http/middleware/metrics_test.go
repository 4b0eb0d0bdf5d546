package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newMetricsRouter(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(HTTPMetricsWithMeter(mp.Meter("test"), true))
	return router, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetricsWithMeter(t *testing.T) {
	t.Run("counts requests by method, route pattern, and status", func(t *testing.T) {
		router, reader := newMetricsRouter(t)
		router.GET("/api/v1/stock/:productID", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"quantity": "4.0000"})
		})

		for _, id := range []string{"p-1", "p-2"} {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/stock/"+id, nil)
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
		}

		m := findMetric(t, reader, "http_server_request_total")
		require.NotNil(t, m)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)

		// Both requests collapse onto the route pattern, not the raw path.
		require.Len(t, sum.DataPoints, 1)
		dp := sum.DataPoints[0]
		assert.Equal(t, int64(2), dp.Value)
		route, _ := dp.Attributes.Value(attribute.Key("http.route"))
		assert.Equal(t, "/api/v1/stock/:productID", route.AsString())
		status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
		assert.Equal(t, int64(http.StatusOK), status.AsInt64())
	})

	t.Run("labels the request count with the tenant", func(t *testing.T) {
		router, reader := newMetricsRouter(t)
		tenantID := "0c9d1f3e-8a52-4f0f-9a41-6b7f3c2d1e00"
		router.POST("/api/v1/transactions/checkout", func(c *gin.Context) {
			c.Set(TenantIDKey, tenantID)
			c.JSON(http.StatusCreated, gin.H{"success": true})
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/transactions/checkout", strings.NewReader(`{"lines":[]}`))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)

		m := findMetric(t, reader, "http_server_request_total")
		require.NotNil(t, m)
		sum := m.Data.(metricdata.Sum[int64])
		require.Len(t, sum.DataPoints, 1)
		tenant, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("tenant_id"))
		require.True(t, ok)
		assert.Equal(t, tenantID, tenant.AsString())
	})

	t.Run("records latency and body sizes on method and route only", func(t *testing.T) {
		router, reader := newMetricsRouter(t)
		router.POST("/api/v1/transactions/refund", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "total_amount": "230.00"})
		})

		body := strings.NewReader(`{"original_header_id":"x","lines":[{"quantity":"2"}]}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/transactions/refund", body)
		router.ServeHTTP(w, req)

		for _, name := range []string{
			"http_server_request_duration_seconds",
			"http_server_request_size_bytes",
			"http_server_response_size_bytes",
		} {
			m := findMetric(t, reader, name)
			require.NotNil(t, m, name)
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, name)
			require.Len(t, hist.DataPoints, 1, name)
			dp := hist.DataPoints[0]
			assert.Equal(t, uint64(1), dp.Count, name)
			// No status or tenant labels on the histograms.
			_, hasStatus := dp.Attributes.Value(attribute.Key("http.status_code"))
			assert.False(t, hasStatus, name)
		}
	})

	t.Run("unmatched routes fall under a single pattern", func(t *testing.T) {
		router, reader := newMetricsRouter(t)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/no/such/route", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code)

		m := findMetric(t, reader, "http_server_request_total")
		require.NotNil(t, m)
		sum := m.Data.(metricdata.Sum[int64])
		require.Len(t, sum.DataPoints, 1)
		route, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("http.route"))
		assert.Equal(t, "unknown", route.AsString())
	})

	t.Run("disabled middleware records nothing", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

		router := gin.New()
		router.Use(HTTPMetricsWithMeter(mp.Meter("test"), false))
		router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		assert.Nil(t, findMetric(t, reader, "http_server_request_total"))
	})
}
