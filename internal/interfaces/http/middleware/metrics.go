// Package middleware provides HTTP middleware for the service.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// httpInstruments bundles the per-request instruments. The request counter
// carries status and tenant labels; the duration and size histograms stay on
// method+route only to keep cardinality down.
type httpInstruments struct {
	requests       *telemetry.Counter
	duration       *telemetry.Histogram
	requestBytes   *telemetry.Histogram
	responseBytes  *telemetry.Histogram
	activeRequests metric.Int64UpDownCounter
}

var bodySizeBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	requests, err := telemetry.NewCounter(
		meter,
		"http_server_request_total",
		"Total number of HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	duration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	requestBytes, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "HTTP request body size distribution in bytes",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	})
	if err != nil {
		return nil, err
	}

	responseBytes, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size distribution in bytes",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	})
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{
		requests:       requests,
		duration:       duration,
		requestBytes:   requestBytes,
		responseBytes:  responseBytes,
		activeRequests: activeRequests,
	}, nil
}

// HTTPMetricsWithMeter returns a Gin middleware recording request count,
// latency, body sizes, and in-flight requests on the given meter. When
// disabled, or when instrument creation fails, the middleware is a no-op.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	inst, err := newHTTPInstruments(meter)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		requestSize := c.Request.ContentLength

		inst.activeRequests.Add(ctx, 1)
		c.Next()
		inst.activeRequests.Add(ctx, -1)

		// The matched route pattern, not the raw path: raw paths carry
		// IDs and would blow up label cardinality.
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method

		countAttrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(method),
			telemetry.AttrHTTPRoute.String(route),
			telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()),
		}
		if tenantID := GetTenantID(c); tenantID != "" {
			countAttrs = append(countAttrs, telemetry.AttrTenantID.String(tenantID))
		}
		inst.requests.Inc(ctx, countAttrs...)

		baseAttrs := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(method),
			telemetry.AttrHTTPRoute.String(route),
		}
		inst.duration.RecordDuration(ctx, time.Since(start), baseAttrs...)
		if requestSize > 0 {
			inst.requestBytes.Record(ctx, float64(requestSize), baseAttrs...)
		}
		if size := c.Writer.Size(); size > 0 {
			inst.responseBytes.Record(ctx, float64(size), baseAttrs...)
		}
	}
}
