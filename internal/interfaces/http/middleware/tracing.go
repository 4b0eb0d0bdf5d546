// Package middleware provides HTTP middleware for the service.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps request IDs copied from headers into spans.
const MaxRequestIDLength = 128

// uuidRegex validates tenant IDs taken from headers before they reach trace
// attributes.
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// TracingWithConfig returns OpenTelemetry tracing middleware. Spans are
// created by otelgin and then enriched with the request ID and the tenant
// resolved by the tenant middleware (falling back to the X-Tenant-ID header
// for skipped paths). Error responses mark the span with codes.Error.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	base := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		enrichSpan(c, span)
		markSpanError(c, span)
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := spanRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if tenantID := spanTenantID(c); tenantID != "" {
		span.SetAttributes(attribute.String("tenant_id", tenantID))
	}
}

// markSpanError sets error status on 4xx and 5xx responses.
func markSpanError(c *gin.Context, span trace.Span) {
	statusCode := c.Writer.Status()
	if statusCode < http.StatusBadRequest {
		return
	}

	var message string
	switch {
	case statusCode >= http.StatusInternalServerError:
		message = "Internal Server Error"
	case statusCode == http.StatusUnauthorized:
		message = "Unauthorized"
	case statusCode == http.StatusForbidden:
		message = "Forbidden"
	case statusCode == http.StatusNotFound:
		message = "Not Found"
	default:
		message = "Client Error"
	}
	span.SetStatus(codes.Error, message)
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
}

// spanRequestID prefers the ID set by the RequestID middleware and falls back
// to the header, truncated so an oversized header cannot bloat the span.
func spanRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}
	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// spanTenantID prefers the tenant resolved by the tenant middleware. The raw
// header is only trusted when it parses as a UUID, so arbitrary header text
// never lands in trace attributes.
func spanTenantID(c *gin.Context) string {
	if tenantID := GetTenantID(c); tenantID != "" {
		return tenantID
	}
	headerTenantID := c.GetHeader(TenantHeaderKey)
	if headerTenantID != "" && uuidRegex.MatchString(headerTenantID) {
		return headerTenantID
	}
	return ""
}
