// Package middleware provides HTTP middleware for the service.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/retailcore/backend/internal/infrastructure/telemetry"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled bool
	// SkipPaths and SkipPathPrefixes exclude requests from labeling, mostly
	// probes and docs that would drown the interesting profiles.
	SkipPaths        []string
	SkipPathPrefixes []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:          true,
		SkipPaths:        []string{"/health", "/healthz", "/ready", "/readyz", "/metrics"},
		SkipPathPrefixes: []string{"/swagger", "/api-docs"},
	}
}

// Profiling returns profiling middleware with default configuration.
func Profiling() gin.HandlerFunc {
	return ProfilingWithConfig(DefaultProfilingConfig())
}

// ProfilingWithConfig returns middleware that wraps each handler in Pyroscope
// labels (method, route pattern, resource, tenant) so profiles can be sliced
// by endpoint and tenant. Route patterns keep the label set low-cardinality.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) map[string]string {
	labels := make(map[string]string, 4)

	if method := c.Request.Method; method != "" {
		labels[telemetry.ProfilingLabelMethod] = method
	}

	route := c.FullPath()
	if route != "" {
		labels[telemetry.ProfilingLabelRoute] = route
	}
	if resource := routeResource(route); resource != "" {
		labels[telemetry.ProfilingLabelController] = resource
	}
	if tenantID := GetTenantID(c); tenantID != "" {
		labels[telemetry.ProfilingLabelTenantID] = tenantID
	}

	return labels
}

// routeResource derives the resource segment from a route pattern, e.g.
// "/api/v1/transactions/:id/refund" yields "transactions".
func routeResource(route string) string {
	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || isVersionSegment(part) {
			continue
		}
		if strings.HasPrefix(part, ":") || strings.HasPrefix(part, "{") {
			continue
		}
		return part
	}
	return ""
}

// isVersionSegment reports whether a path segment is an API version (v1, v2).
func isVersionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
