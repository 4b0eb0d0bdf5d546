package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/retailcore/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Context keys and header for tenant identification.
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantMiddlewareConfig holds configuration for tenant resolution.
type TenantMiddlewareConfig struct {
	// SkipPaths bypass tenant resolution entirely (probes, metrics).
	SkipPaths []string
	// Required rejects requests that carry no tenant.
	Required bool
	Logger   *zap.Logger
}

// DefaultTenantConfig returns the default tenant middleware configuration.
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		SkipPaths: []string{"/health", "/healthz", "/ready", "/readyz", "/metrics"},
		Required:  true,
	}
}

// TenantMiddleware resolves the tenant from the X-Tenant-ID header and makes
// it available to handlers and to the request-scoped logger. Every ledger row
// is tenant-keyed, so a request without a tenant cannot touch domain routes.
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration.
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		tenantID := c.GetHeader(TenantHeaderKey)
		if tenantID != "" {
			if _, err := uuid.Parse(tenantID); err != nil {
				respondUnauthorized(c, "Invalid tenant ID format")
				return
			}
		}
		if tenantID == "" && cfg.Required {
			respondUnauthorized(c, "Tenant identification required")
			return
		}

		if tenantID != "" {
			c.Set(TenantIDKey, tenantID)

			// Downstream services log through the request context; stamp
			// the tenant there so every log line carries it.
			ctx := c.Request.Context()
			log := logger.FromContext(ctx)
			ctx, _ = logger.WithTenantID(ctx, log, tenantID)
			c.Request = c.Request.WithContext(ctx)

			if cfg.Logger != nil {
				cfg.Logger.Debug("Tenant identified", zap.String("tenant_id", tenantID))
			}
		}

		c.Next()
	}
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// GetTenantID retrieves the tenant ID from gin.Context.
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get(TenantIDKey); exists {
		if tid, ok := tenantID.(string); ok {
			return tid
		}
	}
	return ""
}

// GetTenantUUID retrieves the tenant ID as a UUID. A request without a
// tenant yields uuid.Nil and no error; the caller decides whether that is
// acceptable for the route.
func GetTenantUUID(c *gin.Context) (uuid.UUID, error) {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(tenantID)
}
