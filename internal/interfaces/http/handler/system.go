package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemHandler serves health and readiness probes
type SystemHandler struct {
	BaseHandler
	db        *gorm.DB
	version   string
	startTime time.Time
}

// NewSystemHandler creates a system handler
func NewSystemHandler(db *gorm.DB, version string) *SystemHandler {
	return &SystemHandler{
		db:        db,
		version:   version,
		startTime: time.Now(),
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Health handles GET /healthz. It reports liveness only and never touches
// downstream dependencies.
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, healthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Ready handles GET /readyz and fails when the database is unreachable
func (h *SystemHandler) Ready(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			h.InternalError(c, "Database handle unavailable")
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			h.InternalError(c, "Database unreachable")
			return
		}
	}
	h.Success(c, healthResponse{
		Status:  "ready",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	})
}
