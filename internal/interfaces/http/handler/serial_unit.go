package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retailcore/backend/internal/application/orchestrator"
	"github.com/retailcore/backend/internal/domain/lifecycle"
	"github.com/retailcore/backend/internal/interfaces/http/dto"
)

// SerialUnitHandler exposes serial unit lookup and destruction
type SerialUnitHandler struct {
	BaseHandler
	orchestrator *orchestrator.Service
	units        lifecycle.SerialUnitRepository
}

// NewSerialUnitHandler creates a serial unit handler
func NewSerialUnitHandler(orch *orchestrator.Service, units lifecycle.SerialUnitRepository) *SerialUnitHandler {
	return &SerialUnitHandler{orchestrator: orch, units: units}
}

// Get handles GET /serial-units/:id
func (h *SerialUnitHandler) Get(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant not resolved")
		return
	}
	unitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid serial unit ID")
		return
	}

	unit, err := h.units.FindByIDForTenant(c.Request.Context(), tenantID, unitID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, unit)
}

// destroyBody is the request body for POST /serial-units/:id/destroy
type destroyBody struct {
	Reason string `json:"reason" binding:"required"`
}

// Destroy handles POST /serial-units/:id/destroy. Units still in stock get a
// negative adjustment posted alongside the status change.
func (h *SerialUnitHandler) Destroy(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant not resolved")
		return
	}
	operatorID, err := getOperatorID(c)
	if err != nil {
		h.BadRequest(c, "X-Operator-ID header is required")
		return
	}
	unitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid serial unit ID")
		return
	}

	var body destroyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.orchestrator.DestroySerialUnit(c.Request.Context(), orchestrator.DestroySerialRequest{
		TenantID:     tenantID,
		SerialUnitID: unitID,
		OperatorID:   operatorID,
		Reason:       body.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !result.Success {
		h.UnprocessableEntity(c, dto.ErrCodeValidation, joinReasons(result.Reasons))
		return
	}
	h.Success(c, result)
}
