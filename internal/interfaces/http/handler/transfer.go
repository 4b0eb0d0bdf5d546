package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retailcore/backend/internal/application/orchestrator"
	"github.com/retailcore/backend/internal/interfaces/http/dto"
)

// TransferHandler exposes the two legs of a stock transfer
type TransferHandler struct {
	BaseHandler
	orchestrator *orchestrator.Service
}

// NewTransferHandler creates a transfer handler
func NewTransferHandler(orch *orchestrator.Service) *TransferHandler {
	return &TransferHandler{orchestrator: orch}
}

// shipBody is the request body for POST /transfers/ship
type shipBody struct {
	Lines     []orchestrator.TransferLine `json:"lines" binding:"required,min=1"`
	Reference string                      `json:"reference,omitempty"`
	Reason    string                      `json:"reason,omitempty"`
}

// Ship handles POST /transfers/ship
func (h *TransferHandler) Ship(c *gin.Context) {
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

	var body shipBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.orchestrator.TransferShip(c.Request.Context(), orchestrator.TransferShipRequest{
		TenantID:   tenantID,
		OperatorID: operatorID,
		Lines:      body.Lines,
		Reference:  body.Reference,
		Reason:     body.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondResult(c, result, true)
}

// receiveBody is the request body for POST /transfers/:id/receive
type receiveBody struct {
	Lines  []orchestrator.TransferReceiveLine `json:"lines" binding:"required,min=1"`
	Reason string                             `json:"reason,omitempty"`
}

// Receive handles POST /transfers/:id/receive. Received counts may differ
// from the shipped quantities; the shortfall is posted as variance.
func (h *TransferHandler) Receive(c *gin.Context) {
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
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transfer ID")
		return
	}

	var body receiveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.orchestrator.TransferReceive(c.Request.Context(), orchestrator.TransferReceiveRequest{
		TenantID:         tenantID,
		TransferHeaderID: transferID,
		OperatorID:       operatorID,
		Lines:            body.Lines,
		Reason:           body.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondResult(c, result, false)
}

// respondResult maps an orchestration result to an HTTP response, mirroring
// the transaction handler's mapping
func (h *TransferHandler) respondResult(c *gin.Context, result *orchestrator.Result, created bool) {
	if result == nil {
		h.InternalError(c, "Operation produced no result")
		return
	}
	if !result.Success {
		h.UnprocessableEntity(c, dto.ErrCodeValidation, joinReasons(result.Reasons))
		return
	}
	if created && !result.AlreadyProcessed {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}
