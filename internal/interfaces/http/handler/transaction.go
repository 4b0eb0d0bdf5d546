package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retailcore/backend/internal/application/ledgerquery"
	"github.com/retailcore/backend/internal/application/orchestrator"
	"github.com/retailcore/backend/internal/domain/transaction"
	"github.com/retailcore/backend/internal/interfaces/http/dto"
)

// TransactionHandler exposes the transaction write path (checkout, cancel,
// refund) and the header read path
type TransactionHandler struct {
	BaseHandler
	orchestrator *orchestrator.Service
	transactions transaction.Repository
	queries      *ledgerquery.Service
}

// NewTransactionHandler creates a transaction handler
func NewTransactionHandler(
	orch *orchestrator.Service,
	transactions transaction.Repository,
	queries *ledgerquery.Service,
) *TransactionHandler {
	return &TransactionHandler{
		orchestrator: orch,
		transactions: transactions,
		queries:      queries,
	}
}

// Checkout handles POST /transactions/checkout
func (h *TransactionHandler) Checkout(c *gin.Context) {
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

	var req orchestrator.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	req.TenantID = tenantID
	req.OperatorID = operatorID
	if req.RequestKey == "" {
		req.RequestKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.orchestrator.Checkout(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondResult(c, result, true)
}

// cancelBody is the request body for POST /transactions/:id/cancel
type cancelBody struct {
	Reason        string `json:"reason" binding:"required"`
	ApprovalToken string `json:"approval_token,omitempty"`
}

// Cancel handles POST /transactions/:id/cancel
func (h *TransactionHandler) Cancel(c *gin.Context) {
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
	headerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID")
		return
	}

	var body cancelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.orchestrator.Cancel(c.Request.Context(), orchestrator.CancelRequest{
		TenantID:      tenantID,
		HeaderID:      headerID,
		OperatorID:    operatorID,
		Reason:        body.Reason,
		ApprovalToken: body.ApprovalToken,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondResult(c, result, false)
}

// refundBody is the request body for POST /transactions/:id/refund
type refundBody struct {
	Lines         []orchestrator.RefundLine `json:"lines" binding:"required,min=1"`
	Tenders       []orchestrator.Tender     `json:"tenders" binding:"required,min=1"`
	Reason        string                    `json:"reason" binding:"required"`
	ApprovalToken string                    `json:"approval_token,omitempty"`
	RequestKey    string                    `json:"request_key,omitempty"`
}

// Refund handles POST /transactions/:id/refund
func (h *TransactionHandler) Refund(c *gin.Context) {
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
	originalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID")
		return
	}

	var body refundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BindError(c, err)
		return
	}
	requestKey := body.RequestKey
	if requestKey == "" {
		requestKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.orchestrator.Refund(c.Request.Context(), orchestrator.RefundRequest{
		TenantID:         tenantID,
		OriginalHeaderID: originalID,
		OperatorID:       operatorID,
		Lines:            body.Lines,
		Tenders:          body.Tenders,
		Reason:           body.Reason,
		ApprovalToken:    body.ApprovalToken,
		RequestKey:       requestKey,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondResult(c, result, true)
}

// transactionResponse is the read model for GET /transactions/:id
type transactionResponse struct {
	Header    *transaction.Header       `json:"header"`
	Movements []ledgerquery.MovementDTO `json:"movements"`
}

// Get handles GET /transactions/:id, returning the header with its lines and
// every ledger movement the transaction posted
func (h *TransactionHandler) Get(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant not resolved")
		return
	}
	headerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID")
		return
	}

	header, err := h.transactions.FindByIDForTenant(c.Request.Context(), tenantID, headerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	movements, err := h.queries.TransactionMovements(c.Request.Context(), headerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, transactionResponse{Header: header, Movements: movements})
}

// respondResult maps an orchestration result to an HTTP response. Business
// validation failures come back as 422 with the reasons; a replayed request
// key returns the recorded outcome with 200.
func (h *TransactionHandler) respondResult(c *gin.Context, result *orchestrator.Result, created bool) {
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
