package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retailcore/backend/internal/application/ledgerquery"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/interfaces/http/dto"
)

// StockHandler answers the derived-stock read queries. Everything it returns
// is computed from the movement ledger.
type StockHandler struct {
	BaseHandler
	queries *ledgerquery.Service
}

// NewStockHandler creates a stock query handler
func NewStockHandler(queries *ledgerquery.Service) *StockHandler {
	return &StockHandler{queries: queries}
}

// parseStockKey extracts the tenant, product, and optional batch from the
// request. batch_id is a query parameter.
func (h *StockHandler) parseStockKey(c *gin.Context) (tenantID, productID uuid.UUID, batchID *uuid.UUID, ok bool) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant not resolved")
		return uuid.Nil, uuid.Nil, nil, false
	}
	productID, err = uuid.Parse(c.Param("productID"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return uuid.Nil, uuid.Nil, nil, false
	}
	if raw := c.Query("batch_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid batch ID")
			return uuid.Nil, uuid.Nil, nil, false
		}
		batchID = &id
	}
	return tenantID, productID, batchID, true
}

// StockOnHand handles GET /stock/:productID
func (h *StockHandler) StockOnHand(c *gin.Context) {
	tenantID, productID, batchID, ok := h.parseStockKey(c)
	if !ok {
		return
	}
	soh, err := h.queries.StockOnHand(c.Request.Context(), tenantID, productID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, soh)
}

// Valuation handles GET /stock/:productID/valuation. An as_of query parameter
// in RFC 3339 format values the position at that instant; absent means now.
func (h *StockHandler) Valuation(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant not resolved")
		return
	}
	productID, err := uuid.Parse(c.Param("productID"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}
	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "as_of must be an RFC 3339 timestamp")
			return
		}
	}

	valuation, err := h.queries.Valuation(c.Request.Context(), tenantID, productID, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, valuation)
}

// Movements handles GET /stock/:productID/movements with standard pagination
func (h *StockHandler) Movements(c *gin.Context) {
	tenantID, productID, batchID, ok := h.parseStockKey(c)
	if !ok {
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}

	history, err := h.queries.MovementHistory(c.Request.Context(), tenantID, productID, batchID, shared.Filter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, history)
}

// VerifyProjection handles GET /stock/:productID/projection
func (h *StockHandler) VerifyProjection(c *gin.Context) {
	tenantID, productID, batchID, ok := h.parseStockKey(c)
	if !ok {
		return
	}
	report, err := h.queries.VerifyProjection(c.Request.Context(), tenantID, productID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// RebuildProjection handles POST /stock/:productID/projection/rebuild
func (h *StockHandler) RebuildProjection(c *gin.Context) {
	tenantID, productID, batchID, ok := h.parseStockKey(c)
	if !ok {
		return
	}
	soh, err := h.queries.RebuildProjection(c.Request.Context(), tenantID, productID, batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, soh)
}
