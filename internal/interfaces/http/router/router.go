// Package router wires the HTTP surface: the transaction write path, the
// transfer legs, the derived-stock read queries, and the serial unit
// lifecycle endpoints.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/retailcore/backend/internal/interfaces/http/handler"
)

// Handlers carries every handler the router mounts
type Handlers struct {
	System       *handler.SystemHandler
	Transactions *handler.TransactionHandler
	Transfers    *handler.TransferHandler
	Stock        *handler.StockHandler
	SerialUnits  *handler.SerialUnitHandler
}

// Router registers the API routes on a gin engine
type Router struct {
	engine     *gin.Engine
	apiVersion string
	handlers   Handlers
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, handlers Handlers, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		handlers:   handlers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Setup registers all routes with the engine. Health probes live outside the
// versioned group so load balancers reach them without tenant headers.
func (r *Router) Setup() {
	if r.handlers.System != nil {
		r.engine.GET("/healthz", r.handlers.System.Health)
		r.engine.GET("/readyz", r.handlers.System.Ready)
	}

	api := r.engine.Group("/api/" + r.apiVersion)

	if h := r.handlers.Transactions; h != nil {
		tx := api.Group("/transactions")
		tx.POST("/checkout", h.Checkout)
		tx.POST("/:id/cancel", h.Cancel)
		tx.POST("/:id/refund", h.Refund)
		tx.GET("/:id", h.Get)
	}

	if h := r.handlers.Transfers; h != nil {
		transfers := api.Group("/transfers")
		transfers.POST("/ship", h.Ship)
		transfers.POST("/:id/receive", h.Receive)
	}

	if h := r.handlers.Stock; h != nil {
		stock := api.Group("/stock")
		stock.GET("/:productID", h.StockOnHand)
		stock.GET("/:productID/valuation", h.Valuation)
		stock.GET("/:productID/movements", h.Movements)
		stock.GET("/:productID/projection", h.VerifyProjection)
		stock.POST("/:productID/projection/rebuild", h.RebuildProjection)
	}

	if h := r.handlers.SerialUnits; h != nil {
		serials := api.Group("/serial-units")
		serials.GET("/:id", h.Get)
		serials.POST("/:id/destroy", h.Destroy)
	}
}
