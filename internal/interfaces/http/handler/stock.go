package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/infrastructure/scheduler"
)

// StockHandler receives stock-movement notifications from the host system
// and fans them into targeted push jobs.
type StockHandler struct {
	BaseHandler
	trigger *scheduler.StockTrigger
	logger  *zap.Logger
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(trigger *scheduler.StockTrigger, logger *zap.Logger) *StockHandler {
	return &StockHandler{trigger: trigger, logger: logger}
}

// StockChangedRequest represents a stock movement notification
type StockChangedRequest struct {
	ProductIDs []string `json:"product_ids" binding:"required,min=1,dive,uuid"`
}

// StockChanged enqueues stock pushes for the shops carrying the changed
// products.
func (h *StockHandler) StockChanged(c *gin.Context) {
	var req StockChangedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ProductIDs))
	for _, raw := range req.ProductIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid product ID format")
			return
		}
		ids = append(ids, id)
	}

	if err := h.trigger.OnStockChanged(c.Request.Context(), ids); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.logger.Debug("stock change accepted", zap.Int("products", len(ids)))
	h.Success(c, gin.H{"accepted": len(ids)})
}

// RegisterRoutes registers stock notification routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/stock/changed", h.StockChanged)
}
