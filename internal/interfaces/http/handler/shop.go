package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
)

// ShopHandler manages shops outside the account-scoped routes.
type ShopHandler struct {
	BaseHandler
	shops  channel.ShopRepository
	logger *zap.Logger
}

// NewShopHandler creates a new ShopHandler
func NewShopHandler(shops channel.ShopRepository, logger *zap.Logger) *ShopHandler {
	return &ShopHandler{shops: shops, logger: logger}
}

// UpdateShopRequest represents a partial shop update
type UpdateShopRequest struct {
	Name        *string `json:"name"`
	Timezone    *string `json:"timezone"`
	WarehouseID *string `json:"warehouse_id" binding:"omitempty,uuid"`
	SalesTeamID *string `json:"sales_team_id" binding:"omitempty,uuid"`
}

// GetByID returns one shop.
func (h *ShopHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid shop ID format")
		return
	}

	shop, err := h.shops.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toShopResponse(shop))
}

// Update applies a partial shop update.
func (h *ShopHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid shop ID format")
		return
	}

	var req UpdateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	shop, err := h.shops.FindByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if req.Name != nil {
		shop.Name = *req.Name
	}
	if req.Timezone != nil {
		shop.Timezone = *req.Timezone
	}
	warehouseID, err := parseOptionalUUID(req.WarehouseID)
	if err != nil {
		h.BadRequest(c, "Invalid warehouse ID format")
		return
	}
	if warehouseID != nil {
		shop.WarehouseID = warehouseID
	}
	salesTeamID, err := parseOptionalUUID(req.SalesTeamID)
	if err != nil {
		h.BadRequest(c, "Invalid sales team ID format")
		return
	}
	if salesTeamID != nil {
		shop.SalesTeamID = salesTeamID
	}
	shop.UpdatedAt = time.Now()

	if err := h.shops.Save(ctx, shop); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toShopResponse(shop))
}

// Delete removes a shop.
func (h *ShopHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid shop ID format")
		return
	}

	if err := h.shops.Delete(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers shop routes.
func (h *ShopHandler) RegisterRoutes(rg *gin.RouterGroup) {
	shops := rg.Group("/shops")
	{
		shops.GET("/:id", h.GetByID)
		shops.PUT("/:id", h.Update)
		shops.DELETE("/:id", h.Delete)
	}
}
