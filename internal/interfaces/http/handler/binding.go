package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/interfaces/http/dto"
)

// BindingHandler manages product bindings and sync rules.
type BindingHandler struct {
	BaseHandler
	bindings binding.Repository
	rules    binding.RuleRepository
	shops    channel.ShopRepository
	logger   *zap.Logger
}

// NewBindingHandler creates a new BindingHandler
func NewBindingHandler(
	bindings binding.Repository,
	rules binding.RuleRepository,
	shops channel.ShopRepository,
	logger *zap.Logger,
) *BindingHandler {
	return &BindingHandler{
		bindings: bindings,
		rules:    rules,
		shops:    shops,
		logger:   logger,
	}
}

// CreateBindingRequest represents a request to bind an external SKU
type CreateBindingRequest struct {
	ShopID            string  `json:"shop_id" binding:"required,uuid"`
	ExternalSKU       string  `json:"external_sku" binding:"required"`
	ProductID         *string `json:"product_id" binding:"omitempty,uuid"`
	ExternalProductID string  `json:"external_product_id"`
	ExcludePush       bool    `json:"exclude_push"`
	BufferOverride    *int    `json:"buffer_override" binding:"omitempty,min=0"`
	MinOverride       *int    `json:"min_override" binding:"omitempty,min=0"`
}

// UpdateBindingRequest represents a partial binding update
type UpdateBindingRequest struct {
	ProductID         *string `json:"product_id" binding:"omitempty,uuid"`
	ExternalProductID *string `json:"external_product_id"`
	Active            *bool   `json:"active"`
	ExcludePush       *bool   `json:"exclude_push"`
	BufferOverride    *int    `json:"buffer_override" binding:"omitempty,min=0"`
	MinOverride       *int    `json:"min_override" binding:"omitempty,min=0"`
}

// BindingResponse represents a product binding in API responses
type BindingResponse struct {
	ID                string     `json:"id"`
	ShopID            string     `json:"shop_id"`
	ProductID         *string    `json:"product_id,omitempty"`
	ExternalSKU       string     `json:"external_sku"`
	ExternalProductID string     `json:"external_product_id,omitempty"`
	Active            bool       `json:"active"`
	ExcludePush       bool       `json:"exclude_push"`
	BufferOverride    *int       `json:"buffer_override,omitempty"`
	MinOverride       *int       `json:"min_override,omitempty"`
	LastStockPushAt   *time.Time `json:"last_stock_push_at,omitempty"`
	CurrentOnlineQty  *int       `json:"current_online_qty,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toBindingResponse(b *binding.ProductBinding) BindingResponse {
	resp := BindingResponse{
		ID:                b.ID.String(),
		ShopID:            b.ShopID.String(),
		ExternalSKU:       b.ExternalSKU,
		ExternalProductID: b.ExternalProductID,
		Active:            b.Active,
		ExcludePush:       b.ExcludePush,
		BufferOverride:    b.BufferOverride,
		MinOverride:       b.MinOverride,
		LastStockPushAt:   b.LastStockPushAt,
		CurrentOnlineQty:  b.CurrentOnlineQty,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
	if b.ProductID != nil {
		p := b.ProductID.String()
		resp.ProductID = &p
	}
	return resp
}

// Create binds an external SKU to an internal product.
func (h *BindingHandler) Create(c *gin.Context) {
	var req CreateBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	shopID, err := uuid.Parse(req.ShopID)
	if err != nil {
		h.BadRequest(c, "Invalid shop ID format")
		return
	}
	productID, err := parseOptionalUUID(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.shops.FindByID(ctx, shopID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	existing, err := h.bindings.FindBySKUs(ctx, shopID, []string{req.ExternalSKU})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if _, ok := existing[req.ExternalSKU]; ok {
		h.Conflict(c, binding.ErrBindingDuplicate.Error())
		return
	}

	b, err := binding.NewProductBinding(shopID, req.ExternalSKU, productID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	b.ExternalProductID = req.ExternalProductID
	b.ExcludePush = req.ExcludePush
	b.BufferOverride = req.BufferOverride
	b.MinOverride = req.MinOverride

	if err := h.bindings.Save(ctx, b); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, toBindingResponse(b))
}

// ListByShop lists pushable bindings for a shop.
func (h *BindingHandler) ListByShop(c *gin.Context) {
	shopID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid shop ID format")
		return
	}

	bindings, err := h.bindings.ListPushable(c.Request.Context(), shopID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := make([]BindingResponse, 0, len(bindings))
	for _, b := range bindings {
		resp = append(resp, toBindingResponse(b))
	}
	h.Success(c, resp)
}

// GetByID returns one binding.
func (h *BindingHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid binding ID format")
		return
	}

	b, err := h.bindings.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toBindingResponse(b))
}

// Update applies a partial binding update.
func (h *BindingHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid binding ID format")
		return
	}

	var req UpdateBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	b, err := h.bindings.FindByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	productID, err := parseOptionalUUID(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}
	if productID != nil {
		b.ProductID = productID
	}
	if req.ExternalProductID != nil {
		b.ExternalProductID = *req.ExternalProductID
	}
	if req.Active != nil {
		b.Active = *req.Active
	}
	if req.ExcludePush != nil {
		b.ExcludePush = *req.ExcludePush
	}
	if req.BufferOverride != nil {
		b.BufferOverride = req.BufferOverride
	}
	if req.MinOverride != nil {
		b.MinOverride = req.MinOverride
	}
	b.UpdatedAt = time.Now()

	if err := h.bindings.Save(ctx, b); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toBindingResponse(b))
}

// Delete removes a binding.
func (h *BindingHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid binding ID format")
		return
	}

	if err := h.bindings.Delete(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.NoContent(c)
}

// SyncRuleRequest represents a request to create or replace a sync rule
type SyncRuleRequest struct {
	Name      string  `json:"name" binding:"required"`
	Scope     string  `json:"scope" binding:"required,oneof=global account shop product"`
	AccountID *string `json:"account_id" binding:"omitempty,uuid"`
	ShopID    *string `json:"shop_id" binding:"omitempty,uuid"`
	ProductID *string `json:"product_id" binding:"omitempty,uuid"`

	Priority     int  `json:"priority"`
	BufferQty    int  `json:"buffer_qty" binding:"min=0"`
	MinQty       int  `json:"min_qty" binding:"min=0"`
	RoundingStep int  `json:"rounding_step" binding:"min=0"`
	ExcludePush  bool `json:"exclude_push"`

	Categories        []string `json:"categories"`
	Tags              []string `json:"tags"`
	MinStockCondition *int     `json:"min_stock_condition" binding:"omitempty,min=0"`

	Active *bool `json:"active"`
}

// SyncRuleResponse represents a sync rule in API responses
type SyncRuleResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Scope     string  `json:"scope"`
	AccountID *string `json:"account_id,omitempty"`
	ShopID    *string `json:"shop_id,omitempty"`
	ProductID *string `json:"product_id,omitempty"`

	Priority     int  `json:"priority"`
	BufferQty    int  `json:"buffer_qty"`
	MinQty       int  `json:"min_qty"`
	RoundingStep int  `json:"rounding_step"`
	ExcludePush  bool `json:"exclude_push"`

	Categories        []string `json:"categories,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	MinStockCondition *int     `json:"min_stock_condition,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSyncRuleResponse(r *binding.SyncRule) SyncRuleResponse {
	resp := SyncRuleResponse{
		ID:                r.ID.String(),
		Name:              r.Name,
		Scope:             string(r.Scope),
		Priority:          r.Priority,
		BufferQty:         r.BufferQty,
		MinQty:            r.MinQty,
		RoundingStep:      r.RoundingStep,
		ExcludePush:       r.ExcludePush,
		Categories:        r.Categories,
		Tags:              r.Tags,
		MinStockCondition: r.MinStockCondition,
		Active:            r.Active,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.AccountID != nil {
		s := r.AccountID.String()
		resp.AccountID = &s
	}
	if r.ShopID != nil {
		s := r.ShopID.String()
		resp.ShopID = &s
	}
	if r.ProductID != nil {
		s := r.ProductID.String()
		resp.ProductID = &s
	}
	return resp
}

func (h *BindingHandler) ruleFromRequest(c *gin.Context, req SyncRuleRequest) (*binding.SyncRule, bool) {
	scope := binding.RuleScope(req.Scope)
	if !scope.IsValid() {
		h.BadRequest(c, "Unknown rule scope")
		return nil, false
	}

	accountID, err := parseOptionalUUID(req.AccountID)
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return nil, false
	}
	shopID, err := parseOptionalUUID(req.ShopID)
	if err != nil {
		h.BadRequest(c, "Invalid shop ID format")
		return nil, false
	}
	productID, err := parseOptionalUUID(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return nil, false
	}

	// Scoped rules need their anchor.
	switch scope {
	case binding.ScopeAccount:
		if accountID == nil {
			h.Error(c, 400, dto.ErrCodeValidationRequired, "account_id is required for account-scoped rules")
			return nil, false
		}
	case binding.ScopeShop:
		if shopID == nil {
			h.Error(c, 400, dto.ErrCodeValidationRequired, "shop_id is required for shop-scoped rules")
			return nil, false
		}
	case binding.ScopeProduct:
		if productID == nil {
			h.Error(c, 400, dto.ErrCodeValidationRequired, "product_id is required for product-scoped rules")
			return nil, false
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := time.Now()
	return &binding.SyncRule{
		ID:                uuid.New(),
		Name:              req.Name,
		Scope:             scope,
		AccountID:         accountID,
		ShopID:            shopID,
		ProductID:         productID,
		Priority:          req.Priority,
		BufferQty:         req.BufferQty,
		MinQty:            req.MinQty,
		RoundingStep:      req.RoundingStep,
		ExcludePush:       req.ExcludePush,
		Categories:        req.Categories,
		Tags:              req.Tags,
		MinStockCondition: req.MinStockCondition,
		Active:            active,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, true
}

// CreateRule creates a sync rule.
func (h *BindingHandler) CreateRule(c *gin.Context) {
	var req SyncRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	rule, ok := h.ruleFromRequest(c, req)
	if !ok {
		return
	}

	if err := h.rules.Save(c.Request.Context(), rule); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, toSyncRuleResponse(rule))
}

// ListRules lists active rules ordered by priority.
func (h *BindingHandler) ListRules(c *gin.Context) {
	rules, err := h.rules.ListActive(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := make([]SyncRuleResponse, 0, len(rules))
	for _, r := range rules {
		resp = append(resp, toSyncRuleResponse(r))
	}
	h.Success(c, resp)
}

// UpdateRule replaces a sync rule in place, keeping its ID and creation
// time.
func (h *BindingHandler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID format")
		return
	}

	var req SyncRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	existing, err := h.rules.FindByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	rule, ok := h.ruleFromRequest(c, req)
	if !ok {
		return
	}
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt

	if err := h.rules.Save(ctx, rule); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toSyncRuleResponse(rule))
}

// DeleteRule removes a sync rule.
func (h *BindingHandler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID format")
		return
	}

	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers binding and sync rule routes.
func (h *BindingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	bindings := rg.Group("/bindings")
	{
		bindings.POST("", h.Create)
		bindings.GET("/:id", h.GetByID)
		bindings.PUT("/:id", h.Update)
		bindings.DELETE("/:id", h.Delete)
	}
	rg.GET("/shops/:id/bindings", h.ListByShop)

	rules := rg.Group("/sync-rules")
	{
		rules.POST("", h.CreateRule)
		rules.GET("", h.ListRules)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
	}
}
