package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
)

// AccountHandler manages channel accounts and the OAuth connect flow.
type AccountHandler struct {
	BaseHandler
	accounts channel.AccountRepository
	shops    channel.ShopRepository
	registry channel.Registry
	logger   *zap.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(
	accounts channel.AccountRepository,
	shops channel.ShopRepository,
	registry channel.Registry,
	logger *zap.Logger,
) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		shops:    shops,
		registry: registry,
		logger:   logger,
	}
}

// CreateAccountRequest represents a request to create a channel account
type CreateAccountRequest struct {
	Name      string  `json:"name" binding:"required,min=1,max=100"`
	Channel   string  `json:"channel" binding:"required,oneof=shopee lazada tiktok woocommerce zortout"`
	CompanyID *string `json:"company_id" binding:"omitempty,uuid"`

	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	SecondaryKey string `json:"secondary_key"`

	PullIntervalMin      *int `json:"pull_interval_min" binding:"omitempty,min=1"`
	PushIntervalMin      *int `json:"push_interval_min" binding:"omitempty,min=1"`
	StockSyncIntervalMin *int `json:"stock_sync_interval_min" binding:"omitempty,min=1"`
	PushBatchSize        *int `json:"push_batch_size" binding:"omitempty,min=0,max=200"`
	StockSyncBatchSize   *int `json:"stock_sync_batch_size" binding:"omitempty,min=0,max=1000"`
	MaxConcurrentJobs    *int `json:"max_concurrent_jobs" binding:"omitempty,min=1"`

	StockLocationID   *string `json:"stock_location_id" binding:"omitempty,uuid"`
	PushBuffer        *int    `json:"push_buffer" binding:"omitempty,min=0"`
	MinOnlineQty      *int    `json:"min_online_qty" binding:"omitempty,min=0"`
	AutoConfirmOrders *bool   `json:"auto_confirm_orders"`

	RetentionDays      *int `json:"retention_days" binding:"omitempty,min=1"`
	RetentionKeepCount *int `json:"retention_keep_count" binding:"omitempty,min=0"`
}

// UpdateAccountRequest represents a partial account update
type UpdateAccountRequest struct {
	Name   *string `json:"name" binding:"omitempty,min=1,max=100"`
	Active *bool   `json:"active"`

	ClientID     *string `json:"client_id"`
	ClientSecret *string `json:"client_secret"`
	SecondaryKey *string `json:"secondary_key"`

	PullIntervalMin      *int `json:"pull_interval_min" binding:"omitempty,min=1"`
	PushIntervalMin      *int `json:"push_interval_min" binding:"omitempty,min=1"`
	StockSyncIntervalMin *int `json:"stock_sync_interval_min" binding:"omitempty,min=1"`
	PushBatchSize        *int `json:"push_batch_size" binding:"omitempty,min=0,max=200"`
	StockSyncBatchSize   *int `json:"stock_sync_batch_size" binding:"omitempty,min=0,max=1000"`
	MaxConcurrentJobs    *int `json:"max_concurrent_jobs" binding:"omitempty,min=1"`

	StockLocationID   *string `json:"stock_location_id" binding:"omitempty,uuid"`
	PushBuffer        *int    `json:"push_buffer" binding:"omitempty,min=0"`
	MinOnlineQty      *int    `json:"min_online_qty" binding:"omitempty,min=0"`
	AutoConfirmOrders *bool   `json:"auto_confirm_orders"`

	RetentionDays      *int `json:"retention_days" binding:"omitempty,min=1"`
	RetentionKeepCount *int `json:"retention_keep_count" binding:"omitempty,min=0"`
}

// AccountResponse represents a channel account in API responses. Secrets
// and tokens never leave the service; only connection state does.
type AccountResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Channel     string  `json:"channel"`
	CompanyID   *string `json:"company_id,omitempty"`
	Active      bool    `json:"active"`
	Connected   bool    `json:"connected"`
	AuthRevoked bool    `json:"auth_revoked"`

	ClientID string `json:"client_id,omitempty"`

	PullIntervalMin      int `json:"pull_interval_min"`
	PushIntervalMin      int `json:"push_interval_min"`
	StockSyncIntervalMin int `json:"stock_sync_interval_min"`
	PushBatchSize        int `json:"push_batch_size"`
	StockSyncBatchSize   int `json:"stock_sync_batch_size"`
	MaxConcurrentJobs    int `json:"max_concurrent_jobs"`

	StockLocationID   *string `json:"stock_location_id,omitempty"`
	PushBuffer        int     `json:"push_buffer"`
	MinOnlineQty      int     `json:"min_online_qty"`
	AutoConfirmOrders bool    `json:"auto_confirm_orders"`

	RetentionDays      int `json:"retention_days"`
	RetentionKeepCount int `json:"retention_keep_count"`

	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toAccountResponse(a *channel.Account) AccountResponse {
	resp := AccountResponse{
		ID:                   a.ID.String(),
		Name:                 a.Name,
		Channel:              a.Channel.String(),
		Active:               a.Active,
		Connected:            a.HasTokens() || !a.Channel.UsesOAuth(),
		AuthRevoked:          a.AuthRevoked,
		ClientID:             a.ClientID,
		PullIntervalMin:      a.PullIntervalMin,
		PushIntervalMin:      a.PushIntervalMin,
		StockSyncIntervalMin: a.StockSyncIntervalMin,
		PushBatchSize:        a.PushBatchSize,
		StockSyncBatchSize:   a.StockSyncBatchSize,
		MaxConcurrentJobs:    a.MaxConcurrentJobs,
		PushBuffer:           a.PushBuffer,
		MinOnlineQty:         a.MinOnlineQty,
		AutoConfirmOrders:    a.AutoConfirmOrders,
		RetentionDays:        a.RetentionDays,
		RetentionKeepCount:   a.RetentionKeepCount,
		TokenExpiresAt:       a.TokenExpiresAt,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
	if a.CompanyID != nil {
		s := a.CompanyID.String()
		resp.CompanyID = &s
	}
	if a.StockLocationID != nil {
		s := a.StockLocationID.String()
		resp.StockLocationID = &s
	}
	return resp
}

// ShopResponse represents a shop in API responses
type ShopResponse struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"account_id"`
	ExternalShopID  string     `json:"external_shop_id"`
	Name            string     `json:"name"`
	Timezone        string     `json:"timezone,omitempty"`
	WarehouseID     *string    `json:"warehouse_id,omitempty"`
	LastOrderSyncAt *time.Time `json:"last_order_sync_at,omitempty"`
	LastStockSyncAt *time.Time `json:"last_stock_sync_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toShopResponse(s *channel.Shop) ShopResponse {
	resp := ShopResponse{
		ID:              s.ID.String(),
		AccountID:       s.AccountID.String(),
		ExternalShopID:  s.ExternalShopID,
		Name:            s.Name,
		Timezone:        s.Timezone,
		LastOrderSyncAt: s.LastOrderSyncAt,
		LastStockSyncAt: s.LastStockSyncAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.WarehouseID != nil {
		w := s.WarehouseID.String()
		resp.WarehouseID = &w
	}
	return resp
}

// Create registers a new channel account. API-key channels get their single
// shop provisioned immediately.
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var companyID *uuid.UUID
	if req.CompanyID != nil {
		id, err := uuid.Parse(*req.CompanyID)
		if err != nil {
			h.BadRequest(c, "Invalid company ID format")
			return
		}
		companyID = &id
	}

	account, err := channel.NewAccount(req.Name, channel.Code(req.Channel), companyID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	account.ClientID = strings.TrimSpace(req.ClientID)
	account.ClientSecret = strings.TrimSpace(req.ClientSecret)
	account.SecondaryKey = strings.TrimSpace(req.SecondaryKey)
	stockLocationID, err := parseOptionalUUID(req.StockLocationID)
	if err != nil {
		h.BadRequest(c, "Invalid stock location ID format")
		return
	}
	if err := applyAccountSettings(account, accountSettings{
		PullIntervalMin:      req.PullIntervalMin,
		PushIntervalMin:      req.PushIntervalMin,
		StockSyncIntervalMin: req.StockSyncIntervalMin,
		PushBatchSize:        req.PushBatchSize,
		StockSyncBatchSize:   req.StockSyncBatchSize,
		MaxConcurrentJobs:    req.MaxConcurrentJobs,
		StockLocationID:      stockLocationID,
		PushBuffer:           req.PushBuffer,
		MinOnlineQty:         req.MinOnlineQty,
		AutoConfirmOrders:    req.AutoConfirmOrders,
		RetentionDays:        req.RetentionDays,
		RetentionKeepCount:   req.RetentionKeepCount,
	}); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.accounts.Save(ctx, account); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if account.Channel.AutoProvisionsShop() {
		shop, err := channel.NewShop(account.ID, "default", account.Name)
		if err == nil {
			err = h.shops.Save(ctx, shop)
		}
		if err != nil {
			h.logger.Warn("auto-provisioning shop failed",
				zap.String("account_id", account.ID.String()),
				zap.Error(err))
		}
	}

	h.Created(c, toAccountResponse(account))
}

// List returns accounts, optionally filtered by channel.
func (h *AccountHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		accounts []*channel.Account
		err      error
	)
	if code := c.Query("channel"); code != "" {
		if !channel.Code(code).IsValid() {
			h.BadRequest(c, "Unknown channel")
			return
		}
		accounts, err = h.accounts.ListByChannel(ctx, channel.Code(code))
	} else {
		accounts, err = h.accounts.ListActive(ctx)
	}
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	h.Success(c, resp)
}

// GetByID returns one account.
func (h *AccountHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	account, err := h.accounts.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toAccountResponse(account))
}

// Update applies a partial account update.
func (h *AccountHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.FindByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if req.Name != nil {
		account.Name = *req.Name
	}
	if req.Active != nil {
		account.Active = *req.Active
	}
	if req.ClientID != nil {
		account.ClientID = strings.TrimSpace(*req.ClientID)
	}
	if req.ClientSecret != nil {
		account.ClientSecret = strings.TrimSpace(*req.ClientSecret)
	}
	if req.SecondaryKey != nil {
		account.SecondaryKey = strings.TrimSpace(*req.SecondaryKey)
	}
	stockLocationID, err := parseOptionalUUID(req.StockLocationID)
	if err != nil {
		h.BadRequest(c, "Invalid stock location ID format")
		return
	}
	if err := applyAccountSettings(account, accountSettings{
		PullIntervalMin:      req.PullIntervalMin,
		PushIntervalMin:      req.PushIntervalMin,
		StockSyncIntervalMin: req.StockSyncIntervalMin,
		PushBatchSize:        req.PushBatchSize,
		StockSyncBatchSize:   req.StockSyncBatchSize,
		MaxConcurrentJobs:    req.MaxConcurrentJobs,
		StockLocationID:      stockLocationID,
		PushBuffer:           req.PushBuffer,
		MinOnlineQty:         req.MinOnlineQty,
		AutoConfirmOrders:    req.AutoConfirmOrders,
		RetentionDays:        req.RetentionDays,
		RetentionKeepCount:   req.RetentionKeepCount,
	}); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	account.UpdatedAt = time.Now()

	if err := h.accounts.Save(ctx, account); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toAccountResponse(account))
}

// Delete removes an account.
func (h *AccountHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	if err := h.accounts.Delete(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.NoContent(c)
}

// Authorize returns the channel's OAuth consent URL for the account.
func (h *AccountHandler) Authorize(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.FindByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	adapter, err := h.registry.AdapterFor(ctx, account)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	// The account ID doubles as the OAuth state; the callback route
	// carries it in the path as well, so state is a consistency check.
	url, err := adapter.AuthorizeURL(account.ID.String())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, gin.H{"authorize_url": url})
}

// Callback completes the OAuth consent flow: it exchanges the code for
// tokens and persists them. Shopee requires the shop_id query parameter.
func (h *AccountHandler) Callback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	code := c.Query("code")
	if code == "" {
		h.BadRequest(c, "Missing authorization code")
		return
	}
	externalShopID := c.Query("shop_id")

	ctx := c.Request.Context()
	account, err := h.accounts.FindByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	adapter, err := h.registry.AdapterFor(ctx, account)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	tokens, err := adapter.ExchangeCode(ctx, code, externalShopID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	account.ApplyTokens(tokens, time.Now())
	if err := h.accounts.SaveTokens(ctx, account); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	// Shopee consent names the shop; register it if it is new.
	if externalShopID != "" {
		if _, err := h.shops.FindByExternalID(ctx, account.ID, externalShopID); err != nil {
			shop, shopErr := channel.NewShop(account.ID, externalShopID, account.Name)
			if shopErr == nil {
				shopErr = h.shops.Save(ctx, shop)
			}
			if shopErr != nil {
				h.logger.Warn("registering shop from callback failed",
					zap.String("account_id", account.ID.String()),
					zap.String("external_shop_id", externalShopID),
					zap.Error(shopErr))
			}
		}
	}

	h.logger.Info("channel account connected",
		zap.String("account_id", account.ID.String()),
		zap.String("channel", account.Channel.String()))

	h.Success(c, toAccountResponse(account))
}

// ListShops returns the shops under an account.
func (h *AccountHandler) ListShops(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	shops, err := h.shops.ListByAccount(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := make([]ShopResponse, 0, len(shops))
	for _, s := range shops {
		resp = append(resp, toShopResponse(s))
	}
	h.Success(c, resp)
}

// CreateShopRequest represents a request to register a shop
type CreateShopRequest struct {
	ExternalShopID string  `json:"external_shop_id" binding:"required"`
	Name           string  `json:"name"`
	Timezone       string  `json:"timezone"`
	WarehouseID    *string `json:"warehouse_id" binding:"omitempty,uuid"`
}

// CreateShop registers a shop under an account.
func (h *AccountHandler) CreateShop(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	var req CreateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.FindByID(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if _, err := h.shops.FindByExternalID(ctx, account.ID, req.ExternalShopID); err == nil {
		h.Conflict(c, channel.ErrShopDuplicate.Error())
		return
	}

	shop, err := channel.NewShop(account.ID, req.ExternalShopID, req.Name)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	shop.Timezone = req.Timezone
	if req.WarehouseID != nil {
		wid, err := uuid.Parse(*req.WarehouseID)
		if err != nil {
			h.BadRequest(c, "Invalid warehouse ID format")
			return
		}
		shop.WarehouseID = &wid
	}

	if err := h.shops.Save(ctx, shop); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, toShopResponse(shop))
}

// RegisterRoutes registers account routes.
func (h *AccountHandler) RegisterRoutes(rg *gin.RouterGroup) {
	accounts := rg.Group("/accounts")
	{
		accounts.POST("", h.Create)
		accounts.GET("", h.List)
		accounts.GET("/:id", h.GetByID)
		accounts.PUT("/:id", h.Update)
		accounts.DELETE("/:id", h.Delete)
		accounts.GET("/:id/authorize", h.Authorize)
		accounts.GET("/:id/callback", h.Callback)
		accounts.GET("/:id/shops", h.ListShops)
		accounts.POST("/:id/shops", h.CreateShop)
	}
}

// accountSettings carries the optional numeric settings shared by the
// create and update requests.
type accountSettings struct {
	PullIntervalMin      *int
	PushIntervalMin      *int
	StockSyncIntervalMin *int
	PushBatchSize        *int
	StockSyncBatchSize   *int
	MaxConcurrentJobs    *int
	StockLocationID      *uuid.UUID
	PushBuffer           *int
	MinOnlineQty         *int
	AutoConfirmOrders    *bool
	RetentionDays        *int
	RetentionKeepCount   *int
}

func applyAccountSettings(a *channel.Account, s accountSettings) error {
	if s.PullIntervalMin != nil {
		a.PullIntervalMin = *s.PullIntervalMin
	}
	if s.PushIntervalMin != nil {
		a.PushIntervalMin = *s.PushIntervalMin
	}
	if s.StockSyncIntervalMin != nil {
		a.StockSyncIntervalMin = *s.StockSyncIntervalMin
	}
	if s.PushBatchSize != nil {
		a.PushBatchSize = *s.PushBatchSize
	}
	if s.StockSyncBatchSize != nil {
		a.StockSyncBatchSize = *s.StockSyncBatchSize
	}
	if s.MaxConcurrentJobs != nil {
		a.MaxConcurrentJobs = *s.MaxConcurrentJobs
	}
	if s.StockLocationID != nil {
		a.StockLocationID = s.StockLocationID
	}
	if s.PushBuffer != nil {
		a.PushBuffer = *s.PushBuffer
	}
	if s.MinOnlineQty != nil {
		a.MinOnlineQty = *s.MinOnlineQty
	}
	if s.AutoConfirmOrders != nil {
		a.AutoConfirmOrders = *s.AutoConfirmOrders
	}
	if s.RetentionDays != nil {
		a.RetentionDays = *s.RetentionDays
	}
	if s.RetentionKeepCount != nil {
		a.RetentionKeepCount = *s.RetentionKeepCount
	}
	return a.Validate()
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
