package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/infrastructure/cache"
	"github.com/channelhub/backend/internal/interfaces/http/dto"
)

// Marketplaces retry deliveries aggressively; keys live long enough to
// cover their longest retry window.
const webhookIdempotencyTTL = 24 * time.Hour

// WebhookHandler is the marketplace push intake. It verifies the channel
// signature, deduplicates the delivery, and stores the raw body as a
// webhook job for asynchronous processing. Returning quickly here is what
// keeps marketplaces from disabling the endpoint.
type WebhookHandler struct {
	BaseHandler
	accounts    channel.AccountRepository
	shops       channel.ShopRepository
	registry    channel.Registry
	jobs        job.Store
	idempotency cache.IdempotencyStore
	logger      *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	accounts channel.AccountRepository,
	shops channel.ShopRepository,
	registry channel.Registry,
	jobs job.Store,
	idempotency cache.IdempotencyStore,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		accounts:    accounts,
		shops:       shops,
		registry:    registry,
		jobs:        jobs,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Receive accepts one marketplace delivery.
func (h *WebhookHandler) Receive(c *gin.Context) {
	code := channel.Code(c.Param("channel"))
	if !code.IsValid() {
		h.BadRequest(c, "Unknown channel")
		return
	}

	accountID, err := uuid.Parse(c.Param("accountID"))
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Unreadable request body")
		return
	}
	if len(body) == 0 {
		h.BadRequest(c, "Empty request body")
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.FindByID(ctx, accountID)
	if err != nil {
		// A 404 would tell probers which account IDs exist.
		h.logger.Warn("webhook for unknown account",
			zap.String("channel", code.String()),
			zap.String("account_id", accountID.String()))
		h.Unauthorized(c, dto.ErrCodeSignatureInvalid, "Signature verification failed")
		return
	}
	if account.Channel != code {
		h.Unauthorized(c, dto.ErrCodeSignatureInvalid, "Signature verification failed")
		return
	}

	adapter, err := h.registry.AdapterFor(ctx, account)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if !adapter.VerifyWebhook(c.Request.Header, body) {
		h.logger.Warn("webhook signature rejected",
			zap.String("channel", code.String()),
			zap.String("account_id", account.ID.String()))
		h.Unauthorized(c, dto.ErrCodeSignatureInvalid, "Signature verification failed")
		return
	}

	deliveryID := c.GetHeader("X-Delivery-ID")
	if deliveryID == "" {
		sum := sha256.Sum256(body)
		deliveryID = hex.EncodeToString(sum[:])
	}

	fresh, err := h.idempotency.MarkProcessed(ctx, deliveryID, webhookIdempotencyTTL)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if !fresh {
		h.Success(c, gin.H{"duplicate": true})
		return
	}

	shop, err := h.resolveShop(c, account, body)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if shop == nil {
		h.Error(c, 400, dto.ErrCodeValidationRequired,
			"Delivery does not identify a shop")
		return
	}

	j, err := job.New(job.TypeWebhook, account.ID, &shop.ID, job.Payload{
		WebhookBody: string(body),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if err := h.jobs.Create(ctx, j); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.logger.Info("webhook accepted",
		zap.String("channel", code.String()),
		zap.String("account_id", account.ID.String()),
		zap.String("shop_id", shop.ID.String()),
		zap.String("job_id", j.ID.String()))

	h.Success(c, gin.H{"job_id": j.ID.String()})
}

// resolveShop identifies the delivery's shop: the ?shop= query parameter,
// then a top-level shop_id key in the body, then the account's only shop
// for single-shop channels.
func (h *WebhookHandler) resolveShop(c *gin.Context, account *channel.Account, body []byte) (*channel.Shop, error) {
	ctx := c.Request.Context()

	if external := c.Query("shop"); external != "" {
		return h.shops.FindByExternalID(ctx, account.ID, external)
	}

	if external := shopIDFromBody(body); external != "" {
		shop, err := h.shops.FindByExternalID(ctx, account.ID, external)
		if err == nil {
			return shop, nil
		}
	}

	shops, err := h.shops.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if len(shops) == 1 {
		return shops[0], nil
	}
	return nil, nil
}

// shopIDFromBody pulls a top-level shop_id out of the delivery, tolerant
// of channels that send it as a number and those that send a string.
func shopIDFromBody(body []byte) string {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	raw, ok := envelope["shop_id"]
	if !ok {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}

// RegisterRoutes registers the webhook intake route.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/:channel/:accountID", h.Receive)
}
