package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/order"
	"github.com/channelhub/backend/internal/infrastructure/httpclient"
)

const (
	// ZortoutProductionBaseURL is the open-API gateway
	ZortoutProductionBaseURL = "https://open-api.zortout.com/v4"
	// zortoutFeedPageSize is the product feed page limit
	zortoutFeedPageSize = 500
)

// ErrZortoutNoOrders flags order operations on the inventory-master channel.
var ErrZortoutNoOrders = errors.New("channels: zortout does not expose orders")

// ZortoutConfig holds per-account Zortout credentials sent as headers on
// every call.
type ZortoutConfig struct {
	StoreName string
	APIKey    string
	APISecret string
	// BaseURL overrides the gateway (tests)
	BaseURL string
}

// Validate fills defaults and checks required credentials.
func (c *ZortoutConfig) Validate() error {
	if c.StoreName == "" || c.APIKey == "" || c.APISecret == "" {
		return channel.ErrAuthNotConfigured
	}
	if c.BaseURL == "" {
		c.BaseURL = ZortoutProductionBaseURL
	}
	return nil
}

// ZortoutAdapter implements the channel adapter for the Zortout inventory
// platform. Zortout is an inventory master: it feeds products and receives
// stock, but never supplies orders.
type ZortoutAdapter struct {
	config *ZortoutConfig
	client *httpclient.Client
	logger *zap.Logger
}

// NewZortoutAdapter creates an adapter bound to one store.
func NewZortoutAdapter(config *ZortoutConfig, client *httpclient.Client, logger *zap.Logger) (*ZortoutAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ZortoutAdapter{
		config: config,
		client: client,
		logger: logger.Named("zortout"),
	}, nil
}

// Channel returns the channel code.
func (a *ZortoutAdapter) Channel() channel.Code {
	return channel.CodeZortout
}

// AuthorizeURL is not applicable: Zortout authenticates with static keys.
func (a *ZortoutAdapter) AuthorizeURL(string) (string, error) {
	return "", channel.ErrAuthNotApplicable
}

// ExchangeCode is not applicable.
func (a *ZortoutAdapter) ExchangeCode(context.Context, string, string) (*channel.Tokens, error) {
	return nil, channel.ErrAuthNotApplicable
}

// RefreshAccessToken is not applicable.
func (a *ZortoutAdapter) RefreshAccessToken(context.Context) (*channel.Tokens, error) {
	return nil, channel.ErrAuthNotApplicable
}

// FetchOrders is not supported.
func (a *ZortoutAdapter) FetchOrders(context.Context, *channel.FetchOrdersRequest) ([]json.RawMessage, error) {
	return nil, ErrZortoutNoOrders
}

// ParseOrderPayload is not supported.
func (a *ZortoutAdapter) ParseOrderPayload(json.RawMessage) (*order.NormalizedOrder, error) {
	return nil, ErrZortoutNoOrders
}

// VerifyWebhook always rejects; Zortout has no push channel.
func (a *ZortoutAdapter) VerifyWebhook(http.Header, []byte) bool {
	return false
}

// ---------------------------------------------------------------------------
// Product feed
// ---------------------------------------------------------------------------

// FetchProductPage returns one page of the product feed plus the total row
// count reported by the platform.
func (a *ZortoutAdapter) FetchProductPage(ctx context.Context, page, pageSize int, opts channel.FeedOptions) ([]channel.FeedProduct, int, error) {
	if pageSize <= 0 || pageSize > zortoutFeedPageSize {
		pageSize = zortoutFeedPageSize
	}
	query := map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(pageSize),
	}
	if opts.WarehouseCode != "" {
		query["warehousecode"] = opts.WarehouseCode
	}
	if len(opts.SKUs) > 0 {
		query["sku"] = strings.Join(opts.SKUs, ",")
	}

	var resp zortoutProductListResponse
	if err := a.call(ctx, http.MethodGet, "/Product/GetProducts", query, nil, &resp); err != nil {
		return nil, 0, err
	}
	if err := resp.check(); err != nil {
		return nil, 0, err
	}

	products := make([]channel.FeedProduct, 0, len(resp.List))
	for _, p := range resp.List {
		products = append(products, channel.FeedProduct{
			SKU:           p.SKU,
			Name:          p.Name,
			SellPrice:     p.SellPrice,
			CostPrice:     p.PurchasePrice,
			OnHand:        p.AvailableStock,
			WarehouseCode: opts.WarehouseCode,
		})
	}
	return products, resp.Count, nil
}

// ListWarehouses returns the store's warehouse codes.
func (a *ZortoutAdapter) ListWarehouses(ctx context.Context) ([]ZortoutWarehouse, error) {
	var resp zortoutWarehouseListResponse
	if err := a.call(ctx, http.MethodGet, "/Warehouse/GetWarehouses", nil, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	return resp.List, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// UpdateInventory pushes the stock list in one bulk call per warehouse. A
// non-200 envelope fails the whole batch; the platform reports no per-SKU
// outcomes.
func (a *ZortoutAdapter) UpdateInventory(ctx context.Context, items []channel.InventoryItem) (map[string]channel.InventoryResult, error) {
	return a.UpdateInventoryWarehouse(ctx, items, "")
}

// UpdateInventoryWarehouse pushes stock scoped to one warehouse code.
func (a *ZortoutAdapter) UpdateInventoryWarehouse(ctx context.Context, items []channel.InventoryItem, warehouseCode string) (map[string]channel.InventoryResult, error) {
	stocks := make([]zortoutStock, 0, len(items))
	for _, item := range items {
		stocks = append(stocks, zortoutStock{SKU: item.ExternalSKU, Stock: item.Quantity})
	}

	var query map[string]string
	if warehouseCode != "" {
		query = map[string]string{"warehousecode": warehouseCode}
	}
	var resp zortoutEnvelope
	body := map[string]any{"stocks": stocks}
	if err := a.call(ctx, http.MethodPost, "/Product/UpdateProductStockList", query, body, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}

	results := make(map[string]channel.InventoryResult, len(items))
	for _, item := range items {
		results[item.ExternalSKU] = channel.InventoryResult{Success: true}
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *ZortoutAdapter) call(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	_, err := a.client.DoJSON(ctx, &httpclient.Request{
		Method: method,
		URL:    a.config.BaseURL + path,
		Query:  query,
		Headers: map[string]string{
			"storename": a.config.StoreName,
			"apikey":    a.config.APIKey,
			"apisecret": a.config.APISecret,
		},
		Body: body,
	}, out)
	return err
}

// check validates the response envelope. The platform reports the result
// code in either res or resCode, success is "200".
func (e *zortoutEnvelope) check() error {
	code := e.Res
	if code == "" {
		code = e.ResCode
	}
	switch code {
	case "200":
		return nil
	case "401", "403":
		return fmt.Errorf("%w: zortout %s: %s", channel.ErrAuthRevoked, code, e.ResDesc)
	default:
		return fmt.Errorf("%w: zortout %s: %s", channel.ErrValidation, code, e.ResDesc)
	}
}

var (
	_ channel.Adapter     = (*ZortoutAdapter)(nil)
	_ channel.ProductFeed = (*ZortoutAdapter)(nil)
)
