package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/order"
	"github.com/channelhub/backend/internal/infrastructure/httpclient"
)

const (
	// wooOrderPageSize is the orders page limit
	wooOrderPageSize = 100
	// wooCatalogPageSize is the products page limit
	wooCatalogPageSize = 100
	// wooStockWorkers bounds concurrent per-product stock PUTs
	wooStockWorkers = 5
)

// WooConfig holds per-account WooCommerce credentials. The store URL plays
// the role of the external shop ID; one shop is provisioned per account.
type WooConfig struct {
	// StoreURL is the site root, e.g. https://shop.example.com
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string
	// WebhookSecret signs delivery payloads; empty disables verification
	WebhookSecret string
}

// Validate checks required credentials and normalizes the store URL.
func (c *WooConfig) Validate() error {
	if c.StoreURL == "" || c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return channel.ErrAuthNotConfigured
	}
	c.StoreURL = strings.TrimRight(c.StoreURL, "/")
	return nil
}

func (c *WooConfig) apiURL(path string) string {
	return c.StoreURL + "/wp-json/wc/v3/" + strings.TrimLeft(path, "/")
}

// WooAdapter implements the channel adapter for WooCommerce stores.
type WooAdapter struct {
	config *WooConfig
	client *httpclient.Client
	logger *zap.Logger
	now    func() time.Time

	// skuIDs caches SKU to "id" / "parent:variant" lookups per adapter
	skuMu  sync.Mutex
	skuIDs map[string]wooSkuRef
}

// NewWooAdapter creates an adapter bound to one store.
func NewWooAdapter(config *WooConfig, client *httpclient.Client, logger *zap.Logger) (*WooAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WooAdapter{
		config: config,
		client: client,
		logger: logger.Named("woocommerce"),
		now:    time.Now,
		skuIDs: make(map[string]wooSkuRef),
	}, nil
}

// Channel returns the channel code.
func (a *WooAdapter) Channel() channel.Code {
	return channel.CodeWooCommerce
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// AuthorizeURL is not applicable: WooCommerce authenticates every call with
// the consumer key pair.
func (a *WooAdapter) AuthorizeURL(string) (string, error) {
	return "", channel.ErrAuthNotApplicable
}

// ExchangeCode is not applicable.
func (a *WooAdapter) ExchangeCode(context.Context, string, string) (*channel.Tokens, error) {
	return nil, channel.ErrAuthNotApplicable
}

// RefreshAccessToken is not applicable.
func (a *WooAdapter) RefreshAccessToken(context.Context) (*channel.Tokens, error) {
	return nil, channel.ErrAuthNotApplicable
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages the orders endpoint oldest-first until the page comes
// back short.
func (a *WooAdapter) FetchOrders(ctx context.Context, req *channel.FetchOrdersRequest) ([]json.RawMessage, error) {
	var payloads []json.RawMessage
	for page := 1; ; page++ {
		query := map[string]string{
			"after":    req.Since.UTC().Format(time.RFC3339),
			"before":   req.Until.UTC().Format(time.RFC3339),
			"per_page": strconv.Itoa(wooOrderPageSize),
			"page":     strconv.Itoa(page),
			"orderby":  "date",
			"order":    "asc",
		}
		var batch []json.RawMessage
		if err := a.get(ctx, "orders", query, &batch); err != nil {
			return nil, err
		}
		payloads = append(payloads, batch...)
		if len(batch) < wooOrderPageSize {
			return payloads, nil
		}
	}
}

// ---------------------------------------------------------------------------
// Catalog listing
// ---------------------------------------------------------------------------

// ListProductPage lists one catalog page for product import.
func (a *WooAdapter) ListProductPage(ctx context.Context, page int) ([]channel.RemoteProduct, bool, error) {
	query := map[string]string{
		"per_page": strconv.Itoa(wooCatalogPageSize),
		"page":     strconv.Itoa(page),
		"status":   "publish",
	}
	var products []wooProduct
	if err := a.get(ctx, "products", query, &products); err != nil {
		return nil, false, err
	}

	out := make([]channel.RemoteProduct, 0, len(products))
	for _, p := range products {
		out = append(out, channel.RemoteProduct{
			ID:       p.ID,
			SKU:      p.SKU,
			Name:     p.Name,
			Variable: p.Type == "variable",
		})
	}
	return out, len(products) == wooCatalogPageSize, nil
}

// ListVariations lists the variations of one variable product.
func (a *WooAdapter) ListVariations(ctx context.Context, parentID int64) ([]channel.RemoteProduct, error) {
	query := map[string]string{"per_page": strconv.Itoa(wooCatalogPageSize)}
	var variations []wooProduct
	path := fmt.Sprintf("products/%d/variations", parentID)
	if err := a.get(ctx, path, query, &variations); err != nil {
		return nil, err
	}

	out := make([]channel.RemoteProduct, 0, len(variations))
	for _, v := range variations {
		out = append(out, channel.RemoteProduct{
			ID:       v.ID,
			ParentID: parentID,
			SKU:      v.SKU,
			Name:     v.Name,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// UpdateInventory resolves each SKU to a product or variation and PUTs the
// stock quantity, at most five stores calls in flight.
func (a *WooAdapter) UpdateInventory(ctx context.Context, items []channel.InventoryItem) (map[string]channel.InventoryResult, error) {
	results := make(map[string]channel.InventoryResult, len(items))
	var resultsMu sync.Mutex

	sem := make(chan struct{}, wooStockWorkers)
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item channel.InventoryItem) {
			defer wg.Done()
			defer func() { <-sem }()

			result := a.pushSingle(ctx, item)
			resultsMu.Lock()
			results[item.ExternalSKU] = result
			resultsMu.Unlock()
		}(item)
	}
	wg.Wait()
	return results, nil
}

func (a *WooAdapter) pushSingle(ctx context.Context, item channel.InventoryItem) channel.InventoryResult {
	ref, err := a.resolveSKU(ctx, item)
	if err != nil {
		return channel.InventoryResult{Error: err.Error()}
	}

	var path string
	if ref.ParentID != 0 {
		path = fmt.Sprintf("products/%d/variations/%d", ref.ParentID, ref.ID)
	} else {
		path = fmt.Sprintf("products/%d", ref.ID)
	}

	body := map[string]any{"stock_quantity": item.Quantity, "manage_stock": true}
	var updated wooProduct
	resp, err := a.client.DoJSON(ctx, &httpclient.Request{
		Method:    http.MethodPut,
		URL:       a.config.apiURL(path),
		Body:      body,
		BasicUser: a.config.ConsumerKey,
		BasicPass: a.config.ConsumerSecret,
	}, &updated)
	if err != nil {
		return channel.InventoryResult{Error: err.Error()}
	}
	if resp.StatusCode == http.StatusNotFound {
		// cached ID went stale, drop it so the next push re-resolves
		a.skuMu.Lock()
		delete(a.skuIDs, item.ExternalSKU)
		a.skuMu.Unlock()
		return channel.InventoryResult{Error: "product not found"}
	}
	if resp.StatusCode >= 400 {
		return channel.InventoryResult{Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return channel.InventoryResult{Success: true, ProductID: ref.ID, ParentID: ref.ParentID}
}

// resolveSKU finds the remote product behind a SKU, preferring the cached
// binding ID, then the adapter cache, then a store lookup.
func (a *WooAdapter) resolveSKU(ctx context.Context, item channel.InventoryItem) (wooSkuRef, error) {
	if item.ExternalProductID != "" {
		parent, variant, ok := channel.SplitParentVariant(item.ExternalProductID)
		if ok {
			return wooSkuRef{ID: variant, ParentID: parent}, nil
		}
	}

	a.skuMu.Lock()
	ref, ok := a.skuIDs[item.ExternalSKU]
	a.skuMu.Unlock()
	if ok {
		return ref, nil
	}

	var products []wooProduct
	if err := a.get(ctx, "products", map[string]string{"sku": item.ExternalSKU}, &products); err != nil {
		return wooSkuRef{}, err
	}
	if len(products) == 0 {
		return wooSkuRef{}, fmt.Errorf("sku %q not found in store", item.ExternalSKU)
	}

	p := products[0]
	ref = wooSkuRef{ID: p.ID, ParentID: p.ParentID}
	a.skuMu.Lock()
	a.skuIDs[item.ExternalSKU] = ref
	a.skuMu.Unlock()
	return ref, nil
}

// ---------------------------------------------------------------------------
// Payload normalization
// ---------------------------------------------------------------------------

// ParseOrderPayload maps one order document to the normalized form.
func (a *WooAdapter) ParseOrderPayload(raw json.RawMessage) (*order.NormalizedOrder, error) {
	var o wooOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrMalformedResponse, err)
	}
	if o.ID == 0 {
		return nil, fmt.Errorf("%w: missing order id", channel.ErrMalformedResponse)
	}

	orderDate := a.now()
	if t, err := time.Parse("2006-01-02T15:04:05", o.DateCreated); err == nil {
		orderDate = t
	}

	recipient := strings.TrimSpace(o.Shipping.FirstName + " " + o.Shipping.LastName)
	buyer := strings.TrimSpace(o.Billing.FirstName + " " + o.Billing.LastName)
	name := channel.CustomerName(channel.CodeWooCommerce, recipient, buyer, o.Billing.Phone)

	currency := o.Currency
	if currency == "" {
		currency = "THB"
	}

	n := &order.NormalizedOrder{
		ExternalOrderID: strconv.FormatInt(o.ID, 10),
		Status:          mapWooStatus(o.Status),
		OrderDate:       orderDate,
		CustomerName:    name,
		CustomerEmail:   o.Billing.Email,
		CustomerPhone:   channel.CleanMasked(o.Billing.Phone),
		Address:         strings.TrimSpace(o.Shipping.Address1 + " " + o.Shipping.City),
		AmountTotal:     o.Total,
		Currency:        currency,
		Raw:             raw,
	}
	for _, item := range o.LineItems {
		lineRaw, _ := json.Marshal(item)
		n.Lines = append(n.Lines, order.NormalizedOrderLine{
			ExternalSKU: item.SKU,
			ProductName: item.Name,
			Quantity:    decimal.NewFromInt(item.Quantity),
			PriceUnit:   item.Price,
			Raw:         lineRaw,
		})
	}
	return n, nil
}

// mapWooStatus maps the store vocabulary onto the internal states.
func mapWooStatus(status string) order.State {
	switch strings.ToLower(status) {
	case "cancelled", "failed", "trash":
		return order.StateCancelled
	case "refunded":
		return order.StateReturned
	default:
		// pending, processing, on-hold, completed all materialize
		return order.StatePending
	}
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// VerifyWebhook checks the delivery signature: base64 HMAC-SHA256 over the
// raw body in X-WC-Webhook-Signature.
func (a *WooAdapter) VerifyWebhook(headers http.Header, body []byte) bool {
	if a.config.WebhookSecret == "" {
		return false
	}
	got := headers.Get("X-WC-Webhook-Signature")
	if got == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.config.WebhookSecret))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(got), []byte(want))
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *WooAdapter) get(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := a.client.Do(ctx, &httpclient.Request{
		Method:    http.MethodGet,
		URL:       a.config.apiURL(path),
		Query:     query,
		BasicUser: a.config.ConsumerKey,
		BasicPass: a.config.ConsumerSecret,
	})
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", channel.ErrAuthRevoked, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", channel.ErrNotFound, path)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", channel.ErrValidation, resp.StatusCode)
	}
	return resp.DecodeJSON(out)
}

var (
	_ channel.Adapter       = (*WooAdapter)(nil)
	_ channel.CatalogLister = (*WooAdapter)(nil)
)
