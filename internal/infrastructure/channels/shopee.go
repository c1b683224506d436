package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/order"
	"github.com/channelhub/backend/internal/infrastructure/httpclient"
)

const (
	// ShopeeProductionBaseURL is the production partner gateway
	ShopeeProductionBaseURL = "https://partner.shopeemobile.com"
	// shopeeAPIPrefix is included in every signature base
	shopeeAPIPrefix = "/api/v2"
	// shopeeOrderListPageSize is the maximum page size of the order list
	shopeeOrderListPageSize = 100
	// shopeeOrderDetailBatch is the maximum order_sn_list batch
	shopeeOrderDetailBatch = 50
	// shopeeMinorUnitThreshold triggers the minor-unit amount heuristic
	shopeeMinorUnitThreshold = 1_000_000
)

var ErrShopeeMissingShopID = errors.New("channels: shopee requires an external shop ID")

// ShopeeConfig holds per-account Shopee credentials and scope.
type ShopeeConfig struct {
	// PartnerID is the numeric partner ID issued by Shopee
	PartnerID string
	// PartnerKey signs every request
	PartnerKey string
	// ShopID scopes shop-level APIs
	ShopID string
	// AccessToken / RefreshToken are the current OAuth tokens
	AccessToken  string
	RefreshToken string
	// RedirectURL receives the OAuth callback
	RedirectURL string
	// PushURL is the registered webhook endpoint, part of the push
	// signature base
	PushURL string
	// BaseURL overrides the production gateway (tests, sandbox)
	BaseURL string
}

// Validate fills defaults and checks required credentials.
func (c *ShopeeConfig) Validate() error {
	if c.PartnerID == "" || c.PartnerKey == "" {
		return channel.ErrAuthNotConfigured
	}
	if c.BaseURL == "" {
		c.BaseURL = ShopeeProductionBaseURL
	}
	return nil
}

// Sign computes the Shopee v2 request signature: HMAC-SHA256 over
// partner_id || path || timestamp [|| access_token [|| shop_id]], path
// including /api/v2, hex lowercase. The composition is a platform
// invariant.
func (c *ShopeeConfig) Sign(path, timestamp, accessToken, shopID string) string {
	var base strings.Builder
	base.WriteString(c.PartnerID)
	base.WriteString(path)
	base.WriteString(timestamp)
	base.WriteString(accessToken)
	base.WriteString(shopID)

	mac := hmac.New(sha256.New, []byte(c.PartnerKey))
	mac.Write([]byte(base.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// ShopeeAdapter implements the channel adapter for Shopee v2.
type ShopeeAdapter struct {
	config *ShopeeConfig
	client *httpclient.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewShopeeAdapter creates an adapter bound to one account.
func NewShopeeAdapter(config *ShopeeConfig, client *httpclient.Client, logger *zap.Logger) (*ShopeeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ShopeeAdapter{
		config: config,
		client: client,
		logger: logger.Named("shopee"),
		now:    time.Now,
	}, nil
}

// Channel returns the channel code.
func (a *ShopeeAdapter) Channel() channel.Code {
	return channel.CodeShopee
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// AuthorizeURL returns the shop authorization consent URL.
func (a *ShopeeAdapter) AuthorizeURL(state string) (string, error) {
	path := shopeeAPIPrefix + "/shop/auth_partner"
	ts := strconv.FormatInt(a.now().Unix(), 10)
	sign := a.config.Sign(path, ts, "", "")

	q := url.Values{}
	q.Set("partner_id", a.config.PartnerID)
	q.Set("timestamp", ts)
	q.Set("sign", sign)
	q.Set("redirect", a.config.RedirectURL)
	if state != "" {
		q.Set("state", state)
	}
	return a.config.BaseURL + path + "?" + q.Encode(), nil
}

// ExchangeCode converts an authorization code into tokens. Public params go
// in the query string, business params in the JSON body, and the shop ID is
// required.
func (a *ShopeeAdapter) ExchangeCode(ctx context.Context, code, externalShopID string) (*channel.Tokens, error) {
	if externalShopID == "" {
		return nil, fmt.Errorf("%w: %v", channel.ErrValidation, ErrShopeeMissingShopID)
	}
	shopID, err := strconv.ParseInt(externalShopID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: shop ID %q is not numeric", channel.ErrValidation, externalShopID)
	}

	partnerID, _ := strconv.ParseInt(a.config.PartnerID, 10, 64)
	body := map[string]any{
		"code":       code,
		"shop_id":    shopID,
		"partner_id": partnerID,
	}
	var resp shopeeTokenResponse
	if err := a.call(ctx, http.MethodPost, shopeeAPIPrefix+"/auth/token/get", nil, body, false, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", channel.ErrAuthNotConfigured, resp.Error, resp.Message)
	}
	return a.tokensFrom(&resp), nil
}

// RefreshAccessToken exchanges the refresh token for fresh tokens. The call
// signs with the public base only and deliberately bypasses the token
// expiry check, so a refresh can never recurse into itself.
func (a *ShopeeAdapter) RefreshAccessToken(ctx context.Context) (*channel.Tokens, error) {
	if a.config.RefreshToken == "" {
		return nil, channel.ErrAuthNotConfigured
	}
	partnerID, _ := strconv.ParseInt(a.config.PartnerID, 10, 64)
	shopID, _ := strconv.ParseInt(a.config.ShopID, 10, 64)
	body := map[string]any{
		"refresh_token": a.config.RefreshToken,
		"partner_id":    partnerID,
		"shop_id":       shopID,
	}
	var resp shopeeTokenResponse
	if err := a.call(ctx, http.MethodPost, shopeeAPIPrefix+"/auth/access_token/get", nil, body, false, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		if strings.Contains(resp.Error, "invalid_grant") || strings.Contains(resp.Error, "refresh_token") {
			return nil, fmt.Errorf("%w: %s: %s", channel.ErrAuthRevoked, resp.Error, resp.Message)
		}
		return nil, fmt.Errorf("%w: %s: %s", channel.ErrAuthExpired, resp.Error, resp.Message)
	}
	tokens := a.tokensFrom(&resp)
	a.config.AccessToken = tokens.AccessToken
	a.config.RefreshToken = tokens.RefreshToken
	return tokens, nil
}

func (a *ShopeeAdapter) tokensFrom(resp *shopeeTokenResponse) *channel.Tokens {
	return &channel.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    a.now().Add(time.Duration(resp.ExpireIn) * time.Second),
	}
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages the order list to completion, then loads details in
// batches of fifty. The list endpoint only returns order SNs.
func (a *ShopeeAdapter) FetchOrders(ctx context.Context, req *channel.FetchOrdersRequest) ([]json.RawMessage, error) {
	timeField := "create_time"
	if req.TimeField == channel.TimeFieldUpdated {
		timeField = "update_time"
	}

	var orderSNs []string
	cursor := ""
	for {
		query := map[string]string{
			"time_range_field": timeField,
			"time_from":        strconv.FormatInt(req.Since.Unix(), 10),
			"time_to":          strconv.FormatInt(req.Until.Unix(), 10),
			"page_size":        strconv.Itoa(shopeeOrderListPageSize),
		}
		if cursor != "" {
			query["cursor"] = cursor
		}

		var resp shopeeOrderListResponse
		if err := a.call(ctx, http.MethodGet, shopeeAPIPrefix+"/order/get_order_list", query, nil, true, &resp); err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, a.classify(resp.Error, resp.Message)
		}

		for _, o := range resp.Response.OrderList {
			orderSNs = append(orderSNs, o.OrderSN)
		}
		if !resp.Response.More || resp.Response.NextCursor == "" {
			break
		}
		cursor = resp.Response.NextCursor
	}

	if len(orderSNs) == 0 {
		return nil, nil
	}
	return a.fetchOrderDetails(ctx, orderSNs)
}

// fetchOrderDetails loads detailed payloads for the given SNs.
func (a *ShopeeAdapter) fetchOrderDetails(ctx context.Context, orderSNs []string) ([]json.RawMessage, error) {
	payloads := make([]json.RawMessage, 0, len(orderSNs))
	for start := 0; start < len(orderSNs); start += shopeeOrderDetailBatch {
		end := start + shopeeOrderDetailBatch
		if end > len(orderSNs) {
			end = len(orderSNs)
		}

		query := map[string]string{
			"order_sn_list": strings.Join(orderSNs[start:end], ","),
			"response_optional_fields": "buyer_username,recipient_address,item_list," +
				"total_amount,currency,pay_time,create_time,order_status",
		}
		var resp shopeeOrderDetailResponse
		if err := a.call(ctx, http.MethodGet, shopeeAPIPrefix+"/order/get_order_detail", query, nil, true, &resp); err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, a.classify(resp.Error, resp.Message)
		}
		payloads = append(payloads, resp.Response.OrderList...)
	}
	return payloads, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// UpdateInventory pushes stock in one signed bulk call per batch.
func (a *ShopeeAdapter) UpdateInventory(ctx context.Context, items []channel.InventoryItem) (map[string]channel.InventoryResult, error) {
	results := make(map[string]channel.InventoryResult, len(items))

	stockList := make([]map[string]any, 0, len(items))
	bySKU := make(map[string]channel.InventoryItem, len(items))
	for _, item := range items {
		if item.ExternalProductID == "" {
			results[item.ExternalSKU] = channel.InventoryResult{
				Error: "missing item id",
			}
			continue
		}
		itemID, modelID, ok := shopeeItemID(item.ExternalProductID)
		if !ok {
			results[item.ExternalSKU] = channel.InventoryResult{
				Error: fmt.Sprintf("invalid item id %q", item.ExternalProductID),
			}
			continue
		}
		stockList = append(stockList, map[string]any{
			"item_id": itemID,
			"stock_list": []map[string]any{
				{"model_id": modelID, "seller_stock": []map[string]any{{"stock": item.Quantity}}},
			},
		})
		bySKU[item.ExternalSKU] = item
	}
	if len(stockList) == 0 {
		return results, nil
	}

	var resp shopeeUpdateStockResponse
	body := map[string]any{"stock_list": stockList}
	if err := a.call(ctx, http.MethodPost, shopeeAPIPrefix+"/product/update_stock", nil, body, true, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, a.classify(resp.Error, resp.Message)
	}

	failed := make(map[int64]string)
	for _, f := range resp.Response.FailureList {
		failed[f.ItemID] = f.FailedReason
	}
	for sku, item := range bySKU {
		itemID, _, _ := shopeeItemID(item.ExternalProductID)
		if reason, ok := failed[itemID]; ok {
			results[sku] = channel.InventoryResult{Error: reason}
			continue
		}
		results[sku] = channel.InventoryResult{Success: true, ProductID: itemID}
	}
	return results, nil
}

// shopeeItemID parses a cached external product ID; Shopee item IDs may be
// cached as "item" or "item:model".
func shopeeItemID(external string) (itemID, modelID int64, ok bool) {
	parent, variant, ok := channel.SplitParentVariant(external)
	if !ok {
		return 0, 0, false
	}
	if parent != 0 {
		return parent, variant, true
	}
	return variant, 0, true
}

// ---------------------------------------------------------------------------
// Payload normalization
// ---------------------------------------------------------------------------

// ParseOrderPayload maps one order detail payload to the normalized form.
func (a *ShopeeAdapter) ParseOrderPayload(raw json.RawMessage) (*order.NormalizedOrder, error) {
	var detail shopeeOrderDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrMalformedResponse, err)
	}
	if detail.OrderSN == "" {
		return nil, fmt.Errorf("%w: missing order_sn", channel.ErrMalformedResponse)
	}

	orderDate := a.coerceEpoch(detail.CreateTime, detail.OrderSN)

	currency := detail.Currency
	if currency == "" {
		currency = "THB"
	}

	amount := detail.TotalAmount
	// Shopee occasionally delivers amounts in minor units; values past the
	// threshold are scaled down.
	if amount.GreaterThan(decimal.NewFromInt(shopeeMinorUnitThreshold)) {
		amount = amount.Div(decimal.NewFromInt(100))
	}

	name := channel.CustomerName(channel.CodeShopee,
		detail.RecipientAddress.Name, detail.BuyerUsername, detail.RecipientAddress.Phone)

	n := &order.NormalizedOrder{
		ExternalOrderID: detail.OrderSN,
		Status:          mapShopeeStatus(detail.OrderStatus),
		OrderDate:       orderDate,
		CustomerName:    name,
		CustomerPhone:   channel.CleanMasked(detail.RecipientAddress.Phone),
		Address:         detail.RecipientAddress.FullAddress,
		AmountTotal:     amount,
		Currency:        currency,
		Raw:             raw,
	}
	for _, item := range detail.ItemList {
		lineRaw, _ := json.Marshal(item)
		n.Lines = append(n.Lines, order.NormalizedOrderLine{
			ExternalSKU: firstNonEmpty(item.ModelSKU, item.ItemSKU),
			ProductName: item.ItemName,
			Quantity:    decimal.NewFromInt(item.ModelQuantityPurchased),
			PriceUnit:   item.ModelDiscountedPrice,
			Raw:         lineRaw,
		})
	}
	return n, nil
}

// coerceEpoch turns an epoch-second timestamp into time.Time, replacing
// zero or nonsense values with now.
func (a *ShopeeAdapter) coerceEpoch(epoch int64, orderSN string) time.Time {
	if epoch <= 0 {
		a.logger.Warn("invalid order timestamp, using current time",
			zap.String("order_sn", orderSN),
			zap.Int64("epoch", epoch),
		)
		return a.now()
	}
	return time.Unix(epoch, 0)
}

// mapShopeeStatus maps the Shopee vocabulary onto the internal states.
func mapShopeeStatus(status string) order.State {
	switch strings.ToUpper(status) {
	case "CANCELLED", "IN_CANCEL":
		return order.StateCancelled
	case "TO_RETURN", "RETURNED":
		return order.StateReturned
	default:
		// UNPAID, READY_TO_SHIP, PROCESSED, SHIPPED, TO_CONFIRM_RECEIVE,
		// COMPLETED all materialize
		return order.StatePending
	}
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// VerifyWebhook checks the push signature: HMAC-SHA256 over url|body with
// the partner key, carried in the Authorization header.
func (a *ShopeeAdapter) VerifyWebhook(headers http.Header, body []byte) bool {
	got := headers.Get("Authorization")
	if got == "" || a.config.PushURL == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.config.PartnerKey))
	mac.Write([]byte(a.config.PushURL + "|"))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(got), []byte(want))
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// call signs and executes one API call. Shop-scoped calls add the access
// token and shop ID to both the query string and the signature base.
func (a *ShopeeAdapter) call(ctx context.Context, method, path string, query map[string]string, body any, shopScoped bool, out any) error {
	ts := strconv.FormatInt(a.now().Unix(), 10)

	q := map[string]string{
		"partner_id": a.config.PartnerID,
		"timestamp":  ts,
	}
	if shopScoped {
		if a.config.AccessToken == "" {
			return channel.ErrAuthNotConfigured
		}
		q["access_token"] = a.config.AccessToken
		q["shop_id"] = a.config.ShopID
		q["sign"] = a.config.Sign(path, ts, a.config.AccessToken, a.config.ShopID)
	} else {
		q["sign"] = a.config.Sign(path, ts, "", "")
	}
	for k, v := range query {
		q[k] = v
	}

	_, err := a.client.DoJSON(ctx, &httpclient.Request{
		Method: method,
		URL:    a.config.BaseURL + path,
		Query:  q,
		Body:   body,
	}, out)
	return err
}

// classify maps Shopee error codes onto the channel taxonomy.
func (a *ShopeeAdapter) classify(code, message string) error {
	switch {
	case strings.Contains(code, "auth") || strings.Contains(code, "token"):
		return fmt.Errorf("%w: %s: %s", channel.ErrAuthExpired, code, message)
	case strings.Contains(code, "not_found"):
		return fmt.Errorf("%w: %s: %s", channel.ErrNotFound, code, message)
	default:
		return fmt.Errorf("%w: %s: %s", channel.ErrValidation, code, message)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ channel.Adapter = (*ShopeeAdapter)(nil)
