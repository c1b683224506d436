package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
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
	// LazadaProductionBaseURL is the Thailand REST gateway
	LazadaProductionBaseURL = "https://api.lazada.co.th/rest"
	// LazadaAuthBaseURL hosts the token endpoints
	LazadaAuthBaseURL = "https://auth.lazada.com/rest"
	// lazadaAuthorizeURL is the merchant consent page
	lazadaAuthorizeURL = "https://auth.lazada.com/oauth/authorize"
	// lazadaOrderPageSize is the /orders/get page limit
	lazadaOrderPageSize = 100
)

// lazadaZone pins window timestamps to the platform's documented +07:00
// offset regardless of the caller's zone.
var lazadaZone = time.FixedZone("+07:00", 7*60*60)

// LazadaConfig holds per-account Lazada credentials.
type LazadaConfig struct {
	AppKey       string
	AppSecret    string
	AccessToken  string
	RefreshToken string
	RedirectURL  string
	// BaseURL overrides the REST gateway (tests)
	BaseURL string
	// AuthBaseURL overrides the token gateway (tests)
	AuthBaseURL string
}

// Validate fills defaults and checks required credentials.
func (c *LazadaConfig) Validate() error {
	if c.AppKey == "" || c.AppSecret == "" {
		return channel.ErrAuthNotConfigured
	}
	if c.BaseURL == "" {
		c.BaseURL = LazadaProductionBaseURL
	}
	if c.AuthBaseURL == "" {
		c.AuthBaseURL = LazadaAuthBaseURL
	}
	return nil
}

// Sign computes the Lazada request signature: HMAC-SHA256 over the API path
// followed by every parameter concatenated as key||value in ascending key
// order, hex uppercase.
func (c *LazadaConfig) Sign(path string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var base strings.Builder
	base.WriteString(path)
	for _, k := range keys {
		base.WriteString(k)
		base.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(c.AppSecret))
	mac.Write([]byte(base.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// LazadaAdapter implements the channel adapter for the Lazada Open Platform.
type LazadaAdapter struct {
	config *LazadaConfig
	client *httpclient.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewLazadaAdapter creates an adapter bound to one account.
func NewLazadaAdapter(config *LazadaConfig, client *httpclient.Client, logger *zap.Logger) (*LazadaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &LazadaAdapter{
		config: config,
		client: client,
		logger: logger.Named("lazada"),
		now:    time.Now,
	}, nil
}

// Channel returns the channel code.
func (a *LazadaAdapter) Channel() channel.Code {
	return channel.CodeLazada
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// AuthorizeURL returns the seller consent URL.
func (a *LazadaAdapter) AuthorizeURL(state string) (string, error) {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("force_auth", "true")
	q.Set("client_id", a.config.AppKey)
	q.Set("redirect_uri", a.config.RedirectURL)
	if state != "" {
		q.Set("state", state)
	}
	return lazadaAuthorizeURL + "?" + q.Encode(), nil
}

// ExchangeCode converts an authorization code into tokens. Lazada derives
// the shop from the token itself so the external shop ID is ignored.
func (a *LazadaAdapter) ExchangeCode(ctx context.Context, code, _ string) (*channel.Tokens, error) {
	var resp lazadaTokenResponse
	if err := a.callAuth(ctx, "/auth/token/create", map[string]string{"code": code}, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "" && resp.Code != "0" {
		return nil, fmt.Errorf("%w: %s: %s", channel.ErrAuthNotConfigured, resp.Code, resp.Message)
	}
	return a.tokensFrom(&resp), nil
}

// RefreshAccessToken exchanges the refresh token for fresh tokens.
func (a *LazadaAdapter) RefreshAccessToken(ctx context.Context) (*channel.Tokens, error) {
	if a.config.RefreshToken == "" {
		return nil, channel.ErrAuthNotConfigured
	}
	var resp lazadaTokenResponse
	params := map[string]string{"refresh_token": a.config.RefreshToken}
	if err := a.callAuth(ctx, "/auth/token/refresh", params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "" && resp.Code != "0" {
		if strings.Contains(resp.Code, "InvalidRefreshToken") || strings.Contains(resp.Code, "IllegalRefreshToken") {
			return nil, fmt.Errorf("%w: %s: %s", channel.ErrAuthRevoked, resp.Code, resp.Message)
		}
		return nil, fmt.Errorf("%w: %s: %s", channel.ErrAuthExpired, resp.Code, resp.Message)
	}
	tokens := a.tokensFrom(&resp)
	a.config.AccessToken = tokens.AccessToken
	a.config.RefreshToken = tokens.RefreshToken
	return tokens, nil
}

func (a *LazadaAdapter) tokensFrom(resp *lazadaTokenResponse) *channel.Tokens {
	return &channel.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    a.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages /orders/get to completion, then loads order items in
// bulk and folds them into each payload. A created-window scan that comes
// back empty is retried on the update axis, so orders that were only
// modified inside the window still surface.
func (a *LazadaAdapter) FetchOrders(ctx context.Context, req *channel.FetchOrdersRequest) ([]json.RawMessage, error) {
	orders, orderIDs, err := a.listOrders(ctx, req, req.TimeField)
	if err != nil {
		return nil, err
	}
	if len(orderIDs) == 0 && req.TimeField != channel.TimeFieldUpdated {
		orders, orderIDs, err = a.listOrders(ctx, req, channel.TimeFieldUpdated)
		if err != nil {
			return nil, err
		}
	}
	if len(orderIDs) == 0 {
		return nil, nil
	}

	items, err := a.fetchOrderItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	payloads := make([]json.RawMessage, 0, len(orderIDs))
	for _, id := range orderIDs {
		combined, err := json.Marshal(lazadaOrderPayload{
			Order:      orders[id],
			OrderItems: items[id],
		})
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, combined)
	}
	return payloads, nil
}

// listOrders pages one time-axis window of /orders/get to completion.
func (a *LazadaAdapter) listOrders(ctx context.Context, req *channel.FetchOrdersRequest, timeField channel.TimeField) (map[int64]json.RawMessage, []int64, error) {
	params := map[string]string{
		"limit":          strconv.Itoa(lazadaOrderPageSize),
		"sort_direction": "DESC",
	}
	since := req.Since.In(lazadaZone).Format(time.RFC3339)
	until := req.Until.In(lazadaZone).Format(time.RFC3339)
	if timeField == channel.TimeFieldUpdated {
		params["update_after"] = since
		params["update_before"] = until
		params["sort_by"] = "updated_at"
	} else {
		params["created_after"] = since
		params["created_before"] = until
		params["sort_by"] = "created_at"
	}

	orders := make(map[int64]json.RawMessage)
	var orderIDs []int64
	offset := 0
	for {
		params["offset"] = strconv.Itoa(offset)

		var resp lazadaOrderListResponse
		if err := a.call(ctx, http.MethodGet, "/orders/get", params, &resp); err != nil {
			return nil, nil, err
		}
		if resp.Code != "" && resp.Code != "0" {
			return nil, nil, a.classify(resp.Code, resp.Message)
		}

		for _, raw := range resp.Data.Orders {
			var head struct {
				OrderID int64 `json:"order_id"`
			}
			if err := json.Unmarshal(raw, &head); err != nil || head.OrderID == 0 {
				return nil, nil, fmt.Errorf("%w: order without order_id", channel.ErrMalformedResponse)
			}
			if _, seen := orders[head.OrderID]; !seen {
				orders[head.OrderID] = raw
				orderIDs = append(orderIDs, head.OrderID)
			}
		}

		offset += lazadaOrderPageSize
		if offset >= resp.Data.CountTotal || len(resp.Data.Orders) == 0 {
			break
		}
	}
	return orders, orderIDs, nil
}

// fetchOrderItems loads order lines keyed by order ID, one call per order.
func (a *LazadaAdapter) fetchOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]json.RawMessage, error) {
	out := make(map[int64][]json.RawMessage, len(orderIDs))
	for _, id := range orderIDs {
		var resp lazadaOrderItemsResponse
		params := map[string]string{"order_id": strconv.FormatInt(id, 10)}
		if err := a.call(ctx, http.MethodGet, "/order/items/get", params, &resp); err != nil {
			return nil, err
		}
		if resp.Code != "" && resp.Code != "0" {
			return nil, a.classify(resp.Code, resp.Message)
		}
		out[id] = resp.Data
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// UpdateInventory pushes sellable quantities in one bulk call. On a
// rejected payload it falls back to the legacy quantity endpoint before
// giving up.
func (a *LazadaAdapter) UpdateInventory(ctx context.Context, items []channel.InventoryItem) (map[string]channel.InventoryResult, error) {
	results := make(map[string]channel.InventoryResult, len(items))

	skus := make([]lazadaSkuQuantity, 0, len(items))
	for _, item := range items {
		skus = append(skus, lazadaSkuQuantity{
			SellerSku:        item.ExternalSKU,
			SellableQuantity: item.Quantity,
			Quantity:         item.Quantity,
		})
	}
	payload, err := json.Marshal(skus)
	if err != nil {
		return nil, err
	}

	var resp lazadaStockUpdateResponse
	params := map[string]string{"payload": string(payload)}
	if err := a.call(ctx, http.MethodPost, "/product/stock/sellable/update", params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "" && resp.Code != "0" {
		a.logger.Warn("sellable stock update rejected, falling back to quantity update",
			zap.String("code", resp.Code),
			zap.String("message", resp.Message),
		)
		resp = lazadaStockUpdateResponse{}
		params = map[string]string{"Skus": string(payload)}
		if err := a.call(ctx, http.MethodPost, "/product/update_quantity", params, &resp); err != nil {
			return nil, err
		}
		if resp.Code != "" && resp.Code != "0" {
			return nil, a.classify(resp.Code, resp.Message)
		}
	}

	failed := make(map[string]string)
	for _, f := range resp.Detail.FailedSkus {
		failed[f.SellerSku] = f.Message
	}
	for _, item := range items {
		if reason, ok := failed[item.ExternalSKU]; ok {
			results[item.ExternalSKU] = channel.InventoryResult{Error: reason}
			continue
		}
		results[item.ExternalSKU] = channel.InventoryResult{Success: true}
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Payload normalization
// ---------------------------------------------------------------------------

// ParseOrderPayload maps one combined order payload to the normalized form.
func (a *LazadaAdapter) ParseOrderPayload(raw json.RawMessage) (*order.NormalizedOrder, error) {
	var payload lazadaOrderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrMalformedResponse, err)
	}
	var o lazadaOrder
	if err := json.Unmarshal(payload.Order, &o); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrMalformedResponse, err)
	}
	if o.OrderID == 0 {
		return nil, fmt.Errorf("%w: missing order_id", channel.ErrMalformedResponse)
	}

	orderDate := a.now()
	if t, err := time.Parse(lazadaTimeLayout, o.CreatedAt); err == nil {
		orderDate = t
	} else {
		a.logger.Warn("unparseable order timestamp, using current time",
			zap.Int64("order_id", o.OrderID),
			zap.String("created_at", o.CreatedAt),
		)
	}

	recipient := strings.TrimSpace(o.AddressShipping.FirstName + " " + o.AddressShipping.LastName)
	buyer := strings.TrimSpace(o.CustomerFirstName + " " + o.CustomerLastName)
	name := channel.CustomerName(channel.CodeLazada, recipient, buyer, o.AddressShipping.Phone)

	n := &order.NormalizedOrder{
		ExternalOrderID: o.OrderNumber,
		Status:          mapLazadaStatus(o.Statuses),
		OrderDate:       orderDate,
		CustomerName:    name,
		CustomerPhone:   channel.CleanMasked(o.AddressShipping.Phone),
		Address:         o.AddressShipping.Address1,
		AmountTotal:     o.Price,
		Currency:        "THB",
		Raw:             raw,
	}
	if n.ExternalOrderID == "" {
		n.ExternalOrderID = strconv.FormatInt(o.OrderID, 10)
	}

	for _, lineRaw := range payload.OrderItems {
		var item lazadaOrderItem
		if err := json.Unmarshal(lineRaw, &item); err != nil {
			return nil, fmt.Errorf("%w: %v", channel.ErrMalformedResponse, err)
		}
		n.Lines = append(n.Lines, order.NormalizedOrderLine{
			ExternalSKU: item.Sku,
			ProductName: item.Name,
			Quantity:    decimal.NewFromInt(1),
			PriceUnit:   item.ItemPrice,
			Raw:         lineRaw,
		})
	}
	return n, nil
}

// lazadaTimeLayout is the platform timestamp format, e.g.
// "2023-08-01 17:02:30 +0700".
const lazadaTimeLayout = "2006-01-02 15:04:05 -0700"

// mapLazadaStatus folds the per-item status list into one order state. A
// single live item keeps the order materializable.
func mapLazadaStatus(statuses []string) order.State {
	if len(statuses) == 0 {
		return order.StatePending
	}
	allCancelled, anyReturn := true, false
	for _, s := range statuses {
		switch strings.ToLower(s) {
		case "canceled", "cancelled", "failed":
		case "returned", "return_initiated":
			anyReturn = true
			allCancelled = false
		default:
			allCancelled = false
		}
	}
	switch {
	case allCancelled:
		return order.StateCancelled
	case anyReturn:
		return order.StateReturned
	default:
		return order.StatePending
	}
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// VerifyWebhook checks the push signature: HMAC-SHA256 over the raw body
// with the app secret, hex lowercase in the Authorization header.
func (a *LazadaAdapter) VerifyWebhook(headers http.Header, body []byte) bool {
	got := headers.Get("Authorization")
	if got == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.config.AppSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// call signs and executes one REST call against the API gateway.
func (a *LazadaAdapter) call(ctx context.Context, method, path string, params map[string]string, out any) error {
	if a.config.AccessToken == "" {
		return channel.ErrAuthNotConfigured
	}
	all := a.systemParams()
	all["access_token"] = a.config.AccessToken
	for k, v := range params {
		all[k] = v
	}
	all["sign"] = a.config.Sign(path, all)

	req := &httpclient.Request{Method: method, URL: a.config.BaseURL + path}
	if method == http.MethodPost {
		req.FormData = all
	} else {
		req.Query = all
	}
	_, err := a.client.DoJSON(ctx, req, out)
	return err
}

// callAuth executes one token call against the auth gateway. Token calls
// sign with system params only plus the business params.
func (a *LazadaAdapter) callAuth(ctx context.Context, path string, params map[string]string, out any) error {
	all := a.systemParams()
	for k, v := range params {
		all[k] = v
	}
	all["sign"] = a.config.Sign(path, all)

	_, err := a.client.DoJSON(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    a.config.AuthBaseURL + path,
		Query:  all,
	}, out)
	return err
}

func (a *LazadaAdapter) systemParams() map[string]string {
	return map[string]string{
		"app_key":     a.config.AppKey,
		"sign_method": "sha256",
		"timestamp":   strconv.FormatInt(a.now().UnixMilli(), 10),
	}
}

// classify maps Lazada error codes onto the channel taxonomy.
func (a *LazadaAdapter) classify(code, message string) error {
	switch {
	case strings.Contains(code, "IllegalAccessToken") || strings.Contains(code, "AccessTokenExpired"):
		return fmt.Errorf("%w: %s: %s", channel.ErrAuthExpired, code, message)
	case strings.Contains(code, "ApiCallLimit"):
		return fmt.Errorf("%w: %s: %s", channel.ErrRateLimited, code, message)
	default:
		return fmt.Errorf("%w: %s: %s", channel.ErrValidation, code, message)
	}
}

var _ channel.Adapter = (*LazadaAdapter)(nil)
