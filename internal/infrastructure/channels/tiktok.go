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
	// TikTokProductionBaseURL is the global open-API gateway
	TikTokProductionBaseURL = "https://open-api.tiktokglobalshop.com"
	// TikTokAuthBaseURL hosts the token endpoints
	TikTokAuthBaseURL = "https://auth.tiktok-shops.com"
	// tiktokAuthorizeURL is the seller consent page
	tiktokAuthorizeURL = "https://services.tiktokshop.com/open/authorize"
	// tiktokOrderPageSize is the order search page limit
	tiktokOrderPageSize = 100
)

// TikTokConfig holds per-account TikTok Shop credentials.
type TikTokConfig struct {
	AppKey       string
	AppSecret    string
	ShopID       string
	AccessToken  string
	RefreshToken string
	// ServiceID identifies the app on the consent page
	ServiceID string
	// BaseURL overrides the API gateway (tests)
	BaseURL string
	// AuthBaseURL overrides the token gateway (tests)
	AuthBaseURL string
}

// Validate fills defaults and checks required credentials.
func (c *TikTokConfig) Validate() error {
	if c.AppKey == "" || c.AppSecret == "" {
		return channel.ErrAuthNotConfigured
	}
	if c.BaseURL == "" {
		c.BaseURL = TikTokProductionBaseURL
	}
	if c.AuthBaseURL == "" {
		c.AuthBaseURL = TikTokAuthBaseURL
	}
	return nil
}

// Sign computes the TikTok Shop request signature: HMAC-SHA256 with the app
// secret over secret || path || sorted_concat(k||v) || body || secret, hex
// lowercase. The sign and access_token params never enter the base.
func (c *TikTokConfig) Sign(path string, params map[string]string, body []byte) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || k == "access_token" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var base strings.Builder
	base.WriteString(c.AppSecret)
	base.WriteString(path)
	for _, k := range keys {
		base.WriteString(k)
		base.WriteString(params[k])
	}
	base.Write(body)
	base.WriteString(c.AppSecret)

	mac := hmac.New(sha256.New, []byte(c.AppSecret))
	mac.Write([]byte(base.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// TikTokAdapter implements the channel adapter for TikTok Shop.
type TikTokAdapter struct {
	config *TikTokConfig
	client *httpclient.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewTikTokAdapter creates an adapter bound to one account.
func NewTikTokAdapter(config *TikTokConfig, client *httpclient.Client, logger *zap.Logger) (*TikTokAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TikTokAdapter{
		config: config,
		client: client,
		logger: logger.Named("tiktok"),
		now:    time.Now,
	}, nil
}

// Channel returns the channel code.
func (a *TikTokAdapter) Channel() channel.Code {
	return channel.CodeTikTok
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// AuthorizeURL returns the seller consent URL.
func (a *TikTokAdapter) AuthorizeURL(state string) (string, error) {
	q := url.Values{}
	q.Set("app_key", a.config.AppKey)
	if a.config.ServiceID != "" {
		q.Set("service_id", a.config.ServiceID)
	}
	if state != "" {
		q.Set("state", state)
	}
	return tiktokAuthorizeURL + "?" + q.Encode(), nil
}

// ExchangeCode converts an authorization code into tokens. Token endpoints
// authenticate with app key and secret directly, unsigned.
func (a *TikTokAdapter) ExchangeCode(ctx context.Context, code, _ string) (*channel.Tokens, error) {
	var resp tiktokTokenResponse
	_, err := a.client.DoJSON(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    a.config.AuthBaseURL + "/api/v2/token/get",
		Query: map[string]string{
			"app_key":    a.config.AppKey,
			"app_secret": a.config.AppSecret,
			"auth_code":  code,
			"grant_type": "authorized_code",
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: code %d: %s", channel.ErrAuthNotConfigured, resp.Code, resp.Message)
	}
	return a.tokensFrom(&resp), nil
}

// RefreshAccessToken exchanges the refresh token for fresh tokens.
func (a *TikTokAdapter) RefreshAccessToken(ctx context.Context) (*channel.Tokens, error) {
	if a.config.RefreshToken == "" {
		return nil, channel.ErrAuthNotConfigured
	}
	var resp tiktokTokenResponse
	_, err := a.client.DoJSON(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    a.config.AuthBaseURL + "/api/v2/token/refresh",
		Query: map[string]string{
			"app_key":       a.config.AppKey,
			"app_secret":    a.config.AppSecret,
			"refresh_token": a.config.RefreshToken,
			"grant_type":    "refresh_token",
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		if strings.Contains(resp.Message, "refresh_token") || strings.Contains(resp.Message, "invalid_grant") {
			return nil, fmt.Errorf("%w: code %d: %s", channel.ErrAuthRevoked, resp.Code, resp.Message)
		}
		return nil, fmt.Errorf("%w: code %d: %s", channel.ErrAuthExpired, resp.Code, resp.Message)
	}
	tokens := a.tokensFrom(&resp)
	a.config.AccessToken = tokens.AccessToken
	a.config.RefreshToken = tokens.RefreshToken
	return tokens, nil
}

func (a *TikTokAdapter) tokensFrom(resp *tiktokTokenResponse) *channel.Tokens {
	expires := time.Unix(resp.Data.AccessTokenExpireIn, 0)
	if resp.Data.AccessTokenExpireIn <= 0 {
		expires = a.now().Add(7 * 24 * time.Hour)
	}
	return &channel.Tokens{
		AccessToken:  resp.Data.AccessToken,
		RefreshToken: resp.Data.RefreshToken,
		ExpiresAt:    expires,
	}
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders pages the order search to completion. The search returns full
// order documents so no detail round-trip is needed.
func (a *TikTokAdapter) FetchOrders(ctx context.Context, req *channel.FetchOrdersRequest) ([]json.RawMessage, error) {
	body := map[string]any{
		"page_size": tiktokOrderPageSize,
	}
	if req.TimeField == channel.TimeFieldUpdated {
		body["update_time_from"] = req.Since.Unix()
		body["update_time_to"] = req.Until.Unix()
	} else {
		body["create_time_from"] = req.Since.Unix()
		body["create_time_to"] = req.Until.Unix()
	}

	var payloads []json.RawMessage
	cursor := ""
	for {
		if cursor != "" {
			body["cursor"] = cursor
		}
		var resp tiktokOrderSearchResponse
		if err := a.call(ctx, http.MethodPost, "/order/orders/search", body, &resp); err != nil {
			return nil, err
		}
		if resp.Code != 0 {
			return nil, a.classify(resp.Code, resp.Message)
		}

		payloads = append(payloads, resp.Data.Orders...)
		if !resp.Data.More || resp.Data.NextCursor == "" {
			break
		}
		cursor = resp.Data.NextCursor
	}
	return payloads, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// UpdateInventory pushes stock one product per call; the platform has no
// bulk endpoint.
func (a *TikTokAdapter) UpdateInventory(ctx context.Context, items []channel.InventoryItem) (map[string]channel.InventoryResult, error) {
	results := make(map[string]channel.InventoryResult, len(items))
	for _, item := range items {
		if item.ExternalProductID == "" {
			results[item.ExternalSKU] = channel.InventoryResult{Error: "missing product id"}
			continue
		}
		productID, skuID, ok := channel.SplitParentVariant(item.ExternalProductID)
		if !ok {
			results[item.ExternalSKU] = channel.InventoryResult{
				Error: fmt.Sprintf("invalid product id %q", item.ExternalProductID),
			}
			continue
		}
		if productID == 0 {
			productID = skuID
		}

		body := map[string]any{
			"product_id": strconv.FormatInt(productID, 10),
			"skus": []map[string]any{{
				"id":          strconv.FormatInt(skuID, 10),
				"stock_infos": []map[string]any{{"available_stock": item.Quantity}},
			}},
		}
		var resp tiktokEnvelope
		if err := a.call(ctx, http.MethodPost, "/product/inventory/update", body, &resp); err != nil {
			if channel.IsRetryable(err) || channel.IsAuthError(err) {
				return nil, err
			}
			results[item.ExternalSKU] = channel.InventoryResult{Error: err.Error()}
			continue
		}
		if resp.Code != 0 {
			results[item.ExternalSKU] = channel.InventoryResult{Error: resp.Message}
			continue
		}
		results[item.ExternalSKU] = channel.InventoryResult{
			Success:   true,
			ProductID: skuID,
			ParentID:  productID,
		}
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Payload normalization
// ---------------------------------------------------------------------------

// ParseOrderPayload maps one order search document to the normalized form.
func (a *TikTokAdapter) ParseOrderPayload(raw json.RawMessage) (*order.NormalizedOrder, error) {
	var o tiktokOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrMalformedResponse, err)
	}
	if o.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", channel.ErrMalformedResponse)
	}

	orderDate := a.now()
	if o.CreateTime > 0 {
		// TikTok delivers epoch milliseconds past 2033-ish second values
		if o.CreateTime > 10_000_000_000 {
			orderDate = time.UnixMilli(o.CreateTime)
		} else {
			orderDate = time.Unix(o.CreateTime, 0)
		}
	}

	name := channel.CustomerName(channel.CodeTikTok,
		o.RecipientAddress.Name, o.BuyerUID, o.RecipientAddress.Phone)

	currency := o.Payment.Currency
	if currency == "" {
		currency = "THB"
	}

	n := &order.NormalizedOrder{
		ExternalOrderID: o.OrderID,
		Status:          mapTikTokStatus(o.OrderStatus),
		OrderDate:       orderDate,
		CustomerName:    name,
		CustomerPhone:   channel.CleanMasked(o.RecipientAddress.Phone),
		Address:         o.RecipientAddress.FullAddress,
		AmountTotal:     o.Payment.TotalAmount,
		Currency:        currency,
		Raw:             raw,
	}
	for _, item := range o.ItemList {
		lineRaw, _ := json.Marshal(item)
		n.Lines = append(n.Lines, order.NormalizedOrderLine{
			ExternalSKU: item.SellerSku,
			ProductName: item.ProductName,
			Quantity:    decimal.NewFromInt(item.Quantity),
			PriceUnit:   item.SkuSalePrice,
			Raw:         lineRaw,
		})
	}
	return n, nil
}

// mapTikTokStatus maps the numeric order status onto the internal states.
// 140 is cancelled; everything else materializes.
func mapTikTokStatus(status int) order.State {
	switch status {
	case 140:
		return order.StateCancelled
	default:
		return order.StatePending
	}
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// VerifyWebhook checks the push signature: HMAC-SHA256 over app_key || body
// with the app secret, hex lowercase in the Authorization header.
func (a *TikTokAdapter) VerifyWebhook(headers http.Header, body []byte) bool {
	got := headers.Get("Authorization")
	if got == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.config.AppSecret))
	mac.Write([]byte(a.config.AppKey))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(got), []byte(want))
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// call signs and executes one API call. The body is marshaled once so the
// exact bytes that enter the signature also go on the wire.
func (a *TikTokAdapter) call(ctx context.Context, method, path string, body any, out any) error {
	if a.config.AccessToken == "" {
		return channel.ErrAuthNotConfigured
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	params := map[string]string{
		"app_key":   a.config.AppKey,
		"shop_id":   a.config.ShopID,
		"timestamp": strconv.FormatInt(a.now().Unix(), 10),
	}
	params["sign"] = a.config.Sign(path, params, bodyBytes)
	params["access_token"] = a.config.AccessToken

	req := &httpclient.Request{
		Method:  method,
		URL:     a.config.BaseURL + path,
		Query:   params,
		Headers: map[string]string{"x-tts-access-token": a.config.AccessToken},
	}
	if bodyBytes != nil {
		req.Body = json.RawMessage(bodyBytes)
	}
	_, err := a.client.DoJSON(ctx, req, out)
	return err
}

// classify maps TikTok error codes onto the channel taxonomy.
func (a *TikTokAdapter) classify(code int, message string) error {
	switch {
	case code == 105002 || strings.Contains(message, "access_token"):
		return fmt.Errorf("%w: code %d: %s", channel.ErrAuthExpired, code, message)
	case strings.Contains(message, "rate limit"):
		return fmt.Errorf("%w: code %d: %s", channel.ErrRateLimited, code, message)
	default:
		return fmt.Errorf("%w: code %d: %s", channel.ErrValidation, code, message)
	}
}

var _ channel.Adapter = (*TikTokAdapter)(nil)
