package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/channelhub/backend/internal/domain/order"
)

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// Tokens is the result of a token exchange or refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ---------------------------------------------------------------------------
// Requests / value objects
// ---------------------------------------------------------------------------

// TimeField selects which timestamp bounds an order window.
type TimeField string

const (
	// TimeFieldCreated filters orders by creation time
	TimeFieldCreated TimeField = "created"
	// TimeFieldUpdated filters orders by last-update time
	TimeFieldUpdated TimeField = "updated"
)

// FetchOrdersRequest describes one order-pull window.
type FetchOrdersRequest struct {
	// Since is the inclusive lower bound of the window
	Since time.Time
	// Until is the inclusive upper bound of the window
	Until time.Time
	// TimeField selects created vs updated filtering where supported
	TimeField TimeField
	// ExternalShopID scopes the pull for multi-shop channels
	ExternalShopID string
}

// InventoryItem is one stock value to push to a channel.
type InventoryItem struct {
	// ExternalSKU is the SKU as known to the channel
	ExternalSKU string
	// Quantity is the available quantity to publish
	Quantity int
	// ExternalProductID is the cached remote ID; may encode "parent:variant"
	ExternalProductID string
}

// InventoryResult is the per-SKU outcome of an inventory push.
type InventoryResult struct {
	Success bool
	Error   string
	// ProductID is the remote numeric ID resolved during the push, if any
	ProductID int64
	// ParentID is the parent product ID for variations, if any
	ParentID int64
}

// ExternalID renders the resolved remote ID in binding cache form:
// "id" for simple products, "parent:variant" for variations.
func (r InventoryResult) ExternalID() string {
	if r.ProductID == 0 {
		return ""
	}
	if r.ParentID != 0 {
		return formatParentVariant(r.ParentID, r.ProductID)
	}
	return formatID(r.ProductID)
}

// ---------------------------------------------------------------------------
// Adapter port
// ---------------------------------------------------------------------------

// Adapter is the per-channel protocol implementation. Implementations live
// in the infrastructure layer; everything above this port works with
// normalized payloads only. Signature string-to-sign compositions are
// channel invariants and must not be altered.
type Adapter interface {
	// Channel returns the channel this adapter speaks to
	Channel() Code

	// AuthorizeURL returns the consent URL the end user visits. Channels
	// without an OAuth flow return ErrAuthNotApplicable.
	AuthorizeURL(state string) (string, error)

	// ExchangeCode converts an authorization code into tokens. Shopee
	// requires the external shop ID; other channels ignore it.
	ExchangeCode(ctx context.Context, code, externalShopID string) (*Tokens, error)

	// RefreshAccessToken refreshes the current tokens. Implementations must
	// not re-enter the expiry-check path while refreshing.
	RefreshAccessToken(ctx context.Context) (*Tokens, error)

	// FetchOrders pages to completion and returns raw detailed payloads for
	// every order in the window.
	FetchOrders(ctx context.Context, req *FetchOrdersRequest) ([]json.RawMessage, error)

	// UpdateInventory pushes stock values and reports per-SKU results.
	UpdateInventory(ctx context.Context, items []InventoryItem) (map[string]InventoryResult, error)

	// ParseOrderPayload normalizes one raw order payload.
	ParseOrderPayload(raw json.RawMessage) (*order.NormalizedOrder, error)

	// VerifyWebhook checks the signature of an inbound webhook.
	VerifyWebhook(headers http.Header, body []byte) bool
}

// Registry provides access to configured channel adapters. One adapter
// instance is bound to one account; the registry builds them on demand so
// each carries its own pooled HTTP session.
type Registry interface {
	// AdapterFor builds or returns the adapter bound to the account
	AdapterFor(ctx context.Context, account *Account) (Adapter, error)
}
