package channels

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type lazadaTokenResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type lazadaOrderListResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		CountTotal int               `json:"countTotal"`
		Orders     []json.RawMessage `json:"orders"`
	} `json:"data"`
}

type lazadaOrderItemsResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Data    []json.RawMessage `json:"data"`
}

// lazadaOrderPayload is the stored unit of one pulled order: the order head
// and its items folded into a single document.
type lazadaOrderPayload struct {
	Order      json.RawMessage   `json:"order"`
	OrderItems []json.RawMessage `json:"order_items"`
}

type lazadaOrder struct {
	OrderID           int64           `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	Price             decimal.Decimal `json:"price"`
	Statuses          []string        `json:"statuses"`
	CustomerFirstName string          `json:"customer_first_name"`
	CustomerLastName  string          `json:"customer_last_name"`
	AddressShipping   struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Address1  string `json:"address1"`
	} `json:"address_shipping"`
}

// One Lazada order item is one physical unit; quantity lives in repetition.
type lazadaOrderItem struct {
	OrderItemID int64           `json:"order_item_id"`
	Sku         string          `json:"sku"`
	Name        string          `json:"name"`
	ItemPrice   decimal.Decimal `json:"item_price"`
	Status      string          `json:"status"`
}

// lazadaSkuQuantity carries both the sellable and legacy quantity fields so
// the same payload serves either stock endpoint.
type lazadaSkuQuantity struct {
	SellerSku        string `json:"SellerSku"`
	SellableQuantity int    `json:"SellableQuantity"`
	Quantity         int    `json:"Quantity"`
}

type lazadaStockUpdateResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  struct {
		FailedSkus []struct {
			SellerSku string `json:"seller_sku"`
			Message   string `json:"message"`
		} `json:"failed_skus"`
	} `json:"detail"`
}
