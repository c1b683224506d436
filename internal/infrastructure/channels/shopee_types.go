package channels

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// shopeeTokenResponse covers both token/get and access_token/get.
type shopeeTokenResponse struct {
	RequestID    string `json:"request_id"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireIn     int64  `json:"expire_in"`
}

type shopeeOrderListResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Response  struct {
		More       bool   `json:"more"`
		NextCursor string `json:"next_cursor"`
		OrderList  []struct {
			OrderSN string `json:"order_sn"`
		} `json:"order_list"`
	} `json:"response"`
}

// shopeeOrderDetailResponse keeps order payloads raw so the originals can be
// stored verbatim and normalized separately.
type shopeeOrderDetailResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Response  struct {
		OrderList []json.RawMessage `json:"order_list"`
	} `json:"response"`
}

type shopeeOrderDetail struct {
	OrderSN          string          `json:"order_sn"`
	OrderStatus      string          `json:"order_status"`
	CreateTime       int64           `json:"create_time"`
	PayTime          int64           `json:"pay_time"`
	Currency         string          `json:"currency"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	BuyerUsername    string          `json:"buyer_username"`
	RecipientAddress struct {
		Name        string `json:"name"`
		Phone       string `json:"phone"`
		FullAddress string `json:"full_address"`
	} `json:"recipient_address"`
	ItemList []shopeeOrderItem `json:"item_list"`
}

type shopeeOrderItem struct {
	ItemID                 int64           `json:"item_id"`
	ItemName               string          `json:"item_name"`
	ItemSKU                string          `json:"item_sku"`
	ModelID                int64           `json:"model_id"`
	ModelSKU               string          `json:"model_sku"`
	ModelQuantityPurchased int64           `json:"model_quantity_purchased"`
	ModelDiscountedPrice   decimal.Decimal `json:"model_discounted_price"`
}

type shopeeUpdateStockResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Response  struct {
		FailureList []struct {
			ItemID       int64  `json:"item_id"`
			FailedReason string `json:"failed_reason"`
		} `json:"failure_list"`
		SuccessList []struct {
			ItemID int64 `json:"item_id"`
		} `json:"success_list"`
	} `json:"response"`
}
