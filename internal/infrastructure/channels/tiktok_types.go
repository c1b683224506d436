package channels

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type tiktokEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type tiktokTokenResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		AccessToken         string `json:"access_token"`
		AccessTokenExpireIn int64  `json:"access_token_expire_in"`
		RefreshToken        string `json:"refresh_token"`
	} `json:"data"`
}

type tiktokOrderSearchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		More       bool              `json:"more"`
		NextCursor string            `json:"next_cursor"`
		Orders     []json.RawMessage `json:"order_list"`
	} `json:"data"`
}

type tiktokOrder struct {
	OrderID          string `json:"order_id"`
	OrderStatus      int    `json:"order_status"`
	CreateTime       int64  `json:"create_time"`
	BuyerUID         string `json:"buyer_uid"`
	RecipientAddress struct {
		Name        string `json:"name"`
		Phone       string `json:"phone"`
		FullAddress string `json:"full_address"`
	} `json:"recipient_address"`
	Payment struct {
		Currency    string          `json:"currency"`
		TotalAmount decimal.Decimal `json:"total_amount"`
	} `json:"payment_info"`
	ItemList []tiktokOrderItem `json:"item_list"`
}

type tiktokOrderItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	SkuID        string          `json:"sku_id"`
	SellerSku    string          `json:"seller_sku"`
	Quantity     int64           `json:"quantity"`
	SkuSalePrice decimal.Decimal `json:"sku_sale_price"`
}
