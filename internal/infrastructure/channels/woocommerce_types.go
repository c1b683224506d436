package channels

import "github.com/shopspring/decimal"

// wooSkuRef locates one remote product: variations carry a parent ID.
type wooSkuRef struct {
	ID       int64
	ParentID int64
}

type wooProduct struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	// StockQuantity may be null when stock management is off
	StockQuantity *int `json:"stock_quantity"`
}

type wooOrder struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	Currency    string          `json:"currency"`
	DateCreated string          `json:"date_created"`
	Total       decimal.Decimal `json:"total"`
	Billing     wooAddress      `json:"billing"`
	Shipping    wooAddress      `json:"shipping"`
	LineItems   []wooLineItem   `json:"line_items"`
}

type wooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	City      string `json:"city"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type wooLineItem struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}
