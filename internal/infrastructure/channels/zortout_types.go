package channels

import "github.com/shopspring/decimal"

// zortoutEnvelope is the common response wrapper; the result code arrives
// in either res or resCode depending on the endpoint.
type zortoutEnvelope struct {
	Res     string `json:"res"`
	ResCode string `json:"resCode"`
	ResDesc string `json:"resDesc"`
}

type zortoutProductListResponse struct {
	zortoutEnvelope
	List  []zortoutProduct `json:"list"`
	Count int              `json:"count"`
}

type zortoutProduct struct {
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	SellPrice      decimal.Decimal `json:"sellprice"`
	PurchasePrice  decimal.Decimal `json:"purchaseprice"`
	AvailableStock decimal.Decimal `json:"availablestock"`
}

// ZortoutWarehouse is one warehouse row from the warehouse listing.
type ZortoutWarehouse struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type zortoutWarehouseListResponse struct {
	zortoutEnvelope
	List []ZortoutWarehouse `json:"list"`
}

type zortoutStock struct {
	SKU   string `json:"sku"`
	Stock int    `json:"stock"`
}
