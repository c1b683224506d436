package channel

import (
	"context"

	"github.com/shopspring/decimal"
)

// Optional adapter capabilities. Executors type-assert for these; channels
// that do not expose the capability simply do not implement the interface.

// FeedProduct is one row of an inventory-master product feed.
type FeedProduct struct {
	SKU           string
	Name          string
	SellPrice     decimal.Decimal
	CostPrice     decimal.Decimal
	OnHand        decimal.Decimal
	WarehouseCode string
}

// FeedOptions narrows a product feed pull.
type FeedOptions struct {
	// SKUs restricts the feed to the given SKUs when non-empty
	SKUs []string
	// WarehouseCode restricts stock figures to one warehouse
	WarehouseCode string
}

// ProductFeed is implemented by adapters whose channel is an inventory
// master (Zortout). Pages are 1-indexed.
type ProductFeed interface {
	// FetchProductPage returns one page of the feed plus the total row
	// count reported by the platform.
	FetchProductPage(ctx context.Context, page, pageSize int, opts FeedOptions) ([]FeedProduct, int, error)
}

// RemoteProduct is one product row from a channel catalog listing.
type RemoteProduct struct {
	ID       int64
	ParentID int64
	SKU      string
	Name     string
	// Variable is true for parent products that carry variations
	Variable bool
}

// CatalogLister is implemented by adapters that can enumerate the remote
// catalog (WooCommerce product import). Pages are 1-indexed; hasMore
// reports whether another page exists.
type CatalogLister interface {
	ListProductPage(ctx context.Context, page int) (products []RemoteProduct, hasMore bool, err error)

	// ListVariations expands one variable product into variation rows.
	ListVariations(ctx context.Context, parentID int64) ([]RemoteProduct, error)
}
