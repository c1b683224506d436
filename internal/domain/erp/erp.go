// Package erp defines the ports the integration core consumes from the
// host ERP. The ERP owns products, partners, stock and sale orders; the
// core only ever talks to these interfaces and never reaches into the
// host's storage directly.
package erp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("erp: product not found")
	ErrPartnerNotFound   = errors.New("erp: partner not found")
	ErrSaleOrderNotFound = errors.New("erp: sale order not found")
	ErrLocationNotFound  = errors.New("erp: stock location not found")
)

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// Product is the host ERP's product as the core sees it.
type Product struct {
	ID uuid.UUID
	// DefaultCode is the internal SKU
	DefaultCode string
	Name        string
	CompanyID   *uuid.UUID
	// Type should be "storable" for anything the hub pushes stock for
	Type     string
	Tracking string
	// IsStorable mirrors the host flag that enables quantity tracking
	IsStorable    bool
	ListPrice     decimal.Decimal
	StandardPrice decimal.Decimal
	CategoryID    *uuid.UUID
	Category      string
	Tags          []string
}

// NewStorableProduct builds a product record the way marketplace imports
// create them: storable, untracked, priced from the feed.
func NewStorableProduct(sku, name string, companyID *uuid.UUID, listPrice, costPrice decimal.Decimal) *Product {
	return &Product{
		ID:            uuid.New(),
		DefaultCode:   sku,
		Name:          name,
		CompanyID:     companyID,
		Type:          "storable",
		Tracking:      "none",
		IsStorable:    true,
		ListPrice:     listPrice,
		StandardPrice: costPrice,
	}
}

// ProductRepository is the catalog port.
type ProductRepository interface {
	// FindBySKUs resolves SKUs to products. When a SKU exists both with a
	// matching company and without any company, the company match wins.
	FindBySKUs(ctx context.Context, skus []string, companyID *uuid.UUID) (map[string]*Product, error)

	// FindByIDs loads products by ID; missing IDs are absent from the map.
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)

	// CreateBulk inserts products in one call, ensuring storable settings
	// and company-default taxes.
	CreateBulk(ctx context.Context, products []*Product) error

	// EnsureStorable forces type=storable, tracking=none on an existing
	// product (Zortout ingestion requirement).
	EnsureStorable(ctx context.Context, productID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Partners
// ---------------------------------------------------------------------------

// Partner is a customer record in the host ERP.
type Partner struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Street    string
	CompanyID *uuid.UUID
}

// PartnerRepository is the customer port. Matching is bulk and
// company-scoped; the pipeline's name → email → phone priority is built on
// these lookups.
type PartnerRepository interface {
	// FindByNames/FindByEmails/FindByPhones return matches keyed by the
	// cleansed lookup value. Results include company-less partners.
	FindByNames(ctx context.Context, names []string) (map[string][]*Partner, error)
	FindByEmails(ctx context.Context, emails []string) (map[string][]*Partner, error)
	FindByPhones(ctx context.Context, phones []string) (map[string][]*Partner, error)

	// CreateBulk inserts missing partners in one call.
	CreateBulk(ctx context.Context, partners []*Partner) error

	// AdoptCompany assigns a company to a previously company-less partner.
	AdoptCompany(ctx context.Context, partnerID uuid.UUID, companyID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Sale orders
// ---------------------------------------------------------------------------

// SaleOrderState is the subset of host order states the core reasons about.
type SaleOrderState string

const (
	SaleOrderDraft     SaleOrderState = "draft"
	SaleOrderConfirmed SaleOrderState = "confirmed"
	SaleOrderCancelled SaleOrderState = "cancelled"
)

// SaleOrder is a sale order create payload / record.
type SaleOrder struct {
	ID        uuid.UUID
	Name      string
	Origin    string
	PartnerID uuid.UUID
	CompanyID *uuid.UUID
	TeamID    *uuid.UUID
	State     SaleOrderState
	DateOrder time.Time
	Lines     []SaleOrderLine
}

// SaleOrderLine is one line of a sale order.
type SaleOrderLine struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Sequence  int
	ProductID uuid.UUID
	Name      string
	Quantity  decimal.Decimal
	PriceUnit decimal.Decimal
}

// SaleOrderRepository is the trade port.
type SaleOrderRepository interface {
	// FindByOrigins returns non-cancelled orders keyed by origin, for the
	// idempotent re-link guard.
	FindByOrigins(ctx context.Context, origins []string) (map[string]*SaleOrder, error)

	// CreateBulk inserts orders (with lines) in one call. The given name
	// is preserved even where the host would normally assign a sequence.
	CreateBulk(ctx context.Context, orders []*SaleOrder) error

	// Confirm confirms one order (account auto-confirm flag).
	Confirm(ctx context.Context, orderID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Stock
// ---------------------------------------------------------------------------

// StockRepository is the inventory port.
type StockRepository interface {
	// OnHand reads the on-hand quantity of one product at one location.
	OnHand(ctx context.Context, productID, locationID uuid.UUID) (decimal.Decimal, error)

	// OnHandBulk reads on-hand for many products at one location.
	OnHandBulk(ctx context.Context, productIDs []uuid.UUID, locationID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)

	// ApplyAdjustment writes an inventory adjustment delta for a product
	// at a location (Zortout ingestion).
	ApplyAdjustment(ctx context.Context, productID, locationID uuid.UUID, delta decimal.Decimal) error

	// DefaultLocation resolves the first internal location of a company.
	DefaultLocation(ctx context.Context, companyID *uuid.UUID) (uuid.UUID, error)

	// WarehouseLocation resolves a warehouse's stock location.
	WarehouseLocation(ctx context.Context, warehouseID uuid.UUID) (uuid.UUID, error)
}

// ---------------------------------------------------------------------------
// Audit sidecar
// ---------------------------------------------------------------------------

// AuditLog is a best-effort activity feed. The core never depends on it
// for correctness; failures are logged and swallowed by callers.
type AuditLog interface {
	Post(ctx context.Context, entityRef string, body string) error
}
