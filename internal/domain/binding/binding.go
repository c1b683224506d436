package binding

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBindingNotFound    = errors.New("binding: not found")
	ErrBindingMissingSKU  = errors.New("binding: external SKU is required")
	ErrBindingMissingShop = errors.New("binding: shop ID is required")
	ErrBindingDuplicate   = errors.New("binding: SKU already bound for this shop")
)

// ProductBinding maps an external SKU on one shop to an internal product.
// (ShopID, ExternalSKU) is unique. The product reference is weak: deleting
// the internal product leaves the binding inert rather than cascading.
type ProductBinding struct {
	ID     uuid.UUID
	ShopID uuid.UUID

	// ProductID is the internal product; nil for inert bindings
	ProductID *uuid.UUID

	ExternalSKU string
	// ExternalProductID caches the remote ID; "parent:variant" for
	// variation products
	ExternalProductID string

	Active      bool
	ExcludePush bool

	// Per-binding overrides; nil falls through to sync rules and account
	// defaults
	BufferOverride *int
	MinOverride    *int

	LastStockPushAt  *time.Time
	CurrentOnlineQty *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProductBinding creates an active binding for a shop.
func NewProductBinding(shopID uuid.UUID, externalSKU string, productID *uuid.UUID) (*ProductBinding, error) {
	if shopID == uuid.Nil {
		return nil, ErrBindingMissingShop
	}
	if externalSKU == "" {
		return nil, ErrBindingMissingSKU
	}
	now := time.Now()
	return &ProductBinding{
		ID:          uuid.New(),
		ShopID:      shopID,
		ProductID:   productID,
		ExternalSKU: externalSKU,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Pushable returns true if the binding participates in stock pushes.
func (b *ProductBinding) Pushable() bool {
	return b.Active && !b.ExcludePush && b.ProductID != nil
}

// RecordPush caches the pushed quantity and, when the channel resolved a
// remote ID during the push, stores it for the next call.
func (b *ProductBinding) RecordPush(qty int, externalProductID string, at time.Time) {
	q := qty
	b.CurrentOnlineQty = &q
	t := at
	b.LastStockPushAt = &t
	if externalProductID != "" {
		b.ExternalProductID = externalProductID
	}
	b.UpdatedAt = at
}
