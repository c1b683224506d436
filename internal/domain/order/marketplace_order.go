package order

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrOrderNotFound          = errors.New("order: marketplace order not found")
	ErrOrderInvalidTransition = errors.New("order: invalid state transition")
	ErrOrderMissingExternalID = errors.New("order: external order ID is required")
	ErrOrderMissingShop       = errors.New("order: shop ID is required")
)

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// State represents the synchronization state of a marketplace order.
type State string

const (
	// StatePending indicates the order was pulled but not yet materialized
	StatePending State = "pending"
	// StateSynced indicates a sale order was created in the host ERP
	StateSynced State = "synced"
	// StateFailed indicates materialization failed; SyncError carries details
	StateFailed State = "failed"
	// StateCancelled indicates the order was cancelled on the marketplace
	StateCancelled State = "cancelled"
	// StateReturned indicates the order was returned or refunded
	StateReturned State = "returned"
)

// IsValid returns true if the state is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateSynced, StateFailed, StateCancelled, StateReturned:
		return true
	}
	return false
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// NeedsMaterialization returns true if the order should still be turned into
// a sale order. Cancelled and returned orders are recorded but never
// materialized.
func (s State) NeedsMaterialization() bool {
	return s == StatePending || s == StateFailed
}

// ---------------------------------------------------------------------------
// Normalized payloads (adapter output)
// ---------------------------------------------------------------------------

// NormalizedOrder is the channel-independent form of one external order.
// Adapters produce it from raw channel payloads; the materialization
// pipeline consumes it. The raw payload is preserved verbatim for replay.
type NormalizedOrder struct {
	ExternalOrderID string
	Status          State
	OrderDate       time.Time
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Address         string
	AmountTotal     decimal.Decimal
	Currency        string
	Lines           []NormalizedOrderLine
	Raw             json.RawMessage
}

// NormalizedOrderLine is one line of a normalized order.
type NormalizedOrderLine struct {
	ExternalSKU string
	ProductName string
	Quantity    decimal.Decimal
	PriceUnit   decimal.Decimal
	Raw         json.RawMessage
}

// Validate checks the minimal shape the pipeline relies on.
func (o *NormalizedOrder) Validate() error {
	if o.ExternalOrderID == "" {
		return ErrOrderMissingExternalID
	}
	if !o.Status.IsValid() {
		o.Status = StatePending
	}
	return nil
}

// ---------------------------------------------------------------------------
// MarketplaceOrder
// ---------------------------------------------------------------------------

// MarketplaceOrder is the durable record of one external order on one shop.
// (ShopID, ExternalOrderID) is unique.
type MarketplaceOrder struct {
	ID              uuid.UUID
	ShopID          uuid.UUID
	ExternalOrderID string
	OrderDate       time.Time
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerAddress string
	AmountTotal     decimal.Decimal
	Currency        string
	State           State
	RawPayload      string
	SaleOrderID     *uuid.UUID
	LastSyncAt      *time.Time
	SyncError       string
	Lines           []MarketplaceOrderLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MarketplaceOrderLine is one line of a durable marketplace order.
type MarketplaceOrderLine struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	ExternalSKU     string
	ProductName     string
	Quantity        decimal.Decimal
	PriceUnit       decimal.Decimal
	RawData         string
	SaleOrderLineID *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewFromNormalized builds a MarketplaceOrder from a normalized payload.
func NewFromNormalized(shopID uuid.UUID, n *NormalizedOrder) (*MarketplaceOrder, error) {
	if shopID == uuid.Nil {
		return nil, ErrOrderMissingShop
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	o := &MarketplaceOrder{
		ID:              uuid.New(),
		ShopID:          shopID,
		ExternalOrderID: n.ExternalOrderID,
		OrderDate:       n.OrderDate,
		CustomerName:    n.CustomerName,
		CustomerEmail:   n.CustomerEmail,
		CustomerPhone:   n.CustomerPhone,
		CustomerAddress: n.Address,
		AmountTotal:     n.AmountTotal,
		Currency:        n.Currency,
		State:           n.Status,
		RawPayload:      string(n.Raw),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range n.Lines {
		o.Lines = append(o.Lines, MarketplaceOrderLine{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ExternalSKU: line.ExternalSKU,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			PriceUnit:   line.PriceUnit,
			RawData:     string(line.Raw),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return o, nil
}

// RefreshFromNormalized updates a stored order from a re-pulled payload.
// The state only moves for marketplace-side transitions (cancel / return);
// a synced order stays synced.
func (o *MarketplaceOrder) RefreshFromNormalized(n *NormalizedOrder) {
	o.OrderDate = n.OrderDate
	o.AmountTotal = n.AmountTotal
	if n.Currency != "" {
		o.Currency = n.Currency
	}
	if len(n.Raw) > 0 {
		o.RawPayload = string(n.Raw)
	}
	if n.Status == StateCancelled || n.Status == StateReturned {
		o.State = n.Status
	}
	o.UpdatedAt = time.Now()
}

// MarkSynced records a successful materialization.
func (o *MarketplaceOrder) MarkSynced(saleOrderID uuid.UUID, at time.Time) {
	o.State = StateSynced
	o.SaleOrderID = &saleOrderID
	o.LastSyncAt = &at
	o.SyncError = ""
	o.UpdatedAt = at
}

// MarkFailed records a failed materialization with the error message.
func (o *MarketplaceOrder) MarkFailed(reason string, at time.Time) {
	o.State = StateFailed
	o.SyncError = reason
	o.UpdatedAt = at
}

// RecordSyncWarning stores a non-fatal sync error (e.g. a failed
// auto-confirm) without changing the order state.
func (o *MarketplaceOrder) RecordSyncWarning(reason string, at time.Time) {
	o.SyncError = reason
	o.UpdatedAt = at
}
