package channel

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrShopNotFound          = errors.New("channel: shop not found")
	ErrShopMissingExternalID = errors.New("channel: external shop ID is required")
	ErrShopDuplicate         = errors.New("channel: shop already exists for this account")
)

// Shop is one selling outlet under an account. (AccountID, ExternalShopID)
// is unique. WooCommerce and Zortout accounts carry exactly one
// auto-provisioned shop.
type Shop struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	ExternalShopID string
	Name           string
	Timezone       string
	WarehouseID    *uuid.UUID
	SalesTeamID    *uuid.UUID

	// LastOrderSyncAt is the upper bound of the last successful order pull
	LastOrderSyncAt *time.Time
	// LastStockSyncAt is when stock was last pushed for this shop
	LastStockSyncAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewShop creates a shop under an account.
func NewShop(accountID uuid.UUID, externalShopID, name string) (*Shop, error) {
	if externalShopID == "" {
		return nil, ErrShopMissingExternalID
	}
	now := time.Now()
	return &Shop{
		ID:             uuid.New(),
		AccountID:      accountID,
		ExternalShopID: externalShopID,
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// OrderWindowStart returns the lower bound for the next order pull:
// the last successful sync point, or now minus the lookback on first pull.
func (s *Shop) OrderWindowStart(now time.Time, lookback time.Duration) time.Time {
	if s.LastOrderSyncAt != nil {
		return *s.LastOrderSyncAt
	}
	return now.Add(-lookback)
}

// RecordOrderSync advances the order sync point to the window's upper bound.
func (s *Shop) RecordOrderSync(until time.Time) {
	t := until
	s.LastOrderSyncAt = &t
	s.UpdatedAt = time.Now()
}

// RecordStockSync records a completed stock push.
func (s *Shop) RecordStockSync(at time.Time) {
	t := at
	s.LastStockSyncAt = &t
	s.UpdatedAt = time.Now()
}
