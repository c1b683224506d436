package channel

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository is the persistence port for accounts.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ListActive(ctx context.Context) ([]*Account, error)
	ListByChannel(ctx context.Context, code Code) ([]*Account, error)
	Save(ctx context.Context, a *Account) error

	// SaveTokens persists only the token fields and the revocation flag,
	// atomically. Token refresh goes through here so a concurrent
	// configuration edit cannot be clobbered.
	SaveTokens(ctx context.Context, a *Account) error

	Delete(ctx context.Context, id uuid.UUID) error
}

// ShopRepository is the persistence port for shops.
type ShopRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Shop, error)
	FindByExternalID(ctx context.Context, accountID uuid.UUID, externalShopID string) (*Shop, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Shop, error)
	Save(ctx context.Context, s *Shop) error
	Delete(ctx context.Context, id uuid.UUID) error
}
