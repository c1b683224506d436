package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for marketplace orders.
type Repository interface {
	// FindByID finds an order by its ID, including lines.
	FindByID(ctx context.Context, id uuid.UUID) (*MarketplaceOrder, error)

	// FindByExternalIDs returns the stored orders for a shop keyed by
	// external order ID. Missing IDs are simply absent from the map.
	FindByExternalIDs(ctx context.Context, shopID uuid.UUID, externalIDs []string) (map[string]*MarketplaceOrder, error)

	// Save inserts or updates an order together with its lines.
	Save(ctx context.Context, o *MarketplaceOrder) error

	// SaveBulk inserts a batch of new orders in one write.
	SaveBulk(ctx context.Context, orders []*MarketplaceOrder) error

	// ListByShopAndState lists orders for a shop filtered by state.
	ListByShopAndState(ctx context.Context, shopID uuid.UUID, state State, limit int) ([]*MarketplaceOrder, error)
}
