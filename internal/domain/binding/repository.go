package binding

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for product bindings.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ProductBinding, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*ProductBinding, error)

	// FindBySKUs returns existing bindings for a shop keyed by SKU.
	FindBySKUs(ctx context.Context, shopID uuid.UUID, skus []string) (map[string]*ProductBinding, error)

	// ListPushable lists active, non-excluded bindings for a shop.
	ListPushable(ctx context.Context, shopID uuid.UUID) ([]*ProductBinding, error)

	// ListPushableByProducts finds pushable bindings referencing any of the
	// given products, across all shops (stock-change trigger fan-in).
	ListPushableByProducts(ctx context.Context, productIDs []uuid.UUID) ([]*ProductBinding, error)

	Save(ctx context.Context, b *ProductBinding) error

	// SaveBulk upserts bindings in groups; used by the product import.
	SaveBulk(ctx context.Context, bindings []*ProductBinding) error

	Delete(ctx context.Context, id uuid.UUID) error
}

// RuleRepository is the persistence port for sync rules.
type RuleRepository interface {
	// ListActive returns active rules ordered by priority descending.
	ListActive(ctx context.Context) ([]*SyncRule, error)
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRule, error)
	Save(ctx context.Context, r *SyncRule) error
	Delete(ctx context.Context, id uuid.UUID) error
}
