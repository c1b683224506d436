package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/order"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormMarketplaceOrderRepository implements order.Repository using GORM
type GormMarketplaceOrderRepository struct {
	db *gorm.DB
}

// NewGormMarketplaceOrderRepository creates a new GormMarketplaceOrderRepository
func NewGormMarketplaceOrderRepository(db *gorm.DB) *GormMarketplaceOrderRepository {
	return &GormMarketplaceOrderRepository{db: db}
}

// FindByID finds an order by its ID, including lines
func (r *GormMarketplaceOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.MarketplaceOrder, error) {
	var model models.MarketplaceOrderModel
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalIDs returns the stored orders for a shop keyed by external
// order ID. Missing IDs are simply absent from the map.
func (r *GormMarketplaceOrderRepository) FindByExternalIDs(ctx context.Context, shopID uuid.UUID, externalIDs []string) (map[string]*order.MarketplaceOrder, error) {
	result := make(map[string]*order.MarketplaceOrder, len(externalIDs))
	if len(externalIDs) == 0 {
		return result, nil
	}
	var orderModels []models.MarketplaceOrderModel
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("shop_id = ? AND external_order_id IN ?", shopID, externalIDs).
		Find(&orderModels).Error; err != nil {
		return nil, err
	}
	for i := range orderModels {
		o := orderModels[i].ToDomain()
		result[o.ExternalOrderID] = o
	}
	return result, nil
}

// Save inserts or updates an order together with its lines. Lines are
// replaced wholesale so a re-pull never leaves stale line rows behind.
func (r *GormMarketplaceOrderRepository) Save(ctx context.Context, o *order.MarketplaceOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveOrderTx(tx, o)
	})
}

// SaveBulk inserts a batch of orders in one transaction
func (r *GormMarketplaceOrderRepository) SaveBulk(ctx context.Context, orders []*order.MarketplaceOrder) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range orders {
			if err := saveOrderTx(tx, o); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByShopAndState lists orders for a shop filtered by state, oldest first
func (r *GormMarketplaceOrderRepository) ListByShopAndState(ctx context.Context, shopID uuid.UUID, state order.State, limit int) ([]*order.MarketplaceOrder, error) {
	query := r.db.WithContext(ctx).
		Preload("Lines").
		Where("shop_id = ? AND state = ?", shopID, state).
		Order("order_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var orderModels []models.MarketplaceOrderModel
	if err := query.Find(&orderModels).Error; err != nil {
		return nil, err
	}
	orders := make([]*order.MarketplaceOrder, len(orderModels))
	for i := range orderModels {
		orders[i] = orderModels[i].ToDomain()
	}
	return orders, nil
}

func saveOrderTx(tx *gorm.DB, o *order.MarketplaceOrder) error {
	model := models.MarketplaceOrderModelFromDomain(o)
	lines := model.Lines
	model.Lines = nil

	if err := tx.Save(model).Error; err != nil {
		return err
	}
	if err := tx.Delete(&models.MarketplaceOrderLineModel{}, "order_id = ?", model.ID).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return tx.Create(&lines).Error
}

// Ensure GormMarketplaceOrderRepository implements order.Repository
var _ order.Repository = (*GormMarketplaceOrderRepository)(nil)
