package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormShopRepository implements channel.ShopRepository using GORM
type GormShopRepository struct {
	db *gorm.DB
}

// NewGormShopRepository creates a new GormShopRepository
func NewGormShopRepository(db *gorm.DB) *GormShopRepository {
	return &GormShopRepository{db: db}
}

// FindByID finds a shop by its ID
func (r *GormShopRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.Shop, error) {
	var model models.ShopModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrShopNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalID finds a shop by its external ID within an account
func (r *GormShopRepository) FindByExternalID(ctx context.Context, accountID uuid.UUID, externalShopID string) (*channel.Shop, error) {
	var model models.ShopModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND external_shop_id = ?", accountID, externalShopID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrShopNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByAccount lists all shops under an account
func (r *GormShopRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*channel.Shop, error) {
	var shopModels []models.ShopModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&shopModels).Error; err != nil {
		return nil, err
	}
	shops := make([]*channel.Shop, len(shopModels))
	for i := range shopModels {
		shops[i] = shopModels[i].ToDomain()
	}
	return shops, nil
}

// Save creates or updates a shop
func (r *GormShopRepository) Save(ctx context.Context, s *channel.Shop) error {
	model := models.ShopModelFromDomain(s)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete removes a shop by ID
func (r *GormShopRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ShopModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return channel.ErrShopNotFound
	}
	return nil
}

// Ensure GormShopRepository implements channel.ShopRepository
var _ channel.ShopRepository = (*GormShopRepository)(nil)
