package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormBindingRepository implements binding.Repository using GORM
type GormBindingRepository struct {
	db *gorm.DB
}

// NewGormBindingRepository creates a new GormBindingRepository
func NewGormBindingRepository(db *gorm.DB) *GormBindingRepository {
	return &GormBindingRepository{db: db}
}

// FindByID finds a binding by its ID
func (r *GormBindingRepository) FindByID(ctx context.Context, id uuid.UUID) (*binding.ProductBinding, error) {
	var model models.ProductBindingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, binding.ErrBindingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads a set of bindings; missing IDs are skipped silently
func (r *GormBindingRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*binding.ProductBinding, error) {
	if len(ids) == 0 {
		return []*binding.ProductBinding{}, nil
	}
	var bindingModels []models.ProductBindingModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}
	return bindingsToDomain(bindingModels), nil
}

// FindBySKUs returns existing bindings for a shop keyed by SKU
func (r *GormBindingRepository) FindBySKUs(ctx context.Context, shopID uuid.UUID, skus []string) (map[string]*binding.ProductBinding, error) {
	result := make(map[string]*binding.ProductBinding, len(skus))
	if len(skus) == 0 {
		return result, nil
	}
	var bindingModels []models.ProductBindingModel
	if err := r.db.WithContext(ctx).
		Where("shop_id = ? AND external_sku IN ?", shopID, skus).
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}
	for i := range bindingModels {
		b := bindingModels[i].ToDomain()
		result[b.ExternalSKU] = b
	}
	return result, nil
}

// ListPushable lists active, non-excluded bindings with a product reference
// for one shop
func (r *GormBindingRepository) ListPushable(ctx context.Context, shopID uuid.UUID) ([]*binding.ProductBinding, error) {
	var bindingModels []models.ProductBindingModel
	if err := r.db.WithContext(ctx).
		Where("shop_id = ? AND active = ? AND exclude_push = ? AND product_id IS NOT NULL", shopID, true, false).
		Order("external_sku ASC").
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}
	return bindingsToDomain(bindingModels), nil
}

// ListPushableByProducts finds pushable bindings referencing any of the given
// products across all shops
func (r *GormBindingRepository) ListPushableByProducts(ctx context.Context, productIDs []uuid.UUID) ([]*binding.ProductBinding, error) {
	if len(productIDs) == 0 {
		return []*binding.ProductBinding{}, nil
	}
	var bindingModels []models.ProductBindingModel
	if err := r.db.WithContext(ctx).
		Where("product_id IN ? AND active = ? AND exclude_push = ?", productIDs, true, false).
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}
	return bindingsToDomain(bindingModels), nil
}

// Save creates or updates a binding
func (r *GormBindingRepository) Save(ctx context.Context, b *binding.ProductBinding) error {
	model := models.ProductBindingModelFromDomain(b)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveBulk upserts bindings in one write; used by the product import
func (r *GormBindingRepository) SaveBulk(ctx context.Context, bindings []*binding.ProductBinding) error {
	if len(bindings) == 0 {
		return nil
	}
	bindingModels := make([]*models.ProductBindingModel, len(bindings))
	for i, b := range bindings {
		bindingModels[i] = models.ProductBindingModelFromDomain(b)
	}
	return r.db.WithContext(ctx).Save(bindingModels).Error
}

// Delete removes a binding by ID
func (r *GormBindingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ProductBindingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return binding.ErrBindingNotFound
	}
	return nil
}

func bindingsToDomain(bindingModels []models.ProductBindingModel) []*binding.ProductBinding {
	bindings := make([]*binding.ProductBinding, len(bindingModels))
	for i := range bindingModels {
		bindings[i] = bindingModels[i].ToDomain()
	}
	return bindings
}

// Ensure GormBindingRepository implements binding.Repository
var _ binding.Repository = (*GormBindingRepository)(nil)
