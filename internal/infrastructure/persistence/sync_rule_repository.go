package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormSyncRuleRepository implements binding.RuleRepository using GORM
type GormSyncRuleRepository struct {
	db *gorm.DB
}

// NewGormSyncRuleRepository creates a new GormSyncRuleRepository
func NewGormSyncRuleRepository(db *gorm.DB) *GormSyncRuleRepository {
	return &GormSyncRuleRepository{db: db}
}

// ListActive returns active rules ordered by priority descending. Ties break
// by creation order so rule matching is deterministic.
func (r *GormSyncRuleRepository) ListActive(ctx context.Context) ([]*binding.SyncRule, error) {
	var ruleModels []models.SyncRuleModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("priority DESC").
		Order("created_at ASC").
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}
	rules := make([]*binding.SyncRule, len(ruleModels))
	for i := range ruleModels {
		rules[i] = ruleModels[i].ToDomain()
	}
	return rules, nil
}

// FindByID finds a rule by its ID
func (r *GormSyncRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*binding.SyncRule, error) {
	var model models.SyncRuleModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, binding.ErrBindingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a rule
func (r *GormSyncRuleRepository) Save(ctx context.Context, rule *binding.SyncRule) error {
	model := models.SyncRuleModelFromDomain(rule)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete removes a rule by ID
func (r *GormSyncRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.SyncRuleModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return binding.ErrBindingNotFound
	}
	return nil
}

// Ensure GormSyncRuleRepository implements binding.RuleRepository
var _ binding.RuleRepository = (*GormSyncRuleRepository)(nil)
