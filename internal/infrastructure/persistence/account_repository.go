package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormAccountRepository implements channel.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByID finds an account by its ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListActive lists all active accounts across channels
func (r *GormAccountRepository) ListActive(ctx context.Context) ([]*channel.Account, error) {
	var accountModels []models.AccountModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&accountModels).Error; err != nil {
		return nil, err
	}
	return accountsToDomain(accountModels), nil
}

// ListByChannel lists accounts of one channel, active or not
func (r *GormAccountRepository) ListByChannel(ctx context.Context, code channel.Code) ([]*channel.Account, error) {
	var accountModels []models.AccountModel
	if err := r.db.WithContext(ctx).
		Where("channel = ?", code).
		Order("created_at ASC").
		Find(&accountModels).Error; err != nil {
		return nil, err
	}
	return accountsToDomain(accountModels), nil
}

// Save creates or updates an account
func (r *GormAccountRepository) Save(ctx context.Context, a *channel.Account) error {
	model := models.AccountModelFromDomain(a)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveTokens persists only the token fields and the revocation flag so a
// concurrent configuration edit cannot be clobbered by a refresh.
func (r *GormAccountRepository) SaveTokens(ctx context.Context, a *channel.Account) error {
	result := r.db.WithContext(ctx).
		Model(&models.AccountModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"access_token":     a.AccessToken,
			"refresh_token":    a.RefreshToken,
			"token_expires_at": a.TokenExpiresAt,
			"auth_revoked":     a.AuthRevoked,
			"updated_at":       a.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return channel.ErrAccountNotFound
	}
	return nil
}

// Delete removes an account by ID
func (r *GormAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.AccountModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return channel.ErrAccountNotFound
	}
	return nil
}

func accountsToDomain(accountModels []models.AccountModel) []*channel.Account {
	accounts := make([]*channel.Account, len(accountModels))
	for i := range accountModels {
		accounts[i] = accountModels[i].ToDomain()
	}
	return accounts
}

// Ensure GormAccountRepository implements channel.AccountRepository
var _ channel.AccountRepository = (*GormAccountRepository)(nil)
