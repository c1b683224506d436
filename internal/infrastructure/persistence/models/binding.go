package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/channelhub/backend/internal/domain/binding"
)

// ProductBindingModel is the persistence model for the ProductBinding entity.
// (ShopID, ExternalSKU) is unique.
type ProductBindingModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	ShopID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_binding_shop_sku,priority:1"`
	ProductID   *uuid.UUID `gorm:"type:uuid;index"`
	ExternalSKU string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_binding_shop_sku,priority:2;index:idx_binding_sku"`

	ExternalProductID string `gorm:"type:varchar(255)"`

	Active      bool `gorm:"not null;default:true;index"`
	ExcludePush bool `gorm:"not null;default:false"`

	BufferOverride *int
	MinOverride    *int

	LastStockPushAt  *time.Time
	CurrentOnlineQty *int

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductBindingModel) TableName() string {
	return "product_bindings"
}

// ToDomain converts the persistence model to a domain ProductBinding entity.
func (m *ProductBindingModel) ToDomain() *binding.ProductBinding {
	return &binding.ProductBinding{
		ID:                m.ID,
		ShopID:            m.ShopID,
		ProductID:         m.ProductID,
		ExternalSKU:       m.ExternalSKU,
		ExternalProductID: m.ExternalProductID,
		Active:            m.Active,
		ExcludePush:       m.ExcludePush,
		BufferOverride:    m.BufferOverride,
		MinOverride:       m.MinOverride,
		LastStockPushAt:   m.LastStockPushAt,
		CurrentOnlineQty:  m.CurrentOnlineQty,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain ProductBinding entity.
func (m *ProductBindingModel) FromDomain(b *binding.ProductBinding) {
	m.ID = b.ID
	m.ShopID = b.ShopID
	m.ProductID = b.ProductID
	m.ExternalSKU = b.ExternalSKU
	m.ExternalProductID = b.ExternalProductID
	m.Active = b.Active
	m.ExcludePush = b.ExcludePush
	m.BufferOverride = b.BufferOverride
	m.MinOverride = b.MinOverride
	m.LastStockPushAt = b.LastStockPushAt
	m.CurrentOnlineQty = b.CurrentOnlineQty
	m.CreatedAt = b.CreatedAt
	m.UpdatedAt = b.UpdatedAt
}

// ProductBindingModelFromDomain creates a persistence model from a domain ProductBinding.
func ProductBindingModelFromDomain(b *binding.ProductBinding) *ProductBindingModel {
	m := &ProductBindingModel{}
	m.FromDomain(b)
	return m
}

// SyncRuleModel is the persistence model for the SyncRule entity. The list
// predicates are stored as JSON arrays.
type SyncRuleModel struct {
	ID   uuid.UUID `gorm:"type:uuid;primary_key"`
	Name string    `gorm:"type:varchar(255);not null"`

	Scope     binding.RuleScope `gorm:"type:varchar(20);not null"`
	AccountID *uuid.UUID        `gorm:"type:uuid;index"`
	ShopID    *uuid.UUID        `gorm:"type:uuid;index"`
	ProductID *uuid.UUID        `gorm:"type:uuid;index"`

	Priority int `gorm:"not null;default:0;index"`

	BufferQty    int  `gorm:"not null;default:0"`
	MinQty       int  `gorm:"not null;default:0"`
	RoundingStep int  `gorm:"not null;default:0"`
	ExcludePush  bool `gorm:"not null;default:false"`

	CategoriesJSON    string `gorm:"type:jsonb;column:categories;default:'[]'"`
	TagsJSON          string `gorm:"type:jsonb;column:tags;default:'[]'"`
	MinStockCondition *int

	Active    bool      `gorm:"not null;default:true;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRuleModel) TableName() string {
	return "sync_rules"
}

// ToDomain converts the persistence model to a domain SyncRule entity.
func (m *SyncRuleModel) ToDomain() *binding.SyncRule {
	r := &binding.SyncRule{
		ID:                m.ID,
		Name:              m.Name,
		Scope:             m.Scope,
		AccountID:         m.AccountID,
		ShopID:            m.ShopID,
		ProductID:         m.ProductID,
		Priority:          m.Priority,
		BufferQty:         m.BufferQty,
		MinQty:            m.MinQty,
		RoundingStep:      m.RoundingStep,
		ExcludePush:       m.ExcludePush,
		MinStockCondition: m.MinStockCondition,
		Active:            m.Active,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.CategoriesJSON != "" {
		var categories []string
		if err := json.Unmarshal([]byte(m.CategoriesJSON), &categories); err == nil {
			r.Categories = categories
		}
	}
	if m.TagsJSON != "" {
		var tags []string
		if err := json.Unmarshal([]byte(m.TagsJSON), &tags); err == nil {
			r.Tags = tags
		}
	}
	return r
}

// FromDomain populates the persistence model from a domain SyncRule entity.
func (m *SyncRuleModel) FromDomain(r *binding.SyncRule) {
	m.ID = r.ID
	m.Name = r.Name
	m.Scope = r.Scope
	m.AccountID = r.AccountID
	m.ShopID = r.ShopID
	m.ProductID = r.ProductID
	m.Priority = r.Priority
	m.BufferQty = r.BufferQty
	m.MinQty = r.MinQty
	m.RoundingStep = r.RoundingStep
	m.ExcludePush = r.ExcludePush
	m.MinStockCondition = r.MinStockCondition
	m.Active = r.Active
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt

	m.CategoriesJSON = marshalStringList(r.Categories)
	m.TagsJSON = marshalStringList(r.Tags)
}

// SyncRuleModelFromDomain creates a persistence model from a domain SyncRule.
func SyncRuleModelFromDomain(r *binding.SyncRule) *SyncRuleModel {
	m := &SyncRuleModel{}
	m.FromDomain(r)
	return m
}

func marshalStringList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}
