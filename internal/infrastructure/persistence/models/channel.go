package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/channelhub/backend/internal/domain/channel"
)

// AccountModel is the persistence model for the channel Account entity.
type AccountModel struct {
	ID        uuid.UUID    `gorm:"type:uuid;primary_key"`
	Name      string       `gorm:"type:varchar(255);not null"`
	Channel   channel.Code `gorm:"type:varchar(20);not null;index"`
	CompanyID *uuid.UUID   `gorm:"type:uuid;index"`
	Active    bool         `gorm:"not null;default:true;index"`

	AuthRevoked bool `gorm:"not null;default:false"`

	ClientID     string `gorm:"type:varchar(255)"`
	ClientSecret string `gorm:"type:varchar(255)"`
	SecondaryKey string `gorm:"type:varchar(255)"`

	AccessToken    string     `gorm:"type:text"`
	RefreshToken   string     `gorm:"type:text"`
	TokenExpiresAt *time.Time `gorm:"index"`

	PullIntervalMin      int `gorm:"not null;default:15"`
	PushIntervalMin      int `gorm:"not null;default:30"`
	StockSyncIntervalMin int `gorm:"not null;default:60"`

	PushBatchSize      int `gorm:"not null;default:50"`
	StockSyncBatchSize int `gorm:"not null;default:500"`
	MaxConcurrentJobs  int `gorm:"not null;default:3"`

	StockLocationID *uuid.UUID `gorm:"type:uuid"`
	PushBuffer      int        `gorm:"not null;default:0"`
	MinOnlineQty    int        `gorm:"not null;default:0"`

	AutoConfirmOrders bool `gorm:"not null;default:false"`

	RetentionDays      int `gorm:"not null;default:30"`
	RetentionKeepCount int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account entity.
func (m *AccountModel) ToDomain() *channel.Account {
	return &channel.Account{
		ID:                   m.ID,
		Name:                 m.Name,
		Channel:              m.Channel,
		CompanyID:            m.CompanyID,
		Active:               m.Active,
		AuthRevoked:          m.AuthRevoked,
		ClientID:             m.ClientID,
		ClientSecret:         m.ClientSecret,
		SecondaryKey:         m.SecondaryKey,
		AccessToken:          m.AccessToken,
		RefreshToken:         m.RefreshToken,
		TokenExpiresAt:       m.TokenExpiresAt,
		PullIntervalMin:      m.PullIntervalMin,
		PushIntervalMin:      m.PushIntervalMin,
		StockSyncIntervalMin: m.StockSyncIntervalMin,
		PushBatchSize:        m.PushBatchSize,
		StockSyncBatchSize:   m.StockSyncBatchSize,
		MaxConcurrentJobs:    m.MaxConcurrentJobs,
		StockLocationID:      m.StockLocationID,
		PushBuffer:           m.PushBuffer,
		MinOnlineQty:         m.MinOnlineQty,
		AutoConfirmOrders:    m.AutoConfirmOrders,
		RetentionDays:        m.RetentionDays,
		RetentionKeepCount:   m.RetentionKeepCount,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Account entity.
func (m *AccountModel) FromDomain(a *channel.Account) {
	m.ID = a.ID
	m.Name = a.Name
	m.Channel = a.Channel
	m.CompanyID = a.CompanyID
	m.Active = a.Active
	m.AuthRevoked = a.AuthRevoked
	m.ClientID = a.ClientID
	m.ClientSecret = a.ClientSecret
	m.SecondaryKey = a.SecondaryKey
	m.AccessToken = a.AccessToken
	m.RefreshToken = a.RefreshToken
	m.TokenExpiresAt = a.TokenExpiresAt
	m.PullIntervalMin = a.PullIntervalMin
	m.PushIntervalMin = a.PushIntervalMin
	m.StockSyncIntervalMin = a.StockSyncIntervalMin
	m.PushBatchSize = a.PushBatchSize
	m.StockSyncBatchSize = a.StockSyncBatchSize
	m.MaxConcurrentJobs = a.MaxConcurrentJobs
	m.StockLocationID = a.StockLocationID
	m.PushBuffer = a.PushBuffer
	m.MinOnlineQty = a.MinOnlineQty
	m.AutoConfirmOrders = a.AutoConfirmOrders
	m.RetentionDays = a.RetentionDays
	m.RetentionKeepCount = a.RetentionKeepCount
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// AccountModelFromDomain creates a persistence model from a domain Account.
func AccountModelFromDomain(a *channel.Account) *AccountModel {
	m := &AccountModel{}
	m.FromDomain(a)
	return m
}

// ShopModel is the persistence model for the channel Shop entity.
// (AccountID, ExternalShopID) is unique.
type ShopModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	AccountID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_shop_account_external,priority:1"`
	ExternalShopID string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_shop_account_external,priority:2"`
	Name           string     `gorm:"type:varchar(255)"`
	Timezone       string     `gorm:"type:varchar(64)"`
	WarehouseID    *uuid.UUID `gorm:"type:uuid"`
	SalesTeamID    *uuid.UUID `gorm:"type:uuid"`

	LastOrderSyncAt *time.Time
	LastStockSyncAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ShopModel) TableName() string {
	return "shops"
}

// ToDomain converts the persistence model to a domain Shop entity.
func (m *ShopModel) ToDomain() *channel.Shop {
	return &channel.Shop{
		ID:              m.ID,
		AccountID:       m.AccountID,
		ExternalShopID:  m.ExternalShopID,
		Name:            m.Name,
		Timezone:        m.Timezone,
		WarehouseID:     m.WarehouseID,
		SalesTeamID:     m.SalesTeamID,
		LastOrderSyncAt: m.LastOrderSyncAt,
		LastStockSyncAt: m.LastStockSyncAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Shop entity.
func (m *ShopModel) FromDomain(s *channel.Shop) {
	m.ID = s.ID
	m.AccountID = s.AccountID
	m.ExternalShopID = s.ExternalShopID
	m.Name = s.Name
	m.Timezone = s.Timezone
	m.WarehouseID = s.WarehouseID
	m.SalesTeamID = s.SalesTeamID
	m.LastOrderSyncAt = s.LastOrderSyncAt
	m.LastStockSyncAt = s.LastStockSyncAt
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// ShopModelFromDomain creates a persistence model from a domain Shop.
func ShopModelFromDomain(s *channel.Shop) *ShopModel {
	m := &ShopModel{}
	m.FromDomain(s)
	return m
}
