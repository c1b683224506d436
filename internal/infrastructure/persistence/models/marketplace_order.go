package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelhub/backend/internal/domain/order"
)

// MarketplaceOrderModel is the persistence model for the MarketplaceOrder
// entity. (ShopID, ExternalOrderID) is unique. The raw channel payload is
// stored verbatim for replay.
type MarketplaceOrderModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	ShopID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_mp_order_shop_external,priority:1"`
	ExternalOrderID string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_mp_order_shop_external,priority:2"`
	OrderDate       time.Time       `gorm:"not null;index"`
	CustomerName    string          `gorm:"type:varchar(255)"`
	CustomerEmail   string          `gorm:"type:varchar(255)"`
	CustomerPhone   string          `gorm:"type:varchar(64)"`
	CustomerAddress string          `gorm:"type:text"`
	AmountTotal     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency        string          `gorm:"type:varchar(10)"`
	State           order.State     `gorm:"type:varchar(20);not null;default:'pending';index"`
	RawPayload      string          `gorm:"type:jsonb;column:raw_payload"`
	SaleOrderID     *uuid.UUID      `gorm:"type:uuid;index"`
	LastSyncAt      *time.Time
	SyncError       string `gorm:"type:text"`

	Lines []MarketplaceOrderLineModel `gorm:"foreignKey:OrderID;references:ID"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderModel) TableName() string {
	return "marketplace_orders"
}

// MarketplaceOrderLineModel is the persistence model for one order line.
type MarketplaceOrderLineModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	ExternalSKU     string          `gorm:"type:varchar(255);index"`
	ProductName     string          `gorm:"type:varchar(500)"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PriceUnit       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RawData         string          `gorm:"type:jsonb;column:raw_data"`
	SaleOrderLineID *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderLineModel) TableName() string {
	return "marketplace_order_lines"
}

// ToDomain converts the persistence model to a domain MarketplaceOrder.
func (m *MarketplaceOrderModel) ToDomain() *order.MarketplaceOrder {
	o := &order.MarketplaceOrder{
		ID:              m.ID,
		ShopID:          m.ShopID,
		ExternalOrderID: m.ExternalOrderID,
		OrderDate:       m.OrderDate,
		CustomerName:    m.CustomerName,
		CustomerEmail:   m.CustomerEmail,
		CustomerPhone:   m.CustomerPhone,
		CustomerAddress: m.CustomerAddress,
		AmountTotal:     m.AmountTotal,
		Currency:        m.Currency,
		State:           m.State,
		RawPayload:      m.RawPayload,
		SaleOrderID:     m.SaleOrderID,
		LastSyncAt:      m.LastSyncAt,
		SyncError:       m.SyncError,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	for i := range m.Lines {
		o.Lines = append(o.Lines, *m.Lines[i].ToDomain())
	}
	return o
}

// FromDomain populates the persistence model from a domain MarketplaceOrder.
func (m *MarketplaceOrderModel) FromDomain(o *order.MarketplaceOrder) {
	m.ID = o.ID
	m.ShopID = o.ShopID
	m.ExternalOrderID = o.ExternalOrderID
	m.OrderDate = o.OrderDate
	m.CustomerName = o.CustomerName
	m.CustomerEmail = o.CustomerEmail
	m.CustomerPhone = o.CustomerPhone
	m.CustomerAddress = o.CustomerAddress
	m.AmountTotal = o.AmountTotal
	m.Currency = o.Currency
	m.State = o.State
	m.RawPayload = o.RawPayload
	m.SaleOrderID = o.SaleOrderID
	m.LastSyncAt = o.LastSyncAt
	m.SyncError = o.SyncError
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt

	m.Lines = m.Lines[:0]
	for i := range o.Lines {
		lm := MarketplaceOrderLineModel{}
		lm.FromDomain(&o.Lines[i])
		m.Lines = append(m.Lines, lm)
	}
}

// MarketplaceOrderModelFromDomain creates a persistence model from a domain
// MarketplaceOrder.
func MarketplaceOrderModelFromDomain(o *order.MarketplaceOrder) *MarketplaceOrderModel {
	m := &MarketplaceOrderModel{}
	m.FromDomain(o)
	return m
}

// ToDomain converts the persistence model to a domain MarketplaceOrderLine.
func (m *MarketplaceOrderLineModel) ToDomain() *order.MarketplaceOrderLine {
	return &order.MarketplaceOrderLine{
		ID:              m.ID,
		OrderID:         m.OrderID,
		ExternalSKU:     m.ExternalSKU,
		ProductName:     m.ProductName,
		Quantity:        m.Quantity,
		PriceUnit:       m.PriceUnit,
		RawData:         m.RawData,
		SaleOrderLineID: m.SaleOrderLineID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain MarketplaceOrderLine.
func (m *MarketplaceOrderLineModel) FromDomain(l *order.MarketplaceOrderLine) {
	m.ID = l.ID
	m.OrderID = l.OrderID
	m.ExternalSKU = l.ExternalSKU
	m.ProductName = l.ProductName
	m.Quantity = l.Quantity
	m.PriceUnit = l.PriceUnit
	m.RawData = l.RawData
	m.SaleOrderLineID = l.SaleOrderLineID
	m.CreatedAt = l.CreatedAt
	m.UpdatedAt = l.UpdatedAt
}
