package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelhub/backend/internal/domain/erp"
)

// The erp_* tables mirror the slice of the host schema the hub reads and
// writes: catalog, customers, sale orders and stock. The host owns these
// rows; the hub only ever touches the columns its ports expose.

// ErpProductModel is the persistence model for host products.
type ErpProductModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	DefaultCode string     `gorm:"type:varchar(100);not null;index"`
	Name        string     `gorm:"type:varchar(255);not null"`
	CompanyID   *uuid.UUID `gorm:"type:uuid;index"`

	Type       string `gorm:"type:varchar(20);not null;default:'storable'"`
	Tracking   string `gorm:"type:varchar(20);not null;default:'none'"`
	IsStorable bool   `gorm:"not null;default:true"`

	ListPrice     decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0"`
	StandardPrice decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0"`

	CategoryID *uuid.UUID `gorm:"type:uuid"`
	Category   string     `gorm:"type:varchar(255)"`
	// Tags is comma-separated; the hub only filters on it
	Tags string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ErpProductModel) TableName() string {
	return "erp_products"
}

// ToDomain converts the persistence model to an erp.Product.
func (m *ErpProductModel) ToDomain() *erp.Product {
	p := &erp.Product{
		ID:            m.ID,
		DefaultCode:   m.DefaultCode,
		Name:          m.Name,
		CompanyID:     m.CompanyID,
		Type:          m.Type,
		Tracking:      m.Tracking,
		IsStorable:    m.IsStorable,
		ListPrice:     m.ListPrice,
		StandardPrice: m.StandardPrice,
		CategoryID:    m.CategoryID,
		Category:      m.Category,
	}
	if m.Tags != "" {
		p.Tags = strings.Split(m.Tags, ",")
	}
	return p
}

// ErpProductModelFromDomain converts an erp.Product to its persistence model.
func ErpProductModelFromDomain(p *erp.Product) *ErpProductModel {
	return &ErpProductModel{
		ID:            p.ID,
		DefaultCode:   p.DefaultCode,
		Name:          p.Name,
		CompanyID:     p.CompanyID,
		Type:          p.Type,
		Tracking:      p.Tracking,
		IsStorable:    p.IsStorable,
		ListPrice:     p.ListPrice,
		StandardPrice: p.StandardPrice,
		CategoryID:    p.CategoryID,
		Category:      p.Category,
		Tags:          strings.Join(p.Tags, ","),
	}
}

// ErpPartnerModel is the persistence model for host customers.
type ErpPartnerModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	Name      string     `gorm:"type:varchar(255);not null;index"`
	Email     string     `gorm:"type:varchar(255);index"`
	Phone     string     `gorm:"type:varchar(50);index"`
	Street    string     `gorm:"type:varchar(500)"`
	CompanyID *uuid.UUID `gorm:"type:uuid;index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ErpPartnerModel) TableName() string {
	return "erp_partners"
}

// ToDomain converts the persistence model to an erp.Partner.
func (m *ErpPartnerModel) ToDomain() *erp.Partner {
	return &erp.Partner{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Street:    m.Street,
		CompanyID: m.CompanyID,
	}
}

// ErpPartnerModelFromDomain converts an erp.Partner to its persistence model.
func ErpPartnerModelFromDomain(p *erp.Partner) *ErpPartnerModel {
	return &ErpPartnerModel{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Street:    p.Street,
		CompanyID: p.CompanyID,
	}
}

// ErpSaleOrderModel is the persistence model for host sale orders.
type ErpSaleOrderModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	Name      string     `gorm:"type:varchar(100);not null"`
	Origin    string     `gorm:"type:varchar(255);not null;index"`
	PartnerID uuid.UUID  `gorm:"type:uuid;not null;index"`
	CompanyID *uuid.UUID `gorm:"type:uuid;index"`
	TeamID    *uuid.UUID `gorm:"type:uuid"`
	State     string     `gorm:"type:varchar(20);not null;default:'draft';index"`
	DateOrder time.Time  `gorm:"not null"`

	Lines []ErpSaleOrderLineModel `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ErpSaleOrderModel) TableName() string {
	return "erp_sale_orders"
}

// ToDomain converts the persistence model to an erp.SaleOrder.
func (m *ErpSaleOrderModel) ToDomain() *erp.SaleOrder {
	o := &erp.SaleOrder{
		ID:        m.ID,
		Name:      m.Name,
		Origin:    m.Origin,
		PartnerID: m.PartnerID,
		CompanyID: m.CompanyID,
		TeamID:    m.TeamID,
		State:     erp.SaleOrderState(m.State),
		DateOrder: m.DateOrder,
	}
	for _, line := range m.Lines {
		o.Lines = append(o.Lines, erp.SaleOrderLine{
			ID:        line.ID,
			OrderID:   line.OrderID,
			Sequence:  line.Sequence,
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			PriceUnit: line.PriceUnit,
		})
	}
	return o
}

// ErpSaleOrderModelFromDomain converts an erp.SaleOrder to its persistence
// model, lines included.
func ErpSaleOrderModelFromDomain(o *erp.SaleOrder) *ErpSaleOrderModel {
	m := &ErpSaleOrderModel{
		ID:        o.ID,
		Name:      o.Name,
		Origin:    o.Origin,
		PartnerID: o.PartnerID,
		CompanyID: o.CompanyID,
		TeamID:    o.TeamID,
		State:     string(o.State),
		DateOrder: o.DateOrder,
	}
	for _, line := range o.Lines {
		m.Lines = append(m.Lines, ErpSaleOrderLineModel{
			ID:        line.ID,
			OrderID:   o.ID,
			Sequence:  line.Sequence,
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			PriceUnit: line.PriceUnit,
		})
	}
	return m
}

// ErpSaleOrderLineModel is the persistence model for sale order lines.
type ErpSaleOrderLineModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Sequence  int             `gorm:"not null;default:0"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Name      string          `gorm:"type:varchar(500);not null"`
	Quantity  decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	PriceUnit decimal.Decimal `gorm:"type:numeric(18,6);not null"`
}

// TableName returns the table name for GORM
func (ErpSaleOrderLineModel) TableName() string {
	return "erp_sale_order_lines"
}

// ErpStockLocationModel is the persistence model for host stock locations.
type ErpStockLocationModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	Name        string     `gorm:"type:varchar(255);not null"`
	Usage       string     `gorm:"type:varchar(20);not null;default:'internal';index"`
	CompanyID   *uuid.UUID `gorm:"type:uuid;index"`
	WarehouseID *uuid.UUID `gorm:"type:uuid;index"`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ErpStockLocationModel) TableName() string {
	return "erp_stock_locations"
}

// ErpStockQuantModel is the persistence model for per-location on-hand
// quantities. (ProductID, LocationID) is unique.
type ErpStockQuantModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key"`
	ProductID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_quant_product_location"`
	LocationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_quant_product_location"`
	Quantity   decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0"`

	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ErpStockQuantModel) TableName() string {
	return "erp_stock_quants"
}

// ErpAuditMessageModel is the persistence model for the activity feed.
type ErpAuditMessageModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	EntityRef string    `gorm:"type:varchar(255);not null;index"`
	Body      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ErpAuditMessageModel) TableName() string {
	return "erp_audit_messages"
}
