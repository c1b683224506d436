package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/erp"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// GormErpProductRepository implements erp.ProductRepository using GORM
type GormErpProductRepository struct {
	db *gorm.DB
}

// NewGormErpProductRepository creates a new GormErpProductRepository
func NewGormErpProductRepository(db *gorm.DB) *GormErpProductRepository {
	return &GormErpProductRepository{db: db}
}

// FindBySKUs resolves SKUs to products. A product scoped to the given
// company shadows a company-less product with the same SKU.
func (r *GormErpProductRepository) FindBySKUs(ctx context.Context, skus []string, companyID *uuid.UUID) (map[string]*erp.Product, error) {
	out := make(map[string]*erp.Product)
	if len(skus) == 0 {
		return out, nil
	}

	var productModels []models.ErpProductModel
	query := r.db.WithContext(ctx).Where("default_code IN ?", skus)
	if companyID != nil {
		query = query.Where("company_id = ? OR company_id IS NULL", *companyID)
	} else {
		query = query.Where("company_id IS NULL")
	}
	if err := query.Find(&productModels).Error; err != nil {
		return nil, err
	}

	for i := range productModels {
		m := &productModels[i]
		existing, seen := out[m.DefaultCode]
		if seen && existing.CompanyID != nil {
			continue
		}
		if !seen || m.CompanyID != nil {
			out[m.DefaultCode] = m.ToDomain()
		}
	}
	return out, nil
}

// FindByIDs loads products by ID; missing IDs are absent from the map.
func (r *GormErpProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*erp.Product, error) {
	out := make(map[uuid.UUID]*erp.Product)
	if len(ids) == 0 {
		return out, nil
	}

	var productModels []models.ErpProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&productModels).Error; err != nil {
		return nil, err
	}
	for i := range productModels {
		out[productModels[i].ID] = productModels[i].ToDomain()
	}
	return out, nil
}

// CreateBulk inserts products in one call with storable settings enforced.
func (r *GormErpProductRepository) CreateBulk(ctx context.Context, products []*erp.Product) error {
	if len(products) == 0 {
		return nil
	}
	now := time.Now()
	productModels := make([]*models.ErpProductModel, 0, len(products))
	for _, p := range products {
		m := models.ErpProductModelFromDomain(p)
		m.Type = "storable"
		m.Tracking = "none"
		m.IsStorable = true
		m.CreatedAt = now
		m.UpdatedAt = now
		productModels = append(productModels, m)
	}
	return r.db.WithContext(ctx).Create(productModels).Error
}

// EnsureStorable forces quantity tracking settings on an existing product.
func (r *GormErpProductRepository) EnsureStorable(ctx context.Context, productID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.ErpProductModel{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"type":        "storable",
			"tracking":    "none",
			"is_storable": true,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return erp.ErrProductNotFound
	}
	return nil
}

var _ erp.ProductRepository = (*GormErpProductRepository)(nil)

// ---------------------------------------------------------------------------
// Partners
// ---------------------------------------------------------------------------

// GormErpPartnerRepository implements erp.PartnerRepository using GORM
type GormErpPartnerRepository struct {
	db *gorm.DB
}

// NewGormErpPartnerRepository creates a new GormErpPartnerRepository
func NewGormErpPartnerRepository(db *gorm.DB) *GormErpPartnerRepository {
	return &GormErpPartnerRepository{db: db}
}

func (r *GormErpPartnerRepository) findByColumn(ctx context.Context, column string, values []string) (map[string][]*erp.Partner, error) {
	out := make(map[string][]*erp.Partner)
	if len(values) == 0 {
		return out, nil
	}

	var partnerModels []models.ErpPartnerModel
	if err := r.db.WithContext(ctx).
		Where(column+" IN ?", values).
		Order("created_at ASC").
		Find(&partnerModels).Error; err != nil {
		return nil, err
	}

	for i := range partnerModels {
		m := &partnerModels[i]
		var key string
		switch column {
		case "name":
			key = m.Name
		case "email":
			key = m.Email
		case "phone":
			key = m.Phone
		}
		out[key] = append(out[key], m.ToDomain())
	}
	return out, nil
}

// FindByNames returns partners keyed by exact name.
func (r *GormErpPartnerRepository) FindByNames(ctx context.Context, names []string) (map[string][]*erp.Partner, error) {
	return r.findByColumn(ctx, "name", names)
}

// FindByEmails returns partners keyed by email.
func (r *GormErpPartnerRepository) FindByEmails(ctx context.Context, emails []string) (map[string][]*erp.Partner, error) {
	return r.findByColumn(ctx, "email", emails)
}

// FindByPhones returns partners keyed by phone.
func (r *GormErpPartnerRepository) FindByPhones(ctx context.Context, phones []string) (map[string][]*erp.Partner, error) {
	return r.findByColumn(ctx, "phone", phones)
}

// CreateBulk inserts partners in one call.
func (r *GormErpPartnerRepository) CreateBulk(ctx context.Context, partners []*erp.Partner) error {
	if len(partners) == 0 {
		return nil
	}
	now := time.Now()
	partnerModels := make([]*models.ErpPartnerModel, 0, len(partners))
	for _, p := range partners {
		m := models.ErpPartnerModelFromDomain(p)
		m.CreatedAt = now
		m.UpdatedAt = now
		partnerModels = append(partnerModels, m)
	}
	return r.db.WithContext(ctx).Create(partnerModels).Error
}

// AdoptCompany assigns a company to a company-less partner.
func (r *GormErpPartnerRepository) AdoptCompany(ctx context.Context, partnerID uuid.UUID, companyID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.ErpPartnerModel{}).
		Where("id = ? AND company_id IS NULL", partnerID).
		Updates(map[string]any{
			"company_id": companyID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return erp.ErrPartnerNotFound
	}
	return nil
}

var _ erp.PartnerRepository = (*GormErpPartnerRepository)(nil)

// ---------------------------------------------------------------------------
// Sale orders
// ---------------------------------------------------------------------------

// GormErpSaleOrderRepository implements erp.SaleOrderRepository using GORM
type GormErpSaleOrderRepository struct {
	db *gorm.DB
}

// NewGormErpSaleOrderRepository creates a new GormErpSaleOrderRepository
func NewGormErpSaleOrderRepository(db *gorm.DB) *GormErpSaleOrderRepository {
	return &GormErpSaleOrderRepository{db: db}
}

// FindByOrigins returns non-cancelled orders keyed by origin. Where an
// origin appears more than once the newest order wins.
func (r *GormErpSaleOrderRepository) FindByOrigins(ctx context.Context, origins []string) (map[string]*erp.SaleOrder, error) {
	out := make(map[string]*erp.SaleOrder)
	if len(origins) == 0 {
		return out, nil
	}

	var orderModels []models.ErpSaleOrderModel
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("origin IN ? AND state <> ?", origins, string(erp.SaleOrderCancelled)).
		Order("created_at ASC").
		Find(&orderModels).Error; err != nil {
		return nil, err
	}
	for i := range orderModels {
		out[orderModels[i].Origin] = orderModels[i].ToDomain()
	}
	return out, nil
}

// CreateBulk inserts orders with their lines in one transaction.
func (r *GormErpSaleOrderRepository) CreateBulk(ctx context.Context, orders []*erp.SaleOrder) error {
	if len(orders) == 0 {
		return nil
	}
	now := time.Now()
	orderModels := make([]*models.ErpSaleOrderModel, 0, len(orders))
	for _, o := range orders {
		m := models.ErpSaleOrderModelFromDomain(o)
		m.CreatedAt = now
		m.UpdatedAt = now
		orderModels = append(orderModels, m)
	}
	return r.db.WithContext(ctx).Create(orderModels).Error
}

// Confirm moves one order to confirmed.
func (r *GormErpSaleOrderRepository) Confirm(ctx context.Context, orderID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.ErpSaleOrderModel{}).
		Where("id = ? AND state = ?", orderID, string(erp.SaleOrderDraft)).
		Updates(map[string]any{
			"state":      string(erp.SaleOrderConfirmed),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return erp.ErrSaleOrderNotFound
	}
	return nil
}

var _ erp.SaleOrderRepository = (*GormErpSaleOrderRepository)(nil)

// ---------------------------------------------------------------------------
// Stock
// ---------------------------------------------------------------------------

// GormErpStockRepository implements erp.StockRepository using GORM
type GormErpStockRepository struct {
	db *gorm.DB
}

// NewGormErpStockRepository creates a new GormErpStockRepository
func NewGormErpStockRepository(db *gorm.DB) *GormErpStockRepository {
	return &GormErpStockRepository{db: db}
}

// OnHand reads the on-hand quantity of one product at one location. A
// missing quant row reads as zero.
func (r *GormErpStockRepository) OnHand(ctx context.Context, productID, locationID uuid.UUID) (decimal.Decimal, error) {
	var quant models.ErpStockQuantModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		First(&quant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return quant.Quantity, nil
}

// OnHandBulk reads on-hand for many products at one location. Products
// without a quant row are absent from the map.
func (r *GormErpStockRepository) OnHandBulk(ctx context.Context, productIDs []uuid.UUID, locationID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal)
	if len(productIDs) == 0 {
		return out, nil
	}

	var quants []models.ErpStockQuantModel
	if err := r.db.WithContext(ctx).
		Where("product_id IN ? AND location_id = ?", productIDs, locationID).
		Find(&quants).Error; err != nil {
		return nil, err
	}
	for i := range quants {
		out[quants[i].ProductID] = quants[i].Quantity
	}
	return out, nil
}

// ApplyAdjustment writes an inventory delta, creating the quant row on
// first touch.
func (r *GormErpStockRepository) ApplyAdjustment(ctx context.Context, productID, locationID uuid.UUID, delta decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quant models.ErpStockQuantModel
		err := tx.
			Where("product_id = ? AND location_id = ?", productID, locationID).
			First(&quant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			quant = models.ErpStockQuantModel{
				ID:         uuid.New(),
				ProductID:  productID,
				LocationID: locationID,
				Quantity:   delta,
				UpdatedAt:  time.Now(),
			}
			return tx.Create(&quant).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&quant).Updates(map[string]any{
			"quantity":   quant.Quantity.Add(delta),
			"updated_at": time.Now(),
		}).Error
	})
}

// DefaultLocation resolves the first internal location of a company.
func (r *GormErpStockRepository) DefaultLocation(ctx context.Context, companyID *uuid.UUID) (uuid.UUID, error) {
	query := r.db.WithContext(ctx).Where("usage = ?", "internal")
	if companyID != nil {
		query = query.Where("company_id = ?", *companyID)
	}

	var location models.ErpStockLocationModel
	if err := query.Order("created_at ASC").First(&location).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, erp.ErrLocationNotFound
		}
		return uuid.Nil, err
	}
	return location.ID, nil
}

// WarehouseLocation resolves a warehouse's internal stock location.
func (r *GormErpStockRepository) WarehouseLocation(ctx context.Context, warehouseID uuid.UUID) (uuid.UUID, error) {
	var location models.ErpStockLocationModel
	err := r.db.WithContext(ctx).
		Where("warehouse_id = ? AND usage = ?", warehouseID, "internal").
		First(&location).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, erp.ErrLocationNotFound
		}
		return uuid.Nil, err
	}
	return location.ID, nil
}

var _ erp.StockRepository = (*GormErpStockRepository)(nil)

// ---------------------------------------------------------------------------
// Audit sidecar
// ---------------------------------------------------------------------------

// GormAuditLog implements erp.AuditLog using GORM
type GormAuditLog struct {
	db *gorm.DB
}

// NewGormAuditLog creates a new GormAuditLog
func NewGormAuditLog(db *gorm.DB) *GormAuditLog {
	return &GormAuditLog{db: db}
}

// Post appends one activity message.
func (l *GormAuditLog) Post(ctx context.Context, entityRef string, body string) error {
	return l.db.WithContext(ctx).Create(&models.ErpAuditMessageModel{
		ID:        uuid.New(),
		EntityRef: entityRef,
		Body:      body,
		CreatedAt: time.Now(),
	}).Error
}

var _ erp.AuditLog = (*GormAuditLog)(nil)
