package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/erp"
	"github.com/channelhub/backend/internal/domain/order"
)

// materializeBatchSize bounds one sale-order insert batch; each batch is its
// own commit so a late failure keeps everything before it.
const materializeBatchSize = 50

// IngestResult summarizes one pipeline run.
type IngestResult struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Materialized int `json:"materialized"`
	Relinked     int `json:"relinked"`
	Failed       int `json:"failed"`
}

// Materializer turns normalized channel orders into durable marketplace
// orders and host sale orders. All lookups are bulk and company-scoped.
type Materializer struct {
	orders   order.Repository
	bindings binding.Repository
	partners erp.PartnerRepository
	products erp.ProductRepository
	sales    erp.SaleOrderRepository
	audit    erp.AuditLog
	logger   *zap.Logger
	now      func() time.Time
}

// NewMaterializer creates a new Materializer. audit may be nil.
func NewMaterializer(
	orders order.Repository,
	bindings binding.Repository,
	partners erp.PartnerRepository,
	products erp.ProductRepository,
	sales erp.SaleOrderRepository,
	audit erp.AuditLog,
	logger *zap.Logger,
) *Materializer {
	return &Materializer{
		orders:   orders,
		bindings: bindings,
		partners: partners,
		products: products,
		sales:    sales,
		audit:    audit,
		logger:   logger.Named("materializer"),
		now:      time.Now,
	}
}

// Ingest records the normalized orders for a shop and materializes the ones
// that need it. Known external IDs refresh the stored order; new ones are
// inserted. Returns per-category counts; an error is returned only when the
// whole run cannot proceed.
func (m *Materializer) Ingest(ctx context.Context, account *channel.Account, shop *channel.Shop, normalized []*order.NormalizedOrder) (*IngestResult, error) {
	result := &IngestResult{}
	if len(normalized) == 0 {
		return result, nil
	}

	externalIDs := make([]string, 0, len(normalized))
	for _, n := range normalized {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		externalIDs = append(externalIDs, n.ExternalOrderID)
	}
	existing, err := m.orders.FindByExternalIDs(ctx, shop.ID, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("find existing orders: %w", err)
	}

	var stored []*order.MarketplaceOrder
	var fresh []*order.MarketplaceOrder
	for _, n := range normalized {
		if known, ok := existing[n.ExternalOrderID]; ok {
			known.RefreshFromNormalized(n)
			if err := m.orders.Save(ctx, known); err != nil {
				return nil, fmt.Errorf("refresh order %s: %w", n.ExternalOrderID, err)
			}
			stored = append(stored, known)
			result.Updated++
			continue
		}
		o, err := order.NewFromNormalized(shop.ID, n)
		if err != nil {
			return nil, err
		}
		fresh = append(fresh, o)
		result.Created++
	}
	if len(fresh) > 0 {
		if err := m.orders.SaveBulk(ctx, fresh); err != nil {
			return nil, fmt.Errorf("store orders: %w", err)
		}
		stored = append(stored, fresh...)
	}

	var pending []*order.MarketplaceOrder
	for _, o := range stored {
		if o.State.NeedsMaterialization() {
			pending = append(pending, o)
		}
	}

	for start := 0; start < len(pending); start += materializeBatchSize {
		end := start + materializeBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := m.materializeBatch(ctx, account, shop, pending[start:end], result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// materializeBatch creates sale orders for one batch and marks each
// marketplace order synced or failed. Order-level failures are recorded and
// the batch continues.
func (m *Materializer) materializeBatch(ctx context.Context, account *channel.Account, shop *channel.Shop, batch []*order.MarketplaceOrder, result *IngestResult) error {
	partnerByOrder, err := m.resolvePartners(ctx, account, batch)
	if err != nil {
		return err
	}
	productBySKU, err := m.resolveProducts(ctx, account, shop, batch)
	if err != nil {
		return err
	}

	// Idempotent re-link: an order already materialized under this origin
	// must not be duplicated.
	origins := make([]string, 0, len(batch))
	for _, o := range batch {
		origins = append(origins, originFor(account.Channel, o.ExternalOrderID))
	}
	existingSales, err := m.sales.FindByOrigins(ctx, origins)
	if err != nil {
		return fmt.Errorf("find sale orders by origin: %w", err)
	}

	now := m.now()
	var toCreate []*erp.SaleOrder
	creatorOf := make(map[uuid.UUID]*order.MarketplaceOrder)
	for _, o := range batch {
		origin := originFor(account.Channel, o.ExternalOrderID)
		if sale, ok := existingSales[origin]; ok && sale.State != erp.SaleOrderCancelled {
			o.MarkSynced(sale.ID, now)
			result.Relinked++
			result.Materialized++
			continue
		}

		partner, ok := partnerByOrder[o.ID]
		if !ok {
			o.MarkFailed("no partner could be resolved", now)
			result.Failed++
			continue
		}
		sale, buildErr := m.buildSaleOrder(account, shop, o, partner, productBySKU)
		if buildErr != nil {
			o.MarkFailed(buildErr.Error(), now)
			result.Failed++
			continue
		}
		toCreate = append(toCreate, sale)
		creatorOf[sale.ID] = o
	}

	if len(toCreate) > 0 {
		if err := m.sales.CreateBulk(ctx, toCreate); err != nil {
			return fmt.Errorf("create sale orders: %w", err)
		}
		for _, sale := range toCreate {
			o := creatorOf[sale.ID]
			o.MarkSynced(sale.ID, now)
			result.Materialized++
			if account.AutoConfirmOrders {
				if err := m.sales.Confirm(ctx, sale.ID); err != nil {
					o.RecordSyncWarning(fmt.Sprintf("auto-confirm failed: %v", err), now)
					m.logger.Warn("auto-confirm failed",
						zap.String("external_order_id", o.ExternalOrderID), zap.Error(err))
				}
			}
		}
	}

	for _, o := range batch {
		if err := m.orders.Save(ctx, o); err != nil {
			return fmt.Errorf("save order %s: %w", o.ExternalOrderID, err)
		}
	}
	m.postAudit(ctx, shop, result)
	return nil
}

// resolvePartners matches or creates one partner per order. Match priority
// is strictly name, then email, then phone; masked values never match.
// A partner belonging to a different company is not reused; a company-less
// match adopts the order's company.
func (m *Materializer) resolvePartners(ctx context.Context, account *channel.Account, batch []*order.MarketplaceOrder) (map[uuid.UUID]*erp.Partner, error) {
	var names, emails, phones []string
	for _, o := range batch {
		if v := channel.CleanMasked(o.CustomerName); v != "" {
			names = append(names, v)
		}
		if v := channel.CleanMasked(o.CustomerEmail); v != "" {
			emails = append(emails, v)
		}
		if v := channel.CleanMasked(o.CustomerPhone); v != "" {
			phones = append(phones, v)
		}
	}
	byName, err := m.partners.FindByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("match partners by name: %w", err)
	}
	byEmail, err := m.partners.FindByEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("match partners by email: %w", err)
	}
	byPhone, err := m.partners.FindByPhones(ctx, phones)
	if err != nil {
		return nil, fmt.Errorf("match partners by phone: %w", err)
	}

	resolved := make(map[uuid.UUID]*erp.Partner, len(batch))
	var toCreate []*erp.Partner
	createdByName := make(map[string]*erp.Partner)
	for _, o := range batch {
		name := channel.CleanMasked(o.CustomerName)
		email := channel.CleanMasked(o.CustomerEmail)
		phone := channel.CleanMasked(o.CustomerPhone)

		match := pickPartner(account.CompanyID, byName[name], byEmail[email], byPhone[phone])
		if match != nil {
			if match.CompanyID == nil && account.CompanyID != nil {
				if err := m.partners.AdoptCompany(ctx, match.ID, *account.CompanyID); err != nil {
					return nil, fmt.Errorf("adopt company for partner %s: %w", match.ID, err)
				}
				match.CompanyID = account.CompanyID
			}
			resolved[o.ID] = match
			continue
		}

		if name == "" {
			// Adapters always produce at least a placeholder, so an empty
			// name means the payload was unusable.
			continue
		}
		if prior, ok := createdByName[name]; ok {
			resolved[o.ID] = prior
			continue
		}
		p := &erp.Partner{
			ID:        uuid.New(),
			Name:      name,
			Email:     email,
			Phone:     phone,
			Street:    o.CustomerAddress,
			CompanyID: account.CompanyID,
		}
		toCreate = append(toCreate, p)
		createdByName[name] = p
		resolved[o.ID] = p
	}
	if len(toCreate) > 0 {
		if err := m.partners.CreateBulk(ctx, toCreate); err != nil {
			return nil, fmt.Errorf("create partners: %w", err)
		}
	}
	return resolved, nil
}

// pickPartner applies the name → email → phone priority over candidate
// lists. Within a list, a same-company partner wins over a company-less one;
// partners of a different company are never reused.
func pickPartner(companyID *uuid.UUID, candidateLists ...[]*erp.Partner) *erp.Partner {
	for _, candidates := range candidateLists {
		var companyless *erp.Partner
		for _, p := range candidates {
			if p.CompanyID == nil {
				if companyless == nil {
					companyless = p
				}
				continue
			}
			if companyID != nil && *p.CompanyID == *companyID {
				return p
			}
		}
		if companyless != nil {
			return companyless
		}
	}
	return nil
}

// resolveProducts maps every line SKU in the batch to a product, creating
// missing products and bindings in bulk. SKUs are processed in sorted order
// to keep lock order stable.
func (m *Materializer) resolveProducts(ctx context.Context, account *channel.Account, shop *channel.Shop, batch []*order.MarketplaceOrder) (map[string]*erp.Product, error) {
	skuSet := make(map[string]*order.MarketplaceOrderLine)
	for _, o := range batch {
		for i := range o.Lines {
			line := &o.Lines[i]
			if line.ExternalSKU == "" {
				continue
			}
			if _, ok := skuSet[line.ExternalSKU]; !ok {
				skuSet[line.ExternalSKU] = line
			}
		}
	}
	if len(skuSet) == 0 {
		return map[string]*erp.Product{}, nil
	}
	skus := make([]string, 0, len(skuSet))
	for sku := range skuSet {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	products, err := m.products.FindBySKUs(ctx, skus, account.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("match products by SKU: %w", err)
	}
	existingBindings, err := m.bindings.FindBySKUs(ctx, shop.ID, skus)
	if err != nil {
		return nil, fmt.Errorf("match bindings by SKU: %w", err)
	}

	var newProducts []*erp.Product
	for _, sku := range skus {
		if _, ok := products[sku]; ok {
			continue
		}
		line := skuSet[sku]
		p := erp.NewStorableProduct(sku, line.ProductName, account.CompanyID, line.PriceUnit, line.PriceUnit)
		newProducts = append(newProducts, p)
		products[sku] = p
	}
	if len(newProducts) > 0 {
		if err := m.products.CreateBulk(ctx, newProducts); err != nil {
			return nil, fmt.Errorf("create products: %w", err)
		}
	}

	var newBindings []*binding.ProductBinding
	for _, sku := range skus {
		product := products[sku]
		if b, ok := existingBindings[sku]; ok {
			// A binding pointing at a different product is a mismatch; the
			// line keeps the SKU-matched product and the binding is left
			// alone for manual review.
			if b.ProductID != nil && *b.ProductID != product.ID {
				m.logger.Warn("binding product mismatch",
					zap.String("sku", sku),
					zap.String("binding_product", b.ProductID.String()),
					zap.String("matched_product", product.ID.String()))
			}
			continue
		}
		productID := product.ID
		b, err := binding.NewProductBinding(shop.ID, sku, &productID)
		if err != nil {
			return nil, err
		}
		newBindings = append(newBindings, b)
	}
	if len(newBindings) > 0 {
		if err := m.bindings.SaveBulk(ctx, newBindings); err != nil {
			return nil, fmt.Errorf("create bindings: %w", err)
		}
	}
	return products, nil
}

// buildSaleOrder assembles the host sale order for one marketplace order.
// The name is forced to the external order ID so marketplace numbering
// survives the host's own sequences.
func (m *Materializer) buildSaleOrder(account *channel.Account, shop *channel.Shop, o *order.MarketplaceOrder, partner *erp.Partner, productBySKU map[string]*erp.Product) (*erp.SaleOrder, error) {
	sale := &erp.SaleOrder{
		ID:        uuid.New(),
		Name:      o.ExternalOrderID,
		Origin:    originFor(account.Channel, o.ExternalOrderID),
		PartnerID: partner.ID,
		CompanyID: account.CompanyID,
		TeamID:    shop.SalesTeamID,
		State:     erp.SaleOrderDraft,
		DateOrder: o.OrderDate,
	}
	for i := range o.Lines {
		line := &o.Lines[i]
		if line.ExternalSKU == "" {
			return nil, fmt.Errorf("line %d has no SKU", i+1)
		}
		product, ok := productBySKU[line.ExternalSKU]
		if !ok {
			return nil, fmt.Errorf("no product for SKU %s", line.ExternalSKU)
		}
		sale.Lines = append(sale.Lines, erp.SaleOrderLine{
			ID:        uuid.New(),
			OrderID:   sale.ID,
			Sequence:  i + 1,
			ProductID: product.ID,
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			PriceUnit: line.PriceUnit,
		})
	}
	if len(sale.Lines) == 0 {
		return nil, fmt.Errorf("order has no usable lines")
	}
	return sale, nil
}

// postAudit posts a best-effort batch summary; failures are swallowed.
func (m *Materializer) postAudit(ctx context.Context, shop *channel.Shop, result *IngestResult) {
	if m.audit == nil {
		return
	}
	body := fmt.Sprintf("order sync: %d materialized, %d failed", result.Materialized, result.Failed)
	if err := m.audit.Post(ctx, "shop:"+shop.ID.String(), body); err != nil {
		m.logger.Debug("audit post failed", zap.Error(err))
	}
}

// originFor renders the origin marker that links a sale order back to its
// marketplace order.
func originFor(code channel.Code, externalOrderID string) string {
	return fmt.Sprintf("%s:%s", code, externalOrderID)
}
