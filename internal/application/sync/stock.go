package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/erp"
)

// PushPlan is the per-shop slice of a stock push: the wire items plus the
// bindings they came from, so push results can be written back.
type PushPlan struct {
	ShopID         uuid.UUID
	ExternalShopID string
	Items          []channel.InventoryItem
	// Bindings is keyed by external SKU
	Bindings map[string]*binding.ProductBinding
	// Quantities is keyed by external SKU; the value that went on the wire
	Quantities map[string]int
}

// StockService turns bindings into publishable quantities. The policy for
// each binding layers its own overrides over the first matching sync rule
// over the account defaults.
type StockService struct {
	shops    channel.ShopRepository
	rules    binding.RuleRepository
	products erp.ProductRepository
	stock    erp.StockRepository
	logger   *zap.Logger
}

// NewStockService creates a new StockService
func NewStockService(
	shops channel.ShopRepository,
	rules binding.RuleRepository,
	products erp.ProductRepository,
	stock erp.StockRepository,
	logger *zap.Logger,
) *StockService {
	return &StockService{
		shops:    shops,
		rules:    rules,
		products: products,
		stock:    stock,
		logger:   logger.Named("stock"),
	}
}

// BuildPlans resolves quantities for the pushable subset of the given
// bindings and groups them into one plan per shop. Bindings that are
// inactive, excluded, rule-excluded or unresolvable are skipped.
func (s *StockService) BuildPlans(ctx context.Context, account *channel.Account, bindings []*binding.ProductBinding) ([]*PushPlan, error) {
	byShop := make(map[uuid.UUID][]*binding.ProductBinding)
	var productIDs []uuid.UUID
	seenProducts := make(map[uuid.UUID]bool)
	for _, b := range bindings {
		if !b.Pushable() {
			continue
		}
		byShop[b.ShopID] = append(byShop[b.ShopID], b)
		if !seenProducts[*b.ProductID] {
			seenProducts[*b.ProductID] = true
			productIDs = append(productIDs, *b.ProductID)
		}
	}
	if len(byShop) == 0 {
		return nil, nil
	}

	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync rules: %w", err)
	}

	var plans []*PushPlan
	for shopID, shopBindings := range byShop {
		shop, err := s.shops.FindByID(ctx, shopID)
		if err != nil {
			s.logger.Warn("skipping bindings of unknown shop",
				zap.String("shop_id", shopID.String()), zap.Error(err))
			continue
		}
		locationID, err := s.resolveLocation(ctx, account, shop)
		if err != nil {
			return nil, fmt.Errorf("resolve stock location for shop %s: %w", shopID, err)
		}

		ids := make([]uuid.UUID, 0, len(shopBindings))
		for _, b := range shopBindings {
			ids = append(ids, *b.ProductID)
		}
		onHand, err := s.stock.OnHandBulk(ctx, ids, locationID)
		if err != nil {
			return nil, fmt.Errorf("read on-hand: %w", err)
		}

		plan := &PushPlan{
			ShopID:         shop.ID,
			ExternalShopID: shop.ExternalShopID,
			Bindings:       make(map[string]*binding.ProductBinding, len(shopBindings)),
			Quantities:     make(map[string]int, len(shopBindings)),
		}
		for _, b := range shopBindings {
			qty, ok := s.availableQty(account, shop, b, products[*b.ProductID], onHand[*b.ProductID], rules)
			if !ok {
				continue
			}
			plan.Items = append(plan.Items, channel.InventoryItem{
				ExternalSKU:       b.ExternalSKU,
				Quantity:          qty,
				ExternalProductID: b.ExternalProductID,
			})
			plan.Bindings[b.ExternalSKU] = b
			plan.Quantities[b.ExternalSKU] = qty
		}
		if len(plan.Items) > 0 {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

// availableQty resolves the policy for one binding and derives the
// publishable quantity. The second return is false when a matched rule
// excludes the binding from pushing.
func (s *StockService) availableQty(account *channel.Account, shop *channel.Shop, b *binding.ProductBinding, p *erp.Product, onHand decimal.Decimal, rules []*binding.SyncRule) (int, bool) {
	ruleCtx := binding.RuleContext{
		AccountID: account.ID,
		ShopID:    shop.ID,
		ProductID: b.ProductID,
		OnHand:    int(onHand.IntPart()),
	}
	if p != nil {
		ruleCtx.Category = p.Category
		ruleCtx.Tags = p.Tags
	}
	rule := binding.FirstMatch(rules, ruleCtx)
	if rule != nil && rule.ExcludePush {
		return 0, false
	}
	policy := binding.ResolvePolicy(b, rule, account.PushBuffer, account.MinOnlineQty)
	return binding.AvailableQty(onHand, policy), true
}

// resolveLocation picks the stock location for a shop: the account's
// configured location, else the shop's warehouse location, else the first
// internal location of the company.
func (s *StockService) resolveLocation(ctx context.Context, account *channel.Account, shop *channel.Shop) (uuid.UUID, error) {
	if account.StockLocationID != nil {
		return *account.StockLocationID, nil
	}
	if shop.WarehouseID != nil {
		return s.stock.WarehouseLocation(ctx, *shop.WarehouseID)
	}
	return s.stock.DefaultLocation(ctx, account.CompanyID)
}
