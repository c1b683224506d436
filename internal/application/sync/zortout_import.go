package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/erp"
)

const (
	// zortoutPageSize is the feed page size the platform caps at
	zortoutPageSize = 500
	// zortoutCommitChunk bounds one adjustment chunk; shorter transactions
	// on the host side
	zortoutCommitChunk = 50
)

// ZortoutImportStats summarizes one feed ingestion run.
type ZortoutImportStats struct {
	Rows     int `json:"rows"`
	Created  int `json:"created"`
	Adjusted int `json:"adjusted"`
	Skipped  int `json:"skipped"`
}

// ZortoutImporter ingests the inventory-master product feed: each row is
// matched to an internal product by SKU, auto-created when missing, forced
// storable, and its on-hand delta applied as an inventory adjustment.
type ZortoutImporter struct {
	products erp.ProductRepository
	stock    erp.StockRepository
	logger   *zap.Logger
}

// NewZortoutImporter creates a new ZortoutImporter
func NewZortoutImporter(products erp.ProductRepository, stock erp.StockRepository, logger *zap.Logger) *ZortoutImporter {
	return &ZortoutImporter{
		products: products,
		stock:    stock,
		logger:   logger.Named("zortout_import"),
	}
}

// Run pulls the feed to completion and applies it. progress may be nil; when
// set it is called after every processed chunk with (done, total).
func (z *ZortoutImporter) Run(ctx context.Context, account *channel.Account, feed channel.ProductFeed, opts channel.FeedOptions, progress func(done, total int)) (*ZortoutImportStats, error) {
	locationID, err := z.resolveLocation(ctx, account)
	if err != nil {
		return nil, err
	}

	stats := &ZortoutImportStats{}
	pageSize := zortoutPageSize
	if account.StockSyncBatchSize > 0 && account.StockSyncBatchSize < pageSize {
		pageSize = account.StockSyncBatchSize
	}

	for page := 1; ; page++ {
		rows, total, err := feed.FetchProductPage(ctx, page, pageSize, opts)
		if err != nil {
			return stats, fmt.Errorf("fetch feed page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}
		for start := 0; start < len(rows); start += zortoutCommitChunk {
			end := start + zortoutCommitChunk
			if end > len(rows) {
				end = len(rows)
			}
			if err := z.applyChunk(ctx, account, locationID, rows[start:end], stats); err != nil {
				return stats, err
			}
			if progress != nil {
				progress(stats.Rows, total)
			}
		}
		if stats.Rows >= total || len(rows) < pageSize {
			break
		}
	}
	return stats, nil
}

// applyChunk matches one chunk of feed rows to products and applies stock
// deltas. One chunk is one commit boundary on the host side.
func (z *ZortoutImporter) applyChunk(ctx context.Context, account *channel.Account, locationID uuid.UUID, rows []channel.FeedProduct, stats *ZortoutImportStats) error {
	skus := make([]string, 0, len(rows))
	rowBySKU := make(map[string]channel.FeedProduct, len(rows))
	for _, row := range rows {
		stats.Rows++
		if row.SKU == "" {
			stats.Skipped++
			continue
		}
		if _, dup := rowBySKU[row.SKU]; dup {
			stats.Skipped++
			continue
		}
		skus = append(skus, row.SKU)
		rowBySKU[row.SKU] = row
	}
	if len(skus) == 0 {
		return nil
	}

	products, err := z.products.FindBySKUs(ctx, skus, account.CompanyID)
	if err != nil {
		return fmt.Errorf("match products: %w", err)
	}

	var newProducts []*erp.Product
	for _, sku := range skus {
		if _, ok := products[sku]; ok {
			continue
		}
		row := rowBySKU[sku]
		p := erp.NewStorableProduct(sku, row.Name, account.CompanyID, row.SellPrice, row.CostPrice)
		newProducts = append(newProducts, p)
		products[sku] = p
		stats.Created++
	}
	if len(newProducts) > 0 {
		if err := z.products.CreateBulk(ctx, newProducts); err != nil {
			return fmt.Errorf("create products: %w", err)
		}
	}

	productIDs := make([]uuid.UUID, 0, len(skus))
	created := make(map[uuid.UUID]bool, len(newProducts))
	for _, p := range newProducts {
		created[p.ID] = true
	}
	for _, sku := range skus {
		p := products[sku]
		productIDs = append(productIDs, p.ID)
		if !created[p.ID] && !p.IsStorable {
			if err := z.products.EnsureStorable(ctx, p.ID); err != nil {
				return fmt.Errorf("ensure storable %s: %w", sku, err)
			}
		}
	}

	onHand, err := z.stock.OnHandBulk(ctx, productIDs, locationID)
	if err != nil {
		return fmt.Errorf("read on-hand: %w", err)
	}
	for _, sku := range skus {
		p := products[sku]
		row := rowBySKU[sku]
		delta := row.OnHand.Sub(onHand[p.ID])
		if delta.IsZero() {
			continue
		}
		if err := z.stock.ApplyAdjustment(ctx, p.ID, locationID, delta); err != nil {
			return fmt.Errorf("apply adjustment for %s: %w", sku, err)
		}
		stats.Adjusted++
	}
	return nil
}

func (z *ZortoutImporter) resolveLocation(ctx context.Context, account *channel.Account) (uuid.UUID, error) {
	if account.StockLocationID != nil {
		return *account.StockLocationID, nil
	}
	return z.stock.DefaultLocation(ctx, account.CompanyID)
}
