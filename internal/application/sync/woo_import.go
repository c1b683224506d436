package sync

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/erp"
)

const (
	// wooVariationWorkers bounds concurrent variation fetches per run
	wooVariationWorkers = 10
	// wooBindingChunk bounds one binding upsert group
	wooBindingChunk = 200
)

// ReportStore persists run reports as downloadable artifacts.
type ReportStore interface {
	SaveReport(ctx context.Context, name, contentType string, body []byte) (string, error)
}

// WooImportStats summarizes one catalog import run.
type WooImportStats struct {
	Products  int    `json:"products"`
	Bound     int    `json:"bound"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	NotFound  int    `json:"not_found"`
	ReportURL string `json:"report_url,omitempty"`
}

type wooImportRow struct {
	sku    string
	name   string
	status string
	detail string
}

// WooImporter walks a WooCommerce catalog and binds its SKUs to internal
// products. Variable products are expanded into variations with bounded
// concurrency; the run ends with a CSV report of every row's outcome.
type WooImporter struct {
	products erp.ProductRepository
	bindings binding.Repository
	reports  ReportStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewWooImporter creates a new WooImporter. reports may be nil, in which
// case no report artifact is written.
func NewWooImporter(products erp.ProductRepository, bindings binding.Repository, reports ReportStore, logger *zap.Logger) *WooImporter {
	return &WooImporter{
		products: products,
		bindings: bindings,
		reports:  reports,
		logger:   logger.Named("woo_import"),
		now:      time.Now,
	}
}

// Run pages through the catalog, expands variations, matches SKUs and
// upserts bindings. progress may be nil.
func (w *WooImporter) Run(ctx context.Context, account *channel.Account, shop *channel.Shop, catalog channel.CatalogLister, progress func(done, total int)) (*WooImportStats, error) {
	stats := &WooImportStats{}
	var rows []wooImportRow

	var simples, variations []channel.RemoteProduct
	for page := 1; ; page++ {
		products, hasMore, err := catalog.ListProductPage(ctx, page)
		if err != nil {
			return stats, fmt.Errorf("list products page %d: %w", page, err)
		}
		for _, p := range products {
			stats.Products++
			if p.Variable {
				continue
			}
			simples = append(simples, p)
		}
		expanded, err := w.expandVariations(ctx, catalog, products)
		if err != nil {
			return stats, err
		}
		variations = append(variations, expanded...)
		if progress != nil {
			progress(stats.Products, 0)
		}
		if !hasMore {
			break
		}
	}

	// One SKU match per product class keeps it to two queries total.
	simpleMatches, err := w.matchBySKU(ctx, account, simples)
	if err != nil {
		return stats, err
	}
	variationMatches, err := w.matchBySKU(ctx, account, variations)
	if err != nil {
		return stats, err
	}

	all := make([]channel.RemoteProduct, 0, len(simples)+len(variations))
	all = append(all, simples...)
	all = append(all, variations...)
	matches := make(map[string]*erp.Product, len(simpleMatches)+len(variationMatches))
	for sku, p := range simpleMatches {
		matches[sku] = p
	}
	for sku, p := range variationMatches {
		matches[sku] = p
	}

	var skus []string
	seen := make(map[string]bool)
	for _, p := range all {
		if p.SKU == "" || seen[p.SKU] {
			continue
		}
		seen[p.SKU] = true
		skus = append(skus, p.SKU)
	}
	existing, err := w.bindings.FindBySKUs(ctx, shop.ID, skus)
	if err != nil {
		return stats, fmt.Errorf("find bindings: %w", err)
	}

	var upserts []*binding.ProductBinding
	for _, p := range all {
		if p.SKU == "" {
			stats.Skipped++
			rows = append(rows, wooImportRow{sku: "", name: p.Name, status: "skipped", detail: "no SKU"})
			continue
		}
		externalID := channel.FormatExternalID(p.ParentID, p.ID)
		if b, ok := existing[p.SKU]; ok {
			if b.ExternalProductID != externalID {
				b.ExternalProductID = externalID
				b.UpdatedAt = w.now()
				upserts = append(upserts, b)
			}
			stats.Updated++
			rows = append(rows, wooImportRow{sku: p.SKU, name: p.Name, status: "updated", detail: externalID})
			continue
		}
		product, ok := matches[p.SKU]
		if !ok {
			stats.NotFound++
			rows = append(rows, wooImportRow{sku: p.SKU, name: p.Name, status: "not_found", detail: "no matching product"})
			continue
		}
		productID := product.ID
		b, err := binding.NewProductBinding(shop.ID, p.SKU, &productID)
		if err != nil {
			return stats, err
		}
		b.ExternalProductID = externalID
		upserts = append(upserts, b)
		stats.Bound++
		rows = append(rows, wooImportRow{sku: p.SKU, name: p.Name, status: "bound", detail: externalID})
	}

	for start := 0; start < len(upserts); start += wooBindingChunk {
		end := start + wooBindingChunk
		if end > len(upserts) {
			end = len(upserts)
		}
		if err := w.bindings.SaveBulk(ctx, upserts[start:end]); err != nil {
			return stats, fmt.Errorf("save bindings: %w", err)
		}
	}

	if url, err := w.writeReport(ctx, shop, rows); err != nil {
		w.logger.Warn("import report not written", zap.Error(err))
	} else {
		stats.ReportURL = url
	}
	return stats, nil
}

// expandVariations fetches variation rows for every variable product in the
// page with bounded concurrency.
func (w *WooImporter) expandVariations(ctx context.Context, catalog channel.CatalogLister, products []channel.RemoteProduct) ([]channel.RemoteProduct, error) {
	var parents []channel.RemoteProduct
	for _, p := range products {
		if p.Variable {
			parents = append(parents, p)
		}
	}
	if len(parents) == 0 {
		return nil, nil
	}

	sem := make(chan struct{}, wooVariationWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var all []channel.RemoteProduct
	var firstErr error

	for _, parent := range parents {
		wg.Add(1)
		go func(parent channel.RemoteProduct) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rows, err := catalog.ListVariations(ctx, parent.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("list variations of %d: %w", parent.ID, err)
				}
				return
			}
			all = append(all, rows...)
		}(parent)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return all, nil
}

func (w *WooImporter) matchBySKU(ctx context.Context, account *channel.Account, products []channel.RemoteProduct) (map[string]*erp.Product, error) {
	var skus []string
	seen := make(map[string]bool)
	for _, p := range products {
		if p.SKU == "" || seen[p.SKU] {
			continue
		}
		seen[p.SKU] = true
		skus = append(skus, p.SKU)
	}
	if len(skus) == 0 {
		return map[string]*erp.Product{}, nil
	}
	matches, err := w.products.FindBySKUs(ctx, skus, account.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("match products: %w", err)
	}
	return matches, nil
}

// writeReport renders the per-row outcomes as CSV and stores it.
func (w *WooImporter) writeReport(ctx context.Context, shop *channel.Shop, rows []wooImportRow) (string, error) {
	if w.reports == nil || len(rows) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{"sku", "name", "status", "detail"}); err != nil {
		return "", err
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.sku, row.name, row.status, row.detail}); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("woo-import-%s-%s.csv", shop.ID, strconv.FormatInt(w.now().Unix(), 10))
	return w.reports.SaveReport(ctx, name, "text/csv", buf.Bytes())
}
