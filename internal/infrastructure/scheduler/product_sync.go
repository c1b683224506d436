package scheduler

import (
	"context"
	"fmt"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
)

// ProductSyncExecutor imports a channel catalog into bindings. The job must
// be shop-scoped; only adapters that can enumerate their catalog back it.
type ProductSyncExecutor struct {
	shops    channel.ShopRepository
	importer *appsync.WooImporter
}

// NewProductSyncExecutor creates the product import executor.
func NewProductSyncExecutor(shops channel.ShopRepository, importer *appsync.WooImporter) *ProductSyncExecutor {
	return &ProductSyncExecutor{shops: shops, importer: importer}
}

func (e *ProductSyncExecutor) Type() job.Type { return job.TypeSyncProductsFromWoo }

func (e *ProductSyncExecutor) Execute(ctx context.Context, env *Env) (map[string]any, error) {
	if env.Job.ShopID == nil {
		return nil, ErrMissingShop
	}
	catalog, ok := env.Adapter.(channel.CatalogLister)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot list its catalog", ErrMissingCapability, env.Account.Channel)
	}
	shop, err := e.shops.FindByID(ctx, *env.Job.ShopID)
	if err != nil {
		return nil, err
	}
	stats, err := e.importer.Run(ctx, env.Account, shop, catalog, env.Progress)
	if err != nil {
		return nil, err
	}
	result := map[string]any{
		"products":  stats.Products,
		"bound":     stats.Bound,
		"updated":   stats.Updated,
		"skipped":   stats.Skipped,
		"not_found": stats.NotFound,
	}
	if stats.ReportURL != "" {
		result["report_url"] = stats.ReportURL
	}
	return result, nil
}
