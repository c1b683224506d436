package scheduler

import (
	"context"
	"fmt"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
)

// StockFeedSyncExecutor ingests the inventory-master product feed. Only
// adapters exposing the feed capability can back it.
type StockFeedSyncExecutor struct {
	importer *appsync.ZortoutImporter
}

// NewStockFeedSyncExecutor creates the sync_stock_from_zortout executor.
func NewStockFeedSyncExecutor(importer *appsync.ZortoutImporter) *StockFeedSyncExecutor {
	return &StockFeedSyncExecutor{importer: importer}
}

func (e *StockFeedSyncExecutor) Type() job.Type { return job.TypeSyncStockFromZortout }

func (e *StockFeedSyncExecutor) Execute(ctx context.Context, env *Env) (map[string]any, error) {
	feed, ok := env.Adapter.(channel.ProductFeed)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no product feed", ErrMissingCapability, env.Account.Channel)
	}
	opts := channel.FeedOptions{
		SKUs:          env.Job.Payload.SKUList,
		WarehouseCode: env.Job.Payload.WarehouseCode,
	}
	stats, err := e.importer.Run(ctx, env.Account, feed, opts, env.Progress)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"rows":     stats.Rows,
		"created":  stats.Created,
		"adjusted": stats.Adjusted,
		"skipped":  stats.Skipped,
	}, nil
}
