package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
)

// PushStockExecutor publishes available quantities for the bindings named
// in the job payload. Quantities come from the stock service; per-SKU push
// results are written back into the bindings so the next push can reuse
// resolved remote IDs.
type PushStockExecutor struct {
	bindings binding.Repository
	shops    channel.ShopRepository
	stock    *appsync.StockService
	logger   *zap.Logger
	now      func() time.Time
}

// NewPushStockExecutor creates the push_stock executor.
func NewPushStockExecutor(bindings binding.Repository, shops channel.ShopRepository, stock *appsync.StockService, logger *zap.Logger) *PushStockExecutor {
	return &PushStockExecutor{
		bindings: bindings,
		shops:    shops,
		stock:    stock,
		logger:   logger.Named("push_stock"),
		now:      time.Now,
	}
}

func (e *PushStockExecutor) Type() job.Type { return job.TypePushStock }

func (e *PushStockExecutor) Execute(ctx context.Context, env *Env) (map[string]any, error) {
	ids := env.Job.Payload.BindingIDs
	bindings, err := e.loadBindings(ctx, env, ids)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return map[string]any{"pushed": 0, "failed": 0}, nil
	}

	plans, err := e.stock.BuildPlans(ctx, env.Account, bindings)
	if err != nil {
		return nil, fmt.Errorf("build push plans: %w", err)
	}

	total := 0
	for _, plan := range plans {
		total += len(plan.Items)
	}
	pushed, failed, processed := 0, 0, 0
	for _, plan := range plans {
		results, err := env.Adapter.UpdateInventory(ctx, plan.Items)
		if err != nil {
			return nil, fmt.Errorf("update inventory for shop %s: %w", plan.ExternalShopID, err)
		}
		now := e.now()
		for sku, res := range results {
			b, ok := plan.Bindings[sku]
			if !ok {
				continue
			}
			if !res.Success {
				failed++
				e.logger.Warn("stock push rejected",
					zap.String("shop", plan.ExternalShopID),
					zap.String("sku", sku),
					zap.String("error", res.Error))
				continue
			}
			b.RecordPush(plan.Quantities[sku], res.ExternalID(), now)
			if err := e.bindings.Save(ctx, b); err != nil {
				return nil, fmt.Errorf("record push for %s: %w", sku, err)
			}
			pushed++
		}
		processed += len(plan.Items)
		env.Progress(processed, total)

		if shop, err := e.shops.FindByID(ctx, plan.ShopID); err == nil {
			shop.RecordStockSync(now)
			if err := e.shops.Save(ctx, shop); err != nil {
				e.logger.Warn("recording stock sync",
					zap.String("shop", plan.ExternalShopID), zap.Error(err))
			}
		}
	}
	return map[string]any{"pushed": pushed, "failed": failed}, nil
}

// loadBindings resolves the payload's binding IDs; an empty list means
// every pushable binding of the account's shops.
func (e *PushStockExecutor) loadBindings(ctx context.Context, env *Env, ids []uuid.UUID) ([]*binding.ProductBinding, error) {
	if len(ids) > 0 {
		return e.bindings.FindByIDs(ctx, ids)
	}
	shops, err := e.shops.ListByAccount(ctx, env.Account.ID)
	if err != nil {
		return nil, err
	}
	var all []*binding.ProductBinding
	for _, shop := range shops {
		bs, err := e.bindings.ListPushable(ctx, shop.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, bs...)
	}
	return all, nil
}
