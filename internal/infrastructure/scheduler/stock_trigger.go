package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
)

// debounceWindow is how recently a pending push job must have been created
// to absorb new binding IDs instead of spawning a sibling
const debounceWindow = 10 * time.Minute

// StockTrigger reacts to host stock movements: affected products fan in to
// their bindings, group by shop, and either merge into a recent pending
// push_stock job or create a new one. A merge that outgrows the account's
// push batch size is split into fresh batch jobs and the predecessor
// removed.
type StockTrigger struct {
	accounts channel.AccountRepository
	shops    channel.ShopRepository
	bindings binding.Repository
	store    job.Store
	logger   *zap.Logger
	now      func() time.Time
}

// NewStockTrigger creates a new StockTrigger.
func NewStockTrigger(
	accounts channel.AccountRepository,
	shops channel.ShopRepository,
	bindings binding.Repository,
	store job.Store,
	logger *zap.Logger,
) *StockTrigger {
	return &StockTrigger{
		accounts: accounts,
		shops:    shops,
		bindings: bindings,
		store:    store,
		logger:   logger.Named("stock_trigger"),
		now:      time.Now,
	}
}

// OnStockChanged schedules pushes for every shop bound to any of the given
// products. Per-shop failures are logged and do not stop the fan-out.
func (t *StockTrigger) OnStockChanged(ctx context.Context, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	affected, err := t.bindings.ListPushableByProducts(ctx, productIDs)
	if err != nil {
		return err
	}
	byShop := make(map[uuid.UUID][]uuid.UUID)
	for _, b := range affected {
		byShop[b.ShopID] = append(byShop[b.ShopID], b.ID)
	}
	for shopID, ids := range byShop {
		if err := t.scheduleShopPush(ctx, shopID, ids); err != nil {
			t.logger.Error("scheduling shop push",
				zap.String("shop_id", shopID.String()), zap.Error(err))
		}
	}
	return nil
}

func (t *StockTrigger) scheduleShopPush(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) error {
	shop, err := t.shops.FindByID(ctx, shopID)
	if err != nil {
		return err
	}
	account, err := t.accounts.FindByID(ctx, shop.AccountID)
	if err != nil {
		return err
	}
	if !account.Schedulable() {
		return nil
	}

	sibling, err := t.store.FindPendingSibling(ctx, job.TypePushStock, account.ID, &shopID)
	if err != nil {
		return err
	}
	if sibling != nil && sibling.State == job.StatePending &&
		t.now().Sub(sibling.CreatedAt) <= debounceWindow {
		merged := mergeIDs(sibling.Payload.BindingIDs, ids)
		if account.PushBatchSize > 0 && len(merged) > account.PushBatchSize {
			if err := t.createBatches(ctx, account, shopID, merged); err != nil {
				return err
			}
			return t.store.Delete(ctx, sibling.ID)
		}
		sibling.Payload.BindingIDs = merged
		return t.store.Save(ctx, sibling)
	}

	j, err := job.New(job.TypePushStock, account.ID, &shopID, job.Payload{BindingIDs: ids})
	if err != nil {
		return err
	}
	return t.store.Create(ctx, j)
}

// createBatches splits an oversized merged set into staggered batch jobs.
func (t *StockTrigger) createBatches(ctx context.Context, account *channel.Account, shopID uuid.UUID, ids []uuid.UUID) error {
	batch := account.PushBatchSize
	batches := (len(ids) + batch - 1) / batch
	now := t.now()
	for i := 0; i < batches; i++ {
		end := (i + 1) * batch
		if end > len(ids) {
			end = len(ids)
		}
		index := i
		j, err := job.New(job.TypePushStock, account.ID, &shopID, job.Payload{
			BindingIDs: ids[i*batch : end],
			BatchIndex: &index,
			BatchTotal: batches,
			BatchSize:  batch,
			AutoSplit:  true,
		})
		if err != nil {
			return err
		}
		runAt := now.Add(time.Duration(i) * pushStagger)
		j.NextRunAt = &runAt
		if err := t.store.Create(ctx, j); err != nil {
			return err
		}
	}
	t.logger.Info("merged push split into batches",
		zap.String("account_id", account.ID.String()),
		zap.String("shop_id", shopID.String()),
		zap.Int("bindings", len(ids)),
		zap.Int("batches", batches))
	return nil
}

// mergeIDs unions two ID lists preserving first-seen order.
func mergeIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, list := range [][]uuid.UUID{a, b} {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
