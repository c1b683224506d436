package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/domain/order"
)

const (
	// defaultOrderLookback is the pull window on a shop's first sync
	defaultOrderLookback = 7 * 24 * time.Hour
	// firstPullRetryLookback widens the window once when the first pull
	// of a shop comes back empty
	firstPullRetryLookback = 30 * 24 * time.Hour
)

// PullOrdersExecutor pulls the order window for every shop of the job's
// account (or one shop when the job is shop-scoped) and feeds the
// normalized payloads into the materialization pipeline. It also backs the
// backfill type, which carries an explicit window and never advances the
// shop's sync point.
type PullOrdersExecutor struct {
	jobType      job.Type
	shops        channel.ShopRepository
	materializer *appsync.Materializer
	logger       *zap.Logger
	now          func() time.Time
}

// NewPullOrdersExecutor creates the pull_order executor.
func NewPullOrdersExecutor(shops channel.ShopRepository, materializer *appsync.Materializer, logger *zap.Logger) *PullOrdersExecutor {
	return &PullOrdersExecutor{
		jobType:      job.TypePullOrder,
		shops:        shops,
		materializer: materializer,
		logger:       logger.Named("pull_orders"),
		now:          time.Now,
	}
}

// NewBackfillOrdersExecutor creates the backfill flavor of the executor.
func NewBackfillOrdersExecutor(shops channel.ShopRepository, materializer *appsync.Materializer, logger *zap.Logger) *PullOrdersExecutor {
	return &PullOrdersExecutor{
		jobType:      job.TypeBackfillOrders,
		shops:        shops,
		materializer: materializer,
		logger:       logger.Named("backfill_orders"),
		now:          time.Now,
	}
}

func (e *PullOrdersExecutor) Type() job.Type { return e.jobType }

func (e *PullOrdersExecutor) Execute(ctx context.Context, env *Env) (map[string]any, error) {
	shops, err := e.targetShops(ctx, env)
	if err != nil {
		return nil, err
	}

	totals := &appsync.IngestResult{}
	pulled := 0
	for i, shop := range shops {
		n, err := e.pullShop(ctx, env, shop, totals)
		if err != nil {
			return nil, fmt.Errorf("shop %s: %w", shop.ExternalShopID, err)
		}
		pulled += n
		env.Progress(i+1, len(shops))
	}
	return map[string]any{
		"shops":        len(shops),
		"orders":       pulled,
		"created":      totals.Created,
		"updated":      totals.Updated,
		"materialized": totals.Materialized,
		"relinked":     totals.Relinked,
		"failed":       totals.Failed,
	}, nil
}

func (e *PullOrdersExecutor) targetShops(ctx context.Context, env *Env) ([]*channel.Shop, error) {
	if env.Job.ShopID != nil {
		shop, err := e.shops.FindByID(ctx, *env.Job.ShopID)
		if err != nil {
			return nil, err
		}
		return []*channel.Shop{shop}, nil
	}
	return e.shops.ListByAccount(ctx, env.Account.ID)
}

// pullShop fetches one shop's window, retrying once with the wide lookback
// when the very first pull comes back empty, and ingests the result.
func (e *PullOrdersExecutor) pullShop(ctx context.Context, env *Env, shop *channel.Shop, totals *appsync.IngestResult) (int, error) {
	since, until, err := e.window(env.Job, shop)
	if err != nil {
		return 0, err
	}

	raws, err := env.Adapter.FetchOrders(ctx, &channel.FetchOrdersRequest{
		Since:          since,
		Until:          until,
		TimeField:      channel.TimeFieldCreated,
		ExternalShopID: shop.ExternalShopID,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch orders: %w", err)
	}
	if len(raws) == 0 && shop.LastOrderSyncAt == nil && e.jobType == job.TypePullOrder {
		raws, err = env.Adapter.FetchOrders(ctx, &channel.FetchOrdersRequest{
			Since:          until.Add(-firstPullRetryLookback),
			Until:          until,
			TimeField:      channel.TimeFieldCreated,
			ExternalShopID: shop.ExternalShopID,
		})
		if err != nil {
			return 0, fmt.Errorf("fetch orders, wide window: %w", err)
		}
	}

	var normalized []*order.NormalizedOrder
	for _, raw := range raws {
		n, err := env.Adapter.ParseOrderPayload(raw)
		if err != nil {
			e.logger.Warn("unparseable order payload dropped",
				zap.String("shop", shop.ExternalShopID), zap.Error(err))
			continue
		}
		normalized = append(normalized, n)
	}
	result, err := e.materializer.Ingest(ctx, env.Account, shop, normalized)
	if err != nil {
		return 0, fmt.Errorf("ingest orders: %w", err)
	}
	totals.Created += result.Created
	totals.Updated += result.Updated
	totals.Materialized += result.Materialized
	totals.Relinked += result.Relinked
	totals.Failed += result.Failed

	// The sync point advances on every regular pull, including empty ones.
	// Backfills replay history and must leave it alone.
	if e.jobType == job.TypePullOrder {
		shop.RecordOrderSync(until)
		if err := e.shops.Save(ctx, shop); err != nil {
			return 0, fmt.Errorf("record order sync: %w", err)
		}
	}
	return len(raws), nil
}

// window resolves [since, until] for one shop: the job's explicit window
// for backfills, the sync point or default lookback for regular pulls.
func (e *PullOrdersExecutor) window(j *job.Job, shop *channel.Shop) (time.Time, time.Time, error) {
	now := e.now()
	if e.jobType == job.TypeBackfillOrders {
		since, err := time.Parse(time.RFC3339, j.Payload.StartDatetime)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q", ErrInvalidWindow, j.Payload.StartDatetime)
		}
		until, err := time.Parse(time.RFC3339, j.Payload.EndDatetime)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q", ErrInvalidWindow, j.Payload.EndDatetime)
		}
		if !until.After(since) {
			return time.Time{}, time.Time{}, ErrInvalidWindow
		}
		return since, until, nil
	}
	return shop.OrderWindowStart(now, defaultOrderLookback), now, nil
}
