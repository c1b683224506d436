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

// pushStagger is the next_run_at offset between sibling push batches
const pushStagger = 5 * time.Second

// AutoScheduler emits the recurring jobs. Three independent ticks cover
// order pulls, stock pushes and inventory-master syncs; each tick walks
// the active accounts and creates the next job when the account's interval
// has elapsed since the last successful run and no sibling is pending.
type AutoScheduler struct {
	accounts channel.AccountRepository
	shops    channel.ShopRepository
	bindings binding.Repository
	store    job.Store
	logger   *zap.Logger
	now      func() time.Time
}

// NewAutoScheduler creates a new AutoScheduler.
func NewAutoScheduler(
	accounts channel.AccountRepository,
	shops channel.ShopRepository,
	bindings binding.Repository,
	store job.Store,
	logger *zap.Logger,
) *AutoScheduler {
	return &AutoScheduler{
		accounts: accounts,
		shops:    shops,
		bindings: bindings,
		store:    store,
		logger:   logger.Named("autoscheduler"),
		now:      time.Now,
	}
}

// TickPull emits pull_order jobs for accounts whose pull interval elapsed.
func (s *AutoScheduler) TickPull(ctx context.Context) error {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if !account.Schedulable() {
			continue
		}
		// The inventory master has no order API.
		if account.Channel == channel.CodeZortout {
			continue
		}
		if account.Channel == channel.CodeShopee && !account.HasTokens() {
			if n, err := s.store.DeletePending(ctx, job.TypePullOrder, account.ID); err != nil {
				s.logger.Error("pre-clean of disconnected account",
					zap.String("account_id", account.ID.String()), zap.Error(err))
			} else if n > 0 {
				s.logger.Info("removed pull jobs of disconnected account",
					zap.String("account_id", account.ID.String()), zap.Int("removed", n))
			}
			continue
		}
		interval := time.Duration(account.PullIntervalMin) * time.Minute
		if err := s.emitIfDue(ctx, account, job.TypePullOrder, interval, job.Payload{}); err != nil {
			s.logger.Error("emitting pull job",
				zap.String("account_id", account.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// TickStockSync emits feed-ingestion jobs for inventory-master accounts.
func (s *AutoScheduler) TickStockSync(ctx context.Context) error {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if !account.Schedulable() || account.Channel != channel.CodeZortout {
			continue
		}
		interval := time.Duration(account.StockSyncIntervalMin) * time.Minute
		if err := s.emitIfDue(ctx, account, job.TypeSyncStockFromZortout, interval, job.Payload{}); err != nil {
			s.logger.Error("emitting stock sync job",
				zap.String("account_id", account.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// TickPush emits push_stock jobs, fanning out into staggered batches when
// the account's pushable binding set exceeds its batch size.
func (s *AutoScheduler) TickPush(ctx context.Context) error {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if !account.Schedulable() {
			continue
		}
		if err := s.emitPush(ctx, account); err != nil {
			s.logger.Error("emitting push jobs",
				zap.String("account_id", account.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *AutoScheduler) emitPush(ctx context.Context, account *channel.Account) error {
	interval := time.Duration(account.PushIntervalMin) * time.Minute
	due, err := s.due(ctx, account, job.TypePushStock, interval)
	if err != nil || !due {
		return err
	}

	ids, err := s.pushableBindingIDs(ctx, account)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	batch := account.PushBatchSize
	if batch <= 0 || len(ids) <= batch {
		j, err := job.New(job.TypePushStock, account.ID, nil, job.Payload{BindingIDs: ids})
		if err != nil {
			return err
		}
		return s.store.Create(ctx, j)
	}

	batches := (len(ids) + batch - 1) / batch
	now := s.now()
	for i := 0; i < batches; i++ {
		end := (i + 1) * batch
		if end > len(ids) {
			end = len(ids)
		}
		index := i
		j, err := job.New(job.TypePushStock, account.ID, nil, job.Payload{
			BindingIDs: ids[i*batch : end],
			BatchIndex: &index,
			BatchTotal: batches,
			BatchSize:  batch,
		})
		if err != nil {
			return err
		}
		runAt := now.Add(time.Duration(i) * pushStagger)
		j.NextRunAt = &runAt
		if err := s.store.Create(ctx, j); err != nil {
			return err
		}
	}
	s.logger.Info("push fan-out",
		zap.String("account_id", account.ID.String()),
		zap.Int("bindings", len(ids)),
		zap.Int("batches", batches))
	return nil
}

// emitIfDue creates one job when the interval elapsed and no sibling runs.
func (s *AutoScheduler) emitIfDue(ctx context.Context, account *channel.Account, t job.Type, interval time.Duration, payload job.Payload) error {
	due, err := s.due(ctx, account, t, interval)
	if err != nil || !due {
		return err
	}
	j, err := job.New(t, account.ID, nil, payload)
	if err != nil {
		return err
	}
	return s.store.Create(ctx, j)
}

// due reports whether the next job of a type should exist: the interval
// elapsed since the last successful run (measured from its start) and no
// pending or in-progress sibling exists.
func (s *AutoScheduler) due(ctx context.Context, account *channel.Account, t job.Type, interval time.Duration) (bool, error) {
	last, err := s.store.LastSuccessful(ctx, t, account.ID)
	if err != nil {
		return false, err
	}
	if last != nil && last.StartedAt != nil && s.now().Before(last.StartedAt.Add(interval)) {
		return false, nil
	}
	sibling, err := s.store.FindPendingSibling(ctx, t, account.ID, nil)
	if err != nil {
		return false, err
	}
	return sibling == nil, nil
}

// pushableBindingIDs collects the active non-excluded bindings across the
// account's shops.
func (s *AutoScheduler) pushableBindingIDs(ctx context.Context, account *channel.Account) ([]uuid.UUID, error) {
	shops, err := s.shops.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, shop := range shops {
		bs, err := s.bindings.ListPushable(ctx, shop.ID)
		if err != nil {
			return nil, err
		}
		for _, b := range bs {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}
