package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/infrastructure/token"
)

// DispatcherConfig tunes one dispatcher instance.
type DispatcherConfig struct {
	// Limit is the per-tick execution budget; selection reads 3x this
	Limit int
	// StuckAfter is how long an in-progress job may run before recovery
	StuckAfter time.Duration
}

// DefaultDispatcherConfig returns the default dispatcher tuning.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Limit:      10,
		StuckAfter: 60 * time.Minute,
	}
}

// Dispatcher drives one tick of the job loop: recover stuck jobs, select
// runnable candidates, enforce per-account concurrency, and execute each
// surviving job under the retry ladder. Parallel dispatchers coordinate
// only through the job store; the two counting passes defend against
// sibling races.
type Dispatcher struct {
	config    DispatcherConfig
	store     job.Store
	accounts  channel.AccountRepository
	registry  channel.Registry
	tokens    *token.Manager
	executors ExecutorSet
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	config DispatcherConfig,
	store job.Store,
	accounts channel.AccountRepository,
	registry channel.Registry,
	tokens *token.Manager,
	executors ExecutorSet,
	logger *zap.Logger,
) *Dispatcher {
	if config.Limit <= 0 {
		config.Limit = DefaultDispatcherConfig().Limit
	}
	if config.StuckAfter <= 0 {
		config.StuckAfter = DefaultDispatcherConfig().StuckAfter
	}
	return &Dispatcher{
		config:    config,
		store:     store,
		accounts:  accounts,
		registry:  registry,
		tokens:    tokens,
		executors: executors,
		logger:    logger.Named("dispatcher"),
		now:       time.Now,
	}
}

// TickResult summarizes one dispatcher tick.
type TickResult struct {
	Recovered int
	Selected  int
	Skipped   int
	Executed  int
}

// Tick runs one dispatch cycle.
func (d *Dispatcher) Tick(ctx context.Context) (*TickResult, error) {
	now := d.now()
	result := &TickResult{}

	recovered, err := d.store.RecoverStuck(ctx, now.Add(-d.config.StuckAfter), now)
	if err != nil {
		return result, fmt.Errorf("recover stuck jobs: %w", err)
	}
	result.Recovered = recovered
	if recovered > 0 {
		d.logger.Warn("recovered stuck jobs", zap.Int("count", recovered))
	}

	candidates, err := d.store.SelectRunnable(ctx, now, 3*d.config.Limit)
	if err != nil {
		return result, fmt.Errorf("select runnable jobs: %w", err)
	}
	result.Selected = len(candidates)
	if len(candidates) == 0 {
		return result, nil
	}
	promotePullOrders(candidates)

	accountCache := make(map[uuid.UUID]*channel.Account)
	var admitted []*job.Job
	for _, j := range candidates {
		account, err := d.accountFor(ctx, accountCache, j.AccountID)
		if err != nil {
			d.failUnowned(ctx, j, err, now)
			result.Skipped++
			continue
		}
		if skipped := d.applySkips(ctx, j, account, now); skipped {
			result.Skipped++
			continue
		}
		admitted = append(admitted, j)
	}

	// Select-time concurrency pass.
	counts, err := d.store.CountInProgressByAccount(ctx)
	if err != nil {
		return result, fmt.Errorf("count in-progress jobs: %w", err)
	}
	admitted = d.applyCaps(admitted, counts, accountCache)
	sortForExecution(admitted)
	if len(admitted) > d.config.Limit {
		admitted = admitted[:d.config.Limit]
	}

	// Execute-time concurrency pass, re-read to catch sibling dispatchers
	// that started jobs since selection.
	counts, err = d.store.CountInProgressByAccount(ctx)
	if err != nil {
		return result, fmt.Errorf("recount in-progress jobs: %w", err)
	}
	admitted = d.applyCaps(admitted, counts, accountCache)

	for _, j := range admitted {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		d.executeWithRetry(ctx, j, accountCache[j.AccountID])
		result.Executed++
	}
	return result, nil
}

// accountFor loads an account once per tick.
func (d *Dispatcher) accountFor(ctx context.Context, cache map[uuid.UUID]*channel.Account, id uuid.UUID) (*channel.Account, error) {
	if a, ok := cache[id]; ok {
		return a, nil
	}
	a, err := d.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = a
	return a, nil
}

// applySkips short-circuits jobs that must not run: Shopee pulls without
// tokens and pulls for revoked accounts complete as skipped, Zortout pulls
// are removed outright (the channel has no order API).
func (d *Dispatcher) applySkips(ctx context.Context, j *job.Job, account *channel.Account, now time.Time) bool {
	if j.Type != job.TypePullOrder {
		return false
	}
	if account.Channel == channel.CodeZortout {
		if err := d.store.Delete(ctx, j.ID); err != nil {
			d.logger.Error("removing zortout pull job", zap.String("job_id", j.ID.String()), zap.Error(err))
		}
		return true
	}
	var reason string
	switch {
	case account.AuthRevoked:
		reason = "auth_revoked"
	case account.Channel == channel.CodeShopee && !account.HasTokens():
		reason = "not_connected"
	default:
		return false
	}
	if err := j.SkipDone(reason, now); err != nil {
		d.logger.Error("skipping job", zap.String("job_id", j.ID.String()), zap.Error(err))
		return true
	}
	if err := d.store.Save(ctx, j); err != nil {
		d.logger.Error("saving skipped job", zap.String("job_id", j.ID.String()), zap.Error(err))
	}
	return true
}

// failUnowned kills a job whose account cannot be loaded.
func (d *Dispatcher) failUnowned(ctx context.Context, j *job.Job, cause error, now time.Time) {
	d.logger.Error("job account unavailable",
		zap.String("job_id", j.ID.String()),
		zap.String("account_id", j.AccountID.String()),
		zap.Error(cause))
	if err := j.Kill(fmt.Sprintf("account unavailable: %v", cause), now); err != nil {
		return
	}
	if err := d.store.Save(ctx, j); err != nil {
		d.logger.Error("saving killed job", zap.String("job_id", j.ID.String()), zap.Error(err))
	}
}

// applyCaps drops candidates that would push an account over its
// concurrency cap, counting the candidates admitted so far.
func (d *Dispatcher) applyCaps(candidates []*job.Job, inProgress map[uuid.UUID]int, accounts map[uuid.UUID]*channel.Account) []*job.Job {
	projected := make(map[uuid.UUID]int, len(inProgress))
	for id, n := range inProgress {
		projected[id] = n
	}
	var kept []*job.Job
	for _, j := range candidates {
		limit := channel.DefaultMaxConcurrentJobs
		if a := accounts[j.AccountID]; a != nil && a.MaxConcurrentJobs > 0 {
			limit = a.MaxConcurrentJobs
		}
		if projected[j.AccountID]+1 > limit {
			continue
		}
		projected[j.AccountID]++
		kept = append(kept, j)
	}
	return kept
}

// executeWithRetry runs one job through the state machine: start, execute,
// complete; on transient failure re-enter pending with exponential backoff
// until the retry budget is spent, then dead. Terminal channel errors skip
// the retry ladder and kill the job immediately.
func (d *Dispatcher) executeWithRetry(ctx context.Context, j *job.Job, account *channel.Account) {
	now := d.now()
	if err := j.Start(now); err != nil {
		d.logger.Error("starting job", zap.String("job_id", j.ID.String()), zap.Error(err))
		return
	}
	if err := d.store.Save(ctx, j); err != nil {
		d.logger.Error("saving started job", zap.String("job_id", j.ID.String()), zap.Error(err))
		return
	}

	result, execErr := d.execute(ctx, j, account)
	now = d.now()
	if execErr == nil {
		if err := j.Complete(result, now); err == nil {
			if err := d.store.Save(ctx, j); err != nil {
				d.logger.Error("saving completed job", zap.String("job_id", j.ID.String()), zap.Error(err))
			}
		}
		d.logger.Info("job completed",
			zap.String("job_id", j.ID.String()),
			zap.String("type", j.Type.String()),
			zap.Duration("duration", j.Duration))
		return
	}

	if channel.IsTerminal(execErr) {
		if err := j.Kill(execErr.Error(), now); err == nil {
			if err := d.store.Save(ctx, j); err != nil {
				d.logger.Error("saving dead job", zap.String("job_id", j.ID.String()), zap.Error(err))
			}
		}
		d.logger.Error("job dead, terminal error",
			zap.String("job_id", j.ID.String()),
			zap.String("type", j.Type.String()),
			zap.Error(execErr))
		return
	}

	if j.CanRetry() {
		delay := j.RetryBackoff()
		if err := j.RetryIn(delay, execErr.Error(), now); err == nil {
			if err := d.store.Save(ctx, j); err != nil {
				d.logger.Error("saving retried job", zap.String("job_id", j.ID.String()), zap.Error(err))
			}
		}
		d.logger.Warn("job failed, retrying",
			zap.String("job_id", j.ID.String()),
			zap.String("type", j.Type.String()),
			zap.Int("retries", j.Retries),
			zap.Duration("delay", delay),
			zap.Error(execErr))
		return
	}

	if err := j.Kill(execErr.Error(), now); err == nil {
		if err := d.store.Save(ctx, j); err != nil {
			d.logger.Error("saving dead job", zap.String("job_id", j.ID.String()), zap.Error(err))
		}
	}
	d.logger.Error("job dead, retry budget spent",
		zap.String("job_id", j.ID.String()),
		zap.String("type", j.Type.String()),
		zap.Error(execErr))
}

// execute resolves the account's adapter and runs the type executor.
func (d *Dispatcher) execute(ctx context.Context, j *job.Job, account *channel.Account) (map[string]any, error) {
	exec, ok := d.executors[j.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutor, j.Type)
	}
	fresh, err := d.tokens.EnsureFresh(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("ensure fresh tokens: %w", err)
	}
	adapter, err := d.registry.AdapterFor(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("build adapter: %w", err)
	}
	env := &Env{
		Job:     j,
		Account: fresh,
		Adapter: adapter,
		Progress: func(processed, total int) {
			if err := d.store.UpdateProgress(ctx, j.ID, processed, total); err != nil {
				d.logger.Debug("progress update failed",
					zap.String("job_id", j.ID.String()), zap.Error(err))
			}
		},
	}
	return exec.Execute(ctx, env)
}

// promotePullOrders moves order pulls ahead of everything else while
// keeping the store's ordering inside each group.
func promotePullOrders(jobs []*job.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].Type == job.TypePullOrder && jobs[k].Type != job.TypePullOrder
	})
}

// sortForExecution stabilizes batch ordering: within the same promotion
// group and priority tier, jobs run by ascending batch index.
func sortForExecution(jobs []*job.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		aPull := a.Type == job.TypePullOrder
		bPull := b.Type == job.TypePullOrder
		if aPull != bPull {
			return aPull
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		return a.BatchIndex() < b.BatchIndex()
	})
}
