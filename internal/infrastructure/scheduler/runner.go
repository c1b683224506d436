package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
)

// RunnerConfig holds the cron expressions of the periodic loops.
type RunnerConfig struct {
	DispatchSpec  string
	PullSpec      string
	PushSpec      string
	StockSyncSpec string
	RetentionSpec string
}

// DefaultRunnerConfig returns the default loop cadence.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DispatchSpec:  "@every 15s",
		PullSpec:      "@every 1m",
		PushSpec:      "@every 1m",
		StockSyncSpec: "@every 1m",
		RetentionSpec: "@every 1h",
	}
}

// Runner wires the dispatcher, the auto-scheduler ticks and retention GC
// onto a cron. The account intervals gate how often jobs actually get
// emitted; the cron cadence only bounds reaction latency.
type Runner struct {
	config   RunnerConfig
	cron     *cron.Cron
	dispatch *Dispatcher
	auto     *AutoScheduler
	accounts channel.AccountRepository
	store    job.Store
	logger   *zap.Logger
}

// NewRunner creates a new Runner.
func NewRunner(
	config RunnerConfig,
	dispatch *Dispatcher,
	auto *AutoScheduler,
	accounts channel.AccountRepository,
	store job.Store,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		config:   config,
		cron:     cron.New(),
		dispatch: dispatch,
		auto:     auto,
		accounts: accounts,
		store:    store,
		logger:   logger.Named("runner"),
	}
}

// Start registers the loops and starts the cron. The given context bounds
// every loop invocation.
func (r *Runner) Start(ctx context.Context) error {
	loops := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{r.config.DispatchSpec, "dispatch", func(ctx context.Context) error {
			_, err := r.dispatch.Tick(ctx)
			return err
		}},
		{r.config.PullSpec, "pull", r.auto.TickPull},
		{r.config.PushSpec, "push", r.auto.TickPush},
		{r.config.StockSyncSpec, "stock_sync", r.auto.TickStockSync},
		{r.config.RetentionSpec, "retention", r.purgeDone},
	}
	for _, loop := range loops {
		loop := loop
		if _, err := r.cron.AddFunc(loop.spec, func() {
			if err := loop.run(ctx); err != nil {
				r.logger.Error("loop failed", zap.String("loop", loop.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	r.cron.Start()
	r.logger.Info("scheduler started")
	return nil
}

// Stop stops the cron and waits for running loops to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("scheduler stopped")
}

// purgeDone applies each account's retention settings to its done jobs.
func (r *Runner) purgeDone(ctx context.Context) error {
	accounts, err := r.accounts.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		n, err := r.store.PurgeDone(ctx, account.ID, account.RetentionDays, account.RetentionKeepCount)
		if err != nil {
			r.logger.Error("retention purge",
				zap.String("account_id", account.ID.String()), zap.Error(err))
			continue
		}
		if n > 0 {
			r.logger.Info("purged done jobs",
				zap.String("account_id", account.ID.String()), zap.Int("purged", n))
		}
	}
	return nil
}
