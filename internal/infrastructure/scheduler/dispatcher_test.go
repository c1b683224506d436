package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/infrastructure/cache"
	"github.com/channelhub/backend/internal/infrastructure/token"
)

type stubExecutor struct {
	jobType job.Type
	run     func(ctx context.Context, env *Env) (map[string]any, error)
}

func (e *stubExecutor) Type() job.Type { return e.jobType }

func (e *stubExecutor) Execute(ctx context.Context, env *Env) (map[string]any, error) {
	if e.run == nil {
		return map[string]any{"ok": true}, nil
	}
	return e.run(ctx, env)
}

type dispatchFixture struct {
	store    *memStore
	accounts *stubAccounts
	registry *stubRegistry
	dispatch *Dispatcher
}

func newDispatchFixture(t *testing.T, executors ...Executor) *dispatchFixture {
	t.Helper()
	store := newMemStore()
	accounts := newStubAccounts()
	registry := newStubRegistry()
	set, err := NewExecutorSet(executors...)
	require.NoError(t, err)
	tokens := token.NewManager(accounts, registry, cache.NewMemoryLocker(), zap.NewNop())
	d := NewDispatcher(DispatcherConfig{Limit: 10, StuckAfter: time.Hour},
		store, accounts, registry, tokens, set, zap.NewNop())
	return &dispatchFixture{store: store, accounts: accounts, registry: registry, dispatch: d}
}

func mustAccount(t *testing.T, code channel.Code) *channel.Account {
	t.Helper()
	account, err := channel.NewAccount("Test "+string(code), code, nil)
	require.NoError(t, err)
	return account
}

func mustJob(t *testing.T, fx *dispatchFixture, jt job.Type, accountID uuid.UUID, payload job.Payload) *job.Job {
	t.Helper()
	j, err := job.New(jt, accountID, nil, payload)
	require.NoError(t, err)
	require.NoError(t, fx.store.Create(context.Background(), j))
	return j
}

func TestDispatcher_Tick_ExecutesPendingJob(t *testing.T) {
	exec := &stubExecutor{jobType: job.TypePushStock, run: func(_ context.Context, env *Env) (map[string]any, error) {
		env.Progress(3, 3)
		return map[string]any{"pushed": 3}, nil
	}}
	fx := newDispatchFixture(t, exec)
	account := mustAccount(t, channel.CodeWooCommerce)
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	j := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Selected)
	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, 0, result.Skipped)

	done, err := fx.store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDone, done.State)
	assert.Equal(t, 3, done.Result["pushed"])
	assert.Equal(t, 100, done.Progress)
	assert.NotNil(t, done.CompletedAt)
}

func TestDispatcher_Tick_SkipsShopeeWithoutTokens(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePullOrder})
	account := mustAccount(t, channel.CodeShopee)
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	j := mustJob(t, fx, job.TypePullOrder, account.ID, job.Payload{})

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Executed)

	skipped, err := fx.store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDone, skipped.State)
	assert.Equal(t, "not_connected", skipped.Result["skipped"])
}

func TestDispatcher_Tick_SkipsRevokedPull(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePullOrder})
	account := mustAccount(t, channel.CodeLazada)
	account.AccessToken = "reachable"
	account.AuthRevoked = true
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	j := mustJob(t, fx, job.TypePullOrder, account.ID, job.Payload{})

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	skipped, err := fx.store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDone, skipped.State)
	assert.Equal(t, "auth_revoked", skipped.Result["skipped"])
}

func TestDispatcher_Tick_RemovesZortoutPull(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePullOrder})
	account := mustAccount(t, channel.CodeZortout)
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	j := mustJob(t, fx, job.TypePullOrder, account.ID, job.Payload{})

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	_, err = fx.store.GetByID(context.Background(), j.ID)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestDispatcher_Tick_KillsJobWithoutAccount(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock})
	j := mustJob(t, fx, job.TypePushStock, uuid.New(), job.Payload{})

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	dead, err := fx.store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDead, dead.State)
	assert.Contains(t, dead.LastError, "account unavailable")
}

func TestDispatcher_Tick_EnforcesConcurrencyCap(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock})
	account := mustAccount(t, channel.CodeWooCommerce)
	account.MaxConcurrentJobs = 1
	require.NoError(t, fx.accounts.Save(context.Background(), account))

	running := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})
	require.NoError(t, running.Start(time.Now()))
	require.NoError(t, fx.store.Save(context.Background(), running))

	waiting := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Executed)

	still, err := fx.store.GetByID(context.Background(), waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, still.State)
}

func TestDispatcher_Tick_CapCountsAdmittedSiblings(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock})
	account := mustAccount(t, channel.CodeWooCommerce)
	account.MaxConcurrentJobs = 2
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	for i := 0; i < 4; i++ {
		mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})
	}

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Executed)

	pending := 0
	for _, j := range fx.store.byType(job.TypePushStock) {
		if j.State == job.StatePending {
			pending++
		}
	}
	assert.Equal(t, 2, pending)
}

func TestDispatcher_Tick_PullRunsBeforePush(t *testing.T) {
	var order []job.Type
	record := func(jt job.Type) func(context.Context, *Env) (map[string]any, error) {
		return func(_ context.Context, _ *Env) (map[string]any, error) {
			order = append(order, jt)
			return nil, nil
		}
	}
	fx := newDispatchFixture(t,
		&stubExecutor{jobType: job.TypePullOrder, run: record(job.TypePullOrder)},
		&stubExecutor{jobType: job.TypePushStock, run: record(job.TypePushStock)},
	)
	account := mustAccount(t, channel.CodeWooCommerce)
	require.NoError(t, fx.accounts.Save(context.Background(), account))

	mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})
	mustJob(t, fx, job.TypePullOrder, account.ID, job.Payload{})

	_, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, job.TypePullOrder, order[0])
	assert.Equal(t, job.TypePushStock, order[1])
}

func TestDispatcher_Tick_BatchesRunInIndexOrder(t *testing.T) {
	var seen []int
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock,
		run: func(_ context.Context, env *Env) (map[string]any, error) {
			seen = append(seen, env.Job.BatchIndex())
			return nil, nil
		}})
	account := mustAccount(t, channel.CodeWooCommerce)
	account.MaxConcurrentJobs = 10
	require.NoError(t, fx.accounts.Save(context.Background(), account))

	for _, index := range []int{2, 0, 1} {
		i := index
		mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{
			BatchIndex: &i, BatchTotal: 3, BatchSize: 10,
		})
	}

	_, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestDispatcher_Tick_RetriesFailedJob(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock,
		run: func(context.Context, *Env) (map[string]any, error) {
			return nil, errors.New("channel unreachable")
		}})
	account := mustAccount(t, channel.CodeWooCommerce)
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	j := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})

	_, err := fx.dispatch.Tick(context.Background())
	require.NoError(t, err)

	failed, err := fx.store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, failed.State)
	assert.Equal(t, 1, failed.Retries)
	assert.Contains(t, failed.LastError, "channel unreachable")
	require.NotNil(t, failed.NextRunAt)
	assert.WithinDuration(t, time.Now().Add(2*time.Minute), *failed.NextRunAt, 5*time.Second)
}

func TestDispatcher_Tick_TerminalErrorKillsWithoutRetry(t *testing.T) {
	tests := []struct {
		name     string
		sentinel error
	}{
		{"validation", channel.ErrValidation},
		{"malformed response", channel.ErrMalformedResponse},
		{"auth revoked", channel.ErrAuthRevoked},
		{"auth not configured", channel.ErrAuthNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock,
				run: func(context.Context, *Env) (map[string]any, error) {
					return nil, fmt.Errorf("%w: bad interval", tt.sentinel)
				}})
			account := mustAccount(t, channel.CodeWooCommerce)
			require.NoError(t, fx.accounts.Save(context.Background(), account))
			j := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})

			_, err := fx.dispatch.Tick(context.Background())
			require.NoError(t, err)

			dead, err := fx.store.GetByID(context.Background(), j.ID)
			require.NoError(t, err)
			assert.Equal(t, job.StateDead, dead.State)
			assert.Equal(t, 0, dead.Retries)
			assert.Contains(t, dead.LastError, "bad interval")
			assert.NotNil(t, dead.CompletedAt)
		})
	}
}

func TestDispatcher_Tick_KillsAfterRetryBudget(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock,
		run: func(context.Context, *Env) (map[string]any, error) {
			return nil, errors.New("still broken")
		}})
	account := mustAccount(t, channel.CodeWooCommerce)
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	j := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})
	j.Retries = j.MaxRetries
	require.NoError(t, fx.store.Save(context.Background(), j))

	_, err := fx.dispatch.Tick(context.Background())
	require.NoError(t, err)

	dead, err := fx.store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDead, dead.State)
	assert.Contains(t, dead.LastError, "still broken")
}

func TestDispatcher_Tick_RecoversStuckJob(t *testing.T) {
	fx := newDispatchFixture(t, &stubExecutor{jobType: job.TypePushStock})
	account := mustAccount(t, channel.CodeWooCommerce)
	require.NoError(t, fx.accounts.Save(context.Background(), account))

	stuck := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})
	require.NoError(t, stuck.Start(time.Now().Add(-2*time.Hour)))
	require.NoError(t, fx.store.Save(context.Background(), stuck))

	result, err := fx.dispatch.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)

	done, err := fx.store.GetByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDone, done.State)
}

func TestDispatcher_Tick_UnknownTypeEntersRetryLadder(t *testing.T) {
	fx := newDispatchFixture(t)
	account := mustAccount(t, channel.CodeWooCommerce)
	require.NoError(t, fx.accounts.Save(context.Background(), account))
	j := mustJob(t, fx, job.TypePushStock, account.ID, job.Payload{})

	_, err := fx.dispatch.Tick(context.Background())
	require.NoError(t, err)

	failed, err := fx.store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, failed.State)
	assert.Contains(t, failed.LastError, ErrNoExecutor.Error())
}
