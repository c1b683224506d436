package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/infrastructure/cache"
)

const (
	// refreshLockTTL bounds how long a crashed refresher blocks siblings
	refreshLockTTL = 30 * time.Second
	// refreshWaitInterval paces lock-wait polling
	refreshWaitInterval = 500 * time.Millisecond
	// refreshWaitBudget bounds how long a caller waits on a sibling refresh
	refreshWaitBudget = 15 * time.Second
)

// ErrRefreshInFlight is returned when the wait budget for a sibling's
// refresh runs out.
var ErrRefreshInFlight = errors.New("token: refresh already in flight")

// Manager keeps account tokens fresh. Refresh is single-flight at the
// account granularity across every worker: the first caller takes the
// distributed lock and refreshes, siblings wait and re-read the stored
// tokens.
type Manager struct {
	accounts channel.AccountRepository
	registry channel.Registry
	locker   cache.Locker
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewManager creates the token manager.
func NewManager(accounts channel.AccountRepository, registry channel.Registry, locker cache.Locker, logger *zap.Logger) *Manager {
	return &Manager{
		accounts: accounts,
		registry: registry,
		locker:   locker,
		logger:   logger.Named("token"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// EnsureFresh returns the account with a usable access token, refreshing
// first when the token is inside the expiry grace window. Channels without
// OAuth pass straight through.
func (m *Manager) EnsureFresh(ctx context.Context, account *channel.Account) (*channel.Account, error) {
	if !account.Channel.UsesOAuth() {
		return account, nil
	}
	if account.AuthRevoked {
		return nil, fmt.Errorf("%w: account %s", channel.ErrAuthRevoked, account.Name)
	}
	if !account.TokenExpiring(m.now()) {
		return account, nil
	}
	return m.refresh(ctx, account)
}

func (m *Manager) refresh(ctx context.Context, account *channel.Account) (*channel.Account, error) {
	lockKey := "token:refresh:" + account.ID.String()
	deadline := m.now().Add(refreshWaitBudget)

	for {
		release, acquired, err := m.locker.TryAcquire(ctx, lockKey, refreshLockTTL)
		if err != nil {
			return nil, err
		}
		if acquired {
			defer release()
			return m.refreshLocked(ctx, account.ID)
		}

		// A sibling holds the lock. Wait, then re-read: its refresh very
		// likely served us already.
		if err := m.sleep(ctx, refreshWaitInterval); err != nil {
			return nil, err
		}
		current, err := m.accounts.FindByID(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		if current.AuthRevoked {
			return nil, fmt.Errorf("%w: account %s", channel.ErrAuthRevoked, current.Name)
		}
		if !current.TokenExpiring(m.now()) {
			return current, nil
		}
		if m.now().After(deadline) {
			return nil, fmt.Errorf("%w: account %s", ErrRefreshInFlight, account.Name)
		}
	}
}

// refreshLocked performs the refresh under the lock. The account is
// re-read first so a refresh completed between the expiry check and the
// lock acquisition is not repeated.
func (m *Manager) refreshLocked(ctx context.Context, accountID uuid.UUID) (*channel.Account, error) {
	account, err := m.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.TokenExpiring(m.now()) {
		return account, nil
	}

	adapter, err := m.registry.AdapterFor(ctx, account)
	if err != nil {
		return nil, err
	}

	tokens, err := adapter.RefreshAccessToken(ctx)
	if err != nil {
		if errors.Is(err, channel.ErrAuthRevoked) {
			account.FlagRevoked(m.now())
			if saveErr := m.accounts.SaveTokens(ctx, account); saveErr != nil {
				m.logger.Error("failed to persist revocation flag",
					zap.String("account", account.Name),
					zap.Error(saveErr),
				)
			}
			m.logger.Warn("account de-authorized on platform side",
				zap.String("account", account.Name),
				zap.String("channel", string(account.Channel)),
			)
		}
		return nil, err
	}

	account.ApplyTokens(tokens, m.now())
	if err := m.accounts.SaveTokens(ctx, account); err != nil {
		return nil, fmt.Errorf("token: persist refreshed tokens: %w", err)
	}

	m.logger.Info("access token refreshed",
		zap.String("account", account.Name),
		zap.String("channel", string(account.Channel)),
		zap.Timep("expires_at", account.TokenExpiresAt),
	)
	return account, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
