package channel

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Account defaults and bounds.
const (
	// DefaultMaxConcurrentJobs caps in-flight jobs per account
	DefaultMaxConcurrentJobs = 3
	// DefaultMaxRetries is the job retry budget
	DefaultMaxRetries = 3
	// MaxPushBatchSize bounds the push batch size setting
	MaxPushBatchSize = 200
	// MaxStockSyncBatchSize bounds the stock-sync batch size setting
	MaxStockSyncBatchSize = 1000
	// TokenRefreshGrace is how close to expiry a token may get before any
	// outbound call forces a refresh
	TokenRefreshGrace = 5 * time.Minute
)

var (
	ErrAccountNotFound        = errors.New("channel: account not found")
	ErrAccountInvalidChannel  = errors.New("channel: invalid channel code")
	ErrAccountMissingName     = errors.New("channel: account name is required")
	ErrAccountInvalidInterval = errors.New("channel: sync interval must be at least one minute")
	ErrAccountInvalidBatch    = errors.New("channel: batch size out of range")
)

// Account is one authenticated relationship to one marketplace. Credentials
// and tokens live here; shops, bindings and jobs hang off it by ID only.
type Account struct {
	ID        uuid.UUID
	Name      string
	Channel   Code
	CompanyID *uuid.UUID
	Active    bool

	// AuthRevoked is set when a refresh fails with a revocation error.
	// The auto-scheduler stops emitting jobs for flagged accounts and
	// pending pull jobs short-circuit to done.
	AuthRevoked bool

	// Credentials. SecondaryKey carries the second half of split
	// credentials: WooCommerce consumer secret, Zortout API secret.
	ClientID     string
	ClientSecret string
	SecondaryKey string

	// Current tokens
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time

	// Sync configuration (minutes, all >= 1)
	PullIntervalMin      int
	PushIntervalMin      int
	StockSyncIntervalMin int

	// PushBatchSize is the push fan-out size; 0 disables batching
	PushBatchSize int
	// StockSyncBatchSize bounds Zortout ingestion batches
	StockSyncBatchSize int
	// MaxConcurrentJobs caps simultaneously running jobs for this account
	MaxConcurrentJobs int

	// Stock push policy
	StockLocationID *uuid.UUID
	PushBuffer      int
	MinOnlineQty    int

	// AutoConfirmOrders confirms materialized sale orders immediately
	AutoConfirmOrders bool

	// Retention for done jobs
	RetentionDays      int
	RetentionKeepCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates an account with defaulted configuration.
func NewAccount(name string, code Code, companyID *uuid.UUID) (*Account, error) {
	now := time.Now()
	a := &Account{
		ID:                   uuid.New(),
		Name:                 name,
		Channel:              code,
		CompanyID:            companyID,
		Active:               true,
		PullIntervalMin:      15,
		PushIntervalMin:      30,
		StockSyncIntervalMin: 60,
		PushBatchSize:        50,
		StockSyncBatchSize:   500,
		MaxConcurrentJobs:    DefaultMaxConcurrentJobs,
		RetentionDays:        30,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks configuration bounds and fills defaults.
func (a *Account) Validate() error {
	if a.Name == "" {
		return ErrAccountMissingName
	}
	if !a.Channel.IsValid() {
		return ErrAccountInvalidChannel
	}
	if a.PullIntervalMin < 1 || a.PushIntervalMin < 1 || a.StockSyncIntervalMin < 1 {
		return ErrAccountInvalidInterval
	}
	if a.PushBatchSize < 0 || a.PushBatchSize > MaxPushBatchSize {
		return ErrAccountInvalidBatch
	}
	if a.StockSyncBatchSize < 0 || a.StockSyncBatchSize > MaxStockSyncBatchSize {
		return ErrAccountInvalidBatch
	}
	if a.MaxConcurrentJobs <= 0 {
		a.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	return nil
}

// HasTokens returns true if the account holds an access or refresh token.
func (a *Account) HasTokens() bool {
	return a.AccessToken != "" || a.RefreshToken != ""
}

// TokenExpiring returns true if the access token expires within the grace
// window (or has no recorded expiry at all while a refresh token exists).
func (a *Account) TokenExpiring(now time.Time) bool {
	if a.AccessToken == "" {
		return true
	}
	if a.TokenExpiresAt == nil {
		return false
	}
	return !a.TokenExpiresAt.After(now.Add(TokenRefreshGrace))
}

// ApplyTokens records a token exchange or refresh result. An empty refresh
// token in the result keeps the previous one (Lazada omits it on refresh).
func (a *Account) ApplyTokens(t *Tokens, now time.Time) {
	a.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		a.RefreshToken = t.RefreshToken
	}
	if !t.ExpiresAt.IsZero() {
		expires := t.ExpiresAt
		a.TokenExpiresAt = &expires
	}
	a.AuthRevoked = false
	a.UpdatedAt = now
}

// FlagRevoked marks the account as de-authorized on the platform side.
func (a *Account) FlagRevoked(now time.Time) {
	a.AuthRevoked = true
	a.UpdatedAt = now
}

// Schedulable returns true if the auto-scheduler may emit jobs for this
// account.
func (a *Account) Schedulable() bool {
	return a.Active && !a.AuthRevoked
}
