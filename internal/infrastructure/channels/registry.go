package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/infrastructure/httpclient"
)

// RegistryConfig carries the deployment-level endpoints shared by every
// account: where OAuth callbacks land and where webhooks are delivered.
type RegistryConfig struct {
	// OAuthRedirectBase is the public base URL of the OAuth callback
	// endpoints, e.g. https://hub.example.com/api/v1/oauth
	OAuthRedirectBase string
	// WebhookURL is the public webhook delivery URL registered with each
	// platform; part of the Shopee push signature base
	WebhookURL string

	// Per-channel base URL overrides, empty for production
	ShopeeBaseURL     string
	LazadaBaseURL     string
	LazadaAuthBaseURL string
	TikTokBaseURL     string
	TikTokAuthBaseURL string
	ZortoutBaseURL    string
}

// Registry builds channel adapters bound to accounts. One HTTP session is
// pooled per account so keep-alive connections survive across jobs.
type Registry struct {
	config RegistryConfig
	shops  channel.ShopRepository
	logger *zap.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]*httpclient.Client
}

// NewRegistry creates the adapter registry.
func NewRegistry(config RegistryConfig, shops channel.ShopRepository, logger *zap.Logger) *Registry {
	return &Registry{
		config:  config,
		shops:   shops,
		logger:  logger,
		clients: make(map[uuid.UUID]*httpclient.Client),
	}
}

// AdapterFor builds the adapter bound to the account. Adapters are cheap to
// construct; only the HTTP session is cached so token state always comes
// from the account row.
func (r *Registry) AdapterFor(ctx context.Context, account *channel.Account) (channel.Adapter, error) {
	client := r.clientFor(account.ID)

	switch account.Channel {
	case channel.CodeShopee:
		externalShopID, err := r.externalShopID(ctx, account)
		if err != nil {
			return nil, err
		}
		return NewShopeeAdapter(&ShopeeConfig{
			PartnerID:    account.ClientID,
			PartnerKey:   account.ClientSecret,
			ShopID:       externalShopID,
			AccessToken:  account.AccessToken,
			RefreshToken: account.RefreshToken,
			RedirectURL:  r.config.OAuthRedirectBase + "/shopee/callback",
			PushURL:      r.config.WebhookURL,
			BaseURL:      r.config.ShopeeBaseURL,
		}, client, r.logger)

	case channel.CodeLazada:
		return NewLazadaAdapter(&LazadaConfig{
			AppKey:       account.ClientID,
			AppSecret:    account.ClientSecret,
			AccessToken:  account.AccessToken,
			RefreshToken: account.RefreshToken,
			RedirectURL:  r.config.OAuthRedirectBase + "/lazada/callback",
			BaseURL:      r.config.LazadaBaseURL,
			AuthBaseURL:  r.config.LazadaAuthBaseURL,
		}, client, r.logger)

	case channel.CodeTikTok:
		return NewTikTokAdapter(&TikTokConfig{
			AppKey:       account.ClientID,
			AppSecret:    account.ClientSecret,
			ServiceID:    account.SecondaryKey,
			ShopID:       r.optionalShopID(ctx, account),
			AccessToken:  account.AccessToken,
			RefreshToken: account.RefreshToken,
			BaseURL:      r.config.TikTokBaseURL,
			AuthBaseURL:  r.config.TikTokAuthBaseURL,
		}, client, r.logger)

	case channel.CodeWooCommerce:
		storeURL, err := r.externalShopID(ctx, account)
		if err != nil {
			return nil, err
		}
		return NewWooAdapter(&WooConfig{
			StoreURL:       storeURL,
			ConsumerKey:    account.ClientID,
			ConsumerSecret: account.SecondaryKey,
			WebhookSecret:  account.ClientSecret,
		}, client, r.logger)

	case channel.CodeZortout:
		return NewZortoutAdapter(&ZortoutConfig{
			StoreName: account.ClientID,
			APIKey:    account.ClientSecret,
			APISecret: account.SecondaryKey,
			BaseURL:   r.config.ZortoutBaseURL,
		}, client, r.logger)

	default:
		return nil, fmt.Errorf("%w: channel %q", channel.ErrValidation, account.Channel)
	}
}

// externalShopID resolves the account's shop identity: the Shopee shop ID
// or the WooCommerce store URL.
func (r *Registry) externalShopID(ctx context.Context, account *channel.Account) (string, error) {
	shops, err := r.shops.ListByAccount(ctx, account.ID)
	if err != nil {
		return "", err
	}
	if len(shops) == 0 {
		return "", fmt.Errorf("%w: account %s has no shop", channel.ErrAuthNotConfigured, account.Name)
	}
	return shops[0].ExternalShopID, nil
}

// optionalShopID is externalShopID for channels that tolerate an
// unauthorized account (consent not granted yet).
func (r *Registry) optionalShopID(ctx context.Context, account *channel.Account) string {
	id, err := r.externalShopID(ctx, account)
	if err != nil {
		return ""
	}
	return id
}

func (r *Registry) clientFor(accountID uuid.UUID) *httpclient.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[accountID]
	if !ok {
		client = httpclient.New(httpclient.WithLogger(r.logger))
		r.clients[accountID] = client
	}
	return client
}

var _ channel.Registry = (*Registry)(nil)
