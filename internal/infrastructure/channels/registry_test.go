package channels

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
)

type stubShopRepo struct {
	shops map[uuid.UUID][]*channel.Shop
}

func (s *stubShopRepo) FindByID(context.Context, uuid.UUID) (*channel.Shop, error) {
	return nil, channel.ErrShopNotFound
}

func (s *stubShopRepo) FindByExternalID(context.Context, uuid.UUID, string) (*channel.Shop, error) {
	return nil, channel.ErrShopNotFound
}

func (s *stubShopRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*channel.Shop, error) {
	return s.shops[accountID], nil
}

func (s *stubShopRepo) Save(context.Context, *channel.Shop) error { return nil }
func (s *stubShopRepo) Delete(context.Context, uuid.UUID) error   { return nil }

func registryAccount(t *testing.T, code channel.Code) *channel.Account {
	t.Helper()
	account, err := channel.NewAccount("acc-"+string(code), code, nil)
	require.NoError(t, err)
	account.ClientID = "id"
	account.ClientSecret = "secret"
	account.SecondaryKey = "secondary"
	return account
}

func TestRegistryAdapterFor(t *testing.T) {
	repo := &stubShopRepo{shops: map[uuid.UUID][]*channel.Shop{}}
	registry := NewRegistry(RegistryConfig{
		OAuthRedirectBase: "https://hub.example.com/api/v1/oauth",
		WebhookURL:        "https://hub.example.com/api/v1/webhook",
	}, repo, zap.NewNop())

	tests := []struct {
		code     channel.Code
		external string
	}{
		{channel.CodeShopee, "889900"},
		{channel.CodeLazada, ""},
		{channel.CodeTikTok, "7001"},
		{channel.CodeWooCommerce, "https://shop.example.com"},
		{channel.CodeZortout, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			account := registryAccount(t, tt.code)
			if tt.external != "" {
				shop, err := channel.NewShop(account.ID, tt.external, "shop")
				require.NoError(t, err)
				repo.shops[account.ID] = []*channel.Shop{shop}
			}

			adapter, err := registry.AdapterFor(context.Background(), account)
			require.NoError(t, err)
			assert.Equal(t, tt.code, adapter.Channel())
		})
	}
}

func TestRegistryShopeeRequiresShop(t *testing.T) {
	repo := &stubShopRepo{shops: map[uuid.UUID][]*channel.Shop{}}
	registry := NewRegistry(RegistryConfig{}, repo, zap.NewNop())

	account := registryAccount(t, channel.CodeShopee)
	_, err := registry.AdapterFor(context.Background(), account)
	require.ErrorIs(t, err, channel.ErrAuthNotConfigured)
}

func TestRegistrySharesClientPerAccount(t *testing.T) {
	repo := &stubShopRepo{shops: map[uuid.UUID][]*channel.Shop{}}
	registry := NewRegistry(RegistryConfig{}, repo, zap.NewNop())

	account := registryAccount(t, channel.CodeLazada)
	first := registry.clientFor(account.ID)
	second := registry.clientFor(account.ID)
	assert.Same(t, first, second)

	other := registry.clientFor(uuid.New())
	assert.NotSame(t, first, other)
}
