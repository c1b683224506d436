package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/erp"
	"github.com/channelhub/backend/internal/domain/order"
)

func newMaterializerFixture(t *testing.T) (*channel.Account, *channel.Shop) {
	t.Helper()
	account, err := channel.NewAccount("lazada-main", channel.CodeLazada, nil)
	require.NoError(t, err)
	shop, err := channel.NewShop(account.ID, "lz-2001", "Lazada Store")
	require.NoError(t, err)
	return account, shop
}

func newNormalized(externalID, customer string) *order.NormalizedOrder {
	return &order.NormalizedOrder{
		ExternalOrderID: externalID,
		Status:          order.StatePending,
		OrderDate:       time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		CustomerName:    customer,
		AmountTotal:     decimal.NewFromInt(250),
		Currency:        "THB",
		Lines: []order.NormalizedOrderLine{
			{
				ExternalSKU: "SKU-A",
				ProductName: "Widget",
				Quantity:    decimal.NewFromInt(2),
				PriceUnit:   decimal.NewFromInt(125),
			},
		},
	}
}

func newMaterializer(orders *fakeOrderRepo, bindings *fakeBindingRepo, partners *fakePartnerRepo, products *fakeProductRepo, sales *fakeSaleOrderRepo) *Materializer {
	return NewMaterializer(orders, bindings, partners, products, sales, nil, zap.NewNop())
}

func TestMaterializer_Ingest_CreatesSaleOrder(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	orders := newFakeOrderRepo()
	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A", Name: "Widget"})
	partners := newFakePartnerRepo()
	sales := newFakeSaleOrderRepo()
	bindings := newFakeBindingRepo()

	m := newMaterializer(orders, bindings, partners, products, sales)
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Materialized)
	assert.Zero(t, result.Failed)

	require.Len(t, sales.created, 1)
	sale := sales.created[0]
	assert.Equal(t, "EXT-1", sale.Name)
	assert.Equal(t, "lazada:EXT-1", sale.Origin)
	assert.Equal(t, erp.SaleOrderDraft, sale.State)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, 1, sale.Lines[0].Sequence)
	assert.True(t, sale.Lines[0].Quantity.Equal(decimal.NewFromInt(2)))

	// The missing customer was created and linked.
	require.Len(t, partners.created, 1)
	assert.Equal(t, "Alice", partners.created[0].Name)
	assert.Equal(t, partners.created[0].ID, sale.PartnerID)

	stored, err := orders.FindByExternalIDs(context.Background(), shop.ID, []string{"EXT-1"})
	require.NoError(t, err)
	require.Contains(t, stored, "EXT-1")
	assert.Equal(t, order.StateSynced, stored["EXT-1"].State)
	require.NotNil(t, stored["EXT-1"].SaleOrderID)
	assert.Equal(t, sale.ID, *stored["EXT-1"].SaleOrderID)
}

func TestMaterializer_Ingest_RefreshesKnownOrder(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	orders := newFakeOrderRepo()
	products := newFakeProductRepo()
	m := newMaterializer(orders, newFakeBindingRepo(), newFakePartnerRepo(), products, newFakeSaleOrderRepo())

	_, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	refreshed := newNormalized("EXT-1", "Alice")
	refreshed.Status = order.StateCancelled
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{refreshed})
	require.NoError(t, err)

	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, orders.orders, 1)
	stored, err := orders.FindByExternalIDs(context.Background(), shop.ID, []string{"EXT-1"})
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, stored["EXT-1"].State)
}

func TestMaterializer_Ingest_RelinksExistingSaleOrder(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	orders := newFakeOrderRepo()
	sales := newFakeSaleOrderRepo()
	existing := &erp.SaleOrder{
		ID:     uuid.New(),
		Origin: "lazada:EXT-1",
		State:  erp.SaleOrderConfirmed,
	}
	sales.byOrigin[existing.Origin] = existing

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	m := newMaterializer(orders, newFakeBindingRepo(), newFakePartnerRepo(), products, sales)
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Relinked)
	assert.Equal(t, 1, result.Materialized)
	assert.Empty(t, sales.created, "a linked order must not be created twice")

	stored, err := orders.FindByExternalIDs(context.Background(), shop.ID, []string{"EXT-1"})
	require.NoError(t, err)
	require.NotNil(t, stored["EXT-1"].SaleOrderID)
	assert.Equal(t, existing.ID, *stored["EXT-1"].SaleOrderID)
}

func TestMaterializer_Ingest_CancelledSaleOrderIsReplaced(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	sales := newFakeSaleOrderRepo()
	sales.byOrigin["lazada:EXT-1"] = &erp.SaleOrder{
		ID:     uuid.New(),
		Origin: "lazada:EXT-1",
		State:  erp.SaleOrderCancelled,
	}

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), newFakePartnerRepo(), products, sales)
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	assert.Zero(t, result.Relinked)
	require.Len(t, sales.created, 1)
}

func TestMaterializer_Ingest_PartnerPriorityNameBeforeEmail(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	partners := newFakePartnerRepo()
	byName := &erp.Partner{ID: uuid.New(), Name: "Alice"}
	byEmail := &erp.Partner{ID: uuid.New(), Name: "Someone Else", Email: "alice@example.com"}
	partners.add(byName)
	partners.add(byEmail)

	n := newNormalized("EXT-1", "Alice")
	n.CustomerEmail = "alice@example.com"

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	sales := newFakeSaleOrderRepo()
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), partners, products, sales)
	_, err := m.Ingest(context.Background(), account, shop, []*order.NormalizedOrder{n})
	require.NoError(t, err)

	require.Len(t, sales.created, 1)
	assert.Equal(t, byName.ID, sales.created[0].PartnerID)
	assert.Empty(t, partners.created)
}

func TestMaterializer_Ingest_DifferentCompanyPartnerNotReused(t *testing.T) {
	companyID := uuid.New()
	account, err := channel.NewAccount("lazada-main", channel.CodeLazada, &companyID)
	require.NoError(t, err)
	shop, err := channel.NewShop(account.ID, "lz-2001", "Lazada Store")
	require.NoError(t, err)

	otherCompany := uuid.New()
	partners := newFakePartnerRepo()
	partners.add(&erp.Partner{ID: uuid.New(), Name: "Alice", CompanyID: &otherCompany})

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	sales := newFakeSaleOrderRepo()
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), partners, products, sales)
	_, err = m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	require.Len(t, partners.created, 1, "a fresh partner must be created instead")
	require.NotNil(t, partners.created[0].CompanyID)
	assert.Equal(t, companyID, *partners.created[0].CompanyID)
}

func TestMaterializer_Ingest_CompanylessPartnerAdopted(t *testing.T) {
	companyID := uuid.New()
	account, err := channel.NewAccount("lazada-main", channel.CodeLazada, &companyID)
	require.NoError(t, err)
	shop, err := channel.NewShop(account.ID, "lz-2001", "Lazada Store")
	require.NoError(t, err)

	partners := newFakePartnerRepo()
	companyless := &erp.Partner{ID: uuid.New(), Name: "Alice"}
	partners.add(companyless)

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	sales := newFakeSaleOrderRepo()
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), partners, products, sales)
	_, err = m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	assert.Equal(t, companyID, partners.adopted[companyless.ID])
	require.Len(t, sales.created, 1)
	assert.Equal(t, companyless.ID, sales.created[0].PartnerID)
}

func TestMaterializer_Ingest_FullyMaskedCustomerFails(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	partners := newFakePartnerRepo()
	partners.add(&erp.Partner{ID: uuid.New(), Name: "*****"})

	n := newNormalized("EXT-1", "*****")
	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), partners, products, newFakeSaleOrderRepo())
	result, err := m.Ingest(context.Background(), account, shop, []*order.NormalizedOrder{n})
	require.NoError(t, err)

	// A fully masked name cleans to empty, so nothing can be matched or
	// created and the order fails.
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, partners.created)
}

func TestMaterializer_Ingest_CreatesMissingProductsAndBindings(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	products := newFakeProductRepo()
	bindings := newFakeBindingRepo()
	sales := newFakeSaleOrderRepo()

	m := newMaterializer(newFakeOrderRepo(), bindings, newFakePartnerRepo(), products, sales)
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Materialized)

	require.Len(t, products.created, 1)
	created := products.created[0]
	assert.Equal(t, "SKU-A", created.DefaultCode)
	assert.Equal(t, "Widget", created.Name)
	assert.True(t, created.IsStorable)
	assert.True(t, created.ListPrice.Equal(decimal.NewFromInt(125)))

	require.Len(t, bindings.saved, 1)
	assert.Equal(t, "SKU-A", bindings.saved[0].ExternalSKU)
	require.NotNil(t, bindings.saved[0].ProductID)
	assert.Equal(t, created.ID, *bindings.saved[0].ProductID)
}

func TestMaterializer_Ingest_AutoConfirm(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	account.AutoConfirmOrders = true

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	sales := newFakeSaleOrderRepo()
	orders := newFakeOrderRepo()
	m := newMaterializer(orders, newFakeBindingRepo(), newFakePartnerRepo(), products, sales)
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Materialized)
	require.Len(t, sales.confirmed, 1)
	assert.Equal(t, sales.created[0].ID, sales.confirmed[0])
}

func TestMaterializer_Ingest_AutoConfirmFailureIsWarning(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	account.AutoConfirmOrders = true

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	sales := newFakeSaleOrderRepo()
	sales.confirmErr = errors.New("host rejected confirmation")
	orders := newFakeOrderRepo()

	m := newMaterializer(orders, newFakeBindingRepo(), newFakePartnerRepo(), products, sales)
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	// The order stays synced; the confirmation failure is recorded, not fatal.
	assert.Equal(t, 1, result.Materialized)
	assert.Zero(t, result.Failed)
	stored, err := orders.FindByExternalIDs(context.Background(), shop.ID, []string{"EXT-1"})
	require.NoError(t, err)
	assert.Equal(t, order.StateSynced, stored["EXT-1"].State)
	assert.Contains(t, stored["EXT-1"].SyncError, "auto-confirm failed")
}

func TestMaterializer_Ingest_LineWithoutSKUFails(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	n := newNormalized("EXT-1", "Alice")
	n.Lines[0].ExternalSKU = ""

	orders := newFakeOrderRepo()
	m := newMaterializer(orders, newFakeBindingRepo(), newFakePartnerRepo(), newFakeProductRepo(), newFakeSaleOrderRepo())
	result, err := m.Ingest(context.Background(), account, shop, []*order.NormalizedOrder{n})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	stored, err := orders.FindByExternalIDs(context.Background(), shop.ID, []string{"EXT-1"})
	require.NoError(t, err)
	assert.Equal(t, order.StateFailed, stored["EXT-1"].State)
	assert.Contains(t, stored["EXT-1"].SyncError, "no SKU")
}

func TestMaterializer_Ingest_BatchContinuesPastFailedOrder(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	bad := newNormalized("EXT-BAD", "Alice")
	bad.Lines = nil
	good := newNormalized("EXT-GOOD", "Bob")

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	sales := newFakeSaleOrderRepo()
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), newFakePartnerRepo(), products, sales)
	result, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{bad, good})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Materialized)
	require.Len(t, sales.created, 1)
	assert.Equal(t, "EXT-GOOD", sales.created[0].Name)
}

func TestMaterializer_Ingest_DedupesCreatedPartnersWithinBatch(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	first := newNormalized("EXT-1", "Alice")
	second := newNormalized("EXT-2", "Alice")

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	partners := newFakePartnerRepo()
	sales := newFakeSaleOrderRepo()
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), partners, products, sales)
	_, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{first, second})
	require.NoError(t, err)

	require.Len(t, partners.created, 1)
	require.Len(t, sales.created, 2)
	assert.Equal(t, sales.created[0].PartnerID, sales.created[1].PartnerID)
}

func TestMaterializer_Ingest_LargeBatchIsChunked(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	var normalized []*order.NormalizedOrder
	for i := 0; i < materializeBatchSize+10; i++ {
		normalized = append(normalized, newNormalized(fmt.Sprintf("EXT-%03d", i), "Alice"))
	}

	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})
	sales := newFakeSaleOrderRepo()
	m := newMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), newFakePartnerRepo(), products, sales)
	result, err := m.Ingest(context.Background(), account, shop, normalized)
	require.NoError(t, err)

	assert.Equal(t, materializeBatchSize+10, result.Created)
	assert.Equal(t, materializeBatchSize+10, result.Materialized)
	assert.Len(t, sales.created, materializeBatchSize+10)
}

func TestMaterializer_Ingest_AuditPosted(t *testing.T) {
	account, shop := newMaterializerFixture(t)
	audit := &fakeAuditLog{}
	products := newFakeProductRepo(&erp.Product{ID: uuid.New(), DefaultCode: "SKU-A"})

	m := NewMaterializer(newFakeOrderRepo(), newFakeBindingRepo(), newFakePartnerRepo(),
		products, newFakeSaleOrderRepo(), audit, zap.NewNop())
	_, err := m.Ingest(context.Background(), account, shop,
		[]*order.NormalizedOrder{newNormalized("EXT-1", "Alice")})
	require.NoError(t, err)

	require.Len(t, audit.posts, 1)
	assert.Contains(t, audit.posts[0], "1 materialized")
}
