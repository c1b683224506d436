package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/erp"
)

func newZortoutAccount(t *testing.T) *channel.Account {
	t.Helper()
	account, err := channel.NewAccount("zortout-main", channel.CodeZortout, nil)
	require.NoError(t, err)
	return account
}

func feedRow(sku, name string, onHand int64) channel.FeedProduct {
	return channel.FeedProduct{
		SKU:       sku,
		Name:      name,
		SellPrice: decimal.NewFromInt(100),
		CostPrice: decimal.NewFromInt(60),
		OnHand:    decimal.NewFromInt(onHand),
	}
}

func TestZortoutImporter_Run_CreatesMissingProducts(t *testing.T) {
	account := newZortoutAccount(t)
	products := newFakeProductRepo()
	stock := newFakeStockRepo()
	feed := &fakeFeed{pages: [][]channel.FeedProduct{{feedRow("SKU-NEW", "New Widget", 12)}}, total: 1}

	imp := NewZortoutImporter(products, stock, zap.NewNop())
	stats, err := imp.Run(context.Background(), account, feed, channel.FeedOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Rows)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Adjusted)

	require.Len(t, products.created, 1)
	created := products.created[0]
	assert.Equal(t, "SKU-NEW", created.DefaultCode)
	assert.True(t, created.IsStorable)
	assert.True(t, created.ListPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, created.StandardPrice.Equal(decimal.NewFromInt(60)))
	assert.True(t, stock.onHand[created.ID].Equal(decimal.NewFromInt(12)))
}

func TestZortoutImporter_Run_AdjustsDelta(t *testing.T) {
	account := newZortoutAccount(t)
	existing := &erp.Product{ID: uuid.New(), DefaultCode: "SKU-A", IsStorable: true}
	products := newFakeProductRepo(existing)
	stock := newFakeStockRepo()
	stock.onHand[existing.ID] = decimal.NewFromInt(7)

	feed := &fakeFeed{pages: [][]channel.FeedProduct{{feedRow("SKU-A", "Widget", 10)}}, total: 1}
	imp := NewZortoutImporter(products, stock, zap.NewNop())
	stats, err := imp.Run(context.Background(), account, feed, channel.FeedOptions{}, nil)
	require.NoError(t, err)

	assert.Zero(t, stats.Created)
	assert.Equal(t, 1, stats.Adjusted)
	assert.True(t, stock.adjustments[existing.ID].Equal(decimal.NewFromInt(3)))
	assert.True(t, stock.onHand[existing.ID].Equal(decimal.NewFromInt(10)))
}

func TestZortoutImporter_Run_NoAdjustmentWhenInSync(t *testing.T) {
	account := newZortoutAccount(t)
	existing := &erp.Product{ID: uuid.New(), DefaultCode: "SKU-A", IsStorable: true}
	products := newFakeProductRepo(existing)
	stock := newFakeStockRepo()
	stock.onHand[existing.ID] = decimal.NewFromInt(10)

	feed := &fakeFeed{pages: [][]channel.FeedProduct{{feedRow("SKU-A", "Widget", 10)}}, total: 1}
	imp := NewZortoutImporter(products, stock, zap.NewNop())
	stats, err := imp.Run(context.Background(), account, feed, channel.FeedOptions{}, nil)
	require.NoError(t, err)

	assert.Zero(t, stats.Adjusted)
	assert.Empty(t, stock.adjustments)
}

func TestZortoutImporter_Run_ForcesStorable(t *testing.T) {
	account := newZortoutAccount(t)
	consumable := &erp.Product{ID: uuid.New(), DefaultCode: "SKU-A", Type: "consumable"}
	products := newFakeProductRepo(consumable)
	stock := newFakeStockRepo()

	feed := &fakeFeed{pages: [][]channel.FeedProduct{{feedRow("SKU-A", "Widget", 0)}}, total: 1}
	imp := NewZortoutImporter(products, stock, zap.NewNop())
	_, err := imp.Run(context.Background(), account, feed, channel.FeedOptions{}, nil)
	require.NoError(t, err)

	require.Len(t, products.madeStorable, 1)
	assert.Equal(t, consumable.ID, products.madeStorable[0])
	assert.True(t, consumable.IsStorable)
}

func TestZortoutImporter_Run_SkipsEmptyAndDuplicateSKUs(t *testing.T) {
	account := newZortoutAccount(t)
	products := newFakeProductRepo()
	stock := newFakeStockRepo()

	feed := &fakeFeed{pages: [][]channel.FeedProduct{{
		feedRow("", "No SKU", 5),
		feedRow("SKU-A", "Widget", 5),
		feedRow("SKU-A", "Widget Again", 9),
	}}, total: 3}
	imp := NewZortoutImporter(products, stock, zap.NewNop())
	stats, err := imp.Run(context.Background(), account, feed, channel.FeedOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Created)
}

func TestZortoutImporter_Run_PagesToCompletion(t *testing.T) {
	account := newZortoutAccount(t)
	account.StockSyncBatchSize = 2

	var page1, page2 []channel.FeedProduct
	for i := 0; i < 2; i++ {
		page1 = append(page1, feedRow(fmt.Sprintf("SKU-P1-%d", i), "Widget", 1))
	}
	page2 = append(page2, feedRow("SKU-P2-0", "Widget", 1))

	products := newFakeProductRepo()
	stock := newFakeStockRepo()
	feed := &fakeFeed{pages: [][]channel.FeedProduct{page1, page2}, total: 3}

	var progressCalls int
	var lastDone, lastTotal int
	imp := NewZortoutImporter(products, stock, zap.NewNop())
	stats, err := imp.Run(context.Background(), account, feed, channel.FeedOptions{}, func(done, total int) {
		progressCalls++
		lastDone, lastTotal = done, total
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 3, stats.Created)
	assert.Equal(t, 2, feed.calls)
	assert.GreaterOrEqual(t, progressCalls, 2)
	assert.Equal(t, 3, lastDone)
	assert.Equal(t, 3, lastTotal)
}

func TestZortoutImporter_Run_UsesAccountStockLocation(t *testing.T) {
	account := newZortoutAccount(t)
	loc := uuid.New()
	account.StockLocationID = &loc

	products := newFakeProductRepo()
	stock := newFakeStockRepo()
	feed := &fakeFeed{pages: [][]channel.FeedProduct{{feedRow("SKU-A", "Widget", 1)}}, total: 1}

	imp := NewZortoutImporter(products, stock, zap.NewNop())
	_, err := imp.Run(context.Background(), account, feed, channel.FeedOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, loc, stock.lastLocation)
}
