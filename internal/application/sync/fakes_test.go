package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/erp"
	"github.com/channelhub/backend/internal/domain/order"
)

// In-memory fakes for the host-side and persistence ports. Each fake keeps
// just enough state for the service under test and records the mutating
// calls so assertions can inspect them.

// ---------------------------------------------------------------------------
// channel ports
// ---------------------------------------------------------------------------

type fakeShopRepo struct {
	shops map[uuid.UUID]*channel.Shop
}

func newFakeShopRepo(shops ...*channel.Shop) *fakeShopRepo {
	r := &fakeShopRepo{shops: make(map[uuid.UUID]*channel.Shop)}
	for _, s := range shops {
		r.shops[s.ID] = s
	}
	return r
}

func (r *fakeShopRepo) FindByID(_ context.Context, id uuid.UUID) (*channel.Shop, error) {
	s, ok := r.shops[id]
	if !ok {
		return nil, channel.ErrShopNotFound
	}
	return s, nil
}

func (r *fakeShopRepo) FindByExternalID(_ context.Context, accountID uuid.UUID, externalShopID string) (*channel.Shop, error) {
	for _, s := range r.shops {
		if s.AccountID == accountID && s.ExternalShopID == externalShopID {
			return s, nil
		}
	}
	return nil, channel.ErrShopNotFound
}

func (r *fakeShopRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*channel.Shop, error) {
	var out []*channel.Shop
	for _, s := range r.shops {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeShopRepo) Save(_ context.Context, s *channel.Shop) error {
	r.shops[s.ID] = s
	return nil
}

func (r *fakeShopRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.shops, id)
	return nil
}

// ---------------------------------------------------------------------------
// binding ports
// ---------------------------------------------------------------------------

type fakeRuleRepo struct {
	rules []*binding.SyncRule
}

func (r *fakeRuleRepo) ListActive(context.Context) ([]*binding.SyncRule, error) {
	return r.rules, nil
}

func (r *fakeRuleRepo) FindByID(_ context.Context, id uuid.UUID) (*binding.SyncRule, error) {
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return nil, binding.ErrBindingNotFound
}

func (r *fakeRuleRepo) Save(_ context.Context, rule *binding.SyncRule) error {
	r.rules = append(r.rules, rule)
	return nil
}

func (r *fakeRuleRepo) Delete(context.Context, uuid.UUID) error { return nil }

type fakeBindingRepo struct {
	bindings map[uuid.UUID]*binding.ProductBinding
	saved    []*binding.ProductBinding
	// saveBulkCalls counts SaveBulk invocations for chunking assertions
	saveBulkCalls int
}

func newFakeBindingRepo(bindings ...*binding.ProductBinding) *fakeBindingRepo {
	r := &fakeBindingRepo{bindings: make(map[uuid.UUID]*binding.ProductBinding)}
	for _, b := range bindings {
		r.bindings[b.ID] = b
	}
	return r
}

func (r *fakeBindingRepo) FindByID(_ context.Context, id uuid.UUID) (*binding.ProductBinding, error) {
	b, ok := r.bindings[id]
	if !ok {
		return nil, binding.ErrBindingNotFound
	}
	return b, nil
}

func (r *fakeBindingRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*binding.ProductBinding, error) {
	var out []*binding.ProductBinding
	for _, id := range ids {
		if b, ok := r.bindings[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBindingRepo) FindBySKUs(_ context.Context, shopID uuid.UUID, skus []string) (map[string]*binding.ProductBinding, error) {
	out := make(map[string]*binding.ProductBinding)
	for _, sku := range skus {
		for _, b := range r.bindings {
			if b.ShopID == shopID && b.ExternalSKU == sku {
				out[sku] = b
			}
		}
	}
	return out, nil
}

func (r *fakeBindingRepo) ListPushable(_ context.Context, shopID uuid.UUID) ([]*binding.ProductBinding, error) {
	var out []*binding.ProductBinding
	for _, b := range r.bindings {
		if b.ShopID == shopID && b.Pushable() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBindingRepo) ListPushableByProducts(_ context.Context, productIDs []uuid.UUID) ([]*binding.ProductBinding, error) {
	want := make(map[uuid.UUID]bool)
	for _, id := range productIDs {
		want[id] = true
	}
	var out []*binding.ProductBinding
	for _, b := range r.bindings {
		if b.Pushable() && want[*b.ProductID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBindingRepo) Save(_ context.Context, b *binding.ProductBinding) error {
	r.bindings[b.ID] = b
	r.saved = append(r.saved, b)
	return nil
}

func (r *fakeBindingRepo) SaveBulk(_ context.Context, bindings []*binding.ProductBinding) error {
	r.saveBulkCalls++
	for _, b := range bindings {
		r.bindings[b.ID] = b
		r.saved = append(r.saved, b)
	}
	return nil
}

func (r *fakeBindingRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.bindings, id)
	return nil
}

// ---------------------------------------------------------------------------
// erp ports
// ---------------------------------------------------------------------------

type fakeProductRepo struct {
	bySKU map[string]*erp.Product
	byID  map[uuid.UUID]*erp.Product

	created       []*erp.Product
	madeStorable  []uuid.UUID
	findBySKUsErr error
	createBulkErr error
}

func newFakeProductRepo(products ...*erp.Product) *fakeProductRepo {
	r := &fakeProductRepo{
		bySKU: make(map[string]*erp.Product),
		byID:  make(map[uuid.UUID]*erp.Product),
	}
	for _, p := range products {
		r.bySKU[p.DefaultCode] = p
		r.byID[p.ID] = p
	}
	return r
}

func (r *fakeProductRepo) FindBySKUs(_ context.Context, skus []string, _ *uuid.UUID) (map[string]*erp.Product, error) {
	if r.findBySKUsErr != nil {
		return nil, r.findBySKUsErr
	}
	out := make(map[string]*erp.Product)
	for _, sku := range skus {
		if p, ok := r.bySKU[sku]; ok {
			out[sku] = p
		}
	}
	return out, nil
}

func (r *fakeProductRepo) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*erp.Product, error) {
	out := make(map[uuid.UUID]*erp.Product)
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *fakeProductRepo) CreateBulk(_ context.Context, products []*erp.Product) error {
	if r.createBulkErr != nil {
		return r.createBulkErr
	}
	for _, p := range products {
		r.bySKU[p.DefaultCode] = p
		r.byID[p.ID] = p
		r.created = append(r.created, p)
	}
	return nil
}

func (r *fakeProductRepo) EnsureStorable(_ context.Context, productID uuid.UUID) error {
	if p, ok := r.byID[productID]; ok {
		p.IsStorable = true
		p.Type = "storable"
	}
	r.madeStorable = append(r.madeStorable, productID)
	return nil
}

type fakePartnerRepo struct {
	byName  map[string][]*erp.Partner
	byEmail map[string][]*erp.Partner
	byPhone map[string][]*erp.Partner

	created []*erp.Partner
	adopted map[uuid.UUID]uuid.UUID
}

func newFakePartnerRepo() *fakePartnerRepo {
	return &fakePartnerRepo{
		byName:  make(map[string][]*erp.Partner),
		byEmail: make(map[string][]*erp.Partner),
		byPhone: make(map[string][]*erp.Partner),
		adopted: make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *fakePartnerRepo) add(p *erp.Partner) {
	if p.Name != "" {
		r.byName[p.Name] = append(r.byName[p.Name], p)
	}
	if p.Email != "" {
		r.byEmail[p.Email] = append(r.byEmail[p.Email], p)
	}
	if p.Phone != "" {
		r.byPhone[p.Phone] = append(r.byPhone[p.Phone], p)
	}
}

func lookupPartners(index map[string][]*erp.Partner, keys []string) map[string][]*erp.Partner {
	out := make(map[string][]*erp.Partner)
	for _, k := range keys {
		if v, ok := index[k]; ok {
			out[k] = v
		}
	}
	return out
}

func (r *fakePartnerRepo) FindByNames(_ context.Context, names []string) (map[string][]*erp.Partner, error) {
	return lookupPartners(r.byName, names), nil
}

func (r *fakePartnerRepo) FindByEmails(_ context.Context, emails []string) (map[string][]*erp.Partner, error) {
	return lookupPartners(r.byEmail, emails), nil
}

func (r *fakePartnerRepo) FindByPhones(_ context.Context, phones []string) (map[string][]*erp.Partner, error) {
	return lookupPartners(r.byPhone, phones), nil
}

func (r *fakePartnerRepo) CreateBulk(_ context.Context, partners []*erp.Partner) error {
	for _, p := range partners {
		r.add(p)
		r.created = append(r.created, p)
	}
	return nil
}

func (r *fakePartnerRepo) AdoptCompany(_ context.Context, partnerID, companyID uuid.UUID) error {
	r.adopted[partnerID] = companyID
	return nil
}

type fakeSaleOrderRepo struct {
	byOrigin   map[string]*erp.SaleOrder
	created    []*erp.SaleOrder
	confirmed  []uuid.UUID
	confirmErr error
}

func newFakeSaleOrderRepo() *fakeSaleOrderRepo {
	return &fakeSaleOrderRepo{byOrigin: make(map[string]*erp.SaleOrder)}
}

func (r *fakeSaleOrderRepo) FindByOrigins(_ context.Context, origins []string) (map[string]*erp.SaleOrder, error) {
	out := make(map[string]*erp.SaleOrder)
	for _, origin := range origins {
		if sale, ok := r.byOrigin[origin]; ok && sale.State != erp.SaleOrderCancelled {
			out[origin] = sale
		}
	}
	return out, nil
}

func (r *fakeSaleOrderRepo) CreateBulk(_ context.Context, orders []*erp.SaleOrder) error {
	for _, sale := range orders {
		r.byOrigin[sale.Origin] = sale
		r.created = append(r.created, sale)
	}
	return nil
}

func (r *fakeSaleOrderRepo) Confirm(_ context.Context, orderID uuid.UUID) error {
	if r.confirmErr != nil {
		return r.confirmErr
	}
	r.confirmed = append(r.confirmed, orderID)
	return nil
}

type fakeStockRepo struct {
	mu sync.Mutex

	onHand          map[uuid.UUID]decimal.Decimal
	defaultLocation uuid.UUID
	warehouseLocs   map[uuid.UUID]uuid.UUID

	adjustments map[uuid.UUID]decimal.Decimal
	// lastLocation records the location the last bulk read used
	lastLocation uuid.UUID
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{
		onHand:          make(map[uuid.UUID]decimal.Decimal),
		defaultLocation: uuid.New(),
		warehouseLocs:   make(map[uuid.UUID]uuid.UUID),
		adjustments:     make(map[uuid.UUID]decimal.Decimal),
	}
}

func (r *fakeStockRepo) OnHand(_ context.Context, productID, _ uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onHand[productID], nil
}

func (r *fakeStockRepo) OnHandBulk(_ context.Context, productIDs []uuid.UUID, locationID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLocation = locationID
	out := make(map[uuid.UUID]decimal.Decimal)
	for _, id := range productIDs {
		out[id] = r.onHand[id]
	}
	return out, nil
}

func (r *fakeStockRepo) ApplyAdjustment(_ context.Context, productID, _ uuid.UUID, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onHand[productID] = r.onHand[productID].Add(delta)
	r.adjustments[productID] = r.adjustments[productID].Add(delta)
	return nil
}

func (r *fakeStockRepo) DefaultLocation(context.Context, *uuid.UUID) (uuid.UUID, error) {
	return r.defaultLocation, nil
}

func (r *fakeStockRepo) WarehouseLocation(_ context.Context, warehouseID uuid.UUID) (uuid.UUID, error) {
	loc, ok := r.warehouseLocs[warehouseID]
	if !ok {
		return uuid.Nil, erp.ErrLocationNotFound
	}
	return loc, nil
}

type fakeAuditLog struct {
	posts []string
}

func (a *fakeAuditLog) Post(_ context.Context, entityRef, body string) error {
	a.posts = append(a.posts, entityRef+": "+body)
	return nil
}

// ---------------------------------------------------------------------------
// order port
// ---------------------------------------------------------------------------

type fakeOrderRepo struct {
	orders map[uuid.UUID]*order.MarketplaceOrder
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*order.MarketplaceOrder)}
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*order.MarketplaceOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) FindByExternalIDs(_ context.Context, shopID uuid.UUID, externalIDs []string) (map[string]*order.MarketplaceOrder, error) {
	out := make(map[string]*order.MarketplaceOrder)
	for _, ext := range externalIDs {
		for _, o := range r.orders {
			if o.ShopID == shopID && o.ExternalOrderID == ext {
				out[ext] = o
			}
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) Save(_ context.Context, o *order.MarketplaceOrder) error {
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) SaveBulk(_ context.Context, orders []*order.MarketplaceOrder) error {
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return nil
}

func (r *fakeOrderRepo) ListByShopAndState(_ context.Context, shopID uuid.UUID, state order.State, limit int) ([]*order.MarketplaceOrder, error) {
	var out []*order.MarketplaceOrder
	for _, o := range r.orders {
		if o.ShopID == shopID && o.State == state {
			out = append(out, o)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// feed / catalog / report fakes
// ---------------------------------------------------------------------------

type fakeFeed struct {
	pages [][]channel.FeedProduct
	total int
	calls int
}

func (f *fakeFeed) FetchProductPage(_ context.Context, page, _ int, _ channel.FeedOptions) ([]channel.FeedProduct, int, error) {
	f.calls++
	if page < 1 || page > len(f.pages) {
		return nil, f.total, nil
	}
	return f.pages[page-1], f.total, nil
}

type fakeCatalog struct {
	mu         sync.Mutex
	pages      [][]channel.RemoteProduct
	variations map[int64][]channel.RemoteProduct

	variationErr error
	// inFlight tracks concurrent ListVariations calls; maxInFlight is the
	// high-water mark
	inFlight    int
	maxInFlight int
}

func (c *fakeCatalog) ListProductPage(_ context.Context, page int) ([]channel.RemoteProduct, bool, error) {
	if page < 1 || page > len(c.pages) {
		return nil, false, nil
	}
	return c.pages[page-1], page < len(c.pages), nil
}

func (c *fakeCatalog) ListVariations(_ context.Context, parentID int64) ([]channel.RemoteProduct, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if c.variationErr != nil {
		return nil, c.variationErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variations[parentID], nil
}

type fakeReportStore struct {
	name string
	body []byte
}

func (s *fakeReportStore) SaveReport(_ context.Context, name, _ string, body []byte) (string, error) {
	s.name = name
	s.body = body
	return fmt.Sprintf("https://reports.example.com/%s", name), nil
}
