package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/domain/order"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(register func(rg *gin.RouterGroup)) *gin.Engine {
	engine := gin.New()
	api := engine.Group("/api/v1")
	register(api)
	return engine
}

var testLogger = zap.NewNop()

// ---------------------------------------------------------------------------
// Repository fakes
// ---------------------------------------------------------------------------

type fakeAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*channel.Account
}

func newFakeAccounts(accounts ...*channel.Account) *fakeAccounts {
	f := &fakeAccounts{byID: make(map[uuid.UUID]*channel.Account)}
	for _, a := range accounts {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) FindByID(_ context.Context, id uuid.UUID) (*channel.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, channel.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccounts) ListActive(context.Context) ([]*channel.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*channel.Account
	for _, a := range f.byID {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (f *fakeAccounts) ListByChannel(_ context.Context, code channel.Code) ([]*channel.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*channel.Account
	for _, a := range f.byID {
		if a.Channel == code {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) Save(_ context.Context, a *channel.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.ID] = a
	return nil
}

func (f *fakeAccounts) SaveTokens(_ context.Context, a *channel.Account) error {
	return f.Save(nil, a)
}

func (f *fakeAccounts) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return channel.ErrAccountNotFound
	}
	delete(f.byID, id)
	return nil
}

var _ channel.AccountRepository = (*fakeAccounts)(nil)

type fakeShops struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*channel.Shop
}

func newFakeShops(shops ...*channel.Shop) *fakeShops {
	f := &fakeShops{byID: make(map[uuid.UUID]*channel.Shop)}
	for _, sh := range shops {
		f.byID[sh.ID] = sh
	}
	return f
}

func (f *fakeShops) FindByID(_ context.Context, id uuid.UUID) (*channel.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh, ok := f.byID[id]
	if !ok {
		return nil, channel.ErrShopNotFound
	}
	return sh, nil
}

func (f *fakeShops) FindByExternalID(_ context.Context, accountID uuid.UUID, externalShopID string) (*channel.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sh := range f.byID {
		if sh.AccountID == accountID && sh.ExternalShopID == externalShopID {
			return sh, nil
		}
	}
	return nil, channel.ErrShopNotFound
}

func (f *fakeShops) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*channel.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*channel.Shop
	for _, sh := range f.byID {
		if sh.AccountID == accountID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ExternalShopID < out[k].ExternalShopID })
	return out, nil
}

func (f *fakeShops) Save(_ context.Context, sh *channel.Shop) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[sh.ID] = sh
	return nil
}

func (f *fakeShops) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return channel.ErrShopNotFound
	}
	delete(f.byID, id)
	return nil
}

var _ channel.ShopRepository = (*fakeShops)(nil)

type fakeBindings struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*binding.ProductBinding
}

func newFakeBindings(bindings ...*binding.ProductBinding) *fakeBindings {
	f := &fakeBindings{byID: make(map[uuid.UUID]*binding.ProductBinding)}
	for _, b := range bindings {
		f.byID[b.ID] = b
	}
	return f
}

func (f *fakeBindings) FindByID(_ context.Context, id uuid.UUID) (*binding.ProductBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return nil, binding.ErrBindingNotFound
	}
	return b, nil
}

func (f *fakeBindings) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*binding.ProductBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*binding.ProductBinding
	for _, id := range ids {
		if b, ok := f.byID[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBindings) FindBySKUs(_ context.Context, shopID uuid.UUID, skus []string) (map[string]*binding.ProductBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*binding.ProductBinding)
	for _, sku := range skus {
		for _, b := range f.byID {
			if b.ShopID == shopID && b.ExternalSKU == sku {
				out[sku] = b
			}
		}
	}
	return out, nil
}

func (f *fakeBindings) ListPushable(_ context.Context, shopID uuid.UUID) ([]*binding.ProductBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*binding.ProductBinding
	for _, b := range f.byID {
		if b.ShopID == shopID && b.Pushable() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ExternalSKU < out[k].ExternalSKU })
	return out, nil
}

func (f *fakeBindings) ListPushableByProducts(_ context.Context, productIDs []uuid.UUID) ([]*binding.ProductBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[uuid.UUID]bool)
	for _, id := range productIDs {
		want[id] = true
	}
	var out []*binding.ProductBinding
	for _, b := range f.byID {
		if b.Pushable() && want[*b.ProductID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBindings) Save(_ context.Context, b *binding.ProductBinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[b.ID] = b
	return nil
}

func (f *fakeBindings) SaveBulk(_ context.Context, bindings []*binding.ProductBinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range bindings {
		f.byID[b.ID] = b
	}
	return nil
}

func (f *fakeBindings) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return binding.ErrBindingNotFound
	}
	delete(f.byID, id)
	return nil
}

var _ binding.Repository = (*fakeBindings)(nil)

type fakeRules struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*binding.SyncRule
}

func newFakeRules(rules ...*binding.SyncRule) *fakeRules {
	f := &fakeRules{byID: make(map[uuid.UUID]*binding.SyncRule)}
	for _, r := range rules {
		f.byID[r.ID] = r
	}
	return f
}

func (f *fakeRules) ListActive(context.Context) ([]*binding.SyncRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*binding.SyncRule
	for _, r := range f.byID {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Priority > out[k].Priority })
	return out, nil
}

func (f *fakeRules) FindByID(_ context.Context, id uuid.UUID) (*binding.SyncRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, binding.ErrBindingNotFound
	}
	return r, nil
}

func (f *fakeRules) Save(_ context.Context, r *binding.SyncRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[r.ID] = r
	return nil
}

func (f *fakeRules) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

var _ binding.RuleRepository = (*fakeRules)(nil)

// ---------------------------------------------------------------------------
// Job store fake
// ---------------------------------------------------------------------------

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job.Job
}

func newFakeJobs(jobs ...*job.Job) *fakeJobs {
	f := &fakeJobs{jobs: make(map[uuid.UUID]*job.Job)}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) Create(_ context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := j.Validate(); err != nil {
		return err
	}
	f.jobs[j.ID] = j
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobs) Save(_ context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[j.ID]; !ok {
		return job.ErrJobNotFound
	}
	f.jobs[j.ID] = j
	return nil
}

func (f *fakeJobs) SelectRunnable(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	return nil, nil
}

func (f *fakeJobs) CountInProgressByAccount(context.Context) (map[uuid.UUID]int, error) {
	return map[uuid.UUID]int{}, nil
}

func (f *fakeJobs) UpdateProgress(_ context.Context, id uuid.UUID, processed, total int) error {
	return nil
}

func (f *fakeJobs) FindPendingSibling(context.Context, job.Type, uuid.UUID, *uuid.UUID) (*job.Job, error) {
	return nil, nil
}

func (f *fakeJobs) LastSuccessful(context.Context, job.Type, uuid.UUID) (*job.Job, error) {
	return nil, nil
}

func (f *fakeJobs) RecoverStuck(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeJobs) SuppressDuplicates(_ context.Context, accountID *uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type key struct {
		t    job.Type
		acct uuid.UUID
		shop uuid.UUID
	}
	newest := make(map[key]*job.Job)
	for _, j := range f.jobs {
		if j.State != job.StatePending {
			continue
		}
		if accountID != nil && j.AccountID != *accountID {
			continue
		}
		k := key{t: j.Type, acct: j.AccountID}
		if j.ShopID != nil {
			k.shop = *j.ShopID
		}
		if cur, ok := newest[k]; !ok || j.CreatedAt.After(cur.CreatedAt) {
			newest[k] = j
		}
	}
	removed := 0
	for id, j := range f.jobs {
		if j.State != job.StatePending {
			continue
		}
		if accountID != nil && j.AccountID != *accountID {
			continue
		}
		k := key{t: j.Type, acct: j.AccountID}
		if j.ShopID != nil {
			k.shop = *j.ShopID
		}
		if newest[k] != nil && newest[k].ID != id {
			delete(f.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeJobs) DeletePending(context.Context, job.Type, uuid.UUID) (int, error) {
	return 0, nil
}

func (f *fakeJobs) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeJobs) PurgeDone(_ context.Context, accountID uuid.UUID, retentionDays, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n := 0
	for id, j := range f.jobs {
		if j.AccountID == accountID && j.State == job.StateDone &&
			j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(f.jobs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeJobs) List(_ context.Context, filter job.ListFilter) ([]*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*job.Job
	for _, j := range f.jobs {
		if filter.AccountID != nil && j.AccountID != *filter.AccountID {
			continue
		}
		if filter.ShopID != nil && (j.ShopID == nil || *j.ShopID != *filter.ShopID) {
			continue
		}
		if filter.Type != nil && j.Type != *filter.Type {
			continue
		}
		if filter.State != nil && j.State != *filter.State {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (f *fakeJobs) all() []*job.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*job.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

var _ job.Store = (*fakeJobs)(nil)

// ---------------------------------------------------------------------------
// Adapter / registry fakes
// ---------------------------------------------------------------------------

type fakeAdapter struct {
	code channel.Code

	authorizeURL string
	tokens       *channel.Tokens
	verify       bool
}

func (a *fakeAdapter) Channel() channel.Code { return a.code }

func (a *fakeAdapter) AuthorizeURL(state string) (string, error) {
	if a.authorizeURL == "" {
		return "", channel.ErrAuthNotApplicable
	}
	return a.authorizeURL + "?state=" + state, nil
}

func (a *fakeAdapter) ExchangeCode(_ context.Context, code, _ string) (*channel.Tokens, error) {
	if a.tokens == nil {
		return nil, channel.ErrAuthNotApplicable
	}
	return a.tokens, nil
}

func (a *fakeAdapter) RefreshAccessToken(context.Context) (*channel.Tokens, error) {
	return nil, channel.ErrAuthNotApplicable
}

func (a *fakeAdapter) FetchOrders(context.Context, *channel.FetchOrdersRequest) ([]json.RawMessage, error) {
	return nil, nil
}

func (a *fakeAdapter) UpdateInventory(context.Context, []channel.InventoryItem) (map[string]channel.InventoryResult, error) {
	return map[string]channel.InventoryResult{}, nil
}

func (a *fakeAdapter) ParseOrderPayload(json.RawMessage) (*order.NormalizedOrder, error) {
	return nil, channel.ErrMalformedResponse
}

func (a *fakeAdapter) VerifyWebhook(http.Header, []byte) bool { return a.verify }

var _ channel.Adapter = (*fakeAdapter)(nil)

type fakeRegistry struct {
	adapters map[uuid.UUID]channel.Adapter
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{adapters: make(map[uuid.UUID]channel.Adapter)}
}

func (r *fakeRegistry) set(accountID uuid.UUID, a channel.Adapter) {
	r.adapters[accountID] = a
}

func (r *fakeRegistry) AdapterFor(_ context.Context, account *channel.Account) (channel.Adapter, error) {
	if a, ok := r.adapters[account.ID]; ok {
		return a, nil
	}
	return &fakeAdapter{code: account.Channel, verify: true}, nil
}

var _ channel.Registry = (*fakeRegistry)(nil)
