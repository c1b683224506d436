package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/domain/order"
)

// ---------------------------------------------------------------------------
// In-memory job store
// ---------------------------------------------------------------------------

type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*job.Job)}
}

func (s *memStore) Create(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.Priority == "" {
		j.Priority = job.DefaultPriorityFor(j.Type)
	}
	if j.State == job.StatePending && j.NextRunAt == nil {
		now := time.Now()
		j.NextRunAt = &now
	}
	if err := j.Validate(); err != nil {
		return err
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return j, nil
}

func (s *memStore) Save(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return job.ErrJobNotFound
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *memStore) SelectRunnable(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.State == job.StatePending && j.NextRunAt != nil && !j.NextRunAt.After(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.NextRunAt.Equal(*b.NextRunAt) {
			return a.NextRunAt.Before(*b.NextRunAt)
		}
		return a.ID.String() < b.ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CountInProgressByAccount(context.Context) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, j := range s.jobs {
		if j.State == job.StateInProgress {
			counts[j.AccountID]++
		}
	}
	return counts, nil
}

func (s *memStore) UpdateProgress(_ context.Context, id uuid.UUID, processed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	j.SetProgress(processed, total)
	return nil
}

func (s *memStore) FindPendingSibling(_ context.Context, t job.Type, accountID uuid.UUID, shopID *uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *job.Job
	for _, j := range s.jobs {
		if j.Type != t || j.AccountID != accountID {
			continue
		}
		if j.State != job.StatePending && j.State != job.StateInProgress {
			continue
		}
		if !sameShop(j.ShopID, shopID) {
			continue
		}
		if newest == nil || j.CreatedAt.After(newest.CreatedAt) {
			newest = j
		}
	}
	return newest, nil
}

func (s *memStore) LastSuccessful(_ context.Context, t job.Type, accountID uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *job.Job
	for _, j := range s.jobs {
		if j.Type != t || j.AccountID != accountID || j.State != job.StateDone {
			continue
		}
		if j.CompletedAt == nil {
			continue
		}
		if newest == nil || j.CompletedAt.After(*newest.CompletedAt) {
			newest = j
		}
	}
	return newest, nil
}

func (s *memStore) RecoverStuck(_ context.Context, cutoff, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.State != job.StateInProgress {
			continue
		}
		stale := j.StartedAt != nil && j.StartedAt.Before(cutoff)
		if !stale && j.Progress < 100 {
			continue
		}
		if err := j.ResetForRecovery(now); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SuppressDuplicates(_ context.Context, accountID *uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		t    job.Type
		acct uuid.UUID
		shop uuid.UUID
	}
	newest := make(map[key]*job.Job)
	for _, j := range s.jobs {
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
	for id, j := range s.jobs {
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
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *memStore) DeletePending(_ context.Context, t job.Type, accountID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Type == t && j.AccountID == accountID &&
			(j.State == job.StatePending || j.State == job.StateInProgress) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *memStore) PurgeDone(_ context.Context, accountID uuid.UUID, retentionDays, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n := 0
	for id, j := range s.jobs {
		if j.AccountID == accountID && j.State == job.StateDone &&
			j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) List(_ context.Context, filter job.ListFilter) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if filter.AccountID != nil && j.AccountID != *filter.AccountID {
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

func (s *memStore) byType(t job.Type) []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Type == t {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].BatchIndex() != out[k].BatchIndex() {
			return out[i].BatchIndex() < out[k].BatchIndex()
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

func sameShop(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var _ job.Store = (*memStore)(nil)

// ---------------------------------------------------------------------------
// Repository stubs
// ---------------------------------------------------------------------------

type stubAccounts struct {
	byID map[uuid.UUID]*channel.Account
}

func newStubAccounts(accounts ...*channel.Account) *stubAccounts {
	s := &stubAccounts{byID: make(map[uuid.UUID]*channel.Account)}
	for _, a := range accounts {
		s.byID[a.ID] = a
	}
	return s
}

func (s *stubAccounts) FindByID(_ context.Context, id uuid.UUID) (*channel.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, channel.ErrAccountNotFound
	}
	return a, nil
}

func (s *stubAccounts) ListActive(context.Context) ([]*channel.Account, error) {
	var out []*channel.Account
	for _, a := range s.byID {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *stubAccounts) ListByChannel(_ context.Context, code channel.Code) ([]*channel.Account, error) {
	var out []*channel.Account
	for _, a := range s.byID {
		if a.Channel == code {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubAccounts) Save(_ context.Context, a *channel.Account) error {
	s.byID[a.ID] = a
	return nil
}

func (s *stubAccounts) SaveTokens(_ context.Context, a *channel.Account) error {
	s.byID[a.ID] = a
	return nil
}

func (s *stubAccounts) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.byID, id)
	return nil
}

type stubShops struct {
	byID map[uuid.UUID]*channel.Shop
}

func newStubShops(shops ...*channel.Shop) *stubShops {
	s := &stubShops{byID: make(map[uuid.UUID]*channel.Shop)}
	for _, sh := range shops {
		s.byID[sh.ID] = sh
	}
	return s
}

func (s *stubShops) FindByID(_ context.Context, id uuid.UUID) (*channel.Shop, error) {
	sh, ok := s.byID[id]
	if !ok {
		return nil, channel.ErrShopNotFound
	}
	return sh, nil
}

func (s *stubShops) FindByExternalID(_ context.Context, accountID uuid.UUID, externalShopID string) (*channel.Shop, error) {
	for _, sh := range s.byID {
		if sh.AccountID == accountID && sh.ExternalShopID == externalShopID {
			return sh, nil
		}
	}
	return nil, channel.ErrShopNotFound
}

func (s *stubShops) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*channel.Shop, error) {
	var out []*channel.Shop
	for _, sh := range s.byID {
		if sh.AccountID == accountID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ExternalShopID < out[k].ExternalShopID })
	return out, nil
}

func (s *stubShops) Save(_ context.Context, sh *channel.Shop) error {
	s.byID[sh.ID] = sh
	return nil
}

func (s *stubShops) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.byID, id)
	return nil
}

type stubBindings struct {
	byID map[uuid.UUID]*binding.ProductBinding
}

func newStubBindings(bindings ...*binding.ProductBinding) *stubBindings {
	s := &stubBindings{byID: make(map[uuid.UUID]*binding.ProductBinding)}
	for _, b := range bindings {
		s.byID[b.ID] = b
	}
	return s
}

func (s *stubBindings) FindByID(_ context.Context, id uuid.UUID) (*binding.ProductBinding, error) {
	b, ok := s.byID[id]
	if !ok {
		return nil, binding.ErrBindingNotFound
	}
	return b, nil
}

func (s *stubBindings) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*binding.ProductBinding, error) {
	var out []*binding.ProductBinding
	for _, id := range ids {
		if b, ok := s.byID[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubBindings) FindBySKUs(_ context.Context, shopID uuid.UUID, skus []string) (map[string]*binding.ProductBinding, error) {
	out := make(map[string]*binding.ProductBinding)
	for _, sku := range skus {
		for _, b := range s.byID {
			if b.ShopID == shopID && b.ExternalSKU == sku {
				out[sku] = b
			}
		}
	}
	return out, nil
}

func (s *stubBindings) ListPushable(_ context.Context, shopID uuid.UUID) ([]*binding.ProductBinding, error) {
	var out []*binding.ProductBinding
	for _, b := range s.byID {
		if b.ShopID == shopID && b.Pushable() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ExternalSKU < out[k].ExternalSKU })
	return out, nil
}

func (s *stubBindings) ListPushableByProducts(_ context.Context, productIDs []uuid.UUID) ([]*binding.ProductBinding, error) {
	want := make(map[uuid.UUID]bool)
	for _, id := range productIDs {
		want[id] = true
	}
	var out []*binding.ProductBinding
	for _, b := range s.byID {
		if b.Pushable() && want[*b.ProductID] {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ExternalSKU < out[k].ExternalSKU })
	return out, nil
}

func (s *stubBindings) Save(_ context.Context, b *binding.ProductBinding) error {
	s.byID[b.ID] = b
	return nil
}

func (s *stubBindings) SaveBulk(_ context.Context, bindings []*binding.ProductBinding) error {
	for _, b := range bindings {
		s.byID[b.ID] = b
	}
	return nil
}

func (s *stubBindings) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.byID, id)
	return nil
}

// ---------------------------------------------------------------------------
// Adapter / registry stubs
// ---------------------------------------------------------------------------

// stubAdapter is a programmable channel.Adapter. Unset hooks fail loudly so
// a test only exercises the methods it configured.
type stubAdapter struct {
	code channel.Code

	fetchOrders     func(ctx context.Context, req *channel.FetchOrdersRequest) ([]json.RawMessage, error)
	updateInventory func(ctx context.Context, items []channel.InventoryItem) (map[string]channel.InventoryResult, error)
	parsePayload    func(raw json.RawMessage) (*order.NormalizedOrder, error)

	fetchCalls []*channel.FetchOrdersRequest
}

func (a *stubAdapter) Channel() channel.Code { return a.code }

func (a *stubAdapter) AuthorizeURL(string) (string, error) {
	return "", channel.ErrAuthNotApplicable
}

func (a *stubAdapter) ExchangeCode(context.Context, string, string) (*channel.Tokens, error) {
	return nil, channel.ErrAuthNotApplicable
}

func (a *stubAdapter) RefreshAccessToken(context.Context) (*channel.Tokens, error) {
	return nil, channel.ErrAuthNotApplicable
}

func (a *stubAdapter) FetchOrders(ctx context.Context, req *channel.FetchOrdersRequest) ([]json.RawMessage, error) {
	a.fetchCalls = append(a.fetchCalls, req)
	if a.fetchOrders == nil {
		return nil, nil
	}
	return a.fetchOrders(ctx, req)
}

func (a *stubAdapter) UpdateInventory(ctx context.Context, items []channel.InventoryItem) (map[string]channel.InventoryResult, error) {
	if a.updateInventory == nil {
		return map[string]channel.InventoryResult{}, nil
	}
	return a.updateInventory(ctx, items)
}

func (a *stubAdapter) ParseOrderPayload(raw json.RawMessage) (*order.NormalizedOrder, error) {
	if a.parsePayload == nil {
		var n order.NormalizedOrder
		if err := json.Unmarshal(raw, &struct {
			ExternalOrderID *string `json:"external_order_id"`
		}{&n.ExternalOrderID}); err != nil {
			return nil, err
		}
		n.Status = order.StatePending
		n.OrderDate = time.Now()
		n.CustomerName = "Test Customer"
		return &n, nil
	}
	return a.parsePayload(raw)
}

func (a *stubAdapter) VerifyWebhook(http.Header, []byte) bool { return true }

var _ channel.Adapter = (*stubAdapter)(nil)

type stubRegistry struct {
	adapters map[uuid.UUID]channel.Adapter
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{adapters: make(map[uuid.UUID]channel.Adapter)}
}

func (r *stubRegistry) AdapterFor(_ context.Context, account *channel.Account) (channel.Adapter, error) {
	if a, ok := r.adapters[account.ID]; ok {
		return a, nil
	}
	a := &stubAdapter{code: account.Channel}
	r.adapters[account.ID] = a
	return a, nil
}

var _ channel.Registry = (*stubRegistry)(nil)
