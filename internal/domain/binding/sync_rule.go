package binding

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRuleInvalidScope = errors.New("binding: invalid sync rule scope")

// RuleScope limits where a sync rule applies.
type RuleScope string

const (
	// ScopeGlobal applies to every binding
	ScopeGlobal RuleScope = "global"
	// ScopeAccount applies to bindings under one account
	ScopeAccount RuleScope = "account"
	// ScopeShop applies to bindings under one shop
	ScopeShop RuleScope = "shop"
	// ScopeProduct applies to bindings of one internal product
	ScopeProduct RuleScope = "product"
)

// IsValid returns true for known scopes.
func (s RuleScope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeAccount, ScopeShop, ScopeProduct:
		return true
	}
	return false
}

// SyncRule is a priority-ordered override of the stock push policy.
// Higher priority wins; the first matching rule is applied.
type SyncRule struct {
	ID   uuid.UUID
	Name string

	Scope     RuleScope
	AccountID *uuid.UUID
	ShopID    *uuid.UUID
	ProductID *uuid.UUID

	// Priority orders rules, higher first
	Priority int

	BufferQty    int
	MinQty       int
	RoundingStep int
	ExcludePush  bool

	// Predicates; empty/nil predicates always pass
	Categories        []string
	Tags              []string
	MinStockCondition *int

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RuleContext carries the binding-side facts a rule is matched against.
type RuleContext struct {
	AccountID uuid.UUID
	ShopID    uuid.UUID
	ProductID *uuid.UUID
	Category  string
	Tags      []string
	OnHand    int
}

// Matches reports whether the rule applies to the context: the scope must
// match exactly and every set predicate must pass.
func (r *SyncRule) Matches(ctx RuleContext) bool {
	if !r.Active {
		return false
	}
	switch r.Scope {
	case ScopeGlobal:
		// always in scope
	case ScopeAccount:
		if r.AccountID == nil || *r.AccountID != ctx.AccountID {
			return false
		}
	case ScopeShop:
		if r.ShopID == nil || *r.ShopID != ctx.ShopID {
			return false
		}
	case ScopeProduct:
		if r.ProductID == nil || ctx.ProductID == nil || *r.ProductID != *ctx.ProductID {
			return false
		}
	default:
		return false
	}

	if len(r.Categories) > 0 && !containsString(r.Categories, ctx.Category) {
		return false
	}
	if len(r.Tags) > 0 && !intersects(r.Tags, ctx.Tags) {
		return false
	}
	if r.MinStockCondition != nil && ctx.OnHand < *r.MinStockCondition {
		return false
	}
	return true
}

// FirstMatch scans rules in descending priority order and returns the first
// match, or nil. The caller is expected to pass rules already sorted by the
// repository (priority desc); ties break by creation order.
func FirstMatch(rules []*SyncRule, ctx RuleContext) *SyncRule {
	for _, r := range rules {
		if r.Matches(ctx) {
			return r
		}
	}
	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
