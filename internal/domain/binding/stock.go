package binding

import "github.com/shopspring/decimal"

// StockPolicy is the fully-resolved set of push parameters for one binding:
// binding override first, then the first matching sync rule, then the
// account default.
type StockPolicy struct {
	Buffer       int
	MinQty       int
	RoundingStep int
}

// ResolvePolicy layers binding overrides over a matched rule over account
// defaults. rule may be nil.
func ResolvePolicy(b *ProductBinding, rule *SyncRule, accountBuffer, accountMin int) StockPolicy {
	p := StockPolicy{Buffer: accountBuffer, MinQty: accountMin}
	if rule != nil {
		p.Buffer = rule.BufferQty
		p.MinQty = rule.MinQty
		p.RoundingStep = rule.RoundingStep
	}
	if b.BufferOverride != nil {
		p.Buffer = *b.BufferOverride
	}
	if b.MinOverride != nil {
		p.MinQty = *b.MinOverride
	}
	return p
}

// AvailableQty derives the publishable quantity from on-hand stock:
// subtract the buffer, zero below the minimum, floor to the rounding step,
// never negative.
func AvailableQty(onHand decimal.Decimal, policy StockPolicy) int {
	q := int(onHand.IntPart()) - policy.Buffer
	if q < policy.MinQty {
		return 0
	}
	if policy.RoundingStep > 1 {
		q = (q / policy.RoundingStep) * policy.RoundingStep
	}
	if q < 0 {
		return 0
	}
	return q
}
