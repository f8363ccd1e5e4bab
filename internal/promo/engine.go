package promo

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropskey/backend-dropskey/internal/money"
)

var (
	// ErrNotFound is returned when no active promotion matches the code.
	ErrNotFound = errors.New("promo: promotion not found")
	// ErrNotYetActive is returned when the promotion window has not opened.
	ErrNotYetActive = errors.New("promo: promotion not yet active")
	// ErrExpired is returned when the promotion window has closed.
	ErrExpired = errors.New("promo: promotion expired")
	// ErrNotApplicable indicates no line item falls inside the promotion scope.
	ErrNotApplicable = errors.New("promo: promotion not applicable to cart")
	// ErrMinSubtotalNotMet indicates the applicable subtotal is below the
	// promotion minimum.
	ErrMinSubtotalNotMet = errors.New("promo: minimum subtotal not met")
	// ErrUsageLimitReached indicates the promotion exhausted its global quota.
	ErrUsageLimitReached = errors.New("promo: usage limit reached")
	// ErrPerUserLimitReached indicates the caller exceeded the per-user allowance.
	ErrPerUserLimitReached = errors.New("promo: per-user usage limit reached")
)

// Discount kinds.
const (
	KindPercent = "percent"
	KindFixed   = "fixed_amount"
)

// Rule captures the runtime constraints of a promotion. The resolver only
// reads it; usage counters are advanced by the storage layer inside the
// checkout transaction.
type Rule struct {
	ID          uuid.UUID
	Code        string
	Kind        string
	Value       money.Cents
	PercentBps  *int32
	MinSubtotal money.Cents
	UsageLimit  *int32
	UsedCount   int32
	ValidFrom   *time.Time
	ValidTo     *time.Time
	ProductIDs  []uuid.UUID
	Active      bool

	PerUserUsed    int32
	EffectiveLimit int32
}

// Scoped reports whether the rule applies to a product subset only.
func (r Rule) Scoped() bool { return len(r.ProductIDs) > 0 }

// Item represents a line eligible for promotion calculation.
type Item struct {
	ProductID uuid.UUID
	Subtotal  money.Cents
}

// Resolution describes the outcome of resolving a promotion against a cart.
type Resolution struct {
	PromotionID      uuid.UUID   `json:"-"`
	Code             string      `json:"code"`
	Discount         money.Cents `json:"discount"`
	EligibleSubtotal money.Cents `json:"eligibleSubtotal"`
}

// NormalizeCode canonicalises a promotion code for lookup and comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EligibleSubtotal calculates the portion of the cart affected by the rule.
// An unscoped rule covers every line.
func EligibleSubtotal(items []Item, r Rule) money.Cents {
	var total money.Cents
	for _, it := range items {
		if it.Subtotal <= 0 {
			continue
		}
		if !r.Scoped() || ruleMatchesItem(r, it) {
			total += it.Subtotal
		}
	}
	return total
}

func ruleMatchesItem(r Rule, it Item) bool {
	for _, id := range r.ProductIDs {
		if id == it.ProductID {
			return true
		}
	}
	return false
}

// Resolve validates the rule at the provided instant and computes the
// discount against the applicable subtotal. Each validation step fails with
// its specific error kind so callers can surface the exact reason. The
// minimum-subtotal check runs against the scoped subtotal, not the full cart.
func Resolve(r Rule, now time.Time, items []Item) (Resolution, error) {
	if !r.Active {
		return Resolution{}, ErrNotFound
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return Resolution{}, ErrNotYetActive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return Resolution{}, ErrExpired
	}
	eligible := EligibleSubtotal(items, r)
	if eligible <= 0 {
		return Resolution{}, ErrNotApplicable
	}
	if eligible < r.MinSubtotal {
		return Resolution{}, ErrMinSubtotalNotMet
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return Resolution{}, ErrUsageLimitReached
	}
	if r.EffectiveLimit > 0 && r.PerUserUsed >= r.EffectiveLimit {
		return Resolution{}, ErrPerUserLimitReached
	}
	return Resolution{
		PromotionID:      r.ID,
		Code:             r.Code,
		Discount:         computeDiscount(eligible, r),
		EligibleSubtotal: eligible,
	}, nil
}

// computeDiscount derives the raw discount and clamps it to the eligible
// subtotal. Percent rules round half-up exactly once.
func computeDiscount(eligible money.Cents, r Rule) money.Cents {
	var discount money.Cents
	if strings.EqualFold(r.Kind, KindPercent) {
		if r.PercentBps == nil || *r.PercentBps <= 0 {
			return 0
		}
		discount = money.ApplyBps(eligible, int(*r.PercentBps))
	} else {
		discount = r.Value
	}
	if discount > eligible {
		discount = eligible
	}
	if discount < 0 {
		return 0
	}
	return discount
}
