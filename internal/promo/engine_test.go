package promo

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResolvePercentRoundsHalfUp(t *testing.T) {
	percent := int32(1000)
	rule := Rule{Code: "TEN", Kind: KindPercent, PercentBps: &percent, Active: true}
	res, err := Resolve(rule, time.Now(), []Item{{ProductID: uuid.New(), Subtotal: 1099}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Discount != 110 {
		t.Fatalf("expected discount 110, got %d", res.Discount)
	}
}

func TestResolveFixedClampedToEligible(t *testing.T) {
	rule := Rule{Code: "BIG", Kind: KindFixed, Value: 5_000, Active: true}
	res, err := Resolve(rule, time.Now(), []Item{{ProductID: uuid.New(), Subtotal: 1_500}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Discount != 1_500 {
		t.Fatalf("expected discount clamped to 1500, got %d", res.Discount)
	}
}

func TestResolveWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)
	items := []Item{{ProductID: uuid.New(), Subtotal: 10_000}}

	rule := Rule{Code: "SOON", Kind: KindFixed, Value: 100, Active: true, ValidFrom: &future}
	if _, err := Resolve(rule, now, items); !errors.Is(err, ErrNotYetActive) {
		t.Fatalf("expected ErrNotYetActive, got %v", err)
	}

	rule = Rule{Code: "GONE", Kind: KindFixed, Value: 100, Active: true, ValidTo: &past}
	if _, err := Resolve(rule, now, items); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestResolveInactiveLooksLikeMissing(t *testing.T) {
	rule := Rule{Code: "OFF", Kind: KindFixed, Value: 100}
	_, err := Resolve(rule, time.Now(), []Item{{ProductID: uuid.New(), Subtotal: 1_000}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveScopedEligibility(t *testing.T) {
	inScope := uuidMust("11111111-1111-1111-1111-111111111111")
	outOfScope := uuidMust("22222222-2222-2222-2222-222222222222")
	percent := int32(5000)
	rule := Rule{
		Code:       "HALF",
		Kind:       KindPercent,
		PercentBps: &percent,
		ProductIDs: []uuid.UUID{inScope},
		Active:     true,
	}
	items := []Item{
		{ProductID: inScope, Subtotal: 2_000},
		{ProductID: outOfScope, Subtotal: 8_000},
	}
	res, err := Resolve(rule, time.Now(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EligibleSubtotal != 2_000 {
		t.Fatalf("expected eligible subtotal 2000, got %d", res.EligibleSubtotal)
	}
	if res.Discount != 1_000 {
		t.Fatalf("expected discount 1000, got %d", res.Discount)
	}
}

func TestResolveScopedNoMatch(t *testing.T) {
	scoped := uuidMust("11111111-1111-1111-1111-111111111111")
	rule := Rule{Code: "SCOPED", Kind: KindFixed, Value: 100, ProductIDs: []uuid.UUID{scoped}, Active: true}
	items := []Item{{ProductID: uuid.New(), Subtotal: 10_000}}
	if _, err := Resolve(rule, time.Now(), items); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("expected ErrNotApplicable, got %v", err)
	}
}

func TestResolveMinSubtotalAgainstEligible(t *testing.T) {
	scoped := uuidMust("11111111-1111-1111-1111-111111111111")
	rule := Rule{
		Code:        "MIN",
		Kind:        KindFixed,
		Value:       100,
		MinSubtotal: 5_000,
		ProductIDs:  []uuid.UUID{scoped},
		Active:      true,
	}
	// The cart total clears the minimum but the scoped portion does not.
	items := []Item{
		{ProductID: scoped, Subtotal: 2_000},
		{ProductID: uuid.New(), Subtotal: 20_000},
	}
	if _, err := Resolve(rule, time.Now(), items); !errors.Is(err, ErrMinSubtotalNotMet) {
		t.Fatalf("expected ErrMinSubtotalNotMet, got %v", err)
	}
}

func TestResolveUsageLimits(t *testing.T) {
	limit := int32(10)
	rule := Rule{Code: "CAP", Kind: KindFixed, Value: 100, UsageLimit: &limit, UsedCount: 10, Active: true}
	items := []Item{{ProductID: uuid.New(), Subtotal: 10_000}}
	if _, err := Resolve(rule, time.Now(), items); !errors.Is(err, ErrUsageLimitReached) {
		t.Fatalf("expected ErrUsageLimitReached, got %v", err)
	}

	rule = Rule{Code: "PERUSER", Kind: KindFixed, Value: 100, Active: true, EffectiveLimit: 1, PerUserUsed: 1}
	if _, err := Resolve(rule, time.Now(), items); !errors.Is(err, ErrPerUserLimitReached) {
		t.Fatalf("expected ErrPerUserLimitReached, got %v", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  save10 "); got != "SAVE10" {
		t.Fatalf("expected SAVE10, got %q", got)
	}
}

func uuidMust(value string) uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		panic(err)
	}
	return id
}
