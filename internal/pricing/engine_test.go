package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dropskey/backend-dropskey/internal/money"
)

func sampleCart() []Item {
	sale := money.Cents(400)
	return []Item{
		{ProductID: uuid.New(), Qty: 1, UnitPrice: 299},
		{ProductID: uuid.New(), Qty: 2, UnitPrice: ResolveUnitPrice(450, &sale, true), OnSale: true},
	}
}

func TestComputeNoDiscount(t *testing.T) {
	sum := Compute(sampleCart(), 0, 1500)
	if sum.Subtotal != 1099 {
		t.Fatalf("subtotal = %d, want 1099", sum.Subtotal)
	}
	if sum.Discount != 0 {
		t.Fatalf("discount = %d, want 0", sum.Discount)
	}
	if sum.Fee != 165 {
		t.Fatalf("fee = %d, want 165", sum.Fee)
	}
	if sum.Total != 1264 {
		t.Fatalf("total = %d, want 1264", sum.Total)
	}
}

func TestComputeWithDiscount(t *testing.T) {
	// 10% promo resolved upstream: round(1099 * 0.10) = 110.
	sum := Compute(sampleCart(), 110, 1500)
	if sum.Discount != 110 {
		t.Fatalf("discount = %d, want 110", sum.Discount)
	}
	if sum.Fee != 148 {
		t.Fatalf("fee = %d, want 148 (15%% of 989)", sum.Fee)
	}
	if sum.Total != 1137 {
		t.Fatalf("total = %d, want 1137", sum.Total)
	}
}

func TestComputeDiscountClampedToSubtotal(t *testing.T) {
	items := []Item{{ProductID: uuid.New(), Qty: 1, UnitPrice: 300}}
	sum := Compute(items, 500, 1500)
	if sum.Discount != 300 {
		t.Fatalf("discount = %d, want clamp to 300", sum.Discount)
	}
	if sum.Fee != 0 || sum.Total != 0 {
		t.Fatalf("fee/total = %d/%d, want 0/0", sum.Fee, sum.Total)
	}
}

func TestComputeNegativeDiscountIgnored(t *testing.T) {
	sum := Compute(sampleCart(), -50, 1500)
	if sum.Discount != 0 {
		t.Fatalf("discount = %d, want 0", sum.Discount)
	}
}

func TestComputeInvariant(t *testing.T) {
	for _, discount := range []money.Cents{0, 1, 110, 550, 1099, 5000} {
		sum := Compute(sampleCart(), discount, 1500)
		if sum.Total != sum.Subtotal-sum.Discount+sum.Fee {
			t.Fatalf("invariant broken: total %d != %d - %d + %d", sum.Total, sum.Subtotal, sum.Discount, sum.Fee)
		}
		if sum.Discount < 0 || sum.Discount > sum.Subtotal {
			t.Fatalf("discount %d outside [0, %d]", sum.Discount, sum.Subtotal)
		}
	}
}

func TestComputeIdempotent(t *testing.T) {
	items := sampleCart()
	first := Compute(items, 110, 1500)
	second := Compute(items, 110, 1500)
	if first != second {
		t.Fatalf("identical inputs produced different summaries: %+v vs %+v", first, second)
	}
}

func TestComputeSkipsNonPositiveQty(t *testing.T) {
	items := append(sampleCart(), Item{ProductID: uuid.New(), Qty: 0, UnitPrice: 9999})
	sum := Compute(items, 0, 1500)
	if sum.Subtotal != 1099 {
		t.Fatalf("subtotal = %d, want 1099 (zero-qty line ignored)", sum.Subtotal)
	}
}

func TestResolveUnitPrice(t *testing.T) {
	sale := money.Cents(400)
	if got := ResolveUnitPrice(450, &sale, true); got != 400 {
		t.Fatalf("on-sale price = %d, want 400", got)
	}
	if got := ResolveUnitPrice(450, &sale, false); got != 450 {
		t.Fatalf("off-sale price = %d, want 450", got)
	}
	if got := ResolveUnitPrice(450, nil, true); got != 450 {
		t.Fatalf("nil sale price = %d, want 450", got)
	}
}

func TestNewBreakdown(t *testing.T) {
	code := "SAVE10"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bd := NewBreakdown(Compute(sampleCart(), 110, 1500), &code, "USD", at)
	if bd.Total != 1137 || bd.Subtotal != 1099 || bd.Discount != 110 || bd.Fee != 148 {
		t.Fatalf("unexpected breakdown: %+v", bd)
	}
	if bd.PromoCode == nil || *bd.PromoCode != "SAVE10" {
		t.Fatalf("promo code not carried: %+v", bd.PromoCode)
	}
	if bd.Currency != "USD" || !bd.ComputedAt.Equal(at) {
		t.Fatalf("currency/computedAt not carried: %+v", bd)
	}
}
