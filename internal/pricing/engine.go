package pricing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dropskey/backend-dropskey/internal/money"
)

// Item describes a line item used for totals calculation. Unit prices are
// always resolved server-side from the catalog; a client-supplied price never
// reaches this package.
type Item struct {
	ProductID uuid.UUID
	Title     string
	Qty       int
	UnitPrice money.Cents
	OnSale    bool
}

// Subtotal returns the line subtotal in cents.
func (it Item) Subtotal() money.Cents {
	if it.Qty <= 0 {
		return 0
	}
	return money.Cents(it.Qty) * it.UnitPrice
}

// ResolveUnitPrice selects the authoritative unit price for a catalog record:
// the sale price when the product is flagged on sale and a sale price exists,
// the regular price otherwise.
func ResolveUnitPrice(regular money.Cents, sale *money.Cents, onSale bool) money.Cents {
	if onSale && sale != nil {
		return *sale
	}
	return regular
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal money.Cents
	Discount money.Cents
	Fee      money.Cents
	Total    money.Cents
}

// Compute calculates order totals from the provided line items, an already
// resolved discount, and the processing-fee rate in basis points. The fee is
// taken on the discounted subtotal, never the raw one, and every component is
// rounded exactly once.
func Compute(items []Item, discount money.Cents, feeBps int) Summary {
	var subtotal money.Cents
	for _, it := range items {
		subtotal += it.Subtotal()
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	discounted := subtotal - discount
	fee := money.ApplyBps(discounted, feeBps)
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Fee:      fee,
		Total:    discounted + fee,
	}
}

// Breakdown is the immutable snapshot of how an order total was derived. It
// is persisted with the order and is the sole source invoices render from;
// totals are never recomputed after the order is finalised.
type Breakdown struct {
	Subtotal   money.Cents `json:"subtotal"`
	Discount   money.Cents `json:"discount"`
	PromoCode  *string     `json:"promoCode"`
	Fee        money.Cents `json:"processingFee"`
	Total      money.Cents `json:"total"`
	Currency   string      `json:"currency"`
	ComputedAt time.Time   `json:"computedAt"`
}

// NewBreakdown freezes a summary into a persistable snapshot.
func NewBreakdown(sum Summary, promoCode *string, currency string, at time.Time) Breakdown {
	return Breakdown{
		Subtotal:   sum.Subtotal,
		Discount:   sum.Discount,
		PromoCode:  promoCode,
		Fee:        sum.Fee,
		Total:      sum.Total,
		Currency:   currency,
		ComputedAt: at.UTC(),
	}
}
