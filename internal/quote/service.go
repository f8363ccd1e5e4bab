package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/money"
	"github.com/dropskey/backend-dropskey/internal/pricing"
	"github.com/dropskey/backend-dropskey/internal/promo"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// ErrEmptyCart is returned when no line item survives validation.
var ErrEmptyCart = errors.New("quote: cart is empty")

// ProductStore captures the catalog lookup used for pricing.
type ProductStore interface {
	GetForPricing(ctx context.Context, ids []pgtype.UUID) ([]repo.Product, error)
}

// PromoResolver evaluates a promotion code against priced line items.
type PromoResolver interface {
	Resolve(ctx context.Context, code string, userID *string, items []promo.Item) (promo.Resolution, error)
}

// InputItem is a requested cart line. Prices never come from the client;
// the catalog row is authoritative.
type InputItem struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

// Cart is a fully priced cart, ready for the pricing engine.
type Cart struct {
	Items      []pricing.Item
	PromoItems []promo.Item
	Promo      *promo.Resolution
	PromoErr   error
}

// Service prices carts against the live catalog and evaluates promotions.
// It never persists anything; checkout wraps the same path in a
// transaction.
type Service struct {
	Products ProductStore
	Promos   PromoResolver
	FeeBps   int
	Currency string
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// BuildCart loads the catalog rows for the requested lines and resolves
// the promotion when a code is present. A missing or inactive product is
// a hard failure. A failing promotion is carried on the cart, not
// returned, so callers choose between degrading and aborting.
func (s *Service) BuildCart(ctx context.Context, userID *string, items []InputItem, promoCode *string) (Cart, error) {
	if s == nil || s.Products == nil {
		return Cart{}, errors.New("quote service not configured")
	}
	if len(items) == 0 {
		return Cart{}, ErrEmptyCart
	}
	ids := make([]pgtype.UUID, 0, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return Cart{}, &common.AppError{
				Code:       "BAD_REQUEST",
				Message:    "qty must be positive",
				HTTPStatus: http.StatusBadRequest,
			}
		}
		id, err := repo.ToUUID(it.ProductID)
		if err != nil {
			return Cart{}, &common.AppError{
				Code:       "BAD_REQUEST",
				Message:    "invalid productId",
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
			}
		}
		ids = append(ids, id)
	}
	products, err := s.Products.GetForPricing(ctx, ids)
	if err != nil {
		return Cart{}, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[[16]byte]repo.Product, len(products))
	for _, p := range products {
		byID[p.ID.Bytes] = p
	}

	cart := Cart{
		Items:      make([]pricing.Item, 0, len(items)),
		PromoItems: make([]promo.Item, 0, len(items)),
	}
	for i, it := range items {
		p, ok := byID[ids[i].Bytes]
		if !ok {
			return Cart{}, &common.AppError{
				Code:       "PRODUCT_NOT_FOUND",
				Message:    fmt.Sprintf("product %s not found", it.ProductID),
				HTTPStatus: http.StatusUnprocessableEntity,
			}
		}
		var sale *money.Cents
		if p.SalePrice.Valid {
			v := p.SalePrice.Int64
			sale = &v
		}
		line := pricing.Item{
			ProductID: repo.UUIDValue(p.ID),
			Title:     p.Title,
			Qty:       it.Qty,
			UnitPrice: pricing.ResolveUnitPrice(p.RegularPrice, sale, p.OnSale),
			OnSale:    p.OnSale,
		}
		cart.Items = append(cart.Items, line)
		cart.PromoItems = append(cart.PromoItems, promo.Item{
			ProductID: line.ProductID,
			Subtotal:  line.Subtotal(),
		})
	}

	if promoCode != nil && promo.NormalizeCode(*promoCode) != "" {
		if s.Promos == nil {
			return Cart{}, errors.New("promo resolver not configured")
		}
		res, err := s.Promos.Resolve(ctx, *promoCode, userID, cart.PromoItems)
		if err != nil {
			cart.PromoErr = err
		} else {
			cart.Promo = &res
		}
	}
	return cart, nil
}

// Quote prices a cart without touching any state. When the promotion
// fails the quote still succeeds with a zero discount and the failure
// kind travels alongside the breakdown.
func (s *Service) Quote(ctx context.Context, userID *string, items []InputItem, promoCode *string) (pricing.Breakdown, error, error) {
	cart, err := s.BuildCart(ctx, userID, items, promoCode)
	if err != nil {
		return pricing.Breakdown{}, nil, err
	}
	var discount money.Cents
	var appliedCode *string
	if cart.Promo != nil {
		discount = cart.Promo.Discount
		code := cart.Promo.Code
		appliedCode = &code
	}
	sum := pricing.Compute(cart.Items, discount, s.FeeBps)
	return pricing.NewBreakdown(sum, appliedCode, s.Currency, s.now()), cart.PromoErr, nil
}
