package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/events"
	"github.com/dropskey/backend-dropskey/internal/lock"
	"github.com/dropskey/backend-dropskey/internal/money"
	"github.com/dropskey/backend-dropskey/internal/obs"
	"github.com/dropskey/backend-dropskey/internal/pricing"
	"github.com/dropskey/backend-dropskey/internal/promo"
	"github.com/dropskey/backend-dropskey/internal/quote"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// StatusConfirmed is the terminal state of a successful checkout. Digital
// keys are fulfilled immediately, there is no payment pending state.
const StatusConfirmed = "CONFIRMED"

// Input is a checkout request. Line items reference catalog products;
// prices always come from the catalog, never from the client.
type Input struct {
	Items     []quote.InputItem `json:"items" validate:"required,min=1,dive"`
	PromoCode *string           `json:"promoCode"`
}

// Output describes a completed checkout.
type Output struct {
	OrderID   string            `json:"orderId"`
	Status    string            `json:"status"`
	Breakdown pricing.Breakdown `json:"breakdown"`
}

// TxStores groups the repositories that participate in the checkout
// transaction.
type TxStores struct {
	Orders repo.OrderRepo
	Promos repo.PromotionRepo
}

// Service turns a priced cart into a persisted order. The promotion
// redemption and the order snapshot commit or roll back together.
type Service struct {
	Pool     *pgxpool.Pool
	Stores   TxStores
	Quotes   *quote.Service
	Events   *events.Bus
	Locker   *lock.Locker
	LockTTL  time.Duration
	Currency string
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// Create validates the cart, resolves the promotion, and persists the
// order with its frozen price breakdown. A failing promotion aborts the
// checkout with its specific kind; the quote endpoint is the place for
// degraded pricing.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Output, error) {
	if s == nil || s.Pool == nil || s.Quotes == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if userID == "" {
		return Output{}, &common.AppError{Code: "UNAUTHORIZED", Message: "user is required for checkout", HTTPStatus: http.StatusUnauthorized}
	}
	uid, err := repo.ToUUID(userID)
	if err != nil {
		return Output{}, fmt.Errorf("invalid user id: %w", err)
	}

	var out Output
	run := func(ctx context.Context) error {
		var runErr error
		out, runErr = s.create(ctx, userID, uid, in)
		return runErr
	}
	if s.Locker != nil {
		// One checkout per user at a time keeps per-user promo counting exact.
		return out, s.Locker.WithLock(ctx, "checkout:user:"+userID, s.lockTTL(), run)
	}
	return out, run(ctx)
}

func (s *Service) create(ctx context.Context, userID string, uid pgtype.UUID, in Input) (Output, error) {
	cart, err := s.Quotes.BuildCart(ctx, &userID, in.Items, in.PromoCode)
	if err != nil {
		return Output{}, err
	}
	if cart.PromoErr != nil {
		obs.ObserveCheckout("promo_rejected")
		obs.ObservePromoRedemption("rejected", 0)
		return Output{}, cart.PromoErr
	}

	var discount money.Cents
	var promoCode pgtype.Text
	var appliedCode *string
	if cart.Promo != nil {
		discount = cart.Promo.Discount
		promoCode = pgtype.Text{String: cart.Promo.Code, Valid: true}
		code := cart.Promo.Code
		appliedCode = &code
	}
	summary := pricing.Compute(cart.Items, discount, s.Quotes.FeeBps)
	computedAt := s.now()
	breakdown := pricing.NewBreakdown(summary, appliedCode, s.Currency, computedAt)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Output{}, persistenceFailure(err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	orders := s.Stores.Orders.WithTx(tx)
	promos := s.Stores.Promos.WithTx(tx)

	order, err := orders.Insert(ctx, repo.InsertParams{
		UserID:     uid,
		Status:     StatusConfirmed,
		Currency:   s.Currency,
		Subtotal:   summary.Subtotal,
		Discount:   summary.Discount,
		Fee:        summary.Fee,
		Total:      summary.Total,
		PromoCode:  promoCode,
		ComputedAt: pgtype.Timestamptz{Time: computedAt, Valid: true},
	})
	if err != nil {
		return Output{}, persistenceFailure(err)
	}
	for _, it := range cart.Items {
		if err := orders.InsertItem(ctx, repo.ItemParams{
			OrderID:   order.ID,
			ProductID: repo.FromUUID(it.ProductID),
			Title:     it.Title,
			Qty:       int32(it.Qty),
			UnitPrice: it.UnitPrice,
			OnSale:    it.OnSale,
			Subtotal:  it.Subtotal(),
		}); err != nil {
			return Output{}, persistenceFailure(err)
		}
	}
	if cart.Promo != nil {
		// The conditional update loses the race when a concurrent checkout
		// takes the last redemption between resolve and commit.
		ok, err := promos.Redeem(ctx, repo.FromUUID(cart.Promo.PromotionID))
		if err != nil {
			return Output{}, persistenceFailure(err)
		}
		if !ok {
			return Output{}, promo.ErrUsageLimitReached
		}
		if err := promos.InsertUsage(ctx, repo.FromUUID(cart.Promo.PromotionID), order.ID, uid, summary.Discount); err != nil {
			return Output{}, persistenceFailure(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Output{}, persistenceFailure(err)
	}

	obs.ObserveCheckout("confirmed")
	if cart.Promo != nil {
		obs.ObservePromoRedemption("redeemed", int64(summary.Discount))
	}

	if s.Events != nil {
		payload := map[string]any{
			"orderId": repo.UUIDString(order.ID),
			"userId":  userID,
			"total":   summary.Total,
		}
		if appliedCode != nil {
			payload["promoCode"] = *appliedCode
		}
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, order.ID, payload)
		if cart.Promo != nil {
			_, _ = s.Events.Emit(ctx, events.TopicPromoRedeemed, order.ID, map[string]any{
				"orderId":   repo.UUIDString(order.ID),
				"userId":    userID,
				"promoCode": cart.Promo.Code,
				"discount":  summary.Discount,
			})
		}
	}
	return Output{
		OrderID:   repo.UUIDString(order.ID),
		Status:    order.Status,
		Breakdown: breakdown,
	}, nil
}

func persistenceFailure(err error) error {
	return &common.AppError{
		Code:       "PERSISTENCE_FAILURE",
		Message:    "failed to persist order",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
