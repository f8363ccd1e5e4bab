package promo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dropskey/backend-dropskey/internal/repo"
)

type stubStore struct {
	promotion  repo.Promotion
	usageCount int64
	usageErr   error
}

func (s *stubStore) GetByCode(ctx context.Context, code string) (repo.Promotion, error) {
	if s.promotion.Code == "" {
		return repo.Promotion{}, pgx.ErrNoRows
	}
	return s.promotion, nil
}

func (s *stubStore) CountUsageByUser(ctx context.Context, promotionID, userID pgtype.UUID) (int64, error) {
	if s.usageErr != nil {
		return 0, s.usageErr
	}
	return s.usageCount, nil
}

func TestResolveUnknownCode(t *testing.T) {
	svc := &Service{Store: &stubStore{}}
	_, err := svc.Resolve(context.Background(), "NOPE", nil, []Item{{Subtotal: 1_000}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveNormalizesCode(t *testing.T) {
	svc := &Service{Store: &stubStore{promotion: newPromotion(500, 0)}}
	res, err := svc.Resolve(context.Background(), "  promo ", nil, []Item{{ProductID: uuid.New(), Subtotal: 10_000}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Discount != 500 {
		t.Fatalf("expected discount 500, got %d", res.Discount)
	}
}

func TestResolvePerUserLimitFromStore(t *testing.T) {
	p := newPromotion(500, 0)
	p.PerUserLimit = pgtype.Int4{Int32: 1, Valid: true}
	userID := uuid.New().String()
	svc := &Service{Store: &stubStore{promotion: p, usageCount: 1}}
	_, err := svc.Resolve(context.Background(), "PROMO", &userID, []Item{{ProductID: uuid.New(), Subtotal: 10_000}})
	if !errors.Is(err, ErrPerUserLimitReached) {
		t.Fatalf("expected ErrPerUserLimitReached, got %v", err)
	}
}

func TestResolveDefaultPerUserLimit(t *testing.T) {
	userID := uuid.New().String()
	svc := &Service{
		Store:               &stubStore{promotion: newPromotion(500, 0), usageCount: 2},
		DefaultPerUserLimit: 2,
	}
	_, err := svc.Resolve(context.Background(), "PROMO", &userID, []Item{{ProductID: uuid.New(), Subtotal: 10_000}})
	if !errors.Is(err, ErrPerUserLimitReached) {
		t.Fatalf("expected ErrPerUserLimitReached, got %v", err)
	}
}

func TestResolveAnonymousSkipsUsageLookup(t *testing.T) {
	svc := &Service{
		Store:               &stubStore{promotion: newPromotion(500, 0), usageErr: errors.New("must not be called")},
		DefaultPerUserLimit: 1,
	}
	if _, err := svc.Resolve(context.Background(), "PROMO", nil, []Item{{ProductID: uuid.New(), Subtotal: 10_000}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func newPromotion(value int64, usedCount int32) repo.Promotion {
	return repo.Promotion{
		ID:          repo.FromUUID(uuid.New()),
		Code:        "PROMO",
		Kind:        KindFixed,
		Value:       value,
		MinSubtotal: 1_000,
		UsedCount:   usedCount,
		Active:      true,
	}
}
