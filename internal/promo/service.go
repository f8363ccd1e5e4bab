package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dropskey/backend-dropskey/internal/repo"
)

// Store captures the database methods required by the promo service.
type Store interface {
	GetByCode(ctx context.Context, code string) (repo.Promotion, error)
	CountUsageByUser(ctx context.Context, promotionID, userID pgtype.UUID) (int64, error)
}

// Service evaluates promotion rules against carts without mutating state.
// Redemption bookkeeping lives in the checkout transaction.
type Service struct {
	Store               Store
	Now                 func() time.Time
	DefaultPerUserLimit int
}

// Resolve looks up the promotion by normalised code and evaluates it against
// the provided line items. Every failure carries its specific kind.
func (s *Service) Resolve(ctx context.Context, code string, userID *string, items []Item) (Resolution, error) {
	if s == nil || s.Store == nil {
		return Resolution{}, errors.New("promo service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Resolution{}, ErrNotFound
	}
	record, err := s.Store.GetByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resolution{}, ErrNotFound
		}
		return Resolution{}, err
	}
	rule := ruleFromRecord(record)

	limit := effectivePerUserLimit(rule.PerUserLimitValue, s.DefaultPerUserLimit)
	if limit > 0 {
		rule.EffectiveLimit = limit
		if userID != nil && *userID != "" {
			uid, err := repo.ToUUID(*userID)
			if err != nil {
				return Resolution{}, fmt.Errorf("invalid user id: %w", err)
			}
			used, err := s.Store.CountUsageByUser(ctx, record.ID, uid)
			if err != nil {
				return Resolution{}, err
			}
			rule.PerUserUsed = int32(used)
		}
	}

	return Resolve(rule.Rule, s.now(), items)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// boundRule pairs a Rule with the raw per-user limit so the service can
// substitute the configured default.
type boundRule struct {
	Rule
	PerUserLimitValue *int32
}

// ruleFromRecord converts a stored promotion row into an evaluatable rule.
func ruleFromRecord(p repo.Promotion) boundRule {
	rule := Rule{
		ID:          repo.UUIDValue(p.ID),
		Code:        p.Code,
		Kind:        p.Kind,
		Value:       p.Value,
		MinSubtotal: p.MinSubtotal,
		UsedCount:   p.UsedCount,
		Active:      p.Active,
	}
	if p.PercentBps.Valid {
		bps := p.PercentBps.Int32
		rule.PercentBps = &bps
	}
	if p.UsageLimit.Valid {
		limit := p.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	if p.ValidFrom.Valid {
		from := p.ValidFrom.Time
		rule.ValidFrom = &from
	}
	if p.ValidTo.Valid {
		to := p.ValidTo.Time
		rule.ValidTo = &to
	}
	for _, id := range p.ProductIDs {
		if id.Valid {
			rule.ProductIDs = append(rule.ProductIDs, repo.UUIDValue(id))
		}
	}
	bound := boundRule{Rule: rule}
	if p.PerUserLimit.Valid {
		limit := p.PerUserLimit.Int32
		bound.PerUserLimitValue = &limit
	}
	return bound
}

func effectivePerUserLimit(perUser *int32, defaultLimit int) int32 {
	if perUser != nil && *perUser > 0 {
		return *perUser
	}
	if defaultLimit > 0 {
		return int32(defaultLimit)
	}
	return 0
}
