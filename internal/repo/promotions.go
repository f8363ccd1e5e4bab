package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Promotion mirrors a row of the promotions table.
type Promotion struct {
	ID           pgtype.UUID
	Code         string
	Kind         string
	Value        int64
	PercentBps   pgtype.Int4
	MinSubtotal  int64
	ProductIDs   []pgtype.UUID
	UsageLimit   pgtype.Int4
	PerUserLimit pgtype.Int4
	UsedCount    int32
	ValidFrom    pgtype.Timestamptz
	ValidTo      pgtype.Timestamptz
	Active       bool
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

const promotionColumns = `id, code, kind, value, percent_bps, min_subtotal, product_ids,
	usage_limit, per_user_limit, used_count, valid_from, valid_to, active, created_at, updated_at`

// PromotionRepo provides promotion lookup and bookkeeping queries.
type PromotionRepo struct {
	DB DBTX
}

// WithTx returns a copy of the repo bound to the provided transaction.
func (r PromotionRepo) WithTx(tx pgx.Tx) PromotionRepo {
	return PromotionRepo{DB: tx}
}

func scanPromotion(row pgx.Row) (Promotion, error) {
	var p Promotion
	err := row.Scan(&p.ID, &p.Code, &p.Kind, &p.Value, &p.PercentBps, &p.MinSubtotal, &p.ProductIDs,
		&p.UsageLimit, &p.PerUserLimit, &p.UsedCount, &p.ValidFrom, &p.ValidTo, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetByCode returns the promotion matching the already-normalised code.
func (r PromotionRepo) GetByCode(ctx context.Context, code string) (Promotion, error) {
	return scanPromotion(r.DB.QueryRow(ctx, `
		SELECT `+promotionColumns+`
		FROM promotions
		WHERE code = $1`, code))
}

// CountUsageByUser counts redemptions of a promotion by a single user.
func (r PromotionRepo) CountUsageByUser(ctx context.Context, promotionID, userID pgtype.UUID) (int64, error) {
	var total int64
	err := r.DB.QueryRow(ctx, `
		SELECT count(*) FROM promotion_usages
		WHERE promotion_id = $1 AND user_id = $2`, promotionID, userID).Scan(&total)
	return total, err
}

// Redeem advances the usage counter with a conditional update so two
// concurrent checkouts cannot both take the last redemption. It reports
// whether the counter moved.
func (r PromotionRepo) Redeem(ctx context.Context, promotionID pgtype.UUID) (bool, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE promotions
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`, promotionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertUsage records a redemption against an order. The unique constraint
// on (promotion_id, order_id) keeps retried checkouts idempotent.
func (r PromotionRepo) InsertUsage(ctx context.Context, promotionID, orderID, userID pgtype.UUID, amount int64) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO promotion_usages (promotion_id, order_id, user_id, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (promotion_id, order_id) DO NOTHING`, promotionID, orderID, userID, amount)
	return err
}

// PromotionParams captures the admin-editable fields of a promotion.
type PromotionParams struct {
	Code         string
	Kind         string
	Value        int64
	PercentBps   pgtype.Int4
	MinSubtotal  int64
	ProductIDs   []pgtype.UUID
	UsageLimit   pgtype.Int4
	PerUserLimit pgtype.Int4
	ValidFrom    pgtype.Timestamptz
	ValidTo      pgtype.Timestamptz
	Active       bool
}

// Create inserts a new promotion rule.
func (r PromotionRepo) Create(ctx context.Context, arg PromotionParams) (Promotion, error) {
	return scanPromotion(r.DB.QueryRow(ctx, `
		INSERT INTO promotions (code, kind, value, percent_bps, min_subtotal, product_ids,
			usage_limit, per_user_limit, valid_from, valid_to, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+promotionColumns,
		arg.Code, arg.Kind, arg.Value, arg.PercentBps, arg.MinSubtotal, arg.ProductIDs,
		arg.UsageLimit, arg.PerUserLimit, arg.ValidFrom, arg.ValidTo, arg.Active))
}

// Update replaces the editable fields of a promotion identified by code.
// Usage counters are intentionally left untouched.
func (r PromotionRepo) Update(ctx context.Context, code string, arg PromotionParams) (Promotion, error) {
	return scanPromotion(r.DB.QueryRow(ctx, `
		UPDATE promotions SET
			kind = $2, value = $3, percent_bps = $4, min_subtotal = $5, product_ids = $6,
			usage_limit = $7, per_user_limit = $8, valid_from = $9, valid_to = $10,
			active = $11, updated_at = now()
		WHERE code = $1
		RETURNING `+promotionColumns,
		code, arg.Kind, arg.Value, arg.PercentBps, arg.MinSubtotal, arg.ProductIDs,
		arg.UsageLimit, arg.PerUserLimit, arg.ValidFrom, arg.ValidTo, arg.Active))
}
