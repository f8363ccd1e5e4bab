package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Order mirrors a row of the orders table. The pricing_* columns are the
// frozen breakdown snapshot; they are written once at checkout and never
// recomputed.
type Order struct {
	ID         pgtype.UUID
	UserID     pgtype.UUID
	Status     string
	Currency   string
	Subtotal   int64
	Discount   int64
	Fee        int64
	Total      int64
	PromoCode  pgtype.Text
	ComputedAt pgtype.Timestamptz
	CreatedAt  pgtype.Timestamptz
}

// OrderItem mirrors a row of the order_items table: a frozen copy of
// price and quantity at purchase time, distinct from the live catalog row.
type OrderItem struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Title     string
	Qty       int32
	UnitPrice int64
	OnSale    bool
	Subtotal  int64
}

const orderColumns = `id, user_id, status, currency, pricing_subtotal, pricing_discount,
	pricing_fee, pricing_total, promo_code, computed_at, created_at`

// OrderRepo provides order persistence and retrieval.
type OrderRepo struct {
	DB DBTX
}

// WithTx returns a copy of the repo bound to the provided transaction.
func (r OrderRepo) WithTx(tx pgx.Tx) OrderRepo {
	return OrderRepo{DB: tx}
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Currency, &o.Subtotal, &o.Discount,
		&o.Fee, &o.Total, &o.PromoCode, &o.ComputedAt, &o.CreatedAt)
	return o, err
}

// InsertParams captures the fields required to create an order row.
type InsertParams struct {
	UserID     pgtype.UUID
	Status     string
	Currency   string
	Subtotal   int64
	Discount   int64
	Fee        int64
	Total      int64
	PromoCode  pgtype.Text
	ComputedAt pgtype.Timestamptz
}

// Insert creates the order row and returns it.
func (r OrderRepo) Insert(ctx context.Context, arg InsertParams) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, currency, pricing_subtotal, pricing_discount,
			pricing_fee, pricing_total, promo_code, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+orderColumns,
		arg.UserID, arg.Status, arg.Currency, arg.Subtotal, arg.Discount,
		arg.Fee, arg.Total, arg.PromoCode, arg.ComputedAt))
}

// ItemParams captures a frozen order line.
type ItemParams struct {
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Title     string
	Qty       int32
	UnitPrice int64
	OnSale    bool
	Subtotal  int64
}

// InsertItem creates one order line row.
func (r OrderRepo) InsertItem(ctx context.Context, arg ItemParams) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, title, qty, unit_price, on_sale, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		arg.OrderID, arg.ProductID, arg.Title, arg.Qty, arg.UnitPrice, arg.OnSale, arg.Subtotal)
	return err
}

// GetForUser returns an order owned by the given user.
func (r OrderRepo) GetForUser(ctx context.Context, id, userID pgtype.UUID) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListForUser returns a page of the user's orders, newest first.
func (r OrderRepo) ListForUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountForUser counts the user's orders.
func (r OrderRepo) CountForUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var total int64
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total)
	return total, err
}

// ItemsByOrder returns the frozen lines of an order.
func (r OrderRepo) ItemsByOrder(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, title, qty, unit_price, on_sale, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY title`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Qty, &it.UnitPrice, &it.OnSale, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
