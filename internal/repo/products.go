package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Product mirrors a row of the products table. Prices are integer cents.
type Product struct {
	ID           pgtype.UUID
	Slug         string
	Title        string
	Platform     pgtype.Text
	RegularPrice int64
	SalePrice    pgtype.Int8
	OnSale       bool
	Active       bool
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

const productColumns = `id, slug, title, platform, regular_price, sale_price, on_sale, active, created_at, updated_at`

// ProductRepo provides catalog queries.
type ProductRepo struct {
	DB DBTX
}

// WithTx returns a copy of the repo bound to the provided transaction.
func (r ProductRepo) WithTx(tx pgx.Tx) ProductRepo {
	return ProductRepo{DB: tx}
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Platform, &p.RegularPrice, &p.SalePrice, &p.OnSale, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListActive returns a page of active products, optionally filtered by a
// title substring.
func (r ProductRepo) ListActive(ctx context.Context, query string, limit, offset int32) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active AND ($1 = '' OR title ILIKE '%' || $1 || '%')
		ORDER BY title
		LIMIT $2 OFFSET $3`, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountActive counts active products for the same filter as ListActive.
func (r ProductRepo) CountActive(ctx context.Context, query string) (int64, error) {
	var total int64
	err := r.DB.QueryRow(ctx, `
		SELECT count(*) FROM products
		WHERE active AND ($1 = '' OR title ILIKE '%' || $1 || '%')`, query).Scan(&total)
	return total, err
}

// GetBySlug returns an active product by its slug.
func (r ProductRepo) GetBySlug(ctx context.Context, slug string) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE slug = $1 AND active`, slug))
}

// GetForPricing loads the authoritative catalog records for the provided
// product ids. Inactive products are excluded so a delisted key can no
// longer be purchased.
func (r ProductRepo) GetForPricing(ctx context.Context, ids []pgtype.UUID) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1) AND active`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertParams captures the fields for creating or refreshing a product.
type UpsertParams struct {
	Slug         string
	Title        string
	Platform     string
	RegularPrice int64
	SalePrice    *int64
	OnSale       bool
	Active       bool
}

// Upsert inserts a product or refreshes it in place when the slug exists.
func (r ProductRepo) Upsert(ctx context.Context, arg UpsertParams) (Product, error) {
	sale := pgtype.Int8{}
	if arg.SalePrice != nil {
		sale = pgtype.Int8{Int64: *arg.SalePrice, Valid: true}
	}
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products (slug, title, platform, regular_price, sale_price, on_sale, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			platform = EXCLUDED.platform,
			regular_price = EXCLUDED.regular_price,
			sale_price = EXCLUDED.sale_price,
			on_sale = EXCLUDED.on_sale,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+productColumns, arg.Slug, arg.Title, toText(arg.Platform), arg.RegularPrice, sale, arg.OnSale, arg.Active))
}
