package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

type seedProduct struct {
	Slug         string
	Title        string
	Platform     string
	RegularPrice int64
	SalePrice    *int64
	OnSale       bool
}

type seedPromotion struct {
	Code         string
	Kind         string
	Value        int64
	PercentBps   *int32
	MinSubtotal  int64
	UsageLimit   *int32
	PerUserLimit *int32
	ValidDays    int
}

func cents(v int64) *int64 { return &v }
func limit(v int32) *int32 { return &v }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	seedProducts(ctx, pool)
	seedPromotions(ctx, pool)

	log.Println("seeding completed")
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) {
	products := []seedProduct{
		{"windows-11-pro", "Windows 11 Pro Retail Key", "Windows", 12999, cents(4499), true},
		{"office-2021-professional-plus", "Office 2021 Professional Plus", "Windows", 24999, cents(5999), true},
		{"windows-10-home", "Windows 10 Home OEM Key", "Windows", 9999, nil, false},
		{"visio-2021-professional", "Visio 2021 Professional", "Windows", 19999, cents(4999), true},
		{"project-2021-professional", "Project 2021 Professional", "Windows", 21999, cents(5499), true},
		{"office-2021-home-business-mac", "Office 2021 Home & Business for Mac", "Mac", 22999, cents(6499), true},
		{"windows-server-2022-standard", "Windows Server 2022 Standard", "Windows", 89999, nil, false},
		{"microsoft-365-family-1yr", "Microsoft 365 Family 12 Months", "Cross-platform", 9999, nil, false},
	}

	log.Println("seeding products...")
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (slug, title, platform, regular_price, sale_price, on_sale, active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			ON CONFLICT (slug) DO UPDATE SET
				title = EXCLUDED.title,
				platform = EXCLUDED.platform,
				regular_price = EXCLUDED.regular_price,
				sale_price = EXCLUDED.sale_price,
				on_sale = EXCLUDED.on_sale,
				updated_at = now();
		`, p.Slug, p.Title, p.Platform, p.RegularPrice, p.SalePrice, p.OnSale)
		if err != nil {
			log.Printf("seed product %s: %v", p.Slug, err)
		}
	}
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) {
	promotions := []seedPromotion{
		{Code: "SAVE10", Kind: "percent", PercentBps: limit(1000), ValidDays: 90},
		{Code: "WELCOME5", Kind: "fixed_amount", Value: 500, MinSubtotal: 2000, PerUserLimit: limit(1), ValidDays: 365},
		{Code: "FLASH25", Kind: "percent", PercentBps: limit(2500), UsageLimit: limit(100), ValidDays: 7},
		{Code: "BIGCART", Kind: "fixed_amount", Value: 2000, MinSubtotal: 10000, ValidDays: 30},
	}

	log.Println("seeding promotions...")
	now := time.Now()
	for _, p := range promotions {
		validTo := now.AddDate(0, 0, p.ValidDays)
		_, err := pool.Exec(ctx, `
			INSERT INTO promotions (code, kind, value, percent_bps, min_subtotal, usage_limit, per_user_limit, valid_from, valid_to, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
			ON CONFLICT (code) DO UPDATE SET
				kind = EXCLUDED.kind,
				value = EXCLUDED.value,
				percent_bps = EXCLUDED.percent_bps,
				min_subtotal = EXCLUDED.min_subtotal,
				usage_limit = EXCLUDED.usage_limit,
				per_user_limit = EXCLUDED.per_user_limit,
				valid_from = EXCLUDED.valid_from,
				valid_to = EXCLUDED.valid_to,
				updated_at = now();
		`, p.Code, p.Kind, p.Value, p.PercentBps, p.MinSubtotal, p.UsageLimit, p.PerUserLimit, now, validTo)
		if err != nil {
			log.Printf("seed promotion %s: %v", p.Code, err)
		}
	}
}
