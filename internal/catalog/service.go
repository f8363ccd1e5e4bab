package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/money"
	"github.com/dropskey/backend-dropskey/internal/obs"
	"github.com/dropskey/backend-dropskey/internal/pricing"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// Store captures the product queries the catalog service depends on.
type Store interface {
	ListActive(ctx context.Context, query string, limit, offset int32) ([]repo.Product, error)
	CountActive(ctx context.Context, query string) (int64, error)
	GetBySlug(ctx context.Context, slug string) (repo.Product, error)
	Upsert(ctx context.Context, arg repo.UpsertParams) (repo.Product, error)
}

// Service orchestrates product queries, DTO assembly, and caching.
type Service struct {
	store        Store
	cache        *Cache
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        Store
	Cache        *Cache
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query string
	Page  int
	Limit int
}

// ProductView is the public product payload. Prices are decimal strings.
type ProductView struct {
	ID           string  `json:"id"`
	Slug         string  `json:"slug"`
	Title        string  `json:"title"`
	Platform     *string `json:"platform,omitempty"`
	Price        string  `json:"price"`
	RegularPrice string  `json:"regularPrice"`
	SalePrice    *string `json:"salePrice,omitempty"`
	OnSale       bool    `json:"onSale"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductView
	Total int64
	Page  int
	Limit int
}

type cachedList struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: product store is required")
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Page:  s.defaultPage,
		Limit: s.defaultLimit,
	}
	params.Query = strings.TrimSpace(values.Get("q"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	return params, nil
}

// ListProducts returns the filtered product list with pagination metadata.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	key := listKey(params.Query, params.Page, params.Limit)
	var cached cachedList
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		obs.ObserveCatalogCache("hit")
		return ProductListResult{Items: cached.Items, Total: cached.Total, Page: params.Page, Limit: params.Limit}, nil
	}
	obs.ObserveCatalogCache("miss")

	total, err := s.store.CountActive(ctx, params.Query)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("count products: %w", err)
	}
	offset := int32((params.Page - 1) * params.Limit)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.ListActive(ctx, params.Query, int32(params.Limit), offset)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]ProductView, 0, len(rows))
	for _, row := range rows {
		items = append(items, ViewFromRecord(row))
	}
	_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	return ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// GetProduct returns a single active product by slug.
func (s *Service) GetProduct(ctx context.Context, slug string) (ProductView, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductView{}, badRequest("slug", "slug is required", nil)
	}
	key := detailKey(slug)
	var cached ProductView
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		obs.ObserveCatalogCache("hit")
		return cached, nil
	}
	obs.ObserveCatalogCache("miss")
	row, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductView{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return ProductView{}, fmt.Errorf("get product by slug: %w", err)
	}
	view := ViewFromRecord(row)
	_ = s.cache.SetJSON(ctx, key, view)
	return view, nil
}

// UpsertParams carries an admin product create-or-refresh request with
// decimal price strings.
type UpsertParams struct {
	Slug         string
	Title        string
	Platform     string
	RegularPrice string
	SalePrice    *string
	OnSale       bool
	Active       bool
}

// UpsertProduct creates or refreshes a product and invalidates its cache
// entries.
func (s *Service) UpsertProduct(ctx context.Context, params UpsertParams) (ProductView, error) {
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		return ProductView{}, badRequest("slug", "slug is required", nil)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return ProductView{}, badRequest("title", "title is required", nil)
	}
	regular, err := money.ToCents(params.RegularPrice)
	if err != nil || regular <= 0 {
		return ProductView{}, badRequest("regularPrice", "regularPrice must be a positive decimal amount", err)
	}
	arg := repo.UpsertParams{
		Slug:         slug,
		Title:        title,
		Platform:     strings.TrimSpace(params.Platform),
		RegularPrice: regular,
		OnSale:       params.OnSale,
		Active:       params.Active,
	}
	if params.SalePrice != nil {
		sale, err := money.ToCents(*params.SalePrice)
		if err != nil || sale <= 0 {
			return ProductView{}, badRequest("salePrice", "salePrice must be a positive decimal amount", err)
		}
		arg.SalePrice = &sale
	}
	if params.OnSale && arg.SalePrice == nil {
		return ProductView{}, badRequest("salePrice", "onSale requires a salePrice", nil)
	}
	row, err := s.store.Upsert(ctx, arg)
	if err != nil {
		return ProductView{}, fmt.Errorf("upsert product: %w", err)
	}
	_ = s.cache.Invalidate(ctx, slug)
	return ViewFromRecord(row), nil
}

// ViewFromRecord assembles the public payload. The effective price follows
// the sale flag, never the sale column alone.
func ViewFromRecord(p repo.Product) ProductView {
	view := ProductView{
		ID:           repo.UUIDString(p.ID),
		Slug:         p.Slug,
		Title:        p.Title,
		RegularPrice: money.FromCents(p.RegularPrice),
		OnSale:       p.OnSale,
	}
	if p.Platform.Valid {
		platform := p.Platform.String
		view.Platform = &platform
	}
	var sale *money.Cents
	if p.SalePrice.Valid {
		v := p.SalePrice.Int64
		sale = &v
		formatted := money.FromCents(v)
		view.SalePrice = &formatted
	}
	view.Price = money.FromCents(pricing.ResolveUnitPrice(p.RegularPrice, sale, p.OnSale))
	return view
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"field": field},
	}
}
