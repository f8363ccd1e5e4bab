package promo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/money"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// AdminStore captures the mutations exposed to the admin endpoints.
type AdminStore interface {
	Create(ctx context.Context, arg repo.PromotionParams) (repo.Promotion, error)
	Update(ctx context.Context, code string, arg repo.PromotionParams) (repo.Promotion, error)
}

// Handler exposes administrative promotion management endpoints.
type Handler struct {
	Store AdminStore
	Svc   *Service
}

type promotionPayload struct {
	Code         string     `json:"code"`
	Kind         string     `json:"kind"`
	Value        string     `json:"value"`
	PercentBps   *int32     `json:"percentBps"`
	MinSubtotal  string     `json:"minSubtotal"`
	ProductIDs   []string   `json:"productIds"`
	UsageLimit   *int32     `json:"usageLimit"`
	PerUserLimit *int32     `json:"perUserLimit"`
	ValidFrom    *time.Time `json:"validFrom"`
	ValidTo      *time.Time `json:"validTo"`
	Active       *bool      `json:"active"`
}

type promotionView struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Kind         string     `json:"kind"`
	Value        string     `json:"value"`
	PercentBps   *int32     `json:"percentBps,omitempty"`
	MinSubtotal  string     `json:"minSubtotal"`
	ProductIDs   []string   `json:"productIds,omitempty"`
	UsageLimit   *int32     `json:"usageLimit,omitempty"`
	PerUserLimit *int32     `json:"perUserLimit,omitempty"`
	UsedCount    int32      `json:"usedCount"`
	ValidFrom    *time.Time `json:"validFrom,omitempty"`
	ValidTo      *time.Time `json:"validTo,omitempty"`
	Active       bool       `json:"active"`
}

type previewRequest struct {
	Code   string               `json:"code"`
	UserID *string              `json:"userId"`
	Items  []previewRequestItem `json:"items"`
}

type previewRequestItem struct {
	ProductID string `json:"productId"`
	Subtotal  string `json:"subtotal"`
}

type previewResponse struct {
	Code             string `json:"code"`
	Discount         string `json:"discount"`
	EligibleSubtotal string `json:"eligibleSubtotal"`
}

// Create inserts a new promotion rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion store not configured", nil)
		return
	}
	var payload promotionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	params, err := buildParams(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if params.Code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	record, err := h.Store.Create(r.Context(), params)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "promotion code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create promotion", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": viewFromRecord(record)})
}

// Update mutates an existing promotion identified by code. Usage counters
// survive the update untouched.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion store not configured", nil)
		return
	}
	code := NormalizeCode(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	var payload promotionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	params, err := buildParams(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	record, err := h.Store.Update(r.Context(), code, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update promotion", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": viewFromRecord(record)})
}

// Preview simulates a promotion against the submitted line items without
// touching usage counters.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo service not configured", nil)
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	items, err := toEngineItems(req.Items)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	result, err := h.Svc.Resolve(r.Context(), req.Code, req.UserID, items)
	if err != nil {
		status, code := StatusFor(err)
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": previewResponse{
		Code:             result.Code,
		Discount:         money.FromCents(result.Discount),
		EligibleSubtotal: money.FromCents(result.EligibleSubtotal),
	}})
}

// StatusFor maps a promotion resolution failure to its HTTP status and
// stable error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "PROMO_NOT_FOUND"
	case errors.Is(err, ErrNotYetActive):
		return http.StatusUnprocessableEntity, "PROMO_NOT_YET_ACTIVE"
	case errors.Is(err, ErrExpired):
		return http.StatusUnprocessableEntity, "PROMO_EXPIRED"
	case errors.Is(err, ErrNotApplicable):
		return http.StatusUnprocessableEntity, "PROMO_NOT_APPLICABLE"
	case errors.Is(err, ErrMinSubtotalNotMet):
		return http.StatusUnprocessableEntity, "PROMO_MIN_SUBTOTAL_NOT_MET"
	case errors.Is(err, ErrUsageLimitReached):
		return http.StatusUnprocessableEntity, "PROMO_USAGE_LIMIT_REACHED"
	case errors.Is(err, ErrPerUserLimitReached):
		return http.StatusUnprocessableEntity, "PROMO_PER_USER_LIMIT_REACHED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func buildParams(payload promotionPayload) (repo.PromotionParams, error) {
	kind := strings.TrimSpace(payload.Kind)
	if kind == "" {
		kind = KindFixed
	}
	switch kind {
	case KindFixed, KindPercent:
	default:
		return repo.PromotionParams{}, errors.New("invalid kind")
	}
	var value money.Cents
	if strings.TrimSpace(payload.Value) != "" {
		parsed, err := money.ToCents(payload.Value)
		if err != nil {
			return repo.PromotionParams{}, errors.New("invalid value")
		}
		value = parsed
	}
	if kind == KindFixed && value <= 0 {
		return repo.PromotionParams{}, errors.New("fixed promotions require a positive value")
	}
	percent := pgtype.Int4{}
	if payload.PercentBps != nil {
		if *payload.PercentBps <= 0 || *payload.PercentBps > 10000 {
			return repo.PromotionParams{}, errors.New("percentBps must be between 1 and 10000")
		}
		percent = pgtype.Int4{Int32: *payload.PercentBps, Valid: true}
	}
	if kind == KindPercent && !percent.Valid {
		return repo.PromotionParams{}, errors.New("percent promotions require percentBps")
	}
	var minSubtotal money.Cents
	if strings.TrimSpace(payload.MinSubtotal) != "" {
		parsed, err := money.ToCents(payload.MinSubtotal)
		if err != nil {
			return repo.PromotionParams{}, errors.New("invalid minSubtotal")
		}
		minSubtotal = parsed
	}
	productIDs, err := toUUIDArray(payload.ProductIDs)
	if err != nil {
		return repo.PromotionParams{}, err
	}
	usageLimit := pgtype.Int4{}
	if payload.UsageLimit != nil {
		usageLimit = pgtype.Int4{Int32: *payload.UsageLimit, Valid: true}
	}
	perUser := pgtype.Int4{}
	if payload.PerUserLimit != nil {
		perUser = pgtype.Int4{Int32: *payload.PerUserLimit, Valid: true}
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	return repo.PromotionParams{
		Code:         NormalizeCode(payload.Code),
		Kind:         kind,
		Value:        value,
		PercentBps:   percent,
		MinSubtotal:  minSubtotal,
		ProductIDs:   productIDs,
		UsageLimit:   usageLimit,
		PerUserLimit: perUser,
		ValidFrom:    timeToNullable(payload.ValidFrom),
		ValidTo:      timeToNullable(payload.ValidTo),
		Active:       active,
	}, nil
}

func viewFromRecord(p repo.Promotion) promotionView {
	view := promotionView{
		ID:          repo.UUIDString(p.ID),
		Code:        p.Code,
		Kind:        p.Kind,
		Value:       money.FromCents(p.Value),
		MinSubtotal: money.FromCents(p.MinSubtotal),
		UsedCount:   p.UsedCount,
		Active:      p.Active,
	}
	if p.PercentBps.Valid {
		bps := p.PercentBps.Int32
		view.PercentBps = &bps
	}
	if p.UsageLimit.Valid {
		limit := p.UsageLimit.Int32
		view.UsageLimit = &limit
	}
	if p.PerUserLimit.Valid {
		limit := p.PerUserLimit.Int32
		view.PerUserLimit = &limit
	}
	if p.ValidFrom.Valid {
		from := p.ValidFrom.Time
		view.ValidFrom = &from
	}
	if p.ValidTo.Valid {
		to := p.ValidTo.Time
		view.ValidTo = &to
	}
	for _, id := range p.ProductIDs {
		if id.Valid {
			view.ProductIDs = append(view.ProductIDs, repo.UUIDString(id))
		}
	}
	return view
}

func toEngineItems(items []previewRequestItem) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		id, err := repo.ToUUID(strings.TrimSpace(it.ProductID))
		if err != nil {
			return nil, errors.New("invalid productId")
		}
		subtotal, err := money.ToCents(it.Subtotal)
		if err != nil {
			return nil, errors.New("invalid subtotal")
		}
		out = append(out, Item{ProductID: repo.UUIDValue(id), Subtotal: subtotal})
	}
	return out, nil
}

func toUUIDArray(values []string) ([]pgtype.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]pgtype.UUID, 0, len(values))
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		parsed, err := repo.ToUUID(trimmed)
		if err != nil {
			return nil, errors.New("invalid productIds entry")
		}
		out = append(out, parsed)
	}
	return out, nil
}

func timeToNullable(v *time.Time) pgtype.Timestamptz {
	if v == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *v, Valid: true}
}
