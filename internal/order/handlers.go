package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/money"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// Store captures the order retrieval queries used by the handlers.
type Store interface {
	GetForUser(ctx context.Context, id, userID pgtype.UUID) (repo.Order, error)
	ListForUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]repo.Order, error)
	CountForUser(ctx context.Context, userID pgtype.UUID) (int64, error)
	ItemsByOrder(ctx context.Context, orderID pgtype.UUID) ([]repo.OrderItem, error)
}

// Handler serves the customer's order history. Every amount comes from the
// frozen pricing snapshot; nothing is recomputed against the live catalog.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	offset := int32((page - 1) * perPage)
	total, err := h.Store.CountForUser(r.Context(), uid)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to count orders", nil)
		return
	}
	orders, err := h.Store.ListForUser(r.Context(), uid, int32(perPage), offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	response := make([]map[string]any, 0, len(orders))
	for _, ord := range orders {
		response = append(response, orderSummary(ord))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": response,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get handles GET /api/v1/orders/{orderId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ord, items, ok := h.loadOrder(w, r, uid)
	if !ok {
		return
	}
	detail := orderSummary(ord)
	responseItems := make([]map[string]any, 0, len(items))
	for _, it := range items {
		responseItems = append(responseItems, map[string]any{
			"id":        repo.UUIDString(it.ID),
			"productId": repo.UUIDString(it.ProductID),
			"title":     it.Title,
			"qty":       it.Qty,
			"unitPrice": it.UnitPrice,
			"onSale":    it.OnSale,
			"subtotal":  it.Subtotal,
		})
	}
	detail["items"] = responseItems
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// Invoice handles GET /api/v1/orders/{orderId}/invoice. Amounts render as
// decimal strings from the stored snapshot.
func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ord, items, ok := h.loadOrder(w, r, uid)
	if !ok {
		return
	}
	lines := make([]map[string]any, 0, len(items))
	for _, it := range items {
		lines = append(lines, map[string]any{
			"title":     it.Title,
			"qty":       it.Qty,
			"unitPrice": money.FromCents(it.UnitPrice),
			"subtotal":  money.FromCents(it.Subtotal),
		})
	}
	invoice := map[string]any{
		"orderId":       repo.UUIDString(ord.ID),
		"status":        ord.Status,
		"currency":      ord.Currency,
		"lines":         lines,
		"subtotal":      money.FromCents(ord.Subtotal),
		"discount":      money.FromCents(ord.Discount),
		"processingFee": money.FromCents(ord.Fee),
		"total":         money.FromCents(ord.Total),
		"computedAt":    ord.ComputedAt.Time,
		"issuedAt":      ord.CreatedAt.Time,
	}
	if ord.PromoCode.Valid {
		invoice["promoCode"] = ord.PromoCode.String
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": invoice})
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request, uid pgtype.UUID) (repo.Order, []repo.OrderItem, bool) {
	oid, err := repo.ToUUID(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return repo.Order{}, nil, false
	}
	ord, err := h.Store.GetForUser(r.Context(), oid, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return repo.Order{}, nil, false
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return repo.Order{}, nil, false
	}
	items, err := h.Store.ItemsByOrder(r.Context(), ord.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order items", nil)
		return repo.Order{}, nil, false
	}
	return ord, items, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return pgtype.UUID{}, false
	}
	uid, err := repo.ToUUID(userID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid user id", nil)
		return pgtype.UUID{}, false
	}
	return uid, true
}

func orderSummary(ord repo.Order) map[string]any {
	summary := map[string]any{
		"id":            repo.UUIDString(ord.ID),
		"status":        ord.Status,
		"currency":      ord.Currency,
		"subtotal":      ord.Subtotal,
		"discount":      ord.Discount,
		"processingFee": ord.Fee,
		"total":         ord.Total,
		"computedAt":    ord.ComputedAt.Time,
		"createdAt":     ord.CreatedAt.Time,
	}
	if ord.PromoCode.Valid {
		summary["promoCode"] = ord.PromoCode.String
	}
	return summary
}
